package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestScopeForMasterIsUnrestricted(t *testing.T) {
	scope := ScopeFor(Actor{ID: uuid.New(), Role: RoleMaster})
	if !scope.Unrestricted() {
		t.Fatalf("master role must be unrestricted")
	}
	if !scope.CanSee("Anything Ltd") {
		t.Fatalf("master must see every firm")
	}
}

func TestScopeForAllSentinel(t *testing.T) {
	scope := ScopeFor(Actor{Role: "operator", Firms: []string{"AAA", "ALL"}})
	if !scope.Unrestricted() {
		t.Fatalf("the all sentinel must grant unrestricted visibility regardless of case")
	}
}

func TestScopeMatchingIsCaseInsensitiveAndTrimmed(t *testing.T) {
	scope := ScopeFor(Actor{Role: "operator", Firms: []string{"  Apex Steels "}})

	for _, firm := range []string{"apex steels", "APEX STEELS", " Apex Steels  "} {
		if !scope.CanSee(firm) {
			t.Fatalf("expected %q to be visible", firm)
		}
	}
	if scope.CanSee("Borg Alloys") {
		t.Fatalf("foreign firm must not be visible")
	}
}

func TestFilterFirms(t *testing.T) {
	type order struct {
		firm string
		qty  float64
	}
	orders := []order{
		{firm: "AAA", qty: 10},
		{firm: "BBB", qty: 20},
		{firm: "aaa ", qty: 30},
	}

	scope := ScopeFor(Actor{Role: "operator", Firms: []string{"AAA"}})
	visible := FilterFirms(scope, orders, func(o order) string { return o.firm })

	if len(visible) != 2 {
		t.Fatalf("expected 2 visible orders, got %d", len(visible))
	}
	for _, o := range visible {
		if NormalizeFirm(o.firm) != "aaa" {
			t.Fatalf("leaked order of firm %q", o.firm)
		}
	}
}

func TestScopeCacheKeyIsStable(t *testing.T) {
	a := ScopeFor(Actor{Role: "operator", Firms: []string{"BBB", "AAA"}})
	b := ScopeFor(Actor{Role: "operator", Firms: []string{"aaa", "bbb"}})
	if a.CacheKey() != b.CacheKey() {
		t.Fatalf("cache keys must be order- and case-insensitive: %q vs %q", a.CacheKey(), b.CacheKey())
	}

	master := ScopeFor(Actor{Role: RoleMaster})
	if master.CacheKey() != FirmAll {
		t.Fatalf("unrestricted cache key must be %q, got %q", FirmAll, master.CacheKey())
	}
}

func TestSeriesFormatting(t *testing.T) {
	if got := SeriesDispatch.Seed(); got != "D-01" {
		t.Fatalf("dispatch seed = %q, want D-01", got)
	}
	if got := SeriesLogistics.Seed(); got != "LGST-001" {
		t.Fatalf("logistics seed = %q, want LGST-001", got)
	}
	if got := SeriesDispatch.Format(7); got != "D-07" {
		t.Fatalf("Format(7) = %q, want D-07", got)
	}
	if got := SeriesDispatch.Format(123); got != "D-123" {
		t.Fatalf("width is a minimum, Format(123) = %q, want D-123", got)
	}
	if got := SeriesLogistics.Format(42); got != "LGST-042" {
		t.Fatalf("Format(42) = %q, want LGST-042", got)
	}
}
