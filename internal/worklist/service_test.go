package worklist

import (
	"context"
	"sync"
	"testing"
	"time"

	"orderflow_backend/internal/events"
	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int
	calls  int
}

func (f *fakeCounter) CountPendingAtStage(_ context.Context, _ domain.Scope, stage domain.Stage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.counts[stage.Name], nil
}

func (f *fakeCounter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestService(t *testing.T) (*Service, *fakeCounter, *fakeCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	orders := &fakeCounter{counts: map[string]int{
		domain.StageStockCheck:      3,
		domain.StageDispatchPlanned: 1,
	}}
	dispatches := &fakeCounter{counts: map[string]int{
		domain.StageLoaded:  2,
		domain.StageWeighed: 5,
	}}

	svc := NewService(rdb, orders, dispatches, logger.New("development"), 30*time.Second)
	return svc, orders, dispatches, mr
}

func master() domain.Actor {
	return domain.Actor{ID: uuid.New(), Role: domain.RoleMaster}
}

func TestCountsCoverEveryStage(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	view, err := svc.Counts(context.Background(), master())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if len(view.Orders) != len(domain.OrderStages()) {
		t.Fatalf("order stages in view = %d, want %d", len(view.Orders), len(domain.OrderStages()))
	}
	if len(view.Dispatches) != len(domain.DispatchStages()) {
		t.Fatalf("dispatch stages in view = %d, want %d", len(view.Dispatches), len(domain.DispatchStages()))
	}

	byStage := make(map[string]int)
	for _, c := range view.Orders {
		byStage[c.Stage] = c.Pending
	}
	for _, c := range view.Dispatches {
		byStage[c.Stage] = c.Pending
	}
	if byStage[domain.StageStockCheck] != 3 || byStage[domain.StageWeighed] != 5 {
		t.Fatalf("unexpected counts: %v", byStage)
	}
	if byStage[domain.StageCRMClosed] != 0 {
		t.Fatalf("stages with no pending work must report zero, got %d", byStage[domain.StageCRMClosed])
	}
}

func TestCountsAreServedFromCache(t *testing.T) {
	svc, orders, _, _ := newTestService(t)
	ctx := context.Background()
	actor := master()

	if _, err := svc.Counts(ctx, actor); err != nil {
		t.Fatalf("first Counts: %v", err)
	}
	first := orders.callCount()

	if _, err := svc.Counts(ctx, actor); err != nil {
		t.Fatalf("second Counts: %v", err)
	}
	if orders.callCount() != first {
		t.Fatalf("second read must come from cache, repo calls went %d -> %d", first, orders.callCount())
	}
}

func TestCacheExpiresAfterRefreshInterval(t *testing.T) {
	svc, orders, _, mr := newTestService(t)
	ctx := context.Background()
	actor := master()

	if _, err := svc.Counts(ctx, actor); err != nil {
		t.Fatalf("first Counts: %v", err)
	}
	first := orders.callCount()

	mr.FastForward(31 * time.Second)

	if _, err := svc.Counts(ctx, actor); err != nil {
		t.Fatalf("Counts after expiry: %v", err)
	}
	if orders.callCount() == first {
		t.Fatalf("expired cache must force a recompute")
	}
}

func TestStageEventsInvalidateTheCache(t *testing.T) {
	svc, orders, _, _ := newTestService(t)
	bus := events.NewInMemoryBus(logger.New("development"))
	svc.RegisterEventHandlers(bus)
	ctx := context.Background()
	actor := master()

	if _, err := svc.Counts(ctx, actor); err != nil {
		t.Fatalf("first Counts: %v", err)
	}
	first := orders.callCount()

	if err := bus.PublishSync(ctx, events.StageCompleted{
		BaseEvent:  events.NewBaseEvent(),
		EntityKind: string(domain.KindOrder),
		EntityID:   1,
		Firm:       "Apex Steels",
		Stage:      domain.StageStockCheck,
	}); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	if _, err := svc.Counts(ctx, actor); err != nil {
		t.Fatalf("Counts after invalidation: %v", err)
	}
	if orders.callCount() == first {
		t.Fatalf("a stage completion must invalidate the cached counts")
	}
}

func TestScopesAreCachedSeparately(t *testing.T) {
	svc, _, _, mr := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Counts(ctx, master()); err != nil {
		t.Fatalf("master Counts: %v", err)
	}
	if _, err := svc.Counts(ctx, domain.Actor{ID: uuid.New(), Role: "operator", Firms: []string{"Apex Steels"}}); err != nil {
		t.Fatalf("operator Counts: %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected one cache entry per scope, got %v", keys)
	}
}
