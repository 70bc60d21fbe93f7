// Package worklist aggregates pending-work counts per pipeline stage.
// Counts are cached in redis per visibility scope, invalidated by stage
// events, and expire on their own so a missed invalidation heals within
// one refresh interval.
package worklist

import (
	"context"
	"encoding/json"
	"time"

	"orderflow_backend/internal/events"
	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/platform/logger"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const cacheKeyPrefix = "worklist:"

// OrderCounter is the slice of the order repository the aggregator needs.
type OrderCounter interface {
	CountPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage) (int, error)
}

// DispatchCounter is the slice of the dispatch repository the aggregator needs.
type DispatchCounter interface {
	CountPendingAtStage(ctx context.Context, scope domain.Scope, stage domain.Stage) (int, error)
}

// StageCount is the pending count of one stage.
type StageCount struct {
	Stage   string `json:"stage"`
	Track   string `json:"track"`
	Pending int    `json:"pending"`
}

// View is the full pending-work picture for one visibility scope.
type View struct {
	Orders      []StageCount `json:"orders"`
	Dispatches  []StageCount `json:"dispatches"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// Service computes and caches pending-work counts.
type Service struct {
	rdb        *redis.Client
	orders     OrderCounter
	dispatches DispatchCounter
	log        *logger.Logger
	ttl        time.Duration
	now        func() time.Time
}

// NewService creates the worklist service. rdb may be nil, in which case
// every read computes fresh counts.
func NewService(
	rdb *redis.Client,
	orders OrderCounter,
	dispatches DispatchCounter,
	log *logger.Logger,
	ttl time.Duration,
) *Service {
	return &Service{
		rdb:        rdb,
		orders:     orders,
		dispatches: dispatches,
		log:        log,
		ttl:        ttl,
		now:        time.Now,
	}
}

func cacheKey(scope domain.Scope) string {
	return cacheKeyPrefix + scope.CacheKey()
}

// Counts returns the pending-work view for the actor's scope, from cache
// when fresh. Cache failures degrade to a direct computation; the
// dashboard must not go down with redis.
func (s *Service) Counts(ctx context.Context, actor domain.Actor) (View, error) {
	scope := domain.ScopeFor(actor)

	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, cacheKey(scope)).Bytes()
		if err == nil {
			var view View
			if err := json.Unmarshal(raw, &view); err == nil {
				return view, nil
			}
		} else if err != redis.Nil {
			s.log.WithContext(ctx).Warn("worklist cache read failed", "error", err)
		}
	}

	view, err := s.compute(ctx, scope)
	if err != nil {
		return View{}, err
	}
	s.store(ctx, scope, view)
	return view, nil
}

// Refresh recomputes and re-caches the view for a scope. The scheduler
// calls this for the unrestricted scope so the master dashboard stays
// warm between requests.
func (s *Service) Refresh(ctx context.Context, scope domain.Scope) error {
	view, err := s.compute(ctx, scope)
	if err != nil {
		return err
	}
	s.store(ctx, scope, view)
	return nil
}

// compute counts every stage of both chains in parallel. Each count is an
// indexed single-row query, so the fan-out stays cheap.
func (s *Service) compute(ctx context.Context, scope domain.Scope) (View, error) {
	orderStages := domain.OrderStages()
	dispatchStages := domain.DispatchStages()

	view := View{
		Orders:      make([]StageCount, len(orderStages)),
		Dispatches:  make([]StageCount, len(dispatchStages)),
		GeneratedAt: s.now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, stage := range orderStages {
		g.Go(func() error {
			n, err := s.orders.CountPendingAtStage(gctx, scope, stage)
			if err != nil {
				return err
			}
			view.Orders[i] = StageCount{Stage: stage.Name, Track: string(stage.Track), Pending: n}
			return nil
		})
	}
	for i, stage := range dispatchStages {
		g.Go(func() error {
			n, err := s.dispatches.CountPendingAtStage(gctx, scope, stage)
			if err != nil {
				return err
			}
			view.Dispatches[i] = StageCount{Stage: stage.Name, Track: string(stage.Track), Pending: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return View{}, err
	}
	return view, nil
}

func (s *Service) store(ctx context.Context, scope domain.Scope, view View) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey(scope), raw, s.ttl).Err(); err != nil {
		s.log.WithContext(ctx).Warn("worklist cache write failed", "error", err)
	}
}

// Invalidate drops every cached view. Counts shift for every scope that
// can see the affected firm, and scopes overlap, so per-firm invalidation
// would still have to walk every key.
func (s *Service) Invalidate(ctx context.Context) {
	if s.rdb == nil {
		return
	}

	iter := s.rdb.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.WithContext(ctx).Warn("worklist cache scan failed", "error", err)
		return
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			s.log.WithContext(ctx).Warn("worklist cache invalidation failed", "error", err)
		}
	}
}

// RegisterEventHandlers subscribes the cache invalidation to every event
// that moves an entity between stages.
func (s *Service) RegisterEventHandlers(bus events.Bus) {
	invalidate := events.HandlerFunc(func(ctx context.Context, _ events.Event) error {
		s.Invalidate(ctx)
		return nil
	})

	for _, name := range []string{
		events.OrderCreated{}.EventName(),
		events.StageScheduled{}.EventName(),
		events.StageCompleted{}.EventName(),
		events.DispatchRecorded{}.EventName(),
	} {
		bus.Subscribe(name, invalidate)
	}
}
