package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/csgstat/csgstat/pkg/log"
	"github.com/csgstat/csgstat/pkg/storage"
	"github.com/csgstat/csgstat/pkg/types"
)

// Service runs one refresh loop per stored config entry and publishes the
// resulting snapshots to storage and an in-memory latest map for the status
// server.
type Service struct {
	db      storage.Database
	newAPI  func(timeout time.Duration) API
	metrics *Metrics

	// OnSnapshot, when set before Run, is called with every successfully
	// published snapshot. Calls may come from concurrent entry loops.
	OnSnapshot func(snap types.RefreshSnapshot)

	mu     sync.RWMutex
	latest map[string]types.RefreshSnapshot
}

// NewService returns a service refreshing the entries in db. newAPI
// constructs a client per entry (tests inject mocks); metrics may be nil.
func NewService(db storage.Database, newAPI func(timeout time.Duration) API, metrics *Metrics) *Service {
	return &Service{
		db:      db,
		newAPI:  newAPI,
		metrics: metrics,
		latest:  map[string]types.RefreshSnapshot{},
	}
}

// Latest returns the most recent snapshot for a login, falling back to the
// stored one before the first tick of this process completes.
func (s *Service) Latest(ctx context.Context, username string) (types.RefreshSnapshot, bool) {
	s.mu.RLock()
	snap, ok := s.latest[username]
	s.mu.RUnlock()
	if ok {
		return snap, true
	}
	snap, err := s.db.GetLatestSnapshot(ctx, username)
	if err != nil {
		return types.RefreshSnapshot{}, false
	}
	return snap, true
}

// Snapshots returns a copy of the latest in-memory snapshots by username.
func (s *Service) Snapshots() map[string]types.RefreshSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.RefreshSnapshot, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// Run starts one refresh loop per stored entry and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	entries, err := s.db.ListEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "no config entries stored, nothing to refresh")
	}

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(entry types.ConfigEntry) {
			defer wg.Done()
			s.runEntry(ctx, entry)
		}(entry)
	}
	wg.Wait()
	return nil
}

// runEntry drives the non-overlapping tick loop for one entry: an immediate
// first tick, then one per configured interval. The next tick is the retry
// mechanism; there are no retries inside a tick.
func (s *Service) runEntry(ctx context.Context, entry types.ConfigEntry) {
	settings := entry.Settings.Normalize()
	coord := NewCoordinator(s.newAPI(settings.FacetTimeout()), settings.FacetTimeout(), s.metrics)

	log.Ctx(ctx).InfoContext(ctx, "starting refresh loop",
		slog.String("username", entry.Username),
		slog.Duration("interval", settings.UpdateInterval()))

	ticker := time.NewTicker(settings.UpdateInterval())
	defer ticker.Stop()

	for {
		entry = s.runTick(ctx, coord, entry, settings)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runTick executes a single bounded tick and publishes its outcome. It
// returns the entry, updated when the tick refreshed the auth token.
func (s *Service) runTick(ctx context.Context, coord *Coordinator, entry types.ConfigEntry, settings types.Settings) types.ConfigEntry {
	tctx, cancel := context.WithTimeout(ctx, settings.UpdateTimeout())
	defer cancel()

	start := time.Now()
	snap, updated, changed, err := coord.Tick(tctx, entry)
	elapsed := time.Since(start)

	if changed {
		// persist the refreshed token even when the tick failed later on
		updated.Touch(time.Now())
		if perr := s.db.PutEntry(ctx, updated); perr != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to persist refreshed session",
				slog.String("username", entry.Username), slog.Any("error", perr))
		}
		entry = updated
	}

	if err != nil {
		if errors.Is(err, ErrAuthRequired) {
			s.metrics.authFailure()
			s.metrics.tick("auth_required", elapsed.Seconds())
			log.Ctx(ctx).ErrorContext(ctx, "refresh needs re-authentication",
				slog.String("username", entry.Username), slog.Any("error", err))
		} else {
			s.metrics.tick("error", elapsed.Seconds())
			log.Ctx(ctx).ErrorContext(ctx, "refresh tick failed",
				slog.String("username", entry.Username), slog.Any("error", err))
		}
		// previously published data stays in place
		return entry
	}

	s.mu.Lock()
	s.latest[entry.Username] = snap
	s.mu.Unlock()
	if s.OnSnapshot != nil {
		s.OnSnapshot(snap)
	}

	if err := s.db.RecordSnapshot(ctx, entry.Username, snap); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to record snapshot",
			slog.String("username", entry.Username), slog.Any("error", err))
	}

	s.metrics.tick("success", elapsed.Seconds())
	log.Ctx(ctx).InfoContext(ctx, "refresh tick done",
		slog.String("username", entry.Username),
		slog.Int("accounts", len(snap.Accounts)),
		slog.Duration("elapsed", elapsed))
	return entry
}
