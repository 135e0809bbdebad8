package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/csgstat/csgstat/pkg/csg"
	"github.com/csgstat/csgstat/pkg/log"
	"github.com/csgstat/csgstat/pkg/types"
)

// thresholds for re-fetching settled windows. The vendor finalizes a billing
// period's data within the first few days of the next one, so past that
// point re-fetching last month / last year only wastes the slow endpoints.
const (
	lastMonthRefreshDays = 5
	lastYearRefreshDays  = 5
)

// ErrAuthRequired marks tick failures that need the user to log in again.
// The refresh loop cannot recover from these on its own.
var ErrAuthRequired = errors.New("re-authentication required")

// API is the subset of the client the coordinator drives. *csg.Client
// implements it; tests substitute a scripted mock.
type API interface {
	Restore(s types.Session)
	Session() types.Session
	VerifyLogin(ctx context.Context) (bool, error)
	Authenticate(ctx context.Context, username, password, code string) error
	Initialize(ctx context.Context) error
	GetAllLinkedAccounts(ctx context.Context) ([]types.ElectricityAccount, error)
	GetBalanceAndArrears(ctx context.Context, account types.ElectricityAccount) (float64, float64, error)
	GetYearMonthStats(ctx context.Context, account types.ElectricityAccount, year int) (totalCost, totalKWH float64, byMonth []types.MonthValue, err error)
	GetMonthDailyUsageDetail(ctx context.Context, account types.ElectricityAccount, year, month int) (float64, []types.DayValue, error)
	GetMonthDailyCostDetail(ctx context.Context, account types.ElectricityAccount, year, month int) (csg.MonthCostDetail, error)
	GetYesterdayKWH(ctx context.Context, account types.ElectricityAccount) (float64, error)
}

var _ API = (*csg.Client)(nil)

// State is what the coordinator carries between ticks. It is deliberately
// small: losing it only means the next tick re-fetches the settled windows.
type State struct {
	// HasTicked is false until the first completed tick, which fetches
	// everything regardless of the caching policy.
	HasTicked bool
	// LastUpdateDay is the day-of-month of the last completed tick, used to
	// run the last-year refresh at most once per day.
	LastUpdateDay int
}

// Coordinator runs refresh ticks for one config entry. Ticks must not
// overlap; the Service's timer loop guarantees that.
type Coordinator struct {
	api          API
	facetTimeout time.Duration
	metrics      *Metrics
	state        State

	// now is swapped out in tests
	now func() time.Time
}

// NewCoordinator returns a coordinator driving api. metrics may be nil.
func NewCoordinator(api API, facetTimeout time.Duration, metrics *Metrics) *Coordinator {
	if facetTimeout <= 0 {
		facetTimeout = types.DefaultFacetTimeoutSeconds * time.Second
	}
	return &Coordinator{
		api:          api,
		facetTimeout: facetTimeout,
		metrics:      metrics,
		now:          time.Now,
	}
}

// State returns the coordinator's tick state.
func (c *Coordinator) State() State {
	return c.state
}

type windowFlags struct {
	lastMonth bool
	lastYear  bool
}

// windowFlags decides which settled windows this tick re-fetches. The first
// tick ever fetches everything; after that last month is refreshed during
// the first days of a month and last year during the first days of January,
// at most once a day.
func (c *Coordinator) windowFlags(now time.Time) windowFlags {
	if !c.state.HasTicked {
		return windowFlags{lastMonth: true, lastYear: true}
	}
	var flags windowFlags
	if now.Day() <= lastMonthRefreshDays {
		flags.lastMonth = true
	}
	if now.Month() == time.January && now.Day() <= lastYearRefreshDays &&
		c.state.LastUpdateDay != now.Day() {
		flags.lastYear = true
	}
	return flags
}

// ensureSession makes the entry's session usable, re-authenticating with the
// stored credentials when possible. It returns the entry with a refreshed
// token when the session changed.
func (c *Coordinator) ensureSession(ctx context.Context, entry types.ConfigEntry) (types.ConfigEntry, bool, error) {
	c.api.Restore(types.Session{
		AuthToken: entry.AuthToken,
		LoginType: entry.LoginType,
	})

	valid := false
	if entry.AuthToken != "" {
		var err error
		valid, err = c.api.VerifyLogin(ctx)
		if err != nil {
			return entry, false, fmt.Errorf("failed to verify session: %w", err)
		}
	}

	changed := false
	if !valid {
		strategy, err := csg.StrategyFor(entry.LoginType)
		if err != nil {
			return entry, false, fmt.Errorf("%w: %v", ErrAuthRequired, err)
		}
		if !strategy.SupportsAutoRefresh() {
			return entry, false, fmt.Errorf("%w: session expired and login type %s needs user interaction", ErrAuthRequired, entry.LoginType)
		}
		log.Ctx(ctx).InfoContext(ctx, "session expired, logging in again", slog.String("username", entry.Username))
		if err := c.api.Authenticate(ctx, entry.Username, entry.Password, ""); err != nil {
			if errors.Is(err, csg.ErrInvalidCredentials) {
				return entry, false, fmt.Errorf("%w: stored credentials rejected", ErrAuthRequired)
			}
			return entry, false, fmt.Errorf("failed to re-login: %w", err)
		}
		entry.AuthToken = c.api.Session().AuthToken
		changed = true
	}

	if err := c.api.Initialize(ctx); err != nil {
		return entry, changed, fmt.Errorf("failed to initialize session: %w", err)
	}
	return entry, changed, nil
}

// Tick runs one refresh for entry and returns the consolidated snapshot plus
// the entry, whose auth token may have been refreshed (persist it when
// changed is true). Session establishment failures fail the whole tick;
// individual facet failures degrade to unavailable fields.
func (c *Coordinator) Tick(ctx context.Context, entry types.ConfigEntry) (types.RefreshSnapshot, types.ConfigEntry, bool, error) {
	now := c.now()
	snap := types.RefreshSnapshot{
		TakenAt:  now,
		Accounts: map[string]types.AccountSnapshot{},
	}

	if len(entry.Accounts) == 0 {
		log.Ctx(ctx).InfoContext(ctx, "no electricity accounts linked, skipping refresh",
			slog.String("username", entry.Username))
		return snap, entry, false, nil
	}

	entry, changed, err := c.ensureSession(ctx, entry)
	if err != nil {
		return types.RefreshSnapshot{}, entry, changed, err
	}

	flags := c.windowFlags(now)
	log.Ctx(ctx).DebugContext(ctx, "refresh tick started",
		slog.String("username", entry.Username),
		slog.Int("accounts", len(entry.Accounts)),
		slog.Bool("refreshLastMonth", flags.lastMonth),
		slog.Bool("refreshLastYear", flags.lastYear))

	accounts := c.resolveAccounts(ctx, entry.Accounts)

	// accounts are independent, fetch them concurrently like the facets
	// within each one
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for number, account := range accounts {
		wg.Add(1)
		go func(number string, account types.ElectricityAccount) {
			defer wg.Done()
			acctSnap := c.fetchAccount(ctx, account, flags, now)
			mu.Lock()
			snap.Accounts[number] = acctSnap
			mu.Unlock()
		}(number, account)
	}
	wg.Wait()

	c.state.HasTicked = true
	c.state.LastUpdateDay = now.Day()

	return snap, entry, changed, nil
}

// runFacet runs one facet fetch under the per-facet timeout, counting and
// logging failures. fn assigns the fetched fields itself; on error it must
// leave them unavailable.
// resolveAccounts refreshes the volatile ids of the configured accounts from
// the linked-accounts listing. The internal customer id can change between
// login cycles; only the 16-digit account number is stable. Stored values are
// kept for accounts missing from the listing or when the listing fails, the
// next tick retries.
func (c *Coordinator) resolveAccounts(ctx context.Context, stored map[string]types.ElectricityAccount) map[string]types.ElectricityAccount {
	lctx, cancel := context.WithTimeout(ctx, c.facetTimeout)
	defer cancel()
	linked, err := c.api.GetAllLinkedAccounts(lctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to re-resolve linked accounts, using stored ids",
			slog.Any("error", err))
		return stored
	}
	byNumber := make(map[string]types.ElectricityAccount, len(linked))
	for _, acct := range linked {
		byNumber[acct.AccountNumber] = acct
	}
	resolved := make(map[string]types.ElectricityAccount, len(stored))
	for number, acct := range stored {
		if current, ok := byNumber[number]; ok {
			resolved[number] = current
		} else {
			log.Ctx(ctx).WarnContext(ctx, "configured account no longer linked upstream",
				slog.String("accountNumber", number))
			resolved[number] = acct
		}
	}
	return resolved
}

func (c *Coordinator) runFacet(ctx context.Context, facet string, fn func(ctx context.Context) error) {
	fctx, cancel := context.WithTimeout(ctx, c.facetTimeout)
	defer cancel()
	if err := fn(fctx); err != nil {
		c.metrics.facetFailure(facet)
		log.Ctx(ctx).WarnContext(ctx, "facet fetch failed",
			slog.String("facet", facet), slog.Any("error", err))
	}
}

// fetchAccount fans out the independent facets for one account and merges
// the results. Each goroutine writes a disjoint set of snapshot fields.
func (c *Coordinator) fetchAccount(ctx context.Context, account types.ElectricityAccount, flags windowFlags, now time.Time) types.AccountSnapshot {
	var snap types.AccountSnapshot
	year, month, _ := now.Date()
	lastMonthYear, lastMonth := year, int(month)-1
	if lastMonth == 0 {
		lastMonthYear, lastMonth = year-1, 12
	}

	var thisUsage usageFacet
	var thisCost costFacet

	var wg sync.WaitGroup
	spawn := func(facet string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runFacet(ctx, facet, fn)
		}()
	}

	spawn("balance", func(fctx context.Context) error {
		snap.Balance = types.Unavailable[float64]()
		snap.Arrears = types.Unavailable[float64]()
		balance, arrears, err := c.api.GetBalanceAndArrears(fctx, account)
		if err != nil {
			return err
		}
		snap.Balance = types.Value(balance)
		snap.Arrears = types.Value(arrears)
		return nil
	})

	spawn("yesterday", func(fctx context.Context) error {
		snap.YesterdayKWH = types.Unavailable[float64]()
		kwh, err := c.api.GetYesterdayKWH(fctx, account)
		if err != nil {
			return err
		}
		snap.YesterdayKWH = types.Value(kwh)
		return nil
	})

	spawn("this_year", func(fctx context.Context) error {
		snap.ThisYearKWH = types.Unavailable[float64]()
		snap.ThisYearCost = types.Unavailable[float64]()
		snap.ThisYearByMonth = types.Unavailable[[]types.MonthValue]()
		cost, kwh, byMonth, err := c.api.GetYearMonthStats(fctx, account, year)
		if err != nil {
			return err
		}
		snap.ThisYearKWH = types.Value(kwh)
		snap.ThisYearCost = types.Value(cost)
		snap.ThisYearByMonth = types.Value(byMonth)
		return nil
	})

	if flags.lastYear {
		spawn("last_year", func(fctx context.Context) error {
			snap.LastYearKWH = types.Unavailable[float64]()
			snap.LastYearCost = types.Unavailable[float64]()
			snap.LastYearByMonth = types.Unavailable[[]types.MonthValue]()
			cost, kwh, byMonth, err := c.api.GetYearMonthStats(fctx, account, year-1)
			if err != nil {
				return err
			}
			snap.LastYearKWH = types.Value(kwh)
			snap.LastYearCost = types.Value(cost)
			snap.LastYearByMonth = types.Value(byMonth)
			return nil
		})
	} else {
		snap.LastYearKWH = types.Unchanged[float64]()
		snap.LastYearCost = types.Unchanged[float64]()
		snap.LastYearByMonth = types.Unchanged[[]types.MonthValue]()
	}

	// usage and cost ride separate goroutines: the cost endpoint takes ~30s
	// and must not delay the rest of the tick
	spawn("this_month_usage", func(fctx context.Context) error {
		total, byDay, err := c.api.GetMonthDailyUsageDetail(fctx, account, year, int(month))
		if err != nil {
			return err
		}
		thisUsage = usageFacet{ok: true, total: total, byDay: byDay}
		return nil
	})
	spawn("this_month_cost", func(fctx context.Context) error {
		detail, err := c.api.GetMonthDailyCostDetail(fctx, account, year, int(month))
		if err != nil {
			return err
		}
		thisCost = costFacet{ok: true, detail: detail}
		return nil
	})

	wg.Wait()

	thisMerged := mergeMonth(thisUsage, thisCost)
	snap.ThisMonthKWH = thisMerged.kwh
	snap.ThisMonthCost = thisMerged.cost
	snap.ThisMonthByDay = thisMerged.byDay
	if thisCost.ok {
		// the ladder the cost endpoint reports is always the current
		// month's, so it only makes sense on the this-month fetch
		snap.Ladder = types.Value(thisCost.detail.Ladder)
	} else {
		snap.Ladder = types.Unavailable[types.Ladder]()
	}

	// last month is only knowable after this month's result lands: without a
	// current-month series the latest-day derivation needs last month's
	thisMonthDays, thisMonthOK := thisMerged.byDay.Get()
	if flags.lastMonth || !thisMonthOK || len(thisMonthDays) == 0 {
		var lastUsage usageFacet
		var lastCost costFacet
		spawn("last_month_usage", func(fctx context.Context) error {
			total, byDay, err := c.api.GetMonthDailyUsageDetail(fctx, account, lastMonthYear, lastMonth)
			if err != nil {
				return err
			}
			lastUsage = usageFacet{ok: true, total: total, byDay: byDay}
			return nil
		})
		spawn("last_month_cost", func(fctx context.Context) error {
			detail, err := c.api.GetMonthDailyCostDetail(fctx, account, lastMonthYear, lastMonth)
			if err != nil {
				return err
			}
			lastCost = costFacet{ok: true, detail: detail}
			return nil
		})
		wg.Wait()

		lastMerged := mergeMonth(lastUsage, lastCost)
		snap.LastMonthKWH = lastMerged.kwh
		snap.LastMonthCost = lastMerged.cost
		snap.LastMonthByDay = lastMerged.byDay
	} else {
		snap.LastMonthKWH = types.Unchanged[float64]()
		snap.LastMonthCost = types.Unchanged[float64]()
		snap.LastMonthByDay = types.Unchanged[[]types.DayValue]()
	}

	deriveLatestDay(&snap)
	return snap
}
