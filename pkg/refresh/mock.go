package refresh

import (
	"context"
	"sync"

	"github.com/csgstat/csgstat/pkg/csg"
	"github.com/csgstat/csgstat/pkg/types"
)

// MockAPI is a scriptable API implementation for tests. Unset funcs return
// zero values.
type MockAPI struct {
	mu      sync.Mutex
	session types.Session
	calls   map[string]int

	VerifyLoginFunc             func(ctx context.Context) (bool, error)
	AuthenticateFunc            func(ctx context.Context, username, password, code string) error
	InitializeFunc              func(ctx context.Context) error
	GetAllLinkedAccountsFunc    func(ctx context.Context) ([]types.ElectricityAccount, error)
	GetBalanceAndArrearsFunc    func(ctx context.Context, account types.ElectricityAccount) (float64, float64, error)
	GetYearMonthStatsFunc       func(ctx context.Context, account types.ElectricityAccount, year int) (float64, float64, []types.MonthValue, error)
	GetMonthDailyUsageFunc      func(ctx context.Context, account types.ElectricityAccount, year, month int) (float64, []types.DayValue, error)
	GetMonthDailyCostDetailFunc func(ctx context.Context, account types.ElectricityAccount, year, month int) (csg.MonthCostDetail, error)
	GetYesterdayKWHFunc         func(ctx context.Context, account types.ElectricityAccount) (float64, error)
}

// NewMockAPI returns an empty mock.
func NewMockAPI() *MockAPI {
	return &MockAPI{calls: map[string]int{}}
}

func (m *MockAPI) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
}

// Calls returns how many times the named method ran.
func (m *MockAPI) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockAPI) Restore(s types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

func (m *MockAPI) Session() types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// SetSession scripts the session, e.g. the token a login would produce.
func (m *MockAPI) SetSession(s types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

func (m *MockAPI) VerifyLogin(ctx context.Context) (bool, error) {
	m.record("VerifyLogin")
	if m.VerifyLoginFunc != nil {
		return m.VerifyLoginFunc(ctx)
	}
	return true, nil
}

func (m *MockAPI) Authenticate(ctx context.Context, username, password, code string) error {
	m.record("Authenticate")
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, username, password, code)
	}
	return nil
}

func (m *MockAPI) Initialize(ctx context.Context) error {
	m.record("Initialize")
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx)
	}
	return nil
}

func (m *MockAPI) GetAllLinkedAccounts(ctx context.Context) ([]types.ElectricityAccount, error) {
	m.record("GetAllLinkedAccounts")
	if m.GetAllLinkedAccountsFunc != nil {
		return m.GetAllLinkedAccountsFunc(ctx)
	}
	return nil, nil
}

func (m *MockAPI) GetBalanceAndArrears(ctx context.Context, account types.ElectricityAccount) (float64, float64, error) {
	m.record("GetBalanceAndArrears")
	if m.GetBalanceAndArrearsFunc != nil {
		return m.GetBalanceAndArrearsFunc(ctx, account)
	}
	return 0, 0, nil
}

func (m *MockAPI) GetYearMonthStats(ctx context.Context, account types.ElectricityAccount, year int) (float64, float64, []types.MonthValue, error) {
	m.record("GetYearMonthStats")
	if m.GetYearMonthStatsFunc != nil {
		return m.GetYearMonthStatsFunc(ctx, account, year)
	}
	return 0, 0, nil, nil
}

func (m *MockAPI) GetMonthDailyUsageDetail(ctx context.Context, account types.ElectricityAccount, year, month int) (float64, []types.DayValue, error) {
	m.record("GetMonthDailyUsageDetail")
	if m.GetMonthDailyUsageFunc != nil {
		return m.GetMonthDailyUsageFunc(ctx, account, year, month)
	}
	return 0, nil, nil
}

func (m *MockAPI) GetMonthDailyCostDetail(ctx context.Context, account types.ElectricityAccount, year, month int) (csg.MonthCostDetail, error) {
	m.record("GetMonthDailyCostDetail")
	if m.GetMonthDailyCostDetailFunc != nil {
		return m.GetMonthDailyCostDetailFunc(ctx, account, year, month)
	}
	return csg.MonthCostDetail{}, nil
}

func (m *MockAPI) GetYesterdayKWH(ctx context.Context, account types.ElectricityAccount) (float64, error) {
	m.record("GetYesterdayKWH")
	if m.GetYesterdayKWHFunc != nil {
		return m.GetYesterdayKWHFunc(ctx, account)
	}
	return 0, nil
}

var _ API = (*MockAPI)(nil)
