package refresh

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csgstat/csgstat/pkg/storage"
	"github.com/csgstat/csgstat/pkg/types"
)

func TestServiceRunTickPublishes(t *testing.T) {
	ctx := context.Background()
	db := storage.NewFileProvider(filepath.Join(t.TempDir(), "state.yaml"))
	entry := testConfigEntry()
	require.NoError(t, db.PutEntry(ctx, entry))

	api := NewMockAPI()
	api.GetBalanceAndArrearsFunc = func(ctx context.Context, account types.ElectricityAccount) (float64, float64, error) {
		return 42.0, 0, nil
	}

	svc := NewService(db, func(time.Duration) API { return api }, nil)
	coord := NewCoordinator(api, time.Second, nil)

	svc.runTick(ctx, coord, entry, entry.Settings)

	snap, ok := svc.Latest(ctx, entry.Username)
	require.True(t, ok)
	acct := snap.Accounts[testAccountNumber]
	assert.Equal(t, 42.0, acct.Balance.MustGet())

	// the snapshot also landed in storage
	stored, err := db.GetLatestSnapshot(ctx, entry.Username)
	require.NoError(t, err)
	assert.Equal(t, 42.0, stored.Accounts[testAccountNumber].Balance.MustGet())
}

func TestServiceRunTickPersistsRefreshedToken(t *testing.T) {
	ctx := context.Background()
	db := storage.NewFileProvider(filepath.Join(t.TempDir(), "state.yaml"))
	entry := testConfigEntry()
	require.NoError(t, db.PutEntry(ctx, entry))

	api := NewMockAPI()
	api.VerifyLoginFunc = func(ctx context.Context) (bool, error) { return false, nil }
	api.AuthenticateFunc = func(ctx context.Context, username, password, code string) error {
		api.SetSession(types.Session{AuthToken: "fresh", LoginType: types.LoginTypePassword})
		return nil
	}

	svc := NewService(db, func(time.Duration) API { return api }, nil)
	coord := NewCoordinator(api, time.Second, nil)
	svc.runTick(ctx, coord, entry, entry.Settings)

	stored, err := db.GetEntry(ctx, entry.Username)
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AuthToken)
	assert.NotZero(t, stored.UpdatedAt)
}

func TestServiceLatestFallsBackToStorage(t *testing.T) {
	ctx := context.Background()
	db := storage.NewFileProvider(filepath.Join(t.TempDir(), "state.yaml"))
	snap := types.RefreshSnapshot{
		TakenAt: time.Now(),
		Accounts: map[string]types.AccountSnapshot{
			testAccountNumber: {Balance: types.Value(7.0)},
		},
	}
	require.NoError(t, db.RecordSnapshot(ctx, "u", snap))

	svc := NewService(db, func(time.Duration) API { return NewMockAPI() }, nil)
	got, ok := svc.Latest(ctx, "u")
	require.True(t, ok)
	assert.Equal(t, 7.0, got.Accounts[testAccountNumber].Balance.MustGet())

	_, ok = svc.Latest(ctx, "nobody")
	assert.False(t, ok)
}
