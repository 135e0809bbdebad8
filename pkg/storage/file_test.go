package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csgstat/csgstat/pkg/log"
	"github.com/csgstat/csgstat/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func newTestFileProvider(t *testing.T) *FileProvider {
	t.Helper()
	return NewFileProvider(filepath.Join(t.TempDir(), "state.yaml"))
}

func testEntry(username string) types.ConfigEntry {
	return types.ConfigEntry{
		Username:  username,
		Password:  "secret",
		LoginType: types.LoginTypePassword,
		AuthToken: "tok",
		Accounts: map[string]types.ElectricityAccount{
			"1234567890123456": {
				AccountNumber:   "1234567890123456",
				AreaCode:        "030000",
				EleCustomerID:   "cust-1",
				MeteringPointID: "mp-1",
			},
		},
		Settings:  types.Settings{}.Normalize(),
		UpdatedAt: time.Now().UnixMilli(),
	}
}

func TestFileEntryLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newTestFileProvider(t)

	_, err := f.GetEntry(ctx, "13800000000")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	entry := testEntry("13800000000")
	require.NoError(t, f.PutEntry(ctx, entry))

	got, err := f.GetEntry(ctx, "13800000000")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	// overwrite with a fresh token
	entry.AuthToken = "tok2"
	require.NoError(t, f.PutEntry(ctx, entry))
	got, err = f.GetEntry(ctx, "13800000000")
	require.NoError(t, err)
	assert.Equal(t, "tok2", got.AuthToken)

	require.NoError(t, f.PutEntry(ctx, testEntry("13100000000")))
	entries, err := f.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// sorted by username
	assert.Equal(t, "13100000000", entries[0].Username)

	require.NoError(t, f.DeleteEntry(ctx, "13800000000"))
	assert.ErrorIs(t, f.DeleteEntry(ctx, "13800000000"), ErrEntryNotFound)
	entries, err = f.ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newTestFileProvider(t)

	_, err := f.GetLatestSnapshot(ctx, "13800000000")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	first := types.RefreshSnapshot{
		TakenAt: time.Date(2023, 5, 1, 6, 0, 0, 0, time.UTC),
		Accounts: map[string]types.AccountSnapshot{
			"1234567890123456": {Balance: types.Value(120.50)},
		},
	}
	require.NoError(t, f.RecordSnapshot(ctx, "13800000000", first))

	second := first
	second.TakenAt = first.TakenAt.Add(6 * time.Hour)
	second.Accounts = map[string]types.AccountSnapshot{
		"1234567890123456": {Balance: types.Value(118.20)},
	}
	require.NoError(t, f.RecordSnapshot(ctx, "13800000000", second))

	got, err := f.GetLatestSnapshot(ctx, "13800000000")
	require.NoError(t, err)
	assert.True(t, got.TakenAt.Equal(second.TakenAt))
	balance, ok := got.Accounts["1234567890123456"].Balance.Get()
	require.True(t, ok)
	assert.Equal(t, 118.20, balance)
}

func TestFileSnapshotsBounded(t *testing.T) {
	ctx := context.Background()
	f := newTestFileProvider(t)

	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < snapshotsKept+5; i++ {
		snap := types.RefreshSnapshot{TakenAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, f.RecordSnapshot(ctx, "u", snap))
	}

	state, err := f.load()
	require.NoError(t, err)
	assert.Len(t, state.Snapshots["u"], snapshotsKept)

	got, err := f.GetLatestSnapshot(ctx, "u")
	require.NoError(t, err)
	assert.True(t, got.TakenAt.Equal(base.Add(time.Duration(snapshotsKept+4)*time.Hour)))
}

func TestFileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.yaml")

	f := NewFileProvider(path)
	require.NoError(t, f.PutEntry(ctx, testEntry("u")))
	require.NoError(t, f.Close())

	g := NewFileProvider(path)
	got, err := g.GetEntry(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "u", got.Username)
}
