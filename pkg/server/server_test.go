package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csgstat/csgstat/pkg/log"
	"github.com/csgstat/csgstat/pkg/refresh"
	"github.com/csgstat/csgstat/pkg/sensor"
	"github.com/csgstat/csgstat/pkg/storage"
	"github.com/csgstat/csgstat/pkg/types"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

const testAccountNumber = "1234567890123456"

func newTestServer(t *testing.T) (*Server, *storage.FileProvider) {
	t.Helper()
	db := storage.NewFileProvider(filepath.Join(t.TempDir(), "csgstat.yaml"))
	t.Cleanup(func() { _ = db.Close() })

	reg := prometheus.NewRegistry()
	refresh.NewMetrics(reg)
	svc := refresh.NewService(db, func(time.Duration) refresh.API { return &refresh.MockAPI{} }, nil)
	return &Server{
		storage:  db,
		service:  svc,
		sensors:  sensor.NewRegistry(),
		registry: reg,
	}, db
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv.setupHandler(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestListSensors(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.sensors.Apply(types.RefreshSnapshot{
		TakenAt: time.Now(),
		Accounts: map[string]types.AccountSnapshot{
			testAccountNumber: {Balance: types.Value(120.50)},
		},
	})

	w := get(t, srv.setupHandler(), "/api/sensors")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var sensors []sensor.Sensor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sensors))
	require.NotEmpty(t, sensors)

	var balance *sensor.Sensor
	for i := range sensors {
		if sensors[i].UniqueID == "csgstat."+testAccountNumber+".balance" {
			balance = &sensors[i]
		}
	}
	require.NotNil(t, balance)
	assert.True(t, balance.Available)
	assert.Equal(t, 120.50, *balance.Value)
}

func TestGetSensor(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.sensors.Apply(types.RefreshSnapshot{
		TakenAt: time.Now(),
		Accounts: map[string]types.AccountSnapshot{
			testAccountNumber: {YesterdayKWH: types.Value(3.2)},
		},
	})
	handler := srv.setupHandler()

	w := get(t, handler, "/api/sensors/csgstat."+testAccountNumber+".yesterday_kwh")
	require.Equal(t, http.StatusOK, w.Code)
	var sen sensor.Sensor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sen))
	assert.Equal(t, 3.2, *sen.Value)

	w = get(t, handler, "/api/sensors/csgstat.nope.balance")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAccountsStripsSecrets(t *testing.T) {
	srv, db := newTestServer(t)
	require.NoError(t, db.PutEntry(context.Background(), types.ConfigEntry{
		Username:  "13800000000",
		Password:  "hunter2",
		LoginType: types.LoginTypePassword,
		AuthToken: "secret-token",
		Accounts: map[string]types.ElectricityAccount{
			testAccountNumber: {
				AccountNumber: testAccountNumber,
				AreaCode:      "080000",
				EleCustomerID: "C1",
			},
		},
	}))

	w := get(t, srv.setupHandler(), "/api/accounts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.NotContains(t, w.Body.String(), "secret-token")

	var infos []accountInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "13800000000", infos[0].Username)
	assert.Equal(t, types.LoginTypePassword, infos[0].LoginType)
	assert.Equal(t, testAccountNumber, infos[0].Accounts[testAccountNumber].AccountNumber)
	// defaults filled in for display
	assert.Equal(t, types.DefaultUpdateIntervalSeconds, infos[0].Settings.UpdateIntervalSeconds)
}

func TestSnapshotByUsername(t *testing.T) {
	srv, db := newTestServer(t)
	snap := types.RefreshSnapshot{
		TakenAt: time.Now().UTC().Truncate(time.Second),
		Accounts: map[string]types.AccountSnapshot{
			testAccountNumber: {Balance: types.Value(99.0)},
		},
	}
	require.NoError(t, db.RecordSnapshot(context.Background(), "13800000000", snap))
	handler := srv.setupHandler()

	w := get(t, handler, "/api/snapshot?username=13800000000")
	require.Equal(t, http.StatusOK, w.Code)
	var got types.RefreshSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	bal, ok := got.Accounts[testAccountNumber].Balance.Get()
	require.True(t, ok)
	assert.Equal(t, 99.0, bal)

	w = get(t, handler, "/api/snapshot?username=nobody")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// without a username the in-memory map is returned, empty before any tick
	w = get(t, handler, "/api/snapshot")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "{}", w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv.setupHandler(), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "csgstat_tick_duration_seconds")
}
