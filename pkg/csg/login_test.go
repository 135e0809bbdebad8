package csg

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csgstat/csgstat/pkg/types"
)

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		loginType   types.LoginType
		autoRefresh bool
	}{
		{types.LoginTypePassword, true},
		{types.LoginTypeSMS, false},
		{types.LoginTypePasswordAndSMS, false},
		{types.LoginTypeQRWeChat, false},
		{types.LoginTypeQRAlipay, false},
		{types.LoginTypeQRApp, false},
	}
	for _, tt := range tests {
		strategy, err := StrategyFor(tt.loginType)
		require.NoError(t, err, string(tt.loginType))
		assert.Equal(t, tt.loginType, strategy.Type(), string(tt.loginType))
		assert.Equal(t, tt.autoRefresh, strategy.SupportsAutoRefresh(), string(tt.loginType))
	}

	_, err := StrategyFor(types.LoginType("99"))
	assert.Error(t, err)
}

func TestStrategyCredentialValidation(t *testing.T) {
	ctx := context.Background()
	c := NewClient(time.Second)

	assert.Error(t, PasswordStrategy{}.Login(ctx, c, types.Credentials{Username: "13800000000"}))
	assert.Error(t, SMSStrategy{}.Login(ctx, c, types.Credentials{Username: "13800000000"}))
	assert.Error(t, PasswordAndSMSStrategy{}.Login(ctx, c, types.Credentials{
		Username: "13800000000",
		Password: "hunter2",
	}))
	assert.Error(t, QRStrategy{Channel: QRChannelApp}.Login(ctx, c, types.Credentials{}))
}

func TestQRStrategyLogin(t *testing.T) {
	polls := 0
	stub := newVendorStub()
	stub.handle("center/createLoginQrcode", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, staSuccess, "", "https://example.invalid/qr")
	})
	stub.handle("center/getLoginInfo", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 3 {
			writeEnvelope(w, staSystemError, "pending", nil)
			return
		}
		w.Header().Set(headerAuthToken, "qr-token")
		writeEnvelope(w, staSuccess, "", nil)
	})
	c := newTestClient(t, stub.mux)

	var codeURL string
	strategy := QRStrategy{
		Channel:      QRChannelAlipay,
		OnCode:       func(u string) { codeURL = u },
		PollInterval: time.Millisecond,
	}
	require.NoError(t, strategy.Login(context.Background(), c, types.Credentials{}))
	assert.Equal(t, "https://example.invalid/qr", codeURL)
	assert.Equal(t, 3, polls)
	s := c.Session()
	assert.Equal(t, "qr-token", s.AuthToken)
	assert.Equal(t, types.LoginTypeQRAlipay, s.LoginType)
}

func TestQRStrategyLoginExpired(t *testing.T) {
	stub := newVendorStub()
	stub.handle("center/createLoginQrcode", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, staSuccess, "", "https://example.invalid/qr")
	})
	stub.handle("center/getLoginInfo", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, staQRTimeout, "timeout", nil)
	})
	c := newTestClient(t, stub.mux)

	strategy := QRStrategy{
		Channel:      QRChannelApp,
		OnCode:       func(string) {},
		PollInterval: time.Millisecond,
	}
	err := strategy.Login(context.Background(), c, types.Credentials{})
	assert.ErrorIs(t, err, ErrQRCodeExpired)
}

func TestQRStrategyLoginCanceled(t *testing.T) {
	stub := newVendorStub()
	stub.handle("center/createLoginQrcode", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, staSuccess, "", "https://example.invalid/qr")
	})
	stub.handle("center/getLoginInfo", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, staSystemError, "pending", nil)
	})
	c := newTestClient(t, stub.mux)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	strategy := QRStrategy{
		Channel:      QRChannelWeChat,
		OnCode:       func(string) {},
		PollInterval: time.Millisecond,
	}
	err := strategy.Login(ctx, c, types.Credentials{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
