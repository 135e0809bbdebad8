package csg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csgstat/csgstat/pkg/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(5 * time.Second)
	c.baseURL = srv.URL + "/"
	return c
}

func writeEnvelope(w http.ResponseWriter, sta, message string, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"sta":     sta,
		"message": message,
		"data":    data,
	})
}

func TestDoRequestStatusDispatch(t *testing.T) {
	var sta string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, sta, "boom", nil)
	}))

	sta = staNoLogin
	_, _, err := c.doRequest(context.Background(), "user/getUserInfo", nil, requestOptions{withAuth: true})
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	sta = staWrongCredential
	_, _, err = c.doRequest(context.Background(), "center/loginByPwdAndMsg", nil, requestOptions{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sta = staQRTimeout
	_, _, err = c.doRequest(context.Background(), "center/getLoginInfo", nil, requestOptions{})
	assert.ErrorIs(t, err, ErrQRCodeExpired)

	sta = staSystemError
	_, _, err = c.doRequest(context.Background(), "charge/queryCharges", nil, requestOptions{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, staSystemError, apiErr.Sta)
	assert.Equal(t, "boom", apiErr.Message)
	assert.NotErrorIs(t, err, ErrNotLoggedIn)
}

func TestDoRequestHTTPError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, _, err := c.doRequest(context.Background(), "user/getUserInfo", nil, requestOptions{})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestDoRequestHeaders(t *testing.T) {
	var got http.Header
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeEnvelope(w, staSuccess, "", nil)
	}))
	c.Restore(types.Session{
		AuthToken:      "tok",
		LoginType:      types.LoginTypePassword,
		CustomerNumber: "987",
	})

	_, _, err := c.doRequest(context.Background(), "charge/queryMeteringPoint", map[string]any{}, requestOptions{
		withAuth:   true,
		needCrypto: true,
		funID:      funIDCharge,
	})
	require.NoError(t, err)

	assert.Equal(t, "tok", got.Get(headerAuthToken))
	assert.Equal(t, "987", got.Get(headerCustNumber))
	assert.Equal(t, "true", got.Get("need-crypto"))
	assert.Equal(t, funIDCharge, got.Get("funid"))
	assert.Equal(t, "application/json;charset=utf-8", got.Get("Content-Type"))
	assert.Equal(t, appUserAgent, got.Get("User-Agent"))
}

func TestDoRequestTrimsStrayBytes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\xef\xbb\xbf{\"sta\":\"00\",\"data\":{\"custNumber\":\"42\"}}\r\n"))
	}))
	res, err := c.apiGetUserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", res.CustNumber)
}

func TestAPIFloatDecodesStringsAndNumbers(t *testing.T) {
	var v struct {
		A apiFloat  `json:"a"`
		B apiFloat  `json:"b"`
		C *apiFloat `json:"c"`
		D *apiFloat `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.5","b":3,"c":null,"d":"0.8"}`), &v))
	assert.Equal(t, 12.5, v.A.float())
	assert.Equal(t, 3.0, v.B.float())
	assert.Nil(t, v.C)
	require.NotNil(t, v.D)
	assert.Equal(t, 0.8, v.D.float())
}

func TestSessionRestoreDump(t *testing.T) {
	c := NewClient(0)
	s := types.Session{AuthToken: "t", LoginType: types.LoginTypeQRWeChat, CustomerNumber: "9"}
	c.Restore(s)
	assert.Equal(t, s, c.Session())
}
