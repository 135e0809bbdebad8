package csg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/csgstat/csgstat/pkg/common"
	"github.com/csgstat/csgstat/pkg/log"
	"github.com/csgstat/csgstat/pkg/types"
)

// iOS app user agent, sent on every request
const appUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) " +
	"AppleWebKit/605.1.15 (KHTML, like Gecko)"

// Client talks to the 95598 consumer API. It is safe for concurrent use.
//
// A fresh client is unauthenticated: call Authenticate (or one of the other
// login flows) and then Initialize before using the account-level calls. A
// previously persisted session can be restored with Restore, in which case
// only Initialize is needed; the session's validity is not checked until the
// first call.
type Client struct {
	client  *http.Client
	baseURL string

	mu             sync.Mutex
	authToken      string
	loginType      types.LoginType
	customerNumber string
}

// NewClient returns an unauthenticated client. timeout bounds each request;
// zero means the default. The daily-cost endpoint routinely takes close to 30
// seconds, so timeouts below that will make it flaky.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = types.DefaultFacetTimeoutSeconds * time.Second
	}
	return &Client{
		client:    common.HTTPClient(timeout),
		baseURL:   baseURLApp,
		loginType: types.LoginTypePassword,
	}
}

// Restore loads a previously dumped session into the client. Validity is not
// checked; call VerifyLogin for that.
func (c *Client) Restore(s types.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = s.AuthToken
	if s.LoginType.Valid() {
		c.loginType = s.LoginType
	}
	c.customerNumber = s.CustomerNumber
}

// Session returns the client's current session for persisting.
func (c *Client) Session() types.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.Session{
		AuthToken:      c.authToken,
		LoginType:      c.loginType,
		CustomerNumber: c.customerNumber,
	}
}

func (c *Client) setAuth(token string, loginType types.LoginType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
	c.loginType = loginType
}

func (c *Client) auth() (token, custNumber string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authToken, c.customerNumber
}

type requestOptions struct {
	// withAuth attaches the session token and customer number headers
	withAuth bool
	// needCrypto marks requests whose payload rides the encrypted path
	needCrypto bool
	funID      string
}

type apiResponse struct {
	Sta     string          `json:"sta"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// doRequest POSTs payload to path and decodes the response envelope. It
// returns the response headers because login calls deliver the session token
// in a header rather than the body. A non-success envelope status comes back
// as an *APIError.
func (c *Client) doRequest(ctx context.Context, path string, payload any, opts requestOptions) (http.Header, json.RawMessage, error) {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, nil, err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader([]byte("null"))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u, body)
	if err != nil {
		return nil, nil, err
	}

	// fixed header set from the iOS app; Host rides on the URL
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	req.Header.Set("Origin", "file://")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,cn;q=0.9")
	req.Header.Set("User-Agent", appUserAgent)
	if opts.needCrypto {
		req.Header.Set("need-crypto", "true")
	}
	if opts.funID != "" {
		req.Header.Set("funid", opts.funID)
	}
	if opts.withAuth {
		token, custNumber := c.auth()
		req.Header.Set(headerAuthToken, token)
		req.Header.Set(headerCustNumber, custNumber)
	}

	log.Ctx(ctx).DebugContext(ctx, "csg api request", slog.String("path", path))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).ErrorContext(ctx, "csg api unexpected status",
			slog.String("path", path), slog.Int("status", resp.StatusCode))
		return nil, nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	var envelope apiResponse
	if err := json.Unmarshal(trimToJSONObject(raw), &envelope); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode csg response",
			slog.String("path", path), slog.Any("error", err))
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if envelope.Sta != staSuccess {
		log.Ctx(ctx).DebugContext(ctx, "csg api unsuccessful response",
			slog.String("path", path), slog.String("sta", envelope.Sta),
			slog.String("message", envelope.Message))
		return resp.Header, envelope.Data, newAPIError(envelope.Sta, envelope.Message)
	}

	return resp.Header, envelope.Data, nil
}

// trimToJSONObject cuts a body down to its outermost braces. The API
// sometimes wraps the JSON in stray bytes.
func trimToJSONObject(b []byte) []byte {
	start := bytes.IndexByte(b, '{')
	end := bytes.LastIndexByte(b, '}')
	if start < 0 || end < start {
		return b
	}
	return b[start : end+1]
}

// apiFloat decodes numbers the API returns either as JSON numbers or as
// quoted strings.
type apiFloat float64

func (f *apiFloat) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "null" || s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("failed to parse number %q: %w", string(data), err)
	}
	*f = apiFloat(v)
	return nil
}

func (f *apiFloat) float() float64 {
	return float64(*f)
}

// floatPtr converts an optional apiFloat into a *float64.
func floatPtr(f *apiFloat) *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}
