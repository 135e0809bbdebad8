package csg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/csgstat/csgstat/pkg/types"
)

// LoginStrategy abstracts the ways a session can be established. Strategies
// that need user interaction (SMS codes, QR scans) cannot re-login
// unattended; SupportsAutoRefresh tells the refresh loop whether it can
// recover from an expired session on its own or has to surface a
// re-authentication request.
type LoginStrategy interface {
	Login(ctx context.Context, client *Client, creds types.Credentials) error
	SupportsAutoRefresh() bool
	Type() types.LoginType
}

// StrategyFor returns the strategy matching a stored login type.
func StrategyFor(lt types.LoginType) (LoginStrategy, error) {
	switch lt {
	case types.LoginTypePassword:
		return PasswordStrategy{}, nil
	case types.LoginTypeSMS:
		return SMSStrategy{}, nil
	case types.LoginTypePasswordAndSMS:
		return PasswordAndSMSStrategy{}, nil
	case types.LoginTypeQRWeChat:
		return QRStrategy{Channel: QRChannelWeChat}, nil
	case types.LoginTypeQRAlipay:
		return QRStrategy{Channel: QRChannelAlipay}, nil
	case types.LoginTypeQRApp:
		return QRStrategy{Channel: QRChannelApp}, nil
	}
	return nil, fmt.Errorf("unknown login type %q", lt)
}

// PasswordStrategy logs in with username and password only. The only
// strategy that can re-login unattended.
type PasswordStrategy struct{}

func (PasswordStrategy) Login(ctx context.Context, client *Client, creds types.Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return errors.New("missing username or password")
	}
	return client.Authenticate(ctx, creds.Username, creds.Password, "")
}

func (PasswordStrategy) SupportsAutoRefresh() bool { return true }
func (PasswordStrategy) Type() types.LoginType     { return types.LoginTypePassword }

// SMSStrategy logs in with a phone number and a verification code the user
// received after SendLoginSMS.
type SMSStrategy struct{}

func (SMSStrategy) Login(ctx context.Context, client *Client, creds types.Credentials) error {
	if creds.Username == "" || creds.Code == "" {
		return errors.New("missing phone number or sms code")
	}
	return client.AuthenticateWithSMSCode(ctx, creds.Username, creds.Code)
}

func (SMSStrategy) SupportsAutoRefresh() bool { return false }
func (SMSStrategy) Type() types.LoginType     { return types.LoginTypeSMS }

// PasswordAndSMSStrategy logs in with password plus a verification code, for
// accounts with two-factor login enabled.
type PasswordAndSMSStrategy struct{}

func (PasswordAndSMSStrategy) Login(ctx context.Context, client *Client, creds types.Credentials) error {
	if creds.Username == "" || creds.Password == "" || creds.Code == "" {
		return errors.New("missing username, password or sms code")
	}
	if err := client.Authenticate(ctx, creds.Username, creds.Password, creds.Code); err != nil {
		return err
	}
	// track separately from plain password so the refresh loop knows it
	// cannot re-login without the user
	client.setAuth(client.Session().AuthToken, types.LoginTypePasswordAndSMS)
	return nil
}

func (PasswordAndSMSStrategy) SupportsAutoRefresh() bool { return false }
func (PasswordAndSMSStrategy) Type() types.LoginType     { return types.LoginTypePasswordAndSMS }

// QRStrategy logs in by having the user scan a QR code with the selected
// app. Login blocks, polling until the scan is confirmed, the code expires
// or ctx is done. OnCode receives the URL to render as a QR code.
type QRStrategy struct {
	Channel QRChannel
	// OnCode is called once with the QR code content. Required.
	OnCode func(codeURL string)
	// PollInterval defaults to 2s.
	PollInterval time.Duration
}

func (s QRStrategy) Login(ctx context.Context, client *Client, _ types.Credentials) error {
	if s.OnCode == nil {
		return errors.New("qr login requires an OnCode callback")
	}
	loginID, codeURL, err := client.CreateLoginQRCode(ctx, s.Channel)
	if err != nil {
		return err
	}
	s.OnCode(codeURL)

	interval := s.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := client.GetQRLoginResult(ctx, s.Channel, loginID)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

func (s QRStrategy) SupportsAutoRefresh() bool { return false }

func (s QRStrategy) Type() types.LoginType {
	switch s.Channel {
	case QRChannelWeChat:
		return types.LoginTypeQRWeChat
	case QRChannelAlipay:
		return types.LoginTypeQRAlipay
	}
	return types.LoginTypeQRApp
}
