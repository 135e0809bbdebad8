package types

import (
	"encoding/json"
	"fmt"
)

// LoginType identifies how the vendor session was (or will be) established.
// The password and sms values match the vendor's credType codes; the combined
// password+sms flow posts credType "10" on the wire but is tracked separately
// because its re-authentication requirements differ.
type LoginType string

const (
	LoginTypePassword       LoginType = "10"
	LoginTypeSMS            LoginType = "11"
	LoginTypePasswordAndSMS LoginType = "12"
	LoginTypeQRWeChat       LoginType = "20"
	LoginTypeQRAlipay       LoginType = "21"
	LoginTypeQRApp          LoginType = "30"
)

// Valid reports whether lt is a known login type.
func (lt LoginType) Valid() bool {
	switch lt {
	case LoginTypePassword, LoginTypeSMS, LoginTypePasswordAndSMS,
		LoginTypeQRWeChat, LoginTypeQRAlipay, LoginTypeQRApp:
		return true
	}
	return false
}

// Session is the authenticated state against the vendor API. It is persisted
// opaquely and restored without validation; validity is only determined by
// calling the whoami endpoint.
type Session struct {
	AuthToken string    `json:"auth_token"`
	LoginType LoginType `json:"login_type"`
	// CustomerNumber is assigned by the vendor and resolved after login via
	// the user-info endpoint. It rides along in request headers.
	CustomerNumber string `json:"customer_number,omitempty"`
}

// DumpSession serializes a session for the persisted config store.
func DumpSession(s Session) ([]byte, error) {
	return json.Marshal(s)
}

// LoadSession restores a session previously produced by DumpSession. The
// session's validity is not checked.
func LoadSession(data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.AuthToken == "" {
		return Session{}, fmt.Errorf("session missing auth_token")
	}
	if !s.LoginType.Valid() {
		return Session{}, fmt.Errorf("session has unknown login_type %q", s.LoginType)
	}
	return s, nil
}

// ElectricityAccount identifies one metered electricity account under a
// vendor login. AccountNumber (the 16-digit billing number) is the only field
// stable across sessions; EleCustomerID can change on every login and is
// re-resolved by listing all bound accounts.
type ElectricityAccount struct {
	AccountNumber   string `json:"account_number" yaml:"account_number"`
	AreaCode        string `json:"area_code" yaml:"area_code"`
	EleCustomerID   string `json:"ele_customer_id" yaml:"ele_customer_id"`
	MeteringPointID string `json:"metering_point_id" yaml:"metering_point_id"`

	// display only
	Address  string `json:"address" yaml:"address"`
	UserName string `json:"user_name" yaml:"user_name"`
}

// Validate checks the fields required to address the account via the API.
func (a ElectricityAccount) Validate() error {
	if a.AccountNumber == "" {
		return fmt.Errorf("account missing account_number")
	}
	if a.AreaCode == "" {
		return fmt.Errorf("account %s missing area_code", a.AccountNumber)
	}
	if a.EleCustomerID == "" {
		return fmt.Errorf("account %s missing ele_customer_id", a.AccountNumber)
	}
	if a.MeteringPointID == "" {
		return fmt.Errorf("account %s missing metering_point_id", a.AccountNumber)
	}
	return nil
}

// Credentials are what a login strategy needs to (re-)establish a session.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	// Code is an interactive SMS verification code. Only present when a user
	// is driving the login; unattended refresh cannot supply one.
	Code string `json:"code,omitempty"`
}
