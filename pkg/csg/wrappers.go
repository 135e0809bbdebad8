package csg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/csgstat/csgstat/pkg/log"
	"github.com/csgstat/csgstat/pkg/types"
)

// ladderStartDateLayout is how queryDayElectricChargeByMPoint formats
// ladderEleStartDate, e.g. "2023-05-01 00:00:00.0".
const ladderStartDateLayout = "2006-01-02 15:04:05.0"

// SendLoginSMS sends a login verification code to the given phone number.
func (c *Client) SendLoginSMS(ctx context.Context, phoneNo string) error {
	return c.apiSendLoginSMS(ctx, phoneNo)
}

// Authenticate logs in with username and password (plus an SMS code when the
// account has two-factor login enabled; pass "" otherwise) and stores the
// session in the client.
func (c *Client) Authenticate(ctx context.Context, username, password, code string) error {
	token, err := c.apiLoginWithPassword(ctx, username, password, code)
	if err != nil {
		return err
	}
	c.setAuth(token, types.LoginTypePassword)
	log.Ctx(ctx).DebugContext(ctx, "csg login success", slog.String("username", username))
	return nil
}

// AuthenticateWithSMSCode logs in with a phone number and the SMS code
// previously requested via SendLoginSMS.
func (c *Client) AuthenticateWithSMSCode(ctx context.Context, phoneNo, code string) error {
	token, err := c.apiLoginWithSMSCode(ctx, phoneNo, code)
	if err != nil {
		return err
	}
	c.setAuth(token, types.LoginTypeSMS)
	return nil
}

// CreateLoginQRCode starts a QR login and returns the generated login id and
// the URL to render as a QR code. Poll GetQRLoginResult with the id until it
// reports done or ErrQRCodeExpired.
func (c *Client) CreateLoginQRCode(ctx context.Context, channel QRChannel) (loginID, codeURL string, err error) {
	if !channel.Valid() {
		return "", "", fmt.Errorf("invalid qr channel %q", channel)
	}
	loginID = GenerateQRLoginID()
	codeURL, err = c.apiCreateLoginQRCode(ctx, channel, loginID)
	if err != nil {
		return "", "", err
	}
	return loginID, codeURL, nil
}

// GetQRLoginResult polls a pending QR login once. When the code has been
// scanned and confirmed it stores the session and returns true.
func (c *Client) GetQRLoginResult(ctx context.Context, channel QRChannel, loginID string) (bool, error) {
	token, done, err := c.apiGetQRLoginResult(ctx, loginID)
	if err != nil || !done {
		return false, err
	}
	lt := types.LoginTypeQRApp
	switch channel {
	case QRChannelWeChat:
		lt = types.LoginTypeQRWeChat
	case QRChannelAlipay:
		lt = types.LoginTypeQRAlipay
	}
	c.setAuth(token, lt)
	return true, nil
}

// Initialize resolves the customer number tied to the session. It must be
// called after login or Restore, before any account-level call.
func (c *Client) Initialize(ctx context.Context) error {
	res, err := c.apiGetUserInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}
	c.mu.Lock()
	c.customerNumber = res.CustNumber
	c.mu.Unlock()
	return nil
}

// VerifyLogin reports whether the session is still valid. Only a definitive
// not-logged-in answer from the API yields false; other failures are returned
// as errors so a transient outage is not mistaken for an expired session.
func (c *Client) VerifyLogin(ctx context.Context) (bool, error) {
	_, err := c.apiQueryAuthenticationResult(ctx)
	if errors.Is(err, ErrNotLoggedIn) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// WhoAmI returns the raw authentication result, mostly useful for debugging.
func (c *Client) WhoAmI(ctx context.Context) (map[string]any, error) {
	data, err := c.apiQueryAuthenticationResult(ctx)
	if err != nil {
		return nil, err
	}
	var res map[string]any
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode authentication result: %w", err)
	}
	return res, nil
}

// Logout invalidates the session server-side and resets the client.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	credType := string(c.loginType)
	c.mu.Unlock()
	if err := c.apiLogout(ctx, logonChannelHandheldHall, credType); err != nil {
		return err
	}
	c.mu.Lock()
	c.authToken = ""
	c.loginType = types.LoginTypePassword
	c.customerNumber = ""
	c.mu.Unlock()
	return nil
}

// GetAllLinkedAccounts lists every electricity account bound to the login,
// resolving each one's metering point. Individual accounts only ever have
// one metering point.
func (c *Client) GetAllLinkedAccounts(ctx context.Context) ([]types.ElectricityAccount, error) {
	users, err := c.apiGetAllLinkedElectricityAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "listed linked electricity accounts", slog.Int("count", len(users)))

	accounts := make([]types.ElectricityAccount, 0, len(users))
	for _, u := range users {
		points, err := c.apiGetMeteringPoint(ctx, u.AreaCode, u.BindingID)
		if err != nil {
			return nil, fmt.Errorf("failed to get metering point for %s: %w", u.EleCustNumber, err)
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("account %s has no metering points", u.EleCustNumber)
		}
		accounts = append(accounts, types.ElectricityAccount{
			AccountNumber:   u.EleCustNumber,
			AreaCode:        u.AreaCode,
			EleCustomerID:   u.BindingID,
			MeteringPointID: points[0].MeteringPointID,
			Address:         u.EleAddress,
			UserName:        u.UserName,
		})
	}
	return accounts, nil
}

// GetBalanceAndArrears returns the account's prepaid balance and outstanding
// arrears in CNY.
func (c *Client) GetBalanceAndArrears(ctx context.Context, account types.ElectricityAccount) (balance, arrears float64, err error) {
	res, err := c.apiQueryAccountSurplus(ctx, account.AreaCode, account.EleCustomerID)
	if err != nil {
		return 0, 0, err
	}
	if len(res) == 0 {
		return 0, 0, fmt.Errorf("account %s has no surplus data", account.AccountNumber)
	}
	return res[0].Balance.float(), res[0].Arrears.float(), nil
}

// GetYearMonthStats returns the year's total cost, total usage and per-month
// breakdown.
func (c *Client) GetYearMonthStats(ctx context.Context, account types.ElectricityAccount, year int) (totalCost, totalKWH float64, byMonth []types.MonthValue, err error) {
	res, err := c.apiGetFeeAnalyzeDetails(ctx, year, account.AreaCode, account.EleCustomerID)
	if err != nil {
		return 0, 0, nil, err
	}
	byMonth = make([]types.MonthValue, 0, len(res.ElectricAndChargeList))
	for _, m := range res.ElectricAndChargeList {
		byMonth = append(byMonth, types.MonthValue{
			YearMonth: m.YearMonth,
			KWH:       m.BillingElectricity.float(),
			Cost:      m.ActualTotalAmount.float(),
		})
	}
	return res.TotalActualAmount.float(), res.TotalBillingElectricity.float(), byMonth, nil
}

// GetMonthDailyUsageDetail returns the month's total usage and per-day
// breakdown. Cost is not included; see GetMonthDailyCostDetail.
func (c *Client) GetMonthDailyUsageDetail(ctx context.Context, account types.ElectricityAccount, year, month int) (totalKWH float64, byDay []types.DayValue, err error) {
	res, err := c.apiQueryDayElectricByMPoint(ctx, year, month, account.AreaCode, account.EleCustomerID, account.MeteringPointID)
	if err != nil {
		return 0, nil, err
	}
	byDay = make([]types.DayValue, 0, len(res.Result))
	for _, d := range res.Result {
		byDay = append(byDay, types.DayValue{Date: d.Date, KWH: d.Power.float()})
	}
	return res.TotalPower.float(), byDay, nil
}

// MonthCostDetail is the result of GetMonthDailyCostDetail. TotalCost and
// TotalKWH are nil when the billing period has not settled even though the
// by-day data is present.
type MonthCostDetail struct {
	TotalCost *float64
	TotalKWH  *float64
	Ladder    types.Ladder
	ByDay     []types.DayValue
}

// GetMonthDailyCostDetail returns the month's cost breakdown plus the
// tiered-pricing state. The ladder is always the current month's no matter
// which month is queried, and the endpoint is slow (~30s).
func (c *Client) GetMonthDailyCostDetail(ctx context.Context, account types.ElectricityAccount, year, month int) (MonthCostDetail, error) {
	res, err := c.apiQueryDayElectricChargeByMPoint(ctx, year, month, account.AreaCode, account.EleCustomerID, account.MeteringPointID)
	if err != nil {
		return MonthCostDetail{}, err
	}

	detail := MonthCostDetail{
		TotalCost: floatPtr(res.TotalElectricity),
		TotalKWH:  floatPtr(res.TotalPower),
		ByDay:     make([]types.DayValue, 0, len(res.Result)),
	}
	for _, d := range res.Result {
		cost := d.Charge.float()
		detail.ByDay = append(detail.ByDay, types.DayValue{
			Date: d.Date,
			KWH:  d.Power.float(),
			Cost: &cost,
		})
	}

	if res.LadderEle != nil {
		stage := int(*res.LadderEle)
		detail.Ladder.Stage = &stage
	}
	if res.LadderEleStartDate != nil {
		start, err := time.Parse(ladderStartDateLayout, *res.LadderEleStartDate)
		if err != nil {
			return MonthCostDetail{}, fmt.Errorf("failed to parse ladder start date %q: %w", *res.LadderEleStartDate, err)
		}
		detail.Ladder.StartDate = &start
	}
	detail.Ladder.RemainingKWH = floatPtr(res.LadderEleSurplus)
	detail.Ladder.Tariff = floatPtr(res.LadderEleTariff)

	return detail, nil
}

// GetYesterdayKWH returns yesterday's usage.
func (c *Client) GetYesterdayKWH(ctx context.Context, account types.ElectricityAccount) (float64, error) {
	res, err := c.apiQueryDayElectricYesterday(ctx, account.AreaCode, account.EleCustomerID)
	if err != nil {
		return 0, err
	}
	return res.Power.float(), nil
}
