package csg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/csgstat/csgstat/pkg/types"
)

// Raw API calls. Each maps to one vendor endpoint and decodes into a typed
// result; the exported wrappers in wrappers.go compose them.

func (c *Client) apiSendLoginSMS(ctx context.Context, phoneNo string) error {
	payload := map[string]any{
		"areaCode":    AreaCodeFallback,
		"phoneNumber": phoneNo,
		"vcType":      verificationCodeTypeLogin,
		"msgType":     sendMsgTypeVerificationCode,
	}
	_, _, err := c.doRequest(ctx, "center/sendMsg", payload, requestOptions{})
	return err
}

func (c *Client) apiLoginWithSMSCode(ctx context.Context, phoneNo, code string) (string, error) {
	payload := map[string]any{
		"areaCode":  AreaCodeFallback,
		"acctId":    phoneNo,
		"logonChan": logonChannelHandheldHall,
		"credType":  string(types.LoginTypeSMS),
		"code":      code,
	}
	header, _, err := c.doRequest(ctx, "center/login", payload, requestOptions{needCrypto: true})
	if err != nil {
		return "", err
	}
	return header.Get(headerAuthToken), nil
}

func (c *Client) apiLoginWithPassword(ctx context.Context, phoneNo, password, code string) (string, error) {
	credentials, err := EncryptCredential(password)
	if err != nil {
		return "", err
	}
	inner := map[string]any{
		"areaCode":    AreaCodeFallback,
		"acctId":      phoneNo,
		"logonChan":   logonChannelHandheldHall,
		"credType":    string(types.LoginTypePassword),
		"credentials": credentials,
		"code":        code,
		"checkPwd":    true,
	}
	wrapped, err := EncryptParams(inner)
	if err != nil {
		return "", err
	}
	payload := map[string]any{"param": wrapped}
	header, _, err := c.doRequest(ctx, "center/loginByPwdAndMsg", payload, requestOptions{needCrypto: true})
	if err != nil {
		return "", err
	}
	return header.Get(headerAuthToken), nil
}

func (c *Client) apiCreateLoginQRCode(ctx context.Context, channel QRChannel, loginID string) (string, error) {
	payload := map[string]any{
		"areaCode": AreaCodeFallback,
		"channel":  string(channel),
		// not a typo here, the vendor's own javascript misspells the key
		"lgoinId": loginID,
	}
	_, data, err := c.doRequest(ctx, "center/createLoginQrcode", payload, requestOptions{})
	if err != nil {
		return "", err
	}
	var codeURL string
	if err := json.Unmarshal(data, &codeURL); err != nil {
		return "", fmt.Errorf("failed to decode qr code url: %w", err)
	}
	return codeURL, nil
}

// apiGetQRLoginResult returns the session token once the QR code has been
// scanned and confirmed. Before that it returns done=false; after the code
// times out it returns ErrQRCodeExpired.
func (c *Client) apiGetQRLoginResult(ctx context.Context, loginID string) (string, bool, error) {
	payload := map[string]any{
		"areaCode": AreaCodeFallback,
		"loginId":  loginID,
	}
	header, _, err := c.doRequest(ctx, "center/getLoginInfo", payload, requestOptions{})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Sta != staQRTimeout {
			// any other non-success status means not scanned yet
			return "", false, nil
		}
		return "", false, err
	}
	return header.Get(headerAuthToken), true, nil
}

func (c *Client) apiQueryAuthenticationResult(ctx context.Context) (json.RawMessage, error) {
	_, data, err := c.doRequest(ctx, "user/queryAuthenticationResult", nil, requestOptions{withAuth: true})
	return data, err
}

type userInfoResult struct {
	CustNumber string `json:"custNumber"`
}

func (c *Client) apiGetUserInfo(ctx context.Context) (userInfoResult, error) {
	_, data, err := c.doRequest(ctx, "user/getUserInfo", nil, requestOptions{withAuth: true})
	if err != nil {
		return userInfoResult{}, err
	}
	var res userInfoResult
	if err := json.Unmarshal(data, &res); err != nil {
		return userInfoResult{}, fmt.Errorf("failed to decode user info: %w", err)
	}
	return res, nil
}

type linkedEleUser struct {
	EleCustNumber string `json:"eleCustNumber"`
	AreaCode      string `json:"areaCode"`
	// bindingId doubles as the account's eleCustomerId and can change on
	// every login
	BindingID  string `json:"bindingId"`
	EleAddress string `json:"eleAddress"`
	UserName   string `json:"userName"`
}

func (c *Client) apiGetAllLinkedElectricityAccounts(ctx context.Context) ([]linkedEleUser, error) {
	_, data, err := c.doRequest(ctx, "eleCustNumber/queryBindEleUsers", map[string]any{}, requestOptions{withAuth: true})
	if err != nil {
		return nil, err
	}
	var res []linkedEleUser
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode linked accounts: %w", err)
	}
	return res, nil
}

type meteringPoint struct {
	MeteringPointID string `json:"meteringPointId"`
}

func (c *Client) apiGetMeteringPoint(ctx context.Context, areaCode, eleCustomerID string) ([]meteringPoint, error) {
	payload := map[string]any{
		"areaCode": areaCode,
		"eleCustNumberList": []map[string]any{
			{"eleCustId": eleCustomerID, "areaCode": areaCode},
		},
	}
	_, data, err := c.doRequest(ctx, "charge/queryMeteringPoint", payload, requestOptions{withAuth: true, funID: funIDCharge})
	if err != nil {
		return nil, err
	}
	var res []meteringPoint
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode metering points: %w", err)
	}
	return res, nil
}

type dayPower struct {
	Date  string   `json:"date"`
	Power apiFloat `json:"power"`
}

type dayElectricResult struct {
	TotalPower apiFloat   `json:"totalPower"`
	Result     []dayPower `json:"result"`
}

func (c *Client) apiQueryDayElectricByMPoint(ctx context.Context, year, month int, areaCode, eleCustomerID, meteringPointID string) (dayElectricResult, error) {
	payload := map[string]any{
		"areaCode":        areaCode,
		"eleCustId":       eleCustomerID,
		"yearMonth":       fmt.Sprintf("%d%02d", year, month),
		"meteringPointId": meteringPointID,
	}
	_, data, err := c.doRequest(ctx, "charge/queryDayElectricByMPoint", payload, requestOptions{withAuth: true, funID: funIDCharge})
	if err != nil {
		return dayElectricResult{}, err
	}
	var res dayElectricResult
	if err := json.Unmarshal(data, &res); err != nil {
		return dayElectricResult{}, fmt.Errorf("failed to decode daily usage: %w", err)
	}
	return res, nil
}

type dayCharge struct {
	Date   string   `json:"date"`
	Charge apiFloat `json:"charge"`
	Power  apiFloat `json:"power"`
}

type dayChargeResult struct {
	// totals and ladder fields lag behind the by-day data and can be null
	// until the billing period settles
	TotalElectricity   *apiFloat   `json:"totalElectricity"`
	TotalPower         *apiFloat   `json:"totalPower"`
	LadderEle          *apiFloat   `json:"ladderEle"`
	LadderEleStartDate *string     `json:"ladderEleStartDate"`
	LadderEleSurplus   *apiFloat   `json:"ladderEleSurplus"`
	LadderEleTariff    *apiFloat   `json:"ladderEleTariff"`
	Result             []dayCharge `json:"result"`
}

// apiQueryDayElectricChargeByMPoint returns daily cost for the given month.
// The ladder fields are always the current month's regardless of the queried
// month, and the call can take ~30s to return. Both are upstream behavior.
func (c *Client) apiQueryDayElectricChargeByMPoint(ctx context.Context, year, month int, areaCode, eleCustomerID, meteringPointID string) (dayChargeResult, error) {
	payload := map[string]any{
		"areaCode":        areaCode,
		"eleCustId":       eleCustomerID,
		"yearMonth":       fmt.Sprintf("%d%02d", year, month),
		"meteringPointId": meteringPointID,
	}
	_, data, err := c.doRequest(ctx, "charge/queryDayElectricChargeByMPoint", payload, requestOptions{withAuth: true, funID: funIDCharge})
	if err != nil {
		return dayChargeResult{}, err
	}
	var res dayChargeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return dayChargeResult{}, fmt.Errorf("failed to decode daily cost: %w", err)
	}
	return res, nil
}

type accountSurplus struct {
	Balance apiFloat `json:"balance"`
	Arrears apiFloat `json:"arrears"`
}

func (c *Client) apiQueryAccountSurplus(ctx context.Context, areaCode, eleCustomerID string) ([]accountSurplus, error) {
	payload := map[string]any{
		"areaCode":  areaCode,
		"eleCustId": eleCustomerID,
	}
	_, data, err := c.doRequest(ctx, "charge/queryUserAccountNumberSurplus", payload, requestOptions{withAuth: true})
	if err != nil {
		return nil, err
	}
	var res []accountSurplus
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode account surplus: %w", err)
	}
	return res, nil
}

type monthFee struct {
	YearMonth          string   `json:"yearMonth"`
	ActualTotalAmount  apiFloat `json:"actualTotalAmount"`
	BillingElectricity apiFloat `json:"billingElectricity"`
}

type feeAnalyzeResult struct {
	TotalBillingElectricity apiFloat   `json:"totalBillingElectricity"`
	TotalActualAmount       apiFloat   `json:"totalActualAmount"`
	ElectricAndChargeList   []monthFee `json:"electricAndChargeList"`
}

func (c *Client) apiGetFeeAnalyzeDetails(ctx context.Context, year int, areaCode, eleCustomerID string) (feeAnalyzeResult, error) {
	payload := map[string]any{
		"areaCode":            areaCode,
		"electricityBillYear": year,
		"eleCustId":           eleCustomerID,
		// the app sends an explicit null
		"meteringPointId": nil,
	}
	_, data, err := c.doRequest(ctx, "charge/getAnalyzeFeeDetails", payload, requestOptions{withAuth: true})
	if err != nil {
		return feeAnalyzeResult{}, err
	}
	var res feeAnalyzeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return feeAnalyzeResult{}, fmt.Errorf("failed to decode fee analysis: %w", err)
	}
	return res, nil
}

type yesterdayResult struct {
	Power apiFloat `json:"power"`
}

func (c *Client) apiQueryDayElectricYesterday(ctx context.Context, areaCode, eleCustomerID string) (yesterdayResult, error) {
	payload := map[string]any{
		"eleCustId": eleCustomerID,
		"areaCode":  areaCode,
	}
	_, data, err := c.doRequest(ctx, "charge/queryDayElectricByMPointYesterday", payload, requestOptions{withAuth: true})
	if err != nil {
		return yesterdayResult{}, err
	}
	var res yesterdayResult
	if err := json.Unmarshal(data, &res); err != nil {
		return yesterdayResult{}, fmt.Errorf("failed to decode yesterday usage: %w", err)
	}
	return res, nil
}

func (c *Client) apiLogout(ctx context.Context, logonChan, credType string) error {
	payload := map[string]any{
		"logonChan": logonChan,
		"credType":  credType,
	}
	_, _, err := c.doRequest(ctx, "center/logout", payload, requestOptions{withAuth: true})
	return err
}
