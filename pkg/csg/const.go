package csg

// Endpoints and constants of the 95598 app-facing API. The values come from
// the vendor's published web-app javascript bundles; the app interface is
// virtually identical to the web one.
const (
	baseURLApp = "https://95598.csg.cn/ucs/ma/zt/"

	// AES key/IV used to wrap sensitive request payloads
	paramKey = "cOdHFNHUNkZrjNaN"
	paramIV  = "oMChoRLZnTivcQyR"

	// RSA public key (base64 DER) used to encrypt passwords on the wire
	credentialPubKey = "MIGfMA0GCSqGSIb3DQEBAQUAA4GNADCBiQKBgQD1RJE6GBKJlFQvTU6g0ws9R" +
		"+qXFccKl4i1Rf4KVR8Rh3XtlBtvBxEyTxnVT294RVvYz6THzHGQwREnlgdkjZyGBf7tmV2CgwaHF+ttvupuzOmRVQ" +
		"/difIJtXKM+SM0aCOqBk0fFaLiHrZlZS4qI2/rBQN8VBoVKfGinVMM+USswwIDAQAB"

	logonChannelOnlineHall   = "3" // web
	logonChannelHandheldHall = "4" // app

	staSuccess         = "00"
	staEmptyParameter  = "01"
	staSystemError     = "02"
	staNoLogin         = "04"
	staQRTimeout       = "00010001"
	staWrongCredential = "00010002" // from packet capture

	headerAuthToken  = "x-auth-token"
	headerCustNumber = "custNumber"

	sendMsgTypeVerificationCode = "1"
	verificationCodeTypeLogin   = "1"

	// several charge endpoints require this header or return empty data
	funIDCharge = "100t002"
)

// AreaCodeFallback works for login and most account-level calls regardless of
// the account's real region.
const AreaCodeFallback = "030000"

// AreaCodes maps region short names to the vendor's area codes.
var AreaCodes = map[string]string{
	"gz":   "080000", // Guangzhou
	"sz":   "090000", // Shenzhen
	"gd":   "030000", // rest of Guangdong
	"gx":   "040000", // Guangxi
	"yn":   "050000", // Yunnan
	"guiz": "060000", // Guizhou
	"hn":   "070000", // Hainan
}

// QRChannel selects which app scans the login QR code.
type QRChannel string

const (
	QRChannelApp    QRChannel = "app"
	QRChannelWeChat QRChannel = "wechat"
	QRChannelAlipay QRChannel = "alipay"
)

// Valid reports whether c is a channel the vendor accepts.
func (c QRChannel) Valid() bool {
	switch c {
	case QRChannelApp, QRChannelWeChat, QRChannelAlipay:
		return true
	}
	return false
}
