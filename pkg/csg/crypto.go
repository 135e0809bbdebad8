package csg

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	mathrand "math/rand/v2"
	"strings"
	"sync"
	"time"
)

var credentialKey = sync.OnceValues(func() (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(credentialPubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential pubkey: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credential pubkey: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("credential pubkey is %T, not RSA", key)
	}
	return rsaKey, nil
})

// EncryptCredential encrypts a password with the vendor's RSA public key the
// way the app does before putting it on the wire.
func EncryptCredential(password string) (string, error) {
	key, err := credentialKey()
	if err != nil {
		return "", err
	}
	return encryptCredentialWithKey(key, password)
}

func encryptCredentialWithKey(key *rsa.PublicKey, password string) (string, error) {
	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, key, []byte(password))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credential: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// EncryptParams wraps a request payload the way the app's need-crypto path
// does: compact JSON, zero-byte padded to the AES block size, AES-CBC with
// the fixed key/IV, base64.
func EncryptParams(params any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// the app sends raw utf8, not \uXXXX escapes
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		return "", fmt.Errorf("failed to marshal params: %w", err)
	}
	plain := bytes.TrimRight(buf.Bytes(), "\n")
	block, err := aes.NewCipher([]byte(paramKey))
	if err != nil {
		return "", err
	}
	// the vendor pads with NUL bytes, not PKCS7. A payload already on a
	// block boundary still gets a full block of padding.
	padLen := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(plain, make([]byte, padLen)...)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(paramIV)).CryptBlocks(encrypted, padded)
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// DecryptParams reverses EncryptParams into dest.
func DecryptParams(encrypted string, dest any) error {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return fmt.Errorf("failed to decode params: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return fmt.Errorf("encrypted params length %d not a block multiple", len(raw))
	}
	block, err := aes.NewCipher([]byte(paramKey))
	if err != nil {
		return err
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, []byte(paramIV)).CryptBlocks(plain, raw)
	trimmed := strings.TrimRight(string(plain), "\x00")
	if err := json.Unmarshal([]byte(trimmed), dest); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}

// GenerateQRLoginID produces the id the app attaches to a login QR code,
// reproduced from the vendor's javascript.
func GenerateQRLoginID() string {
	s := fmt.Sprintf("%d%v", time.Now().UnixMilli(), mathrand.Float64())
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
