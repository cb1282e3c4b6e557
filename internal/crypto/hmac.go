package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Creds are the L2 API credentials returned by derive-api-key.
type Creds struct {
	Key        string
	Secret     string // base64 encoded
	Passphrase string
}

// L2Headers returns the authenticated request headers at the current time.
func (c Creds) L2Headers(address, method, path, body string) map[string]string {
	return c.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt signs timestamp+METHOD+path+body with the decoded secret and
// returns the url-safe base64 signature with the other POLY_* headers.
func (c Creds) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    c.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": c.Passphrase,
		"POLY_SIGNATURE":  Sign(c.Secret, ts+strings.ToUpper(method)+path+body),
	}
}

// Sign computes the url-safe base64 HMAC-SHA256 of message. Secrets that
// are not valid base64 are used as raw bytes.
func Sign(secret, message string) string {
	key, err := decodeSecret(secret)
	if err != nil {
		key = []byte(secret)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func decodeSecret(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// String keeps secrets out of logs.
func (c Creds) String() string {
	return fmt.Sprintf("Creds{key=%s, secret=%s}", mask(c.Key), mask(c.Secret))
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
