package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SignedLinkSigner creates and validates time-limited download tokens. A token
// binds a blob handle to its owning submission, so possession of a handle alone
// is never enough to fetch the file.
type SignedLinkSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedLinkSigner constructs a signer with the provided secret and TTL.
func NewSignedLinkSigner(secret string, ttl time.Duration) *SignedLinkSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedLinkSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a signed token referencing the submission and blob handle.
func (s *SignedLinkSigner) Generate(submissionID, handle string) (string, time.Time, error) {
	if submissionID == "" || handle == "" {
		return "", time.Time{}, fmt.Errorf("submissionID and handle required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedHandle := base64.RawURLEncoding.EncodeToString([]byte(handle))
	payload := fmt.Sprintf("%s|%d|%s", submissionID, expiresAt.Unix(), encodedHandle)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	token := strings.Join([]string{submissionID, fmt.Sprintf("%d", expiresAt.Unix()), encodedHandle, signature}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded submission ID and handle.
func (s *SignedLinkSigner) Parse(token string) (submissionID, handle string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	submissionID = parts[0]
	ts := parts[1]
	encodedHandle := parts[2]
	signature := parts[3]

	rawHandle, err := base64.RawURLEncoding.DecodeString(encodedHandle)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode handle: %w", err)
	}

	expUnix, err := parseUnix(ts)
	if err != nil {
		return "", "", time.Time{}, err
	}
	expiresAt = time.Unix(expUnix, 0)

	payload := fmt.Sprintf("%s|%s|%s", submissionID, ts, encodedHandle)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	return submissionID, string(rawHandle), expiresAt, nil
}

func parseUnix(raw string) (int64, error) {
	var ts int64
	_, err := fmt.Sscanf(raw, "%d", &ts)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp")
	}
	return ts, nil
}
