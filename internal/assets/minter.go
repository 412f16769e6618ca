// SPDX-License-Identifier: MIT

package assets

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SignedURLMinter mints expiring HMAC-signed URLs against a storage origin.
// The origin validates exp and sig before serving the object.
type SignedURLMinter struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewSignedURLMinter builds a minter for the given storage origin. ttl <= 0
// defaults to 15 minutes.
func NewSignedURLMinter(baseURL, secret string, ttl time.Duration) (*SignedURLMinter, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("assets: storage base url must not be empty")
	}
	if secret == "" {
		return nil, fmt.Errorf("assets: signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLMinter{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// MintSignedURL returns baseURL/key?exp=<unix>&sig=<hmac>.
func (m *SignedURLMinter) MintSignedURL(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("assets: storage key must not be empty")
	}

	exp := m.now().Add(m.ttl).Unix()
	sig := m.sign(key, exp)

	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", sig)
	return m.baseURL + "/" + key + "?" + q.Encode(), nil
}

func (m *SignedURLMinter) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s\n%d", key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by MintSignedURL. The storage origin
// uses it when serving signed requests.
func (m *SignedURLMinter) Verify(key string, exp int64, sig string) bool {
	if m.now().Unix() > exp {
		return false
	}
	expected := m.sign(key, exp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// PublicURLMinter maps keys onto a public storage origin without signing.
// Used when the origin serves media openly, e.g. local development.
type PublicURLMinter struct {
	baseURL string
}

// NewPublicURLMinter builds a minter for an unauthenticated origin.
func NewPublicURLMinter(baseURL string) (*PublicURLMinter, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("assets: storage base url must not be empty")
	}
	return &PublicURLMinter{baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (m *PublicURLMinter) MintSignedURL(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("assets: storage key must not be empty")
	}
	return m.baseURL + "/" + key, nil
}
