package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drewmudry/cadence-api/internal/clock"
)

// StateTTL is how long a signed OAuth state stays valid.
const StateTTL = 5 * time.Minute

var (
	ErrInvalidState = errors.New("invalid oauth state")
	ErrStateExpired = errors.New("oauth state expired")
)

// StatePayload is carried through the provider redirect.
type StatePayload struct {
	BrandID   uint   `json:"brandId"`
	UserID    string `json:"userId"`
	Provider  string `json:"provider"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// StateSigner issues and verifies base64url(payload).base64url(hmac) tokens.
type StateSigner struct {
	secret []byte
	clock  clock.Clock
}

func NewStateSigner(secret string, clk clock.Clock) (*StateSigner, error) {
	if secret == "" {
		return nil, errors.New("OAUTH_STATE_SECRET not set")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &StateSigner{secret: []byte(secret), clock: clk}, nil
}

// Sign stamps p with the current time and returns the encoded token.
func (s *StateSigner) Sign(p StatePayload) (string, error) {
	p.Timestamp = s.clock.Now().UnixMilli()
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	enc := base64.RawURLEncoding.EncodeToString(body)
	return enc + "." + base64.RawURLEncoding.EncodeToString(s.mac(enc)), nil
}

// Verify checks the signature and age of token.
func (s *StateSigner) Verify(token string) (StatePayload, error) {
	var p StatePayload

	enc, sig, ok := strings.Cut(token, ".")
	if !ok || enc == "" || sig == "" {
		return p, ErrInvalidState
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, s.mac(enc)) {
		return p, ErrInvalidState
	}

	body, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return p, ErrInvalidState
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, ErrInvalidState
	}

	age := s.clock.Now().Sub(time.UnixMilli(p.Timestamp))
	if age > StateTTL || age < -time.Minute {
		return p, ErrStateExpired
	}
	return p, nil
}

func (s *StateSigner) mac(msg string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

// Verifier derives the PKCE code verifier bound to a signed state token, so
// the callback can recompute it without server-side storage.
func (s *StateSigner) Verifier(token string) string {
	return base64.RawURLEncoding.EncodeToString(s.mac("pkce." + token))
}
