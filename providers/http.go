package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/drewmudry/cadence-api/internal/tokencrypt"
	"github.com/drewmudry/cadence-api/models"
)

// base carries what every adapter needs to make an authenticated call.
type base struct {
	provider models.Provider
	cipher   *tokencrypt.Cipher
	http     *http.Client
	limiter  *rate.Limiter
}

// client decrypts the account token and returns an http.Client that sends
// it as a bearer token.
func (b base) client(ctx context.Context, account models.SocialAccount) (*http.Client, *Outcome) {
	if !account.Connected() {
		o := authError(fmt.Sprintf("%s account is %s", b.provider.Label(), account.Status))
		return nil, &o
	}
	if b.cipher == nil {
		o := permanentError("token encryption key not configured")
		return nil, &o
	}
	token, err := b.cipher.Decrypt(account.EncryptedToken)
	if err != nil || token == "" {
		o := authError("stored token could not be decrypted; reconnect the account")
		return nil, &o
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.http)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})), nil
}

// wait blocks on the provider limiter.
func (b base) wait(ctx context.Context) *Outcome {
	if err := b.limiter.Wait(ctx); err != nil {
		o := transientError("rate limit wait: " + err.Error())
		return &o
	}
	return nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends req and reads the body. A nil response with an Outcome means the
// call never produced an HTTP status.
func (b base) do(client *http.Client, req *http.Request) (*response, *Outcome) {
	resp, err := client.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			o := authError(err.Error())
			return nil, &o
		}
		o := transientError(fmt.Sprintf("%s request failed: %v", b.provider.Label(), err))
		return nil, &o
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		o := transientError(fmt.Sprintf("%s response read failed: %v", b.provider.Label(), err))
		return nil, &o
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// classifyStatus is the default mapping for REST providers.
func classifyStatus(status int, msg string) Outcome {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return authError(msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return transientError(msg)
	default:
		return permanentError(msg)
	}
}
