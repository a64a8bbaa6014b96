package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/drewmudry/cadence-api/internal/clock"
	"github.com/drewmudry/cadence-api/internal/testutil"
	"github.com/drewmudry/cadence-api/internal/tokencrypt"
	"github.com/drewmudry/cadence-api/models"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type connectFixture struct {
	router *gin.Engine
	db     *gorm.DB
	state  *StateSigner
	cipher *tokencrypt.Cipher
	brand  models.Brand
}

// providerServer fakes the token endpoint and identity APIs of every
// provider.
func providerServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		token := "user-token"
		if r.PostForm.Get("code_verifier") != "" {
			token = "x-token"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, token)
	})
	mux.HandleFunc("/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"sub":"abc123","name":"Dana"}`))
	})
	mux.HandleFunc("/v19.0/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"id":"p0","name":"No IG","access_token":"page-0"},
			{"id":"p1","name":"Harbour","access_token":"page-1","instagram_business_account":{"id":"ig1","username":"harbour"}}
		]}`))
	})
	mux.HandleFunc("/2/users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer x-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":"42","username":"harbourcoffee"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newConnectFixture(t *testing.T) connectFixture {
	t.Helper()
	srv := providerServer(t)

	db := testutil.NewDB(t)
	brand, _ := testutil.SeedBrand(t, db, "Harbour Coffee", "UTC")

	state, err := NewStateSigner("state-secret", clock.Real{})
	require.NoError(t, err)
	cipher, err := tokencrypt.New(testKey)
	require.NoError(t, err)

	ep := oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	creds := ClientCredentials{ClientID: "client", ClientSecret: "secret"}
	h := NewHandler(db, state, cipher, ConnectConfig{
		PublicBaseURL:   "https://api.example.com/",
		FrontendURL:     "https://app.example.com",
		Facebook:        creds,
		LinkedIn:        creds,
		X:               creds,
		GraphBaseURL:    srv.URL,
		LinkedInBaseURL: srv.URL,
		XBaseURL:        srv.URL,
		Endpoints: map[models.Provider]oauth2.Endpoint{
			models.ProviderFacebook:  ep,
			models.ProviderInstagram: ep,
			models.ProviderLinkedIn:  ep,
			models.ProviderX:         ep,
		},
		HTTPClient: srv.Client(),
	})

	r := gin.New()
	r.GET("/oauth/:provider/start", h.Start)
	r.GET("/oauth/:provider/callback", h.Callback)
	return connectFixture{router: r, db: db, state: state, cipher: cipher, brand: brand}
}

func (f connectFixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (f connectFixture) callback(t *testing.T, p models.Provider, code string) *httptest.ResponseRecorder {
	t.Helper()
	state, err := f.state.Sign(StatePayload{BrandID: f.brand.ID, UserID: "u-1", Provider: string(p)})
	require.NoError(t, err)
	q := url.Values{"state": {state}, "code": {code}}
	return f.get(fmt.Sprintf("/oauth/%s/callback?%s", p, q.Encode()))
}

func (f connectFixture) account(t *testing.T, p models.Provider) models.SocialAccount {
	t.Helper()
	var a models.SocialAccount
	require.NoError(t, f.db.Where("brand_id = ? AND provider = ?", f.brand.ID, p).First(&a).Error)
	return a
}

func TestStartRedirectsWithSignedState(t *testing.T) {
	f := newConnectFixture(t)

	w := f.get(fmt.Sprintf("/oauth/x/start?brandId=%d&userId=u-1", f.brand.ID))
	require.Equal(t, http.StatusTemporaryRedirect, w.Code, w.Body.String())

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	q := loc.Query()
	assert.Equal(t, "/authorize", loc.Path)
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "https://api.example.com/oauth/x/callback", q.Get("redirect_uri"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))

	payload, err := f.state.Verify(q.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, f.brand.ID, payload.BrandID)
	assert.Equal(t, "u-1", payload.UserID)
	assert.Equal(t, "x", payload.Provider)
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(f.state.Verifier(q.Get("state"))), q.Get("code_challenge"))
}

func TestStartErrors(t *testing.T) {
	f := newConnectFixture(t)

	assert.Equal(t, http.StatusNotFound, f.get("/oauth/myspace/start?brandId=1").Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/oauth/linkedin/start").Code)
	assert.Equal(t, http.StatusNotFound, f.get("/oauth/linkedin/start?brandId=999").Code)

	w := f.get(fmt.Sprintf("/oauth/linkedin/start?brandId=%d", f.brand.ID))
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Empty(t, loc.Query().Get("code_challenge"), "PKCE is only sent to X")
}

func TestCallbackConnectsLinkedIn(t *testing.T) {
	f := newConnectFixture(t)

	w := f.callback(t, models.ProviderLinkedIn, "good-code")
	require.Equal(t, http.StatusTemporaryRedirect, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Location"), "https://app.example.com/channels/callback?")
	assert.Contains(t, w.Header().Get("Location"), "status=connected")

	a := f.account(t, models.ProviderLinkedIn)
	assert.Equal(t, models.AccountStatusConnected, a.Status)
	assert.Equal(t, "u-1", a.ConnectedBy)
	require.NotNil(t, a.TokenExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *a.TokenExpiresAt, time.Minute)

	token, err := f.cipher.Decrypt(a.EncryptedToken)
	require.NoError(t, err)
	assert.Equal(t, "user-token", token)

	meta, err := a.LinkedInMetadata()
	require.NoError(t, err)
	assert.Equal(t, "urn:li:person:abc123", meta.AuthorURN)
	assert.Equal(t, "Dana", meta.Name)
}

func TestCallbackReconnectsExpiredAccount(t *testing.T) {
	f := newConnectFixture(t)

	require.Equal(t, http.StatusTemporaryRedirect, f.callback(t, models.ProviderLinkedIn, "good-code").Code)
	reason := "token revoked"
	require.NoError(t, f.db.Model(&models.SocialAccount{}).Where("brand_id = ?", f.brand.ID).
		Updates(map[string]any{"status": models.AccountStatusExpired, "status_reason": reason}).Error)

	require.Equal(t, http.StatusTemporaryRedirect, f.callback(t, models.ProviderLinkedIn, "good-code").Code)

	var n int64
	require.NoError(t, f.db.Model(&models.SocialAccount{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	a := f.account(t, models.ProviderLinkedIn)
	assert.Equal(t, models.AccountStatusConnected, a.Status)
	assert.Nil(t, a.StatusReason)
}

func TestCallbackStoresPageTokens(t *testing.T) {
	f := newConnectFixture(t)

	require.Equal(t, http.StatusTemporaryRedirect, f.callback(t, models.ProviderFacebook, "good-code").Code)
	fb := f.account(t, models.ProviderFacebook)
	token, err := f.cipher.Decrypt(fb.EncryptedToken)
	require.NoError(t, err)
	assert.Equal(t, "page-0", token)
	assert.Nil(t, fb.TokenExpiresAt)
	fbMeta, err := fb.FacebookMetadata()
	require.NoError(t, err)
	assert.Equal(t, "p0", fbMeta.PageID)

	require.Equal(t, http.StatusTemporaryRedirect, f.callback(t, models.ProviderInstagram, "good-code").Code)
	ig := f.account(t, models.ProviderInstagram)
	token, err = f.cipher.Decrypt(ig.EncryptedToken)
	require.NoError(t, err)
	assert.Equal(t, "page-1", token)
	igMeta, err := ig.InstagramMetadata()
	require.NoError(t, err)
	assert.Equal(t, "ig1", igMeta.IGUserID)
	assert.Equal(t, "harbour", igMeta.Username)
}

func TestCallbackConnectsXWithPKCE(t *testing.T) {
	f := newConnectFixture(t)

	require.Equal(t, http.StatusTemporaryRedirect, f.callback(t, models.ProviderX, "good-code").Code)
	meta, err := f.account(t, models.ProviderX).XMetadata()
	require.NoError(t, err)
	assert.Equal(t, "42", meta.UserID)
	assert.Equal(t, "harbourcoffee", meta.Username)
}

func TestCallbackRejects(t *testing.T) {
	f := newConnectFixture(t)

	linkedInState, err := f.state.Sign(StatePayload{BrandID: f.brand.ID, Provider: "linkedin"})
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"tampered state", "/oauth/linkedin/callback?code=good-code&state=" + url.QueryEscape(linkedInState+"x"), http.StatusBadRequest},
		{"provider mismatch", "/oauth/facebook/callback?code=good-code&state=" + url.QueryEscape(linkedInState), http.StatusBadRequest},
		{"missing code", "/oauth/linkedin/callback?state=" + url.QueryEscape(linkedInState), http.StatusBadRequest},
		{"bad code", "/oauth/linkedin/callback?code=bad&state=" + url.QueryEscape(linkedInState), http.StatusBadGateway},
		{"user denied", "/oauth/linkedin/callback?error=access_denied", http.StatusTemporaryRedirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(tt.path)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&models.SocialAccount{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestProviderErrorBody(t *testing.T) {
	var body map[string]string
	w := newConnectFixture(t).get("/oauth/linkedin/callback?state=nope&code=x")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Invalid state token", body["error"])
}
