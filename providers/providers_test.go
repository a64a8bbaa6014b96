package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewmudry/cadence-api/internal/tokencrypt"
	"github.com/drewmudry/cadence-api/models"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testCipher(t *testing.T) *tokencrypt.Cipher {
	t.Helper()
	c, err := tokencrypt.New(testKey)
	require.NoError(t, err)
	return c
}

func account(t *testing.T, c *tokencrypt.Cipher, p models.Provider, meta any) models.SocialAccount {
	t.Helper()
	tok, err := c.Encrypt("tok-123")
	require.NoError(t, err)
	raw, err := models.EncodeMetadata(meta)
	require.NoError(t, err)
	return models.SocialAccount{
		ID:             1,
		BrandID:        1,
		Provider:       p,
		Status:         models.AccountStatusConnected,
		EncryptedToken: tok,
		Metadata:       raw,
	}
}

func registryFor(t *testing.T, srv *httptest.Server) Registry {
	t.Helper()
	return NewRegistry(testCipher(t), Config{
		GraphBaseURL:    srv.URL,
		LinkedInBaseURL: srv.URL,
		XBaseURL:        srv.URL,
		RatePerSecond:   1000,
		HTTPClient:      srv.Client(),
		PollInterval:    time.Millisecond,
		PollAttempts:    3,
	})
}

func TestRegistryFor(t *testing.T) {
	reg := NewRegistry(testCipher(t), Config{})

	_, p, ok := reg.For(models.ChannelInstagramStory)
	require.True(t, ok)
	assert.Equal(t, models.ProviderInstagram, p)

	pub, p, ok := reg.For(models.ChannelTwitter)
	require.True(t, ok)
	assert.Equal(t, models.ProviderX, p)
	assert.IsType(t, &X{}, pub)

	_, _, ok = reg.For("myspace")
	assert.False(t, ok)
}

func TestContentText(t *testing.T) {
	c := Content{Caption: " Fresh beans today ", Hashtags: []string{"coffee", "#local"}}
	assert.Equal(t, "Fresh beans today\n\n#coffee #local", c.Text())
	assert.Equal(t, "plain", Content{Caption: "plain"}.Text())
}

func TestClassifyGraph(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   OutcomeKind
	}{
		{"expired token", 400, `{"error":{"message":"Session has expired","code":190}}`, OutcomeAuth},
		{"permission", 403, `{"error":{"message":"Permissions error","code":200}}`, OutcomeAuth},
		{"app rate limit", 400, `{"error":{"message":"Application request limit reached","code":4}}`, OutcomeTransient},
		{"flagged transient", 400, `{"error":{"message":"Try again","code":9007,"is_transient":true}}`, OutcomeTransient},
		{"server error", 502, `bad gateway`, OutcomeTransient},
		{"invalid parameter", 400, `{"error":{"message":"Invalid parameter","code":100}}`, OutcomePermanent},
		{"unauthorized without body", 401, ``, OutcomeAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyGraph(tt.status, []byte(tt.body)).Kind)
		})
	}
}

func TestClipKeepsValidUTF8(t *testing.T) {
	short := "Ungültiges Token"
	assert.Equal(t, short, clip(short))

	// "é" is two bytes and starts at byte 499.
	long := strings.Repeat("a", 499) + strings.Repeat("é", 10)
	got := clip(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 499), got)

	body, err := json.Marshal(map[string]any{"error": map[string]any{
		"message": strings.Repeat("Sitzung abgelaufen für Seite ", 40),
		"code":    190,
	}})
	require.NoError(t, err)
	out := classifyGraph(400, body)
	assert.Equal(t, OutcomeAuth, out.Kind)
	assert.LessOrEqual(t, len(out.Message), 500)
	assert.True(t, utf8.ValidString(out.Message))
}

func TestFacebookPublish(t *testing.T) {
	var gotPath, gotAuth string
	var gotForm map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		_, _ = io.WriteString(w, `{"id":"123_456"}`)
	}))
	defer srv.Close()

	reg := registryFor(t, srv)
	acct := account(t, testCipher(t), models.ProviderFacebook, models.FacebookMetadata{PageID: "123"})

	out := reg[models.ProviderFacebook].Publish(context.Background(), acct, Content{Channel: models.ChannelFacebook, Caption: "Hello"})
	require.Equal(t, OutcomeSuccess, out.Kind, out.Message)
	assert.Equal(t, "123_456", out.ExternalID)
	assert.Equal(t, "https://www.facebook.com/123_456", out.ExternalURL)
	assert.Equal(t, "/v19.0/123/feed", gotPath)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, []string{"Hello"}, gotForm["message"])

	out = reg[models.ProviderFacebook].Publish(context.Background(), acct, Content{
		Channel: models.ChannelFacebook, Caption: "Pic", MediaURLs: []string{"https://cdn.example.com/a.jpg"},
	})
	require.Equal(t, OutcomeSuccess, out.Kind)
	assert.Equal(t, "/v19.0/123/photos", gotPath)
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, gotForm["url"])
}

func TestFacebookPublishErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`)
	}))
	defer srv.Close()

	reg := registryFor(t, srv)
	c := testCipher(t)
	acct := account(t, c, models.ProviderFacebook, models.FacebookMetadata{PageID: "123"})

	out := reg[models.ProviderFacebook].Publish(context.Background(), acct, Content{Caption: "Hi"})
	assert.Equal(t, OutcomeAuth, out.Kind)
	assert.Contains(t, out.Message, "Error validating access token")

	bad := acct
	bad.EncryptedToken = "garbage"
	assert.Equal(t, OutcomeAuth, reg[models.ProviderFacebook].Publish(context.Background(), bad, Content{Caption: "Hi"}).Kind)

	noMeta := acct
	noMeta.Metadata = []byte(`{}`)
	assert.Equal(t, OutcomePermanent, reg[models.ProviderFacebook].Publish(context.Background(), noMeta, Content{Caption: "Hi"}).Kind)
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	reg := registryFor(t, srv)
	srv.Close()

	acct := account(t, testCipher(t), models.ProviderFacebook, models.FacebookMetadata{PageID: "123"})
	out := reg[models.ProviderFacebook].Publish(context.Background(), acct, Content{Caption: "Hi"})
	assert.Equal(t, OutcomeTransient, out.Kind)
}

func TestInstagramPublish(t *testing.T) {
	var steps []string
	var mediaType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/v19.0/ig1/media":
			assert.NoError(t, r.ParseForm())
			mediaType = r.PostForm.Get("media_type")
			assert.Equal(t, "https://cdn.example.com/a.jpg", r.PostForm.Get("image_url"))
			_, _ = io.WriteString(w, `{"id":"container-9"}`)
		case r.URL.Path == "/v19.0/ig1/media_publish":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "container-9", r.PostForm.Get("creation_id"))
			_, _ = io.WriteString(w, `{"id":"media-77"}`)
		case r.URL.Path == "/v19.0/media-77":
			_, _ = io.WriteString(w, `{"permalink":"https://www.instagram.com/p/abc/"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	reg := registryFor(t, srv)
	acct := account(t, testCipher(t), models.ProviderInstagram, models.InstagramMetadata{IGUserID: "ig1"})

	out := reg[models.ProviderInstagram].Publish(context.Background(), acct, Content{
		Channel: models.ChannelInstagramFeed, Caption: "Hi", MediaURLs: []string{"https://cdn.example.com/a.jpg"},
	})
	require.Equal(t, OutcomeSuccess, out.Kind, out.Message)
	assert.Equal(t, "media-77", out.ExternalID)
	assert.Equal(t, "https://www.instagram.com/p/abc/", out.ExternalURL)
	assert.Equal(t, []string{"POST /v19.0/ig1/media", "POST /v19.0/ig1/media_publish", "GET /v19.0/media-77"}, steps)
	assert.Equal(t, "", mediaType)

	steps = nil
	out = reg[models.ProviderInstagram].Publish(context.Background(), acct, Content{
		Channel: models.ChannelInstagramStory, MediaURLs: []string{"https://cdn.example.com/a.jpg"},
	})
	require.Equal(t, OutcomeSuccess, out.Kind)
	assert.Equal(t, "STORIES", mediaType)

	steps = nil
	out = reg[models.ProviderInstagram].Publish(context.Background(), acct, Content{Channel: models.ChannelInstagramFeed, Caption: "no media"})
	assert.Equal(t, OutcomePermanent, out.Kind)
	assert.Empty(t, steps, "no provider call without media")
}

func TestInstagramVideoPolling(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/ig1/media":
			_, _ = io.WriteString(w, `{"id":"c1"}`)
		case "/v19.0/c1":
			if atomic.AddInt32(&polls, 1) < 2 {
				_, _ = io.WriteString(w, `{"status_code":"IN_PROGRESS"}`)
				return
			}
			_, _ = io.WriteString(w, `{"status_code":"FINISHED"}`)
		case "/v19.0/ig1/media_publish":
			_, _ = io.WriteString(w, `{"id":"m1"}`)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	defer srv.Close()

	reg := registryFor(t, srv)
	acct := account(t, testCipher(t), models.ProviderInstagram, models.InstagramMetadata{IGUserID: "ig1"})
	out := reg[models.ProviderInstagram].Publish(context.Background(), acct, Content{
		Channel: models.ChannelInstagramFeed, MediaURLs: []string{"https://cdn.example.com/clip.mp4"},
	})
	require.Equal(t, OutcomeSuccess, out.Kind, out.Message)
	assert.Equal(t, int32(2), atomic.LoadInt32(&polls))
	assert.Equal(t, "https://www.instagram.com/", out.ExternalURL)
}

func TestLinkedInPublish(t *testing.T) {
	status := http.StatusCreated
	var body linkedInPost
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/posts", r.URL.Path)
		assert.Equal(t, "202405", r.Header.Get("LinkedIn-Version"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		if status != http.StatusCreated {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"message":"nope"}`)
			return
		}
		w.Header().Set("x-restli-id", "urn:li:share:42")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	reg := registryFor(t, srv)
	acct := account(t, testCipher(t), models.ProviderLinkedIn, models.LinkedInMetadata{AuthorURN: "urn:li:organization:9"})

	out := reg[models.ProviderLinkedIn].Publish(context.Background(), acct, Content{Caption: "Update"})
	require.Equal(t, OutcomeSuccess, out.Kind, out.Message)
	assert.Equal(t, "urn:li:share:42", out.ExternalID)
	assert.True(t, strings.HasPrefix(out.ExternalURL, "https://www.linkedin.com/feed/update/"))
	assert.Equal(t, "urn:li:organization:9", body.Author)
	assert.Equal(t, "PUBLISHED", body.LifecycleState)

	for code, want := range map[int]OutcomeKind{
		http.StatusUnauthorized:        OutcomeAuth,
		http.StatusForbidden:           OutcomeAuth,
		http.StatusTooManyRequests:     OutcomeTransient,
		http.StatusServiceUnavailable:  OutcomeTransient,
		http.StatusUnprocessableEntity: OutcomePermanent,
	} {
		status = code
		assert.Equal(t, want, reg[models.ProviderLinkedIn].Publish(context.Background(), acct, Content{Caption: "Update"}).Kind, code)
	}
}

func TestXPublish(t *testing.T) {
	var calls int32
	status := http.StatusCreated
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/2/tweets", r.URL.Path)
		w.WriteHeader(status)
		if status == http.StatusCreated {
			_, _ = io.WriteString(w, `{"data":{"id":"1799","text":"hi"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content."}`)
	}))
	defer srv.Close()

	reg := registryFor(t, srv)
	acct := account(t, testCipher(t), models.ProviderX, models.XMetadata{UserID: "u1", Username: "harbourcoffee"})

	out := reg[models.ProviderX].Publish(context.Background(), acct, Content{Caption: "hi"})
	require.Equal(t, OutcomeSuccess, out.Kind, out.Message)
	assert.Equal(t, "https://x.com/harbourcoffee/status/1799", out.ExternalURL)

	status = http.StatusForbidden
	out = reg[models.ProviderX].Publish(context.Background(), acct, Content{Caption: "hi"})
	assert.Equal(t, OutcomePermanent, out.Kind)
	assert.Contains(t, out.Message, "duplicate content")

	status = http.StatusUnauthorized
	assert.Equal(t, OutcomeAuth, reg[models.ProviderX].Publish(context.Background(), acct, Content{Caption: "hi"}).Kind)

	status = http.StatusTooManyRequests
	assert.Equal(t, OutcomeTransient, reg[models.ProviderX].Publish(context.Background(), acct, Content{Caption: "hi"}).Kind)

	before := atomic.LoadInt32(&calls)
	out = reg[models.ProviderX].Publish(context.Background(), acct, Content{Caption: strings.Repeat("é", MaxTweetRunes+1)})
	assert.Equal(t, OutcomePermanent, out.Kind)
	assert.Equal(t, before, atomic.LoadInt32(&calls), "over-length posts are rejected before the call")
}

func TestDisconnectedAccountIsAuthError(t *testing.T) {
	acct := account(t, testCipher(t), models.ProviderX, models.XMetadata{UserID: "u1"})
	acct.Status = models.AccountStatusRevoked

	reg := NewRegistry(testCipher(t), Config{XBaseURL: "http://127.0.0.1:1"})
	out := reg[models.ProviderX].Publish(context.Background(), acct, Content{Caption: "hi"})
	assert.Equal(t, OutcomeAuth, out.Kind)
}
