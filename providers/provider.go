// Package providers publishes draft content to social platforms. Every
// adapter resolves to a typed Outcome and never returns an error.
package providers

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/drewmudry/cadence-api/internal/tokencrypt"
	"github.com/drewmudry/cadence-api/models"
)

type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeAuth      OutcomeKind = "auth_error"
	OutcomeTransient OutcomeKind = "transient_error"
	OutcomePermanent OutcomeKind = "permanent_error"
)

// Outcome is the classified result of one publish call.
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	ExternalID  string      `json:"external_id,omitempty"`
	ExternalURL string      `json:"external_url,omitempty"`
	Message     string      `json:"message,omitempty"`
}

func (o Outcome) Success() bool { return o.Kind == OutcomeSuccess }

// ErrorKind maps a failed outcome to the stored job error kind.
func (o Outcome) ErrorKind() models.ErrorKind {
	switch o.Kind {
	case OutcomeAuth:
		return models.ErrorKindAuth
	case OutcomeTransient:
		return models.ErrorKindTransient
	case OutcomePermanent:
		return models.ErrorKindPermanent
	default:
		return models.ErrorKindInternal
	}
}

func success(id, url string) Outcome {
	return Outcome{Kind: OutcomeSuccess, ExternalID: id, ExternalURL: url}
}

func authError(msg string) Outcome      { return Outcome{Kind: OutcomeAuth, Message: clip(msg)} }
func transientError(msg string) Outcome { return Outcome{Kind: OutcomeTransient, Message: clip(msg)} }
func permanentError(msg string) Outcome { return Outcome{Kind: OutcomePermanent, Message: clip(msg)} }

// clip caps msg at 500 bytes without splitting a UTF-8 sequence.
func clip(msg string) string {
	max := 500
	if len(msg) <= max {
		return msg
	}
	for max > 0 && !utf8.RuneStart(msg[max]) {
		max--
	}
	return msg[:max]
}

// Content is what gets published for one channel.
type Content struct {
	Channel   models.Channel
	Caption   string
	Hashtags  []string
	MediaURLs []string
}

// Text is the caption followed by the hashtags.
func (c Content) Text() string {
	if len(c.Hashtags) == 0 {
		return strings.TrimSpace(c.Caption)
	}
	tags := make([]string, len(c.Hashtags))
	for i, h := range c.Hashtags {
		tags[i] = "#" + strings.TrimLeft(h, "#")
	}
	caption := strings.TrimSpace(c.Caption)
	if caption == "" {
		return strings.Join(tags, " ")
	}
	return caption + "\n\n" + strings.Join(tags, " ")
}

// Publisher publishes content through one connected account.
type Publisher interface {
	Publish(ctx context.Context, account models.SocialAccount, content Content) Outcome
}

// Config holds endpoints and limits shared by every adapter. Base URLs are
// overridden in tests.
type Config struct {
	GraphBaseURL    string
	GraphVersion    string
	LinkedInBaseURL string
	LinkedInVersion string
	XBaseURL        string
	RatePerSecond   float64
	HTTPClient      *http.Client
	PollInterval    time.Duration
	PollAttempts    int
}

func (c Config) withDefaults() Config {
	if c.GraphBaseURL == "" {
		c.GraphBaseURL = "https://graph.facebook.com"
	}
	if c.GraphVersion == "" {
		c.GraphVersion = "v19.0"
	}
	if c.LinkedInBaseURL == "" {
		c.LinkedInBaseURL = "https://api.linkedin.com"
	}
	if c.LinkedInVersion == "" {
		c.LinkedInVersion = "202405"
	}
	if c.XBaseURL == "" {
		c.XBaseURL = "https://api.x.com"
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 5
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 10
	}
	return c
}

// Registry maps providers to their publishers.
type Registry map[models.Provider]Publisher

// NewRegistry builds a publisher for every supported provider. Each
// provider gets its own rate limiter.
func NewRegistry(cipher *tokencrypt.Cipher, cfg Config) Registry {
	cfg = cfg.withDefaults()
	newBase := func(p models.Provider) base {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		return base{
			provider: p,
			cipher:   cipher,
			http:     cfg.HTTPClient,
			limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		}
	}
	return Registry{
		models.ProviderFacebook:  &Facebook{base: newBase(models.ProviderFacebook), graph: graphURL(cfg)},
		models.ProviderInstagram: &Instagram{base: newBase(models.ProviderInstagram), graph: graphURL(cfg), pollInterval: cfg.PollInterval, pollAttempts: cfg.PollAttempts},
		models.ProviderLinkedIn:  &LinkedIn{base: newBase(models.ProviderLinkedIn), baseURL: strings.TrimRight(cfg.LinkedInBaseURL, "/"), version: cfg.LinkedInVersion},
		models.ProviderX:         &X{base: newBase(models.ProviderX), baseURL: strings.TrimRight(cfg.XBaseURL, "/")},
	}
}

// For resolves a channel to its provider and publisher.
func (r Registry) For(ch models.Channel) (Publisher, models.Provider, bool) {
	p, ok := ch.Provider()
	if !ok {
		return nil, "", false
	}
	pub, ok := r[p]
	return pub, p, ok
}

func graphURL(cfg Config) string {
	return strings.TrimRight(cfg.GraphBaseURL, "/") + "/" + cfg.GraphVersion
}
