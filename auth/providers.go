package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/drewmudry/cadence-api/models"
)

// ClientCredentials are the app credentials registered with a provider.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// ConnectConfig configures the provider connect flow. Instagram is
// authorized through the Facebook app.
type ConnectConfig struct {
	PublicBaseURL   string
	FrontendURL     string
	Facebook        ClientCredentials
	LinkedIn        ClientCredentials
	X               ClientCredentials
	GraphBaseURL    string
	GraphVersion    string
	LinkedInBaseURL string
	XBaseURL        string
	// Endpoints overrides the authorization server per provider.
	Endpoints  map[models.Provider]oauth2.Endpoint
	HTTPClient *http.Client
}

func (c ConnectConfig) withDefaults() ConnectConfig {
	if c.GraphBaseURL == "" {
		c.GraphBaseURL = "https://graph.facebook.com"
	}
	if c.GraphVersion == "" {
		c.GraphVersion = "v19.0"
	}
	if c.LinkedInBaseURL == "" {
		c.LinkedInBaseURL = "https://api.linkedin.com"
	}
	if c.XBaseURL == "" {
		c.XBaseURL = "https://api.x.com"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	return c
}

var providerScopes = map[models.Provider][]string{
	models.ProviderFacebook:  {"pages_show_list", "pages_read_engagement", "pages_manage_posts"},
	models.ProviderInstagram: {"pages_show_list", "business_management", "instagram_basic", "instagram_content_publish"},
	models.ProviderLinkedIn:  {"openid", "profile", "w_member_social"},
	models.ProviderX:         {"tweet.read", "tweet.write", "users.read", "offline.access"},
}

func (c ConnectConfig) endpoint(p models.Provider) oauth2.Endpoint {
	if ep, ok := c.Endpoints[p]; ok {
		return ep
	}
	switch p {
	case models.ProviderFacebook, models.ProviderInstagram:
		return oauth2.Endpoint{
			AuthURL:   "https://www.facebook.com/" + c.GraphVersion + "/dialog/oauth",
			TokenURL:  strings.TrimRight(c.GraphBaseURL, "/") + "/" + c.GraphVersion + "/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	case models.ProviderLinkedIn:
		return oauth2.Endpoint{
			AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	default:
		return oauth2.Endpoint{
			AuthURL:   "https://x.com/i/oauth2/authorize",
			TokenURL:  strings.TrimRight(c.XBaseURL, "/") + "/2/oauth2/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		}
	}
}

func (c ConnectConfig) credentials(p models.Provider) ClientCredentials {
	switch p {
	case models.ProviderFacebook, models.ProviderInstagram:
		return c.Facebook
	case models.ProviderLinkedIn:
		return c.LinkedIn
	default:
		return c.X
	}
}

// oauthConfig returns the client config for p, or false when the provider
// has no credentials.
func (c ConnectConfig) oauthConfig(p models.Provider) (*oauth2.Config, bool) {
	creds := c.credentials(p)
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, false
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     c.endpoint(p),
		RedirectURL:  c.PublicBaseURL + "/oauth/" + string(p) + "/callback",
		Scopes:       providerScopes[p],
	}, true
}

// identity is what the connect flow stores for an authorized account.
type identity struct {
	Token    string
	Expiry   *time.Time
	Metadata any
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

type graphPage struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	AccessToken              string `json:"access_token"`
	InstagramBusinessAccount *struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"instagram_business_account"`
}

// resolveIdentity looks up the account behind tok. Facebook and Instagram
// store the page token of the first eligible page.
func (c ConnectConfig) resolveIdentity(ctx context.Context, p models.Provider, client *http.Client, tok *oauth2.Token) (identity, error) {
	var id identity
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		id.Expiry = &exp
	}
	graph := strings.TrimRight(c.GraphBaseURL, "/") + "/" + c.GraphVersion

	switch p {
	case models.ProviderFacebook:
		var out struct {
			Data []graphPage `json:"data"`
		}
		if err := getJSON(ctx, client, graph+"/me/accounts?fields=id,name,access_token", &out); err != nil {
			return id, err
		}
		for _, page := range out.Data {
			if page.ID == "" || page.AccessToken == "" {
				continue
			}
			id.Token = page.AccessToken
			id.Expiry = nil
			id.Metadata = models.FacebookMetadata{PageID: page.ID, PageName: page.Name}
			return id, nil
		}
		return id, fmt.Errorf("no Facebook page available for this login")

	case models.ProviderInstagram:
		var out struct {
			Data []graphPage `json:"data"`
		}
		fields := "id,name,access_token,instagram_business_account{id,username}"
		if err := getJSON(ctx, client, graph+"/me/accounts?fields="+fields, &out); err != nil {
			return id, err
		}
		for _, page := range out.Data {
			iba := page.InstagramBusinessAccount
			if iba == nil || iba.ID == "" || page.AccessToken == "" {
				continue
			}
			id.Token = page.AccessToken
			id.Expiry = nil
			id.Metadata = models.InstagramMetadata{IGUserID: iba.ID, Username: iba.Username}
			return id, nil
		}
		return id, fmt.Errorf("no Instagram business account linked to a Facebook page")

	case models.ProviderLinkedIn:
		var out struct {
			Sub  string `json:"sub"`
			Name string `json:"name"`
		}
		if err := getJSON(ctx, client, strings.TrimRight(c.LinkedInBaseURL, "/")+"/v2/userinfo", &out); err != nil {
			return id, err
		}
		if out.Sub == "" {
			return id, fmt.Errorf("LinkedIn userinfo returned no subject")
		}
		id.Token = tok.AccessToken
		id.Metadata = models.LinkedInMetadata{AuthorURN: "urn:li:person:" + out.Sub, Name: out.Name}
		return id, nil

	case models.ProviderX:
		var out struct {
			Data struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"data"`
		}
		if err := getJSON(ctx, client, strings.TrimRight(c.XBaseURL, "/")+"/2/users/me", &out); err != nil {
			return id, err
		}
		if out.Data.ID == "" {
			return id, fmt.Errorf("X users/me returned no id")
		}
		// TODO: persist the refresh token so publishing can renew X access
		// tokens once they expire.
		id.Token = tok.AccessToken
		id.Metadata = models.XMetadata{UserID: out.Data.ID, Username: out.Data.Username}
		return id, nil
	}
	return id, fmt.Errorf("unsupported provider %q", p)
}
