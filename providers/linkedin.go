package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/drewmudry/cadence-api/models"
)

// LinkedIn publishes through the versioned Posts API.
type LinkedIn struct {
	base
	baseURL string
	version string
}

type linkedInPost struct {
	Author                    string               `json:"author"`
	Commentary                string               `json:"commentary"`
	Visibility                string               `json:"visibility"`
	Distribution              linkedInDistribution `json:"distribution"`
	Content                   *linkedInContent     `json:"content,omitempty"`
	LifecycleState            string               `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool                 `json:"isReshareDisabledByAuthor"`
}

type linkedInDistribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

type linkedInContent struct {
	Article struct {
		Source string `json:"source"`
		Title  string `json:"title,omitempty"`
	} `json:"article"`
}

func (l *LinkedIn) Publish(ctx context.Context, account models.SocialAccount, content Content) Outcome {
	meta, err := account.LinkedInMetadata()
	if err != nil {
		return permanentError(err.Error())
	}
	text := content.Text()
	if text == "" {
		return permanentError("linkedin post has no text")
	}
	client, o := l.client(ctx, account)
	if o != nil {
		return *o
	}

	post := linkedInPost{
		Author:     meta.AuthorURN,
		Commentary: text,
		Visibility: "PUBLIC",
		Distribution: linkedInDistribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}
	if len(content.MediaURLs) > 0 {
		post.Content = &linkedInContent{}
		post.Content.Article.Source = content.MediaURLs[0]
	}

	body, err := json.Marshal(post)
	if err != nil {
		return permanentError(fmt.Sprintf("encode linkedin post: %v", err))
	}

	if o := l.wait(ctx); o != nil {
		return *o
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/rest/posts", bytes.NewReader(body))
	if err != nil {
		return permanentError(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LinkedIn-Version", l.version)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, o := l.do(client, req)
	if o != nil {
		return *o
	}
	if resp.status < 200 || resp.status >= 300 {
		return classifyStatus(resp.status, linkedInMessage(resp))
	}

	id := resp.header.Get("x-restli-id")
	if id == "" {
		return transientError("linkedin returned no post id")
	}
	return success(id, "https://www.linkedin.com/feed/update/"+url.PathEscape(id))
}

func linkedInMessage(resp *response) string {
	var e struct {
		Message     string `json:"message"`
		ServiceCode int    `json:"serviceErrorCode"`
	}
	if err := json.Unmarshal(resp.body, &e); err == nil && e.Message != "" {
		return fmt.Sprintf("linkedin: %s (HTTP %d)", e.Message, resp.status)
	}
	return fmt.Sprintf("linkedin returned HTTP %d", resp.status)
}
