package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/drewmudry/cadence-api/models"
)

// MaxTweetRunes is the post length limit enforced before calling X.
const MaxTweetRunes = 280

// X publishes through the v2 tweets endpoint.
type X struct {
	base
	baseURL string
}

func (x *X) Publish(ctx context.Context, account models.SocialAccount, content Content) Outcome {
	meta, err := account.XMetadata()
	if err != nil {
		return permanentError(err.Error())
	}

	text := content.Text()
	if len(content.MediaURLs) > 0 {
		text = strings.TrimSpace(text + "\n" + content.MediaURLs[0])
	}
	if text == "" {
		return permanentError("post has no text")
	}
	if n := utf8.RuneCountInString(text); n > MaxTweetRunes {
		return permanentError(fmt.Sprintf("post is %d characters; X allows %d", n, MaxTweetRunes))
	}

	client, o := x.client(ctx, account)
	if o != nil {
		return *o
	}

	body, _ := json.Marshal(map[string]string{"text": text})
	if o := x.wait(ctx); o != nil {
		return *o
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return permanentError(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, o := x.do(client, req)
	if o != nil {
		return *o
	}
	if resp.status < 200 || resp.status >= 300 {
		msg := xMessage(resp)
		// X answers 403 for duplicate or disallowed content, not for bad tokens.
		if resp.status == http.StatusForbidden {
			return permanentError(msg)
		}
		return classifyStatus(resp.status, msg)
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil || out.Data.ID == "" {
		return transientError("x returned no tweet id")
	}

	handle := meta.Username
	if handle == "" {
		handle = "i"
	}
	return success(out.Data.ID, fmt.Sprintf("https://x.com/%s/status/%s", handle, out.Data.ID))
}

func xMessage(resp *response) string {
	var e struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.body, &e); err == nil {
		switch {
		case e.Detail != "":
			return fmt.Sprintf("x: %s (HTTP %d)", e.Detail, resp.status)
		case len(e.Errors) > 0 && e.Errors[0].Message != "":
			return fmt.Sprintf("x: %s (HTTP %d)", e.Errors[0].Message, resp.status)
		case e.Title != "":
			return fmt.Sprintf("x: %s (HTTP %d)", e.Title, resp.status)
		}
	}
	return fmt.Sprintf("x returned HTTP %d", resp.status)
}
