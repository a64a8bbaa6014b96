package providers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/drewmudry/cadence-api/models"
)

// Facebook publishes to a Page feed. The stored token is a page token.
type Facebook struct {
	base
	graph string
}

func (f *Facebook) Publish(ctx context.Context, account models.SocialAccount, content Content) Outcome {
	meta, err := account.FacebookMetadata()
	if err != nil {
		return permanentError(err.Error())
	}
	client, o := f.client(ctx, account)
	if o != nil {
		return *o
	}

	text := content.Text()
	form := url.Values{}
	endpoint := fmt.Sprintf("%s/%s/feed", f.graph, url.PathEscape(meta.PageID))
	if len(content.MediaURLs) > 0 {
		endpoint = fmt.Sprintf("%s/%s/photos", f.graph, url.PathEscape(meta.PageID))
		form.Set("url", content.MediaURLs[0])
		form.Set("caption", text)
	} else {
		if text == "" {
			return permanentError("facebook post has no text or media")
		}
		form.Set("message", text)
	}

	var out struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if o := f.graphPost(ctx, client, endpoint, form, &out); o != nil {
		return *o
	}

	id := out.PostID
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return transientError("facebook returned no post id")
	}
	return success(id, "https://www.facebook.com/"+id)
}
