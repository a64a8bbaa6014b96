package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/drewmudry/cadence-api/models"
)

// Instagram publishes through the Graph API content publishing flow: create
// a media container, then publish it.
type Instagram struct {
	base
	graph        string
	pollInterval time.Duration
	pollAttempts int
}

func isVideo(mediaURL string) bool {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".mp4", ".mov", ".m4v":
		return true
	}
	return false
}

func (ig *Instagram) Publish(ctx context.Context, account models.SocialAccount, content Content) Outcome {
	meta, err := account.InstagramMetadata()
	if err != nil {
		return permanentError(err.Error())
	}
	if len(content.MediaURLs) == 0 {
		return permanentError("instagram posts require an image or video")
	}
	client, o := ig.client(ctx, account)
	if o != nil {
		return *o
	}

	media := content.MediaURLs[0]
	video := isVideo(media)
	story := content.Channel == models.ChannelInstagramStory

	form := url.Values{}
	if video {
		form.Set("video_url", media)
	} else {
		form.Set("image_url", media)
	}
	switch {
	case story:
		form.Set("media_type", "STORIES")
	case video:
		form.Set("media_type", "REELS")
		form.Set("caption", content.Text())
	default:
		form.Set("caption", content.Text())
	}

	userPath := ig.graph + "/" + url.PathEscape(meta.IGUserID)

	var container struct {
		ID string `json:"id"`
	}
	if o := ig.graphPost(ctx, client, userPath+"/media", form, &container); o != nil {
		return *o
	}
	if container.ID == "" {
		return transientError("instagram returned no container id")
	}

	if video {
		if o := ig.awaitContainer(ctx, client, container.ID); o != nil {
			return *o
		}
	}

	var published struct {
		ID string `json:"id"`
	}
	if o := ig.graphPost(ctx, client, userPath+"/media_publish", url.Values{"creation_id": {container.ID}}, &published); o != nil {
		return *o
	}
	if published.ID == "" {
		return transientError("instagram returned no media id")
	}

	link := "https://www.instagram.com/"
	var permalink struct {
		Permalink string `json:"permalink"`
	}
	if o := ig.graphGet(ctx, client, ig.graph+"/"+url.PathEscape(published.ID), url.Values{"fields": {"permalink"}}, &permalink); o == nil && permalink.Permalink != "" {
		link = permalink.Permalink
	}
	return success(published.ID, link)
}

// awaitContainer polls a video container until it is ready to publish.
func (ig *Instagram) awaitContainer(ctx context.Context, client *http.Client, id string) *Outcome {
	for i := 0; i < ig.pollAttempts; i++ {
		var st struct {
			StatusCode string `json:"status_code"`
		}
		if o := ig.graphGet(ctx, client, ig.graph+"/"+url.PathEscape(id), url.Values{"fields": {"status_code"}}, &st); o != nil {
			return o
		}
		switch st.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			o := permanentError(fmt.Sprintf("instagram rejected media container (%s)", st.StatusCode))
			return &o
		}

		select {
		case <-ctx.Done():
			o := transientError(ctx.Err().Error())
			return &o
		case <-time.After(ig.pollInterval):
		}
	}
	o := transientError("instagram media container still processing")
	return &o
}
