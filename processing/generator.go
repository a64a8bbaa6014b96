// Package processing generates post copy for materialized drafts.
package processing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/drewmudry/cadence-api/models"
)

// Request describes the slot a caption is written for.
type Request struct {
	BrandName    string
	Subcategory  string
	Theme        string
	Channels     []models.Channel
	ScheduledFor time.Time
	Timezone     string
}

// Copy is the structured output expected from a content model.
type Copy struct {
	Caption  string   `json:"caption" jsonschema_description:"The post caption, ready to publish, without hashtags"`
	Hashtags []string `json:"hashtags" jsonschema_description:"Three to six relevant hashtags without the leading #"`
}

// Generator writes copy for one occurrence.
type Generator interface {
	Generate(ctx context.Context, req Request) (Copy, error)
}

// GenerateSchema generates a JSON schema for structured outputs
func GenerateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

var copySchema = GenerateSchema[Copy]()

// Noop returns empty copy. Drafts created with it are filled in by hand.
type Noop struct{}

func (Noop) Generate(context.Context, Request) (Copy, error) {
	return Copy{}, nil
}

func buildPrompt(req Request) string {
	channels := make([]string, len(req.Channels))
	for i, c := range req.Channels {
		channels[i] = c.Label()
	}

	when := req.ScheduledFor
	if loc, err := time.LoadLocation(req.Timezone); err == nil {
		when = when.In(loc)
	}

	return fmt.Sprintf(`You write social media posts for the brand "%s".

Content theme: %s
Theme guidance: %s
The post goes out on %s at %s on: %s

Write one caption that works on every listed channel. Keep it under 280 characters
so it also fits X. Do not put hashtags in the caption; return them separately.

Respond in JSON format with this structure:
{
  "caption": "the caption",
  "hashtags": ["tag", "tag"]
}`, req.BrandName, req.Subcategory, req.Theme, when.Format("Monday 2 January"), when.Format("15:04"), strings.Join(channels, ", "))
}

// normalize trims the model output and strips leading '#' from tags.
func normalize(c Copy) Copy {
	c.Caption = strings.TrimSpace(c.Caption)
	tags := make([]string, 0, len(c.Hashtags))
	seen := make(map[string]bool)
	for _, h := range c.Hashtags {
		h = strings.TrimLeft(strings.TrimSpace(h), "#")
		if h == "" || seen[strings.ToLower(h)] {
			continue
		}
		seen[strings.ToLower(h)] = true
		tags = append(tags, h)
	}
	c.Hashtags = tags
	return c
}
