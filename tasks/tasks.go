package tasks

import "encoding/json"

// ---
// QUEUE DEFINITIONS
// ---
// Each queue carries one task kind. The redis list holds task ids; the
// payload lives on the background_tasks row.
const (
	// QueuePublishDraft runs publish-now for one draft in the background.
	QueuePublishDraft = "q_publish_draft"

	// QueueMaterializeBrand expands and materializes one brand's rules.
	QueueMaterializeBrand = "q_materialize_brand"
)

// All lists every queue the worker listens on.
var All = []string{QueuePublishDraft, QueueMaterializeBrand}

// ---
// TASK PAYLOADS
// ---

// PublishDraftPayload is the payload for QueuePublishDraft
type PublishDraftPayload struct {
	DraftID uint `json:"draft_id"`
}

// MaterializeBrandPayload is the payload for QueueMaterializeBrand
type MaterializeBrandPayload struct {
	BrandID uint `json:"brand_id"`
}

// Marshal creates a JSON payload for a task.
func Marshal(payload interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
