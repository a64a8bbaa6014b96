package publishing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/drewmudry/cadence-api/models"
)

type ActionType string

const (
	ActionReconnect ActionType = "reconnect"
	ActionRetry     ActionType = "retry"
	ActionEdit      ActionType = "edit"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Action struct {
	Type     ActionType       `json:"type"`
	Label    string           `json:"label"`
	Provider models.Provider  `json:"provider,omitempty"`
	Channels []models.Channel `json:"channels,omitempty"`
	URL      string           `json:"url,omitempty"`
}

// Remediation is the user-facing explanation of a failed or partial draft.
type Remediation struct {
	Headline    string   `json:"headline"`
	Explanation string   `json:"explanation"`
	Instruction string   `json:"instruction"`
	Actions     []Action `json:"actions"`
	Severity    Severity `json:"severity"`
}

// ReconnectURL starts the connect flow for p on behalf of brandID.
func ReconnectURL(p models.Provider, brandID uint) string {
	return "/oauth/" + string(p) + "/start?brandId=" + strconv.FormatUint(uint64(brandID), 10)
}

// Resolve explains a failed or partially published draft. Failures on a
// provider whose account is missing or not connected are attributed to the
// disconnection. ok is false for any other status.
func Resolve(brandID uint, status models.DraftStatus, jobs []models.PostJob, accounts []models.SocialAccount, now time.Time) (Remediation, bool) {
	if !NeedsRemediation(status) {
		return Remediation{}, false
	}

	byProvider := make(map[models.Provider]models.SocialAccount, len(accounts))
	for _, a := range accounts {
		byProvider[a.Provider] = a
	}

	var succeeded, failed []models.Channel
	var disconnected []models.Provider
	seen := make(map[models.Provider]bool)
	var lines []string
	hasPermanent := false

	for _, j := range jobs {
		switch j.Status {
		case models.PostJobStatusSuccess:
			succeeded = append(succeeded, j.Channel)
			continue
		case models.PostJobStatusFailed:
		default:
			continue
		}
		failed = append(failed, j.Channel)

		reason := "failed"
		if j.Error != nil && *j.Error != "" {
			reason = *j.Error
		}
		if j.ErrorKind != nil && *j.ErrorKind == models.ErrorKindPermanent {
			hasPermanent = true
		}

		if p, ok := j.Channel.Provider(); ok {
			acct, found := byProvider[p]
			if !found || !acct.Connected() {
				if !seen[p] {
					seen[p] = true
					disconnected = append(disconnected, p)
				}
				if !found {
					reason = fmt.Sprintf("no %s account is connected", p.Label())
				} else {
					reason = fmt.Sprintf("the %s connection is %s", p.Label(), acct.Status)
				}
			}
		}

		line := fmt.Sprintf("%s: %s", j.Channel.Label(), reason)
		if j.LastAttemptAt != nil {
			line += fmt.Sprintf(" (last tried %s)", humanize.RelTime(*j.LastAttemptAt, now, "ago", "from now"))
		}
		lines = append(lines, line)
	}

	r := Remediation{Explanation: strings.Join(lines, "\n")}
	partial := status == models.DraftStatusPartiallyPublished

	switch {
	case partial:
		r.Severity = SeverityWarning
		r.Headline = fmt.Sprintf("Published to %s, but failed on %s", channelList(succeeded), channelList(failed))
	case len(disconnected) > 0:
		r.Severity = SeverityError
		r.Headline = fmt.Sprintf("Publishing failed: %s %s disconnected", providerList(disconnected), plural(len(disconnected), "is", "are"))
	default:
		r.Severity = SeverityError
		r.Headline = "Publishing failed on all channels"
	}

	switch {
	case len(disconnected) > 0:
		r.Instruction = fmt.Sprintf("Reconnect %s, then retry the failed %s.", providerList(disconnected), plural(len(failed), "channel", "channels"))
	case hasPermanent:
		r.Instruction = "Edit the post so it meets the platform's requirements, then retry."
	default:
		r.Instruction = "Retry publishing. If it keeps failing, check the provider's status page."
	}

	for _, p := range disconnected {
		r.Actions = append(r.Actions, Action{
			Type:     ActionReconnect,
			Label:    "Reconnect " + p.Label(),
			Provider: p,
			URL:      ReconnectURL(p, brandID),
		})
	}

	retry := Action{Type: ActionRetry, Label: "Retry publishing"}
	if partial {
		retry.Label = "Retry failed channels"
		retry.Channels = failed
	}
	r.Actions = append(r.Actions, retry, Action{Type: ActionEdit, Label: "Edit post"})
	return r, true
}

func channelList(chs []models.Channel) string {
	labels := make([]string, len(chs))
	for i, c := range chs {
		labels[i] = c.Label()
	}
	return joinAnd(labels)
}

func providerList(ps []models.Provider) string {
	labels := make([]string, len(ps))
	for i, p := range ps {
		labels[i] = p.Label()
	}
	return joinAnd(labels)
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
