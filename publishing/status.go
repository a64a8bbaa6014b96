package publishing

import "github.com/drewmudry/cadence-api/models"

// DispatchableStatuses are the draft states runDue will pick up.
var DispatchableStatuses = []models.DraftStatus{
	models.DraftStatusDraft,
	models.DraftStatusScheduled,
	models.DraftStatusPartiallyPublished,
}

// Fold derives a draft's status from all of its job statuses. It is
// recomputed after every pass and never patched incrementally.
func Fold(statuses []models.PostJobStatus) models.DraftStatus {
	if len(statuses) == 0 {
		return models.DraftStatusFailed
	}

	var succeeded, failed int
	for _, s := range statuses {
		switch s {
		case models.PostJobStatusPending:
			return models.DraftStatusScheduled
		case models.PostJobStatusSuccess:
			succeeded++
		default:
			failed++
		}
	}

	switch {
	case failed == 0:
		return models.DraftStatusPublished
	case succeeded == 0:
		return models.DraftStatusFailed
	default:
		return models.DraftStatusPartiallyPublished
	}
}

// FoldJobs is Fold over the statuses of jobs.
func FoldJobs(jobs []models.PostJob) models.DraftStatus {
	statuses := make([]models.PostJobStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = j.Status
	}
	return Fold(statuses)
}

func CanDispatch(s models.DraftStatus) bool {
	for _, d := range DispatchableStatuses {
		if s == d {
			return true
		}
	}
	return false
}

// NeedsRemediation reports whether a status gets a user-facing explanation.
func NeedsRemediation(s models.DraftStatus) bool {
	return s == models.DraftStatusFailed || s == models.DraftStatusPartiallyPublished
}
