package orders

import (
	"time"

	"bakery/internal/models"
)

const (
	displayLayout   = "03:04 PM"
	estimateSuffix  = " (Est.)"
	defaultEstimate = 45 * time.Minute
)

// displayTime renders t as a wall-clock time in loc.
func displayTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(displayLayout)
}

// newTimeline builds the five-step timeline of a freshly placed order. The
// Delivered step carries the estimated delivery time until it happens.
func newTimeline(now time.Time, confirmed bool, eta time.Time, loc *time.Location) models.Timeline {
	var tl models.Timeline
	for _, step := range models.Steps() {
		tl[step] = models.TimelineStep{Status: step.String(), Time: models.TimePending}
	}

	tl[models.StepOrderPlaced].Time = displayTime(now, loc)
	tl[models.StepOrderPlaced].Completed = true
	if confirmed {
		tl[models.StepConfirmed].Time = displayTime(now, loc)
		tl[models.StepConfirmed].Completed = true
	}
	tl[models.StepDelivered].Time = displayTime(eta, loc) + estimateSuffix
	return tl
}

// advance applies monotonic catch-up for status: every step up to and
// including the status's step is completed, and that step is stamped with now
// unless it was already completed. Completed steps are never reverted.
func advance(tl models.Timeline, status models.OrderStatus, now time.Time, loc *time.Location) models.Timeline {
	target, ok := models.StepFor(status)
	if !ok {
		return tl
	}
	if !tl[target].Completed {
		tl[target].Time = displayTime(now, loc)
	}
	for _, step := range models.Steps() {
		if step > target {
			break
		}
		tl[step].Completed = true
	}
	return tl
}
