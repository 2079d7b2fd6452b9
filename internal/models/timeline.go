package models

// Step indexes the fixed lifecycle milestones in order.
type Step int

const (
	StepOrderPlaced Step = iota
	StepConfirmed
	StepPreparing
	StepOutForDelivery
	StepDelivered

	stepCount
)

// TimePending is the display time of a step that has not happened yet.
const TimePending = "Pending"

var stepNames = [stepCount]string{
	"Order Placed",
	"Confirmed",
	"Preparing",
	"Out for Delivery",
	"Delivered",
}

func (s Step) String() string {
	if s < 0 || s >= stepCount {
		return "Unknown"
	}
	return stepNames[s]
}

type TimelineStep struct {
	Status    string `bson:"status" json:"status"`
	Time      string `bson:"time" json:"time"`
	Completed bool   `bson:"completed" json:"completed"`
}

// Timeline always holds exactly one entry per Step, in Step order.
type Timeline [stepCount]TimelineStep

// StepFor maps an order status onto its milestone. Cancelled has none.
// Pending maps onto Order Placed, which is completed at creation.
func StepFor(status OrderStatus) (Step, bool) {
	switch status {
	case StatusPending:
		return StepOrderPlaced, true
	case StatusConfirmed:
		return StepConfirmed, true
	case StatusPreparing:
		return StepPreparing, true
	case StatusOutForDelivery:
		return StepOutForDelivery, true
	case StatusDelivered:
		return StepDelivered, true
	}
	return 0, false
}

// Steps lists every milestone in order.
func Steps() []Step {
	out := make([]Step, 0, stepCount)
	for s := StepOrderPlaced; s < stepCount; s++ {
		out = append(out, s)
	}
	return out
}
