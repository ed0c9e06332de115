package automation

import (
	"fmt"
	"strings"
)

type State int

const (
	NotStarted State = iota
	Navigated
	FormLocated
	FormFilled
	ImageUploaded
	PaymentOrReview
	Done
	Error
)

var stateNames = map[State]string{
	NotStarted:      "NotStarted",
	Navigated:       "Navigated",
	FormLocated:     "FormLocated",
	FormFilled:      "FormFilled",
	ImageUploaded:   "ImageUploaded",
	PaymentOrReview: "PaymentOrReview",
	Done:            "Done",
	Error:           "Error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names MarshalText writes.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
)

// StepResult is the outcome of one driver step. Skipped steps carry the
// Error state and the reason.
type StepResult struct {
	Step   string     `json:"step"`
	State  State      `json:"state"`
	Status StepStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
	Err    error      `json:"-"`

	// Screenshot is the page capture taken when the step failed.
	Screenshot string `json:"screenshot,omitempty"`
}

// Report collects the steps of one driver run.
type Report struct {
	Site    string       `json:"site"`
	Steps   []StepResult `json:"steps"`
	Reached State        `json:"reached"`
}

func newReport(site string) *Report {
	return &Report{Site: site, Steps: []StepResult{}, Reached: NotStarted}
}

func (r *Report) ok(step string, state State) {
	r.Steps = append(r.Steps, StepResult{Step: step, State: state, Status: StepOK})
	if state > r.Reached && state < Done {
		r.Reached = state
	}
}

func (r *Report) skip(step string, err error) *StepResult {
	r.Steps = append(r.Steps, StepResult{
		Step:   step,
		State:  Error,
		Status: StepSkipped,
		Reason: err.Error(),
		Err:    err,
	})
	return &r.Steps[len(r.Steps)-1]
}

func (r *Report) finish() *Report {
	if r.Reached == PaymentOrReview {
		r.Reached = Done
	}
	return r
}

// Counts returns the number of ok and skipped steps.
func (r *Report) Counts() (ok, skipped int) {
	for _, s := range r.Steps {
		if s.Status == StepOK {
			ok++
		} else {
			skipped++
		}
	}
	return ok, skipped
}

// Skipped returns the names of the skipped steps in order.
func (r *Report) Skipped() []string {
	var names []string
	for _, s := range r.Steps {
		if s.Status == StepSkipped {
			names = append(names, s.Step)
		}
	}
	return names
}

// Step returns the result recorded for the named step.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepResult{}, false
}

func (r *Report) Summary() string {
	ok, skipped := r.Counts()
	summary := fmt.Sprintf("%s: %d ok, %d skipped, reached %s", r.Site, ok, skipped, r.Reached)
	if skipped > 0 {
		summary += " (skipped: " + strings.Join(r.Skipped(), ", ") + ")"
	}
	return summary
}
