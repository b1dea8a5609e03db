package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an analysis.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// ParseStatus maps a backend status string onto the state machine. Older
// backends report IN_PROGRESS as RUNNING.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING", "QUEUED":
		return StatusPending, true
	case "IN_PROGRESS", "RUNNING", "PROCESSING":
		return StatusInProgress, true
	case "COMPLETED", "COMPLETE", "SUCCEEDED":
		return StatusCompleted, true
	case "FAILED", "ERROR":
		return StatusFailed, true
	}
	return "", false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether the analysis still needs polling.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusInProgress
}

// Rank orders statuses along the lifecycle; terminal states share the top rank.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the lifecycle.
// Terminal states are final and a status never moves backwards.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() || next.Rank() < 0 {
		return false
	}
	return next.Rank() > s.Rank()
}

// Label is the human-facing name of a status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In progress"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	}
	return string(s)
}

// Flag is a categorized finding in a final report.
type Flag struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

// FinalReport is the terminal output of a completed analysis.
type FinalReport struct {
	AuthenticityScore int      `json:"authenticity_score"`
	QualityScore      int      `json:"quality_score"`
	Summary           string   `json:"sidebar_summary"`
	Explanation       string   `json:"explanation"`
	SuggestedActions  []string `json:"suggested_actions"`
	Flags             []Flag   `json:"flags"`
}

// Validate checks that scores are within 0-100.
func (r *FinalReport) Validate() error {
	if r.AuthenticityScore < 0 || r.AuthenticityScore > 100 {
		return fmt.Errorf("authenticity_score %d out of range", r.AuthenticityScore)
	}
	if r.QualityScore < 0 || r.QualityScore > 100 {
		return fmt.Errorf("quality_score %d out of range", r.QualityScore)
	}
	return nil
}

// Location is a geocoded position attached to an analysis.
type Location struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
}

// Analysis is one fraud-check run over a listing.
type Analysis struct {
	ID               string        `json:"id"`
	Status           Status        `json:"status"`
	InputData        ExtractedData `json:"input_data"`
	FinalReport      *FinalReport  `json:"final_report,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	Chat             *Chat         `json:"chat,omitempty"`
	ErrorDetail      string        `json:"error_detail,omitempty"`
	Location         *Location     `json:"location,omitempty"`
	IncompleteFields []string      `json:"incomplete_fields,omitempty"`
}

// Validate checks the report and error invariants of the state machine.
func (a *Analysis) Validate() error {
	if a.ID == "" {
		return errors.New("analysis id is required")
	}
	if a.Status.Rank() < 0 {
		return fmt.Errorf("unknown status %q", a.Status)
	}
	if (a.FinalReport != nil) != (a.Status == StatusCompleted) {
		return fmt.Errorf("final report must be present exactly when completed (status %s)", a.Status)
	}
	if (a.ErrorDetail != "") != (a.Status == StatusFailed) {
		return fmt.Errorf("error detail must be present exactly when failed (status %s)", a.Status)
	}
	return nil
}

// CanChat reports whether follow-up questions can be asked about the report.
func (a *Analysis) CanChat() bool {
	return a.Status == StatusCompleted && a.Chat != nil && a.Chat.ID != ""
}

// ChatID returns the chat id, or "" when no chat is attached.
func (a *Analysis) ChatID() string {
	if a.Chat == nil {
		return ""
	}
	return a.Chat.ID
}

// Clone returns a deep copy that can be handed to presentation code.
func (a Analysis) Clone() Analysis {
	out := a
	out.InputData = a.InputData.Clone()
	if a.FinalReport != nil {
		r := *a.FinalReport
		r.SuggestedActions = append([]string(nil), a.FinalReport.SuggestedActions...)
		r.Flags = append([]Flag(nil), a.FinalReport.Flags...)
		out.FinalReport = &r
	}
	if a.Chat != nil {
		c := a.Chat.Clone()
		out.Chat = &c
	}
	if a.Location != nil {
		l := *a.Location
		out.Location = &l
	}
	out.IncompleteFields = append([]string(nil), a.IncompleteFields...)
	return out
}

// Complete moves the analysis to COMPLETED with its report attached.
func (a *Analysis) Complete(report FinalReport) error {
	if !a.Status.CanTransition(StatusCompleted) {
		return fmt.Errorf("cannot complete analysis in status %s", a.Status)
	}
	a.Status = StatusCompleted
	a.FinalReport = &report
	a.ErrorDetail = ""
	return nil
}

// Fail moves the analysis to FAILED with the given detail.
func (a *Analysis) Fail(detail string) error {
	if !a.Status.CanTransition(StatusFailed) {
		return fmt.Errorf("cannot fail analysis in status %s", a.Status)
	}
	if strings.TrimSpace(detail) == "" {
		detail = "analysis failed"
	}
	a.Status = StatusFailed
	a.FinalReport = nil
	a.ErrorDetail = detail
	return nil
}

// Advance moves a non-terminal analysis forward to another non-terminal status.
func (a *Analysis) Advance(next Status) error {
	if next.IsTerminal() {
		return fmt.Errorf("use Complete or Fail to reach %s", next)
	}
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("cannot move analysis from %s to %s", a.Status, next)
	}
	a.Status = next
	return nil
}
