package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/neilberkman/rentcheck/internal/core/models"
)

// ExtractResponse is the structured listing returned by POST /extract-data.
type ExtractResponse struct {
	Data   models.ExtractedData `json:"extracted_data"`
	ChatID string               `json:"chat_id,omitempty"`
}

// SubmitResponse identifies the analysis job created by POST /analysis.
type SubmitResponse struct {
	JobID string
}

// UnmarshalJSON accepts job_id or the older check_id.
func (r *SubmitResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		JobID   string `json:"job_id"`
		CheckID string `json:"check_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.JobID = raw.JobID
	if r.JobID == "" {
		r.JobID = raw.CheckID
	}
	return nil
}

// StatusResponse is one analysis as reported by the backend.
type StatusResponse struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"`
	InputData   models.ExtractedData `json:"input_data"`
	FinalReport *models.FinalReport  `json:"final_report,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Chat        *models.Chat         `json:"chat,omitempty"`
	ChatID      string               `json:"chat_id,omitempty"`
	ErrorDetail string               `json:"error_detail,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// ParsedStatus maps the raw status onto the state machine.
func (r StatusResponse) ParsedStatus() (models.Status, bool) {
	return models.ParseStatus(r.Status)
}

// Detail returns the failure reason reported by the backend, if any.
func (r StatusResponse) Detail() string {
	if d := strings.TrimSpace(r.ErrorDetail); d != "" {
		return d
	}
	return strings.TrimSpace(r.Error)
}

// ChatRef returns the attached chat, building one from chat_id when the
// backend only sends the id.
func (r StatusResponse) ChatRef() *models.Chat {
	if r.Chat != nil && r.Chat.ID != "" {
		c := r.Chat.Clone()
		return &c
	}
	if r.ChatID != "" {
		return &models.Chat{ID: r.ChatID}
	}
	return nil
}

// ToAnalysis converts a backend record into a validated Analysis. Records
// that cannot satisfy the state machine invariants are marked FAILED.
func (r StatusResponse) ToAnalysis() models.Analysis {
	a := models.Analysis{
		ID:        r.ID,
		Status:    models.StatusPending,
		InputData: r.InputData,
		CreatedAt: r.CreatedAt,
		Chat:      r.ChatRef(),
	}
	status, ok := r.ParsedStatus()
	switch {
	case !ok:
		a.Status = models.StatusFailed
		a.ErrorDetail = "unknown status " + r.Status
	case status == models.StatusCompleted && r.FinalReport == nil:
		a.Status = models.StatusFailed
		a.ErrorDetail = "completed without final report"
	case status == models.StatusCompleted:
		report := *r.FinalReport
		a.Status = status
		a.FinalReport = &report
	case status == models.StatusFailed:
		a.Status = status
		a.ErrorDetail = r.Detail()
		if a.ErrorDetail == "" {
			a.ErrorDetail = "analysis failed"
		}
	default:
		a.Status = status
	}
	return a
}

// HistoryResponse lists the analyses of a session.
type HistoryResponse struct {
	History []StatusResponse `json:"history"`
}

// ChatResponse carries the assistant reply to a chat message.
type ChatResponse struct {
	ChatID   string             `json:"chat_id"`
	Response models.ChatMessage `json:"response"`
}

type extractRequest struct {
	SessionID      string `json:"session_id"`
	ListingContent string `json:"listing_content"`
}

type chatRequest struct {
	SessionID string      `json:"session_id"`
	ChatID    string      `json:"chat_id"`
	Message   wireMessage `json:"message"`
}

type wireMessage struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}
