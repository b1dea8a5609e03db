// Package api is the HTTP client for the rental analysis service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/models"
	"github.com/neilberkman/rentcheck/pkg/logger"
	"github.com/neilberkman/rentcheck/pkg/metrics"
)

const maxBody = 1 << 20

// Client talks to the analysis service. Paths are joined under baseURL, which
// carries any version prefix such as /api/v1.
type Client struct {
	baseURL       string
	sessionHeader string
	httpClient    *http.Client
	logger        *logger.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithSessionHeader overrides the header that carries the session id.
func WithSessionHeader(name string) Option {
	return func(c *Client) {
		if name = strings.TrimSpace(name); name != "" {
			c.sessionHeader = name
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		sessionHeader: "session_id",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ExtractData turns free listing text into structured data.
func (c *Client) ExtractData(ctx context.Context, sessionID, text string) (ExtractResponse, error) {
	var out ExtractResponse
	body := extractRequest{SessionID: sessionID, ListingContent: text}
	err := c.do(ctx, "extract", http.MethodPost, "/extract-data", sessionID, body, &out)
	return out, err
}

// SubmitAnalysis starts an analysis of data.
func (c *Client) SubmitAnalysis(ctx context.Context, sessionID string, data models.ExtractedData) (SubmitResponse, error) {
	var out SubmitResponse

	// The request body is the listing itself plus session_id
	encoded, err := json.Marshal(data)
	if err != nil {
		return out, apperr.Wrap("submit", err)
	}
	body := map[string]any{}
	if err := json.Unmarshal(encoded, &body); err != nil {
		return out, apperr.Wrap("submit", err)
	}
	body["session_id"] = sessionID

	if err := c.do(ctx, "submit", http.MethodPost, "/analysis", sessionID, body, &out); err != nil {
		return out, err
	}
	if out.JobID == "" {
		return out, apperr.Server("submit", http.StatusOK, "response did not include a job id")
	}
	return out, nil
}

// GetAnalysisStatus fetches the current state of one analysis.
func (c *Client) GetAnalysisStatus(ctx context.Context, id, sessionID string) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, "poll", http.MethodGet, "/analysis/"+url.PathEscape(id), sessionID, nil, &out)
	if err == nil && out.ID == "" {
		out.ID = id
	}
	return out, err
}

// GetSessionHistory lists every analysis of the session.
func (c *Client) GetSessionHistory(ctx context.Context, sessionID string) (HistoryResponse, error) {
	var out HistoryResponse
	err := c.do(ctx, "history", http.MethodGet, "/analysis/history/"+url.PathEscape(sessionID), sessionID, nil, &out)
	return out, err
}

// SendChatMessage posts a user question and returns the assistant reply.
func (c *Client) SendChatMessage(ctx context.Context, chatID, sessionID, text string) (ChatResponse, error) {
	var out ChatResponse
	body := chatRequest{
		SessionID: sessionID,
		ChatID:    chatID,
		Message:   wireMessage{Role: models.RoleUser, Content: text},
	}
	if err := c.do(ctx, "chat", http.MethodPost, "/chat", sessionID, body, &out); err != nil {
		return out, err
	}
	if out.Response.Role == "" {
		out.Response.Role = models.RoleAssistant
	}
	return out, nil
}

// GetChatMessages fetches the full conversation of a chat.
func (c *Client) GetChatMessages(ctx context.Context, chatID, sessionID string) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	err := c.do(ctx, "chat_messages", http.MethodGet, "/chat/"+url.PathEscape(chatID)+"/messages", sessionID, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path, sessionID string, in, out any) error {
	if c.baseURL == "" {
		return apperr.Validation(op, "api_url is not configured")
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(op, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Wrap(op, fmt.Errorf("build request: %w", err))
	}
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set("accept", "application/json")
	// Set directly so the header keeps its exact name instead of the
	// canonical Session_id form.
	req.Header[c.sessionHeader] = []string{sessionID}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRequest(op, "error", time.Since(start).Seconds())
		c.logger.Debug("request failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
		return apperr.Transport(op, err)
	}
	defer resp.Body.Close()
	metrics.RecordRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		message := errorMessage(raw)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("request rejected",
			zap.String("op", op),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", message),
		)
		if resp.StatusCode == http.StatusNotFound {
			return &apperr.Error{Kind: apperr.KindNotFound, Op: op, Status: resp.StatusCode, Message: message}
		}
		return apperr.Server(op, resp.StatusCode, message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperr.Transport(op, ctxErr)
		}
		return apperr.Server(op, resp.StatusCode, "malformed response: "+err.Error())
	}
	return nil
}

// errorMessage extracts the detail field of an error body. detail is a
// string for handled errors and a list for request validation failures.
func errorMessage(raw []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Detail) == 0 {
		return strings.TrimSpace(string(raw))
	}

	var text string
	if err := json.Unmarshal(parsed.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(parsed.Detail, &items); err == nil && len(items) > 0 {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			loc := make([]string, 0, len(item.Loc))
			for _, l := range item.Loc {
				loc = append(loc, fmt.Sprint(l))
			}
			if len(loc) > 0 {
				parts = append(parts, strings.Join(loc, ".")+": "+item.Msg)
			} else {
				parts = append(parts, item.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}

	return strings.TrimSpace(string(parsed.Detail))
}
