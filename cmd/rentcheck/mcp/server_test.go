package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/neilberkman/rentcheck/internal/core/analysis"
	"github.com/neilberkman/rentcheck/internal/core/api"
	"github.com/neilberkman/rentcheck/internal/core/history"
	"github.com/neilberkman/rentcheck/internal/core/models"
)

type fixedSession string

func (s fixedSession) ID() (string, error) { return string(s), nil }

type memoryDrafts struct {
	saved   *models.ExtractedData
	chatID  string
	cleared int
}

func (m *memoryDrafts) SaveDraft(data models.ExtractedData) error {
	m.saved = &data
	return nil
}

func (m *memoryDrafts) SaveDraftChatID(chatID string) error {
	m.chatID = chatID
	return nil
}

func (m *memoryDrafts) ClearDraft() error {
	m.saved = nil
	m.chatID = ""
	m.cleared++
	return nil
}

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /extract-data", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"extracted_data": {"description": "Quiet loft", "price_details": {"base_price": "$90"}}}`)
	})
	mux.HandleFunc("POST /analysis", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"job_id": "an-1"}`)
	})
	mux.HandleFunc("GET /analysis/history/{session}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"history": []}`)
	})
	mux.HandleFunc("GET /analysis/an-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "an-1",
			"status":     "COMPLETED",
			"input_data": map[string]any{"address": "4 Mill Lane"},
			"created_at": time.Now().UTC(),
			"final_report": map[string]any{
				"authenticity_score": 91,
				"quality_score":      64,
				"sidebar_summary":    "Likely genuine",
				"explanation":        "The photos match the street.",
			},
			"chat": map[string]any{"id": "chat-1", "messages": []any{}},
		})
	})
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"chat_id": "chat-1", "response": {"role": "assistant", "content": "The deposit is typical."}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newDeps(t *testing.T) (Deps, *memoryDrafts) {
	t.Helper()
	store, err := history.New(nil, "sess", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	o := analysis.New(api.New(backend(t).URL), fixedSession("sess"), store, analysis.Options{PollInterval: time.Hour})
	t.Cleanup(o.Close)
	drafts := &memoryDrafts{}
	return Deps{Orchestrator: o, Drafts: drafts}, drafts
}

func call(t *testing.T, h handler, args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T", result.Content[0])
	}
	return text.Text, result.IsError
}

func TestExtractRejectsShortListing(t *testing.T) {
	deps, drafts := newDeps(t)
	text, isErr := call(t, makeExtractHandler(deps), map[string]any{"text": "too short"})
	if !isErr {
		t.Fatalf("expected error, got %s", text)
	}
	if drafts.saved != nil {
		t.Error("draft saved after failed extraction")
	}
}

func TestToolFlow(t *testing.T) {
	deps, drafts := newDeps(t)
	listing := strings.Repeat("Quiet loft above the bakery, bright and warm. ", 4)

	text, isErr := call(t, makeExtractHandler(deps), map[string]any{"text": listing})
	if isErr {
		t.Fatalf("extract: %s", text)
	}
	if !strings.Contains(text, `"address"`) || drafts.saved == nil {
		t.Errorf("extract result %s, saved %v", text, drafts.saved)
	}

	if text, isErr := call(t, makeUpdateDraftHandler(deps), map[string]any{}); !isErr {
		t.Errorf("empty update accepted: %s", text)
	}
	text, isErr = call(t, makeUpdateDraftHandler(deps), map[string]any{"field": "address", "value": "4 Mill Lane"})
	if isErr {
		t.Fatalf("update: %s", text)
	}
	if drafts.saved == nil || drafts.saved.Address != "4 Mill Lane" {
		t.Errorf("saved draft = %+v", drafts.saved)
	}

	text, isErr = call(t, makeSubmitHandler(deps), nil)
	if isErr {
		t.Fatalf("submit: %s", text)
	}
	var submitted struct {
		AnalysisID string `json:"analysis_id"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal([]byte(text), &submitted); err != nil {
		t.Fatal(err)
	}
	if submitted.AnalysisID != "an-1" || submitted.Status != string(models.StatusPending) {
		t.Errorf("submitted = %+v", submitted)
	}
	if drafts.saved != nil || drafts.cleared == 0 {
		t.Error("draft kept after submit")
	}

	text, isErr = call(t, makeGetAnalysisHandler(deps), map[string]any{"analysis_id": "an-1"})
	if isErr {
		t.Fatalf("get: %s", text)
	}
	for _, want := range []string{"Completed", "91/100 (Excellent)", "64/100 (Good)"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}

	text, isErr = call(t, makeListHistoryHandler(deps), map[string]any{"status": "completed"})
	if isErr {
		t.Fatalf("history: %s", text)
	}
	var listed struct {
		Analyses []AnalysisSummary `json:"analyses"`
	}
	if err := json.Unmarshal([]byte(text), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Analyses) != 1 || listed.Analyses[0].AuthenticityScore == nil || *listed.Analyses[0].AuthenticityScore != 91 {
		t.Errorf("history = %+v", listed.Analyses)
	}

	text, isErr = call(t, makeChatHandler(deps), map[string]any{"analysis_id": "an-1", "message": "Is the deposit normal?"})
	if isErr || text != "The deposit is typical." {
		t.Errorf("chat = %q (error %v)", text, isErr)
	}
}

func TestListHistoryUnknownStatus(t *testing.T) {
	deps, _ := newDeps(t)
	if text, isErr := call(t, makeListHistoryHandler(deps), map[string]any{"status": "sideways"}); !isErr {
		t.Errorf("unknown status accepted: %s", text)
	}
}

func TestChatNeedsCompletedAnalysis(t *testing.T) {
	deps, _ := newDeps(t)
	if text, isErr := call(t, makeChatHandler(deps), map[string]any{"analysis_id": "", "message": "hi"}); !isErr {
		t.Errorf("chat without id accepted: %s", text)
	}
}
