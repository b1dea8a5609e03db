package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neilberkman/rentcheck/internal/core/api"
	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/history"
	"github.com/neilberkman/rentcheck/internal/core/models"
)

type fakeClient struct {
	mu sync.Mutex

	extract   func(text string) (api.ExtractResponse, error)
	submit    func(data models.ExtractedData) (api.SubmitResponse, error)
	status    func(ctx context.Context, id string) (api.StatusResponse, error)
	history   func() (api.HistoryResponse, error)
	chat      func(ctx context.Context, chatID, text string) (api.ChatResponse, error)
	chatMsgs  func(chatID string) ([]models.ChatMessage, error)
	calls     map[string]int
	submitted []models.ExtractedData
}

func newFakeClient() *fakeClient {
	return &fakeClient{calls: make(map[string]int)}
}

func (f *fakeClient) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeClient) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClient) ExtractData(_ context.Context, _ string, text string) (api.ExtractResponse, error) {
	f.count("extract")
	if f.extract == nil {
		return api.ExtractResponse{}, nil
	}
	return f.extract(text)
}

func (f *fakeClient) SubmitAnalysis(_ context.Context, _ string, data models.ExtractedData) (api.SubmitResponse, error) {
	f.count("submit")
	f.mu.Lock()
	f.submitted = append(f.submitted, data)
	f.mu.Unlock()
	if f.submit == nil {
		return api.SubmitResponse{JobID: "job-1"}, nil
	}
	return f.submit(data)
}

func (f *fakeClient) GetAnalysisStatus(ctx context.Context, id, _ string) (api.StatusResponse, error) {
	f.count("status")
	if f.status == nil {
		return api.StatusResponse{ID: id, Status: "PENDING"}, nil
	}
	return f.status(ctx, id)
}

func (f *fakeClient) GetSessionHistory(context.Context, string) (api.HistoryResponse, error) {
	f.count("history")
	if f.history == nil {
		return api.HistoryResponse{}, nil
	}
	return f.history()
}

func (f *fakeClient) SendChatMessage(ctx context.Context, chatID, _ string, text string) (api.ChatResponse, error) {
	f.count("chat")
	if f.chat == nil {
		return api.ChatResponse{ChatID: chatID, Response: models.ChatMessage{Role: models.RoleAssistant, Content: "ok"}}, nil
	}
	return f.chat(ctx, chatID, text)
}

func (f *fakeClient) GetChatMessages(_ context.Context, chatID, _ string) ([]models.ChatMessage, error) {
	f.count("chat_messages")
	if f.chatMsgs == nil {
		return nil, nil
	}
	return f.chatMsgs(chatID)
}

type staticSession string

func (s staticSession) ID() (string, error) { return string(s), nil }

func newTestOrchestrator(t *testing.T, client Client, opts Options) *Orchestrator {
	t.Helper()
	store, err := history.New(nil, "sess", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	o := New(client, staticSession("sess"), store, opts)
	t.Cleanup(o.Close)
	return o
}

func longListing() string {
	return strings.Repeat("Sunny two bedroom flat close to the beach. ", 5)
}

func completedStatus(id string) api.StatusResponse {
	return api.StatusResponse{
		ID:     id,
		Status: "COMPLETED",
		FinalReport: &models.FinalReport{
			AuthenticityScore: 85,
			QualityScore:      70,
			Summary:           "Looks legitimate",
			Explanation:       "The host has a long review history.",
		},
		Chat: &models.Chat{ID: "chat-" + id},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestExtractRejectsShortTextWithoutRequest(t *testing.T) {
	client := newFakeClient()
	o := newTestOrchestrator(t, client, Options{})

	_, err := o.Extract(context.Background(), "   too short   ")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if client.Calls("extract") != 0 {
		t.Error("extraction request made for short text")
	}
	if o.Draft() != nil {
		t.Error("draft created on failure")
	}
}

func TestExtractSanitizesImages(t *testing.T) {
	client := newFakeClient()
	client.extract = func(text string) (api.ExtractResponse, error) {
		if strings.Contains(text, "  ") {
			t.Errorf("text not normalized: %q", text)
		}
		return api.ExtractResponse{
			Data: models.ExtractedData{
				Address: "1 Beach Rd",
				ImageURLs: []string{
					"https://img.example.com/1.jpg",
					"not a url",
					"https://img.example.com/1.jpg",
					"https://img.example.com/2.jpg",
					"https://img.example.com/3.jpg",
					"https://img.example.com/4.jpg",
				},
			},
			ChatID: "c1",
		}, nil
	}
	o := newTestOrchestrator(t, client, Options{})

	data, err := o.Extract(context.Background(), longListing())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://img.example.com/1.jpg", "https://img.example.com/2.jpg", "https://img.example.com/3.jpg"}
	if len(data.ImageURLs) != len(want) {
		t.Fatalf("images = %v", data.ImageURLs)
	}
	for i := range want {
		if data.ImageURLs[i] != want[i] {
			t.Errorf("image %d = %s, want %s", i, data.ImageURLs[i], want[i])
		}
	}
}

func TestExtractFailureKeepsPreviousDraft(t *testing.T) {
	client := newFakeClient()
	o := newTestOrchestrator(t, client, Options{})
	if err := o.LoadDraft(models.ExtractedData{Address: "old"}); err != nil {
		t.Fatal(err)
	}

	client.extract = func(string) (api.ExtractResponse, error) {
		return api.ExtractResponse{}, apperr.Server("extract", 500, "boom")
	}
	_, err := o.Extract(context.Background(), longListing())
	if !apperr.Is(err, apperr.KindServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if d := o.Draft(); d == nil || d.Address != "old" {
		t.Errorf("draft = %+v", d)
	}
}

func TestImageEdits(t *testing.T) {
	o := newTestOrchestrator(t, newFakeClient(), Options{MaxImages: 2})
	if err := o.LoadDraft(models.ExtractedData{Address: "1 Beach Rd"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"first", "https://img.example.com/a.jpg", false},
		{"invalid", "ftp://img.example.com/a.jpg", true},
		{"duplicate", "https://img.example.com/a.jpg", true},
		{"second", "https://img.example.com/b.jpg", false},
		{"over limit", "https://img.example.com/c.jpg", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(o.Draft().ImageURLs)
			err := o.AddImageURL(tt.url)
			if tt.wantErr {
				if !apperr.Is(err, apperr.KindValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if after := len(o.Draft().ImageURLs); after != before {
					t.Errorf("rejected add changed images: %d -> %d", before, after)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
		})
	}

	if err := o.RemoveImageURL("https://img.example.com/a.jpg"); err != nil {
		t.Fatal(err)
	}
	if got := o.Draft().ImageURLs; len(got) != 1 || got[0] != "https://img.example.com/b.jpg" {
		t.Errorf("images after remove = %v", got)
	}
	if err := o.RemoveImageURL("https://img.example.com/a.jpg"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("removing absent image: %v", err)
	}
	if err := o.UpdateDraft("image_urls", []string{}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("image_urls through UpdateDraft: %v", err)
	}
}

func TestUpdateDraft(t *testing.T) {
	o := newTestOrchestrator(t, newFakeClient(), Options{})
	if err := o.UpdateDraft("address", "x"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("edit without draft: %v", err)
	}
	if err := o.LoadDraft(models.ExtractedData{}); err != nil {
		t.Fatal(err)
	}
	if err := o.UpdateDraft("price_details.base_price", "$120"); err != nil {
		t.Fatal(err)
	}
	if err := o.UpdateDraft("host_name", "Ana"); err != nil {
		t.Fatal(err)
	}
	d := o.Draft()
	if d.PriceDetails == nil || d.PriceDetails.BasePrice != "$120" || d.HostName != "Ana" {
		t.Errorf("draft = %+v", d)
	}
	if err := o.UpdateDraft("no_such_field", "x"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("unknown field: %v", err)
	}
}

func TestTypeAddressDebounce(t *testing.T) {
	o := newTestOrchestrator(t, newFakeClient(), Options{AddressDebounce: 30 * time.Millisecond})
	if err := o.LoadDraft(models.ExtractedData{}); err != nil {
		t.Fatal(err)
	}

	for _, s := range []string{"1", "1 Be", "1 Beach Rd"} {
		if err := o.TypeAddress(s); err != nil {
			t.Fatal(err)
		}
	}
	if got := o.Draft().Address; got != "" {
		t.Errorf("address committed before debounce: %q", got)
	}
	waitFor(t, "address commit", func() bool { return o.Draft().Address == "1 Beach Rd" })

	// FlushAddress commits without waiting
	if err := o.TypeAddress("2 Hill St"); err != nil {
		t.Fatal(err)
	}
	o.FlushAddress()
	if got := o.Draft().Address; got != "2 Hill St" {
		t.Errorf("flushed address = %q", got)
	}
}

func TestSubmitRequiresEssentialField(t *testing.T) {
	client := newFakeClient()
	o := newTestOrchestrator(t, client, Options{})

	if _, err := o.Submit(context.Background()); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("submit without draft: %v", err)
	}
	if err := o.LoadDraft(models.ExtractedData{HostName: "Ana"}); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Submit(context.Background()); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("submit without essentials: %v", err)
	}
	if client.Calls("submit") != 0 {
		t.Error("submit request made for invalid draft")
	}
}

func TestSubmitCreatesPendingAnalysis(t *testing.T) {
	client := newFakeClient()
	o := newTestOrchestrator(t, client, Options{})
	events, cancel := o.Subscribe()
	defer cancel()

	if err := o.LoadDraft(models.ExtractedData{Address: "1 Beach Rd"}); err != nil {
		t.Fatal(err)
	}
	a, err := o.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "job-1" || a.Status != models.StatusPending {
		t.Errorf("analysis = %+v", a)
	}
	if len(a.IncompleteFields) != 2 {
		t.Errorf("incomplete fields = %v", a.IncompleteFields)
	}
	if o.Draft() != nil {
		t.Error("draft kept after submit")
	}
	if cur := o.Current(); cur == nil || cur.ID != "job-1" {
		t.Errorf("current = %+v", cur)
	}
	if !o.Polling("job-1") {
		t.Error("not polling after submit")
	}
	if h := o.History(); len(h) != 1 || h[0].ID != "job-1" {
		t.Errorf("history = %+v", h)
	}

	seen := map[EventType]bool{}
	for len(events) > 0 {
		e := <-events
		seen[e.Type] = true
	}
	for _, want := range []EventType{EventDraftChanged, EventCurrentChanged, EventAnalysisUpdated, EventHistoryChanged} {
		if !seen[want] {
			t.Errorf("missing event %s", want)
		}
	}
}

func TestSubmitFailureCreatesNothing(t *testing.T) {
	client := newFakeClient()
	client.submit = func(models.ExtractedData) (api.SubmitResponse, error) {
		return api.SubmitResponse{}, apperr.Server("submit", 503, "Worker service unavailable.")
	}
	o := newTestOrchestrator(t, client, Options{})
	if err := o.LoadDraft(models.ExtractedData{Description: "cosy"}); err != nil {
		t.Fatal(err)
	}

	if _, err := o.Submit(context.Background()); !apperr.Is(err, apperr.KindServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if len(o.History()) != 0 || o.Current() != nil {
		t.Error("analysis created on failed submit")
	}
	if o.Draft() == nil {
		t.Error("draft discarded on failed submit")
	}
}

func TestSubmitFlushesBufferedAddress(t *testing.T) {
	client := newFakeClient()
	o := newTestOrchestrator(t, client, Options{AddressDebounce: time.Hour})
	if err := o.LoadDraft(models.ExtractedData{}); err != nil {
		t.Fatal(err)
	}
	if err := o.TypeAddress("9 Pier Ln"); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := client.submitted[0].Address; got != "9 Pier Ln" {
		t.Errorf("submitted address = %q", got)
	}
}

func submitOne(t *testing.T, o *Orchestrator) *models.Analysis {
	t.Helper()
	if err := o.LoadDraft(models.ExtractedData{Address: "1 Beach Rd"}); err != nil {
		t.Fatal(err)
	}
	a, err := o.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestPollOnceTransitions(t *testing.T) {
	client := newFakeClient()
	var next atomic.Value
	next.Store("RUNNING")
	client.status = func(_ context.Context, id string) (api.StatusResponse, error) {
		s := next.Load().(string)
		if s == "COMPLETED" {
			return completedStatus(id), nil
		}
		return api.StatusResponse{ID: id, Status: s}, nil
	}
	o := newTestOrchestrator(t, client, Options{})
	a := submitOne(t, o)

	got, err := o.PollOnce(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusInProgress {
		t.Errorf("RUNNING applied as %s", got.Status)
	}

	// A backwards report is ignored
	next.Store("PENDING")
	got, _ = o.PollOnce(context.Background(), a.ID)
	if got.Status != models.StatusInProgress {
		t.Errorf("regressed to %s", got.Status)
	}

	next.Store("COMPLETED")
	got, err = o.PollOnce(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCompleted || got.FinalReport == nil {
		t.Fatalf("analysis = %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Error(err)
	}
	if o.Polling(a.ID) {
		t.Error("still polling after completion")
	}
	if n := client.Calls("history"); n != 1 {
		t.Errorf("history refreshed %d times, want 1", n)
	}

	// Terminal analyses are not polled again
	next.Store("FAILED")
	before := client.Calls("status")
	got, _ = o.PollOnce(context.Background(), a.ID)
	if got.Status != models.StatusCompleted || client.Calls("status") != before {
		t.Error("terminal analysis polled again")
	}
	if n := client.Calls("history"); n != 1 {
		t.Errorf("history refreshed %d times, want 1", n)
	}
}

func TestPollErrorFailsAnalysis(t *testing.T) {
	client := newFakeClient()
	client.status = func(context.Context, string) (api.StatusResponse, error) {
		return api.StatusResponse{}, apperr.Server("poll", 500, "internal")
	}
	o := newTestOrchestrator(t, client, Options{})
	a := submitOne(t, o)

	got, err := o.PollOnce(context.Background(), a.ID)
	if !apperr.Is(err, apperr.KindServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if got.Status != models.StatusFailed || got.ErrorDetail == "" {
		t.Errorf("analysis = %+v", got)
	}
	if o.Polling(a.ID) {
		t.Error("still polling after failure")
	}
}

func TestStoppedPollIsDiscarded(t *testing.T) {
	client := newFakeClient()
	started := make(chan struct{})
	release := make(chan struct{})
	client.status = func(_ context.Context, id string) (api.StatusResponse, error) {
		close(started)
		<-release
		return completedStatus(id), nil
	}
	o := newTestOrchestrator(t, client, Options{})
	a := submitOne(t, o)
	o.StopPolling(a.ID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.PollOnce(ctx, a.ID)
		done <- err
	}()

	<-started
	cancel()
	close(release)
	if err := <-done; err == nil {
		t.Error("expected discarded poll to report an error")
	}

	got, _ := o.Get(a.ID)
	if got.Status != models.StatusPending {
		t.Errorf("late result applied: %s", got.Status)
	}
}

func TestPollLoopCompletes(t *testing.T) {
	client := newFakeClient()
	var polls atomic.Int32
	client.status = func(_ context.Context, id string) (api.StatusResponse, error) {
		if polls.Add(1) < 3 {
			return api.StatusResponse{ID: id, Status: "PROCESSING"}, nil
		}
		return completedStatus(id), nil
	}
	o := newTestOrchestrator(t, client, Options{PollInterval: 5 * time.Millisecond})
	a := submitOne(t, o)

	waitFor(t, "completion", func() bool {
		got, _ := o.Get(a.ID)
		return got.Status == models.StatusCompleted
	})
	waitFor(t, "poll loop exit", func() bool { return !o.Polling(a.ID) })
	waitFor(t, "history refresh", func() bool { return client.Calls("history") == 1 })
}

func TestPollLoopExhaustedTimesOut(t *testing.T) {
	client := newFakeClient()
	client.status = func(_ context.Context, id string) (api.StatusResponse, error) {
		return api.StatusResponse{ID: id, Status: "PENDING"}, nil
	}
	o := newTestOrchestrator(t, client, Options{PollInterval: 2 * time.Millisecond, PollMaxAttempts: 3})
	events, cancel := o.Subscribe()
	defer cancel()

	a := submitOne(t, o)
	waitFor(t, "timeout", func() bool {
		got, _ := o.Get(a.ID)
		return got.Status == models.StatusFailed
	})
	if n := client.Calls("status"); n != 3 {
		t.Errorf("status checks = %d, want 3", n)
	}

	var timeoutSeen bool
	deadline := time.After(time.Second)
	for !timeoutSeen {
		select {
		case e := <-events:
			if e.Type == EventAnalysisUpdated && apperr.Is(e.Err, apperr.KindTimeout) {
				timeoutSeen = true
			}
		case <-deadline:
			t.Fatal("no timeout event")
		}
	}
}

func TestLoadHistoryReconciles(t *testing.T) {
	client := newFakeClient()
	o := newTestOrchestrator(t, client, Options{})
	a := submitOne(t, o)

	client.history = func() (api.HistoryResponse, error) {
		old := api.StatusResponse{ID: "old", Status: "FAILED", ErrorDetail: "bad input", CreatedAt: time.Now().Add(-time.Hour)}
		return api.HistoryResponse{History: []api.StatusResponse{completedStatus(a.ID), old}}, nil
	}
	list, err := o.LoadHistory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("history = %+v", list)
	}
	got, _ := o.Get(a.ID)
	if got.Status != models.StatusCompleted {
		t.Errorf("server terminal state not taken: %s", got.Status)
	}
	if o.Polling(a.ID) {
		t.Error("terminal analysis still polled")
	}

	client.history = func() (api.HistoryResponse, error) {
		return api.HistoryResponse{}, errors.New("offline")
	}
	list, err = o.LoadHistory(context.Background())
	if err == nil || len(list) != 2 {
		t.Errorf("offline reload: %d entries, err %v", len(list), err)
	}
}

func TestOpenSeedsExplanation(t *testing.T) {
	client := newFakeClient()
	client.status = func(_ context.Context, id string) (api.StatusResponse, error) {
		return completedStatus(id), nil
	}
	o := newTestOrchestrator(t, client, Options{})

	a, err := o.Open(context.Background(), "remote-1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Chat == nil || len(a.Chat.Messages) != 1 {
		t.Fatalf("chat = %+v", a.Chat)
	}
	if m := a.Chat.Messages[0]; m.Role != models.RoleAssistant || m.Content != "The host has a long review history." {
		t.Errorf("seed = %+v", m)
	}

	// Opening again does not seed twice or refetch
	before := client.Calls("status")
	a, _ = o.Open(context.Background(), "remote-1")
	if len(a.Chat.Messages) != 1 || client.Calls("status") != before {
		t.Errorf("reopen: %d messages, %d status calls", len(a.Chat.Messages), client.Calls("status")-before)
	}
	if cur := o.Current(); cur == nil || cur.ID != "remote-1" {
		t.Errorf("current = %+v", cur)
	}
}

func TestOpenUnknownFails(t *testing.T) {
	client := newFakeClient()
	client.status = func(context.Context, string) (api.StatusResponse, error) {
		return api.StatusResponse{}, apperr.NotFound("poll", "Analysis not found.")
	}
	o := newTestOrchestrator(t, client, Options{})
	if _, err := o.Open(context.Background(), "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if o.Current() != nil {
		t.Error("current set for unknown analysis")
	}
}

func TestRerunAndRemove(t *testing.T) {
	client := newFakeClient()
	client.status = func(_ context.Context, id string) (api.StatusResponse, error) {
		return completedStatus(id), nil
	}
	o := newTestOrchestrator(t, client, Options{})
	a := submitOne(t, o)

	if _, err := o.Rerun(a.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("rerun of pending analysis: %v", err)
	}
	if _, err := o.PollOnce(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
	draft, err := o.Rerun(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if draft.Address != "1 Beach Rd" {
		t.Errorf("rerun draft = %+v", draft)
	}

	if err := o.Remove(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := o.Get(a.ID); ok || o.Current() != nil {
		t.Error("analysis still present after remove")
	}
	if err := o.Remove(a.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("second remove: %v", err)
	}
}

func TestAttachLocation(t *testing.T) {
	o := newTestOrchestrator(t, newFakeClient(), Options{})
	a := submitOne(t, o)

	if err := o.AttachLocation(a.ID, models.Location{Latitude: 91}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("out of range: %v", err)
	}
	if err := o.AttachLocation(a.ID, models.Location{Latitude: 38.7, Longitude: -9.1}); err != nil {
		t.Fatal(err)
	}
	got, _ := o.Get(a.ID)
	if got.Location == nil || got.Location.Latitude != 38.7 {
		t.Errorf("location = %+v", got.Location)
	}
}

func TestReset(t *testing.T) {
	o := newTestOrchestrator(t, newFakeClient(), Options{})
	if err := o.LoadDraft(models.ExtractedData{Address: "9 Quay Rd"}); err != nil {
		t.Fatal(err)
	}
	events, unsubscribe := o.Subscribe()
	defer unsubscribe()

	o.Reset()
	if o.Draft() != nil || o.Current() != nil {
		t.Errorf("draft=%v current=%v after reset", o.Draft(), o.Current())
	}
	if e := <-events; e.Type != EventDraftChanged {
		t.Errorf("first event = %s", e.Type)
	}
}

func TestLoadHistorySkipsUnknownStatus(t *testing.T) {
	client := newFakeClient()
	o := newTestOrchestrator(t, client, Options{})
	a := submitOne(t, o)

	client.history = func() (api.HistoryResponse, error) {
		return api.HistoryResponse{History: []api.StatusResponse{
			{ID: a.ID, Status: "ARCHIVED"},
			{ID: "other", Status: "ON_HOLD"},
		}}, nil
	}
	list, err := o.LoadHistory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("history = %+v", list)
	}
	got, _ := o.Get(a.ID)
	if got.Status != models.StatusPending || got.ErrorDetail != "" {
		t.Errorf("local entry changed to %s (%q)", got.Status, got.ErrorDetail)
	}
	if !o.Polling(a.ID) {
		t.Error("polling stopped")
	}
}

func TestDraftChatSurvivesReload(t *testing.T) {
	client := newFakeClient()
	client.extract = func(string) (api.ExtractResponse, error) {
		return api.ExtractResponse{Data: models.ExtractedData{Address: "5 Pier Rd"}, ChatID: "chat-x"}, nil
	}
	first := newTestOrchestrator(t, client, Options{})
	draft, err := first.Extract(context.Background(), longListing())
	if err != nil {
		t.Fatal(err)
	}
	chatID := first.DraftChatID()
	if chatID != "chat-x" {
		t.Fatalf("DraftChatID = %q", chatID)
	}

	// A later run restores what the first one saved
	second := newTestOrchestrator(t, client, Options{})
	if err := second.LoadDraftWithChat(draft, chatID); err != nil {
		t.Fatal(err)
	}
	a, err := second.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a.ChatID() != "chat-x" {
		t.Errorf("submitted chat = %+v", a.Chat)
	}
	if second.DraftChatID() != "" {
		t.Error("chat id kept after the draft was submitted")
	}
}
