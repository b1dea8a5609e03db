// Package analysis is the client-side state machine of a rental check:
// extract, review, submit, poll to completion, then chat about the report.
package analysis

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/internal/core/api"
	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/history"
	"github.com/neilberkman/rentcheck/internal/core/models"
	"github.com/neilberkman/rentcheck/internal/core/poller"
	"github.com/neilberkman/rentcheck/pkg/logger"
)

// Client is the subset of the analysis service the orchestrator uses.
// *api.Client satisfies it.
type Client interface {
	ExtractData(ctx context.Context, sessionID, text string) (api.ExtractResponse, error)
	SubmitAnalysis(ctx context.Context, sessionID string, data models.ExtractedData) (api.SubmitResponse, error)
	GetAnalysisStatus(ctx context.Context, id, sessionID string) (api.StatusResponse, error)
	GetSessionHistory(ctx context.Context, sessionID string) (api.HistoryResponse, error)
	SendChatMessage(ctx context.Context, chatID, sessionID, text string) (api.ChatResponse, error)
	GetChatMessages(ctx context.Context, chatID, sessionID string) ([]models.ChatMessage, error)
}

// SessionProvider returns the stable session id. *session.Provider satisfies it.
type SessionProvider interface {
	ID() (string, error)
}

// Options tunes the orchestrator. Zero values take the defaults.
type Options struct {
	MinListingLength int
	MaxImages        int
	AddressDebounce  time.Duration
	PollInterval     time.Duration
	PollMaxAttempts  int
	Logger           *logger.Logger
	Now              func() time.Time
}

const (
	DefaultMinListingLength = 100
	DefaultMaxImages        = 3
	DefaultAddressDebounce  = 500 * time.Millisecond
)

// Orchestrator owns the draft, the current analysis and the chat sub-session,
// and is the only writer of the history store. State is guarded by mu;
// network calls are made without holding it.
type Orchestrator struct {
	client   Client
	session  SessionProvider
	history  *history.Store
	poller   *poller.Supervisor
	events   *broadcaster
	logger   *logger.Logger
	now      func() time.Time
	minLen   int
	maxImgs  int
	debounce time.Duration

	mu          sync.Mutex
	draft       *models.ExtractedData
	draftChat   *models.Chat
	address     addressBuffer
	current     string
	submitting  bool
	chatSending map[string]bool
	pollLocks   map[string]*sync.Mutex
	closed      bool
}

// New wires an orchestrator. The history store should already hold the
// persisted list so the first render is instant.
func New(client Client, session SessionProvider, store *history.Store, opts Options) *Orchestrator {
	if opts.MinListingLength <= 0 {
		opts.MinListingLength = DefaultMinListingLength
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = DefaultMaxImages
	}
	if opts.AddressDebounce < 0 {
		opts.AddressDebounce = 0
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	o := &Orchestrator{
		client:      client,
		session:     session,
		history:     store,
		events:      newBroadcaster(),
		logger:      opts.Logger.Named("analysis"),
		now:         opts.Now,
		minLen:      opts.MinListingLength,
		maxImgs:     opts.MaxImages,
		debounce:    opts.AddressDebounce,
		chatSending: make(map[string]bool),
		pollLocks:   make(map[string]*sync.Mutex),
	}
	o.poller = poller.New(o.pollFromLoop, poller.Options{
		Interval:    opts.PollInterval,
		MaxAttempts: opts.PollMaxAttempts,
		OnExhausted: o.pollExhausted,
		Logger:      opts.Logger.Named("poller"),
	})
	return o
}

// Subscribe returns a channel of state changes and a function that ends the
// subscription.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	return o.events.subscribe()
}

// Current returns a copy of the current analysis, or nil.
func (o *Orchestrator) Current() *models.Analysis {
	o.mu.Lock()
	id := o.current
	o.mu.Unlock()

	if id == "" {
		return nil
	}
	a, ok := o.history.Get(id)
	if !ok {
		return nil
	}
	return &a
}

// Draft returns a copy of the draft, or nil when there is none.
func (o *Orchestrator) Draft() *models.ExtractedData {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.draft == nil {
		return nil
	}
	d := o.draft.Clone()
	return &d
}

// History returns the history list, most recent first.
func (o *Orchestrator) History() []models.Analysis {
	return o.history.List()
}

// Get returns a copy of one history entry.
func (o *Orchestrator) Get(id string) (*models.Analysis, bool) {
	a, ok := o.history.Get(id)
	if !ok {
		return nil, false
	}
	return &a, true
}

// SessionID returns the session id requests are made under.
func (o *Orchestrator) SessionID() (string, error) {
	id, err := o.session.ID()
	if err != nil {
		return "", apperr.Wrap("session", err)
	}
	return id, nil
}

// Polling reports whether id is being polled.
func (o *Orchestrator) Polling(id string) bool {
	return o.poller.Active(id)
}

// StopPolling cancels polling of id. A poll already in flight is discarded
// when it returns.
func (o *Orchestrator) StopPolling(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.poller.Stop(id)
}

// PausePolling holds every poll loop until ResumePolling.
func (o *Orchestrator) PausePolling() {
	o.poller.Pause()
}

// ResumePolling releases paused poll loops.
func (o *Orchestrator) ResumePolling() {
	o.poller.Resume()
}

// WatchPauseFile pauses polling while the file at path exists.
func (o *Orchestrator) WatchPauseFile(ctx context.Context, path string) error {
	return o.poller.WatchPauseFile(ctx, path)
}

// Reset discards the draft and clears the current analysis.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.draft = nil
	o.draftChat = nil
	o.address.cancel()
	o.current = ""
	o.mu.Unlock()

	o.publish(Event{Type: EventDraftChanged})
	o.publish(Event{Type: EventCurrentChanged})
}

// Close stops every poll loop and ends all subscriptions.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.address.cancel()
	o.mu.Unlock()

	o.poller.Close()
	o.events.close()
}

func (o *Orchestrator) publish(e Event) {
	if dropped := o.events.publish(e); dropped > 0 {
		o.logger.Debug("event dropped for slow subscribers",
			zap.String("event", string(e.Type)),
			zap.Int("subscribers", dropped),
		)
	}
}

func (o *Orchestrator) saveLocked(a models.Analysis) {
	if err := o.history.Upsert(a); err != nil {
		// The in-memory list is already updated; only the cache write failed
		o.logger.Warn("history not persisted", zap.String("analysis_id", a.ID), zap.Error(err))
	}
}

func snapshot(a models.Analysis) *models.Analysis {
	c := a.Clone()
	return &c
}
