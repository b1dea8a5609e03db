// Package poller drives one status-polling loop per analysis.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/pkg/logger"
	"github.com/neilberkman/rentcheck/pkg/metrics"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 200
)

// PollFunc performs one status check. It returns true once the analysis has
// reached a terminal state and polling should end. ctx is cancelled when the
// loop is stopped, so late results can be recognised and discarded.
type PollFunc func(ctx context.Context, id string) (done bool)

// ExhaustedFunc is called when an id reaches the attempt ceiling without
// finishing.
type ExhaustedFunc func(id string, attempts int)

// Options configures a Supervisor.
type Options struct {
	Interval    time.Duration
	MaxAttempts int // 0 polls until stopped
	OnExhausted ExhaustedFunc
	Logger      *logger.Logger
}

// Supervisor owns the poll loops. Each id has at most one loop, and each
// loop calls PollFunc synchronously, so there is never more than one
// in-flight status request per id.
type Supervisor struct {
	poll        PollFunc
	interval    time.Duration
	maxAttempts int
	onExhausted ExhaustedFunc
	logger      *logger.Logger

	mu      sync.Mutex
	loops   map[string]*loop
	paused  bool
	resume  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

type loop struct {
	cancel context.CancelFunc
}

// New creates a Supervisor that calls poll for every active id.
func New(poll PollFunc, opts Options) *Supervisor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	resume := make(chan struct{})
	close(resume)
	return &Supervisor{
		poll:        poll,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		onExhausted: opts.OnExhausted,
		logger:      opts.Logger,
		loops:       make(map[string]*loop),
		resume:      resume,
	}
}

// Start begins polling id. It returns false, and does nothing, when id is
// already being polled or the supervisor has been closed.
func (s *Supervisor) Start(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if _, ok := s.loops[id]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel}
	s.loops[id] = l
	metrics.PollStarted()

	s.wg.Add(1)
	go s.run(ctx, id, l)
	s.logger.Debug("polling started", zap.String("analysis_id", id))
	return true
}

// Stop cancels the pending tick and any in-flight poll for id. Stopping an
// id that is not being polled is a no-op.
func (s *Supervisor) Stop(id string) {
	s.mu.Lock()
	l, ok := s.loops[id]
	if ok {
		delete(s.loops, id)
	}
	s.mu.Unlock()

	if ok {
		l.cancel()
		metrics.PollStopped()
		s.logger.Debug("polling stopped", zap.String("analysis_id", id))
	}
}

// Active reports whether id is being polled.
func (s *Supervisor) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[id]
	return ok
}

// ActiveIDs lists the ids being polled.
func (s *Supervisor) ActiveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.loops))
	for id := range s.loops {
		ids = append(ids, id)
	}
	return ids
}

// Pause holds every loop before its next poll until Resume is called.
func (s *Supervisor) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.paused = true
	s.resume = make(chan struct{})
	s.logger.Debug("polling paused")
}

// Resume releases paused loops. Loops are never duplicated by pausing.
func (s *Supervisor) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	close(s.resume)
	s.logger.Debug("polling resumed")
}

// Paused reports whether polling is paused.
func (s *Supervisor) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Close stops every loop and waits for them to return.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.stopped = true
	ids := make([]string, 0, len(s.loops))
	for id := range s.loops {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Stop(id)
	}
	s.wg.Wait()
}

func (s *Supervisor) run(ctx context.Context, id string, l *loop) {
	defer s.wg.Done()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !s.waitResumed(ctx) {
			return
		}

		attempts++
		if s.poll(ctx, id) {
			s.finish(id, l)
			return
		}
		if ctx.Err() != nil {
			return
		}

		if s.maxAttempts > 0 && attempts >= s.maxAttempts {
			if s.finish(id, l) {
				s.logger.Warn("poll attempts exhausted",
					zap.String("analysis_id", id),
					zap.Int("attempts", attempts),
				)
				if s.onExhausted != nil {
					s.onExhausted(id, attempts)
				}
			}
			return
		}

		timer.Reset(s.interval)
	}
}

// finish removes l if it is still the registered loop for id.
func (s *Supervisor) finish(id string, l *loop) bool {
	s.mu.Lock()
	current, ok := s.loops[id]
	if ok && current == l {
		delete(s.loops, id)
	}
	s.mu.Unlock()

	if ok && current == l {
		l.cancel()
		metrics.PollStopped()
		return true
	}
	return false
}

func (s *Supervisor) waitResumed(ctx context.Context) bool {
	for {
		s.mu.Lock()
		paused, ch := s.paused, s.resume
		s.mu.Unlock()

		if !paused {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-ch:
		}
	}
}
