// Package history keeps the ordered, capped list of analyses of a session
// and reconciles it against the server.
package history

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/internal/core/models"
	"github.com/neilberkman/rentcheck/pkg/logger"
)

// DefaultLimit is the number of analyses kept when no limit is configured.
const DefaultLimit = 50

// Persister stores the history list. db.DB satisfies it.
type Persister interface {
	SaveHistory(sessionID string, list []models.Analysis) error
	LoadHistory(sessionID string) ([]models.Analysis, error)
}

// Store is the most-recent-first history list. It holds at most one entry
// per analysis id and at most limit entries.
type Store struct {
	persister Persister
	sessionID string
	limit     int
	logger    *logger.Logger

	mu   sync.RWMutex
	list []models.Analysis
}

// New loads the persisted history of sessionID. A nil persister keeps the
// list in memory only.
func New(persister Persister, sessionID string, limit int, log *logger.Logger) (*Store, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{
		persister: persister,
		sessionID: sessionID,
		limit:     limit,
		logger:    log,
	}

	if persister != nil {
		loaded, err := persister.LoadHistory(sessionID)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		s.list = dedupe(loaded)
		if len(s.list) > limit {
			s.list = s.list[:limit]
		}
	}
	return s, nil
}

// Upsert replaces the entry with the same id in place, or inserts a at the
// front and evicts the oldest entries past the limit.
func (s *Store) Upsert(a models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(a.ID); i >= 0 {
		s.list[i] = a.Clone()
		return s.persist()
	}

	s.list = append([]models.Analysis{a.Clone()}, s.list...)
	if len(s.list) > s.limit {
		evicted := s.list[s.limit:]
		for _, e := range evicted {
			s.logger.Debug("history entry evicted", zap.String("analysis_id", e.ID))
		}
		s.list = s.list[:s.limit]
	}
	return s.persist()
}

// Get returns a copy of the entry with the given id.
func (s *Store) Get(id string) (models.Analysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.list[i].Clone(), true
	}
	return models.Analysis{}, false
}

// List returns a copy of the history, most recent first.
func (s *Store) List() []models.Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Analysis, len(s.list))
	for i, a := range s.list {
		out[i] = a.Clone()
	}
	return out
}

// Remove deletes the entry with the given id and reports whether it existed.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	s.list = append(s.list[:i], s.list[i+1:]...)
	return true, s.persist()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

// Reconcile merges the server's list into the local one. For ids present on
// both sides a terminal server entry wins; otherwise the entry further along
// the lifecycle wins, with the server taking ties. A winning server entry
// brings its status, report and error detail; chat messages, location and
// incomplete fields that only exist locally are carried over. Local-only
// entries are kept and server-only entries added. The result is ordered by
// creation time, newest first, and capped.
func (s *Store) Reconcile(server []models.Analysis) ([]models.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]models.Analysis, len(s.list)+len(server))
	for _, local := range s.list {
		merged[local.ID] = local
	}
	for _, remote := range server {
		if remote.ID == "" {
			continue
		}
		local, ok := merged[remote.ID]
		switch {
		case !ok:
			merged[remote.ID] = remote.Clone()
		case serverWins(local, remote):
			merged[remote.ID] = mergeLocal(remote.Clone(), local)
		}
	}

	list := make([]models.Analysis, 0, len(merged))
	for _, a := range merged {
		list = append(list, a)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if len(list) > s.limit {
		list = list[:s.limit]
	}
	s.list = list

	if err := s.persist(); err != nil {
		return nil, err
	}

	out := make([]models.Analysis, len(s.list))
	for i, a := range s.list {
		out[i] = a.Clone()
	}
	return out, nil
}

func serverWins(local, remote models.Analysis) bool {
	if remote.Status.IsTerminal() {
		return true
	}
	return remote.Status.Rank() >= local.Status.Rank()
}

// mergeLocal copies onto a winning server entry what the server does not
// know about.
func mergeLocal(remote, local models.Analysis) models.Analysis {
	if remote.CreatedAt.IsZero() {
		remote.CreatedAt = local.CreatedAt
	}
	if remote.InputData.IsEmpty() {
		remote.InputData = local.InputData.Clone()
	}
	if remote.Location == nil && local.Location != nil {
		l := *local.Location
		remote.Location = &l
	}
	if len(remote.IncompleteFields) == 0 {
		remote.IncompleteFields = append([]string(nil), local.IncompleteFields...)
	}
	remote.Chat = mergeChat(remote.Chat, local.Chat)
	return remote
}

// mergeChat never drops a local message. The server's messages replace the
// delivered local ones only when the server has at least as many; messages
// still pending or failed stay at the end in their original order.
func mergeChat(remote, local *models.Chat) *models.Chat {
	if local == nil {
		return remote
	}
	if remote == nil {
		c := local.Clone()
		return &c
	}

	out := remote.Clone()
	if out.ID == "" {
		out.ID = local.ID
	}

	var delivered, unsent []models.ChatMessage
	for _, m := range local.Messages {
		if m.State == models.MessagePending || m.State == models.MessageFailed {
			unsent = append(unsent, m)
		} else {
			delivered = append(delivered, m)
		}
	}
	if len(out.Messages) < len(delivered) {
		out.Messages = append([]models.ChatMessage(nil), local.Messages...)
		return &out
	}
	out.Messages = append(out.Messages, unsent...)
	return &out
}

func (s *Store) indexOf(id string) int {
	for i := range s.list {
		if s.list[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persist() error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveHistory(s.sessionID, s.list); err != nil {
		s.logger.Warn("history not persisted", zap.Error(err))
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func dedupe(list []models.Analysis) []models.Analysis {
	seen := make(map[string]struct{}, len(list))
	out := make([]models.Analysis, 0, len(list))
	for _, a := range list {
		if _, dup := seen[a.ID]; dup || a.ID == "" {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}
