package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/internal/core/api"
	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/models"
	"github.com/neilberkman/rentcheck/pkg/metrics"
)

// Submit sends the draft for analysis. At least one of address, description
// and price must be present; the others are recorded as incomplete. On
// success the new analysis is put at the front of history, made current and
// polled; the draft is discarded unless it was edited while the request was
// in flight. On failure nothing is created.
func (o *Orchestrator) Submit(ctx context.Context) (*models.Analysis, error) {
	o.mu.Lock()
	o.flushAddressLocked()
	if o.draft == nil {
		o.mu.Unlock()
		return nil, apperr.Validation("submit", "there is no draft to submit")
	}
	if o.submitting {
		o.mu.Unlock()
		return nil, apperr.Validation("submit", "a submission is already in progress")
	}
	missing := o.draft.MissingEssentials()
	if len(missing) == 3 {
		o.mu.Unlock()
		return nil, apperr.Validation("submit", "at least one of address, description or price is required")
	}
	if err := o.draft.Validate(); err != nil {
		o.mu.Unlock()
		return nil, apperr.Validation("submit", "%v", err)
	}
	submitted := o.draft
	input := o.draft.Clone()
	var chat *models.Chat
	if o.draftChat != nil {
		c := o.draftChat.Clone()
		chat = &c
	}
	o.submitting = true
	o.mu.Unlock()

	resp, err := o.submit(ctx, input)

	o.mu.Lock()
	o.submitting = false
	if err != nil {
		o.mu.Unlock()
		o.logger.Info("submission failed", zap.Error(err))
		return nil, err
	}

	a, existed := o.history.Get(resp.JobID)
	if !existed {
		// The backend answers identical input with the id of the earlier
		// analysis, which is kept as it is.
		a = models.Analysis{
			ID:               resp.JobID,
			Status:           models.StatusPending,
			InputData:        input,
			CreatedAt:        o.now().UTC(),
			Chat:             chat,
			IncompleteFields: missing,
		}
		o.saveLocked(a)
		metrics.RecordTransition("", string(a.Status))
	}
	if o.draft == submitted {
		o.draft = nil
		o.draftChat = nil
	}
	o.current = a.ID
	if a.Status.IsActive() {
		o.poller.Start(a.ID)
	}
	o.mu.Unlock()

	o.logger.Info("analysis submitted",
		zap.String("analysis_id", a.ID),
		zap.Strings("incomplete_fields", missing),
		zap.Bool("existing", existed),
	)
	o.publish(Event{Type: EventDraftChanged})
	o.publish(Event{Type: EventCurrentChanged, AnalysisID: a.ID})
	o.publish(Event{Type: EventAnalysisUpdated, AnalysisID: a.ID, Analysis: snapshot(a)})
	o.publish(Event{Type: EventHistoryChanged})
	return snapshot(a), nil
}

func (o *Orchestrator) submit(ctx context.Context, input models.ExtractedData) (api.SubmitResponse, error) {
	sessionID, err := o.SessionID()
	if err != nil {
		return api.SubmitResponse{}, err
	}
	resp, err := o.client.SubmitAnalysis(ctx, sessionID, input)
	if err != nil {
		return api.SubmitResponse{}, apperr.Wrap("submit", err)
	}
	return resp, nil
}

// PollOnce checks the status of id once and applies any forward transition.
// A failed status check fails the analysis. Results arriving after ctx was
// cancelled, or for an analysis that has left history, are discarded.
func (o *Orchestrator) PollOnce(ctx context.Context, id string) (*models.Analysis, error) {
	return o.pollOnce(ctx, id)
}

func (o *Orchestrator) pollFromLoop(ctx context.Context, id string) bool {
	a, err := o.pollOnce(ctx, id)
	if a == nil {
		// Removed from history or discarded; nothing left to poll for
		return ctx.Err() != nil || apperr.Is(err, apperr.KindNotFound)
	}
	return a.Status.IsTerminal()
}

func (o *Orchestrator) pollLock(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.pollLocks[id]
	if !ok {
		l = &sync.Mutex{}
		o.pollLocks[id] = l
	}
	return l
}

func (o *Orchestrator) pollOnce(ctx context.Context, id string) (*models.Analysis, error) {
	lock := o.pollLock(id)
	lock.Lock()
	defer lock.Unlock()

	a, ok := o.history.Get(id)
	if !ok {
		return nil, apperr.NotFound("poll", "analysis %s is not in history", id)
	}
	if a.Status.IsTerminal() {
		return snapshot(a), nil
	}

	sessionID, err := o.SessionID()
	if err != nil {
		return nil, err
	}
	resp, pollErr := o.client.GetAnalysisStatus(ctx, id, sessionID)

	o.mu.Lock()
	if ctx.Err() != nil {
		// Stopped while the request was in flight
		o.mu.Unlock()
		return nil, apperr.Transport("poll", ctx.Err())
	}
	a, ok = o.history.Get(id)
	if !ok {
		o.mu.Unlock()
		return nil, apperr.NotFound("poll", "analysis %s was removed", id)
	}

	from := a.Status
	var changed bool
	var eventErr error
	if pollErr != nil {
		pollErr = apperr.Wrap("poll", pollErr)
		changed = a.Fail(pollErr.Error()) == nil
		eventErr = pollErr
		metrics.RecordPoll("error")
	} else {
		changed = applyRemote(&a, resp.ToAnalysis())
		metrics.RecordPoll(resp.Status)
	}

	terminal := changed && a.Status.IsTerminal()
	if changed {
		o.saveLocked(a)
		if from != a.Status {
			metrics.RecordTransition(string(from), string(a.Status))
		}
	}
	if terminal {
		o.poller.Stop(id)
	}
	o.mu.Unlock()

	if changed {
		o.logger.Info("analysis updated",
			zap.String("analysis_id", id),
			zap.String("from", string(from)),
			zap.String("status", string(a.Status)),
		)
		o.publish(Event{Type: EventAnalysisUpdated, AnalysisID: id, Analysis: snapshot(a), Err: eventErr})
	}
	if terminal {
		o.refreshAfterTerminal(ctx)
	}
	return snapshot(a), pollErr
}

// applyRemote moves local forward to the state reported by the server.
// Terminal analyses and backward moves are left untouched.
func applyRemote(local *models.Analysis, remote models.Analysis) bool {
	if local.Status.IsTerminal() {
		return false
	}

	changed := false
	if local.Chat == nil && remote.Chat != nil {
		c := remote.Chat.Clone()
		local.Chat = &c
		changed = true
	}
	if remote.Status == local.Status || !local.Status.CanTransition(remote.Status) {
		return changed
	}

	var err error
	switch remote.Status {
	case models.StatusCompleted:
		err = local.Complete(*remote.FinalReport)
	case models.StatusFailed:
		err = local.Fail(remote.ErrorDetail)
	default:
		err = local.Advance(remote.Status)
	}
	return err == nil || changed
}

func (o *Orchestrator) pollExhausted(id string, attempts int) {
	o.mu.Lock()
	a, ok := o.history.Get(id)
	if !ok || !a.Status.IsActive() {
		o.mu.Unlock()
		return
	}
	from := a.Status
	timeout := apperr.Timeout("poll",
		fmt.Sprintf("analysis did not finish after %d status checks", attempts), nil)
	if err := a.Fail(timeout.Message); err != nil {
		o.mu.Unlock()
		return
	}
	o.saveLocked(a)
	metrics.RecordTransition(string(from), string(a.Status))
	o.mu.Unlock()

	o.publish(Event{Type: EventAnalysisUpdated, AnalysisID: id, Analysis: snapshot(a), Err: timeout})
	o.refreshAfterTerminal(context.Background())
}

// refreshAfterTerminal reloads history once after an analysis finishes.
func (o *Orchestrator) refreshAfterTerminal(ctx context.Context) {
	if _, err := o.LoadHistory(context.WithoutCancel(ctx)); err != nil {
		o.logger.Info("history refresh failed", zap.Error(err))
	}
}

// LoadHistory fetches the server's history and merges it into the local
// list. On failure the local list is returned with the error.
func (o *Orchestrator) LoadHistory(ctx context.Context) ([]models.Analysis, error) {
	sessionID, err := o.SessionID()
	if err != nil {
		return o.history.List(), err
	}

	resp, err := o.client.GetSessionHistory(ctx, sessionID)
	if err != nil {
		return o.history.List(), apperr.Wrap("history", err)
	}

	server := make([]models.Analysis, 0, len(resp.History))
	for _, item := range resp.History {
		if strings.TrimSpace(item.ID) == "" {
			continue
		}
		if _, ok := item.ParsedStatus(); !ok {
			// Unknown to this client; never let it override a local entry
			o.logger.Info("history entry with unknown status skipped",
				zap.String("analysis_id", item.ID), zap.String("status", item.Status))
			continue
		}
		server = append(server, item.ToAnalysis())
	}

	o.mu.Lock()
	list, err := o.history.Reconcile(server)
	if err != nil {
		o.logger.Warn("history not persisted", zap.Error(err))
		list = o.history.List()
	}
	for _, a := range list {
		if a.Status.IsTerminal() && o.poller.Active(a.ID) {
			o.poller.Stop(a.ID)
		}
	}
	o.mu.Unlock()

	o.publish(Event{Type: EventHistoryChanged})
	return list, nil
}

// Open makes id the current analysis. Unknown or unfinished analyses are
// fetched from the server, and polling restarts for unfinished ones. A
// finished report with an empty chat gets its explanation as the first
// assistant message.
func (o *Orchestrator) Open(ctx context.Context, id string) (*models.Analysis, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validation("open", "an analysis id is required")
	}

	local, known := o.history.Get(id)
	if !known || local.Status.IsActive() {
		sessionID, err := o.SessionID()
		if err != nil {
			return nil, err
		}
		resp, err := o.client.GetAnalysisStatus(ctx, id, sessionID)
		switch {
		case err != nil && !known:
			return nil, apperr.Wrap("open", err)
		case err != nil:
			o.logger.Info("refresh on open failed", zap.String("analysis_id", id), zap.Error(err))
		default:
			o.mergeOpened(id, resp)
		}
	}

	o.mu.Lock()
	a, ok := o.history.Get(id)
	if !ok {
		o.mu.Unlock()
		return nil, apperr.NotFound("open", "analysis %s is not in history", id)
	}
	seeded := seedExplanation(&a, o.now())
	if seeded {
		o.saveLocked(a)
	}
	if a.Status.IsActive() {
		o.poller.Start(id)
	}
	switched := o.current != id
	o.current = id
	o.mu.Unlock()

	if switched {
		o.publish(Event{Type: EventCurrentChanged, AnalysisID: id})
	}
	if seeded {
		o.publish(Event{Type: EventChatUpdated, AnalysisID: id, Analysis: snapshot(a)})
	}
	return snapshot(a), nil
}

func (o *Orchestrator) mergeOpened(id string, resp api.StatusResponse) {
	remote := resp.ToAnalysis()
	if remote.ID == "" {
		remote.ID = id
	}

	o.mu.Lock()
	a, ok := o.history.Get(id)
	changed := false
	if !ok {
		a = remote
		changed = true
	} else {
		changed = applyRemote(&a, remote)
	}
	if changed {
		o.saveLocked(a)
	}
	o.mu.Unlock()

	if changed {
		o.publish(Event{Type: EventAnalysisUpdated, AnalysisID: id, Analysis: snapshot(a)})
		o.publish(Event{Type: EventHistoryChanged})
	}
}

// AttachLocation stores a geocoded position on an analysis.
func (o *Orchestrator) AttachLocation(id string, loc models.Location) error {
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return apperr.Validation("location", "coordinates %f,%f are out of range", loc.Latitude, loc.Longitude)
	}

	o.mu.Lock()
	a, ok := o.history.Get(id)
	if !ok {
		o.mu.Unlock()
		return apperr.NotFound("location", "analysis %s is not in history", id)
	}
	a.Location = &loc
	o.saveLocked(a)
	o.mu.Unlock()

	o.publish(Event{Type: EventAnalysisUpdated, AnalysisID: id, Analysis: snapshot(a)})
	return nil
}

// Remove drops an analysis from history and stops polling it. A poll in
// flight for it is discarded.
func (o *Orchestrator) Remove(id string) error {
	o.mu.Lock()
	o.poller.Stop(id)
	removed, err := o.history.Remove(id)
	if removed && o.current == id {
		o.current = ""
	}
	o.mu.Unlock()

	if err != nil {
		return apperr.Wrap("remove", err)
	}
	if !removed {
		return apperr.NotFound("remove", "analysis %s is not in history", id)
	}
	o.publish(Event{Type: EventHistoryChanged, AnalysisID: id})
	return nil
}
