package analysis

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/models"
)

// addressBuffer holds typed address text until the debounce expires.
type addressBuffer struct {
	text    string
	pending bool
	gen     int
	timer   *time.Timer
}

func (b *addressBuffer) cancel() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = false
	b.text = ""
	b.gen++
}

// NormalizeListing trims the text and collapses runs of whitespace.
func NormalizeListing(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// Extract turns raw listing text into a new draft. Text shorter than the
// minimum length is rejected before any request is made. On failure the
// previous draft is left as it was.
func (o *Orchestrator) Extract(ctx context.Context, raw string) (models.ExtractedData, error) {
	text := NormalizeListing(raw)
	if n := utf8.RuneCountInString(text); n < o.minLen {
		return models.ExtractedData{}, apperr.Validation("extract",
			"listing text must be at least %d characters (got %d)", o.minLen, n)
	}

	sessionID, err := o.SessionID()
	if err != nil {
		return models.ExtractedData{}, err
	}

	resp, err := o.client.ExtractData(ctx, sessionID, text)
	if err != nil {
		o.logger.Info("extraction failed", zap.Error(err))
		return models.ExtractedData{}, apperr.Wrap("extract", err)
	}

	data := o.sanitizeImages(resp.Data.Clone())

	o.mu.Lock()
	o.draft = &data
	o.draftChat = nil
	if resp.ChatID != "" {
		o.draftChat = &models.Chat{ID: resp.ChatID}
	}
	o.address.cancel()
	out := data.Clone()
	o.mu.Unlock()

	o.logger.Debug("draft extracted", zap.Strings("missing", data.MissingEssentials()))
	o.publish(Event{Type: EventDraftChanged})
	return out, nil
}

// sanitizeImages drops invalid and duplicate image URLs and keeps at most
// the configured number.
func (o *Orchestrator) sanitizeImages(data models.ExtractedData) models.ExtractedData {
	if len(data.ImageURLs) == 0 {
		return data
	}
	kept := make([]string, 0, len(data.ImageURLs))
	for _, u := range data.ImageURLs {
		u = strings.TrimSpace(u)
		if err := models.ValidateImageURL(u); err != nil {
			o.logger.Debug("dropping extracted image", zap.String("url", u), zap.Error(err))
			continue
		}
		dup := false
		for _, k := range kept {
			if k == u {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if len(kept) == o.maxImgs {
			o.logger.Debug("dropping extracted image over limit", zap.String("url", u))
			continue
		}
		kept = append(kept, u)
	}
	data.ImageURLs = kept
	return data
}

// UpdateDraft sets one field of the draft by dotted path. Image URLs go
// through AddImageURL and RemoveImageURL instead.
func (o *Orchestrator) UpdateDraft(path string, value any) error {
	path = strings.TrimSpace(path)
	if path == "image_urls" || strings.HasPrefix(path, "image_urls.") {
		return apperr.Validation("update", "use AddImageURL or RemoveImageURL to change images")
	}

	o.mu.Lock()
	if o.draft == nil {
		o.mu.Unlock()
		return apperr.Validation("update", "there is no draft to edit")
	}
	next := o.draft.Clone()
	if err := next.SetField(path, value); err != nil {
		o.mu.Unlock()
		return apperr.Validation("update", "%v", err)
	}
	if err := next.Validate(); err != nil {
		o.mu.Unlock()
		return apperr.Validation("update", "%v", err)
	}
	if path == "address" {
		// An explicit edit replaces anything still buffered
		o.address.cancel()
	}
	o.draft = &next
	o.mu.Unlock()

	o.publish(Event{Type: EventDraftChanged})
	return nil
}

// AddImageURL appends an image. Invalid URLs, duplicates and additions past
// the limit are rejected and leave the list unchanged.
func (o *Orchestrator) AddImageURL(raw string) error {
	u := strings.TrimSpace(raw)

	o.mu.Lock()
	if o.draft == nil {
		o.mu.Unlock()
		return apperr.Validation("add_image", "there is no draft to edit")
	}
	if err := models.ValidateImageURL(u); err != nil {
		o.mu.Unlock()
		return apperr.Validation("add_image", "%v", err)
	}
	if o.draft.HasImage(u) {
		o.mu.Unlock()
		return apperr.Validation("add_image", "image %s is already attached", u)
	}
	if len(o.draft.ImageURLs) >= o.maxImgs {
		o.mu.Unlock()
		return apperr.Validation("add_image", "at most %d images can be attached", o.maxImgs)
	}
	next := o.draft.Clone()
	next.ImageURLs = append(next.ImageURLs, u)
	o.draft = &next
	o.mu.Unlock()

	o.publish(Event{Type: EventDraftChanged})
	return nil
}

// RemoveImageURL removes an attached image.
func (o *Orchestrator) RemoveImageURL(raw string) error {
	u := strings.TrimSpace(raw)

	o.mu.Lock()
	if o.draft == nil {
		o.mu.Unlock()
		return apperr.Validation("remove_image", "there is no draft to edit")
	}
	if !o.draft.HasImage(u) {
		o.mu.Unlock()
		return apperr.Validation("remove_image", "image %s is not attached", u)
	}
	next := o.draft.Clone()
	kept := next.ImageURLs[:0]
	for _, existing := range next.ImageURLs {
		if existing != u {
			kept = append(kept, existing)
		}
	}
	next.ImageURLs = kept
	o.draft = &next
	o.mu.Unlock()

	o.publish(Event{Type: EventDraftChanged})
	return nil
}

// TypeAddress buffers address text. It is committed to the draft once no
// further text arrives for the debounce period, or on FlushAddress or Submit.
func (o *Orchestrator) TypeAddress(text string) error {
	o.mu.Lock()
	if o.draft == nil {
		o.mu.Unlock()
		return apperr.Validation("address", "there is no draft to edit")
	}
	if o.debounce == 0 {
		o.address.cancel()
		o.commitAddressLocked(text)
		o.mu.Unlock()
		o.publish(Event{Type: EventDraftChanged})
		return nil
	}

	if o.address.timer != nil {
		o.address.timer.Stop()
	}
	o.address.text = text
	o.address.pending = true
	o.address.gen++
	gen := o.address.gen
	o.address.timer = time.AfterFunc(o.debounce, func() { o.flushAddress(gen) })
	o.mu.Unlock()
	return nil
}

// FlushAddress commits buffered address text immediately.
func (o *Orchestrator) FlushAddress() {
	o.mu.Lock()
	flushed := o.flushAddressLocked()
	o.mu.Unlock()

	if flushed {
		o.publish(Event{Type: EventDraftChanged})
	}
}

func (o *Orchestrator) flushAddress(gen int) {
	o.mu.Lock()
	if gen != o.address.gen {
		o.mu.Unlock()
		return
	}
	flushed := o.flushAddressLocked()
	o.mu.Unlock()

	if flushed {
		o.publish(Event{Type: EventDraftChanged})
	}
}

func (o *Orchestrator) flushAddressLocked() bool {
	if !o.address.pending {
		return false
	}
	text := o.address.text
	o.address.cancel()
	if o.draft == nil {
		return false
	}
	o.commitAddressLocked(text)
	return true
}

func (o *Orchestrator) commitAddressLocked(text string) {
	next := o.draft.Clone()
	next.Address = strings.TrimSpace(text)
	o.draft = &next
}

// Rerun starts a new draft from the input of a finished analysis. The
// analysis itself is not touched; submitting the draft creates a new one.
func (o *Orchestrator) Rerun(id string) (models.ExtractedData, error) {
	a, ok := o.history.Get(id)
	if !ok {
		return models.ExtractedData{}, apperr.NotFound("rerun", "analysis %s is not in history", id)
	}
	if !a.Status.IsTerminal() {
		return models.ExtractedData{}, apperr.Validation("rerun", "analysis %s is still %s", id, a.Status.Label())
	}

	draft := a.InputData.Clone()

	o.mu.Lock()
	o.draft = &draft
	o.draftChat = nil
	o.address.cancel()
	out := draft.Clone()
	o.mu.Unlock()

	o.publish(Event{Type: EventDraftChanged})
	return out, nil
}

// LoadDraft installs a previously saved draft, for callers that persist the
// draft between runs.
func (o *Orchestrator) LoadDraft(data models.ExtractedData) error {
	return o.LoadDraftWithChat(data, "")
}

// LoadDraftWithChat installs a saved draft together with the chat id that
// extraction opened for it. The chat is carried into the submitted analysis.
func (o *Orchestrator) LoadDraftWithChat(data models.ExtractedData, chatID string) error {
	data = data.Clone()
	if err := data.Validate(); err != nil {
		return apperr.Validation("draft", "%v", err)
	}

	o.mu.Lock()
	o.draft = &data
	o.draftChat = nil
	if chatID = strings.TrimSpace(chatID); chatID != "" {
		o.draftChat = &models.Chat{ID: chatID}
	}
	o.address.cancel()
	o.mu.Unlock()

	o.publish(Event{Type: EventDraftChanged})
	return nil
}

// DraftChatID returns the chat id extraction opened for the draft, or "".
func (o *Orchestrator) DraftChatID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.draft == nil || o.draftChat == nil {
		return ""
	}
	return o.draftChat.ID
}
