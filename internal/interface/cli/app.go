package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/neilberkman/rentcheck/internal/core/analysis"
	"github.com/neilberkman/rentcheck/internal/core/api"
	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/config"
	"github.com/neilberkman/rentcheck/internal/core/db"
	"github.com/neilberkman/rentcheck/internal/core/history"
	"github.com/neilberkman/rentcheck/internal/core/session"
	"github.com/neilberkman/rentcheck/pkg/logger"
)

// app is everything a command needs, wired from config.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *db.DB
	session *session.Provider
	orch    *analysis.Orchestrator
}

// openApp loads config, opens the local store and builds the orchestrator.
// needAPI commands fail early when no service URL is configured.
func openApp(needAPI bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if needAPI {
		if err := cfg.RequireAPI(); err != nil {
			return nil, apperr.Validation("config", "%v", err)
		}
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)

	path := dbPath
	if path == "" {
		path = cfg.DBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	database, err := db.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	provider := session.NewProvider(database)
	sessionID, err := provider.ID()
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	store, err := history.New(database, sessionID, cfg.HistoryLimit, log.Named("history"))
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	client := api.New(cfg.APIURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithSessionHeader(cfg.SessionHeader),
		api.WithLogger(log.Named("api")),
	)
	orch := analysis.New(client, provider, store, analysis.Options{
		MinListingLength: cfg.MinListingLength,
		MaxImages:        cfg.MaxImages,
		AddressDebounce:  cfg.AddressDebounce,
		PollInterval:     cfg.PollInterval,
		PollMaxAttempts:  cfg.PollMaxAttempts,
		Logger:           log,
	})

	log.Debug("app ready", zap.String("db", path), zap.String("session_id", sessionID))
	return &app{cfg: cfg, log: log, db: database, session: provider, orch: orch}, nil
}

func (a *app) Close() {
	a.orch.Close()
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}

// restoreDraft loads the draft saved by an earlier invocation.
func (a *app) restoreDraft() (bool, error) {
	draft, err := a.db.LoadDraft()
	if err != nil {
		return false, err
	}
	if draft == nil {
		return false, nil
	}
	chatID, err := a.db.LoadDraftChatID()
	if err != nil {
		return false, err
	}
	if err := a.orch.LoadDraftWithChat(*draft, chatID); err != nil {
		return false, err
	}
	return true, nil
}

// saveDraft persists the current draft, or clears it when there is none.
func (a *app) saveDraft() error {
	draft := a.orch.Draft()
	if draft == nil {
		return a.db.ClearDraft()
	}
	if err := a.db.SaveDraft(*draft); err != nil {
		return err
	}
	return a.db.SaveDraftChatID(a.orch.DraftChatID())
}

func (a *app) pauseFile() string {
	return filepath.Join(a.cfg.Dir, "paused")
}

// describeError turns a typed failure into a one-line message for the terminal.
func describeError(err error) string {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return "Error: " + err.Error()
	}
	switch e.Kind {
	case apperr.KindValidation:
		return "Invalid input: " + e.Message
	case apperr.KindNetwork:
		return "Could not reach the analysis service: " + e.Error()
	case apperr.KindTimeout:
		return "Timed out: " + e.Message
	case apperr.KindServer:
		return fmt.Sprintf("The analysis service returned an error (%d): %s", e.Status, e.Message)
	case apperr.KindNotFound:
		return "Not found: " + e.Message
	case apperr.KindChatSend:
		return "Message not delivered; it is kept in the chat marked as failed"
	}
	return "Error: " + e.Error()
}

// commandContext is cancelled on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
