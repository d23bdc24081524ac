package miner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bingranl/task-mining/forge"
	"github.com/bingranl/task-mining/store"
)

// HistoryClient abstracts the hosting provider's history endpoints.
// This interface enables testing and potential support for non-GitHub
// providers.
type HistoryClient interface {
	ListMergedChangeRequests(ctx context.Context, sinceID int64, limit int) ([]forge.ChangeRequest, error)
	ListCommitsWithChecks(ctx context.Context, crID int64) ([]forge.Commit, error)
	ChangedFiles(ctx context.Context, sha string) ([]string, error)
}

// Config configures the mining engine.
type Config struct {
	Client HistoryClient
	Store  *store.Store
	Logger *slog.Logger // nil = slog.Default()
	Limit  int          // max change requests per run (default 100)
}

// Engine walks merged change requests in strictly increasing id order,
// emitting transitions and advancing the cursor as each one completes.
// Mining is single-flight per repository; an Engine must not be shared
// across repositories.
type Engine struct {
	client HistoryClient
	store  *store.Store
	logger *slog.Logger
	limit  int
}

// New creates an Engine from the given config.
func New(config Config) (*Engine, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("miner: Client is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("miner: Store is required")
	}
	if config.Limit <= 0 {
		config.Limit = 100
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Engine{
		client: config.Client,
		store:  config.Store,
		logger: config.Logger,
		limit:  config.Limit,
	}, nil
}

// Result summarizes one mining run.
type Result struct {
	Processed int   // change requests fully processed this run
	Skipped   int   // change requests skipped on fetch failure (retried next run)
	NotFound  int   // change requests gone from the provider
	Emitted   int   // transitions newly appended
	Deduped   int   // transitions suppressed by the emitted-keys set
	Cursor    int64 // cursor position after the run
}

// Mine resumes from the persisted cursor and processes up to the configured
// limit of change requests. Per-change-request failures are isolated: a
// failed fetch is logged and skipped, and because the cursor only advances
// past completed ids, the failed id is retried on the next run.
func (e *Engine) Mine(ctx context.Context) (*Result, error) {
	sinceID := e.store.LastProcessedID()
	e.logger.Info("mining change requests", "sinceID", sinceID, "limit", e.limit)

	crs, err := e.client.ListMergedChangeRequests(ctx, sinceID, e.limit)
	if err != nil {
		return nil, fmt.Errorf("list merged change requests: %w", err)
	}
	e.logger.Info("found merged change requests", "count", len(crs))

	result := &Result{}

	// Once a change request fails, the cursor freezes at the id before it
	// so the failure is retried next run. Later change requests are still
	// processed; the dedup set absorbs their re-emission.
	cursorFrozen := false

	for i := range crs {
		cr := crs[i]

		commits, err := e.client.ListCommitsWithChecks(ctx, cr.ID)
		if errors.Is(err, forge.ErrNotFound) {
			e.logger.Warn("change request inaccessible, skipping", "crID", cr.ID)
			result.NotFound++
			if !cursorFrozen {
				if err := e.store.AdvanceCursor(cr.ID); err != nil {
					return result, fmt.Errorf("advance cursor: %w", err)
				}
			}
			continue
		}
		if err != nil {
			e.logger.Warn("history fetch failed, will retry next run", "crID", cr.ID, "error", err)
			result.Skipped++
			cursorFrozen = true
			continue
		}

		emitted, deduped, err := e.processChangeRequest(ctx, cr, commits)
		if err != nil {
			return result, err
		}
		result.Emitted += emitted
		result.Deduped += deduped
		result.Processed++

		if !cursorFrozen {
			if err := e.store.AdvanceCursor(cr.ID); err != nil {
				return result, fmt.Errorf("advance cursor: %w", err)
			}
		}
	}

	result.Cursor = e.store.LastProcessedID()
	e.logger.Info("mining run complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"emitted", result.Emitted,
		"deduped", result.Deduped,
		"cursor", result.Cursor,
	)
	return result, nil
}

// processChangeRequest runs the state machine over one change request's
// commits and appends the resulting transitions. Transitions are written
// before the caller advances the cursor.
func (e *Engine) processChangeRequest(ctx context.Context, cr forge.ChangeRequest, commits []forge.Commit) (emitted, deduped int, err error) {
	pairs := Pairs(commits)
	e.logger.Log(ctx, LevelTrace, "walked change request",
		"crID", cr.ID, "commits", len(commits), "pairs", len(pairs))

	if len(pairs) == 0 {
		return 0, 0, nil
	}

	var fresh []store.Transition
	for _, p := range pairs {
		bad, good := commits[p.Bad], commits[p.Good]
		t := store.Transition{
			ChangeReqID:  cr.ID,
			ChangeReqURL: cr.URL,
			BadSHA:       bad.SHA,
			BadMessage:   bad.Message,
			GoodSHA:      good.SHA,
			GoodMessage:  good.Message,
			MinedAt:      time.Now().UTC(),
		}
		if e.store.Seen(t.Key()) {
			deduped++
			continue
		}

		// Files touched by the fix; best-effort, the classifier and
		// extractor can re-fetch when absent.
		files, err := e.client.ChangedFiles(ctx, good.SHA)
		if err != nil {
			e.logger.Debug("changed files unavailable", "sha", good.SHA, "error", err)
		} else {
			t.FilesChanged = files
		}

		e.logger.Info("found transition",
			"crID", cr.ID,
			"bad", shortSHA(bad.SHA),
			"good", shortSHA(good.SHA),
		)
		fresh = append(fresh, t)
	}

	if len(fresh) == 0 {
		return 0, deduped, nil
	}
	n, err := e.store.Append(fresh)
	if err != nil {
		return 0, deduped, fmt.Errorf("append transitions: %w", err)
	}
	return n, deduped, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
