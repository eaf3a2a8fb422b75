package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/0Reliance/maeple/internal/breaker"
	"github.com/0Reliance/maeple/internal/logging"
	"github.com/0Reliance/maeple/internal/parse"
	"github.com/0Reliance/maeple/internal/provider"
	"github.com/0Reliance/maeple/internal/storage"
	"github.com/0Reliance/maeple/internal/syncq"
)

// ErrAnalysisUnavailable wraps provider-side failures. The user's input is
// never lost when this is returned: it has been queued for a later attempt,
// and the UI should show the entry with analysis pending.
var ErrAnalysisUnavailable = errors.New("journal: analysis unavailable")

// Analyzer runs journal analyses against the provider and persists the
// validated results. Provider failures degrade to queued retries; malformed
// responses are reported, never partially applied.
type Analyzer struct {
	client   provider.Client
	store    *storage.Store
	queue    *syncq.Queue
	reporter parse.Reporter
}

// NewAnalyzer wires the analysis pipeline. The queue may be nil in contexts
// with no retry surface (the parse CLI subcommand, tests); provider failures
// are then returned without queueing.
func NewAnalyzer(client provider.Client, store *storage.Store, queue *syncq.Queue, reporter parse.Reporter) *Analyzer {
	if reporter == nil {
		reporter = parse.NopReporter{}
	}
	return &Analyzer{client: client, store: store, queue: queue, reporter: reporter}
}

// AnalyzeMood classifies the emotional tone of a journal entry.
func (a *Analyzer) AnalyzeMood(ctx context.Context, entryText string) (MoodRecord, error) {
	return analyze[MoodRecord](a, ctx, KindMood, moodPrompt(entryText), entryText, MoodSchema())
}

// AnalyzeObservation extracts one objective observation from an entry.
func (a *Analyzer) AnalyzeObservation(ctx context.Context, entryText string) (ObservationRecord, error) {
	return analyze[ObservationRecord](a, ctx, KindObservation, observationPrompt(entryText), entryText, ObservationSchema())
}

// AnalyzeExpression runs facial action unit analysis over an image
// description produced by the capture layer.
func (a *Analyzer) AnalyzeExpression(ctx context.Context, imageDescription string) (ActionUnitsRecord, error) {
	return analyze[ActionUnitsRecord](a, ctx, KindActionUnits, actionUnitsPrompt(imageDescription), imageDescription, ActionUnitsSchema())
}

// analyze is the shared pipeline: guarded completion, safe parse, persist.
func analyze[T any](a *Analyzer, ctx context.Context, kind, prompt, rawInput string, schema parse.Schema) (T, error) {
	var zero T

	raw, err := a.client.CompleteText(ctx, prompt)
	if err != nil {
		return zero, a.degrade(kind, rawInput, err)
	}

	result := parse.SafeParse[T](raw, schema, parse.Options{
		Context:  kind,
		Reporter: a.reporter,
	})
	if !result.Ok {
		// The provider answered but the answer is unusable. Retrying the
		// same prompt later is the queue's job too; a malformed response
		// is as much an outage as no response.
		return zero, a.degrade(kind, rawInput, result.Err)
	}

	if a.store != nil {
		content, err := json.Marshal(result.Data)
		if err != nil {
			return zero, fmt.Errorf("failed to encode record: %w", err)
		}
		rec := storage.JournalRecord{
			ID:        uuid.New().String(),
			Kind:      kind,
			Content:   string(content),
			CreatedAt: time.Now().UTC(),
		}
		if err := a.store.SaveRecord(rec); err != nil {
			return zero, err
		}
	}

	return result.Data, nil
}

// degrade preserves the user's input for a later attempt and returns
// ErrAnalysisUnavailable. Breaker rejections are expected during an outage
// and logged quietly; anything else gets a full error line.
func (a *Analyzer) degrade(kind, rawInput string, cause error) error {
	if errors.Is(cause, breaker.ErrCircuitOpen) {
		logging.ParserDebug("analysis %s deferred: circuit open", kind)
	} else {
		logging.Get(logging.CategoryParser).Error("analysis %s failed: %v", kind, cause)
	}

	if a.queue != nil {
		payload, err := json.Marshal(syncPayload{Kind: kind, Input: rawInput})
		if err != nil {
			return fmt.Errorf("%w: %w (payload not queued: %v)", ErrAnalysisUnavailable, cause, err)
		}
		if _, err := a.queue.Enqueue(string(payload)); err != nil {
			// Queue full. The caller still holds the input; surface both.
			return fmt.Errorf("%w: %w (retry not queued: %v)", ErrAnalysisUnavailable, cause, err)
		}
	}

	return fmt.Errorf("%w: %w", ErrAnalysisUnavailable, cause)
}

// syncPayload is the queued representation of a deferred analysis.
type syncPayload struct {
	Kind  string `json:"kind"`
	Input string `json:"input"`
}

// Applier re-runs deferred analyses during queue drains. It satisfies
// syncq.Applier; the analyzer it drives must not queue again on failure or
// a dead provider would grow the entry's attempt count without bound, so
// drains use an analyzer with a nil queue.
type Applier struct {
	analyzer *Analyzer
}

// NewApplier creates the drain-side applier. The supplied analyzer should
// have been constructed with a nil queue.
func NewApplier(analyzer *Analyzer) *Applier {
	return &Applier{analyzer: analyzer}
}

// Apply re-runs the analysis recorded in the entry payload.
func (ap *Applier) Apply(ctx context.Context, entry storage.SyncEntry) error {
	var payload syncPayload
	if err := json.Unmarshal([]byte(entry.Payload), &payload); err != nil {
		return fmt.Errorf("malformed sync payload: %w", err)
	}

	switch payload.Kind {
	case KindMood:
		_, err := ap.analyzer.AnalyzeMood(ctx, payload.Input)
		return err
	case KindObservation:
		_, err := ap.analyzer.AnalyzeObservation(ctx, payload.Input)
		return err
	case KindActionUnits:
		_, err := ap.analyzer.AnalyzeExpression(ctx, payload.Input)
		return err
	default:
		return fmt.Errorf("unknown sync payload kind %q", payload.Kind)
	}
}
