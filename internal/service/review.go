package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/supsol/poreview/internal/ai"
	"github.com/supsol/poreview/internal/dispatch"
	"github.com/supsol/poreview/internal/guard"
	"github.com/supsol/poreview/internal/models"
	"github.com/supsol/poreview/internal/policy"
)

const (
	ResultDispatched     = "dispatched"
	ResultNotDue         = "not_due"
	ResultInProgress     = "in_progress"
	ResultComposeFailed  = "compose_failed"
	ResultDispatchFailed = "dispatch_failed"
	ResultError          = "error"
)

const (
	RunKindReview   = "review"
	RunKindWhatsApp = "whatsapp"

	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// DefaultStaleAfter is the age past which a cleanup pass treats a guard
// entry as abandoned.
const DefaultStaleAfter = 2 * time.Hour

type POStore interface {
	ListOpenPOs(ctx context.Context, wpq string) ([]models.PurchaseOrder, error)
	GetPO(ctx context.Context, wpq string) (models.PurchaseOrder, error)
	ListLineItems(ctx context.Context, wpq string) ([]models.LineItem, error)
	ListHistory(ctx context.Context, wpq string) ([]models.CommunicationEvent, error)
}

type RunStore interface {
	CreateRun(ctx context.Context, kind, status string) (string, error)
	FinishRun(ctx context.Context, runID string, status string, summary []byte) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, po models.PurchaseOrder, action models.AuditAction, requestID string) (dispatch.Outcome, error)
}

type ReviewService struct {
	Store      POStore
	Runs       RunStore
	Guard      guard.Guard
	Engine     *policy.Engine
	Composer   ai.Composer
	Dispatcher Dispatcher
	Logger     zerolog.Logger
	// Concurrency bounds how many POs are reviewed at once.
	Concurrency int
	TextLimit   int
	Now         func() time.Time
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider

	metricsOnce sync.Once
	metrics     *reviewMetrics
}

type RunOptions struct {
	WPQ       string `json:"wpq,omitempty"`
	Cleanup   bool   `json:"cleanup"`
	TextLimit int    `json:"text_limit,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type POResult struct {
	WPQNumber   string            `json:"wpq_number"`
	Result      string            `json:"result"`
	AuditTypeID int               `json:"audit_type_id,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Wait        string            `json:"wait,omitempty"`
	Outcome     *dispatch.Outcome `json:"outcome,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type RunSummary struct {
	RunID   string           `json:"run_id,omitempty"`
	Events  []map[string]any `json:"events"`
	Counts  map[string]any   `json:"counts"`
	Results []POResult       `json:"results"`
}

func (s *ReviewService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *ReviewService) meter() *reviewMetrics {
	s.metricsOnce.Do(func() { s.metrics = newReviewMetrics(s.MeterProvider) })
	return s.metrics
}

// Run reviews every open PO, or only opts.WPQ, and dispatches whatever is
// due. Per-PO failures are reported in the summary; Run itself fails only
// when the PO list cannot be loaded.
func (s *ReviewService) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	if opts.RequestID == "" {
		opts.RequestID = uuid.NewString()
	}
	if opts.TextLimit <= 0 {
		opts.TextLimit = s.TextLimit
	}
	log := s.Logger.With().Str("request_id", opts.RequestID).Logger()
	start := s.now()

	var runID string
	if s.Runs != nil {
		id, err := s.Runs.CreateRun(ctx, RunKindReview, RunStatusRunning)
		if err != nil {
			return RunSummary{}, fmt.Errorf("create run: %w", err)
		}
		runID = id
	}

	summary, err := s.run(ctx, log, opts)
	summary.RunID = runID
	status := RunStatusCompleted
	if err != nil {
		status = RunStatusFailed
		summary.Events = append(summary.Events, map[string]any{
			"type":  "run_failed",
			"error": err.Error(),
			"time":  time.Now().UTC(),
		})
	}
	s.meter().run(ctx, s.now().Sub(start), status)

	if s.Runs != nil {
		b, _ := json.Marshal(summary)
		if ferr := s.Runs.FinishRun(context.WithoutCancel(ctx), runID, status, b); ferr != nil {
			log.Error().Err(ferr).Str("run_id", runID).Msg("failed to finish run")
		}
	}
	return summary, err
}

func (s *ReviewService) run(ctx context.Context, log zerolog.Logger, opts RunOptions) (RunSummary, error) {
	summary := RunSummary{Counts: map[string]any{}}
	start := time.Now()

	if opts.Cleanup {
		n, err := guard.ClearOlder(ctx, s.Guard, opts.WPQ, DefaultStaleAfter)
		if err != nil {
			return summary, fmt.Errorf("cleanup: %w", err)
		}
		summary.Events = append(summary.Events, map[string]any{
			"type":    "cleanup",
			"message": "Stale guard entries cleared",
			"count":   n,
			"time":    time.Now().UTC(),
		})
	}

	pos, err := s.Store.ListOpenPOs(ctx, opts.WPQ)
	if err != nil {
		return summary, fmt.Errorf("list open pos: %w", err)
	}
	summary.Events = append(summary.Events, map[string]any{
		"type":    "import_summary",
		"message": "Open POs ready for review",
		"count":   len(pos),
		"time":    time.Now().UTC(),
	})

	results := make([]POResult, len(pos))
	limit := s.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, po := range pos {
		g.Go(func() error {
			results[i] = s.reviewPO(gctx, log, po, opts)
			s.meter().result(gctx, results[i].Result, results[i].AuditTypeID)
			return nil
		})
	}
	_ = g.Wait()

	counts := map[string]int{}
	for _, r := range results {
		counts[r.Result]++
	}
	summary.Results = results
	summary.Events = append(summary.Events, map[string]any{
		"type":       "review",
		"message":    "Review complete",
		"elapsed_ms": time.Since(start).Milliseconds(),
		"time":       time.Now().UTC(),
	})
	summary.Counts["pos_reviewed"] = len(pos)
	for _, k := range []string{ResultDispatched, ResultNotDue, ResultInProgress, ResultComposeFailed, ResultDispatchFailed, ResultError} {
		summary.Counts[k] = counts[k]
	}
	return summary, nil
}

func (s *ReviewService) reviewPO(ctx context.Context, log zerolog.Logger, po models.PurchaseOrder, opts RunOptions) POResult {
	res := POResult{WPQNumber: po.WPQNumber}
	log = log.With().Str("wpq", po.WPQNumber).Logger()

	err := guard.Run(ctx, s.Guard, po.WPQNumber, opts.RequestID, func(ctx context.Context) error {
		return s.process(ctx, log, po, opts, &res)
	})
	switch {
	case errors.Is(err, guard.ErrHeld):
		res.Result = ResultInProgress
		log.Info().Msg("po already in progress")
	case errors.Is(err, ai.ErrMalformedResponse):
		res.Result = ResultComposeFailed
		res.Error = err.Error()
		log.Warn().Err(err).Msg("composer returned malformed action")
	case err != nil:
		res.Result = ResultError
		res.Error = err.Error()
		log.Error().Err(err).Msg("po review failed")
	}
	return res
}

func (s *ReviewService) process(ctx context.Context, log zerolog.Logger, po models.PurchaseOrder, opts RunOptions, res *POResult) error {
	items, err := s.Store.ListLineItems(ctx, po.WPQNumber)
	if err != nil {
		return fmt.Errorf("line items: %w", err)
	}
	history, err := s.Store.ListHistory(ctx, po.WPQNumber)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	d := s.Engine.Decide(po, items, history, s.now())
	res.AuditTypeID = d.AuditTypeID
	res.Reason = d.Reason
	if !d.Due {
		res.Result = ResultNotDue
		res.Wait = d.Wait.Round(time.Minute).String()
		return nil
	}

	comp, err := s.Composer.Compose(ctx, ai.ComposeRequest{
		PO:           po,
		Items:        items,
		History:      history,
		Decision:     d,
		TextLimit:    opts.TextLimit,
		VendorStatus: vendorStatus(po),
	})
	if err != nil {
		if errors.Is(err, ai.ErrMalformedResponse) {
			return err
		}
		return fmt.Errorf("compose: %w", err)
	}
	if comp.AuditTypeID != d.AuditTypeID {
		log.Warn().
			Int("decided", d.AuditTypeID).
			Int("composed", comp.AuditTypeID).
			Str("model", comp.ModelVersion).
			Msg("composer proposed a different audit type; keeping decision")
	}

	action := s.Engine.Finalize(po, d, comp.Draft(), opts.TextLimit)
	out, err := s.Dispatcher.Dispatch(ctx, po, action, opts.RequestID)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	res.Outcome = &out
	if out.Failed {
		res.Result = ResultDispatchFailed
		res.Error = out.Error
		return nil
	}
	res.Result = ResultDispatched
	log.Info().Int("audit_type", action.AuditTypeID).Str("channel", string(out.Channel)).Msg("action dispatched")
	return nil
}

func vendorStatus(po models.PurchaseOrder) string {
	if po.VendorSetupCompleted {
		return "setup completed"
	}
	return "setup pending"
}

type POStatus struct {
	PO       models.PurchaseOrder        `json:"po"`
	History  []models.CommunicationEvent `json:"history"`
	State    policy.State                `json:"state"`
	Decision policy.Decision             `json:"decision"`
	Holder   *guard.Entry                `json:"holder,omitempty"`
}

// Status reports what the next run would do for wpq without changing anything.
func (s *ReviewService) Status(ctx context.Context, wpq string) (POStatus, error) {
	po, err := s.Store.GetPO(ctx, wpq)
	if err != nil {
		return POStatus{}, err
	}
	items, err := s.Store.ListLineItems(ctx, wpq)
	if err != nil {
		return POStatus{}, fmt.Errorf("line items: %w", err)
	}
	history, err := s.Store.ListHistory(ctx, wpq)
	if err != nil {
		return POStatus{}, fmt.Errorf("history: %w", err)
	}
	now := s.now()
	st := POStatus{
		PO:       po,
		History:  history,
		State:    s.Engine.State(history, now),
		Decision: s.Engine.Decide(po, items, history, now),
	}
	if s.Guard != nil {
		e, held, err := s.Guard.Holder(ctx, wpq)
		if err != nil {
			return POStatus{}, fmt.Errorf("guard holder: %w", err)
		}
		if held {
			st.Holder = &e
		}
	}
	return st, nil
}

// Cleanup force-clears guard entries for wpq, or all entries when wpq is
// empty. A positive olderThan limits it to entries acquired before then.
func (s *ReviewService) Cleanup(ctx context.Context, wpq string, olderThan time.Duration) (int, error) {
	n, err := guard.ClearOlder(ctx, s.Guard, wpq, olderThan)
	if err != nil {
		return 0, err
	}
	s.Logger.Info().Str("wpq", wpq).Dur("older_than", olderThan).Int("cleared", n).Msg("guard cleanup")
	return n, nil
}

// LogVendorResponse records a vendor reply, which resets escalation. It holds
// the PO's guard key while recording and returns guard.ErrHeld when a review
// of the same PO is in progress.
func (s *ReviewService) LogVendorResponse(ctx context.Context, wpq, text, englishText, requestID string) (dispatch.Outcome, error) {
	po, err := s.Store.GetPO(ctx, wpq)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	action := s.Engine.VendorResponse(po, text, englishText)
	var out dispatch.Outcome
	err = guard.Run(ctx, s.Guard, po.WPQNumber, requestID, func(ctx context.Context) error {
		var derr error
		out, derr = s.Dispatcher.Dispatch(ctx, po, action, requestID)
		return derr
	})
	if errors.Is(err, guard.ErrHeld) {
		s.Logger.Info().Str("wpq", wpq).Msg("vendor reply deferred, po in progress")
	}
	return out, err
}
