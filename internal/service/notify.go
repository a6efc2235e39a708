package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/supsol/poreview/internal/dispatch"
	"github.com/supsol/poreview/internal/guard"
	"github.com/supsol/poreview/internal/models"
	"github.com/supsol/poreview/internal/transport"
)

// NotificationGuardKey serializes notification batches across processes.
const NotificationGuardKey = "whatsapp-notifications"

const (
	EnvTest = "test"
	EnvProd = "prod"
)

var ErrInvalidEnv = errors.New("env must be test or prod")

type NotificationStore interface {
	ListPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	MarkNotificationsSent(ctx context.Context, ids []int64, messageSID string) (int, error)
}

type NotificationOptions struct {
	TestPhone   string
	FromPhone   string
	FromPhoneIL string
	// TemplateHebrew is used for Hebrew-speaking vendors, TemplateOther for
	// everyone else.
	TemplateHebrew string
	TemplateOther  string
	BatchSize      int
}

type NotificationService struct {
	Store     NotificationStore
	Messenger transport.Messenger
	Guard     guard.Guard
	Runs      RunStore
	Opts      NotificationOptions
	Logger    zerolog.Logger
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider

	metricsOnce sync.Once
	metrics     *reviewMetrics
}

type NotificationResult struct {
	WPQNumber  string   `json:"wpq_number"`
	Recipients []string `json:"recipients"`
	MessageSID []string `json:"message_sids,omitempty"`
	Marked     int      `json:"marked"`
	InProgress bool     `json:"in_progress,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

type NotificationSummary struct {
	RunID      string               `json:"run_id,omitempty"`
	Env        string               `json:"env"`
	Pending    int                  `json:"pending"`
	Sent       int                  `json:"sent"`
	Failed     int                  `json:"failed"`
	InProgress int                  `json:"in_progress"`
	Skipped    bool                 `json:"skipped,omitempty"`
	Results    []NotificationResult `json:"results"`
}

// SendPending sends the approval template for every pending notification
// audit and marks the audits done. A batch already running elsewhere makes
// it return a skipped summary.
func (s *NotificationService) SendPending(ctx context.Context, env string) (NotificationSummary, error) {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		env = EnvTest
	}
	if env != EnvTest && env != EnvProd {
		return NotificationSummary{}, fmt.Errorf("%w: %q", ErrInvalidEnv, env)
	}
	if env == EnvTest && s.Opts.TestPhone == "" {
		return NotificationSummary{}, errors.New("test env requires a test phone number")
	}

	summary := NotificationSummary{Env: env}
	if s.Runs != nil {
		id, err := s.Runs.CreateRun(ctx, RunKindWhatsApp, RunStatusRunning)
		if err != nil {
			return summary, fmt.Errorf("create run: %w", err)
		}
		summary.RunID = id
	}

	owner := uuid.NewString()
	err := guard.Run(ctx, s.Guard, NotificationGuardKey, owner, func(ctx context.Context) error {
		return s.sendBatch(ctx, env, owner, &summary)
	})
	if errors.Is(err, guard.ErrHeld) {
		s.Logger.Info().Msg("notification batch already running")
		summary.Skipped = true
		err = nil
	}

	if s.Runs != nil {
		status := RunStatusCompleted
		if err != nil {
			status = RunStatusFailed
		}
		b, _ := json.Marshal(summary)
		if ferr := s.Runs.FinishRun(context.WithoutCancel(ctx), summary.RunID, status, b); ferr != nil {
			s.Logger.Error().Err(ferr).Str("run_id", summary.RunID).Msg("failed to finish run")
		}
	}
	return summary, err
}

func (s *NotificationService) sendBatch(ctx context.Context, env, owner string, summary *NotificationSummary) error {
	limit := s.Opts.BatchSize
	if limit <= 0 {
		limit = 100
	}
	pending, err := s.Store.ListPendingNotifications(ctx, limit)
	if err != nil {
		return fmt.Errorf("list pending notifications: %w", err)
	}
	summary.Pending = len(pending)
	s.Logger.Info().Str("env", env).Int("pending", len(pending)).Msg("notification batch started")

	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		var res NotificationResult
		err := guard.Run(ctx, s.Guard, n.WPQNumber, owner, func(ctx context.Context) error {
			res = s.notify(ctx, env, n)
			return nil
		})
		switch {
		case errors.Is(err, guard.ErrHeld):
			res = NotificationResult{WPQNumber: n.WPQNumber, InProgress: true}
			summary.InProgress++
			s.Logger.Info().Str("wpq", n.WPQNumber).Msg("po in progress, notification left pending")
		case err != nil:
			res.WPQNumber = n.WPQNumber
			res.Errors = append(res.Errors, err.Error())
			s.Logger.Error().Err(err).Str("wpq", n.WPQNumber).Msg("notification guard failed")
		}
		summary.Sent += len(res.MessageSID)
		summary.Failed += len(res.Errors)
		summary.Results = append(summary.Results, res)
	}
	return nil
}

func (s *NotificationService) notify(ctx context.Context, env string, n models.Notification) NotificationResult {
	res := NotificationResult{WPQNumber: n.WPQNumber, Recipients: s.Recipients(env, n)}
	log := s.Logger.With().Str("wpq", n.WPQNumber).Logger()
	if len(res.Recipients) == 0 {
		res.Errors = append(res.Errors, "no recipient")
		log.Warn().Msg("notification has no recipient")
		return res
	}

	po := models.PurchaseOrder{
		WPQNumber:     n.WPQNumber,
		PONumber:      n.PONumber,
		VendorName:    n.VendorName,
		VendorEmail:   n.VendorEmail,
		VendorCountry: n.VendorCountry,
	}
	for _, to := range res.Recipients {
		sent, err := s.Messenger.SendMessage(ctx, transport.Message{
			From:       s.fromPhone(n),
			To:         to,
			ContentSID: s.template(n),
			Variables:  dispatch.TemplateVariables(po),
		})
		s.meter().notification(ctx, err == nil)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", to, err))
			log.Error().Err(err).Str("to", to).Msg("whatsapp send failed")
			continue
		}
		res.MessageSID = append(res.MessageSID, sent.SID)
		marked, err := s.Store.MarkNotificationsSent(ctx, n.AuditLogIDs, sent.SID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("mark sent: %v", err))
			log.Error().Err(err).Msg("failed to mark notifications sent")
			continue
		}
		res.Marked += marked
		log.Info().Str("to", to).Str("sid", sent.SID).Str("status", sent.Status).Msg("whatsapp notification sent")
	}
	return res
}

// Recipients lists the distinct WhatsApp addresses for n: the vendor in
// prod, the test number in test, plus the supporter in both.
func (s *NotificationService) Recipients(env string, n models.Notification) []string {
	first := n.VendorPhone
	if env == EnvTest {
		first = s.Opts.TestPhone
	}
	var out []string
	seen := map[string]bool{}
	for _, p := range []string{first, n.SupporterPhone} {
		addr := transport.WhatsAppAddress(p)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

func (s *NotificationService) template(n models.Notification) string {
	lang := strings.ToLower(strings.TrimSpace(n.VendorLanguage))
	if lang == "" || lang == "hebrew" || lang == "he" || lang == "iw" {
		return s.Opts.TemplateHebrew
	}
	return s.Opts.TemplateOther
}

func (s *NotificationService) fromPhone(n models.Notification) string {
	if strings.EqualFold(n.VendorCountry, "Israel") && s.Opts.FromPhoneIL != "" {
		return s.Opts.FromPhoneIL
	}
	return s.Opts.FromPhone
}

func (s *NotificationService) meter() *reviewMetrics {
	s.metricsOnce.Do(func() { s.metrics = newReviewMetrics(s.MeterProvider) })
	return s.metrics
}
