package dispatch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/supsol/poreview/internal/models"
	"github.com/supsol/poreview/internal/policy"
	"github.com/supsol/poreview/internal/transport"
)

// Recorder appends a communication event and moves the PO's escalation
// level in the same transaction.
type Recorder interface {
	RecordEvent(ctx context.Context, ev models.CommunicationEvent, level int) (models.CommunicationEvent, error)
}

type AuditPoster interface {
	CreateAudit(ctx context.Context, action models.AuditAction) error
}

type Options struct {
	TestMode bool
	// TestEmail and TestPhone replace vendor recipients in test mode.
	TestEmail string
	TestPhone string
	// FromPhone is the WhatsApp sender; FromPhoneIL is used for vendors in Israel.
	FromPhone   string
	FromPhoneIL string
	// MessageContentSID sends 900 messages as an approved template.
	MessageContentSID string
}

type Dispatcher struct {
	Mailer    transport.Mailer
	Messenger transport.Messenger
	Calls     transport.CallFlagger
	Audits    AuditPoster
	Recorder  Recorder
	Limiter   *rate.Limiter
	Opts      Options
	Log       zerolog.Logger
	Now       func() time.Time
}

// Outcome reports what happened to one action. A transport failure is not
// an error of Dispatch; it is recorded and reported here.
type Outcome struct {
	WPQNumber   string         `json:"wpq_number"`
	AuditTypeID int            `json:"audit_type_id"`
	Channel     models.Channel `json:"channel"`
	Recipients  []string       `json:"recipients,omitempty"`
	MessageSID  string         `json:"message_sid,omitempty"`
	Failed      bool           `json:"failed"`
	Error       string         `json:"error,omitempty"`
	AuditError  string         `json:"audit_error,omitempty"`
	EventID     int64          `json:"event_id"`
}

var errNoRecipient = errors.New("no recipient")

// Dispatch sends action through the channel its audit code maps to and
// records the resulting event. It returns an error only when the event could
// not be recorded or ctx ended while waiting for the rate limiter.
func (d *Dispatcher) Dispatch(ctx context.Context, po models.PurchaseOrder, action models.AuditAction, requestID string) (Outcome, error) {
	ch := policy.ChannelForCode(action.AuditTypeID)
	out := Outcome{WPQNumber: po.WPQNumber, AuditTypeID: action.AuditTypeID, Channel: ch}
	if ch == "" {
		return out, fmt.Errorf("unknown audit type %d", action.AuditTypeID)
	}
	if d.Opts.TestMode && ch != models.ChannelResponse {
		action.Subject = "[TEST] " + action.Subject
	}

	var sendErr error
	if ch != models.ChannelResponse {
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return out, fmt.Errorf("rate limiter: %w", err)
			}
		}
		out.Recipients, out.MessageSID, sendErr = d.send(ctx, po, action, ch)
	}
	if sendErr != nil {
		out.Failed = true
		out.Error = sendErr.Error()
		d.Log.Warn().Err(sendErr).Str("wpq", po.WPQNumber).Int("audit_type", action.AuditTypeID).Msg("dispatch failed")
	}

	if !out.Failed && d.Audits != nil {
		if err := d.Audits.CreateAudit(ctx, action); err != nil {
			out.AuditError = err.Error()
			d.Log.Warn().Err(err).Str("wpq", po.WPQNumber).Msg("po api audit create failed")
		}
	}

	level := int(policy.LevelForCode(action.AuditTypeID))
	if ch == models.ChannelResponse {
		level = int(policy.LevelEmail)
	}
	ev, err := d.Recorder.RecordEvent(ctx, models.CommunicationEvent{
		WPQNumber:        po.WPQNumber,
		Channel:          ch,
		AuditTypeID:      action.AuditTypeID,
		Subject:          action.Subject,
		Text:             action.Text,
		EnglishText:      action.EnglishText,
		MailID:           action.MailID,
		ResponseReceived: ch == models.ChannelResponse,
		Failed:           out.Failed,
		Error:            out.Error,
		RequestID:        requestID,
		CreatedAt:        d.now(),
	}, level)
	if err != nil {
		return out, fmt.Errorf("record event: %w", err)
	}
	out.EventID = ev.ID
	return out, nil
}

func (d *Dispatcher) send(ctx context.Context, po models.PurchaseOrder, action models.AuditAction, ch models.Channel) ([]string, string, error) {
	switch ch {
	case models.ChannelEmail:
		to := d.vendorEmail(po)
		if to == "" {
			return nil, "", fmt.Errorf("email: %w", errNoRecipient)
		}
		var cc []string
		if po.SupporterEmail != "" && po.SupporterEmail != to {
			cc = append(cc, po.SupporterEmail)
		}
		err := d.Mailer.SendMail(ctx, transport.Mail{To: []string{to}, CC: cc, Subject: action.Subject, HTML: action.Text})
		return append([]string{to}, cc...), "", err

	case models.ChannelMessage:
		to := d.vendorPhone(po)
		if to == "" {
			return nil, "", fmt.Errorf("message: %w", errNoRecipient)
		}
		msg := transport.Message{From: d.fromPhone(po), To: to}
		if d.Opts.MessageContentSID != "" {
			msg.ContentSID = d.Opts.MessageContentSID
			msg.Variables = TemplateVariables(po)
		} else {
			msg.Body = PlainText(action.Text)
		}
		res, err := d.Messenger.SendMessage(ctx, msg)
		return []string{to}, res.SID, err

	case models.ChannelCall:
		to := d.supporterEmail(po)
		if to == "" {
			return nil, "", fmt.Errorf("call: %w", errNoRecipient)
		}
		return []string{to}, "", d.Calls.FlagCall(ctx, po, action, []string{to})

	case models.ChannelEscalation:
		to := d.supporterEmail(po)
		if to == "" {
			return nil, "", fmt.Errorf("escalation: %w", errNoRecipient)
		}
		err := d.Mailer.SendMail(ctx, transport.Mail{To: []string{to}, Subject: action.Subject, HTML: action.EnglishText})
		return []string{to}, "", err
	}
	return nil, "", fmt.Errorf("no transport for channel %q", ch)
}

func (d *Dispatcher) vendorEmail(po models.PurchaseOrder) string {
	if d.Opts.TestMode {
		return firstNonEmpty(d.Opts.TestEmail, po.SupporterEmail)
	}
	return strings.TrimSpace(po.VendorEmail)
}

func (d *Dispatcher) vendorPhone(po models.PurchaseOrder) string {
	if d.Opts.TestMode {
		return d.Opts.TestPhone
	}
	return strings.TrimSpace(po.VendorPhone)
}

func (d *Dispatcher) supporterEmail(po models.PurchaseOrder) string {
	if d.Opts.TestMode && d.Opts.TestEmail != "" {
		return d.Opts.TestEmail
	}
	return strings.TrimSpace(po.SupporterEmail)
}

func (d *Dispatcher) fromPhone(po models.PurchaseOrder) string {
	if strings.EqualFold(po.VendorCountry, "Israel") && d.Opts.FromPhoneIL != "" {
		return d.Opts.FromPhoneIL
	}
	return d.Opts.FromPhone
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// TemplateVariables fills the WhatsApp approval template.
func TemplateVariables(po models.PurchaseOrder) map[string]string {
	return map[string]string{
		"1": firstNonEmpty(po.VendorName, "Dear Sir/Madam"),
		"2": po.PONumber,
		"3": po.VendorEmail,
	}
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	blankRe = regexp.MustCompile(`[ \t]+`)
)

// PlainText strips markup for channels that cannot render HTML.
func PlainText(s string) string {
	s = strings.NewReplacer("</p>", "\n", "<br>", "\n", "<br/>", "\n", "</li>", "\n").Replace(s)
	s = html.UnescapeString(tagRe.ReplaceAllString(s, ""))
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(blankRe.ReplaceAllString(l, " ")); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
