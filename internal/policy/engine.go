package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/supsol/poreview/internal/models"
)

const (
	ReasonNoHistory          = "no_history"
	ReasonNoDelivered        = "no_delivered_attempt"
	ReasonVendorResponded    = "vendor_responded"
	ReasonUnansweredQuestion = "unanswered_vendor_question"
	ReasonEmailFollowUp      = "email_follow_up"
	ReasonEmailExhausted     = "email_timeframe_elapsed"
	ReasonMessageExhausted   = "message_timeframe_elapsed"
	ReasonCallExhausted      = "call_timeframe_elapsed"
	ReasonEscalationReminder = "escalation_reminder"
	ReasonWaiting            = "timeframe_not_elapsed"
)

const (
	ExecutionPending = 0
	ExecutionDone    = 999
	ActionOpen       = 1
	DefaultCategory  = "PO Approval"
	DefaultService   = "Vendor Setup"
)

// Timeframes is how long each channel waits for a vendor reply before the
// next level is tried.
type Timeframes struct {
	Email      time.Duration `yaml:"email"`
	Message    time.Duration `yaml:"message"`
	Call       time.Duration `yaml:"call"`
	Escalation time.Duration `yaml:"escalation"`
}

func DefaultTimeframes() Timeframes {
	return Timeframes{
		Email:      48 * time.Hour,
		Message:    24 * time.Hour,
		Call:       24 * time.Hour,
		Escalation: 48 * time.Hour,
	}
}

func (t Timeframes) For(l Level) time.Duration {
	switch l {
	case LevelMessage:
		return t.Message
	case LevelCall:
		return t.Call
	case LevelEscalation:
		return t.Escalation
	default:
		return t.Email
	}
}

// State is derived from the communication history; it is never stored.
type State struct {
	Level            Level                  `json:"level"`
	LastChannel      models.Channel         `json:"last_channel,omitempty"`
	Attempts         map[models.Channel]int `json:"attempts"`
	LastAttemptAt    *time.Time             `json:"last_attempt_at,omitempty"`
	Elapsed          time.Duration          `json:"elapsed"`
	ResponseReceived bool                   `json:"response_received"`
	LastResponse     string                 `json:"last_response,omitempty"`
}

type Decision struct {
	WPQNumber   string         `json:"wpq_number"`
	State       State          `json:"state"`
	AuditTypeID int            `json:"audit_type_id"`
	Channel     models.Channel `json:"channel"`
	Due         bool           `json:"due"`
	Wait        time.Duration  `json:"wait"`
	Reason      string         `json:"reason"`
	Body        string         `json:"body"`
	Questions   []string       `json:"questions,omitempty"`
	Language    string         `json:"language"`
	Direction   Direction      `json:"direction"`
	MailID      string         `json:"mail_id,omitempty"`
}

// Draft is the composed wording of an action before it is finalized.
type Draft struct {
	Subject     string
	Text        string
	EnglishText string
}

type Engine struct {
	Timeframes       Timeframes
	Languages        *LanguageTable
	MaxEmailAttempts int
	// KnowledgeAllowed lets vendor questions flow to the composer instead of
	// deferring them to a supporter.
	KnowledgeAllowed bool
}

func NewEngine(tf Timeframes, langs *LanguageTable) *Engine {
	if langs == nil {
		langs = NewLanguageTable("en")
	}
	return &Engine{Timeframes: tf, Languages: langs, MaxEmailAttempts: 2}
}

func isResponse(ev models.CommunicationEvent) bool {
	return ev.AuditTypeID == AuditVendorResponse || ev.ResponseReceived || ev.Channel == models.ChannelResponse
}

func chronological(history []models.CommunicationEvent) []models.CommunicationEvent {
	out := make([]models.CommunicationEvent, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// State computes the escalation state at now.
func (e *Engine) State(history []models.CommunicationEvent, now time.Time) State {
	return e.state(chronological(history), now)
}

func (e *Engine) state(events []models.CommunicationEvent, now time.Time) State {
	st := State{Level: LevelEmail, Attempts: map[models.Channel]int{}}
	if len(events) == 0 {
		return st
	}

	lastResp := -1
	for i, ev := range events {
		if isResponse(ev) {
			lastResp = i
		}
	}
	for _, ev := range events[lastResp+1:] {
		if ev.Failed || !IsOutbound(ev.AuditTypeID) {
			continue
		}
		ch := ChannelForCode(ev.AuditTypeID)
		st.Attempts[ch]++
		if lvl := LevelForCode(ev.AuditTypeID); lvl > st.Level {
			st.Level = lvl
		}
		at := ev.CreatedAt
		st.LastAttemptAt = &at
		st.LastChannel = ch
	}
	// a response is current until a delivered attempt follows it
	if lastResp >= 0 && st.LastAttemptAt == nil {
		st.ResponseReceived = true
		st.LastResponse = events[lastResp].Text
		return st
	}
	if st.LastAttemptAt != nil {
		st.Elapsed = now.Sub(*st.LastAttemptAt)
	}
	return st
}

// Decide picks the next action for a PO. It never escalates before the
// current level's timeframe has elapsed; in that case it re-emits the
// current level's code with Due set to false.
func (e *Engine) Decide(po models.PurchaseOrder, items []models.LineItem, history []models.CommunicationEvent, now time.Time) Decision {
	events := chronological(history)
	st := e.state(events, now)
	lang, dir := e.Languages.Resolve(po.VendorLanguage)
	questions := unresolvedQuestions(events)

	d := Decision{
		WPQNumber: po.WPQNumber,
		State:     st,
		Language:  lang,
		Direction: dir,
		Questions: questions,
		MailID:    lastMailID(events),
	}

	switch {
	case st.ResponseReceived && IsQuestion(st.LastResponse) && !e.KnowledgeAllowed:
		d.set(AuditEscalate, true, ReasonUnansweredQuestion)
	case st.ResponseReceived:
		d.set(AuditSendEmail, true, ReasonVendorResponded)
	case st.LastAttemptAt == nil && len(events) == 0:
		d.set(AuditSendEmail, true, ReasonNoHistory)
	case st.LastAttemptAt == nil:
		d.set(AuditSendEmail, true, ReasonNoDelivered)
	default:
		e.advance(&d, st)
	}

	d.Body = ComposeBody(po, items, questions)
	return d
}

func (e *Engine) advance(d *Decision, st State) {
	window := e.Timeframes.For(st.Level)
	if st.Elapsed < window {
		d.set(CodeForLevel(st.Level), false, ReasonWaiting)
		d.Wait = window - st.Elapsed
		return
	}
	switch st.Level {
	case LevelEmail:
		if st.Attempts[models.ChannelEmail] < e.maxEmails() {
			d.set(AuditSendEmail, true, ReasonEmailFollowUp)
			return
		}
		d.set(AuditText, true, ReasonEmailExhausted)
	case LevelMessage:
		d.set(AuditCall, true, ReasonMessageExhausted)
	case LevelCall:
		d.set(AuditEscalate, true, ReasonCallExhausted)
	default:
		d.set(AuditEscalate, true, ReasonEscalationReminder)
	}
}

func (d *Decision) set(code int, due bool, reason string) {
	d.AuditTypeID = code
	d.Channel = ChannelForCode(code)
	d.Due = due
	d.Reason = reason
}

func (e *Engine) maxEmails() int {
	if e.MaxEmailAttempts <= 0 {
		return 2
	}
	return e.MaxEmailAttempts
}

// Finalize turns a decision and its composed wording into the action that is
// dispatched. The decision's code always wins over whatever the composer
// proposed; the localized text is truncated and wrapped for the vendor's
// language, the English text is wrapped left-to-right.
func (e *Engine) Finalize(po models.PurchaseOrder, d Decision, draft Draft, textLimit int) models.AuditAction {
	text := strings.TrimSpace(draft.Text)
	if text == "" {
		text = d.Body
	}
	english := strings.TrimSpace(draft.EnglishText)
	if english == "" {
		english = d.Body
	}
	subject := strings.TrimSpace(draft.Subject)
	if subject == "" {
		subject = fmt.Sprintf("PO %s: %s", orNA(po.PONumber), ActionTitle(d.AuditTypeID))
	}
	return models.AuditAction{
		WPQNumber:       po.WPQNumber,
		AuditTypeID:     d.AuditTypeID,
		Channel:         d.Channel,
		ExecutionStatus: ExecutionPending,
		ActionStatus:    ActionOpen,
		Category:        DefaultCategory,
		Service:         DefaultService,
		Subject:         subject,
		Text:            Wrap(Truncate(text, textLimit), d.Language, d.Direction),
		EnglishText:     Wrap(Truncate(english, textLimit), "en", LTR),
		MailID:          d.MailID,
		Language:        d.Language,
		Direction:       string(d.Direction),
	}
}

// VendorResponse builds the action that logs a vendor reply.
func (e *Engine) VendorResponse(po models.PurchaseOrder, text, englishText string) models.AuditAction {
	lang, dir := e.Languages.Resolve(po.VendorLanguage)
	if strings.TrimSpace(englishText) == "" {
		englishText = text
	}
	return models.AuditAction{
		WPQNumber:       po.WPQNumber,
		AuditTypeID:     AuditVendorResponse,
		Channel:         models.ChannelResponse,
		ExecutionStatus: ExecutionDone,
		ActionStatus:    ActionOpen,
		Category:        DefaultCategory,
		Service:         DefaultService,
		Subject:         fmt.Sprintf("PO %s: %s", orNA(po.PONumber), ActionTitle(AuditVendorResponse)),
		Text:            strings.TrimSpace(text),
		EnglishText:     strings.TrimSpace(englishText),
		Language:        lang,
		Direction:       string(dir),
	}
}

// unresolvedQuestions returns vendor questions with no successful outbound
// attempt after them.
func unresolvedQuestions(events []models.CommunicationEvent) []string {
	var out []string
	for i, ev := range events {
		if !isResponse(ev) || !IsQuestion(ev.Text) {
			continue
		}
		answered := false
		for _, later := range events[i+1:] {
			if !later.Failed && IsOutbound(later.AuditTypeID) {
				answered = true
				break
			}
		}
		if !answered {
			out = append(out, ev.Text)
		}
	}
	return out
}

func lastMailID(events []models.CommunicationEvent) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].MailID != "" && !events[i].Failed {
			return events[i].MailID
		}
	}
	return ""
}
