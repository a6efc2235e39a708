package policy

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/supsol/poreview/internal/models"
)

var eventCodes = []int{AuditSendEmail, AuditText, AuditCall, AuditEscalate, AuditVendorResponse}

func genHistory(t *rapid.T) []models.CommunicationEvent {
	n := rapid.IntRange(0, 12).Draw(t, "n")
	at := t0
	out := make([]models.CommunicationEvent, 0, n)
	for i := 0; i < n; i++ {
		at = at.Add(time.Duration(rapid.IntRange(1, 72).Draw(t, "gap")) * time.Hour)
		code := rapid.SampledFrom(eventCodes).Draw(t, "code")
		e := ev(code, at)
		if code == AuditVendorResponse {
			e.ResponseReceived = true
			e.Text = rapid.SampledFrom([]string{"ok", "approved", "when?"}).Draw(t, "text")
		} else {
			e.Failed = rapid.IntRange(0, 9).Draw(t, "fail") == 0
		}
		out = append(out, e)
	}
	return out
}

func lastAt(history []models.CommunicationEvent) time.Time {
	if len(history) == 0 {
		return t0
	}
	return history[len(history)-1].CreatedAt
}

func TestPropertyResponseResetsLevel(t *testing.T) {
	e := testEngine()
	rapid.Check(t, func(t *rapid.T) {
		history := genHistory(t)
		at := lastAt(history).Add(time.Minute)
		history = append(history, reply("ok", at))
		now := at.Add(time.Duration(rapid.IntRange(0, 200).Draw(t, "after")) * time.Hour)

		d := e.Decide(testPO(), nil, history, now)
		if d.State.Level != LevelEmail {
			t.Fatalf("level after response = %v, want email", d.State.Level)
		}
		if d.AuditTypeID != AuditSendEmail || !d.Due {
			t.Fatalf("decision after response = %d due=%v", d.AuditTypeID, d.Due)
		}
	})
}

func TestPropertyFailedAttemptsKeepResponseCurrent(t *testing.T) {
	e := testEngine()
	rapid.Check(t, func(t *rapid.T) {
		history := genHistory(t)
		at := lastAt(history).Add(time.Minute)
		text := rapid.SampledFrom([]string{"ok", "when?", "Which address?"}).Draw(t, "reply")
		history = append(history, reply(text, at))
		now := at.Add(time.Duration(rapid.IntRange(1, 100).Draw(t, "after")) * time.Hour)
		want := e.Decide(testPO(), nil, history, now)

		failures := rapid.IntRange(1, 4).Draw(t, "failures")
		for i := 0; i < failures; i++ {
			at = at.Add(time.Minute)
			history = append(history, failedEv(rapid.SampledFrom([]int{AuditSendEmail, AuditText, AuditCall, AuditEscalate}).Draw(t, "failed"), at))
		}
		got := e.Decide(testPO(), nil, history, now)
		if got.AuditTypeID != want.AuditTypeID || got.Reason != want.Reason || got.Due != want.Due {
			t.Fatalf("after %d failed attempts got %d/%s, want %d/%s", failures, got.AuditTypeID, got.Reason, want.AuditTypeID, want.Reason)
		}
	})
}

func TestPropertyFewEmailsStayAtEmail(t *testing.T) {
	e := testEngine()
	rapid.Check(t, func(t *rapid.T) {
		var history []models.CommunicationEvent
		emails := rapid.IntRange(0, e.MaxEmailAttempts-1).Draw(t, "emails")
		at := t0
		for i := 0; i < emails; i++ {
			at = at.Add(time.Duration(rapid.IntRange(1, 100).Draw(t, "gap")) * time.Hour)
			history = append(history, ev(AuditSendEmail, at))
		}
		now := at.Add(time.Duration(rapid.IntRange(0, 500).Draw(t, "after")) * time.Hour)

		d := e.Decide(testPO(), nil, history, now)
		if d.AuditTypeID != AuditSendEmail {
			t.Fatalf("with %d emails got code %d", emails, d.AuditTypeID)
		}
	})
}

func TestPropertyLevelNeverDecreasesWithoutResponse(t *testing.T) {
	e := testEngine()
	rapid.Check(t, func(t *rapid.T) {
		history := genHistory(t)
		at := lastAt(history).Add(time.Hour)
		before := e.State(history, at)

		code := rapid.SampledFrom([]int{AuditSendEmail, AuditText, AuditCall, AuditEscalate}).Draw(t, "next")
		after := e.State(append(history, ev(code, at)), at)
		if !before.ResponseReceived && after.Level < before.Level {
			t.Fatalf("level dropped from %v to %v on %d", before.Level, after.Level, code)
		}
	})
}

func TestPropertyNoEscalationBeforeTimeframe(t *testing.T) {
	e := testEngine()
	rapid.Check(t, func(t *rapid.T) {
		history := genHistory(t)
		st := e.State(history, lastAt(history))
		if st.ResponseReceived || st.LastAttemptAt == nil {
			return
		}
		window := e.Timeframes.For(st.Level)
		now := st.LastAttemptAt.Add(time.Duration(rapid.Int64Range(0, int64(window)-1).Draw(t, "offset")))

		d := e.Decide(testPO(), nil, history, now)
		if d.Due {
			t.Fatalf("due %v before timeframe at level %v", now.Sub(*st.LastAttemptAt), st.Level)
		}
		if d.AuditTypeID != CodeForLevel(st.Level) {
			t.Fatalf("code %d, want %d", d.AuditTypeID, CodeForLevel(st.Level))
		}
	})
}

func TestPropertyDirectionDeterministic(t *testing.T) {
	tbl := NewLanguageTable("en")
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.OneOf(
			rapid.SampledFrom([]string{"he", "ar", "en", "Hebrew", "fa-IR", "ru", ""}),
			rapid.String(),
		).Draw(t, "raw")
		c1, d1 := tbl.Resolve(raw)
		c2, d2 := tbl.Resolve(raw)
		if c1 != c2 || d1 != d2 {
			t.Fatalf("Resolve(%q) not stable: %s/%s vs %s/%s", raw, c1, d1, c2, d2)
		}
		if d1 != LTR && d1 != RTL {
			t.Fatalf("Resolve(%q) direction %q", raw, d1)
		}
	})
}
