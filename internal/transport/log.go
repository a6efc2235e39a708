package transport

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogMailer only logs what would have been sent.
type LogMailer struct {
	Log zerolog.Logger
}

func (l LogMailer) SendMail(_ context.Context, m Mail) error {
	l.Log.Info().
		Str("to", strings.Join(m.To, ",")).
		Str("cc", strings.Join(m.CC, ",")).
		Str("subject", m.Subject).
		Int("html_len", len(m.HTML)).
		Msg("dry-run mail")
	return nil
}

// LogMessenger only logs what would have been sent.
type LogMessenger struct {
	Log zerolog.Logger
}

func (l LogMessenger) SendMessage(_ context.Context, m Message) (SendResult, error) {
	sid := "dry-" + uuid.NewString()
	l.Log.Info().
		Str("to", m.To).
		Str("content_sid", m.ContentSID).
		Str("sid", sid).
		Msg("dry-run message")
	return SendResult{SID: sid, Status: "queued"}, nil
}
