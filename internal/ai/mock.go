package ai

import (
	"context"
	"fmt"
	"html"

	"github.com/supsol/poreview/internal/policy"
	"github.com/supsol/poreview/internal/utils"
)

// MockComposer produces deterministic text without calling a model.
type MockComposer struct {
	ModelVersion string
}

var mockOpenings = []string{
	"Dear %s,",
	"Hello %s,",
	"Good day %s,",
}

var mockClosings = []string{
	"<p>Thank you for your prompt attention.</p>",
	"<p>We appreciate your quick reply.</p>",
	"<p>Kind regards, the procurement team.</p>",
}

func (m MockComposer) Compose(ctx context.Context, req ComposeRequest) (Composition, error) {
	if err := ctx.Err(); err != nil {
		return Composition{}, err
	}
	d := req.Decision
	key := fmt.Sprintf("%s/%d/%d", req.PO.WPQNumber, d.AuditTypeID, len(req.History))

	name := orDefault(req.PO.VendorName, "supplier")
	if d.AuditTypeID == policy.AuditEscalate || d.AuditTypeID == policy.AuditCall {
		name = orDefault(req.PO.SupporterName, "team")
	}
	text := fmt.Sprintf("<p>"+mockOpenings[utils.StableIndex(key, len(mockOpenings))]+"</p>%s%s",
		html.EscapeString(name), d.Body, mockClosings[utils.StableIndex(key+"/closing", len(mockClosings))])

	return Composition{
		WPQNumber:       req.PO.WPQNumber,
		AuditTypeID:     d.AuditTypeID,
		ExecutionStatus: policy.ExecutionPending,
		ActionStatus:    policy.ActionOpen,
		Category:        policy.DefaultCategory,
		Service:         policy.DefaultService,
		Subject:         fmt.Sprintf("PO %s: %s", orNA(req.PO.PONumber), policy.ActionTitle(d.AuditTypeID)),
		Text:            text,
		EnglishText:     text,
		MailID:          d.MailID,
		ModelVersion:    m.ModelVersion,
	}, nil
}
