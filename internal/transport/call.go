package transport

import (
	"context"
	"fmt"
	"html"

	"github.com/supsol/poreview/internal/models"
)

// CallFlagger asks the supporter to phone the vendor. There is no telephony
// integration; the request travels as an email.
type CallFlagger struct {
	Mailer Mailer
}

func (f CallFlagger) FlagCall(ctx context.Context, po models.PurchaseOrder, action models.AuditAction, to []string) error {
	phone := po.VendorPhone
	if phone == "" {
		phone = "unknown"
	}
	body := fmt.Sprintf("<p>Please call %s at %s about PO %s (WPQ %s).</p>%s",
		html.EscapeString(po.VendorName),
		html.EscapeString(phone),
		html.EscapeString(po.PONumber),
		html.EscapeString(po.WPQNumber),
		action.EnglishText,
	)
	return f.Mailer.SendMail(ctx, Mail{
		To:      to,
		Subject: "Call request: " + action.Subject,
		HTML:    body,
	})
}
