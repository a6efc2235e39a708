package policy

import (
	"fmt"
	"html"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/supsol/poreview/internal/models"
)

const dateLayout = "2006-01-02 15:04:05"

var pricePrinter = message.NewPrinter(language.English)

// ComposeBody renders the factual part of an outbound message: the PO header,
// its line items and any vendor questions still waiting for an answer.
func ComposeBody(po models.PurchaseOrder, items []models.LineItem, questions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>PO %s (WPQ %s), created %s, urgency %s.</p>",
		html.EscapeString(orNA(po.PONumber)),
		html.EscapeString(orNA(po.WPQNumber)),
		FormatDate(&po.CreatedAt),
		html.EscapeString(orDefault(po.UrgencyType, "Not specified")),
	)
	if len(items) > 0 {
		b.WriteString("<ul>")
		for _, it := range items {
			fmt.Fprintf(&b, "<li>%s; initial %s; current %s; requested %s; cost %s</li>",
				html.EscapeString(orNA(it.Description)),
				FormatDate(it.InitialExecutionDate),
				FormatDate(it.CurrentExecutionDate),
				FormatDate(it.RequestedExecutionDate),
				FormatPrice(it.PurchasePrice),
			)
		}
		b.WriteString("</ul>")
	}
	if len(questions) > 0 {
		b.WriteString("<p>Open questions:</p><ul>")
		for _, q := range questions {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(strings.TrimSpace(q)))
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

// Truncate cuts s to at most limit runes. The cut never lands inside an
// HTML tag or a character entity; it moves back to the start of either.
// A non-positive limit disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := limit
	lastOpen, lastClose := -1, -1
	lastAmp, lastSemi := -1, -1
	for i := 0; i < cut; i++ {
		switch runes[i] {
		case '<':
			lastOpen = i
		case '>':
			lastClose = i
		case '&':
			lastAmp = i
		case ';', ' ', '\t', '\n':
			lastSemi = i
		}
	}
	if lastOpen > lastClose {
		cut = lastOpen
	}
	if lastAmp > lastSemi && lastAmp < cut {
		cut = lastAmp
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n")
}

// Wrap puts text in a directional container for the given language.
func Wrap(text, lang string, dir Direction) string {
	if dir != RTL {
		dir = LTR
	}
	return fmt.Sprintf(`<div dir="%s" lang="%s">%s</div>`, dir, html.EscapeString(lang), text)
}

// IsQuestion reports whether a vendor reply asks something.
func IsQuestion(text string) bool {
	return strings.ContainsAny(text, "?؟？")
}

// FormatDate renders t in the layout the PO API uses, or N/A.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "N/A"
	}
	return t.Format(dateLayout)
}

// FormatPrice renders p with a thousands separator and two decimals.
func FormatPrice(p *float64) string {
	if p == nil {
		return "N/A"
	}
	return pricePrinter.Sprintf("%.2f", *p)
}

func orNA(v string) string {
	return orDefault(v, "N/A")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
