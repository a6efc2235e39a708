package ai

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/supsol/poreview/internal/policy"
)

//go:embed prompt.tmpl
var defaultPrompt string

const systemPrompt = "You are an assistant writing vendor communication for purchase orders. You only write text; you never decide the action."

type promptLine struct {
	Description string
	Initial     string
	Current     string
	Requested   string
	Cost        string
}

type promptEvent struct {
	Date        string
	AuditTypeID int
	Text        string
	MailID      string
	Subject     string
}

type promptData struct {
	Service      string
	Category     string
	WPQNumber    string
	PONumber     string
	CreationDate string
	UrgencyType  string
	VendorName   string
	VendorStatus string
	Language     string
	Direction    string
	AuditTypeID  int
	Action       string
	Questions    []string
	LineItems    []promptLine
	History      []promptEvent
	MailIDs      []promptEvent
	MailID       string
	Body         string
	TextLimit    int
}

// PromptBuilder renders the user prompt for a ComposeRequest.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder loads the template at path, or the built-in one when path
// is empty.
func NewPromptBuilder(path string) (*PromptBuilder, error) {
	src := defaultPrompt
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", path, err)
		}
		src = string(b)
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse prompt: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

func (p *PromptBuilder) Build(req ComposeRequest) (string, error) {
	d := req.Decision
	data := promptData{
		Service:      policy.DefaultService,
		Category:     policy.DefaultCategory,
		WPQNumber:    req.PO.WPQNumber,
		PONumber:     orNA(req.PO.PONumber),
		CreationDate: policy.FormatDate(&req.PO.CreatedAt),
		UrgencyType:  orDefault(req.PO.UrgencyType, "Not specified"),
		VendorName:   orNA(req.PO.VendorName),
		VendorStatus: orDefault(req.VendorStatus, "unknown"),
		Language:     d.Language,
		Direction:    string(d.Direction),
		AuditTypeID:  d.AuditTypeID,
		Action:       policy.ActionTitle(d.AuditTypeID),
		Questions:    d.Questions,
		MailID:       d.MailID,
		Body:         d.Body,
		TextLimit:    req.TextLimit,
	}
	for _, it := range req.Items {
		data.LineItems = append(data.LineItems, promptLine{
			Description: orNA(it.Description),
			Initial:     policy.FormatDate(it.InitialExecutionDate),
			Current:     policy.FormatDate(it.CurrentExecutionDate),
			Requested:   policy.FormatDate(it.RequestedExecutionDate),
			Cost:        policy.FormatPrice(it.PurchasePrice),
		})
	}
	for _, ev := range req.History {
		at := ev.CreatedAt
		pe := promptEvent{
			Date:        policy.FormatDate(&at),
			AuditTypeID: ev.AuditTypeID,
			Text:        orNA(ev.Text),
			MailID:      orNA(ev.MailID),
			Subject:     orNA(ev.Subject),
		}
		data.History = append(data.History, pe)
		if ev.MailID != "" {
			data.MailIDs = append(data.MailIDs, pe)
		}
	}

	var b strings.Builder
	if err := p.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

func orNA(v string) string {
	return orDefault(v, "N/A")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
