package ai

import (
	"context"
	"errors"

	"github.com/supsol/poreview/internal/models"
	"github.com/supsol/poreview/internal/policy"
)

// ErrMalformedResponse marks a model reply that is not a usable action.
var ErrMalformedResponse = errors.New("malformed model response")

// Composer writes the wording of an action the policy engine already chose.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (Composition, error)
}

type ComposeRequest struct {
	PO           models.PurchaseOrder
	Items        []models.LineItem
	History      []models.CommunicationEvent
	Decision     policy.Decision
	TextLimit    int
	VendorStatus string
}

// Composition mirrors the JSON object the model is asked to return.
type Composition struct {
	WPQNumber       string `json:"wpqNumber"`
	AuditTypeID     int    `json:"auditTypeID"`
	ExecutionStatus int    `json:"executionStatus"`
	ActionStatus    int    `json:"actionStatus"`
	Category        string `json:"category"`
	Service         string `json:"service"`
	Subject         string `json:"subject"`
	Text            string `json:"text"`
	EnglishText     string `json:"englishText"`
	MailID          string `json:"_MailID,omitempty"`
	ModelVersion    string `json:"-"`
}

func (c Composition) Draft() policy.Draft {
	return policy.Draft{Subject: c.Subject, Text: c.Text, EnglishText: c.EnglishText}
}
