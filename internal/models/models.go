package models

import (
	"encoding/json"
	"time"
)

const (
	POStatusOpen   = "Open"
	POStatusClosed = "Closed"
)

type PurchaseOrder struct {
	WPQNumber            string    `json:"wpq_number"`
	PONumber             string    `json:"po_number"`
	CreatedAt            time.Time `json:"created_at"`
	UrgencyType          string    `json:"urgency_type"`
	Status               string    `json:"status"`
	VendorID             string    `json:"vendor_id"`
	VendorName           string    `json:"vendor_name"`
	VendorEmail          string    `json:"vendor_email"`
	VendorPhone          string    `json:"vendor_phone"`
	VendorLanguage       string    `json:"vendor_language"`
	VendorCountry        string    `json:"vendor_country"`
	VendorSetupCompleted bool      `json:"vendor_setup_completed"`
	SupporterName        string    `json:"supporter_name"`
	SupporterEmail       string    `json:"supporter_email"`
	SupporterPhone       string    `json:"supporter_phone"`
	EscalationLevel      int       `json:"escalation_level"`
}

type LineItem struct {
	ItemID                 int64      `json:"item_id"`
	WPQNumber              string     `json:"wpq_number"`
	Description            string     `json:"description"`
	InitialExecutionDate   *time.Time `json:"initial_execution_date"`
	CurrentExecutionDate   *time.Time `json:"current_execution_date"`
	RequestedExecutionDate *time.Time `json:"requested_execution_date"`
	PurchasePrice          *float64   `json:"purchase_price"`
}

type Channel string

const (
	ChannelEmail      Channel = "email"
	ChannelMessage    Channel = "message"
	ChannelCall       Channel = "call"
	ChannelEscalation Channel = "escalation"
	ChannelResponse   Channel = "response"
)

// CommunicationEvent is one outreach attempt or vendor reply. Rows are never
// updated once written.
type CommunicationEvent struct {
	ID               int64     `json:"id"`
	WPQNumber        string    `json:"wpq_number"`
	Channel          Channel   `json:"channel"`
	AuditTypeID      int       `json:"audit_type_id"`
	Subject          string    `json:"subject"`
	Text             string    `json:"text"`
	EnglishText      string    `json:"english_text"`
	MailID           string    `json:"mail_id,omitempty"`
	ResponseReceived bool      `json:"response_received"`
	Failed           bool      `json:"failed"`
	Error            string    `json:"error,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// AuditAction is the envelope posted to the PO API for every decided action.
type AuditAction struct {
	WPQNumber       string  `json:"wpqNumber"`
	AuditTypeID     int     `json:"auditTypeID"`
	Channel         Channel `json:"-"`
	ExecutionStatus int     `json:"executionStatus"`
	ActionStatus    int     `json:"actionStatus"`
	Category        string  `json:"category"`
	Service         string  `json:"service"`
	Subject         string  `json:"subject"`
	Text            string  `json:"text"`
	EnglishText     string  `json:"englishText"`
	MailID          string  `json:"_MailID"`
	ConversationID  int64   `json:"_ConversationID"`
	Language        string  `json:"-"`
	Direction       string  `json:"-"`
}

// Notification is a pending WhatsApp notification audit joined with the
// vendor and supporter contact data.
type Notification struct {
	WPQNumber      string  `json:"wpq_number"`
	PONumber       string  `json:"po_number"`
	VendorName     string  `json:"vendor_name"`
	VendorPhone    string  `json:"vendor_phone"`
	VendorEmail    string  `json:"vendor_email"`
	VendorLanguage string  `json:"vendor_language"`
	VendorCountry  string  `json:"vendor_country"`
	SupporterName  string  `json:"supporter_name"`
	SupporterPhone string  `json:"supporter_phone"`
	AuditLogIDs    []int64 `json:"audit_log_ids"`
}

type Run struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	Status     string          `json:"status"`
	Summary    json.RawMessage `json:"summary" swaggertype:"object"`
}
