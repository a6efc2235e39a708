package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// Mail is one outbound HTML email.
type Mail struct {
	To      []string
	CC      []string
	Subject string
	HTML    string
}

type Mailer interface {
	SendMail(ctx context.Context, m Mail) error
}

// Message is one outbound WhatsApp message. When ContentSID is set the
// approved template is sent with Variables and Body is ignored.
type Message struct {
	From       string
	To         string
	Body       string
	ContentSID string
	Variables  map[string]string
}

type SendResult struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type Messenger interface {
	SendMessage(ctx context.Context, m Message) (SendResult, error)
}

// HTTPError is returned for a non-success response from a remote API.
type HTTPError struct {
	Service string
	Status  int
	Body    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Service, e.Status, e.Body)
}

func httpError(service string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPError{Service: service, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

var nonDigits = regexp.MustCompile(`\D`)

// WhatsAppAddress turns a free-form phone number into a WhatsApp address.
// It returns "" when the number has no digits.
func WhatsAppAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	digits := nonDigits.ReplaceAllString(phone, "")
	if digits == "" {
		return ""
	}
	return "whatsapp:+" + digits
}
