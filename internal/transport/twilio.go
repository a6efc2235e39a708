package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioBaseURL = "https://api.twilio.com"

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	Timeout    time.Duration
}

// TwilioMessenger sends WhatsApp messages through the Twilio REST API.
type TwilioMessenger struct {
	cfg    TwilioConfig
	client *http.Client
}

func NewTwilioMessenger(cfg TwilioConfig) *TwilioMessenger {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &TwilioMessenger{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// TwilioError carries the error code Twilio reports.
type TwilioError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *TwilioError) Error() string {
	return fmt.Sprintf("twilio: %d (code %d): %s", e.Status, e.Code, e.Message)
}

func (t *TwilioMessenger) SendMessage(ctx context.Context, m Message) (SendResult, error) {
	if m.To == "" {
		return SendResult{}, fmt.Errorf("twilio: no recipient")
	}
	form := url.Values{}
	form.Set("From", WhatsAppAddress(m.From))
	form.Set("To", WhatsAppAddress(m.To))
	if m.ContentSID != "" {
		form.Set("ContentSid", m.ContentSID)
		vars, err := json.Marshal(m.Variables)
		if err != nil {
			return SendResult{}, err
		}
		form.Set("ContentVariables", string(vars))
	} else {
		form.Set("Body", m.Body)
	}

	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.cfg.BaseURL, url.PathEscape(t.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{}, err
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		te := &TwilioError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(te); err != nil || te.Message == "" {
			te.Message = http.StatusText(resp.StatusCode)
		}
		return SendResult{}, te
	}
	var res SendResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return SendResult{}, fmt.Errorf("twilio decode: %w", err)
	}
	return res, nil
}
