package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	graphBaseURL = "https://graph.microsoft.com"
	graphScope   = "https://graph.microsoft.com/.default"
)

type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
	// BaseURL and TokenURL override the Microsoft endpoints.
	BaseURL  string
	TokenURL string
	Timeout  time.Duration
}

// GraphMailer sends mail as Sender through Microsoft Graph using an app-only
// token.
type GraphMailer struct {
	baseURL string
	sender  string
	client  *http.Client
}

func NewGraphMailer(ctx context.Context, cfg GraphConfig) *GraphMailer {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	}
	base := cfg.BaseURL
	if base == "" {
		base = graphBaseURL
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}
	client := cc.Client(ctx)
	client.Timeout = cfg.Timeout
	if client.Timeout == 0 {
		client.Timeout = 30 * time.Second
	}
	return &GraphMailer{baseURL: strings.TrimRight(base, "/"), sender: cfg.Sender, client: client}
}

type graphAddress struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func graphAddresses(in []string) []graphAddress {
	var out []graphAddress
	for _, a := range in {
		if strings.TrimSpace(a) == "" {
			continue
		}
		var g graphAddress
		g.EmailAddress.Address = strings.TrimSpace(a)
		out = append(out, g)
	}
	return out
}

func (g *GraphMailer) SendMail(ctx context.Context, m Mail) error {
	to := graphAddresses(m.To)
	if len(to) == 0 {
		return fmt.Errorf("graph: no recipients")
	}
	type body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	}
	type message struct {
		Subject string         `json:"subject"`
		Body    body           `json:"body"`
		To      []graphAddress `json:"toRecipients"`
		CC      []graphAddress `json:"ccRecipients,omitempty"`
		From    *graphAddress  `json:"from,omitempty"`
	}
	var from graphAddress
	from.EmailAddress.Address = g.sender
	payload := struct {
		Message         message `json:"message"`
		SaveToSentItems bool    `json:"saveToSentItems"`
	}{
		Message: message{
			Subject: m.Subject,
			Body:    body{ContentType: "HTML", Content: m.HTML},
			To:      to,
			CC:      graphAddresses(m.CC),
			From:    &from,
		},
		SaveToSentItems: true,
	}

	b, _ := json.Marshal(payload)
	u := fmt.Sprintf("%s/v1.0/users/%s/sendMail", g.baseURL, url.PathEscape(g.sender))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return httpError("graph", resp)
	}
	return nil
}
