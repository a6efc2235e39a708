package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/supsol/poreview/internal/models"
)

const auditCreatePath = "/api/v1/ServiceCall/AuditCreate"

// AuditClient posts actions to the upstream PO API.
type AuditClient struct {
	BaseURL string
	Client  *http.Client
}

type auditPayload struct {
	models.AuditAction
	Future1 int `json:"_Future1"`
	Future2 int `json:"_Future2"`
}

func (a AuditClient) CreateAudit(ctx context.Context, action models.AuditAction) error {
	if a.Client == nil {
		a.Client = &http.Client{Timeout: 15 * time.Second}
	}
	b, err := json.Marshal(auditPayload{AuditAction: action})
	if err != nil {
		return err
	}
	u := strings.TrimRight(a.BaseURL, "/") + auditCreatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("po api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError("po api", resp)
	}
	return nil
}
