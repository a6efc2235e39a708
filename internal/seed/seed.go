// Package seed loads purchase orders from a YAML fixture into the store.
// Production POs come from the upstream system; fixtures serve local runs
// and demos.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/supsol/poreview/internal/db"
	"github.com/supsol/poreview/internal/models"
)

type Store interface {
	UpsertPO(ctx context.Context, p models.PurchaseOrder, items []models.LineItem) error
	AddNotificationAudit(ctx context.Context, wpq string, auditTypeID int) (int64, error)
}

type Fixture struct {
	PurchaseOrders []PO `yaml:"purchase_orders"`
}

type PO struct {
	WPQ       string    `yaml:"wpq"`
	PONumber  string    `yaml:"po_number"`
	CreatedAt time.Time `yaml:"created_at"`
	Urgency   string    `yaml:"urgency"`
	Status    string    `yaml:"status"`
	Vendor    struct {
		ID             string `yaml:"id"`
		Name           string `yaml:"name"`
		Email          string `yaml:"email"`
		Phone          string `yaml:"phone"`
		Language       string `yaml:"language"`
		Country        string `yaml:"country"`
		SetupCompleted bool   `yaml:"setup_completed"`
	} `yaml:"vendor"`
	Supporter struct {
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
		Phone string `yaml:"phone"`
	} `yaml:"supporter"`
	Items         []Item `yaml:"items"`
	Notifications []int  `yaml:"notifications"`
}

type Item struct {
	Description   string     `yaml:"description"`
	InitialDate   *time.Time `yaml:"initial_date"`
	CurrentDate   *time.Time `yaml:"current_date"`
	RequestedDate *time.Time `yaml:"requested_date"`
	Price         *float64   `yaml:"price"`
}

type Summary struct {
	POs           int      `json:"pos"`
	Items         int      `json:"items"`
	Notifications int      `json:"notifications"`
	Errors        []string `json:"errors,omitempty"`
}

func LoadFile(path string) (Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	var fx Fixture
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return fx, fx.Validate()
}

func (fx Fixture) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for i, p := range fx.PurchaseOrders {
		wpq := strings.TrimSpace(p.WPQ)
		switch {
		case wpq == "":
			errs = append(errs, fmt.Errorf("purchase_orders[%d]: wpq is required", i))
		case seen[wpq]:
			errs = append(errs, fmt.Errorf("purchase_orders[%d]: duplicate wpq %s", i, wpq))
		}
		seen[wpq] = true
		for _, code := range p.Notifications {
			if !slices.Contains(db.NotificationAuditTypes, code) {
				errs = append(errs, fmt.Errorf("purchase_orders[%d]: audit type %d is not a notification type", i, code))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply upserts every PO. A failing PO is reported and the rest continue.
func Apply(ctx context.Context, s Store, fx Fixture, now time.Time) Summary {
	var sum Summary
	for _, p := range fx.PurchaseOrders {
		po, items := p.models(now)
		if err := s.UpsertPO(ctx, po, items); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", po.WPQNumber, err))
			continue
		}
		sum.POs++
		sum.Items += len(items)
		for _, code := range p.Notifications {
			if _, err := s.AddNotificationAudit(ctx, po.WPQNumber, code); err != nil {
				sum.Errors = append(sum.Errors, fmt.Sprintf("%s: notification %d: %v", po.WPQNumber, code, err))
				continue
			}
			sum.Notifications++
		}
	}
	return sum
}

func (p PO) models(now time.Time) (models.PurchaseOrder, []models.LineItem) {
	po := models.PurchaseOrder{
		WPQNumber:            strings.TrimSpace(p.WPQ),
		PONumber:             strings.TrimSpace(p.PONumber),
		CreatedAt:            p.CreatedAt,
		UrgencyType:          p.Urgency,
		Status:               p.Status,
		VendorID:             p.Vendor.ID,
		VendorName:           p.Vendor.Name,
		VendorEmail:          p.Vendor.Email,
		VendorPhone:          p.Vendor.Phone,
		VendorLanguage:       p.Vendor.Language,
		VendorCountry:        p.Vendor.Country,
		VendorSetupCompleted: p.Vendor.SetupCompleted,
		SupporterName:        p.Supporter.Name,
		SupporterEmail:       p.Supporter.Email,
		SupporterPhone:       p.Supporter.Phone,
	}
	if po.Status == "" {
		po.Status = models.POStatusOpen
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = now
	}
	items := make([]models.LineItem, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, models.LineItem{
			WPQNumber:              po.WPQNumber,
			Description:            it.Description,
			InitialExecutionDate:   it.InitialDate,
			CurrentExecutionDate:   it.CurrentDate,
			RequestedExecutionDate: it.RequestedDate,
			PurchasePrice:          it.Price,
		})
	}
	return po, items
}
