package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/supsol/poreview/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := New(context.Background(), url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedPO(t *testing.T, s *Store) models.PurchaseOrder {
	t.Helper()
	price := 99.5
	po := models.PurchaseOrder{
		WPQNumber:      "WPQ-" + uuid.NewString(),
		PONumber:       "PO-1",
		CreatedAt:      time.Now().Add(-time.Hour),
		Status:         models.POStatusOpen,
		VendorName:     "Acme",
		VendorLanguage: "Hebrew",
		SupporterEmail: "sup@example.com",
	}
	items := []models.LineItem{{Description: "Chairs", PurchasePrice: &price}}
	if err := s.UpsertPO(context.Background(), po, items); err != nil {
		t.Fatalf("upsert po: %v", err)
	}
	return po
}

func TestStoreHistoryIntegration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	po := seedPO(t, s)

	open, err := s.ListOpenPOs(ctx, po.WPQNumber)
	if err != nil || len(open) != 1 {
		t.Fatalf("list open: %v %d", err, len(open))
	}
	items, err := s.ListLineItems(ctx, po.WPQNumber)
	if err != nil || len(items) != 1 || items[0].PurchasePrice == nil || *items[0].PurchasePrice != 99.5 {
		t.Fatalf("line items: %v %+v", err, items)
	}

	base := time.Now().Add(-30 * time.Minute).UTC()
	if _, err := s.RecordEvent(ctx, models.CommunicationEvent{WPQNumber: po.WPQNumber, Channel: models.ChannelEmail, AuditTypeID: 700, CreatedAt: base}, 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := s.RecordEvent(ctx, models.CommunicationEvent{WPQNumber: po.WPQNumber, Channel: models.ChannelMessage, AuditTypeID: 900, Failed: true, Error: "x", CreatedAt: base.Add(time.Minute)}, 2); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	hist, err := s.ListHistory(ctx, po.WPQNumber)
	if err != nil || len(hist) != 2 {
		t.Fatalf("history: %v %d", err, len(hist))
	}
	if hist[0].AuditTypeID != 700 || !hist[1].Failed {
		t.Fatalf("unexpected history %+v", hist)
	}

	got, err := s.GetPO(ctx, po.WPQNumber)
	if err != nil {
		t.Fatalf("get po: %v", err)
	}
	if got.EscalationLevel != 1 {
		t.Fatalf("failed send must not move the level, got %d", got.EscalationLevel)
	}

	if _, err := s.GetPO(ctx, "missing-"+uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordEventRollsBackIntegration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	wpq := "missing-" + uuid.NewString()

	_, err := s.RecordEvent(ctx, models.CommunicationEvent{WPQNumber: wpq, Channel: models.ChannelEmail, AuditTypeID: 700}, 1)
	if err == nil {
		t.Fatalf("expected error for unknown po")
	}
	hist, err := s.ListHistory(ctx, wpq)
	if err != nil || len(hist) != 0 {
		t.Fatalf("nothing may be committed: %v %d", err, len(hist))
	}
}

func TestProcessingGuardIntegration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	g := NewProcessingGuard(s)
	key := "WPQ-" + uuid.NewString()

	ok, err := g.TryAcquire(ctx, key, "a")
	if err != nil || !ok {
		t.Fatalf("acquire: %v %v", ok, err)
	}
	if ok, _ := g.TryAcquire(ctx, key, "b"); ok {
		t.Fatalf("second owner acquired")
	}
	e, held, err := g.Holder(ctx, key)
	if err != nil || !held || e.Owner != "a" {
		t.Fatalf("holder: %+v %v %v", e, held, err)
	}
	if n, _ := g.ClearStale(ctx, key, time.Hour); n != 0 {
		t.Fatalf("fresh entry cleared")
	}
	if err := g.Release(ctx, key, "a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held, _ := g.Holder(ctx, key); held {
		t.Fatalf("still held after release")
	}
}

func TestNotificationsIntegration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	po := seedPO(t, s)

	id1, err := s.AddNotificationAudit(ctx, po.WPQNumber, 300)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddNotificationAudit(ctx, po.WPQNumber, 400); err != nil {
		t.Fatalf("add: %v", err)
	}

	pending, err := s.ListPendingNotifications(ctx, 200)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	var mine *models.Notification
	for i := range pending {
		if pending[i].WPQNumber == po.WPQNumber {
			mine = &pending[i]
		}
	}
	if mine == nil || len(mine.AuditLogIDs) != 1 || mine.AuditLogIDs[0] != id1 {
		t.Fatalf("unexpected pending %+v", mine)
	}

	n, err := s.MarkNotificationsSent(ctx, mine.AuditLogIDs, "SM1")
	if err != nil || n != 1 {
		t.Fatalf("mark: %v %d", err, n)
	}
	if n, _ := s.MarkNotificationsSent(ctx, mine.AuditLogIDs, "SM2"); n != 0 {
		t.Fatalf("marked twice")
	}
}

func TestRunsIntegration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	kind := "test-" + uuid.NewString()
	id, err := s.CreateRun(ctx, kind, "running")
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := s.FinishRun(ctx, id, "completed", []byte(`{"dispatched":1}`)); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	r, err := s.GetLatestRun(ctx, kind)
	if err != nil || r.ID != id || r.Status != "completed" {
		t.Fatalf("latest run: %+v %v", r, err)
	}
}
