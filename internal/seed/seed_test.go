package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supsol/poreview/internal/models"
)

const fixtureYAML = `purchase_orders:
  - wpq: WPQ-100
    po_number: "4500012"
    created_at: 2025-02-01T08:00:00Z
    urgency: High
    vendor:
      name: Acme Ltd
      email: orders@acme.test
      phone: "+972 50 123 4567"
      language: Hebrew
      country: Israel
    supporter:
      name: Dana
      email: dana@corp.test
    items:
      - description: Steel brackets
        requested_date: 2025-03-01T00:00:00Z
        price: 1250.5
    notifications: [300, 900]
  - wpq: WPQ-101
    po_number: "4500013"
    status: Closed
`

type fakeStore struct {
	pos    []models.PurchaseOrder
	items  map[string][]models.LineItem
	audits map[string][]int
	fail   string
}

func (f *fakeStore) UpsertPO(_ context.Context, p models.PurchaseOrder, items []models.LineItem) error {
	if p.WPQNumber == f.fail {
		return errors.New("constraint violation")
	}
	f.pos = append(f.pos, p)
	f.items[p.WPQNumber] = items
	return nil
}

func (f *fakeStore) AddNotificationAudit(_ context.Context, wpq string, code int) (int64, error) {
	f.audits[wpq] = append(f.audits[wpq], code)
	return int64(len(f.audits[wpq])), nil
}

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAndApply(t *testing.T) {
	fx, err := LoadFile(writeFixture(t, fixtureYAML))
	require.NoError(t, err)
	require.Len(t, fx.PurchaseOrders, 2)

	store := &fakeStore{items: map[string][]models.LineItem{}, audits: map[string][]int{}}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sum := Apply(context.Background(), store, fx, now)

	assert.Equal(t, Summary{POs: 2, Items: 1, Notifications: 2}, sum)
	require.Len(t, store.pos, 2)

	first := store.pos[0]
	assert.Equal(t, "WPQ-100", first.WPQNumber)
	assert.Equal(t, models.POStatusOpen, first.Status)
	assert.Equal(t, "Israel", first.VendorCountry)
	assert.Equal(t, time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC), first.CreatedAt.UTC())

	items := store.items["WPQ-100"]
	require.Len(t, items, 1)
	require.NotNil(t, items[0].PurchasePrice)
	assert.InDelta(t, 1250.5, *items[0].PurchasePrice, 0.001)
	assert.Equal(t, []int{300, 900}, store.audits["WPQ-100"])

	second := store.pos[1]
	assert.Equal(t, models.POStatusClosed, second.Status)
	assert.Equal(t, now, second.CreatedAt)
}

func TestApplyContinuesAfterFailure(t *testing.T) {
	fx, err := LoadFile(writeFixture(t, fixtureYAML))
	require.NoError(t, err)
	store := &fakeStore{items: map[string][]models.LineItem{}, audits: map[string][]int{}, fail: "WPQ-100"}

	sum := Apply(context.Background(), store, fx, time.Now())
	assert.Equal(t, 1, sum.POs)
	assert.Zero(t, sum.Notifications)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0], "WPQ-100")
}

func TestValidate(t *testing.T) {
	_, err := LoadFile(writeFixture(t, `purchase_orders:
  - po_number: "1"
  - wpq: A
    notifications: [700]
  - wpq: A
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wpq is required")
	assert.Contains(t, err.Error(), "audit type 700")
	assert.Contains(t, err.Error(), "duplicate wpq A")

	_, err = LoadFile(writeFixture(t, "purchase_orders:\n  - wpq: A\n    colour: red\n"))
	assert.Error(t, err)
}
