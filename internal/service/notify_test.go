package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supsol/poreview/internal/guard"
	"github.com/supsol/poreview/internal/models"
	"github.com/supsol/poreview/internal/transport"
)

type fakeNotificationStore struct {
	*fakeStore
	pending []models.Notification
	marked  map[int64]string
}

func (f *fakeNotificationStore) ListPendingNotifications(_ context.Context, limit int) ([]models.Notification, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeNotificationStore) MarkNotificationsSent(_ context.Context, ids []int64, sid string) (int, error) {
	n := 0
	for _, id := range ids {
		if _, done := f.marked[id]; !done {
			f.marked[id] = sid
			n++
		}
	}
	return n, nil
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []transport.Message
	fail map[string]bool
}

func (f *fakeMessenger) SendMessage(_ context.Context, m transport.Message) (transport.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[m.To] {
		return transport.SendResult{}, errors.New("twilio: 63016")
	}
	f.sent = append(f.sent, m)
	return transport.SendResult{SID: fmt.Sprintf("SM%d", len(f.sent)), Status: "queued"}, nil
}

func notification(wpq string) models.Notification {
	return models.Notification{
		WPQNumber:      wpq,
		PONumber:       "PO-" + wpq,
		VendorName:     "Acme",
		VendorPhone:    "+1 (555) 010-0000",
		VendorEmail:    "vendor@acme.test",
		VendorLanguage: "English",
		VendorCountry:  "USA",
		SupporterName:  "Dana",
		SupporterPhone: "+972-50-111-2222",
		AuditLogIDs:    []int64{1, 2},
	}
}

func newNotifier(pending ...models.Notification) (*NotificationService, *fakeNotificationStore, *fakeMessenger) {
	store := &fakeNotificationStore{fakeStore: newFakeStore(), pending: pending, marked: map[int64]string{}}
	msgr := &fakeMessenger{fail: map[string]bool{}}
	svc := &NotificationService{
		Store:     store,
		Messenger: msgr,
		Guard:     guard.NewMemoryGuard(),
		Runs:      store,
		Logger:    zerolog.Nop(),
		Opts: NotificationOptions{
			TestPhone:      "+972 54 000 0000",
			FromPhone:      "whatsapp:+15550001111",
			FromPhoneIL:    "whatsapp:+972550001111",
			TemplateHebrew: "HX-he",
			TemplateOther:  "HX-other",
		},
	}
	return svc, store, msgr
}

func TestSendPendingProd(t *testing.T) {
	svc, store, msgr := newNotifier(notification("WPQ-1"))

	summary, err := svc.SendPending(context.Background(), "prod")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 0, summary.Failed)

	require.Len(t, msgr.sent, 2)
	assert.Equal(t, "whatsapp:+15550100000", msgr.sent[0].To)
	assert.Equal(t, "whatsapp:+972501112222", msgr.sent[1].To)
	for _, m := range msgr.sent {
		assert.Equal(t, "HX-other", m.ContentSID)
		assert.Equal(t, "whatsapp:+15550001111", m.From)
		assert.Equal(t, map[string]string{"1": "Acme", "2": "PO-WPQ-1", "3": "vendor@acme.test"}, m.Variables)
	}
	assert.Equal(t, "SM1", store.marked[1])
	assert.Equal(t, "SM1", store.marked[2])
	assert.Equal(t, 2, summary.Results[0].Marked)
	assert.Equal(t, RunStatusCompleted, store.runs[summary.RunID])
}

func TestSendPendingTestEnvUsesTestNumber(t *testing.T) {
	n := notification("WPQ-1")
	n.VendorLanguage = "Hebrew"
	n.VendorCountry = "Israel"
	svc, _, msgr := newNotifier(n)

	_, err := svc.SendPending(context.Background(), "test")
	require.NoError(t, err)
	require.Len(t, msgr.sent, 2)
	assert.Equal(t, "whatsapp:+972540000000", msgr.sent[0].To)
	assert.Equal(t, "whatsapp:+972501112222", msgr.sent[1].To)
	assert.Equal(t, "HX-he", msgr.sent[0].ContentSID)
	assert.Equal(t, "whatsapp:+972550001111", msgr.sent[0].From)
}

func TestRecipientsDeduplicate(t *testing.T) {
	svc, _, _ := newNotifier()
	n := notification("WPQ-1")
	n.SupporterPhone = "15550100000"
	assert.Equal(t, []string{"whatsapp:+15550100000"}, svc.Recipients(EnvProd, n))

	n.SupporterPhone = "+972 54 000 0000"
	assert.Equal(t, []string{"whatsapp:+972540000000"}, svc.Recipients(EnvTest, n))

	n.VendorPhone = ""
	n.SupporterPhone = ""
	assert.Empty(t, svc.Recipients(EnvProd, n))
}

func TestSendPendingPartialFailure(t *testing.T) {
	svc, store, msgr := newNotifier(notification("WPQ-1"))
	msgr.fail["whatsapp:+15550100000"] = true

	summary, err := svc.SendPending(context.Background(), "prod")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, summary.Results[0].Errors, 1)
	assert.Equal(t, "SM1", store.marked[1])
}

func TestSendPendingSkipsWhenBatchRunning(t *testing.T) {
	svc, _, msgr := newNotifier(notification("WPQ-1"))
	_, _ = svc.Guard.TryAcquire(context.Background(), NotificationGuardKey, "other")

	summary, err := svc.SendPending(context.Background(), "prod")
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Empty(t, msgr.sent)
}

func TestSendPendingLeavesPOUnderReview(t *testing.T) {
	svc, store, msgr := newNotifier(notification("WPQ-1"), notification("WPQ-2"))
	_, _ = svc.Guard.TryAcquire(context.Background(), "WPQ-1", "review-run")

	summary, err := svc.SendPending(context.Background(), "prod")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.InProgress)
	require.Len(t, summary.Results, 2)
	assert.True(t, summary.Results[0].InProgress)
	assert.Empty(t, summary.Results[0].MessageSID)
	assert.Equal(t, 2, summary.Results[1].Marked)
	for _, m := range msgr.sent {
		assert.Equal(t, "PO-WPQ-2", m.Variables["2"])
	}

	e, held, _ := svc.Guard.Holder(context.Background(), "WPQ-1")
	require.True(t, held)
	assert.Equal(t, "review-run", e.Owner)
	_, held, _ = svc.Guard.Holder(context.Background(), "WPQ-2")
	assert.False(t, held)
	assert.Equal(t, RunStatusCompleted, store.runs[summary.RunID])
}

func TestSendPendingRejectsUnknownEnv(t *testing.T) {
	svc, _, _ := newNotifier()
	_, err := svc.SendPending(context.Background(), "staging")
	assert.ErrorIs(t, err, ErrInvalidEnv)
}
