package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supsol/poreview/internal/models"
)

func TestWhatsAppAddress(t *testing.T) {
	assert.Equal(t, "whatsapp:+972501234567", WhatsAppAddress("+972 (50) 123-4567"))
	assert.Equal(t, "whatsapp:+15550001", WhatsAppAddress("whatsapp:+15550001"))
	assert.Equal(t, "", WhatsAppAddress("n/a"))
}

func TestGraphMailer(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, graphScope, r.Form.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1.0/users/sender@example.com/sendMail", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := NewGraphMailer(context.Background(), GraphConfig{
		ClientID: "id", ClientSecret: "secret", Sender: "sender@example.com",
		BaseURL: srv.URL, TokenURL: srv.URL + "/token",
	})
	err := m.SendMail(context.Background(), Mail{
		To: []string{"vendor@example.com"}, CC: []string{"", "supporter@example.com"},
		Subject: "PO 1", HTML: "<p>hi</p>",
	})
	require.NoError(t, err)

	msg := got["message"].(map[string]any)
	assert.Equal(t, "PO 1", msg["subject"])
	assert.Len(t, msg["ccRecipients"], 1)
	assert.Equal(t, "HTML", msg["body"].(map[string]any)["contentType"])
}

func TestGraphMailerRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1.0/users/s/sendMail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"ErrorInvalidRecipients"}`, http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := NewGraphMailer(context.Background(), GraphConfig{Sender: "s", BaseURL: srv.URL, TokenURL: srv.URL + "/token"})
	err := m.SendMail(context.Background(), Mail{To: []string{"x@example.com"}})
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Status)

	assert.Error(t, m.SendMail(context.Background(), Mail{}))
}

func TestTwilioMessengerTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "secret", pass)
		_ = r.ParseForm()
		assert.Equal(t, "whatsapp:+972500000000", r.Form.Get("To"))
		assert.Equal(t, "HX1", r.Form.Get("ContentSid"))
		assert.JSONEq(t, `{"1":"Acme","2":"PO-1"}`, r.Form.Get("ContentVariables"))
		assert.Empty(t, r.Form.Get("Body"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	tw := NewTwilioMessenger(TwilioConfig{AccountSID: "AC1", AuthToken: "secret", BaseURL: srv.URL})
	res, err := tw.SendMessage(context.Background(), Message{
		From: "+1 555 0100", To: "+972 50 000 0000", ContentSID: "HX1",
		Variables: map[string]string{"1": "Acme", "2": "PO-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SM1", res.SID)
}

func TestTwilioMessengerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":63016,"message":"outside the allowed window","status":400}`))
	}))
	defer srv.Close()

	tw := NewTwilioMessenger(TwilioConfig{AccountSID: "AC1", BaseURL: srv.URL})
	_, err := tw.SendMessage(context.Background(), Message{To: "+1555", Body: "hi"})
	var te *TwilioError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 63016, te.Code)
}

func TestAuditClient(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, auditCreatePath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := AuditClient{BaseURL: srv.URL + "/"}.CreateAudit(context.Background(), models.AuditAction{
		WPQNumber: "WPQ-1", AuditTypeID: 700, Subject: "s", Text: "t", EnglishText: "e", MailID: "m",
		Language: "he",
	})
	require.NoError(t, err)
	assert.Equal(t, "WPQ-1", got["wpqNumber"])
	assert.EqualValues(t, 700, got["auditTypeID"])
	assert.Equal(t, "m", got["_MailID"])
	assert.EqualValues(t, 0, got["_Future1"])
	assert.NotContains(t, got, "Language")
}

type captureMailer struct{ mails []Mail }

func (c *captureMailer) SendMail(_ context.Context, m Mail) error {
	c.mails = append(c.mails, m)
	return nil
}

func TestCallFlagger(t *testing.T) {
	cm := &captureMailer{}
	po := models.PurchaseOrder{WPQNumber: "WPQ-1", PONumber: "PO-1", VendorName: "A&B", VendorPhone: "+972-50"}
	err := CallFlagger{Mailer: cm}.FlagCall(context.Background(), po, models.AuditAction{Subject: "PO PO-1", EnglishText: "<p>x</p>"}, []string{"sup@example.com"})
	require.NoError(t, err)
	require.Len(t, cm.mails, 1)
	assert.Equal(t, []string{"sup@example.com"}, cm.mails[0].To)
	assert.True(t, strings.HasPrefix(cm.mails[0].Subject, "Call request:"))
	assert.Contains(t, cm.mails[0].HTML, "A&amp;B at +972-50")
}
