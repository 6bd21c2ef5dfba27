package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestManager() (*Manager, *MockEmailSender, *MockSMSSender) {
	email := &MockEmailSender{}
	sms := &MockSMSSender{}
	mgr := NewManager(email, sms, NewTemplateEngine())
	return mgr, email, sms
}

func TestSendEmail(t *testing.T) {
	mgr, email, _ := newTestManager()

	n := &Notification{
		Type:      TypeEmail,
		Recipient: "claims@hospital.example",
		Subject:   "Coverage review",
		Body:      "please review",
	}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n.ID == "" {
		t.Error("expected notification ID to be assigned")
	}
	if n.Status != "sent" {
		t.Errorf("status = %q, want sent", n.Status)
	}
	if n.SentAt == nil {
		t.Error("expected SentAt to be set")
	}
	calls := email.Calls()
	if len(calls) != 1 {
		t.Fatalf("email calls = %d, want 1", len(calls))
	}
	if calls[0].To != "claims@hospital.example" {
		t.Errorf("To = %q", calls[0].To)
	}
}

func TestSendSMS(t *testing.T) {
	mgr, _, sms := newTestManager()

	n := &Notification{
		Type:      TypeSMS,
		Recipient: "+233201234567",
		Body:      "balance due",
	}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	calls := sms.Calls()
	if len(calls) != 1 {
		t.Fatalf("sms calls = %d, want 1", len(calls))
	}
	if calls[0].Body != "balance due" {
		t.Errorf("Body = %q", calls[0].Body)
	}
}

func TestSendUnsupportedType(t *testing.T) {
	mgr, _, _ := newTestManager()

	n := &Notification{Type: "pigeon", Recipient: "x", Body: "y"}
	err := mgr.Send(context.Background(), n)
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if n.Status != "failed" {
		t.Errorf("status = %q, want failed", n.Status)
	}
}

func TestSendFailureRecorded(t *testing.T) {
	mgr, email, _ := newTestManager()
	email.ShouldFail = true
	email.FailError = "smtp connection refused"

	n := &Notification{Type: TypeEmail, Recipient: "a@b.c", Body: "x"}
	if err := mgr.Send(context.Background(), n); err == nil {
		t.Fatal("expected send error")
	}
	if n.Status != "failed" {
		t.Errorf("status = %q, want failed", n.Status)
	}
	if n.Error != "smtp connection refused" {
		t.Errorf("error = %q", n.Error)
	}

	stored, err := mgr.GetNotification(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if stored.Status != "failed" {
		t.Errorf("stored status = %q, want failed", stored.Status)
	}
}

func TestSendFromTemplateCoverageReview(t *testing.T) {
	mgr, email, _ := newTestManager()

	data := map[string]string{
		"item_type":       "drug",
		"item_name":       "Amoxicillin 500mg",
		"item_code":       "AMOX500",
		"plan_name":       "Acme Gold",
		"default_percent": "80",
		"review_link":     "https://billing.hospital.example/rules/new?item=AMOX500",
	}
	n, err := mgr.SendFromTemplate(context.Background(), TemplateNewItemCoverageReview, data, "claims@hospital.example")
	if err != nil {
		t.Fatalf("SendFromTemplate: %v", err)
	}
	if n.Type != TypeEmail {
		t.Errorf("type = %q, want email", n.Type)
	}
	if !strings.Contains(n.Subject, "Amoxicillin 500mg") || !strings.Contains(n.Subject, "Acme Gold") {
		t.Errorf("subject not rendered: %q", n.Subject)
	}
	if !strings.Contains(n.Body, "80%") {
		t.Errorf("body missing default percent: %q", n.Body)
	}
	if !strings.Contains(n.Body, "https://billing.hospital.example/rules/new?item=AMOX500") {
		t.Errorf("body missing review link: %q", n.Body)
	}
	if len(email.Calls()) != 1 {
		t.Errorf("email calls = %d, want 1", len(email.Calls()))
	}
}

func TestSendFromTemplatePaymentRequiredUsesSMS(t *testing.T) {
	mgr, _, sms := newTestManager()

	data := map[string]string{
		"patient_name":  "Ama Mensah",
		"pending_count": "2",
		"pending_total": "145.50",
		"checkin_id":    "c-901",
	}
	n, err := mgr.SendFromTemplate(context.Background(), TemplatePaymentRequired, data, "+233201234567")
	if err != nil {
		t.Fatalf("SendFromTemplate: %v", err)
	}
	if n.Type != TypeSMS {
		t.Errorf("type = %q, want sms", n.Type)
	}
	calls := sms.Calls()
	if len(calls) != 1 {
		t.Fatalf("sms calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Body, "145.50") {
		t.Errorf("body missing total: %q", calls[0].Body)
	}
}

func TestSendFromTemplateUnknownTemplate(t *testing.T) {
	mgr, _, _ := newTestManager()

	_, err := mgr.SendFromTemplate(context.Background(), "no-such-template", nil, "x")
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	engine := NewTemplateEngine()

	subject, _, err := engine.Render(TemplateNewItemCoverageReview, map[string]string{"plan_name": "Acme Gold"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(subject, "{{item_name}}") {
		t.Errorf("expected unfilled placeholder preserved, got %q", subject)
	}
	if !strings.Contains(subject, "Acme Gold") {
		t.Errorf("expected filled placeholder, got %q", subject)
	}
}

func TestRegisterTemplateOverride(t *testing.T) {
	engine := NewTemplateEngine()
	engine.RegisterTemplate(Template{
		ID:      TemplatePaymentRequired,
		Subject: "custom subject",
		Body:    "custom body",
		Type:    TypeEmail,
	})

	subject, body, err := engine.Render(TemplatePaymentRequired, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "custom subject" || body != "custom body" {
		t.Errorf("override not applied: %q / %q", subject, body)
	}
}

func TestRetry(t *testing.T) {
	mgr, email, _ := newTestManager()
	email.ShouldFail = true
	email.FailError = "transient"

	n := &Notification{Type: TypeEmail, Recipient: "a@b.c", Body: "x"}
	_ = mgr.Send(context.Background(), n)
	if n.Status != "failed" {
		t.Fatalf("precondition: status = %q", n.Status)
	}

	email.ShouldFail = false
	if err := mgr.Retry(context.Background(), n.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	stored, _ := mgr.GetNotification(context.Background(), n.ID)
	if stored.Status != "sent" {
		t.Errorf("status after retry = %q, want sent", stored.Status)
	}
	if stored.Error != "" {
		t.Errorf("error not cleared: %q", stored.Error)
	}
}

func TestRetryNonFailed(t *testing.T) {
	mgr, _, _ := newTestManager()

	n := &Notification{Type: TypeEmail, Recipient: "a@b.c", Body: "x"}
	_ = mgr.Send(context.Background(), n)

	if err := mgr.Retry(context.Background(), n.ID); err == nil {
		t.Error("expected error retrying a sent notification")
	}
	if err := mgr.Retry(context.Background(), "missing-id"); err == nil {
		t.Error("expected error for missing notification")
	}
}

func TestListByRecipient(t *testing.T) {
	mgr, _, _ := newTestManager()

	for i := 0; i < 3; i++ {
		_ = mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "claims@hospital.example", Body: "x"})
	}
	_ = mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "other@hospital.example", Body: "x"})

	list, err := mgr.ListByRecipient(context.Background(), "claims@hospital.example", 10)
	if err != nil {
		t.Fatalf("ListByRecipient: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("len = %d, want 3", len(list))
	}

	limited, _ := mgr.ListByRecipient(context.Background(), "claims@hospital.example", 2)
	if len(limited) != 2 {
		t.Errorf("limited len = %d, want 2", len(limited))
	}
}

func TestStats(t *testing.T) {
	mgr, email, _ := newTestManager()

	_ = mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "a", Body: "x"})
	email.ShouldFail = true
	email.FailError = "down"
	_ = mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "b", Body: "x"})

	stats := mgr.Stats(context.Background())
	if stats["sent"] != 1 {
		t.Errorf("sent = %d, want 1", stats["sent"])
	}
	if stats["failed"] != 1 {
		t.Errorf("failed = %d, want 1", stats["failed"])
	}
}

// ---------------------------------------------------------------------------
// HTTP handler tests
// ---------------------------------------------------------------------------

func newTestHandler() (*Handler, *MockEmailSender) {
	email := &MockEmailSender{}
	mgr := NewManager(email, &MockSMSSender{}, NewTemplateEngine())
	return NewHandler(mgr), email
}

func doRequest(h *Handler, method, path, body string, fn echo.HandlerFunc, params map[string]string) *httptest.ResponseRecorder {
	e := echo.New()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	_ = fn(c)
	return rec
}

func TestHandleSend(t *testing.T) {
	h, email := newTestHandler()

	body := `{"type":"email","recipient":"claims@hospital.example","subject":"hi","body":"there"}`
	rec := doRequest(h, http.MethodPost, "/notifications/send", body, h.HandleSend, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var n Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.Status != "sent" {
		t.Errorf("status = %q, want sent", n.Status)
	}
	if len(email.Calls()) != 1 {
		t.Errorf("email calls = %d, want 1", len(email.Calls()))
	}
}

func TestHandleSendTemplate(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"template_id":"payment-required","recipient":"+233201234567","data":{"patient_name":"Ama","pending_total":"50.00"}}`
	rec := doRequest(h, http.MethodPost, "/notifications/send-template", body, h.HandleSendTemplate, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var n Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.TemplateID != TemplatePaymentRequired {
		t.Errorf("template_id = %q", n.TemplateID)
	}
}

func TestHandleSendTemplateUnknown(t *testing.T) {
	h, _ := newTestHandler()

	body := `{"template_id":"nope","recipient":"x"}`
	rec := doRequest(h, http.MethodPost, "/notifications/send-template", body, h.HandleSendTemplate, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGetNotFound(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(h, http.MethodGet, "/notifications/xyz", "", h.HandleGet, map[string]string{"id": "xyz"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleListRequiresRecipient(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(h, http.MethodGet, "/notifications", "", h.HandleList, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
