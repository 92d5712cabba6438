package api_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/yomakenya/smsbridge/internal/api"
	"github.com/yomakenya/smsbridge/internal/models"
	"github.com/yomakenya/smsbridge/internal/testutil"
)

const testToken = "webhook-secret"

func webhookRequest(t *testing.T, method, query string, body interface{}) *http.Request {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, method, "/webhook/sms"+query, body)
	req.Header.Set(api.WebhookTokenHeader, testToken)
	return req
}

func TestWebhookRejectsBadToken(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/webhook/sms", map[string]string{"msisdn": "0722123456", "message": "start"})
	req.Header.Set(api.WebhookTokenHeader, "wrong")

	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "bad token")
	body := testutil.AssertJSONBody(t, rr)
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body["success"])
	}
	if len(ts.Messaging.Sent()) != 0 {
		t.Error("unauthorized request must not reach the engine")
	}
}

func TestWebhookMissingFields(t *testing.T) {
	cases := []struct {
		name string
		body map[string]string
	}{
		{"no phone", map[string]string{"message": "start"}},
		{"no message", map[string]string{"msisdn": "0722123456"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := testutil.NewTestServer(testToken)
			rr := httptest.NewRecorder()
			ts.Server.Handler().ServeHTTP(rr, webhookRequest(t, http.MethodPost, "", tc.body))
			testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, tc.name)
		})
	}
}

func TestWebhookJSONBodyStartsConversation(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, webhookRequest(t, http.MethodPost, "", map[string]string{
		"msisdn":  "0722123456",
		"message": "start",
	}))

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "start via JSON body")
	body := testutil.AssertJSONBody(t, rr)
	if body["success"] != true {
		t.Errorf("expected success=true, got %v", body)
	}

	sent := ts.Messaging.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 outbound SMS, got %d", len(sent))
	}
	// Trunk-prefixed MSISDN is normalized before the engine sees it.
	if sent[0].To != "+254722123456" {
		t.Errorf("welcome sent to %q", sent[0].To)
	}
}

func TestWebhookQueryParams(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	q := "?" + url.Values{"mobile": {"254722123456"}, "text": {"start"}}.Encode()
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, webhookRequest(t, http.MethodGet, q, nil))

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "start via query params")
	sent := ts.Messaging.Sent()
	if len(sent) != 1 || sent[0].To != "+254722123456" {
		t.Errorf("unexpected outbound messages: %v", sent)
	}
}

func TestWebhookFormBody(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	form := url.Values{"phoneNumber": {"0722123456"}, "msg": {"start"}}
	req, err := http.NewRequest(http.MethodPost, "/webhook/sms", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(api.WebhookTokenHeader, testToken)

	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "start via form body")
}

func TestWebhookFullRegistration(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	inputs := []string{"start", "John", "Doe", "female", "secondary"}
	var rr *httptest.ResponseRecorder
	for _, msg := range inputs {
		rr = httptest.NewRecorder()
		ts.Server.Handler().ServeHTTP(rr, webhookRequest(t, http.MethodPost, "", map[string]string{
			"msisdn":  "0722123456",
			"message": msg,
		}))
		testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "step "+msg)
	}

	if len(ts.Registrar.Submitted) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(ts.Registrar.Submitted))
	}
	rec := ts.Registrar.Submitted[0]
	if rec.FirstName != "John" || rec.Surname != "Doe" || rec.PhoneNumber != "+254722123456" {
		t.Errorf("unexpected registration record: %+v", rec)
	}

	onboarded, err := ts.Audit.IsOnboarded("", "+254722123456")
	if err != nil || !onboarded {
		t.Errorf("registration not recorded in audit store: ok=%v err=%v", onboarded, err)
	}
}

func TestWebhookProviderFailureReturns500(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	ts.Registrar.Err = http.ErrHandlerTimeout

	var rr *httptest.ResponseRecorder
	for _, msg := range []string{"start", "John", "Doe", "female", "secondary"} {
		rr = httptest.NewRecorder()
		ts.Server.Handler().ServeHTTP(rr, webhookRequest(t, http.MethodPost, "", map[string]string{
			"msisdn":  "0722123456",
			"message": msg,
		}))
	}
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "submission failure")
}

func TestWebhookDuplicateAcknowledgedWithoutServerError(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	ts.Registrar.Err = models.ErrAlreadyRegistered

	var rr *httptest.ResponseRecorder
	for _, msg := range []string{"start", "John", "Doe", "female", "secondary"} {
		rr = httptest.NewRecorder()
		ts.Server.Handler().ServeHTTP(rr, webhookRequest(t, http.MethodPost, "", map[string]string{
			"msisdn":  "0722123456",
			"message": msg,
		}))
	}
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "duplicate registration")
	body := testutil.AssertJSONBody(t, rr)
	if body["success"] != false {
		t.Errorf("duplicate should acknowledge with success=false, got %v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil))

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health probe")
	body := testutil.AssertJSONBody(t, rr)
	if body["status"] != "UP" {
		t.Errorf("expected status UP, got %v", body["status"])
	}
}

func TestOnboardedEndpoint(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	ts.Audit.RecordOnboarded(models.OnboardedUser{ID: "u1", FirstName: "John", Surname: "Doe", PhoneNumber: "+254722123456"})

	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/onboarded", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "onboarded list")
	body := testutil.AssertJSONBody(t, rr)
	if body["status"] != string(models.APIStatusOK) {
		t.Errorf("unexpected envelope status: %v", body["status"])
	}

	rr = httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/onboarded?phone=%2B254722123456", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "onboarded check")
	body = testutil.AssertJSONBody(t, rr)
	result, ok := body["result"].(map[string]interface{})
	if !ok || result["onboarded"] != true {
		t.Errorf("expected onboarded=true, got %v", body)
	}
}

func TestSendEndpoint(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/send", map[string]string{
		"to":   "+254722123456",
		"body": "Service maintenance tonight",
	})
	req.Header.Set(api.WebhookTokenHeader, testToken)

	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "operator send")

	sent := ts.Messaging.Sent()
	if len(sent) != 1 || sent[0].Body != "Service maintenance tonight" {
		t.Errorf("message not sent: %v", sent)
	}
}

func TestSendEndpointRejectsBadToken(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/send", map[string]string{
		"to":   "+254722123456",
		"body": "hello",
	})
	req.Header.Set(api.WebhookTokenHeader, "wrong")

	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "bad token")
	if len(ts.Messaging.Sent()) != 0 {
		t.Error("unauthorized request must not send")
	}
}

func TestSendEndpointRejectsEmptyBody(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/send", map[string]string{"to": "+254722123456"})
	req.Header.Set(api.WebhookTokenHeader, testToken)

	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "empty body")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := testutil.NewTestServer(testToken)
	rr := httptest.NewRecorder()
	ts.Server.Handler().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/metrics", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "metrics scrape")
}
