package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gramcare/gramcare/internal/messaging"
	"github.com/gramcare/gramcare/internal/models"
	"github.com/gramcare/gramcare/internal/store"
	"github.com/gramcare/gramcare/internal/twiliowhatsapp"
	"github.com/openai/openai-go"
)

// queueOracle returns queued replies in order; an empty queue fails the
// call.
type queueOracle struct {
	replies []string
	err     error
}

func (o *queueOracle) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	if len(o.replies) == 0 {
		return "", errors.New("queue oracle exhausted")
	}
	r := o.replies[0]
	o.replies = o.replies[1:]
	return r, nil
}

type testEnv struct {
	server *Server
	st     store.ProfileStore
	twilio *twiliowhatsapp.MockClient
}

func newTestEnv(oracle *queueOracle) *testEnv {
	st := store.NewInMemoryStore()
	mock := twiliowhatsapp.NewMockClient()
	srv := NewServer(st, oracle, messaging.NewTwilioService(mock), nil)
	return &testEnv{server: srv, st: st, twilio: mock}
}

func webhookForm(msgType, from, body, profileName string) url.Values {
	form := url.Values{}
	form.Set("MessageType", msgType)
	form.Set("From", from)
	form.Set("Body", body)
	form.Set("ProfileName", profileName)
	return form
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestTwilioWebhookNewSender(t *testing.T) {
	env := newTestEnv(&queueOracle{replies: []string{"English"}})
	h := env.server.Handler()

	rr := postForm(t, h, "/", webhookForm("text", "whatsapp:+16135550100", "Hello", "Asha"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %q, want text/xml", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "May I know your country?") {
		t.Errorf("TwiML missing country prompt: %s", body)
	}
	if got := strings.Count(body, "<Message>"); got != 1 {
		t.Errorf("TwiML contains %d messages, want exactly 1: %s", got, body)
	}

	p, err := env.st.GetProfile(context.Background(), "16135550100")
	if err != nil || p == nil {
		t.Fatalf("profile not created: %v", err)
	}
	if p.OnboardingStage != models.StageCountry || p.Language != "English" {
		t.Errorf("unexpected profile after webhook: %+v", p)
	}
}

func TestTwilioWebhookNonTextNoSideEffects(t *testing.T) {
	env := newTestEnv(&queueOracle{})
	h := env.server.Handler()

	rr := postForm(t, h, "/", webhookForm("image", "whatsapp:+16135550100", "", "Asha"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Sorry, I can't reply to that") {
		t.Errorf("TwiML missing fixed fallback: %s", rr.Body.String())
	}

	p, err := env.st.GetProfile(context.Background(), "16135550100")
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	if p != nil {
		t.Error("non-text message must not create a profile")
	}
}

// failingStore makes every profile load fail.
type failingStore struct {
	store.ProfileStore
}

func (failingStore) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	return nil, errors.New("disk full")
}

func TestTwilioWebhookStoreFailureReturnsApology(t *testing.T) {
	st := failingStore{ProfileStore: store.NewInMemoryStore()}
	srv := NewServer(st, &queueOracle{}, messaging.NewTwilioService(twiliowhatsapp.NewMockClient()), nil)

	rr := postForm(t, srv.Handler(), "/", webhookForm("text", "whatsapp:+16135550100", "Hello", "Asha"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (Twilio must always get TwiML)", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Sorry, I could not generate a response right now.") {
		t.Errorf("TwiML missing apology reply: %s", rr.Body.String())
	}
}

func TestAskHandler(t *testing.T) {
	env := newTestEnv(&queueOracle{replies: []string{"Drink fluids and rest."}})

	rr := postJSON(t, env.server.Handler(), "/api", `{"msg":"I have a fever"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "Drink fluids and rest." {
		t.Errorf("body = %q, want plain-text oracle reply", rr.Body.String())
	}
}

func TestAskHandlerOracleFailure(t *testing.T) {
	env := newTestEnv(&queueOracle{err: errors.New("unavailable")})

	rr := postJSON(t, env.server.Handler(), "/api", `{"msg":"I have a fever"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "Sorry, I could not generate a response right now." {
		t.Errorf("body = %q, want apology", rr.Body.String())
	}
}

func TestAskHandlerRejectsBadInput(t *testing.T) {
	env := newTestEnv(&queueOracle{})
	h := env.server.Handler()

	for _, body := range []string{"not json", `{"msg":""}`} {
		rr := postJSON(t, h, "/api", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestSendHandler(t *testing.T) {
	env := newTestEnv(&queueOracle{})

	rr := postJSON(t, env.server.Handler(), "/send", `{"to":"whatsapp:+16135550100","body":"checking in"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if len(env.twilio.SentMessages) != 1 {
		t.Fatalf("sent messages = %d, want 1", len(env.twilio.SentMessages))
	}
	if env.twilio.SentMessages[0].To != "16135550100" || env.twilio.SentMessages[0].Body != "checking in" {
		t.Errorf("unexpected sent message: %+v", env.twilio.SentMessages[0])
	}
}

func TestSendHandlerRejectsMissingFields(t *testing.T) {
	env := newTestEnv(&queueOracle{})
	h := env.server.Handler()

	for _, body := range []string{`{"to":"16135550100"}`, `{"body":"hi"}`, "not json"} {
		rr := postJSON(t, h, "/send", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestProfileHandlers(t *testing.T) {
	env := newTestEnv(&queueOracle{})
	p := models.NewUserProfile("16135550100")
	p.Country = "Kenya"
	if err := env.st.CreateProfile(context.Background(), p); err != nil {
		t.Fatalf("seeding profile: %v", err)
	}
	h := env.server.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profiles", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rr.Code)
	}
	var listResp models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&listResp); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if listResp.Status != string(models.APIStatusOK) {
		t.Errorf("list status field = %q", listResp.Status)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profiles/16135550100", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Kenya") {
		t.Errorf("get response missing profile data: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profiles/19999999999", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown profile status = %d, want 404", rr.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(&queueOracle{})

	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
