package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"authgate.org/internal/session"
	"authgate.org/internal/token"
	"authgate.org/internal/user"
)

type apiClient struct {
	t    *testing.T
	base string
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	codec, err := token.NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	store := session.NewInMemory()
	manager := session.NewManager(user.NewInMemory(), codec, store, store)
	srv := httptest.NewServer(New(manager, ReadyProbe{}, "test").Handler())
	t.Cleanup(srv.Close)
	return &apiClient{t: t, base: srv.URL}
}

func (c *apiClient) do(method, path, bearer string, body any) (*http.Response, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		c.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		c.t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return res, decoded
}

func (c *apiClient) register(username, email, mobile, password string) (*http.Response, map[string]any) {
	return c.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username":      username,
		"email":         email,
		"mobile_number": mobile,
		"password":      password,
	})
}

func (c *apiClient) login(identifier, password string) (*http.Response, map[string]any) {
	return c.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
}

func tokenOf(t *testing.T, body map[string]any) string {
	t.Helper()
	tok, _ := body["access_token"].(string)
	if tok == "" {
		t.Fatalf("no access_token in %v", body)
	}
	return tok
}

func TestRegisterAndVerify(t *testing.T) {
	c := newTestAPI(t)

	res, body := c.register("alice", "alice@example.com", "+12345678901", "Sup3r!Secret")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %v", res.StatusCode, body)
	}
	if body["token_type"] != "bearer" {
		t.Fatalf("unexpected token_type: %v", body["token_type"])
	}
	u, _ := body["user"].(map[string]any)
	if u == nil || u["username"] != "alice" || u["email"] != "alice@example.com" {
		t.Fatalf("unexpected user payload: %v", body["user"])
	}
	if _, ok := u["password_hash"]; ok {
		t.Fatal("password hash leaked in response")
	}

	res, body = c.do(http.MethodGet, "/v1/auth/verify", tokenOf(t, body), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %v", res.StatusCode, body)
	}
	if body["username"] != "alice" {
		t.Fatalf("unexpected identity: %v", body)
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	c := newTestAPI(t)

	res, body := c.register("alice", "not-an-email", "+12345678901", "Sup3r!Secret")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %v", res.StatusCode, body)
	}

	res, body = c.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice",
		"surprise": "field",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d %v", res.StatusCode, body)
	}
}

func TestRegisterConflict(t *testing.T) {
	c := newTestAPI(t)

	if res, body := c.register("alice", "alice@example.com", "+12345678901", "Sup3r!Secret"); res.StatusCode != http.StatusCreated {
		t.Fatalf("first register: %d %v", res.StatusCode, body)
	}
	res, body := c.register("alice", "other@example.com", "+19876543210", "Sup3r!Secret")
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %v", res.StatusCode, body)
	}
}

func TestLogin(t *testing.T) {
	c := newTestAPI(t)
	c.register("alice", "alice@example.com", "+12345678901", "Sup3r!Secret")

	for _, identifier := range []string{"alice", "alice@example.com", "+12345678901"} {
		res, body := c.login(identifier, "Sup3r!Secret")
		if res.StatusCode != http.StatusOK {
			t.Fatalf("login(%q): %d %v", identifier, res.StatusCode, body)
		}
	}

	res, body := c.login("alice", "Wrong!Pass1")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d %v", res.StatusCode, body)
	}
	if body["error"] != "invalid credentials" {
		t.Fatalf("unexpected error body: %v", body)
	}
	res, body = c.login("nobody", "Sup3r!Secret")
	if res.StatusCode != http.StatusUnauthorized || body["error"] != "invalid credentials" {
		t.Fatalf("unknown user must look identical: %d %v", res.StatusCode, body)
	}
}

func TestSessionsRequireToken(t *testing.T) {
	c := newTestAPI(t)
	_, body := c.register("alice", "alice@example.com", "+12345678901", "Sup3r!Secret")
	tok := tokenOf(t, body)

	res, errBody := c.do(http.MethodGet, "/v1/sessions", "", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d %v", res.StatusCode, errBody)
	}

	res, listBody := c.do(http.MethodGet, "/v1/sessions", tok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sessions: %d %v", res.StatusCode, listBody)
	}
	items, _ := listBody["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 session, got %v", listBody)
	}
}

func TestThirdLoginEvictsOldestSession(t *testing.T) {
	c := newTestAPI(t)

	_, body := c.register("alice", "alice@example.com", "+12345678901", "Sup3r!Secret")
	tokA := tokenOf(t, body)
	_, body = c.login("alice", "Sup3r!Secret")
	tokB := tokenOf(t, body)
	_, body = c.login("alice", "Sup3r!Secret")
	tokC := tokenOf(t, body)

	res, errBody := c.do(http.MethodGet, "/v1/auth/verify", tokA, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("evicted token: expected 401, got %d %v", res.StatusCode, errBody)
	}
	for _, tok := range []string{tokB, tokC} {
		if res, body := c.do(http.MethodGet, "/v1/auth/verify", tok, nil); res.StatusCode != http.StatusOK {
			t.Fatalf("surviving token: %d %v", res.StatusCode, body)
		}
	}

	res, listBody := c.do(http.MethodGet, "/v1/sessions", tokC, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatal(res.StatusCode)
	}
	if items, _ := listBody["items"].([]any); len(items) != 2 {
		t.Fatalf("expected 2 active sessions, got %v", listBody)
	}
}

func TestLogoutIsIdempotentOverHTTP(t *testing.T) {
	c := newTestAPI(t)
	_, body := c.register("alice", "alice@example.com", "+12345678901", "Sup3r!Secret")
	tok := tokenOf(t, body)

	res, body := c.do(http.MethodPost, "/v1/auth/logout", tok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("logout: %d %v", res.StatusCode, body)
	}
	res, body = c.do(http.MethodGet, "/v1/auth/verify", tok, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("verify after logout: %d %v", res.StatusCode, body)
	}
	res, body = c.do(http.MethodPost, "/v1/auth/logout", tok, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second logout: %d %v", res.StatusCode, body)
	}
}

func TestVerifyWithoutToken(t *testing.T) {
	c := newTestAPI(t)
	if res, body := c.do(http.MethodGet, "/v1/auth/verify", "", nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %v", res.StatusCode, body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	c := newTestAPI(t)
	res, body := c.do(http.MethodGet, "/v1/auth/register", "", nil)
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d %v", res.StatusCode, body)
	}
	if allow := res.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("unexpected Allow header: %q", allow)
	}
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	res, body := c.do(http.MethodGet, "/healthz", "", nil)
	if res.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", res.StatusCode, body)
	}
	res, body = c.do(http.MethodGet, "/readyz", "", nil)
	if res.StatusCode != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("readyz: %d %v", res.StatusCode, body)
	}
	res, body = c.do(http.MethodGet, "/v1/info", "", nil)
	if res.StatusCode != http.StatusOK || body["version"] != "test" {
		t.Fatalf("info: %d %v", res.StatusCode, body)
	}
}

func TestValidationRules(t *testing.T) {
	c := newTestAPI(t)
	res, body := c.do(http.MethodGet, "/v1/validation-rules", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validation-rules: %d", res.StatusCode)
	}
	for _, field := range []string{"username", "mobile_number", "password"} {
		if _, ok := body[field]; !ok {
			t.Fatalf("missing %s rules: %v", field, body)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	c := newTestAPI(t)
	req, err := http.NewRequest(http.MethodGet, c.base+"/nope", nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}
