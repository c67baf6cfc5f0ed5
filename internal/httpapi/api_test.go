package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vitrina.org/internal/auth"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	secrets, err := auth.NewSecrets("access-secret-for-tests", "refresh-secret-for-tests")
	if err != nil {
		t.Fatalf("secrets: %v", err)
	}
	svc, err := auth.NewService(auth.NewMemStore(), secrets)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	api := New(ReadyProbe{}, "test", svc)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func getJSON(t *testing.T, url string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestSignUpFlow(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/v1/signup", map[string]string{
		"username": "buyer@example.com",
		"password": "hunter22",
		"fullName": "Buyer One",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, want 201", resp.StatusCode)
	}
	if tok, _ := body["accessToken"].(string); tok == "" {
		t.Fatalf("signup response missing accessToken: %v", body)
	}
	if tok, _ := body["refreshToken"].(string); tok == "" {
		t.Fatalf("signup response missing refreshToken: %v", body)
	}
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("signup response missing user object: %v", body)
	}
	if user["username"] != "buyer@example.com" {
		t.Errorf("username = %v", user["username"])
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password hash leaked in response")
	}

	// duplicate username
	resp, _ = postJSON(t, srv.URL+"/api/v1/signup", map[string]string{
		"username": "buyer@example.com",
		"password": "hunter22",
	}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", resp.StatusCode)
	}

	// bad username shape
	resp, _ = postJSON(t, srv.URL+"/api/v1/signup", map[string]string{
		"username": "not-an-email",
		"password": "hunter22",
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("invalid signup status = %d, want 403", resp.StatusCode)
	}
}

func TestSignInFlow(t *testing.T) {
	srv := newTestServer(t)

	_, first := postJSON(t, srv.URL+"/api/v1/signup", map[string]string{
		"username": "buyer@example.com",
		"password": "hunter22",
	}, nil)
	firstRefresh, _ := first["refreshToken"].(string)

	resp, _ := postJSON(t, srv.URL+"/api/v1/signin", map[string]string{
		"username": "nobody@example.com",
		"password": "hunter22",
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/api/v1/signin", map[string]string{
		"username": "buyer@example.com",
		"password": "wrong-pass",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", resp.StatusCode)
	}

	resp, second := postJSON(t, srv.URL+"/api/v1/signin", map[string]string{
		"username": "buyer@example.com",
		"password": "hunter22",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin status = %d, want 200", resp.StatusCode)
	}

	// the sign-in rotated the stored token: the one from signup is dead
	resp, _ = postJSON(t, srv.URL+"/api/v1/refresh-token", map[string]string{
		"refreshToken": firstRefresh,
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("stale refresh status = %d, want 403", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/api/v1/refresh-token", map[string]string{
		"refreshToken": second["refreshToken"].(string),
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("fresh refresh status = %d, want 200", resp.StatusCode)
	}
}

func TestAdminEndpointsUseSeparateNamespace(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/v1/admin-signup", map[string]string{
		"username": "root@example.com",
		"password": "sup3rsecret",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin signup status = %d, want 201", resp.StatusCode)
	}
	if _, ok := body["admin"]; !ok {
		t.Fatalf("admin signup response missing admin object: %v", body)
	}
	if _, ok := body["user"]; ok {
		t.Error("admin signup response carries a user object")
	}

	// same username as a user is a distinct principal
	resp, _ = postJSON(t, srv.URL+"/api/v1/signup", map[string]string{
		"username": "root@example.com",
		"password": "sup3rsecret",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("user signup with admin's username status = %d, want 201", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/api/v1/admin-login", map[string]string{
		"username": "root@example.com",
		"password": "sup3rsecret",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("admin login status = %d, want 200", resp.StatusCode)
	}
}

func TestRefreshRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/v1/refresh-token", map[string]string{}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("empty refresh status = %d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); !strings.Contains(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q", got)
	}

	resp, _ = postJSON(t, srv.URL+"/api/v1/refresh-token", map[string]string{
		"refreshToken": "garbage",
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("garbage refresh status = %d, want 403", resp.StatusCode)
	}
}

func TestProtectedEndpointsNeedBearer(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := getJSON(t, srv.URL+"/api/v1/profile", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("profile without token status = %d, want 401", resp.StatusCode)
	}

	resp, _ = getJSON(t, srv.URL+"/api/v1/profile", map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("profile with bad token status = %d, want 401", resp.StatusCode)
	}

	_, signup := postJSON(t, srv.URL+"/api/v1/signup", map[string]string{
		"username": "buyer@example.com",
		"password": "hunter22",
		"fullName": "Buyer",
	}, nil)
	access := signup["accessToken"].(string)
	refresh := signup["refreshToken"].(string)

	resp, body := getJSON(t, srv.URL+"/api/v1/profile", map[string]string{
		"Authorization": "Bearer " + access,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile status = %d, want 200", resp.StatusCode)
	}
	user, ok := body["user"].(map[string]any)
	if !ok || user["username"] != "buyer@example.com" {
		t.Errorf("profile body = %v", body)
	}

	// a refresh token must not pass the gate
	resp, _ = getJSON(t, srv.URL+"/api/v1/profile", map[string]string{
		"Authorization": "Bearer " + refresh,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("profile with refresh token status = %d, want 401", resp.StatusCode)
	}
}

func TestLogoutRevokesRefresh(t *testing.T) {
	srv := newTestServer(t)

	_, signup := postJSON(t, srv.URL+"/api/v1/signup", map[string]string{
		"username": "buyer@example.com",
		"password": "hunter22",
	}, nil)
	access := signup["accessToken"].(string)
	refresh := signup["refreshToken"].(string)

	resp, _ := postJSON(t, srv.URL+"/api/v1/logout", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("logout without token status = %d, want 401", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/api/v1/logout", nil, map[string]string{
		"Authorization": "Bearer " + access,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/api/v1/refresh-token", map[string]string{
		"refreshToken": refresh,
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("refresh after logout status = %d, want 403", resp.StatusCode)
	}
}

func TestHealthAndInfo(t *testing.T) {
	srv := newTestServer(t)

	resp, body := getJSON(t, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}

	resp, body = getJSON(t, srv.URL+"/readyz", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ready" {
		t.Errorf("readyz = %d %v", resp.StatusCode, body)
	}

	resp, body = getJSON(t, srv.URL+"/v1/info", nil)
	if resp.StatusCode != http.StatusOK || body["version"] != "test" {
		t.Errorf("info = %d %v", resp.StatusCode, body)
	}
}

func TestMethodGuards(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := getJSON(t, srv.URL+"/api/v1/signup", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET signup status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q", allow)
	}
}
