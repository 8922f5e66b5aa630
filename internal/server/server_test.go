package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"testing"

	"servicelog/internal/app"
	"servicelog/internal/db"
	"servicelog/internal/domain"
	"servicelog/internal/engine"
	"servicelog/internal/migrate"
	"servicelog/internal/view"
)

var (
	peerHeaders = map[string]string{
		"X-Actor-Id": "peer-1", "X-Org-Id": "org-1", "X-Actor-Role": "peer",
	}
	supervisorHeaders = map[string]string{
		"X-Actor-Id": "sup-1", "X-Org-Id": "org-1", "X-Actor-Role": "supervisor",
	}
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.Store.EnsureOrg(ctx, tx, "org-1", "Org One", "UTC", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("seed org: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := app.EnsureMember(ctx, e.Store, "org-1", "peer-1", "Jordan Reyes", domain.RolePeer); err != nil {
		t.Fatalf("seed peer: %v", err)
	}
	if err := app.EnsureMember(ctx, e.Store, "org-1", "sup-1", "Sam Okafor", domain.RoleSupervisor); err != nil {
		t.Fatalf("seed supervisor: %v", err)
	}
	handler, err := New(Config{
		Engine: e,
		View:   view.View{Store: e.Store, Audit: e.Audit},
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
			Logger:                 log.New(io.Discard, "", 0),
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func createPlanBody() map[string]any {
	return map[string]any{
		"service_type":             "individual",
		"planned_date":             "2026-03-10",
		"planned_duration_minutes": 60,
		"setting":                  "community",
		"service_code":             "H0038",
	}
}

func TestPlanLifecycleHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans", createPlanBody(), peerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.ServicePlan
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}
	if created.Status != domain.StatusDraft {
		t.Fatalf("expected draft, got %s", created.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/"+created.ID+"/submit", map[string]any{}, peerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	// verifying before completion is an invalid transition
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/"+created.ID+"/verify", map[string]any{}, supervisorHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", envelope.Error.Code)
	}
	if envelope.Error.Details["current_status"] != "planned" {
		t.Fatalf("expected current_status detail, got %+v", envelope.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/"+created.ID+"/approve", map[string]any{"comment": "ok"}, supervisorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/"+created.ID+"/complete", map[string]any{
		"actual_duration_minutes": 55,
		"attendance_count":        1,
		"delivered_as_planned":    true,
	}, peerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/"+created.ID+"/verify", map[string]any{}, supervisorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d: %s", res.StatusCode, string(data))
	}
	var verified domain.ServicePlan
	_ = json.Unmarshal(data, &verified)
	if verified.Status != domain.StatusVerified {
		t.Fatalf("expected verified, got %s", verified.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans/"+created.ID+"/history", nil, peerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history HistoryResponse
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history.Items) != 5 {
		t.Fatalf("expected 5 events, got %d", len(history.Items))
	}
}

func TestValidationAndNotFoundEnvelopes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans", createPlanBody(), peerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.ServicePlan
	_ = json.Unmarshal(data, &created)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/"+created.ID+"/submit", map[string]any{}, peerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}

	// request-change without a comment is rejected up front
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans/"+created.ID+"/request-change", map[string]any{}, supervisorHeaders)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans/does-not-exist", nil, peerHeaders)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", envelope.Error.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	// health stays open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", res.StatusCode)
	}
	// legacy headers need the full trio
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans", nil, map[string]string{"X-Actor-Id": "peer-1"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without org/role headers, got %d", res.StatusCode)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id":        "peer-1",
		"organization_id": "org-1",
		"role":            "peer",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("expected token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "peer-1" || me.OrganizationID != "org-1" || me.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{"name": "laptop"}, peerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mint key status %d: %s", res.StatusCode, string(data))
	}
	var minted APIKeyResponse
	if err := json.Unmarshal(data, &minted); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if minted.Key == "" {
		t.Fatalf("expected plaintext key at creation")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": minted.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(data))
	}
	var me MeResponse
	_ = json.Unmarshal(data, &me)
	if me.ActorID != "peer-1" || me.Source != "api_key" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestReviewQueueSupervisorOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/review-queue", nil, peerHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for peer, got %d", res.StatusCode)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/review-queue", nil, supervisorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review queue status %d: %s", res.StatusCode, string(data))
	}
}

func TestPeerListScopedToOwnPlans(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/plans", createPlanBody(), peerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	otherPeer := map[string]string{"X-Actor-Id": "peer-2", "X-Org-Id": "org-1", "X-Actor-Role": "peer"}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans", nil, otherPeer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list PlanListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 0 {
		t.Fatalf("peer saw another peer's plans: %+v", list.Items)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/plans", nil, supervisorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("supervisor should see the org's plans, got %d", len(list.Items))
	}
}
