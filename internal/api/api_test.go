package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"trigger-console/internal/audit"
	"trigger-console/internal/auth"
	"trigger-console/internal/config"
	"trigger-console/internal/console"
	"trigger-console/internal/metadata"
	"trigger-console/internal/notify"
	"trigger-console/internal/platform"
	"trigger-console/internal/store"
)

type testServer struct {
	app      *fiber.App
	platform *platform.Memory
	console  *console.Console
	buffer   *audit.Buffer
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "api"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := s.Bootstrap(ctx, "admin", hash); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	m := platform.NewMemory()
	m.AddObjectType("Account", "Contact")
	m.AddClass(platform.HandlerClass{
		Name:        "AccountHandler",
		Events:      []metadata.EventType{metadata.EventBeforeInsert, metadata.EventAfterInsert},
		Description: "Account automation",
	})
	m.Seed(
		metadata.Record{ID: "r1", Active: true, Order: 1, Label: "Owner Sync", DeveloperName: "OwnerSync",
			ObjectType: "Account", Event: metadata.EventBeforeInsert, HandlerClass: "AccountHandler"},
		metadata.Record{ID: "r2", Active: true, Order: 5, Label: "Framework", DeveloperName: "Framework",
			ObjectType: "Contact", Event: metadata.EventAfterInsert, HandlerClass: "AccountHandler",
			NamespacePrefix: metadata.BuiltInNamespace},
	)

	hub := notify.NewHub(20)
	buf := audit.NewBuffer(s, 100, 60000)
	t.Cleanup(buf.Stop)

	c := console.New(console.Options{Service: m, Sink: hub, Audit: buf, PollInterval: time.Hour})
	t.Cleanup(c.Close)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	svc := auth.NewService(s, auth.Options{Secret: "test-secret"})
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterAuthRoutes(app, NewAuthHandler(svc))
	RegisterRoutes(app, NewHandler(c, hub, s), AuthMiddleware(svc), RequireAdmin())

	ts := &testServer{app: app, platform: m, console: c, buffer: buf}
	var login struct {
		Data auth.TokenPair `json:"data"`
	}
	ts.do(t, "POST", "/api/_auth/login", `{"username":"admin","password":"pw"}`, http.StatusOK, &login)
	if login.Data.ExpiresIn != int(auth.DefaultAccessTTL/time.Second) {
		t.Fatalf("expected default access ttl, got expires_in %d", login.Data.ExpiresIn)
	}
	ts.token = login.Data.AccessToken
	return ts
}

// do sends a request and decodes the response into out when out is non-nil.
func (ts *testServer) do(t *testing.T, method, path, body string, wantStatus int, out any) []byte {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := ts.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, wantStatus, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s %s: decode: %v (%s)", method, path, err, raw)
		}
	}
	return raw
}

type recordsResponse struct {
	Data []metadata.Record `json:"data"`
}

type editorResponse struct {
	Data struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Fields map[string]struct {
			Value   string `json:"value"`
			Invalid bool   `json:"invalid"`
		} `json:"fields"`
	} `json:"data"`
}

func TestRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	var resp ErrorResponse
	ts.do(t, "GET", "/api/records", "", http.StatusUnauthorized, &resp)
	if resp.Error.Code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %s", resp.Error.Code)
	}

	ts.token = "garbage"
	ts.do(t, "GET", "/api/records", "", http.StatusUnauthorized, nil)
}

func TestRecordsAndFilters(t *testing.T) {
	ts := newTestServer(t)

	var all recordsResponse
	ts.do(t, "GET", "/api/records", "", http.StatusOK, &all)
	if len(all.Data) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all.Data))
	}

	var options struct {
		Data struct {
			ObjectTypes []metadata.Option `json:"objectTypes"`
		} `json:"data"`
	}
	ts.do(t, "GET", "/api/records/options", "", http.StatusOK, &options)
	if len(options.Data.ObjectTypes) != 3 {
		t.Errorf("expected All plus two object types, got %+v", options.Data.ObjectTypes)
	}

	var filtered recordsResponse
	ts.do(t, "PUT", "/api/filters", `{"objectType":"Account","event":"BEFORE_INSERT"}`, http.StatusOK, &filtered)
	if len(filtered.Data) != 1 || filtered.Data[0].ID != "r1" {
		t.Fatalf("expected only r1, got %+v", filtered.Data)
	}

	ts.do(t, "PUT", "/api/filters", `{"event":"SOMETIME"}`, http.StatusBadRequest, nil)

	var current recordsResponse
	ts.do(t, "GET", "/api/records", "", http.StatusOK, &current)
	if len(current.Data) != 1 || current.Data[0].ID != "r1" {
		t.Errorf("rejected filter should leave the previous one in place, got %+v", current.Data)
	}

	// Search runs over the filtered list.
	var empty recordsResponse
	ts.do(t, "GET", "/api/records/search?q=record.builtIn", "", http.StatusOK, &empty)
	if len(empty.Data) != 0 {
		t.Errorf("built-in r2 is filtered out, got %+v", empty.Data)
	}

	ts.do(t, "PUT", "/api/filters", `{}`, http.StatusOK, nil)
	var found recordsResponse
	ts.do(t, "GET", "/api/records/search?q=record.builtIn", "", http.StatusOK, &found)
	if len(found.Data) != 1 || found.Data[0].ID != "r2" {
		t.Errorf("expected built-in r2, got %+v", found.Data)
	}
	ts.do(t, "GET", "/api/records/search?q=record.order+%3E", "", http.StatusBadRequest, nil)
	ts.do(t, "GET", "/api/records/search", "", http.StatusBadRequest, nil)
}

func TestSelectionFollowsFilters(t *testing.T) {
	ts := newTestServer(t)

	var sel struct {
		Data *struct {
			Record   metadata.Record `json:"record"`
			Editable bool            `json:"editable"`
		} `json:"data"`
	}
	ts.do(t, "PUT", "/api/selection", `{"id":"r2"}`, http.StatusOK, &sel)
	if sel.Data == nil || sel.Data.Record.ID != "r2" || sel.Data.Editable {
		t.Fatalf("expected read-only r2 selected, got %+v", sel.Data)
	}

	ts.do(t, "PUT", "/api/filters", `{"objectType":"Account"}`, http.StatusOK, nil)
	sel.Data = nil
	ts.do(t, "GET", "/api/selection", "", http.StatusOK, &sel)
	if sel.Data != nil {
		t.Errorf("hidden record should be deselected, got %+v", sel.Data)
	}

	ts.do(t, "PUT", "/api/selection", `{"id":"r2"}`, http.StatusNotFound, nil)
}

func TestEditorValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	var ed editorResponse
	ts.do(t, "POST", "/api/editors", `{"mode":"new"}`, http.StatusCreated, &ed)
	if ed.Data.Title != "Create New" {
		t.Errorf("unexpected title %q", ed.Data.Title)
	}

	var resp ErrorResponse
	ts.do(t, "POST", "/api/editors/"+ed.Data.ID+"/submit", "", http.StatusUnprocessableEntity, &resp)
	if resp.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %s", resp.Error.Code)
	}
	fields := map[string]bool{}
	for _, d := range resp.Error.Details {
		fields[d.Field] = true
	}
	for _, f := range []string{"objectType", "handlerClass", "event"} {
		if !fields[f] {
			t.Errorf("expected %s in details, got %+v", f, resp.Error.Details)
		}
	}

	ts.do(t, "PUT", "/api/editors/"+ed.Data.ID+"/fields/nope", `{"value":"x"}`, http.StatusBadRequest, nil)
	ts.do(t, "PUT", "/api/editors/missing/fields/label", `{"value":"x"}`, http.StatusNotFound, nil)
	ts.do(t, "POST", "/api/editors", `{"mode":"sideways"}`, http.StatusBadRequest, nil)
	ts.do(t, "POST", "/api/editors", `{"mode":"edit"}`, http.StatusBadRequest, nil)
	ts.do(t, "POST", "/api/editors", `{"mode":"edit","recordId":"r2"}`, http.StatusForbidden, nil)
}

func TestSubmitFlow(t *testing.T) {
	ts := newTestServer(t)

	var ed editorResponse
	ts.do(t, "POST", "/api/editors", `{"mode":"new"}`, http.StatusCreated, &ed)
	base := "/api/editors/" + ed.Data.ID
	ts.do(t, "PUT", base+"/fields/objectType", `{"value":"Account"}`, http.StatusOK, nil)
	ts.do(t, "PUT", base+"/fields/event", `{"value":"AFTER_INSERT"}`, http.StatusOK, nil)
	ts.do(t, "PUT", base+"/fields/handlerClass", `{"value":"AccountHandler"}`, http.StatusOK, nil)
	ts.do(t, "POST", base+"/fields/handlerClass/validate", "", http.StatusOK, &ed)
	if got := ed.Data.Fields["developerName"].Value; got != "AccountHandlerAI" {
		t.Fatalf("expected autofilled developer name, got %q", got)
	}

	var created struct {
		Data metadata.Record `json:"data"`
	}
	ts.do(t, "POST", base+"/submit", "", http.StatusCreated, &created)
	if created.Data.ID == "" || created.Data.DeveloperName != "AccountHandlerAI" {
		t.Fatalf("unexpected created record %+v", created.Data)
	}
	ts.do(t, "GET", base, "", http.StatusNotFound, nil)

	var deployments struct {
		Data console.DeploymentStatus `json:"data"`
	}
	ts.do(t, "GET", "/api/deployments", "", http.StatusOK, &deployments)
	if len(deployments.Data.Pending) != 1 || !deployments.Data.Polling {
		t.Fatalf("expected one pending deployment, got %+v", deployments.Data)
	}

	var refreshed recordsResponse
	ts.do(t, "POST", "/api/records/refresh", "", http.StatusOK, &refreshed)
	if len(refreshed.Data) != 3 {
		t.Errorf("expected the new record after refresh, got %d", len(refreshed.Data))
	}
	ts.do(t, "GET", "/api/deployments", "", http.StatusOK, &deployments)
	if len(deployments.Data.Pending) != 0 || deployments.Data.Polling {
		t.Errorf("expected deployment confirmed, got %+v", deployments.Data)
	}

	ts.buffer.Flush()
	var events struct {
		Data []audit.Event `json:"data"`
	}
	ts.do(t, "GET", "/api/_admin/events?action=record.submitted", "", http.StatusOK, &events)
	if len(events.Data) != 1 || events.Data[0].UserID != "admin" {
		t.Errorf("expected one submission by admin, got %+v", events.Data)
	}

	raw := ts.do(t, "GET", "/api/notifications/stream?follow=false", "", http.StatusOK, nil)
	body := string(raw)
	if !strings.Contains(body, "event: toast") || !strings.Contains(body, "Deployment of AccountHandlerAI started") {
		t.Errorf("expected replayed toasts, got %q", body)
	}
}

func TestPlatformFailureMapsToBadGateway(t *testing.T) {
	ts := newTestServer(t)
	ts.platform.FailOn("fetchAll", io.ErrUnexpectedEOF)

	var resp ErrorResponse
	ts.do(t, "POST", "/api/records/refresh", "", http.StatusBadGateway, &resp)
	if resp.Error.Code != "PLATFORM_ERROR" {
		t.Errorf("expected PLATFORM_ERROR, got %s", resp.Error.Code)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token
	ts.token = ""

	var login struct {
		Data auth.TokenPair `json:"data"`
	}
	ts.do(t, "POST", "/api/_auth/login", `{"username":"admin","password":"pw"}`, http.StatusOK, &login)
	body := `{"refresh_token":"` + login.Data.RefreshToken + `"}`
	ts.do(t, "POST", "/api/_auth/logout", body, http.StatusOK, nil)
	ts.do(t, "POST", "/api/_auth/refresh", body, http.StatusUnauthorized, nil)
	ts.do(t, "POST", "/api/_auth/login", `{"username":"admin","password":"wrong"}`, http.StatusUnauthorized, nil)

	ts.token = token
	ts.do(t, "GET", "/api/records", "", http.StatusOK, nil)
}
