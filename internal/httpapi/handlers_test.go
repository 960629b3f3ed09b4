// ABOUTME: Tests for the management API handlers and route registration
// ABOUTME: Drives handlers through a stub core and stub scheduler

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relaypress/relaypress/internal/aggregate"
	"github.com/relaypress/relaypress/internal/config"
	"github.com/relaypress/relaypress/internal/configstore"
	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/publish"
	"github.com/relaypress/relaypress/internal/schedule"
	"github.com/relaypress/relaypress/internal/signer"
)

type stubCore struct {
	mu   sync.Mutex
	snap configstore.Snapshot

	publishErr error
	report     *publish.Report
	drafts     []signer.Draft
	targets    [][]string

	responses    []*event.Event
	responsesErr error
	count        aggregate.Count
	lastAddr     string
}

func (c *stubCore) Config() configstore.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Overlay(configstore.Defaults())
}

func (c *stubCore) UpdateConfig(ctx context.Context, fn configstore.Updater) (configstore.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = fn(c.snap)
	return c.snap, nil
}

func (c *stubCore) Publish(ctx context.Context, draft signer.Draft, targets []string) (*publish.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return nil, c.publishErr
	}
	c.drafts = append(c.drafts, draft)
	c.targets = append(c.targets, targets)
	if c.report != nil {
		return c.report, nil
	}
	return &publish.Report{Event: &event.Event{Kind: draft.Kind, Content: draft.Content}}, nil
}

func (c *stubCore) Responses(ctx context.Context, parentAddr string) ([]*event.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAddr = parentAddr
	return c.responses, c.responsesErr
}

func (c *stubCore) ResponseCount(ctx context.Context, parentAddr string) (aggregate.Count, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAddr = parentAddr
	return c.count, c.responsesErr
}

type stubScheduler struct {
	mu        sync.Mutex
	notes     []schedule.Note
	scheduled []schedule.ScheduleRequest
	canceled  []string
	err       error
}

func (s *stubScheduler) List(ctx context.Context) ([]schedule.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes, s.err
}

func (s *stubScheduler) Schedule(ctx context.Context, req schedule.ScheduleRequest) (*schedule.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.scheduled = append(s.scheduled, req)
	return &schedule.Note{
		ID:        "note-1",
		Content:   req.Content,
		Kind:      req.Kind,
		Tags:      req.Tags,
		PublishAt: req.PublishAt,
		Relays:    req.Relays,
		Status:    "pending",
	}, nil
}

func (s *stubScheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.canceled = append(s.canceled, id)
	return nil
}

func newTestServer(core Core, sched Scheduler, jwtSecret string) *Server {
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Auth.JWTSecret = jwtSecret
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, core, sched, logger)
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encoding request body: %v", err)
	}
	return bytes.NewReader(data)
}

func TestHandleConfig_ReturnsEffectiveSnapshot(t *testing.T) {
	core := &stubCore{}
	core.snap = core.snap.WithSiteField(configstore.FieldTitle, "My Site", 100)
	srv := newTestServer(core, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var snap configstore.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got, _ := snap.Field(configstore.FieldTitle); got != "My Site" {
		t.Errorf("title = %q, want %q", got, "My Site")
	}
	// Defaults shine through for fields the store never set.
	if !snap.ShowBlog() {
		t.Error("expected default show_blog=true in effective snapshot")
	}
}

func TestHandleConfig_PatchOverlaysFields(t *testing.T) {
	core := &stubCore{}
	srv := newTestServer(core, nil, "")

	body := jsonBody(t, ConfigPatchRequest{Fields: map[string]string{configstore.FieldTitle: "Renamed"}})
	req := httptest.NewRequest(http.MethodPatch, "/api/config", body)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got, _ := core.snap.Field(configstore.FieldTitle); got != "Renamed" {
		t.Errorf("stored title = %q, want %q", got, "Renamed")
	}
	if core.snap.SiteConfig.UpdatedAt == 0 {
		t.Error("expected a fresh siteConfig updatedAt stamp")
	}
}

func TestHandleConfig_PatchClearsNavigation(t *testing.T) {
	core := &stubCore{}
	core.snap = core.snap.WithNavigation([]configstore.NavItem{{ID: "home", Label: "Home", Path: "/"}})
	srv := newTestServer(core, nil, "")

	req := httptest.NewRequest(http.MethodPatch, "/api/config", strings.NewReader(`{"navigation":[]}`))
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if len(core.snap.Navigation) != 0 {
		t.Errorf("expected navigation cleared, got %v", core.snap.Navigation)
	}
}

func TestHandleConfig_PatchRejectsEmptyBody(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "")

	req := httptest.NewRequest(http.MethodPatch, "/api/config", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleConfig_PatchRejectsUnknownTheme(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "")

	req := httptest.NewRequest(http.MethodPatch, "/api/config", strings.NewReader(`{"theme":"sepia"}`))
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	var errResp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if errResp["error"] != "unknown theme" {
		t.Errorf("unexpected error message: %s", errResp["error"])
	}
}

func TestHandleConfig_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "")

	req := httptest.NewRequest(http.MethodDelete, "/api/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
}

func TestHandlePublish_SignsAndReportsSettlement(t *testing.T) {
	core := &stubCore{}
	srv := newTestServer(core, nil, "")

	body := jsonBody(t, PublishNoteRequest{Content: "hello relays", Targets: []string{"wss://relay.example"}})
	req := httptest.NewRequest(http.MethodPost, "/api/publish", body)
	rec := httptest.NewRecorder()
	srv.handlePublish(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(core.drafts) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(core.drafts))
	}
	if core.drafts[0].Kind != event.KindNote {
		t.Errorf("draft kind = %d, want %d", core.drafts[0].Kind, event.KindNote)
	}
	if core.drafts[0].Content != "hello relays" {
		t.Errorf("draft content = %q", core.drafts[0].Content)
	}
	if len(core.targets[0]) != 1 || core.targets[0][0] != "wss://relay.example" {
		t.Errorf("targets = %v", core.targets[0])
	}
}

func TestHandlePublish_EmptyContent(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(`{"content":""}`))
	rec := httptest.NewRecorder()
	srv.handlePublish(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestHandlePublish_NoIdentity(t *testing.T) {
	core := &stubCore{publishErr: signer.ErrNotAuthenticated}
	srv := newTestServer(core, nil, "")

	body := jsonBody(t, PublishNoteRequest{Content: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/publish", body)
	rec := httptest.NewRecorder()
	srv.handlePublish(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	var errResp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if errResp["error"] != "no signing identity loaded" {
		t.Errorf("unexpected error message: %s", errResp["error"])
	}
}

func TestHandleArticles_PublishesImmediately(t *testing.T) {
	core := &stubCore{}
	srv := newTestServer(core, nil, "")

	body := jsonBody(t, ArticleRequest{Title: "Launch Day", Markdown: "We are live."})
	req := httptest.NewRequest(http.MethodPost, "/api/articles", body)
	rec := httptest.NewRecorder()
	srv.handleArticles(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(core.drafts) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(core.drafts))
	}
	draft := core.drafts[0]
	if draft.Kind != event.KindLongForm {
		t.Errorf("draft kind = %d, want %d", draft.Kind, event.KindLongForm)
	}
	if got, ok := draft.Tags.First(event.TagIdentifier); !ok || got != "launch-day" {
		t.Errorf("d tag = %q, want %q", got, "launch-day")
	}
}

func TestHandleArticles_MissingTitle(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/api/articles", strings.NewReader(`{"markdown":"no heading here"}`))
	rec := httptest.NewRecorder()
	srv.handleArticles(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleArticles_SchedulesWhenPublishAtSet(t *testing.T) {
	core := &stubCore{}
	sched := &stubScheduler{}
	srv := newTestServer(core, sched, "")

	publishAt := time.Now().Add(time.Hour).Unix()
	body := jsonBody(t, ArticleRequest{
		Title:     "Later",
		Markdown:  "Patience.",
		PublishAt: publishAt,
		Targets:   []string{"wss://relay.example"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/articles", body)
	rec := httptest.NewRecorder()
	srv.handleArticles(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(core.drafts) != 0 {
		t.Error("scheduled article must not publish immediately")
	}
	if len(sched.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled note, got %d", len(sched.scheduled))
	}
	got := sched.scheduled[0]
	if got.Kind != event.KindLongForm || got.PublishAt != publishAt {
		t.Errorf("scheduled request = %+v", got)
	}
	if _, ok := got.Tags.First(event.TagTitle); !ok {
		t.Error("expected title tag forwarded to scheduler")
	}
}

func TestHandleArticles_ScheduleWithoutScheduler(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "")

	body := jsonBody(t, ArticleRequest{Title: "Later", Markdown: "x", PublishAt: 42})
	req := httptest.NewRequest(http.MethodPost, "/api/articles", body)
	rec := httptest.NewRecorder()
	srv.handleArticles(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}

func TestHandleResponses_RequiresAddress(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/responses", nil)
	rec := httptest.NewRecorder()
	srv.handleResponses(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleResponses_ReturnsEvents(t *testing.T) {
	core := &stubCore{
		responses: []*event.Event{
			{ID: "aa", Kind: event.KindNote, Content: "nice post"},
			{ID: "bb", Kind: event.KindComment, Content: "agreed"},
		},
	}
	srv := newTestServer(core, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/responses?address=30023:feedface:launch-day", nil)
	rec := httptest.NewRecorder()
	srv.handleResponses(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp ResponsesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Address != "30023:feedface:launch-day" {
		t.Errorf("address = %q", resp.Address)
	}
	if len(resp.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(resp.Events))
	}
	if core.lastAddr != "30023:feedface:launch-day" {
		t.Errorf("core queried %q", core.lastAddr)
	}
}

func TestHandleResponseCount_ReturnsTallies(t *testing.T) {
	core := &stubCore{count: aggregate.Count{Events: 7, Authors: 3}}
	srv := newTestServer(core, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/responses/count?address=30023:feedface:launch-day", nil)
	rec := httptest.NewRecorder()
	srv.handleResponseCount(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var count aggregate.Count
	if err := json.NewDecoder(rec.Body).Decode(&count); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if count.Events != 7 || count.Authors != 3 {
		t.Errorf("count = %+v", count)
	}
}

func TestHandleSchedule_ListReturnsEmptyArray(t *testing.T) {
	srv := newTestServer(&stubCore{}, &stubScheduler{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/schedule", nil)
	rec := httptest.NewRecorder()
	srv.handleSchedule(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty JSON array", got)
	}
}

func TestHandleSchedule_CreateValidates(t *testing.T) {
	sched := &stubScheduler{}
	srv := newTestServer(&stubCore{}, sched, "")

	req := httptest.NewRequest(http.MethodPost, "/api/schedule", strings.NewReader(`{"content":"later","publishAt":0}`))
	rec := httptest.NewRecorder()
	srv.handleSchedule(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
	if len(sched.scheduled) != 0 {
		t.Error("invalid request must not reach the scheduler")
	}
}

func TestHandleSchedule_SchedulerUnavailable(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/schedule", nil)
	rec := httptest.NewRecorder()
	srv.handleSchedule(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}

func TestHandleSchedule_UpstreamAuthFailure(t *testing.T) {
	sched := &stubScheduler{err: schedule.ErrUnauthorized}
	srv := newTestServer(&stubCore{}, sched, "")

	req := httptest.NewRequest(http.MethodGet, "/api/schedule", nil)
	rec := httptest.NewRecorder()
	srv.handleSchedule(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", rec.Code)
	}
}

func TestHandleScheduleItem_CancelByID(t *testing.T) {
	sched := &stubScheduler{}
	srv := newTestServer(&stubCore{}, sched, "")

	req := httptest.NewRequest(http.MethodDelete, "/api/schedule/note-42", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sched.canceled) != 1 || sched.canceled[0] != "note-42" {
		t.Errorf("canceled = %v", sched.canceled)
	}
}

func TestHandleScheduleItem_RejectsNestedPath(t *testing.T) {
	srv := newTestServer(&stubCore{}, &stubScheduler{}, "")

	req := httptest.NewRequest(http.MethodDelete, "/api/schedule/a/b", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestRoutes_RequireAuthWhenSecretConfigured(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "routes-test-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", rec.Code)
	}

	token, err := NewJWTVerifier([]byte("routes-test-secret")).Generate("admin", time.Hour)
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 with token, got %d", rec.Code)
	}
}

func TestRoutes_OpenWithoutSecret(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestHealthz_OpenRegardlessOfAuth(t *testing.T) {
	srv := newTestServer(&stubCore{}, nil, "routes-test-secret")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}
