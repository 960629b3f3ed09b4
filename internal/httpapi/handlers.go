// ABOUTME: HTTP handlers for config, publish, responses, and schedule routes
// ABOUTME: Thin JSON layer over the Core interface implemented by the engine

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaypress/relaypress/internal/aggregate"
	"github.com/relaypress/relaypress/internal/configstore"
	"github.com/relaypress/relaypress/internal/content"
	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/publish"
	"github.com/relaypress/relaypress/internal/schedule"
	"github.com/relaypress/relaypress/internal/signer"
)

// Core is the engine surface the handlers depend on.
type Core interface {
	// Config returns the effective configuration snapshot.
	Config() configstore.Snapshot

	// UpdateConfig applies fn through the config store and returns the
	// committed snapshot.
	UpdateConfig(ctx context.Context, fn configstore.Updater) (configstore.Snapshot, error)

	// Publish signs the draft and fans it out. An empty target list
	// means the resolved default set.
	Publish(ctx context.Context, draft signer.Draft, targets []string) (*publish.Report, error)

	// Responses collects replies and comments for a published address.
	Responses(ctx context.Context, parentAddr string) ([]*event.Event, error)

	// ResponseCount tallies distinct responses and authors.
	ResponseCount(ctx context.Context, parentAddr string) (aggregate.Count, error)
}

// Scheduler is the slice of the scheduler client the handlers use.
// Nil when no scheduler is configured.
type Scheduler interface {
	List(ctx context.Context) ([]schedule.Note, error)
	Schedule(ctx context.Context, req schedule.ScheduleRequest) (*schedule.Note, error)
	Cancel(ctx context.Context, id string) error
}

// ConfigPatchRequest is the JSON request body for PATCH /api/config.
// Absent sections are left untouched; an explicit empty navigation
// array clears the menu.
type ConfigPatchRequest struct {
	Theme      string                `json:"theme,omitempty"`
	Fields     map[string]string     `json:"fields,omitempty"`
	Navigation []configstore.NavItem `json:"navigation"`
}

// PublishNoteRequest is the JSON request body for POST /api/publish.
type PublishNoteRequest struct {
	Content string   `json:"content"`
	Targets []string `json:"targets,omitempty"`
}

// ArticleRequest is the JSON request body for POST /api/articles.
// PublishedAt is the display timestamp tag; PublishAt, when set, hands
// the article to the scheduler instead of publishing immediately.
type ArticleRequest struct {
	Title       string   `json:"title,omitempty"`
	Slug        string   `json:"slug,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Markdown    string   `json:"markdown"`
	Hashtags    []string `json:"hashtags,omitempty"`
	PublishedAt int64    `json:"published_at,omitempty"`
	PublishAt   int64    `json:"publish_at,omitempty"`
	Targets     []string `json:"targets,omitempty"`
}

// ResponsesResponse is the JSON response for GET /api/responses.
type ResponsesResponse struct {
	Address string         `json:"address"`
	Events  []*event.Event `json:"events"`
}

// handleConfig handles GET and PATCH /api/config.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.core.Config())
	case http.MethodPatch:
		s.handleConfigPatch(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleConfigPatch(w http.ResponseWriter, r *http.Request) {
	req, err := parseConfigPatch(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().Unix()
	_, err = s.core.UpdateConfig(r.Context(), func(cur configstore.Snapshot) configstore.Snapshot {
		next := cur
		if req.Theme != "" {
			next = next.WithTheme(configstore.Theme(req.Theme))
		}
		if len(req.Fields) > 0 {
			next = next.WithSiteFields(req.Fields, now)
		}
		if req.Navigation != nil {
			next = next.WithNavigation(req.Navigation)
		}
		return next
	})
	if err != nil {
		s.logger.Error("config update failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, s.core.Config())
}

// parseConfigPatch parses and validates a ConfigPatchRequest.
// Rejects empty patches and unknown theme names.
func parseConfigPatch(r io.Reader) (*ConfigPatchRequest, error) {
	var req ConfigPatchRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if req.Theme == "" && len(req.Fields) == 0 && req.Navigation == nil {
		return nil, errors.New("empty patch")
	}

	switch configstore.Theme(req.Theme) {
	case "", configstore.ThemeDark, configstore.ThemeLight, configstore.ThemeSystem:
	default:
		return nil, errors.New("unknown theme")
	}

	return &req, nil
}

// handlePublish handles POST /api/publish requests.
// It signs the note and fans it out to the resolved target set,
// returning the per-relay settlement report.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req PublishNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	draft, err := content.NoteDraft(req.Content)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.core.Publish(r.Context(), draft, req.Targets)
	if err != nil {
		s.respondPublishError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleArticles handles POST /api/articles requests.
// With publish_at set the signed draft's content and tags go to the
// scheduler; otherwise the article publishes immediately.
func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	draft, err := content.ArticleDraft(content.Article{
		Title:       req.Title,
		Slug:        req.Slug,
		Summary:     req.Summary,
		Markdown:    req.Markdown,
		PublishedAt: req.PublishedAt,
		Hashtags:    req.Hashtags,
	})
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.PublishAt > 0 {
		s.scheduleArticle(w, r, draft, req)
		return
	}

	report, err := s.core.Publish(r.Context(), draft, req.Targets)
	if err != nil {
		s.respondPublishError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) scheduleArticle(w http.ResponseWriter, r *http.Request, draft signer.Draft, req ArticleRequest) {
	if s.scheduler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no scheduler configured")
		return
	}

	note, err := s.scheduler.Schedule(r.Context(), schedule.ScheduleRequest{
		Content:   draft.Content,
		Kind:      draft.Kind,
		Tags:      draft.Tags,
		PublishAt: req.PublishAt,
		Relays:    req.Targets,
	})
	if err != nil {
		s.respondSchedulerError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, note)
}

// handleResponses handles GET /api/responses requests.
// The address query parameter names the parent event ("kind:pubkey:d"
// for addressable kinds, event id otherwise).
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	addr := r.URL.Query().Get("address")
	if addr == "" {
		writeJSONError(w, http.StatusBadRequest, "address is required")
		return
	}

	events, err := s.core.Responses(r.Context(), addr)
	if err != nil {
		s.logger.Error("collecting responses failed", "error", err, "address", addr)
		writeJSONError(w, http.StatusBadGateway, "no relay reachable")
		return
	}

	writeJSON(w, http.StatusOK, ResponsesResponse{Address: addr, Events: events})
}

// handleResponseCount handles GET /api/responses/count requests.
func (s *Server) handleResponseCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	addr := r.URL.Query().Get("address")
	if addr == "" {
		writeJSONError(w, http.StatusBadRequest, "address is required")
		return
	}

	count, err := s.core.ResponseCount(r.Context(), addr)
	if err != nil {
		s.logger.Error("counting responses failed", "error", err, "address", addr)
		writeJSONError(w, http.StatusBadGateway, "no relay reachable")
		return
	}

	writeJSON(w, http.StatusOK, count)
}

// handleSchedule handles GET and POST /api/schedule requests, proxied
// to the companion scheduler.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no scheduler configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		notes, err := s.scheduler.List(r.Context())
		if err != nil {
			s.respondSchedulerError(w, err)
			return
		}
		if notes == nil {
			notes = []schedule.Note{}
		}
		writeJSON(w, http.StatusOK, notes)
	case http.MethodPost:
		var req schedule.ScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Content == "" {
			writeJSONError(w, http.StatusBadRequest, "content is required")
			return
		}
		if req.PublishAt <= 0 {
			writeJSONError(w, http.StatusBadRequest, "publishAt is required")
			return
		}
		note, err := s.scheduler.Schedule(r.Context(), req)
		if err != nil {
			s.respondSchedulerError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, note)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleScheduleItem handles DELETE /api/schedule/{id} requests.
func (s *Server) handleScheduleItem(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no scheduler configured")
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/schedule/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONError(w, http.StatusBadRequest, "invalid note id")
		return
	}

	if err := s.scheduler.Cancel(r.Context(), id); err != nil {
		s.respondSchedulerError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz returns 200 OK if the server is alive.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// respondPublishError maps publish failures onto HTTP statuses. A
// missing signing identity is the caller's problem to fix, not ours.
func (s *Server) respondPublishError(w http.ResponseWriter, err error) {
	if errors.Is(err, signer.ErrNotAuthenticated) {
		writeJSONError(w, http.StatusServiceUnavailable, "no signing identity loaded")
		return
	}
	s.logger.Error("publish failed", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) respondSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrUnauthorized):
		writeJSONError(w, http.StatusBadGateway, "scheduler rejected credentials")
	case errors.Is(err, signer.ErrNotAuthenticated):
		writeJSONError(w, http.StatusServiceUnavailable, "no signing identity loaded")
	default:
		s.logger.Error("scheduler request failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "scheduler unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
