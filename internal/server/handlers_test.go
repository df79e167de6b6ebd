package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/domain"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/pathrank"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/repository"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/service"
)

type apiStubRepo struct {
	users       []domain.User
	connections []domain.Connection
	connErr     error
}

func (a *apiStubRepo) UpsertUser(ctx context.Context, user domain.User) error {
	a.users = append(a.users, user)
	return nil
}

func (a *apiStubRepo) UpsertConnection(ctx context.Context, conn domain.Connection) error {
	if a.connErr != nil {
		return a.connErr
	}
	a.connections = append(a.connections, conn)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pathHandlers(t *testing.T, store *pathrank.MemoryStore) *APIHandlers {
	t.Helper()
	opts := pathrank.DefaultOptions()
	opts.Weights = pathrank.Weights{HopPenalty: 0.9}
	engine, err := pathrank.NewEngine(store, nil, discardLogger(), opts)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return NewAPIHandlers(discardLogger(), nil, service.NewConnectionService(engine))
}

func triangle() *pathrank.MemoryStore {
	store := pathrank.NewMemoryStore()
	store.Connect(pathrank.Edge{From: "USR-1", To: "USR-2", Strength: 0.9})
	store.Connect(pathrank.Edge{From: "USR-2", To: "USR-3", Strength: 0.8})
	store.Connect(pathrank.Edge{From: "USR-1", To: "USR-3", Strength: 0.3})
	return store
}

func getPath(h *APIHandlers, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/connections/path?"+query, nil)
	rec := httptest.NewRecorder()
	h.handleConnectionPath(rec, req)
	return rec
}

func decodePath(t *testing.T, rec *httptest.ResponseRecorder) pathResponse {
	t.Helper()
	var payload pathResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return payload
}

func TestHandleConnectionPath(t *testing.T) {
	handlers := pathHandlers(t, triangle())

	rec := getPath(handlers, "sourceUserId=USR-1&targetUserId=USR-3")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	best := decodePath(t, rec)
	if best.Status != "ok" || best.TotalPaths != 2 || best.PathIndex != 0 {
		t.Fatalf("unexpected payload %+v", best)
	}
	if best.Path == nil || strings.Join(best.Path.Nodes, ",") != "USR-1,USR-2,USR-3" {
		t.Fatalf("expected the two-hop path first, got %+v", best.Path)
	}
	if best.Path.Hops != 2 || len(best.Path.Edges) != 2 {
		t.Fatalf("expected 2 hops and edges, got %+v", best.Path)
	}
	if best.Cached {
		t.Fatalf("first request must not be a cache hit")
	}
	if best.RankingID == "" {
		t.Fatalf("expected a ranking id")
	}

	rec = getPath(handlers, "sourceUserId=USR-1&targetUserId=USR-3&pathIndex=1")
	next := decodePath(t, rec)
	if next.Path == nil || strings.Join(next.Path.Nodes, ",") != "USR-1,USR-3" {
		t.Fatalf("expected the direct path second, got %+v", next.Path)
	}
	if !next.Cached || next.RankingID != best.RankingID {
		t.Fatalf("expected page from the same cached ranking, got %+v", next)
	}
}

func TestHandleConnectionPathOutcomes(t *testing.T) {
	store := triangle()
	store.AddNode(pathrank.Node{Key: "USR-9"})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{name: "past the last path", query: "sourceUserId=USR-1&targetUserId=USR-3&pathIndex=5", wantStatus: http.StatusOK, wantBody: `"status":"no_more_paths"`},
		{name: "disconnected", query: "sourceUserId=USR-1&targetUserId=USR-9", wantStatus: http.StatusOK, wantBody: `"status":"no_path"`},
		{name: "unknown user", query: "sourceUserId=USR-1&targetUserId=GHOST", wantStatus: http.StatusNotFound, wantBody: "user not found"},
		{name: "negative index", query: "sourceUserId=USR-1&targetUserId=USR-3&pathIndex=-1", wantStatus: http.StatusBadRequest},
		{name: "malformed index", query: "sourceUserId=USR-1&targetUserId=USR-3&pathIndex=two", wantStatus: http.StatusBadRequest, wantBody: "invalid pathIndex"},
		{name: "missing target", query: "sourceUserId=USR-1", wantStatus: http.StatusBadRequest},
		{name: "same user", query: "sourceUserId=USR-1&targetUserId=USR-1", wantStatus: http.StatusBadRequest},
	}

	handlers := pathHandlers(t, store)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := getPath(handlers, tc.query)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantBody != "" && !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Fatalf("expected body to contain %q, got %s", tc.wantBody, rec.Body.String())
			}
		})
	}
}

func TestHandleConnectionPathStoreUnavailable(t *testing.T) {
	store := triangle().WithError(errors.New("bolt: connection refused"))
	handlers := pathHandlers(t, store)

	rec := getPath(handlers, "sourceUserId=USR-1&targetUserId=USR-3")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestHandleConnectionPathCallerDeadline(t *testing.T) {
	store := triangle().WithSnapshotHook(func(ctx context.Context, req pathrank.SnapshotRequest) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	handlers := pathHandlers(t, store)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/connections/path?sourceUserId=USR-1&targetUserId=USR-3", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handlers.handleConnectionPath(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 when the caller deadline passes, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestHandleConnectionPathCallerCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	store := triangle().WithSnapshotHook(func(ctx context.Context, req pathrank.SnapshotRequest) error {
		<-release
		return nil
	})
	handlers := pathHandlers(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/connections/path?sourceUserId=USR-1&targetUserId=USR-3", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handlers.handleConnectionPath(rec, req)

	if rec.Code == http.StatusInternalServerError {
		t.Fatalf("a canceled caller must not be reported as a server error")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no body for a canceled caller, got %s", rec.Body.String())
	}
}

func TestHandleConnectionPathReportsTruncation(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusOK, toPathResponse(pathrank.Response{
		Key:       pathrank.RequestKey{Source: "USR-1", Target: "USR-3"},
		Status:    pathrank.StatusOK,
		Truncated: true,
	}))
	if !strings.Contains(rec.Body.String(), `"truncated":true`) {
		t.Fatalf("expected truncated flag in body, got %s", rec.Body.String())
	}

	rec = getPath(pathHandlers(t, triangle()), "sourceUserId=USR-1&targetUserId=USR-3")
	if decodePath(t, rec).Truncated {
		t.Fatalf("an uncapped search must not be flagged as truncated")
	}
}

func TestHandleConnectionPathRejectsPost(t *testing.T) {
	handlers := pathHandlers(t, triangle())
	req := httptest.NewRequest(http.MethodPost, "/connections/path", nil)
	rec := httptest.NewRecorder()
	handlers.handleConnectionPath(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("expected Allow: GET, got %q", rec.Header().Get("Allow"))
	}
}

func TestHandleUsers(t *testing.T) {
	repo := &apiStubRepo{}
	handlers := NewAPIHandlers(discardLogger(), service.NewRelationshipService(repo), nil)

	body := `{"userId":"USR-1","name":"Jane Doe","attributes":{"city":"Pune"}}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handlers.handleUsers(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.users) != 1 || repo.users[0].ID != "USR-1" {
		t.Fatalf("expected USR-1 persisted, got %+v", repo.users)
	}

	req = httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"name":"nobody"}`))
	rec = httptest.NewRecorder()
	handlers.handleUsers(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without userId, got %d", rec.Code)
	}
}

func TestHandleConnections(t *testing.T) {
	repo := &apiStubRepo{}
	handlers := NewAPIHandlers(discardLogger(), service.NewRelationshipService(repo), nil)

	body := `{"sourceUserId":"USR-1","targetUserId":"USR-2","strength":0.7,"lastActiveAt":"2024-04-01T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/connections", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handlers.handleConnections(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.connections) != 1 || repo.connections[0].LastActiveAt == nil {
		t.Fatalf("expected connection with activity timestamp, got %+v", repo.connections)
	}

	repo.connErr = repository.ErrUserNotFound
	req = httptest.NewRequest(http.MethodPost, "/connections", strings.NewReader(body))
	rec = httptest.NewRecorder()
	handlers.handleConnections(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown endpoint user, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/connections", strings.NewReader(`{"sourceUserId":"USR-1","targetUserId":"USR-2","strength":0.7,"lastActiveAt":"yesterday"}`))
	rec = httptest.NewRecorder()
	handlers.handleConnections(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad timestamp, got %d", rec.Code)
	}
}

func TestRouterRequestIDAndMetrics(t *testing.T) {
	router := NewRouter(discardLogger(), RouterDependencies{
		API:            pathHandlers(t, triangle()),
		MetricsEnabled: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/connections/path?sourceUserId=USR-1&targetUserId=USR-3", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("expected caller request id echoed, got %q", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection_path_requests_total") {
		t.Fatalf("expected path metrics to be exported")
	}
}

func TestRouterHealthDegraded(t *testing.T) {
	router := NewRouter(discardLogger(), RouterDependencies{
		Health: CompositeHealth{
			"graph": ProbeFunc(func(ctx context.Context) error { return errors.New("unreachable") }),
			"usage": ProbeFunc(func(ctx context.Context) error { return nil }),
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "graph: unreachable") {
		t.Fatalf("expected failing probe named in body, got %s", rec.Body.String())
	}
}
