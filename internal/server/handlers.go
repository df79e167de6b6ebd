package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/pathrank"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/repository"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/service"
)

// retryAfterSeconds is advertised to clients when a ranking could not be computed in time.
const retryAfterSeconds = 2

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger        *slog.Logger
	relationships *service.RelationshipService
	connections   *service.ConnectionService
}

// NewAPIHandlers constructs an APIHandlers instance. Either service may be nil, in which
// case its routes answer 501.
func NewAPIHandlers(logger *slog.Logger, relationships *service.RelationshipService, connections *service.ConnectionService) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandlers{
		logger:        logger,
		relationships: relationships,
		connections:   connections,
	}
}

func (h *APIHandlers) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if h.relationships == nil {
		writeError(w, http.StatusNotImplemented, "ingestion is disabled")
		return
	}

	var payload userRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	input, err := payload.toServiceInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.relationships.UpsertUser(r.Context(), input)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to upsert user", "error", err, "userId", input.ID)
		writeError(w, http.StatusInternalServerError, "failed to persist user")
		return
	}

	respondJSON(w, http.StatusCreated, statusResponse{
		Status:    "ok",
		ID:        summary.ID,
		UpdatedAt: formatTime(summary.UpdatedAt),
	})
}

func (h *APIHandlers) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if h.relationships == nil {
		writeError(w, http.StatusNotImplemented, "ingestion is disabled")
		return
	}

	var payload connectionRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	input, err := payload.toServiceInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.relationships.UpsertConnection(r.Context(), input); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			h.logger.Error("failed to upsert connection", "error", err,
				"sourceUserId", input.SourceUserID, "targetUserId", input.TargetUserID)
			writeError(w, http.StatusInternalServerError, "failed to persist connection")
		}
		return
	}

	respondJSON(w, http.StatusCreated, statusResponse{
		Status: "ok",
		ID:     input.SourceUserID + "->" + input.TargetUserID,
	})
}

func (h *APIHandlers) handleConnectionPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if h.connections == nil {
		writeError(w, http.StatusNotImplemented, "path ranking is disabled")
		return
	}

	query := r.URL.Query()
	q := service.PathQuery{
		SourceUserID: query.Get("sourceUserId"),
		TargetUserID: query.Get("targetUserId"),
	}
	if raw := strings.TrimSpace(query.Get("pathIndex")); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pathIndex")
			return
		}
		q.PathIndex = &idx
	}

	resp, err := h.connections.FindPath(r.Context(), q)
	if err != nil {
		h.writePathError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPathResponse(resp))
}

func (h *APIHandlers) writePathError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pathrank.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pathrank.ErrNodeNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, context.Canceled):
		// The client went away; nobody is left to read a response.
		h.logger.Debug("path request canceled", "error", err, "request_id", RequestIDFrom(r.Context()))
	case pathrank.Retryable(err):
		h.logger.Warn("path ranking unavailable", "error", err, "request_id", RequestIDFrom(r.Context()))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusServiceUnavailable, "path ranking temporarily unavailable")
	default:
		h.logger.Error("path ranking failed", "error", err, "request_id", RequestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "failed to rank paths")
	}
}

type userRequest struct {
	UserID     string            `json:"userId"`
	Name       string            `json:"name"`
	Headline   string            `json:"headline"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  string            `json:"createdAt"`
	UpdatedAt  string            `json:"updatedAt"`
}

type connectionRequest struct {
	SourceUserID string  `json:"sourceUserId"`
	TargetUserID string  `json:"targetUserId"`
	Strength     float64 `json:"strength"`
	Type         string  `json:"type"`
	Mutual       *bool   `json:"mutual"`
	LastActiveAt string  `json:"lastActiveAt"`
}

type statusResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type pathResponse struct {
	SourceUserID string       `json:"sourceUserId"`
	TargetUserID string       `json:"targetUserId"`
	PathIndex    int          `json:"pathIndex"`
	Status       string       `json:"status"`
	TotalPaths   int          `json:"totalPaths"`
	RankingID    string       `json:"rankingId"`
	Cached       bool         `json:"cached"`
	Truncated    bool         `json:"truncated"`
	ComputedAt   string       `json:"computedAt,omitempty"`
	Path         *pathPayload `json:"path"`
}

type pathPayload struct {
	Nodes    []string      `json:"nodes"`
	Edges    []edgePayload `json:"edges"`
	Hops     int           `json:"hops"`
	Score    float64       `json:"score"`
	Strength float64       `json:"strength"`
}

type edgePayload struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	Strength     float64 `json:"strength"`
	Type         string  `json:"type"`
	LastActiveAt string  `json:"lastActiveAt,omitempty"`
}

func toPathResponse(resp pathrank.Response) pathResponse {
	out := pathResponse{
		SourceUserID: resp.Key.Source,
		TargetUserID: resp.Key.Target,
		PathIndex:    resp.Index,
		Status:       string(resp.Status),
		TotalPaths:   resp.Total,
		RankingID:    strconv.FormatUint(resp.Fingerprint, 16),
		Cached:       resp.CacheHit,
		Truncated:    resp.Truncated,
		ComputedAt:   formatTime(resp.ComputedAt),
	}
	if resp.Path == nil {
		return out
	}

	p := resp.Path
	edges := make([]edgePayload, 0, len(p.Edges))
	for _, e := range p.Edges {
		edges = append(edges, edgePayload{
			From:         e.From,
			To:           e.To,
			Strength:     e.Strength,
			Type:         string(e.Type),
			LastActiveAt: formatTime(e.Recency),
		})
	}
	out.Path = &pathPayload{
		Nodes:    append([]string(nil), p.Nodes...),
		Edges:    edges,
		Hops:     p.Hops,
		Score:    p.Score,
		Strength: p.Strength,
	}
	return out
}

func (req userRequest) toServiceInput() (service.UserInput, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return service.UserInput{}, errors.New("userId is required")
	}
	createdAt, err := parseTimestamp("createdAt", req.CreatedAt)
	if err != nil {
		return service.UserInput{}, err
	}
	updatedAt, err := parseTimestamp("updatedAt", req.UpdatedAt)
	if err != nil {
		return service.UserInput{}, err
	}
	return service.UserInput{
		ID:         req.UserID,
		Name:       req.Name,
		Headline:   req.Headline,
		Attributes: req.Attributes,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func (req connectionRequest) toServiceInput() (service.ConnectionInput, error) {
	lastActive, err := parseTimestamp("lastActiveAt", req.LastActiveAt)
	if err != nil {
		return service.ConnectionInput{}, err
	}
	return service.ConnectionInput{
		SourceUserID: req.SourceUserID,
		TargetUserID: req.TargetUserID,
		Strength:     req.Strength,
		Type:         req.Type,
		Mutual:       req.Mutual,
		LastActiveAt: lastActive,
	}, nil
}

func parseTimestamp(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, errors.New("invalid " + field + ": expected RFC3339")
	}
	return &ts, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
