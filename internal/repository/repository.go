package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/domain"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/graph"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/pathrank"
)

const defaultMaxSnapshotEdges = 200_000

// ErrUserNotFound indicates a write referenced a user node that does not exist.
var ErrUserNotFound = errors.New("user not found")

// Repository encapsulates graph persistence operations. It is the production
// pathrank.GraphStore and, with the graph usage backend, the pathrank.UsageRecorder.
type Repository struct {
	client           graph.Client
	maxSnapshotEdges int
	nowFn            func() time.Time
}

// Option customises a Repository.
type Option func(*Repository)

// WithMaxSnapshotEdges caps how many edges a single snapshot may load.
func WithMaxSnapshotEdges(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.maxSnapshotEdges = n
		}
	}
}

// WithClock overrides the time provider used for timestamps.
func WithClock(nowFn func() time.Time) Option {
	return func(r *Repository) {
		if nowFn != nil {
			r.nowFn = nowFn
		}
	}
}

// New instantiates a Repository backed by the supplied graph client.
func New(client graph.Client, opts ...Option) *Repository {
	r := &Repository{
		client:           client,
		maxSnapshotEdges: defaultMaxSnapshotEdges,
		nowFn:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpsertUser ensures a user node exists with the latest metadata.
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	if user.ID == "" {
		return errors.New("user id is required")
	}

	params := map[string]any{
		"userId": user.ID,
		"props":  userProperties(user),
	}

	if _, err := r.client.ExecuteWrite(ctx, upsertUserCypher, params); err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	return nil
}

// UpsertConnection creates or refreshes a CONNECTED_TO relationship, mirrored when the
// connection is mutual. Both users must already exist.
func (r *Repository) UpsertConnection(ctx context.Context, conn domain.Connection) error {
	if conn.SourceUserID == "" || conn.TargetUserID == "" {
		return errors.New("both source and target user IDs are required")
	}
	if conn.SourceUserID == conn.TargetUserID {
		return errors.New("a user cannot connect to itself")
	}
	if !(conn.Strength > 0) {
		return fmt.Errorf("connection strength must be positive, got %v", conn.Strength)
	}

	updatedAt := conn.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.nowFn()
	}
	kind := conn.Type
	if kind == "" {
		kind = domain.ConnectionDirect
	}

	params := map[string]any{
		"sourceId":     conn.SourceUserID,
		"targetId":     conn.TargetUserID,
		"strength":     conn.Strength,
		"type":         kind,
		"mutual":       conn.Mutual,
		"lastActiveAt": formatTimePtr(conn.LastActiveAt),
		"updatedAt":    formatTime(updatedAt),
	}

	res, err := r.client.ExecuteWrite(ctx, upsertConnectionCypher, params)
	if err != nil {
		return fmt.Errorf("upsert connection %s->%s: %w", conn.SourceUserID, conn.TargetUserID, err)
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("upsert connection %s->%s: %w", conn.SourceUserID, conn.TargetUserID, ErrUserNotFound)
	}
	return nil
}

// Snapshot reads the endpoints and the CONNECTED_TO neighbourhood of the source inside
// one read transaction and freezes them into a pathrank.Snapshot.
func (r *Repository) Snapshot(ctx context.Context, req pathrank.SnapshotRequest) (*pathrank.Snapshot, error) {
	statements := []graph.Statement{
		{
			Query:  snapshotEndpointsCypher,
			Params: map[string]any{"userIds": []string{req.Source, req.Target}},
		},
		{
			Query: snapshotEdgesQuery(req.MaxHops),
			Params: map[string]any{
				"sourceId": req.Source,
				"limit":    r.maxSnapshotEdges + 1,
			},
		},
	}

	results, err := r.client.ExecuteReadBatch(ctx, statements)
	if err != nil {
		return nil, fmt.Errorf("snapshot query: %w", err)
	}
	if len(results) != len(statements) {
		return nil, fmt.Errorf("snapshot query: expected %d results, got %d", len(statements), len(results))
	}

	b := pathrank.NewSnapshotBuilder()
	for _, record := range results[0].Records {
		id := toString(record["userId"])
		if id == "" {
			continue
		}
		b.AddNode(pathrank.Node{Key: id, Attributes: nodeAttributes(record["props"])})
	}
	// The edge query asks for one row past the cap so a capped read is distinguishable
	// from an exact fit.
	edges := results[1].Records
	if len(edges) > r.maxSnapshotEdges {
		edges = edges[:r.maxSnapshotEdges]
		b.MarkTruncated()
	}
	for _, record := range edges {
		edge := pathrank.Edge{
			From:     toString(record["fromId"]),
			To:       toString(record["toId"]),
			Strength: toFloat64(record["strength"]),
			Type:     pathrank.EdgeType(toString(record["type"])),
		}
		if ts := toTimePtr(record["lastActiveAt"]); ts != nil {
			edge.Recency = *ts
		}
		b.AddEdge(edge)
	}
	return b.Build(r.nowFn()), nil
}

// RecordSuccessfulQuery increments the query counter stored on the user node.
func (r *Repository) RecordSuccessfulQuery(ctx context.Context, userKey string) error {
	params := map[string]any{
		"userId": userKey,
		"at":     formatTime(r.nowFn()),
	}
	res, err := r.client.ExecuteWrite(ctx, recordQueryCypher, params)
	if err != nil {
		return fmt.Errorf("record query for %s: %w", userKey, err)
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("record query for %s: %w", userKey, ErrUserNotFound)
	}
	return nil
}

// QueryCount returns how many successful path queries the user has made.
func (r *Repository) QueryCount(ctx context.Context, userKey string) (int64, error) {
	res, err := r.client.ExecuteRead(ctx, queryCountCypher, map[string]any{"userId": userKey})
	if err != nil {
		return 0, fmt.Errorf("query count for %s: %w", userKey, err)
	}
	if len(res.Records) == 0 {
		return 0, fmt.Errorf("query count for %s: %w", userKey, ErrUserNotFound)
	}
	return toInt64(res.Records[0]["count"]), nil
}

// VerifyConnectivity probes the underlying graph database.
func (r *Repository) VerifyConnectivity(ctx context.Context) error {
	return r.client.VerifyConnectivity(ctx)
}

func userProperties(u domain.User) map[string]any {
	props := map[string]any{
		"name":      u.Name,
		"headline":  u.Headline,
		"updatedAt": formatTime(u.UpdatedAt),
	}
	if !u.CreatedAt.IsZero() {
		props["createdAt"] = formatTime(u.CreatedAt)
	}
	keys := make([]string, 0, len(u.Attributes))
	for k := range u.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		props["attr_"+k] = u.Attributes[k]
	}
	return props
}

// nodeAttributes turns a node property map into snapshot attributes, dropping the key.
func nodeAttributes(val any) map[string]any {
	props, ok := val.(map[string]any)
	if !ok || len(props) == 0 {
		return nil
	}
	attrs := make(map[string]any, len(props))
	for k, v := range props {
		if k == "userId" {
			continue
		}
		attrs[k] = v
	}
	return attrs
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return formatTime(*t)
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func toTimePtr(val any) *time.Time {
	switch v := val.(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return &v
	case string:
		if v == "" {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &parsed
		}
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			return &parsed
		}
	}
	return nil
}
