// Package store is the durable shadow-state authority, backed by redis.
//
// Pane and tab records live in hashes keyed <namespace>:pane:<name> and
// <namespace>:tab:<name>; user metadata fields carry a "meta:" prefix so
// they cannot collide with scalar record fields. Records are never deleted
// by any operation here — staleness is the only soft delete.
//
// A store that cannot be reached is fatal for the calling operation: every
// failure wraps ErrUnavailable and callers abort rather than fall back.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paneward/paneward/internal/model"
)

// ErrUnavailable marks a store round trip that failed. No further write can
// be trusted after it; callers abort the operation.
var ErrUnavailable = errors.New("store unavailable")

const metaPrefix = "meta:"

// Options configures a Store.
type Options struct {
	// URL is a redis connection URL, e.g. redis://127.0.0.1:6379/0.
	URL string
	// Namespace prefixes every key. Defaults to "paneward".
	Namespace string
	// Timeout bounds each store round trip. Defaults to 5s.
	Timeout time.Duration
	// CompressAt is the snapshot body size in bytes above which bodies are
	// gzip-compressed. Defaults to 4096.
	CompressAt int
	// Retention is how many snapshots to keep per session; older ones are
	// pruned first. Defaults to 20.
	Retention int
}

// Store holds the redis client and key schema.
type Store struct {
	rdb        *redis.Client
	ns         string
	timeout    time.Duration
	compressAt int
	retention  int
}

// New connects to redis. The connection is verified lazily; use Ping to
// fail fast.
func New(opts Options) (*Store, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	s := &Store{
		rdb:        redis.NewClient(redisOpts),
		ns:         opts.Namespace,
		timeout:    opts.Timeout,
		compressAt: opts.CompressAt,
		retention:  opts.Retention,
	}
	if s.ns == "" {
		s.ns = "paneward"
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.compressAt <= 0 {
		s.compressAt = 4096
	}
	if s.retention <= 0 {
		s.retention = 20
	}
	return s, nil
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) paneKey(name string) string { return s.ns + ":pane:" + name }
func (s *Store) tabKey(name string) string  { return s.ns + ":tab:" + name }

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// GetPane returns the named record, or nil when untracked.
func (s *Store) GetPane(ctx context.Context, name string) (*model.PaneRecord, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fields, err := s.rdb.HGetAll(ctx, s.paneKey(name)).Result()
	if err != nil {
		return nil, unavailable("get pane", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec := model.PaneRecord{Name: name, Meta: map[string]string{}}
	for k, v := range fields {
		switch k {
		case "session":
			rec.Session = v
		case "tab":
			rec.Tab = v
		case "position":
			rec.Position, _ = strconv.Atoi(v)
		case "created_at":
			rec.CreatedAt = parseTime(v)
		case "last_seen":
			rec.LastSeen = parseTime(v)
		case "last_accessed":
			rec.LastAccessed = parseTime(v)
		case "stale":
			rec.Stale = v == "true"
		default:
			if len(k) > len(metaPrefix) && k[:len(metaPrefix)] == metaPrefix {
				rec.Meta[k[len(metaPrefix):]] = v
			}
		}
	}
	if len(rec.Meta) == 0 {
		rec.Meta = nil
	}
	return &rec, nil
}

// PutPane writes the whole record, last write wins. Idempotent.
func (s *Store) PutPane(ctx context.Context, rec model.PaneRecord) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fields := map[string]any{
		"session":       rec.Session,
		"tab":           rec.Tab,
		"position":      strconv.Itoa(rec.Position),
		"created_at":    formatTime(rec.CreatedAt),
		"last_seen":     formatTime(rec.LastSeen),
		"last_accessed": formatTime(rec.LastAccessed),
		"stale":         strconv.FormatBool(rec.Stale),
	}
	for k, v := range rec.Meta {
		fields[metaPrefix+k] = v
	}
	if err := s.rdb.HSet(ctx, s.paneKey(rec.Name), fields).Err(); err != nil {
		return unavailable("put pane", err)
	}
	return nil
}

// TouchPane updates access/seen timestamps, clears staleness, and merges
// metadata. This is the explicit read-modify-write helper for navigation.
func (s *Store) TouchPane(ctx context.Context, name string, meta map[string]string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	now := formatTime(time.Now().UTC())
	fields := map[string]any{
		"last_accessed": now,
		"last_seen":     now,
		"stale":         "false",
	}
	for k, v := range meta {
		fields[metaPrefix+k] = v
	}
	if err := s.rdb.HSet(ctx, s.paneKey(name), fields).Err(); err != nil {
		return unavailable("touch pane", err)
	}
	return nil
}

// MarkSeen refreshes last-seen and clears staleness.
func (s *Store) MarkSeen(ctx context.Context, name string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fields := map[string]any{
		"last_seen": formatTime(time.Now().UTC()),
		"stale":     "false",
	}
	if err := s.rdb.HSet(ctx, s.paneKey(name), fields).Err(); err != nil {
		return unavailable("mark seen", err)
	}
	return nil
}

// MarkStale soft-deletes: the record stays, flagged as no longer live.
func (s *Store) MarkStale(ctx context.Context, name string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.rdb.HSet(ctx, s.paneKey(name), "stale", "true").Err(); err != nil {
		return unavailable("mark stale", err)
	}
	return nil
}

// ListPaneNames scans the pane keyspace.
func (s *Store) ListPaneNames(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	prefix := s.paneKey("")
	var names []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("list panes", err)
	}
	return names, nil
}

// ListPanes returns all records, optionally filtered to one session.
func (s *Store) ListPanes(ctx context.Context, session string) ([]model.PaneRecord, error) {
	names, err := s.ListPaneNames(ctx)
	if err != nil {
		return nil, err
	}
	var recs []model.PaneRecord
	for _, name := range names {
		rec, err := s.GetPane(ctx, name)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if session != "" && rec.Session != session {
			continue
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

// GetTab returns the named tab record, or nil when untracked.
func (s *Store) GetTab(ctx context.Context, name string) (*model.TabRecord, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fields, err := s.rdb.HGetAll(ctx, s.tabKey(name)).Result()
	if err != nil {
		return nil, unavailable("get tab", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec := model.TabRecord{Name: name, Meta: map[string]string{}}
	for k, v := range fields {
		switch k {
		case "session":
			rec.Session = v
		case "correlation_id":
			rec.CorrelationID = v
		case "created_at":
			rec.CreatedAt = parseTime(v)
		case "last_accessed":
			rec.LastAccessed = parseTime(v)
		default:
			if len(k) > len(metaPrefix) && k[:len(metaPrefix)] == metaPrefix {
				rec.Meta[k[len(metaPrefix):]] = v
			}
		}
	}
	if len(rec.Meta) == 0 {
		rec.Meta = nil
	}
	return &rec, nil
}

// PutTab writes the whole tab record, last write wins.
func (s *Store) PutTab(ctx context.Context, rec model.TabRecord) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fields := map[string]any{
		"session":       rec.Session,
		"created_at":    formatTime(rec.CreatedAt),
		"last_accessed": formatTime(rec.LastAccessed),
	}
	if rec.CorrelationID != "" {
		fields["correlation_id"] = rec.CorrelationID
	}
	for k, v := range rec.Meta {
		fields[metaPrefix+k] = v
	}
	if err := s.rdb.HSet(ctx, s.tabKey(rec.Name), fields).Err(); err != nil {
		return unavailable("put tab", err)
	}
	return nil
}

// TouchTab refreshes a tab's last-accessed timestamp.
func (s *Store) TouchTab(ctx context.Context, name string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.rdb.HSet(ctx, s.tabKey(name), "last_accessed", formatTime(time.Now().UTC())).Err()
	if err != nil {
		return unavailable("touch tab", err)
	}
	return nil
}

// ListTabs returns all tab records, optionally filtered to one session.
func (s *Store) ListTabs(ctx context.Context, session string) ([]model.TabRecord, error) {
	ctx2, cancel := s.opCtx(ctx)
	defer cancel()

	prefix := s.tabKey("")
	var names []string
	iter := s.rdb.Scan(ctx2, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx2) {
		names = append(names, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("list tabs", err)
	}

	var recs []model.TabRecord
	for _, name := range names {
		rec, err := s.GetTab(ctx, name)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if session != "" && rec.Session != session {
			continue
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
