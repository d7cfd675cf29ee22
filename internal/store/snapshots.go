package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"

	"github.com/paneward/paneward/internal/model"
)

// Snapshot persistence: a metadata hash at <ns>:snapshots:<session>:<name>,
// the serialized body at a sibling :body key (gzip above the configured
// threshold), a time-ordered index list of names per session, and a pointer
// to the latest snapshot per session.

func (s *Store) snapKey(session, name string) string {
	return s.ns + ":snapshots:" + session + ":" + name
}

func (s *Store) snapBodyKey(session, name string) string {
	return s.snapKey(session, name) + ":body"
}

func (s *Store) snapIndexKey(session string) string {
	return s.ns + ":snapshots:" + session + ":index"
}

func (s *Store) snapLatestKey(session string) string {
	return s.ns + ":snapshots:" + session + ":latest"
}

// snapshot names that would collide with the schema's own keys.
var reservedSnapshotNames = map[string]bool{"index": true, "latest": true, "": true}

// SnapshotInfo is snapshot metadata without the body.
type SnapshotInfo struct {
	Name        string    `json:"name"`
	ID          string    `json:"id"`
	Session     string    `json:"session"`
	CreatedAt   time.Time `json:"created_at"`
	ParentID    string    `json:"parent_id,omitempty"`
	Description string    `json:"description,omitempty"`
	TabCount    int       `json:"tab_count"`
	PaneCount   int       `json:"pane_count"`
	Compressed  bool      `json:"compressed,omitempty"`
	BodyBytes   int       `json:"body_bytes"`
}

// SaveSnapshot persists the snapshot, appends it to the session index,
// repoints latest, and prunes snapshots beyond the retention count.
func (s *Store) SaveSnapshot(ctx context.Context, snap *model.SessionSnapshot) error {
	if reservedSnapshotNames[snap.Name] {
		return fmt.Errorf("snapshot name %q is reserved", snap.Name)
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	compressed := false
	if len(body) > s.compressAt {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err == nil && zw.Close() == nil {
			body = buf.Bytes()
			compressed = true
		}
	}

	meta := map[string]any{
		"id":             snap.ID,
		"session":        snap.Session,
		"created_at":     formatTime(snap.CreatedAt),
		"schema_version": snap.SchemaVersion,
		"tab_count":      strconv.Itoa(len(snap.Tabs)),
		"pane_count":     strconv.Itoa(snap.PaneCount),
		"compressed":     strconv.FormatBool(compressed),
		"body_bytes":     strconv.Itoa(len(body)),
	}
	if snap.ParentID != "" {
		meta["parent_id"] = snap.ParentID
	}
	if snap.Description != "" {
		meta["description"] = snap.Description
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	pipe := s.rdb.TxPipeline()
	pipe.Del(opCtx, s.snapKey(snap.Session, snap.Name))
	pipe.HSet(opCtx, s.snapKey(snap.Session, snap.Name), meta)
	pipe.Set(opCtx, s.snapBodyKey(snap.Session, snap.Name), body, 0)
	// Re-snapshotting a name moves it to the tail, keeping the index
	// time-ordered by last write.
	pipe.LRem(opCtx, s.snapIndexKey(snap.Session), 0, snap.Name)
	pipe.RPush(opCtx, s.snapIndexKey(snap.Session), snap.Name)
	pipe.Set(opCtx, s.snapLatestKey(snap.Session), snap.Name, 0)
	if _, err := pipe.Exec(opCtx); err != nil {
		return unavailable("save snapshot", err)
	}

	return s.pruneSnapshots(ctx, snap.Session)
}

// pruneSnapshots removes the oldest snapshots beyond the retention count.
func (s *Store) pruneSnapshots(ctx context.Context, session string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.rdb.LLen(ctx, s.snapIndexKey(session)).Result()
	if err != nil {
		return unavailable("prune snapshots", err)
	}
	for n > int64(s.retention) {
		name, err := s.rdb.LPop(ctx, s.snapIndexKey(session)).Result()
		if err != nil {
			return unavailable("prune snapshots", err)
		}
		if err := s.rdb.Del(ctx, s.snapKey(session, name), s.snapBodyKey(session, name)).Err(); err != nil {
			return unavailable("prune snapshots", err)
		}
		n--
	}
	return nil
}

// GetSnapshot loads a snapshot body by name, or nil when absent.
func (s *Store) GetSnapshot(ctx context.Context, session, name string) (*model.SessionSnapshot, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	compressed, err := s.rdb.HGet(ctx, s.snapKey(session, name), "compressed").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get snapshot", err)
	}

	body, err := s.rdb.Get(ctx, s.snapBodyKey(session, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("snapshot %q has metadata but no body", name)
	}
	if err != nil {
		return nil, unavailable("get snapshot", err)
	}

	if compressed == "true" {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("decompressing snapshot %q: %w", name, err)
		}
		body, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompressing snapshot %q: %w", name, err)
		}
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %q: %w", name, err)
	}
	return &snap, nil
}

// GetSnapshotByID resolves a snapshot by its ID via the session index.
// Used to walk incremental parent chains.
func (s *Store) GetSnapshotByID(ctx context.Context, session, id string) (*model.SessionSnapshot, error) {
	infos, err := s.ListSnapshots(ctx, session)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.ID == id {
			return s.GetSnapshot(ctx, session, info.Name)
		}
	}
	return nil, nil
}

// ListSnapshots returns metadata for a session's snapshots in index
// (time) order.
func (s *Store) ListSnapshots(ctx context.Context, session string) ([]SnapshotInfo, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	names, err := s.rdb.LRange(opCtx, s.snapIndexKey(session), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list snapshots", err)
	}

	infos := make([]SnapshotInfo, 0, len(names))
	for _, name := range names {
		fields, err := s.rdb.HGetAll(opCtx, s.snapKey(session, name)).Result()
		if err != nil {
			return nil, unavailable("list snapshots", err)
		}
		if len(fields) == 0 {
			continue
		}
		info := SnapshotInfo{
			Name:        name,
			ID:          fields["id"],
			Session:     session,
			CreatedAt:   parseTime(fields["created_at"]),
			ParentID:    fields["parent_id"],
			Description: fields["description"],
			Compressed:  fields["compressed"] == "true",
		}
		info.TabCount, _ = strconv.Atoi(fields["tab_count"])
		info.PaneCount, _ = strconv.Atoi(fields["pane_count"])
		info.BodyBytes, _ = strconv.Atoi(fields["body_bytes"])
		infos = append(infos, info)
	}
	return infos, nil
}

// LatestSnapshotName returns the latest snapshot pointer, or "" when the
// session has none.
func (s *Store) LatestSnapshotName(ctx context.Context, session string) (string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	name, err := s.rdb.Get(ctx, s.snapLatestKey(session)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", unavailable("latest snapshot", err)
	}
	return name, nil
}

// DeleteSnapshot removes one snapshot: hash, body, index entry, and the
// latest pointer if it pointed here.
func (s *Store) DeleteSnapshot(ctx context.Context, session, name string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	removed, err := s.rdb.Del(ctx, s.snapKey(session, name), s.snapBodyKey(session, name)).Result()
	if err != nil {
		return false, unavailable("delete snapshot", err)
	}
	if err := s.rdb.LRem(ctx, s.snapIndexKey(session), 0, name).Err(); err != nil {
		return false, unavailable("delete snapshot", err)
	}

	latest, err := s.rdb.Get(ctx, s.snapLatestKey(session)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, unavailable("delete snapshot", err)
	}
	if latest == name {
		// Repoint latest at the newest remaining snapshot.
		prev, err := s.rdb.LRange(ctx, s.snapIndexKey(session), -1, -1).Result()
		if err != nil {
			return false, unavailable("delete snapshot", err)
		}
		if len(prev) > 0 {
			err = s.rdb.Set(ctx, s.snapLatestKey(session), prev[0], 0).Err()
		} else {
			err = s.rdb.Del(ctx, s.snapLatestKey(session)).Err()
		}
		if err != nil {
			return false, unavailable("delete snapshot", err)
		}
	}
	return removed > 0, nil
}
