// Package backup snapshots workspace files and keeps a queryable ledger of
// prior states. Each snapshot is a pair of files under the workspace's
// backup area: the raw bytes plus a JSON sidecar record. The sidecar is the
// ledger entry; updating it (commit) rewrites the whole sidecar atomically,
// so a concurrent listing never observes a half-written record.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/safedit/host/internal/diff"
	apperrors "github.com/safedit/host/internal/errors"
	"github.com/safedit/host/internal/workspace"
)

// DirName is the snapshot area inside the workspace root.
const DirName = ".safedit_backups"

// Record is one ledger entry. Content is immutable once written; only the
// commit fields are ever updated.
type Record struct {
	// File is the workspace-relative path of the backed-up file.
	File string `json:"file"`

	// Timestamp identifies the record. Strictly increasing process-wide,
	// so two snapshots of one file in the same tick stay distinguishable.
	Timestamp int64 `json:"timestamp"`

	CreatedAt time.Time `json:"created_at"`

	Committed     bool       `json:"committed"`
	CommitMessage string     `json:"commit_message,omitempty"`
	CommittedAt   *time.Time `json:"committed_at,omitempty"`

	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// Store owns the snapshot area of one workspace guard's active root.
// Safe for concurrent use; ledger mutations are serialized.
type Store struct {
	guard *workspace.Guard
	mu    sync.Mutex
}

// NewStore creates a Store over the guard's active workspace.
func NewStore(g *workspace.Guard) *Store {
	return &Store{guard: g}
}

// lastTimestamp backs nextTimestamp across all stores in the process.
var lastTimestamp int64

// nextTimestamp returns a strictly increasing UnixNano-based id. When two
// snapshots land in the same tick the later one gets last+1.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

// dir returns the snapshot area path, creating it on first use.
func (s *Store) dir() (string, error) {
	info, err := s.guard.Info()
	if err != nil {
		return "", err
	}
	d := filepath.Join(info.Root, DirName)
	if err := os.MkdirAll(d, 0755); err != nil {
		return "", apperrors.WriteFailed(d, err)
	}
	return d, nil
}

// mangle flattens a workspace-relative path into a single file name segment.
// Uniqueness of snapshot names comes from the timestamp, not from mangling.
func mangle(rel string) string {
	return strings.ReplaceAll(rel, "/", "__")
}

// snapPath returns the snapshot file path for a record.
func snapPath(dir, rel string, timestamp int64) string {
	return filepath.Join(dir, fmt.Sprintf("%s__%d.snap", mangle(rel), timestamp))
}

// Create snapshots the current bytes of rp. The file must exist; a missing
// file is a not-found error, not an empty snapshot.
func (s *Store) Create(rp workspace.ResolvedPath) (*Record, error) {
	content, err := os.ReadFile(rp.Abs())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.FileNotFound(rp.Rel())
		}
		return nil, apperrors.ReadFailed(rp.Rel(), err)
	}

	dir, err := s.dir()
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(content)
	rec := &Record{
		File:      rp.Rel(),
		Timestamp: nextTimestamp(),
		CreatedAt: time.Now().UTC(),
		SizeBytes: int64(len(content)),
		SHA256:    hex.EncodeToString(sum[:]),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapPath(dir, rec.File, rec.Timestamp)
	if err := AtomicWriteFile(snap, content, 0644); err != nil {
		return nil, apperrors.WriteFailed(snap, err)
	}
	if err := s.writeSidecar(snap, rec); err != nil {
		os.Remove(snap)
		return nil, err
	}
	return rec, nil
}

// writeSidecar persists a record next to its snapshot, atomically.
func (s *Store) writeSidecar(snap string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return apperrors.Internal("failed to encode backup record", err)
	}
	if err := AtomicWriteFile(snap+".json", data, 0644); err != nil {
		return apperrors.WriteFailed(snap+".json", err)
	}
	return nil
}

// List returns the ledger for one workspace-relative path, or for every
// backed-up file when rel is empty. Ordered by timestamp ascending.
func (s *Store) List(rel string) ([]Record, error) {
	dir, err := s.dir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.ReadFailed(dir, err)
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue // sidecar vanished between listing and read
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue // half-written sidecars cannot occur, but stay tolerant
		}
		if rel != "" && rec.File != rel {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].File != records[j].File {
			return records[i].File < records[j].File
		}
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}

// find selects the record for rel with the given timestamp, or the latest
// when timestamp is zero.
func (s *Store) find(rel string, timestamp int64) (*Record, error) {
	records, err := s.List(rel)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NoBackups(rel)
	}
	if timestamp == 0 {
		return &records[len(records)-1], nil
	}
	for i := range records {
		if records[i].Timestamp == timestamp {
			return &records[i], nil
		}
	}
	return nil, apperrors.UnknownTimestamp(rel, timestamp)
}

// snapshotBytes loads the raw bytes of a record's snapshot.
func (s *Store) snapshotBytes(rec *Record) ([]byte, error) {
	dir, err := s.dir()
	if err != nil {
		return nil, err
	}
	snap := snapPath(dir, rec.File, rec.Timestamp)
	content, err := os.ReadFile(snap)
	if err != nil {
		return nil, apperrors.ReadFailed(snap, err)
	}
	return content, nil
}

// Restore overwrites the live file with a snapshot's bytes. Timestamp zero
// selects the latest record. The restore write itself is atomic; an
// interrupted restore leaves the live file as it was.
func (s *Store) Restore(rp workspace.ResolvedPath, timestamp int64) (*Record, error) {
	rec, err := s.find(rp.Rel(), timestamp)
	if err != nil {
		return nil, err
	}
	content, err := s.snapshotBytes(rec)
	if err != nil {
		return nil, err
	}

	perm := os.FileMode(0644)
	if st, err := os.Stat(rp.Abs()); err == nil {
		perm = st.Mode()
	}
	if err := AtomicWriteFile(rp.Abs(), content, perm); err != nil {
		return nil, apperrors.WriteFailed(rp.Rel(), err)
	}
	return rec, nil
}

// Commit marks the latest record for rp as committed with a message.
func (s *Store) Commit(rp workspace.ResolvedPath, message string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.find(rp.Rel(), 0)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.Committed = true
	rec.CommitMessage = message
	rec.CommittedAt = &now

	dir, err := s.dir()
	if err != nil {
		return nil, err
	}
	if err := s.writeSidecar(snapPath(dir, rec.File, rec.Timestamp), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Compare returns a unified diff from the selected snapshot to the live
// file. Timestamp zero selects the latest. A missing live file diffs
// against empty content so a backup of a since-deleted file still compares.
func (s *Store) Compare(rp workspace.ResolvedPath, timestamp int64) (string, error) {
	rec, err := s.find(rp.Rel(), timestamp)
	if err != nil {
		return "", err
	}
	snapshot, err := s.snapshotBytes(rec)
	if err != nil {
		return "", err
	}

	live, err := os.ReadFile(rp.Abs())
	if err != nil && !os.IsNotExist(err) {
		return "", apperrors.ReadFailed(rp.Rel(), err)
	}

	return diff.Generate(string(snapshot), string(live), rp.Rel()), nil
}

// Prune removes the oldest records for rp beyond keep. Retention is always
// caller-driven; nothing in the store deletes records on its own.
func (s *Store) Prune(rp workspace.ResolvedPath, keep int) (removed int, err error) {
	if keep < 0 {
		return 0, apperrors.InvalidField(fmt.Sprintf("keep must not be negative, got %d", keep))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.List(rp.Rel())
	if err != nil {
		return 0, err
	}
	if len(records) <= keep {
		return 0, nil
	}

	dir, err := s.dir()
	if err != nil {
		return 0, err
	}
	for _, rec := range records[:len(records)-keep] {
		snap := snapPath(dir, rec.File, rec.Timestamp)
		if err := os.Remove(snap + ".json"); err != nil && !os.IsNotExist(err) {
			return removed, apperrors.WriteFailed(snap+".json", err)
		}
		if err := os.Remove(snap); err != nil && !os.IsNotExist(err) {
			return removed, apperrors.WriteFailed(snap, err)
		}
		removed++
	}
	return removed, nil
}
