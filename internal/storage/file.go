package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"heartbeat/internal/task"
	logx "heartbeat/pkg/logx"
)

// fileStore keeps one JSON document per run.
//
// File names are <stamp>_<seq>_<task>.json where stamp is the UTC start time
// with ':' and '.' replaced by '-' (sortable as text) and seq is a four-digit
// counter that orders runs sharing a start millisecond by insertion, across
// all tasks.
//
// Each document is written to a temp file, fsynced, then hard-linked to its
// final name. A seq slot is taken by O_EXCL-creating .claim-<stamp>_<seq>
// and checking that no document already uses it; the claim is removed once
// the link exists, so slots are allocated across processes without a lock.
type fileStore struct {
	dir string
	log logx.Logger
	now func() time.Time

	mu     sync.Mutex
	closed bool
}

const (
	stampLayout = task.TimestampLayout
	stampLen    = len("2006-01-02T15-04-05-000Z")
	seqLen      = 4
	maxSeq      = 9999
	claimPrefix = ".claim-"
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	return &fileStore{dir: dir, log: log, now: time.Now}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fileStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fileStore) Append(ctx context.Context, e task.HistoryEntry) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	if err := validateEntry(e); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("history dir: %w", err)
	}

	e = utcEntry(e)
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	stamp := encodeStamp(e.StartedAt)
	start, err := s.nextSeq(stamp)
	if err != nil {
		return err
	}
	for seq := start; seq <= maxSeq; seq++ {
		ok, err := s.linkAt(tmpPath, stamp, seq, e.TaskName)
		if err != nil {
			return err
		}
		if ok {
			return syncDir(s.dir)
		}
	}
	return fmt.Errorf("history: too many entries at %s", stamp)
}

// nextSeq is one past the highest seq any task uses for stamp.
func (s *fileStore) nextSeq(stamp string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, stamp+"_*.json"))
	if err != nil {
		return 0, err
	}
	next := 0
	for _, m := range matches {
		if r, ok := parseFileName(filepath.Base(m)); ok && r.seq >= next {
			next = r.seq + 1
		}
	}
	return next, nil
}

// linkAt links the document into slot (stamp, seq). It reports false when
// the slot is claimed or already used by any task.
func (s *fileStore) linkAt(tmpPath, stamp string, seq int, taskName string) (bool, error) {
	slot := fmt.Sprintf("%s_%0*d", stamp, seqLen, seq)
	claim := filepath.Join(s.dir, claimPrefix+slot)
	f, err := os.OpenFile(claim, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = f.Close()
	defer os.Remove(claim)

	used, err := filepath.Glob(filepath.Join(s.dir, slot+"_*.json"))
	if err != nil {
		return false, err
	}
	if len(used) > 0 {
		return false, nil
	}
	err = os.Link(tmpPath, filepath.Join(s.dir, slot+"_"+taskName+".json"))
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *fileStore) Query(ctx context.Context, f Filter) ([]task.HistoryEntry, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	recs, err := s.list()
	if err != nil {
		return nil, err
	}

	out := make([]task.HistoryEntry, 0, len(recs))
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Task != "" && r.task != f.Task {
			continue
		}
		e, err := readEntry(filepath.Join(s.dir, r.name))
		if err != nil {
			s.log.Debug("history.skip_corrupt", logx.String("file", r.name), logx.Err(err))
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *fileStore) LastRuns(ctx context.Context) (map[string]task.HistoryEntry, error) {
	all, err := s.Query(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	return lastRunsFrom(all), nil
}

// Evict ages entries by the start time encoded in their file name, so
// corrupt documents are aged out like any other.
func (s *fileStore) Evict(ctx context.Context, olderThan time.Duration) (int, error) {
	if s.isClosed() {
		return 0, ErrStoreClosed
	}
	if olderThan <= 0 {
		return 0, nil
	}
	recs, err := s.list()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-olderThan)

	removed := 0
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !r.started.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, r.name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("history.evict_failed", logx.String("file", r.name), logx.Err(err))
			continue
		}
		removed++
	}
	s.sweepClaims(cutoff)
	return removed, nil
}

// sweepClaims removes seq claims left behind by a crashed writer.
func (s *fileStore) sweepClaims(cutoff time.Time) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, de := range ents {
		name := de.Name()
		if !strings.HasPrefix(name, claimPrefix) || len(name) < len(claimPrefix)+stampLen {
			continue
		}
		started, ok := decodeStamp(name[len(claimPrefix) : len(claimPrefix)+stampLen])
		if ok && started.Before(cutoff) {
			_ = os.Remove(filepath.Join(s.dir, name))
		}
	}
}

type fileRecord struct {
	name    string
	stamp   string
	seq     int
	task    string
	started time.Time
}

// list returns history file records newest-first, ties in insertion order.
// A missing or unreadable
// directory is an empty history.
func (s *fileStore) list() ([]fileRecord, error) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("history.unreadable", logx.String("dir", s.dir), logx.Err(err))
		}
		return nil, nil
	}
	recs := make([]fileRecord, 0, len(ents))
	for _, de := range ents {
		if de.IsDir() {
			continue
		}
		r, ok := parseFileName(de.Name())
		if !ok {
			continue
		}
		recs = append(recs, r)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].stamp != recs[j].stamp {
			return recs[i].stamp > recs[j].stamp
		}
		if recs[i].seq != recs[j].seq {
			return recs[i].seq < recs[j].seq
		}
		return recs[i].name < recs[j].name
	})
	return recs, nil
}

func parseFileName(name string) (fileRecord, bool) {
	if !strings.HasSuffix(name, ".json") || len(name) < stampLen+seqLen+len("__x.json") {
		return fileRecord{}, false
	}
	stamp := name[:stampLen]
	started, ok := decodeStamp(stamp)
	if !ok {
		return fileRecord{}, false
	}
	rest := name[stampLen:]
	if rest[0] != '_' || rest[1+seqLen] != '_' {
		return fileRecord{}, false
	}
	seq, err := strconv.Atoi(rest[1 : 1+seqLen])
	if err != nil {
		return fileRecord{}, false
	}
	taskName := strings.TrimSuffix(rest[2+seqLen:], ".json")
	if taskName == "" {
		return fileRecord{}, false
	}
	return fileRecord{name: name, stamp: stamp, seq: seq, task: taskName, started: started}, true
}

func encodeStamp(t time.Time) string {
	s := t.UTC().Format(stampLayout)
	return strings.NewReplacer(":", "-", ".", "-").Replace(s)
}

// decodeStamp reverses encodeStamp: 2006-01-02T15-04-05-000Z.
func decodeStamp(s string) (time.Time, bool) {
	if len(s) != stampLen || s[10] != 'T' || s[len(s)-1] != 'Z' {
		return time.Time{}, false
	}
	b := []byte(s)
	b[13], b[16], b[19] = ':', ':', '.'
	t, err := time.Parse(stampLayout, string(b))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func readEntry(path string) (task.HistoryEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return task.HistoryEntry{}, err
	}
	var e task.HistoryEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return task.HistoryEntry{}, err
	}
	if e.TaskName == "" || e.StartedAt.IsZero() {
		return task.HistoryEntry{}, ErrInvalidEntry
	}
	return e, nil
}

// syncDir makes a completed link durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Not every platform can fsync a directory.
	_ = d.Sync()
	return nil
}
