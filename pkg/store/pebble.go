// Package store is the durable per-device key-value store backing the
// local transport and the read tracker. One Pebble database holds every
// room's full message log plus read-state watermarks; all views of the
// same device share one Store instance.
package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// Change describes an external modification of a room's log key. Watchers
// use it as the fallback signal when the broadcast channel is unavailable.
type Change struct {
	Room string
}

// Watcher receives store change notifications on C until Close.
type Watcher struct {
	C chan Change

	s      *Store
	closed bool
}

// Store wraps a Pebble database with the room-log and read-state schema.
//
// Key layout:
//
//	room:<room>:log      full ordered JSON message list for the room
//	read:<room>:<role>   epoch-millisecond last-read watermark
type Store struct {
	db   *pebble.DB
	path string

	mu       sync.Mutex
	roomLk   map[string]*sync.Mutex
	watchers map[*Watcher]struct{}
}

// Open opens (or creates) the store at path. The parent directory is
// created if missing; symlinked paths are rejected.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty store path")
	}
	if err := prepareDir(path); err != nil {
		return nil, err
	}
	logger.Info("opening_store", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("store_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("store_opened", "path", path)
	return &Store{
		db:       db,
		path:     path,
		roomLk:   make(map[string]*sync.Mutex),
		watchers: make(map[*Watcher]struct{}),
	}, nil
}

func prepareDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create parent for %s: %w", path, err)
	}
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("store path is a symlink: %s", path)
		}
		if !fi.IsDir() {
			return fmt.Errorf("store path exists and is not a directory: %s", path)
		}
	}
	return nil
}

// Close closes the database and all watchers.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	for w := range s.watchers {
		if !w.closed {
			w.closed = true
			close(w.C)
		}
	}
	s.watchers = make(map[*Watcher]struct{})
	s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("store_closed", "path", s.path)
	return nil
}

// Ready reports whether the store is open.
func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

func roomLogKey(room string) []byte {
	return []byte("room:" + models.NormalizeRoom(room) + ":log")
}

func readStateKey(room string, role models.Role) []byte {
	return []byte("read:" + models.NormalizeRoom(room) + ":" + string(role))
}

// RoomLog returns the full ordered message list persisted for room. A
// room with no entry yields an empty list.
func (s *Store) RoomLog(room string) ([]models.Message, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	val, closer, err := s.db.Get(roomLogKey(room))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read room log %q: %w", room, err)
	}
	defer closer.Close()
	var msgs []models.Message
	if err := json.Unmarshal(val, &msgs); err != nil {
		return nil, fmt.Errorf("corrupt room log %q: %w", room, err)
	}
	return msgs, nil
}

// SetRoomLog overwrites the room's persisted list wholesale and notifies
// watchers. The store holds the full history per room, not a delta log.
func (s *Store) SetRoomLog(room string, msgs []models.Message) error {
	if !s.Ready() {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal room log %q: %w", room, err)
	}
	if err := s.db.Set(roomLogKey(room), data, pebble.Sync); err != nil {
		logger.Error("room_log_write_failed", "room", room, "error", err)
		return err
	}
	logger.Debug("room_log_written", "room", room, "count", len(msgs))
	s.notify(models.NormalizeRoom(room))
	return nil
}

// AppendRoomLog appends msg to the room's persisted list via a
// read-modify-write of the whole list. Same-process writers to one room
// are serialized by a per-room mutex; the last-writer-wins contract at
// the storage level is otherwise unchanged.
func (s *Store) AppendRoomLog(room string, msg models.Message) error {
	lk := s.roomLock(models.NormalizeRoom(room))
	lk.Lock()
	defer lk.Unlock()
	msgs, err := s.RoomLog(room)
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)
	return s.SetRoomLog(room, msgs)
}

func (s *Store) roomLock(room string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.roomLk[room]
	if !ok {
		lk = &sync.Mutex{}
		s.roomLk[room] = lk
	}
	return lk
}

// SetLastRead persists the epoch-millisecond read watermark for (room, role).
func (s *Store) SetLastRead(room string, role models.Role, epochMillis int64) error {
	if !s.Ready() {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	val := strconv.FormatInt(epochMillis, 10)
	if err := s.db.Set(readStateKey(room, role), []byte(val), pebble.Sync); err != nil {
		logger.Error("read_state_write_failed", "room", room, "role", role, "error", err)
		return err
	}
	return nil
}

// LastRead returns the stored watermark for (room, role). The second
// return value is false when no watermark was ever recorded.
func (s *Store) LastRead(room string, role models.Role) (int64, bool, error) {
	if !s.Ready() {
		return 0, false, fmt.Errorf("store not opened; call store.Open first")
	}
	val, closer, err := s.db.Get(readStateKey(room, role))
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read watermark %q/%s: %w", room, role, err)
	}
	defer closer.Close()
	ms, err := strconv.ParseInt(string(val), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt watermark %q/%s: %w", room, role, err)
	}
	return ms, true, nil
}

// Watch registers a change watcher. Notifications are dropped rather than
// blocking a slow receiver; the scheduled reconciler covers missed ones.
func (s *Store) Watch(buffer int) *Watcher {
	if buffer <= 0 {
		buffer = 16
	}
	w := &Watcher{C: make(chan Change, buffer), s: s}
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()
	return w
}

// Close detaches the watcher and closes its channel.
func (w *Watcher) Close() {
	if w == nil || w.s == nil {
		return
	}
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.closed {
		return
	}
	delete(w.s.watchers, w)
	w.closed = true
	close(w.C)
}

func (s *Store) notify(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		select {
		case w.C <- Change{Room: room}:
		default:
			logger.Debug("store_watch_dropped", "room", room)
		}
	}
}

// DiskUsage returns the best-effort on-disk size of the store directory.
func (s *Store) DiskUsage() uint64 {
	if s == nil || s.path == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(s.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total
}
