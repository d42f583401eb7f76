package roomstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/park285/ttt-rooms/internal/domain"
	"github.com/park285/ttt-rooms/internal/obslog"
	"github.com/park285/ttt-rooms/internal/persist"
	"go.uber.org/zap"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrIDSpace      = errors.New("could not allocate a free room id")
	ErrClosed       = errors.New("room store closed")
)

const idAttempts = 32

type entry struct {
	mu   sync.Mutex
	room *domain.Room
	gone bool
}

// Store owns every active room. Lock order is mu -> entry.mu -> snapMu.
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*entry
	closed bool

	snapMu    sync.Mutex
	snap      persist.Snapshotter
	committed map[string]*domain.Room
	dirty     bool

	now  func() time.Time
	rand io.Reader
	log  *zap.Logger
}

type Option func(*Store)

// WithClock replaces time.Now; used by tests and the sweep.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// Open loads the snapshot and validates every room. Any read or validation failure is returned
// and the caller is expected to stop: running on unknown state is not safe.
func Open(ctx context.Context, snap persist.Snapshotter, opts ...Option) (*Store, error) {
	if snap == nil {
		return nil, fmt.Errorf("roomstore: snapshotter required")
	}
	s := &Store{
		rooms:     make(map[string]*entry),
		snap:      snap,
		committed: make(map[string]*domain.Room),
		now:       time.Now,
		rand:      rand.Reader,
	}
	for _, o := range opts {
		o(s)
	}
	loaded, err := snap.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for id, r := range loaded.Rooms {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if r.ID != id {
			return nil, fmt.Errorf("%w: key %q holds room %q", domain.ErrInvalidRoom, id, r.ID)
		}
		s.rooms[id] = &entry{room: r}
		s.committed[id] = r.Clone()
	}
	s.logger().Info("roomstore_open", zap.Int("rooms", len(s.rooms)))
	return s, nil
}

func (s *Store) logger() *zap.Logger {
	if s.log != nil {
		return s.log
	}
	return obslog.L()
}

// RequestRoom is the matchmaking entry point. A public request reserves the free slot of a public
// room with exactly one claimed slot; otherwise a new room is created with x reserved.
func (s *Store) RequestRoom(ctx context.Context, public bool) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}

	if public {
		for _, id := range s.sortedIDsLocked() {
			e := s.rooms[id]
			e.mu.Lock()
			if e.gone || !e.room.IsPublic || e.room.Claimed() != 1 {
				e.mu.Unlock()
				continue
			}
			next := e.room.Clone()
			for _, sym := range domain.Symbols {
				if _, claimed := next.Players[sym]; !claimed {
					next.Players[sym] = ""
					break
				}
			}
			next.LastActivity = s.now()
			e.room = next
			s.commit(ctx, next)
			e.mu.Unlock()
			s.logger().Info("room_match", zap.String("room_id", id))
			return id, false, nil
		}
	}

	id, err := s.generateRoomID()
	if err != nil {
		return "", false, err
	}
	r := domain.NewRoom(id, public, s.now())
	r.Players[domain.X] = ""
	s.rooms[id] = &entry{room: r}
	s.commit(ctx, r)
	s.logger().Info("room_create", zap.String("room_id", id), zap.Bool("public", public))
	return id, true, nil
}

// generateRoomID draws ids until one is unused. Caller holds s.mu for writing, which is what
// keeps two concurrent callers from reserving the same id.
func (s *Store) generateRoomID() (string, error) {
	alphabet := big.NewInt(int64(len(domain.RoomIDChars)))
	buf := make([]byte, domain.RoomIDLength)
	for attempt := 0; attempt < idAttempts; attempt++ {
		for i := range buf {
			n, err := rand.Int(s.rand, alphabet)
			if err != nil {
				return "", fmt.Errorf("room id: %w", err)
			}
			buf[i] = domain.RoomIDChars[n.Int64()]
		}
		id := string(buf)
		if _, taken := s.rooms[id]; !taken {
			return id, nil
		}
	}
	return "", ErrIDSpace
}

// Update runs fn on a copy of the room under the room's lock. The copy replaces the room (and is
// written through) only when fn reports a change and returns no error.
func (s *Store) Update(ctx context.Context, id string, fn func(r *domain.Room) (bool, error)) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	next := e.room.Clone()
	changed, err := fn(next)
	if err != nil || !changed {
		return err
	}
	next.LastActivity = s.now()
	e.room = next
	s.commit(ctx, next)
	return nil
}

// Touch refreshes the room's activity timestamp.
func (s *Store) Touch(ctx context.Context, id string) error {
	return s.Update(ctx, id, func(*domain.Room) (bool, error) { return true, nil })
}

// Get returns a copy of the room.
func (s *Store) Get(id string) (*domain.Room, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return e.room.Clone(), nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return e, nil
}

func (s *Store) sortedIDsLocked() []string {
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeleteInactive removes rooms idle for threshold or longer and writes the
// result. A pending failed write is retried here even when nothing expired.
func (s *Store) DeleteInactive(ctx context.Context, threshold time.Duration) ([]string, error) {
	cutoff := s.now().Add(-threshold)
	var removed []string

	s.mu.Lock()
	for _, id := range s.sortedIDsLocked() {
		e := s.rooms[id]
		e.mu.Lock()
		if !e.room.LastActivity.After(cutoff) {
			e.gone = true
			delete(s.rooms, id)
			s.snapMu.Lock()
			delete(s.committed, id)
			s.snapMu.Unlock()
			removed = append(removed, id)
		}
		e.mu.Unlock()
	}
	s.mu.Unlock()

	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	var err error
	if len(removed) > 0 || s.dirty {
		err = s.saveLocked(ctx)
	}
	if len(removed) > 0 {
		s.logger().Info("room_sweep", zap.Strings("room_ids", removed), zap.Duration("threshold", threshold))
	}
	return removed, err
}

// ReleaseSeats clears every occupant and reservation. Connection ids do not survive a restart,
// so recovered rooms return to the lobby with board and stats intact.
func (s *Store) ReleaseSeats(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	released := 0
	for _, e := range s.rooms {
		e.mu.Lock()
		if len(e.room.Players) > 0 || e.room.Started {
			next := e.room.Clone()
			next.Players = make(map[domain.Symbol]string)
			next.Started = false
			next.Turn = domain.NoSymbol
			e.room = next
			s.snapMu.Lock()
			s.committed[next.ID] = next.Clone()
			s.snapMu.Unlock()
			released++
		}
		e.mu.Unlock()
	}
	if released == 0 {
		return 0, nil
	}
	s.logger().Info("room_release_seats", zap.Int("rooms", released))
	return released, s.Flush(ctx)
}

// Flush writes the committed collection unconditionally.
func (s *Store) Flush(ctx context.Context) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.saveLocked(ctx)
}

// Dirty reports whether the last write failed and memory is ahead of the durable copy.
func (s *Store) Dirty() bool {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.dirty
}

// Close flushes and releases the snapshotter. Further RequestRoom calls fail.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	ferr := s.Flush(ctx)
	cerr := s.snap.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// commit records r as the durable state of its room and writes the snapshot through. Write
// failures leave memory authoritative and mark the store dirty.
func (s *Store) commit(ctx context.Context, r *domain.Room) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.committed[r.ID] = r.Clone()
	_ = s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	snap := persist.NewSnapshot()
	for id, r := range s.committed {
		snap.Rooms[id] = r
	}
	if err := s.snap.Save(ctx, snap); err != nil {
		s.dirty = true
		s.logger().Error("persist_error", zap.Int("rooms", len(snap.Rooms)), zap.Error(err))
		return err
	}
	if s.dirty {
		s.logger().Info("persist_recovered", zap.Int("rooms", len(snap.Rooms)))
	}
	s.dirty = false
	return nil
}
