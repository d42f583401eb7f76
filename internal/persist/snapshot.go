package persist

import (
	"context"
	"errors"

	"github.com/park285/ttt-rooms/internal/domain"
)

// Snapshot is the full room collection as stored: {"rooms": {"<id>": {...}}}.
type Snapshot struct {
	Rooms map[string]*domain.Room `json:"rooms"`
}

// NewSnapshot returns an empty collection.
func NewSnapshot() *Snapshot { return &Snapshot{Rooms: make(map[string]*domain.Room)} }

// Snapshotter reads and overwrites the durable snapshot as a whole.
type Snapshotter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Close() error
}

var ErrCorruptSnapshot = errors.New("corrupt session snapshot")

func normalize(s *Snapshot) *Snapshot {
	if s == nil {
		return NewSnapshot()
	}
	if s.Rooms == nil {
		s.Rooms = make(map[string]*domain.Room)
	}
	for id, r := range s.Rooms {
		if r == nil {
			continue
		}
		if r.ID == "" {
			r.ID = id
		}
		if r.Players == nil {
			r.Players = make(map[domain.Symbol]string)
		}
		if r.Board == nil {
			r.Board = make(map[int]domain.Symbol)
		}
	}
	return s
}
