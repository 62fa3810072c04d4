package viewstate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names an independently versioned result set.
type Kind string

const (
	KindApprovals Kind = "approvals"
	KindDust      Kind = "dust"
	KindProtocols Kind = "protocols"
)

// Ticket tags one scan request. Seq increases per kind.
type Ticket struct {
	ID  string `json:"id"`
	Seq uint64 `json:"sequence"`
}

// Snapshot is the last committed result for a kind.
type Snapshot struct {
	Ticket      Ticket      `json:"ticket"`
	Value       interface{} `json:"value"`
	CommittedAt time.Time   `json:"committedAt"`
}

type slot struct {
	issued   uint64
	snapshot *Snapshot
}

// Store applies a completed scan only if no newer scan of the same kind
// was started after it. Stale results are dropped.
type Store struct {
	mu    sync.Mutex
	slots map[Kind]*slot
}

func NewStore() *Store {
	return &Store{slots: make(map[Kind]*slot)}
}

func (s *Store) slot(kind Kind) *slot {
	sl, ok := s.slots[kind]
	if !ok {
		sl = &slot{}
		s.slots[kind] = sl
	}
	return sl
}

// Begin issues the next ticket for kind.
func (s *Store) Begin(kind Kind) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.slot(kind)
	sl.issued++
	return Ticket{ID: uuid.NewString(), Seq: sl.issued}
}

// Commit stores value if t is the latest ticket issued for kind and
// reports whether it did.
func (s *Store) Commit(kind Kind, t Ticket, value interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.slot(kind)
	if t.Seq != sl.issued {
		slog.Info("discarding stale scan result",
			"kind", kind,
			"ticket", t.ID,
			"seq", t.Seq,
			"latest", sl.issued,
		)
		return false
	}

	sl.snapshot = &Snapshot{Ticket: t, Value: value, CommittedAt: time.Now()}
	return true
}

// Latest returns the last committed snapshot for kind.
func (s *Store) Latest(kind Kind) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[kind]
	if !ok || sl.snapshot == nil {
		return Snapshot{}, false
	}
	return *sl.snapshot, true
}
