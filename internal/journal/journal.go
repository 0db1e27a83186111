// Package journal persists an append-structured JSON document per room:
// chat, per-game move records, and lifecycle events. Writes for one room are
// serialized through a per-room actor so concurrent callers never interleave
// a read-modify-write cycle.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mineduel/internal/game"
	"mineduel/internal/logger"
	"mineduel/internal/room"
)

// Document is the on-disk shape of one room's journal.
type Document struct {
	RoomCode  string             `json:"roomCode"`
	CreatedAt time.Time          `json:"createdAt"`
	HostName  string             `json:"hostName"`
	GuestName string             `json:"guestName,omitempty"`
	Settings  game.Settings      `json:"settings"`
	Messages  []room.ChatMessage `json:"messages"`
	Games     []GameRecord       `json:"games"`
	Events    []EventRecord      `json:"events"`
	ClosedAt  *time.Time         `json:"closedAt,omitempty"`
}

// GameRecord is one game inside a room.
type GameRecord struct {
	StartedAt      time.Time     `json:"startedAt"`
	EndedAt        *time.Time    `json:"endedAt,omitempty"`
	StartingPlayer game.Role     `json:"startingPlayer"`
	Settings       game.Settings `json:"settings"`
	Moves          []MoveRecord  `json:"moves"`
	Result         *ResultRecord `json:"result,omitempty"`
}

// MoveRecord is one accepted engine transition.
type MoveRecord struct {
	Player        game.Role `json:"player"`
	Action        string    `json:"action"` // reveal | pass | auto_pass
	X             *int      `json:"x,omitempty"`
	Z             *int      `json:"z,omitempty"`
	RevealedCount int       `json:"revealedCount,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ResultRecord is a game's terminal outcome.
type ResultRecord struct {
	Winner game.Role         `json:"winner"`
	Loser  game.Role         `json:"loser"`
	Reason string            `json:"reason"`
	Scores map[game.Role]int `json:"scores,omitempty"`
}

// EventRecord is a room lifecycle entry.
type EventRecord struct {
	Type      string    `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type actor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func() bool // each returns true to stop the actor
	stopped bool
}

func newActor() *actor {
	a := &actor{}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// push queues fn unless the actor already stopped.
func (a *actor) push(fn func() bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	a.queue = append(a.queue, fn)
	a.cond.Signal()
	return true
}

// Store owns the data directory and one actor per active room journal. An
// actor starts on first use and ends when its room archives.
type Store struct {
	dataDir string

	mu     sync.Mutex
	actors map[string]*actor
}

func NewStore(dataDir string) (*Store, error) {
	for _, dir := range []string{filepath.Join(dataDir, "rooms"), filepath.Join(dataDir, "archive")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dirs: %w", err)
		}
	}
	return &Store{
		dataDir: dataDir,
		actors:  make(map[string]*actor),
	}, nil
}

func (s *Store) roomPath(code string) string {
	return filepath.Join(s.dataDir, "rooms", code+".json")
}

func (s *Store) archivePath(code string, at time.Time) string {
	return filepath.Join(s.dataDir, "archive",
		fmt.Sprintf("%s_%s.json", code, at.Format("20060102_150405")))
}

// enqueue hands fn to the room's actor, spawning it on first use. Jobs for
// one room run strictly in arrival order. A caller can look an actor up and
// lose the race with the archive job that ends it; the push then fails and
// the loop retries against a fresh actor, so no job lands in a dead queue.
func (s *Store) enqueue(code string, fn func() bool) {
	for {
		s.mu.Lock()
		a, ok := s.actors[code]
		if !ok {
			a = newActor()
			s.actors[code] = a
			go s.runActor(code, a)
		}
		s.mu.Unlock()
		if a.push(fn) {
			return
		}
	}
}

// runActor drains the queue until a terminal job. Anything still queued
// behind the terminal job is handed back to enqueue rather than dropped.
func (s *Store) runActor(code string, a *actor) {
	for {
		a.mu.Lock()
		for len(a.queue) == 0 {
			a.cond.Wait()
		}
		job := a.queue[0]
		a.queue = a.queue[1:]
		a.mu.Unlock()

		if !job() {
			continue
		}

		a.mu.Lock()
		a.stopped = true
		leftover := a.queue
		a.queue = nil
		a.mu.Unlock()
		for _, job := range leftover {
			s.enqueue(code, job)
		}
		return
	}
}

func (s *Store) removeActor(code string) {
	s.mu.Lock()
	delete(s.actors, code)
	s.mu.Unlock()
}

// mutate runs a read-modify-write cycle on the room's document. A failed
// write is logged and dropped; the next queued task still proceeds.
func (s *Store) mutate(code string, fn func(*Document)) {
	s.enqueue(code, func() bool {
		doc, err := s.load(code)
		if err != nil {
			logger.Error("journal read failed", "code", code, "err", err)
			return false
		}
		fn(doc)
		if err := s.save(code, doc); err != nil {
			logger.Error("journal write failed", "code", code, "err", err)
		}
		return false
	})
}

func (s *Store) load(code string) (*Document, error) {
	data, err := os.ReadFile(s.roomPath(code))
	if os.IsNotExist(err) {
		return &Document{RoomCode: code, CreatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) save(code string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.roomPath(code), data, 0o644)
}

// Create initializes the journal for a new room.
func (s *Store) Create(code, hostName string, settings game.Settings) {
	s.mutate(code, func(doc *Document) {
		doc.HostName = hostName
		doc.Settings = settings
		doc.Events = append(doc.Events, EventRecord{
			Type: "room_created", Detail: hostName, Timestamp: time.Now(),
		})
	})
}

// SetGuestName records the guest seat name once a guest joins.
func (s *Store) SetGuestName(code, name string) {
	s.mutate(code, func(doc *Document) {
		doc.GuestName = name
		doc.Events = append(doc.Events, EventRecord{
			Type: "guest_joined", Detail: name, Timestamp: time.Now(),
		})
	})
}

// AppendMessage journals one chat message.
func (s *Store) AppendMessage(code string, msg room.ChatMessage) {
	s.mutate(code, func(doc *Document) {
		doc.Messages = append(doc.Messages, msg)
	})
}

// AppendEvent journals a lifecycle event.
func (s *Store) AppendEvent(code, eventType, detail string) {
	s.mutate(code, func(doc *Document) {
		doc.Events = append(doc.Events, EventRecord{
			Type: eventType, Detail: detail, Timestamp: time.Now(),
		})
	})
}

// StartGame opens a new game record.
func (s *Store) StartGame(code string, starting game.Role, settings game.Settings) {
	s.mutate(code, func(doc *Document) {
		doc.Games = append(doc.Games, GameRecord{
			StartedAt:      time.Now(),
			StartingPlayer: starting,
			Settings:       settings,
		})
	})
}

// AppendMove appends a move to the current (last) game record.
func (s *Store) AppendMove(code string, mv MoveRecord) {
	s.mutate(code, func(doc *Document) {
		if len(doc.Games) == 0 {
			logger.Warn("journal move with no open game", "code", code)
			return
		}
		g := &doc.Games[len(doc.Games)-1]
		g.Moves = append(g.Moves, mv)
	})
}

// EndGame stamps the current game record with its result.
func (s *Store) EndGame(code string, result ResultRecord) {
	s.mutate(code, func(doc *Document) {
		if len(doc.Games) == 0 {
			logger.Warn("journal result with no open game", "code", code)
			return
		}
		now := time.Now()
		g := &doc.Games[len(doc.Games)-1]
		g.EndedAt = &now
		g.Result = &result
	})
}

// Archive stamps closedAt, appends a room_closed event, and moves the file
// to the archive directory. The room's actor ends after this job.
func (s *Store) Archive(code, reason string) {
	s.enqueue(code, func() bool {
		defer s.removeActor(code)

		doc, err := s.load(code)
		if err != nil {
			logger.Error("journal archive read failed", "code", code, "err", err)
			return true
		}
		now := time.Now()
		doc.ClosedAt = &now
		doc.Events = append(doc.Events, EventRecord{
			Type: "room_closed", Detail: reason, Timestamp: now,
		})

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			logger.Error("journal archive marshal failed", "code", code, "err", err)
			return true
		}
		dst := s.archivePath(code, now)
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			logger.Error("journal archive write failed", "code", code, "err", err)
			return true
		}
		if err := os.Remove(s.roomPath(code)); err != nil && !os.IsNotExist(err) {
			logger.Warn("journal cleanup failed", "code", code, "err", err)
		}
		return true
	})
}

// Flush blocks until every journal task enqueued for code so far has run.
func (s *Store) Flush(code string) {
	done := make(chan struct{})
	s.enqueue(code, func() bool {
		close(done)
		return false
	})
	<-done
}

// SweepOrphans archives any active journal whose room is no longer in the
// registry (leftovers from an unclean shutdown).
func (s *Store) SweepOrphans(live map[string]bool) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "rooms"))
	if err != nil {
		logger.Error("journal sweep failed", "err", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		code := name[:len(name)-len(".json")]
		if live[code] {
			continue
		}
		logger.Info("archiving orphan journal", "code", code)
		s.Archive(code, "orphaned")
	}
}
