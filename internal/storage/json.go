// Package storage persists position aggregates and assignment events.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/eddiefleurent/schrute_ledger/internal/models"
)

// JSONStorage keeps the full ledger in a single JSON file. All writes
// rewrite the file through a temp-file + atomic rename, so any multi-record
// mutation applied before a single save is all-or-nothing on disk.
type JSONStorage struct {
	data     *fileData
	filepath string
	mu       sync.RWMutex
}

type fileData struct {
	LastUpdated time.Time                `json:"last_updated"`
	Positions   []models.Position        `json:"positions"`
	Assignments []models.AssignmentEvent `json:"assignments"`
}

// NewJSONStorage creates a JSON-file-backed store, loading existing data if
// the file is present.
func NewJSONStorage(filepath string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: filepath,
		data: &fileData{
			Positions:   make([]models.Position, 0),
			Assignments: make([]models.AssignmentEvent, 0),
		},
	}
	if _, err := os.Stat(filepath); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}
	return s, nil
}

func (s *JSONStorage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, s.data); err != nil {
		return err
	}
	// Stored status is a cache; recompute so a stale or corrupted value
	// self-heals on load.
	for i := range s.data.Positions {
		s.data.Positions[i].RefreshStatus()
	}
	return nil
}

// saveLocked writes the file; callers must hold the write lock.
func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filepath)
}

func (s *JSONStorage) indexOf(id string) int {
	for i := range s.data.Positions {
		if s.data.Positions[i].ID == id {
			return i
		}
	}
	return -1
}

// GetPosition returns a deep copy of the position with the given id.
func (s *JSONStorage) GetPosition(id string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("get position %s: %w", id, ErrPositionNotFound)
	}
	return s.data.Positions[i].Clone(), nil
}

// GetAllPositions returns deep copies of every stored position.
func (s *JSONStorage) GetAllPositions() ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Position, 0, len(s.data.Positions))
	for i := range s.data.Positions {
		out = append(out, *s.data.Positions[i].Clone())
	}
	return out, nil
}

// CreatePosition stores a new position aggregate.
func (s *JSONStorage) CreatePosition(p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(p.ID) >= 0 {
		return fmt.Errorf("create position %s: %w", p.ID, ErrPositionExists)
	}
	cp := p.Clone()
	cp.RefreshStatus()
	s.data.Positions = append(s.data.Positions, *cp)
	if err := s.saveLocked(); err != nil {
		s.data.Positions = s.data.Positions[:len(s.data.Positions)-1]
		return fmt.Errorf("create position %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePosition replaces a stored position aggregate in full.
func (s *JSONStorage) UpdatePosition(p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(p.ID)
	if i < 0 {
		return fmt.Errorf("update position %s: %w", p.ID, ErrPositionNotFound)
	}
	prev := s.data.Positions[i]
	cp := p.Clone()
	cp.RefreshStatus()
	s.data.Positions[i] = *cp
	if err := s.saveLocked(); err != nil {
		s.data.Positions[i] = prev
		return fmt.Errorf("update position %s: %w", p.ID, err)
	}
	return nil
}

// DeletePosition removes a position (administrative use only; trades are
// otherwise append-only).
func (s *JSONStorage) DeletePosition(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delete position %s: %w", id, ErrPositionNotFound)
	}
	prev := s.data.Positions
	next := make([]models.Position, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)
	s.data.Positions = next
	if err := s.saveLocked(); err != nil {
		s.data.Positions = prev
		return fmt.Errorf("delete position %s: %w", id, err)
	}
	return nil
}

// CommitAssignment applies the assignment's three records as one atomic
// commit: the mutated option position, the new stock position and the event.
// The in-memory state is rolled back and a TransactionError returned if the
// file write fails, so no partial state is visible to subsequent reads.
func (s *JSONStorage) CommitAssignment(option, stock *models.Position, event *models.AssignmentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(option.ID)
	if i < 0 {
		return &TransactionError{Op: "assignment", Err: fmt.Errorf("option position %s: %w", option.ID, ErrPositionNotFound)}
	}
	if s.indexOf(stock.ID) >= 0 {
		return &TransactionError{Op: "assignment", Err: fmt.Errorf("stock position %s: %w", stock.ID, ErrPositionExists)}
	}

	prevOption := s.data.Positions[i]
	prevPositionsLen := len(s.data.Positions)
	prevAssignmentsLen := len(s.data.Assignments)

	opt := option.Clone()
	opt.RefreshStatus()
	stk := stock.Clone()
	stk.RefreshStatus()
	s.data.Positions[i] = *opt
	s.data.Positions = append(s.data.Positions, *stk)
	s.data.Assignments = append(s.data.Assignments, *event)

	if err := s.saveLocked(); err != nil {
		s.data.Positions = s.data.Positions[:prevPositionsLen]
		s.data.Positions[i] = prevOption
		s.data.Assignments = s.data.Assignments[:prevAssignmentsLen]
		return &TransactionError{Op: "assignment", Err: err}
	}
	return nil
}

// GetAssignmentEvents returns events whose option position matches the id;
// an empty id returns all events.
func (s *JSONStorage) GetAssignmentEvents(optionPositionID string) ([]models.AssignmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AssignmentEvent, 0)
	for _, ev := range s.data.Assignments {
		if optionPositionID == "" || ev.OptionPositionID == optionPositionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetStatistics derives the aggregate rollup from the stored positions.
func (s *JSONStorage) GetStatistics() (*Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return computeStatistics(s.data.Positions), nil
}

// Close is a no-op for the file-backed store.
func (s *JSONStorage) Close() error {
	return nil
}
