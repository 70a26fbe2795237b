package storage

import (
	"fmt"
	"sync"

	"github.com/eddiefleurent/schrute_ledger/internal/models"
)

// MockStorage implements Interface for testing, with injectable errors and
// call counting.
type MockStorage struct {
	positions   map[string]*models.Position
	order       []string
	assignments []models.AssignmentEvent

	updateError     error
	commitError     error
	commitCallCount int
	updateCallCount int
	mu              sync.Mutex
}

// NewMockStorage creates an empty in-memory store for tests.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		positions: make(map[string]*models.Position),
	}
}

func (m *MockStorage) GetPosition(id string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, fmt.Errorf("get position %s: %w", id, ErrPositionNotFound)
	}
	return p.Clone(), nil
}

func (m *MockStorage) GetAllPositions() ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Position, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.positions[id].Clone())
	}
	return out, nil
}

func (m *MockStorage) CreatePosition(p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[p.ID]; ok {
		return fmt.Errorf("create position %s: %w", p.ID, ErrPositionExists)
	}
	cp := p.Clone()
	cp.RefreshStatus()
	m.positions[p.ID] = cp
	m.order = append(m.order, p.ID)
	return nil
}

func (m *MockStorage) UpdatePosition(p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCallCount++
	if m.updateError != nil {
		return m.updateError
	}
	if _, ok := m.positions[p.ID]; !ok {
		return fmt.Errorf("update position %s: %w", p.ID, ErrPositionNotFound)
	}
	cp := p.Clone()
	cp.RefreshStatus()
	m.positions[p.ID] = cp
	return nil
}

func (m *MockStorage) DeletePosition(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[id]; !ok {
		return fmt.Errorf("delete position %s: %w", id, ErrPositionNotFound)
	}
	delete(m.positions, id)
	for i, pid := range m.order {
		if pid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// CommitAssignment mirrors the atomic semantics of the real backends: with an
// injected commit error, nothing is applied.
func (m *MockStorage) CommitAssignment(option, stock *models.Position, event *models.AssignmentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCallCount++
	if m.commitError != nil {
		return &TransactionError{Op: "assignment", Err: m.commitError}
	}
	if _, ok := m.positions[option.ID]; !ok {
		return &TransactionError{Op: "assignment", Err: fmt.Errorf("option position %s: %w", option.ID, ErrPositionNotFound)}
	}
	if _, ok := m.positions[stock.ID]; ok {
		return &TransactionError{Op: "assignment", Err: fmt.Errorf("stock position %s: %w", stock.ID, ErrPositionExists)}
	}
	opt := option.Clone()
	opt.RefreshStatus()
	stk := stock.Clone()
	stk.RefreshStatus()
	m.positions[option.ID] = opt
	m.positions[stock.ID] = stk
	m.order = append(m.order, stock.ID)
	m.assignments = append(m.assignments, *event)
	return nil
}

func (m *MockStorage) GetAssignmentEvents(optionPositionID string) ([]models.AssignmentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AssignmentEvent, 0)
	for _, ev := range m.assignments {
		if optionPositionID == "" || ev.OptionPositionID == optionPositionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MockStorage) GetStatistics() (*Statistics, error) {
	positions, err := m.GetAllPositions()
	if err != nil {
		return nil, err
	}
	return computeStatistics(positions), nil
}

func (m *MockStorage) Close() error {
	return nil
}

// Mock control methods for testing

func (m *MockStorage) SetUpdateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateError = err
}

func (m *MockStorage) SetCommitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitError = err
}

func (m *MockStorage) CommitCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitCallCount
}

func (m *MockStorage) UpdateCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCallCount
}
