package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eddiefleurent/schrute_ledger/internal/models"
)

// schema keeps the position aggregate as a JSON document. The status column
// duplicates the derived status purely for indexing and is rewritten on
// every write, matching the cache semantics of the JSON backend.
const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id         TEXT PRIMARY KEY,
	symbol     TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);

CREATE TABLE IF NOT EXISTS assignment_events (
	id                   TEXT PRIMARY KEY,
	option_position_id   TEXT NOT NULL,
	stock_position_id    TEXT NOT NULL,
	doc                  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assignment_option ON assignment_events(option_position_id);
`

// SQLiteStorage persists the ledger in SQLite. The assignment commit runs
// inside a single transaction, which provides the multi-aggregate atomicity
// the orchestrator requires.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite storage: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing sqlite schema: %w", err)
	}
	// Serialized access; the ledger is a single-process store.
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func decodePosition(doc string) (*models.Position, error) {
	var p models.Position
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, err
	}
	p.RefreshStatus()
	return &p, nil
}

func encodePosition(p *models.Position) (string, models.Status, error) {
	cp := p.Clone()
	cp.RefreshStatus()
	raw, err := json.Marshal(cp)
	if err != nil {
		return "", "", err
	}
	return string(raw), cp.State, nil
}

// GetPosition returns the position aggregate with the given id.
func (s *SQLiteStorage) GetPosition(id string) (*models.Position, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM positions WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get position %s: %w", id, ErrPositionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}
	return decodePosition(doc)
}

// GetAllPositions returns every stored position, oldest first.
func (s *SQLiteStorage) GetAllPositions() ([]models.Position, error) {
	rows, err := s.db.Query(`SELECT doc FROM positions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Position, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		p, err := decodePosition(doc)
		if err != nil {
			return nil, fmt.Errorf("decoding position: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreatePosition stores a new position aggregate.
func (s *SQLiteStorage) CreatePosition(p *models.Position) error {
	doc, status, err := encodePosition(p)
	if err != nil {
		return fmt.Errorf("create position %s: %w", p.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO positions (id, symbol, status, created_at, doc) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Symbol, string(status), p.CreatedAt, doc)
	if err != nil {
		return fmt.Errorf("create position %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePosition replaces a stored position aggregate in full.
func (s *SQLiteStorage) UpdatePosition(p *models.Position) error {
	doc, status, err := encodePosition(p)
	if err != nil {
		return fmt.Errorf("update position %s: %w", p.ID, err)
	}
	res, err := s.db.Exec(
		`UPDATE positions SET symbol = ?, status = ?, doc = ? WHERE id = ?`,
		p.Symbol, string(status), doc, p.ID)
	if err != nil {
		return fmt.Errorf("update position %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update position %s: %w", p.ID, ErrPositionNotFound)
	}
	return nil
}

// DeletePosition removes a position (administrative use only).
func (s *SQLiteStorage) DeletePosition(id string) error {
	res, err := s.db.Exec(`DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete position %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete position %s: %w", id, ErrPositionNotFound)
	}
	return nil
}

// CommitAssignment applies the option update, stock creation and event
// insert inside one transaction. Any failure rolls the whole commit back and
// surfaces as a TransactionError.
func (s *SQLiteStorage) CommitAssignment(option, stock *models.Position, event *models.AssignmentEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &TransactionError{Op: "assignment", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	optDoc, optStatus, err := encodePosition(option)
	if err != nil {
		return &TransactionError{Op: "assignment", Err: err}
	}
	res, err := tx.Exec(
		`UPDATE positions SET symbol = ?, status = ?, doc = ? WHERE id = ?`,
		option.Symbol, string(optStatus), optDoc, option.ID)
	if err != nil {
		return &TransactionError{Op: "assignment", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &TransactionError{Op: "assignment", Err: fmt.Errorf("option position %s: %w", option.ID, ErrPositionNotFound)}
	}

	stkDoc, stkStatus, err := encodePosition(stock)
	if err != nil {
		return &TransactionError{Op: "assignment", Err: err}
	}
	if _, err := tx.Exec(
		`INSERT INTO positions (id, symbol, status, created_at, doc) VALUES (?, ?, ?, ?, ?)`,
		stock.ID, stock.Symbol, string(stkStatus), stock.CreatedAt, stkDoc); err != nil {
		return &TransactionError{Op: "assignment", Err: err}
	}

	evDoc, err := json.Marshal(event)
	if err != nil {
		return &TransactionError{Op: "assignment", Err: err}
	}
	if _, err := tx.Exec(
		`INSERT INTO assignment_events (id, option_position_id, stock_position_id, doc) VALUES (?, ?, ?, ?)`,
		event.ID, event.OptionPositionID, event.StockPositionID, string(evDoc)); err != nil {
		return &TransactionError{Op: "assignment", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &TransactionError{Op: "assignment", Err: err}
	}
	return nil
}

// GetAssignmentEvents returns events whose option position matches the id;
// an empty id returns all events.
func (s *SQLiteStorage) GetAssignmentEvents(optionPositionID string) ([]models.AssignmentEvent, error) {
	query := `SELECT doc FROM assignment_events`
	args := []interface{}{}
	if optionPositionID != "" {
		query += ` WHERE option_position_id = ?`
		args = append(args, optionPositionID)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assignment events: %w", err)
	}
	defer rows.Close()

	out := make([]models.AssignmentEvent, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning assignment event: %w", err)
		}
		var ev models.AssignmentEvent
		if err := json.Unmarshal([]byte(doc), &ev); err != nil {
			return nil, fmt.Errorf("decoding assignment event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetStatistics derives the aggregate rollup from the stored positions.
func (s *SQLiteStorage) GetStatistics() (*Statistics, error) {
	positions, err := s.GetAllPositions()
	if err != nil {
		return nil, err
	}
	return computeStatistics(positions), nil
}

// Close closes the database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
