package models

import "time"

// AssignmentEvent links an assigned option position to the stock position it
// spawned, with the economics computed at assignment time. Created exactly
// once per assignment by the orchestrator; immutable thereafter.
type AssignmentEvent struct {
	AssignmentDate    time.Time `json:"assignment_date"`
	CreatedAt         time.Time `json:"created_at"`
	ID                string    `json:"id"`
	OptionPositionID  string    `json:"option_position_id"`
	StockPositionID   string    `json:"stock_position_id"`
	Strike            float64   `json:"strike"`
	PremiumPerShare   float64   `json:"premium_per_share"`
	CostBasisPerShare float64   `json:"cost_basis_per_share"`
	Contracts         int       `json:"contracts"`
}
