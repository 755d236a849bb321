package model

import "time"

// ChangeEvent notifies that a normalized player record was inserted or updated.
type ChangeEvent struct {
	EventID  string    `json:"event_id"`  // unique id for idempotency
	PlayerID string    `json:"player_id"` // player whose record changed
	Revision uint64    `json:"revision"`  // record revision that triggered the event
	TS       time.Time `json:"ts"`        // time the write happened
}
