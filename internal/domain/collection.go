package domain

import "time"

// Collection groups listings under a human-readable name. Collections are
// append-only: once created they are never renamed or removed.
type Collection struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
