package storage

import "time"

// Session is the persisted form of an advisor session.
type Session struct {
	ID        string            `json:"id"`
	Channel   string            `json:"channel"`
	State     string            `json:"state"`
	Profile   map[string]string `json:"profile"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Turn is one persisted conversation entry. Seq is zero-based and dense per session.
type Turn struct {
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
