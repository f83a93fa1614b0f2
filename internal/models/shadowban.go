package models

import "time"

// ShadowbanCheckResult is the outcome of one shadowban heuristic run.
// It is ephemeral and never persisted as its own entity.
type ShadowbanCheckResult struct {
	AccountID      string    `json:"account_id"`
	IsShadowbanned bool      `json:"is_shadowbanned"`
	Confidence     float64   `json:"confidence"` // 0..1
	Indicators     []string  `json:"indicators"`
	CheckedAt      time.Time `json:"checked_at"`
}

// QueueState classifies an account's position in the derived warmup queue.
// There is no durable queue entity; the state is re-derived from phase and
// progress on every read.
type QueueState string

const (
	QueueIdle     QueueState = "idle"     // not warming up
	QueueWaiting  QueueState = "waiting"  // active, next action not yet eligible
	QueueDue      QueueState = "due"      // active, eligible for an action now
	QueueCapped   QueueState = "capped"   // active, daily cap reached
	QueueDraining QueueState = "draining" // active, backing off after failures
)
