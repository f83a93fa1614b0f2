package warmup

import (
	"time"

	"github.com/karmaloop/karmaloop/internal/models"
)

// DeriveQueueState classifies an account's position in the warmup queue.
// There is no durable queue: the state is a pure function of the account's
// phase and progress at the given instant, so the same inputs always yield
// the same verdict.
func DeriveQueueState(scheduler *Scheduler, account *models.Account, now time.Time) models.QueueState {
	decision := scheduler.Next(account, now)
	if decision.Due {
		return models.QueueDue
	}

	switch decision.Reason {
	case ReasonDailyCap:
		return models.QueueCapped
	case ReasonBackingOff:
		return models.QueueDraining
	case ReasonTooSoon, ReasonTargetsExcluded:
		return models.QueueWaiting
	}
	return models.QueueIdle
}
