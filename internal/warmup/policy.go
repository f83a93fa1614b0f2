package warmup

import (
	"time"

	"github.com/karmaloop/karmaloop/internal/models"
)

// ActionWeight is one entry in a phase's action mix.
type ActionWeight struct {
	Kind   models.ActionKind
	Weight float64
}

// PhasePolicy defines the pacing, completion criteria and action mix for one
// warmup phase.
type PhasePolicy struct {
	// DailyCap is the maximum number of actions per calendar day.
	DailyCap int

	// Completion criteria: all three must hold before the account advances.
	MinDays    int
	MinActions int
	MinKarma   int

	// AverageInterval is the mean gap between actions before jitter.
	AverageInterval time.Duration

	// Mix weights the action kinds permitted in this phase.
	Mix []ActionWeight

	// Targets is the rotation list of candidate communities for this phase.
	Targets []string
}

// Policy holds the full scheduling policy across phases plus the knobs that
// apply to every phase.
type Policy struct {
	Phases map[models.WarmupPhase]PhasePolicy

	// JitterMin/JitterMax bound the random multiplier applied to the average
	// interval. Fixed-period activity is the primary automation signal
	// platforms look for, so jitter is load-bearing, not cosmetic.
	JitterMin float64
	JitterMax float64

	// BackoffBase and BackoffMax shape the exponential backoff applied after
	// consecutive failures: base * 2^failures, capped at max.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultPolicy returns the reference warmup policy: caps and karma floors
// rise with each phase, intervals average around seven hours.
func DefaultPolicy() Policy {
	return Policy{
		JitterMin:   0.7,
		JitterMax:   1.3,
		BackoffBase: 30 * time.Minute,
		BackoffMax:  24 * time.Hour,
		Phases: map[models.WarmupPhase]PhasePolicy{
			models.PhaseUpvotes: {
				DailyCap:        3,
				MinDays:         3,
				MinActions:      10,
				MinKarma:        10,
				AverageInterval: 7 * time.Hour,
				Mix:             []ActionWeight{{models.ActionUpvote, 1.0}},
				Targets:         []string{"casualconversation", "mildlyinteresting", "aww", "pics"},
			},
			models.PhaseComments: {
				DailyCap:        5,
				MinDays:         5,
				MinActions:      20,
				MinKarma:        25,
				AverageInterval: 6 * time.Hour,
				Mix: []ActionWeight{
					{models.ActionUpvote, 0.6},
					{models.ActionComment, 0.4},
				},
				Targets: []string{"askreddit", "casualconversation", "nostupidquestions", "todayilearned"},
			},
			models.PhasePosts: {
				DailyCap:        7,
				MinDays:         7,
				MinActions:      15,
				MinKarma:        50,
				AverageInterval: 5 * time.Hour,
				Mix: []ActionWeight{
					{models.ActionUpvote, 0.4},
					{models.ActionComment, 0.35},
					{models.ActionPost, 0.25},
				},
				Targets: []string{"selfimprovement", "lifeprotips", "showerthoughts", "casualconversation"},
			},
			models.PhaseMixed: {
				DailyCap:        10,
				MinDays:         7,
				MinActions:      20,
				MinKarma:        100,
				AverageInterval: 4 * time.Hour,
				Mix: []ActionWeight{
					{models.ActionUpvote, 0.5},
					{models.ActionComment, 0.3},
					{models.ActionPost, 0.2},
				},
				Targets: []string{"askreddit", "todayilearned", "lifeprotips", "mildlyinteresting", "showerthoughts"},
			},
		},
	}
}
