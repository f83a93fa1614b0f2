package platform

import (
	"context"
	"time"

	"github.com/karmaloop/karmaloop/internal/models"
)

// Profile is the public view of a platform account.
type Profile struct {
	Username  string    `json:"username"`
	Karma     int       `json:"karma"`
	CreatedAt time.Time `json:"created_at"`
	Suspended bool      `json:"suspended"`
	Verified  bool      `json:"verified"`
}

// Submission is one post made by an account.
type Submission struct {
	ID           string    `json:"id"`
	Target       string    `json:"target"`
	Score        int       `json:"score"`
	CommentCount int       `json:"comment_count"`
	PostedAt     time.Time `json:"posted_at"`
}

// Comment is one comment made by an account.
type Comment struct {
	ID       string    `json:"id"`
	Score    int       `json:"score"`
	PostedAt time.Time `json:"posted_at"`
}

// ActionCredentials identifies the acting account to the platform.
type ActionCredentials struct {
	AccountID string
	Username  string
}

// Client is the platform capability the warmup engine consumes. Every call
// is fallible and rate limited; implementations must enforce a timeout and
// surface target rejections as *TargetNotPermittedError and other failures
// as *TransientError so callers can tell them apart.
type Client interface {
	// FetchProfile returns the public profile, or ErrProfileNotFound.
	FetchProfile(ctx context.Context, username string) (*Profile, error)

	// FetchSubmissions returns up to limit recent submissions.
	FetchSubmissions(ctx context.Context, username string, limit int) ([]Submission, error)

	// FetchComments returns up to limit recent comments.
	FetchComments(ctx context.Context, username string, limit int) ([]Comment, error)

	// PerformAction executes one warmup action against a target.
	PerformAction(ctx context.Context, creds ActionCredentials, kind models.ActionKind, target string) error
}
