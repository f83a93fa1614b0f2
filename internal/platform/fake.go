package platform

import (
	"context"
	"sync"

	"github.com/karmaloop/karmaloop/internal/models"
)

// FakeClient is an in-memory Client for tests and local development. Each
// capability can be scripted with a function; unscripted calls succeed with
// zero values.
type FakeClient struct {
	mu sync.Mutex

	ProfileFn     func(username string) (*Profile, error)
	SubmissionsFn func(username string, limit int) ([]Submission, error)
	CommentsFn    func(username string, limit int) ([]Comment, error)
	ActionFn      func(creds ActionCredentials, kind models.ActionKind, target string) error

	// Actions records every PerformAction call in order.
	Actions []FakeAction
}

// FakeAction is one recorded PerformAction invocation.
type FakeAction struct {
	AccountID string
	Kind      models.ActionKind
	Target    string
}

// NewFakeClient returns a fake whose calls all succeed by default.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) FetchProfile(_ context.Context, username string) (*Profile, error) {
	if f.ProfileFn != nil {
		return f.ProfileFn(username)
	}
	return &Profile{Username: username}, nil
}

func (f *FakeClient) FetchSubmissions(_ context.Context, username string, limit int) ([]Submission, error) {
	if f.SubmissionsFn != nil {
		return f.SubmissionsFn(username, limit)
	}
	return nil, nil
}

func (f *FakeClient) FetchComments(_ context.Context, username string, limit int) ([]Comment, error) {
	if f.CommentsFn != nil {
		return f.CommentsFn(username, limit)
	}
	return nil, nil
}

func (f *FakeClient) PerformAction(_ context.Context, creds ActionCredentials, kind models.ActionKind, target string) error {
	f.mu.Lock()
	f.Actions = append(f.Actions, FakeAction{AccountID: creds.AccountID, Kind: kind, Target: target})
	f.mu.Unlock()

	if f.ActionFn != nil {
		return f.ActionFn(creds, kind, target)
	}
	return nil
}

// ActionCount returns the number of recorded actions for an account.
func (f *FakeClient) ActionCount(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, a := range f.Actions {
		if a.AccountID == accountID {
			count++
		}
	}
	return count
}
