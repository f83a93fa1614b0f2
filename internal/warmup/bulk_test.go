package warmup

import (
	"context"
	"errors"
	"testing"

	"github.com/karmaloop/karmaloop/internal/models"
	"github.com/karmaloop/karmaloop/internal/platform"
)

func newBulkFixture(t *testing.T) (*BulkCoordinator, *detectorFixture) {
	t.Helper()
	f := newDetectorFixture(t)
	bulk := NewBulkCoordinator(f.repo, f.orchestrator, f.detector, testLogger())
	return bulk, f
}

func TestBulkStartByIDs(t *testing.T) {
	bulk, f := newBulkFixture(t)
	f.storeAccount(t, &models.Account{ID: "a1", Username: "u1", Phase: models.PhaseNotStarted})
	f.storeAccount(t, &models.Account{ID: "a2", Username: "u2", Phase: models.PhaseNotStarted})

	result, err := bulk.Apply(context.Background(), models.BulkStart, models.AccountFilter{IDs: []string{"a1", "a2"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if result.Total != 2 || result.Successful != 2 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	for _, id := range []string{"a1", "a2"} {
		if got := f.getAccount(t, id).Phase; got != models.PhaseUpvotes {
			t.Errorf("account %s: expected %s, got %s", id, models.PhaseUpvotes, got)
		}
	}
}

func TestBulkPauseByFilter(t *testing.T) {
	bulk, f := newBulkFixture(t)
	f.storeAccount(t, &models.Account{ID: "a1", Username: "u1", OwnerID: "owner-1", Phase: models.PhaseUpvotes})
	f.storeAccount(t, &models.Account{ID: "a2", Username: "u2", OwnerID: "owner-1", Phase: models.PhaseUpvotes})
	f.storeAccount(t, &models.Account{ID: "a3", Username: "u3", OwnerID: "owner-2", Phase: models.PhaseUpvotes})

	result, err := bulk.Apply(context.Background(), models.BulkPause, models.AccountFilter{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if result.Total != 2 || result.Successful != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := f.getAccount(t, "a3").Phase; got != models.PhaseUpvotes {
		t.Errorf("unselected account must be untouched, got %s", got)
	}
}

func TestBulkPartialFailure(t *testing.T) {
	bulk, f := newBulkFixture(t)
	f.storeAccount(t, &models.Account{ID: "a1", Username: "u1", Phase: models.PhaseNotStarted})
	f.storeAccount(t, &models.Account{ID: "a2", Username: "u2", Phase: models.PhaseCompleted})
	f.storeAccount(t, &models.Account{ID: "a3", Username: "u3", Phase: models.PhaseNotStarted})

	result, err := bulk.Apply(context.Background(), models.BulkStart, models.AccountFilter{IDs: []string{"a1", "a2", "a3"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if result.Successful != 2 {
		t.Errorf("successful = %d, want 2", result.Successful)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}
	if len(result.Errors) != 1 || result.Errors[0].AccountID != "a2" {
		t.Errorf("expected one error for a2, got %+v", result.Errors)
	}

	// The ineligible account stayed where it was.
	if got := f.getAccount(t, "a2").Phase; got != models.PhaseCompleted {
		t.Errorf("expected a2 untouched, got %s", got)
	}
}

func TestBulkUnknownIDFailsResolve(t *testing.T) {
	bulk, f := newBulkFixture(t)
	f.storeAccount(t, &models.Account{ID: "a1", Username: "u1", Phase: models.PhaseNotStarted})

	_, err := bulk.Apply(context.Background(), models.BulkStart, models.AccountFilter{IDs: []string{"a1", "missing"}})
	if !errors.Is(err, models.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestBulkRejectsUnknownOperation(t *testing.T) {
	bulk, _ := newBulkFixture(t)

	_, err := bulk.Apply(context.Background(), models.BulkOperation("destroy"), models.AccountFilter{})
	if err == nil {
		t.Fatal("expected an error for an unsupported operation")
	}
}

func TestBulkShadowbanCheckTalliesOutcomes(t *testing.T) {
	bulk, f := newBulkFixture(t)

	banned := phaseOneAccount(testClock())
	banned.ID = "banned"
	banned.Username = "banned_user"
	f.storeAccount(t, banned)

	clean := phaseOneAccount(testClock())
	clean.ID = "clean"
	clean.Username = "clean_user"
	f.storeAccount(t, clean)

	broken := phaseOneAccount(testClock())
	broken.ID = "broken"
	broken.Username = "broken_user"
	f.storeAccount(t, broken)

	f.client.ProfileFn = func(username string) (*platform.Profile, error) {
		switch username {
		case "banned_user":
			return nil, platform.ErrProfileNotFound
		case "broken_user":
			return nil, platform.NewTransientError(errors.New("gateway down"))
		}
		return &platform.Profile{Username: username}, nil
	}
	f.client.SubmissionsFn = func(username string, _ int) ([]platform.Submission, error) {
		if username == "banned_user" {
			return deadSubmissions(minSampleSize), nil
		}
		return healthySubmissions(8), nil
	}
	f.client.CommentsFn = func(username string, _ int) ([]platform.Comment, error) {
		if username == "banned_user" {
			return zeroComments(minSampleSize), nil
		}
		return nil, nil
	}

	result, err := bulk.Apply(context.Background(), models.BulkCheckShadowban,
		models.AccountFilter{IDs: []string{"banned", "clean", "broken"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if result.Total != 3 {
		t.Errorf("total = %d, want 3", result.Total)
	}
	if result.Shadowbanned != 1 {
		t.Errorf("shadowbanned = %d, want 1", result.Shadowbanned)
	}
	if result.Failed != 1 {
		t.Errorf("inconclusive checks count as failed, got %d", result.Failed)
	}
	if result.Successful != 2 {
		t.Errorf("successful = %d, want 2", result.Successful)
	}

	if got := f.getAccount(t, "banned").Phase; got != models.PhaseFailed {
		t.Errorf("expected the detected account failed, got %s", got)
	}
	if got := f.getAccount(t, "clean").Phase; got != models.PhaseUpvotes {
		t.Errorf("expected the clean account untouched, got %s", got)
	}
}
