package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/karmaloop/karmaloop/internal/models"
	"log/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(serverURL string) *HTTPClient {
	return NewHTTPClient(HTTPClientConfig{
		BaseURL:           serverURL,
		APIKey:            "test-key",
		RequestsPerSecond: 1000, // no throttling in tests
		CallTimeout:       2 * time.Second,
	}, testLogger())
}

func TestFetchProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/profiles/some_user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		json.NewEncoder(w).Encode(Profile{Username: "some_user", Karma: 42})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	profile, err := client.FetchProfile(context.Background(), "some_user")
	if err != nil {
		t.Fatalf("fetch profile: %v", err)
	}
	if profile.Username != "some_user" || profile.Karma != 42 {
		t.Errorf("unexpected profile %+v", profile)
	}
}

func TestFetchProfileNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchProfile(context.Background(), "ghost")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestFetchProfileServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchProfile(context.Background(), "some_user")
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestPerformActionSuccess(t *testing.T) {
	var received actionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/actions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	creds := ActionCredentials{AccountID: "a1", Username: "some_user"}
	if err := client.PerformAction(context.Background(), creds, models.ActionUpvote, "aww"); err != nil {
		t.Fatalf("perform action: %v", err)
	}

	if received.AccountID != "a1" || received.Kind != models.ActionUpvote || received.Target != "aww" {
		t.Errorf("unexpected request body %+v", received)
	}
}

func TestPerformActionTargetNotPermitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(errorResponse{
			Code:    "target_not_permitted",
			Message: "account banned from community",
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	creds := ActionCredentials{AccountID: "a1", Username: "some_user"}
	err := client.PerformAction(context.Background(), creds, models.ActionComment, "askreddit")

	if !IsTargetNotPermitted(err) {
		t.Fatalf("expected target rejection, got %v", err)
	}
	var rejection *TargetNotPermittedError
	if !errors.As(err, &rejection) {
		t.Fatal("expected *TargetNotPermittedError")
	}
	if rejection.Target != "askreddit" {
		t.Errorf("unexpected target %q", rejection.Target)
	}
}

func TestPerformActionOtherForbiddenIsTransient(t *testing.T) {
	// A 403 without the rejection code is not a target-level verdict.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(errorResponse{Code: "session_expired"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	creds := ActionCredentials{AccountID: "a1", Username: "some_user"}
	err := client.PerformAction(context.Background(), creds, models.ActionUpvote, "aww")

	if IsTargetNotPermitted(err) {
		t.Fatal("session failure must not read as a target rejection")
	}
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestPerformActionUnreachableGateway(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	creds := ActionCredentials{AccountID: "a1", Username: "some_user"}
	err := client.PerformAction(context.Background(), creds, models.ActionUpvote, "aww")
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
