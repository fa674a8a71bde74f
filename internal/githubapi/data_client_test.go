package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestDataClient(t *testing.T, handler http.Handler) (*DataClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	requestClient := NewClient(server.Client(), RetryConfig{MaxAttempts: 1}, PacingPolicy{}, 0)
	dataClient, err := NewDataClient(server.URL, requestClient)
	if err != nil {
		t.Fatalf("NewDataClient: %v", err)
	}
	return dataClient, server
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode payload: %v", err)
	}
}

func TestNewDataClientValidatesBaseURL(t *testing.T) {
	t.Parallel()

	requestClient := NewClient(http.DefaultClient, RetryConfig{}, PacingPolicy{}, 0)
	if _, err := NewDataClient("not-a-url", requestClient); err == nil {
		t.Fatal("expected an error for a base URL without scheme")
	}
	if _, err := NewDataClient("https://api.example.com", nil); err == nil {
		t.Fatal("expected an error for a nil request client")
	}
}

func TestListOrgReposPaginates(t *testing.T) {
	t.Parallel()

	pageOne := make([]map[string]any, 0, 100)
	for i := 0; i < 100; i++ {
		pageOne = append(pageOne, map[string]any{
			"name":           fmt.Sprintf("repo-%03d", i),
			"full_name":      fmt.Sprintf("org-a/repo-%03d", i),
			"owner":          map[string]any{"login": "org-a"},
			"default_branch": "main",
		})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/org-a/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("per_page") != "100" {
			t.Errorf("per_page = %q, want 100", r.URL.Query().Get("per_page"))
		}
		switch r.URL.Query().Get("page") {
		case "1":
			w.Header().Set("Link", `<https://api.example.com/orgs/org-a/repos?page=2>; rel="next"`)
			writeJSON(t, w, pageOne)
		case "2":
			writeJSON(t, w, []map[string]any{{
				"name":      "repo-last",
				"full_name": "org-a/repo-last",
				"owner":     map[string]any{"login": "org-a"},
				"archived":  true,
			}})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})
	client, _ := newTestDataClient(t, mux)

	repos, err := client.ListOrgRepos(context.Background(), "org-a")
	if err != nil {
		t.Fatalf("ListOrgRepos: %v", err)
	}
	if len(repos) != 101 {
		t.Fatalf("repos = %d, want 101", len(repos))
	}
	if repos[0].Owner != "org-a" || repos[0].DefaultBranch != "main" {
		t.Fatalf("first repo = %+v", repos[0])
	}
	if !repos[100].Archived {
		t.Fatal("expected the archived flag to survive decoding")
	}
}

func TestListOrgReposEmptyOrgIsError(t *testing.T) {
	t.Parallel()

	client, _ := newTestDataClient(t, http.NewServeMux())
	if _, err := client.ListOrgRepos(context.Background(), "  "); err == nil {
		t.Fatal("expected an error for a blank organization")
	}
}

func TestListOrgReposClassifiesStatuses(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		headers    map[string]string
		wantKind   FailureKind
	}{
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantKind: KindAuth},
		{
			name:       "rate_limited",
			statusCode: http.StatusForbidden,
			headers: map[string]string{
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     "1739836800",
			},
			wantKind: KindRateLimited,
		},
		{name: "missing_org", statusCode: http.StatusNotFound, wantKind: KindNotFound},
		{name: "server_error", statusCode: http.StatusInternalServerError, wantKind: KindTransient},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, _ := newTestDataClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				for key, value := range tc.headers {
					w.Header().Set(key, value)
				}
				w.WriteHeader(tc.statusCode)
			}))
			_, err := client.ListOrgRepos(context.Background(), "org-a")
			if KindOf(err) != tc.wantKind {
				t.Fatalf("kind = %q, want %q (err=%v)", KindOf(err), tc.wantKind, err)
			}
		})
	}
}

func TestListBranchesEmptyRepository(t *testing.T) {
	t.Parallel()

	client, _ := newTestDataClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	branches, err := client.ListBranches(context.Background(), "org-a", "empty-repo")
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if len(branches) != 0 {
		t.Fatalf("branches = %v, want none", branches)
	}
}

func TestListBranchesReturnsNames(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org-a/repo-a/branches", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []map[string]any{{"name": "main"}, {"name": "feature"}})
	})
	client, _ := newTestDataClient(t, mux)

	branches, err := client.ListBranches(context.Background(), "org-a", "repo-a")
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if len(branches) != 2 || branches[0] != "main" || branches[1] != "feature" {
		t.Fatalf("branches = %v", branches)
	}
}

func TestListCommitsWindowDropsBoundaryCommit(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org-a/repo-a/commits", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sha"); got != "main" {
			t.Errorf("sha = %q, want main", got)
		}
		writeJSON(t, w, []map[string]any{
			{
				"sha":    "inside",
				"author": map[string]any{"login": "alice"},
				"commit": map[string]any{"author": map[string]any{
					"date": since.Add(time.Hour).Format(time.RFC3339), "name": "Alice", "email": "alice@example.com",
				}},
			},
			{
				// Authored exactly at until; origin includes it, the window
				// contract excludes it.
				"sha":    "boundary",
				"commit": map[string]any{"author": map[string]any{"date": until.Format(time.RFC3339)}},
			},
		})
	})
	client, _ := newTestDataClient(t, mux)

	commits, err := client.ListCommitsWindow(context.Background(), "org-a", "repo-a", "main", since, until)
	if err != nil {
		t.Fatalf("ListCommitsWindow: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(commits))
	}
	if commits[0].SHA != "inside" || commits[0].Login != "alice" {
		t.Fatalf("commit = %+v", commits[0])
	}
}

func TestListCommitsWindowDropsUndateableCommit(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org-a/repo-a/commits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []map[string]any{
			{
				"sha":    "dated",
				"commit": map[string]any{"author": map[string]any{"date": since.Add(time.Hour).Format(time.RFC3339)}},
			},
			{
				// A commit that cannot be placed in the window must never
				// be counted.
				"sha":    "undateable",
				"commit": map[string]any{"author": map[string]any{"date": "yesterday-ish"}},
			},
		})
	})
	client, _ := newTestDataClient(t, mux)

	commits, err := client.ListCommitsWindow(context.Background(), "org-a", "repo-a", "main", since, until)
	if err != nil {
		t.Fatalf("ListCommitsWindow: %v", err)
	}
	if len(commits) != 1 || commits[0].SHA != "dated" {
		t.Fatalf("commits = %+v, want only the dated commit", commits)
	}
}

func TestListCommitsWindowAbsentBranchIsEmpty(t *testing.T) {
	t.Parallel()

	for _, statusCode := range []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity} {
		statusCode := statusCode
		t.Run(http.StatusText(statusCode), func(t *testing.T) {
			t.Parallel()

			client, _ := newTestDataClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(statusCode)
			}))
			commits, err := client.ListCommitsWindow(context.Background(), "org-a", "repo-a", "gone", time.Time{}, time.Time{})
			if err != nil {
				t.Fatalf("ListCommitsWindow: %v", err)
			}
			if len(commits) != 0 {
				t.Fatalf("commits = %v, want none", commits)
			}
		})
	}
}

func TestListCommitsWindowRejectsInvertedWindow(t *testing.T) {
	t.Parallel()

	client, _ := newTestDataClient(t, http.NewServeMux())
	now := time.Now()
	if _, err := client.ListCommitsWindow(context.Background(), "org-a", "repo-a", "", now, now.Add(-time.Hour)); err == nil {
		t.Fatal("expected an error for until before since")
	}
}

func TestGetCommitStats(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org-a/repo-a/commits/abc123", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"sha":   "abc123",
			"stats": map[string]any{"additions": 12, "deletions": 4},
		})
	})
	client, _ := newTestDataClient(t, mux)

	stats, err := client.GetCommitStats(context.Background(), "org-a", "repo-a", "abc123")
	if err != nil {
		t.Fatalf("GetCommitStats: %v", err)
	}
	if stats.Additions != 12 || stats.Deletions != 4 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestGetCommitStatsAbsorbsNonFatalFailures(t *testing.T) {
	t.Parallel()

	client, _ := newTestDataClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	stats, err := client.GetCommitStats(context.Background(), "org-a", "repo-a", "gone")
	if err != nil {
		t.Fatalf("GetCommitStats: %v", err)
	}
	if stats != (CommitStats{}) {
		t.Fatalf("stats = %+v, want zero", stats)
	}
}

func TestGetCommitStatsPropagatesFatalFailures(t *testing.T) {
	t.Parallel()

	client, _ := newTestDataClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	_, err := client.GetCommitStats(context.Background(), "org-a", "repo-a", "abc123")
	if KindOf(err) != KindAuth {
		t.Fatalf("kind = %q, want auth (err=%v)", KindOf(err), err)
	}
}

func TestListContributors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org-a/repo-a/contributors", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"login": "alice", "contributions": 40},
			{"login": "bob", "contributions": 2},
		})
	})
	client, _ := newTestDataClient(t, mux)

	contributors, err := client.ListContributors(context.Background(), "org-a", "repo-a")
	if err != nil {
		t.Fatalf("ListContributors: %v", err)
	}
	if len(contributors) != 2 || contributors[0].Login != "alice" || contributors[1].Contributions != 2 {
		t.Fatalf("contributors = %+v", contributors)
	}
}

func TestListContributorsAbsorbsNonFatalFailures(t *testing.T) {
	t.Parallel()

	client, _ := newTestDataClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	contributors, err := client.ListContributors(context.Background(), "org-a", "repo-a")
	if err != nil {
		t.Fatalf("ListContributors: %v", err)
	}
	if contributors != nil {
		t.Fatalf("contributors = %v, want nil", contributors)
	}
}

func TestHasNextPage(t *testing.T) {
	t.Parallel()

	if !hasNextPage(`<https://api.example.com/x?page=2>; rel="next", <https://api.example.com/x?page=9>; rel="last"`) {
		t.Error("expected rel=next to be detected")
	}
	if hasNextPage(`<https://api.example.com/x?page=9>; rel="last"`) {
		t.Error("rel=last alone must not signal another page")
	}
	if hasNextPage("") {
		t.Error("empty header must not signal another page")
	}
}
