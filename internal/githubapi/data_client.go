package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIBaseURL = "https://api.github.com/"
	pageSize          = 100
)

// Repository is one repository visible to the authenticated token.
type Repository struct {
	Name          string
	FullName      string
	Owner         string
	DefaultBranch string
	Archived      bool
	Fork          bool
}

// Commit is one commit summary from the branch commit list.
type Commit struct {
	SHA         string
	Login       string
	AuthorName  string
	AuthorEmail string
	AuthoredAt  time.Time
}

// CommitStats is the line-change summary for one commit.
type CommitStats struct {
	Additions int
	Deletions int
}

// Contributor is one entry from the repository contributor roster.
type Contributor struct {
	Login         string
	Contributions int
}

// DataClient is a typed origin REST client for report-relevant endpoints.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
}

// NewDataClient creates a typed data client over the generic retry/rate-limit
// request client.
func NewDataClient(baseURL string, requestClient *Client) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
	}, nil
}

// ListOrgRepos lists repositories in one organization. Zero accessible
// repositories is a valid empty result, not an error.
func (c *DataClient) ListOrgRepos(ctx context.Context, org string) ([]Repository, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return nil, fmt.Errorf("organization is required")
	}
	return c.listRepos(ctx, "list_org_repos", "orgs", trimmedOrg, "repos")
}

// ListUserRepos lists repositories visible to the authenticated user. Used as
// the fallback when organization-scoped listing is denied or absent.
func (c *DataClient) ListUserRepos(ctx context.Context) ([]Repository, error) {
	return c.listRepos(ctx, "list_user_repos", "user", "repos")
}

func (c *DataClient) listRepos(ctx context.Context, op string, segments ...string) ([]Repository, error) {
	var repos []Repository
	page := 1
	for {
		reqURL := c.cloneBaseURL()
		reqURL.Path = joinPath(reqURL.Path, escapeAll(segments)...)
		query := reqURL.Query()
		query.Set("per_page", strconv.Itoa(pageSize))
		query.Set("page", strconv.Itoa(page))
		query.Set("type", "all")
		reqURL.RawQuery = query.Encode()

		resp, err := c.get(ctx, op, reqURL)
		if err != nil {
			return nil, err
		}
		if apiErr := c.checkStatus(op, resp); apiErr != nil {
			_ = resp.Body.Close()
			return nil, apiErr
		}

		var payload []repositoryPayload
		if err := decodeAndClose(resp, &payload); err != nil {
			return nil, transientError(op, err)
		}

		for _, repo := range payload {
			typed := Repository{
				Name:          repo.Name,
				FullName:      repo.FullName,
				DefaultBranch: repo.DefaultBranch,
				Archived:      repo.Archived,
				Fork:          repo.Fork,
			}
			if repo.Owner != nil {
				typed.Owner = repo.Owner.Login
			}
			repos = append(repos, typed)
		}

		if len(payload) < pageSize || !hasNextPage(resp.Header.Get("Link")) {
			break
		}
		page++
	}
	return repos, nil
}

// ListBranches lists branch names for one repository. An empty repository
// (origin signals 409) yields zero branches, not a failure.
func (c *DataClient) ListBranches(ctx context.Context, owner, repo string) ([]string, error) {
	const op = "list_branches"
	if err := requireOwnerRepo(owner, repo); err != nil {
		return nil, err
	}

	var branches []string
	page := 1
	for {
		reqURL := c.cloneBaseURL()
		reqURL.Path = joinPath(c.baseURL.Path, "repos", url.PathEscape(strings.TrimSpace(owner)), url.PathEscape(strings.TrimSpace(repo)), "branches")
		query := reqURL.Query()
		query.Set("per_page", strconv.Itoa(pageSize))
		query.Set("page", strconv.Itoa(page))
		reqURL.RawQuery = query.Encode()

		resp, err := c.get(ctx, op, reqURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusConflict {
			_ = resp.Body.Close()
			return nil, nil
		}
		if apiErr := c.checkStatus(op, resp); apiErr != nil {
			_ = resp.Body.Close()
			return nil, apiErr
		}

		var payload []branchPayload
		if err := decodeAndClose(resp, &payload); err != nil {
			return nil, transientError(op, err)
		}
		for _, branch := range payload {
			branches = append(branches, branch.Name)
		}

		if len(payload) < pageSize || !hasNextPage(resp.Header.Get("Link")) {
			break
		}
		page++
	}
	return branches, nil
}

// ListCommitsWindow lists commits reachable from branch authored within
// [since, until). An absent or inaccessible branch yields an empty sequence.
func (c *DataClient) ListCommitsWindow(ctx context.Context, owner, repo, branch string, since, until time.Time) ([]Commit, error) {
	const op = "list_commits"
	if err := requireOwnerRepo(owner, repo); err != nil {
		return nil, err
	}
	if !until.IsZero() && !since.IsZero() && until.Before(since) {
		return nil, fmt.Errorf("until must not be before since")
	}

	var commits []Commit
	page := 1
	for {
		reqURL := c.cloneBaseURL()
		reqURL.Path = joinPath(c.baseURL.Path, "repos", url.PathEscape(strings.TrimSpace(owner)), url.PathEscape(strings.TrimSpace(repo)), "commits")
		query := reqURL.Query()
		query.Set("per_page", strconv.Itoa(pageSize))
		query.Set("page", strconv.Itoa(page))
		if strings.TrimSpace(branch) != "" {
			query.Set("sha", strings.TrimSpace(branch))
		}
		if !since.IsZero() {
			query.Set("since", since.UTC().Format(time.RFC3339))
		}
		if !until.IsZero() {
			query.Set("until", until.UTC().Format(time.RFC3339))
		}
		reqURL.RawQuery = query.Encode()

		resp, err := c.get(ctx, op, reqURL)
		if err != nil {
			return nil, err
		}
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
			_ = resp.Body.Close()
			return nil, nil
		}
		if apiErr := c.checkStatus(op, resp); apiErr != nil {
			_ = resp.Body.Close()
			return nil, apiErr
		}

		var payload []commitListPayload
		if err := decodeAndClose(resp, &payload); err != nil {
			return nil, transientError(op, err)
		}

		for _, commit := range payload {
			typed := Commit{
				SHA:         commit.SHA,
				AuthorName:  commit.Commit.Author.Name,
				AuthorEmail: commit.Commit.Author.Email,
				AuthoredAt:  parseRFC3339(commit.Commit.Author.Date),
			}
			if commit.Author != nil {
				typed.Login = commit.Author.Login
			}
			// Origin treats until as inclusive; the window contract is
			// half-open, so the boundary commit is dropped here. A commit
			// without a parseable author date cannot be placed in any
			// window and is dropped too.
			if typed.AuthoredAt.IsZero() {
				continue
			}
			if !since.IsZero() && typed.AuthoredAt.Before(since) {
				continue
			}
			if !until.IsZero() && !typed.AuthoredAt.Before(until) {
				continue
			}
			commits = append(commits, typed)
		}

		if len(payload) < pageSize || !hasNextPage(resp.Header.Get("Link")) {
			break
		}
		page++
	}
	return commits, nil
}

// GetCommitStats reads additions/deletions for one commit. A single
// unreadable commit contributes zero stats instead of failing the report;
// only auth and exhausted-budget failures propagate.
func (c *DataClient) GetCommitStats(ctx context.Context, owner, repo, sha string) (CommitStats, error) {
	const op = "get_commit_stats"
	if err := requireOwnerRepo(owner, repo); err != nil {
		return CommitStats{}, err
	}
	if strings.TrimSpace(sha) == "" {
		return CommitStats{}, fmt.Errorf("sha is required")
	}

	reqURL := c.cloneBaseURL()
	reqURL.Path = joinPath(c.baseURL.Path, "repos", url.PathEscape(strings.TrimSpace(owner)), url.PathEscape(strings.TrimSpace(repo)), "commits", url.PathEscape(strings.TrimSpace(sha)))

	resp, err := c.get(ctx, op, reqURL)
	if err != nil {
		if IsFatal(err) {
			return CommitStats{}, err
		}
		return CommitStats{}, nil
	}
	if apiErr := c.checkStatus(op, resp); apiErr != nil {
		_ = resp.Body.Close()
		if IsFatal(apiErr) {
			return CommitStats{}, apiErr
		}
		return CommitStats{}, nil
	}

	var payload commitDetailPayload
	if err := decodeAndClose(resp, &payload); err != nil {
		return CommitStats{}, nil
	}
	return CommitStats{
		Additions: payload.Stats.Additions,
		Deletions: payload.Stats.Deletions,
	}, nil
}

// ListContributors lists the contributor roster for one repository. Non-fatal
// failures yield an empty roster.
func (c *DataClient) ListContributors(ctx context.Context, owner, repo string) ([]Contributor, error) {
	const op = "list_contributors"
	if err := requireOwnerRepo(owner, repo); err != nil {
		return nil, err
	}

	var contributors []Contributor
	page := 1
	for {
		reqURL := c.cloneBaseURL()
		reqURL.Path = joinPath(c.baseURL.Path, "repos", url.PathEscape(strings.TrimSpace(owner)), url.PathEscape(strings.TrimSpace(repo)), "contributors")
		query := reqURL.Query()
		query.Set("per_page", strconv.Itoa(pageSize))
		query.Set("page", strconv.Itoa(page))
		reqURL.RawQuery = query.Encode()

		resp, err := c.get(ctx, op, reqURL)
		if err != nil {
			if IsFatal(err) {
				return nil, err
			}
			return nil, nil
		}
		if apiErr := c.checkStatus(op, resp); apiErr != nil {
			_ = resp.Body.Close()
			if IsFatal(apiErr) {
				return nil, apiErr
			}
			return nil, nil
		}

		var payload []contributorPayload
		if err := decodeAndClose(resp, &payload); err != nil {
			return nil, nil
		}
		for _, contributor := range payload {
			contributors = append(contributors, Contributor{
				Login:         contributor.Login,
				Contributions: contributor.Contributions,
			})
		}

		if len(payload) < pageSize || !hasNextPage(resp.Header.Get("Link")) {
			break
		}
		page++
	}
	return contributors, nil
}

func (c *DataClient) get(ctx context.Context, op string, reqURL *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}

	resp, _, err := c.requestClient.Do(req)
	if err != nil {
		return nil, transientError(op, err)
	}
	if resp == nil {
		return nil, transientError(op, fmt.Errorf("nil response"))
	}
	return resp, nil
}

func (c *DataClient) checkStatus(op string, resp *http.Response) *APIError {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	return classifyStatus(op, resp.StatusCode, ParseRateInfo(resp.Header, resp.StatusCode))
}

func requireOwnerRepo(owner, repo string) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner is required")
	}
	if strings.TrimSpace(repo) == "" {
		return fmt.Errorf("repo is required")
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

func joinPath(base string, segments ...string) string {
	builder := strings.Builder{}
	builder.WriteString(strings.TrimSuffix(base, "/"))
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func escapeAll(segments []string) []string {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return escaped
}

func decodeAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

func hasNextPage(linkHeader string) bool {
	if strings.TrimSpace(linkHeader) == "" {
		return false
	}
	for _, part := range strings.Split(linkHeader, ",") {
		if strings.Contains(part, `rel="next"`) {
			return true
		}
	}
	return false
}

func parseRFC3339(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

type repositoryPayload struct {
	Name          string       `json:"name"`
	FullName      string       `json:"full_name"`
	Owner         *userPayload `json:"owner"`
	DefaultBranch string       `json:"default_branch"`
	Archived      bool         `json:"archived"`
	Fork          bool         `json:"fork"`
}

type branchPayload struct {
	Name string `json:"name"`
}

type commitListPayload struct {
	SHA    string       `json:"sha"`
	Author *userPayload `json:"author"`
	Commit struct {
		Author struct {
			Date  string `json:"date"`
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commit"`
}

type commitDetailPayload struct {
	SHA   string `json:"sha"`
	Stats struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats"`
}

type contributorPayload struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
}

type userPayload struct {
	Login string `json:"login"`
}
