package report

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cam3ron2/devboard/internal/githubapi"
	"go.uber.org/zap"
)

// BranchMode selects the branch set scanned per repository.
type BranchMode int

const (
	// DefaultBranchOnly scans only the default branch. Used for
	// multi-repository breadth reports, for cost control.
	DefaultBranchOnly BranchMode = iota
	// AllBranches scans every branch. Used for single-repository deep
	// reports.
	AllBranches
)

// OriginClient is the typed origin interface consumed by aggregation.
type OriginClient interface {
	ListOrgRepos(ctx context.Context, org string) ([]githubapi.Repository, error)
	ListUserRepos(ctx context.Context) ([]githubapi.Repository, error)
	ListBranches(ctx context.Context, owner, repo string) ([]string, error)
	ListCommitsWindow(ctx context.Context, owner, repo, branch string, since, until time.Time) ([]githubapi.Commit, error)
	GetCommitStats(ctx context.Context, owner, repo, sha string) (githubapi.CommitStats, error)
	ListContributors(ctx context.Context, owner, repo string) ([]githubapi.Contributor, error)
}

// Aggregator computes per-author stats for one repository and window.
type Aggregator struct {
	client OriginClient
	logger *zap.Logger
	mode   BranchMode
}

// NewAggregator creates an aggregator over the origin client.
func NewAggregator(client OriginClient, logger *zap.Logger, mode BranchMode) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		client: client,
		logger: logger,
		mode:   mode,
	}
}

// Aggregate walks the repository's branch set for the window, deduplicates
// commits across branches by SHA and folds per-commit stats into a per-author
// accumulator. A window with zero commits or a repository with zero branches
// yields an empty result, not an error.
func (a *Aggregator) Aggregate(ctx context.Context, repo githubapi.Repository, window Window) (RepositoryWindowResult, error) {
	branches, err := a.branchSet(ctx, repo)
	if err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return RepositoryWindowResult{}, nil
	}

	// A commit reachable from several branches must be counted exactly once.
	unique := make(map[string]githubapi.Commit)
	for _, branch := range branches {
		commits, err := a.client.ListCommitsWindow(ctx, repo.Owner, repo.Name, branch, window.Since, window.Until)
		if err != nil {
			if githubapi.IsFatal(err) {
				return nil, err
			}
			a.logger.Warn("branch commit listing skipped",
				zap.String("repo", repo.FullName),
				zap.String("branch", branch),
				zap.Error(err),
			)
			continue
		}
		for _, commit := range commits {
			if commit.SHA == "" {
				continue
			}
			if _, seen := unique[commit.SHA]; !seen {
				unique[commit.SHA] = commit
			}
		}
	}

	// Fold in sorted SHA order so last-write-wins metadata fields are
	// stable between runs.
	shas := make([]string, 0, len(unique))
	for sha := range unique {
		shas = append(shas, sha)
	}
	sort.Strings(shas)

	result := RepositoryWindowResult{}
	for _, sha := range shas {
		commit := unique[sha]
		stats, err := a.client.GetCommitStats(ctx, repo.Owner, repo.Name, sha)
		if err != nil {
			return nil, err
		}

		identity := resolveIdentity(commit)
		entry := result[identity]
		entry.Identity = identity
		entry.CommitCount++
		entry.Additions += stats.Additions
		entry.Deletions += stats.Deletions
		if commit.AuthorName != "" {
			entry.Name = commit.AuthorName
		}
		if commit.AuthorEmail != "" {
			entry.Email = commit.AuthorEmail
		}
		entry.TouchRepository(repo.FullName)
		result[identity] = entry
	}
	return result, nil
}

func (a *Aggregator) branchSet(ctx context.Context, repo githubapi.Repository) ([]string, error) {
	if a.mode == DefaultBranchOnly {
		// An empty branch name makes the origin use the repository default.
		return []string{repo.DefaultBranch}, nil
	}
	return a.client.ListBranches(ctx, repo.Owner, repo.Name)
}

// resolveIdentity prefers the platform login; commits by authors without a
// platform account fall back to the raw display name. Distinct unregistered
// authors sharing a display name collide into one identity.
func resolveIdentity(commit githubapi.Commit) string {
	if login := strings.TrimSpace(commit.Login); login != "" {
		return login
	}
	if name := strings.TrimSpace(commit.AuthorName); name != "" {
		return name
	}
	return "unknown"
}
