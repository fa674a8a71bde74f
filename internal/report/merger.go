package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cam3ron2/devboard/internal/githubapi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 5

// MergerConfig configures cross-repository aggregation scope and limits.
type MergerConfig struct {
	// Org scopes auto-discovery to one organization. Empty means
	// account-wide scope.
	Org string
	// Repos is an explicit "owner/name" scope. Empty enables auto-discovery.
	Repos []string
	// Concurrency bounds parallel per-repository aggregation.
	Concurrency int
	Now         func() time.Time
}

// Merger runs the commit aggregator over a repository scope and merges the
// per-author accumulators.
type Merger struct {
	client OriginClient
	logger *zap.Logger
	cfg    MergerConfig
}

// NewMerger creates a merger over the origin client.
func NewMerger(client OriginClient, logger *zap.Logger, cfg MergerConfig) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Merger{
		client: client,
		logger: logger,
		cfg:    cfg,
	}
}

// AggregateStats produces the merged report for the configured scope,
// scanning each repository's default branch.
func (m *Merger) AggregateStats(ctx context.Context, period Period, anchor time.Time) (*AggregatedReport, error) {
	repos, err := m.resolveScope(ctx)
	if err != nil {
		return nil, err
	}
	return m.run(ctx, repos, DefaultBranchOnly, period, anchor)
}

// AggregateRepo produces a deep report for one repository, scanning all of
// its branches.
func (m *Merger) AggregateRepo(ctx context.Context, fullName string, period Period, anchor time.Time) (*AggregatedReport, error) {
	repo, err := parseFullName(fullName)
	if err != nil {
		return nil, err
	}
	return m.run(ctx, []githubapi.Repository{repo}, AllBranches, period, anchor)
}

type repoOutcome struct {
	fullName     string
	contributors []githubapi.Contributor
	result       RepositoryWindowResult
}

func (m *Merger) run(ctx context.Context, repos []githubapi.Repository, mode BranchMode, period Period, anchor time.Time) (*AggregatedReport, error) {
	if anchor.IsZero() {
		anchor = m.cfg.Now()
	}
	window := WindowFor(period, anchor)
	aggregator := NewAggregator(m.client, m.logger, mode)

	outcomes := make([]repoOutcome, len(repos))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.cfg.Concurrency)
	for i, repo := range repos {
		group.Go(func() error {
			outcome, err := m.aggregateOne(groupCtx, aggregator, repo, window)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	report := &AggregatedReport{
		Period:            period,
		Date:              anchor.UTC().Format(DateFormat),
		Aggregated:        make(map[string]AuthorStats),
		ByRepo:            make(map[string]RepositoryWindowResult, len(outcomes)),
		TotalRepositories: len(outcomes),
		GeneratedAt:       m.cfg.Now().UTC(),
	}

	roster := make(map[string]struct{})
	for _, outcome := range outcomes {
		for _, contributor := range outcome.contributors {
			login := strings.TrimSpace(contributor.Login)
			if login == "" {
				continue
			}
			roster[login] = struct{}{}
		}
	}
	// Every roster member gets a zeroed record so zero-activity contributors
	// stay present in the output.
	for login := range roster {
		report.Aggregated[login] = AuthorStats{Identity: login}
	}

	for _, outcome := range outcomes {
		report.ByRepo[outcome.fullName] = outcome.result
		for identity, stats := range outcome.result {
			merged := report.Aggregated[identity]
			merged.Identity = identity
			mergeAuthorStats(&merged, stats)
			report.Aggregated[identity] = merged
		}
	}

	report.AllContributors = make([]string, 0, len(roster))
	for login := range roster {
		report.AllContributors = append(report.AllContributors, login)
	}
	sort.Strings(report.AllContributors)
	report.TotalDevelopers = len(report.Aggregated)

	return report, nil
}

// aggregateOne isolates a single repository's failure: only fatal error kinds
// escape; everything else records an empty result so the run proceeds.
func (m *Merger) aggregateOne(ctx context.Context, aggregator *Aggregator, repo githubapi.Repository, window Window) (repoOutcome, error) {
	outcome := repoOutcome{
		fullName: repo.FullName,
		result:   RepositoryWindowResult{},
	}

	contributors, err := m.client.ListContributors(ctx, repo.Owner, repo.Name)
	if err != nil {
		if githubapi.IsFatal(err) {
			return repoOutcome{}, err
		}
		m.logger.Warn("contributor roster unavailable",
			zap.String("repo", repo.FullName),
			zap.Error(err),
		)
	}
	outcome.contributors = contributors

	result, err := aggregator.Aggregate(ctx, repo, window)
	if err != nil {
		if githubapi.IsFatal(err) {
			return repoOutcome{}, err
		}
		m.logger.Warn("repository aggregation skipped",
			zap.String("repo", repo.FullName),
			zap.Error(err),
		)
		return outcome, nil
	}
	outcome.result = result
	return outcome, nil
}

// resolveScope resolves the repository set: the explicit configured list, an
// organization listing, or the viewer's repositories filtered by owner when
// the organization listing is denied or absent.
func (m *Merger) resolveScope(ctx context.Context) ([]githubapi.Repository, error) {
	if len(m.cfg.Repos) > 0 {
		repos := make([]githubapi.Repository, 0, len(m.cfg.Repos))
		for _, fullName := range m.cfg.Repos {
			repo, err := parseFullName(fullName)
			if err != nil {
				return nil, err
			}
			repos = append(repos, repo)
		}
		return repos, nil
	}

	org := strings.TrimSpace(m.cfg.Org)
	if org == "" {
		return m.client.ListUserRepos(ctx)
	}

	repos, err := m.client.ListOrgRepos(ctx, org)
	if err == nil {
		return repos, nil
	}
	if githubapi.KindOf(err) != githubapi.KindNotFound {
		return nil, err
	}

	m.logger.Info("organization listing unavailable, falling back to user scope",
		zap.String("org", org),
	)
	userRepos, err := m.client.ListUserRepos(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]githubapi.Repository, 0, len(userRepos))
	for _, repo := range userRepos {
		if strings.EqualFold(repo.Owner, org) {
			matched = append(matched, repo)
		}
	}
	return matched, nil
}

func parseFullName(fullName string) (githubapi.Repository, error) {
	trimmed := strings.TrimSpace(fullName)
	owner, name, found := strings.Cut(trimmed, "/")
	if !found || owner == "" || name == "" {
		return githubapi.Repository{}, fmt.Errorf("repository %q must be owner/name", fullName)
	}
	return githubapi.Repository{
		Owner:    owner,
		Name:     name,
		FullName: owner + "/" + name,
	}, nil
}
