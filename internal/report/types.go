package report

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Period is the reporting window kind.
type Period string

const (
	// PeriodDaily covers the anchor day.
	PeriodDaily Period = "daily"
	// PeriodWeekly covers the seven days up to and including the anchor day.
	PeriodWeekly Period = "weekly"
	// PeriodMonthly covers the thirty days up to and including the anchor day.
	PeriodMonthly Period = "monthly"
)

// Periods lists all supported periods in reconciliation order.
func Periods() []Period {
	return []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}
}

// ParsePeriod parses a period name.
func ParsePeriod(raw string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PeriodDaily), "":
		return PeriodDaily, nil
	case string(PeriodWeekly):
		return PeriodWeekly, nil
	case string(PeriodMonthly):
		return PeriodMonthly, nil
	default:
		return "", fmt.Errorf("unknown period %q", raw)
	}
}

// Window is a half-open [Since, Until) date range. All periods use the same
// endpoint convention: Until is always exclusive.
type Window struct {
	Since time.Time
	Until time.Time
}

// WindowFor derives the report window for one period anchored at a date.
func WindowFor(period Period, anchor time.Time) Window {
	anchor = anchor.UTC()
	midnight := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := midnight.Add(24 * time.Hour)

	switch period {
	case PeriodWeekly:
		return Window{Since: midnight.Add(-7 * 24 * time.Hour), Until: dayEnd}
	case PeriodMonthly:
		return Window{Since: midnight.Add(-30 * 24 * time.Hour), Until: dayEnd}
	default:
		return Window{Since: midnight, Until: dayEnd}
	}
}

// AuthorStats accumulates one author's activity within a window scope.
// Net lines are always recomputed from additions and deletions.
type AuthorStats struct {
	Identity     string   `json:"identity"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	CommitCount  int      `json:"commits"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`
	Repositories []string `json:"repositories,omitempty"`
}

// NetLines is additions minus deletions; it may be negative.
func (s AuthorStats) NetLines() int {
	return s.Additions - s.Deletions
}

// MarshalJSON emits the computed net-lines value alongside the stored fields.
func (s AuthorStats) MarshalJSON() ([]byte, error) {
	type alias AuthorStats
	return json.Marshal(struct {
		alias
		NetLines int `json:"netLines"`
	}{alias: alias(s), NetLines: s.NetLines()})
}

// UnmarshalJSON drops any persisted net-lines value so it can never drift.
func (s *AuthorStats) UnmarshalJSON(data []byte) error {
	type alias AuthorStats
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*s = AuthorStats(decoded)
	return nil
}

// TouchRepository records repo membership, keeping the set sorted and unique.
func (s *AuthorStats) TouchRepository(repo string) {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return
	}
	index, found := slices.BinarySearch(s.Repositories, repo)
	if found {
		return
	}
	s.Repositories = slices.Insert(s.Repositories, index, repo)
}

// RepositoryWindowResult maps author identity to stats for one repository and
// one window. It is owned by the aggregator while computing and handed to the
// merger by value.
type RepositoryWindowResult map[string]AuthorStats

// AggregatedReport is the top-level artifact for one period and anchor date.
// It is immutable once returned; cache writes always store a new instance.
type AggregatedReport struct {
	Period            Period                            `json:"period"`
	Date              string                            `json:"date"`
	Aggregated        map[string]AuthorStats            `json:"aggregated"`
	ByRepo            map[string]RepositoryWindowResult `json:"byRepo"`
	AllContributors   []string                          `json:"allContributors"`
	TotalDevelopers   int                               `json:"totalDevelopers"`
	TotalRepositories int                               `json:"totalRepositories"`
	GeneratedAt       time.Time                         `json:"generatedAt"`
}

// DateFormat is the anchor-date layout used in report artifacts and snapshot
// file names.
const DateFormat = "2006-01-02"

func mergeAuthorStats(into *AuthorStats, from AuthorStats) {
	into.CommitCount += from.CommitCount
	into.Additions += from.Additions
	into.Deletions += from.Deletions
	if into.Name == "" && from.Name != "" {
		into.Name = from.Name
	}
	if into.Email == "" && from.Email != "" {
		into.Email = from.Email
	}
	for _, repo := range from.Repositories {
		into.TouchRepository(repo)
	}
}
