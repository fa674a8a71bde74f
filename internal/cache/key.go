package cache

import (
	"strings"
	"time"

	"github.com/cam3ron2/devboard/internal/report"
)

// Scope distinguishes multi-repository breadth reports from single-repository
// deep reports.
type Scope string

const (
	// ScopeMulti covers the whole configured repository set.
	ScopeMulti Scope = "multi"
	// ScopeSingle covers one repository scanned across all branches.
	ScopeSingle Scope = "single"
)

// Key identifies one cached report deterministically.
type Key struct {
	Scope  Scope
	Period report.Period
	Date   string
	// Repo is the owner/name for single scope, blank for multi.
	Repo string
}

// MultiKey builds the cache key for a breadth report.
func MultiKey(period report.Period, anchor time.Time) Key {
	return Key{
		Scope:  ScopeMulti,
		Period: period,
		Date:   anchor.UTC().Format(report.DateFormat),
	}
}

// SingleKey builds the cache key for a deep report on one repository.
func SingleKey(repo string, period report.Period, anchor time.Time) Key {
	return Key{
		Scope:  ScopeSingle,
		Period: period,
		Date:   anchor.UTC().Format(report.DateFormat),
		Repo:   strings.TrimSpace(repo),
	}
}

// String renders the deterministic key form used by both cache tiers and the
// single-flight group.
func (k Key) String() string {
	return string(k.Scope) + "|" + string(k.Period) + "|" + k.Date + "|" + k.Repo
}
