package githubapi

import (
	"net/http"
	"strconv"
	"time"
)

// RateInfo contains parsed GitHub rate-limit response headers.
type RateInfo struct {
	Remaining        int
	ResetUnix        int64
	RetryAfter       time.Duration
	SecondaryLimited bool
}

// PacingPolicy decides whether calls may continue against the remaining budget.
type PacingPolicy struct {
	MinRemaining          int
	ResetBuffer           time.Duration
	SecondaryLimitBackoff time.Duration
	Now                   func() time.Time
}

// Verdict is one pacing decision.
type Verdict struct {
	Proceed bool
	Pause   time.Duration
	Reason  string
}

// ParseRateInfo parses rate-limit and retry headers from one response.
func ParseRateInfo(header http.Header, statusCode int) RateInfo {
	info := RateInfo{
		Remaining: headerInt(header, "X-RateLimit-Remaining"),
		ResetUnix: headerInt64(header, "X-RateLimit-Reset"),
	}

	if seconds := headerInt(header, "Retry-After"); seconds > 0 {
		info.RetryAfter = time.Duration(seconds) * time.Second
	}
	if statusCode == http.StatusTooManyRequests {
		info.SecondaryLimited = true
	}
	if statusCode == http.StatusForbidden && info.RetryAfter > 0 {
		info.SecondaryLimited = true
	}
	return info
}

// Evaluate decides whether the caller may continue issuing requests.
func (p PacingPolicy) Evaluate(info RateInfo) Verdict {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if info.SecondaryLimited {
		pause := p.SecondaryLimitBackoff
		if info.RetryAfter > pause {
			pause = info.RetryAfter
		}
		return Verdict{Proceed: false, Pause: pause, Reason: "secondary_limit"}
	}

	if info.Remaining >= p.MinRemaining {
		return Verdict{Proceed: true, Reason: "within_budget"}
	}

	resetAt := time.Unix(info.ResetUnix, 0)
	if !resetAt.After(now) {
		return Verdict{Proceed: true, Reason: "reset_elapsed"}
	}
	return Verdict{
		Proceed: false,
		Pause:   resetAt.Sub(now) + p.ResetBuffer,
		Reason:  "remaining_below_threshold",
	}
}

func headerInt(header http.Header, key string) int {
	parsed, err := strconv.Atoi(header.Get(key))
	if err != nil {
		return 0
	}
	return parsed
}

func headerInt64(header http.Header, key string) int64 {
	parsed, err := strconv.ParseInt(header.Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
