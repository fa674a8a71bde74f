package githubapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cam3ron2/devboard/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// RetryConfig configures request retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMeta reports execution metadata for one client call.
type CallMeta struct {
	Attempts    int
	LastRate    RateInfo
	LastVerdict Verdict
}

// Client wraps origin HTTP requests with retry, pacing and rate-limit controls.
type Client struct {
	doer    HTTPDoer
	retry   RetryConfig
	pacing  PacingPolicy
	limiter *rate.Limiter
	// Sleep is injected for testability.
	Sleep func(time.Duration)
}

// NewClient creates an origin API client wrapper. requestsPerSecond <= 0
// disables the local pacing limiter.
func NewClient(doer HTTPDoer, retry RetryConfig, pacing PacingPolicy, requestsPerSecond float64) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Client{
		doer:    doer,
		retry:   retry,
		pacing:  pacing,
		limiter: limiter,
		Sleep:   time.Sleep,
	}
}

// Do executes one request with retry and rate-limit awareness.
func (c *Client) Do(req *http.Request) (*http.Response, CallMeta, error) {
	if req == nil {
		return nil, CallMeta{}, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("devboard/internal/githubapi").Start(
			ctx,
			"githubapi.client.do",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.path", req.URL.EscapedPath()),
			),
		)
		defer span.End()
	}

	meta := CallMeta{}
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		meta.Attempts = attempt

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, meta, fmt.Errorf("pacing limiter: %w", err)
			}
		}

		resp, err := c.doer.Do(req.Clone(ctx))
		if err != nil {
			if span != nil {
				span.RecordError(err)
			}
			if attempt == c.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, err.Error())
				}
				return nil, meta, err
			}
			c.Sleep(retryBackoff(c.retry, attempt))
			continue
		}

		info := ParseRateInfo(resp.Header, resp.StatusCode)
		meta.LastRate = info
		verdict := c.pacing.Evaluate(info)
		meta.LastVerdict = verdict

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", info.Remaining),
			))
		}

		if !verdict.Proceed {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			if attempt == c.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, "rate-limited")
				}
				return resp, meta, nil
			}
			c.Sleep(verdict.Pause)
			continue
		}

		if retryableStatus(resp.StatusCode) && attempt < c.retry.MaxAttempts {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			c.Sleep(retryBackoff(c.retry, attempt))
			continue
		}

		if span != nil {
			span.SetStatus(codes.Ok, "request completed")
		}
		return resp, meta, nil
	}

	return nil, meta, fmt.Errorf("request attempts exhausted")
}

func retryableStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func retryBackoff(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
