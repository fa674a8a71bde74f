package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// TokenAuthConfig configures personal-access-token authentication.
type TokenAuthConfig struct {
	Token         string
	Timeout       time.Duration
	BaseTransport http.RoundTripper
}

// InstallationAuthConfig configures GitHub App installation authentication.
type InstallationAuthConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	Timeout        time.Duration
	BaseTransport  http.RoundTripper
}

// NewTokenHTTPClient creates an HTTP client that sends a bearer token.
func NewTokenHTTPClient(cfg TokenAuthConfig) (*http.Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: source,
			Base:   baseTransport,
		},
		Timeout: cfg.Timeout,
	}, nil
}

// NewInstallationHTTPClient creates an authenticated HTTP client for one
// GitHub App installation.
func NewInstallationHTTPClient(cfg InstallationAuthConfig) (*http.Client, error) {
	if cfg.AppID <= 0 {
		return nil, fmt.Errorf("app id must be > 0")
	}
	if cfg.InstallationID <= 0 {
		return nil, fmt.Errorf("installation id must be > 0")
	}
	if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	baseTransport := cfg.BaseTransport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	transport, err := ghinstallation.NewKeyFromFile(baseTransport, cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}

// RateBudget is the remaining request budget for the authenticated token.
type RateBudget struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// FetchRateBudget reads the core rate-limit budget from the dedicated
// endpoint via the go-github client.
func FetchRateBudget(ctx context.Context, httpClient *http.Client, apiBaseURL string) (RateBudget, error) {
	client := github.NewClient(httpClient)
	trimmedBaseURL := strings.TrimSpace(apiBaseURL)
	if trimmedBaseURL != "" {
		parsedURL, err := url.Parse(trimmedBaseURL)
		if err != nil {
			return RateBudget{}, fmt.Errorf("parse github api base url: %w", err)
		}
		if parsedURL.Scheme == "" || parsedURL.Host == "" {
			return RateBudget{}, fmt.Errorf("parse github api base url: missing scheme or host")
		}
		if !strings.HasSuffix(parsedURL.Path, "/") {
			parsedURL.Path += "/"
		}
		client.BaseURL = parsedURL
	}

	limits, resp, err := client.RateLimit.Get(ctx)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return RateBudget{}, &APIError{Kind: KindAuth, Op: "rate_budget", Status: resp.StatusCode, Err: err}
		}
		return RateBudget{}, transientError("rate_budget", err)
	}
	core := limits.GetCore()
	if core == nil {
		return RateBudget{}, transientError("rate_budget", fmt.Errorf("missing core rate limit"))
	}
	return RateBudget{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time.UTC(),
	}, nil
}
