package provider

import (
	"context"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
)

// Config tunes the resilience wrapper around a Searcher.
type Config struct {
	// RequestsPerSecond and Burst size the token-bucket limiter shared
	// across every resolve worker.
	RequestsPerSecond float64
	Burst             int
	// Timeout bounds a single provider call.
	Timeout time.Duration
	// BreakerName labels the circuit breaker in logs/metrics.
	BreakerName string
}

// DefaultConfig matches scan.provider_timeout_ms's documented default
// of 15s and a conservative shared rate.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 4,
		Burst:             4,
		Timeout:           15 * time.Second,
		BreakerName:       "metadata-provider",
	}
}

// Client wraps a Searcher with a token-bucket rate limiter and a
// circuit breaker, and implements Provider.
type Client struct {
	searcher Searcher
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker[any]
	timeout  time.Duration
}

var _ Provider = (*Client)(nil)

// New builds a Client around searcher using cfg's resilience settings.
func New(searcher Searcher, cfg Config) *Client {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
	return &Client{
		searcher: searcher,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cb:       cb,
		timeout:  cfg.Timeout,
	}
}

// call funnels every Searcher invocation through the rate limiter,
// a per-call timeout, and the circuit breaker, translating the
// outcome into the errs taxonomy.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.NewProvider(errs.ProviderRateLimited, op, "rate limiter wait canceled", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.cb.Execute(func() (any, error) {
		return fn(callCtx)
	})
	if err == nil {
		return result, nil
	}

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errs.NewProvider(errs.ProviderRateLimited, op, "circuit breaker open", err)
	}
	if callCtx.Err() != nil {
		return nil, errs.NewProvider(errs.ProviderNetworkTimeout, op, "provider call timed out", err)
	}
	return nil, classifyProviderError(op, err)
}

// ResolveSeries implements Provider.
// It searches on the folder hint's title/year and accepts a single
// high-confidence match; anything else is reported unmatched with
// the candidate list attached for manual or heuristic follow-up.
func (c *Client) ResolveSeries(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string, hint model.SeriesHint, folderName string) (model.SeriesResolution, error) {
	query := hint.Title
	if query == "" {
		query = folderName
	}

	raw, err := c.call(ctx, "resolve_series", func(ctx context.Context) (any, error) {
		return c.searcher.SearchSeries(ctx, query, hint.Year)
	})
	if err != nil {
		return model.SeriesResolution{}, err
	}
	candidates, _ := raw.([]model.CandidateRef)

	if len(candidates) == 0 {
		return model.SeriesResolution{Matched: false}, nil
	}

	if best, ok := bestMatch(candidates, query, hint.Year); ok {
		return model.SeriesResolution{
			Matched:    true,
			ProviderID: best.ProviderID,
			Title:      best.Title,
			Year:       best.Year,
			Candidates: candidates,
		}, nil
	}

	return model.SeriesResolution{Matched: false, Candidates: candidates}, nil
}

// Search implements Provider.
func (c *Client) Search(ctx context.Context, query string, kind model.CandidateMediaKind, year int) ([]model.CandidateRef, error) {
	raw, err := c.call(ctx, "search", func(ctx context.Context) (any, error) {
		if kind == model.CandidateSeries {
			return c.searcher.SearchSeries(ctx, query, year)
		}
		return c.searcher.SearchMovie(ctx, query, year)
	})
	if err != nil {
		return nil, err
	}
	candidates, _ := raw.([]model.CandidateRef)
	return candidates, nil
}

// GetDetails implements Provider.
func (c *Client) GetDetails(ctx context.Context, id string, kind model.CandidateMediaKind) (model.ExtendedDetails, error) {
	raw, err := c.call(ctx, "get_details", func(ctx context.Context) (any, error) {
		return c.searcher.GetDetails(ctx, id, kind)
	})
	if err != nil {
		return model.ExtendedDetails{}, err
	}
	details, _ := raw.(model.ExtendedDetails)
	return details, nil
}

// bestMatch accepts an exact (case-insensitive) title match, breaking
// ties on year when both candidates share a title; otherwise a
// multi-candidate result is left unmatched rather than guessed at.
func bestMatch(candidates []model.CandidateRef, title string, year int) (model.CandidateRef, bool) {
	var exact []model.CandidateRef
	for _, c := range candidates {
		if strings.EqualFold(strings.TrimSpace(c.Title), strings.TrimSpace(title)) {
			exact = append(exact, c)
		}
	}
	if len(exact) == 1 {
		return exact[0], true
	}
	if len(exact) > 1 && year != 0 {
		for _, c := range exact {
			if c.Year == year {
				return c, true
			}
		}
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return model.CandidateRef{}, false
}
