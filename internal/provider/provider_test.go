package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
)

func testConfig() Config {
	return Config{
		RequestsPerSecond: 1000,
		Burst:             1000,
		Timeout:           time.Second,
		BreakerName:       "test",
	}
}

func TestResolveSeriesAcceptsSingleExactMatch(t *testing.T) {
	fake := &FakeSearcher{SeriesResults: []model.CandidateRef{
		{ProviderID: "1", Kind: model.CandidateSeries, Title: "Showname", Year: 2020},
	}}
	c := New(fake, testConfig())

	res, err := c.ResolveSeries(context.Background(), ids.NewLibraryId(), "/root/Showname (2020)", model.SeriesHint{Title: "Showname", Year: 2020}, "Showname (2020)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Matched || res.ProviderID != "1" {
		t.Fatalf("expected matched provider id 1, got %+v", res)
	}
}

func TestResolveSeriesLeavesAmbiguousResultUnmatched(t *testing.T) {
	fake := &FakeSearcher{SeriesResults: []model.CandidateRef{
		{ProviderID: "1", Kind: model.CandidateSeries, Title: "Showname", Year: 2019},
		{ProviderID: "2", Kind: model.CandidateSeries, Title: "Showname", Year: 2020},
	}}
	c := New(fake, testConfig())

	res, err := c.ResolveSeries(context.Background(), ids.NewLibraryId(), "/root/Showname", model.SeriesHint{Title: "Showname"}, "Showname")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched {
		t.Fatalf("expected unmatched result when year is ambiguous, got %+v", res)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("expected both candidates attached, got %d", len(res.Candidates))
	}
}

func TestResolveSeriesBreaksTieOnYear(t *testing.T) {
	fake := &FakeSearcher{SeriesResults: []model.CandidateRef{
		{ProviderID: "1", Kind: model.CandidateSeries, Title: "Showname", Year: 2019},
		{ProviderID: "2", Kind: model.CandidateSeries, Title: "Showname", Year: 2020},
	}}
	c := New(fake, testConfig())

	res, err := c.ResolveSeries(context.Background(), ids.NewLibraryId(), "/root/Showname (2020)", model.SeriesHint{Title: "Showname", Year: 2020}, "Showname (2020)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Matched || res.ProviderID != "2" {
		t.Fatalf("expected year to break the tie toward provider id 2, got %+v", res)
	}
}

func TestResolveSeriesNoResultsIsUnmatchedNotError(t *testing.T) {
	fake := &FakeSearcher{}
	c := New(fake, testConfig())

	res, err := c.ResolveSeries(context.Background(), ids.NewLibraryId(), "/root/Unknown", model.SeriesHint{Title: "Unknown"}, "Unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched {
		t.Fatalf("expected unmatched result with no candidates, got %+v", res)
	}
}

func TestRateLimiterBlocksBeyondBurst(t *testing.T) {
	fake := &FakeSearcher{SeriesResults: []model.CandidateRef{{ProviderID: "1", Title: "X"}}}
	cfg := testConfig()
	cfg.RequestsPerSecond = 1
	cfg.Burst = 1
	c := New(fake, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.Search(context.Background(), "x", model.CandidateSeries, 0); err != nil {
		t.Fatalf("first call should consume the burst token without error: %v", err)
	}
	if _, err := c.Search(ctx, "x", model.CandidateSeries, 0); err == nil {
		t.Fatalf("expected second call to block past the short timeout and fail")
	}
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	fake := &FakeSearcher{Err: errors.New("upstream down")}
	c := New(fake, testConfig())

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = c.Search(context.Background(), "x", model.CandidateSeries, 0)
	}
	if lastErr == nil {
		t.Fatalf("expected an error after repeated failures")
	}

	te, ok := lastErr.(*errs.Error)
	if !ok {
		t.Fatalf("expected a taxonomy error, got %T: %v", lastErr, lastErr)
	}
	if te.Kind != errs.KindProvider {
		t.Fatalf("expected KindProvider, got %v", te.Kind)
	}
}

func TestMalformedSearcherErrorIsPermanent(t *testing.T) {
	fake := &FakeSearcher{Err: errors.New("bad payload")}
	c := New(fake, testConfig())

	_, err := c.Search(context.Background(), "x", model.CandidateMovie, 0)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if err.(*errs.Error).Retryable() {
		t.Fatalf("expected a malformed provider error to classify as permanent")
	}
}
