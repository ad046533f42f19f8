package pipeline

import (
	"context"
	"time"

	"ferrex/internal/classify"
	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/provider"
	"ferrex/internal/referencestore"
	"ferrex/internal/statemachine"
)

// ResolveActor identifies a series from its root folder
// name against the metadata provider, with exponential-backoff retry
// on transient provider failures. It assigns (but does not write) the
// series reference id the Index actor will commit.
type ResolveActor struct {
	Provider    provider.Provider
	Machine     *statemachine.Machine
	References  referencestore.Repository
	MaxAttempts int
}

// ResolveOutcome reports what the Resolve actor did with one job.
type ResolveOutcome struct {
	Ready      *model.SeriesReadyForIndex // set when resolution succeeded
	Retrying   bool                       // set when a transient failure scheduled a retry
	DeadLetter bool                       // set when the subject exhausted its attempts
}

// Run executes one SeriesResolveJob.
func (a *ResolveActor) Run(ctx context.Context, job model.SeriesResolveJob, attempt int) (ResolveOutcome, error) {
	hint := job.Hint
	if hint == nil {
		derived := classify.SeriesRootHint(job.FolderName)
		hint = &derived
	}

	if err := a.Machine.MarkResolving(ctx, job.LibraryID, job.SeriesRootPath); err != nil {
		return ResolveOutcome{}, err
	}

	resolution, err := a.Provider.ResolveSeries(ctx, job.LibraryID, job.SeriesRootPath, *hint, job.FolderName)
	if err != nil {
		return a.handleFailure(ctx, job, err, attempt)
	}
	if !resolution.Matched {
		return a.handleFailure(ctx, job, errs.NewProvider(errs.ProviderNotFound, "resolve_series", "no confident match", nil), attempt)
	}

	seriesID, err := a.seriesIDFor(ctx, job.LibraryID, job.SeriesRootPath)
	if err != nil {
		return ResolveOutcome{}, err
	}

	if err := a.Machine.MarkResolved(ctx, job.LibraryID, job.SeriesRootPath, seriesID); err != nil {
		return ResolveOutcome{}, err
	}

	ready := model.SeriesReadyForIndex{
		LibraryID:  job.LibraryID,
		RootPath:   job.SeriesRootPath,
		SeriesID:   seriesID,
		ProviderID: resolution.ProviderID,
		Title:      resolution.Title,
		Year:       resolution.Year,
	}
	return ResolveOutcome{Ready: &ready}, nil
}

// seriesIDFor reuses the id already recorded for rootPath, if the
// series was indexed by a prior scan, so re-resolution is idempotent;
// otherwise it mints a fresh one for the Index actor to commit.
func (a *ResolveActor) seriesIDFor(ctx context.Context, libraryID ids.LibraryId, rootPath string) (ids.SeriesId, error) {
	existing, err := a.References.GetSeriesByRootPath(ctx, libraryID, rootPath)
	if err != nil {
		return ids.SeriesId{}, errs.New(errs.KindStorage, "resolve.lookup_series", "look up existing series reference", err)
	}
	if existing != nil {
		return existing.ID, nil
	}
	return ids.NewSeriesId(), nil
}

func (a *ResolveActor) handleFailure(ctx context.Context, job model.SeriesResolveJob, cause error, attempt int) (ResolveOutcome, error) {
	_, retryable := errs.Classify(cause)
	if retryable == errs.Transient && attempt < a.MaxAttempts {
		deadline := time.Now().Add(resolveBackoff(attempt))
		if err := a.Machine.MarkFailed(ctx, job.LibraryID, job.SeriesRootPath, cause.Error(), &deadline); err != nil {
			return ResolveOutcome{}, err
		}
		return ResolveOutcome{Retrying: true}, nil
	}

	if err := a.Machine.MarkFailed(ctx, job.LibraryID, job.SeriesRootPath, cause.Error(), nil); err != nil {
		return ResolveOutcome{}, err
	}
	return ResolveOutcome{DeadLetter: true}, nil
}
