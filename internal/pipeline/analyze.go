package pipeline

import (
	"context"
	"log/slog"

	"ferrex/internal/ffprobe"
	"ferrex/internal/logging"
	"ferrex/internal/model"
)

// AnalyzeActor probes a media file's technical
// metadata. Extractor failures are logged and produce technical=nil
// rather than a job failure; extraction failure is explicitly non-fatal.
// SkipProbe mirrors demo.skip_metadata_probe: the probe is skipped
// outright and every result carries technical=nil, for demo libraries
// whose fixture files are not real media.
type AnalyzeActor struct {
	FFProbeBinary string
	Logger        *slog.Logger
	SkipProbe     bool
}

// Run probes job.PathNorm and returns the analyzed result. Run never
// returns an error for extraction failures; only a canceled context
// propagates as an error, since the caller still needs to advance the
// pipeline on a failed probe.
func (a *AnalyzeActor) Run(ctx context.Context, job model.MediaAnalyzeJob) (model.MediaAnalyzed, error) {
	if err := ctx.Err(); err != nil {
		return model.MediaAnalyzed{}, err
	}

	analyzed := model.MediaAnalyzed{
		LibraryID:   job.LibraryID,
		Variant:     job.Variant,
		PathNorm:    job.PathNorm,
		Fingerprint: job.Fingerprint,
		Hierarchy:   job.Hierarchy,
		Title:       job.Title,
		Year:        job.Year,
		Season:      job.Season,
		Episode:     job.Episode,
	}

	if a.SkipProbe {
		return analyzed, nil
	}

	result, err := ffprobe.Inspect(ctx, a.FFProbeBinary, job.PathNorm)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Warn("media extraction failed, continuing without technical metadata",
				logging.Args(logging.String("path", job.PathNorm), logging.Error(err))...)
		}
		return analyzed, nil
	}

	video, _ := result.VideoStream()
	tech := &model.TechnicalMetadata{
		Container:   result.Format.FormatName,
		DurationMs:  int64(result.DurationSeconds() * 1000),
		BitrateKbps: result.BitRate() / 1000,
		VideoCodec:  video.CodecName,
		BitDepth:    ffprobe.BitDepth(video),
		HDR:         ffprobe.DeriveHDR(video),
	}
	for _, s := range result.AudioStreams() {
		tech.AudioTracks = append(tech.AudioTracks, model.AudioTrack{
			Index:    s.Index,
			Codec:    s.CodecName,
			Language: s.Tags["language"],
			Channels: s.Channels,
		})
	}
	for _, s := range result.SubtitleStreams() {
		tech.SubtitleTracks = append(tech.SubtitleTracks, model.SubtitleTrack{
			Index:    s.Index,
			Codec:    s.CodecName,
			Language: s.Tags["language"],
			Forced:   s.Disposition["forced"] != 0,
		})
	}
	analyzed.Technical = tech

	return analyzed, nil
}
