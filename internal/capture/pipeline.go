// Package capture records a live broadcast to a video file and extracts its
// audio track, driving two external encoder runs in sequence.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"livewatch/internal/apperr"
	"livewatch/internal/livestate"
)

// Stage is a pipeline state.
type Stage string

const (
	StageFetching         Stage = "fetching"
	StageResolving        Stage = "resolving"
	StageSelectingQuality Stage = "selecting_quality"
	StageDownloading      Stage = "downloading"
	StageExtractingAudio  Stage = "extracting_audio"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// Terminal reports whether no further transition can happen.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Defaults for the on-disk layout.
const (
	DefaultVideoDir = "videos"
	DefaultAudioDir = "audios"
	DefaultVideoExt = "mp4"
	DefaultAudioExt = "wav"
)

// Job is a snapshot of one capture. VideoPath and AudioPath are set only
// once the stage that produces them has succeeded; partial files left by a
// failed stage are listed in Leftovers.
type Job struct {
	ID          string      `json:"id"`
	Account     string      `json:"account"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	Stage       Stage       `json:"stage"`
	FailedStage Stage       `json:"failed_stage,omitempty"`
	Tier        string      `json:"tier,omitempty"`
	StreamURL   string      `json:"stream_url,omitempty"`
	VideoPath   string      `json:"video_path,omitempty"`
	AudioPath   string      `json:"audio_path,omitempty"`
	Leftovers   []string    `json:"leftovers,omitempty"`
	Reason      apperr.Kind `json:"reason,omitempty"`
	Error       string      `json:"error,omitempty"`

	err error
}

// Err returns the classified failure, or nil unless Stage is StageFailed.
func (j Job) Err() error {
	return j.err
}

// PageSource fetches a broadcaster's live page.
type PageSource interface {
	LivePage(ctx context.Context, account string) (string, error)
}

// Config controls output layout and stage bounds.
type Config struct {
	VideoDir string
	AudioDir string
	VideoExt string
	AudioExt string
	// StageTimeout bounds each encoder run; zero waits indefinitely.
	StageTimeout time.Duration
}

// Pipeline runs captures. It holds no per-job state and may run any number
// of captures concurrently.
type Pipeline struct {
	cfg    Config
	pages  PageSource
	runner ProcessRunner
	log    *slog.Logger
	now    func() time.Time

	// OnTransition, if set, receives a snapshot after every stage change.
	OnTransition func(Job)
	// NewID, if set, assigns Job.ID.
	NewID func() string
}

// NewPipeline returns a Pipeline. Empty Config fields take package defaults.
func NewPipeline(cfg Config, pages PageSource, runner ProcessRunner, log *slog.Logger) *Pipeline {
	if cfg.VideoDir == "" {
		cfg.VideoDir = DefaultVideoDir
	}
	if cfg.AudioDir == "" {
		cfg.AudioDir = DefaultAudioDir
	}
	if cfg.VideoExt == "" {
		cfg.VideoExt = DefaultVideoExt
	}
	if cfg.AudioExt == "" {
		cfg.AudioExt = DefaultAudioExt
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{cfg: cfg, pages: pages, runner: runner, log: log, now: time.Now}
}

// SetClock replaces the time source used for start timestamps.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Paths returns the deterministic output paths for a capture started at ts.
func (p *Pipeline) Paths(account string, ts time.Time) (video, audio string) {
	base := fmt.Sprintf("%s_%d", account, ts.UnixMilli())
	return filepath.Join(p.cfg.VideoDir, base+"."+p.cfg.VideoExt),
		filepath.Join(p.cfg.AudioDir, base+"."+p.cfg.AudioExt)
}

// NewJob creates a job in the Fetching stage without running it.
func (p *Pipeline) NewJob(account string) Job {
	j := Job{
		Account:   livestate.Normalize(account),
		StartedAt: p.now().UTC(),
		Stage:     StageFetching,
	}
	if p.NewID != nil {
		j.ID = p.NewID()
	}
	return j
}

// Capture runs a full capture for account and returns the terminal job.
func (p *Pipeline) Capture(ctx context.Context, account string) Job {
	return p.Run(ctx, p.NewJob(account))
}

// Run drives j from Fetching to Done or Failed.
func (p *Pipeline) Run(ctx context.Context, j Job) Job {
	log := p.log.With(slog.String("account", j.Account), slog.String("job_id", j.ID))

	if !livestate.ValidHandle(j.Account) {
		return p.fail(log, j, apperr.New(apperr.KindInvalidInput, "account must be a handle of [a-z0-9._]"))
	}
	if err := p.ensureDirs(); err != nil {
		return p.fail(log, j, err)
	}
	p.notify(j)

	markup, err := p.fetch(ctx, j.Account)
	if err != nil {
		return p.fail(log, j, err)
	}
	j = p.advance(log, j, StageResolving)

	manifest, err := p.resolve(markup)
	if err != nil {
		return p.fail(log, j, err)
	}
	j = p.advance(log, j, StageSelectingQuality)

	sel, err := p.selectQuality(manifest)
	if err != nil {
		return p.fail(log, j, err)
	}
	j.Tier, j.StreamURL = sel.Tier, sel.URL
	j = p.advance(log, j, StageDownloading)

	videoPath, audioPath := p.Paths(j.Account, j.StartedAt)
	if err := p.download(ctx, j.StreamURL, videoPath); err != nil {
		j.Leftovers = leftover(videoPath)
		return p.fail(log, j, err)
	}
	j.VideoPath = videoPath
	j = p.advance(log, j, StageExtractingAudio)

	// The video is kept whatever happens here.
	if err := p.extractAudio(ctx, videoPath, audioPath); err != nil {
		j.Leftovers = leftover(audioPath)
		return p.fail(log, j, err)
	}
	j.AudioPath = audioPath
	return p.advance(log, j, StageDone)
}

func (p *Pipeline) ensureDirs() error {
	for _, dir := range []string{p.cfg.VideoDir, p.cfg.AudioDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Wrap(err, apperr.KindFilesystemFailure, "create output directory "+dir)
		}
	}
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, account string) (string, error) {
	markup, err := p.pages.LivePage(ctx, account)
	if err != nil {
		if apperr.KindOf(err) == "" {
			return "", apperr.Upstream(0, err)
		}
		return "", err
	}
	return markup, nil
}

// resolve distinguishes "not live" from "live but manifest unparseable".
func (p *Pipeline) resolve(markup string) (livestate.Manifest, error) {
	doc, ok := livestate.Extract(markup)
	if !ok {
		return nil, apperr.New(apperr.KindNoLiveRoom, "no state document on live page")
	}
	if !livestate.ResolveStatus(doc).IsLive() {
		return nil, apperr.New(apperr.KindNoLiveRoom, "account is not live")
	}
	raw, ok := livestate.ResolveStreamManifestRaw(doc)
	if !ok {
		return nil, apperr.New(apperr.KindManifestUnavailable, "stream data missing")
	}
	m, ok := livestate.ParseManifest(raw)
	if !ok {
		return nil, apperr.New(apperr.KindManifestUnavailable, "stream data unparseable")
	}
	return m, nil
}

func (p *Pipeline) selectQuality(m livestate.Manifest) (livestate.Selection, error) {
	sel, ok := livestate.SelectStream(m)
	if !ok {
		return sel, apperr.New(apperr.KindNoStreamVariant, "no stream variant available")
	}
	return sel, nil
}

func (p *Pipeline) download(ctx context.Context, streamURL, videoPath string) error {
	return p.runStage(ctx, "download failed", DownloadArgs(streamURL, videoPath))
}

func (p *Pipeline) extractAudio(ctx context.Context, videoPath, audioPath string) error {
	return p.runStage(ctx, "audio extraction failed", ExtractAudioArgs(videoPath, audioPath))
}

// runStage runs one encoder invocation. A stage deadline maps to
// ProcessTimeout; everything else to ProcessFailure.
func (p *Pipeline) runStage(ctx context.Context, msg string, args []string) error {
	stageCtx := ctx
	if p.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, p.cfg.StageTimeout)
		defer cancel()
	}

	err := p.runner.Run(stageCtx, args)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return apperr.Wrap(err, apperr.KindProcessTimeout, fmt.Sprintf("%s: exceeded %s", msg, p.cfg.StageTimeout))
	}
	return apperr.Wrap(err, apperr.KindProcessFailure, msg)
}

func (p *Pipeline) advance(log *slog.Logger, j Job, next Stage) Job {
	log.Info("capture stage", slog.String("from", string(j.Stage)), slog.String("to", string(next)))
	j.Stage = next
	if next.Terminal() {
		t := p.now().UTC()
		j.FinishedAt = &t
	}
	p.notify(j)
	return j
}

func (p *Pipeline) fail(log *slog.Logger, j Job, err error) Job {
	j.FailedStage = j.Stage
	j.Reason = apperr.KindOf(err)
	j.Error = err.Error()
	j.err = err
	log.Error("capture failed",
		slog.String("stage", string(j.FailedStage)),
		slog.String("reason", string(j.Reason)),
		slog.String("error", j.Error))
	j.Stage = StageFailed
	t := p.now().UTC()
	j.FinishedAt = &t
	p.notify(j)
	return j
}

func (p *Pipeline) notify(j Job) {
	if p.OnTransition != nil {
		p.OnTransition(j)
	}
}

// leftover reports path if a partial file was left behind.
func leftover(path string) []string {
	if _, err := os.Stat(path); err == nil {
		return []string{path}
	}
	return nil
}
