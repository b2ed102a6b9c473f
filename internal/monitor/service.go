package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"livewatch/internal/apperr"
	"livewatch/internal/capture"
	"livewatch/internal/livestate"
	"livewatch/internal/platform/metrics"
)

// DefaultFetchTimeout bounds one shared status fetch. It is independent of
// the callers waiting on it.
const DefaultFetchTimeout = 30 * time.Second

// Pages fetches broadcaster pages.
type Pages interface {
	LivePage(ctx context.Context, account string) (string, error)
	ProfilePage(ctx context.Context, account string) (string, error)
}

// Service answers status queries, runs captures and serves event logs. It
// owns the status cache and event log it is given; both outlive requests and
// are shared by all of them.
type Service struct {
	pages    Pages
	cache    StatusCache
	logs     *EventLog
	pipeline *capture.Pipeline
	jobs     *capture.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger

	group        singleflight.Group
	fetchTimeout time.Duration

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewService wires a Service. metrics may be nil.
func NewService(pages Pages, cache StatusCache, logs *EventLog, pipeline *capture.Pipeline, jobs *capture.Registry, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if jobs == nil {
		jobs = capture.NewRegistry(0)
	}
	s := &Service{
		pages:    pages,
		cache:    cache,
		logs:     logs,
		pipeline: pipeline,
		jobs:     jobs,
		metrics:  m,
		log:      log,

		fetchTimeout: DefaultFetchTimeout,
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	if pipeline != nil {
		pipeline.NewID = jobs.NewID
		pipeline.OnTransition = s.onTransition
	}
	return s
}

// Status reports whether account is live. A fresh cache entry is returned
// as is unless refresh is set. Concurrent misses for one account share a
// single upstream fetch; a caller that gives up stops waiting for it but
// does not cancel it for the others.
func (s *Service) Status(ctx context.Context, account string, refresh bool) (StatusResult, error) {
	key, err := parseAccount(account)
	if err != nil {
		return StatusResult{}, err
	}

	if !refresh {
		if e, fresh, ok := s.cache.Get(ctx, key); ok && fresh {
			if s.metrics != nil {
				s.metrics.IncCacheHit()
			}
			v := e.Value
			v.Cached = true
			return v, nil
		}
	}
	if s.metrics != nil {
		s.metrics.IncCacheMiss()
	}

	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		res, err := s.fetchStatus(fctx, key)
		if err != nil {
			if s.metrics != nil && apperr.KindOf(err) == apperr.KindUpstreamUnavailable {
				s.metrics.IncUpstreamErrors()
			}
			return StatusResult{}, err
		}
		if err := s.cache.Put(fctx, key, res); err != nil {
			s.log.Warn("status cache write failed", slog.String("account", key), slog.String("error", err.Error()))
		}
		// Read back so the returned value carries the stored timestamp.
		if e, _, ok := s.cache.Get(fctx, key); ok {
			return e.Value, nil
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return StatusResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return StatusResult{}, r.Err
		}
		return r.Val.(StatusResult), nil
	}
}

// fetchStatus loads the live and profile pages in parallel. Only the live
// page is required; a failed profile fetch leaves UserID and Region unset.
func (s *Service) fetchStatus(ctx context.Context, account string) (StatusResult, error) {
	var livePage, profilePage string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		livePage, err = s.pages.LivePage(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		profilePage, err = s.pages.ProfilePage(gctx, account)
		if err != nil {
			s.log.Warn("profile page fetch failed", slog.String("account", account), slog.String("error", err.Error()))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Upstream(0, err)
		}
		return StatusResult{}, err
	}

	res := StatusResult{Username: account}
	doc, ok := livestate.Extract(livePage)
	if !ok {
		s.log.Debug("no state document on live page", slog.String("account", account))
	}
	st := livestate.ResolveStatus(doc)
	res.StatusCode = st.Code
	res.RoomID = st.RoomID
	res.IsLive = st.IsLive()

	info := livestate.UserInfo{}
	if pdoc, ok := livestate.Extract(profilePage); ok {
		info = livestate.ResolveUserInfo(pdoc, account)
	}
	if info.UserID == nil && doc != nil {
		info = livestate.ResolveUserInfo(doc, account)
	}
	res.UserID = info.UserID
	res.Region = info.Region

	s.log.Info("status resolved",
		slog.String("account", account),
		slog.Bool("live", res.IsLive))
	return res, nil
}

// Capture runs a capture to completion and returns the terminal job.
func (s *Service) Capture(ctx context.Context, account string) capture.Job {
	return s.pipeline.Capture(ctx, account)
}

// StartCapture begins a capture in the background and returns its initial
// snapshot. Invalid handles are rejected before a job is created.
// Background captures are cancelled by Close.
func (s *Service) StartCapture(account string) (capture.Job, error) {
	if _, err := parseAccount(account); err != nil {
		return capture.Job{}, err
	}
	job := s.pipeline.NewJob(account)
	s.jobs.Record(job)

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.pipeline.Run(s.bgCtx, job)
	}()
	return job, nil
}

// Job returns the latest snapshot of a capture.
func (s *Service) Job(id string) (capture.Job, bool) {
	return s.jobs.Get(id)
}

// Jobs lists retained captures.
func (s *Service) Jobs() []capture.Job {
	return s.jobs.List()
}

// ActiveCaptures returns the number of captures still running.
func (s *Service) ActiveCaptures() int {
	return s.jobs.Active()
}

// AppendLog records a chat event for account.
func (s *Service) AppendLog(account string, e LogEntry) error {
	if _, err := parseAccount(account); err != nil {
		return err
	}
	s.logs.Append(account, e)
	if s.metrics != nil {
		s.metrics.IncChatEvents()
	}
	return nil
}

// Logs returns account's retained chat events, most recent last.
func (s *Service) Logs(account string) ([]LogEntry, error) {
	if _, err := parseAccount(account); err != nil {
		return nil, err
	}
	return s.logs.Read(account), nil
}

// LogAccounts returns the number of accounts with an event log.
func (s *Service) LogAccounts() int {
	return s.logs.Accounts()
}

// Close cancels background captures and waits for them to finish.
func (s *Service) Close() {
	s.bgCancel()
	s.bgWG.Wait()
}

func (s *Service) onTransition(j capture.Job) {
	s.jobs.Record(j)
	if s.metrics == nil || !j.Stage.Terminal() {
		return
	}
	outcome := "done"
	if j.Stage == capture.StageFailed {
		outcome = string(j.Reason)
	}
	s.metrics.IncCaptures(outcome)
}

func parseAccount(account string) (string, error) {
	key, ok := livestate.ParseHandle(account)
	if !ok {
		return "", apperr.New(apperr.KindInvalidInput, "account must be a handle of [a-z0-9._]")
	}
	return key, nil
}
