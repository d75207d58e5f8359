// Package supervisor is the single funnel between renewal requests and
// the proxy reload action. One goroutine owns all throttle state, so
// two concurrent requests can never both execute the reload; requests
// arriving inside the cooldown window collapse into at most one
// deferred execution.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mirrorbucket/credmon/metrics"
	"github.com/mirrorbucket/credmon/renewal"
)

// Snapshot is a read-only view of the supervisor state for reporting.
type Snapshot struct {
	LastAttempt time.Time
	LastReason  renewal.Reason
	LastOutcome string // "", "success" or "failure"
	Executions  int64
}

// Supervisor serializes and throttles renewal executions.
type Supervisor struct {
	reloader Reloader
	recorder Recorder
	cooldown time.Duration
	timeout  time.Duration

	requests chan renewal.Request
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	snap Snapshot
}

// New creates a Supervisor. cooldown is the minimum spacing between two
// reload executions; timeout bounds a single reload invocation so a
// hung external command cannot starve future requests.
func New(reloader Reloader, recorder Recorder, cooldown, timeout time.Duration) *Supervisor {
	return &Supervisor{
		reloader: reloader,
		recorder: recorder,
		cooldown: cooldown,
		timeout:  timeout,
		requests: make(chan renewal.Request, 16),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the owning goroutine.
func (s *Supervisor) Start() {
	go s.run()
}

// Request submits a renewal request. Safe to call from any goroutine.
// Requests are never queued beyond the throttling window: if the intake
// buffer is full a reload is already underway and the request would
// coalesce anyway, so it is dropped.
func (s *Supervisor) Request(req renewal.Request) {
	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.requests <- req:
	default:
		log.Warn().Str("reason", string(req.Reason)).Str("source", req.Source).Msg("Renewal request dropped, supervisor busy")
	}
}

// Close stops accepting requests and waits for any in-flight reload to
// finish. A deferred-but-not-yet-fired renewal is abandoned.
func (s *Supervisor) Close() {
	s.stopOnce.Do(func() { close(s.quit) })
	<-s.done
}

// State returns the current snapshot.
func (s *Supervisor) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// run owns all throttle state: the last execution time and the single
// deferred timer. Reloads execute inline, which is what guarantees
// at-most-one in flight.
func (s *Supervisor) run() {
	defer close(s.done)

	var lastExec time.Time
	var deferred *time.Timer
	var deferredC <-chan time.Time
	var deferredReq renewal.Request

	for {
		select {
		case <-s.quit:
			if deferred != nil {
				deferred.Stop()
			}
			return

		case req := <-s.requests:
			if deferredC != nil {
				// A deferred execution is already armed; this request
				// folds into it and must not push the timer out.
				metrics.RenewalsCoalesced.Inc()
				log.Debug().Str("reason", string(req.Reason)).Msg("Renewal request coalesced into pending one")
				continue
			}
			elapsed := time.Since(lastExec)
			if lastExec.IsZero() || elapsed >= s.cooldown {
				s.execute(req)
				lastExec = time.Now()
				continue
			}
			metrics.RenewalsDeferred.Inc()
			wait := s.cooldown - elapsed
			log.Info().Str("reason", string(req.Reason)).Dur("wait", wait).Msg("Renewal inside cooldown window, deferring")
			deferredReq = req
			deferred = time.NewTimer(wait)
			deferredC = deferred.C

		case <-deferredC:
			deferred, deferredC = nil, nil
			s.execute(deferredReq)
			lastExec = time.Now()
		}
	}
}

// execute runs the reload action once and records the outcome. Failures
// are logged but never fatal: the next login produces a new file-change
// event, which is the retry path.
func (s *Supervisor) execute(req renewal.Request) {
	started := time.Now()
	log.Info().Str("reason", string(req.Reason)).Str("source", req.Source).Msg("Restarting proxy to pick up credentials")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := s.reloader.Reload(ctx)
	cancel()
	took := time.Since(started)

	outcome := "success"
	errMsg := ""
	if err != nil {
		outcome = "failure"
		errMsg = err.Error()
		log.Error().Err(err).Dur("took", took).Msg("Failed to restart proxy")
	} else {
		log.Info().Dur("took", took).Msg("Successfully restarted proxy")
	}

	metrics.RenewalExecutions.WithLabelValues(string(req.Reason), outcome).Inc()

	s.mu.Lock()
	s.snap.LastAttempt = started
	s.snap.LastReason = req.Reason
	s.snap.LastOutcome = outcome
	s.snap.Executions++
	s.mu.Unlock()

	if s.recorder != nil {
		recCtx, recCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if recErr := s.recorder.Record(recCtx, string(req.Reason), req.Source, outcome, errMsg, started, took); recErr != nil {
			log.Warn().Err(recErr).Msg("Failed to record renewal attempt")
		}
		recCancel()
	}
}
