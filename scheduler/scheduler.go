// Package scheduler is the safety net behind the filesystem watcher: a
// token can age into its renewal window without any file ever changing,
// so a periodic check re-reads the cache and raises a proactive request
// when expiry is near.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mirrorbucket/credmon/credstore"
	"github.com/mirrorbucket/credmon/expiry"
	"github.com/mirrorbucket/credmon/renewal"
)

// Scheduler periodically evaluates token expiry.
type Scheduler struct {
	cacheDir  string
	interval  time.Duration
	threshold time.Duration
	sink      renewal.Sink
}

// New creates a Scheduler reading the given SSO cache directory.
func New(cacheDir string, interval, threshold time.Duration, sink renewal.Sink) *Scheduler {
	return &Scheduler{cacheDir: cacheDir, interval: interval, threshold: threshold, sink: sink}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.interval).Dur("threshold", s.threshold).Msg("Starting periodic expiry check")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(time.Now())
		}
	}
}

// Tick performs one expiry check. It is exported so a tick can be
// driven directly in tests.
func (s *Scheduler) Tick(now time.Time) {
	tokens := credstore.ReadTokens(s.cacheDir)
	if len(tokens) == 0 {
		log.Debug().Str("dir", s.cacheDir).Msg("No cached tokens, waiting for login")
		return
	}

	assessment := expiry.Evaluate(tokens, now, s.threshold)
	if !assessment.NeedsImmediateRenewal {
		if assessment.Bounded {
			log.Debug().Dur("earliest_expiry", assessment.EarliestExpiry).Msg("Tokens still valid")
		}
		return
	}

	source := s.cacheDir
	for _, token := range tokens {
		if state := expiry.Classify(token, now, s.threshold); state == expiry.StateUrgent || state == expiry.StateExpired {
			source = token.Identity()
			break
		}
	}

	log.Info().
		Dur("earliest_expiry", assessment.EarliestExpiry).
		Int("urgent", assessment.Urgent).
		Int("expired", assessment.Expired).
		Msg("Token expiring soon, requesting proactive renewal")
	s.sink.Request(renewal.Request{Reason: renewal.ReasonProactiveExpiry, Source: source, RaisedAt: now})
}
