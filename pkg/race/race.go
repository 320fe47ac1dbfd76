// Package race launches concurrent stream-open attempts against multiple
// candidates and commits exactly one winner under a priority and
// grace-period policy. Naive first-success-wins would defeat the ranking,
// so a lower-priority success only wins after a bounded window in which a
// higher-priority attempt could still land.
package race

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Qiheena/playernix/pkg/logging"
	"github.com/Qiheena/playernix/pkg/provider"
)

// AttemptState tags an in-flight extraction attempt. Transitions are
// Pending to exactly one terminal state; nothing transitions after the
// race has resolved.
type AttemptState int

const (
	Pending AttemptState = iota
	Succeeded
	Failed
	TimedOut
)

func (s AttemptState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Candidate is one entrant: the provider that claims it can stream the URL
// and the priority weight used for tie-breaking.
type Candidate struct {
	Provider provider.Provider
	URL      string
	Title    string
	Priority int
}

// Result is the single committed winner.
type Result struct {
	Provider string
	Stream   *provider.StreamSource
	Title    string
	URL      string
}

// AttemptFailure records one losing attempt for the aggregate error.
type AttemptFailure struct {
	Provider string
	Reason   string
}

// AllFailedError aggregates every attempt's failure when no candidate
// produced a usable stream.
type AllFailedError struct {
	Failures []AttemptFailure
}

func (e *AllFailedError) Error() string {
	if len(e.Failures) == 0 {
		return "no stream candidates to race"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Provider, f.Reason))
	}
	return "all stream attempts failed: " + strings.Join(parts, "; ")
}

// Config tunes the coordinator.
type Config struct {
	// AttemptTimeout bounds each attempt independently; a stalled provider
	// never stalls the race.
	AttemptTimeout time.Duration

	// GracePeriod is how long a provisional lower-priority winner waits for
	// a strictly higher-priority success before being committed. The window
	// does not reset when the provisional winner is replaced.
	GracePeriod time.Duration
}

// DefaultConfig returns the stock race configuration.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 30 * time.Second,
		GracePeriod:    500 * time.Millisecond,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive, got %s", c.AttemptTimeout)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("grace period must be positive, got %s", c.GracePeriod)
	}
	return nil
}

// Coordinator runs stream races.
type Coordinator struct {
	config Config
	logger logging.Logger
}

// NewCoordinator creates a race coordinator.
func NewCoordinator(config Config, logger logging.Logger) (*Coordinator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid race config: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		config: config,
		logger: logger.With(logging.String("component", "race")),
	}, nil
}

// outcome is one attempt's terminal report.
type outcome struct {
	index    int
	state    AttemptState
	source   *provider.StreamSource
	reason   string
	priority int
}

// Race opens all candidates concurrently and returns exactly one winner or
// an *AllFailedError enumerating every failure. Non-winning streams,
// including successes that land after resolution, are always closed.
func (c *Coordinator) Race(ctx context.Context, candidates []Candidate) (*Result, error) {
	if len(candidates) == 0 {
		return nil, &AllFailedError{}
	}

	topPriority := candidates[0].Priority
	for _, cand := range candidates[1:] {
		if cand.Priority > topPriority {
			topPriority = cand.Priority
		}
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// buffered so attempts can always report, even after the race resolved
	results := make(chan outcome, len(candidates))
	for i, cand := range candidates {
		go c.attempt(raceCtx, i, cand, results)
	}

	c.logger.Debug("race started",
		logging.Int("candidates", len(candidates)),
		logging.Int("top_priority", topPriority),
	)

	var provisional *outcome
	var graceExpired <-chan time.Time
	failures := make([]AttemptFailure, 0, len(candidates))
	completed := 0

	commit := func(won outcome) *Result {
		cancel()
		if provisional != nil && provisional.index != won.index {
			provisional.source.Close()
		}
		c.drain(results, len(candidates)-completed, &won)
		cand := candidates[won.index]
		c.logger.Info("race committed",
			logging.String("provider", cand.Provider.Name()),
			logging.Int("priority", won.priority),
			logging.String("url", cand.URL),
		)
		return &Result{
			Provider: cand.Provider.Name(),
			Stream:   won.source,
			Title:    cand.Title,
			URL:      cand.URL,
		}
	}

	for completed < len(candidates) {
		select {
		case res := <-results:
			completed++

			if res.state != Succeeded {
				failures = append(failures, AttemptFailure{
					Provider: candidates[res.index].Provider.Name(),
					Reason:   res.reason,
				})
				continue
			}

			if res.priority == topPriority {
				// nothing can outrank this, commit immediately
				return commit(res), nil
			}

			if provisional == nil {
				provisional = &res
				graceExpired = time.After(c.config.GracePeriod)
				c.logger.Debug("provisional winner, grace window open",
					logging.String("provider", candidates[res.index].Provider.Name()),
					logging.Int("priority", res.priority),
					logging.Duration("grace", c.config.GracePeriod),
				)
			} else if res.priority > provisional.priority {
				provisional.source.Close()
				provisional = &res
			} else {
				res.source.Close()
			}

		case <-graceExpired:
			return commit(*provisional), nil

		case <-ctx.Done():
			if provisional != nil {
				provisional.source.Close()
			}
			c.drain(results, len(candidates)-completed, nil)
			return nil, fmt.Errorf("race cancelled: %w", ctx.Err())
		}
	}

	// every attempt reported before the grace window fired
	if provisional != nil {
		return commit(*provisional), nil
	}
	return nil, &AllFailedError{Failures: failures}
}

// attempt opens one candidate's stream under its own timeout and reports a
// terminal outcome exactly once.
func (c *Coordinator) attempt(ctx context.Context, index int, cand Candidate, results chan<- outcome) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
	defer cancel()

	started := time.Now()
	source, err := cand.Provider.OpenStream(attemptCtx, cand.URL)
	if err != nil {
		state := Failed
		reason := err.Error()
		if attemptCtx.Err() == context.DeadlineExceeded {
			state = TimedOut
			reason = fmt.Sprintf("timed out after %s", c.config.AttemptTimeout)
		}
		c.logger.Debug("attempt failed",
			logging.String("provider", cand.Provider.Name()),
			logging.String("state", state.String()),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		results <- outcome{index: index, state: state, reason: reason, priority: cand.Priority}
		return
	}

	results <- outcome{index: index, state: Succeeded, source: source, priority: cand.Priority}
}

// drain collects the attempts still outstanding after resolution and closes
// any late streams. winner, when set, marks the committed outcome whose
// stream must stay open.
func (c *Coordinator) drain(results <-chan outcome, remaining int, winner *outcome) {
	if remaining <= 0 {
		return
	}
	go func() {
		for i := 0; i < remaining; i++ {
			res := <-results
			if res.source != nil && (winner == nil || res.index != winner.index) {
				res.source.Close()
			}
		}
	}()
}
