// Package startup brings process dependencies up in dependency order with
// retries, and tears them down in reverse.
package startup

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is one component of the process. Stop may be nil.
type Dependency struct {
	Name      string
	DependsOn []string
	Start     func(ctx context.Context) error
	Stop      func(ctx context.Context) error
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

type Startup struct {
	dependencies map[string]Dependency
	order        []string
	started      []string
	statuses     map[string]Status
	logger       ectologger.Logger
	maxAttempts  int
	backoff      time.Duration
}

// New returns a Startup that makes up to maxAttempts passes, waiting
// backoff times successive Fibonacci numbers between them.
func New(logger ectologger.Logger, maxAttempts int, backoff time.Duration) *Startup {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Startup{
		dependencies: make(map[string]Dependency),
		statuses:     make(map[string]Status),
		logger:       logger,
		maxAttempts:  maxAttempts,
		backoff:      backoff,
	}
}

// Add registers dep. Dependencies start in registration order unless
// DependsOn pulls another one forward.
func (s *Startup) Add(dep Dependency) {
	if _, ok := s.dependencies[dep.Name]; !ok {
		s.order = append(s.order, dep.Name)
	}
	s.dependencies[dep.Name] = dep
}

func (s *Startup) Status(name string) Status {
	return s.statuses[name]
}

// Start retries the whole pass until every dependency is up. Dependencies
// that already started are not started again.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithContext(ctx).WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, name := range s.order {
			if err := s.start(ctx, name, nil); err != nil {
				s.logger.WithContext(ctx).WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, attempt)
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * s.backoff
		s.logger.WithContext(ctx).Infof("Retrying in %s (attempt %d/%d)", wait, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) start(ctx context.Context, name string, path []string) error {
	if s.statuses[name] == StatusStarted {
		return nil
	}
	if slices.Contains(path, name) {
		return fmt.Errorf("dependency cycle: %v -> %s", path, name)
	}
	dep, ok := s.dependencies[name]
	if !ok {
		return fmt.Errorf("unknown dependency %q", name)
	}

	path = append(path, name)
	for _, parent := range dep.DependsOn {
		if err := s.start(ctx, parent, path); err != nil {
			return err
		}
	}

	logger := s.logger.WithContext(ctx).WithField("dependency", name)
	logger.Infof("Starting dependency '%s'", name)
	s.statuses[name] = StatusPending
	if err := dep.Start(ctx); err != nil {
		s.statuses[name] = StatusFailed
		logger.WithError(err).Errorf("Failed to start dependency '%s'", name)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.statuses[name] = StatusStarted
	s.started = append(s.started, name)
	return nil
}

// Stop stops started dependencies in reverse start order. It keeps going
// after a failure and returns the first error.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.started) - 1; i >= 0; i-- {
		name := s.started[i]
		dep := s.dependencies[name]
		logger := s.logger.WithContext(ctx).WithField("dependency", name)

		if dep.Stop != nil {
			logger.Infof("Stopping dependency '%s'", name)
			if err := dep.Stop(ctx); err != nil {
				logger.WithError(err).Errorf("Failed to stop dependency '%s'", name)
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
				}
				continue
			}
		}
		s.statuses[name] = StatusStopped
		logger.Infof("Dependency '%s' stopped", name)
	}
	s.started = nil
	return firstErr
}
