package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/0xPolygon/polygon-preconf/l1"
	"github.com/0xPolygon/polygon-preconf/proposal"
)

// ErrWatchdog is returned by the main loop after too many consecutive failed ticks
var ErrWatchdog = errors.New("watchdog: too many consecutive failed ticks")

type proposerChecker interface {
	IsPreconfer(ctx context.Context) (bool, error)
}

type proposalManager interface {
	HasWork(ctx context.Context) (bool, error)
	Step(ctx context.Context) error
	TrySubmitOldest(ctx context.Context) error
}

var (
	_ proposerChecker = (*l1.ProposerChecker)(nil)
	_ proposalManager = (*proposal.Manager)(nil)
)

// LoopConfig configures the main loop
type LoopConfig struct {
	Heartbeat           time.Duration
	WatchdogMaxFailures uint64
}

// Loop drives block building and proposal submission at a fixed interval
type Loop struct {
	logger  hclog.Logger
	config  LoopConfig
	checker proposerChecker
	manager proposalManager

	failures uint64
}

func NewLoop(logger hclog.Logger, config LoopConfig, checker proposerChecker, manager proposalManager) *Loop {
	return &Loop{
		logger:  logger,
		config:  config,
		checker: checker,
		manager: manager,
	}
}

// Run ticks until the context is done or the watchdog fires
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.config.Heartbeat)
	defer ticker.Stop()

	l.logger.Info("main loop started", "heartbeat", l.config.Heartbeat)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("main loop stopped")

			return nil
		case <-ticker.C:
		}

		if err := l.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			l.failures++
			incTickFailureMetric()

			l.logger.Error("tick failed", "failures", l.failures, "err", err)

			if l.config.WatchdogMaxFailures > 0 && l.failures > l.config.WatchdogMaxFailures {
				l.logger.Error("watchdog fired, stopping main loop", "failures", l.failures)

				return fmt.Errorf("%w: %d", ErrWatchdog, l.failures)
			}

			continue
		}

		l.failures = 0
	}
}

func (l *Loop) tick(ctx context.Context) error {
	defer measureTickMetric(time.Now())

	isPreconfer, err := l.checker.IsPreconfer(ctx)
	if err != nil {
		return fmt.Errorf("proposer check failed: %w", err)
	}

	if !isPreconfer {
		l.logger.Debug("not the current preconfer, skipping tick")

		return nil
	}

	var stepErr error

	hasWork, err := l.manager.HasWork(ctx)

	switch {
	case err != nil:
		stepErr = fmt.Errorf("work check failed: %w", err)
	case hasWork:
		stepErr = l.manager.Step(ctx)
	}

	// proposals that are already ready are submitted even when the step failed
	if err := l.manager.TrySubmitOldest(ctx); err != nil {
		return multierror.Append(stepErr, err)
	}

	return stepErr
}
