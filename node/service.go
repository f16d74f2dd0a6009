package node

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/0xPolygon/polygon-preconf/bridge"
)

const shutdownTimeout = 10 * time.Second

type intake interface {
	Start()
	Close(ctx context.Context) error
}

// Waiter blocks until the background work of a component finished
type Waiter interface {
	Wait()
}

// Params are the running components of the node
type Params struct {
	Handler  *bridge.Handler
	Store    bridge.StatusStore
	Receipts bridge.ReceiptChecker
	// Intake is started after recovery so a new user op is never queued twice
	Intake   intake
	Metrics  *MetricsServer
	Loop     *Loop
	// Waiters are waited for on shutdown, before the store is closed
	Waiters []Waiter
}

// Service owns the lifecycle of the node components
type Service struct {
	logger hclog.Logger
	params Params
}

func NewService(logger hclog.Logger, params Params) *Service {
	return &Service{
		logger: logger,
		params: params,
	}
}

// Run restores the persisted user ops, starts the intake and runs the main loop until the context is done
// or the watchdog fires. All components are closed before it returns.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.params.Handler.Recover(ctx, s.params.Receipts); err != nil {
		return multierror.Append(err, s.close())
	}

	if s.params.Intake != nil {
		s.params.Intake.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.params.Metrics != nil {
		g.Go(s.params.Metrics.Serve)
		g.Go(func() error {
			<-gctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return s.params.Metrics.Close(shutdownCtx)
		})
	}

	g.Go(func() error {
		return s.params.Loop.Run(gctx)
	})

	runErr := g.Wait()

	// stops the background recovery when the loop exits on its own
	cancel()

	if err := s.close(); err != nil {
		return multierror.Append(runErr, err).ErrorOrNil()
	}

	return runErr
}

func (s *Service) close() error {
	s.logger.Info("shutting down")

	var result *multierror.Error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.params.Intake != nil {
		if err := s.params.Intake.Close(shutdownCtx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for _, w := range s.params.Waiters {
		w.Wait()
	}

	s.params.Handler.Wait()

	if err := s.params.Store.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
