package node

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
)

type dummyChecker struct {
	mock.Mock
}

func (d *dummyChecker) IsPreconfer(ctx context.Context) (bool, error) {
	args := d.Called(ctx)

	return args.Bool(0), args.Error(1)
}

type dummyManager struct {
	mock.Mock
}

func (d *dummyManager) HasWork(ctx context.Context) (bool, error) {
	args := d.Called(ctx)

	return args.Bool(0), args.Error(1)
}

func (d *dummyManager) Step(ctx context.Context) error {
	return d.Called(ctx).Error(0)
}

func (d *dummyManager) TrySubmitOldest(ctx context.Context) error {
	return d.Called(ctx).Error(0)
}

type dummyReceipts struct{}

func (dummyReceipts) ReceiptStatus(context.Context, ethgo.Hash) (bool, bool, error) {
	return false, false, nil
}

func TestLoop_Tick(t *testing.T) {
	t.Parallel()

	t.Run("not the preconfer", func(t *testing.T) {
		t.Parallel()

		checker, manager := &dummyChecker{}, &dummyManager{}
		checker.On("IsPreconfer", mock.Anything).Return(false, nil)

		loop := NewLoop(hclog.NewNullLogger(), LoopConfig{Heartbeat: time.Millisecond}, checker, manager)
		require.NoError(t, loop.tick(context.Background()))

		manager.AssertNotCalled(t, "HasWork", mock.Anything)
		manager.AssertNotCalled(t, "TrySubmitOldest", mock.Anything)
	})

	t.Run("nothing to build", func(t *testing.T) {
		t.Parallel()

		checker, manager := &dummyChecker{}, &dummyManager{}
		checker.On("IsPreconfer", mock.Anything).Return(true, nil)
		manager.On("HasWork", mock.Anything).Return(false, nil)
		manager.On("TrySubmitOldest", mock.Anything).Return(nil)

		loop := NewLoop(hclog.NewNullLogger(), LoopConfig{Heartbeat: time.Millisecond}, checker, manager)
		require.NoError(t, loop.tick(context.Background()))

		manager.AssertNotCalled(t, "Step", mock.Anything)
		manager.AssertCalled(t, "TrySubmitOldest", mock.Anything)
	})

	t.Run("step failure still submits", func(t *testing.T) {
		t.Parallel()

		stepErr := errors.New("seal failed")

		checker, manager := &dummyChecker{}, &dummyManager{}
		checker.On("IsPreconfer", mock.Anything).Return(true, nil)
		manager.On("HasWork", mock.Anything).Return(true, nil)
		manager.On("Step", mock.Anything).Return(stepErr)
		manager.On("TrySubmitOldest", mock.Anything).Return(nil)

		loop := NewLoop(hclog.NewNullLogger(), LoopConfig{Heartbeat: time.Millisecond}, checker, manager)
		require.ErrorIs(t, loop.tick(context.Background()), stepErr)

		manager.AssertExpectations(t)
	})

	t.Run("work check failure still submits", func(t *testing.T) {
		t.Parallel()

		workErr := errors.New("txpool_status unavailable")

		checker, manager := &dummyChecker{}, &dummyManager{}
		checker.On("IsPreconfer", mock.Anything).Return(true, nil)
		manager.On("HasWork", mock.Anything).Return(false, workErr)
		manager.On("TrySubmitOldest", mock.Anything).Return(nil)

		loop := NewLoop(hclog.NewNullLogger(), LoopConfig{Heartbeat: time.Millisecond}, checker, manager)
		require.ErrorIs(t, loop.tick(context.Background()), workErr)

		manager.AssertNotCalled(t, "Step", mock.Anything)
		manager.AssertCalled(t, "TrySubmitOldest", mock.Anything)
	})

	t.Run("proposer check failure", func(t *testing.T) {
		t.Parallel()

		checker, manager := &dummyChecker{}, &dummyManager{}
		checker.On("IsPreconfer", mock.Anything).Return(false, errors.New("l1 unavailable"))

		loop := NewLoop(hclog.NewNullLogger(), LoopConfig{Heartbeat: time.Millisecond}, checker, manager)
		require.Error(t, loop.tick(context.Background()))
	})
}

func TestLoop_Watchdog(t *testing.T) {
	t.Parallel()

	checker, manager := &dummyChecker{}, &dummyManager{}
	checker.On("IsPreconfer", mock.Anything).Return(true, nil)
	manager.On("HasWork", mock.Anything).Return(true, nil)
	manager.On("TrySubmitOldest", mock.Anything).Return(nil)

	// one success in between resets the counter
	manager.On("Step", mock.Anything).Return(errors.New("boom")).Twice()
	manager.On("Step", mock.Anything).Return(nil).Once()
	manager.On("Step", mock.Anything).Return(errors.New("boom"))

	loop := NewLoop(hclog.NewNullLogger(), LoopConfig{
		Heartbeat:           time.Millisecond,
		WatchdogMaxFailures: 2,
	}, checker, manager)

	err := loop.Run(context.Background())
	require.ErrorIs(t, err, ErrWatchdog)

	// 2 failures, 1 success, 3 failures
	manager.AssertNumberOfCalls(t, "Step", 6)
}

func TestLoop_StopsOnCancel(t *testing.T) {
	t.Parallel()

	checker, manager := &dummyChecker{}, &dummyManager{}
	checker.On("IsPreconfer", mock.Anything).Return(false, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- NewLoop(hclog.NewNullLogger(), LoopConfig{Heartbeat: time.Millisecond}, checker, manager).Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestMetricsServer(t *testing.T) {
	t.Parallel()

	srv, err := NewMetricsServer(hclog.NewNullLogger(), &net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() {
		done <- srv.Serve()
	}()

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "go_goroutines")

	require.NoError(t, srv.Close(context.Background()))
	require.NoError(t, <-done)
}

// recordingIntake captures how many user ops were queued when the intake started serving
type recordingIntake struct {
	handler *bridge.Handler

	started       bool
	queuedAtStart int
	closed        bool
}

func (r *recordingIntake) Start() {
	r.started = true
	r.queuedAtStart = r.handler.PendingCount()
}

func (r *recordingIntake) Close(context.Context) error {
	r.closed = true

	return nil
}

func TestService_Run(t *testing.T) {
	t.Parallel()

	store, err := bridge.NewBoltStatusStore(filepath.Join(t.TempDir(), "userops.db"))
	require.NoError(t, err)

	// a pending user op persisted by a previous run
	id, err := store.Insert(&bridge.UserOp{Submitter: ethgo.Address{0xaa}, Calldata: []byte{0x1}})
	require.NoError(t, err)

	handler, err := bridge.NewHandler(hclog.NewNullLogger(), store)
	require.NoError(t, err)

	checker, manager := &dummyChecker{}, &dummyManager{}
	checker.On("IsPreconfer", mock.Anything).Return(true, nil)
	manager.On("HasWork", mock.Anything).Return(false, nil)
	manager.On("TrySubmitOldest", mock.Anything).Return(nil)

	intake := &recordingIntake{handler: handler}

	svc := NewService(hclog.NewNullLogger(), Params{
		Handler:  handler,
		Store:    store,
		Receipts: dummyReceipts{},
		Intake:   intake,
		Loop:     NewLoop(hclog.NewNullLogger(), LoopConfig{Heartbeat: time.Millisecond}, checker, manager),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, svc.Run(ctx))
	require.True(t, intake.closed)

	// the intake serves only once the persisted user ops are back in the queue
	require.True(t, intake.started)
	require.Equal(t, 1, intake.queuedAtStart)

	// restored into the queue before the loop started
	op, ok := handler.NextPending()
	require.True(t, ok)
	require.Equal(t, id, op.ID)

	// the store is closed on shutdown
	_, err = store.Get(id)
	require.Error(t, err)
}
