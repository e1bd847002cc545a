package command_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/diaspomoney/payments/internal/command"
	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubData struct {
	N int
}

// stubCommand is a configurable command for handler tests.
type stubCommand struct {
	command.Base[stubData]
	executeFunc func(ctx context.Context) (any, error)
	undoFunc    func(ctx context.Context) error
	noUndo      bool

	mu    sync.Mutex
	undos int
}

func newStub(n int) *stubCommand {
	return &stubCommand{Base: command.NewBase(fmt.Sprintf("stub-%d", n), stubData{N: n})}
}

func (s *stubCommand) Execute(ctx context.Context) (any, error) {
	if s.executeFunc != nil {
		return s.executeFunc(ctx)
	}
	return s.Input().N, nil
}

func (s *stubCommand) Undo(ctx context.Context) error {
	s.mu.Lock()
	s.undos++
	s.mu.Unlock()
	if s.undoFunc != nil {
		return s.undoFunc(ctx)
	}
	return nil
}

func (s *stubCommand) CanUndo() bool { return !s.noUndo }

func (s *stubCommand) undoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undos
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []command.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e command.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func TestExecute_Success(t *testing.T) {
	h := command.NewHandler()

	res, err := h.Execute(context.Background(), newStub(7))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 7, res.Data)
	assert.Equal(t, "stub-7", res.CommandName)
	assert.False(t, res.Timestamp.IsZero())
	assert.Equal(t, 1, h.HistorySize())
	assert.False(t, h.Executing())
}

func TestExecute_FailureIsSwallowed(t *testing.T) {
	h := command.NewHandler()
	cmd := newStub(1)
	cmd.executeFunc = func(context.Context) (any, error) {
		return nil, domainErrors.ErrProviderUnavailable
	}

	res, err := h.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domainErrors.ErrProviderUnavailable.Error(), res.Error)
	assert.ErrorIs(t, res.Cause, domainErrors.ErrProviderUnavailable)
	assert.Equal(t, 0, h.HistorySize())
	assert.False(t, h.Executing())
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	h := command.NewHandler()
	cmd := newStub(1)
	cmd.executeFunc = func(context.Context) (any, error) { panic("boom") }

	res, err := h.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
	assert.False(t, h.Executing())
}

func TestExecute_SingleFlight(t *testing.T) {
	h := command.NewHandler()

	started := make(chan struct{})
	release := make(chan struct{})
	slow := newStub(1)
	slow.executeFunc = func(context.Context) (any, error) {
		close(started)
		<-release
		return "first", nil
	}

	done := make(chan command.Result, 1)
	go func() {
		res, _ := h.Execute(context.Background(), slow)
		done <- res
	}()
	<-started

	res, err := h.Execute(context.Background(), newStub(2))
	assert.ErrorIs(t, err, domainErrors.ErrCommandInFlight)
	assert.False(t, res.Success)
	assert.True(t, h.Executing())

	close(release)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, "first", first.Data)
	assert.Equal(t, []string{"stub-1"}, h.History())

	res, err = h.Execute(context.Background(), newStub(3))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestHistory_EvictsOldest(t *testing.T) {
	const max, total = 3, 5
	h := command.NewHandler(command.WithMaxHistory(max))
	ctx := context.Background()

	cmds := make([]*stubCommand, total)
	for i := range cmds {
		cmds[i] = newStub(i)
		_, err := h.Execute(ctx, cmds[i])
		require.NoError(t, err)
	}
	assert.Equal(t, max, h.HistorySize())
	assert.Equal(t, []string{"stub-2", "stub-3", "stub-4"}, h.History())

	for i := 0; i < max; i++ {
		assert.True(t, h.Undo(ctx).Success)
	}
	res := h.Undo(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, "no command to undo", res.Error)

	assert.Equal(t, 0, cmds[0].undoCount())
	assert.Equal(t, 0, cmds[1].undoCount())
	for _, c := range cmds[2:] {
		assert.Equal(t, 1, c.undoCount())
	}
}

func TestUndo_NewestFirst(t *testing.T) {
	h := command.NewHandler()
	ctx := context.Background()

	var order []string
	for i := 0; i < 3; i++ {
		cmd := newStub(i)
		cmd.undoFunc = func(context.Context) error {
			order = append(order, cmd.Name())
			return nil
		}
		_, err := h.Execute(ctx, cmd)
		require.NoError(t, err)
	}

	for h.HistorySize() > 0 {
		require.True(t, h.Undo(ctx).Success)
	}
	assert.Equal(t, []string{"stub-2", "stub-1", "stub-0"}, order)
}

func TestUndo_FailureKeepsCommand(t *testing.T) {
	h := command.NewHandler()
	ctx := context.Background()

	_, err := h.Execute(ctx, newStub(0))
	require.NoError(t, err)

	flaky := newStub(1)
	attempts := 0
	flaky.undoFunc = func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("refund api down")
		}
		return nil
	}
	_, err = h.Execute(ctx, flaky)
	require.NoError(t, err)
	require.Equal(t, 2, h.HistorySize())

	res := h.Undo(ctx)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "refund api down")
	assert.Equal(t, 2, h.HistorySize())
	assert.Equal(t, []string{"stub-0", "stub-1"}, h.History())

	res = h.Undo(ctx)
	assert.True(t, res.Success)
	assert.Equal(t, "stub-1", res.CommandName)
	assert.Equal(t, 1, h.HistorySize())
}

func TestNonUndoableNeverEntersHistory(t *testing.T) {
	h := command.NewHandler()
	cmd := newStub(1)
	cmd.noUndo = true

	res, err := h.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, h.HistorySize())
}

func TestClearHistory(t *testing.T) {
	h := command.NewHandler()
	for i := 0; i < 3; i++ {
		_, err := h.Execute(context.Background(), newStub(i))
		require.NoError(t, err)
	}
	h.ClearHistory()
	assert.Equal(t, 0, h.HistorySize())
	assert.Empty(t, h.History())
}

func TestHandler_PublishesAuditEvents(t *testing.T) {
	pub := &recordingPublisher{}
	h := command.NewHandler(command.WithPublisher(pub))
	ctx := context.Background()

	_, err := h.Execute(ctx, newStub(1))
	require.NoError(t, err)

	failing := newStub(2)
	failing.undoFunc = func(context.Context) error { return errors.New("nope") }
	_, err = h.Execute(ctx, failing)
	require.NoError(t, err)

	h.Undo(ctx)
	failing.undoFunc = nil
	h.Undo(ctx)

	assert.Equal(t, []string{
		command.EventExecuted,
		command.EventExecuted,
		command.EventUndoFailed,
		command.EventUndone,
	}, pub.types())
}

func TestHandler_DurationsUseHandlerClock(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	pub := &recordingPublisher{}
	h := command.NewHandler(command.WithPublisher(pub), command.WithClock(clock))
	cmd := newStub(1)
	cmd.executeFunc = func(context.Context) (any, error) {
		advance(3 * time.Second)
		return nil, nil
	}
	cmd.undoFunc = func(context.Context) error {
		advance(2 * time.Second)
		return nil
	}

	res, err := h.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, clock(), res.Timestamp)
	require.True(t, h.Undo(context.Background()).Success)

	require.Len(t, pub.events, 2)
	assert.Equal(t, 3*time.Second, pub.events[0].Duration)
	assert.Equal(t, 2*time.Second, pub.events[1].Duration)
}

func TestHandler_PublishErrorDoesNotFailCommand(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	h := command.NewHandler(command.WithPublisher(pub))

	res, err := h.Execute(context.Background(), newStub(1))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestHandler_Metrics(t *testing.T) {
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	h := command.NewHandler(command.WithMetrics(m), command.WithMaxHistory(2))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.Execute(ctx, newStub(1))
		require.NoError(t, err)
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(m.CommandsTotal.WithLabelValues("stub-1", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CommandHistory))

	h.Undo(ctx)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CommandUndos.WithLabelValues("stub-1", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CommandHistory))
}

func TestExecute_RespectsContext(t *testing.T) {
	h := command.NewHandler()
	cmd := newStub(1)
	cmd.executeFunc = func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res, err := h.Execute(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Cause, context.DeadlineExceeded)
}
