package platform

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestLifecycle_StartAndStop(t *testing.T) {
	lc := NewLifecycle()

	var started, stopped bool
	lc.Append(Hook{
		Name: "hub",
		OnStart: func(_ context.Context) error {
			started = true
			return nil
		},
		OnStop: func(_ context.Context) error {
			stopped = true
			return nil
		},
	})

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !started {
		t.Error("start callback not called")
	}
	if !lc.IsStarted() {
		t.Error("IsStarted() = false after Start()")
	}

	if err := lc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !stopped {
		t.Error("stop callback not called")
	}
	if lc.IsStarted() {
		t.Error("IsStarted() = true after Stop()")
	}
}

func TestLifecycle_StartAlreadyStarted(t *testing.T) {
	lc := NewLifecycle()
	_ = lc.Start(context.Background())

	if err := lc.Start(context.Background()); err == nil {
		t.Error("Start() expected error for already started")
	}
}

func TestLifecycle_StopNotStarted(t *testing.T) {
	lc := NewLifecycle()
	if err := lc.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v, expected nil for not started", err)
	}
}

func TestLifecycle_StartRollbackOnError(t *testing.T) {
	lc := NewLifecycle()

	var calls []string
	record := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			calls = append(calls, name)
			return err
		}
	}
	lc.Append(Hook{Name: "store", OnStart: record("start store", nil), OnStop: record("stop store", nil)})
	lc.Append(Hook{Name: "hub", OnStart: record("start hub", nil), OnStop: record("stop hub", nil)})
	lc.Append(Hook{Name: "http", OnStart: record("start http", errors.New("address in use")), OnStop: record("stop http", nil)})

	err := lc.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error")
	}
	if !strings.Contains(err.Error(), "starting http: address in use") {
		t.Errorf("Start() error = %v", err)
	}

	want := []string{"start store", "start hub", "start http", "stop hub", "stop store"}
	if !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if lc.IsStarted() {
		t.Error("lifecycle should not be started after rollback")
	}
}

func TestLifecycle_StopInReverseOrder(t *testing.T) {
	lc := NewLifecycle()

	var order []int
	for i := 1; i <= 3; i++ {
		lc.Append(Hook{OnStop: func(_ context.Context) error {
			order = append(order, i)
			return nil
		}})
	}

	_ = lc.Start(context.Background())
	_ = lc.Stop(context.Background())

	if want := []int{3, 2, 1}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

type mockCloser struct {
	closed bool
}

func (m *mockCloser) Close() error {
	m.closed = true
	return nil
}

func TestLifecycle_RegisterCloser(t *testing.T) {
	lc := NewLifecycle()
	closer := &mockCloser{}

	lc.RegisterCloser("store", closer)
	_ = lc.Start(context.Background())
	_ = lc.Stop(context.Background())

	if !closer.closed {
		t.Error("closer not closed")
	}
}

func TestLifecycle_RollbackWithStopError(t *testing.T) {
	lc := NewLifecycle()

	lc.Append(Hook{
		OnStart: func(_ context.Context) error { return nil },
		OnStop:  func(_ context.Context) error { return errors.New("stop1 failed") },
	})
	lc.Append(Hook{
		OnStart: func(_ context.Context) error { return errors.New("start2 failed") },
	})

	err := lc.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error")
	}
	if !strings.Contains(err.Error(), "hook 1") {
		t.Errorf("Start() error = %v, want unnamed hook index", err)
	}
	if lc.IsStarted() {
		t.Error("lifecycle should not be started after rollback")
	}
}

func TestLifecycle_StopRunsEveryHook(t *testing.T) {
	lc := NewLifecycle()

	errFirst := errors.New("first")
	var ranFirst bool
	lc.Append(Hook{Name: "first", OnStop: func(_ context.Context) error {
		ranFirst = true
		return errFirst
	}})
	lc.Append(Hook{Name: "second", OnStop: func(_ context.Context) error {
		return errors.New("second")
	}})

	_ = lc.Start(context.Background())
	err := lc.Stop(context.Background())
	if err == nil {
		t.Fatal("Stop() expected error when callbacks fail")
	}
	if !ranFirst {
		t.Error("Stop() skipped a hook after an earlier failure")
	}
	if !errors.Is(err, errFirst) {
		t.Errorf("Stop() error = %v, want it to wrap the first failure", err)
	}
	if !strings.Contains(err.Error(), "stopping second") {
		t.Errorf("Stop() error = %v", err)
	}
}
