package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilliamDuke02/databaseProject/pkg/logging"
)

type recorder struct {
	events []string
}

func (r *recorder) dep(name string, dependsOn ...string) Dependency {
	return Dependency{
		Name:      name,
		DependsOn: dependsOn,
		Start: func(context.Context) error {
			r.events = append(r.events, "start "+name)
			return nil
		},
		Stop: func(context.Context) error {
			r.events = append(r.events, "stop "+name)
			return nil
		},
	}
}

func TestStartup_DependencyOrder(t *testing.T) {
	rec := &recorder{}
	s := New(logging.Nop(), 1, time.Millisecond)
	s.Add(rec.dep("http", "store", "kafka"))
	s.Add(rec.dep("store", "database"))
	s.Add(rec.dep("database"))
	s.Add(rec.dep("kafka"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database", "start store", "start kafka", "start http"}, rec.events)
	assert.Equal(t, StatusStarted, s.Status("http"))

	rec.events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop http", "stop kafka", "stop store", "stop database"}, rec.events)
	assert.Equal(t, StatusStopped, s.Status("database"))
}

func TestStartup_RetriesFailedDependency(t *testing.T) {
	rec := &recorder{}
	calls := 0
	s := New(logging.Nop(), 3, time.Millisecond)
	s.Add(rec.dep("database"))
	s.Add(Dependency{
		Name:      "kafka",
		DependsOn: []string{"database"},
		Start: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("broker unavailable")
			}
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
	// database started once and was not restarted on retries
	assert.Equal(t, []string{"start database"}, rec.events)
}

func TestStartup_GivesUp(t *testing.T) {
	s := New(logging.Nop(), 2, time.Millisecond)
	s.Add(Dependency{Name: "database", Start: func(context.Context) error { return errors.New("refused") }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "refused")
	assert.Equal(t, StatusFailed, s.Status("database"))
}

func TestStartup_CycleAndUnknown(t *testing.T) {
	rec := &recorder{}
	s := New(logging.Nop(), 1, time.Millisecond)
	s.Add(rec.dep("a", "b"))
	s.Add(rec.dep("b", "a"))
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")

	s = New(logging.Nop(), 1, time.Millisecond)
	s.Add(rec.dep("a", "missing"))
	assert.ErrorContains(t, s.Start(context.Background()), "unknown dependency")
}

func TestStartup_CancelledWhileWaiting(t *testing.T) {
	s := New(logging.Nop(), 5, time.Hour)
	s.Add(Dependency{Name: "database", Start: func(context.Context) error { return errors.New("refused") }})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
}

func TestStartup_StopContinuesAfterFailure(t *testing.T) {
	rec := &recorder{}
	s := New(logging.Nop(), 1, time.Millisecond)
	s.Add(rec.dep("database"))
	s.Add(Dependency{
		Name:  "kafka",
		Start: func(context.Context) error { return nil },
		Stop:  func(context.Context) error { return errors.New("flush failed") },
	})
	require.NoError(t, s.Start(context.Background()))

	rec.events = nil
	err := s.Stop(context.Background())
	assert.ErrorContains(t, err, "flush failed")
	assert.Equal(t, []string{"stop database"}, rec.events)
}
