package cycle

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	j.events = append(j.events, e)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type fakeWorker struct {
	id string
	j  *journal
}

func (w *fakeWorker) ID() string { return w.id }

func (w *fakeWorker) OnExecuteWrite(context.Context) { w.j.add("write:" + w.id) }

func (w *fakeWorker) OnBeforeProcessImage(context.Context) { w.j.add("read:" + w.id) }

func TestDriver_PhaseOrder(t *testing.T) {
	j := &journal{}
	d, err := New(Config{
		Interval:       time.Second,
		Swap:           func() { j.add("swap") },
		OnProcessImage: func(context.Context) { j.add("controllers") },
	}, &fakeWorker{id: "a", j: j}, &fakeWorker{id: "b", j: j})
	require.NoError(t, err)

	res := d.RunOnce(context.Background())
	assert.Equal(t, uint64(1), res.Cycle)

	ev := j.list()
	require.Len(t, ev, 6)
	assert.ElementsMatch(t, []string{"write:a", "write:b"}, ev[0:2])
	assert.Equal(t, []string{"swap", "controllers"}, ev[2:4])
	assert.ElementsMatch(t, []string{"read:a", "read:b"}, ev[4:6])
}

type slowWorker struct {
	fakeWorker
	clock *time.Time
	mu    *sync.Mutex
}

func (w *slowWorker) OnBeforeProcessImage(ctx context.Context) {
	w.mu.Lock()
	*w.clock = w.clock.Add(1500 * time.Millisecond)
	w.mu.Unlock()
	w.fakeWorker.OnBeforeProcessImage(ctx)
}

func TestDriver_Overrun(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	j := &journal{}

	var got []Result
	d, err := New(Config{
		Interval: time.Second,
		Swap:     func() {},
		OnCycle:  func(r Result) { got = append(got, r) },
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		},
	}, &slowWorker{fakeWorker: fakeWorker{id: "slow", j: j}, clock: &now, mu: &mu})
	require.NoError(t, err)

	d.RunOnce(context.Background())
	require.Len(t, got, 1)
	assert.True(t, got[0].Overrun)
	assert.Equal(t, 1500*time.Millisecond, got[0].Duration)
}

func TestDriver_RunUntilCancelled(t *testing.T) {
	j := &journal{}
	ctx, cancel := context.WithCancel(context.Background())

	cycles := make(chan Result, 16)
	d, err := New(Config{
		Interval: 5 * time.Millisecond,
		Swap:     func() {},
		OnCycle: func(r Result) {
			select {
			case cycles <- r:
			default:
			}
		},
	}, &fakeWorker{id: "a", j: j})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case r := <-cycles:
		assert.Equal(t, uint64(1), r.Cycle)
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle completed")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	for _, e := range j.list() {
		assert.True(t, strings.HasSuffix(e, ":a"))
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{Swap: func() {}})
	assert.Error(t, err)
	_, err = New(Config{Interval: time.Second})
	assert.Error(t, err)
}
