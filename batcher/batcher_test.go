package batcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"
)

// fakeSink records every batch it receives and can be told to fail the
// first n writes.
type fakeSink struct {
	mu       sync.Mutex
	batches  [][]int
	failures int
}

func (s *fakeSink) Write(ctx context.Context, rows []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("simulated write failure")
	}
	batch := make([]int, len(rows))
	copy(batch, rows)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeSink) snapshot() [][]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]int, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *fakeSink) total() int {
	n := 0
	for _, b := range s.snapshot() {
		n += len(b)
	}
	return n
}

// recordingSleeper collects requested sleep durations without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	slept  []time.Duration
	fatals []string
}

func (r *recordingSleeper) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slept = append(r.slept, d)
}

func (r *recordingSleeper) fatalf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatals = append(r.fatals, format)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// A full buffer flushes without waiting for the interval.
func TestBatcherSizeTrigger(t *testing.T) {
	sink := &fakeSink{}
	in := make(chan int, 10)
	b := New("test_table", sink, in, Config{
		BatchSize: 3,
		// Long enough that only the size trigger can fire.
		FlushInterval: time.Hour,
		Tick:          time.Hour,
	})

	done := make(chan struct{})
	go func() {
		b.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 3; i++ {
		in <- i
	}
	waitFor(t, 5*time.Second, func() bool { return sink.total() == 3 })

	// The fourth row waits in the buffer until close forces the final flush.
	in <- 3
	close(in)
	<-done

	want := [][]int{{0, 1, 2}, {3}}
	if diff := deep.Equal(sink.snapshot(), want); diff != nil {
		t.Error(diff)
	}
}

// A partial buffer flushes once the inactivity interval elapses.
func TestBatcherTimeTrigger(t *testing.T) {
	sink := &fakeSink{}
	in := make(chan int, 10)
	b := New("test_table", sink, in, Config{
		BatchSize:     1000,
		FlushInterval: 20 * time.Millisecond,
		Tick:          2 * time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		b.Run(context.Background())
		close(done)
	}()

	in <- 1
	in <- 2
	waitFor(t, 5*time.Second, func() bool { return sink.total() == 2 })

	close(in)
	<-done

	if diff := deep.Equal(sink.snapshot(), [][]int{{1, 2}}); diff != nil {
		t.Error(diff)
	}
}

// Closing the input channel flushes whatever is buffered, even when neither
// trigger fired.
func TestBatcherFinalFlushOnClose(t *testing.T) {
	sink := &fakeSink{}
	in := make(chan int, 10)
	b := New("test_table", sink, in, Config{
		BatchSize:     1000,
		FlushInterval: time.Hour,
		Tick:          time.Hour,
	})

	in <- 7
	in <- 8
	close(in)
	b.Run(context.Background())

	if diff := deep.Equal(sink.snapshot(), [][]int{{7, 8}}); diff != nil {
		t.Error(diff)
	}
}

// A transient failure is retried with exponential backoff and the batch is
// delivered on a later attempt.
func TestFlushRetriesTransientFailure(t *testing.T) {
	sink := &fakeSink{failures: 2}
	rec := &recordingSleeper{}
	b := New[int]("test_table", sink, nil, Config{BatchSize: 10})
	b.sleep = rec.sleep

	b.buf = append(b.buf, 1, 2, 3)
	b.flush(context.Background())

	if diff := deep.Equal(sink.snapshot(), [][]int{{1, 2, 3}}); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(rec.slept, []time.Duration{2 * time.Second, 4 * time.Second}); diff != nil {
		t.Error(diff)
	}
}

// After the attempt budget is exhausted the batch is dropped and the
// batcher keeps running; the drop never reaches the client.
func TestFlushDropsAfterRetriesExhausted(t *testing.T) {
	sink := &fakeSink{failures: 3}
	rec := &recordingSleeper{}
	b := New[int]("test_table", sink, nil, Config{BatchSize: 10})
	b.sleep = rec.sleep

	b.buf = append(b.buf, 1, 2, 3)
	b.flush(context.Background())

	if got := sink.total(); got != 0 {
		t.Errorf("sink received %d rows, want 0", got)
	}
	// Two backoffs between three attempts; none after the last.
	if diff := deep.Equal(rec.slept, []time.Duration{2 * time.Second, 4 * time.Second}); diff != nil {
		t.Error(diff)
	}
	if len(b.buf) != 0 {
		t.Errorf("buffer holds %d rows after drop, want 0", len(b.buf))
	}
}

// The final flush retries harder and aborts the process when the sink never
// recovers. The backoffs total 2+4+8+16+32 seconds before the abort.
func TestFinalFlushAbortsOnPersistentFailure(t *testing.T) {
	sink := &fakeSink{failures: 100}
	rec := &recordingSleeper{}
	b := New[int]("test_table", sink, nil, Config{BatchSize: 10})
	b.sleep = rec.sleep
	b.fatalf = rec.fatalf

	b.buf = append(b.buf, 1)
	b.finalFlush(context.Background())

	want := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second,
	}
	if diff := deep.Equal(rec.slept, want); diff != nil {
		t.Error(diff)
	}
	if len(rec.fatals) != 1 {
		t.Errorf("fatalf called %d times, want 1", len(rec.fatals))
	}
}

// The final flush succeeds quietly when a retry gets through.
func TestFinalFlushRecovers(t *testing.T) {
	sink := &fakeSink{failures: 1}
	rec := &recordingSleeper{}
	b := New[int]("test_table", sink, nil, Config{BatchSize: 10})
	b.sleep = rec.sleep
	b.fatalf = rec.fatalf

	b.buf = append(b.buf, 1, 2)
	b.finalFlush(context.Background())

	if diff := deep.Equal(sink.snapshot(), [][]int{{1, 2}}); diff != nil {
		t.Error(diff)
	}
	if len(rec.fatals) != 0 {
		t.Errorf("fatalf called %d times, want 0", len(rec.fatals))
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 32 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
