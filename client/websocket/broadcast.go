package websocket

import (
	"context"
	"sync"

	"github.com/juju/errors"

	"ekiden-sdk-go/common"
)

// DefaultStreamCapacity is the number of events buffered per channel. A
// consumer that falls further behind than this loses the oldest events and
// gets ErrStreamLagged once before resuming.
const DefaultStreamCapacity = 1000

// broadcaster fans events out to any number of streams on a single channel.
// It keeps a ring of the last cap(buf) events; each stream reads through its
// own cursor, so one slow stream never blocks the sender or its siblings.
type broadcaster struct {
	mtx    sync.Mutex
	buf    []common.Event
	seq    uint64
	closed bool

	// wakeup is closed (and replaced) on every send and on close, waking all
	// streams blocked in Recv.
	wakeup chan struct{}
}

func newBroadcaster(capacity int) *broadcaster {
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	return &broadcaster{
		buf:    make([]common.Event, capacity),
		wakeup: make(chan struct{}),
	}
}

// send appends the event to the ring, overwriting the oldest one if full.
// Sending on a closed broadcaster is a no-op.
func (b *broadcaster) send(ev common.Event) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.closed {
		return
	}

	b.buf[b.seq%uint64(len(b.buf))] = ev
	b.seq++

	close(b.wakeup)
	b.wakeup = make(chan struct{})
}

// close marks the broadcaster closed and wakes all blocked streams. Streams
// still drain events buffered before the closure.
func (b *broadcaster) close() {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	close(b.wakeup)
}

func (b *broadcaster) newStream(channel string) *EventStream {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return &EventStream{
		b:       b,
		channel: channel,
		cursor:  b.seq,
	}
}

// EventStream is one consumer's view of a channel subscription. Streams are
// independent: each receives every event sent after it was opened, subject
// to the buffer capacity.
//
// An EventStream must not be used from multiple goroutines concurrently;
// open one stream per goroutine instead.
type EventStream struct {
	b       *broadcaster
	channel string
	cursor  uint64
}

// Channel returns the channel name this stream is subscribed to.
func (s *EventStream) Channel() string {
	return s.channel
}

// Recv blocks until the next event is available, the stream's channel is
// closed, or ctx is done. After the underlying subscription is closed, Recv
// keeps returning buffered events until they are drained, then returns
// ErrConnClosed.
//
// If the consumer fell behind by more than the buffer capacity, Recv skips
// to the oldest retained event and returns ErrStreamLagged once; the next
// call resumes delivery from there.
func (s *EventStream) Recv(ctx context.Context) (common.Event, error) {
	for {
		s.b.mtx.Lock()
		ev, wakeup, err := s.nextLocked()
		s.b.mtx.Unlock()

		if err == nil && wakeup == nil {
			return ev, nil
		}
		if err != nil {
			return common.Event{}, errors.Trace(err)
		}

		select {
		case <-wakeup:
		case <-ctx.Done():
			return common.Event{}, errors.Trace(ctx.Err())
		}
	}
}

// TryRecv is like Recv but never blocks: if no event is buffered it returns
// ErrStreamEmpty.
func (s *EventStream) TryRecv() (common.Event, error) {
	s.b.mtx.Lock()
	ev, wakeup, err := s.nextLocked()
	s.b.mtx.Unlock()

	if err != nil {
		return common.Event{}, errors.Trace(err)
	}
	if wakeup != nil {
		return common.Event{}, ErrStreamEmpty
	}
	return ev, nil
}

// nextLocked returns the next event for this stream, or a wakeup channel to
// wait on if none is buffered yet, or a terminal error. Exactly one of the
// three is meaningful. Caller holds b.mtx.
func (s *EventStream) nextLocked() (common.Event, chan struct{}, error) {
	b := s.b
	capacity := uint64(len(b.buf))

	if b.seq-s.cursor > capacity {
		// Overwritten events are gone; skip to the oldest retained one.
		s.cursor = b.seq - capacity
		return common.Event{}, nil, ErrStreamLagged
	}

	if s.cursor < b.seq {
		ev := b.buf[s.cursor%capacity]
		s.cursor++
		return ev, nil, nil
	}

	if b.closed {
		return common.Event{}, nil, ErrConnClosed
	}

	return common.Event{}, b.wakeup, nil
}
