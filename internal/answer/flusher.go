package answer

import (
	"strings"
	"time"
)

const (
	flushInterval  = 50 * time.Millisecond
	flushQueueSize = 64
)

// flusher batches incoming stream chunks to bound how often the caller is
// notified, without perceptibly delaying first content. Buffered text is
// flushed when 50ms have passed since the last flush, when the buffer
// contains a newline, or on the very first chunk so the caller can drop its
// "thinking" indicator immediately.
//
// The network reader feeds in via Add; a drain goroutine emits batches in
// order. Close flushes any remainder and stops the goroutine.
type flusher struct {
	in   chan string
	done chan struct{}
}

// newFlusher starts a flusher that calls emit with each batch. emit is called
// from a single goroutine, in arrival order.
func newFlusher(emit func(text string)) *flusher {
	f := &flusher{
		in:   make(chan string, flushQueueSize),
		done: make(chan struct{}),
	}
	go f.run(emit)
	return f
}

// Add queues a chunk. Must not be called after Close.
func (f *flusher) Add(chunk string) {
	f.in <- chunk
}

// Close flushes any buffered text and waits for the drain goroutine to stop.
func (f *flusher) Close() {
	close(f.in)
	<-f.done
}

func (f *flusher) run(emit func(string)) {
	defer close(f.done)

	var buf strings.Builder
	firstFlushed := false
	lastFlush := time.Now()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		emit(buf.String())
		buf.Reset()
		firstFlushed = true
		lastFlush = time.Now()
		// Realign the ticker so a chunk buffered right after this flush
		// waits at most one interval, not up to two.
		ticker.Reset(flushInterval)
	}

	for {
		select {
		case chunk, ok := <-f.in:
			if !ok {
				flush()
				return
			}
			buf.WriteString(chunk)
			if !firstFlushed || strings.Contains(chunk, "\n") || time.Since(lastFlush) >= flushInterval {
				flush()
			}
		case <-ticker.C:
			if time.Since(lastFlush) >= flushInterval {
				flush()
			}
		}
	}
}
