package journal

import (
	"log"
	"sync"
	"sync/atomic"
)

// AsyncWriter hands entries to a background goroutine that writes them to
// a Writer, so workers never wait on file I/O. Record does not block: when
// the buffer is full the entry is dropped and counted.
type AsyncWriter struct {
	w      *Writer
	logger *log.Logger
	ch     chan Entry
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	written atomic.Int64
	dropped atomic.Int64
}

func NewAsyncWriter(w *Writer, buffer int, logger *log.Logger) *AsyncWriter {
	if buffer <= 0 {
		buffer = 4096
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &AsyncWriter{w: w, logger: logger, ch: make(chan Entry, buffer)}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop()
	}()
	return a
}

func (a *AsyncWriter) loop() {
	for e := range a.ch {
		if err := a.w.Record(e); err != nil {
			a.logger.Printf("journal: %v", err)
			continue
		}
		a.written.Add(1)
	}
}

// Record queues e. Entries recorded after Close are ignored.
func (a *AsyncWriter) Record(e Entry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.ch <- e:
	default:
		a.dropped.Add(1)
	}
	return nil
}

func (a *AsyncWriter) Written() int64 { return a.written.Load() }
func (a *AsyncWriter) Dropped() int64 { return a.dropped.Load() }

// Close drains the queue and closes the underlying Writer.
func (a *AsyncWriter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	a.wg.Wait()
	return a.w.Close()
}
