package logger

import (
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// writeReq carries either a formatted line or, when ack is set, a flush barrier.
type writeReq struct {
	line []byte
	ack  chan error
}

// asyncWriter moves sink I/O off the logging goroutine. Lines are written in
// order by a single drain goroutine; the first sink error sticks and is
// returned from every later call.
type asyncWriter struct {
	reqs  chan writeReq
	done  chan struct{}
	sinks []io.Writer

	sendMu sync.RWMutex
	closed bool

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, queueLen int) *asyncWriter {
	if queueLen <= 0 {
		queueLen = 1024
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	w := &asyncWriter{
		reqs:  make(chan writeReq, queueLen),
		done:  make(chan struct{}),
		sinks: sinks,
	}
	go w.drain()
	return w
}

func (w *asyncWriter) drain() {
	defer close(w.done)
	for req := range w.reqs {
		if req.ack != nil {
			req.ack <- w.failure()
			continue
		}
		w.fanOut(req.line)
	}
}

func (w *asyncWriter) fanOut(line []byte) {
	var errs []error
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		w.mu.Lock()
		if w.err == nil {
			w.err = err
		}
		w.mu.Unlock()
	}
}

func (w *asyncWriter) failure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Write queues a copy of p. It blocks when the queue is full so lines are
// never dropped.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.failure(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return w.send(writeReq{line: append([]byte(nil), p...)})
}

func (w *asyncWriter) send(req writeReq) error {
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.reqs <- req
	return nil
}

// Flush returns once every line queued before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	if err := w.send(writeReq{ack: ack}); err != nil {
		return w.failure()
	}
	return <-ack
}

// Close drains the queue and stops the writer.
func (w *asyncWriter) Close() error {
	w.sendMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.reqs)
	}
	w.sendMu.Unlock()
	<-w.done
	return w.failure()
}
