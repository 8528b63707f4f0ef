// Package logger provides the slog.Handler used throughout the simulator:
// a fixed "timestamp LEVEL: message attr=value..." line format written to
// a log file and, for warnings and above (or when debug is forced), echoed
// to stderr. This keeps the teacher's Handle/WithAttrs/WithGroup shape from
// util/logger/logger.go; what's new is an optional asynchronous mode where
// Handle enqueues the formatted line for a single drain goroutine instead
// of writing inline, per the async logging design in spec.md §5 ("a
// lock-free queue consumed by a single writer thread" — realized here with
// a buffered channel, which gives the same single-writer ordering
// guarantee without hand-rolling lock-free structures).
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogHandler is a slog.Handler that writes fixed-format lines to a file
// (and to stderr above a threshold), either inline or through an async
// single-writer queue.
type LogHandler struct {
	out   io.Writer
	h     slog.Handler
	mu    *sync.Mutex
	debug bool

	async bool
	queue chan []byte
	done  chan struct{}
	wg    *sync.WaitGroup
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{h: h.h.WithAttrs(attrs), mu: h.mu, out: h.out, debug: h.debug,
		async: h.async, queue: h.queue, done: h.done, wg: h.wg}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{h: h.h.WithGroup(name), mu: h.mu, out: h.out, debug: h.debug,
		async: h.async, queue: h.queue, done: h.done, wg: h.wg}
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	formattedTime := r.Time.Format("2006/01/02 15:04:05")

	strs := []string{formattedTime, level, r.Message}

	if r.NumAttrs() != 0 {
		r.Attrs(func(a slog.Attr) bool {
			strs = append(strs, a.Key+"="+a.Value.String())
			return true
		})
	}
	result := strings.Join(strs, " ") + "\n"
	b := []byte(result)

	toStderr := h.debug || r.Level >= slog.LevelWarn

	if h.async {
		select {
		case h.queue <- b:
		default:
			// Queue full: fall back to a synchronous write rather than
			// blocking the hart thread or dropping the line.
			h.writeLine(b, toStderr)
		}
		return nil
	}

	h.writeLine(b, toStderr)
	return nil
}

func (h *LogHandler) writeLine(b []byte, toStderr bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.out != nil {
		_, _ = h.out.Write(b)
	}
	if toStderr {
		_, _ = os.Stderr.Write(b)
	}
}

// drain is the single writer goroutine for async mode.
func (h *LogHandler) drain() {
	defer h.wg.Done()
	for {
		select {
		case b := <-h.queue:
			h.writeLine(b, h.debug)
		case <-h.done:
			for {
				select {
				case b := <-h.queue:
					h.writeLine(b, h.debug)
				default:
					return
				}
			}
		}
	}
}

// Stop drains the queue and stops the writer goroutine; it is a no-op for
// a synchronous handler.
func (h *LogHandler) Stop() {
	if !h.async {
		return
	}
	close(h.done)
	h.wg.Wait()
}

// NewHandler builds a handler writing to file. When async is true, Handle
// enqueues instead of writing inline and a background goroutine drains the
// queue until Stop is called.
func NewHandler(file io.Writer, opts *slog.HandlerOptions, debug bool, async bool) *LogHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	h := &LogHandler{
		out: file,
		h: slog.NewTextHandler(file, &slog.HandlerOptions{
			Level:     opts.Level,
			AddSource: opts.AddSource,
		}),
		mu:    &sync.Mutex{},
		debug: debug,
		async: async,
	}
	if async {
		h.queue = make(chan []byte, 4096)
		h.done = make(chan struct{})
		h.wg = &sync.WaitGroup{}
		h.wg.Add(1)
		go h.drain()
	}
	return h
}
