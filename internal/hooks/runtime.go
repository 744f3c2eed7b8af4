// Package hooks runs an optional Lua script that reacts to device events.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/glimpsed/internal/eventbus"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// Work represents work to be executed on the Lua VM.
// All Lua execution MUST go through this to ensure thread safety.
type Work func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L *lua.LState

	glimpse *GlimpseModule

	// Work queue for thread-safe Lua execution
	workQueue chan Work

	// Closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once

	// Set by Run; closed when the worker has exited
	running atomic.Bool
	done    chan struct{}
}

// NewRuntime creates a new Lua runtime with the log and glimpse modules
// preloaded.
func NewRuntime(queueSize int) *Runtime {
	if queueSize <= 0 {
		queueSize = 100
	}

	r := &Runtime{
		L:         lua.NewState(),
		glimpse:   NewGlimpseModule(),
		workQueue: make(chan Work, queueSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	r.L.PreloadModule("log", NewLogModule().Loader)
	r.L.PreloadModule("glimpse", r.glimpse.Loader)

	return r
}

// Close signals the runtime to stop accepting new work, waits for the
// worker to finish the item it is running, then closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
		// workQueue stays open so late senders never panic.
		if r.running.Load() {
			<-r.done
		}
		r.L.Close()
	})
}

// Do queues work to be executed on the Lua VM (non-blocking).
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work Work) bool {
	if r.isClosing() {
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	}

	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSyncWithResult queues work, waits for space, and waits for the result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	if r.isClosing() {
		return ErrRuntimeClosed
	}

	done := make(chan error, 1)
	wrapped := Work(func(c context.Context) {
		done <- work(c)
	})

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrapped:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (r *Runtime) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Run is the Lua worker loop. It is the ONLY goroutine that touches Lua
// and may be started once. Exits when context is cancelled or runtime is
// closed.
func (r *Runtime) Run(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		log.Warn().Msg("Lua worker already running")
		return
	}
	defer close(r.done)

	if r.isClosing() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			// Queued hooks still run; a cancelled LState context would abort them.
			r.drainQueue(context.WithoutCancel(ctx))
			return
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript executes the hook script (must be called before Run)
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua hooks")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Int("handlers", r.glimpse.Count()).Msg("Lua hooks loaded")
	return nil
}

// Handle queues every script handler registered for the event. It is an
// eventbus.Handler and never blocks the bus worker.
func (r *Runtime) Handle(event eventbus.Event) {
	handlers := r.glimpse.Handlers(event.Type)
	if len(handlers) == 0 {
		return
	}

	r.Do(context.Background(), func(ctx context.Context) {
		tbl := eventTable(r.L, event)
		for _, fn := range handlers {
			err := r.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, tbl)
			if err != nil {
				log.Error().Err(err).Str("event", string(event.Type)).Msg("Lua hook failed")
			}
		}
	})
}

// eventTable flattens an event into {type=..., at=..., <data fields>}.
func eventTable(L *lua.LState, event eventbus.Event) *lua.LTable {
	tbl := MapToLuaTable(L, event.Data)
	tbl.RawSetString("type", lua.LString(event.Type))
	if !event.At.IsZero() {
		tbl.RawSetString("at", lua.LNumber(float64(event.At.UnixMilli())/1000))
	}
	return tbl
}
