package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dperrin/foreman/internal/graph"
)

// StartLoop begins the scheduling loop. It returns ErrAlreadyRunning if the
// loop is active.
func (o *Orchestrator) StartLoop(ctx context.Context) error {
	o.mu.Lock()
	if o.loopRunning {
		o.mu.Unlock()
		return fmt.Errorf("scheduling loop: %w", ErrAlreadyRunning)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.loopCancel = cancel
	o.loopDone = make(chan struct{})
	o.loopRunning = true
	done := o.loopDone
	o.mu.Unlock()

	log.Printf("[loop] started (concurrency %d)", o.concurrency)
	o.emitter.Emit(Event{Type: EventLoopStarted})

	go func() {
		defer close(done)
		defer func() {
			o.mu.Lock()
			o.loopRunning = false
			o.mu.Unlock()
			o.emitter.Emit(Event{Type: EventLoopStopped})
			log.Printf("[loop] stopped")
		}()
		o.run(loopCtx)
	}()
	return nil
}

// StopLoop disables scheduling and returns the number of in-flight jobs.
// Running jobs are never cancelled by a loop stop.
func (o *Orchestrator) StopLoop() int {
	o.mu.Lock()
	cancel := o.loopCancel
	done := o.loopDone
	inFlight := len(o.running)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return inFlight
}

// LoopRunning reports whether the scheduling loop is active.
func (o *Orchestrator) LoopRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loopRunning
}

// run is the scheduling loop body. Iteration errors are logged, never
// fatal; only context cancellation ends the loop.
func (o *Orchestrator) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if o.signals != nil {
			if o.signals.ShouldStop() {
				log.Printf("[loop] stop signal file observed")
				o.signals.Clear()
				return
			}
			if o.signals.ShouldPause() {
				log.Printf("[loop] pause signal file observed")
				o.signals.Clear()
				o.pause.Pause("pause signal file")
				o.emitter.Emit(Event{Type: EventLoopPaused, Message: "pause signal file"})
			}
		}
		if err := o.pause.WaitIfPaused(ctx); err != nil {
			return
		}

		launched, idle := o.scheduleOne(ctx)
		if launched {
			continue
		}

		interval := o.pollInterval
		if idle {
			o.emitter.Emit(Event{Type: EventLoopIdle})
			interval = o.idleInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// scheduleOne attempts to launch one ready job. The second return is true
// when no job was runnable at all (as opposed to the concurrency limit
// being reached).
func (o *Orchestrator) scheduleOne(ctx context.Context) (launched, idle bool) {
	o.mu.Lock()
	slots := o.concurrency - len(o.running)
	o.mu.Unlock()
	if slots <= 0 {
		return false, false
	}

	jobs, err := o.store.ListJobs()
	if err != nil {
		log.Printf("[loop] list jobs: %v", err)
		return false, false
	}

	ready, err := graph.ResolveDependencies(jobs)
	if err != nil {
		log.Printf("[loop] resolve dependencies: %v", err)
		return false, false
	}

	for _, job := range ready {
		if o.IsRunning(job.ID) {
			continue
		}
		if err := o.launch(job); err != nil {
			log.Printf("[loop] launch job %s: %v", job.ID, err)
			continue
		}
		log.Printf("[loop] launched job %s (%s)", job.ID, job.Title)
		return true, false
	}
	return false, true
}
