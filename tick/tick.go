// Package tick implements the runtime tick loop: a fixed-step accumulator
// that drains due commands, dispatches them, runs the progression
// coordinator, and publishes one snapshot per step (spec.md §4.K).
package tick

import (
	"sync"
	"time"

	"github.com/forgelabs/ember/command"
	"github.com/forgelabs/ember/dispatch"
	"github.com/forgelabs/ember/progression"
	"github.com/forgelabs/ember/queue"
	"github.com/forgelabs/ember/state"
	"github.com/forgelabs/ember/telemetry"
)

// FatalError signals a tick-loop integrity violation — currently just the
// hydrate-from-an-earlier-step case.
type FatalError struct {
	Op     string
	Detail string
}

func (e *FatalError) Error() string { return "tick: " + e.Op + ": " + e.Detail }

func (e *FatalError) FatalError() bool { return true }

// Frame is one executed step's published snapshot plus the progression
// events it produced.
type Frame struct {
	Step     int64
	Snapshot state.WorldSnapshot
	Events   []progression.Event
}

// Result is tick's return value: every frame executed this call, how many
// were dropped by the step budget, and the step the next call resumes at.
type Result struct {
	Frames        []Frame
	DroppedFrames int
	NextStep      int64
}

// Loop is the fixed-step accumulator. Not safe for concurrent Tick/
// FastForward calls — the runtime is single-threaded cooperative per
// spec.md's determinism requirement.
type Loop struct {
	stepSizeMs       int64
	maxStepsPerFrame int

	queue       *queue.Queue
	dispatcher  *dispatch.Dispatcher
	coordinator *progression.Coordinator

	currentStep int64
	accumulator int64

	mu          sync.Mutex
	scheduler   *time.Ticker
	schedulerWG sync.WaitGroup
	stopCh      chan struct{}
}

// Config configures a Loop.
type Config struct {
	StepSizeMs       int64
	MaxStepsPerFrame int
	Queue            *queue.Queue
	Dispatcher       *dispatch.Dispatcher
	Coordinator      *progression.Coordinator
	StartStep        int64
}

// New constructs a Loop from cfg, wiring cfg.Coordinator's mutators onto
// cfg.Dispatcher under their command types (see progression.RegisterHandlers)
// so queued PURCHASE_GENERATOR/PURCHASE_UPGRADE/APPLY_PRESTIGE commands
// reach the coordinator once dispatched.
func New(cfg Config) *Loop {
	progression.RegisterHandlers(cfg.Dispatcher, cfg.Coordinator)
	return &Loop{
		stepSizeMs:       cfg.StepSizeMs,
		maxStepsPerFrame: cfg.MaxStepsPerFrame,
		queue:            cfg.Queue,
		dispatcher:       cfg.Dispatcher,
		coordinator:      cfg.Coordinator,
		currentStep:      cfg.StartStep,
	}
}

// CurrentStep returns the step the loop last completed.
func (l *Loop) CurrentStep() int64 { return l.currentStep }

// StepSizeMs returns the loop's configured fixed step size.
func (l *Loop) StepSizeMs() int64 { return l.stepSizeMs }

// Tick advances the accumulator by deltaMs and runs as many whole steps as
// the budget allows, retaining any excess in the accumulator for the next
// call (catch-up semantics).
func (l *Loop) Tick(deltaMs int64) Result {
	l.accumulator += deltaMs
	var frames []Frame
	stepsExecuted := 0

	for l.accumulator >= l.stepSizeMs && stepsExecuted < l.maxStepsPerFrame {
		frames = append(frames, l.runStep())
		l.accumulator -= l.stepSizeMs
		stepsExecuted++
	}

	dropped := 0
	if l.accumulator >= l.stepSizeMs {
		dropped = int(l.accumulator / l.stepSizeMs)
	}

	telemetry.Default().RecordTick()
	return Result{Frames: frames, DroppedFrames: dropped, NextStep: l.currentStep + 1}
}

// FastForward bypasses the per-call step budget entirely, running every
// whole step ms represents. Used for offline catch-up and deterministic
// tests.
func (l *Loop) FastForward(ms int64) Result {
	l.accumulator += ms
	var frames []Frame
	for l.accumulator >= l.stepSizeMs {
		frames = append(frames, l.runStep())
		l.accumulator -= l.stepSizeMs
	}
	telemetry.Default().RecordTick()
	return Result{Frames: frames, DroppedFrames: 0, NextStep: l.currentStep + 1}
}

// runStep executes one fixed-size step: advance currentStep, drain due
// commands in priority order, dispatch each, credit generator production,
// run the progression coordinator's gate evaluation, then publish one
// snapshot for the step.
func (l *Loop) runStep() Frame {
	l.currentStep++

	due := l.queue.DrainDue(l.currentStep)
	for _, cmd := range due {
		l.executeWithFollowUps(cmd)
	}

	l.coordinator.ApplyProduction()
	events := l.coordinator.UpdateForStep(l.currentStep)
	snapshot := l.coordinator.World.Snapshot()

	return Frame{Step: l.currentStep, Snapshot: snapshot, Events: events}
}

// executeWithFollowUps dispatches cmd, running any follow-up commands a
// handler enqueues immediately (in the same tick) when their step is <=
// the current step, per spec.md §4.F.
func (l *Loop) executeWithFollowUps(cmd *command.Command) {
	var followUps []*command.Command
	ctx := &dispatch.Context{
		CurrentStep: l.currentStep,
		Phase:       command.PhaseLive,
		Enqueue: func(follow *command.Command) {
			followUps = append(followUps, follow)
		},
	}
	result := l.dispatcher.Execute(cmd, ctx)
	if !result.Success && result.Err != nil {
		telemetry.Default().RecordWarning("CommandExecutionFailed", map[string]any{
			"type": cmd.Type(),
			"code": result.Err.Code,
		})
	}
	for _, follow := range followUps {
		if follow.Step() <= l.currentStep {
			l.executeWithFollowUps(follow)
		} else {
			l.queue.Enqueue(follow)
		}
	}
}

// HydrateStep sets the loop's current step after a save hydrate, rejecting
// a step earlier than the one the loop is already running at.
func (l *Loop) HydrateStep(step int64) {
	if step < l.currentStep {
		panic(&FatalError{Op: "hydrate_step", Detail: "cannot hydrate from a step earlier than the running runtime"})
	}
	l.currentStep = step
	l.accumulator = 0
}

// Start registers a scheduler callback at intervalMs (falling back to
// stepSizeMs when intervalMs <= 0, with a minimum clamp of 1ms) that calls
// Tick(intervalMs) on each fire; the delta is the fixed interval, not a
// measured wall-clock delta.
func (l *Loop) Start(intervalMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.scheduler != nil {
		return
	}
	if intervalMs <= 0 {
		intervalMs = l.stepSizeMs
	}
	if intervalMs < 1 {
		intervalMs = 1
	}

	l.scheduler = time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	l.stopCh = make(chan struct{})
	l.schedulerWG.Add(1)
	go func(interval int64) {
		defer l.schedulerWG.Done()
		for {
			select {
			case <-l.scheduler.C:
				l.Tick(interval)
			case <-l.stopCh:
				return
			}
		}
	}(intervalMs)
}

// Stop cancels the scheduler callback registered by Start, blocking until
// the scheduler goroutine has exited.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.scheduler == nil {
		l.mu.Unlock()
		return
	}
	l.scheduler.Stop()
	close(l.stopCh)
	l.scheduler = nil
	l.mu.Unlock()
	l.schedulerWG.Wait()
}
