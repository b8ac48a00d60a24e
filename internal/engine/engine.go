package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/patex/internal/eval"
	"github.com/roach88/patex/internal/scalar"
	"github.com/roach88/patex/internal/store"
)

// Recorder receives every processed event and every evaluation.
// *store.Store implements it.
type Recorder interface {
	WriteEvent(ctx context.Context, ev store.Event) error
	WriteEvaluation(ctx context.Context, e store.Evaluation) error
}

// Result is one rule's verdict on one event.
type Result struct {
	RuleID   string
	RuleName string
	Seq      int64
	Matched  bool
	Value    scalar.Value // pipeline result when the rule matched with a value
	Err      error
}

// RuleInfo describes a registered rule.
type RuleInfo struct {
	ID     string
	Name   string
	Source string
}

type ruleEntry struct {
	id   string
	name string
	rule *CompiledRule
}

// Engine is the single-writer evaluation loop over a set of rules.
//
// Every event is stamped with a logical seq and evaluated by each rule in
// registration order. Evaluation errors are logged and counted; they never
// stop the loop.
//
// Thread-safety model:
//   - Enqueue(), Register(), Unregister(), Rules(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Process(): serialized with Run by the engine's lock
//
// INVARIANTS:
//   - rules are evaluated in registration order
//   - a CompiledRule registered here is only touched under e.mu
type Engine struct {
	mu    sync.Mutex
	rules []*ruleEntry

	clock    *Clock
	queue    *eventQueue
	ids      IDGenerator
	recorder Recorder
	metrics  *Metrics
	now      func() time.Time
	onResult func(Result)
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRecorder logs events and evaluations to r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithMetrics updates m for every event and evaluation.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator sets the generator for rule ids (default UUIDv7).
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the logical clock, e.g. NewClockAt(lastSeq) to append to
// an existing log.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithNow sets the wall clock used to timestamp events that arrive
// without a time.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithResultHandler calls fn for every evaluation, in order, from the
// goroutine processing the event.
func WithResultHandler(fn func(Result)) EngineOption {
	return func(e *Engine) {
		e.onResult = fn
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine with no rules.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		clock:  NewClock(),
		queue:  newEventQueue(),
		ids:    UUIDv7Generator{},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a rule and returns its id. The engine takes ownership of
// rule: callers must not evaluate it directly afterwards.
func (e *Engine) Register(name string, rule *CompiledRule) string {
	id := e.ids.Generate()

	e.mu.Lock()
	e.rules = append(e.rules, &ruleEntry{id: id, name: name, rule: rule})
	n := len(e.rules)
	e.mu.Unlock()

	e.metrics.setRules(n)
	e.logger.Info("rule registered", "rule_id", id, "rule", name)
	return id
}

// Unregister removes the rule with the given id.
func (e *Engine) Unregister(id string) error {
	e.mu.Lock()
	i := slices.IndexFunc(e.rules, func(r *ruleEntry) bool { return r.id == id })
	if i < 0 {
		e.mu.Unlock()
		return newUnknownRuleError(id)
	}
	e.rules = slices.Delete(e.rules, i, i+1)
	n := len(e.rules)
	e.mu.Unlock()

	e.metrics.setRules(n)
	e.logger.Info("rule unregistered", "rule_id", id)
	return nil
}

// Rules lists registered rules in evaluation order.
func (e *Engine) Rules() []RuleInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]RuleInfo, len(e.rules))
	for i, r := range e.rules {
		out[i] = RuleInfo{ID: r.id, Name: r.name, Source: r.rule.Source()}
	}
	return out
}

// Reset resets the rule with the given id to its post-compile state.
func (e *Engine) Reset(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.rules {
		if r.id == id {
			r.rule.Reset()
			return nil
		}
	}
	return newUnknownRuleError(id)
}

// Enqueue submits an event for the Run loop.
// Safe from any goroutine. Returns false once the engine is stopped.
func (e *Engine) Enqueue(ev eval.Event) bool {
	if !e.queue.Enqueue(ev) {
		return false
	}
	e.metrics.setQueueDepth(e.queue.Len())
	return true
}

// Run processes queued events until ctx is cancelled or Stop is called
// and the queue has drained.
//
// Run must be called from exactly one goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "rules", len(e.Rules()))

	var batch []eval.Event
	for {
		batch = e.queue.Drain(batch)
		if len(batch) > 0 {
			e.metrics.setQueueDepth(e.queue.Len())
			for _, ev := range batch {
				if _, err := e.process(ctx, ev, true); err != nil {
					// Log and continue: a retry could reorder events.
					e.logEventError(ev, err)
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Close, so a closed queue
			// keeps firing here until it has drained.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.metrics.setQueueDepth(0)
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns after processing what is queued.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Process stamps and evaluates one event synchronously, for callers that
// don't run the loop. The returned error is a recorder failure; rule
// failures are reported per Result.
func (e *Engine) Process(ctx context.Context, ev eval.Event) ([]Result, error) {
	return e.process(ctx, ev, true)
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// QueueLen returns the number of events waiting for Run.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// process evaluates ev against every rule. With stamp set the event gets
// the next seq, and a wall-clock time if it has none; replays pass logged
// events through unchanged.
func (e *Engine) process(ctx context.Context, ev eval.Event, stamp bool) ([]Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if stamp {
		ev.Seq = e.clock.Next()
		if ev.Time.IsZero() && e.now != nil {
			ev.Time = e.now()
		}
	} else {
		e.clock.Observe(ev.Seq)
	}

	if e.recorder != nil {
		// An event that cannot be logged is not evaluated, so the log and
		// the rule states never disagree.
		if err := e.recorder.WriteEvent(ctx, store.EventFrom(ev)); err != nil {
			return nil, newRecordError(ev.Seq, "", err)
		}
	}

	start := time.Now()
	results := make([]Result, 0, len(e.rules))
	var firstErr error

	for _, r := range e.rules {
		res := Result{RuleID: r.id, RuleName: r.name, Seq: ev.Seq}
		out, err := r.rule.EvaluateOutcome(ev)
		if err != nil {
			res.Err = err
			e.logger.Warn("rule evaluation failed",
				"rule_id", r.id,
				"rule", r.name,
				"seq", ev.Seq,
				"error", err,
			)
		} else {
			res.Matched = out.Matched()
			res.Value = out.Value
			if res.Matched {
				e.logger.Info("rule matched", "rule_id", r.id, "rule", r.name, "seq", ev.Seq)
			}
		}
		e.metrics.observeEvaluation(r.name, res.Matched, res.Err)

		if e.recorder != nil {
			if err := e.recorder.WriteEvaluation(ctx, evaluationRecord(res)); err != nil && firstErr == nil {
				firstErr = newRecordError(ev.Seq, r.id, err)
			}
		}
		if e.onResult != nil {
			e.onResult(res)
		}
		results = append(results, res)
	}

	e.metrics.observeEvent(time.Since(start).Seconds())
	e.logger.Debug("event processed", "seq", ev.Seq, "value", valueString(ev.Value), "rules", len(e.rules))

	return results, firstErr
}

func evaluationRecord(res Result) store.Evaluation {
	rec := store.Evaluation{
		Seq:      res.Seq,
		RuleID:   res.RuleID,
		RuleName: res.RuleName,
		Matched:  res.Matched,
		Value:    res.Value,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

func valueString(v scalar.Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}

// logEventError logs an event processing failure with enough context to
// find the event again in the log.
func (e *Engine) logEventError(ev eval.Event, err error) {
	e.logger.Error("event processing failed",
		"error", err,
		"seq", ev.Seq,
		"value", valueString(ev.Value),
		"type", ev.Type.String(),
	)
}
