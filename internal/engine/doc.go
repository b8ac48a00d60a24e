// Package engine compiles pattern-expression rules and runs them over event
// streams.
//
// A CompiledRule is the unit of evaluation: one source string lowered to an
// evaluation node tree plus the environment that holds its state. It is not
// safe for concurrent use; wrap it in a LockedRule or hand it to an Engine.
//
// ARCHITECTURE:
//
// Compile pipeline:
//
//	source -> NFC -> lexer -> parser -> chain validator -> translator -> CompiledRule
//
// Each phase fails with a *diag.Error carrying phase, code and position.
// Nothing is shared between compilations, so rules can be compiled from
// many goroutines at once.
//
// Single-Writer Event Loop:
// Engine holds any number of registered rules and feeds every event to each
// of them in registration order from a single goroutine. This keeps
// evaluation deterministic:
//   - events are stamped with a logical seq from Clock.Next()
//   - rules see events in enqueue order
//   - replaying the event log yields the same matches
//
// Event Processing Flow:
//  1. Events are enqueued to an unbounded FIFO queue
//  2. Engine.Run() dequeues events one at a time
//  3. The event is stamped and written to the Recorder
//  4. Every rule evaluates it; the evaluation is recorded and counted
//  5. Evaluation errors are logged and the loop continues
package engine
