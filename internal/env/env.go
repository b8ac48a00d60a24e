// Package env holds the mutable state of one compiled rule.
//
// Cells are declared at compile time by the node that owns them and are
// only written by that node. Writes made during an evaluation are journaled
// so a failed evaluation can be rolled back and leave the environment as it
// was before the event.
package env

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/patex/internal/scalar"
)

// DefaultMaxBuffer caps queue cells that have no bound of their own.
const DefaultMaxBuffer = 10000

// Kind is the type of a cell.
type Kind int

const (
	KindScalar  Kind = iota // nullable scalar value
	KindCounter             // int64 counter
	KindTime                // nullable timestamp
	KindQueue               // buffered pipeline entries
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindCounter:
		return "counter"
	case KindTime:
		return "time"
	case KindQueue:
		return "queue"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Key names a cell. Keys are "<owner>.<slot>", e.g. "arrow1.index".
type Key string

// MakeKey builds a key for a slot owned by owner.
func MakeKey(owner, slot string) Key {
	return Key(owner + "." + slot)
}

// Entry is one buffered pipeline value.
type Entry struct {
	Value scalar.Value
	Time  time.Time
	Hit   bool // whether the source stage's predicate matched
}

// state is the value part of a cell. Queue slices are never mutated in
// place, only replaced, so copying a state is a cheap snapshot.
type state struct {
	scalar  scalar.Value
	counter int64
	time    time.Time
	timeSet bool
	queue   []Entry
}

type cell struct {
	kind    Kind
	owner   string
	initial state
	current state
}

// Env is the environment of one compiled rule. It is not safe for
// concurrent use.
type Env struct {
	cells     map[Key]*cell
	order     []Key
	maxBuffer int

	journaling bool
	journal    map[Key]state
}

// New creates an empty environment.
func New() *Env {
	return &Env{
		cells:     make(map[Key]*cell),
		maxBuffer: DefaultMaxBuffer,
	}
}

// SetMaxBuffer changes the queue cap. Values below one are ignored.
func (e *Env) SetMaxBuffer(n int) {
	if n > 0 {
		e.maxBuffer = n
	}
}

// MaxBuffer returns the queue cap.
func (e *Env) MaxBuffer() int {
	return e.maxBuffer
}

// Declare registers a cell. Declaring the same key twice is an error: every
// cell has exactly one writer. The initial value must match the kind
// (scalar.Value, int64, time.Time) or be nil.
func (e *Env) Declare(key Key, kind Kind, owner string, initial any) error {
	if existing, ok := e.cells[key]; ok {
		return fmt.Errorf("cell %s already declared by %s", key, existing.owner)
	}

	var st state
	switch kind {
	case KindScalar:
		if initial != nil {
			v, ok := initial.(scalar.Value)
			if !ok {
				return fmt.Errorf("cell %s: initial value %T is not a scalar", key, initial)
			}
			st.scalar = v
		}
	case KindCounter:
		if initial != nil {
			n, ok := initial.(int64)
			if !ok {
				return fmt.Errorf("cell %s: initial value %T is not an int64", key, initial)
			}
			st.counter = n
		}
	case KindTime:
		if initial != nil {
			t, ok := initial.(time.Time)
			if !ok {
				return fmt.Errorf("cell %s: initial value %T is not a time", key, initial)
			}
			st.time, st.timeSet = t, true
		}
	case KindQueue:
		if initial != nil {
			return fmt.Errorf("cell %s: queues start empty", key)
		}
	default:
		return fmt.Errorf("cell %s: unknown kind %v", key, kind)
	}

	e.cells[key] = &cell{kind: kind, owner: owner, initial: st, current: st}
	e.order = append(e.order, key)
	return nil
}

// Owner returns the node that declared key.
func (e *Env) Owner(key Key) string {
	if c, ok := e.cells[key]; ok {
		return c.owner
	}
	return ""
}

// Keys returns every declared key in declaration order.
func (e *Env) Keys() []Key {
	return slices.Clone(e.order)
}

// Len returns the number of declared cells.
func (e *Env) Len() int {
	return len(e.order)
}

func (e *Env) mustCell(key Key, kind Kind) *cell {
	c, ok := e.cells[key]
	if !ok {
		panic(fmt.Sprintf("env: cell %s not declared", key))
	}
	if c.kind != kind {
		panic(fmt.Sprintf("env: cell %s is a %s, not a %s", key, c.kind, kind))
	}
	return c
}

// write journals the cell's previous state once per evaluation.
func (e *Env) write(key Key, c *cell) {
	if !e.journaling {
		return
	}
	if _, seen := e.journal[key]; !seen {
		e.journal[key] = c.current
	}
}

// Scalar returns a scalar cell's value, nil when unset.
func (e *Env) Scalar(key Key) scalar.Value {
	return e.mustCell(key, KindScalar).current.scalar
}

// SetScalar writes a scalar cell. nil clears it.
func (e *Env) SetScalar(key Key, v scalar.Value) {
	c := e.mustCell(key, KindScalar)
	e.write(key, c)
	c.current.scalar = v
}

// Counter returns a counter cell's value.
func (e *Env) Counter(key Key) int64 {
	return e.mustCell(key, KindCounter).current.counter
}

// SetCounter writes a counter cell.
func (e *Env) SetCounter(key Key, n int64) {
	c := e.mustCell(key, KindCounter)
	e.write(key, c)
	c.current.counter = n
}

// Time returns a time cell's value and whether it is set.
func (e *Env) Time(key Key) (time.Time, bool) {
	c := e.mustCell(key, KindTime)
	return c.current.time, c.current.timeSet
}

// SetTime writes a time cell.
func (e *Env) SetTime(key Key, t time.Time) {
	c := e.mustCell(key, KindTime)
	e.write(key, c)
	c.current.time, c.current.timeSet = t, true
}

// ClearTime unsets a time cell.
func (e *Env) ClearTime(key Key) {
	c := e.mustCell(key, KindTime)
	e.write(key, c)
	c.current.time, c.current.timeSet = time.Time{}, false
}

// Queue returns a queue cell's entries. The slice must not be modified.
func (e *Env) Queue(key Key) []Entry {
	return e.mustCell(key, KindQueue).current.queue
}

// SetQueue replaces a queue cell's entries. The environment takes ownership
// of q.
func (e *Env) SetQueue(key Key, q []Entry) {
	c := e.mustCell(key, KindQueue)
	e.write(key, c)
	if len(q) == 0 {
		q = nil
	}
	c.current.queue = q
}

// Push appends an entry, evicting the oldest entries beyond the buffer cap.
func (e *Env) Push(key Key, entry Entry) {
	c := e.mustCell(key, KindQueue)
	e.write(key, c)
	q := append(c.current.queue, entry)
	if over := len(q) - e.maxBuffer; over > 0 {
		q = q[over:]
	}
	c.current.queue = q
}

// Clear restores the given cells to their initial state. Queues become
// empty.
func (e *Env) Clear(keys ...Key) {
	for _, key := range keys {
		c, ok := e.cells[key]
		if !ok {
			continue
		}
		e.write(key, c)
		c.current = c.initial
	}
}

// Begin starts journaling writes for one evaluation.
func (e *Env) Begin() {
	e.journaling = true
	if e.journal == nil {
		e.journal = make(map[Key]state)
	} else {
		clear(e.journal)
	}
}

// Commit keeps every write made since Begin.
func (e *Env) Commit() {
	e.journaling = false
	clear(e.journal)
}

// Rollback undoes every write made since Begin.
func (e *Env) Rollback() {
	for key, st := range e.journal {
		e.cells[key].current = st
	}
	e.journaling = false
	clear(e.journal)
}

// Reset restores every cell to its post-compile value. Queues are replaced
// by fresh empty queues rather than copied.
func (e *Env) Reset() {
	for _, c := range e.cells {
		c.current = c.initial
		c.current.queue = nil
	}
	e.journaling = false
	clear(e.journal)
}

// CellState describes one cell for introspection.
type CellState struct {
	Key   Key    `json:"key"`
	Kind  string `json:"kind"`
	Owner string `json:"owner"`
	Value any    `json:"value"`
}

// Snapshot returns the current state of every cell in declaration order.
// Values are plain Go values suitable for JSON encoding.
func (e *Env) Snapshot() []CellState {
	out := make([]CellState, 0, len(e.order))
	for _, key := range e.order {
		c := e.cells[key]
		cs := CellState{Key: key, Kind: c.kind.String(), Owner: c.owner}
		switch c.kind {
		case KindScalar:
			if c.current.scalar != nil {
				cs.Value = c.current.scalar.String()
			}
		case KindCounter:
			cs.Value = c.current.counter
		case KindTime:
			if c.current.timeSet {
				cs.Value = c.current.time.UTC().Format(time.RFC3339Nano)
			}
		case KindQueue:
			vals := make([]string, len(c.current.queue))
			for i, en := range c.current.queue {
				vals[i] = en.Value.String()
			}
			cs.Value = vals
		}
		out = append(out, cs)
	}
	return out
}
