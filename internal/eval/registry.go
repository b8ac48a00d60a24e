package eval

import (
	"fmt"
	"sort"

	"github.com/roach88/patex/internal/chain"
	"github.com/roach88/patex/internal/diag"
	"github.com/roach88/patex/internal/env"
	"github.com/roach88/patex/internal/scalar"
)

// Filter is a custom pipeline source. Args are the constant arguments
// written in the call.
type Filter interface {
	Filter(ev Event, args []scalar.Value) (bool, error)
}

// Aggregator is a custom pipeline aggregate over the hit values. Returning
// a nil value means "not ready" and is treated as no match.
type Aggregator interface {
	Aggregate(values []scalar.Value, args []scalar.Value) (scalar.Value, error)
}

// Meeter is a custom terminal stage.
type Meeter interface {
	Meet(v scalar.Value, args []scalar.Value) (bool, error)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ev Event, args []scalar.Value) (bool, error)

func (f FilterFunc) Filter(ev Event, args []scalar.Value) (bool, error) { return f(ev, args) }

// AggregateFunc adapts a function to Aggregator.
type AggregateFunc func(values []scalar.Value, args []scalar.Value) (scalar.Value, error)

func (f AggregateFunc) Aggregate(values []scalar.Value, args []scalar.Value) (scalar.Value, error) {
	return f(values, args)
}

// MeetFunc adapts a function to Meeter.
type MeetFunc func(v scalar.Value, args []scalar.Value) (bool, error)

func (f MeetFunc) Meet(v scalar.Value, args []scalar.Value) (bool, error) { return f(v, args) }

// reservedNames cannot be registered: built-in stages and functions.
var reservedNames = map[string]bool{
	"count": true, "keep": true, "delay": true, "slope": true,
	"value": true, "it": true,
}

// Registry is an explicit table of custom pipeline functions.
type Registry struct {
	filters    map[string]Filter
	aggregates map[string]Aggregator
	meets      map[string]Meeter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		filters:    make(map[string]Filter),
		aggregates: make(map[string]Aggregator),
		meets:      make(map[string]Meeter),
	}
}

func (r *Registry) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("custom function name is empty")
	}
	if chain.IsBuiltin(name) || reservedNames[name] {
		return fmt.Errorf("%q is a built-in name", name)
	}
	if _, ok := r.Roles()[name]; ok {
		return fmt.Errorf("%q is already registered", name)
	}
	return nil
}

// RegisterFilter adds a custom source stage.
func (r *Registry) RegisterFilter(name string, f Filter) error {
	if err := r.checkName(name); err != nil {
		return err
	}
	r.filters[name] = f
	return nil
}

// RegisterAggregate adds a custom aggregate stage.
func (r *Registry) RegisterAggregate(name string, a Aggregator) error {
	if err := r.checkName(name); err != nil {
		return err
	}
	r.aggregates[name] = a
	return nil
}

// RegisterMeet adds a custom terminal stage.
func (r *Registry) RegisterMeet(name string, m Meeter) error {
	if err := r.checkName(name); err != nil {
		return err
	}
	r.meets[name] = m
	return nil
}

// Roles reports the pipeline role of every registered name. A nil registry
// has none.
func (r *Registry) Roles() chain.Roles {
	roles := chain.Roles{}
	if r == nil {
		return roles
	}
	for name := range r.filters {
		roles[name] = chain.RoleFilter
	}
	for name := range r.aggregates {
		roles[name] = chain.RoleAggregate
	}
	for name := range r.meets {
		roles[name] = chain.RoleMeet
	}
	return roles
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	roles := r.Roles()
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSource returns the source stage for a registered filter.
func (r *Registry) NewSource(name string, args []scalar.Value) (Source, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.filters[name]
	if !ok {
		return nil, false
	}
	return &customSource{filter: f, args: args}, true
}

// NewAggregate returns the aggregate stage for a registered aggregator.
func (r *Registry) NewAggregate(name string, args []scalar.Value, pos diag.Pos) (Aggregate, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.aggregates[name]
	if !ok {
		return nil, false
	}
	return customAgg{name: name, agg: a, args: args, pos: pos}, true
}

// NewMeet returns the terminal stage for a registered meet.
func (r *Registry) NewMeet(name string, args []scalar.Value) (Meet, bool) {
	if r == nil {
		return nil, false
	}
	m, ok := r.meets[name]
	if !ok {
		return nil, false
	}
	return &customMeet{meeter: m, args: args}, true
}

type customSource struct {
	filter Filter
	args   []scalar.Value
}

func (s *customSource) Accept(ev Event, _ *env.Env) (bool, error) {
	return s.filter.Filter(ev, s.args)
}

func (s *customSource) Cells() []env.Key { return nil }

type customMeet struct {
	meeter Meeter
	args   []scalar.Value
}

func (m *customMeet) Meets(v scalar.Value, _ Event, _ *env.Env) (bool, error) {
	return m.meeter.Meet(v, m.args)
}
