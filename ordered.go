package algae

import (
	"fmt"
	"log/slog"
	"maps"
	"reflect"
)

// InputName is the name a chain's input is stored under by [WithInput].
const InputName = "input"

// ResultContext maps names to results computed by earlier steps of an
// [OrderedOperations] chain. The type of each result is only known at runtime.
// The zero value is an empty context.
type ResultContext struct {
	results map[string]namedResult
}

type namedResult struct {
	id  uint32
	typ reflect.Type
}

// Clone returns a copy of the context that can be extended independently.
func (c ResultContext) Clone() ResultContext {
	return ResultContext{results: maps.Clone(c.results)}
}

// Len returns the number of named results.
func (c ResultContext) Len() int { return len(c.results) }

// Lookup returns the id and Go type of the result called name.
func (c ResultContext) Lookup(name string) (id uint32, typ reflect.Type, ok bool) {
	r, ok := c.results[name]
	return r.id, r.typ, ok
}

// Get returns the result called name if it exists and is of type T.
func Get[T any](c ResultContext, name string) (DataID[T], bool) {
	r, ok := c.results[name]
	if !ok || r.typ != reflect.TypeFor[T]() {
		return DataID[T]{}, false
	}
	return DataID[T]{ID: r.id}, true
}

// set stores a result and reports whether a result of the same name was overwritten.
func (c *ResultContext) set(name string, r namedResult) (overwritten bool) {
	if c.results == nil {
		c.results = make(map[string]namedResult)
	}
	_, overwritten = c.results[name]
	c.results[name] = r
	return overwritten
}

// AccessResult is a leaf returning the result of an earlier chain step.
// It panics if no result called Name of type T exists.
type AccessResult[T any] struct {
	Name string
}

func (op AccessResult[T]) Serialize(_ *Serializer, ctx ResultContext) DataID[T] {
	d, ok := Get[T](ctx, op.Name)
	if !ok {
		panic(fmt.Sprintf("expected result with name %q of type %s", op.Name, reflect.TypeFor[T]()))
	}
	return d
}

type step struct {
	name string
	typ  reflect.Type
	run  func(s *Serializer, ctx ResultContext) uint32
}

// OrderedOperations is a chain of named steps serialized in order. Each step
// receives a copy of the context holding the results of all earlier steps and
// of any context inherited from an enclosing chain. The chain's result is the
// result of its last step.
type OrderedOperations[O any] struct {
	steps []step
}

// NewOrdered starts a chain with a single step whose result is stored under name.
func NewOrdered[O any](name string, op Operation[ResultContext, DataID[O]]) *OrderedOperations[O] {
	return &OrderedOperations[O]{steps: []step{newStep(name, op)}}
}

// Then returns a chain extending c with op, whose result is stored under
// name and becomes the chain's result. c is not modified. The result type R
// is given explicitly, i.e: Then[float32](c, name, op).
func Then[R, O any](c *OrderedOperations[O], name string, op Operation[ResultContext, DataID[R]]) *OrderedOperations[R] {
	steps := make([]step, len(c.steps), len(c.steps)+1)
	copy(steps, c.steps)
	return &OrderedOperations[R]{steps: append(steps, newStep(name, op))}
}

func newStep[R any](name string, op Operation[ResultContext, DataID[R]]) step {
	return step{
		name: name,
		typ:  reflect.TypeFor[R](),
		run: func(s *Serializer, ctx ResultContext) uint32 {
			return op.Serialize(s, ctx).ID
		},
	}
}

// Serialize serializes the chain's steps extending the inherited context ctx,
// which is not modified.
func (c *OrderedOperations[O]) Serialize(s *Serializer, ctx ResultContext) DataID[O] {
	if len(c.steps) == 0 {
		panic("empty ordered operations")
	}
	ctx = ctx.Clone()
	var last namedResult
	for _, st := range c.steps {
		last = namedResult{id: st.run(s, ctx.Clone()), typ: st.typ}
		if ctx.set(st.name, last) {
			s.log.Warn("result overwritten in context", slog.String("name", st.name))
		}
	}
	if want := reflect.TypeFor[O](); last.typ != want {
		panic(fmt.Sprintf("chain result type %s does not match expected %s", last.typ, want))
	}
	return DataID[O]{ID: last.id}
}

// Detached returns an operation serializing c with an empty context.
func Detached[O any](c *OrderedOperations[O]) Operation[struct{}, DataID[O]] {
	return detached[O]{c}
}

type detached[O any] struct{ c *OrderedOperations[O] }

func (d detached[O]) Serialize(s *Serializer, _ struct{}) DataID[O] {
	return d.c.Serialize(s, ResultContext{})
}

// WithInput returns an operation serializing c with a context holding the
// operation's input under [InputName].
func WithInput[T, O any](c *OrderedOperations[O]) Operation[DataID[T], DataID[O]] {
	return withInput[T, O]{c}
}

type withInput[T, O any] struct{ c *OrderedOperations[O] }

func (w withInput[T, O]) Serialize(s *Serializer, input DataID[T]) DataID[O] {
	var ctx ResultContext
	ctx.set(InputName, namedResult{id: input.ID, typ: reflect.TypeFor[T]()})
	return w.c.Serialize(s, ctx)
}
