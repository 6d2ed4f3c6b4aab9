// Package listing derives the visible rows of a dashboard table from an
// immutable collection plus a search term, status filter and sort key.
//
// Controllers are values: every mutation returns a new controller and the
// backing slice is never written to. Mutations are limited to the named
// actions registered at construction and each one is recorded in a change log.
package listing

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrUnknownAction = errors.New("unknown list action")
	ErrItemNotFound  = errors.New("list item not found")
)

// StatusAll is the identity status filter.
const StatusAll = "all"

type SortKey string

const (
	SortDefault    SortKey = "default"
	SortDateAsc    SortKey = "date_asc"
	SortDateDesc   SortKey = "date_desc"
	SortAmountDesc SortKey = "amount_desc"
	SortName       SortKey = "name"
)

// ParseSortKey maps a query parameter to a SortKey, defaulting to SortDefault.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(s); k {
	case SortDateAsc, SortDateDesc, SortAmountDesc, SortName:
		return k
	default:
		return SortDefault
	}
}

type Query struct {
	SearchTerm   string
	StatusFilter string
	SortKey      SortKey
}

// Schema tells the controller how to read an item. Status, Date and Amount
// may be nil when the collection has no such column. Search lists the
// fields a search term is matched against, each on its own; nil means
// Display only.
type Schema[T any] struct {
	ID      func(T) string
	Display func(T) string
	Search  func(T) []string
	Status  func(T) string
	Date    func(T) time.Time
	Amount  func(T) float64
}

// Derive returns sort(filter(items)) without touching items.
func Derive[T any](items []T, q Query, s Schema[T]) []T {
	term := strings.ToLower(strings.TrimSpace(q.SearchTerm))
	status := strings.ToLower(strings.TrimSpace(q.StatusFilter))

	out := make([]T, 0, len(items))
	for _, item := range items {
		if term != "" && !s.matches(item, term) {
			continue
		}
		if status != "" && status != StatusAll && s.Status != nil && strings.ToLower(s.Status(item)) != status {
			continue
		}
		out = append(out, item)
	}

	if less := comparator(q.SortKey, s); less != nil {
		slices.SortStableFunc(out, less)
	}
	return out
}

func (s Schema[T]) matches(item T, term string) bool {
	if s.Search == nil {
		return strings.Contains(strings.ToLower(s.Display(item)), term)
	}
	return slices.ContainsFunc(s.Search(item), func(field string) bool {
		return strings.Contains(strings.ToLower(field), term)
	})
}

func comparator[T any](key SortKey, s Schema[T]) func(a, b T) int {
	switch key {
	case SortDateAsc:
		if s.Date != nil {
			return func(a, b T) int { return s.Date(a).Compare(s.Date(b)) }
		}
	case SortDateDesc:
		if s.Date != nil {
			return func(a, b T) int { return s.Date(b).Compare(s.Date(a)) }
		}
	case SortAmountDesc:
		if s.Amount != nil {
			return func(a, b T) int { return cmp.Compare(s.Amount(b), s.Amount(a)) }
		}
	case SortName:
		return func(a, b T) int {
			return strings.Compare(strings.ToLower(s.Display(a)), strings.ToLower(s.Display(b)))
		}
	}
	return nil
}

// Mutation transforms one item for a named action. It must return a new
// value rather than modify shared state reachable from the input.
type Mutation[T any] func(T) T

// Change is one entry in a controller's audit log.
type Change struct {
	Action string
	IDs    []string
	All    bool
	At     time.Time
}

type Option[T any] func(*Controller[T])

// WithAction registers a named item mutation.
func WithAction[T any](name string, fn Mutation[T]) Option[T] {
	return func(c *Controller[T]) {
		c.actions[name] = fn
	}
}

func WithClock[T any](clock clockwork.Clock) Option[T] {
	return func(c *Controller[T]) {
		c.clock = clock
	}
}

type Controller[T any] struct {
	schema  Schema[T]
	items   []T
	query   Query
	actions map[string]Mutation[T]
	changes []Change
	clock   clockwork.Clock
}

func New[T any](items []T, schema Schema[T], opts ...Option[T]) *Controller[T] {
	c := &Controller[T]{
		schema:  schema,
		items:   slices.Clone(items),
		query:   Query{StatusFilter: StatusAll, SortKey: SortDefault},
		actions: make(map[string]Mutation[T]),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Items returns a copy of the backing collection in original order.
func (c *Controller[T]) Items() []T {
	return slices.Clone(c.items)
}

func (c *Controller[T]) Len() int { return len(c.items) }

func (c *Controller[T]) Query() Query { return c.query }

// Visible is the derived view under the current query.
func (c *Controller[T]) Visible() []T {
	return Derive(c.items, c.query, c.schema)
}

// Changes returns the audit log, oldest first.
func (c *Controller[T]) Changes() []Change {
	return slices.Clone(c.changes)
}

// Count returns how many backing items satisfy pred.
func (c *Controller[T]) Count(pred func(T) bool) int {
	n := 0
	for _, item := range c.items {
		if pred(item) {
			n++
		}
	}
	return n
}

func (c *Controller[T]) Find(id string) (T, bool) {
	for _, item := range c.items {
		if c.schema.ID(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// WithQuery returns a controller showing the same items under q.
func (c *Controller[T]) WithQuery(q Query) *Controller[T] {
	next := c.derive(c.items)
	if q.StatusFilter == "" {
		q.StatusFilter = StatusAll
	}
	if q.SortKey == "" {
		q.SortKey = SortDefault
	}
	next.query = q
	return next
}

// Apply runs the named action on the item with id.
func (c *Controller[T]) Apply(action, id string) (*Controller[T], error) {
	fn, ok := c.actions[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	items := make([]T, len(c.items))
	found := false
	for i, item := range c.items {
		if c.schema.ID(item) == id {
			item = fn(item)
			found = true
		}
		items[i] = item
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	next := c.derive(items)
	next.record(Change{Action: action, IDs: []string{id}})
	return next, nil
}

// ApplyAll runs the named action on every item.
func (c *Controller[T]) ApplyAll(action string) (*Controller[T], error) {
	fn, ok := c.actions[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	items := make([]T, len(c.items))
	ids := make([]string, len(c.items))
	for i, item := range c.items {
		items[i] = fn(item)
		ids[i] = c.schema.ID(item)
	}

	next := c.derive(items)
	next.record(Change{Action: action, IDs: ids, All: true})
	return next, nil
}

// Delete removes the item with id.
func (c *Controller[T]) Delete(id string) (*Controller[T], error) {
	items := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if c.schema.ID(item) != id {
			items = append(items, item)
		}
	}
	if len(items) == len(c.items) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	next := c.derive(items)
	next.record(Change{Action: ActionDelete, IDs: []string{id}})
	return next, nil
}

func (c *Controller[T]) derive(items []T) *Controller[T] {
	return &Controller[T]{
		schema:  c.schema,
		items:   items,
		query:   c.query,
		actions: c.actions,
		changes: slices.Clone(c.changes),
		clock:   c.clock,
	}
}

func (c *Controller[T]) record(ch Change) {
	ch.At = c.clock.Now()
	c.changes = append(c.changes, ch)
}
