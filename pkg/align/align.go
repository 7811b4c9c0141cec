// Package align merge-joins two strictly increasing key sequences.
//
// The index side carries full items, the store side carries only keys. Each
// step of the join advances whichever cursor holds the smaller key, so a join
// over n index items and m store keys costs O(n+m) comparisons.
package align

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
)

// ErrUnsorted indicates an input that is not strictly increasing.
var ErrUnsorted = errors.New("align: input not strictly increasing")

// Action classifies a pair produced by the join.
type Action int

const (
	// Create marks an index item with no store counterpart.
	Create Action = iota
	// Update marks keys present on both sides; callers compare content.
	Update
	// Remove marks a store key absent from the index.
	Remove
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Update:
		return "update"
	case Remove:
		return "remove"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Pair is one step of the join. At least one of HasItem or HasStore is true.
type Pair[T any, K cmp.Ordered] struct {
	Item     T
	HasItem  bool
	StoreKey K
	HasStore bool
}

// Action reports how the pair should be handled.
func (p Pair[T, K]) Action() Action {
	switch {
	case p.HasItem && p.HasStore:
		return Update
	case p.HasItem:
		return Create
	default:
		return Remove
	}
}

// Join lazily merge-joins index items (ordered by key) with store keys.
// Ordering is checked as the cursors advance; the first out-of-order element
// ends the sequence with an error wrapping ErrUnsorted.
func Join[T any, K cmp.Ordered](index iter.Seq[T], key func(T) K, store iter.Seq[K]) iter.Seq2[Pair[T, K], error] {
	return func(yield func(Pair[T, K], error) bool) {
		nextItem, stopItems := iter.Pull(index)
		defer stopItems()
		nextKey, stopKeys := iter.Pull(store)
		defer stopKeys()

		ic := cursor[T, K]{next: nextItem, key: key, side: "index"}
		sc := cursor[K, K]{next: nextKey, key: identity[K], side: "store"}

		if err := ic.advance(); err != nil {
			yield(Pair[T, K]{}, err)
			return
		}
		if err := sc.advance(); err != nil {
			yield(Pair[T, K]{}, err)
			return
		}

		for ic.ok || sc.ok {
			var (
				p         Pair[T, K]
				moveIndex bool
				moveStore bool
			)

			switch {
			case ic.ok && sc.ok:
				switch c := cmp.Compare(ic.cur, sc.cur); {
				case c == 0:
					p = Pair[T, K]{Item: ic.val, HasItem: true, StoreKey: sc.cur, HasStore: true}
					moveIndex, moveStore = true, true
				case c < 0:
					p = Pair[T, K]{Item: ic.val, HasItem: true}
					moveIndex = true
				default:
					p = Pair[T, K]{StoreKey: sc.cur, HasStore: true}
					moveStore = true
				}
			case ic.ok:
				p = Pair[T, K]{Item: ic.val, HasItem: true}
				moveIndex = true
			default:
				p = Pair[T, K]{StoreKey: sc.cur, HasStore: true}
				moveStore = true
			}

			if !yield(p, nil) {
				return
			}

			if moveIndex {
				if err := ic.advance(); err != nil {
					yield(Pair[T, K]{}, err)
					return
				}
			}
			if moveStore {
				if err := sc.advance(); err != nil {
					yield(Pair[T, K]{}, err)
					return
				}
			}
		}
	}
}

// Slices verifies both inputs up front and returns the join as a sequence
// that cannot fail. Callers that apply side effects per pair should prefer
// this form so an ordering violation is detected before any work is done.
func Slices[T any, K cmp.Ordered](index []T, key func(T) K, store []K) (iter.Seq[Pair[T, K]], error) {
	if err := checkSorted("index", index, key); err != nil {
		return nil, err
	}
	if err := checkSorted("store", store, identity[K]); err != nil {
		return nil, err
	}

	return func(yield func(Pair[T, K]) bool) {
		i, j := 0, 0
		for i < len(index) || j < len(store) {
			var p Pair[T, K]

			switch {
			case i < len(index) && j < len(store):
				switch c := cmp.Compare(key(index[i]), store[j]); {
				case c == 0:
					p = Pair[T, K]{Item: index[i], HasItem: true, StoreKey: store[j], HasStore: true}
					i++
					j++
				case c < 0:
					p = Pair[T, K]{Item: index[i], HasItem: true}
					i++
				default:
					p = Pair[T, K]{StoreKey: store[j], HasStore: true}
					j++
				}
			case i < len(index):
				p = Pair[T, K]{Item: index[i], HasItem: true}
				i++
			default:
				p = Pair[T, K]{StoreKey: store[j], HasStore: true}
				j++
			}

			if !yield(p) {
				return
			}
		}
	}, nil
}

type cursor[T any, K cmp.Ordered] struct {
	next func() (T, bool)
	key  func(T) K
	side string

	val  T
	cur  K
	ok   bool
	seen bool
}

func (c *cursor[T, K]) advance() error {
	v, ok := c.next()
	c.ok = ok
	if !ok {
		return nil
	}

	k := c.key(v)
	if c.seen && cmp.Compare(k, c.cur) <= 0 {
		c.ok = false
		return fmt.Errorf("%w: %s key %v follows %v", ErrUnsorted, c.side, k, c.cur)
	}

	c.val, c.cur, c.seen = v, k, true
	return nil
}

func checkSorted[T any, K cmp.Ordered](side string, items []T, key func(T) K) error {
	for i := 1; i < len(items); i++ {
		prev, cur := key(items[i-1]), key(items[i])
		if cmp.Compare(cur, prev) <= 0 {
			return fmt.Errorf("%w: %s key %v at position %d follows %v", ErrUnsorted, side, cur, i, prev)
		}
	}
	return nil
}

func identity[K any](k K) K { return k }
