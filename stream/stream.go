package stream

import "context"

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// Stream is a lazy sequence. Each pull creates a fresh iterator, so a Stream
// built from a slice can be consumed more than once.
type Stream[T any] struct {
	create func(ctx context.Context) Iterator[T]
}

// Iter returns a raw iterator. The caller must Close it.
func (s *Stream[T]) Iter(ctx context.Context) Iterator[T] {
	return s.create(ctx)
}

// --- Constructors ---

// FromSlice streams the items of a slice in order.
func FromSlice[T any](items []T) *Stream[T] {
	return &Stream[T]{create: func(context.Context) Iterator[T] {
		return &sliceIter[T]{items: items}
	}}
}

// FromIterator wraps an existing iterator. The resulting stream can be pulled once.
func FromIterator[T any](it Iterator[T]) *Stream[T] {
	return &Stream[T]{create: func(context.Context) Iterator[T] { return it }}
}

// Generate streams values from fn until it reports false or fails.
func Generate[T any](fn func(ctx context.Context) (T, bool, error)) *Stream[T] {
	return &Stream[T]{create: func(context.Context) Iterator[T] {
		return &funcIter[T]{fn: fn}
	}}
}

// --- Terminals ---

// ForEach pulls all values and calls fn for each, stopping at the first error.
func ForEach[T any](ctx context.Context, s *Stream[T], fn func(context.Context, T) error) error {
	it := s.create(ctx)
	defer it.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		val, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(ctx, val); err != nil {
			return err
		}
	}
}

// Collect pulls all values into a slice. On error the values pulled so far
// are returned with it.
func Collect[T any](ctx context.Context, s *Stream[T]) ([]T, error) {
	var out []T
	err := ForEach(ctx, s, func(_ context.Context, v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// Reduce folds all values into an accumulator.
func Reduce[T, R any](ctx context.Context, s *Stream[T], init R, fn func(R, T) R) (R, error) {
	acc := init
	err := ForEach(ctx, s, func(_ context.Context, v T) error {
		acc = fn(acc, v)
		return nil
	})
	return acc, err
}

// --- Internal iterators ---

type sliceIter[T any] struct {
	items []T
	index int
}

func (it *sliceIter[T]) Next(context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceIter[T]) Close() error { return nil }

type funcIter[T any] struct {
	fn   func(ctx context.Context) (T, bool, error)
	done bool
}

func (it *funcIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if it.done {
		return zero, false, nil
	}
	val, ok, err := it.fn(ctx)
	if err != nil || !ok {
		it.done = true
		return zero, false, err
	}
	return val, true, nil
}

func (it *funcIter[T]) Close() error { return nil }
