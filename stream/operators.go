package stream

import "context"

// Map transforms each value with fn.
func Map[I, O any](s *Stream[I], fn func(context.Context, I) (O, error)) *Stream[O] {
	return &Stream[O]{create: func(ctx context.Context) Iterator[O] {
		return &mapIter[I, O]{source: s.create(ctx), fn: fn}
	}}
}

// FlatMap transforms each value into a slice and streams its elements.
func FlatMap[I, O any](s *Stream[I], fn func(context.Context, I) ([]O, error)) *Stream[O] {
	return &Stream[O]{create: func(ctx context.Context) Iterator[O] {
		return &flatMapIter[I, O]{source: s.create(ctx), fn: fn}
	}}
}

// Filter keeps values for which keep is true.
func Filter[T any](s *Stream[T], keep func(T) bool) *Stream[T] {
	return &Stream[T]{create: func(ctx context.Context) Iterator[T] {
		return &filterIter[T]{source: s.create(ctx), keep: keep}
	}}
}

// Tap calls fn on each value as a side effect and passes it through.
func Tap[T any](s *Stream[T], fn func(context.Context, T) error) *Stream[T] {
	return Map(s, func(ctx context.Context, v T) (T, error) {
		return v, fn(ctx, v)
	})
}

// Chunk groups consecutive values into slices of up to size elements.
// A size below one is treated as one.
func Chunk[T any](s *Stream[T], size int) *Stream[[]T] {
	size = max(size, 1)
	return &Stream[[]T]{create: func(ctx context.Context) Iterator[[]T] {
		return &chunkIter[T]{source: s.create(ctx), size: size}
	}}
}

// Concat streams every value of the first stream, then the second, and so on.
func Concat[T any](streams ...*Stream[T]) *Stream[T] {
	return &Stream[T]{create: func(ctx context.Context) Iterator[T] {
		iters := make([]Iterator[T], len(streams))
		for i, s := range streams {
			iters[i] = s.create(ctx)
		}
		return &concatIter[T]{iters: iters}
	}}
}

type mapIter[I, O any] struct {
	source Iterator[I]
	fn     func(context.Context, I) (O, error)
}

func (it *mapIter[I, O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	val, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		return zero, false, err
	}
	out, err := it.fn(ctx, val)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func (it *mapIter[I, O]) Close() error { return it.source.Close() }

type flatMapIter[I, O any] struct {
	source  Iterator[I]
	fn      func(context.Context, I) ([]O, error)
	pending []O
}

func (it *flatMapIter[I, O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	for len(it.pending) == 0 {
		in, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			return zero, false, err
		}
		out, err := it.fn(ctx, in)
		if err != nil {
			return zero, false, err
		}
		it.pending = out
	}
	val := it.pending[0]
	it.pending = it.pending[1:]
	return val, true, nil
}

func (it *flatMapIter[I, O]) Close() error { return it.source.Close() }

type filterIter[T any] struct {
	source Iterator[T]
	keep   func(T) bool
}

func (it *filterIter[T]) Next(ctx context.Context) (T, bool, error) {
	for {
		val, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			return val, false, err
		}
		if it.keep(val) {
			return val, true, nil
		}
	}
}

func (it *filterIter[T]) Close() error { return it.source.Close() }

type chunkIter[T any] struct {
	source Iterator[T]
	size   int
	done   bool
}

func (it *chunkIter[T]) Next(ctx context.Context) ([]T, bool, error) {
	if it.done {
		return nil, false, nil
	}
	var chunk []T
	for len(chunk) < it.size {
		val, ok, err := it.source.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			it.done = true
			break
		}
		chunk = append(chunk, val)
	}
	if len(chunk) == 0 {
		return nil, false, nil
	}
	return chunk, true, nil
}

func (it *chunkIter[T]) Close() error { return it.source.Close() }

type concatIter[T any] struct {
	iters []Iterator[T]
	index int
}

func (it *concatIter[T]) Next(ctx context.Context) (T, bool, error) {
	for it.index < len(it.iters) {
		val, ok, err := it.iters[it.index].Next(ctx)
		if err != nil {
			return val, false, err
		}
		if ok {
			return val, true, nil
		}
		it.index++
	}
	var zero T
	return zero, false, nil
}

func (it *concatIter[T]) Close() error {
	var first error
	for _, i := range it.iters {
		if err := i.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
