package chunk

import "iter"

// Envelope is one offset-tagged chunk of a larger collection.
type Envelope[T any] struct {
	Offset uint32
	Items  []T
}

// flagged is one boundary-tagged chunk of a full pass.
type flagged[T any] struct {
	First bool
	Last  bool
	Items []T
}

// ChunkCount is the number of chunks Paginate yields for n elements. An
// empty collection still takes one chunk.
func ChunkCount(n, maxPerChunk int) int {
	if n <= 0 {
		return 1
	}
	return (n + maxPerChunk - 1) / maxPerChunk
}

// Paginate splits the n elements produced by items into envelopes of at
// most maxPerChunk elements. The sequence is lazy and may be ranged over
// again; every pass re-reads items. If items produces more or fewer than n
// elements the sequence ends with a SourceChangedError.
func Paginate[T any](n int, items iter.Seq[T], maxPerChunk int) iter.Seq2[Envelope[T], error] {
	return func(yield func(Envelope[T], error) bool) {
		if maxPerChunk <= 0 {
			yield(Envelope[T]{}, ErrInvalidCap)
			return
		}
		if n < 0 {
			yield(Envelope[T]{}, ErrNegativeLength)
			return
		}
		sizeAt := func(offset int) int {
			return min(maxPerChunk, n-offset)
		}

		offset := 0
		produced := 0
		cur := make([]T, 0, sizeAt(0))
		for item := range items {
			if produced == n {
				yield(Envelope[T]{}, SourceChangedError{Claimed: n, Produced: n + 1})
				return
			}
			cur = append(cur, item)
			produced++
			if len(cur) < sizeAt(offset) {
				continue
			}
			if !yield(Envelope[T]{Offset: uint32(offset), Items: cur}, nil) {
				return
			}
			offset += len(cur)
			cur = nil
			if offset < n {
				cur = make([]T, 0, sizeAt(offset))
			}
		}
		if produced < n {
			yield(Envelope[T]{}, SourceChangedError{Claimed: n, Produced: produced})
			return
		}
		if n == 0 {
			yield(Envelope[T]{Offset: 0, Items: []T{}}, nil)
		}
	}
}

// PaginateSlice paginates a slice whose length cannot change.
func PaginateSlice[T any](items []T, maxPerChunk int) iter.Seq2[Envelope[T], error] {
	return Paginate(len(items), func(yield func(T) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}, maxPerChunk)
}

// paginateFlagged splits items into boundary-tagged chunks: First on the
// first chunk only, Last on the final chunk only. An empty collection yields
// one chunk carrying both flags.
func paginateFlagged[T any](items []T, maxPerChunk int) iter.Seq2[flagged[T], error] {
	return func(yield func(flagged[T], error) bool) {
		if maxPerChunk <= 0 {
			yield(flagged[T]{}, ErrInvalidCap)
			return
		}
		total := ChunkCount(len(items), maxPerChunk)
		i := 0
		for env, err := range PaginateSlice(items, maxPerChunk) {
			if err != nil {
				yield(flagged[T]{}, err)
				return
			}
			out := flagged[T]{First: i == 0, Last: i == total-1, Items: env.Items}
			if !yield(out, nil) {
				return
			}
			i++
		}
	}
}
