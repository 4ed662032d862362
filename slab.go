package ncfs

// slab is a row-major box [begin, end) of a variable's index space.
type slab struct {
	begin []int
	end   []int
}

func (s slab) len() int64 {
	n := int64(1)
	for i := range s.begin {
		n *= int64(s.end[i] - s.begin[i])
	}
	return n
}

// hyperslabs covers the flat element range [first, last) of an array with
// the given shape by contiguous boxes, in order. At most 2*rank-1 boxes
// are produced: a partial leading box, a run of whole outer rows and a
// partial trailing box, recursively.
func hyperslabs(shape []int, first, last int64) []slab {
	if first >= last {
		return nil
	}
	if len(shape) == 0 {
		return []slab{{begin: []int{}, end: []int{}}}
	}

	inner := int64(1)
	for _, n := range shape[1:] {
		inner *= int64(n)
	}
	if inner == 0 {
		return nil
	}
	rest := shape[1:]

	i0, r0 := first/inner, first%inner
	i1, r1 := last/inner, last%inner

	if i0 == i1 {
		return prefix(int(i0), hyperslabs(rest, r0, r1))
	}

	var out []slab
	if r0 != 0 {
		out = append(out, prefix(int(i0), hyperslabs(rest, r0, inner))...)
		i0++
	}
	if i1 > i0 {
		begin := make([]int, len(shape))
		end := make([]int, len(shape))
		begin[0], end[0] = int(i0), int(i1)
		copy(end[1:], rest)
		out = append(out, slab{begin: begin, end: end})
	}
	if r1 != 0 {
		out = append(out, prefix(int(i1), hyperslabs(rest, 0, r1))...)
	}
	return out
}

// prefix fixes the outermost index of each box to i.
func prefix(i int, inner []slab) []slab {
	for k, s := range inner {
		inner[k] = slab{
			begin: append([]int{i}, s.begin...),
			end:   append([]int{i + 1}, s.end...),
		}
	}
	return inner
}
