package solver

// batches splits groups into consecutive chunks of at most size groups.
// A non-positive size, or a group count within size, yields one chunk.
// Chunks are solved in order against capacity that is never replenished,
// so results depend on input order.
func batches(groups []Group, size int) [][]Group {
	if size <= 0 || len(groups) <= size {
		return [][]Group{groups}
	}
	out := make([][]Group, 0, (len(groups)+size-1)/size)
	for start := 0; start < len(groups); start += size {
		out = append(out, groups[start:min(start+size, len(groups))])
	}
	return out
}
