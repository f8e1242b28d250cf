package arena

// Stats summarizes the current state of an arena in one pass, in the style
// of the allocator Stats structs this package was adapted from: aggregate
// counts a caller would otherwise have to derive from Inspect themselves.
type Stats struct {
	TotalBytes   int
	UsedBytes    int
	FreeBytes    int
	UsedBlocks   int
	FreeBlocks   int
	ListHeight   int
	LargestFree  int // payload bytes of the largest free block
}

// Stats computes a Stats snapshot by walking every block once.
func (a *Arena) Stats() (Stats, error) {
	blocks, err := a.Inspect()
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		TotalBytes: int(a.quads) * PointerSize,
		ListHeight: int(a.listHeight()),
	}
	for _, b := range blocks {
		if b.Free {
			s.FreeBlocks++
			s.FreeBytes += b.Size
			if b.Size > s.LargestFree {
				s.LargestFree = b.Size
			}
		} else {
			s.UsedBlocks++
			s.UsedBytes += b.Size
		}
	}
	return s, nil
}

// Fragmentation reports the fraction of free bytes that are not part of the
// single largest free block: 0 means all free space is contiguous, values
// approaching 1 mean free space is scattered across many small blocks.
func (s Stats) Fragmentation() float64 {
	if s.FreeBytes == 0 {
		return 0
	}
	return 1 - float64(s.LargestFree)/float64(s.FreeBytes)
}
