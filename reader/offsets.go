package reader

// offset returns the absolute index of section i's first page. It is
// unknown, and ok is false, while any earlier section is unloaded.
//
// Each section's extent is its page count rounded up to the current slot
// count, so numbering stays spread-aligned for sections padded under a
// different slot count.
func (h *Handler) offset(i int) (int, bool) {
	n := len(h.slots)
	if len(h.offsets) == 0 {
		h.offsets = append(h.offsets, 0)
	}
	for len(h.offsets) <= i {
		j := len(h.offsets) - 1
		pc, ok := h.sections[j].PageCount()
		if !ok {
			return 0, false
		}
		h.offsets = append(h.offsets, h.offsets[j]+roundUp(pc, n))
	}
	return h.offsets[i], true
}

// Offset returns the absolute index of the first page of section i.
func (h *Handler) Offset(i int) (int, bool) {
	if i < 0 || i > len(h.sections) {
		return 0, false
	}
	return h.offset(i)
}

// PageNumber returns the one-based absolute number of the first page in
// the current spread.
func (h *Handler) PageNumber() (int, bool) {
	if len(h.sections) == 0 {
		return 0, false
	}
	off, ok := h.offset(h.curr)
	if !ok {
		return 0, false
	}
	return off + h.spreadStart + 1, true
}

// TotalPages returns the number of pages in the book once every section is
// loaded.
func (h *Handler) TotalPages() (int, bool) {
	return h.offset(len(h.sections))
}

func roundUp(v, n int) int {
	if n <= 1 {
		return v
	}
	return (v + n - 1) / n * n
}
