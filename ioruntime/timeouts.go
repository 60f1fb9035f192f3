package ioruntime

// timedHeap is a min-heap of opcb ordered by deadline, adapted
// verbatim from the teacher's timeout heap: an opcb with a non-zero
// deadline is, at any instant, either in this heap and its owning
// fdDesc list, or in neither.
type timedHeap []*opcb

func (h timedHeap) Len() int { return len(h) }

func (h timedHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h timedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *timedHeap) Push(x interface{}) {
	pcb := x.(*opcb)
	pcb.idx = len(*h)
	*h = append(*h, pcb)
}

func (h *timedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	pcb := old[n-1]
	old[n-1] = nil
	pcb.idx = -1
	*h = old[:n-1]
	return pcb
}
