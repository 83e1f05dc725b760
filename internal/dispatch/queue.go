package dispatch

import "container/heap"

// queueItem pairs a request with the channel its eventual result is
// delivered on, plus a per-item cancel flag so Clear can fail outstanding
// callers without tearing down the heap structure mid-pop.
type queueItem struct {
	req      *Request
	result   chan<- outcome
	index    int // maintained by container/heap
	canceled bool
}

type outcome struct {
	resp *Response
	err  error
}

// priorityQueue orders items by descending priority, then ascending
// enqueue sequence (FIFO within a priority tier). It implements
// container/heap.Interface over a max-priority heap.
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	pi, pj := pq[i].req.effectivePriority(), pq[j].req.effectivePriority()
	if pi != pj {
		return pi > pj // higher priority first
	}
	return pq[i].req.seq < pq[j].req.seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// ensure priorityQueue satisfies heap.Interface at compile time.
var _ heap.Interface = (*priorityQueue)(nil)
