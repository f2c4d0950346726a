package sync

import (
	"container/heap"
	"sync"

	"github.com/agentfabric/knowledgefabric/internal/types"
)

// JobQueue orders pending jobs by priority (lower first), breaking ties by
// queue order. No example in the retrieval pack imports a priority-queue
// library, so this is built on the standard container/heap, matching the
// Python original's simple FIFO-per-schedule behavior but generalized to
// let force_sync_now-style ad-hoc jobs jump ahead of scheduled ones.
type JobQueue struct {
	mu   sync.Mutex
	heap jobHeap
	seq  int
}

// NewJobQueue returns an empty queue.
func NewJobQueue() *JobQueue {
	q := &JobQueue{}
	heap.Init(&q.heap)
	return q
}

// Push enqueues job behind any queued job of the same or lower priority value.
func (q *JobQueue) Push(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.heap, &heapItem{job: job, order: q.seq})
}

// Pop removes and returns the highest-priority job, or nil if the queue is empty.
func (q *JobQueue) Pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.heap).(*heapItem)
	return item.job
}

// Len reports how many jobs are waiting.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Remove drops the queued job with the given id, if present, without
// running it. Reports whether a job was found and removed.
func (q *JobQueue) Remove(id types.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.heap {
		if item.job.ID == id {
			heap.Remove(&q.heap, i)
			return true
		}
	}
	return false
}

// Drain removes and returns every queued job, oldest-priority first,
// leaving the queue empty.
func (q *JobQueue) Drain() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]*Job, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*heapItem)
		jobs = append(jobs, item.job)
	}
	return jobs
}

type heapItem struct {
	job   *Job
	order int
}

type jobHeap []*heapItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	return h[i].order < h[j].order
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(*heapItem))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
