package extract

import (
	"sync"
	"time"
)

type itemKind int

const (
	itemFile itemKind = iota
	itemArchive
)

// workItem is one unit of work on the explicit stack: a loose file to index
// or an archive to extract. Depth travels as data, never as call-stack
// position, so adversarial nesting cannot overflow the native stack.
type workItem struct {
	kind        itemKind
	realPath    string
	virtualPath string
	name        string
	modTime     time.Time
	archiveKind Kind
	archiveID   *uint  // pre-inserted row for nested archives
	archiveHash string // known when archiveID is set
	parentID    *uint
	depth       int
	score       float64
	cleanup     bool // realPath is a temp spool, remove after processing
}

// workQueue is a LIFO stack shared by the worker pool. Workers block in pop
// while any sibling is still active, since active items may push more work.
type workQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []workItem
	active int
	closed bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *workQueue) push(items ...workItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	q.cond.Broadcast()
}

// pop returns the next item, blocking while the queue is empty but other
// workers are still active. Returns false when drained or closed.
func (q *workQueue) pop() (workItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && q.active > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.items) == 0 {
		return workItem{}, false
	}

	item := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	q.active++
	return item, true
}

func (q *workQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--
	q.cond.Broadcast()
}

// close stops the queue: no new items are handed out, in-flight items
// finish.
func (q *workQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
