package task

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Queue tracks live tasks and the callers with an ad-hoc task in flight.
type Queue struct {
	next     atomic.Uint64
	tasks    *xsync.Map[uint64, *Task]
	creators *xsync.Map[string, uint64]
}

func NewQueue() *Queue {
	return &Queue{
		tasks:    xsync.NewMap[uint64, *Task](),
		creators: xsync.NewMap[string, uint64](),
	}
}

// NextID returns a fresh id. Ids are never reused for the queue's lifetime.
func (q *Queue) NextID() uint64 {
	return q.next.Add(1)
}

func (q *Queue) Add(t *Task) {
	q.tasks.Store(t.ID, t)
}

func (q *Queue) Has(id uint64) bool {
	_, ok := q.tasks.Load(id)
	return ok
}

func (q *Queue) Get(id uint64) (*Task, bool) {
	return q.tasks.Load(id)
}

func (q *Queue) Remove(id uint64) {
	q.tasks.Delete(id)
}

func (q *Queue) Len() int {
	return q.tasks.Size()
}

// ClaimCaller records id as the in-flight task of caller. It fails when the
// caller already has one.
func (q *Queue) ClaimCaller(caller string, id uint64) bool {
	_, loaded := q.creators.LoadOrStore(caller, id)
	return !loaded
}

// ReleaseCaller forgets the caller's in-flight task, but only if it is still
// id; a newer claim made after a Clear is left alone.
func (q *Queue) ReleaseCaller(caller string, id uint64) {
	q.creators.Compute(caller, func(old uint64, loaded bool) (uint64, xsync.ComputeOp) {
		if loaded && old == id {
			return 0, xsync.DeleteOp
		}
		return old, xsync.CancelOp
	})
}

func (q *Queue) HasCaller(caller string) bool {
	_, ok := q.creators.Load(caller)
	return ok
}

// Clear drops every task and caller claim and returns the dropped tasks.
func (q *Queue) Clear() []*Task {
	var out []*Task
	q.tasks.Range(func(id uint64, t *Task) bool {
		if _, ok := q.tasks.LoadAndDelete(id); ok {
			out = append(out, t)
		}
		return true
	})
	q.creators.Clear()
	return out
}
