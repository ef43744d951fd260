package core

import (
	"context"
	"reflect"
	"runtime"
	"strings"
)

const (
	defaultQueueCap = 16
	compactMinCap   = 64 // Don't shrink a drained sequence below this capacity
)

// TaskInfo describes a queued task to a TaskExecutor.
type TaskInfo struct {
	ID    TaskID
	Name  string
	Phase TaskPhase
}

// TaskExecutor runs a single task synchronously. It returns false when the task
// failed; continuations registered by a failed task are discarded.
type TaskExecutor func(ctx context.Context, task Task, info TaskInfo) bool

// deferredItem wraps a queued task together with the post-execute
// continuations it registers while running.
type deferredItem struct {
	id            TaskID
	name          string
	phase         TaskPhase
	task          Task
	continuations []Task
	finished      bool
}

func (it *deferredItem) info() TaskInfo {
	return TaskInfo{ID: it.id, Name: it.name, Phase: it.phase}
}

// =============================================================================
// DeferredQueue: primary and post-execute FIFO sequences
// =============================================================================

// DeferredQueue holds tasks awaiting a drain in two FIFO sequences. Primary
// tasks are pushed by callers; post-execute tasks are only ever appended when
// a task that registered them returns.
//
// DeferredQueue is not safe for concurrent use.
type DeferredQueue struct {
	primary     []*deferredItem
	primaryHead int

	postExecute []*deferredItem
	postHead    int
}

// NewDeferredQueue returns an empty queue.
func NewDeferredQueue() *DeferredQueue {
	return &DeferredQueue{
		primary:     make([]*deferredItem, 0, defaultQueueCap),
		postExecute: make([]*deferredItem, 0, defaultQueueCap),
	}
}

// Push appends task to the primary sequence.
func (q *DeferredQueue) Push(task Task) TaskID {
	return q.PushNamed("", task)
}

// PushNamed appends task to the primary sequence under an explicit name.
// An empty name falls back to the function name of task.
func (q *DeferredQueue) PushNamed(name string, task Task) TaskID {
	item := newDeferredItem(name, task, TaskPhasePrimary)
	q.primary = append(q.primary, item)
	return item.id
}

// PushWithPostExecute appends task to the primary sequence with post already
// registered as its continuation.
func (q *DeferredQueue) PushWithPostExecute(task Task, post Task) TaskID {
	item := newDeferredItem("", task, TaskPhasePrimary)
	if post != nil {
		item.continuations = append(item.continuations, post)
	}
	q.primary = append(q.primary, item)
	return item.id
}

// Size returns the number of tasks waiting in both sequences.
func (q *DeferredQueue) Size() int {
	return q.PrimaryLen() + q.PostExecuteLen()
}

// PrimaryLen returns the number of waiting primary tasks.
func (q *DeferredQueue) PrimaryLen() int {
	return len(q.primary) - q.primaryHead
}

// PostExecuteLen returns the number of waiting post-execute tasks.
func (q *DeferredQueue) PostExecuteLen() int {
	return len(q.postExecute) - q.postHead
}

// IsEmpty reports whether both sequences are empty.
func (q *DeferredQueue) IsEmpty() bool {
	return q.Size() == 0
}

// DrainOnce runs one drain round with exec and reports whether the queue is
// empty afterwards.
//
// The primary sweep runs until the primary sequence is empty, including tasks
// pushed while it runs. Continuations surfaced by the sweep are appended to
// the post-execute sequence, which is then drained the same way: post-execute
// tasks registering further continuations extend the sweep. Primary tasks
// pushed during the post-execute sweep wait for the next round.
func (q *DeferredQueue) DrainOnce(ctx context.Context, exec TaskExecutor) bool {
	for q.primaryHead < len(q.primary) {
		item := q.primary[q.primaryHead]
		// Zero out the slot so the task can be collected once it has run
		q.primary[q.primaryHead] = nil
		q.primaryHead++
		q.execute(ctx, item, exec)
	}
	q.primary, q.primaryHead = resetSequence(q.primary, q.primaryHead)

	for q.postHead < len(q.postExecute) {
		item := q.postExecute[q.postHead]
		q.postExecute[q.postHead] = nil
		q.postHead++
		q.execute(ctx, item, exec)
	}
	q.postExecute, q.postHead = resetSequence(q.postExecute, q.postHead)

	return q.IsEmpty()
}

// Clear drops every waiting task and returns how many were dropped.
func (q *DeferredQueue) Clear() int {
	n := q.Size()
	q.primary = make([]*deferredItem, 0, defaultQueueCap)
	q.primaryHead = 0
	q.postExecute = make([]*deferredItem, 0, defaultQueueCap)
	q.postHead = 0
	return n
}

func (q *DeferredQueue) execute(ctx context.Context, item *deferredItem, exec TaskExecutor) {
	itemCtx := context.WithValue(ctx, deferredItemKey, item)
	ok := exec(itemCtx, item.task, item.info())
	item.finished = true

	if ok {
		for _, cont := range item.continuations {
			q.postExecute = append(q.postExecute, newDeferredItem(item.name+"/post", cont, TaskPhasePostExecute))
		}
	}
	item.continuations = nil
	item.task = nil
}

func newDeferredItem(name string, task Task, phase TaskPhase) *deferredItem {
	if name == "" {
		name = funcName(task)
	}
	return &deferredItem{
		id:    GenerateTaskID(),
		name:  name,
		phase: phase,
		task:  task,
	}
}

// resetSequence rewinds a fully consumed sequence so its backing array is
// reused, shrinking it when a burst left it oversized.
func resetSequence(items []*deferredItem, head int) ([]*deferredItem, int) {
	if head < len(items) {
		return items, head
	}
	if cap(items) >= compactMinCap {
		return make([]*deferredItem, 0, defaultQueueCap), 0
	}
	return items[:0], 0
}

// funcName names an unnamed task after its function, without the import path:
// "core.TestFoo.func1" rather than "github.com/pikacuh/ink/core.TestFoo.func1".
func funcName(task Task) string {
	fn := runtime.FuncForPC(reflect.ValueOf(task).Pointer())
	if fn == nil || fn.Name() == "" {
		return "anonymous"
	}
	name := fn.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
