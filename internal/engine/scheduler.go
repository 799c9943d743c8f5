package engine

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/graph"
)

var errNotScheduled = errors.New("never became ready")

// runner executes and skips the nodes of one run.
type runner interface {
	// run executes one node. The returned outcome must carry a status.
	run(ctx context.Context, id string) *Outcome
	// skip records a node that will never run.
	skip(id string, cause error) *Outcome
}

type completion struct {
	id      string
	outcome *Outcome
}

// schedule runs every node of g on the worker pool, each only after all of
// its dependencies succeeded. A failed or skipped node skips its dependents
// without touching independent branches. Once ctx is done nothing new is
// dispatched; nodes already running finish. Outcomes come back in
// declaration order.
func (e *Engine) schedule(ctx context.Context, g *graph.Graph, r runner) []*Outcome {
	logger := ctxlog.FromContext(ctx)
	ids := g.Nodes()

	index := make(map[string]int, len(ids))
	pending := make(map[string]int, len(ids))
	ready := &readyQueue{index: index}
	for i, id := range ids {
		index[id] = i
		deps, _ := g.Dependencies(id)
		pending[id] = len(deps)
	}
	for _, id := range ids {
		if pending[id] == 0 {
			logger.Debug("Found root node.", "nodeID", id)
			heap.Push(ready, id)
		}
	}

	work := make(chan string)
	done := make(chan completion)
	var wg sync.WaitGroup
	logger.Debug("Starting worker pool.", "workers", e.workers)
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			workerCtx := ctxlog.WithLogger(ctx, logger.With("workerID", workerID))
			for id := range work {
				done <- completion{id: id, outcome: r.run(workerCtx, id)}
			}
		}(i)
	}

	outcomes := make(map[string]*Outcome, len(ids))
	remaining := len(ids)
	inFlight := 0
	stopped := false
	for remaining > 0 {
		if !stopped && ctx.Err() != nil {
			stopped = true
			logger.Warn("Context canceled, no new nodes will be dispatched.", "inFlight", inFlight)
		}
		if inFlight == 0 && (stopped || ready.Len() == 0) {
			break
		}

		var next string
		var dispatch chan<- string
		var canceled <-chan struct{}
		if !stopped {
			canceled = ctx.Done()
			if ready.Len() > 0 {
				next = ready.peek()
				dispatch = work
			}
		}

		select {
		case dispatch <- next:
			heap.Pop(ready)
			inFlight++
		case c := <-done:
			inFlight--
			remaining--
			outcomes[c.id] = c.outcome
			if c.outcome.Status == StatusFailed || c.outcome.Status == StatusSkipped {
				remaining -= skipDependents(ctx, g, c.id, r, outcomes)
				continue
			}
			dependents, _ := g.Dependents(c.id)
			for _, d := range dependents {
				pending[d]--
				if pending[d] == 0 {
					logger.Debug("Unlocking dependent node.", "nodeID", d, "dependency", c.id)
					heap.Push(ready, d)
				}
			}
		case <-canceled:
		}
	}
	close(work)
	wg.Wait()

	ordered := make([]*Outcome, 0, len(ids))
	for _, id := range ids {
		o, ok := outcomes[id]
		if !ok {
			cause := ctx.Err()
			if cause == nil {
				cause = errNotScheduled
			}
			o = r.skip(id, cause)
		}
		ordered = append(ordered, o)
	}
	return ordered
}

// skipDependents marks every node downstream of id as skipped and returns
// how many it marked.
func skipDependents(ctx context.Context, g *graph.Graph, id string, r runner, outcomes map[string]*Outcome) int {
	logger := ctxlog.FromContext(ctx)
	downstream, _ := g.Downstream(id)
	count := 0
	for _, d := range downstream {
		if _, ok := outcomes[d]; ok {
			continue
		}
		logger.Warn("Skipping dependent node due to upstream failure.", "nodeID", d, "dependency", id)
		outcomes[d] = r.skip(d, &SkippedError{Resource: d, Dependency: id})
		count++
	}
	return count
}

// readyQueue pops ready nodes in declaration order.
type readyQueue struct {
	ids   []string
	index map[string]int
}

func (q *readyQueue) Len() int           { return len(q.ids) }
func (q *readyQueue) Less(i, j int) bool { return q.index[q.ids[i]] < q.index[q.ids[j]] }
func (q *readyQueue) Swap(i, j int)      { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }
func (q *readyQueue) Push(x any)         { q.ids = append(q.ids, x.(string)) }
func (q *readyQueue) Pop() any {
	old := q.ids
	n := len(old)
	id := old[n-1]
	q.ids = old[:n-1]
	return id
}

func (q *readyQueue) peek() string { return q.ids[0] }
