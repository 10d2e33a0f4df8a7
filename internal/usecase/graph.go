package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// TaskFunc is the body of one graph node.
type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	deps []string
	fn   TaskFunc
}

// Graph is a set of named tasks with dependencies. A task starts once all
// of its dependencies have finished; the first failure cancels the rest.
type Graph struct {
	order []*task
	tasks map[string]*task
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{tasks: make(map[string]*task)}
}

// Add registers a task. Dependencies may be added later but must exist
// before Run.
func (g *Graph) Add(name string, deps []string, fn TaskFunc) error {
	if _, ok := g.tasks[name]; ok {
		return fmt.Errorf("task %s already added", name)
	}
	t := &task{name: name, deps: append([]string(nil), deps...), fn: fn}
	g.order = append(g.order, t)
	g.tasks[name] = t
	return nil
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.order) }

// check rejects unknown dependencies and cycles.
func (g *Graph) check() error {
	indeg := make(map[string]int, len(g.order))
	for _, t := range g.order {
		for _, d := range t.deps {
			if _, ok := g.tasks[d]; !ok {
				return fmt.Errorf("task %s depends on unknown task %s", t.name, d)
			}
		}
		indeg[t.name] = len(t.deps)
	}
	children := g.children()
	var queue []string
	for _, t := range g.order {
		if indeg[t.name] == 0 {
			queue = append(queue, t.name)
		}
	}
	seen := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		seen++
		for _, c := range children[n] {
			indeg[c]--
			if indeg[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if seen != len(g.order) {
		return fmt.Errorf("task graph has a dependency cycle")
	}
	return nil
}

func (g *Graph) children() map[string][]string {
	out := make(map[string][]string)
	for _, t := range g.order {
		for _, d := range t.deps {
			out[d] = append(out[d], t.name)
		}
	}
	return out
}

// Run executes the graph with at most workers tasks in flight. Ready tasks
// start in the order they were added.
func (g *Graph) Run(ctx context.Context, workers int) error {
	if err := g.check(); err != nil {
		return err
	}
	if len(g.order) == 0 {
		return nil
	}
	parent := ctx
	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}

	pending := make(map[string]int, len(g.order))
	for _, t := range g.order {
		pending[t.name] = len(t.deps)
	}
	children := g.children()
	done := make(chan string, len(g.order))
	start := func(t *task) {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := t.fn(ctx); err != nil {
				return fmt.Errorf("task %s: %w", t.name, err)
			}
			done <- t.name
			return nil
		})
	}

	for _, t := range g.order {
		if pending[t.name] == 0 {
			start(t)
		}
	}
	for finished := 0; finished < len(g.order); finished++ {
		select {
		case name := <-done:
			for _, c := range children[name] {
				pending[c]--
				if pending[c] == 0 {
					start(g.tasks[c])
				}
			}
		case <-ctx.Done():
			if err := eg.Wait(); err != nil {
				return err
			}
			return parent.Err()
		}
	}
	return eg.Wait()
}
