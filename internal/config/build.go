package config

import (
	"fmt"

	"github.com/raulk/clock"
	"github.com/specialistvlad/taskgrid/internal/datanode"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
	"github.com/specialistvlad/taskgrid/internal/taskgraph"
)

// Build validates the grid and turns it into live data nodes and tasks. The
// tasks are returned in declaration order.
func (g *Grid) Build(reg *registry.Registry, clk clock.Clock) (*datanode.Manager, []*task.Task, error) {
	if err := g.Validate(reg); err != nil {
		return nil, nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	nodes := datanode.NewManager()
	for _, decl := range g.DataNodes {
		opts := []datanode.Option{
			datanode.WithClock(clk),
			datanode.WithCacheable(decl.Cacheable),
			datanode.WithValidityPeriod(decl.ValidityPeriod),
		}
		if decl.HasDefault {
			opts = append(opts, datanode.WithDefault(decl.Default))
		}
		if _, err := nodes.Create(decl.ID, opts...); err != nil {
			return nil, nil, err
		}
	}

	resolve := func(ids []string) ([]datanode.Node, error) {
		out := make([]datanode.Node, 0, len(ids))
		for _, id := range ids {
			n, err := nodes.Get(id)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}

	tasks := make([]*task.Task, 0, len(g.Tasks))
	for _, decl := range g.Tasks {
		fn, err := reg.Lookup(decl.Function)
		if err != nil {
			return nil, nil, fmt.Errorf("task '%s': %w", decl.ID, err)
		}
		inputs, err := resolve(decl.Inputs)
		if err != nil {
			return nil, nil, fmt.Errorf("task '%s': %w", decl.ID, err)
		}
		outputs, err := resolve(decl.Outputs)
		if err != nil {
			return nil, nil, fmt.Errorf("task '%s': %w", decl.ID, err)
		}
		tasks = append(tasks, task.New(decl.ID, fn, inputs, outputs, decl.Skippable))
	}

	graph, err := taskgraph.FromTasks(tasks)
	if err != nil {
		return nil, nil, err
	}
	if err := graph.DetectCycles(); err != nil {
		return nil, nil, fmt.Errorf("error validating task graph: %w", err)
	}
	return nodes, tasks, nil
}
