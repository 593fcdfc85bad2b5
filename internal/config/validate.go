package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/specialistvlad/taskgrid/internal/registry"
)

// Validate checks the grid as a whole and reports every problem at once:
// execution settings, duplicate IDs, references to undeclared data nodes and
// functions missing from reg.
func (g *Grid) Validate(reg *registry.Registry) error {
	var result *multierror.Error

	if err := g.Core.SchedulerConfig().Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	nodeIDs := lo.Map(g.DataNodes, func(n *DataNode, _ int) string { return n.ID })
	for _, id := range lo.FindDuplicates(nodeIDs) {
		result = multierror.Append(result, fmt.Errorf("data node '%s' is declared more than once", id))
	}
	taskIDs := lo.Map(g.Tasks, func(t *Task, _ int) string { return t.ID })
	for _, id := range lo.FindDuplicates(taskIDs) {
		result = multierror.Append(result, fmt.Errorf("task '%s' is declared more than once", id))
	}

	known := lo.SliceToMap(nodeIDs, func(id string) (string, struct{}) { return id, struct{}{} })
	for _, t := range g.Tasks {
		if t.Function == "" {
			result = multierror.Append(result, fmt.Errorf("task '%s' has no function", t.ID))
		}
		for _, ref := range append(append([]string(nil), t.Inputs...), t.Outputs...) {
			if _, ok := known[ref]; !ok {
				result = multierror.Append(result, fmt.Errorf("task '%s' references undeclared data node '%s'", t.ID, ref))
			}
		}
	}

	if reg != nil {
		functions := lo.Uniq(lo.Map(g.Tasks, func(t *Task, _ int) string { return t.Function }))
		functions = lo.Compact(functions)
		if err := reg.Validate(functions...); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
