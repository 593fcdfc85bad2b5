package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/fsutil"
)

// fileRoot decodes every top-level block a grid file may contain.
type fileRoot struct {
	Core      []*coreBlock     `hcl:"core,block"`
	DataNodes []*dataNodeBlock `hcl:"data_node,block"`
	Tasks     []*taskBlock     `hcl:"task,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type coreBlock struct {
	ExecutionMode *string `hcl:"execution_mode,optional"`
	NbOfWorkers   *int    `hcl:"nb_of_workers,optional"`
	Isolation     *string `hcl:"isolation,optional"`
}

type dataNodeBlock struct {
	ID             string         `hcl:"id,label"`
	Default        hcl.Expression `hcl:"default,optional"`
	Cacheable      *bool          `hcl:"cacheable,optional"`
	ValidityPeriod *string        `hcl:"validity_period,optional"`
}

type taskBlock struct {
	ID        string   `hcl:"id,label"`
	Function  string   `hcl:"function"`
	Inputs    []string `hcl:"inputs,optional"`
	Outputs   []string `hcl:"outputs,optional"`
	Skippable *bool    `hcl:"skippable,optional"`
}

// Load parses every .hcl file under paths into a Grid. Directories are
// walked recursively; paths that do not exist are ignored, but finding no
// file at all is an error.
func Load(ctx context.Context, paths ...string) (*Grid, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", strings.Join(paths, ", "))
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	grid := &Grid{Core: DefaultCore()}
	parser := hclparse.NewParser()
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, c := range root.Core {
			c.applyTo(&grid.Core)
		}
		for _, dn := range root.DataNodes {
			node, err := translateDataNode(ctx, dn)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			grid.DataNodes = append(grid.DataNodes, node)
		}
		for _, t := range root.Tasks {
			grid.Tasks = append(grid.Tasks, translateTask(t))
		}
	}

	logger.Debug("HCL loading complete.", "data_nodes", len(grid.DataNodes), "tasks", len(grid.Tasks))
	return grid, nil
}

func (b *coreBlock) applyTo(c *Core) {
	if b.ExecutionMode != nil {
		c.ExecutionMode = *b.ExecutionMode
	}
	if b.NbOfWorkers != nil {
		c.NbOfWorkers = *b.NbOfWorkers
	}
	if b.Isolation != nil {
		c.Isolation = *b.Isolation
	}
}

func translateDataNode(ctx context.Context, b *dataNodeBlock) (*DataNode, error) {
	n := &DataNode{ID: b.ID}
	if b.Cacheable != nil {
		n.Cacheable = *b.Cacheable
	}
	if b.ValidityPeriod != nil {
		d, err := time.ParseDuration(*b.ValidityPeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid validity_period for data node '%s': %w", b.ID, err)
		}
		n.ValidityPeriod = d
	}
	if isExprDefined(ctx, b.Default, "default") {
		val, diags := b.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default value for data node '%s': %w", b.ID, diags)
		}
		if !val.IsNull() {
			native, err := ctyToNative(val)
			if err != nil {
				return nil, fmt.Errorf("invalid default value for data node '%s': %w", b.ID, err)
			}
			n.Default = native
			n.HasDefault = true
		}
	}
	return n, nil
}

func translateTask(b *taskBlock) *Task {
	t := &Task{
		ID:       b.ID,
		Function: b.Function,
		Inputs:   b.Inputs,
		Outputs:  b.Outputs,
	}
	if b.Skippable != nil {
		t.Skippable = *b.Skippable
	}
	return t
}

// isExprDefined reports whether an optional attribute was actually written.
// The decoder fills omitted expressions with zero-width placeholders, so a
// nil check is not enough.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	defined := r.End.Byte > r.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName, "hcl_range", r.String(), "is_defined", defined)
	return defined
}
