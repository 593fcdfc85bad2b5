package task

import (
	"testing"

	"github.com/specialistvlad/taskgrid/internal/datanode"
	"github.com/stretchr/testify/assert"
)

func TestNew_CopiesNodeSlices(t *testing.T) {
	x := datanode.New("x")
	y := datanode.New("y")
	inputs := []datanode.Node{x}
	outputs := []datanode.Node{y}

	tk := New("double", Function{Name: "double"}, inputs, outputs, true)
	inputs[0] = y
	outputs[0] = x

	assert.Equal(t, []string{"x"}, tk.InputIDs())
	assert.Equal(t, []string{"y"}, tk.OutputIDs())
	assert.True(t, tk.Skippable)
	assert.Equal(t, "double", tk.Function.Name)
}
