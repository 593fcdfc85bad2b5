// Package config loads the declarative grid: the execution settings, the data
// nodes and the tasks connecting them.
//
// Settings are layered. Built-in defaults come first, then every `core`
// block found in the HCL files, then TASKGRID_* environment variables, then
// whatever the command line sets explicitly.
//
// An example grid:
//
//	core {
//	  execution_mode = "isolated-pool"
//	  nb_of_workers  = 2
//	}
//
//	data_node "x" {
//	  default = 21
//	}
//
//	data_node "y" {
//	  cacheable       = true
//	  validity_period = "24h"
//	}
//
//	task "double" {
//	  function  = "math.double"
//	  inputs    = ["x"]
//	  outputs   = ["y"]
//	  skippable = true
//	}
package config
