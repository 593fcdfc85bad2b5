package app

import (
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/modules/env_vars"
	"github.com/specialistvlad/taskgrid/modules/http_client"
	gridmath "github.com/specialistvlad/taskgrid/modules/math"
	"github.com/specialistvlad/taskgrid/modules/print"
	"github.com/specialistvlad/taskgrid/modules/s3"
)

// CoreModules is the definitive list of all modules that are compiled into
// the taskgrid binary. Worker processes register the same list, so a
// function name resolves to the same code on both sides.
func CoreModules() []registry.Module {
	return []registry.Module{
		&env_vars.Module{},
		&gridmath.Module{},
		&print.Module{},
		&http_client.Module{},
		&s3.Module{},
	}
}
