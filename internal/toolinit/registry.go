// Package toolinit wires the concrete tool implementations into a
// tools.Registry. It lives outside package tools to avoid an import cycle
// (each concrete tool imports tools for the Tool interface).
package toolinit

import (
	"github.com/haasonsaas/localflow/internal/tools"
	"github.com/haasonsaas/localflow/internal/tools/browserauto"
	"github.com/haasonsaas/localflow/internal/tools/browsersearch"
	"github.com/haasonsaas/localflow/internal/tools/openlinks"
	"github.com/haasonsaas/localflow/internal/tools/searchweb"
)

// BuildRegistry registers every built-in tool and returns the registry
// ready for the execution service.
func BuildRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.Register(openlinks.New())
	r.Register(searchweb.New())
	r.Register(browsersearch.New())
	r.Register(browserauto.New())
	return r
}
