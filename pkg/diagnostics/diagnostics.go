// Package diagnostics implements the independent failure-mode detectors
// that run over a completed Evidence bundle. Each module is pure (no I/O,
// no provider calls) and deterministic: given the same Evidence, it always
// either declines to fire or emits the same Finding.
package diagnostics

import "github.com/tarkyaio/tarka/pkg/models"

// Module is one failure-mode detector. Applies reports whether the module
// has anything to say about this evidence; Run produces its Finding. Run is
// only called when Applies returned true, but must still be able to return
// nil if, on closer inspection, it finds nothing.
type Module interface {
	ID() string
	Applies(ev *models.Evidence) bool
	Run(ev *models.Evidence) *models.Finding
}

// registry is the static, ordered set of known modules. Order is the
// module registration order below, which is also ID-ascending — kept that
// way so adding a module is a matter of inserting it in the right spot, not
// re-sorting at runtime.
var registry []Module

func register(m Module) {
	registry = append(registry, m)
}

// Registry returns the static module list in deterministic registration
// order. Callers must not mutate the returned slice.
func Registry() []Module {
	return registry
}

// Run evaluates every registered module against ev and returns the findings
// of those that applied, in registry order.
func Run(ev *models.Evidence) []models.Finding {
	var findings []models.Finding
	for _, m := range registry {
		if !m.Applies(ev) {
			continue
		}
		f := m.Run(ev)
		if f == nil {
			continue
		}
		findings = append(findings, *f)
	}
	return findings
}
