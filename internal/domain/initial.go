package domain

import (
	"sort"
	"time"
)

// InitialCondition is the model state at the start of a run.
type InitialCondition struct {
	Time     time.Time
	Tracers  map[string]*GriddedField // On T points.
	U        *GriddedField            // Grid-relative, on U points.
	V        *GriddedField            // Grid-relative, on V points.
	Eta      *GriddedField            // On T points.
	Vertical *VerticalGrid
	Report   []CoverageReport
}

// TracerNames returns the tracer names in a stable order.
func (ic *InitialCondition) TracerNames() []string {
	names := make([]string, 0, len(ic.Tracers))
	for n := range ic.Tracers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fields returns every field present: tracers by name, then u, v and eta.
func (ic *InitialCondition) Fields() []*GriddedField {
	var out []*GriddedField
	for _, n := range ic.TracerNames() {
		out = append(out, ic.Tracers[n])
	}
	for _, f := range []*GriddedField{ic.U, ic.V, ic.Eta} {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}
