package source

import (
	"sort"

	"go.ngs.io/regional-ocean/internal/domain"
)

// NameMap maps the internal schema onto the names used by one dataset.
type NameMap struct {
	// Dimension names.
	Time string `toml:"time"`
	X    string `toml:"x"`
	Y    string `toml:"y"`
	Z    string `toml:"z"`

	// Coordinate variables. Empty means the variable named like its dimension.
	Lon   string `toml:"lon"`
	Lat   string `toml:"lat"`
	Depth string `toml:"depth"`

	// Field slots.
	Eta     string            `toml:"eta"`
	U       string            `toml:"u"`
	V       string            `toml:"v"`
	Tracers map[string]string `toml:"tracers"` // Model name to source name.

	// Native meshes of staggered velocity components. Empty falls back to
	// the tracer dimensions and coordinates.
	UX   string `toml:"u_x"`
	UY   string `toml:"u_y"`
	VX   string `toml:"v_x"`
	VY   string `toml:"v_y"`
	ULon string `toml:"u_lon"`
	ULat string `toml:"u_lat"`
	VLon string `toml:"v_lon"`
	VLat string `toml:"v_lat"`
}

// Validate checks that the map names everything canonicalization needs.
func (n NameMap) Validate() error {
	if n.Eta == "" && n.U == "" && n.V == "" && len(n.Tracers) == 0 {
		return &domain.SchemaError{Name: "variables", Kind: "name map", Reason: "no variables requested"}
	}
	if (n.U == "") != (n.V == "") {
		return &domain.SchemaError{Name: "u/v", Kind: "name map", Reason: "velocity needs both u and v"}
	}
	required := []struct{ slot, name string }{{"time", n.Time}, {"x", n.X}, {"y", n.Y}}
	if n.U != "" || len(n.Tracers) > 0 {
		required = append(required, struct{ slot, name string }{"z", n.Z})
	}
	for _, r := range required {
		if r.name == "" {
			return &domain.SchemaError{Name: r.slot, Kind: "name map", Reason: "dimension name is required"}
		}
	}
	for model, src := range n.Tracers {
		if model == "" || src == "" {
			return &domain.SchemaError{Name: model, Kind: "name map", Reason: "tracer needs both a model and a source name"}
		}
	}
	return nil
}

// slot is one requested field with the names needed to read it.
type slot struct {
	model, source string
	role          domain.FieldRole
	x, y          string // Horizontal dimensions.
	lon, lat      string // Coordinate variables.
	vertical      bool
}

// slots lists the requested fields in a stable order: tracers by model
// name, then eta, u and v.
func (n NameMap) slots(variant domain.GridVariant) []slot {
	lon, lat := or(n.Lon, n.X), or(n.Lat, n.Y)
	var out []slot
	models := make([]string, 0, len(n.Tracers))
	for m := range n.Tracers {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		out = append(out, slot{model: m, source: n.Tracers[m], role: domain.RoleTracer,
			x: n.X, y: n.Y, lon: lon, lat: lat, vertical: true})
	}
	if n.Eta != "" {
		out = append(out, slot{model: "eta", source: n.Eta, role: domain.RoleEta,
			x: n.X, y: n.Y, lon: lon, lat: lat})
	}
	if n.U != "" {
		u := slot{model: "u", source: n.U, role: domain.RoleU, x: n.X, y: n.Y, lon: lon, lat: lat, vertical: true}
		v := slot{model: "v", source: n.V, role: domain.RoleV, x: n.X, y: n.Y, lon: lon, lat: lat, vertical: true}
		if variant == domain.Staggered {
			u.x, u.y = or(n.UX, n.X), or(n.UY, n.Y)
			u.lon, u.lat = or(n.ULon, or(n.UX, lon)), or(n.ULat, or(n.UY, lat))
			v.x, v.y = or(n.VX, n.X), or(n.VY, n.Y)
			v.lon, v.lat = or(n.VLon, or(n.VX, lon)), or(n.VLat, or(n.VY, lat))
		}
		out = append(out, u, v)
	}
	return out
}

func or(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
