package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go.ngs.io/regional-ocean/internal/adapter/interp"
	"go.ngs.io/regional-ocean/internal/adapter/source"
	"go.ngs.io/regional-ocean/internal/adapter/store/manifest"
	"go.ngs.io/regional-ocean/internal/adapter/store/mom6"
	"go.ngs.io/regional-ocean/internal/domain"
)

// InitialConditionBuilder regrids one source time step onto the full
// model grid.
type InitialConditionBuilder struct {
	exp *Experiment
}

// NewInitialConditionBuilder creates a builder for exp.
func NewInitialConditionBuilder(exp *Experiment) *InitialConditionBuilder {
	return &InitialConditionBuilder{exp: exp}
}

type target struct {
	field *domain.CanonicalField
	pt    domain.PointType
}

func (t target) key() string { return t.field.Name + "@" + string(t.pt) }

// icTargets lists each field once per destination point type. Velocity
// components also go onto their companion's points when the grid is
// rotated, so both components are available there.
func icTargets(fields []domain.CanonicalField, rotated bool) ([]target, *domain.CanonicalField, *domain.CanonicalField) {
	var (
		out  []target
		u, v *domain.CanonicalField
		seen = make(map[string]bool)
	)
	for k := range fields {
		f := &fields[k]
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		switch f.Role {
		case domain.RoleU:
			u = f
		case domain.RoleV:
			v = f
		default:
			out = append(out, target{f, domain.PointT})
		}
	}
	if u != nil && v != nil {
		out = append(out, target{u, domain.PointU}, target{v, domain.PointV})
		if rotated {
			out = append(out, target{v, domain.PointU}, target{u, domain.PointV})
		}
	}
	return out, u, v
}

// Build canonicalizes the source step nearest ref, regrids and remaps every
// field, rotates velocities onto the grid axes and reports missing columns.
func (b *InitialConditionBuilder) Build(ctx context.Context, ds source.Dataset, names source.NameMap, variant domain.GridVariant, ref time.Time) (*domain.InitialCondition, error) {
	exp := b.exp
	if ref.IsZero() {
		return nil, fmt.Errorf("initial condition needs a reference time")
	}
	adapter, err := source.NewAdapter(names, variant)
	if err != nil {
		return nil, err
	}
	fields, err := adapter.Canonicalize(ds, source.Selection{Nearest: ref})
	if err != nil {
		return nil, err
	}
	rotated := exp.Grid.Rotated()
	targets, u, v := icTargets(fields, rotated)

	var (
		mu      sync.Mutex
		results = make(map[string]*domain.GriddedField, len(targets))
		missing int
	)
	parallel := max(1, min(exp.Workers, len(targets)))
	perJob := max(1, exp.Workers/parallel)
	g := NewGraph()
	for _, tg := range targets {
		dest := exp.Grid.Points(tg.pt)
		err := g.Add(tg.key(), nil, func(ctx context.Context) error {
			out, reports, err := exp.regrid(ctx, tg.field, dest, perJob)
			if err != nil {
				return err
			}
			mu.Lock()
			results[tg.key()] = out
			missing += len(reports)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if err := g.Run(ctx, parallel); err != nil {
		return nil, err
	}

	ic := &domain.InitialCondition{
		Tracers:  make(map[string]*domain.GriddedField),
		Vertical: exp.Vertical,
	}
	if len(fields) > 0 && len(fields[0].Times) > 0 {
		ic.Time = fields[0].Times[0]
	}
	for _, tg := range targets {
		f := results[tg.key()]
		switch tg.field.Role {
		case domain.RoleTracer:
			ic.Tracers[f.Name] = f
		case domain.RoleEta:
			ic.Eta = f
		}
	}
	if u != nil && v != nil {
		ic.U = results[u.Name+"@"+string(domain.PointU)]
		ic.V = results[v.Name+"@"+string(domain.PointV)]
		if rotated {
			if err := rotateToGrid(ic.U, results[v.Name+"@"+string(domain.PointU)], exp.Grid.Points(domain.PointU).Angle); err != nil {
				return nil, err
			}
			if err := rotateToGrid(results[u.Name+"@"+string(domain.PointV)], ic.V, exp.Grid.Points(domain.PointV).Angle); err != nil {
				return nil, err
			}
		}
	}

	outputs := ic.Fields()
	if exp.Remapper.DeepFill == interp.DeepFillNearest {
		for _, f := range outputs {
			var mask []bool
			if f.PointType == domain.PointT {
				mask = exp.Mask
			}
			if left := interp.FloodFill(f, mask, exp.FillIterations); left > 0 {
				exp.Log.WithFields(logrus.Fields{"field": f.Name, "missing": left}).Warn("values still missing after fill")
			}
		}
	}
	for _, f := range outputs {
		rep := coverage(f)
		ic.Report = append(ic.Report, rep)
		if rep.MissingColumns > 0 {
			exp.Log.WithFields(logrus.Fields{
				"field":   rep.Field,
				"points":  string(rep.PointType),
				"missing": rep.MissingColumns,
				"columns": rep.Columns,
			}).Warn("columns without source data")
		}
	}
	exp.Log.WithFields(logrus.Fields{
		"time":           ic.Time.Format(time.RFC3339),
		"fields":         len(outputs),
		"remap_gaps":     missing,
		"cached_weights": exp.Regridders().Len(),
	}).Info("initial condition built")
	return ic, nil
}

// Write writes the initial condition file and records it.
func (b *InitialConditionBuilder) Write(ctx context.Context, ic *domain.InitialCondition) ([]string, error) {
	path, err := mom6.WriteInitialCondition(b.exp.OutputDir, b.exp.Grid, ic)
	if err != nil {
		return nil, fmt.Errorf("failed to write initial condition: %w", err)
	}
	b.exp.record(ctx, manifest.Entry{Path: path, Kind: manifest.KindInitialCondition})
	return []string{path}, nil
}
