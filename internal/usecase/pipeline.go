package usecase

import (
	"context"
		"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"go.ngs.io/regional-ocean/internal/adapter/interp"
	"go.ngs.io/regional-ocean/internal/adapter/source"
	"go.ngs.io/regional-ocean/internal/adapter/store/manifest"
	"go.ngs.io/regional-ocean/internal/adapter/store/mom6"
	"go.ngs.io/regional-ocean/internal/config"
	"go.ngs.io/regional-ocean/internal/domain"
)

// SegmentPipeline builds and writes open-boundary segment files.
type SegmentPipeline struct {
	exp       *Experiment
	names     source.NameMap
	variant   domain.GridVariant
	selection source.Selection
}

// NewSegmentPipeline creates a pipeline reading sources described by names.
func NewSegmentPipeline(exp *Experiment, names source.NameMap, variant domain.GridVariant, sel source.Selection) *SegmentPipeline {
	return &SegmentPipeline{exp: exp, names: names, variant: variant, selection: sel}
}

// SegmentResult summarizes one pipeline run.
type SegmentResult struct {
	Written []string                `json:"written"`
	Skipped []int                   `json:"skipped,omitempty"` // Segments with no ocean points.
	Reports []domain.CoverageReport `json:"reports,omitempty"`
}

// Run reads the selected source steps in chunks that fit the memory budget,
// extracts every boundary of each chunk concurrently, and writes one file
// per boundary once all chunks are in. A boundary made only of land is
// skipped with a warning.
func (p *SegmentPipeline) Run(ctx context.Context, ds source.Dataset, boundaries []config.Boundary) (*SegmentResult, error) {
	exp := p.exp
	adapter, err := source.NewAdapter(p.names, p.variant)
	if err != nil {
		return nil, err
	}
	steps, err := adapter.Steps(ds, p.selection)
	if err != nil {
		return nil, err
	}
	perStep, err := adapter.StepBytes(ds)
	if err != nil {
		return nil, err
	}
	chunk := ChunkSteps(exp.MemoryBudgetMB, perStep, len(steps))
	exp.Log.WithFields(logrus.Fields{"steps": len(steps), "chunk": chunk}).Debug("reading source steps")

	parts := make([]segmentPart, len(boundaries))
	for k := range parts {
		parts[k].land = true
	}
	for lo := 0; lo < len(steps); lo += chunk {
		hi := min(lo+chunk, len(steps))
		canon, err := adapter.CanonicalizeSteps(ds, steps[lo:hi])
		if err != nil {
			return nil, err
		}
		fields := distinct(canon)
		g := NewGraph()
		for n, b := range boundaries {
			part := &parts[n]
			err := g.Add(domain.SegmentID(b.Segment), nil, func(ctx context.Context) error {
				seg, land, reports, err := p.boundary(ctx, fields, b)
				if err != nil {
					return err
				}
				return part.add(seg, land, reports)
			})
			if err != nil {
				return nil, err
			}
		}
		if err := g.Run(ctx, exp.Workers); err != nil {
			return nil, err
		}
	}

	var (
		mu  sync.Mutex
		res = &SegmentResult{}
	)
	g := NewGraph()
	for n, b := range boundaries {
		part := &parts[n]
		err := g.Add(domain.SegmentID(b.Segment), nil, func(ctx context.Context) error {
			log := exp.Log.WithFields(logrus.Fields{"boundary": b.Spec.String(), "segment": b.Segment})
			if part.land {
				log.Warn("skipping boundary without ocean points")
				mu.Lock()
				res.Skipped = append(res.Skipped, b.Segment)
				mu.Unlock()
				return nil
			}
			path, err := p.write(ctx, part.seg, b)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"path": path, "steps": len(part.seg.Times)}).Info("segment written")
			mu.Lock()
			res.Written = append(res.Written, path)
			res.Reports = append(res.Reports, part.reports...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if err := g.Run(ctx, exp.Workers); err != nil {
		return res, err
	}
	sort.Strings(res.Written)
	sort.Ints(res.Skipped)
	return res, nil
}

// segmentPart accumulates one boundary across source time chunks.
type segmentPart struct {
	seg     *domain.BoundarySegment
	land    bool // Every chunk so far was all land.
	reports []domain.CoverageReport
}

func (s *segmentPart) add(seg *domain.BoundarySegment, land bool, reports []domain.CoverageReport) error {
	s.land = s.land && land
	if s.seg == nil {
		s.seg, s.reports = seg, reports
		return nil
	}
	if err := appendSegment(s.seg, seg); err != nil {
		return err
	}
	for k := range s.reports {
		s.reports[k].MissingColumns += reports[k].MissingColumns
		s.reports[k].FullyMissing = s.reports[k].FullyMissing && reports[k].FullyMissing
	}
	return nil
}

// distinct keeps the first canonical replica of each field.
func distinct(fields []domain.CanonicalField) []*domain.CanonicalField {
	seen := make(map[string]bool)
	var out []*domain.CanonicalField
	for k := range fields {
		if !seen[fields[k].Name] {
			seen[fields[k].Name] = true
			out = append(out, &fields[k])
		}
	}
	return out
}

// boundary regrids fields onto the window of b and samples its segment. It
// reports whether the boundary is all land.
func (p *SegmentPipeline) boundary(ctx context.Context, fields []*domain.CanonicalField, b config.Boundary) (*domain.BoundarySegment, bool, []domain.CoverageReport, error) {
	exp := p.exp
	ny, nx := exp.Grid.FamilyShape(domain.PointT)
	w, err := b.Spec.Window(ny, nx)
	if err != nil {
		return nil, false, nil, fmt.Errorf("segment %d: %w", b.Segment, err)
	}
	dest := exp.Grid.Window(domain.PointT, w)

	gridded := make([]domain.GriddedField, len(fields))
	var u, v *domain.GriddedField
	for k, f := range fields {
		out, _, err := exp.regrid(ctx, f, dest, 1)
		if err != nil {
			return nil, false, nil, fmt.Errorf("segment %d: %w", b.Segment, err)
		}
		gridded[k] = *out
		switch f.Role {
		case domain.RoleU:
			u = &gridded[k]
		case domain.RoleV:
			v = &gridded[k]
		}
	}
	if u != nil && v != nil && exp.Grid.Rotated() {
		if err := rotateToGrid(u, v, dest.Angle); err != nil {
			return nil, false, nil, err
		}
	}
	if exp.Remapper.DeepFill == interp.DeepFillNearest {
		mask := exp.windowMask(w)
		for k := range gridded {
			interp.FloodFill(&gridded[k], mask, exp.FillIterations)
		}
	}
	reports := make([]domain.CoverageReport, len(gridded))
	for k := range gridded {
		reports[k] = coverage(&gridded[k])
	}

	seg, land, err := NewSegmentEncoder(exp).encode(gridded, b.Spec, b.Segment)
	if err != nil {
		return nil, false, nil, err
	}
	return seg, land, reports, nil
}

// write stores seg and records it in the manifest.
func (p *SegmentPipeline) write(ctx context.Context, seg *domain.BoundarySegment, b config.Boundary) (string, error) {
	exp := p.exp
	path, err := mom6.WriteSegment(exp.OutputDir, seg)
	if err != nil {
		return "", err
	}
	vars := make([]string, len(seg.Variables))
	for k, sv := range seg.Variables {
		vars[k] = sv.Name
	}
	exp.record(ctx, manifest.Entry{
		Path:      path,
		Kind:      manifest.KindSegment,
		Boundary:  b.Spec.String(),
		Segment:   b.Segment,
		Variables: vars,
	})
	return path, nil
}
