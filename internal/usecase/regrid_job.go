package usecase

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"go.ngs.io/regional-ocean/internal/adapter/interp"
	"go.ngs.io/regional-ocean/internal/domain"
)

// RegridJob runs horizontal regridding then vertical remapping of one field
// in row chunks. Whole columns stay in one chunk and every chunk writes only
// its own rows, so the result does not depend on Workers.
type RegridJob struct {
	Regridder *interp.Regridder
	Remapper  interp.Remapper
	Vertical  *domain.VerticalGrid
	ChunkRows int // Zero processes the window in one chunk.
	Workers   int
}

// Run regrids and remaps f. Columns left without any valid value are
// returned in time, then row, then column order.
func (j RegridJob) Run(ctx context.Context, f *domain.CanonicalField) (*domain.GriddedField, []domain.ColumnReport, error) {
	if err := j.Regridder.CheckCoverage(f.Name); err != nil {
		return nil, nil, err
	}
	flat, err := j.Regridder.Allocate(f)
	if err != nil {
		return nil, nil, err
	}
	out := j.Remapper.Allocate(flat, j.Vertical)

	ny := flat.Window.NY
	rows := j.ChunkRows
	if rows <= 0 || rows > ny {
		rows = ny
	}
	chunks := (ny + rows - 1) / rows
	reports := make([][]domain.ColumnReport, chunks)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, j.Workers))
	for c := 0; c < chunks; c++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			j0 := c * rows
			j1 := min(ny, j0+rows)
			j.Regridder.RegridRows(f, flat, j0, j1)
			reports[c] = j.Remapper.RemapRows(flat, out, j0, j1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	var all []domain.ColumnReport
	for _, r := range reports {
		all = append(all, r...)
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].Time < all[b].Time })
	return out, all, nil
}

// ChunkRows picks how many destination rows fit in each worker's share of
// the memory budget. Zero budget means no chunking.
func ChunkRows(budgetMB, workers, nx, nt, nzIn, nzOut int) int {
	if budgetMB <= 0 {
		return 0
	}
	perRow := 8 * nx * nt * (nzIn + nzOut)
	if perRow <= 0 {
		return 0
	}
	rows := budgetMB << 20 / (max(1, workers) * perRow)
	return max(1, rows)
}

// ChunkSteps picks how many source time steps of stepBytes each are read
// at once. Source data takes at most half the budget; regrid chunks share
// the rest. Zero budget reads all total steps together.
func ChunkSteps(budgetMB, stepBytes, total int) int {
	if budgetMB <= 0 || stepBytes <= 0 {
		return max(1, total)
	}
	steps := budgetMB << 20 / 2 / stepBytes
	return max(1, min(total, steps))
}

// regrid runs a RegridJob for f onto dest with the experiment's cached
// weights and chunking.
func (e *Experiment) regrid(ctx context.Context, f *domain.CanonicalField, dest domain.PointSet, workers int) (*domain.GriddedField, []domain.ColumnReport, error) {
	r, err := e.Regridders().Get(f.Mesh, dest)
	if err != nil {
		return nil, nil, err
	}
	rows := e.ChunkRows
	if rows == 0 {
		_, nx := dest.Shape()
		nzOut := 1
		if f.Depths != nil {
			nzOut = e.Vertical.Layers()
		}
		rows = ChunkRows(e.MemoryBudgetMB, workers, nx, f.NT, f.NZ, nzOut)
	}
	job := RegridJob{
		Regridder: r,
		Remapper:  e.Remapper,
		Vertical:  e.Vertical,
		ChunkRows: rows,
		Workers:   workers,
	}
	return job.Run(ctx, f)
}

// coverage counts the columns of f with no valid value at any level.
func coverage(f *domain.GriddedField) domain.CoverageReport {
	cols := f.Window.NY * f.Window.NX
	rep := domain.CoverageReport{Field: f.Name, PointType: f.PointType, Columns: cols}
	for t := 0; t < f.NT; t++ {
		for p := 0; p < cols; p++ {
			missing := true
			for z := 0; z < f.NZ; z++ {
				if !math.IsNaN(f.Slice(t, z)[p]) {
					missing = false
					break
				}
			}
			if missing {
				rep.MissingColumns++
			}
		}
	}
	rep.FullyMissing = rep.MissingColumns == cols*f.NT
	return rep
}
