package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"go.ngs.io/regional-ocean/internal/adapter/store/manifest"
	"go.ngs.io/regional-ocean/internal/adapter/store/mom6"
	"go.ngs.io/regional-ocean/internal/config"
	"go.ngs.io/regional-ocean/internal/domain"
)

// ConstituentSampler reads tidal elevation constituents at arbitrary points.
type ConstituentSampler interface {
	Constituents() ([]string, error)
	Sample(constituents []string, lon, lat []float64) (amp, phase [][]float64, err error)
}

// TidalPipeline writes tidal amplitude and phase for every boundary.
type TidalPipeline struct {
	exp          *Experiment
	store        ConstituentSampler
	constituents []string
}

// NewTidalPipeline creates a pipeline. An empty constituent list uses
// everything the store provides.
func NewTidalPipeline(exp *Experiment, store ConstituentSampler, constituents []string) *TidalPipeline {
	return &TidalPipeline{exp: exp, store: store, constituents: constituents}
}

// Run samples the store along each boundary's T points and writes one
// file per segment.
func (p *TidalPipeline) Run(ctx context.Context, boundaries []config.Boundary) ([]string, error) {
	names := p.constituents
	if len(names) == 0 {
		var err error
		if names, err = p.store.Constituents(); err != nil {
			return nil, err
		}
	}
	names = domain.KnownConstituents(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no known tidal constituents to write")
	}

	var (
		mu    sync.Mutex
		paths []string
	)
	g := NewGraph()
	for _, b := range boundaries {
		err := g.Add("tides_"+domain.SegmentID(b.Segment), nil, func(ctx context.Context) error {
			path, err := p.boundary(ctx, names, b)
			if err != nil {
				return err
			}
			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if err := g.Run(ctx, p.exp.Workers); err != nil {
		return paths, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (p *TidalPipeline) boundary(ctx context.Context, names []string, b config.Boundary) (string, error) {
	exp := p.exp
	ny, nx := exp.Grid.FamilyShape(domain.PointT)
	idx, err := b.Spec.Indices(ny, nx)
	if err != nil {
		return "", fmt.Errorf("segment %d: %w", b.Segment, err)
	}
	w, err := b.Spec.Window(ny, nx)
	if err != nil {
		return "", fmt.Errorf("segment %d: %w", b.Segment, err)
	}
	ps := exp.Grid.Window(domain.PointT, w)
	ts := &domain.TidalSegment{
		Number:       b.Segment,
		Boundary:     b.Spec,
		Constituents: names,
		Lon:          make([]float64, len(idx)),
		Lat:          make([]float64, len(idx)),
	}
	for n, q := range idx {
		ts.Lon[n] = ps.Lon[q.J-w.J0][q.I-w.I0]
		ts.Lat[n] = ps.Lat[q.J-w.J0][q.I-w.I0]
	}
	ts.Amplitude, ts.Phase, err = p.store.Sample(names, ts.Lon, ts.Lat)
	if err != nil {
		return "", fmt.Errorf("segment %d: %w", b.Segment, err)
	}
	path, err := mom6.WriteTidalSegment(exp.OutputDir, ts)
	if err != nil {
		return "", err
	}
	exp.record(ctx, manifest.Entry{
		Path:      path,
		Kind:      manifest.KindTides,
		Boundary:  b.Spec.String(),
		Segment:   b.Segment,
		Variables: names,
	})
	exp.Log.WithFields(logrus.Fields{"segment": b.Segment, "constituents": len(names)}).Info("tidal segment written")
	return path, nil
}
