package delta

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/cerradolab/vegetation.report/internal/raster"
)

// newSnapshot builds a north-up test snapshot with the given pixel size,
// origin at (0,0) and EPSG:31982.
func newSnapshot(year, w, h int, pixelSize float64, px []uint8) *raster.Snapshot {
	return &raster.Snapshot{
		Name:      "test",
		Year:      year,
		Width:     w,
		Height:    h,
		Bands:     1,
		SRID:      31982,
		Transform: raster.GeoTransform{0, pixelSize, 0, 0, 0, -pixelSize},
		Pixels:    px,
	}
}

func TestAlignIdenticalLatticeFastPath(t *testing.T) {
	a := newSnapshot(2018, 2, 2, 30, []uint8{3, 3, 3, 3})
	b := newSnapshot(2022, 2, 2, 30, []uint8{3, 15, 3, 3})

	ga, gb, err := Align(a, b)
	require.NoError(t, err)
	if ga != a || gb != b {
		t.Fatal("identical lattices should pass through without copying")
	}
}

func TestAlignResamplesCoarserOntoFiner(t *testing.T) {
	// 2x2 at 20 units vs 4x4 at 10 units over the same extent. The coarse
	// grid must land on the fine lattice with each source pixel covering a
	// 2x2 block.
	a := newSnapshot(2018, 2, 2, 20, []uint8{1, 2, 3, 4})
	b := newSnapshot(2022, 4, 4, 10, []uint8{
		5, 5, 5, 5,
		5, 5, 5, 5,
		5, 5, 5, 5,
		5, 5, 5, 5,
	})

	ga, gb, err := Align(a, b)
	require.NoError(t, err)

	require.Equal(t, 4, ga.Width)
	require.Equal(t, 4, ga.Height)
	require.Equal(t, gb.Transform, ga.Transform)
	require.Equal(t, b.Transform, gb.Transform)

	want := []uint8{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}
	if diff := cmp.Diff(want, ga.Pixels); diff != "" {
		t.Errorf("resampled pixels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.Pixels, gb.Pixels); diff != "" {
		t.Errorf("fine grid pixels changed (-want +got):\n%s", diff)
	}
}

func TestAlignPartialOverlap(t *testing.T) {
	a := newSnapshot(2018, 4, 4, 10, make([]uint8, 16))
	b := newSnapshot(2022, 4, 4, 10, make([]uint8, 16))
	// Shift b one pixel right and one down.
	b.Transform = raster.GeoTransform{10, 10, 0, -10, 0, -10}

	ga, gb, err := Align(a, b)
	require.NoError(t, err)

	require.Equal(t, 3, ga.Width)
	require.Equal(t, 3, ga.Height)
	require.Equal(t, ga.Transform, gb.Transform)
	// No pixel center of the intersection falls outside either source.
	for i, v := range ga.Pixels {
		if ga.IsNoData(v) {
			t.Fatalf("unexpected nodata at index %d in overlap region", i)
		}
	}
}

func TestAlignErrorKinds(t *testing.T) {
	base := func() *raster.Snapshot {
		return newSnapshot(2018, 2, 2, 30, []uint8{0, 0, 0, 0})
	}

	tests := []struct {
		name    string
		mutate  func(a, b *raster.Snapshot)
		wantErr error
	}{
		{
			name:    "missing projection",
			mutate:  func(a, b *raster.Snapshot) { b.SRID = 0 },
			wantErr: ErrMissingProjection,
		},
		{
			name:    "projection mismatch",
			mutate:  func(a, b *raster.Snapshot) { b.SRID = 4326 },
			wantErr: ErrProjectionMismatch,
		},
		{
			name: "disjoint extents",
			mutate: func(a, b *raster.Snapshot) {
				b.Transform = raster.GeoTransform{1000, 30, 0, 0, 0, -30}
			},
			wantErr: ErrDisjointExtent,
		},
		{
			name: "touching edges are disjoint",
			mutate: func(a, b *raster.Snapshot) {
				b.Transform = raster.GeoTransform{60, 30, 0, 0, 0, -30}
			},
			wantErr: ErrDisjointExtent,
		},
		{
			name: "rotated grid",
			mutate: func(a, b *raster.Snapshot) {
				a.Transform[2] = 1
			},
			wantErr: ErrRotatedGrid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := base(), base()
			tt.mutate(a, b)
			_, _, err := Align(a, b)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}
