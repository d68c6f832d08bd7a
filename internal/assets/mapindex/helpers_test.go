package mapindex_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annel0/mapengine/internal/assets/fixture"
	"github.com/annel0/mapengine/internal/assets/mapindex"
)

// smallLayout фасеты 64x64 тайла (8x8 блоков)
func smallLayout(facets int) []mapindex.FacetSize {
	sizes := make([]mapindex.FacetSize, facets)
	for i := range sizes {
		sizes[i] = mapindex.FacetSize{Width: 64, Height: 64}
	}
	return sizes
}

// sampleFacet фасет 8x8 блоков с рельефом в блоке (0,0) и статикой в блоках (0,0) и (1,2)
func sampleFacet() *fixture.Facet {
	f := fixture.NewFacet(8, 8)
	f.SetCell(0, 0, 0, 0, 0x0005, 10)
	f.SetCell(1, 2, 7, 7, 0x4003, -20)
	f.AddStatic(0, 0, fixture.Static{Color: 0x1234, X: 2, Y: 3, Z: -5, Hue: 10})
	f.AddStatic(1, 2, fixture.Static{Color: 0x0100, X: 1, Y: 1, Z: 0, Hue: 0})
	f.AddStatic(1, 2, fixture.Static{Color: 0x0101, X: 1, Y: 2, Z: 1, Hue: 0})
	return f
}

func loadTable(t *testing.T, dir string, sizes []mapindex.FacetSize) *mapindex.Table {
	t.Helper()

	table := mapindex.NewTable(mapindex.Options{Dir: dir, Layouts: sizes})
	require.NoError(t, table.Load())
	t.Cleanup(func() { table.Close() })
	return table
}

// snapshot все записи фасета для сравнения состояний индекса
func snapshot(table *mapindex.Table, facet int) []mapindex.IndexEntry {
	w, h := table.BlockSize(facet)
	out := make([]mapindex.IndexEntry, 0, w*h)
	for bx := 0; bx < w; bx++ {
		for by := 0; by < h; by++ {
			out = append(out, table.GetIndex(facet, bx, by))
		}
	}
	return out
}
