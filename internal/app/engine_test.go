package app

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mapengine/internal/assets/fixture"
	"github.com/annel0/mapengine/internal/assets/mapindex"
	"github.com/annel0/mapengine/internal/config"
	"github.com/annel0/mapengine/internal/world"
)

// testConfig один фасет 64x64 тайла в dir с хранилищем патчей во временном каталоге
func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Assets.InstallDir = dir
	cfg.Assets.MapsLayouts = "64,64"
	cfg.Assets.PoolSize = 4
	cfg.Storage.Path = t.TempDir()
	return cfg
}

// writeWorld фасет 0: рельеф 5/10 в первой ячейке блока (0,0) и статика в блоке (1,1)
func writeWorld(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	f := fixture.NewFacet(8, 8)
	f.SetCell(0, 0, 0, 0, 0x0005, 10)
	f.AddStatic(1, 1, fixture.Static{Color: 0x0100, X: 3, Y: 4, Z: 7, Hue: 2})
	require.NoError(t, f.WriteMul(dir, 0, ""))
	return dir
}

// writeDiff патч рельефа блока 0: первая ячейка 0x99/42
func writeDiff(t *testing.T, dir string) []byte {
	t.Helper()

	var cells [mapindex.CellsPerBlock]fixture.Cell
	cells[0] = fixture.Cell{ID: 0x0099, Z: 42}

	diff := &fixture.Diff{}
	diff.PatchMap(0, cells)
	require.NoError(t, diff.Write(dir, 0))
	return fixture.ControlBlob(diff.Counts())
}

func TestEngineOpen(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, testConfig(t, writeWorld(t)))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 1, e.Table().FacetCount())
	assert.Equal(t, int8(10), e.TileZ(0, 0, 0))

	snap, err := e.Chunk(ctx, 0, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.StaticCount())
	tile, ok := snap.Tile(3, 4)
	require.True(t, ok)
	require.Len(t, tile.Statics, 1)
	assert.Equal(t, uint16(0x0100), tile.Statics[0].Graphic)

	count, err := testutil.GatherAndCount(e.Metrics().Registry(), "mapengine_blocks_indexed")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "по серии на построенный фасет")
}

func TestEngineOpenNoMaps(t *testing.T) {
	_, err := Open(context.Background(), testConfig(t, t.TempDir()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, mapindex.ErrNoMapsFound))
}

func TestEngineChunkNoData(t *testing.T) {
	e, err := Open(context.Background(), testConfig(t, writeWorld(t)))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Chunk(context.Background(), 0, 100, 100)
	assert.True(t, errors.Is(err, world.ErrNoData))
}

// TestEnginePatchesSurviveRestart тестирует восстановление потока патчей из хранилища
func TestEnginePatchesSurviveRestart(t *testing.T) {
	ctx := context.Background()
	dir := writeWorld(t)
	blob := writeDiff(t, dir)
	cfg := testConfig(t, dir)

	e, err := Open(ctx, cfg)
	require.NoError(t, err)

	// прогреваем кеш до патча
	_, err = e.Chunk(ctx, 0, 0, 0)
	require.NoError(t, err)

	redirected, err := e.ApplyPatches(ctx, blob)
	require.NoError(t, err)
	assert.True(t, redirected)

	snap, err := e.Chunk(ctx, 0, 0, 0)
	require.NoError(t, err)
	tile, _ := snap.Tile(0, 0)
	assert.Equal(t, uint16(0x0099), tile.TerrainID, "после патча кеш не отдаёт старый блок")
	assert.Equal(t, int8(42), tile.Z)
	require.NoError(t, e.Close())

	t.Run("Restored", func(t *testing.T) {
		e, err := Open(ctx, cfg)
		require.NoError(t, err)
		defer e.Close()

		assert.Equal(t, int8(42), e.TileZ(0, 0, 0), "поток патчей наложен при старте")
		assert.Equal(t, 1, e.Table().MapPatchCount(0))

		require.NoError(t, e.ResetPatches())
		assert.Equal(t, int8(10), e.TileZ(0, 0, 0))
	})

	t.Run("Forgotten after reset", func(t *testing.T) {
		e, err := Open(ctx, cfg)
		require.NoError(t, err)
		defer e.Close()

		assert.Equal(t, int8(10), e.TileZ(0, 0, 0))
		assert.Equal(t, 0, e.Table().PatchesCount())
	})
}

func TestEngineWithoutStore(t *testing.T) {
	ctx := context.Background()
	dir := writeWorld(t)
	blob := writeDiff(t, dir)

	cfg := testConfig(t, dir)
	cfg.Storage.Path = ""
	cfg.Cache.Enabled = false

	e, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer e.Close()

	redirected, err := e.ApplyPatches(ctx, blob)
	require.NoError(t, err)
	assert.True(t, redirected)
	assert.Equal(t, int8(42), e.TileZ(0, 0, 0))

	// поток без патчей откатывает предыдущие
	redirected, err = e.ApplyPatches(ctx, fixture.ControlBlob())
	require.NoError(t, err)
	assert.False(t, redirected)
	assert.Equal(t, int8(10), e.TileZ(0, 0, 0))
}

func TestEngineSwitchVariant(t *testing.T) {
	ctx := context.Background()
	dir := writeWorld(t)

	x := fixture.NewFacet(8, 8)
	x.SetCell(0, 0, 0, 0, 0x0077, -3)
	require.NoError(t, x.WriteMul(dir, 0, "x"))

	e, err := Open(ctx, testConfig(t, dir))
	require.NoError(t, err)
	defer e.Close()

	snap, err := e.Chunk(ctx, 0, 0, 0)
	require.NoError(t, err)
	tile, _ := snap.Tile(0, 0)
	assert.Equal(t, uint16(5), tile.TerrainID)

	require.NoError(t, e.SwitchVariant(ctx, 0, true))
	assert.True(t, e.Table().IsExtended(0))

	snap, err = e.Chunk(ctx, 0, 0, 0)
	require.NoError(t, err)
	tile, _ = snap.Tile(0, 0)
	assert.Equal(t, uint16(0x0077), tile.TerrainID, "смена варианта сбрасывает кеш")
	assert.Equal(t, int8(-3), e.TileZ(0, 0, 0))
}

func TestEngineExtendedFacetsFromConfig(t *testing.T) {
	dir := writeWorld(t)
	x := fixture.NewFacet(8, 8)
	x.SetCell(0, 0, 0, 0, 0x0077, -3)
	require.NoError(t, x.WriteMul(dir, 0, "x"))

	cfg := testConfig(t, dir)
	cfg.Assets.ExtendedFacets = []int{0}

	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	assert.True(t, e.Table().IsExtended(0))
	assert.Equal(t, int8(-3), e.TileZ(0, 0, 0))
}

func TestEnginePrefetch(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, testConfig(t, writeWorld(t)))
	require.NoError(t, err)
	defer e.Close()

	res, err := e.Prefetch(ctx, 0, world.Area(0, 0, 71, 63))
	require.NoError(t, err)
	assert.Equal(t, 64, res.Loaded)
	assert.Equal(t, 8, res.NoData, "столбец bx=8 за пределами фасета")
}

func TestEngineCloseIdempotent(t *testing.T) {
	e, err := Open(context.Background(), testConfig(t, writeWorld(t)))
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}
