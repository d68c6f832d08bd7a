package mapindex_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mapengine/internal/assets/fixture"
	"github.com/annel0/mapengine/internal/assets/mapindex"
)

// patchedWorld фасет 0 с diff-файлами: рельеф блоков 3 и 10 (между ними блок вне фасета),
// статика блоков 0 и 5
func patchedWorld(t *testing.T) (string, *fixture.Diff) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, sampleFacet().WriteMul(dir, 0, ""))

	var cells [mapindex.CellsPerBlock]fixture.Cell
	cells[0] = fixture.Cell{ID: 0x0099, Z: 42}

	diff := &fixture.Diff{}
	diff.PatchMap(3, cells)
	diff.PatchMap(9999, cells)
	diff.PatchMap(10, cells)
	diff.PatchStatics(0, nil)
	diff.PatchStatics(5, []fixture.Static{{Color: 0x0AAA, X: 4, Y: 4}, {Color: 0x0BBB, X: 5, Y: 5}})
	require.NoError(t, diff.Write(dir, 0))

	return dir, diff
}

func TestApplyPatchesRedirects(t *testing.T) {
	dir, diff := patchedWorld(t)
	table := loadTable(t, dir, smallLayout(1))

	require.True(t, table.ApplyPatches(fixture.ControlBlob(diff.Counts())))
	assert.Equal(t, 1, table.PatchesCount())
	assert.Equal(t, 3, table.MapPatchCount(0))
	assert.Equal(t, 2, table.StaticPatchCount(0))

	e := table.GetIndex(0, 0, 3)
	assert.Equal(t, "mapdif0.mul", e.MapFile.Name())
	assert.Equal(t, uint64(0), e.MapAddress)
	assert.True(t, e.IsPatched())
	assert.Equal(t, "map0.mul", e.OriginalMapFile.Name())
	assert.Equal(t, uint64(3*mapindex.MapBlockSize), e.OriginalMapAddress)

	// позиция в mapdif сдвигается и на записи с блоком вне фасета
	e = table.GetIndex(0, 1, 2)
	assert.Equal(t, "mapdif0.mul", e.MapFile.Name())
	assert.Equal(t, uint64(2*mapindex.MapBlockSize), e.MapAddress)
	assert.Equal(t, uint32(2), e.StaticCount, "статика блока 10 не патчилась")

	// пустая запись stadifi: блок без статики
	e = table.GetIndex(0, 0, 0)
	assert.Equal(t, "stadif0.mul", e.StaticFile.Name())
	assert.Equal(t, uint32(0), e.StaticCount)
	assert.Equal(t, uint64(0), e.StaticAddress)
	assert.Equal(t, uint32(1), e.OriginalStaticCount)

	e = table.GetIndex(0, 0, 5)
	assert.Equal(t, "stadif0.mul", e.StaticFile.Name())
	assert.Equal(t, uint32(2), e.StaticCount)
	assert.Equal(t, uint64(0), e.StaticAddress)

	assert.False(t, table.GetIndex(0, 4, 4).IsPatched())
}

func TestApplyPatchesIdempotent(t *testing.T) {
	dir, diff := patchedWorld(t)
	table := loadTable(t, dir, smallLayout(1))
	blob := fixture.ControlBlob(diff.Counts())

	table.ApplyPatches(blob)
	once := snapshot(table, 0)

	table.ApplyPatches(blob)
	assert.Equal(t, once, snapshot(table, 0), "повторное применение не должно накапливаться")
}

func TestApplyPatchesResetsBeforePass(t *testing.T) {
	dir, diff := patchedWorld(t)
	table := loadTable(t, dir, smallLayout(1))
	original := snapshot(table, 0)

	require.True(t, table.ApplyPatches(fixture.ControlBlob(diff.Counts())))

	// поток без патчей возвращает исходное состояние
	assert.False(t, table.ApplyPatches(fixture.ControlBlob(fixture.FacetPatches{})))
	assert.Equal(t, original, snapshot(table, 0))
	assert.Equal(t, 0, table.MapPatchCount(0))

	// поток с одним патчем рельефа оставляет только его
	require.True(t, table.ApplyPatches(fixture.ControlBlob(fixture.FacetPatches{Map: 1})))
	assert.True(t, table.GetIndex(0, 0, 3).IsPatched())
	assert.False(t, table.GetIndex(0, 1, 2).IsPatched())
	assert.False(t, table.GetIndex(0, 0, 5).IsPatched())

	table.ResetPatches()
	assert.Equal(t, original, snapshot(table, 0))
}

func TestApplyPatchesClampsToDiffList(t *testing.T) {
	dir, _ := patchedWorld(t)
	table := loadTable(t, dir, smallLayout(1))

	// объявлено больше патчей, чем записей в mapdifl/stadifl
	require.True(t, table.ApplyPatches(fixture.ControlBlob(fixture.FacetPatches{Map: 1000, Static: 1000})))
	assert.Equal(t, 1000, table.MapPatchCount(0))
	assert.True(t, table.GetIndex(0, 1, 2).IsPatched())
	assert.Equal(t, uint32(2), table.GetIndex(0, 0, 5).StaticCount)
}

func TestApplyPatchesMissingDiffFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sampleFacet().WriteMul(dir, 0, ""))
	table := loadTable(t, dir, smallLayout(1))
	original := snapshot(table, 0)

	assert.False(t, table.ApplyPatches(fixture.ControlBlob(fixture.FacetPatches{Map: 2, Static: 2})))
	assert.Equal(t, original, snapshot(table, 0))
}

func TestApplyPatchesMissingMapDiffSkipsStatics(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sampleFacet().WriteMul(dir, 0, ""))

	diff := &fixture.Diff{}
	diff.PatchStatics(5, []fixture.Static{{Color: 1, X: 1, Y: 1}})
	require.NoError(t, diff.Write(dir, 0))

	table := loadTable(t, dir, smallLayout(1))

	// объявлены патчи рельефа без mapdif: фасет пропускается целиком
	assert.False(t, table.ApplyPatches(fixture.ControlBlob(fixture.FacetPatches{Map: 1, Static: 1})))
	assert.False(t, table.GetIndex(0, 0, 5).IsPatched())

	assert.True(t, table.ApplyPatches(fixture.ControlBlob(fixture.FacetPatches{Static: 1})))
	assert.True(t, table.GetIndex(0, 0, 5).IsPatched())
}

func TestApplyPatchesTruncatedStream(t *testing.T) {
	dir, diff := patchedWorld(t)
	table := loadTable(t, dir, smallLayout(2))

	blob := fixture.ControlBlob(diff.Counts(), fixture.FacetPatches{Map: 1})
	// второй фасет обрывается посреди пары счётчиков
	blob = blob[:len(blob)-6]

	assert.NotPanics(t, func() {
		assert.True(t, table.ApplyPatches(blob), "патчи первого фасета остаются")
	})
	assert.True(t, table.GetIndex(0, 0, 3).IsPatched())
	assert.Equal(t, 0, table.MapPatchCount(1))

	assert.False(t, table.ApplyPatches(nil))
	assert.False(t, table.ApplyPatches([]byte{0, 0}))
	assert.False(t, table.GetIndex(0, 0, 3).IsPatched(), "сброс выполняется и для пустого потока")
}

func TestApplyPatchesFacetCountClamp(t *testing.T) {
	dir, diff := patchedWorld(t)
	table := loadTable(t, dir, smallLayout(1))

	// отрицательное число фасетов
	blob := binary.BigEndian.AppendUint32(nil, 0xFFFFFFFF)
	assert.False(t, table.ApplyPatches(blob))
	assert.Equal(t, 0, table.PatchesCount())

	// больше фасетов, чем в таблице
	blob = fixture.ControlBlob(diff.Counts(), diff.Counts(), diff.Counts())
	assert.True(t, table.ApplyPatches(blob))
	assert.Equal(t, 1, table.PatchesCount())
}

func TestApplyPatchesSkipsFacetWithoutMap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sampleFacet().WriteMul(dir, 0, ""))
	require.NoError(t, sampleFacet().WriteMul(dir, 3, ""))

	var cells [mapindex.CellsPerBlock]fixture.Cell
	diff := &fixture.Diff{}
	diff.PatchMap(7, cells)
	require.NoError(t, diff.Write(dir, 3))

	table := loadTable(t, dir, smallLayout(4))

	// фасет 2 без карты: его 8 байт пропускаются, каким бы ни было содержимое
	blob := fixture.ControlBlob(
		fixture.FacetPatches{},
		fixture.FacetPatches{},
		fixture.FacetPatches{Map: 0xDEAD, Static: 0xBEEF},
		diff.Counts(),
	)
	require.True(t, table.ApplyPatches(blob))
	assert.Equal(t, 0, table.MapPatchCount(2))
	assert.Equal(t, 1, table.MapPatchCount(3))

	e := table.GetIndex(3, 0, 7)
	assert.Equal(t, "mapdif3.mul", e.MapFile.Name())
	assert.False(t, table.GetIndex(0, 0, 7).IsPatched())
}

func TestApplyPatchesTruncatedMapDiff(t *testing.T) {
	dir, _ := patchedWorld(t)
	// mapdif короче заявленного: третья запись не помещается
	require.NoError(t, fixture.WriteFile(dir, "mapdif0.mul", make([]byte, 2*mapindex.MapBlockSize+10)))

	table := loadTable(t, dir, smallLayout(1))
	require.True(t, table.ApplyPatches(fixture.ControlBlob(fixture.FacetPatches{Map: 3})))
	assert.True(t, table.GetIndex(0, 0, 3).IsPatched())
	assert.False(t, table.GetIndex(0, 1, 2).IsPatched())
}
