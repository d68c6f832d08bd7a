package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mapengine/internal/assets/fixture"
	"github.com/annel0/mapengine/internal/assets/mapindex"
)

// run выполняет map-cli над каталогом dir и возвращает вывод
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out

	full := append([]string{"map-cli", "--dir", dir, "--layouts", "64,64"}, args...)
	err := app.Run(full)
	return out.String(), err
}

func cliWorld(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	f := fixture.NewFacet(8, 8)
	f.SetCell(0, 0, 0, 0, 0x0005, 10)
	f.SetCell(0, 0, 7, 7, 0x00AB, -4)
	f.AddStatic(0, 0, fixture.Static{Color: 0x0E10, X: 1, Y: 2, Z: 3, Hue: 5})
	require.NoError(t, f.WriteMul(dir, 0, ""))
	return dir
}

func TestInfo(t *testing.T) {
	out, err := run(t, cliWorld(t), "info")
	require.NoError(t, err)

	assert.Contains(t, out, "Фасет 0: 64x64 тайлов, 64 блоков, вариант основной")
	assert.Contains(t, out, "рельеф:  map0.mul (13 kB)")
	assert.Contains(t, out, "статика: statics0.mul")
}

func TestIndex(t *testing.T) {
	dir := cliWorld(t)

	out, err := run(t, dir, "index", "0", "0", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "map0.mul")
	assert.Contains(t, out, "записей 1")

	out, err = run(t, dir, "index", "0", "99", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "нет данных")

	_, err = run(t, dir, "index", "0", "x", "0")
	assert.Error(t, err)

	_, err = run(t, dir, "index", "0")
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	dir := cliWorld(t)

	out, err := run(t, dir, "chunk", "0", "0", "0")
	require.NoError(t, err)
	assert.Contains(t, out, " 0005")
	assert.Contains(t, out, " 00AB")
	assert.Contains(t, out, "1,2 z=3 graphic=0x0E10 hue=5")

	out, err = run(t, dir, "chunk", "--z", "0", "0", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "   10")
	assert.Contains(t, out, "   -4")

	_, err = run(t, dir, "chunk", "0", "50", "50")
	assert.Error(t, err, "блок вне фасета")
}

func TestTileZ(t *testing.T) {
	dir := cliWorld(t)

	out, err := run(t, dir, "z", "0", "7", "7")
	require.NoError(t, err)
	assert.Equal(t, "-4\n", out)

	out, err = run(t, dir, "z", "0", "-1", "0")
	require.NoError(t, err)
	assert.Equal(t, "-125\n", out)
}

func TestPatch(t *testing.T) {
	dir := cliWorld(t)

	var cells [mapindex.CellsPerBlock]fixture.Cell
	cells[0] = fixture.Cell{ID: 0x0099, Z: 42}
	diff := &fixture.Diff{}
	diff.PatchMap(0, cells)
	diff.PatchStatics(1, nil)
	require.NoError(t, diff.Write(dir, 0))

	blobPath := filepath.Join(t.TempDir(), "patch.bin")
	require.NoError(t, os.WriteFile(blobPath, fixture.ControlBlob(diff.Counts()), 0o644))

	out, err := run(t, dir, "patch", blobPath)
	require.NoError(t, err)
	assert.Contains(t, out, "фасетов 1, перенаправления: true")
	assert.Contains(t, out, "Фасет 0: рельеф 1, статика 1")

	// глобальный --patch действует на любую команду
	out, err = run(t, dir, "--patch", blobPath, "z", "0", "0", "0")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}
