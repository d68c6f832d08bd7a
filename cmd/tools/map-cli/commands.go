package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/annel0/mapengine/internal/assets/mapindex"
	"github.com/annel0/mapengine/internal/assets/uofile"
	"github.com/annel0/mapengine/internal/vec"
	"github.com/annel0/mapengine/internal/world"
)

// intArgs разбирает n целых позиционных аргументов
func intArgs(c *cli.Context, n int) ([]int, error) {
	if c.NArg() != n {
		return nil, fmt.Errorf("ожидается %d аргумента: %s", n, c.Command.ArgsUsage)
	}

	out := make([]int, n)
	for i := range out {
		v, err := strconv.Atoi(c.Args().Get(i))
		if err != nil {
			return nil, fmt.Errorf("аргумент %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func fileLabel(f uofile.FileReader) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", f.Name(), humanize.Bytes(uint64(f.Length())))
}

func runInfo(c *cli.Context) error {
	table, err := openTable(c)
	if err != nil {
		return err
	}
	defer table.Close()

	w := c.App.Writer
	fmt.Fprintf(w, "Каталог: %s\n", c.String("dir"))
	for facet := 0; facet < table.FacetCount(); facet++ {
		size := table.FacetSize(facet)
		if table.MapFile(facet) == nil {
			fmt.Fprintf(w, "Фасет %d: %dx%d, карты нет\n", facet, size.Width, size.Height)
			continue
		}

		bw, bh := table.BlockSize(facet)
		variant := "основной"
		if table.IsExtended(facet) {
			variant = "X"
		}
		fmt.Fprintf(w, "Фасет %d: %dx%d тайлов, %s блоков, вариант %s\n",
			facet, size.Width, size.Height, humanize.Comma(int64(bw*bh)), variant)
		fmt.Fprintf(w, "  рельеф:  %s\n", fileLabel(table.MapFile(facet)))
		fmt.Fprintf(w, "  статика: %s\n", fileLabel(table.StaticFile(facet)))
		if table.IsAliased(facet) {
			fmt.Fprintf(w, "  использует файлы фасета 0\n")
		}
		if n := table.MapPatchCount(facet) + table.StaticPatchCount(facet); n > 0 {
			fmt.Fprintf(w, "  патчи: рельеф %d, статика %d\n", table.MapPatchCount(facet), table.StaticPatchCount(facet))
		}
	}
	return nil
}

func printEntry(w io.Writer, e mapindex.IndexEntry) {
	if !e.IsValid() {
		fmt.Fprintln(w, "нет данных")
		return
	}
	fmt.Fprintf(w, "рельеф:  %s @ 0x%X\n", fileLabel(e.MapFile), e.MapAddress)
	fmt.Fprintf(w, "статика: %s @ 0x%X, записей %d\n", fileLabel(e.StaticFile), e.StaticAddress, e.StaticCount)
	if e.IsPatched() {
		fmt.Fprintf(w, "исходно: %s @ 0x%X; %s @ 0x%X, записей %d\n",
			fileLabel(e.OriginalMapFile), e.OriginalMapAddress,
			fileLabel(e.OriginalStaticFile), e.OriginalStaticAddress, e.OriginalStaticCount)
	}
}

func runIndex(c *cli.Context) error {
	args, err := intArgs(c, 3)
	if err != nil {
		return err
	}

	table, err := openTable(c)
	if err != nil {
		return err
	}
	defer table.Close()

	printEntry(c.App.Writer, table.GetIndex(args[0], args[1], args[2]))
	return nil
}

func runChunk(c *cli.Context) error {
	args, err := intArgs(c, 3)
	if err != nil {
		return err
	}

	table, err := openTable(c)
	if err != nil {
		return err
	}
	defer table.Close()

	facet := table.SanitizeFacet(args[0])
	chunk := world.NewFacetChunk(table, args[1], args[2])
	if err := chunk.Load(facet); err != nil {
		return err
	}

	w := c.App.Writer
	origin := chunk.Origin()
	fmt.Fprintf(w, "Блок %d,%d фасета %d (тайлы %d,%d .. %d,%d)\n", args[1], args[2], facet,
		origin.X, origin.Y, origin.X+vec.BlockSize-1, origin.Y+vec.BlockSize-1)

	for ly := 0; ly < vec.BlockSize; ly++ {
		for lx := 0; lx < vec.BlockSize; lx++ {
			t := chunk.Tile(lx, ly)
			if c.Bool("z") {
				fmt.Fprintf(w, " %4d", t.Z)
			} else {
				fmt.Fprintf(w, " %04X", t.TerrainID)
			}
		}
		fmt.Fprintln(w)
	}

	if chunk.StaticCount() == 0 {
		return nil
	}
	fmt.Fprintf(w, "Статика (%d):\n", chunk.StaticCount())
	for ly := 0; ly < vec.BlockSize; ly++ {
		for lx := 0; lx < vec.BlockSize; lx++ {
			for _, s := range chunk.Tile(lx, ly).Statics {
				fmt.Fprintf(w, "  %d,%d z=%d graphic=0x%04X hue=%d\n", s.X, s.Y, s.Z, s.Graphic, s.Hue)
			}
		}
	}
	return nil
}

func runTileZ(c *cli.Context) error {
	args, err := intArgs(c, 3)
	if err != nil {
		return err
	}

	table, err := openTable(c)
	if err != nil {
		return err
	}
	defer table.Close()

	fmt.Fprintln(c.App.Writer, world.TileZ(table, table.SanitizeFacet(args[0]), args[1], args[2]))
	return nil
}

func runPatch(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("ожидается путь к потоку патчей")
	}
	blob, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}

	table, err := openTable(c)
	if err != nil {
		return err
	}
	defer table.Close()

	redirected := table.ApplyPatches(blob)

	w := c.App.Writer
	fmt.Fprintf(w, "Поток: %s, фасетов %d, перенаправления: %v\n",
		humanize.Bytes(uint64(len(blob))), table.PatchesCount(), redirected)
	for facet := 0; facet < table.FacetCount(); facet++ {
		m, s := table.MapPatchCount(facet), table.StaticPatchCount(facet)
		if m == 0 && s == 0 {
			continue
		}
		fmt.Fprintf(w, "Фасет %d: рельеф %d, статика %d\n", facet, m, s)
	}
	return nil
}
