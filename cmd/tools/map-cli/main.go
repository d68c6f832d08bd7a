package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/annel0/mapengine/internal/assets/mapindex"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "map-cli",
		Usage: "инспекция файлов карты: индекс блоков, декодирование, патчи",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Value:   ".",
				Usage:   "каталог с файлами мира",
				EnvVars: []string{"MAPENGINE_UO_DIR"},
			},
			&cli.StringFlag{
				Name:    "layouts",
				Usage:   "размеры фасетов \"w,h;w,h;...\"",
				EnvVars: []string{"MAPENGINE_MAPS_LAYOUTS"},
			},
			&cli.BoolFlag{
				Name:  "legacy",
				Usage: "старый клиент: фасеты 0 и 1 шириной 6144",
			},
			&cli.IntSliceFlag{
				Name:  "extended",
				Usage: "фасеты, переключаемые на X-вариант файлов",
			},
			&cli.StringFlag{
				Name:  "patch",
				Usage: "поток патчей, накладываемый перед командой",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "найденные фасеты и их файлы",
				Action: runInfo,
			},
			{
				Name:      "index",
				Usage:     "запись индекса блока",
				ArgsUsage: "<facet> <bx> <by>",
				Action:    runIndex,
			},
			{
				Name:      "chunk",
				Usage:     "декодированный блок 8x8: рельеф и статика",
				ArgsUsage: "<facet> <bx> <by>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "z", Usage: "печатать высоты вместо номеров рельефа"},
				},
				Action: runChunk,
			},
			{
				Name:      "z",
				Usage:     "высота тайла в абсолютных координатах",
				ArgsUsage: "<facet> <x> <y>",
				Action:    runTileZ,
			},
			{
				Name:      "patch",
				Usage:     "наложить поток патчей и показать перенаправленные блоки",
				ArgsUsage: "<blob>",
				Action:    runPatch,
			},
		},
	}
}

// openTable загружает индекс по глобальным флагам и накладывает --patch, если он задан
func openTable(c *cli.Context) (*mapindex.Table, error) {
	table := mapindex.NewTable(mapindex.Options{
		Dir:          c.String("dir"),
		Layouts:      mapindex.ParseLayouts(c.String("layouts")),
		LegacyClient: c.Bool("legacy"),
	})
	if err := table.Load(); err != nil {
		return nil, err
	}

	for _, facet := range c.IntSlice("extended") {
		if err := table.LoadMap(facet, true); err != nil {
			table.Close()
			return nil, err
		}
	}

	if path := c.String("patch"); path != "" {
		blob, err := os.ReadFile(path)
		if err != nil {
			table.Close()
			return nil, fmt.Errorf("поток патчей: %w", err)
		}
		table.ApplyPatches(blob)
	}
	return table, nil
}
