package main

import (
	"context"
	"fmt"

	"github.com/samcharles93/fitskit/internal/logger"
	"github.com/samcharles93/fitskit/pkg/catalog"
	"github.com/samcharles93/fitskit/pkg/fits"
	"github.com/urfave/cli/v3"
)

func matchCmd() *cli.Command {
	var (
		radius    float64
		closest   bool
		symmetric bool
		out       string
	)
	return &cli.Command{
		Name:      "match",
		Usage:     "Match two source catalogs by position, or one catalog against itself",
		ArgsUsage: "<catalog> [catalog]",
		Flags: []cli.Flag{
			hduFlag(),
			&cli.Float64Flag{
				Name:        "radius",
				Aliases:     []string{"r"},
				Usage:       "match radius in pixels",
				Value:       1,
				Destination: &radius,
			},
			&cli.BoolFlag{
				Name:        "closest",
				Usage:       "keep only the nearest partner of each source",
				Destination: &closest,
			},
			&cli.BoolFlag{
				Name:        "symmetric",
				Usage:       "report self matches in both orders",
				Destination: &symmetric,
			},
			&cli.StringFlag{
				Name:        "out",
				Usage:       "write the catalogs and the match table to this FITS file",
				Destination: &out,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if n := cmd.Args().Len(); n < 1 || n > 2 {
				return fmt.Errorf("match: expected one or two catalog files")
			}
			if r := configFrom(ctx).MatchRadius; r != nil && !cmd.IsSet("radius") {
				radius = *r
			}
			first, err := loadCatalog(ctx, cmd.Args().Get(0), int(hduIndex))
			if err != nil {
				return err
			}
			second := first
			var matches []catalog.Match[catalog.Source, catalog.Source]
			if cmd.Args().Len() == 2 {
				if second, err = loadCatalog(ctx, cmd.Args().Get(1), int(hduIndex)); err != nil {
					return err
				}
				matches = catalog.MatchXY(first.Records(), catalog.SourcePosition, second.Records(), catalog.SourcePosition, radius, closest)
			} else {
				matches = catalog.SelfMatchXY(first.Records(), catalog.SourcePosition, radius, symmetric)
			}
			logger.FromContext(ctx).Info("matched catalogs", "first", first.Len(), "second", second.Len(), "matches", len(matches), "radius", radius)

			w := cmd.Root().Writer
			for _, m := range matches {
				_, _ = fmt.Fprintf(w, "%d\t%d\t%.4f\n", m.First.ID, m.Second.ID, m.Distance)
			}
			if out == "" {
				return nil
			}
			return saveMatches(ctx, out, first, second, matches)
		},
	}
}

func loadCatalog(ctx context.Context, path string, hdu int) (*catalog.Catalog, error) {
	f, err := fits.Open(path, "r", fits.AutoCheck, fitsOptions(ctx)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if err := f.SetHDU(hdu, false); err != nil {
		return nil, err
	}
	c, err := catalog.ReadCatalog(f, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func saveMatches(ctx context.Context, path string, first, second *catalog.Catalog, matches []catalog.Match[catalog.Source, catalog.Source]) error {
	f, err := fits.Open(path, "w", fits.AutoCheck, fitsOptions(ctx)...)
	if err != nil {
		return err
	}
	if err := catalog.WriteCatalog(f, first); err != nil {
		_ = f.Close()
		return err
	}
	if second != first {
		if err := catalog.WriteCatalog(f, second); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := catalog.WriteMatches(f, matches, catalog.SourceID, catalog.SourceID); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
