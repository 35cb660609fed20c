package main

import (
	"context"
	"fmt"
	"os"

	"github.com/samcharles93/fitskit/internal/imagestore"
	"github.com/samcharles93/fitskit/internal/logger"
	"github.com/samcharles93/fitskit/pkg/fits"
	"github.com/samcharles93/fitskit/pkg/pixel"
	"github.com/urfave/cli/v3"
)

func compressCmd() *cli.Command {
	var (
		optionsPath string
		algorithm   string
	)
	return &cli.Command{
		Name:      "compress",
		Usage:     "Rewrite an image or masked image with new write options",
		ArgsUsage: "<in> <out>",
		Flags: []cli.Flag{
			hduFlag(),
			&cli.StringFlag{
				Name:        "options",
				Aliases:     []string{"o"},
				Usage:       "YAML file of image write options",
				Destination: &optionsPath,
			},
			&cli.StringFlag{
				Name:        "algorithm",
				Aliases:     []string{"a"},
				Usage:       "override the image compression algorithm (NONE, GZIP_1, GZIP_2, RICE_1, PLIO_1)",
				Destination: &algorithm,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("compress: expected <in> <out>")
			}
			in, out := cmd.Args().Get(0), cmd.Args().Get(1)
			if optionsPath == "" {
				optionsPath = configFrom(ctx).WriteOptions
			}

			kind, err := imageKind(ctx, in, int(hduIndex))
			if err != nil {
				return err
			}
			opts, err := imageWriteOptions(optionsPath, kind)
			if err != nil {
				return err
			}
			if algorithm != "" {
				if opts.Compression.Algorithm, err = fits.ParseCompressionAlgorithm(algorithm); err != nil {
					return err
				}
			}

			log := logger.FromContext(ctx).With("in", in, "out", out)
			log.Info("rewriting image", "dtype", kind, "compression", opts.Compression.Algorithm, "scaling", opts.Scaling.Algorithm)
			if err := recompressKind(ctx, kind, in, int(hduIndex), out, opts); err != nil {
				return err
			}
			log.Debug("done")
			return nil
		},
	}
}

// imageWriteOptions loads path, or the defaults for kind when path is empty.
func imageWriteOptions(path string, kind fits.Kind) (fits.ImageWriteOptions, error) {
	if path == "" {
		return fits.DefaultWriteOptions(kind), nil
	}
	r, err := os.Open(path)
	if err != nil {
		return fits.ImageWriteOptions{}, err
	}
	defer func() { _ = r.Close() }()
	return fits.LoadWriteOptionsYAML(r)
}

// imageKind reports the equivalent pixel type of the image at hdu.
func imageKind(ctx context.Context, path string, hdu int) (fits.Kind, error) {
	f, err := fits.Open(path, "r", fits.AutoCheck, fitsOptions(ctx)...)
	if err != nil {
		return fits.KindInvalid, err
	}
	defer func() { _ = f.Close() }()
	if err := f.SetHDU(hdu, false); err != nil {
		return fits.KindInvalid, err
	}
	if f.CurrentHDU() == 0 {
		if _, err := f.CheckCompressedImagePHU(); err != nil {
			return fits.KindInvalid, err
		}
	}
	return f.ImageEquivalentKind()
}

func recompressKind(ctx context.Context, kind fits.Kind, in string, hdu int, out string, opts fits.ImageWriteOptions) error {
	switch kind {
	case fits.Uint8:
		return recompress[uint8](ctx, in, hdu, out, opts)
	case fits.Int8:
		return recompress[int8](ctx, in, hdu, out, opts)
	case fits.Int16:
		return recompress[int16](ctx, in, hdu, out, opts)
	case fits.Uint16:
		return recompress[uint16](ctx, in, hdu, out, opts)
	case fits.Int32:
		return recompress[int32](ctx, in, hdu, out, opts)
	case fits.Uint32:
		return recompress[uint32](ctx, in, hdu, out, opts)
	case fits.Int64:
		return recompress[int64](ctx, in, hdu, out, opts)
	case fits.Uint64:
		return recompress[uint64](ctx, in, hdu, out, opts)
	case fits.Float32:
		return recompress[float32](ctx, in, hdu, out, opts)
	case fits.Float64:
		return recompress[float64](ctx, in, hdu, out, opts)
	}
	return fmt.Errorf("compress: %s holds no image at HDU %d", in, hdu)
}

func recompress[T pixel.Number](ctx context.Context, in string, hdu int, out string, opts fits.ImageWriteOptions) error {
	fopts := fitsOptions(ctx)
	mi, md, err := imagestore.LoadMaskedImage[T](in, hdu, fopts...)
	if err != nil {
		return err
	}
	planes := imagestore.DefaultOptions[T]()
	planes.Image = opts
	return imagestore.SaveMaskedImage(out, mi, planes, md, fopts...)
}
