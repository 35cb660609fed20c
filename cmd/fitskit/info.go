package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/samcharles93/fitskit/pkg/fits"
	"github.com/urfave/cli/v3"
	"github.com/zeebo/blake3"
)

// hduSummary describes one HDU for the info command.
type hduSummary struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Shape   []int  `json:"shape,omitempty"`
	DType   string `json:"dtype,omitempty"`
	Rows    int    `json:"rows,omitempty"`
	Columns int    `json:"columns,omitempty"`
	Digest  string `json:"digest,omitempty"`
}

func infoCmd() *cli.Command {
	var (
		digest  bool
		jsonOut bool
	)
	return &cli.Command{
		Name:      "info",
		Usage:     "List the HDUs of a FITS file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "digest",
				Usage:       "add a BLAKE3 digest of each HDU's stored data",
				Destination: &digest,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print JSON instead of a table",
				Destination: &jsonOut,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("info: missing file argument")
			}
			hdus, err := summarize(ctx, path, digest)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.Root().Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(hdus)
			}
			return printSummary(cmd.Root().Writer, hdus)
		},
	}
}

func summarize(ctx context.Context, path string, digest bool) ([]hduSummary, error) {
	f, err := fits.Open(path, "r", fits.AutoCheck, fitsOptions(ctx)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	out := make([]hduSummary, 0, f.CountHDUs())
	for i := range f.CountHDUs() {
		if err := f.SetHDU(i, false); err != nil {
			return nil, err
		}
		s, err := summarizeHDU(f, digest)
		if err != nil {
			return nil, fmt.Errorf("HDU %d: %w", i, err)
		}
		s.Index = i
		out = append(out, s)
	}
	return out, nil
}

func summarizeHDU(f *fits.Fits, digest bool) (hduSummary, error) {
	var s hduSummary
	kind, err := f.HDUType()
	if err != nil {
		return s, err
	}
	s.Type = kind.String()
	if f.HasKey("EXTNAME") {
		if s.Name, err = fits.ReadKey[string](f, "EXTNAME"); err != nil {
			return s, err
		}
		s.Name = strings.TrimSpace(s.Name)
	}
	switch kind {
	case fits.ImageHDU, fits.CompressedImageHDU:
		if s.Shape, err = f.ImageShape(); err != nil {
			return s, err
		}
		if len(s.Shape) > 0 {
			if s.DType, err = f.ImageDType(); err != nil {
				return s, err
			}
		}
	default:
		if s.Rows, err = f.CountRows(); err != nil {
			return s, err
		}
		if s.Columns, err = f.CountColumns(); err != nil {
			return s, err
		}
	}
	if digest {
		data, err := f.ReadRawData()
		if err != nil {
			return s, err
		}
		sum := blake3.Sum256(data)
		s.Digest = hex.EncodeToString(sum[:])
	}
	return s, nil
}

func printSummary(w io.Writer, hdus []hduSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "HDU\tTYPE\tNAME\tSHAPE\tDTYPE\tDIGEST")
	for _, s := range hdus {
		shape := "-"
		switch {
		case len(s.Shape) > 0:
			dims := make([]string, len(s.Shape))
			for i, d := range s.Shape {
				dims[i] = fmt.Sprint(d)
			}
			shape = strings.Join(dims, "x")
		case s.Columns > 0:
			shape = fmt.Sprintf("%d rows, %d cols", s.Rows, s.Columns)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", s.Index, s.Type, orDash(s.Name), shape, orDash(s.DType), orDash(s.Digest))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
