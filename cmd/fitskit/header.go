package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samcharles93/fitskit/pkg/fits"
	"github.com/samcharles93/fitskit/pkg/props"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func headerCmd() *cli.Command {
	var (
		format  string
		inherit bool
		strip   bool
	)
	return &cli.Command{
		Name:      "header",
		Usage:     "Print the header of one HDU",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			hduFlag(),
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "output format (fits, json, yaml)",
				Value:       "fits",
				Destination: &format,
			},
			&cli.BoolFlag{
				Name:        "inherit",
				Usage:       "merge the primary header when INHERIT = T",
				Destination: &inherit,
			},
			&cli.BoolFlag{
				Name:        "strip",
				Usage:       "drop structural keywords (json and yaml only)",
				Value:       true,
				Destination: &strip,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("header: missing file argument")
			}
			f, err := fits.Open(path, "r", fits.AutoCheck, fitsOptions(ctx)...)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			if err := f.SetHDU(int(hduIndex), false); err != nil {
				return err
			}

			w := cmd.Root().Writer
			switch strings.ToLower(format) {
			case "fits":
				return printCards(w, f)
			case "json", "yaml":
			default:
				return fmt.Errorf("header: unknown format %q", format)
			}
			var md *props.List
			if inherit {
				md, err = f.ReadInheritedMetadata(strip)
			} else {
				md, err = f.ReadMetadata(strip)
			}
			if err != nil {
				return err
			}
			return encodeMetadata(w, md, format)
		},
	}
}

func printCards(w io.Writer, f *fits.Fits) error {
	h, err := f.Header()
	if err != nil {
		return err
	}
	for i := range h.Len() {
		if _, err := fmt.Fprintln(w, strings.TrimRight(h.Raw(i), " ")); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w, "END")
	return err
}

func encodeMetadata(w io.Writer, md *props.List, format string) error {
	if strings.EqualFold(format, "yaml") {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(md); err != nil {
			return err
		}
		return enc.Close()
	}
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
