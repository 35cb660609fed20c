package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samcharles93/fitskit/pkg/fits"
	"github.com/samcharles93/fitskit/pkg/props"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func optionsCmd() *cli.Command {
	var (
		kindName string
		format   string
	)
	return &cli.Command{
		Name:      "options",
		Usage:     "Print image write options, resolved from a YAML file or the defaults",
		ArgsUsage: "[options.yaml]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "pixel type whose defaults are shown",
				Value:       "float32",
				Destination: &kindName,
			},
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "output format (yaml, json)",
				Value:       "yaml",
				Destination: &format,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			kind, err := fits.ParseKind(kindName)
			if err != nil {
				return err
			}
			path := cmd.Args().First()
			if path == "" && !cmd.IsSet("dtype") {
				path = configFrom(ctx).WriteOptions
			}
			o, err := imageWriteOptions(path, kind)
			if err != nil {
				return err
			}

			tree := nestOptions(fits.WriteOptionsSet(o))
			w := cmd.Root().Writer
			switch strings.ToLower(format) {
			case "yaml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(tree); err != nil {
					return err
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(tree)
			}
			return fmt.Errorf("options: unknown format %q (want yaml or json)", format)
		},
	}
}

// nestOptions turns dotted option names back into sections.
func nestOptions(s *props.Set) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, name := range s.Names() {
		section, key, ok := strings.Cut(name, ".")
		if !ok {
			section, key = "", name
		}
		if out[section] == nil {
			out[section] = make(map[string]any)
		}
		if s.IsArray(name) {
			out[section][key] = s.GetAll(name)
		} else {
			out[section][key], _ = s.Get(name)
		}
	}
	return out
}
