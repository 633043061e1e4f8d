package main

import (
	"context"
	"fmt"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/32bitkid/fallout/script"
	"github.com/32bitkid/fallout/vfs"
)

type procJSON struct {
	Name            string `json:"name"`
	Flags           uint32 `json:"flags"`
	Delay           uint32 `json:"delay"`
	ConditionOffset uint32 `json:"conditionOffset"`
	BodyOffset      uint32 `json:"bodyOffset"`
	ArgumentsCount  uint32 `json:"argumentsCount"`
	Exported        bool   `json:"exported"`
	Critical        bool   `json:"critical"`
}

type intJSON struct {
	Procedures  []procJSON        `json:"procedures"`
	Identifiers map[uint32]string `json:"identifiers"`
	Strings     map[uint32]string `json:"strings,omitempty"`
}

func procsCmd() *cli.Command {
	var (
		file       string
		showTables bool
	)

	return &cli.Command{
		Name:  "procs",
		Usage: "Print an INT container's procedure table as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to .int file",
				Destination: &file,
				Required:    true,
			},
			&cli.BoolFlag{
				Name:        "tables",
				Usage:       "include the identifier and string tables",
				Destination: &showTables,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			drv := vfs.Dir{Root: filepath.Dir(file)}
			f, err := script.Open(drv, filepath.Base(file))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			out := intJSON{}
			for _, p := range f.Procedures() {
				out.Procedures = append(out.Procedures, procJSON{
					Name:            p.Name,
					Flags:           uint32(p.Flags),
					Delay:           p.Delay,
					ConditionOffset: p.ConditionOffset,
					BodyOffset:      p.BodyOffset,
					ArgumentsCount:  p.ArgumentsCount,
					Exported:        p.IsExported(),
					Critical:        p.IsCritical(),
				})
			}
			if showTables {
				out.Identifiers = f.Identifiers()
				out.Strings = f.Strings()
			}

			raw, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}
