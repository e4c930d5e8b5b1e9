package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/opsward/geryon/pkg/cli/config"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a category configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to the category configuration file (required)",
				Required:    true,
				Sources:     cli.EnvVars("GERYON_CONFIG"),
				Destination: &configPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			cyan := color.New(color.FgCyan).SprintFunc()

			appCfg, err := config.LoadAppConfiguration(configPath)
			if err != nil {
				fmt.Printf("%s %s: %v\n", red("✗"), configPath, err)
				return err
			}

			fmt.Printf("%s %s\n", green("✓"), configPath)
			for _, cat := range appCfg.Categories {
				fmt.Printf("  %s %s", cyan(cat.ID), cat.Name)
				if cat.Description != "" {
					fmt.Printf(" (%s)", cat.Description)
				}
				fmt.Println()
			}
			fmt.Printf("%d categories defined\n", len(appCfg.Categories))

			return nil
		},
	}
}
