// cart-autofill adds a shopping list to a grocery site's cart in a browser it controls.
//
// Usage:
//
//	cart-autofill run --site migros --list list.json [--output result.json]
//	cart-autofill serve
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cart-autofill/config"
	"cart-autofill/internal/app"
	"cart-autofill/internal/types"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "cart-autofill",
		Usage: "Fill Migros and Coop carts from a shopping list",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (default: config.yaml in . or ./config)",
				EnvVars: []string{"CARTAUTOFILL_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Value: true,
				Usage: "Run the browser without a window",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*types.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("headless") {
		cfg.UseHeadlessBrowser = c.Bool("headless")
	}
	return cfg, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Add the open items of a shopping list to a site's cart",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "site",
				Aliases:  []string{"s"},
				Usage:    "Target site (migros, coop)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "list",
				Aliases:  []string{"l"},
				Usage:    "Shopping list JSON file or http(s) URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: stdout)",
			},
		},
		Action: func(c *cli.Context) error {
			logger := app.NewLogger(c.Bool("verbose"))

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			site, err := types.ParseSite(c.String("site"))
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancelTimeout()

			list, err := app.LoadShoppingList(ctx, c.String("list"), cfg, logger)
			if err != nil {
				return err
			}
			items := types.ExportItems(list)
			logger.Infof("Loaded %d items, %d still to buy", len(list), len(items))

			rt := app.Start(cfg, logger)
			defer rt.Close()

			startTime := time.Now()
			result, err := rt.Engine.Start(ctx, types.AutomationRequest{Site: site, Items: items})
			if err != nil {
				return err
			}
			logger.Infof("Automation completed in %v", time.Since(startTime))

			jsonData, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal results: %w", err)
			}

			if out := c.String("output"); out != "" {
				if err := os.WriteFile(out, jsonData, 0644); err != nil {
					return fmt.Errorf("failed to write output file: %w", err)
				}
				logger.Infof("Results written to: %s", out)
			} else {
				fmt.Println(string(jsonData))
			}

			logger.Infof("Added: %d", len(result.Success))
			logger.Infof("Failed: %d", len(result.Failed))
			for _, item := range result.Failed {
				logger.Warnf("Not added: %s (%s)", item.Name, item.Quantity)
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the automation API for the tracker web app",
		Action: func(c *cli.Context) error {
			logger := app.NewLogger(c.Bool("verbose"))

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt := app.Start(cfg, logger)
			defer rt.Close()

			logger.Infof("Environment: %s", cfg.Environment)
			logger.Infof("Allowed origins: %v", cfg.AllowedOrigins)
			return rt.Serve(ctx, cfg, logger)
		},
	}
}
