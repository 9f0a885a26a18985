// Package main is the entry point for the StarSwipe server.
//
// main stays small: it parses the command line, loads configuration, builds
// the logger and hands over to internal/server, which owns all wiring.
//
// Commands:
//
//	starswipe serve              HTTP API plus the periodic job worker
//	starswipe serve --no-worker  HTTP API only (when jobs run elsewhere)
//	starswipe jobs list          print the registered job names
//	starswipe jobs run <name>    run one job now, under the same lease the
//	                             scheduler uses, and print the result
//	starswipe admin grant <user> give a user the ADMIN role
//	starswipe admin revoke <user>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/starswipe/internal/config"
	"github.com/sakif/starswipe/internal/logging"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "starswipe",
		Short:         "Swipe-to-star discovery and reputation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (env: STARSWIPE_CONFIG)")

	root.AddCommand(newServeCmd(&configPath), newJobsCmd(&configPath), newAdminCmd(&configPath))
	return root
}

// setup loads and validates configuration and builds the logger. Errors are
// printed here because the root command silences cobra's own output.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format), nil
}

func newServeCmd(configPath *string) *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background job worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}

			// SIGINT/SIGTERM cancel ctx, which starts the graceful shutdown
			// inside Server.Start.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := server.NewApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to build application", slog.String("error", err.Error()))
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("closing application", slog.String("error", err.Error()))
				}
			}()

			if err := server.New(app).Start(ctx, !noWorker); err != nil {
				logger.Error("server error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not run the periodic job scheduler and worker")
	return cmd
}

func newJobsCmd(configPath *string) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect or run periodic jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), *configPath, func(_ context.Context, app *server.App) error {
				for _, name := range app.Runner.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}

	run := &cobra.Command{
		Use:   "run <name>",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configPath, func(ctx context.Context, app *server.App) error {
				res, err := app.Runner.Run(ctx, args[0])
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					return err
				}
				if res.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped, another run holds the lease\n", res.Job)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: processed %d in %s\n", res.Job, res.Processed, res.Duration)
				return nil
			})
		},
	}

	jobsCmd.AddCommand(list, run)
	return jobsCmd
}

func newAdminCmd(configPath *string) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin roles",
	}

	roleCmd := func(use, short string, role model.Role) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <username>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), *configPath, func(ctx context.Context, app *server.App) error {
					u, err := app.Admin.SetRole(ctx, args[0], role)
					if err != nil {
						fmt.Fprintln(os.Stderr, err)
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", u.Username, u.ID, u.Role)
					return nil
				})
			},
		}
	}

	adminCmd.AddCommand(
		roleCmd("grant", "Give a user the ADMIN role", model.RoleAdmin),
		roleCmd("revoke", "Return an admin to the USER role", model.RoleUser),
	)
	return adminCmd
}

func withApp(parent context.Context, configPath string, fn func(context.Context, *server.App) error) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}
