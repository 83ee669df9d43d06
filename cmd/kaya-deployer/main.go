package main

import (
	"context"
	"os"

	"github.com/pwilliams272/kaya-deployer/cmd/kaya-deployer/commands"
	"github.com/pwilliams272/kaya-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "kaya-deployer",
		Usage: "Package and deploy the kaya data-update Lambda",
		Description: `Builds the deployment archive for the kaya Python application and
publishes it to AWS Lambda.

The pipeline mirrors the push-to-main workflow: stage the application
tree (minus excluded subdirectories), vendor pip dependencies, zip,
upload, and set the function's handler and runtime. Credentials and
region come from the ambient AWS configuration chain; nothing secret
lives in the manifest.

Commands:
  - deploy    run the full pipeline against a manifest
  - package   build the archive without publishing
  - status    show live function state and the latest recorded deploy
  - history   list recent deploys for a function
  - invoke    smoke-invoke the function with a JSON payload
  - rollback  re-deploy a previously uploaded archive version`,
		Commands: []*cli.Command{
			commands.DeployCommand(&logger),
			commands.PackageCommand(&logger),
			commands.StatusCommand(&logger),
			commands.HistoryCommand(&logger),
			commands.InvokeCommand(&logger),
			commands.RollbackCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
