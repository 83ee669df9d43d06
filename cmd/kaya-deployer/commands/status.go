package commands

import (
	"fmt"

	"github.com/pwilliams272/kaya-deployer/internal/dao/deploydao"
	"github.com/pwilliams272/kaya-deployer/internal/di"
	"github.com/pwilliams272/kaya-deployer/internal/services"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// StatusCommand returns the status command
func StatusCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show live function configuration and the latest recorded deploy",
		Description: `Reads the function's configuration from Lambda (handler, runtime,
code size, last update status) and the newest successful deploy from
the history table.

Examples:
  kaya-deployer status --env prd --function kaya-update-data`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Deployment environment (dev, stg, or prd)",
				Required: true,
				EnvVars:  []string{"ENV"},
			},
			&cli.StringFlag{
				Name:     "function",
				Aliases:  []string{"f"},
				Usage:    "Function name",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			return statusAction(c, logger)
		},
	}
}

func statusAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context
	env := c.String("env")
	function := c.String("function")

	container, err := di.New(env)
	if err != nil {
		return err
	}

	return container.Invoke(func(functions *services.FunctionService, dao *deploydao.DAO) error {
		state, err := functions.Describe(ctx, function)
		if err != nil {
			return err
		}

		fmt.Printf("Function:            %s\n", state.FunctionName)
		fmt.Printf("Handler:             %s\n", state.Handler)
		fmt.Printf("Runtime:             %s\n", state.Runtime)
		fmt.Printf("Memory:              %d MB\n", state.MemoryMB)
		fmt.Printf("Timeout:             %d s\n", state.TimeoutSec)
		fmt.Printf("Code size:           %d bytes\n", state.CodeSize)
		fmt.Printf("Code sha256:         %s\n", state.CodeSha256)
		fmt.Printf("Last modified:       %s\n", state.LastModified)
		fmt.Printf("Last update status:  %s\n", state.LastUpdateStatus)

		latest, err := dao.Latest(ctx, function, env)
		if err != nil {
			logger.Warn().Err(err).Msg("No deploy history found")
			return nil
		}

		fmt.Printf("\nLatest deploy:       %s\n", latest.GetID())
		fmt.Printf("  Version:           %s\n", latest.Version)
		fmt.Printf("  Branch:            %s\n", latest.Branch)
		fmt.Printf("  Commit:            %s\n", latest.CommitHash)
		fmt.Printf("  Archive sha256:    %s\n", latest.ArchiveSHA256)
		return nil
	})
}
