package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pwilliams272/kaya-deployer/internal/di"
	"github.com/pwilliams272/kaya-deployer/internal/services"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// InvokeCommand returns the invoke command for smoke-testing a deployed function
func InvokeCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "invoke",
		Usage: "Invoke the function synchronously with a JSON payload",
		Description: `Runs the function once and prints its response. Useful as a smoke
check after a deploy.

Examples:
  # Trigger an incremental data update
  kaya-deployer invoke --env prd --function kaya-update-data \
    --payload '{"mode": "incremental", "batch_size": 1000}'

  # Empty event
  kaya-deployer invoke --env prd --function kaya-update-data`,
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
			&cli.StringFlag{
				Name:    "payload",
				Aliases: []string{"p"},
				Usage:   "JSON event payload",
				Value:   "{}",
			},
		},
		Action: func(c *cli.Context) error {
			return invokeAction(c, logger)
		},
	}
}

func invokeAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context
	payload := c.String("payload")

	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	container, err := di.New(c.String("env"))
	if err != nil {
		return err
	}

	return container.Invoke(func(functions *services.FunctionService) error {
		response, err := functions.Invoke(ctx, c.String("function"), []byte(payload))
		if err != nil {
			return err
		}

		fmt.Println(string(response))
		return nil
	})
}
