package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/pwilliams272/kaya-deployer/internal/dao/deploydao"
	"github.com/pwilliams272/kaya-deployer/internal/di"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// HistoryCommand returns the history command
func HistoryCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded deploys for a function",
		Description: `Lists deploy records for a function in an environment, newest first.

Examples:
  kaya-deployer history --env prd --function kaya-update-data
  kaya-deployer history --env dev --function kaya-update-data --limit 5`,
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
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Max records to show",
				Value:   20,
			},
		},
		Action: func(c *cli.Context) error {
			return historyAction(c, logger)
		},
	}
}

func historyAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context
	env := c.String("env")
	function := c.String("function")
	limit := c.Int("limit")

	container, err := di.New(env)
	if err != nil {
		return err
	}

	return container.Invoke(func(dao *deploydao.DAO) error {
		records, err := dao.Query(ctx, deploydao.NewPK(function, env))
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Printf("No deploys recorded for %s/%s\n", function, env)
			return nil
		}

		// KSUIDs sort chronologically, so SK order is creation order
		sort.Slice(records, func(i, j int) bool {
			return records[i].SK > records[j].SK
		})
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}

		fmt.Printf("%-29s %-12s %-22s %-10s %s\n", "CREATED", "STATUS", "VERSION", "BRANCH", "COMMIT")
		for _, r := range records {
			created := time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339)
			fmt.Printf("%-29s %-12s %-22s %-10s %s\n", created, r.Status, r.Version, r.Branch, r.CommitHash)
		}
		return nil
	})
}
