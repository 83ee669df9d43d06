package commands

import (
	"fmt"
	"strings"

	"github.com/pwilliams272/kaya-deployer/internal/deployer"
	"github.com/pwilliams272/kaya-deployer/internal/di"
	"github.com/pwilliams272/kaya-deployer/internal/errors"
	"github.com/pwilliams272/kaya-deployer/internal/services"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// RollbackCommand returns the rollback command
func RollbackCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "Re-deploy a previously uploaded archive version",
		Description: `Points the function back at an archive that is still in the artifact
bucket. The archive must have been uploaded by a previous deploy; the
function's configuration is left untouched.

Examples:
  # Find a version to roll back to
  kaya-deployer history --env prd --function kaya-update-data

  # Roll back
  kaya-deployer rollback --env prd --function kaya-update-data \
    --deploy-version 41.fedcba987654`,
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
				Name:     "deploy-version",
				Usage:    "Version to roll back to ({build_number}.{commit_hash})",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "branch",
				Usage: "Branch segment of the archive key",
				Value: "main",
			},
		},
		Action: func(c *cli.Context) error {
			return rollbackAction(c, logger)
		},
	}
}

func rollbackAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context
	function := c.String("function")
	version := c.String("deploy-version")
	branch := c.String("branch")

	commitHash := ""
	if parts := strings.SplitN(version, ".", 2); len(parts) == 2 {
		commitHash = parts[1]
	}

	container, err := di.New(c.String("env"))
	if err != nil {
		return err
	}

	return container.Invoke(func(d *deployer.Deployer, config *services.Config) error {
		if config.ArtifactBucket == "" {
			return fmt.Errorf("%w: rollback needs the artifact bucket that holds prior archives", errors.ErrArtifactBucketUnset)
		}

		key := services.ArtifactKey(function, branch, version)
		record, err := d.DeployFromS3(ctx, deployer.S3Input{
			FunctionName: function,
			Bucket:       config.ArtifactBucket,
			Key:          key,
			Branch:       branch,
			Version:      version,
			CommitHash:   commitHash,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✓ Rolled %s back to %s (%s)\n", function, version, record.GetID())
		return nil
	})
}
