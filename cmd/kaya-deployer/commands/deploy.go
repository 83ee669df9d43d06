package commands

import (
	"fmt"
	"os"

	"github.com/pwilliams272/kaya-deployer/internal/deployer"
	"github.com/pwilliams272/kaya-deployer/internal/di"
	"github.com/pwilliams272/kaya-deployer/internal/errors"
	"github.com/pwilliams272/kaya-deployer/internal/gitinfo"
	"github.com/pwilliams272/kaya-deployer/internal/manifest"
	"github.com/pwilliams272/kaya-deployer/internal/packager"
	"github.com/pwilliams272/kaya-deployer/internal/services"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// DeployCommand returns the deploy command for running the full pipeline
func DeployCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Package the application and publish it to AWS Lambda",
		Description: `Runs the full deployment pipeline from a manifest:

  1. Verify HEAD is on the designated deploy branch
  2. Stage the application tree, excluding configured subtrees
  3. Vendor pip dependencies into the staging root
  4. Build the zip archive and fingerprint it
  5. Preflight the runtime secret and execution role
  6. Publish the archive (inline, or via S3 when a bucket is configured)
  7. Set the function's handler and runtime
  8. Record the deploy in the history table

Any step failure aborts the run; the history record is marked FAILED.

Examples:
  # Deploy using kaya-deploy.yml in the current directory
  kaya-deployer deploy --env prd

  # Build and inspect the archive without publishing
  kaya-deployer deploy --env dev --dry-run

  # Deploy from a detached CI checkout (branch gate skipped)
  kaya-deployer deploy --env prd --no-git --version 42.abc123def456`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Deployment environment (dev, stg, or prd) - determines config namespace and history table",
				Required: true,
				EnvVars:  []string{"ENV"},
			},
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"m"},
				Usage:   "Path to the deploy manifest",
				Value:   manifest.DefaultFileName,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Stop after packaging and print the archive summary",
			},
			&cli.BoolFlag{
				Name:  "no-git",
				Usage: "Skip the git branch gate (for detached CI checkouts)",
			},
			&cli.StringFlag{
				Name:    "version",
				Usage:   "Version string to record; defaults to {BUILD_NUMBER}.{commit} or local.{sha256[:12]}",
				EnvVars: []string{"DEPLOY_VERSION"},
			},
			&cli.BoolFlag{
				Name:  "skip-preflight",
				Usage: "Skip the runtime secret check",
			},
		},
		Action: func(c *cli.Context) error {
			return deployAction(c, logger)
		},
	}
}

func deployAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context
	env := c.String("env")

	m, err := manifest.Load(c.String("manifest"))
	if err != nil {
		return err
	}

	// Region from the manifest wins over the ambient chain. The SDK reads
	// it at client construction, so it must land before the container does.
	if m.Region != "" {
		os.Setenv("AWS_REGION", m.Region)
	}

	// Branch gate
	var info gitinfo.Info
	if !c.Bool("no-git") {
		info, err = gitinfo.Resolve(".")
		if err != nil {
			return fmt.Errorf("failed to read git state (use --no-git to skip): %w", err)
		}
		if info.Branch != m.Branch {
			return fmt.Errorf("%w: on %q, deploys run from %q", errors.ErrBranchMismatch, info.Branch, m.Branch)
		}
	}

	// Package
	result, err := packager.Build(ctx, packager.BuildInput{
		SourceDir:    m.SourceDir,
		Excludes:     m.Exclude,
		Requirements: m.Requirements,
	})
	if err != nil {
		return err
	}

	version := c.String("version")
	if version == "" {
		version = defaultVersion(info, result.SHA256)
	}

	fmt.Printf("Archive:  %s\n", result.ArchivePath)
	fmt.Printf("Size:     %d bytes\n", result.SizeBytes)
	fmt.Printf("SHA256:   %s\n", result.SHA256)
	fmt.Printf("Version:  %s\n", version)

	if c.Bool("dry-run") {
		fmt.Println("\nDRY RUN: Nothing was published.")
		return nil
	}

	container, err := di.New(env)
	if err != nil {
		return err
	}

	return container.Invoke(func(
		d *deployer.Deployer,
		functions *services.FunctionService,
		secrets *services.SecretsService,
		roles *services.RoleService,
	) error {
		// Preflight: the function reads its API tokens at startup, so a
		// missing secret means a function that fails on every invocation.
		if !c.Bool("skip-preflight") {
			if err := secrets.VerifyExists(ctx, m.SecretName); err != nil {
				return err
			}
		}

		// The execution role is only needed when the function must be created
		roleArn := m.RoleArn
		exists, err := functions.Exists(ctx, m.FunctionName)
		if err != nil {
			return err
		}
		if !exists {
			roleArn, err = roles.ResolveExecutionRole(ctx, m.FunctionName, m.RoleArn)
			if err != nil {
				return err
			}
		}

		record, err := d.DeployArchive(ctx, deployer.ArchiveInput{
			Manifest:   m,
			RoleArn:    roleArn,
			Path:       result.ArchivePath,
			SHA256:     result.SHA256,
			Size:       result.SizeBytes,
			Branch:     m.Branch,
			CommitHash: info.CommitHash,
			Version:    version,
		})
		if err != nil {
			return err
		}

		fmt.Printf("\n✓ Deployed %s (%s) as %s\n", m.FunctionName, version, record.GetID())
		return nil
	})
}

// defaultVersion builds the recorded version string: {BUILD_NUMBER}.{commit}
// in CI, local.{sha256[:12]} everywhere else.
func defaultVersion(info gitinfo.Info, sha256 string) string {
	if build := os.Getenv("BUILD_NUMBER"); build != "" && info.CommitHash != "" {
		return fmt.Sprintf("%s.%s", build, info.ShortHash())
	}
	return fmt.Sprintf("local.%s", sha256[:12])
}
