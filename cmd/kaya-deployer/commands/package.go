package commands

import (
	"fmt"

	"github.com/pwilliams272/kaya-deployer/internal/manifest"
	"github.com/pwilliams272/kaya-deployer/internal/packager"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// PackageCommand returns the package command for building an archive without publishing
func PackageCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "package",
		Usage: "Build the deployment archive without publishing",
		Description: `Stages the application tree, vendors pip dependencies, and builds the
zip archive, leaving it on disk for inspection or for upload by an
external pipeline.

Examples:
  # Build into ./dist
  kaya-deployer package --output dist

  # Use an alternate manifest
  kaya-deployer package --manifest deploy/kaya-deploy.yml --output dist`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"m"},
				Usage:   "Path to the deploy manifest",
				Value:   manifest.DefaultFileName,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory the archive is written to (temp dir when omitted)",
			},
		},
		Action: func(c *cli.Context) error {
			return packageAction(c, logger)
		},
	}
}

func packageAction(c *cli.Context, logger *zerolog.Logger) error {
	m, err := manifest.Load(c.String("manifest"))
	if err != nil {
		return err
	}

	result, err := packager.Build(c.Context, packager.BuildInput{
		SourceDir:    m.SourceDir,
		Excludes:     m.Exclude,
		Requirements: m.Requirements,
		OutDir:       c.String("output"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Built %s\n", result.ArchivePath)
	fmt.Printf("  Size:   %d bytes\n", result.SizeBytes)
	fmt.Printf("  SHA256: %s\n", result.SHA256)
	return nil
}
