// The release-trigger Lambda deploys archives that CI uploads to the
// artifact bucket. CI pushes {function}/{branch}/{version}.zip on every
// build; only archives from the designated deploy branch are published.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pwilliams272/kaya-deployer/internal/deployer"
	"github.com/pwilliams272/kaya-deployer/internal/di"
	"github.com/pwilliams272/kaya-deployer/internal/errors"
	"github.com/pwilliams272/kaya-deployer/internal/services"
	"github.com/rs/zerolog"
)

type Handler struct {
	deployer *deployer.Deployer
	config   *services.Config
}

func NewHandler(deployer *deployer.Deployer, config *services.Config) *Handler {
	return &Handler{
		deployer: deployer,
		config:   config,
	}
}

func (h *Handler) HandleS3Event(ctx context.Context, event events.S3Event) error {
	logger := zerolog.Ctx(ctx)

	for i := range event.Records {
		if err := h.processS3Record(ctx, &event.Records[i]); err != nil {
			logger.Error().Err(err).Msg("Error processing S3 record")
			return err
		}
	}
	return nil
}

func (h *Handler) processS3Record(ctx context.Context, record *events.S3EventRecord) error {
	logger := zerolog.Ctx(ctx)
	key := record.S3.Object.Key

	// Only deployment archives are interesting
	if !strings.HasSuffix(key, ".zip") {
		return nil // Silently ignore other files
	}

	function, branch, version, err := services.ParseArtifactKey(key)
	if err != nil {
		return err
	}

	deployBranch := h.config.DeployBranch
	if branch != deployBranch {
		logger.Info().
			Str("function", function).
			Str("branch", branch).
			Str("deploy_branch", deployBranch).
			Msg("Skipping archive from non-deploy branch")
		return nil
	}

	// Version format from CI is {build_number}.{commit_hash}
	commitHash := ""
	if parts := strings.SplitN(version, ".", 2); len(parts) == 2 {
		commitHash = parts[1]
	} else {
		return fmt.Errorf("%w: %s, expected format: {build_number}.{commit_hash}",
			errors.ErrInvalidVersion, version)
	}

	logger.Info().
		Str("function", function).
		Str("branch", branch).
		Str("version", version).
		Msg("Deploying archive from designated branch")

	deployRecord, err := h.deployer.DeployFromS3(ctx, deployer.S3Input{
		FunctionName: function,
		Bucket:       record.S3.Bucket.Name,
		Key:          key,
		Branch:       branch,
		Version:      version,
		CommitHash:   commitHash,
	})
	if err != nil {
		return fmt.Errorf("failed to deploy %s: %w", key, err)
	}

	logger.Info().
		Str("function", function).
		Str("version", version).
		Str("id", deployRecord.GetID().String()).
		Msg("Deployed archive")
	return nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "release-trigger").Logger()

	// Get ENV to determine which configuration namespace and history table to use
	env := os.Getenv("ENV")
	if env == "" {
		env = "dev"
	}

	container, err := di.New(env)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create DI container")
	}

	err = container.Invoke(func(d *deployer.Deployer, config *services.Config) {
		handler := NewHandler(d, config)
		lambda.StartWithOptions(handler.HandleS3Event,
			lambda.WithContext(logger.WithContext(context.Background())))
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to resolve dependencies")
	}
}
