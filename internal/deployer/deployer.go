// Package deployer runs the publish pipeline: record history, ship the
// archive to Lambda (inline or via S3), align the entry-point configuration,
// and mark the deploy as live. Both the CLI and the release trigger drive it.
package deployer

import (
	"context"
	"fmt"
	"os"

	"github.com/pwilliams272/kaya-deployer/internal/dao/deploydao"
	"github.com/pwilliams272/kaya-deployer/internal/errors"
	"github.com/pwilliams272/kaya-deployer/internal/manifest"
	"github.com/pwilliams272/kaya-deployer/internal/services"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

// Functions is the slice of the Lambda control plane the pipeline uses.
type Functions interface {
	Exists(ctx context.Context, name string) (bool, error)
	Describe(ctx context.Context, name string) (*services.FunctionState, error)
	PublishCode(ctx context.Context, input services.PublishInput) error
	Create(ctx context.Context, input services.CreateInput) error
	ConfigureEntryPoint(ctx context.Context, input services.ConfigureInput) error
}

// Artifacts uploads and verifies archive objects.
type Artifacts interface {
	Upload(ctx context.Context, bucket, key, path, sha256 string) error
	Head(ctx context.Context, bucket, key string) (int64, error)
}

// History records deploy attempts.
type History interface {
	Create(ctx context.Context, input deploydao.CreateInput) (deploydao.Record, error)
	UpdateStatus(ctx context.Context, input deploydao.UpdateInput) error
	MarkDeployed(ctx context.Context, pk deploydao.PK, sk string) error
}

// Deployer orchestrates a single linear publish. Any step failure aborts the
// run; the only bookkeeping on failure is the FAILED history record.
type Deployer struct {
	functions Functions
	artifacts Artifacts
	history   History
	config    *services.Config
	env       string
}

// New creates a new Deployer
func New(functions Functions, artifacts Artifacts, history History, config *services.Config, env string) *Deployer {
	return &Deployer{
		functions: functions,
		artifacts: artifacts,
		history:   history,
		config:    config,
		env:       env,
	}
}

// ArchiveInput describes a locally built archive ready to publish.
type ArchiveInput struct {
	Manifest   *manifest.Manifest
	RoleArn    string // resolved execution role, used only when creating
	Path       string
	SHA256     string
	Size       int64
	Branch     string
	CommitHash string
	Version    string
}

// DeployArchive publishes a locally built archive. Archives go through S3
// when a bucket is configured (keeping the artifact for rollback); otherwise
// they must fit the direct-upload limit and are sent inline.
func (d *Deployer) DeployArchive(ctx context.Context, input ArchiveInput) (deploydao.Record, error) {
	logger := zerolog.Ctx(ctx)
	m := input.Manifest

	bucket := m.S3Bucket
	if bucket == "" {
		bucket = d.config.ArtifactBucket
	}
	if bucket == "" && input.Size > services.DirectUploadLimit {
		return deploydao.Record{}, fmt.Errorf("%w: archive is %d bytes, above the %d direct-upload limit",
			errors.ErrArtifactBucketUnset, input.Size, services.DirectUploadLimit)
	}

	record, err := d.history.Create(ctx, deploydao.CreateInput{
		Function:      m.FunctionName,
		Env:           d.env,
		SK:            ksuid.New().String(),
		Branch:        input.Branch,
		Version:       input.Version,
		CommitHash:    input.CommitHash,
		ArchiveSHA256: input.SHA256,
		CodeSize:      input.Size,
		Runtime:       m.Runtime,
		Handler:       m.Handler,
	})
	if err != nil {
		return deploydao.Record{}, fmt.Errorf("failed to record deploy: %w", err)
	}

	publish := services.PublishInput{FunctionName: m.FunctionName}
	create := services.CreateInput{
		FunctionName: m.FunctionName,
		Handler:      m.Handler,
		Runtime:      m.Runtime,
		RoleArn:      input.RoleArn,
		MemoryMB:     m.MemoryMB,
		TimeoutSec:   m.TimeoutSec,
		Env:          m.Env,
	}

	if bucket != "" {
		key := services.ArtifactKey(m.FunctionName, input.Branch, input.Version)
		if err := d.artifacts.Upload(ctx, bucket, key, input.Path, input.SHA256); err != nil {
			return record, d.fail(ctx, record, err)
		}
		publish.S3Bucket, publish.S3Key = bucket, key
		create.S3Bucket, create.S3Key = bucket, key
	} else {
		data, err := os.ReadFile(input.Path)
		if err != nil {
			return record, d.fail(ctx, record, fmt.Errorf("failed to read archive: %w", err))
		}
		publish.ZipFile = data
		create.ZipFile = data
	}

	if err := d.publish(ctx, record, publish, &create); err != nil {
		return record, err
	}

	logger.Info().
		Str("function", m.FunctionName).
		Str("version", input.Version).
		Str("sha256", input.SHA256).
		Msg("Deploy complete")
	return record, nil
}

// S3Input describes an archive already sitting in the artifact bucket.
type S3Input struct {
	FunctionName string
	Bucket       string
	Key          string
	Branch       string
	Version      string
	CommitHash   string
}

// DeployFromS3 publishes an uploaded archive to an existing function. Used
// by the release trigger and by rollback; neither can create a function,
// since neither carries a manifest with role and entry-point settings.
func (d *Deployer) DeployFromS3(ctx context.Context, input S3Input) (deploydao.Record, error) {
	size, err := d.artifacts.Head(ctx, input.Bucket, input.Key)
	if err != nil {
		return deploydao.Record{}, err
	}

	exists, err := d.functions.Exists(ctx, input.FunctionName)
	if err != nil {
		return deploydao.Record{}, err
	}
	if !exists {
		return deploydao.Record{}, fmt.Errorf("%w: %s must be created by a manifest deploy first",
			errors.ErrFunctionNotFound, input.FunctionName)
	}

	record, err := d.history.Create(ctx, deploydao.CreateInput{
		Function:   input.FunctionName,
		Env:        d.env,
		SK:         ksuid.New().String(),
		Branch:     input.Branch,
		Version:    input.Version,
		CommitHash: input.CommitHash,
		CodeSize:   size,
	})
	if err != nil {
		return deploydao.Record{}, fmt.Errorf("failed to record deploy: %w", err)
	}

	publish := services.PublishInput{
		FunctionName: input.FunctionName,
		S3Bucket:     input.Bucket,
		S3Key:        input.Key,
	}
	return record, d.publish(ctx, record, publish, nil)
}

// publish ships the code, aligning configuration afterwards when the deploy
// came from a manifest. create is non-nil when a missing function may be
// created.
func (d *Deployer) publish(ctx context.Context, record deploydao.Record, input services.PublishInput, create *services.CreateInput) error {
	inProgress := deploydao.DeployStatusInProgress
	if err := d.history.UpdateStatus(ctx, deploydao.UpdateInput{
		PK:     record.PK,
		SK:     record.SK,
		Status: &inProgress,
	}); err != nil {
		return fmt.Errorf("failed to update deploy status: %w", err)
	}

	exists, err := d.functions.Exists(ctx, input.FunctionName)
	if err != nil {
		return d.fail(ctx, record, err)
	}

	switch {
	case exists:
		if err := d.functions.PublishCode(ctx, input); err != nil {
			return d.fail(ctx, record, err)
		}
		if create != nil {
			if err := d.functions.ConfigureEntryPoint(ctx, services.ConfigureInput{
				FunctionName: create.FunctionName,
				Handler:      create.Handler,
				Runtime:      create.Runtime,
				MemoryMB:     create.MemoryMB,
				TimeoutSec:   create.TimeoutSec,
				Env:          create.Env,
			}); err != nil {
				return d.fail(ctx, record, err)
			}
		}
	case create != nil:
		if err := d.functions.Create(ctx, *create); err != nil {
			return d.fail(ctx, record, err)
		}
	default:
		return d.fail(ctx, record, fmt.Errorf("%w: %s", errors.ErrFunctionNotFound, input.FunctionName))
	}

	if err := d.history.MarkDeployed(ctx, record.PK, record.SK); err != nil {
		return fmt.Errorf("failed to mark deploy as deployed: %w", err)
	}
	return nil
}

// fail stamps the record FAILED and returns the original error.
func (d *Deployer) fail(ctx context.Context, record deploydao.Record, cause error) error {
	failed := deploydao.DeployStatusFailed
	msg := cause.Error()
	if err := d.history.UpdateStatus(ctx, deploydao.UpdateInput{
		PK:       record.PK,
		SK:       record.SK,
		Status:   &failed,
		ErrorMsg: &msg,
	}); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("id", record.GetID().String()).Msg("Failed to record deploy failure")
	}
	return cause
}
