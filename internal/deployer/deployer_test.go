package deployer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pwilliams272/kaya-deployer/internal/dao/deploydao"
	"github.com/pwilliams272/kaya-deployer/internal/errors"
	"github.com/pwilliams272/kaya-deployer/internal/manifest"
	"github.com/pwilliams272/kaya-deployer/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFunctions struct {
	exists     bool
	existsErr  error
	published  []services.PublishInput
	created    []services.CreateInput
	configured []services.ConfigureInput
	publishErr error
	createErr  error
}

func (f *fakeFunctions) Exists(ctx context.Context, name string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeFunctions) Describe(ctx context.Context, name string) (*services.FunctionState, error) {
	if !f.exists {
		return nil, fmt.Errorf("%w: %s", errors.ErrFunctionNotFound, name)
	}
	return &services.FunctionState{FunctionName: name}, nil
}

func (f *fakeFunctions) PublishCode(ctx context.Context, input services.PublishInput) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, input)
	return nil
}

func (f *fakeFunctions) Create(ctx context.Context, input services.CreateInput) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, input)
	return nil
}

func (f *fakeFunctions) ConfigureEntryPoint(ctx context.Context, input services.ConfigureInput) error {
	f.configured = append(f.configured, input)
	return nil
}

type upload struct {
	bucket, key, path, sha string
}

type fakeArtifacts struct {
	uploads   []upload
	uploadErr error
	headSize  int64
	headErr   error
}

func (f *fakeArtifacts) Upload(ctx context.Context, bucket, key, path, sha256 string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, upload{bucket, key, path, sha256})
	return nil
}

func (f *fakeArtifacts) Head(ctx context.Context, bucket, key string) (int64, error) {
	return f.headSize, f.headErr
}

type statusChange struct {
	sk     string
	status deploydao.DeployStatus
	errMsg string
}

type fakeHistory struct {
	created  []deploydao.CreateInput
	statuses []statusChange
	deployed []string
}

func (f *fakeHistory) Create(ctx context.Context, input deploydao.CreateInput) (deploydao.Record, error) {
	f.created = append(f.created, input)
	return deploydao.Record{
		PK:     deploydao.NewPK(input.Function, input.Env),
		SK:     input.SK,
		Status: deploydao.DeployStatusPending,
	}, nil
}

func (f *fakeHistory) UpdateStatus(ctx context.Context, input deploydao.UpdateInput) error {
	change := statusChange{sk: input.SK, status: *input.Status}
	if input.ErrorMsg != nil {
		change.errMsg = *input.ErrorMsg
	}
	f.statuses = append(f.statuses, change)
	return nil
}

func (f *fakeHistory) MarkDeployed(ctx context.Context, pk deploydao.PK, sk string) error {
	f.deployed = append(f.deployed, sk)
	return nil
}

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		FunctionName: "kaya-update-data",
		Handler:      "kaya/update_data_script.lambda_handler",
		Runtime:      "python3.11",
		SourceDir:    "kaya",
		MemoryMB:     512,
		TimeoutSec:   300,
	}
}

func writeArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kaya.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04 not a real zip"), 0o644))
	return path
}

func archiveInput(t *testing.T, m *manifest.Manifest) ArchiveInput {
	return ArchiveInput{
		Manifest:   m,
		RoleArn:    "arn:aws:iam::123456789012:role/kaya-update-data-role",
		Path:       writeArchive(t),
		SHA256:     "deadbeef",
		Size:       1024,
		Branch:     "main",
		CommitHash: "abc123def456",
		Version:    "42.abc123def456",
	}
}

func TestDeployArchiveViaS3(t *testing.T) {
	functions := &fakeFunctions{exists: true}
	artifacts := &fakeArtifacts{}
	history := &fakeHistory{}
	config := &services.Config{ArtifactBucket: "kaya-artifacts"}

	d := New(functions, artifacts, history, config, "dev")
	record, err := d.DeployArchive(context.Background(), archiveInput(t, testManifest()))
	require.NoError(t, err)

	require.Len(t, artifacts.uploads, 1)
	assert.Equal(t, "kaya-artifacts", artifacts.uploads[0].bucket)
	assert.Equal(t, "kaya-update-data/main/42.abc123def456.zip", artifacts.uploads[0].key)

	require.Len(t, functions.published, 1)
	assert.Equal(t, "kaya-artifacts", functions.published[0].S3Bucket)
	assert.Empty(t, functions.published[0].ZipFile)

	// entry point aligned after a manifest deploy
	require.Len(t, functions.configured, 1)
	assert.Equal(t, "kaya/update_data_script.lambda_handler", functions.configured[0].Handler)
	assert.Equal(t, "python3.11", functions.configured[0].Runtime)

	assert.Equal(t, []string{record.SK}, history.deployed)
}

func TestDeployArchiveInlineWithoutBucket(t *testing.T) {
	functions := &fakeFunctions{exists: true}
	history := &fakeHistory{}

	d := New(functions, &fakeArtifacts{}, history, &services.Config{}, "dev")
	_, err := d.DeployArchive(context.Background(), archiveInput(t, testManifest()))
	require.NoError(t, err)

	require.Len(t, functions.published, 1)
	assert.NotEmpty(t, functions.published[0].ZipFile)
	assert.Empty(t, functions.published[0].S3Bucket)
}

func TestDeployArchiveTooLargeWithoutBucket(t *testing.T) {
	d := New(&fakeFunctions{exists: true}, &fakeArtifacts{}, &fakeHistory{}, &services.Config{}, "dev")

	input := archiveInput(t, testManifest())
	input.Size = services.DirectUploadLimit + 1
	_, err := d.DeployArchive(context.Background(), input)
	assert.ErrorIs(t, err, errors.ErrArtifactBucketUnset)
}

func TestDeployArchiveCreatesMissingFunction(t *testing.T) {
	functions := &fakeFunctions{exists: false}
	history := &fakeHistory{}
	config := &services.Config{ArtifactBucket: "kaya-artifacts"}

	d := New(functions, &fakeArtifacts{}, history, config, "dev")
	_, err := d.DeployArchive(context.Background(), archiveInput(t, testManifest()))
	require.NoError(t, err)

	require.Len(t, functions.created, 1)
	created := functions.created[0]
	assert.Equal(t, "kaya-update-data", created.FunctionName)
	assert.Equal(t, "arn:aws:iam::123456789012:role/kaya-update-data-role", created.RoleArn)
	assert.Equal(t, "kaya-artifacts", created.S3Bucket)
	assert.Empty(t, functions.published)
}

func TestDeployArchiveRecordsFailure(t *testing.T) {
	functions := &fakeFunctions{exists: true, publishErr: fmt.Errorf("code storage exceeded")}
	history := &fakeHistory{}
	config := &services.Config{ArtifactBucket: "kaya-artifacts"}

	d := New(functions, &fakeArtifacts{}, history, config, "dev")
	_, err := d.DeployArchive(context.Background(), archiveInput(t, testManifest()))
	require.Error(t, err)

	require.NotEmpty(t, history.statuses)
	last := history.statuses[len(history.statuses)-1]
	assert.Equal(t, deploydao.DeployStatusFailed, last.status)
	assert.Contains(t, last.errMsg, "code storage exceeded")
	assert.Empty(t, history.deployed)
}

func TestDeployArchiveManifestBucketWins(t *testing.T) {
	functions := &fakeFunctions{exists: true}
	artifacts := &fakeArtifacts{}
	config := &services.Config{ArtifactBucket: "shared-artifacts"}

	m := testManifest()
	m.S3Bucket = "kaya-own-bucket"

	d := New(functions, artifacts, &fakeHistory{}, config, "dev")
	_, err := d.DeployArchive(context.Background(), archiveInput(t, m))
	require.NoError(t, err)

	require.Len(t, artifacts.uploads, 1)
	assert.Equal(t, "kaya-own-bucket", artifacts.uploads[0].bucket)
}

func TestDeployFromS3(t *testing.T) {
	functions := &fakeFunctions{exists: true}
	artifacts := &fakeArtifacts{headSize: 2048}
	history := &fakeHistory{}

	d := New(functions, artifacts, history, &services.Config{}, "prd")
	record, err := d.DeployFromS3(context.Background(), S3Input{
		FunctionName: "kaya-update-data",
		Bucket:       "kaya-artifacts",
		Key:          "kaya-update-data/main/42.abc123def456.zip",
		Branch:       "main",
		Version:      "42.abc123def456",
		CommitHash:   "abc123def456",
	})
	require.NoError(t, err)

	require.Len(t, functions.published, 1)
	assert.Equal(t, "kaya-update-data/main/42.abc123def456.zip", functions.published[0].S3Key)
	assert.Equal(t, []string{record.SK}, history.deployed)

	require.Len(t, history.created, 1)
	assert.Equal(t, int64(2048), history.created[0].CodeSize)
	assert.Equal(t, "prd", history.created[0].Env)

	// an S3 deploy has no manifest, so configuration is left alone
	assert.Empty(t, functions.configured)
}

func TestDeployFromS3MissingFunction(t *testing.T) {
	d := New(&fakeFunctions{exists: false}, &fakeArtifacts{}, &fakeHistory{}, &services.Config{}, "dev")
	_, err := d.DeployFromS3(context.Background(), S3Input{
		FunctionName: "kaya-update-data",
		Bucket:       "kaya-artifacts",
		Key:          "kaya-update-data/main/42.abc123.zip",
	})
	assert.ErrorIs(t, err, errors.ErrFunctionNotFound)
}

func TestDeployFromS3MissingObject(t *testing.T) {
	artifacts := &fakeArtifacts{headErr: fmt.Errorf("NotFound")}
	history := &fakeHistory{}

	d := New(&fakeFunctions{exists: true}, artifacts, history, &services.Config{}, "dev")
	_, err := d.DeployFromS3(context.Background(), S3Input{
		FunctionName: "kaya-update-data",
		Bucket:       "kaya-artifacts",
		Key:          "kaya-update-data/main/42.abc123.zip",
	})
	require.Error(t, err)
	assert.Empty(t, history.created)
}
