package packager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// BuildInput describes one packaging pass.
type BuildInput struct {
	SourceDir    string   // application package root, e.g. kaya
	Excludes     []string // subtrees dropped from the archive, relative to SourceDir
	Requirements string   // pip requirements file; empty or missing skips vendoring
	OutDir       string   // where the archive lands; temp dir when empty
}

// Result describes the produced archive.
type Result struct {
	ArchivePath string
	SHA256      string
	SizeBytes   int64
}

// Build runs the full packaging pipeline: stage, vendor, compress,
// fingerprint. The staging directory is removed before returning; only the
// archive survives.
func Build(ctx context.Context, input BuildInput) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	outDir := input.OutDir
	if outDir == "" {
		dir, err := os.MkdirTemp("", "kaya-deploy-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create output dir: %w", err)
		}
		outDir = dir
	}

	stageDir, err := os.MkdirTemp("", "kaya-stage-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(stageDir)

	if err := Stage(ctx, input.SourceDir, stageDir, input.Excludes); err != nil {
		return nil, err
	}

	if input.Requirements != "" {
		if err := Vendor(ctx, input.Requirements, stageDir); err != nil {
			return nil, err
		}
	}

	archivePath := filepath.Join(outDir, filepath.Base(input.SourceDir)+".zip")
	if err := BuildArchive(stageDir, archivePath); err != nil {
		return nil, err
	}

	sha, err := Fingerprint(archivePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	logger.Info().
		Str("archive", archivePath).
		Str("sha256", sha).
		Int64("bytes", info.Size()).
		Msg("Built deployment archive")

	return &Result{
		ArchivePath: archivePath,
		SHA256:      sha,
		SizeBytes:   info.Size(),
	}, nil
}
