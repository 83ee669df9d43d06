package packager

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Vendor resolves the dependencies listed in the requirements file into the
// staging root with pip, so they sit beside the application package at the
// archive root. A missing or empty requirements file is a no-op.
func Vendor(ctx context.Context, requirements, target string) error {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(requirements)
	if os.IsNotExist(err) {
		logger.Warn().Str("requirements", requirements).Msg("Requirements file not found, skipping dependency vendoring")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read requirements %s: %w", requirements, err)
	}

	if !hasRequirements(data) {
		logger.Warn().Str("requirements", requirements).Msg("Requirements file is empty, skipping dependency vendoring")
		return nil
	}

	pip := os.Getenv("PIP_COMMAND")
	if pip == "" {
		pip = "pip"
	}

	args := []string{"install", "-r", requirements, "-t", target, "--quiet"}
	cmd := exec.CommandContext(ctx, pip, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Info().Str("requirements", requirements).Str("target", target).Msg("Vendoring dependencies")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pip install failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return nil
}

// hasRequirements reports whether the file declares at least one dependency
// once comments and blank lines are stripped.
func hasRequirements(data []byte) bool {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}
