package packager

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pwilliams272/kaya-deployer/internal/errors"
)

// archiveEpoch is the fixed timestamp stamped on every archive entry so that
// rebuilding an unchanged tree yields a byte-identical archive.
var archiveEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// BuildArchive compresses the staging root into a zip at out. Paths use
// forward slashes relative to stageDir, so the application package and its
// vendored dependencies both sit at the archive root. An empty staging root
// is an error: the upload step must never receive an empty archive.
func BuildArchive(stageDir, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", out, err)
	}
	defer f.Close()

	w := zip.NewWriter(f)

	entries := 0
	err = filepath.WalkDir(stageDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(stageDir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate
		header.Modified = archiveEpoch

		entry, err := w.CreateHeader(header)
		if err != nil {
			return err
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		if _, err := io.Copy(entry, src); err != nil {
			return err
		}
		entries++
		return nil
	})
	if err != nil {
		w.Close()
		return fmt.Errorf("failed to build archive from %s: %w", stageDir, err)
	}

	if entries == 0 {
		w.Close()
		return fmt.Errorf("%w: no files staged under %s", errors.ErrEmptyArchive, stageDir)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return f.Close()
}

// Fingerprint returns the hex sha256 of the archive contents. The fingerprint
// identifies the code version in deploy history and S3 metadata.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash archive %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
