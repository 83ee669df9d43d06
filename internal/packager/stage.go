// Package packager assembles the deployment archive: it stages the
// application tree, vendors pip dependencies next to it, and compresses the
// result into the zip that gets published to Lambda.
package packager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// alwaysExcluded are dropped from every staging pass regardless of the
// manifest's exclude list.
var alwaysExcluded = []string{".git", "__pycache__", ".DS_Store"}

// Stage copies the application tree rooted at src into dst, skipping the
// given subtrees (relative to src) plus VCS and bytecode noise. The staged
// tree contains exactly the source minus the excludes.
func Stage(ctx context.Context, src, dst string, excludes []string) error {
	logger := zerolog.Ctx(ctx)

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source dir %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}

	// The package directory keeps its name at the archive root, so the
	// runtime can import it by module path (e.g. kaya/update_data_script).
	root := filepath.Join(dst, filepath.Base(src))

	skip := make(map[string]bool, len(excludes)+len(alwaysExcluded))
	for _, e := range append(append([]string{}, alwaysExcluded...), excludes...) {
		skip[filepath.ToSlash(e)] = true
	}

	copied := 0
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(root, 0o755)
		}

		relSlash := filepath.ToSlash(rel)
		if excluded(relSlash, d.Name(), skip) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(root, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		if err := copyFile(path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", src, err)
	}

	logger.Info().
		Str("source", src).
		Str("staged", root).
		Int("files", copied).
		Msg("Staged application tree")
	return nil
}

// excluded reports whether a staged path should be skipped. Directory names
// in the skip set match at any depth; explicit excludes also match by the
// full relative path.
func excluded(relSlash, base string, skip map[string]bool) bool {
	if skip[relSlash] || skip[base] {
		return true
	}
	if strings.HasSuffix(base, ".pyc") {
		return true
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
