package commands

import (
	"testing"

	"github.com/pwilliams272/kaya-deployer/internal/gitinfo"
	"github.com/stretchr/testify/assert"
)

func TestDefaultVersion(t *testing.T) {
	sha := "d6f644b19812e97b5d871658d6d3400ecd4787faeb9b8990c1e7608288664be7"

	t.Run("ci build", func(t *testing.T) {
		t.Setenv("BUILD_NUMBER", "42")
		info := gitinfo.Info{CommitHash: "0123456789abcdef0123456789abcdef01234567"}
		assert.Equal(t, "42.0123456789ab", defaultVersion(info, sha))
	})

	t.Run("local build", func(t *testing.T) {
		t.Setenv("BUILD_NUMBER", "")
		assert.Equal(t, "local.d6f644b19812", defaultVersion(gitinfo.Info{}, sha))
	})

	t.Run("ci without git info", func(t *testing.T) {
		t.Setenv("BUILD_NUMBER", "42")
		assert.Equal(t, "local.d6f644b19812", defaultVersion(gitinfo.Info{}, sha))
	})
}
