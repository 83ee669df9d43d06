package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test types for dependency injection
type Registry struct {
	Name string
}

type Uploader struct {
	Registry *Registry
	Env      string
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		opts    []Option
		wantErr bool
	}{
		{
			name: "creates container with no providers",
			env:  "dev",
		},
		{
			name: "creates container with single provider",
			env:  "stg",
			opts: []Option{
				WithProviders(func() *Registry {
					return &Registry{Name: "test"}
				}),
			},
		},
		{
			name: "creates container with multiple providers",
			env:  "prd",
			opts: []Option{
				WithProviders(
					func() *Registry {
						return &Registry{Name: "prd"}
					},
					func(r *Registry, env string) *Uploader {
						return &Uploader{Registry: r, Env: env}
					},
				),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, err := New(tt.env, tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, container)
		})
	}
}

func TestEnvIsInjectable(t *testing.T) {
	container, err := New("stg")
	require.NoError(t, err)

	var got string
	err = container.Invoke(func(env string) { got = env })
	require.NoError(t, err)
	assert.Equal(t, "stg", got)
}

func TestMustGet(t *testing.T) {
	container, err := New("dev", WithProviders(func() *Registry {
		return &Registry{Name: "dev-registry"}
	}))
	require.NoError(t, err)

	registry := MustGet[*Registry](container)
	assert.Equal(t, "dev-registry", registry.Name)
}

func TestMustGetPanicsOnMissingDependency(t *testing.T) {
	container, err := New("dev")
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustGet[*Uploader](container)
	})
}

func TestProvidersResolveTransitively(t *testing.T) {
	container, err := New("prd", WithProviders(
		func() *Registry { return &Registry{Name: "prd"} },
		func(r *Registry, env string) *Uploader {
			return &Uploader{Registry: r, Env: env}
		},
	))
	require.NoError(t, err)

	uploader := MustGet[*Uploader](container)
	assert.Equal(t, "prd", uploader.Env)
	assert.Equal(t, "prd", uploader.Registry.Name)
}
