// Package manifest loads the deploy manifest (kaya-deploy.yml) that describes
// what to package and where to publish it. Values omitted from the file fall
// back to environment variables so CI can inject region and bucket names from
// its secret store without touching the repository.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the manifest file looked up by LoadFromDir.
const DefaultFileName = "kaya-deploy.yml"

const (
	defaultRuntime      = "python3.11"
	defaultHandler      = "kaya/update_data_script.lambda_handler"
	defaultBranch       = "main"
	defaultRequirements = "requirements.txt"
	defaultMemoryMB     = 512
	defaultTimeoutSec   = 300
)

// Manifest describes a single Lambda deployment target.
type Manifest struct {
	FunctionName string `yaml:"function_name"`
	Handler      string `yaml:"handler"` // module path + function, e.g. kaya/update_data_script.lambda_handler
	Runtime      string `yaml:"runtime"` // e.g. python3.11
	Region       string `yaml:"region"`

	SourceDir    string   `yaml:"source_dir"`   // application package root, e.g. kaya
	Exclude      []string `yaml:"exclude"`      // subtrees dropped from the archive
	Requirements string   `yaml:"requirements"` // pip requirements file

	Branch string `yaml:"branch"` // designated deploy branch

	RoleArn    string            `yaml:"role_arn"`
	MemoryMB   int32             `yaml:"memory_mb"`
	TimeoutSec int32             `yaml:"timeout_sec"`
	Env        map[string]string `yaml:"env"`         // function environment variables
	SecretName string            `yaml:"secret_name"` // Secrets Manager secret the function reads at runtime

	S3Bucket string `yaml:"s3_bucket"` // artifact bucket; optional, Parameter Store fallback
}

// Load reads and validates a manifest from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	return &m, nil
}

// LoadFromDir loads the default manifest file from dir.
func LoadFromDir(dir string) (*Manifest, error) {
	return Load(filepath.Join(dir, DefaultFileName))
}

func (m *Manifest) applyDefaults() {
	if m.Handler == "" {
		m.Handler = defaultHandler
	}
	if m.Runtime == "" {
		m.Runtime = defaultRuntime
	}
	if m.Branch == "" {
		m.Branch = defaultBranch
	}
	if m.Requirements == "" {
		m.Requirements = defaultRequirements
	}
	if m.MemoryMB == 0 {
		m.MemoryMB = defaultMemoryMB
	}
	if m.TimeoutSec == 0 {
		m.TimeoutSec = defaultTimeoutSec
	}
	if m.Region == "" {
		m.Region = os.Getenv("AWS_REGION")
	}
	if m.S3Bucket == "" {
		m.S3Bucket = os.Getenv("ARTIFACT_BUCKET")
	}
	if m.SecretName == "" {
		m.SecretName = os.Getenv("KAYA_API_TOKENS_SECRET_NAME")
	}
}

// Validate checks the fields that have no usable default.
func (m *Manifest) Validate() error {
	if m.FunctionName == "" {
		return fmt.Errorf("function_name is required")
	}
	if m.SourceDir == "" {
		return fmt.Errorf("source_dir is required")
	}
	if !strings.Contains(m.Handler, ".") {
		return fmt.Errorf("handler %q must be in module_path.function form", m.Handler)
	}
	if !strings.HasPrefix(m.Runtime, "python") {
		return fmt.Errorf("runtime %q is not a python runtime", m.Runtime)
	}
	for _, e := range m.Exclude {
		if filepath.IsAbs(e) {
			return fmt.Errorf("exclude %q must be relative to source_dir", e)
		}
	}
	return nil
}
