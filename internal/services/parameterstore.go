package services

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Config holds deploy-time shared configuration from Parameter Store
type Config struct {
	ArtifactBucket string // S3 bucket archives are uploaded to
	HistoryTable   string // DynamoDB deploy-history table
	DeployBranch   string // designated branch the release trigger acts on
	DefaultRoleArn string // fallback execution role
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads all deploy configuration
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client *ssm.Client
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client *ssm.Client, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads all deploy configuration from Parameter Store under
// /{env}/kaya-deployer/
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := fmt.Sprintf("/%s/kaya-deployer", s.env)

	result, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
		Path:           &path,
		Recursive:      boolPtr(true),
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
	}

	params := make(map[string]string)
	for _, param := range result.Parameters {
		if param.Name != nil && param.Value != nil {
			params[*param.Name] = *param.Value
		}
	}

	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	config := &Config{
		ArtifactBucket: params[fmt.Sprintf("/%s/kaya-deployer/artifact-bucket", s.env)],
		HistoryTable:   params[fmt.Sprintf("/%s/kaya-deployer/history-table", s.env)],
		DeployBranch:   params[fmt.Sprintf("/%s/kaya-deployer/deploy-branch", s.env)],
		DefaultRoleArn: params[fmt.Sprintf("/%s/kaya-deployer/default-role-arn", s.env)],
	}

	applyConfigDefaults(config, s.env)
	return config, nil
}

// EnvParameterStore implements ParameterStore using environment variables.
// Used for local development without AWS connectivity.
type EnvParameterStore struct {
	env string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{env: env}
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// GetConfig loads all deploy configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	config := &Config{
		ArtifactBucket: os.Getenv("ARTIFACT_BUCKET"),
		HistoryTable:   os.Getenv("HISTORY_TABLE"),
		DeployBranch:   os.Getenv("DEPLOY_BRANCH"),
		DefaultRoleArn: os.Getenv("DEFAULT_ROLE_ARN"),
	}

	applyConfigDefaults(config, e.env)
	return config, nil
}

func applyConfigDefaults(config *Config, env string) {
	if config.DeployBranch == "" {
		config.DeployBranch = "main"
	}
	if config.HistoryTable == "" {
		config.HistoryTable = fmt.Sprintf("%s-kaya-deploys", env)
	}
}

func boolPtr(b bool) *bool {
	return &b
}
