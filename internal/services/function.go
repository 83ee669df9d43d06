package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/pwilliams272/kaya-deployer/internal/errors"
	"github.com/rs/zerolog"
)

// DirectUploadLimit is the largest zip the Lambda API accepts inline.
// Anything bigger goes through S3.
const DirectUploadLimit = 50 * 1024 * 1024

// FunctionService wraps the Lambda control plane operations the deploy
// pipeline needs: publish code, align configuration, smoke invoke.
type FunctionService struct {
	client *lambda.Client
}

// NewFunctionService creates a new FunctionService
func NewFunctionService(client *lambda.Client) *FunctionService {
	return &FunctionService{client: client}
}

// PublishInput points at new function code, either inline or in S3.
type PublishInput struct {
	FunctionName string
	ZipFile      []byte // inline code; mutually exclusive with S3 fields
	S3Bucket     string
	S3Key        string
}

// CreateInput carries everything needed to create a function that does not
// exist yet.
type CreateInput struct {
	FunctionName string
	Handler      string
	Runtime      string
	RoleArn      string
	MemoryMB     int32
	TimeoutSec   int32
	Env          map[string]string
	ZipFile      []byte
	S3Bucket     string
	S3Key        string
}

// ConfigureInput is the desired entry-point configuration.
type ConfigureInput struct {
	FunctionName string
	Handler      string
	Runtime      string
	MemoryMB     int32
	TimeoutSec   int32
	Env          map[string]string
}

// FunctionState is a read-model of the live function used by status output.
type FunctionState struct {
	FunctionName     string
	Handler          string
	Runtime          string
	MemoryMB         int32
	TimeoutSec       int32
	CodeSha256       string
	CodeSize         int64
	LastModified     string
	LastUpdateStatus string
	Version          string
}

// Exists reports whether the function is present.
func (s *FunctionService) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Describe(ctx, name)
	if stderrors.Is(err, errors.ErrFunctionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Describe returns the live function configuration, mapping the API's
// not-found error to ErrFunctionNotFound.
func (s *FunctionService) Describe(ctx context.Context, name string) (*FunctionState, error) {
	out, err := s.client.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", errors.ErrFunctionNotFound, name)
		}
		return nil, fmt.Errorf("failed to describe function %s: %w", name, err)
	}

	cfg := out.Configuration
	state := &FunctionState{
		FunctionName:     aws.ToString(cfg.FunctionName),
		Handler:          aws.ToString(cfg.Handler),
		Runtime:          string(cfg.Runtime),
		MemoryMB:         aws.ToInt32(cfg.MemorySize),
		TimeoutSec:       aws.ToInt32(cfg.Timeout),
		CodeSha256:       aws.ToString(cfg.CodeSha256),
		CodeSize:         cfg.CodeSize,
		LastModified:     aws.ToString(cfg.LastModified),
		LastUpdateStatus: string(cfg.LastUpdateStatus),
		Version:          aws.ToString(cfg.Version),
	}
	return state, nil
}

// PublishCode uploads new code to an existing function and waits for the
// update to settle. Conflicts from a still-settling previous update are
// retried; throttling backs off exponentially.
func (s *FunctionService) PublishCode(ctx context.Context, input PublishInput) error {
	logger := zerolog.Ctx(ctx)

	req := &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(input.FunctionName),
		Publish:      true,
	}
	if len(input.ZipFile) > 0 {
		req.ZipFile = input.ZipFile
	} else {
		req.S3Bucket = aws.String(input.S3Bucket)
		req.S3Key = aws.String(input.S3Key)
	}

	err := withRetry(ctx, func() error {
		_, err := s.client.UpdateFunctionCode(ctx, req)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update function code for %s: %w", input.FunctionName, err)
	}

	logger.Info().Str("function", input.FunctionName).Msg("Function code uploaded, waiting for update to settle")
	return s.waitUpdated(ctx, input.FunctionName)
}

// Create creates the function from scratch.
func (s *FunctionService) Create(ctx context.Context, input CreateInput) error {
	logger := zerolog.Ctx(ctx)

	code := &types.FunctionCode{}
	if len(input.ZipFile) > 0 {
		code.ZipFile = input.ZipFile
	} else {
		code.S3Bucket = aws.String(input.S3Bucket)
		code.S3Key = aws.String(input.S3Key)
	}

	req := &lambda.CreateFunctionInput{
		FunctionName: aws.String(input.FunctionName),
		Handler:      aws.String(input.Handler),
		Runtime:      types.Runtime(input.Runtime),
		Role:         aws.String(input.RoleArn),
		MemorySize:   aws.Int32(input.MemoryMB),
		Timeout:      aws.Int32(input.TimeoutSec),
		Code:         code,
		Publish:      true,
	}
	if len(input.Env) > 0 {
		req.Environment = &types.Environment{Variables: input.Env}
	}

	err := withRetry(ctx, func() error {
		_, err := s.client.CreateFunction(ctx, req)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create function %s: %w", input.FunctionName, err)
	}

	logger.Info().
		Str("function", input.FunctionName).
		Str("runtime", input.Runtime).
		Str("handler", input.Handler).
		Msg("Function created")
	return s.waitUpdated(ctx, input.FunctionName)
}

// ConfigureEntryPoint aligns handler, runtime, memory, timeout, and
// environment with the manifest. Skipped entirely when nothing drifts.
func (s *FunctionService) ConfigureEntryPoint(ctx context.Context, input ConfigureInput) error {
	logger := zerolog.Ctx(ctx)

	current, err := s.Describe(ctx, input.FunctionName)
	if err != nil {
		return err
	}

	if current.Handler == input.Handler &&
		current.Runtime == input.Runtime &&
		current.MemoryMB == input.MemoryMB &&
		current.TimeoutSec == input.TimeoutSec &&
		len(input.Env) == 0 {
		logger.Info().Str("function", input.FunctionName).Msg("Function configuration already matches manifest")
		return nil
	}

	req := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(input.FunctionName),
		Handler:      aws.String(input.Handler),
		Runtime:      types.Runtime(input.Runtime),
		MemorySize:   aws.Int32(input.MemoryMB),
		Timeout:      aws.Int32(input.TimeoutSec),
	}
	if len(input.Env) > 0 {
		req.Environment = &types.Environment{Variables: input.Env}
	}

	err = withRetry(ctx, func() error {
		_, err := s.client.UpdateFunctionConfiguration(ctx, req)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update function configuration for %s: %w", input.FunctionName, err)
	}

	logger.Info().
		Str("function", input.FunctionName).
		Str("handler", input.Handler).
		Str("runtime", input.Runtime).
		Msg("Function entry point configured")
	return s.waitUpdated(ctx, input.FunctionName)
}

// Invoke runs the function synchronously and returns its payload. A function
// error (unhandled exception inside the handler) is surfaced as an error
// with the payload attached.
func (s *FunctionService) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	out, err := s.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(name),
		Payload:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", name, err)
	}

	if out.FunctionError != nil {
		return out.Payload, fmt.Errorf("function %s returned error %s: %s", name, aws.ToString(out.FunctionError), out.Payload)
	}
	return out.Payload, nil
}

// waitUpdated blocks until LastUpdateStatus leaves InProgress, surfacing the
// terminal failure reason on Failed.
func (s *FunctionService) waitUpdated(ctx context.Context, name string) error {
	waiter := lambda.NewFunctionUpdatedV2Waiter(s.client)
	err := waiter.Wait(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	}, 5*time.Minute)
	if err != nil {
		// Pull the terminal reason so the pipeline failure says why.
		cfg, descErr := s.client.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
			FunctionName: aws.String(name),
		})
		if descErr == nil && cfg.LastUpdateStatusReason != nil {
			return fmt.Errorf("function update failed for %s: %s", name, aws.ToString(cfg.LastUpdateStatusReason))
		}
		return fmt.Errorf("function update did not settle for %s: %w", name, err)
	}
	return nil
}

// withRetry retries conflicts and throttles with exponential backoff.
// Everything else fails immediately; the pipeline has no compensation logic.
func withRetry(ctx context.Context, fn func() error) error {
	maxRetries := 5
	baseDelay := 500 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			if delay > 10*time.Second {
				delay = 10 * time.Second
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	var conflict *types.ResourceConflictException
	if stderrors.As(err, &conflict) {
		return true
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "Throttling", "ThrottlingException":
			return true
		}
	}
	return false
}
