package errors

import "errors"

var (
	ErrFunctionNotFound    = errors.New("lambda function not found")
	ErrInvalidArtifactKey  = errors.New("invalid artifact key format")
	ErrInvalidVersion      = errors.New("invalid version format")
	ErrBranchMismatch      = errors.New("current branch does not match deploy branch")
	ErrEmptyArchive        = errors.New("deployment archive is empty")
	ErrSecretNotFound      = errors.New("runtime secret not found")
	ErrRoleNotFound        = errors.New("execution role not found")
	ErrArtifactBucketUnset = errors.New("artifact bucket is not configured")
)
