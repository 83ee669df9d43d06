package services

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pwilliams272/kaya-deployer/internal/errors"
)

// RoleService resolves the function's execution role and the account
// identity used for default resource naming.
type RoleService struct {
	iamClient *iam.Client
	stsClient *sts.Client
}

// NewRoleService creates a new RoleService
func NewRoleService(iamClient *iam.Client, stsClient *sts.Client) *RoleService {
	return &RoleService{
		iamClient: iamClient,
		stsClient: stsClient,
	}
}

// GetAWSAccountID retrieves the AWS account ID
func (s *RoleService) GetAWSAccountID(ctx context.Context) (string, error) {
	result, err := s.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}

	if result.Account == nil {
		return "", fmt.Errorf("account ID is nil")
	}

	return *result.Account, nil
}

// ResolveExecutionRole returns the ARN the function runs as. An explicit
// ARN from the manifest wins; otherwise the conventional {function}-role
// name is looked up in IAM.
func (s *RoleService) ResolveExecutionRole(ctx context.Context, functionName, explicitArn string) (string, error) {
	if explicitArn != "" {
		return explicitArn, nil
	}

	roleName := fmt.Sprintf("%s-role", functionName)
	out, err := s.iamClient.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		var notFound *iamtypes.NoSuchEntityException
		if stderrors.As(err, &notFound) {
			return "", fmt.Errorf("%w: no role_arn in manifest and role %s does not exist", errors.ErrRoleNotFound, roleName)
		}
		return "", fmt.Errorf("failed to look up role %s: %w", roleName, err)
	}

	return aws.ToString(out.Role.Arn), nil
}
