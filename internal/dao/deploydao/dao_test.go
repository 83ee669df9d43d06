package deploydao

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Unit tests for key types

func TestTableName(t *testing.T) {
	assert.Equal(t, "dev-kaya-deploys", TableName("dev"))
	assert.Equal(t, "prd-kaya-deploys", TableName("prd"))
}

func TestNewPK(t *testing.T) {
	tests := []struct {
		name     string
		function string
		env      string
		want     PK
	}{
		{
			name:     "valid function and env",
			function: "kaya-update-data",
			env:      "dev",
			want:     PK("kaya-update-data/dev"),
		},
		{
			name:     "prod environment",
			function: "kaya-update-data",
			env:      "prd",
			want:     PK("kaya-update-data/prd"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPK(tt.function, tt.env)
			if got != tt.want {
				t.Errorf("NewPK() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePK(t *testing.T) {
	tests := []struct {
		name         string
		pk           PK
		wantFunction string
		wantEnv      string
		wantErr      bool
	}{
		{
			name:         "valid PK",
			pk:           PK("kaya-update-data/dev"),
			wantFunction: "kaya-update-data",
			wantEnv:      "dev",
		},
		{
			name:    "no slash",
			pk:      PK("kaya-update-data"),
			wantErr: true,
		},
		{
			name:    "too many slashes",
			pk:      PK("kaya/update/dev"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			function, env, err := ParsePK(tt.pk)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFunction, function)
			assert.Equal(t, tt.wantEnv, env)
		})
	}
}

func TestParseID(t *testing.T) {
	pk, sk, err := ParseID(ID("kaya-update-data/dev:2HFj3kLmNoPqRsTuVwXy"))
	require.NoError(t, err)
	assert.Equal(t, PK("kaya-update-data/dev"), pk)
	assert.Equal(t, "2HFj3kLmNoPqRsTuVwXy", sk)

	_, _, err = ParseID(ID("no-colon"))
	assert.Error(t, err)
}

func TestRecordGetID(t *testing.T) {
	record := Record{PK: NewPK("kaya-update-data", "dev"), SK: "2HFj3kLmNoPqRsTuVwXy"}
	assert.Equal(t, ID("kaya-update-data/dev:2HFj3kLmNoPqRsTuVwXy"), record.GetID())

	// latest magic rows carry an explicit ID pointing at the real record
	pointer := Record{
		PK: NewPK("latest", "dev"),
		SK: "kaya-update-data/dev",
		ID: ID("kaya-update-data/dev:2HFj3kLmNoPqRsTuVwXy"),
	}
	assert.Equal(t, ID("kaya-update-data/dev:2HFj3kLmNoPqRsTuVwXy"), pointer.GetID())
}

// Integration tests

type testSetup struct {
	dao       *DAO
	client    *dynamodb.Client
	tableName string
}

// setupLocalDynamoDB creates a DynamoDB client configured for local testing.
// Set DYNAMODB_ENDPOINT to point at a local DynamoDB (e.g. http://localhost:8000).
func setupLocalDynamoDB(t *testing.T) *testSetup {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:8000"
	}

	tableName := "test-deploys-" + ksuid.New().String()

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("us-west-2"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	ctx := context.Background()
	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("pk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("sk"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("pk"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("sk"),
				KeyType:       types.KeyTypeRange,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		t.Skipf("local DynamoDB not available at %s: %v", endpoint, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 30*time.Second)
	if err != nil {
		t.Fatalf("failed to wait for table: %v", err)
	}

	return &testSetup{
		dao:       New(client, tableName),
		client:    client,
		tableName: tableName,
	}
}

func cleanupTable(t *testing.T, setup *testSetup) {
	ctx := context.Background()
	_, err := setup.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(setup.tableName),
	})
	if err != nil {
		t.Logf("failed to delete table: %v", err)
	}
}

func newCreateInput(sk string) CreateInput {
	return CreateInput{
		Function:      "kaya-update-data",
		Env:           "dev",
		SK:            sk,
		Branch:        "main",
		Version:       "42.abc123def456",
		CommitHash:    "abc123def456",
		ArchiveSHA256: "d6f644b19812e97b5d871658d6d3400ecd4787faeb9b8990c1e7608288664be7",
		CodeSize:      1048576,
		Runtime:       "python3.11",
		Handler:       "kaya/update_data_script.lambda_handler",
	}
}

func TestDAO_CreateAndFind(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() { cleanupTable(t, setup) })

	ctx := context.Background()
	sk := ksuid.New().String()

	created, err := setup.dao.Create(ctx, newCreateInput(sk))
	require.NoError(t, err)
	assert.Equal(t, DeployStatusPending, created.Status)

	found, err := setup.dao.Find(ctx, created.GetID())
	require.NoError(t, err)
	assert.Equal(t, created.Version, found.Version)
	assert.Equal(t, created.ArchiveSHA256, found.ArchiveSHA256)
	assert.Equal(t, created.Handler, found.Handler)
}

func TestDAO_UpdateStatus(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() { cleanupTable(t, setup) })

	ctx := context.Background()
	sk := ksuid.New().String()

	created, err := setup.dao.Create(ctx, newCreateInput(sk))
	require.NoError(t, err)

	status := DeployStatusFailed
	errMsg := "pip install failed"
	err = setup.dao.UpdateStatus(ctx, UpdateInput{
		PK:       created.PK,
		SK:       created.SK,
		Status:   &status,
		ErrorMsg: &errMsg,
	})
	require.NoError(t, err)

	found, err := setup.dao.Find(ctx, created.GetID())
	require.NoError(t, err)
	assert.Equal(t, DeployStatusFailed, found.Status)
	require.NotNil(t, found.ErrorMsg)
	assert.Equal(t, "pip install failed", *found.ErrorMsg)
	assert.NotNil(t, found.FinishedAt)

	// failed deploys never become the latest
	_, err = setup.dao.Latest(ctx, "kaya-update-data", "dev")
	assert.Error(t, err)
}

func TestDAO_MarkDeployedMovesLatest(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() { cleanupTable(t, setup) })

	ctx := context.Background()

	first, err := setup.dao.Create(ctx, newCreateInput(ksuid.New().String()))
	require.NoError(t, err)
	require.NoError(t, setup.dao.MarkDeployed(ctx, first.PK, first.SK))

	latest, err := setup.dao.Latest(ctx, "kaya-update-data", "dev")
	require.NoError(t, err)
	assert.Equal(t, first.SK, latest.SK)
	assert.Equal(t, DeployStatusSuccess, latest.Status)

	second, err := setup.dao.Create(ctx, newCreateInput(ksuid.New().String()))
	require.NoError(t, err)
	require.NoError(t, setup.dao.MarkDeployed(ctx, second.PK, second.SK))

	latest, err = setup.dao.Latest(ctx, "kaya-update-data", "dev")
	require.NoError(t, err)
	assert.Equal(t, second.SK, latest.SK)
}

func TestDAO_Query(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() { cleanupTable(t, setup) })

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := setup.dao.Create(ctx, newCreateInput(ksuid.New().String()))
		require.NoError(t, err)
	}

	records, err := setup.dao.Query(ctx, NewPK("kaya-update-data", "dev"))
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestDAO_Delete(t *testing.T) {
	setup := setupLocalDynamoDB(t)
	t.Cleanup(func() { cleanupTable(t, setup) })

	ctx := context.Background()

	created, err := setup.dao.Create(ctx, newCreateInput(ksuid.New().String()))
	require.NoError(t, err)

	require.NoError(t, setup.dao.Delete(ctx, created.GetID()))

	_, err = setup.dao.Find(ctx, created.GetID())
	assert.Error(t, err)
}
