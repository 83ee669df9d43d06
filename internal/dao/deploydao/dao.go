// Package deploydao stores deployment history in DynamoDB. Each publish
// attempt gets one record; a "latest" magic record per environment points at
// the newest successful deploy for each function.
package deploydao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
)

const latest = "latest"

// TableName returns the history table for the given environment
func TableName(env string) string {
	return fmt.Sprintf("%s-kaya-deploys", env)
}

// PK represents a DynamoDB partition key in format {function}/{env}
// Example: kaya-update-data/prd
type PK string

// NewPK creates a new partition key from function and env
func NewPK(function, env string) PK {
	return PK(fmt.Sprintf("%s/%s", function, env))
}

// ParsePK parses a partition key into its function and env components
func ParsePK(pk PK) (function, env string, err error) {
	s := string(pk)
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid PK format: %s, expected {function}/{env}", s)
	}
	return parts[0], parts[1], nil
}

// String returns the string representation of the partition key
func (pk PK) String() string {
	return string(pk)
}

// ID represents a deploy ID in format {function}/{env}:{ksuid}
type ID string

func (id ID) String() string {
	return string(id)
}

// ParseID parses a deploy ID into its partition key (pk) and sort key (sk) components
func ParseID(id ID) (pk PK, sk string, err error) {
	s := string(id)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid deploy ID format: %s, expected {function}/{env}:{ksuid}", s)
	}
	return PK(parts[0]), parts[1], nil
}

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// DeployStatus represents the current status of a deployment
type DeployStatus string

const (
	DeployStatusPending    DeployStatus = "PENDING"
	DeployStatusInProgress DeployStatus = "IN_PROGRESS"
	DeployStatusSuccess    DeployStatus = "SUCCESS"
	DeployStatusFailed     DeployStatus = "FAILED"
)

// Record represents a deployment record in DynamoDB
type Record struct {
	PK            PK           `ddb:"hash" dynamodbav:"pk"`  // {function}/{env} - DynamoDB partition key
	SK            string       `ddb:"range" dynamodbav:"sk"` // KSUID - DynamoDB sort key
	ID            ID           `dynamodbav:"id,omitempty"`   // only used for latest entries
	Function      string       `dynamodbav:"function,omitempty"`
	Env           string       `dynamodbav:"env,omitempty"`
	Branch        string       `dynamodbav:"branch,omitempty"`
	Version       string       `dynamodbav:"version,omitempty"`
	CommitHash    string       `dynamodbav:"commit_hash,omitempty"`
	ArchiveSHA256 string       `dynamodbav:"archive_sha256,omitempty"`
	CodeSize      int64        `dynamodbav:"code_size,omitempty"`
	Runtime       string       `dynamodbav:"runtime,omitempty"`
	Handler       string       `dynamodbav:"handler,omitempty"`
	Status        DeployStatus `dynamodbav:"status,omitempty"`
	ErrorMsg      *string      `dynamodbav:"error_msg,omitempty"`
	CreatedAt     int64        `dynamodbav:"created_at,omitempty"`  // Unix epoch timestamp of creation
	FinishedAt    *int64       `dynamodbav:"finished_at,omitempty"` // Unix epoch timestamp of completion
	UpdatedAt     int64        `dynamodbav:"updated_at,omitempty"`  // Unix epoch timestamp of last update
}

// GetID returns the full deploy ID in format: {function}/{env}:{ksuid}
func (r *Record) GetID() ID {
	if r.ID != "" {
		return r.ID
	}
	return NewID(r.PK, r.SK)
}

// CreateInput contains the fields needed to create a new deploy record
type CreateInput struct {
	Function      string
	Env           string
	SK            string // KSUID sort key
	Branch        string
	Version       string
	CommitHash    string
	ArchiveSHA256 string
	CodeSize      int64
	Runtime       string
	Handler       string
}

// UpdateInput contains the fields that can be updated on a deploy record
type UpdateInput struct {
	PK       PK
	SK       string
	Status   *DeployStatus
	ErrorMsg *string
}

// DAO provides data access operations for deploy records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create creates a new deploy record with initial status PENDING
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	pk := NewPK(input.Function, input.Env)
	now := time.Now().Unix()

	record := Record{
		PK:            pk,
		SK:            input.SK,
		Function:      input.Function,
		Env:           input.Env,
		Branch:        input.Branch,
		Version:       input.Version,
		CommitHash:    input.CommitHash,
		ArchiveSHA256: input.ArchiveSHA256,
		CodeSize:      input.CodeSize,
		Runtime:       input.Runtime,
		Handler:       input.Handler,
		Status:        DeployStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create deploy record: %w", err)
	}

	return record, nil
}

// Find retrieves a deploy record by ID
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record

	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("deploy record not found: %s", id)
		}
		return Record{}, fmt.Errorf("failed to find deploy record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("deploy record not found: %s", id)
	}

	return record, nil
}

// Delete removes a deploy record by ID
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, sk, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(pk).
		Range(sk).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete deploy record: %w", err)
	}

	return nil
}

// UpdateStatus updates the status of a deploy record. The latest magic
// record is untouched; only MarkDeployed moves it.
func (d *DAO) UpdateStatus(ctx context.Context, input UpdateInput) error {
	if input.Status == nil {
		return fmt.Errorf("status is required")
	}

	now := time.Now().Unix()

	update := d.table.Update(input.PK.String()).
		Range(input.SK).
		Set("#Status = ?", string(*input.Status)).
		Set("#UpdatedAt = ?", now)

	// Terminal states record when the pipeline finished
	if *input.Status == DeployStatusSuccess || *input.Status == DeployStatusFailed {
		update = update.Set("#FinishedAt = ?", now)
	}

	if input.ErrorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *input.ErrorMsg)
	}

	if err := update.RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to update deploy status: %w", err)
	}

	return nil
}

// MarkDeployed atomically sets the record to SUCCESS and moves the "latest"
// magic record. The latest record has pk=latest/{env} and sk={function}/{env}
// so the newest successful deploy per function is one query away.
func (d *DAO) MarkDeployed(ctx context.Context, pk PK, sk string) error {
	now := time.Now().Unix()

	update := d.table.Update(pk.String()).
		Range(sk).
		Set("#Status = ?", string(DeployStatusSuccess)).
		Set("#FinishedAt = ?", now).
		Set("#UpdatedAt = ?", now)

	function, env, err := ParsePK(pk)
	if err != nil {
		return fmt.Errorf("failed to parse PK: %w", err)
	}

	latestRecord := &Record{
		PK:        NewPK(latest, env),
		SK:        pk.String(), // SK in latest record = PK from original ({function}/{env} identifier)
		ID:        NewID(pk, sk),
		Function:  function,
		Env:       env,
		Status:    DeployStatusSuccess,
		UpdatedAt: now,
	}

	put := d.table.Put(latestRecord)

	if _, err := d.db.TransactWriteItemsWithContext(ctx, update, put); err != nil {
		return fmt.Errorf("failed to mark deploy as deployed: %w", err)
	}

	return nil
}

// Query returns all deploys for a given function/env partition key
func (d *DAO) Query(ctx context.Context, pk PK) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query deploys: %w", err)
	}

	return records, nil
}

// Latest returns the newest successful deploy for a function in an
// environment, resolved through the latest magic record.
func (d *DAO) Latest(ctx context.Context, function, env string) (Record, error) {
	var pointer Record

	err := d.table.Get(NewPK(latest, env).String()).
		Range(NewPK(function, env).String()).
		ConsistentRead(true).
		ScanWithContext(ctx, &pointer)
	if err != nil {
		return Record{}, fmt.Errorf("failed to find latest deploy for %s/%s: %w", function, env, err)
	}

	if pointer.ID == "" {
		return Record{}, fmt.Errorf("no successful deploy recorded for %s/%s", function, env)
	}

	return d.Find(ctx, pointer.ID)
}
