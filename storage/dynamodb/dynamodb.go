// Package dynamodb provides a DynamoDB implementation of the storage interface.
// It reads the tables the hosted deployment shares with the onboarding service.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/reviewbot/reviewbot/storage"
)

// API is the subset of the DynamoDB client used here. *dynamodb.Client satisfies it.
type API interface {
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *ddb.UpdateItemInput, optFns ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
}

// DynamoDB provides storage operations using DynamoDB.
type DynamoDB struct {
	api API
	// settingsTable holds user settings keyed by user_id.
	settingsTable string
	// repositoriesTable holds repository records keyed by repository and source_id.
	repositoriesTable string
}

// New creates a new DynamoDB storage instance.
func New(api API, settingsTable, repositoriesTable string) *DynamoDB {
	return &DynamoDB{
		api:               api,
		settingsTable:     settingsTable,
		repositoriesTable: repositoriesTable,
	}
}

// NewFromRegion creates a DynamoDB storage instance using the default AWS
// credential chain in the given region.
func NewFromRegion(ctx context.Context, region, settingsTable, repositoriesTable string) (*DynamoDB, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return New(ddb.NewFromConfig(cfg), settingsTable, repositoriesTable), nil
}

func repositoryKey(repository, sourceID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"repository": &types.AttributeValueMemberS{Value: repository},
		"source_id":  &types.AttributeValueMemberS{Value: sourceID},
	}
}

// GetRepository retrieves a repository record.
func (d *DynamoDB) GetRepository(ctx context.Context, repository, sourceID string) (*storage.RepositorySettings, error) {
	out, err := d.api.GetItem(ctx, &ddb.GetItemInput{
		TableName: aws.String(d.repositoriesTable),
		Key:       repositoryKey(repository, sourceID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var settings storage.RepositorySettings
	if err := attributevalue.UnmarshalMap(out.Item, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal repository: %w", err)
	}
	return &settings, nil
}

// GetUserSettings retrieves the settings of a user.
func (d *DynamoDB) GetUserSettings(ctx context.Context, userID string) (*storage.UserSettings, error) {
	out, err := d.api.GetItem(ctx, &ddb.GetItemInput{
		TableName: aws.String(d.settingsTable),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var settings storage.UserSettings
	if err := attributevalue.UnmarshalMap(out.Item, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user settings: %w", err)
	}
	return &settings, nil
}

// DeleteIntegration removes one integration from a repository record.
// Removing an integration that is already gone is not an error.
func (d *DynamoDB) DeleteIntegration(ctx context.Context, repository, sourceID, integration string) error {
	_, err := d.api.UpdateItem(ctx, &ddb.UpdateItemInput{
		TableName:           aws.String(d.repositoriesTable),
		Key:                 repositoryKey(repository, sourceID),
		ConditionExpression: aws.String("attribute_exists(repository) AND attribute_exists(source_id) AND attribute_exists(#integrations.#integration)"),
		UpdateExpression:    aws.String("REMOVE #integrations.#integration"),
		ExpressionAttributeNames: map[string]string{
			"#integrations": "integrations",
			"#integration":  integration,
		},
	})
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	return nil
}

// Verify DynamoDB implements Storage at compile time.
var _ storage.Storage = (*DynamoDB)(nil)
