package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewbot/reviewbot/storage"
)

type fakeAPI struct {
	items     map[string]map[string]types.AttributeValue
	updateErr error

	gets    []*ddb.GetItemInput
	updates []*ddb.UpdateItemInput
}

func itemKey(table string, key map[string]types.AttributeValue) string {
	k := table
	for _, name := range []string{"user_id", "repository", "source_id"} {
		if v, ok := key[name].(*types.AttributeValueMemberS); ok {
			k += "|" + v.Value
		}
	}
	return k
}

func (f *fakeAPI) GetItem(ctx context.Context, in *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	f.gets = append(f.gets, in)
	return &ddb.GetItemOutput{Item: f.items[itemKey(aws.ToString(in.TableName), in.Key)]}, nil
}

func (f *fakeAPI) UpdateItem(ctx context.Context, in *ddb.UpdateItemInput, _ ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &ddb.UpdateItemOutput{}, f.updateErr
}

func marshal(t *testing.T, v any) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

func TestGetRepository(t *testing.T) {
	api := &fakeAPI{items: map[string]map[string]types.AttributeValue{
		"repos|acme/api|github:main": marshal(t, storage.RepositorySettings{
			Repository: "acme/api",
			SourceID:   "github:main",
			Integrations: map[string]*storage.Integration{
				storage.IntegrationPRReview: {UserID: "u1", Labels: []string{"ai"}, Instructions: "Be brief", Comment: "Bot"},
			},
		}),
	}}
	d := New(api, "settings", "repos")

	got, err := d.GetRepository(context.Background(), "acme/api", "github:main")
	require.NoError(t, err)
	require.NotNil(t, got)

	pr := got.Integration(storage.IntegrationPRReview)
	require.NotNil(t, pr)
	assert.Equal(t, "u1", pr.UserID)
	assert.Equal(t, []string{"ai"}, pr.Labels)
	assert.Equal(t, "Be brief", pr.Instructions)
	assert.Equal(t, "Bot", pr.Comment)

	missing, err := d.GetRepository(context.Background(), "acme/other", "github:main")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetUserSettings(t *testing.T) {
	api := &fakeAPI{items: map[string]map[string]types.AttributeValue{
		"settings|u1": marshal(t, storage.UserSettings{
			UserID:       "u1",
			APIKey:       "key-1",
			Repositories: []storage.AuthorizedRepository{{Repository: "acme/api"}},
		}),
	}}
	d := New(api, "settings", "repos")

	got, err := d.GetUserSettings(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", got.APIKey)
	assert.True(t, got.Authorizes("acme/api"))
	assert.Equal(t, "settings", aws.ToString(api.gets[0].TableName))

	missing, err := d.GetUserSettings(context.Background(), "u2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetUserSettingsStoredItem(t *testing.T) {
	api := &fakeAPI{items: map[string]map[string]types.AttributeValue{
		"settings|u1": {
			"user_id":        &types.AttributeValueMemberS{Value: "u1"},
			"greptileApiKey": &types.AttributeValueMemberS{Value: "k-123"},
			"repositories": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
					"repository": &types.AttributeValueMemberS{Value: "acme/api"},
				}},
			}},
		},
	}}
	d := New(api, "settings", "repos")

	got, err := d.GetUserSettings(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "k-123", got.APIKey)
	assert.True(t, got.Authorizes("acme/api"))
}

func TestDeleteIntegration(t *testing.T) {
	api := &fakeAPI{}
	d := New(api, "settings", "repos")

	require.NoError(t, d.DeleteIntegration(context.Background(), "acme/api", "github:main", storage.IntegrationPRReview))
	require.Len(t, api.updates, 1)

	in := api.updates[0]
	assert.Equal(t, "repos", aws.ToString(in.TableName))
	assert.Equal(t, "REMOVE #integrations.#integration", aws.ToString(in.UpdateExpression))
	assert.Equal(t, storage.IntegrationPRReview, in.ExpressionAttributeNames["#integration"])
}

func TestDeleteIntegrationAlreadyRemoved(t *testing.T) {
	api := &fakeAPI{updateErr: &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}}
	d := New(api, "settings", "repos")

	assert.NoError(t, d.DeleteIntegration(context.Background(), "acme/api", "github:main", storage.IntegrationPRReview))
}

func TestDeleteIntegrationError(t *testing.T) {
	api := &fakeAPI{updateErr: errors.New("throttled")}
	d := New(api, "settings", "repos")

	assert.Error(t, d.DeleteIntegration(context.Background(), "acme/api", "github:main", storage.IntegrationPRReview))
}
