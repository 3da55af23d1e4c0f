package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type mockDynamoDBClient struct {
	deleteItemFunc func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	getItemFunc    func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	putItemFunc    func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	queryFunc      func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

func (m *mockDynamoDBClient) DeleteItem(
	ctx context.Context,
	params *dynamodb.DeleteItemInput,
	optFns ...func(*dynamodb.Options),
) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFunc != nil {
		return m.deleteItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDynamoDBClient) GetItem(
	ctx context.Context,
	params *dynamodb.GetItemInput,
	optFns ...func(*dynamodb.Options),
) (*dynamodb.GetItemOutput, error) {
	if m.getItemFunc != nil {
		return m.getItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamoDBClient) PutItem(
	ctx context.Context,
	params *dynamodb.PutItemInput,
	optFns ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	if m.putItemFunc != nil {
		return m.putItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamoDBClient) Query(
	ctx context.Context,
	params *dynamodb.QueryInput,
	optFns ...func(*dynamodb.Options),
) (*dynamodb.QueryOutput, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, params, optFns...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func TestNewImportLedger(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		client    DynamoDBAPI
		errMsg    string
		slug      string
		tableName string
		wantErr   bool
	}{
		"valid inputs": {
			client:    &mockDynamoDBClient{},
			slug:      "mynation",
			tableName: "ledger",
		},
		"nil client": {
			slug:      "mynation",
			tableName: "ledger",
			wantErr:   true,
			errMsg:    "dynamodb client is required",
		},
		"empty table name": {
			client:  &mockDynamoDBClient{},
			slug:    "mynation",
			wantErr: true,
			errMsg:  "table name is required",
		},
		"empty slug": {
			client:    &mockDynamoDBClient{},
			tableName: "ledger",
			wantErr:   true,
			errMsg:    "nation slug is required",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ledger, err := NewImportLedger(tc.client, tc.tableName, "", tc.slug)

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)
				require.Nil(t, ledger)
			} else {
				require.NoError(t, err)
				require.Equal(t, DefaultLedgerIndex, ledger.indexName)
			}
		})
	}
}

func TestImportLedger_DonationID(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		checkNumber string
		client      *mockDynamoDBClient
		errMsg      string
		want        string
		wantFound   bool
		wantErr     bool
	}{
		"returns donation ID when found": {
			checkNumber: "CH-1",
			client: &mockDynamoDBClient{
				getItemFunc: func(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
					if stringAttr(params.Key, "ledger_key") != "mynation#CH-1" {
						return &dynamodb.GetItemOutput{}, nil
					}
					return &dynamodb.GetItemOutput{
						Item: map[string]types.AttributeValue{
							"check_number": &types.AttributeValueMemberS{Value: "CH-1"},
							"donation_id":  &types.AttributeValueMemberS{Value: "101"},
						},
					}, nil
				},
			},
			want:      "101",
			wantFound: true,
		},
		"not found": {
			checkNumber: "CH-2",
			client:      &mockDynamoDBClient{},
		},
		"item without donation ID": {
			checkNumber: "CH-3",
			client: &mockDynamoDBClient{
				getItemFunc: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
					return &dynamodb.GetItemOutput{
						Item: map[string]types.AttributeValue{
							"check_number": &types.AttributeValueMemberS{Value: "CH-3"},
						},
					}, nil
				},
			},
		},
		"empty check number": {
			client:  &mockDynamoDBClient{},
			wantErr: true,
			errMsg:  "check number is required",
		},
		"DynamoDB error": {
			checkNumber: "CH-4",
			client: &mockDynamoDBClient{
				getItemFunc: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
					return nil, errors.New("throttled")
				},
			},
			wantErr: true,
			errMsg:  "getting item from DynamoDB",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ledger, err := NewImportLedger(tc.client, "ledger", "", "mynation")
			require.NoError(t, err)

			got, found, err := ledger.DonationID(context.Background(), tc.checkNumber)

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantFound, found)
		})
	}
}

func TestImportLedger_Record(t *testing.T) {
	t.Parallel()

	var captured map[string]types.AttributeValue
	client := &mockDynamoDBClient{
		putItemFunc: func(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = params.Item
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	ledger, err := NewImportLedger(client, "ledger", "", "mynation")
	require.NoError(t, err)
	ledger.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, ledger.Record(context.Background(), "CH-1", "101"))
	require.Equal(t, "mynation#CH-1", stringAttr(captured, "ledger_key"))
	require.Equal(t, "CH-1", stringAttr(captured, "check_number"))
	require.Equal(t, "101", stringAttr(captured, "donation_id"))
	require.Equal(t, "mynation", stringAttr(captured, "nation_slug"))
	require.Equal(t, "2024-06-01T12:00:00Z", stringAttr(captured, "imported_at"))

	require.EqualError(t, ledger.Record(context.Background(), "", "101"), "check number is required")
	require.EqualError(t, ledger.Record(context.Background(), "CH-1", ""), "donation ID is required")
}

func TestImportLedger_Forget(t *testing.T) {
	t.Parallel()

	var deleted []string
	client := &mockDynamoDBClient{
		queryFunc: func(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			require.Equal(t, DefaultLedgerIndex, *params.IndexName)
			require.Equal(t, "101", stringAttr(params.ExpressionAttributeValues, ":did"))
			return &dynamodb.QueryOutput{
				Items: []map[string]types.AttributeValue{
					{
						"check_number": &types.AttributeValueMemberS{Value: "CH-1"},
						"donation_id":  &types.AttributeValueMemberS{Value: "101"},
						"nation_slug":  &types.AttributeValueMemberS{Value: "mynation"},
						"imported_at":  &types.AttributeValueMemberS{Value: "2024-06-01T12:00:00Z"},
					},
					{
						"check_number": &types.AttributeValueMemberS{Value: "CH-1"},
						"donation_id":  &types.AttributeValueMemberS{Value: "101"},
						"nation_slug":  &types.AttributeValueMemberS{Value: "othernation"},
					},
				},
			}, nil
		},
		deleteItemFunc: func(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			deleted = append(deleted, stringAttr(params.Key, "ledger_key"))
			return &dynamodb.DeleteItemOutput{}, nil
		},
	}

	ledger, err := NewImportLedger(client, "ledger", "", "mynation")
	require.NoError(t, err)

	removed, err := ledger.Forget(context.Background(), "101")
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, []string{"mynation#CH-1"}, deleted)
}

func TestImportLedger_EntriesByDonationID(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		client  *mockDynamoDBClient
		errMsg  string
		want    []LedgerEntry
		wantErr bool
	}{
		"parses entries": {
			client: &mockDynamoDBClient{
				queryFunc: func(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
					return &dynamodb.QueryOutput{
						Items: []map[string]types.AttributeValue{{
							"check_number": &types.AttributeValueMemberS{Value: "CH-1"},
							"donation_id":  &types.AttributeValueMemberS{Value: "101"},
							"nation_slug":  &types.AttributeValueMemberS{Value: "mynation"},
							"imported_at":  &types.AttributeValueMemberS{Value: "2024-06-01T12:00:00Z"},
						}},
					}, nil
				},
			},
			want: []LedgerEntry{{
				CheckNumber: "CH-1",
				DonationID:  "101",
				ImportedAt:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
				NationSlug:  "mynation",
			}},
		},
		"bad timestamp": {
			client: &mockDynamoDBClient{
				queryFunc: func(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
					return &dynamodb.QueryOutput{
						Items: []map[string]types.AttributeValue{{
							"imported_at": &types.AttributeValueMemberS{Value: "yesterday"},
						}},
					}, nil
				},
			},
			wantErr: true,
			errMsg:  "parsing imported_at",
		},
		"query error": {
			client: &mockDynamoDBClient{
				queryFunc: func(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
					return nil, errors.New("boom")
				},
			},
			wantErr: true,
			errMsg:  "querying DynamoDB",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ledger, err := NewImportLedger(tc.client, "ledger", "", "mynation")
			require.NoError(t, err)

			got, err := ledger.EntriesByDonationID(context.Background(), "101")

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
