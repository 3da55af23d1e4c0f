package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultLedgerIndex is the donation id index used to forget rolled back donations.
const DefaultLedgerIndex = "DonationIdIndex"

// LedgerEntry is one imported donation.
type LedgerEntry struct {
	// CheckNumber is the source transaction reference.
	CheckNumber string

	// DonationID is the NationBuilder donation created for it.
	DonationID string

	// ImportedAt is when the donation was created.
	ImportedAt time.Time

	// NationSlug is the nation the donation was created in.
	NationSlug string
}

// ImportLedger records which check numbers have been imported into a nation, so the same
// export is not imported twice across runs and machines.
type ImportLedger struct {
	// client is the DynamoDB API client.
	client DynamoDBAPI

	// indexName is the name of the donation id GSI.
	indexName string

	// now returns the current time.
	now func() time.Time

	// slug is the nation entries belong to.
	slug string

	// tableName is the name of the DynamoDB table.
	tableName string
}

// DonationID returns the donation imported for a check number, if any.
func (l *ImportLedger) DonationID(ctx context.Context, checkNumber string) (string, bool, error) {
	if checkNumber == "" {
		return "", false, errors.New("check number is required")
	}

	output, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.tableName),
		Key:       l.key(checkNumber),
	})
	if err != nil {
		return "", false, fmt.Errorf("getting item from DynamoDB: %w", err)
	}

	if output.Item == nil {
		return "", false, nil
	}

	entry, err := parseLedgerEntry(output.Item)
	if err != nil {
		return "", false, err
	}
	if entry.DonationID == "" {
		return "", false, nil
	}

	return entry.DonationID, true, nil
}

// Record stores the donation created for a check number.
func (l *ImportLedger) Record(ctx context.Context, checkNumber string, donationID string) error {
	if checkNumber == "" {
		return errors.New("check number is required")
	}
	if donationID == "" {
		return errors.New("donation ID is required")
	}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item: map[string]types.AttributeValue{
			"ledger_key":   &types.AttributeValueMemberS{Value: ledgerKey(l.slug, checkNumber)},
			"check_number": &types.AttributeValueMemberS{Value: checkNumber},
			"donation_id":  &types.AttributeValueMemberS{Value: donationID},
			"imported_at":  &types.AttributeValueMemberS{Value: l.now().UTC().Format(time.RFC3339)},
			"nation_slug":  &types.AttributeValueMemberS{Value: l.slug},
		},
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}

	return nil
}

// Forget removes the entries for a donation, so a rolled back import can be run again.
// It returns the number of entries removed.
func (l *ImportLedger) Forget(ctx context.Context, donationID string) (int, error) {
	entries, err := l.EntriesByDonationID(ctx, donationID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.NationSlug != l.slug {
			continue
		}
		_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(l.tableName),
			Key:       l.key(entry.CheckNumber),
		})
		if err != nil {
			return removed, fmt.Errorf("deleting item from DynamoDB: %w", err)
		}
		removed++
	}

	return removed, nil
}

// EntriesByDonationID retrieves the entries recorded for a donation.
func (l *ImportLedger) EntriesByDonationID(ctx context.Context, donationID string) ([]LedgerEntry, error) {
	if donationID == "" {
		return nil, errors.New("donation ID is required")
	}

	output, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		IndexName:              aws.String(l.indexName),
		KeyConditionExpression: aws.String("donation_id = :did"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":did": &types.AttributeValueMemberS{Value: donationID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	results := make([]LedgerEntry, 0, len(output.Items))
	for _, item := range output.Items {
		entry, err := parseLedgerEntry(item)
		if err != nil {
			return nil, fmt.Errorf("parsing item: %w", err)
		}
		results = append(results, entry)
	}

	return results, nil
}

func (l *ImportLedger) key(checkNumber string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ledger_key": &types.AttributeValueMemberS{Value: ledgerKey(l.slug, checkNumber)},
	}
}

// ledgerKey scopes check numbers to a nation.
func ledgerKey(slug, checkNumber string) string {
	return slug + "#" + checkNumber
}

func parseLedgerEntry(item map[string]types.AttributeValue) (LedgerEntry, error) {
	entry := LedgerEntry{}

	if v, ok := item["check_number"].(*types.AttributeValueMemberS); ok {
		entry.CheckNumber = v.Value
	}
	if v, ok := item["donation_id"].(*types.AttributeValueMemberS); ok {
		entry.DonationID = v.Value
	}
	if v, ok := item["nation_slug"].(*types.AttributeValueMemberS); ok {
		entry.NationSlug = v.Value
	}
	if v, ok := item["imported_at"].(*types.AttributeValueMemberS); ok {
		t, err := time.Parse(time.RFC3339, v.Value)
		if err != nil {
			return entry, fmt.Errorf("parsing imported_at: %w", err)
		}
		entry.ImportedAt = t
	}

	return entry, nil
}

// DynamoDBAPI defines the DynamoDB operations used by the ledger.
type DynamoDBAPI interface {
	// DeleteItem removes an item from DynamoDB.
	DeleteItem(
		ctx context.Context,
		params *dynamodb.DeleteItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.DeleteItemOutput, error)

	// GetItem retrieves an item from DynamoDB.
	GetItem(
		ctx context.Context,
		params *dynamodb.GetItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.GetItemOutput, error)

	// PutItem stores an item in DynamoDB.
	PutItem(
		ctx context.Context,
		params *dynamodb.PutItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.PutItemOutput, error)

	// Query retrieves items matching a key condition from DynamoDB.
	Query(
		ctx context.Context,
		params *dynamodb.QueryInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.QueryOutput, error)
}

// NewImportLedger creates a new DynamoDB-backed import ledger for the nation slug.
// An empty indexName uses DefaultLedgerIndex.
func NewImportLedger(client DynamoDBAPI, tableName string, indexName string, slug string) (*ImportLedger, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if tableName == "" {
		return nil, errors.New("table name is required")
	}
	if slug == "" {
		return nil, errors.New("nation slug is required")
	}
	if indexName == "" {
		indexName = DefaultLedgerIndex
	}

	return &ImportLedger{
		client:    client,
		indexName: indexName,
		now:       time.Now,
		slug:      slug,
		tableName: tableName,
	}, nil
}
