package draft

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fpang/litter-report/internal/report"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "DRAFT#"
	skMeta   = "META"
)

// DynamoAPI is the subset of *dynamodb.Client used by Dynamo.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Dynamo stores drafts in a DynamoDB table keyed by PK/SK, with an
// expiresAt attribute so the table's TTL sweeps abandoned drafts.
type Dynamo struct {
	client    DynamoAPI
	tableName string
}

var _ Backend = (*Dynamo)(nil)

// NewDynamo creates a Dynamo backend for the given table.
func NewDynamo(client DynamoAPI, tableName string) *Dynamo {
	return &Dynamo{client: client, tableName: tableName}
}

func draftPK(key string) string {
	return pkPrefix + key
}

func itemKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

func (s *Dynamo) PutDraft(ctx context.Context, key string, d *report.Draft) error {
	pk := draftPK(key)
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}
	item["expiresAt"] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(d.CreatedAt.Add(Retention).Unix(), 10),
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, skMeta, err)
	}
	log.Debug().Str("draftId", d.ID).Str("status", string(d.Status)).Msg("Draft persisted to DynamoDB")
	return nil
}

func (s *Dynamo) GetDraft(ctx context.Context, key string) (*report.Draft, error) {
	pk := draftPK(key)
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       itemKey(pk),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, skMeta, err)
	}
	if result.Item == nil {
		return nil, nil
	}
	var d report.Draft
	if err := attributevalue.UnmarshalMap(result.Item, &d); err != nil {
		return nil, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, skMeta, err)
	}
	return &d, nil
}

func (s *Dynamo) DeleteDraft(ctx context.Context, key string) error {
	pk := draftPK(key)
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       itemKey(pk),
	})
	if err != nil {
		return fmt.Errorf("DeleteItem PK=%s SK=%s: %w", pk, skMeta, err)
	}
	return nil
}
