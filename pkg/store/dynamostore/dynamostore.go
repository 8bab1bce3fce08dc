// Package dynamostore implements pip.KeyedStore on a DynamoDB table.
//
// Item layout: PK = entity type, SK = entity id, GSISK = canonical entity
// key, attrs = attribute map, parents = list of {type, id}, tags = optional
// tag map. Attribute and tag values use the Cedar JSON value encoding.
package dynamostore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cedar-policy/cedar-go"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
)

// Service limits.
const (
	MaxBatchGetKeys   = 100
	MaxBatchWriteKeys = 25
)

// maxUnprocessedRounds bounds how often unprocessed keys are resubmitted.
const maxUnprocessedRounds = 5

var (
	_ pip.KeyedStore   = (*Store)(nil)
	_ pip.EntityWriter = (*Store)(nil)
)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store is a DynamoDB keyed entity store.
type Store struct {
	client  API
	table   string
	backoff time.Duration
}

// New returns a store over table.
func New(client API, table string) *Store {
	return &Store{client: client, table: table, backoff: 50 * time.Millisecond}
}

// Item is the stored form of an entity.
type Item struct {
	PK      string         `dynamodbav:"PK"`
	SK      string         `dynamodbav:"SK"`
	GSISK   string         `dynamodbav:"GSISK"`
	Attrs   map[string]any `dynamodbav:"attrs"`
	Parents []any          `dynamodbav:"parents"`
	Tags    map[string]any `dynamodbav:"tags,omitempty"`
}

// entityDoc is the Cedar JSON entity shape.
type entityDoc struct {
	UID     any               `json:"uid"`
	Attrs   map[string]any    `json:"attrs"`
	Parents []any             `json:"parents"`
	Tags    map[string]any    `json:"tags,omitempty"`
}

// NewItem converts an entity to its stored form.
func NewItem(e cedar.Entity) (Item, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Item{}, fmt.Errorf("failed to marshal entity: %w", err)
	}
	var doc entityDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Item{}, fmt.Errorf("failed to decode entity: %w", err)
	}
	item := Item{
		PK:      string(e.UID.Type),
		SK:      string(e.UID.ID),
		GSISK:   pip.EntityKey(e.UID),
		Attrs:   doc.Attrs,
		Parents: doc.Parents,
		Tags:    doc.Tags,
	}
	if item.Attrs == nil {
		item.Attrs = map[string]any{}
	}
	if item.Parents == nil {
		item.Parents = []any{}
	}
	return item, nil
}

// Entity converts a stored item back to a Cedar entity.
func (it Item) Entity() (cedar.Entity, error) {
	doc := entityDoc{
		UID:     map[string]string{"type": it.PK, "id": it.SK},
		Attrs:   it.Attrs,
		Parents: it.Parents,
		Tags:    it.Tags,
	}
	if doc.Attrs == nil {
		doc.Attrs = map[string]any{}
	}
	if doc.Parents == nil {
		doc.Parents = []any{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return cedar.Entity{}, err
	}
	var e cedar.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return cedar.Entity{}, fmt.Errorf("failed to decode entity %s: %w", it.GSISK, err)
	}
	return e, nil
}

func itemKey(uid cedar.EntityUID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: string(uid.Type)},
		"SK": &types.AttributeValueMemberS{Value: string(uid.ID)},
	}
}

// BatchGetEntities fetches at most MaxBatchGetKeys uids, resubmitting
// unprocessed keys. Missing uids are omitted.
func (s *Store) BatchGetEntities(ctx context.Context, uids []cedar.EntityUID) ([]cedar.Entity, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > MaxBatchGetKeys {
		return nil, fmt.Errorf("batch of %d keys exceeds limit of %d", len(uids), MaxBatchGetKeys)
	}

	keys := make([]map[string]types.AttributeValue, len(uids))
	for i, uid := range uids {
		keys[i] = itemKey(uid)
	}
	request := map[string]types.KeysAndAttributes{
		s.table: {Keys: keys},
	}

	var entities []cedar.Entity
	for round := 0; len(request) > 0; round++ {
		if round == maxUnprocessedRounds {
			return nil, fmt.Errorf("batch get: keys still unprocessed after %d rounds", round)
		}
		if round > 0 {
			if err := s.wait(ctx, round); err != nil {
				return nil, err
			}
		}

		out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return nil, fmt.Errorf("batch get: %w", err)
		}
		for _, raw := range out.Responses[s.table] {
			var it Item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return nil, fmt.Errorf("failed to unmarshal item: %w", err)
			}
			e, err := it.Entity()
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		}
		request = out.UnprocessedKeys
	}
	return entities, nil
}

// ScanEntityIDs lists every id of entityType, following pagination. Ids come
// back in sort key order.
func (s *Store) ScanEntityIDs(ctx context.Context, entityType string) ([]string, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :entityType"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":entityType": &types.AttributeValueMemberS{Value: entityType},
		},
		ProjectionExpression: aws.String("SK"),
	}

	var ids []string
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", entityType, err)
		}
		for _, raw := range out.Items {
			if sk, ok := raw["SK"].(*types.AttributeValueMemberS); ok {
				ids = append(ids, sk.Value)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return ids, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// PutEntities writes entities in batches of MaxBatchWriteKeys, resubmitting
// unprocessed items.
func (s *Store) PutEntities(ctx context.Context, entities []cedar.Entity) error {
	for start := 0; start < len(entities); start += MaxBatchWriteKeys {
		chunk := entities[start:min(start+MaxBatchWriteKeys, len(entities))]
		writes := make([]types.WriteRequest, 0, len(chunk))
		for _, e := range chunk {
			it, err := NewItem(e)
			if err != nil {
				return err
			}
			av, err := attributevalue.MarshalMap(it)
			if err != nil {
				return fmt.Errorf("failed to marshal item %s: %w", it.GSISK, err)
			}
			writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
		}
		if err := s.batchWrite(ctx, map[string][]types.WriteRequest{s.table: writes}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) batchWrite(ctx context.Context, request map[string][]types.WriteRequest) error {
	for round := 0; len(request) > 0; round++ {
		if round == maxUnprocessedRounds {
			return fmt.Errorf("batch write: items still unprocessed after %d rounds", round)
		}
		if round > 0 {
			if err := s.wait(ctx, round); err != nil {
				return err
			}
		}
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: request})
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}
		request = out.UnprocessedItems
	}
	return nil
}

func (s *Store) wait(ctx context.Context, round int) error {
	timer := time.NewTimer(s.backoff * time.Duration(1<<(round-1)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
