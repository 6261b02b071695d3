// Package ddb provides a kind-aware repository over DynamoDB tables.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Errors returned by Repo.
var (
	ErrNotFound        = errors.New("record not found")
	ErrConditionFailed = errors.New("condition failed")
	ErrUnknownKind     = errors.New("unknown kind")
)

// API is the subset of the DynamoDB client the repo uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Repo wraps a DynamoDB client and one table per record kind. Every table
// has a single string hash key named "id".
type Repo struct {
	DB     API
	Tables map[models.Kind]string
}

func (r *Repo) table(kind models.Kind) (*string, error) {
	t := r.Tables[kind]
	if !kind.Valid() || t == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return aws.String(t), nil
}

// Put inserts a new record, refusing to overwrite an existing id.
func (r *Repo) Put(ctx context.Context, kind models.Kind, rec models.Record) error {
	table, err := r.table(kind)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("put %s %s: %w", kind, rec.Head().ID, ErrConditionFailed)
	}
	return err
}

// Get loads the record with the given id into out.
func (r *Repo) Get(ctx context.Context, kind models.Kind, id string, out any) error {
	table, err := r.table(kind)
	if err != nil {
		return err
	}
	res, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      table,
		Key:            Key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return err
	}
	if len(res.Item) == 0 {
		return ErrNotFound
	}
	return attributevalue.UnmarshalMap(res.Item, out)
}

// Scan reads up to limit records of kind and unmarshals them into out (a
// pointer to a slice), sorted newest first by createdAt. DynamoDB returns
// the first limit items in hash order, so once a table holds more than
// limit records the result is an arbitrary limit of them, not the newest.
// Results beyond limit are not reachable; there is no continuation token.
func (r *Repo) Scan(ctx context.Context, kind models.Kind, limit int, out any) error {
	table, err := r.table(kind)
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = 100
	}

	var items []map[string]types.AttributeValue
	var start map[string]types.AttributeValue
	for len(items) < limit {
		res, err := r.DB.Scan(ctx, &dynamodb.ScanInput{
			TableName:         table,
			Limit:             aws.Int32(int32(limit - len(items))),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return err
		}
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		start = res.LastEvaluatedKey
	}

	sort.SliceStable(items, func(i, j int) bool {
		return createdAt(items[i]) > createdAt(items[j])
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return attributevalue.UnmarshalListOfMaps(items, out)
}

// Update applies changes to an existing record and unmarshals the updated
// item into out (which may be nil). cond, when set, must also hold.
func (r *Repo) Update(ctx context.Context, kind models.Kind, id string, changes map[string]any, cond expression.ConditionBuilder, out any) error {
	table, err := r.table(kind)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return errors.New("no changes")
	}

	names := make([]string, 0, len(changes))
	for n := range changes {
		names = append(names, n)
	}
	sort.Strings(names)
	upd := expression.Set(expression.Name(names[0]), expression.Value(changes[names[0]]))
	for _, n := range names[1:] {
		upd = upd.Set(expression.Name(n), expression.Value(changes[n]))
	}

	exists := expression.AttributeExists(expression.Name("id"))
	if cond.IsSet() {
		exists = exists.And(cond)
	}
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(exists).Build()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           table,
		Key:                                 Key(id),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return ErrNotFound
		}
		return fmt.Errorf("update %s %s: %w", kind, id, ErrConditionFailed)
	}
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return attributevalue.UnmarshalMap(res.Attributes, out)
}

// Transition moves a record to t.To if its current status is one of t.From,
// stamping updatedAt and the transition's own timestamp attribute.
func (r *Repo) Transition(ctx context.Context, kind models.Kind, id string, t models.Transition, at time.Time, out any) error {
	if len(t.From) == 0 {
		return fmt.Errorf("transition %s has no source states", t.Name)
	}
	from := make([]expression.OperandBuilder, 0, len(t.From))
	for _, s := range t.From[1:] {
		from = append(from, expression.Value(s))
	}
	cond := expression.Name("status").In(expression.Value(t.From[0]), from...)

	ms := at.UnixMilli()
	changes := map[string]any{
		"status":    t.To,
		"updatedAt": ms,
	}
	if t.Stamp != "" {
		changes[t.Stamp] = ms
	}
	return r.Update(ctx, kind, id, changes, cond, out)
}

// SetAttachment replaces the attachment reference of an existing record.
func (r *Repo) SetAttachment(ctx context.Context, kind models.Kind, id string, a *models.Attachment, at time.Time) error {
	changes := map[string]any{
		"attachment": a,
		"updatedAt":  at.UnixMilli(),
	}
	return r.Update(ctx, kind, id, changes, expression.ConditionBuilder{}, nil)
}

// SetAttachmentMeta records object metadata on a record that already holds
// an attachment reference.
func (r *Repo) SetAttachmentMeta(ctx context.Context, kind models.Kind, id string, size int64, etag, uploadedAt string) error {
	changes := map[string]any{
		"attachment.sizeBytes":  size,
		"attachment.etag":       etag,
		"attachment.uploadedAt": uploadedAt,
	}
	cond := expression.AttributeExists(expression.Name("attachment.key"))
	return r.Update(ctx, kind, id, changes, cond, nil)
}

// Key builds the primary key for id.
func Key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func createdAt(item map[string]types.AttributeValue) int64 {
	n, ok := item["createdAt"].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	v, _ := strconv.ParseInt(n.Value, 10, 64)
	return v
}
