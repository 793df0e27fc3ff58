package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-gate/internal/domain"
)

// VerificationRepo stores pending code challenges.
// PK: user_id, SK: channel, so a Put replaces any live request on the same channel.
type VerificationRepo struct {
	client    API
	tableName string
}

func NewVerificationRepo(client API, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

func (r *VerificationRepo) Put(ctx context.Context, v *domain.VerificationRequest) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal verification request: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *VerificationRepo) GetByUser(ctx context.Context, userID string, ch domain.Channel) (*domain.VerificationRequest, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey("user_id", userID, "channel", string(ch)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification request not found: %w", domain.ErrNotFound)
	}
	var v domain.VerificationRequest
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetByID resolves a request from the opaque id held in the client's cookie.
// The GSI is eventually consistent, so a hit is re-read through the primary
// key and discarded if the row has since been replaced.
func (r *VerificationRepo) GetByID(ctx context.Context, requestID string) (*domain.VerificationRequest, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexRequestID),
		KeyConditionExpression: aws.String("request_id = :rid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: requestID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("verification request not found: %w", domain.ErrNotFound)
	}
	var hit domain.VerificationRequest
	if err := attributevalue.UnmarshalMap(out.Items[0], &hit); err != nil {
		return nil, err
	}
	cur, err := r.GetByUser(ctx, hit.UserID, hit.Channel)
	if err != nil {
		return nil, err
	}
	if cur.RequestID != requestID {
		return nil, fmt.Errorf("verification request superseded: %w", domain.ErrNotFound)
	}
	return cur, nil
}

func (r *VerificationRepo) Delete(ctx context.Context, userID string, ch domain.Channel) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("user_id", userID, "channel", string(ch)),
	})
	return err
}

// DeleteIfCurrent removes the request only while it is still the live one for
// its channel, so a late verification cannot delete a freshly issued code.
func (r *VerificationRepo) DeleteIfCurrent(ctx context.Context, v *domain.VerificationRequest) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey("user_id", v.UserID, "channel", string(v.Channel)),
		ConditionExpression: aws.String("#rid = :rid"),
		ExpressionAttributeNames: map[string]string{
			"#rid": fieldRequestID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: v.RequestID},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("verification request superseded: %w", domain.ErrConflict)
	}
	return err
}
