package dynamo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-gate/internal/domain"
)

// SessionRepo provides typed DynamoDB operations for the sessions table.
type SessionRepo struct {
	client    API
	tableName string
}

func NewSessionRepo(client API, tableName string) *SessionRepo {
	return &SessionRepo{client: client, tableName: tableName}
}

func (r *SessionRepo) Put(ctx context.Context, s *domain.Session) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("session_id", sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	var s domain.Session
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Update(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("session_id", sessionID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ConditionExpression:       aws.String("attribute_exists(session_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return err
}

// SetExpiry moves the session's expiry, which also moves its TTL.
func (r *SessionRepo) SetExpiry(ctx context.Context, sessionID string, expiresAt int64) error {
	return r.Update(ctx, sessionID, map[string]interface{}{fieldExpiresAt: expiresAt})
}

func (r *SessionRepo) SetTwoFactorVerified(ctx context.Context, sessionID string, verified bool) error {
	return r.Update(ctx, sessionID, map[string]interface{}{fieldTwoFactorVerified: verified})
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("session_id", sessionID),
	})
	return err
}

// ListIDsByUser returns the ids of every session held by userID.
func (r *SessionRepo) ListIDsByUser(ctx context.Context, userID string) ([]string, error) {
	var (
		ids   []string
		start map[string]types.AttributeValue
	)
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(indexUserID),
			KeyConditionExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			if sid, ok := item["session_id"].(*types.AttributeValueMemberS); ok {
				ids = append(ids, sid.Value)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return ids, nil
		}
		start = out.LastEvaluatedKey
	}
}

// DeleteByUser removes every session of userID. It keeps going past
// individual failures and returns the first one.
func (r *SessionRepo) DeleteByUser(ctx context.Context, userID string) error {
	return r.eachByUser(ctx, userID, "delete", r.Delete)
}

// ClearTwoFactorByUser marks every session of userID as not 2FA-verified.
func (r *SessionRepo) ClearTwoFactorByUser(ctx context.Context, userID string) error {
	return r.eachByUser(ctx, userID, "clear 2fa", func(ctx context.Context, sid string) error {
		return r.SetTwoFactorVerified(ctx, sid, false)
	})
}

func (r *SessionRepo) eachByUser(ctx context.Context, userID, op string, fn func(context.Context, string) error) error {
	ids, err := r.ListIDsByUser(ctx, userID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, sid := range ids {
		if err := fn(ctx, sid); err != nil {
			slog.WarnContext(ctx, "session bulk operation failed", "op", op, "session_id", sid, "user_id", userID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
