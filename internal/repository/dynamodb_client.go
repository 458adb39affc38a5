package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"care-companion/internal/domain"
)

const (
	pkPrefixExchange = "EXCHANGE#"
	skPrefixTS       = "TS#"
	ttlDuration      = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client writes single-turn exchanges to a DynamoDB table. Items are
// write-once and expire through the table's ttl attribute.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func exchangePK(id string) string {
	return pkPrefixExchange + id
}

func exchangeSK(ts time.Time) string {
	return skPrefixTS + ts.UTC().Format(time.RFC3339Nano)
}

// SaveExchange persists ex. CreatedAt and TTL are filled in when zero.
func (c *Client) SaveExchange(ctx context.Context, ex domain.Exchange) error {
	if strings.TrimSpace(ex.ID) == "" {
		return errors.New("repository: SaveExchange: exchange ID is required")
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = c.now()
	}
	if ex.TTL == 0 {
		ex.TTL = ex.CreatedAt.Add(ttlDuration).Unix()
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                exchangeItem(ex),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveExchange: %w", err)
	}
	return nil
}

func exchangeItem(ex domain.Exchange) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: exchangePK(ex.ID)},
		"SK":            &types.AttributeValueMemberS{Value: exchangeSK(ex.CreatedAt)},
		"exchangeId":    &types.AttributeValueMemberS{Value: ex.ID},
		"message":       &types.AttributeValueMemberS{Value: ex.Message},
		"reply":         &types.AttributeValueMemberS{Value: ex.Reply},
		"model":         &types.AttributeValueMemberS{Value: ex.Model},
		"status":        &types.AttributeValueMemberS{Value: ex.Status},
		"latencyMillis": &types.AttributeValueMemberN{Value: strconv.FormatInt(ex.LatencyMillis, 10)},
		"createdAt":     &types.AttributeValueMemberS{Value: ex.CreatedAt.UTC().Format(time.RFC3339)},
		"ttl":           &types.AttributeValueMemberN{Value: strconv.FormatInt(ex.TTL, 10)},
	}
	if ex.CorrelationID != "" {
		item["correlationId"] = &types.AttributeValueMemberS{Value: ex.CorrelationID}
	}
	if ex.ErrorCode != "" {
		item["errorCode"] = &types.AttributeValueMemberS{Value: ex.ErrorCode}
	}
	return item
}
