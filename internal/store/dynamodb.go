package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rotisserie/eris"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
)

// maxConflictRetries bounds optimistic-concurrency retries per update.
const maxConflictRetries = 5

// ErrConflict is returned when a stats update keeps losing the version race.
var ErrConflict = eris.New("concurrent stats update conflict")

// statsCondition admits a write only if nobody else wrote since we read.
const statsCondition = "attribute_not_exists(user_id) OR version = :expected"

// DynamoDBAPI is the subset of *dynamodb.Client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoDBStore implements Store on two DynamoDB tables: stats keyed by
// user_id, and locations keyed by (user_id, id). Stats updates use an
// optimistic version check and retry on conflict.
type DynamoDBStore struct {
	client         DynamoDBAPI
	statsTable     string
	locationsTable string
}

// NewDynamoDB builds a store from the default AWS credential chain.
func NewDynamoDB(ctx context.Context, region, statsTable, locationsTable string) (*DynamoDBStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "dynamodb: load aws config")
	}
	return NewDynamoDBWithClient(dynamodb.NewFromConfig(cfg), statsTable, locationsTable), nil
}

// NewDynamoDBWithClient builds a store around an existing client.
func NewDynamoDBWithClient(client DynamoDBAPI, statsTable, locationsTable string) *DynamoDBStore {
	return &DynamoDBStore{client: client, statsTable: statsTable, locationsTable: locationsTable}
}

func (s *DynamoDBStore) RecordVisit(ctx context.Context, rec domain.LocationRecord, update StatsUpdate) (domain.UserGameStats, error) {
	recItem, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return domain.UserGameStats{}, eris.Wrapf(err, "dynamodb: marshal location %s", rec.ID)
	}

	return s.withVersionRetry(ctx, rec.UserID, update, func(statsPut *dynamodbtypes.Put) error {
		_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []dynamodbtypes.TransactWriteItem{
				{Put: &dynamodbtypes.Put{
					TableName:           aws.String(s.locationsTable),
					Item:                recItem,
					ConditionExpression: aws.String("attribute_not_exists(id)"),
				}},
				{Put: statsPut},
			},
		})
		return err
	})
}

func (s *DynamoDBStore) UpdateStats(ctx context.Context, userID string, update StatsUpdate) (domain.UserGameStats, error) {
	return s.withVersionRetry(ctx, userID, update, func(statsPut *dynamodbtypes.Put) error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 statsPut.TableName,
			Item:                      statsPut.Item,
			ConditionExpression:       statsPut.ConditionExpression,
			ExpressionAttributeValues: statsPut.ExpressionAttributeValues,
		})
		return err
	})
}

// withVersionRetry reads the stats, applies update, and hands a conditional
// stats Put to write. A version conflict restarts the cycle from a fresh read.
func (s *DynamoDBStore) withVersionRetry(ctx context.Context, userID string, update StatsUpdate, write func(*dynamodbtypes.Put) error) (domain.UserGameStats, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		current, err := s.getStats(ctx, userID, true)
		if err != nil {
			return domain.UserGameStats{}, err
		}

		updated, err := update(current)
		if err != nil {
			return domain.UserGameStats{}, err
		}
		updated.UserID = userID
		updated.Version = current.Version + 1

		item, err := attributevalue.MarshalMap(updated)
		if err != nil {
			return domain.UserGameStats{}, eris.Wrapf(err, "dynamodb: marshal stats %s", userID)
		}

		err = write(&dynamodbtypes.Put{
			TableName:           aws.String(s.statsTable),
			Item:                item,
			ConditionExpression: aws.String(statsCondition),
			ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
				":expected": &dynamodbtypes.AttributeValueMemberN{Value: strconv.FormatInt(current.Version, 10)},
			},
		})
		if err == nil {
			return updated, nil
		}
		if !isVersionConflict(err) {
			return domain.UserGameStats{}, eris.Wrapf(err, "dynamodb: write stats %s", userID)
		}
	}
	return domain.UserGameStats{}, eris.Wrapf(ErrConflict, "dynamodb: stats %s after %d attempts", userID, maxConflictRetries)
}

// isVersionConflict reports whether err is a failed stats condition, either
// from PutItem or as the stats leg of a cancelled transaction.
func isVersionConflict(err error) bool {
	var ccf *dynamodbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *dynamodbtypes.TransactionCanceledException
	if errors.As(err, &tce) {
		reasons := tce.CancellationReasons
		return len(reasons) == 2 && aws.ToString(reasons[1].Code) == "ConditionalCheckFailed" &&
			aws.ToString(reasons[0].Code) != "ConditionalCheckFailed"
	}
	return false
}

func (s *DynamoDBStore) GetStats(ctx context.Context, userID string) (domain.UserGameStats, error) {
	return s.getStats(ctx, userID, false)
}

func (s *DynamoDBStore) getStats(ctx context.Context, userID string, consistent bool) (domain.UserGameStats, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.statsTable),
		Key:            map[string]dynamodbtypes.AttributeValue{"user_id": &dynamodbtypes.AttributeValueMemberS{Value: userID}},
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return domain.UserGameStats{}, eris.Wrapf(err, "dynamodb: get stats %s", userID)
	}
	if out.Item == nil {
		return domain.NewUserGameStats(userID), nil
	}

	var st domain.UserGameStats
	if err := attributevalue.UnmarshalMap(out.Item, &st); err != nil {
		return domain.UserGameStats{}, eris.Wrapf(err, "dynamodb: unmarshal stats %s", userID)
	}
	if st.Achievements == nil {
		st.Achievements = []domain.AchievementID{}
	}
	return st, nil
}

func (s *DynamoDBStore) ListLocations(ctx context.Context, userID string, limit int) ([]domain.LocationRecord, error) {
	recs := []domain.LocationRecord{}
	var startKey map[string]dynamodbtypes.AttributeValue

	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.locationsTable),
			KeyConditionExpression: aws.String("user_id = :uid"),
			FilterExpression:       aws.String("active = :active"),
			ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
				":uid":    &dynamodbtypes.AttributeValueMemberS{Value: userID},
				":active": &dynamodbtypes.AttributeValueMemberBOOL{Value: true},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "dynamodb: query locations %s", userID)
		}

		var page []domain.LocationRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, eris.Wrap(err, "dynamodb: unmarshal locations")
		}
		recs = append(recs, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sortNewestFirst(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *DynamoDBStore) DeactivateLocation(ctx context.Context, userID, locationID string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.locationsTable),
		Key: map[string]dynamodbtypes.AttributeValue{
			"user_id": &dynamodbtypes.AttributeValueMemberS{Value: userID},
			"id":      &dynamodbtypes.AttributeValueMemberS{Value: locationID},
		},
		UpdateExpression:    aws.String("SET active = :inactive"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":inactive": &dynamodbtypes.AttributeValueMemberBOOL{Value: false},
		},
	})
	var ccf *dynamodbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return eris.Wrapf(ErrNotFound, "dynamodb: location %s", locationID)
	}
	if err != nil {
		return eris.Wrapf(err, "dynamodb: deactivate location %s", locationID)
	}
	return nil
}

func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.statsTable)})
	if err != nil {
		return eris.Wrap(err, "dynamodb: describe stats table")
	}
	return nil
}

func (s *DynamoDBStore) Close() {}
