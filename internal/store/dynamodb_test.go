package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
)

const (
	testStatsTable     = "stats"
	testLocationsTable = "locations"
)

type item = map[string]dynamodbtypes.AttributeValue

// fakeDynamoDB keeps both tables in memory and understands the handful of
// condition expressions DynamoDBStore issues.
type fakeDynamoDB struct {
	mu        sync.Mutex
	stats     map[string]item
	locations map[string]item // key: user_id|id

	// beforeStatsWrite runs once per stats write, before the condition check.
	beforeStatsWrite func(f *fakeDynamoDB)
	statsWrites      int
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{stats: map[string]item{}, locations: map[string]item{}}
}

func attrS(it item, name string) string {
	if v, ok := it[name].(*dynamodbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func attrN(it item, name string) string {
	if v, ok := it[name].(*dynamodbtypes.AttributeValueMemberN); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamoDB) statsConditionHolds(put *dynamodbtypes.Put) bool {
	existing, ok := f.stats[attrS(put.Item, "user_id")]
	if !ok {
		return true
	}
	return attrN(existing, "version") == attrN(put.ExpressionAttributeValues, ":expected")
}

func (f *fakeDynamoDB) noteStatsWrite() {
	f.statsWrites++
	if f.beforeStatsWrite != nil {
		f.beforeStatsWrite(f)
	}
}

func (f *fakeDynamoDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.stats[attrS(in.Key, "user_id")]}, nil
}

func (f *fakeDynamoDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteStatsWrite()
	put := &dynamodbtypes.Put{Item: in.Item, ExpressionAttributeValues: in.ExpressionAttributeValues}
	if !f.statsConditionHolds(put) {
		return nil, &dynamodbtypes.ConditionalCheckFailedException{Message: aws.String("version mismatch")}
	}
	f.stats[attrS(in.Item, "user_id")] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteStatsWrite()

	loc, stats := in.TransactItems[0].Put, in.TransactItems[1].Put
	locKey := attrS(loc.Item, "user_id") + "|" + attrS(loc.Item, "id")

	reasons := []dynamodbtypes.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("None")}}
	failed := false
	if _, exists := f.locations[locKey]; exists {
		reasons[0].Code = aws.String("ConditionalCheckFailed")
		failed = true
	}
	if !f.statsConditionHolds(stats) {
		reasons[1].Code = aws.String("ConditionalCheckFailed")
		failed = true
	}
	if failed {
		return nil, &dynamodbtypes.TransactionCanceledException{CancellationReasons: reasons}
	}

	f.locations[locKey] = loc.Item
	f.stats[attrS(stats.Item, "user_id")] = stats.Item
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamoDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid := attrS(in.ExpressionAttributeValues, ":uid")
	var items []item
	for _, it := range f.locations {
		active, _ := it["active"].(*dynamodbtypes.AttributeValueMemberBOOL)
		if attrS(it, "user_id") == uid && active != nil && active.Value {
			items = append(items, it)
		}
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func (f *fakeDynamoDB) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := attrS(in.Key, "user_id") + "|" + attrS(in.Key, "id")
	it, ok := f.locations[key]
	if !ok {
		return nil, &dynamodbtypes.ConditionalCheckFailedException{Message: aws.String("missing")}
	}
	it["active"] = in.ExpressionAttributeValues[":inactive"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamoDB) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if aws.ToString(in.TableName) != testStatsTable {
		return nil, &dynamodbtypes.ResourceNotFoundException{Message: aws.String("no table")}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func newTestDynamoDBStore() (*DynamoDBStore, *fakeDynamoDB) {
	fake := newFakeDynamoDB()
	return NewDynamoDBWithClient(fake, testStatsTable, testLocationsTable), fake
}

func visitUpdate(rec domain.LocationRecord) StatsUpdate {
	return func(cur domain.UserGameStats) (domain.UserGameStats, error) {
		return recordVisit(cur, rec)
	}
}

func TestDynamoDBStore_RecordVisitAndRead(t *testing.T) {
	s, _ := newTestDynamoDBStore()
	ctx := context.Background()
	base := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b"} {
		rec := testRecord("user-1", id, base.Add(time.Duration(i)*time.Hour))
		_, err := s.RecordVisit(ctx, rec, visitUpdate(rec))
		require.NoError(t, err)
	}

	st, err := s.GetStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalLocationsVisited)
	assert.Equal(t, int64(60), st.Experience)
	assert.Equal(t, int64(2), st.Version)
	assert.Equal(t, []domain.AchievementID{domain.AchievementFirstLocation}, st.Achievements)

	recs, err := s.ListLocations(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID)
	assert.Equal(t, domain.EnvironmentMountain, recs[0].Environment)
	assert.Equal(t, 40.0, recs[0].Coordinate.Latitude)
}

func TestDynamoDBStore_RetriesOnVersionConflict(t *testing.T) {
	s, fake := newTestDynamoDBStore()
	ctx := context.Background()

	first := testRecord("user-1", "a", time.Now())
	_, err := s.RecordVisit(ctx, first, visitUpdate(first))
	require.NoError(t, err)

	// Another writer lands a mission between our read and our write.
	injected := false
	fake.beforeStatsWrite = func(f *fakeDynamoDB) {
		if injected {
			return
		}
		injected = true
		var cur domain.UserGameStats
		require.NoError(t, attributevalue.UnmarshalMap(f.stats["user-1"], &cur))
		cur, _ = cur.CompleteMission()
		cur.Version++
		it, err := attributevalue.MarshalMap(cur)
		require.NoError(t, err)
		f.stats["user-1"] = it
	}
	fake.statsWrites = 0

	second := testRecord("user-1", "b", time.Now())
	st, err := s.RecordVisit(ctx, second, visitUpdate(second))
	require.NoError(t, err)

	assert.Equal(t, 2, fake.statsWrites, "conflict should trigger exactly one retry")
	assert.Equal(t, int64(2), st.TotalLocationsVisited)
	assert.Equal(t, int64(1), st.MissionsCompleted, "concurrent update must not be lost")
	assert.Equal(t, int64(3), st.Version)
	assert.Equal(t, strconv.FormatInt(3, 10), attrN(fake.stats["user-1"], "version"))
}

func TestDynamoDBStore_GivesUpAfterRepeatedConflicts(t *testing.T) {
	s, fake := newTestDynamoDBStore()
	ctx := context.Background()

	_, err := s.UpdateStats(ctx, "user-1", func(cur domain.UserGameStats) (domain.UserGameStats, error) { return cur, nil })
	require.NoError(t, err)

	fake.beforeStatsWrite = func(f *fakeDynamoDB) {
		it := f.stats["user-1"]
		v, _ := strconv.Atoi(attrN(it, "version"))
		it["version"] = &dynamodbtypes.AttributeValueMemberN{Value: strconv.Itoa(v + 1)}
	}

	_, err = s.UpdateStats(ctx, "user-1", func(cur domain.UserGameStats) (domain.UserGameStats, error) { return cur, nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestDynamoDBStore_DuplicateLocationIsNotRetried(t *testing.T) {
	s, fake := newTestDynamoDBStore()
	ctx := context.Background()
	rec := testRecord("user-1", "a", time.Now())

	_, err := s.RecordVisit(ctx, rec, visitUpdate(rec))
	require.NoError(t, err)
	fake.statsWrites = 0

	_, err = s.RecordVisit(ctx, rec, visitUpdate(rec))
	require.Error(t, err)
	assert.Equal(t, 1, fake.statsWrites)
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestDynamoDBStore_UpdateErrorWritesNothing(t *testing.T) {
	s, fake := newTestDynamoDBStore()
	rec := testRecord("user-1", "a", time.Now())

	_, err := s.RecordVisit(context.Background(), rec, func(domain.UserGameStats) (domain.UserGameStats, error) {
		return domain.UserGameStats{}, domain.ErrInvalidVisit
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidVisit))
	assert.Zero(t, fake.statsWrites)
	assert.Empty(t, fake.locations)
}

func TestDynamoDBStore_GetStatsUnknownUser(t *testing.T) {
	s, _ := newTestDynamoDBStore()
	st, err := s.GetStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.NewUserGameStats("nobody"), st)
}

func TestDynamoDBStore_DeactivateLocation(t *testing.T) {
	s, _ := newTestDynamoDBStore()
	ctx := context.Background()
	rec := testRecord("user-1", "a", time.Now())
	_, err := s.RecordVisit(ctx, rec, visitUpdate(rec))
	require.NoError(t, err)

	require.NoError(t, s.DeactivateLocation(ctx, "user-1", "a"))
	recs, err := s.ListLocations(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	err = s.DeactivateLocation(ctx, "user-1", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDynamoDBStore_Ping(t *testing.T) {
	s, _ := newTestDynamoDBStore()
	require.NoError(t, s.Ping(context.Background()))

	broken := NewDynamoDBWithClient(newFakeDynamoDB(), "missing", testLocationsTable)
	require.Error(t, broken.Ping(context.Background()))
}
