package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/couchcryptid/nasa-explorer/internal/domain"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock.PgxPoolIface satisfies it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store on PostgreSQL. A stats update runs in one
// transaction holding the row lock of the user's stats row.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns > 0 {
		pgxCfg.MaxConns = maxConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS user_game_stats (
	user_id                 TEXT PRIMARY KEY,
	level                   INTEGER NOT NULL DEFAULT 1,
	experience              BIGINT NOT NULL DEFAULT 0,
	total_locations_visited BIGINT NOT NULL DEFAULT 0,
	nasa_data_collected     BIGINT NOT NULL DEFAULT 0,
	missions_completed      BIGINT NOT NULL DEFAULT 0,
	achievements            TEXT[] NOT NULL DEFAULT '{}',
	version                 BIGINT NOT NULL DEFAULT 0,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS location_records (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	session_id        TEXT NOT NULL DEFAULT '',
	coordinate        JSONB NOT NULL,
	environment       TEXT NOT NULL,
	level             TEXT NOT NULL,
	data_types        TEXT[] NOT NULL,
	difficulty        INTEGER NOT NULL,
	experience_reward INTEGER NOT NULL,
	recorded_at       TIMESTAMPTZ NOT NULL,
	active            BOOLEAN NOT NULL DEFAULT true
);

CREATE INDEX IF NOT EXISTS idx_location_records_user_recorded
	ON location_records (user_id, recorded_at DESC) WHERE active;
`

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

const (
	ensureStatsSQL = `INSERT INTO user_game_stats (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`

	selectStatsColumns = `SELECT user_id, level, experience, total_locations_visited, nasa_data_collected,
	missions_completed, achievements, version, updated_at FROM user_game_stats WHERE user_id = $1`

	lockStatsSQL = selectStatsColumns + ` FOR UPDATE`

	updateStatsSQL = `UPDATE user_game_stats SET level = $2, experience = $3, total_locations_visited = $4,
	nasa_data_collected = $5, missions_completed = $6, achievements = $7, version = version + 1, updated_at = $8
	WHERE user_id = $1`

	insertLocationSQL = `INSERT INTO location_records (id, user_id, session_id, coordinate, environment, level,
	data_types, difficulty, experience_reward, recorded_at, active) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	listLocationsSQL = `SELECT id, user_id, session_id, coordinate, environment, level, data_types, difficulty,
	experience_reward, recorded_at, active FROM location_records
	WHERE user_id = $1 AND active ORDER BY recorded_at DESC LIMIT $2`

	deactivateLocationSQL = `UPDATE location_records SET active = false WHERE id = $1 AND user_id = $2`
)

func (s *PostgresStore) RecordVisit(ctx context.Context, rec domain.LocationRecord, update StatsUpdate) (domain.UserGameStats, error) {
	coord, err := json.Marshal(rec.Coordinate)
	if err != nil {
		return domain.UserGameStats{}, eris.Wrapf(err, "postgres: marshal coordinate for %s", rec.ID)
	}

	return s.inStatsTx(ctx, rec.UserID, update, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertLocationSQL,
			rec.ID, rec.UserID, rec.SessionID, coord, string(rec.Environment), string(rec.Level),
			dataTypesToStrings(rec.DataTypes), rec.Difficulty, rec.ExperienceReward, rec.RecordedAt, rec.Active)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert location %s", rec.ID)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateStats(ctx context.Context, userID string, update StatsUpdate) (domain.UserGameStats, error) {
	return s.inStatsTx(ctx, userID, update, nil)
}

// inStatsTx locks the user's stats row, applies update, runs extra (if any)
// and writes the new stats, all in one transaction.
func (s *PostgresStore) inStatsTx(ctx context.Context, userID string, update StatsUpdate, extra func(pgx.Tx) error) (domain.UserGameStats, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.UserGameStats{}, eris.Wrap(err, "postgres: begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, ensureStatsSQL, userID); err != nil {
		return domain.UserGameStats{}, eris.Wrapf(err, "postgres: ensure stats row %s", userID)
	}

	current, err := scanStats(tx.QueryRow(ctx, lockStatsSQL, userID))
	if err != nil {
		return domain.UserGameStats{}, eris.Wrapf(err, "postgres: lock stats %s", userID)
	}

	updated, err := update(current)
	if err != nil {
		return domain.UserGameStats{}, err
	}

	if extra != nil {
		if err := extra(tx); err != nil {
			return domain.UserGameStats{}, err
		}
	}

	_, err = tx.Exec(ctx, updateStatsSQL,
		userID, updated.Level, updated.Experience, updated.TotalLocationsVisited, updated.NASADataCollected,
		updated.MissionsCompleted, achievementsToStrings(updated.Achievements), updated.UpdatedAt)
	if err != nil {
		return domain.UserGameStats{}, eris.Wrapf(err, "postgres: update stats %s", userID)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.UserGameStats{}, eris.Wrap(err, "postgres: commit")
	}
	updated.Version = current.Version + 1
	return updated, nil
}

func (s *PostgresStore) GetStats(ctx context.Context, userID string) (domain.UserGameStats, error) {
	st, err := scanStats(s.pool.QueryRow(ctx, selectStatsColumns, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewUserGameStats(userID), nil
	}
	if err != nil {
		return domain.UserGameStats{}, eris.Wrapf(err, "postgres: get stats %s", userID)
	}
	return st, nil
}

func scanStats(row pgx.Row) (domain.UserGameStats, error) {
	var st domain.UserGameStats
	var achievements []string
	err := row.Scan(&st.UserID, &st.Level, &st.Experience, &st.TotalLocationsVisited, &st.NASADataCollected,
		&st.MissionsCompleted, &achievements, &st.Version, &st.UpdatedAt)
	if err != nil {
		return domain.UserGameStats{}, err
	}
	st.Achievements = achievementsFromStrings(achievements)
	return st, nil
}

func (s *PostgresStore) ListLocations(ctx context.Context, userID string, limit int) ([]domain.LocationRecord, error) {
	rows, err := s.pool.Query(ctx, listLocationsSQL, userID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list locations %s", userID)
	}
	defer rows.Close()

	recs := []domain.LocationRecord{}
	for rows.Next() {
		var (
			r         domain.LocationRecord
			coord     []byte
			env, lvl  string
			dataTypes []string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.SessionID, &coord, &env, &lvl, &dataTypes,
			&r.Difficulty, &r.ExperienceReward, &r.RecordedAt, &r.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		if err := json.Unmarshal(coord, &r.Coordinate); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode coordinate for %s", r.ID)
		}
		r.Environment = domain.Environment(env)
		r.Level = domain.GameLevel(lvl)
		r.DataTypes = dataTypesFromStrings(dataTypes)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate locations")
	}
	return recs, nil
}

func (s *PostgresStore) DeactivateLocation(ctx context.Context, userID, locationID string) error {
	tag, err := s.pool.Exec(ctx, deactivateLocationSQL, locationID, userID)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate location %s", locationID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: location %s", locationID)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}
