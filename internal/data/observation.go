package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/repo"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// observationRepo implements the Observation repository over database/sql
type observationRepo struct {
	db     *sql.DB
	driver string
}

// NewObservationRepo opens the observation store.
// sqlite is the embedded default; pgx reads a scanner's PostgreSQL database.
func NewObservationRepo(driver, dsn string) (repo.ObservationRepo, error) {
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create db directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Columns follow the scanner schema; the DDL is valid for both drivers
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pokemon (
			pokemon_id INTEGER NOT NULL,
			atk_iv SMALLINT,
			def_iv SMALLINT,
			sta_iv SMALLINT,
			shiny INTEGER NOT NULL DEFAULT 0,
			expire_timestamp BIGINT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_pokemon_expire_timestamp ON pokemon(expire_timestamp)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &observationRepo{db: db, driver: driver}, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (r *observationRepo) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// ListObservations lists observations expiring in [from, to]
func (r *observationRepo) ListObservations(ctx context.Context, from, to time.Time) ([]domain.RawObservation, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT pokemon_id, atk_iv, def_iv, sta_iv, shiny, expire_timestamp
		FROM pokemon
		WHERE expire_timestamp >= ? AND expire_timestamp <= ?
	`), from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var result []domain.RawObservation
	for rows.Next() {
		var (
			o             domain.RawObservation
			id, shiny     int64
			atk, def, sta sql.NullInt16
		)
		if err := rows.Scan(&id, &atk, &def, &sta, &shiny, &o.ExpireTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.EntityID = uint32(id)
		o.Attack = nullAttr(atk)
		o.Defense = nullAttr(def)
		o.Stamina = nullAttr(sta)
		o.Shiny = shiny != 0
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read observations: %w", err)
	}
	return result, nil
}

func nullAttr(v sql.NullInt16) *uint16 {
	if !v.Valid || v.Int16 < 0 {
		return nil
	}
	u := uint16(v.Int16)
	return &u
}

func attrValue(v *uint16) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// CountByEntity counts observations per entity in [from, to]
func (r *observationRepo) CountByEntity(ctx context.Context, ids []uint32, from, to time.Time) (map[uint32]uint64, error) {
	query := `
		SELECT pokemon_id, COUNT(*)
		FROM pokemon
		WHERE expire_timestamp >= ? AND expire_timestamp <= ?`
	args := []any{from.Unix(), to.Unix()}
	if len(ids) > 0 {
		query += ` AND pokemon_id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, int64(id))
		}
	}
	query += ` GROUP BY pokemon_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count observations: %w", err)
	}
	defer rows.Close()

	counts := make(map[uint32]uint64)
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[uint32(id)] = uint64(n)
	}
	return counts, rows.Err()
}

// Save inserts observations in one transaction
func (r *observationRepo) Save(ctx context.Context, obs ...domain.RawObservation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO pokemon (pokemon_id, atk_iv, def_iv, sta_iv, shiny, expire_timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		shiny := 0
		if o.Shiny {
			shiny = 1
		}
		_, err := stmt.ExecContext(ctx, int64(o.EntityID), attrValue(o.Attack), attrValue(o.Defense), attrValue(o.Stamina), shiny, o.ExpireTimestamp)
		if err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observations: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *observationRepo) Close() error {
	return r.db.Close()
}
