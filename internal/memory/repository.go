package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// ArchiveStore is the long-term, queryable tier.
type ArchiveStore interface {
	// Archive inserts records. Inserting an already archived id is a no-op.
	Archive(ctx context.Context, recs []Record) error
	Stats(ctx context.Context) (ArchiveStats, error)
	Search(ctx context.Context, query string, limit int) ([]Record, error)
	SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]Record, error)
	Touch(ctx context.Context, at time.Time, ids ...uuid.UUID) error
	Ping(ctx context.Context) error
}

// PostgresArchive implements ArchiveStore using pgx + pgvector.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates a new archive repository.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

const archiveColumns = `id, content, source, importance, created_at, last_accessed_at`

func (r *PostgresArchive) Archive(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning archive tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, rec := range recs {
		if len(rec.Embedding) > 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO memory_archive (id, content, source, importance, created_at, last_accessed_at, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (id) DO NOTHING`,
				rec.ID, rec.Content, rec.Source, rec.Importance, rec.CreatedAt, rec.LastAccessedAt,
				pgvector.NewVector(rec.Embedding),
			)
		} else {
			_, err = tx.Exec(ctx,
				`INSERT INTO memory_archive (id, content, source, importance, created_at, last_accessed_at)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO NOTHING`,
				rec.ID, rec.Content, rec.Source, rec.Importance, rec.CreatedAt, rec.LastAccessedAt,
			)
		}
		if err != nil {
			return fmt.Errorf("inserting archived record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing archive tx: %w", err)
	}
	return nil
}

func (r *PostgresArchive) Stats(ctx context.Context) (ArchiveStats, error) {
	var s ArchiveStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(importance), 0) FROM memory_archive`,
	).Scan(&s.Total, &s.AverageImportance)
	if err != nil {
		return ArchiveStats{}, fmt.Errorf("querying archive stats: %w", err)
	}
	return s, nil
}

// Search matches query against the full-text index, falling back to a
// substring match. An empty query returns the most recently accessed records.
func (r *PostgresArchive) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if query == "" {
		rows, err = r.pool.Query(ctx,
			`SELECT `+archiveColumns+`
			 FROM memory_archive
			 ORDER BY last_accessed_at DESC
			 LIMIT $1`,
			limit,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+archiveColumns+`
			 FROM memory_archive
			 WHERE search @@ plainto_tsquery('simple', $1)
			    OR content ILIKE $3 ESCAPE '\'
			 ORDER BY ts_rank(search, plainto_tsquery('simple', $1)) DESC, created_at DESC
			 LIMIT $2`,
			query, limit, likePattern(query),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("searching archive: %w", err)
	}
	return scanRecords(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches query as a literal substring.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

func (r *PostgresArchive) SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+archiveColumns+`
		 FROM memory_archive
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar archived records: %w", err)
	}
	return scanRecords(rows)
}

func (r *PostgresArchive) Touch(ctx context.Context, at time.Time, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE memory_archive SET last_accessed_at = $1 WHERE id = ANY($2::uuid[])`,
		at, strIDs,
	)
	if err != nil {
		return fmt.Errorf("touching archived records: %w", err)
	}
	return nil
}

func (r *PostgresArchive) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.Source, &rec.Importance, &rec.CreatedAt, &rec.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("scanning archived record: %w", err)
		}
		rec.Tier = TierArchived
		out = append(out, rec)
	}
	return out, rows.Err()
}
