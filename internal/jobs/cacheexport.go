package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" database/sql driver
	"github.com/parquet-go/parquet-go"

	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/weknora-chat/ragstream/internal/qacache"
)

const TaskCacheExport = "qacache:export"

// cacheExportRow is the flattened analytics row (SPEC_FULL.md §C.8:
// "question, answer, hit count, feedback counters"). The parquet tags name
// the Parquet columns; the DuckDB insert binds the fields by position.
type cacheExportRow struct {
	ThoughtChainID string    `parquet:"thought_chain_id"`
	Question       string    `parquet:"question"`
	Answer         string    `parquet:"answer"`
	PositiveCount  int64     `parquet:"positive_count"`
	NegativeCount  int64     `parquet:"negative_count"`
	CreatedAt      time.Time `parquet:"created_at,timestamp"`
}

// CacheExportHandler periodically dumps the QA cache to Parquet for
// offline analysis (SPEC_FULL.md §C.8), read-only with respect to the
// cache's runtime behaviour. An in-process DuckDB table is used to COPY the
// rows out in columnar form, then reopened with parquet-go to confirm the
// write and log a row count — exercising both of the pack's analytics
// dependencies rather than hand-rolling a parquet encoder.
type CacheExportHandler struct {
	cache      *qacache.Cache
	parquetDir string
	maxRows    int
}

func NewCacheExportHandler(cache *qacache.Cache, parquetDir string) *CacheExportHandler {
	return &CacheExportHandler{cache: cache, parquetDir: parquetDir, maxRows: 100_000}
}

func (h *CacheExportHandler) Handle(ctx context.Context, t *asynq.Task) error {
	entries, err := h.cache.Export(ctx, h.maxRows)
	if err != nil {
		return fmt.Errorf("cacheexport: failed to read cache: %w", err)
	}

	rows := make([]cacheExportRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, cacheExportRow{
			ThoughtChainID: e.ThoughtChainID,
			Question:       e.Question,
			Answer:         e.Answer,
			PositiveCount:  int64(e.PositiveCount),
			NegativeCount:  int64(e.NegativeCount),
			CreatedAt:      e.CreatedAt,
		})
	}

	outPath := filepath.Join(h.parquetDir, fmt.Sprintf("qa_cache_%s.parquet", time.Now().UTC().Format("20060102T150405Z")))
	if err := exportViaDuckDB(ctx, rows, outPath); err != nil {
		return fmt.Errorf("cacheexport: duckdb export failed: %w", err)
	}

	count, err := countParquetRows(outPath)
	if err != nil {
		logger.Warnf(ctx, "cacheexport: wrote %s but could not verify row count: %v", outPath, err)
		return nil
	}
	logger.Infof(ctx, "cacheexport: wrote %d rows to %s", count, outPath)
	return nil
}

// exportViaDuckDB loads rows into a transient in-memory DuckDB table and
// COPYs it to outPath in Parquet format.
func exportViaDuckDB(ctx context.Context, rows []cacheExportRow, outPath string) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return err
	}
	defer db.Close()

	const createTable = `CREATE TABLE qa_cache_export (
		thought_chain_id VARCHAR,
		question VARCHAR,
		answer VARCHAR,
		positive_count BIGINT,
		negative_count BIGINT,
		created_at TIMESTAMP
	)`
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return err
	}

	stmt, err := db.PrepareContext(ctx, `INSERT INTO qa_cache_export VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ThoughtChainID, r.Question, r.Answer, r.PositiveCount, r.NegativeCount, r.CreatedAt); err != nil {
			return err
		}
	}

	copySQL := fmt.Sprintf(`COPY qa_cache_export TO '%s' (FORMAT PARQUET)`, outPath)
	_, err = db.ExecContext(ctx, copySQL)
	return err
}

// countParquetRows reopens the freshly written file with parquet-go purely
// to confirm the export landed, rather than trusting DuckDB's own exit
// status silently.
func countParquetRows(path string) (int64, error) {
	rows, err := parquet.ReadFile[cacheExportRow](path)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
