// Package history 将每次评估的识别结果追加到 SQLite，便于跨运行对比
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
)

// Entry 一条历史识别记录
type Entry struct {
	ID                    int64
	RunID                 string
	SampleID              int
	Service               string
	WER                   float64
	CER                   float64
	ProcessingTimeSeconds *float64
	QualityScore          float64
	RunDate               string
	CreatedAt             time.Time
}

// Store SQLite 历史记录
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open 打开（必要时创建）历史数据库
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建历史数据库目录失败: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开历史数据库失败: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接历史数据库失败: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化历史数据库失败: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    sample_count INTEGER NOT NULL,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transcriptions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    sample_id INTEGER NOT NULL,
    service TEXT NOT NULL,
    wer REAL NOT NULL,
    cer REAL NOT NULL,
    processing_time_seconds REAL,
    quality_score REAL NOT NULL,
    run_date TEXT,
    created_at TEXT NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_sample_created ON transcriptions(sample_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record 在一个事务中写入一次运行新评估的全部识别结果
func (s *Store) Record(ctx context.Context, runID string, evals []models.SampleEvaluation) (err error) {
	now := s.clock().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs(run_id, sample_count, created_at) VALUES(?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET sample_count = runs.sample_count + excluded.sample_count`,
		runID, len(evals), now); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcriptions(run_id, sample_id, service, wer, cer, processing_time_seconds, quality_score, run_date, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range evals {
		for _, t := range e.Transcriptions {
			var runDate sql.NullString
			if t.RunDate != nil {
				runDate = sql.NullString{String: *t.RunDate, Valid: true}
			}
			var elapsed sql.NullFloat64
			if t.ProcessingTimeSeconds != nil {
				elapsed = sql.NullFloat64{Float64: *t.ProcessingTimeSeconds, Valid: true}
			}
			if _, err = stmt.ExecContext(ctx, runID, e.SampleID, t.Service, t.WER, t.CER,
				elapsed, e.AudioQualityScore, runDate, now); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// ListSample 按时间升序返回样本的历史识别记录，limit <= 0 时返回最多 100 条
func (s *Store) ListSample(ctx context.Context, sampleID int, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, sample_id, service, wer, cer, processing_time_seconds, quality_score, run_date, created_at
		 FROM transcriptions WHERE sample_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, sampleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var elapsed sql.NullFloat64
		var runDate sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.RunID, &e.SampleID, &e.Service, &e.WER, &e.CER,
			&elapsed, &e.QualityScore, &runDate, &created); err != nil {
			return nil, err
		}
		if elapsed.Valid {
			v := elapsed.Float64
			e.ProcessingTimeSeconds = &v
		}
		e.RunDate = runDate.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountRuns 返回已记录的运行次数
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}
