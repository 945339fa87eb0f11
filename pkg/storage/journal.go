// Package storage 把状态迁移、刷写审计与 pipeline 运行记录写入本地 SQLite。
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/httprunner/FlashAgent/internal/agent/device"
	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/httprunner/FlashAgent/internal/config"
	"github.com/httprunner/FlashAgent/internal/tools"
	"github.com/httprunner/FlashAgent/pkg/pipeline"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	defaultDBFileName = "journal.sqlite"

	transitionsTable  = "device_transitions"
	flashAuditTable   = "flash_audits"
	pipelineRunsTable = "pipeline_runs"

	// 输出可能很长，入库前截断
	maxOutputLen = 4096
)

// Transition 是一条已记录的状态迁移。
type Transition struct {
	ID            int64
	State         device.State
	PreloaderMode string
	Seq           uint64
	ChangedAt     time.Time
}

// FlashEntry 是一条刷写审计记录。
type FlashEntry struct {
	ID        int64
	Partition string
	Image     string
	ImageSize int64
	Tier      string
	State     device.State
	Success   bool
	Error     string
	CreatedAt time.Time
}

// Journal 是本地审计日志，实现 gate.Auditor 与 pipeline.RunRecorder。
// 状态迁移经 TransitionWriter 异步写入。
type Journal struct {
	db   *sql.DB
	path string

	closeOnce sync.Once
	closeErr  error
}

var (
	_ gate.Auditor         = (*Journal)(nil)
	_ pipeline.RunRecorder = (*Journal)(nil)
)

// Open 打开（必要时创建）journal；path 为空时使用 ResolveDatabasePath。
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		resolved, err := ResolveDatabasePath()
		if err != nil {
			return nil, err
		}
		path = resolved
	} else if err := ensureDirExists(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: open sqlite database failed")
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("storage: journal opened")
	return &Journal{db: db, path: path}, nil
}

// ResolveDatabasePath 返回 journal 路径，优先读取 FLASHAGENT_JOURNAL_DB_PATH，
// 否则放在 XDG 数据目录下，父目录不存在时创建。
func ResolveDatabasePath() (string, error) {
	if custom := config.String(config.EnvJournalDBPath, ""); custom != "" {
		if err := ensureDirExists(filepath.Dir(custom)); err != nil {
			return "", err
		}
		return custom, nil
	}
	dir := tools.DataDir()
	if err := ensureDirExists(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultDBFileName), nil
}

func ensureDirExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return pkgerrors.Wrapf(err, "storage: create dir %s failed", path)
	}
	return nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return pkgerrors.Wrapf(err, "storage: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + transitionsTable + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			state TEXT NOT NULL,
			preloader_mode TEXT,
			seq INTEGER NOT NULL,
			changed_at INTEGER NOT NULL,
			reported INTEGER NOT NULL DEFAULT 0,
			reported_at INTEGER,
			report_error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + transitionsTable + `_reported ON ` + transitionsTable + `(reported);`,
		`CREATE TABLE IF NOT EXISTS ` + flashAuditTable + ` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			partition TEXT NOT NULL,
			image TEXT NOT NULL,
			image_size INTEGER,
			tier TEXT NOT NULL,
			state TEXT,
			success INTEGER NOT NULL,
			output TEXT,
			error TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ` + pipelineRunsTable + ` (
			id TEXT PRIMARY KEY,
			pipeline_id TEXT NOT NULL,
			dry_run INTEGER NOT NULL,
			destructive INTEGER NOT NULL,
			status TEXT NOT NULL,
			failed_step INTEGER,
			error TEXT,
			steps TEXT,
			started_at INTEGER,
			finished_at INTEGER
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return pkgerrors.Wrap(err, "storage: init sqlite schema failed")
		}
	}
	return nil
}

// Path 返回数据库文件路径。
func (j *Journal) Path() string { return j.path }

// Close 关闭数据库，可重复调用。
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.closeOnce.Do(func() {
		j.closeErr = j.db.Close()
	})
	return j.closeErr
}

// RecordTransition 写入一条状态迁移。
func (j *Journal) RecordTransition(ctx context.Context, snap device.Snapshot) error {
	changedAt := snap.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now()
	}
	err := execWithRetry(ctx, j.db,
		`INSERT INTO `+transitionsTable+` (state, preloader_mode, seq, changed_at) VALUES (?, ?, ?, ?)`,
		string(snap.State), string(snap.PreloaderMode), int64(snap.Seq), changedAt.UnixMilli())
	return pkgerrors.Wrap(err, "storage: insert transition failed")
}

// RecordFlash 实现 gate.Auditor；写入失败只记录日志。
func (j *Journal) RecordFlash(ctx context.Context, req gate.FlashRequest, output string, flashErr error) {
	errMsg := ""
	if flashErr != nil {
		errMsg = truncate(flashErr.Error(), 512)
	}
	err := execWithRetry(ctx, j.db,
		`INSERT INTO `+flashAuditTable+` (partition, image, image_size, tier, state, success, output, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Partition, req.Image, req.ImageSize, req.Tier.String(), string(req.State),
		boolToInt(flashErr == nil), truncate(output, maxOutputLen), errMsg, time.Now().UnixMilli())
	if err != nil {
		log.Error().Err(err).Str("partition", req.Partition).Msg("storage: record flash failed")
	}
}

// RecordRun 实现 pipeline.RunRecorder。
func (j *Journal) RecordRun(ctx context.Context, run *pipeline.Run) {
	if run == nil {
		return
	}
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		log.Error().Err(err).Str("run", run.ID).Msg("storage: marshal pipeline steps failed")
		return
	}
	err = execWithRetry(ctx, j.db,
		`INSERT INTO `+pipelineRunsTable+` (id, pipeline_id, dry_run, destructive, status, failed_step, error, steps, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, failed_step=excluded.failed_step,
			error=excluded.error, steps=excluded.steps, finished_at=excluded.finished_at`,
		run.ID, run.PipelineID, boolToInt(run.DryRun), boolToInt(run.Destructive), string(run.Status),
		run.FailedStep, run.Error, string(steps), run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli())
	if err != nil {
		log.Error().Err(err).Str("run", run.ID).Msg("storage: record pipeline run failed")
	}
}

// RecentTransitions 按时间倒序返回最近 limit 条迁移。
func (j *Journal) RecentTransitions(ctx context.Context, limit int) ([]Transition, error) {
	return j.queryTransitions(ctx,
		`SELECT id, state, preloader_mode, seq, changed_at FROM `+transitionsTable+` ORDER BY id DESC LIMIT ?`, limit)
}

// PendingTransitions 按写入顺序返回尚未上报（或上报失败）的迁移。
func (j *Journal) PendingTransitions(ctx context.Context, limit int) ([]Transition, error) {
	return j.queryTransitions(ctx,
		`SELECT id, state, preloader_mode, seq, changed_at FROM `+transitionsTable+` WHERE reported IN (0, -1) ORDER BY id ASC LIMIT ?`, limit)
}

func (j *Journal) queryTransitions(ctx context.Context, query string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: query transitions failed")
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t       Transition
			state   string
			mode    sql.NullString
			seq     int64
			changed int64
		)
		if err := rows.Scan(&t.ID, &state, &mode, &seq, &changed); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan transition failed")
		}
		t.State = device.State(state)
		t.PreloaderMode = strings.TrimSpace(mode.String)
		t.Seq = uint64(seq)
		t.ChangedAt = time.UnixMilli(changed)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "storage: iterate transitions failed")
	}
	return out, nil
}

// RecentFlashes 按时间倒序返回最近 limit 条刷写审计。
func (j *Journal) RecentFlashes(ctx context.Context, limit int) ([]FlashEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, partition, image, image_size, tier, state, success, error, created_at
		FROM `+flashAuditTable+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: query flash audits failed")
	}
	defer rows.Close()

	var out []FlashEntry
	for rows.Next() {
		var (
			e       FlashEntry
			size    sql.NullInt64
			state   sql.NullString
			success int
			errMsg  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Partition, &e.Image, &size, &e.Tier, &state, &success, &errMsg, &created); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan flash audit failed")
		}
		e.ImageSize = size.Int64
		e.State = device.State(state.String)
		e.Success = success == 1
		e.Error = errMsg.String
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "storage: iterate flash audits failed")
	}
	return out, nil
}

// LookupRun 按 ID 读取 pipeline 运行记录。
func (j *Journal) LookupRun(ctx context.Context, id string) (*pipeline.Run, error) {
	var (
		run         pipeline.Run
		dryRun      int
		destructive int
		status      string
		errMsg      sql.NullString
		steps       sql.NullString
		started     int64
		finished    int64
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT id, pipeline_id, dry_run, destructive, status, failed_step, error, steps, started_at, finished_at
		FROM `+pipelineRunsTable+` WHERE id = ?`, id).
		Scan(&run.ID, &run.PipelineID, &dryRun, &destructive, &status, &run.FailedStep, &errMsg, &steps, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.Wrapf(pipeline.ErrPipelineNotFound, "run %s", id)
		}
		return nil, pkgerrors.Wrap(err, "storage: query pipeline run failed")
	}
	run.DryRun = dryRun == 1
	run.Destructive = destructive == 1
	run.Status = pipeline.Status(status)
	run.Error = errMsg.String
	run.StartedAt = time.UnixMilli(started)
	run.FinishedAt = time.UnixMilli(finished)
	if steps.Valid && steps.String != "" {
		if err := json.Unmarshal([]byte(steps.String), &run.Steps); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: decode pipeline steps failed")
		}
	}
	return &run, nil
}

// MarkReported 标记迁移已上报。
func (j *Journal) MarkReported(ctx context.Context, id int64) error {
	err := execWithRetry(ctx, j.db,
		`UPDATE `+transitionsTable+` SET reported=1, reported_at=?, report_error=NULL WHERE id=?`,
		time.Now().UnixMilli(), id)
	return pkgerrors.Wrap(err, "storage: mark transition reported")
}

// MarkFailed 标记迁移上报失败，下一轮会重新尝试。
func (j *Journal) MarkFailed(ctx context.Context, id int64, reportErr error) error {
	msg := ""
	if reportErr != nil {
		msg = truncate(reportErr.Error(), 512)
	}
	err := execWithRetry(ctx, j.db,
		`UPDATE `+transitionsTable+` SET reported=-1, reported_at=?, report_error=? WHERE id=?`,
		time.Now().UnixMilli(), msg, id)
	return pkgerrors.Wrap(err, "storage: mark transition failed")
}

func execWithRetry(ctx context.Context, db *sql.DB, stmt string, args ...any) error {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := db.ExecContext(ctx, stmt, args...)
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) || attempt == maxAttempts-1 {
			return err
		}
		backoff := time.Duration(attempt+1) * 200 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
