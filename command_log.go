package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

////////////////////////////////////////////////////////////////////////////////
// 指令日志（sqlite）
////////////////////////////////////////////////////////////////////////////////

const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusStopped  = "stopped"
	RunStatusFailed   = "failed"
)

// RunRecord 一次演奏记录
type RunRecord struct {
	ID         string     `json:"id"`
	SourceFile string     `json:"source_file"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
}

// DispatchRecord 一条已发送的指令
type DispatchRecord struct {
	RunID        string  `json:"run_id"`
	Track        string  `json:"track"`
	Loop         int     `json:"loop"`
	Action       string  `json:"action"`
	TargetTime   float64 `json:"target_time"`
	SendTime     float64 `json:"send_time"`
	PositionZ    float64 `json:"position_z"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	LatenessMS   float64 `json:"lateness_ms"`
}

// CommandLog 指令日志数据库
type CommandLog struct {
	db *sql.DB
}

// OpenCommandLog 打开（必要时创建）指令日志数据库
func OpenCommandLog(dbPath string) (*CommandLog, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "创建数据目录失败")
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "打开数据库失败 %s", dbPath)
	}
	// 每个调度协程都会写入，单连接避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source_file TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS dispatched_commands (
		run_id TEXT NOT NULL,
		track TEXT NOT NULL,
		loop INTEGER NOT NULL,
		action TEXT NOT NULL,
		target_time REAL NOT NULL,
		send_time REAL NOT NULL,
		position_z REAL NOT NULL,
		velocity REAL NOT NULL,
		acceleration REAL NOT NULL,
		lateness_ms REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dispatched_run ON dispatched_commands(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "创建数据表失败")
	}

	return &CommandLog{db: db}, nil
}

func (cl *CommandLog) Close() error {
	return cl.db.Close()
}

// BeginRun 新建一次演奏记录，返回 run ID
func (cl *CommandLog) BeginRun(sourceFile string) (string, error) {
	id := uuid.NewString()
	_, err := cl.db.Exec(`INSERT INTO runs (id, source_file, started_at, status) VALUES (?, ?, ?, ?)`,
		id, sourceFile, time.Now().UnixMilli(), RunStatusRunning)
	if err != nil {
		return "", errors.Wrap(err, "写入演奏记录失败")
	}
	return id, nil
}

// Record 记录一条已发送的指令
func (cl *CommandLog) Record(rec DispatchRecord) error {
	_, err := cl.db.Exec(`INSERT INTO dispatched_commands
		(run_id, track, loop, action, target_time, send_time, position_z, velocity, acceleration, lateness_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Track, rec.Loop, rec.Action, rec.TargetTime, rec.SendTime,
		rec.PositionZ, rec.Velocity, rec.Acceleration, rec.LatenessMS)
	if err != nil {
		return errors.Wrap(err, "写入指令日志失败")
	}
	return nil
}

// FinishRun 结束演奏记录
func (cl *CommandLog) FinishRun(runID, status string) error {
	res, err := cl.db.Exec(`UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UnixMilli(), status, runID)
	if err != nil {
		return errors.Wrap(err, "更新演奏记录失败")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("演奏记录不存在: %s", runID)
	}
	return nil
}

// ListRuns 最近的演奏记录（新的在前）
func (cl *CommandLog) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := cl.db.Query(`SELECT id, source_file, started_at, finished_at, status
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "查询演奏记录失败")
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var run RunRecord
		var startedAt int64
		var finishedAt sql.NullInt64
		if err := rows.Scan(&run.ID, &run.SourceFile, &startedAt, &finishedAt, &run.Status); err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(startedAt)
		if finishedAt.Valid {
			t := time.UnixMilli(finishedAt.Int64)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunCommands 某次演奏已发送的指令（按写入顺序）
func (cl *CommandLog) RunCommands(runID string) ([]DispatchRecord, error) {
	rows, err := cl.db.Query(`SELECT run_id, track, loop, action, target_time, send_time,
		position_z, velocity, acceleration, lateness_ms
		FROM dispatched_commands WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "查询指令日志失败")
	}
	defer rows.Close()

	records := []DispatchRecord{}
	for rows.Next() {
		var rec DispatchRecord
		if err := rows.Scan(&rec.RunID, &rec.Track, &rec.Loop, &rec.Action, &rec.TargetTime,
			&rec.SendTime, &rec.PositionZ, &rec.Velocity, &rec.Acceleration, &rec.LatenessMS); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
