package sqlite

const schema = `
-- One row per CLI command invocation
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    provider TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running', 'succeeded', 'failed')),
    records INTEGER NOT NULL DEFAULT 0,
    failure_rate REAL,
    error TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_command ON runs(command);

-- Judge verdicts, one row per record and failure mode
CREATE TABLE IF NOT EXISTS judge_rows (
    run_id TEXT NOT NULL,
    trace_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    score INTEGER NOT NULL CHECK(score IN (0, 1)),
    response TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, trace_id, mode),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_judge_rows_mode ON judge_rows(run_id, mode);

-- Correction loop progress
CREATE TABLE IF NOT EXISTS loop_iterations (
    run_id TEXT NOT NULL,
    iteration INTEGER NOT NULL,
    total_records INTEGER NOT NULL,
    failed_records INTEGER NOT NULL,
    corrected INTEGER NOT NULL DEFAULT 0,
    failure_rate REAL NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (run_id, iteration),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`
