package repo

import (
    "context"
    "errors"
    "time"

    "github.com/example/okr-pulse/internal/config"
    "github.com/example/okr-pulse/internal/domain"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// Migrate creates tables and indexes when missing. Idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS okrs(
            id TEXT PRIMARY KEY,
            objective_number INT NOT NULL,
            objective_title TEXT NOT NULL,
            key_result_number INT,
            key_result_text TEXT,
            okr_period TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
        `CREATE TABLE IF NOT EXISTS issues(
            key TEXT PRIMARY KEY,
            summary TEXT NOT NULL,
            description TEXT,
            type TEXT,
            status TEXT,
            assignee TEXT,
            first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
            last_seen TIMESTAMPTZ NOT NULL DEFAULT now())`,
        `CREATE TABLE IF NOT EXISTS issue_okr_mappings(
            id BIGSERIAL PRIMARY KEY,
            issue_key TEXT NOT NULL REFERENCES issues(key),
            okr_id TEXT NOT NULL REFERENCES okrs(id),
            confidence DOUBLE PRECISION NOT NULL,
            reasoning TEXT,
            category TEXT NOT NULL,
            week_start DATE NOT NULL,
            analyzed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            UNIQUE (issue_key, okr_id, week_start))`,
        `CREATE TABLE IF NOT EXISTS unaligned_issues(
            id BIGSERIAL PRIMARY KEY,
            issue_key TEXT NOT NULL REFERENCES issues(key),
            week_start DATE NOT NULL,
            reasoning TEXT,
            analyzed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            UNIQUE (issue_key, week_start))`,
        `CREATE TABLE IF NOT EXISTS weekly_snapshots(
            id BIGSERIAL PRIMARY KEY,
            week_start DATE NOT NULL,
            week_end DATE NOT NULL,
            total_issues INT NOT NULL,
            aligned_issues INT NOT NULL,
            unaligned_issues INT NOT NULL,
            okr_period TEXT NOT NULL,
            analyzed_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
        `CREATE TABLE IF NOT EXISTS job_runs(
            id BIGSERIAL PRIMARY KEY,
            started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            finished_at TIMESTAMPTZ,
            okr_period TEXT,
            issues_scanned INT,
            issues_aligned INT,
            issues_unaligned INT,
            success BOOLEAN,
            error TEXT)`,
        `CREATE INDEX IF NOT EXISTS idx_mappings_week ON issue_okr_mappings(week_start)`,
        `CREATE INDEX IF NOT EXISTS idx_mappings_okr ON issue_okr_mappings(okr_id, week_start)`,
        `CREATE INDEX IF NOT EXISTS idx_unaligned_week ON unaligned_issues(week_start)`,
    }
    for _, q := range stmts {
        if _, err := r.db.Pool.Exec(ctx, q); err != nil { return err }
    }
    return nil
}

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// ---- OKR catalog ----

func (r *Repository) UpsertOKRs(ctx context.Context, okrs []domain.OKR) error {
    if len(okrs) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `
        INSERT INTO okrs(id, objective_number, objective_title, key_result_number, key_result_text, okr_period)
        VALUES($1,$2,$3,$4,$5,$6)
        ON CONFLICT(id) DO UPDATE SET
            objective_number=EXCLUDED.objective_number,
            objective_title=EXCLUDED.objective_title,
            key_result_number=EXCLUDED.key_result_number,
            key_result_text=EXCLUDED.key_result_text,
            okr_period=EXCLUDED.okr_period`
    for _, o := range okrs {
        batch.Queue(q, o.ID, o.ObjectiveNumber, o.ObjectiveTitle, o.KeyResultNumber, o.KeyResultText, o.Period)
    }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range okrs { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

func (r *Repository) OKRsByPeriod(ctx context.Context, period string) ([]domain.OKR, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT id, objective_number, objective_title, key_result_number,
        COALESCE(key_result_text,''), okr_period FROM okrs WHERE okr_period=$1
        ORDER BY objective_number, key_result_number`, period)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.OKR
    for rows.Next() {
        var o domain.OKR
        if err := rows.Scan(&o.ID, &o.ObjectiveNumber, &o.ObjectiveTitle, &o.KeyResultNumber, &o.KeyResultText, &o.Period); err != nil { return nil, err }
        out = append(out, o)
    }
    return out, rows.Err()
}

// ---- Issues ----

func (r *Repository) UpsertIssue(ctx context.Context, i domain.Issue) error {
    // first_seen is set once; last_seen refreshes on every re-ingestion
    const q = `
        INSERT INTO issues(key, summary, description, type, status, assignee)
        VALUES($1,$2,$3,$4,$5,$6)
        ON CONFLICT(key) DO UPDATE SET
            summary=EXCLUDED.summary,
            description=EXCLUDED.description,
            type=EXCLUDED.type,
            status=EXCLUDED.status,
            assignee=EXCLUDED.assignee,
            last_seen=now()`
    _, err := r.db.Pool.Exec(ctx, q, i.Key, i.Summary, i.Description, i.Type, i.Status, i.Assignee)
    return err
}

// GetIssue returns nil without error when the key is unknown.
func (r *Repository) GetIssue(ctx context.Context, key string) (*domain.Issue, error) {
    const q = `SELECT key, summary, COALESCE(description,''), COALESCE(type,''), COALESCE(status,''),
        COALESCE(assignee,''), first_seen, last_seen FROM issues WHERE key=$1`
    row := r.db.Pool.QueryRow(ctx, q, key)
    var i domain.Issue
    if err := row.Scan(&i.Key, &i.Summary, &i.Description, &i.Type, &i.Status, &i.Assignee, &i.FirstSeen, &i.LastSeen); err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
        return nil, err
    }
    return &i, nil
}

// ---- Mappings ----

func (r *Repository) UpsertMappings(ctx context.Context, ms []domain.Mapping) error {
    if len(ms) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `
        INSERT INTO issue_okr_mappings(issue_key, okr_id, confidence, reasoning, category, week_start)
        VALUES($1,$2,$3,$4,$5,$6)
        ON CONFLICT (issue_key, okr_id, week_start) DO UPDATE SET
            confidence=EXCLUDED.confidence,
            reasoning=EXCLUDED.reasoning,
            category=EXCLUDED.category,
            analyzed_at=now()`
    for _, m := range ms {
        batch.Queue(q, m.IssueKey, m.OKRID, m.Confidence, m.Reasoning, m.Category, m.WeekStart)
    }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range ms { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

func (r *Repository) MappingsForWeek(ctx context.Context, weekStart time.Time) ([]domain.Mapping, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT issue_key, okr_id, confidence, COALESCE(reasoning,''),
        category, week_start, analyzed_at FROM issue_okr_mappings WHERE week_start=$1 ORDER BY id`, weekStart)
    if err != nil { return nil, err }
    defer rows.Close()
    return scanMappings(rows)
}

func (r *Repository) MappingsForOKR(ctx context.Context, okrID string, weekStart time.Time) ([]domain.Mapping, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT issue_key, okr_id, confidence, COALESCE(reasoning,''),
        category, week_start, analyzed_at FROM issue_okr_mappings WHERE okr_id=$1 AND week_start=$2 ORDER BY id`, okrID, weekStart)
    if err != nil { return nil, err }
    defer rows.Close()
    return scanMappings(rows)
}

func scanMappings(rows pgx.Rows) ([]domain.Mapping, error) {
    var out []domain.Mapping
    for rows.Next() {
        var m domain.Mapping
        if err := rows.Scan(&m.IssueKey, &m.OKRID, &m.Confidence, &m.Reasoning, &m.Category, &m.WeekStart, &m.AnalyzedAt); err != nil { return nil, err }
        out = append(out, m)
    }
    return out, rows.Err()
}

// ---- Unaligned issues ----

func (r *Repository) UpsertUnalignedIssues(ctx context.Context, us []domain.UnalignedIssue) error {
    if len(us) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `
        INSERT INTO unaligned_issues(issue_key, week_start, reasoning)
        VALUES($1,$2,$3)
        ON CONFLICT (issue_key, week_start) DO UPDATE SET
            reasoning=EXCLUDED.reasoning,
            analyzed_at=now()`
    for _, u := range us { batch.Queue(q, u.IssueKey, u.WeekStart, u.Reasoning) }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range us { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

func (r *Repository) UnalignedForWeek(ctx context.Context, weekStart time.Time) ([]domain.UnalignedIssue, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT issue_key, week_start, COALESCE(reasoning,''), analyzed_at
        FROM unaligned_issues WHERE week_start=$1 ORDER BY id`, weekStart)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.UnalignedIssue
    for rows.Next() {
        var u domain.UnalignedIssue
        if err := rows.Scan(&u.IssueKey, &u.WeekStart, &u.Reasoning, &u.AnalyzedAt); err != nil { return nil, err }
        out = append(out, u)
    }
    return out, rows.Err()
}

// ---- Snapshots ----

// InsertSnapshot is append-only: one row per analysis run, never updated.
func (r *Repository) InsertSnapshot(ctx context.Context, s domain.WeeklySnapshot) error {
    const q = `INSERT INTO weekly_snapshots(week_start, week_end, total_issues, aligned_issues, unaligned_issues, okr_period)
        VALUES($1,$2,$3,$4,$5,$6)`
    _, err := r.db.Pool.Exec(ctx, q, s.WeekStart, s.WeekEnd, s.TotalIssues, s.AlignedIssues, s.UnalignedIssues, s.Period)
    return err
}

func (r *Repository) Snapshots(ctx context.Context, limit int) ([]domain.WeeklySnapshot, error) {
    if limit <= 0 { limit = 4 }
    rows, err := r.db.Pool.Query(ctx, `SELECT id, week_start, week_end, total_issues, aligned_issues,
        unaligned_issues, okr_period, analyzed_at FROM weekly_snapshots ORDER BY week_start DESC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.WeeklySnapshot
    for rows.Next() {
        var s domain.WeeklySnapshot
        if err := rows.Scan(&s.ID, &s.WeekStart, &s.WeekEnd, &s.TotalIssues, &s.AlignedIssues, &s.UnalignedIssues, &s.Period, &s.AnalyzedAt); err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

// CoverageTrends returns weekly mapping counts for one key result across the
// weeks covered by recent snapshots, oldest first.
func (r *Repository) CoverageTrends(ctx context.Context, okrID string, weeks int) ([]domain.TrendPoint, error) {
    snaps, err := r.Snapshots(ctx, weeks)
    if err != nil { return nil, err }
    if len(snaps) == 0 { return nil, nil }
    out := make([]domain.TrendPoint, 0, len(snaps))
    for i := len(snaps) - 1; i >= 0; i-- {
        var count int
        err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM issue_okr_mappings WHERE okr_id=$1 AND week_start=$2`,
            okrID, snaps[i].WeekStart).Scan(&count)
        if err != nil { return nil, err }
        out = append(out, domain.TrendPoint{WeekStart: snaps[i].WeekStart, IssueCount: count})
    }
    return out, nil
}

// ---- Job runs ----

func (r *Repository) StartJobRun(ctx context.Context, period string) (int64, error) {
    const q = `INSERT INTO job_runs(started_at, okr_period, success) VALUES(now(), $1, false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, period).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, scanned, aligned, unaligned int, success bool, errStr string) error {
    const q = `UPDATE job_runs SET finished_at=now(), issues_scanned=$2, issues_aligned=$3, issues_unaligned=$4, success=$5, error=$6 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, scanned, aligned, unaligned, success, errStr)
    return err
}

type LastRun struct {
    StartedAt       time.Time  `json:"started_at"`
    FinishedAt      *time.Time `json:"finished_at"`
    Period          string     `json:"okr_period"`
    IssuesScanned   int        `json:"issues_scanned"`
    IssuesAligned   int        `json:"issues_aligned"`
    IssuesUnaligned int        `json:"issues_unaligned"`
    Success         bool       `json:"success"`
    Error           string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    const q = `SELECT started_at, finished_at, coalesce(okr_period,''),
        coalesce(issues_scanned,0), coalesce(issues_aligned,0), coalesce(issues_unaligned,0),
        coalesce(success,false), coalesce(error,'')
        FROM job_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &LastRun{}
    if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.Period, &lr.IssuesScanned, &lr.IssuesAligned, &lr.IssuesUnaligned, &lr.Success, &lr.Error); err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
        return nil, err
    }
    return lr, nil
}
