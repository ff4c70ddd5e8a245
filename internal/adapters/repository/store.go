// Package repository persists training runs, model versions, prediction
// results and recalculation audits in SQLite.
//
// SQLite keeps the single-process deployment self-contained while making
// training history (including failures) queryable rather than console-only.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/talentops/skillcast/internal/domain/model"
)

// Sentinel error kinds for this package.
var (
	ErrStore    = errors.New("store operation failed")
	ErrNotFound = errors.New("record not found")
)

// Store wraps the SQLite database. Safe for concurrent use; writes are
// serialized by a mutex because SQLite allows a single writer.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS training_runs (
	id                 TEXT PRIMARY KEY,
	version            TEXT NOT NULL,
	started_at         TIMESTAMP NOT NULL,
	duration_ms        INTEGER NOT NULL,
	dataset            TEXT,
	hyperparameters    TEXT,
	metrics            TEXT,
	feature_importance TEXT,
	status             TEXT NOT NULL,
	error_message      TEXT,
	notes              TEXT
);

CREATE TABLE IF NOT EXISTS model_versions (
	version_id        TEXT PRIMARY KEY,
	artifact_location TEXT NOT NULL,
	f1_weighted       REAL NOT NULL,
	metrics           TEXT,
	stage             TEXT NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	promoted_at       TIMESTAMP
);

CREATE TABLE IF NOT EXISTS predictions (
	job_role_id    TEXT NOT NULL,
	skill_id       TEXT NOT NULL,
	horizon_months INTEGER NOT NULL,
	level          TEXT NOT NULL,
	score          REAL NOT NULL,
	engine         TEXT NOT NULL,
	model_version  TEXT,
	rationale      TEXT,
	updated_at     TIMESTAMP NOT NULL,
	PRIMARY KEY (job_role_id, skill_id, horizon_months)
);

CREATE TABLE IF NOT EXISTS recalculation_audits (
	id             TEXT PRIMARY KEY,
	started_at     TIMESTAMP NOT NULL,
	duration_ms    INTEGER NOT NULL,
	trigger_source TEXT NOT NULL,
	engine         TEXT NOT NULL,
	horizon_months INTEGER NOT NULL,
	pair_count     INTEGER NOT NULL,
	failure_count  INTEGER NOT NULL,
	params         TEXT
);
`

// Open opens (creating if needed) the store at the given path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %w", ErrStore, dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStore, path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: connect %s: %w", ErrStore, path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: applying schema: %w", ErrStore, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTrainingRun inserts or replaces a run record.
func (s *Store) SaveTrainingRun(ctx context.Context, run model.TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hyper, err := json.Marshal(run.Hyperparameters)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	var metricsJSON []byte
	if run.Metrics != nil {
		if metricsJSON, err = json.Marshal(run.Metrics); err != nil {
			return fmt.Errorf("%w: %w", ErrStore, err)
		}
	}
	importance, err := json.Marshal(run.FeatureImportance)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO training_runs
		(id, version, started_at, duration_ms, dataset, hyperparameters, metrics, feature_importance, status, error_message, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Version, run.StartedAt.UTC(), run.Duration.Milliseconds(),
		run.Dataset, string(hyper), nullable(metricsJSON), string(importance),
		string(run.Status), run.ErrorMessage, run.Notes,
	)
	if err != nil {
		return fmt.Errorf("%w: saving run %s: %w", ErrStore, run.ID, err)
	}
	return nil
}

// ListTrainingRuns returns runs newest-first, optionally filtered by status.
func (s *Store) ListTrainingRuns(ctx context.Context, status model.RunStatus) ([]model.TrainingRun, error) {
	query := `SELECT id, version, started_at, duration_ms, dataset, hyperparameters, metrics, feature_importance, status, error_message, notes
		FROM training_runs`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.TrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return runs, nil
}

// GetTrainingRun fetches one run by id.
func (s *Store) GetTrainingRun(ctx context.Context, id string) (model.TrainingRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, version, started_at, duration_ms, dataset, hyperparameters, metrics, feature_importance, status, error_message, notes
		FROM training_runs WHERE id = ?`, id)
	if err != nil {
		return model.TrainingRun{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return model.TrainingRun{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return scanRun(rows)
}

func scanRun(rows *sql.Rows) (model.TrainingRun, error) {
	var (
		run        model.TrainingRun
		durationMS int64
		hyper      string
		metricsRaw sql.NullString
		importance string
		status     string
	)
	if err := rows.Scan(&run.ID, &run.Version, &run.StartedAt, &durationMS, &run.Dataset,
		&hyper, &metricsRaw, &importance, &status, &run.ErrorMessage, &run.Notes); err != nil {
		return model.TrainingRun{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.Status = model.RunStatus(status)
	if err := json.Unmarshal([]byte(hyper), &run.Hyperparameters); err != nil {
		return model.TrainingRun{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if metricsRaw.Valid && metricsRaw.String != "" {
		run.Metrics = &model.Metrics{}
		if err := json.Unmarshal([]byte(metricsRaw.String), run.Metrics); err != nil {
			return model.TrainingRun{}, fmt.Errorf("%w: %w", ErrStore, err)
		}
	}
	if importance != "" {
		if err := json.Unmarshal([]byte(importance), &run.FeatureImportance); err != nil {
			return model.TrainingRun{}, fmt.Errorf("%w: %w", ErrStore, err)
		}
	}
	return run, nil
}

// InsertModelVersion records a freshly trained version in staging.
func (s *Store) InsertModelVersion(ctx context.Context, v model.ModelVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metricsJSON []byte
	var err error
	if v.Metrics != nil {
		if metricsJSON, err = json.Marshal(v.Metrics); err != nil {
			return fmt.Errorf("%w: %w", ErrStore, err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_versions (version_id, artifact_location, f1_weighted, metrics, stage, created_at, promoted_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		v.VersionID, v.ArtifactLocation, v.F1Weighted, nullable(metricsJSON),
		string(v.Stage), v.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: inserting version %s: %w", ErrStore, v.VersionID, err)
	}
	return nil
}

// ProductionVersion returns the single version holding production stage.
func (s *Store) ProductionVersion(ctx context.Context) (model.ModelVersion, error) {
	return s.versionWhere(ctx, "stage = ?", string(model.StageProduction))
}

// GetModelVersion fetches one version by id.
func (s *Store) GetModelVersion(ctx context.Context, id string) (model.ModelVersion, error) {
	return s.versionWhere(ctx, "version_id = ?", id)
}

func (s *Store) versionWhere(ctx context.Context, where string, arg any) (model.ModelVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version_id, artifact_location, f1_weighted, metrics, stage, created_at, promoted_at
		FROM model_versions WHERE `+where, arg)

	var (
		v          model.ModelVersion
		metricsRaw sql.NullString
		stage      string
		promotedAt sql.NullTime
	)
	err := row.Scan(&v.VersionID, &v.ArtifactLocation, &v.F1Weighted, &metricsRaw, &stage, &v.CreatedAt, &promotedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ModelVersion{}, ErrNotFound
	}
	if err != nil {
		return model.ModelVersion{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	v.Stage = model.Stage(stage)
	if promotedAt.Valid {
		t := promotedAt.Time
		v.PromotedAt = &t
	}
	if metricsRaw.Valid && metricsRaw.String != "" {
		v.Metrics = &model.Metrics{}
		if err := json.Unmarshal([]byte(metricsRaw.String), v.Metrics); err != nil {
			return model.ModelVersion{}, fmt.Errorf("%w: %w", ErrStore, err)
		}
	}
	return v, nil
}

// PromoteModelVersion demotes the current production version to archived and
// promotes the named version, in one transaction: either both transitions
// land or neither does.
func (s *Store) PromoteModelVersion(ctx context.Context, versionID string, promotedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE model_versions SET stage = ? WHERE stage = ?`,
		string(model.StageArchived), string(model.StageProduction)); err != nil {
		return fmt.Errorf("%w: demoting production: %w", ErrStore, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE model_versions SET stage = ?, promoted_at = ? WHERE version_id = ?`,
		string(model.StageProduction), promotedAt.UTC(), versionID)
	if err != nil {
		return fmt.Errorf("%w: promoting %s: %w", ErrStore, versionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: version %s", ErrNotFound, versionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing promotion of %s: %w", ErrStore, versionID, err)
	}
	return nil
}

// ListModelVersions returns all versions newest-first.
func (s *Store) ListModelVersions(ctx context.Context) ([]model.ModelVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version_id, artifact_location, f1_weighted, metrics, stage, created_at, promoted_at
		FROM model_versions ORDER BY created_at DESC, version_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var versions []model.ModelVersion
	for rows.Next() {
		var (
			v          model.ModelVersion
			metricsRaw sql.NullString
			stage      string
			promotedAt sql.NullTime
		)
		if err := rows.Scan(&v.VersionID, &v.ArtifactLocation, &v.F1Weighted, &metricsRaw, &stage, &v.CreatedAt, &promotedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStore, err)
		}
		v.Stage = model.Stage(stage)
		if promotedAt.Valid {
			t := promotedAt.Time
			v.PromotedAt = &t
		}
		if metricsRaw.Valid && metricsRaw.String != "" {
			v.Metrics = &model.Metrics{}
			if err := json.Unmarshal([]byte(metricsRaw.String), v.Metrics); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrStore, err)
			}
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return versions, nil
}

// UpsertPrediction stores the latest prediction for a (role, skill, horizon)
// triple.
func (s *Store) UpsertPrediction(ctx context.Context, jobRoleID, skillID string, horizonMonths int, result model.PredictionResult, modelVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO predictions
		(job_role_id, skill_id, horizon_months, level, score, engine, model_version, rationale, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobRoleID, skillID, horizonMonths, string(result.Level), result.Score,
		string(result.Engine), modelVersion, result.Rationale, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: saving prediction %s/%s: %w", ErrStore, jobRoleID, skillID, err)
	}
	return nil
}

// CountPredictions returns the number of stored predictions.
func (s *Store) CountPredictions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return n, nil
}

// SaveRecalculationAudit appends one audit record.
func (s *Store) SaveRecalculationAudit(ctx context.Context, audit model.RecalculationAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := json.Marshal(audit.Params)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recalculation_audits
		(id, started_at, duration_ms, trigger_source, engine, horizon_months, pair_count, failure_count, params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		audit.ID, audit.StartedAt.UTC(), audit.Duration.Milliseconds(), audit.Trigger,
		string(audit.Engine), audit.HorizonMonths, audit.PairCount, audit.FailureCount, string(params),
	)
	if err != nil {
		return fmt.Errorf("%w: saving audit %s: %w", ErrStore, audit.ID, err)
	}
	return nil
}

// ListRecalculationAudits returns audits newest-first.
func (s *Store) ListRecalculationAudits(ctx context.Context) ([]model.RecalculationAudit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, trigger_source, engine, horizon_months, pair_count, failure_count, params
		FROM recalculation_audits ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var audits []model.RecalculationAudit
	for rows.Next() {
		var (
			a          model.RecalculationAudit
			durationMS int64
			engine     string
			params     string
		)
		if err := rows.Scan(&a.ID, &a.StartedAt, &durationMS, &a.Trigger, &engine,
			&a.HorizonMonths, &a.PairCount, &a.FailureCount, &params); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStore, err)
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		a.Engine = model.EngineTag(engine)
		if params != "" {
			if err := json.Unmarshal([]byte(params), &a.Params); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrStore, err)
			}
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return audits, nil
}

// nullable converts an empty JSON blob to NULL.
func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
