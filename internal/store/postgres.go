package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/raiox/internal/db"
	"github.com/sells-group/raiox/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path reads prepared on each new connection.
var preparedStatements = map[string]string{
	"get_assessment":  `SELECT ` + strings.Join(assessmentCols, ", ") + ` FROM assessments WHERE id = $1`,
	"list_answers":    `SELECT ` + strings.Join(answerCols, ", ") + ` FROM answers WHERE assessment_id = $1 ORDER BY process_key, question_key`,
	"list_scores":     `SELECT ` + strings.Join(scoreCols, ", ") + ` FROM process_scores WHERE assessment_id = $1 ORDER BY process_key`,
	"list_findings":   `SELECT ` + strings.Join(findingCols, ", ") + ` FROM findings WHERE assessment_id = $1 ORDER BY type DESC, position`,
	"list_plan":       `SELECT ` + strings.Join(actionCols, ", ") + ` FROM selected_actions WHERE assessment_id = $1 ORDER BY position`,
	"get_latest":      `SELECT ` + strings.Join(assessmentCols, ", ") + ` FROM assessments WHERE company_id = $1 ORDER BY CASE WHEN status IN ('DRAFT', 'SUBMITTED') THEN 0 ELSE 1 END, created_at DESC LIMIT 1`,
	"list_gaps":       `SELECT ` + strings.Join(gapCols, ", ") + ` FROM gap_instances WHERE assessment_id = $1 ORDER BY gap_id`,
	"list_classified": `SELECT ` + strings.Join(classCols, ", ") + ` FROM cause_classifications WHERE assessment_id = $1 ORDER BY gap_id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id              TEXT PRIMARY KEY,
	company_id      TEXT NOT NULL,
	segment         TEXT NOT NULL DEFAULT 'C',
	status          TEXT NOT NULL DEFAULT 'DRAFT',
	cycle_no        INTEGER NOT NULL DEFAULT 1,
	catalog_version TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	submitted_at    TIMESTAMPTZ,
	closed_at       TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assessments_active_company
	ON assessments(company_id) WHERE status IN ('DRAFT', 'SUBMITTED');
CREATE INDEX IF NOT EXISTS idx_assessments_company ON assessments(company_id, created_at DESC);

CREATE TABLE IF NOT EXISTS answers (
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	process_key   TEXT NOT NULL,
	question_key  TEXT NOT NULL,
	value         SMALLINT NOT NULL CHECK (value BETWEEN 0 AND 10),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (assessment_id, process_key, question_key)
);

CREATE TABLE IF NOT EXISTS process_scores (
	assessment_id    TEXT NOT NULL REFERENCES assessments(id),
	process_key      TEXT NOT NULL,
	score_numeric    DOUBLE PRECISION NOT NULL,
	band             TEXT NOT NULL,
	dimension_scores JSONB NOT NULL,
	rule_used        TEXT NOT NULL,
	answer_count     INTEGER NOT NULL,
	PRIMARY KEY (assessment_id, process_key)
);

CREATE TABLE IF NOT EXISTS gap_instances (
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	gap_id        TEXT NOT NULL,
	process_key   TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'CAUSE_PENDING',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (assessment_id, gap_id)
);

CREATE TABLE IF NOT EXISTS cause_answers (
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	gap_id        TEXT NOT NULL,
	question_id   TEXT NOT NULL,
	answer        SMALLINT NOT NULL CHECK (answer BETWEEN 1 AND 5),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (assessment_id, gap_id, question_id)
);

CREATE TABLE IF NOT EXISTS cause_classifications (
	assessment_id   TEXT NOT NULL REFERENCES assessments(id),
	gap_id          TEXT NOT NULL,
	cause_primary   TEXT NOT NULL,
	cause_secondary TEXT NOT NULL DEFAULT '',
	evidence        JSONB NOT NULL,
	classified_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (assessment_id, gap_id)
);

CREATE TABLE IF NOT EXISTS findings (
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	type          TEXT NOT NULL,
	position      SMALLINT NOT NULL CHECK (position BETWEEN 1 AND 3),
	process_key   TEXT NOT NULL,
	payload       JSONB NOT NULL,
	trace         JSONB NOT NULL,
	is_fallback   BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (assessment_id, type, position)
);

CREATE TABLE IF NOT EXISTS selected_actions (
	assessment_id   TEXT NOT NULL REFERENCES assessments(id),
	action_key      TEXT NOT NULL,
	position        SMALLINT NOT NULL,
	owner_name      TEXT NOT NULL,
	metric_text     TEXT NOT NULL,
	checkpoint_date TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'NOT_STARTED',
	dropped_reason  TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (assessment_id, action_key),
	UNIQUE (assessment_id, position)
);

CREATE TABLE IF NOT EXISTS dod_confirmations (
	assessment_id   TEXT NOT NULL REFERENCES assessments(id),
	action_key      TEXT NOT NULL,
	confirmed_items JSONB NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (assessment_id, action_key)
);

CREATE TABLE IF NOT EXISTS action_evidence (
	assessment_id   TEXT NOT NULL REFERENCES assessments(id),
	action_key      TEXT NOT NULL,
	evidence_text   TEXT NOT NULL,
	before_baseline TEXT NOT NULL,
	after_result    TEXT NOT NULL,
	declared_gain   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (assessment_id, action_key)
);

CREATE TABLE IF NOT EXISTS cycle_history (
	assessment_id  TEXT NOT NULL REFERENCES assessments(id),
	cycle_no       INTEGER NOT NULL,
	action_key     TEXT NOT NULL,
	position       SMALLINT NOT NULL,
	owner_name     TEXT NOT NULL,
	metric_text    TEXT NOT NULL,
	status         TEXT NOT NULL,
	dropped_reason TEXT NOT NULL DEFAULT '',
	declared_gain  TEXT NOT NULL DEFAULT '',
	archived_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (assessment_id, cycle_no, action_key)
);

CREATE TABLE IF NOT EXISTS diagnostic_snapshots (
	assessment_id    TEXT NOT NULL REFERENCES assessments(id),
	full_version     TEXT NOT NULL,
	cycle_no         INTEGER NOT NULL,
	catalog_version  TEXT NOT NULL,
	processes        JSONB NOT NULL,
	raios_x          JSONB NOT NULL,
	recommendations  JSONB NOT NULL,
	plan             JSONB NOT NULL,
	evidence_summary JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (assessment_id, full_version)
);

CREATE TABLE IF NOT EXISTS audit_events (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	assessment_id TEXT NOT NULL DEFAULT '',
	company_id    TEXT NOT NULL DEFAULT '',
	kind          TEXT NOT NULL,
	detail        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_events_assessment ON audit_events(assessment_id, created_at);
`

var (
	pgUpsertAnswer = db.MustUpsertSQL(db.Postgres, db.UpsertConfig{
		Table: "answers", Columns: answerCols,
		ConflictKeys: []string{"assessment_id", "process_key", "question_key"},
	})
	pgUpsertGap = db.MustUpsertSQL(db.Postgres, db.UpsertConfig{
		Table: "gap_instances", Columns: gapCols,
		ConflictKeys: []string{"assessment_id", "gap_id"},
		UpdateCols:   []string{"process_key"},
	})
	pgUpsertCauseAnswer = db.MustUpsertSQL(db.Postgres, db.UpsertConfig{
		Table: "cause_answers", Columns: causeAnsCols,
		ConflictKeys: []string{"assessment_id", "gap_id", "question_id"},
	})
	pgUpsertClassification = db.MustUpsertSQL(db.Postgres, db.UpsertConfig{
		Table: "cause_classifications", Columns: classCols,
		ConflictKeys: []string{"assessment_id", "gap_id"},
	})
	pgUpsertDoD = db.MustUpsertSQL(db.Postgres, db.UpsertConfig{
		Table: "dod_confirmations", Columns: dodCols,
		ConflictKeys: []string{"assessment_id", "action_key"},
	})
	pgArchive = db.MustUpsertSQL(db.Postgres, db.UpsertConfig{
		Table: "cycle_history", Columns: historyCols,
		ConflictKeys: []string{"assessment_id", "cycle_no", "action_key"},
		DoNothing:    true,
	})
	pgUpsertSnapshot = db.MustUpsertSQL(db.Postgres, db.UpsertConfig{
		Table: "diagnostic_snapshots", Columns: snapshotCols,
		ConflictKeys: []string{"assessment_id", "full_version"},
		UpdateCols:   []string{"cycle_no", "catalog_version", "processes", "raios_x", "recommendations", "plan", "evidence_summary", "updated_at"},
	})
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, name string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "postgres: %s: begin tx", name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: %s: commit", name)
}

// --- Assessments ---

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assessments (`+strings.Join(assessmentCols, ", ")+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.CompanyID, string(a.Segment), string(a.Status), a.CycleNo, a.CatalogVersion,
		a.CreatedAt, a.UpdatedAt, a.SubmittedAt, a.ClosedAt,
	)
	if db.IsUniqueViolation(err) {
		return eris.Wrapf(ErrConflict, "postgres: active assessment exists for company %s", a.CompanyID)
	}
	return eris.Wrap(err, "postgres: insert assessment")
}

func (s *PostgresStore) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	return scanPgAssessment(s.pool.QueryRow(ctx, preparedStatements["get_assessment"], id))
}

func (s *PostgresStore) GetLatestAssessment(ctx context.Context, companyID string) (*model.Assessment, error) {
	return scanPgAssessment(s.pool.QueryRow(ctx, preparedStatements["get_latest"], companyID))
}

func (s *PostgresStore) UpdateAssessment(ctx context.Context, a *model.Assessment) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assessments SET status = $1, cycle_no = $2, catalog_version = $3, updated_at = $4, submitted_at = $5, closed_at = $6
		 WHERE id = $7`,
		string(a.Status), a.CycleNo, a.CatalogVersion, a.UpdatedAt, a.SubmittedAt, a.ClosedAt, a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update assessment %s", a.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "assessment not found: %s", a.ID)
	}
	return nil
}

func (s *PostgresStore) StartNewCycle(ctx context.Context, id string, fromCycle int, at time.Time) error {
	return s.withTx(ctx, "start new cycle", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE assessments SET status = $1, cycle_no = cycle_no + 1, closed_at = NULL, updated_at = $2
			 WHERE id = $3 AND status = $4 AND cycle_no = $5`,
			string(model.AssessmentSubmitted), at, id, string(model.AssessmentClosed), fromCycle,
		)
		if db.IsUniqueViolation(err) {
			return eris.Wrapf(ErrConflict, "postgres: company already has an active assessment")
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: reopen assessment %s", id)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrConflict, "postgres: assessment %s is not closed at cycle %d", id, fromCycle)
		}
		_, err = tx.Exec(ctx, `DELETE FROM selected_actions WHERE assessment_id = $1`, id)
		return eris.Wrap(err, "postgres: clear plan")
	})
}

func scanPgAssessment(row scannable) (*model.Assessment, error) {
	var a model.Assessment
	var submitted, closed *time.Time
	err := row.Scan(&a.ID, &a.CompanyID, &a.Segment, &a.Status, &a.CycleNo, &a.CatalogVersion,
		&a.CreatedAt, &a.UpdatedAt, &submitted, &closed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan assessment")
	}
	if submitted != nil {
		a.SubmittedAt = timePtr(*submitted, true)
	}
	if closed != nil {
		a.ClosedAt = timePtr(*closed, true)
	}
	return &a, nil
}

// --- Answers ---

func (s *PostgresStore) UpsertAnswers(ctx context.Context, answers []model.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	return s.withTx(ctx, "upsert answers", func(tx pgx.Tx) error {
		for _, a := range answers {
			if _, err := tx.Exec(ctx, pgUpsertAnswer,
				a.AssessmentID, a.ProcessKey, a.QuestionKey, a.Value, a.UpdatedAt,
			); err != nil {
				return eris.Wrapf(err, "postgres: upsert answer %s/%s", a.ProcessKey, a.QuestionKey)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListAnswers(ctx context.Context, assessmentID string) ([]model.Answer, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_answers"], assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list answers")
	}
	defer rows.Close()

	var out []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.AssessmentID, &a.ProcessKey, &a.QuestionKey, &a.Value, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan answer")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list answers iterate")
}

// --- Scores ---

func (s *PostgresStore) ReplaceScores(ctx context.Context, assessmentID string, scores []model.ProcessScore) error {
	rows := make([][]any, 0, len(scores))
	for _, ps := range scores {
		dims, err := json.Marshal(ps.DimensionScores)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal dimension scores")
		}
		rows = append(rows, []any{assessmentID, ps.ProcessKey, ps.ScoreNumeric, string(ps.Band), dims, string(ps.RuleUsed), ps.AnswerCount})
	}
	return s.withTx(ctx, "replace scores", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM process_scores WHERE assessment_id = $1`, assessmentID); err != nil {
			return eris.Wrap(err, "postgres: delete scores")
		}
		_, err := db.CopyFrom(ctx, tx, "process_scores", scoreCols, rows)
		return err
	})
}

func (s *PostgresStore) ListScores(ctx context.Context, assessmentID string) ([]model.ProcessScore, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_scores"], assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var out []model.ProcessScore
	for rows.Next() {
		var ps model.ProcessScore
		var dims []byte
		if err := rows.Scan(&ps.AssessmentID, &ps.ProcessKey, &ps.ScoreNumeric, &ps.Band, &dims, &ps.RuleUsed, &ps.AnswerCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		if err := json.Unmarshal(dims, &ps.DimensionScores); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dimension scores")
		}
		out = append(out, ps)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list scores iterate")
}

// --- Gaps and root causes ---

func (s *PostgresStore) SyncGapInstances(ctx context.Context, assessmentID string, gaps []model.GapInstance) error {
	keep := make([]string, 0, len(gaps))
	for _, g := range gaps {
		keep = append(keep, g.GapID)
	}
	return s.withTx(ctx, "sync gaps", func(tx pgx.Tx) error {
		for _, g := range gaps {
			if _, err := tx.Exec(ctx, pgUpsertGap,
				assessmentID, g.GapID, g.ProcessKey, string(model.GapCausePending), g.CreatedAt,
			); err != nil {
				return eris.Wrapf(err, "postgres: upsert gap %s", g.GapID)
			}
		}
		for _, table := range []string{"cause_classifications", "gap_instances"} {
			if _, err := tx.Exec(ctx,
				`DELETE FROM `+table+` WHERE assessment_id = $1 AND gap_id <> ALL($2)`, assessmentID, keep,
			); err != nil {
				return eris.Wrapf(err, "postgres: prune %s", table)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListGapInstances(ctx context.Context, assessmentID string) ([]model.GapInstance, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_gaps"], assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list gaps")
	}
	defer rows.Close()

	var out []model.GapInstance
	for rows.Next() {
		var g model.GapInstance
		if err := rows.Scan(&g.AssessmentID, &g.GapID, &g.ProcessKey, &g.Status, &g.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan gap")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list gaps iterate")
}

func (s *PostgresStore) UpsertCauseAnswers(ctx context.Context, answers []model.CauseAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return s.withTx(ctx, "upsert cause answers", func(tx pgx.Tx) error {
		for _, a := range answers {
			if _, err := tx.Exec(ctx, pgUpsertCauseAnswer,
				a.AssessmentID, a.GapID, a.QuestionID, int(a.Answer), a.UpdatedAt,
			); err != nil {
				return eris.Wrapf(err, "postgres: upsert cause answer %s", a.QuestionID)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListCauseAnswers(ctx context.Context, assessmentID, gapID string) ([]model.CauseAnswer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(causeAnsCols, ", ")+` FROM cause_answers WHERE assessment_id = $1 AND gap_id = $2 ORDER BY question_id`,
		assessmentID, gapID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cause answers")
	}
	defer rows.Close()

	var out []model.CauseAnswer
	for rows.Next() {
		var a model.CauseAnswer
		var answer int
		if err := rows.Scan(&a.AssessmentID, &a.GapID, &a.QuestionID, &answer, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cause answer")
		}
		a.Answer = model.Likert(answer)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list cause answers iterate")
}

func (s *PostgresStore) SaveClassification(ctx context.Context, cl *model.CauseClassification) error {
	evidence, err := json.Marshal(nonNil(cl.Evidence))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence")
	}
	return s.withTx(ctx, "save classification", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE gap_instances SET status = $1 WHERE assessment_id = $2 AND gap_id = $3`,
			string(model.GapCauseClassified), cl.AssessmentID, cl.GapID)
		if err != nil {
			return eris.Wrap(err, "postgres: mark gap classified")
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "gap not found: %s", cl.GapID)
		}
		_, err = tx.Exec(ctx, pgUpsertClassification,
			cl.AssessmentID, cl.GapID, cl.CausePrimary, cl.CauseSecondary, evidence, cl.ClassifiedAt)
		return eris.Wrap(err, "postgres: upsert classification")
	})
}

func (s *PostgresStore) ListClassifications(ctx context.Context, assessmentID string) ([]model.CauseClassification, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_classified"], assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list classifications")
	}
	defer rows.Close()

	var out []model.CauseClassification
	for rows.Next() {
		var cl model.CauseClassification
		var evidence []byte
		if err := rows.Scan(&cl.AssessmentID, &cl.GapID, &cl.CausePrimary, &cl.CauseSecondary, &evidence, &cl.ClassifiedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan classification")
		}
		if err := json.Unmarshal(evidence, &cl.Evidence); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal evidence")
		}
		out = append(out, cl)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list classifications iterate")
}

// --- Findings ---

func (s *PostgresStore) ReplaceFindings(ctx context.Context, assessmentID string, findings []model.Finding) error {
	rows := make([][]any, 0, len(findings))
	for _, f := range findings {
		payload, err := json.Marshal(f.Payload)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal finding payload")
		}
		trace, err := json.Marshal(nonNil(f.Trace))
		if err != nil {
			return eris.Wrap(err, "postgres: marshal finding trace")
		}
		rows = append(rows, []any{assessmentID, string(f.Type), f.Position, f.ProcessKey, payload, trace, f.IsFallback})
	}
	return s.withTx(ctx, "replace findings", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM findings WHERE assessment_id = $1`, assessmentID); err != nil {
			return eris.Wrap(err, "postgres: delete findings")
		}
		_, err := db.CopyFrom(ctx, tx, "findings", findingCols, rows)
		return err
	})
}

func (s *PostgresStore) ListFindings(ctx context.Context, assessmentID string) ([]model.Finding, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_findings"], assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list findings")
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		var payload, trace []byte
		if err := rows.Scan(&f.AssessmentID, &f.Type, &f.Position, &f.ProcessKey, &payload, &trace, &f.IsFallback); err != nil {
			return nil, eris.Wrap(err, "postgres: scan finding")
		}
		if err := json.Unmarshal(payload, &f.Payload); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal finding payload")
		}
		if err := json.Unmarshal(trace, &f.Trace); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal finding trace")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list findings iterate")
}

// --- Plan ---

func (s *PostgresStore) ReplacePlan(ctx context.Context, assessmentID string, actions []model.SelectedAction) error {
	return s.withTx(ctx, "replace plan", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM selected_actions WHERE assessment_id = $1`, assessmentID); err != nil {
			return eris.Wrap(err, "postgres: delete plan")
		}
		for _, a := range actions {
			_, err := tx.Exec(ctx,
				`INSERT INTO selected_actions (`+strings.Join(actionCols, ", ")+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				assessmentID, a.ActionKey, a.Position, a.OwnerName, a.MetricText, a.CheckpointDate,
				string(a.Status), a.DroppedReason, a.UpdatedAt,
			)
			if db.IsUniqueViolation(err) {
				return eris.Wrapf(ErrConflict, "postgres: duplicate plan entry %s", a.ActionKey)
			}
			if err != nil {
				return eris.Wrapf(err, "postgres: insert plan action %s", a.ActionKey)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListPlan(ctx context.Context, assessmentID string) ([]model.SelectedAction, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_plan"], assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list plan")
	}
	defer rows.Close()

	var out []model.SelectedAction
	for rows.Next() {
		var a model.SelectedAction
		if err := rows.Scan(&a.AssessmentID, &a.ActionKey, &a.Position, &a.OwnerName, &a.MetricText,
			&a.CheckpointDate, &a.Status, &a.DroppedReason, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan plan action")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list plan iterate")
}

func (s *PostgresStore) UpdateActionStatus(ctx context.Context, assessmentID, actionKey string, status model.ActionStatus, droppedReason string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE selected_actions SET status = $1, dropped_reason = $2, updated_at = $3 WHERE assessment_id = $4 AND action_key = $5`,
		string(status), droppedReason, at, assessmentID, actionKey,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update action status %s", actionKey)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "action not found: %s", actionKey)
	}
	return nil
}

func (s *PostgresStore) UpsertDoD(ctx context.Context, c *model.DoDConfirmation) error {
	items, err := json.Marshal(nonNil(c.ConfirmedItems))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dod items")
	}
	_, err = s.pool.Exec(ctx, pgUpsertDoD, c.AssessmentID, c.ActionKey, items, c.UpdatedAt)
	return eris.Wrap(err, "postgres: upsert dod")
}

func (s *PostgresStore) GetDoD(ctx context.Context, assessmentID, actionKey string) (*model.DoDConfirmation, error) {
	var c model.DoDConfirmation
	var items []byte
	err := s.pool.QueryRow(ctx,
		`SELECT `+strings.Join(dodCols, ", ")+` FROM dod_confirmations WHERE assessment_id = $1 AND action_key = $2`,
		assessmentID, actionKey,
	).Scan(&c.AssessmentID, &c.ActionKey, &items, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get dod")
	}
	if err := json.Unmarshal(items, &c.ConfirmedItems); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal dod items")
	}
	return &c, nil
}

func (s *PostgresStore) InsertEvidence(ctx context.Context, ev *model.ActionEvidence) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO action_evidence (`+strings.Join(evidenceCols, ", ")+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.AssessmentID, ev.ActionKey, ev.EvidenceText, ev.BeforeBaseline, ev.AfterResult, ev.DeclaredGain, ev.CreatedAt,
	)
	if db.IsUniqueViolation(err) {
		return eris.Wrapf(ErrConflict, "postgres: evidence exists for %s", ev.ActionKey)
	}
	return eris.Wrap(err, "postgres: insert evidence")
}

func (s *PostgresStore) GetEvidence(ctx context.Context, assessmentID, actionKey string) (*model.ActionEvidence, error) {
	var ev model.ActionEvidence
	err := s.pool.QueryRow(ctx,
		`SELECT `+strings.Join(evidenceCols, ", ")+` FROM action_evidence WHERE assessment_id = $1 AND action_key = $2`,
		assessmentID, actionKey,
	).Scan(&ev.AssessmentID, &ev.ActionKey, &ev.EvidenceText, &ev.BeforeBaseline, &ev.AfterResult, &ev.DeclaredGain, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get evidence")
	}
	return &ev, nil
}

func (s *PostgresStore) ListEvidence(ctx context.Context, assessmentID string) ([]model.ActionEvidence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(evidenceCols, ", ")+` FROM action_evidence WHERE assessment_id = $1 ORDER BY created_at, action_key`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evidence")
	}
	defer rows.Close()

	var out []model.ActionEvidence
	for rows.Next() {
		var ev model.ActionEvidence
		if err := rows.Scan(&ev.AssessmentID, &ev.ActionKey, &ev.EvidenceText, &ev.BeforeBaseline,
			&ev.AfterResult, &ev.DeclaredGain, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evidence")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list evidence iterate")
}

// --- Cycle history ---

func (s *PostgresStore) ArchiveCycle(ctx context.Context, entries []model.CycleHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withTx(ctx, "archive cycle", func(tx pgx.Tx) error {
		for _, e := range entries {
			if _, err := tx.Exec(ctx, pgArchive,
				e.AssessmentID, e.CycleNo, e.ActionKey, e.Position, e.OwnerName, e.MetricText,
				string(e.Status), e.DroppedReason, e.DeclaredGain, e.ArchivedAt,
			); err != nil {
				return eris.Wrapf(err, "postgres: archive %s", e.ActionKey)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListHistory(ctx context.Context, assessmentID string) ([]model.CycleHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(historyCols, ", ")+` FROM cycle_history WHERE assessment_id = $1 ORDER BY cycle_no, position`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list history")
	}
	defer rows.Close()

	var out []model.CycleHistoryEntry
	for rows.Next() {
		var e model.CycleHistoryEntry
		if err := rows.Scan(&e.AssessmentID, &e.CycleNo, &e.ActionKey, &e.Position, &e.OwnerName, &e.MetricText,
			&e.Status, &e.DroppedReason, &e.DeclaredGain, &e.ArchivedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list history iterate")
}

// --- Snapshots ---

func (s *PostgresStore) UpsertSnapshot(ctx context.Context, snap *model.DiagnosticSnapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgUpsertSnapshot,
		snap.AssessmentID, snap.FullVersion, snap.CycleNo, snap.CatalogVersion,
		b.processes, b.raiosX, b.recommendations, b.plan, b.evidence,
		snap.CreatedAt, snap.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert snapshot %s", snap.FullVersion)
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, assessmentID, fullVersion string) (*model.DiagnosticSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+strings.Join(snapshotCols, ", ")+` FROM diagnostic_snapshots WHERE assessment_id = $1 AND full_version = $2`,
		assessmentID, fullVersion)
	return scanPgSnapshot(row)
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, assessmentID string) ([]model.DiagnosticSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(snapshotCols, ", ")+` FROM diagnostic_snapshots WHERE assessment_id = $1 ORDER BY cycle_no, created_at`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []model.DiagnosticSnapshot
	for rows.Next() {
		snap, err := scanPgSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list snapshots iterate")
}

func scanPgSnapshot(row scannable) (*model.DiagnosticSnapshot, error) {
	var snap model.DiagnosticSnapshot
	var b snapshotBlobs
	err := row.Scan(&snap.AssessmentID, &snap.FullVersion, &snap.CycleNo, &snap.CatalogVersion,
		&b.processes, &b.raiosX, &b.recommendations, &b.plan, &b.evidence, &snap.CreatedAt, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan snapshot")
	}
	if err := decodeSnapshot(&snap, b); err != nil {
		return nil, err
	}
	return &snap, nil
}

// --- Audit ---

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, ev *model.AuditEvent) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit detail")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_events (`+strings.Join(auditCols, ", ")+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.AssessmentID, ev.CompanyID, string(ev.Kind), detail, ev.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert audit event")
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, assessmentID string) ([]model.AuditEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(auditCols, ", ")+` FROM audit_events WHERE assessment_id = $1 ORDER BY created_at, id`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit events")
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var detail []byte
		if err := rows.Scan(&ev.ID, &ev.AssessmentID, &ev.CompanyID, &ev.Kind, &detail, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit event")
		}
		if err := json.Unmarshal(detail, &ev.Detail); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal audit detail")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit events iterate")
}
