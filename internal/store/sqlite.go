package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/raiox/internal/db"
	"github.com/sells-group/raiox/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; transactions never wait on a second connection.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id              TEXT PRIMARY KEY,
	company_id      TEXT NOT NULL,
	segment         TEXT NOT NULL DEFAULT 'C',
	status          TEXT NOT NULL DEFAULT 'DRAFT',
	cycle_no        INTEGER NOT NULL DEFAULT 1,
	catalog_version TEXT NOT NULL,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	submitted_at    DATETIME,
	closed_at       DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assessments_active_company
	ON assessments(company_id) WHERE status IN ('DRAFT', 'SUBMITTED');
CREATE INDEX IF NOT EXISTS idx_assessments_company ON assessments(company_id, created_at);

CREATE TABLE IF NOT EXISTS answers (
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	process_key   TEXT NOT NULL,
	question_key  TEXT NOT NULL,
	value         INTEGER NOT NULL CHECK (value BETWEEN 0 AND 10),
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (assessment_id, process_key, question_key)
);

CREATE TABLE IF NOT EXISTS process_scores (
	assessment_id    TEXT NOT NULL REFERENCES assessments(id),
	process_key      TEXT NOT NULL,
	score_numeric    REAL NOT NULL,
	band             TEXT NOT NULL,
	dimension_scores TEXT NOT NULL,
	rule_used        TEXT NOT NULL,
	answer_count     INTEGER NOT NULL,
	PRIMARY KEY (assessment_id, process_key)
);

CREATE TABLE IF NOT EXISTS gap_instances (
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	gap_id        TEXT NOT NULL,
	process_key   TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'CAUSE_PENDING',
	created_at    DATETIME NOT NULL,
	PRIMARY KEY (assessment_id, gap_id)
);

CREATE TABLE IF NOT EXISTS cause_answers (
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	gap_id        TEXT NOT NULL,
	question_id   TEXT NOT NULL,
	answer        INTEGER NOT NULL CHECK (answer BETWEEN 1 AND 5),
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (assessment_id, gap_id, question_id)
);

CREATE TABLE IF NOT EXISTS cause_classifications (
	assessment_id   TEXT NOT NULL REFERENCES assessments(id),
	gap_id          TEXT NOT NULL,
	cause_primary   TEXT NOT NULL,
	cause_secondary TEXT NOT NULL DEFAULT '',
	evidence        TEXT NOT NULL,
	classified_at   DATETIME NOT NULL,
	PRIMARY KEY (assessment_id, gap_id)
);

CREATE TABLE IF NOT EXISTS findings (
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	type          TEXT NOT NULL,
	position      INTEGER NOT NULL CHECK (position BETWEEN 1 AND 3),
	process_key   TEXT NOT NULL,
	payload       TEXT NOT NULL,
	trace         TEXT NOT NULL,
	is_fallback   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (assessment_id, type, position)
);

CREATE TABLE IF NOT EXISTS selected_actions (
	assessment_id   TEXT NOT NULL REFERENCES assessments(id),
	action_key      TEXT NOT NULL,
	position        INTEGER NOT NULL,
	owner_name      TEXT NOT NULL,
	metric_text     TEXT NOT NULL,
	checkpoint_date TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'NOT_STARTED',
	dropped_reason  TEXT NOT NULL DEFAULT '',
	updated_at      DATETIME NOT NULL,
	PRIMARY KEY (assessment_id, action_key),
	UNIQUE (assessment_id, position)
);

CREATE TABLE IF NOT EXISTS dod_confirmations (
	assessment_id   TEXT NOT NULL REFERENCES assessments(id),
	action_key      TEXT NOT NULL,
	confirmed_items TEXT NOT NULL,
	updated_at      DATETIME NOT NULL,
	PRIMARY KEY (assessment_id, action_key)
);

CREATE TABLE IF NOT EXISTS action_evidence (
	assessment_id   TEXT NOT NULL REFERENCES assessments(id),
	action_key      TEXT NOT NULL,
	evidence_text   TEXT NOT NULL,
	before_baseline TEXT NOT NULL,
	after_result    TEXT NOT NULL,
	declared_gain   TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	PRIMARY KEY (assessment_id, action_key)
);

CREATE TABLE IF NOT EXISTS cycle_history (
	assessment_id  TEXT NOT NULL REFERENCES assessments(id),
	cycle_no       INTEGER NOT NULL,
	action_key     TEXT NOT NULL,
	position       INTEGER NOT NULL,
	owner_name     TEXT NOT NULL,
	metric_text    TEXT NOT NULL,
	status         TEXT NOT NULL,
	dropped_reason TEXT NOT NULL DEFAULT '',
	declared_gain  TEXT NOT NULL DEFAULT '',
	archived_at    DATETIME NOT NULL,
	PRIMARY KEY (assessment_id, cycle_no, action_key)
);

CREATE TABLE IF NOT EXISTS diagnostic_snapshots (
	assessment_id    TEXT NOT NULL REFERENCES assessments(id),
	full_version     TEXT NOT NULL,
	cycle_no         INTEGER NOT NULL,
	catalog_version  TEXT NOT NULL,
	processes        TEXT NOT NULL,
	raios_x          TEXT NOT NULL,
	recommendations  TEXT NOT NULL,
	plan             TEXT NOT NULL,
	evidence_summary TEXT,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	PRIMARY KEY (assessment_id, full_version)
);

CREATE TABLE IF NOT EXISTS audit_events (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL DEFAULT '',
	company_id    TEXT NOT NULL DEFAULT '',
	kind          TEXT NOT NULL,
	detail        TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_assessment ON audit_events(assessment_id, created_at);
`

var (
	sqliteUpsertAnswer = db.MustUpsertSQL(db.SQLite, db.UpsertConfig{
		Table: "answers", Columns: answerCols,
		ConflictKeys: []string{"assessment_id", "process_key", "question_key"},
	})
	sqliteUpsertGap = db.MustUpsertSQL(db.SQLite, db.UpsertConfig{
		Table: "gap_instances", Columns: gapCols,
		ConflictKeys: []string{"assessment_id", "gap_id"},
		UpdateCols:   []string{"process_key"},
	})
	sqliteUpsertCauseAnswer = db.MustUpsertSQL(db.SQLite, db.UpsertConfig{
		Table: "cause_answers", Columns: causeAnsCols,
		ConflictKeys: []string{"assessment_id", "gap_id", "question_id"},
	})
	sqliteUpsertClassification = db.MustUpsertSQL(db.SQLite, db.UpsertConfig{
		Table: "cause_classifications", Columns: classCols,
		ConflictKeys: []string{"assessment_id", "gap_id"},
	})
	sqliteUpsertDoD = db.MustUpsertSQL(db.SQLite, db.UpsertConfig{
		Table: "dod_confirmations", Columns: dodCols,
		ConflictKeys: []string{"assessment_id", "action_key"},
	})
	sqliteArchive = db.MustUpsertSQL(db.SQLite, db.UpsertConfig{
		Table: "cycle_history", Columns: historyCols,
		ConflictKeys: []string{"assessment_id", "cycle_no", "action_key"},
		DoNothing:    true,
	})
	sqliteUpsertSnapshot = db.MustUpsertSQL(db.SQLite, db.UpsertConfig{
		Table: "diagnostic_snapshots", Columns: snapshotCols,
		ConflictKeys: []string{"assessment_id", "full_version"},
		UpdateCols:   []string{"cycle_no", "catalog_version", "processes", "raios_x", "recommendations", "plan", "evidence_summary", "updated_at"},
	})
)

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) withTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: %s: begin tx", name)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrapf(tx.Commit(), "sqlite: %s: commit", name)
}

// --- Assessments ---

func (s *SQLiteStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (`+strings.Join(assessmentCols, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CompanyID, string(a.Segment), string(a.Status), a.CycleNo, a.CatalogVersion,
		a.CreatedAt, a.UpdatedAt, a.SubmittedAt, a.ClosedAt,
	)
	if isSQLiteUniqueViolation(err) {
		return eris.Wrapf(ErrConflict, "sqlite: active assessment exists for company %s", a.CompanyID)
	}
	return eris.Wrap(err, "sqlite: insert assessment")
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(assessmentCols, ", ")+` FROM assessments WHERE id = ?`, id)
	return scanSQLiteAssessment(row)
}

func (s *SQLiteStore) GetLatestAssessment(ctx context.Context, companyID string) (*model.Assessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(assessmentCols, ", ")+` FROM assessments WHERE company_id = ?
		 ORDER BY CASE WHEN status IN ('DRAFT', 'SUBMITTED') THEN 0 ELSE 1 END, created_at DESC LIMIT 1`,
		companyID)
	return scanSQLiteAssessment(row)
}

func (s *SQLiteStore) UpdateAssessment(ctx context.Context, a *model.Assessment) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assessments SET status = ?, cycle_no = ?, catalog_version = ?, updated_at = ?, submitted_at = ?, closed_at = ?
		 WHERE id = ?`,
		string(a.Status), a.CycleNo, a.CatalogVersion, a.UpdatedAt, a.SubmittedAt, a.ClosedAt, a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update assessment %s", a.ID)
	}
	return checkRowsAffected(res, "assessment", a.ID)
}

func (s *SQLiteStore) StartNewCycle(ctx context.Context, id string, fromCycle int, at time.Time) error {
	return s.withTx(ctx, "start new cycle", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE assessments SET status = ?, cycle_no = cycle_no + 1, closed_at = NULL, updated_at = ?
			 WHERE id = ? AND status = ? AND cycle_no = ?`,
			string(model.AssessmentSubmitted), at, id, string(model.AssessmentClosed), fromCycle,
		)
		if isSQLiteUniqueViolation(err) {
			return eris.Wrapf(ErrConflict, "sqlite: company already has an active assessment")
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: reopen assessment %s", id)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return eris.Wrapf(ErrConflict, "sqlite: assessment %s is not closed at cycle %d", id, fromCycle)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM selected_actions WHERE assessment_id = ?`, id)
		return eris.Wrap(err, "sqlite: clear plan")
	})
}

func scanSQLiteAssessment(row scannable) (*model.Assessment, error) {
	var a model.Assessment
	var submitted, closed sql.NullTime
	err := row.Scan(&a.ID, &a.CompanyID, &a.Segment, &a.Status, &a.CycleNo, &a.CatalogVersion,
		&a.CreatedAt, &a.UpdatedAt, &submitted, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan assessment")
	}
	a.SubmittedAt = timePtr(submitted.Time, submitted.Valid)
	a.ClosedAt = timePtr(closed.Time, closed.Valid)
	return &a, nil
}

// --- Answers ---

func (s *SQLiteStore) UpsertAnswers(ctx context.Context, answers []model.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	return s.withTx(ctx, "upsert answers", func(tx *sql.Tx) error {
		for _, a := range answers {
			if _, err := tx.ExecContext(ctx, sqliteUpsertAnswer,
				a.AssessmentID, a.ProcessKey, a.QuestionKey, a.Value, a.UpdatedAt,
			); err != nil {
				return eris.Wrapf(err, "sqlite: upsert answer %s/%s", a.ProcessKey, a.QuestionKey)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListAnswers(ctx context.Context, assessmentID string) ([]model.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(answerCols, ", ")+` FROM answers WHERE assessment_id = ? ORDER BY process_key, question_key`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list answers")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.AssessmentID, &a.ProcessKey, &a.QuestionKey, &a.Value, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan answer")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list answers iterate")
}

// --- Scores ---

func (s *SQLiteStore) ReplaceScores(ctx context.Context, assessmentID string, scores []model.ProcessScore) error {
	return s.withTx(ctx, "replace scores", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM process_scores WHERE assessment_id = ?`, assessmentID); err != nil {
			return eris.Wrap(err, "sqlite: delete scores")
		}
		for _, ps := range scores {
			dims, err := json.Marshal(ps.DimensionScores)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal dimension scores")
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO process_scores (`+strings.Join(scoreCols, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				assessmentID, ps.ProcessKey, ps.ScoreNumeric, string(ps.Band), string(dims), string(ps.RuleUsed), ps.AnswerCount,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert score %s", ps.ProcessKey)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListScores(ctx context.Context, assessmentID string) ([]model.ProcessScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(scoreCols, ", ")+` FROM process_scores WHERE assessment_id = ? ORDER BY process_key`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProcessScore
	for rows.Next() {
		var ps model.ProcessScore
		var dims string
		if err := rows.Scan(&ps.AssessmentID, &ps.ProcessKey, &ps.ScoreNumeric, &ps.Band, &dims, &ps.RuleUsed, &ps.AnswerCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		if err := json.Unmarshal([]byte(dims), &ps.DimensionScores); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dimension scores")
		}
		out = append(out, ps)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list scores iterate")
}

// --- Gaps and root causes ---

func (s *SQLiteStore) SyncGapInstances(ctx context.Context, assessmentID string, gaps []model.GapInstance) error {
	return s.withTx(ctx, "sync gaps", func(tx *sql.Tx) error {
		keep := make([]any, 0, len(gaps)+1)
		keep = append(keep, assessmentID)
		for _, g := range gaps {
			if _, err := tx.ExecContext(ctx, sqliteUpsertGap,
				assessmentID, g.GapID, g.ProcessKey, string(model.GapCausePending), g.CreatedAt,
			); err != nil {
				return eris.Wrapf(err, "sqlite: upsert gap %s", g.GapID)
			}
			keep = append(keep, g.GapID)
		}
		filter := ""
		if len(gaps) > 0 {
			filter = ` AND gap_id NOT IN (?` + strings.Repeat(", ?", len(gaps)-1) + `)`
		}
		for _, table := range []string{"cause_classifications", "gap_instances"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE assessment_id = ?`+filter, keep...); err != nil {
				return eris.Wrapf(err, "sqlite: prune %s", table)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListGapInstances(ctx context.Context, assessmentID string) ([]model.GapInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(gapCols, ", ")+` FROM gap_instances WHERE assessment_id = ? ORDER BY gap_id`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list gaps")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.GapInstance
	for rows.Next() {
		var g model.GapInstance
		if err := rows.Scan(&g.AssessmentID, &g.GapID, &g.ProcessKey, &g.Status, &g.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gap")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list gaps iterate")
}

func (s *SQLiteStore) UpsertCauseAnswers(ctx context.Context, answers []model.CauseAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return s.withTx(ctx, "upsert cause answers", func(tx *sql.Tx) error {
		for _, a := range answers {
			if _, err := tx.ExecContext(ctx, sqliteUpsertCauseAnswer,
				a.AssessmentID, a.GapID, a.QuestionID, int(a.Answer), a.UpdatedAt,
			); err != nil {
				return eris.Wrapf(err, "sqlite: upsert cause answer %s", a.QuestionID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListCauseAnswers(ctx context.Context, assessmentID, gapID string) ([]model.CauseAnswer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(causeAnsCols, ", ")+` FROM cause_answers WHERE assessment_id = ? AND gap_id = ? ORDER BY question_id`,
		assessmentID, gapID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cause answers")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CauseAnswer
	for rows.Next() {
		var a model.CauseAnswer
		if err := rows.Scan(&a.AssessmentID, &a.GapID, &a.QuestionID, &a.Answer, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cause answer")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list cause answers iterate")
}

func (s *SQLiteStore) SaveClassification(ctx context.Context, cl *model.CauseClassification) error {
	evidence, err := json.Marshal(nonNil(cl.Evidence))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence")
	}
	return s.withTx(ctx, "save classification", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE gap_instances SET status = ? WHERE assessment_id = ? AND gap_id = ?`,
			string(model.GapCauseClassified), cl.AssessmentID, cl.GapID)
		if err != nil {
			return eris.Wrap(err, "sqlite: mark gap classified")
		}
		if err := checkRowsAffected(res, "gap", cl.GapID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, sqliteUpsertClassification,
			cl.AssessmentID, cl.GapID, cl.CausePrimary, cl.CauseSecondary, string(evidence), cl.ClassifiedAt)
		return eris.Wrap(err, "sqlite: upsert classification")
	})
}

func (s *SQLiteStore) ListClassifications(ctx context.Context, assessmentID string) ([]model.CauseClassification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(classCols, ", ")+` FROM cause_classifications WHERE assessment_id = ? ORDER BY gap_id`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list classifications")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CauseClassification
	for rows.Next() {
		var cl model.CauseClassification
		var evidence string
		if err := rows.Scan(&cl.AssessmentID, &cl.GapID, &cl.CausePrimary, &cl.CauseSecondary, &evidence, &cl.ClassifiedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan classification")
		}
		if err := json.Unmarshal([]byte(evidence), &cl.Evidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal evidence")
		}
		out = append(out, cl)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list classifications iterate")
}

// --- Findings ---

func (s *SQLiteStore) ReplaceFindings(ctx context.Context, assessmentID string, findings []model.Finding) error {
	return s.withTx(ctx, "replace findings", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE assessment_id = ?`, assessmentID); err != nil {
			return eris.Wrap(err, "sqlite: delete findings")
		}
		for _, f := range findings {
			payload, err := json.Marshal(f.Payload)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal finding payload")
			}
			trace, err := json.Marshal(nonNil(f.Trace))
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal finding trace")
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO findings (`+strings.Join(findingCols, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				assessmentID, string(f.Type), f.Position, f.ProcessKey, string(payload), string(trace), f.IsFallback,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert finding %s/%d", f.Type, f.Position)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListFindings(ctx context.Context, assessmentID string) ([]model.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(findingCols, ", ")+` FROM findings WHERE assessment_id = ? ORDER BY type DESC, position`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list findings")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		var payload, trace string
		if err := rows.Scan(&f.AssessmentID, &f.Type, &f.Position, &f.ProcessKey, &payload, &trace, &f.IsFallback); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan finding")
		}
		if err := json.Unmarshal([]byte(payload), &f.Payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal finding payload")
		}
		if err := json.Unmarshal([]byte(trace), &f.Trace); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal finding trace")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list findings iterate")
}

// --- Plan ---

func (s *SQLiteStore) ReplacePlan(ctx context.Context, assessmentID string, actions []model.SelectedAction) error {
	return s.withTx(ctx, "replace plan", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM selected_actions WHERE assessment_id = ?`, assessmentID); err != nil {
			return eris.Wrap(err, "sqlite: delete plan")
		}
		for _, a := range actions {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO selected_actions (`+strings.Join(actionCols, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				assessmentID, a.ActionKey, a.Position, a.OwnerName, a.MetricText, a.CheckpointDate,
				string(a.Status), a.DroppedReason, a.UpdatedAt,
			)
			if isSQLiteUniqueViolation(err) {
				return eris.Wrapf(ErrConflict, "sqlite: duplicate plan entry %s", a.ActionKey)
			}
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert plan action %s", a.ActionKey)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListPlan(ctx context.Context, assessmentID string) ([]model.SelectedAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(actionCols, ", ")+` FROM selected_actions WHERE assessment_id = ? ORDER BY position`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list plan")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SelectedAction
	for rows.Next() {
		var a model.SelectedAction
		if err := rows.Scan(&a.AssessmentID, &a.ActionKey, &a.Position, &a.OwnerName, &a.MetricText,
			&a.CheckpointDate, &a.Status, &a.DroppedReason, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan plan action")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list plan iterate")
}

func (s *SQLiteStore) UpdateActionStatus(ctx context.Context, assessmentID, actionKey string, status model.ActionStatus, droppedReason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE selected_actions SET status = ?, dropped_reason = ?, updated_at = ? WHERE assessment_id = ? AND action_key = ?`,
		string(status), droppedReason, at, assessmentID, actionKey,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update action status %s", actionKey)
	}
	return checkRowsAffected(res, "action", actionKey)
}

func (s *SQLiteStore) UpsertDoD(ctx context.Context, c *model.DoDConfirmation) error {
	items, err := json.Marshal(nonNil(c.ConfirmedItems))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dod items")
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsertDoD, c.AssessmentID, c.ActionKey, string(items), c.UpdatedAt)
	return eris.Wrap(err, "sqlite: upsert dod")
}

func (s *SQLiteStore) GetDoD(ctx context.Context, assessmentID, actionKey string) (*model.DoDConfirmation, error) {
	var c model.DoDConfirmation
	var items string
	err := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(dodCols, ", ")+` FROM dod_confirmations WHERE assessment_id = ? AND action_key = ?`,
		assessmentID, actionKey,
	).Scan(&c.AssessmentID, &c.ActionKey, &items, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get dod")
	}
	if err := json.Unmarshal([]byte(items), &c.ConfirmedItems); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal dod items")
	}
	return &c, nil
}

func (s *SQLiteStore) InsertEvidence(ctx context.Context, ev *model.ActionEvidence) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_evidence (`+strings.Join(evidenceCols, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.AssessmentID, ev.ActionKey, ev.EvidenceText, ev.BeforeBaseline, ev.AfterResult, ev.DeclaredGain, ev.CreatedAt,
	)
	if isSQLiteUniqueViolation(err) {
		return eris.Wrapf(ErrConflict, "sqlite: evidence exists for %s", ev.ActionKey)
	}
	return eris.Wrap(err, "sqlite: insert evidence")
}

func (s *SQLiteStore) GetEvidence(ctx context.Context, assessmentID, actionKey string) (*model.ActionEvidence, error) {
	var ev model.ActionEvidence
	err := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(evidenceCols, ", ")+` FROM action_evidence WHERE assessment_id = ? AND action_key = ?`,
		assessmentID, actionKey,
	).Scan(&ev.AssessmentID, &ev.ActionKey, &ev.EvidenceText, &ev.BeforeBaseline, &ev.AfterResult, &ev.DeclaredGain, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get evidence")
	}
	return &ev, nil
}

func (s *SQLiteStore) ListEvidence(ctx context.Context, assessmentID string) ([]model.ActionEvidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(evidenceCols, ", ")+` FROM action_evidence WHERE assessment_id = ? ORDER BY created_at, action_key`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evidence")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ActionEvidence
	for rows.Next() {
		var ev model.ActionEvidence
		if err := rows.Scan(&ev.AssessmentID, &ev.ActionKey, &ev.EvidenceText, &ev.BeforeBaseline,
			&ev.AfterResult, &ev.DeclaredGain, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evidence")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list evidence iterate")
}

// --- Cycle history ---

func (s *SQLiteStore) ArchiveCycle(ctx context.Context, entries []model.CycleHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withTx(ctx, "archive cycle", func(tx *sql.Tx) error {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, sqliteArchive,
				e.AssessmentID, e.CycleNo, e.ActionKey, e.Position, e.OwnerName, e.MetricText,
				string(e.Status), e.DroppedReason, e.DeclaredGain, e.ArchivedAt,
			); err != nil {
				return eris.Wrapf(err, "sqlite: archive %s", e.ActionKey)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListHistory(ctx context.Context, assessmentID string) ([]model.CycleHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(historyCols, ", ")+` FROM cycle_history WHERE assessment_id = ? ORDER BY cycle_no, position`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list history")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CycleHistoryEntry
	for rows.Next() {
		var e model.CycleHistoryEntry
		if err := rows.Scan(&e.AssessmentID, &e.CycleNo, &e.ActionKey, &e.Position, &e.OwnerName, &e.MetricText,
			&e.Status, &e.DroppedReason, &e.DeclaredGain, &e.ArchivedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list history iterate")
}

// --- Snapshots ---

func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap *model.DiagnosticSnapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	var evidence any
	if b.evidence != nil {
		evidence = string(b.evidence)
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsertSnapshot,
		snap.AssessmentID, snap.FullVersion, snap.CycleNo, snap.CatalogVersion,
		string(b.processes), string(b.raiosX), string(b.recommendations), string(b.plan), evidence,
		snap.CreatedAt, snap.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert snapshot %s", snap.FullVersion)
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, assessmentID, fullVersion string) (*model.DiagnosticSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(snapshotCols, ", ")+` FROM diagnostic_snapshots WHERE assessment_id = ? AND full_version = ?`,
		assessmentID, fullVersion)
	return scanSQLiteSnapshot(row)
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, assessmentID string) ([]model.DiagnosticSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(snapshotCols, ", ")+` FROM diagnostic_snapshots WHERE assessment_id = ? ORDER BY cycle_no, created_at`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DiagnosticSnapshot
	for rows.Next() {
		snap, err := scanSQLiteSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list snapshots iterate")
}

func scanSQLiteSnapshot(row scannable) (*model.DiagnosticSnapshot, error) {
	var snap model.DiagnosticSnapshot
	var processes, raiosX, recs, plan string
	var evidence sql.NullString
	err := row.Scan(&snap.AssessmentID, &snap.FullVersion, &snap.CycleNo, &snap.CatalogVersion,
		&processes, &raiosX, &recs, &plan, &evidence, &snap.CreatedAt, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan snapshot")
	}
	b := snapshotBlobs{
		processes:       []byte(processes),
		raiosX:          []byte(raiosX),
		recommendations: []byte(recs),
		plan:            []byte(plan),
	}
	if evidence.Valid {
		b.evidence = []byte(evidence.String)
	}
	if err := decodeSnapshot(&snap, b); err != nil {
		return nil, err
	}
	return &snap, nil
}

// --- Audit ---

func (s *SQLiteStore) InsertAuditEvent(ctx context.Context, ev *model.AuditEvent) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit detail")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (`+strings.Join(auditCols, ", ")+`) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AssessmentID, ev.CompanyID, string(ev.Kind), string(detail), ev.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert audit event")
}

func (s *SQLiteStore) ListAuditEvents(ctx context.Context, assessmentID string) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(auditCols, ", ")+` FROM audit_events WHERE assessment_id = ? ORDER BY created_at, id`,
		assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit events")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var detail string
		if err := rows.Scan(&ev.ID, &ev.AssessmentID, &ev.CompanyID, &ev.Kind, &detail, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit event")
		}
		if err := json.Unmarshal([]byte(detail), &ev.Detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal audit detail")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit events iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s not found: %s", entity, id)
	}
	return nil
}

// isSQLiteUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isSQLiteUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
