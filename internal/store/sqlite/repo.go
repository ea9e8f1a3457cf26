package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alirezaght/arazzo/internal/store"
)

// Store is the SQLite-backed store.Store implementation.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer

	idMu     sync.Mutex
	entropy  *ulid.MonotonicEntropy
}

// New wraps an already-opened, already-migrated *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		tracer:  otel.Tracer("arazzo-store"),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

const timeLayout = time.RFC3339Nano

func timePtrToSQL(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func sqlToTimePtr(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func sqlToTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

// ---- workflow docs ----

func (s *Store) UpsertWorkflowDoc(ctx context.Context, doc store.WorkflowDoc) error {
	ctx, span := s.tracer.Start(ctx, "store.UpsertWorkflowDoc")
	defer span.End()
	span.SetAttributes(attribute.String("doc_hash", doc.DocHash))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_docs (doc_hash, format, raw, projection, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_hash) DO NOTHING`,
		doc.DocHash, doc.Format, doc.Raw, doc.Projection, timePtrToSQL(&doc.CreatedAt))
	return err
}

func (s *Store) GetWorkflowDoc(ctx context.Context, docHash string) (*store.WorkflowDoc, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetWorkflowDoc")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `
		SELECT doc_hash, format, raw, projection, created_at
		FROM workflow_docs WHERE doc_hash = ?`, docHash)
	var d store.WorkflowDoc
	var created string
	if err := row.Scan(&d.DocHash, &d.Format, &d.Raw, &d.Projection, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	d.CreatedAt = sqlToTime(created)
	return &d, nil
}

// ---- runs ----

func (s *Store) CreateRunAndSteps(ctx context.Context, spec store.RunSpec, steps []store.StepSpec) (*store.WorkflowRun, bool, error) {
	ctx, span := s.tracer.Start(ctx, "store.CreateRunAndSteps")
	defer span.End()
	span.SetAttributes(attribute.String("workflow_id", spec.WorkflowID))

	if spec.IdempotencyKey != nil && spec.CreatedBy != nil {
		existing, err := s.getRunByIdempotencyKey(ctx, *spec.CreatedBy, *spec.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	now := time.Now()
	runID := s.newID()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, doc_hash, workflow_id, inputs, created_by, idempotency_key, status, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL, NULL)`,
		runID, spec.DocHash, spec.WorkflowID, spec.Inputs, spec.CreatedBy, spec.IdempotencyKey, string(store.RunQueued), timePtrToSQL(&now))
	if err != nil {
		return nil, false, fmt.Errorf("inserting run: %w", err)
	}

	stepRowIDs := make(map[string]string, len(steps))
	for _, st := range steps {
		rowID := s.newID()
		stepRowIDs[st.StepID] = rowID
		dependsOnJSON, _ := json.Marshal(st.DependsOn)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_steps (id, run_id, step_id, step_index, depends_on, deps_remaining, status, outputs, error, next_run_at, created_at, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, NULL, NULL)`,
			rowID, runID, st.StepID, st.StepIndex, string(dependsOnJSON), len(st.DependsOn), string(store.StepPending), timePtrToSQL(&now))
		if err != nil {
			return nil, false, fmt.Errorf("inserting step %s: %w", st.StepID, err)
		}
	}

	for _, st := range steps {
		for _, dep := range st.DependsOn {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO run_step_edges (run_id, from_step_id, to_step_id) VALUES (?, ?, ?)`,
				runID, dep, st.StepID)
			if err != nil {
				return nil, false, fmt.Errorf("inserting edge %s->%s: %w", dep, st.StepID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	run := &store.WorkflowRun{
		ID: runID, DocHash: spec.DocHash, WorkflowID: spec.WorkflowID, Inputs: spec.Inputs,
		CreatedBy: spec.CreatedBy, IdempotencyKey: spec.IdempotencyKey, Status: store.RunQueued, CreatedAt: now,
	}
	return run, true, nil
}

func (s *Store) getRunByIdempotencyKey(ctx context.Context, createdBy, key string) (*store.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM workflow_runs WHERE created_by = ? AND idempotency_key = ?`, createdBy, key)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s.GetRun(ctx, id)
}

func (s *Store) GetRun(ctx context.Context, runID string) (*store.WorkflowRun, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetRun")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, doc_hash, workflow_id, inputs, created_by, idempotency_key, status, error, created_at, started_at, finished_at
		FROM workflow_runs WHERE id = ?`, runID)

	var r store.WorkflowRun
	var createdBy, idemKey, runErr sql.NullString
	var status, created string
	var startedAt, finishedAt sql.NullString
	if err := row.Scan(&r.ID, &r.DocHash, &r.WorkflowID, &r.Inputs, &createdBy, &idemKey, &status, &runErr, &created, &startedAt, &finishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	r.Status = store.RunStatus(status)
	r.CreatedAt = sqlToTime(created)
	r.StartedAt = sqlToTimePtr(startedAt)
	r.FinishedAt = sqlToTimePtr(finishedAt)
	if createdBy.Valid {
		r.CreatedBy = &createdBy.String
	}
	if idemKey.Valid {
		r.IdempotencyKey = &idemKey.String
	}
	if runErr.Valid {
		r.Error = &runErr.String
	}
	return &r, nil
}

func (s *Store) MarkRunStarted(ctx context.Context, runID string) error {
	ctx, span := s.tracer.Start(ctx, "store.MarkRunStarted")
	defer span.End()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		string(store.RunRunning), timePtrToSQL(&now), runID, string(store.RunQueued))
	return err
}

func (s *Store) MarkRunFinished(ctx context.Context, runID string, status store.RunStatus, runErr *string) error {
	ctx, span := s.tracer.Start(ctx, "store.MarkRunFinished")
	defer span.End()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs SET status = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(status), runErr, timePtrToSQL(&now), runID)
	return err
}

func (s *Store) CancelRun(ctx context.Context, runID string) error {
	ctx, span := s.tracer.Start(ctx, "store.CancelRun")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE workflow_runs SET status = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(store.RunCanceled), timePtrToSQL(&now), runID, string(store.RunQueued), string(store.RunRunning)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE run_steps SET status = ?, finished_at = ?
		WHERE run_id = ? AND status IN (?, ?)`,
		string(store.StepSkipped), timePtrToSQL(&now), runID, string(store.StepPending), string(store.StepRunning)); err != nil {
		return err
	}
	return tx.Commit()
}

// ---- steps ----

func (s *Store) ListSteps(ctx context.Context, runID string) ([]store.RunStep, error) {
	ctx, span := s.tracer.Start(ctx, "store.ListSteps")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step_id, step_index, depends_on, deps_remaining, status, outputs, error, next_run_at, created_at, started_at, finished_at
		FROM run_steps WHERE run_id = ? ORDER BY step_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.RunStep
	for rows.Next() {
		st, err := scanRunStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) GetStep(ctx context.Context, runID, stepID string) (*store.RunStep, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetStep")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, step_id, step_index, depends_on, deps_remaining, status, outputs, error, next_run_at, created_at, started_at, finished_at
		FROM run_steps WHERE run_id = ? AND step_id = ?`, runID, stepID)
	st, err := scanRunStep(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRunStep(row scanner) (store.RunStep, error) {
	var st store.RunStep
	var dependsOn string
	var status string
	var outputs, stepErr, nextRunAt, startedAt, finishedAt sql.NullString
	var created string
	if err := row.Scan(&st.ID, &st.RunID, &st.StepID, &st.StepIndex, &dependsOn, &st.DepsRemaining, &status, &outputs, &stepErr, &nextRunAt, &created, &startedAt, &finishedAt); err != nil {
		return store.RunStep{}, err
	}
	_ = json.Unmarshal([]byte(dependsOn), &st.DependsOn)
	st.Status = store.StepStatus(status)
	st.CreatedAt = sqlToTime(created)
	st.StartedAt = sqlToTimePtr(startedAt)
	st.FinishedAt = sqlToTimePtr(finishedAt)
	st.NextRunAt = sqlToTimePtr(nextRunAt)
	if outputs.Valid {
		st.Outputs = &outputs.String
	}
	if stepErr.Valid {
		st.Error = &stepErr.String
	}
	return st, nil
}

func (s *Store) ClaimRunnableSteps(ctx context.Context, runID string, limit int, now time.Time) ([]store.RunStep, error) {
	ctx, span := s.tracer.Start(ctx, "store.ClaimRunnableSteps")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM run_steps
		WHERE run_id = ? AND status = ? AND deps_remaining = 0
		  AND (next_run_at IS NULL OR next_run_at <= ?)
		ORDER BY step_index
		LIMIT ?`,
		runID, string(store.StepPending), timePtrToSQL(&now), limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, string(store.StepRunning), timePtrToSQL(&now))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	q := fmt.Sprintf(`UPDATE run_steps SET status = ?, started_at = ? WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return nil, err
	}

	var claimed []store.RunStep
	for _, id := range ids {
		row := tx.QueryRowContext(ctx, `
			SELECT id, run_id, step_id, step_index, depends_on, deps_remaining, status, outputs, error, next_run_at, created_at, started_at, finished_at
			FROM run_steps WHERE id = ?`, id)
		st, err := scanRunStep(row)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, st)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) MarkStepSucceeded(ctx context.Context, runStepID string, outputs string) error {
	ctx, span := s.tracer.Start(ctx, "store.MarkStepSucceeded")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	var runID, stepID string
	if err := tx.QueryRowContext(ctx, `SELECT run_id, step_id FROM run_steps WHERE id = ?`, runStepID).Scan(&runID, &stepID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE run_steps SET status = ?, outputs = ?, finished_at = ? WHERE id = ?`,
		string(store.StepSucceeded), outputs, timePtrToSQL(&now), runStepID); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `SELECT to_step_id FROM run_step_edges WHERE run_id = ? AND from_step_id = ?`, runID, stepID)
	if err != nil {
		return err
	}
	var dependents []string
	for rows.Next() {
		var to string
		if err := rows.Scan(&to); err != nil {
			rows.Close()
			return err
		}
		dependents = append(dependents, to)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, to := range dependents {
		if _, err := tx.ExecContext(ctx, `
			UPDATE run_steps SET deps_remaining = MAX(deps_remaining - 1, 0)
			WHERE run_id = ? AND step_id = ?`, runID, to); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// MarkStepFailed transitions the step to failed and transitively skips every
// descendant still pending, so the run converges to a terminal state without
// the scheduler ever claiming an unreachable step.
func (s *Store) MarkStepFailed(ctx context.Context, runStepID string, stepErr string) error {
	ctx, span := s.tracer.Start(ctx, "store.MarkStepFailed")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	var runID, stepID string
	if err := tx.QueryRowContext(ctx, `SELECT run_id, step_id FROM run_steps WHERE id = ?`, runStepID).Scan(&runID, &stepID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE run_steps SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(store.StepFailed), stepErr, timePtrToSQL(&now), runStepID); err != nil {
		return err
	}

	queue := []string{stepID}
	skipped := map[string]bool{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		rows, err := tx.QueryContext(ctx, `SELECT to_step_id FROM run_step_edges WHERE run_id = ? AND from_step_id = ?`, runID, cur)
		if err != nil {
			return err
		}
		var dependents []string
		for rows.Next() {
			var to string
			if err := rows.Scan(&to); err != nil {
				rows.Close()
				return err
			}
			dependents = append(dependents, to)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, to := range dependents {
			if skipped[to] {
				continue
			}
			skipped[to] = true
			res, err := tx.ExecContext(ctx, `
				UPDATE run_steps SET status = ?, finished_at = ?
				WHERE run_id = ? AND step_id = ? AND status IN (?, ?)`,
				string(store.StepSkipped), timePtrToSQL(&now), runID, to, string(store.StepPending), string(store.StepRunning))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				queue = append(queue, to)
			}
		}
	}

	return tx.Commit()
}

func (s *Store) MarkStepSkipped(ctx context.Context, runStepID string) error {
	ctx, span := s.tracer.Start(ctx, "store.MarkStepSkipped")
	defer span.End()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE run_steps SET status = ?, finished_at = ? WHERE id = ?`,
		string(store.StepSkipped), timePtrToSQL(&now), runStepID)
	return err
}

func (s *Store) ScheduleRetry(ctx context.Context, runStepID string, nextRunAt time.Time) error {
	ctx, span := s.tracer.Start(ctx, "store.ScheduleRetry")
	defer span.End()
	_, err := s.db.ExecContext(ctx, `
		UPDATE run_steps SET status = ?, next_run_at = ?, started_at = NULL WHERE id = ?`,
		string(store.StepPending), timePtrToSQL(&nextRunAt), runStepID)
	return err
}

func (s *Store) ResetStaleRunningSteps(ctx context.Context, runID string, olderThan time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "store.ResetStaleRunningSteps")
	defer span.End()
	res, err := s.db.ExecContext(ctx, `
		UPDATE run_steps SET status = ?, started_at = NULL
		WHERE run_id = ? AND status = ? AND started_at IS NOT NULL AND started_at < ?`,
		string(store.StepPending), runID, string(store.StepRunning), timePtrToSQL(&olderThan))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) GetStepOutputs(ctx context.Context, runID string) (map[string]map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetStepOutputs")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, outputs FROM run_steps
		WHERE run_id = ? AND status = ? AND outputs IS NOT NULL`, runID, string(store.StepSucceeded))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]map[string]any{}
	for rows.Next() {
		var stepID, outputs string
		if err := rows.Scan(&stepID, &outputs); err != nil {
			return nil, err
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(outputs), &decoded); err != nil {
			return nil, fmt.Errorf("decoding outputs for step %s: %w", stepID, err)
		}
		out[stepID] = decoded
	}
	return out, rows.Err()
}

// ---- attempts ----

func (s *Store) InsertAttempt(ctx context.Context, runStepID string, request string) (*store.StepAttempt, error) {
	ctx, span := s.tracer.Start(ctx, "store.InsertAttempt")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var maxAttempt sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(attempt_no) FROM step_attempts WHERE run_step_id = ?`, runStepID).Scan(&maxAttempt); err != nil {
		return nil, err
	}
	attemptNo := 1
	if maxAttempt.Valid {
		attemptNo = int(maxAttempt.Int64) + 1
	}

	id := s.newID()
	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO step_attempts (id, run_step_id, attempt_no, status, request, response, error, duration_ms, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL, ?, NULL)`,
		id, runStepID, attemptNo, string(store.AttemptRunning), request, timePtrToSQL(&now))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &store.StepAttempt{ID: id, RunStepID: runStepID, AttemptNo: attemptNo, Status: store.AttemptRunning, Request: request, CreatedAt: now}, nil
}

func (s *Store) FinishAttempt(ctx context.Context, attemptID string, status store.AttemptStatus, response, attemptErr *string, durationMs int64) error {
	ctx, span := s.tracer.Start(ctx, "store.FinishAttempt")
	defer span.End()
	now := time.Now()
	dur := int64(math.Max(0, float64(durationMs)))
	_, err := s.db.ExecContext(ctx, `
		UPDATE step_attempts SET status = ?, response = ?, error = ?, duration_ms = ?, finished_at = ?
		WHERE id = ?`,
		string(status), response, attemptErr, dur, timePtrToSQL(&now), attemptID)
	return err
}

func (s *Store) ListAttempts(ctx context.Context, runStepID string) ([]store.StepAttempt, error) {
	ctx, span := s.tracer.Start(ctx, "store.ListAttempts")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_step_id, attempt_no, status, request, response, error, duration_ms, created_at, finished_at
		FROM step_attempts WHERE run_step_id = ? ORDER BY attempt_no`, runStepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.StepAttempt
	for rows.Next() {
		var a store.StepAttempt
		var status, created string
		var response, attemptErr sql.NullString
		var durationMs sql.NullInt64
		var finishedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.RunStepID, &a.AttemptNo, &status, &a.Request, &response, &attemptErr, &durationMs, &created, &finishedAt); err != nil {
			return nil, err
		}
		a.Status = store.AttemptStatus(status)
		a.CreatedAt = sqlToTime(created)
		a.FinishedAt = sqlToTimePtr(finishedAt)
		if response.Valid {
			a.Response = &response.String
		}
		if attemptErr.Valid {
			a.Error = &attemptErr.String
		}
		if durationMs.Valid {
			a.DurationMs = &durationMs.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---- events ----

func (s *Store) AppendEvent(ctx context.Context, runID, eventType, payload string) (*store.RunEvent, error) {
	ctx, span := s.tracer.Start(ctx, "store.AppendEvent")
	defer span.End()
	span.SetAttributes(attribute.String("event_type", eventType))

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, type, payload, created_at) VALUES (?, ?, ?, ?)`,
		runID, eventType, payload, timePtrToSQL(&now))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &store.RunEvent{ID: id, RunID: runID, Type: eventType, Payload: payload, CreatedAt: now}, nil
}

func (s *Store) GetEventsAfter(ctx context.Context, runID string, afterID int64, limit int) ([]store.RunEvent, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetEventsAfter")
	defer span.End()

	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, type, payload, created_at FROM run_events
		WHERE run_id = ? AND id > ? ORDER BY id LIMIT ?`, runID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.RunEvent
	for rows.Next() {
		var e store.RunEvent
		var created string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = sqlToTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ store.Store = (*Store)(nil)
