// Package postgres implements run.Store on PostgreSQL with pgx. Every predicate scoped
// mutation is a single UPDATE ... WHERE ... RETURNING statement, which keeps claims and
// run completion race free across processes sharing the database.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viant/graphrun/internal/clock"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao"
	"github.com/viant/graphrun/service/dao/criteria"
	"github.com/viant/graphrun/service/dao/run"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const runJobColumns = `j.id, j.run_id, j.workflow_job_id, j.job_name, j.status, j.needs_input, j.ready_for_input,
	j.task_handle, j.settings, j.error, j.created_at, j.updated_at`

// inputsReady holds when no input of RunJob j is unbound, bound to a missing resource or to
// a resource without compatible representation.
const inputsReady = `NOT EXISTS (
	SELECT 1 FROM run_job_inputs i
	LEFT JOIN resources r ON r.id = i.resource_id
	WHERE i.run_job_id = j.id AND (r.id IS NULL OR r.compat_url = ''))`

// Store is a PostgreSQL run store.
type Store struct {
	db *pgxpool.Pool
}

var _ run.Store = (*Store)(nil)

// New creates a store on an existing pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	store := New(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) CreateRun(ctx context.Context, plan *execution.Plan) error {
	if plan == nil || plan.Run == nil {
		return dao.ErrNilEntity
	}
	if plan.Run.ID == "" {
		return dao.ErrInvalidID
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		r := plan.Run
		if _, err := tx.Exec(ctx, `INSERT INTO runs (id, workflow, status, created_at, finished_at) VALUES ($1, $2, $3, $4, $5)`,
			r.ID, r.Workflow, string(r.Status), r.CreatedAt, r.FinishedAt); err != nil {
			return wrapInsert("run "+r.ID, err)
		}
		for _, j := range plan.RunJobs {
			if _, err := tx.Exec(ctx, `INSERT INTO run_jobs (id, run_id, workflow_job_id, job_name, status, needs_input, ready_for_input, task_handle, settings, error, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				j.ID, j.RunID, j.WorkflowJobID, j.JobName, string(j.Status), j.NeedsInput, j.ReadyForInput, j.TaskHandle, j.Settings, j.Error, j.CreatedAt, j.UpdatedAt); err != nil {
				return wrapInsert("run job "+j.ID, err)
			}
		}
		for _, resource := range plan.Resources {
			if err := saveResource(ctx, tx, resource); err != nil {
				return err
			}
		}
		for _, input := range plan.Inputs {
			if _, err := tx.Exec(ctx, `INSERT INTO run_job_inputs (id, run_job_id, port, resource_id) VALUES ($1, $2, $3, NULLIF($4, ''))`,
				input.ID, input.RunJobID, input.Port, input.ResourceID); err != nil {
				return wrapInsert("input "+input.ID, err)
			}
		}
		for _, output := range plan.Outputs {
			if _, err := tx.Exec(ctx, `INSERT INTO run_job_outputs (id, run_job_id, port, resource_id) VALUES ($1, $2, $3, $4)`,
				output.ID, output.RunJobID, output.Port, output.ResourceID); err != nil {
				return wrapInsert("output "+output.ID, err)
			}
		}
		return nil
	})
}

func wrapInsert(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, dao.ErrAlreadyExists)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}

func (s *Store) Run(ctx context.Context, runID string) (*execution.WorkflowRun, error) {
	if runID == "" {
		return nil, dao.ErrInvalidID
	}
	row := s.db.QueryRow(ctx, `SELECT id, workflow, status, created_at, finished_at FROM runs WHERE id = $1`, runID)
	ret, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, dao.ErrNotFound)
	}
	return ret, err
}

func (s *Store) ListRuns(ctx context.Context, parameters ...*dao.Parameter) ([]*execution.WorkflowRun, error) {
	query := `SELECT id, workflow, status, created_at, finished_at FROM runs`
	var args []interface{}
	if statuses := criteria.StatusValues(parameters); len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, statuses)
	}
	rows, err := s.db.Query(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []*execution.WorkflowRun
	for rows.Next() {
		item, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func scanRun(row pgx.Row) (*execution.WorkflowRun, error) {
	ret := &execution.WorkflowRun{}
	var status string
	if err := row.Scan(&ret.ID, &ret.Workflow, &status, &ret.CreatedAt, &ret.FinishedAt); err != nil {
		return nil, err
	}
	ret.Status = execution.RunStatus(status)
	return ret, nil
}

func scanRunJob(row pgx.Row) (*execution.RunJob, error) {
	ret := &execution.RunJob{}
	var status string
	if err := row.Scan(&ret.ID, &ret.RunID, &ret.WorkflowJobID, &ret.JobName, &status, &ret.NeedsInput, &ret.ReadyForInput,
		&ret.TaskHandle, &ret.Settings, &ret.Error, &ret.CreatedAt, &ret.UpdatedAt); err != nil {
		return nil, err
	}
	ret.Status = execution.Status(status)
	return ret, nil
}

func (s *Store) queryRunJobs(ctx context.Context, query string, args ...interface{}) (execution.RunJobs, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret execution.RunJobs
	for rows.Next() {
		item, err := scanRunJob(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *Store) queryIDs(ctx context.Context, q querier, query string, args ...interface{}) ([]string, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func (s *Store) RunJob(ctx context.Context, id string) (*execution.RunJob, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	ret, err := scanRunJob(s.db.QueryRow(ctx, `SELECT `+runJobColumns+` FROM run_jobs j WHERE j.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run job %s: %w", id, dao.ErrNotFound)
	}
	return ret, err
}

func (s *Store) RunJobs(ctx context.Context, runID string) (execution.RunJobs, error) {
	return s.queryRunJobs(ctx, `SELECT `+runJobColumns+` FROM run_jobs j WHERE j.run_id = $1 ORDER BY j.seq`, runID)
}

func (s *Store) MarkReadyForInput(ctx context.Context, runID string) ([]string, error) {
	return s.queryIDs(ctx, s.db, `UPDATE run_jobs j SET ready_for_input = TRUE, updated_at = $2
		WHERE j.run_id = $1 AND j.status = 'NOT_RUNNING' AND j.needs_input AND NOT j.ready_for_input AND `+inputsReady+`
		RETURNING j.id`, runID, clock.Now())
}

func (s *Store) Eligible(ctx context.Context, runID string) (execution.RunJobs, error) {
	return s.queryRunJobs(ctx, `SELECT `+runJobColumns+` FROM run_jobs j
		WHERE j.run_id = $1 AND j.status = 'NOT_RUNNING' AND NOT j.needs_input AND `+inputsReady+`
		ORDER BY j.seq`, runID)
}

func (s *Store) Claim(ctx context.Context, runID string, ids []string) (execution.RunJobs, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryRunJobs(ctx, `UPDATE run_jobs j SET status = 'RUNNING', updated_at = $3
		WHERE j.run_id = $1 AND j.id = ANY($2) AND j.status = 'NOT_RUNNING' AND NOT j.needs_input
		RETURNING `+runJobColumns, runID, ids, clock.Now())
}

func (s *Store) SetTaskHandle(ctx context.Context, runJobID, handle string) error {
	tag, err := s.db.Exec(ctx, `UPDATE run_jobs SET task_handle = $2, updated_at = $3 WHERE id = $1`, runJobID, handle, clock.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run job %s: %w", runJobID, dao.ErrNotFound)
	}
	return nil
}

func (s *Store) Transition(ctx context.Context, runJobID string, from, to execution.Status, message string) (bool, error) {
	if err := execution.CheckTransition(from, to); err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `UPDATE run_jobs SET status = $3, updated_at = $5,
		error = CASE WHEN $4 = '' THEN error ELSE $4 END
		WHERE id = $1 AND status = $2`, runJobID, string(from), string(to), message, clock.Now())
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := s.RunJob(ctx, runJobID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) CancelBlocked(ctx context.Context, runID string) ([]string, error) {
	var cancelled []string
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for {
			ids, err := s.queryIDs(ctx, tx, `UPDATE run_jobs j
				SET status = 'CANCELLED', updated_at = $2, error = 'upstream job ' || p.workflow_job_id || ' is ' || p.status
				FROM run_job_inputs i
				JOIN run_job_outputs o ON o.resource_id = i.resource_id
				JOIN run_jobs p ON p.id = o.run_job_id
				WHERE i.run_job_id = j.id AND j.run_id = $1 AND j.status = 'NOT_RUNNING'
				AND p.status IN ('FAILED', 'CANCELLED')
				RETURNING j.id`, runID, clock.Now())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			cancelled = append(cancelled, ids...)
		}
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func nonTerminal() []string {
	statuses := execution.NonTerminalStatuses()
	ret := make([]string, len(statuses))
	for i, status := range statuses {
		ret[i] = string(status)
	}
	return ret
}

func (s *Store) HasNonTerminal(ctx context.Context, runID string) (bool, error) {
	var ret bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM run_jobs WHERE run_id = $1 AND status = ANY($2))`, runID, nonTerminal()).Scan(&ret)
	return ret, err
}

func (s *Store) FinishRun(ctx context.Context, runID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE runs SET status = 'FINISHED', finished_at = $2 WHERE id = $1 AND status = 'RUNNING'`, runID, clock.Now())
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := s.Run(ctx, runID); err != nil {
		return false, err
	}
	return false, nil
}

type executor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func saveResource(ctx context.Context, db executor, resource *execution.Resource) error {
	if resource == nil {
		return dao.ErrNilEntity
	}
	if resource.ID == "" {
		return dao.ErrInvalidID
	}
	_, err := db.Exec(ctx, `INSERT INTO resources (id, name, run_id, resource_type, raw_url, compat_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, run_id = EXCLUDED.run_id, resource_type = EXCLUDED.resource_type,
		raw_url = EXCLUDED.raw_url, compat_url = EXCLUDED.compat_url`,
		resource.ID, resource.Name, resource.RunID, resource.ResourceType, resource.RawURL, resource.CompatURL, resource.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save resource %s: %w", resource.ID, err)
	}
	return nil
}

func (s *Store) SaveResource(ctx context.Context, resource *execution.Resource) error {
	return saveResource(ctx, s.db, resource)
}

func (s *Store) Resource(ctx context.Context, id string) (*execution.Resource, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	ret := &execution.Resource{}
	err := s.db.QueryRow(ctx, `SELECT id, name, run_id, resource_type, raw_url, compat_url, created_at FROM resources WHERE id = $1`, id).
		Scan(&ret.ID, &ret.Name, &ret.RunID, &ret.ResourceType, &ret.RawURL, &ret.CompatURL, &ret.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resource %s: %w", id, dao.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Store) SetCompatible(ctx context.Context, resourceID, compatURL string) error {
	tag, err := s.db.Exec(ctx, `UPDATE resources SET compat_url = $2 WHERE id = $1`, resourceID, compatURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("resource %s: %w", resourceID, dao.ErrNotFound)
	}
	return nil
}

func (s *Store) Inputs(ctx context.Context, runJobID string) ([]*execution.Input, error) {
	rows, err := s.db.Query(ctx, `SELECT id, run_job_id, port, COALESCE(resource_id, '') FROM run_job_inputs WHERE run_job_id = $1 ORDER BY seq`, runJobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []*execution.Input
	for rows.Next() {
		item := &execution.Input{}
		if err := rows.Scan(&item.ID, &item.RunJobID, &item.Port, &item.ResourceID); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *Store) Outputs(ctx context.Context, runJobID string) ([]*execution.Output, error) {
	rows, err := s.db.Query(ctx, `SELECT id, run_job_id, port, resource_id FROM run_job_outputs WHERE run_job_id = $1 ORDER BY seq`, runJobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []*execution.Output
	for rows.Next() {
		item := &execution.Output{}
		if err := rows.Scan(&item.ID, &item.RunJobID, &item.Port, &item.ResourceID); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *Store) RunsAwaiting(ctx context.Context, resourceID string) ([]string, error) {
	return s.queryIDs(ctx, s.db, `SELECT DISTINCT j.run_id FROM run_job_inputs i
		JOIN run_jobs j ON j.id = i.run_job_id
		JOIN runs r ON r.id = j.run_id
		WHERE i.resource_id = $1 AND j.status = 'NOT_RUNNING' AND r.status = 'RUNNING'`, resourceID)
}
