// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"context"
	"time"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain"
	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
	taskqueueerrors "github.com/clustervision/luna2-daemon-sub002/domain/taskqueue/errors"
)

// State is used to access the task queue.
type State struct {
	*domain.StateBase
}

// NewState returns a new state reference.
func NewState(factory coredatabase.TxnRunnerFactory) *State {
	return &State{
		StateBase: domain.NewStateBase(factory),
	}
}

// Enqueue adds the input task to its lane. Unless force is true, a task
// with the same subsystem and task name created after dedupSince is
// returned instead of inserting a new row.
func (st *State) Enqueue(
	ctx context.Context, task taskqueue.Task, dedupSince time.Time, force bool,
) (taskqueue.EnqueueResult, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return taskqueue.EnqueueResult{}, errors.Trace(err)
	}

	key := dedupKey{
		Subsystem: task.Subsystem,
		Task:      task.Task,
		Since:     dedupSince.UTC(),
	}
	dupStmt, err := st.Prepare(`
SELECT &queueTask.*
FROM   queue
WHERE  subsystem = $dedupKey.subsystem
AND    task = $dedupKey.task
AND    created_at > $dedupKey.since
ORDER BY id
LIMIT 1`, queueTask{}, key)
	if err != nil {
		return taskqueue.EnqueueResult{}, errors.Annotatef(err, "preparing dedup statement")
	}

	row := queueTask{
		Subsystem: task.Subsystem,
		Task:      task.Task,
		Param:     task.Param,
		RequestID: task.RequestID,
		Status:    status.Queued.String(),
		CreatedAt: task.Created.UTC(),
		ExpiresAt: task.Expires.UTC(),
	}
	insertStmt, err := st.Prepare(`
INSERT INTO queue (subsystem, task, param, request_id, status, created_at, expires_at)
VALUES ($queueTask.subsystem, $queueTask.task, $queueTask.param, $queueTask.request_id,
        $queueTask.status, $queueTask.created_at, $queueTask.expires_at)`, row)
	if err != nil {
		return taskqueue.EnqueueResult{}, errors.Annotatef(err, "preparing insert task statement")
	}

	var result taskqueue.EnqueueResult
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		if !force {
			var existing queueTask
			err := tx.Query(ctx, dupStmt, key).Get(&existing)
			if err == nil {
				result = taskqueue.EnqueueResult{
					ID:        existing.ID,
					RequestID: existing.RequestID,
					Outcome:   taskqueue.Duplicate,
				}
				return nil
			} else if !errors.Is(err, sqlair.ErrNoRows) {
				return errors.Annotatef(err, "checking for duplicate task")
			}
		}

		var outcome sqlair.Outcome
		if err := tx.Query(ctx, insertStmt, row).Get(&outcome); err != nil {
			return errors.Annotatef(err, "inserting task")
		}
		id, err := outcome.Result().LastInsertId()
		if err != nil {
			return errors.Trace(err)
		}
		result = taskqueue.EnqueueResult{
			ID:        id,
			RequestID: row.RequestID,
			Outcome:   taskqueue.Added,
		}
		return nil
	})
	return result, errors.Trace(err)
}

// Next returns the id of the task at the head of the input lane. Tasks
// that expired before now are not visible. If the lane has no visible
// task an error satisfying [taskqueueerrors.LaneEmpty] is returned.
func (st *State) Next(ctx context.Context, subsystem string, now time.Time) (int64, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}

	head := laneHead{Subsystem: subsystem, Now: now.UTC()}
	stmt, err := st.Prepare(`
SELECT &taskID.id
FROM   queue
WHERE  subsystem = $laneHead.subsystem
AND    expires_at > $laneHead.now
ORDER BY id
LIMIT 1`, taskID{}, head)
	if err != nil {
		return 0, errors.Annotatef(err, "preparing lane head statement")
	}

	var id taskID
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt, head).Get(&id)
		if errors.Is(err, sqlair.ErrNoRows) {
			return errors.Annotatef(taskqueueerrors.LaneEmpty, "lane %q", subsystem)
		}
		return errors.Trace(err)
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return id.ID, nil
}

// UpdateStatus sets the status of the input task. If the task does not
// exist an error satisfying [taskqueueerrors.TaskNotFound] is returned.
func (st *State) UpdateStatus(ctx context.Context, id int64, taskStatus status.Status) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	arg := taskStatusArg(id, taskStatus)
	stmt, err := st.Prepare(`
UPDATE queue
SET    status = $taskStatus.status
WHERE  id = $taskStatus.id`, arg)
	if err != nil {
		return errors.Annotatef(err, "preparing update status statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var outcome sqlair.Outcome
		if err := tx.Query(ctx, stmt, arg).Get(&outcome); err != nil {
			return errors.Trace(err)
		}
		return expectAffected(outcome, id)
	})
	return errors.Trace(err)
}

// Remove deletes the input task. Removing a task that no longer exists
// is not an error.
func (st *State) Remove(ctx context.Context, id int64) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	arg := taskID{ID: id}
	stmt, err := st.Prepare(`DELETE FROM queue WHERE id = $taskID.id`, arg)
	if err != nil {
		return errors.Annotatef(err, "preparing remove task statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return errors.Trace(tx.Query(ctx, stmt, arg).Run())
	})
	return errors.Trace(err)
}

// GetDetails returns the input task. If the task does not exist an error
// satisfying [taskqueueerrors.TaskNotFound] is returned.
func (st *State) GetDetails(ctx context.Context, id int64) (taskqueue.Task, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return taskqueue.Task{}, errors.Trace(err)
	}

	arg := taskID{ID: id}
	stmt, err := st.Prepare(`
SELECT &queueTask.*
FROM   queue
WHERE  id = $taskID.id`, queueTask{}, arg)
	if err != nil {
		return taskqueue.Task{}, errors.Annotatef(err, "preparing task details statement")
	}

	var row queueTask
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt, arg).Get(&row)
		if errors.Is(err, sqlair.ErrNoRows) {
			return errors.Annotatef(taskqueueerrors.TaskNotFound, "task %d", id)
		}
		return errors.Trace(err)
	})
	if err != nil {
		return taskqueue.Task{}, errors.Trace(err)
	}
	return row.toTask(), nil
}

// ReassignLane moves the input task to another lane. If the task does
// not exist an error satisfying [taskqueueerrors.TaskNotFound] is
// returned.
func (st *State) ReassignLane(ctx context.Context, id int64, subsystem string) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	arg := taskLane{ID: id, Subsystem: subsystem}
	stmt, err := st.Prepare(`
UPDATE queue
SET    subsystem = $taskLane.subsystem
WHERE  id = $taskLane.id`, arg)
	if err != nil {
		return errors.Annotatef(err, "preparing reassign lane statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var outcome sqlair.Outcome
		if err := tx.Query(ctx, stmt, arg).Get(&outcome); err != nil {
			return errors.Trace(err)
		}
		return expectAffected(outcome, id)
	})
	return errors.Trace(err)
}

// Lanes returns the lanes that have at least one visible task.
func (st *State) Lanes(ctx context.Context, now time.Time) ([]string, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	arg := instant{Now: now.UTC()}
	stmt, err := st.Prepare(`
SELECT DISTINCT subsystem AS &lane.subsystem
FROM   queue
WHERE  expires_at > $instant.now
ORDER BY subsystem`, lane{}, arg)
	if err != nil {
		return nil, errors.Annotatef(err, "preparing lanes statement")
	}

	var lanes []lane
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt, arg).GetAll(&lanes)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		}
		return errors.Trace(err)
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := make([]string, len(lanes))
	for i, l := range lanes {
		result[i] = l.Subsystem
	}
	return result, nil
}

// ExpireStale deletes queued tasks whose expiry is not after now and
// returns them. Tasks already in progress are left to their drainer.
func (st *State) ExpireStale(ctx context.Context, now time.Time) ([]taskqueue.Task, error) {
	arg := instant{Now: now.UTC()}
	return st.removeMatching(ctx, `
SELECT &queueTask.*
FROM   queue
WHERE  expires_at <= $instant.now
AND    status = 'queued'
ORDER BY id`, arg)
}

// RemoveInProgress deletes every task marked in progress and returns
// them. It is used at start up, when no drainer can be running, to clear
// tasks interrupted by a restart.
func (st *State) RemoveInProgress(ctx context.Context) ([]taskqueue.Task, error) {
	arg := taskStatus{Status: status.InProgress.String()}
	return st.removeMatching(ctx, `
SELECT &queueTask.*
FROM   queue
WHERE  status = $taskStatus.status
ORDER BY id`, arg)
}

func (st *State) removeMatching(ctx context.Context, query string, arg any) ([]taskqueue.Task, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	selectStmt, err := st.Prepare(query, queueTask{}, arg)
	if err != nil {
		return nil, errors.Annotatef(err, "preparing select statement")
	}
	deleteStmt, err := st.Prepare(`DELETE FROM queue WHERE id = $taskID.id`, taskID{})
	if err != nil {
		return nil, errors.Annotatef(err, "preparing remove task statement")
	}

	var rows []queueTask
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		rows = nil
		err := tx.Query(ctx, selectStmt, arg).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		} else if err != nil {
			return errors.Trace(err)
		}
		for _, row := range rows {
			if err := tx.Query(ctx, deleteStmt, taskID{ID: row.ID}).Run(); err != nil {
				return errors.Annotatef(err, "removing task %d", row.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	tasks := make([]taskqueue.Task, len(rows))
	for i, row := range rows {
		tasks[i] = row.toTask()
	}
	return tasks, nil
}

func taskStatusArg(id int64, s status.Status) taskStatus {
	return taskStatus{ID: id, Status: s.String()}
}

func expectAffected(outcome sqlair.Outcome, id int64) error {
	affected, err := outcome.Result().RowsAffected()
	if err != nil {
		return errors.Trace(err)
	}
	if affected == 0 {
		return errors.Annotatef(taskqueueerrors.TaskNotFound, "task %d", id)
	}
	return nil
}
