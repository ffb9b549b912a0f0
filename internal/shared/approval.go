package shared

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
	// ApprovalCancel marks a cancel action.
	ApprovalCancel ApprovalAction = "CANCEL"
)

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID      int64          `json:"id"`
	Module  string         `json:"module"`
	RefID   int64          `json:"refId"`
	ActorID int64          `json:"actorId"`
	IsAdmin bool           `json:"isAdmin"`
	Action  ApprovalAction `json:"action"`
	Note    string         `json:"note,omitempty"`
	At      time.Time      `json:"at"`
}

// ApprovalRecorder persists approval history. It writes through the caller's
// connection so the entry commits or rolls back with the status change.
type ApprovalRecorder struct{}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder() *ApprovalRecorder {
	return &ApprovalRecorder{}
}

func (log ApprovalLog) validate() error {
	if log.Module == "" {
		return errors.New("approval module required")
	}
	if log.RefID == 0 {
		return errors.New("approval ref id required")
	}
	if log.Action == "" {
		return errors.New("approval action required")
	}
	return nil
}

// Record writes the approval entry using q.
func (r *ApprovalRecorder) Record(ctx context.Context, q db.DBTX, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now()
	}
	_, err := q.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, is_admin, action, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, log.Module, log.RefID, db.NullInt(log.ActorID), log.IsAdmin, string(log.Action), log.Note, log.At)
	return err
}

// List returns approvals for module/ref in chronological order.
func (r *ApprovalRecorder) List(ctx context.Context, q db.DBTX, module string, refID int64) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := q.Query(ctx, `SELECT id, module, ref_id, COALESCE(actor_id, 0), is_admin, action, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, module, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	logs := []ApprovalLog{}
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &l.IsAdmin, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
