package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/apperrors"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
)

func leadRows(leads ...*model.Lead) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "status", "mobile_valid",
		"last_action_utc", "next_action", "next_action_due_utc",
	})
	for _, l := range leads {
		rows.AddRow(l.ID, l.OrganizationID, string(l.Status), l.MobileValid,
			l.LastActionAt, l.NextAction, l.NextActionDueAt)
	}
	return rows
}

func TestSaveLead(t *testing.T) {
	repo, mock := newTestRepo(t)
	lead := model.NewLead()

	mock.ExpectExec(`INSERT INTO "leads"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveLead(context.Background(), lead)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveLead_ValidationFailure(t *testing.T) {
	repo, _ := newTestRepo(t)
	lead := model.NewLead(func(l *model.Lead) { l.OrganizationID = "" })

	err := repo.SaveLead(context.Background(), lead)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestFindLeadByID(t *testing.T) {
	repo, mock := newTestRepo(t)
	lead := model.NewLead(func(l *model.Lead) { l.Status = model.StatusWaitingD2 })

	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE id = \$1`).
		WillReturnRows(leadRows(lead))

	found, err := repo.FindLeadByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, found.ID)
	assert.Equal(t, model.StatusWaitingD2, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLeadByID_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE id = \$1`).
		WillReturnRows(leadRows())

	found, err := repo.FindLeadByID(context.Background(), "missing-lead")
	require.Error(t, err)
	assert.Nil(t, found)
	assert.True(t, apperrors.IsNotFoundError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDueLeads(t *testing.T) {
	repo, mock := newTestRepo(t)
	now := time.Now().UTC()
	due := now.Add(-time.Hour)
	first := model.NewLead(func(l *model.Lead) {
		l.Status = model.StatusWaitingD2
		l.NextActionDueAt = &due
	})
	second := model.NewLead(func(l *model.Lead) {
		l.Status = model.StatusWaitingD1
		l.NextActionDueAt = &now
	})

	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE status IN .+next_action_due_utc <= \$\d.+organization_id = \$\d.+ORDER BY next_action_due_utc ASC`).
		WillReturnRows(leadRows(first, second))

	leads, err := repo.FindDueLeads(context.Background(), first.OrganizationID, now)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, first.ID, leads[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDueLeads_AllTenants(t *testing.T) {
	repo, mock := newTestRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE status IN .+next_action_due_utc <= \$\d.+ORDER BY next_action_due_utc ASC`).
		WillReturnRows(leadRows())

	leads, err := repo.FindDueLeads(context.Background(), "", now)
	require.NoError(t, err)
	assert.Empty(t, leads)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadTransact_CommitPath(t *testing.T) {
	repo, mock := newTestRepo(t)
	lead := model.NewLead(func(l *model.Lead) { l.Status = model.StatusNew })
	entry := model.NewAuditLogEntry(func(e *model.AuditLogEntry) {
		e.LeadID = lead.ID
		e.OrganizationID = lead.OrganizationID
	})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE id = \$1.+FOR UPDATE`).
		WillReturnRows(leadRows(lead))
	mock.ExpectExec(`UPDATE "leads" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "audit_logs"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.LeadTransact(context.Background(), func(tx LeadTx) error {
		locked, err := tx.FindByIDForUpdate(context.Background(), lead.ID)
		if err != nil {
			return err
		}
		fields := model.FieldSet{
			model.ColStatus:       model.StatusContacted1,
			model.ColLastActionAt: time.Now().UTC(),
		}
		if err := tx.UpdateFields(context.Background(), locked.ID, fields); err != nil {
			return err
		}
		return tx.AppendAuditLog(context.Background(), entry)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadTransact_RollbackOnError(t *testing.T) {
	repo, mock := newTestRepo(t)
	lead := model.NewLead()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE id = \$1.+FOR UPDATE`).
		WillReturnRows(leadRows(lead))
	mock.ExpectRollback()

	sentinel := errors.New("denied")
	err := repo.LeadTransact(context.Background(), func(tx LeadTx) error {
		if _, err := tx.FindByIDForUpdate(context.Background(), lead.ID); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadTransact_LockMissingLead(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "leads" WHERE id = \$1.+FOR UPDATE`).
		WillReturnRows(leadRows())
	mock.ExpectRollback()

	err := repo.LeadTransact(context.Background(), func(tx LeadTx) error {
		_, err := tx.FindByIDForUpdate(context.Background(), "missing-lead")
		return err
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFields_ZeroRowsIsNotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "leads" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.LeadTransact(context.Background(), func(tx LeadTx) error {
		return tx.UpdateFields(context.Background(), "missing-lead", model.FieldSet{
			model.ColStatus: model.StatusContacted1,
		})
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
