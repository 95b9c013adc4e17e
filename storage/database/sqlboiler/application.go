package boiledrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
)

const (
	applicationColumns = `id, student_id, school_name, program, application_type, deadline, status, notes, created_at, updated_at`
	slotColumns        = `id, application_id, student_id, essay_feedback_id, label, prompt, word_limit, status, display_order, created_at, updated_at`
	submissionColumns  = `id, application_id, student_id, submitted_at, essays, notes`

	submissionApplicationKey = "submitted_applications_application_id_key"
)

type applicationRow struct {
	ID         string    `boil:"id"`
	StudentID  string    `boil:"student_id"`
	SchoolName string    `boil:"school_name"`
	Program    string    `boil:"program"`
	Type       string    `boil:"application_type"`
	Deadline   time.Time `boil:"deadline"`
	Status     string    `boil:"status"`
	Notes      string    `boil:"notes"`
	CreatedAt  time.Time `boil:"created_at"`
	UpdatedAt  time.Time `boil:"updated_at"`
}

type slotRow struct {
	ID            string      `boil:"id"`
	ApplicationID string      `boil:"application_id"`
	StudentID     string      `boil:"student_id"`
	DraftID       null.String `boil:"essay_feedback_id"`
	Label         string      `boil:"label"`
	Prompt        null.String `boil:"prompt"`
	WordLimit     null.Int    `boil:"word_limit"`
	Status        string      `boil:"status"`
	DisplayOrder  int         `boil:"display_order"`
	CreatedAt     time.Time   `boil:"created_at"`
	UpdatedAt     time.Time   `boil:"updated_at"`
}

type submissionRow struct {
	ID            string    `boil:"id"`
	ApplicationID string    `boil:"application_id"`
	StudentID     string    `boil:"student_id"`
	SubmittedAt   time.Time `boil:"submitted_at"`
	Essays        []byte    `boil:"essays"`
	Notes         string    `boil:"notes"`
}

type applicationRepository struct {
	repository
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(exec core.DBExecutor) *applicationRepository {
	return &applicationRepository{repository{exec: exec}}
}

func (repo applicationRepository) unboilApplication(row applicationRow) application.Application {
	return application.Application{
		ID:         row.ID,
		StudentID:  row.StudentID,
		SchoolName: row.SchoolName,
		Program:    row.Program,
		Type:       application.Type(row.Type),
		Deadline:   row.Deadline.UTC(),
		Status:     application.Status(row.Status),
		Notes:      row.Notes,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

func (repo applicationRepository) boilSlot(slot application.Slot) slotRow {
	row := slotRow{
		ID:            slot.ID,
		ApplicationID: slot.ApplicationID,
		StudentID:     slot.StudentID,
		DraftID:       null.StringFromPtr(slot.DraftID),
		Label:         slot.Label,
		Prompt:        null.NewString(slot.Prompt, slot.Prompt != ""),
		Status:        string(slot.Status),
		DisplayOrder:  slot.DisplayOrder,
		CreatedAt:     slot.CreatedAt.UTC(),
		UpdatedAt:     slot.UpdatedAt.UTC(),
	}
	if slot.WordLimit != nil {
		row.WordLimit = null.IntFrom(*slot.WordLimit)
	}
	return row
}

func (repo applicationRepository) unboilSlot(row slotRow) application.Slot {
	slot := application.Slot{
		ID:            row.ID,
		ApplicationID: row.ApplicationID,
		StudentID:     row.StudentID,
		DraftID:       row.DraftID.Ptr(),
		Label:         row.Label,
		Prompt:        row.Prompt.String,
		Status:        application.SlotStatus(row.Status),
		DisplayOrder:  row.DisplayOrder,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.WordLimit.Valid {
		limit := row.WordLimit.Int
		slot.WordLimit = &limit
	}
	return slot
}

func (repo applicationRepository) unboilSubmission(row submissionRow) (application.Submission, error) {
	sub := application.Submission{
		ID:            row.ID,
		ApplicationID: row.ApplicationID,
		StudentID:     row.StudentID,
		SubmittedAt:   row.SubmittedAt,
		Notes:         row.Notes,
		Essays:        []application.EssaySnapshot{},
	}
	if len(row.Essays) > 0 {
		if err := json.Unmarshal(row.Essays, &sub.Essays); err != nil {
			return application.Submission{}, errors.Wrapf(err, "decoding essays of submission %s", row.ID)
		}
	}
	return sub, nil
}

func (repo applicationRepository) CreateApplication(ctx context.Context, app application.Application, exec ...core.DBExecutor) (application.Application, error) {
	_, err := queries.Raw(
		`INSERT INTO application (`+applicationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		app.ID, app.StudentID, app.SchoolName, app.Program, string(app.Type), app.Deadline,
		string(app.Status), app.Notes, app.CreatedAt.UTC(), app.UpdatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return application.Application{}, errors.Wrap(err, "inserting application")
	}
	return app, nil
}

func (repo applicationRepository) GetApplication(ctx context.Context, id string, exec ...core.DBExecutor) (application.Application, error) {
	var row applicationRow
	err := queries.Raw(`SELECT `+applicationColumns+` FROM application WHERE id::text = $1`, id).
		Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return application.Application{}, trapNoRowsErr(err, application.ErrNotFound, "getting application")
	}
	return repo.unboilApplication(row), nil
}

func (repo applicationRepository) QueryApplications(ctx context.Context, filter *application.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]application.Application, error) {
	w := new(where)
	if filter != nil {
		if filter.StudentIDs != nil {
			w.add("student_id::text = ANY(?)", pq.Array(filter.StudentIDs))
		}
		if len(filter.Statuses) > 0 {
			w.add("status = ANY(?)", pq.Array(filter.Statuses))
		}
		if !filter.From.IsZero() {
			w.add("deadline >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			w.add("deadline <= ?", filter.To)
		}
		if filter.Search != "" {
			val := likePattern(filter.Search)
			w.add("(school_name ILIKE ? OR program ILIKE ?)", val, val)
		}
	}

	var rows []applicationRow
	q := `SELECT ` + applicationColumns + ` FROM application` + w.String() + orderBy(ordering, "deadline ASC, created_at ASC")
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying applications")
	}
	apps := make([]application.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, repo.unboilApplication(row))
	}
	return apps, nil
}

func (repo applicationRepository) UpdateApplication(ctx context.Context, app application.Application, exec ...core.DBExecutor) (application.Application, error) {
	res, err := queries.Raw(
		`UPDATE application SET school_name = $2, program = $3, application_type = $4, deadline = $5,
			status = $6, notes = $7, updated_at = $8
		WHERE id = $1`,
		app.ID, app.SchoolName, app.Program, string(app.Type), app.Deadline, string(app.Status), app.Notes, app.UpdatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return application.Application{}, errors.Wrap(err, "updating application")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return application.Application{}, application.ErrNotFound
	}
	return app, nil
}

func (repo applicationRepository) CreateSlot(ctx context.Context, slot application.Slot, exec ...core.DBExecutor) (application.Slot, error) {
	row := repo.boilSlot(slot)
	_, err := queries.Raw(
		`INSERT INTO application_essays (`+slotColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID, row.ApplicationID, row.StudentID, row.DraftID, row.Label, row.Prompt, row.WordLimit,
		row.Status, row.DisplayOrder, row.CreatedAt, row.UpdatedAt,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return application.Slot{}, errors.Wrap(err, "inserting essay")
	}
	return slot, nil
}

func (repo applicationRepository) GetSlot(ctx context.Context, id string, exec ...core.DBExecutor) (application.Slot, error) {
	var row slotRow
	err := queries.Raw(`SELECT `+slotColumns+` FROM application_essays WHERE id::text = $1`, id).
		Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return application.Slot{}, trapNoRowsErr(err, application.ErrSlotNotFound, "getting essay")
	}
	return repo.unboilSlot(row), nil
}

func (repo applicationRepository) listSlots(ctx context.Context, exec core.DBExecutor, cond string, arg interface{}) ([]application.Slot, error) {
	var rows []slotRow
	q := `SELECT ` + slotColumns + ` FROM application_essays WHERE ` + cond + ` ORDER BY display_order, created_at`
	if err := queries.Raw(q, arg).Bind(ctx, exec, &rows); err != nil {
		return nil, errors.Wrap(err, "listing essays")
	}
	slots := make([]application.Slot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, repo.unboilSlot(row))
	}
	return slots, nil
}

func (repo applicationRepository) ListSlots(ctx context.Context, applicationIDs []string, exec ...core.DBExecutor) ([]application.Slot, error) {
	return repo.listSlots(ctx, repo.getExec(exec), "application_id::text = ANY($1)", pq.Array(applicationIDs))
}

func (repo applicationRepository) ListSlotsByDraft(ctx context.Context, draftID string, exec ...core.DBExecutor) ([]application.Slot, error) {
	return repo.listSlots(ctx, repo.getExec(exec), "essay_feedback_id::text = $1", draftID)
}

func (repo applicationRepository) UpdateSlot(ctx context.Context, slot application.Slot, exec ...core.DBExecutor) (application.Slot, error) {
	row := repo.boilSlot(slot)
	res, err := queries.Raw(
		`UPDATE application_essays SET essay_feedback_id = $2, label = $3, prompt = $4, word_limit = $5,
			status = $6, display_order = $7, updated_at = $8
		WHERE id = $1`,
		row.ID, row.DraftID, row.Label, row.Prompt, row.WordLimit, row.Status, row.DisplayOrder, row.UpdatedAt,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return application.Slot{}, errors.Wrap(err, "updating essay")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return application.Slot{}, application.ErrSlotNotFound
	}
	return slot, nil
}

func (repo applicationRepository) DeleteSlot(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := queries.Raw(`DELETE FROM application_essays WHERE id::text = $1`, id).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return errors.Wrap(err, "deleting essay")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return application.ErrSlotNotFound
	}
	return nil
}

func (repo applicationRepository) CreateSubmission(ctx context.Context, sub application.Submission, exec ...core.DBExecutor) (application.Submission, error) {
	essays, err := json.Marshal(sub.Essays)
	if err != nil {
		return application.Submission{}, errors.Wrap(err, "encoding essays")
	}
	_, err = queries.Raw(
		`INSERT INTO submitted_applications (`+submissionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.ApplicationID, sub.StudentID, sub.SubmittedAt.UTC(), essays, sub.Notes,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		if isUniqueViolation(err, submissionApplicationKey) {
			return application.Submission{}, application.ErrAlreadySubmitted
		}
		return application.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return sub, nil
}

func (repo applicationRepository) GetSubmission(ctx context.Context, applicationID string, exec ...core.DBExecutor) (application.Submission, error) {
	var row submissionRow
	err := queries.Raw(`SELECT `+submissionColumns+` FROM submitted_applications WHERE application_id::text = $1`, applicationID).
		Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return application.Submission{}, trapNoRowsErr(err, application.ErrSubmissionNotFound, "getting submission")
	}
	return repo.unboilSubmission(row)
}

func (repo applicationRepository) ListSubmissions(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]application.Submission, error) {
	w := new(where)
	if studentIDs != nil {
		w.add("student_id::text = ANY(?)", pq.Array(studentIDs))
	}

	var rows []submissionRow
	q := `SELECT ` + submissionColumns + ` FROM submitted_applications` + w.String() + ` ORDER BY submitted_at DESC`
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "listing submissions")
	}
	subs := make([]application.Submission, 0, len(rows))
	for _, row := range rows {
		sub, err := repo.unboilSubmission(row)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
