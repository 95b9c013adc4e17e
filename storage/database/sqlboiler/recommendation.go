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
	"github.com/admitdesk/admitdesk/core/recommendation"
)

const recommendationColumns = `id, student_id, counselor_id, application_id, referee_name, referee_role, referee_email,
	status, answers, counselor_notes, letter_text, created_at, updated_at, submitted_at`

type recommendationRow struct {
	ID             string      `boil:"id"`
	StudentID      string      `boil:"student_id"`
	CounselorID    null.String `boil:"counselor_id"`
	ApplicationID  null.String `boil:"application_id"`
	RefereeName    string      `boil:"referee_name"`
	RefereeRole    string      `boil:"referee_role"`
	RefereeEmail   string      `boil:"referee_email"`
	Status         string      `boil:"status"`
	Answers        []byte      `boil:"answers"`
	CounselorNotes string      `boil:"counselor_notes"`
	LetterText     string      `boil:"letter_text"`
	CreatedAt      time.Time   `boil:"created_at"`
	UpdatedAt      time.Time   `boil:"updated_at"`
	SubmittedAt    null.Time   `boil:"submitted_at"`
}

type recommendationRepository struct {
	repository
}

var _ recommendation.Repository = (*recommendationRepository)(nil) // interface compliance check

func NewRecommendationRepository(exec core.DBExecutor) *recommendationRepository {
	return &recommendationRepository{repository{exec: exec}}
}

func (repo recommendationRepository) boil(rec recommendation.Recommendation) (recommendationRow, error) {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return recommendationRow{}, errors.Wrap(err, "encoding answers")
	}
	return recommendationRow{
		ID:             rec.ID,
		StudentID:      rec.StudentID,
		CounselorID:    null.StringFromPtr(rec.CounselorID),
		ApplicationID:  null.StringFromPtr(rec.ApplicationID),
		RefereeName:    rec.RefereeName,
		RefereeRole:    rec.RefereeRole,
		RefereeEmail:   rec.RefereeEmail,
		Status:         string(rec.Status),
		Answers:        answers,
		CounselorNotes: rec.CounselorNotes,
		LetterText:     rec.LetterText,
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      rec.UpdatedAt.UTC(),
		SubmittedAt:    null.TimeFromPtr(rec.SubmittedAt),
	}, nil
}

func (repo recommendationRepository) unboil(row recommendationRow) (recommendation.Recommendation, error) {
	rec := recommendation.Recommendation{
		ID:             row.ID,
		StudentID:      row.StudentID,
		CounselorID:    row.CounselorID.Ptr(),
		ApplicationID:  row.ApplicationID.Ptr(),
		RefereeName:    row.RefereeName,
		RefereeRole:    row.RefereeRole,
		RefereeEmail:   row.RefereeEmail,
		Status:         recommendation.Status(row.Status),
		CounselorNotes: row.CounselorNotes,
		LetterText:     row.LetterText,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		SubmittedAt:    row.SubmittedAt.Ptr(),
	}
	if len(row.Answers) > 0 {
		if err := json.Unmarshal(row.Answers, &rec.Answers); err != nil {
			return recommendation.Recommendation{}, errors.Wrapf(err, "decoding answers of recommendation %s", row.ID)
		}
	}
	if rec.Answers.Strengths == nil {
		rec.Answers.Strengths = []string{}
	}
	return rec, nil
}

func (repo recommendationRepository) CreateRecommendation(ctx context.Context, rec recommendation.Recommendation, exec ...core.DBExecutor) (recommendation.Recommendation, error) {
	row, err := repo.boil(rec)
	if err != nil {
		return recommendation.Recommendation{}, err
	}
	_, err = queries.Raw(
		`INSERT INTO recommendation (`+recommendationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		row.ID, row.StudentID, row.CounselorID, row.ApplicationID, row.RefereeName, row.RefereeRole, row.RefereeEmail,
		row.Status, row.Answers, row.CounselorNotes, row.LetterText, row.CreatedAt, row.UpdatedAt, row.SubmittedAt,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return recommendation.Recommendation{}, errors.Wrap(err, "inserting recommendation")
	}
	return rec, nil
}

func (repo recommendationRepository) GetRecommendation(ctx context.Context, id string, exec ...core.DBExecutor) (recommendation.Recommendation, error) {
	var row recommendationRow
	err := queries.Raw(`SELECT `+recommendationColumns+` FROM recommendation WHERE id::text = $1`, id).
		Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return recommendation.Recommendation{}, trapNoRowsErr(err, recommendation.ErrNotFound, "getting recommendation")
	}
	return repo.unboil(row)
}

func (repo recommendationRepository) QueryRecommendations(ctx context.Context, filter *recommendation.QueryFilter, exec ...core.DBExecutor) ([]recommendation.Recommendation, error) {
	w := new(where)
	if filter != nil {
		if filter.StudentIDs != nil {
			w.add("student_id::text = ANY(?)", pq.Array(filter.StudentIDs))
		}
		if filter.ApplicationID != "" {
			w.add("application_id::text = ?", filter.ApplicationID)
		}
		if len(filter.Statuses) > 0 {
			w.add("status = ANY(?)", pq.Array(filter.Statuses))
		}
	}

	var rows []recommendationRow
	q := `SELECT ` + recommendationColumns + ` FROM recommendation` + w.String() + ` ORDER BY created_at DESC`
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying recommendations")
	}
	recs := make([]recommendation.Recommendation, 0, len(rows))
	for _, row := range rows {
		rec, err := repo.unboil(row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (repo recommendationRepository) UpdateRecommendation(ctx context.Context, rec recommendation.Recommendation, exec ...core.DBExecutor) (recommendation.Recommendation, error) {
	row, err := repo.boil(rec)
	if err != nil {
		return recommendation.Recommendation{}, err
	}
	res, err := queries.Raw(
		`UPDATE recommendation SET counselor_id = $2, application_id = $3, referee_name = $4, referee_role = $5,
			referee_email = $6, status = $7, answers = $8, counselor_notes = $9, letter_text = $10,
			updated_at = $11, submitted_at = $12
		WHERE id = $1`,
		row.ID, row.CounselorID, row.ApplicationID, row.RefereeName, row.RefereeRole,
		row.RefereeEmail, row.Status, row.Answers, row.CounselorNotes, row.LetterText,
		row.UpdatedAt, row.SubmittedAt,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return recommendation.Recommendation{}, errors.Wrap(err, "updating recommendation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recommendation.Recommendation{}, recommendation.ErrNotFound
	}
	return rec, nil
}

func (repo recommendationRepository) CountByApplications(ctx context.Context, applicationIDs []string, exec ...core.DBExecutor) (map[string]application.RecommendationCounts, error) {
	var rows []struct {
		ApplicationID string `boil:"application_id"`
		Requested     int    `boil:"requested"`
		Submitted     int    `boil:"submitted"`
	}
	err := queries.Raw(
		`SELECT application_id, count(*) AS requested, count(*) FILTER (WHERE status = 'submitted') AS submitted
		FROM recommendation WHERE application_id::text = ANY($1)
		GROUP BY application_id`,
		pq.Array(applicationIDs),
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "counting recommendations")
	}
	counts := make(map[string]application.RecommendationCounts, len(rows))
	for _, row := range rows {
		counts[row.ApplicationID] = application.RecommendationCounts{Requested: row.Requested, Submitted: row.Submitted}
	}
	return counts, nil
}
