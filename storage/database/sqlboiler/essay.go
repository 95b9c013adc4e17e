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
	"github.com/admitdesk/admitdesk/core/essay"
)

const draftColumns = `id, student_id, counselor_id, title, prompt, content, ai_analysis, feedback_items,
	personal_message, reviewed_content, status, created_at, updated_at, sent_at`

type draftRow struct {
	ID              string      `boil:"id"`
	StudentID       string      `boil:"student_id"`
	CounselorID     null.String `boil:"counselor_id"`
	Title           string      `boil:"title"`
	Prompt          null.String `boil:"prompt"`
	Content         string      `boil:"content"`
	AIAnalysis      null.JSON   `boil:"ai_analysis"`
	FeedbackItems   []byte      `boil:"feedback_items"`
	PersonalMessage string      `boil:"personal_message"`
	ReviewedContent null.String `boil:"reviewed_content"`
	Status          string      `boil:"status"`
	CreatedAt       time.Time   `boil:"created_at"`
	UpdatedAt       time.Time   `boil:"updated_at"`
	SentAt          null.Time   `boil:"sent_at"`
}

type essayRepository struct {
	repository
}

var _ essay.Repository = (*essayRepository)(nil) // interface compliance check

func NewEssayRepository(exec core.DBExecutor) *essayRepository {
	return &essayRepository{repository{exec: exec}}
}

func (repo essayRepository) boil(d essay.Draft) (draftRow, error) {
	row := draftRow{
		ID:              d.ID,
		StudentID:       d.StudentID,
		CounselorID:     null.StringFromPtr(d.CounselorID),
		Title:           d.Title,
		Prompt:          null.NewString(d.Prompt, d.Prompt != ""),
		Content:         d.Content,
		PersonalMessage: d.PersonalMessage,
		ReviewedContent: null.StringFromPtr(d.ReviewedContent),
		Status:          string(d.Status),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
		SentAt:          null.TimeFromPtr(d.SentAt),
	}
	if d.Analysis != nil {
		if err := row.AIAnalysis.Marshal(d.Analysis); err != nil {
			return draftRow{}, errors.Wrap(err, "encoding analysis")
		}
	}
	items := d.FeedbackItems
	if items == nil {
		items = []essay.FeedbackItem{}
	}
	var err error
	if row.FeedbackItems, err = json.Marshal(items); err != nil {
		return draftRow{}, errors.Wrap(err, "encoding feedback items")
	}
	return row, nil
}

func (repo essayRepository) unboil(row draftRow) (essay.Draft, error) {
	d := essay.Draft{
		ID:              row.ID,
		StudentID:       row.StudentID,
		CounselorID:     row.CounselorID.Ptr(),
		Title:           row.Title,
		Prompt:          row.Prompt.String,
		Content:         row.Content,
		PersonalMessage: row.PersonalMessage,
		ReviewedContent: row.ReviewedContent.Ptr(),
		Status:          essay.Status(row.Status),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		SentAt:          row.SentAt.Ptr(),
	}
	if row.AIAnalysis.Valid {
		d.Analysis = new(essay.AnalysisResult)
		if err := row.AIAnalysis.Unmarshal(d.Analysis); err != nil {
			return essay.Draft{}, errors.Wrapf(err, "decoding analysis of draft %s", row.ID)
		}
	}
	if len(row.FeedbackItems) > 0 {
		if err := json.Unmarshal(row.FeedbackItems, &d.FeedbackItems); err != nil {
			return essay.Draft{}, errors.Wrapf(err, "decoding feedback items of draft %s", row.ID)
		}
	}
	if d.FeedbackItems == nil {
		d.FeedbackItems = []essay.FeedbackItem{}
	}
	return d, nil
}

func (repo essayRepository) unboilSlice(rows []draftRow) ([]essay.Draft, error) {
	drafts := make([]essay.Draft, 0, len(rows))
	for _, row := range rows {
		d, err := repo.unboil(row)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func (repo essayRepository) CreateDraft(ctx context.Context, d essay.Draft, exec ...core.DBExecutor) (essay.Draft, error) {
	row, err := repo.boil(d)
	if err != nil {
		return essay.Draft{}, err
	}
	_, err = queries.Raw(
		`INSERT INTO essay_feedback (`+draftColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		row.ID, row.StudentID, row.CounselorID, row.Title, row.Prompt, row.Content, row.AIAnalysis,
		row.FeedbackItems, row.PersonalMessage, row.ReviewedContent, row.Status, row.CreatedAt, row.UpdatedAt, row.SentAt,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return essay.Draft{}, errors.Wrap(err, "inserting draft")
	}
	return d, nil
}

func (repo essayRepository) GetDraft(ctx context.Context, id string, exec ...core.DBExecutor) (essay.Draft, error) {
	var row draftRow
	err := queries.Raw(`SELECT `+draftColumns+` FROM essay_feedback WHERE id::text = $1`, id).
		Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return essay.Draft{}, trapNoRowsErr(err, essay.ErrNotFound, "getting draft")
	}
	return repo.unboil(row)
}

func (repo essayRepository) GetDrafts(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]essay.Draft, error) {
	var rows []draftRow
	err := queries.Raw(`SELECT `+draftColumns+` FROM essay_feedback WHERE id::text = ANY($1)`, pq.Array(ids)).
		Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "getting drafts")
	}
	return repo.unboilSlice(rows)
}

func (repo essayRepository) QueryDrafts(ctx context.Context, filter *essay.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]essay.Draft, error) {
	w := new(where)
	if filter != nil {
		if filter.StudentIDs != nil {
			w.add("student_id::text = ANY(?)", pq.Array(filter.StudentIDs))
		}
		if len(filter.Statuses) > 0 {
			w.add("status = ANY(?)", pq.Array(filter.Statuses))
		}
		if filter.Search != "" {
			w.add("title ILIKE ?", likePattern(filter.Search))
		}
	}

	var rows []draftRow
	q := `SELECT ` + draftColumns + ` FROM essay_feedback` + w.String() + orderBy(ordering, "updated_at DESC")
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying drafts")
	}
	return repo.unboilSlice(rows)
}

func (repo essayRepository) UpdateDraft(ctx context.Context, d essay.Draft, exec ...core.DBExecutor) (essay.Draft, error) {
	row, err := repo.boil(d)
	if err != nil {
		return essay.Draft{}, err
	}
	res, err := queries.Raw(
		`UPDATE essay_feedback SET counselor_id = $2, title = $3, prompt = $4, content = $5, ai_analysis = $6,
			feedback_items = $7, personal_message = $8, reviewed_content = $9, status = $10, updated_at = $11, sent_at = $12
		WHERE id = $1`,
		row.ID, row.CounselorID, row.Title, row.Prompt, row.Content, row.AIAnalysis,
		row.FeedbackItems, row.PersonalMessage, row.ReviewedContent, row.Status, row.UpdatedAt, row.SentAt,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return essay.Draft{}, errors.Wrap(err, "updating draft")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return essay.Draft{}, essay.ErrNotFound
	}
	return d, nil
}
