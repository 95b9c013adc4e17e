package essay_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/core/essay"
	"github.com/admitdesk/admitdesk/core/user"
	emailsvc "github.com/admitdesk/admitdesk/services/email"
	"github.com/admitdesk/admitdesk/tests"
)

var ctx = context.Background()

func intPtr(i int) *int { return &i }

func sampleAnalysis() essay.AnalysisResult {
	return essay.AnalysisResult{
		OverallScore: 72,
		Criteria:     []essay.Criterion{{ID: "hook", Name: "Opening hook", Score: 60, Color: "#f59e0b"}},
		Issues: []essay.Issue{
			{ID: "i1", CriterionID: "hook", CriterionName: "Opening hook", Color: "#f59e0b", StartIndex: 0, EndIndex: 5,
				Recommendation: "Open with a scene", Severity: "medium"},
			{ID: "i2", CriterionID: "hook", StartIndex: 500, EndIndex: 900, Recommendation: "Cut", Severity: "low"},
		},
	}
}

func TestService_Create(t *testing.T) {
	s := testutil.NewStack(t)
	_, counselor, student := s.People(t)
	stranger := testutil.CreateUser(t, s.UserRepo, "Other", "other@test.io", "", []string{user.RoleStudent}, true)

	d, err := s.Drafts.Create(ctx, student.Actor(), essay.NewDraft{Title: "Why us", Content: "Hello  big\nworld", StudentID: stranger.ID})
	require.NoError(t, err)
	assert.Equal(t, student.ID, d.StudentID, "students always write for themselves")
	assert.Equal(t, essay.StatusDraft, d.Status)
	assert.Equal(t, 3, d.WordCount)
	assert.Nil(t, d.CounselorID)
	assert.NotNil(t, d.FeedbackItems)

	d, err = s.Drafts.Create(ctx, counselor.Actor(), essay.NewDraft{Title: "Personal statement", StudentID: student.ID})
	require.NoError(t, err)
	assert.Equal(t, student.ID, d.StudentID)
	require.NotNil(t, d.CounselorID)
	assert.Equal(t, counselor.ID, *d.CounselorID)

	_, err = s.Drafts.Create(ctx, counselor.Actor(), essay.NewDraft{Title: "Nope", StudentID: stranger.ID})
	assert.Equal(t, core.ErrForbidden, err)

	_, err = s.Drafts.Create(ctx, counselor.Actor(), essay.NewDraft{Title: "Mine?"})
	assert.True(t, errors.Is(err, core.ErrStudentRequired), "staff never own drafts")
}

func TestService_GetAndQuery_visibility(t *testing.T) {
	s := testutil.NewStack(t)
	admin, counselor, student := s.People(t)
	other := testutil.CreateUser(t, s.UserRepo, "Other", "other@test.io", "", []string{user.RoleStudent}, true)

	mine, err := s.Drafts.Create(ctx, student.Actor(), essay.NewDraft{Title: "Mine"})
	require.NoError(t, err)
	theirs, err := s.Drafts.Create(ctx, other.Actor(), essay.NewDraft{Title: "Theirs"})
	require.NoError(t, err)

	_, err = s.Drafts.Get(ctx, student.Actor(), theirs.ID)
	assert.Equal(t, core.ErrForbidden, err)
	_, err = s.Drafts.Get(ctx, counselor.Actor(), theirs.ID)
	assert.Equal(t, core.ErrForbidden, err, "counselors only see their students")
	_, err = s.Drafts.Get(ctx, counselor.Actor(), mine.ID)
	assert.NoError(t, err)
	_, err = s.Drafts.Get(ctx, admin.Actor(), theirs.ID)
	assert.NoError(t, err)
	_, err = s.Drafts.Get(ctx, admin.Actor(), "missing")
	assert.Equal(t, essay.ErrNotFound, err)

	tests := []struct {
		name    string
		actor   core.Actor
		filter  *essay.QueryFilter
		want    []string
		wantErr error
	}{
		{name: "student", actor: student.Actor(), want: []string{mine.ID}},
		{name: "counselor", actor: counselor.Actor(), want: []string{mine.ID}},
		{name: "admin", actor: admin.Actor(), want: []string{mine.ID, theirs.ID}},
		{name: "admin filtered", actor: admin.Actor(), filter: &essay.QueryFilter{StudentID: other.ID}, want: []string{theirs.ID}},
		{name: "counselor on stranger", actor: counselor.Actor(), filter: &essay.QueryFilter{StudentID: other.ID}, wantErr: core.ErrForbidden},
		{name: "no actor", actor: core.Actor{}, wantErr: core.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafts, err := s.Drafts.Query(ctx, tt.actor, tt.filter, nil)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "Query() error = %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			ids := make([]string, len(drafts))
			for i, d := range drafts {
				ids[i] = d.ID
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}

	_, err = s.Drafts.Query(ctx, admin.Actor(), &essay.QueryFilter{Statuses: []string{"lost"}}, nil)
	var verr *core.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestService_UpdateContent(t *testing.T) {
	s := testutil.NewStack(t)
	_, counselor, student := s.People(t)

	d, err := s.Drafts.Create(ctx, student.Actor(), essay.NewDraft{Title: "Why us", Content: "one"})
	require.NoError(t, err)

	content := "one two three"
	_, err = s.Drafts.UpdateContent(ctx, counselor.Actor(), d.ID, essay.UpdateDraft{Content: &content})
	assert.Equal(t, core.ErrForbidden, err, "only the author edits the writing")

	d, err = s.Drafts.UpdateContent(ctx, student.Actor(), d.ID, essay.UpdateDraft{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, content, d.Content)
	assert.Equal(t, 3, d.WordCount)
	assert.Equal(t, "Why us", d.Title)
}

func TestService_Analyze(t *testing.T) {
	s := testutil.NewStack(t)
	_, counselor, student := s.People(t)
	s.Scorer.Result = sampleAnalysis()

	empty, err := s.Drafts.Create(ctx, student.Actor(), essay.NewDraft{Title: "Empty", Content: "  \n "})
	require.NoError(t, err)
	_, err = s.Drafts.Analyze(ctx, counselor.Actor(), empty.ID)
	assert.True(t, errors.Is(err, essay.ErrEmptyContent))
	assert.Empty(t, s.Scorer.Requests, "the scorer is not called for empty drafts")

	d, err := s.Drafts.Create(ctx, student.Actor(), essay.NewDraft{Title: "Why us", Prompt: "Tell us", Content: "Hello world"})
	require.NoError(t, err)

	// students may analyze their own draft; the review does not start
	got, err := s.Drafts.Analyze(ctx, student.Actor(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, essay.StatusDraft, got.Status)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, 72.0, got.Analysis.OverallScore)
	assert.Equal(t, essay.ScoreRequest{Title: "Why us", Prompt: "Tell us", Content: "Hello world"}, s.Scorer.Requests[0])

	got, err = s.Drafts.Analyze(ctx, counselor.Actor(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, essay.StatusInProgress, got.Status)
	require.NotNil(t, got.CounselorID)
	assert.Equal(t, counselor.ID, *got.CounselorID)

	s.Scorer.Err = core.NewCollaboratorError(core.CollaboratorRateLimited, "slow down", nil)
	_, err = s.Drafts.Analyze(ctx, counselor.Actor(), d.ID)
	var cerr *core.CollaboratorError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, core.CollaboratorRateLimited, cerr.Kind)

	stored, err := s.Drafts.Get(ctx, student.Actor(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, 72.0, stored.Analysis.OverallScore, "a failed analysis keeps the previous one")
}

func TestService_RecordFeedbackItem(t *testing.T) {
	s := testutil.NewStack(t)
	_, counselor, student := s.People(t)
	s.Scorer.Result = sampleAnalysis()

	d, err := s.Drafts.Create(ctx, student.Actor(), essay.NewDraft{Title: "Why us", Content: "Hello world"})
	require.NoError(t, err)

	_, err = s.Drafts.RecordFeedbackItem(ctx, counselor.Actor(), d.ID, essay.NewFeedbackItem{Kind: essay.FeedbackAI, IssueID: "i1"})
	assert.True(t, errors.Is(err, essay.ErrIssueNotFound), "no analysis yet")

	_, err = s.Drafts.Analyze(ctx, student.Actor(), d.ID)
	require.NoError(t, err)

	_, err = s.Drafts.RecordFeedbackItem(ctx, student.Actor(), d.ID, essay.NewFeedbackItem{Kind: essay.FeedbackManual, Comment: "Me"})
	assert.Equal(t, core.ErrForbidden, err)

	got, err := s.Drafts.RecordFeedbackItem(ctx, counselor.Actor(), d.ID, essay.NewFeedbackItem{Kind: essay.FeedbackAI, IssueID: "i1"})
	require.NoError(t, err)
	assert.Equal(t, essay.StatusInProgress, got.Status)
	require.Len(t, got.FeedbackItems, 1)
	item := got.FeedbackItems[0]
	assert.Equal(t, "i1", item.ID)
	assert.Equal(t, "Open with a scene", item.Comment)
	assert.Equal(t, "Hello", item.HighlightedText)
	assert.Equal(t, counselor.ID, item.AuthorID)

	_, err = s.Drafts.RecordFeedbackItem(ctx, counselor.Actor(), d.ID, essay.NewFeedbackItem{Kind: essay.FeedbackAI, IssueID: "i1"})
	assert.Equal(t, essay.ErrDuplicateFeedbackItem, errors.Cause(err))

	got, err = s.Drafts.RecordFeedbackItem(ctx, counselor.Actor(), d.ID, essay.NewFeedbackItem{Kind: essay.FeedbackAI, IssueID: "i2", Comment: "Shorter"})
	require.NoError(t, err)
	item = got.FeedbackItems[1]
	assert.Equal(t, "Shorter", item.Comment)
	assert.Nil(t, item.StartIndex, "out of range offsets are not kept")

	got, err = s.Drafts.RecordFeedbackItem(ctx, counselor.Actor(), d.ID, essay.NewFeedbackItem{
		Kind: essay.FeedbackManual, Comment: "Nice ending", StartIndex: intPtr(6), EndIndex: intPtr(11),
	})
	require.NoError(t, err)
	require.Len(t, got.FeedbackItems, 3)
	assert.NotEmpty(t, got.FeedbackItems[2].ID)
	assert.Equal(t, "world", got.FeedbackItems[2].HighlightedText)

	_, err = s.Drafts.RecordFeedbackItem(ctx, counselor.Actor(), d.ID, essay.NewFeedbackItem{
		Kind: essay.FeedbackManual, Comment: "Too far", StartIndex: intPtr(6), EndIndex: intPtr(40),
	})
	var verr *core.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestService_SendFeedback(t *testing.T) {
	s := testutil.NewStack(t)
	_, counselor, student := s.People(t)

	d, err := s.Drafts.Create(ctx, student.Actor(), essay.NewDraft{Title: "Why us", Content: "Hello world"})
	require.NoError(t, err)
	app, err := s.Apps.Create(ctx, student.Actor(), application.NewApplication{
		SchoolName: "MIT", Type: application.TypeEarlyAction, Deadline: "2030-11-01",
	})
	require.NoError(t, err)
	slot, err := s.Apps.CreateSlot(ctx, student.Actor(), app.ID, application.NewSlot{Label: "Why us"})
	require.NoError(t, err)
	_, err = s.Apps.LinkDraft(ctx, student.Actor(), slot.ID, d.ID)
	require.NoError(t, err)
	emailsvc.PopSentMessages()

	_, err = s.Drafts.SendFeedback(ctx, student.Actor(), d.ID, essay.SendFeedback{Message: "Self-review"})
	assert.Equal(t, core.ErrForbidden, err)

	got, err := s.Drafts.SendFeedback(ctx, counselor.Actor(), d.ID, essay.SendFeedback{Message: "Great start!"})
	require.NoError(t, err)
	assert.Equal(t, essay.StatusSent, got.Status)
	assert.NotNil(t, got.SentAt)
	assert.Equal(t, "Great start!", got.PersonalMessage)

	detail, err := s.Apps.Get(ctx, student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, application.SlotInReview, detail.Slots[0].Status, "linked slots move to review with the draft")
	assert.True(t, detail.Progress.CanSubmit)

	assert.Contains(t, s.Events.Subjects(), "drafts."+d.ID+".sent")
	msgs := emailsvc.PopSentMessages()
	if assert.Len(t, msgs, 1) {
		assert.Equal(t, student.Email, msgs[0].To[0].Address)
		assert.Equal(t, "feedback_sent", msgs[0].TemplateName)
	}

	_, err = s.Drafts.SendFeedback(ctx, counselor.Actor(), d.ID, essay.SendFeedback{})
	assert.True(t, errors.Is(err, essay.ErrInvalidTransition), "feedback is sent once")

	// the student edits after the review
	content := "Hello wide world"
	_, err = s.Drafts.UpdateContent(ctx, student.Actor(), d.ID, essay.UpdateDraft{Content: &content})
	require.NoError(t, err)
	changes, err := s.Drafts.Changes(ctx, counselor.Actor(), d.ID)
	require.NoError(t, err)
	assert.True(t, changes.Changed)

	detail, err = s.Apps.Get(ctx, student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, detail.Slots[0].WordCount, "edits show up in the application detail")
}

func TestService_MarkRead(t *testing.T) {
	s := testutil.NewStack(t)
	_, counselor, student := s.People(t)

	d, err := s.Drafts.Create(ctx, student.Actor(), essay.NewDraft{Title: "Why us", Content: "Hello"})
	require.NoError(t, err)

	_, err = s.Drafts.MarkRead(ctx, student.Actor(), d.ID)
	assert.True(t, errors.Is(err, essay.ErrInvalidTransition), "nothing to read yet")

	_, err = s.Drafts.SendFeedback(ctx, counselor.Actor(), d.ID, essay.SendFeedback{})
	require.NoError(t, err)

	_, err = s.Drafts.MarkRead(ctx, counselor.Actor(), d.ID)
	assert.Equal(t, core.ErrForbidden, err)

	got, err := s.Drafts.MarkRead(ctx, student.Actor(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, essay.StatusRead, got.Status)

	got, err = s.Drafts.MarkRead(ctx, student.Actor(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, essay.StatusRead, got.Status)
}
