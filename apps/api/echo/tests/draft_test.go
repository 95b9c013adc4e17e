package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/essay"
	"github.com/admitdesk/admitdesk/core/user"
	emailsvc "github.com/admitdesk/admitdesk/services/email"
	"github.com/admitdesk/admitdesk/tests"
)

func (app *testApp) createDraft(t *testing.T, usr user.User, nd essay.NewDraft) essay.Draft {
	t.Helper()
	rec := app.do(http.MethodPost, "/v1/drafts", app.token(t, usr), marchallObj(t, nd))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var d essay.Draft
	decode(t, rec, &d)
	return d
}

func Test_draftApi_create(t *testing.T) {
	app := setup(t)
	stranger := testutil.CreateUser(t, app.UserRepo, "Stranger", "stranger@test.io", "", []string{user.RoleStudent}, true)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/drafts", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "title required", method: http.MethodPost, path: "/v1/drafts", token: app.token(t, app.student),
			body: []byte(`{"title": "   "}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "counselor cannot write for unassigned student", method: http.MethodPost, path: "/v1/drafts", token: app.token(t, app.counselor),
			body:     marchallObj(t, essay.NewDraft{StudentID: stranger.ID, Title: "Hi"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	})

	d := app.createDraft(t, app.student, essay.NewDraft{StudentID: stranger.ID, Title: " Personal statement ", Content: "I grew up   by the sea."})
	assert.Equal(t, app.student.ID, d.StudentID, "students always write for themselves")
	assert.Equal(t, "Personal statement", d.Title)
	assert.Equal(t, 6, d.WordCount)
	assert.Equal(t, essay.StatusDraft, d.Status)

	d = app.createDraft(t, app.counselor, essay.NewDraft{StudentID: app.student.ID, Title: "Why us"})
	assert.Equal(t, app.student.ID, d.StudentID)
	require.NotNil(t, d.CounselorID)
	assert.Equal(t, app.counselor.ID, *d.CounselorID)
}

func Test_draftApi_queryAndRetrieve(t *testing.T) {
	app := setup(t)
	stranger := testutil.CreateUser(t, app.UserRepo, "Stranger", "stranger@test.io", "", []string{user.RoleStudent}, true)
	mine := app.createDraft(t, app.student, essay.NewDraft{Title: "Alpha"})
	app.createDraft(t, app.student, essay.NewDraft{Title: "Beta"})
	theirs := app.createDraft(t, stranger, essay.NewDraft{Title: "Gamma"})

	tests := []struct {
		name       string
		path       string
		usr        user.User
		wantCode   int
		wantTitles []string
	}{
		{name: "student sees own", path: "/v1/drafts?ordering=title", usr: app.student, wantCode: http.StatusOK, wantTitles: []string{"Alpha", "Beta"}},
		{name: "stranger sees own", path: "/v1/drafts", usr: stranger, wantCode: http.StatusOK, wantTitles: []string{"Gamma"}},
		{name: "counselor sees assigned", path: "/v1/drafts?ordering=-title", usr: app.counselor, wantCode: http.StatusOK, wantTitles: []string{"Beta", "Alpha"}},
		{name: "admin sees all", path: "/v1/drafts?ordering=title", usr: app.admin, wantCode: http.StatusOK, wantTitles: []string{"Alpha", "Beta", "Gamma"}},
		{name: "search", path: "/v1/drafts?search=alp", usr: app.admin, wantCode: http.StatusOK, wantTitles: []string{"Alpha"}},
		{name: "unknown status", path: "/v1/drafts?status=lol", usr: app.admin, wantCode: http.StatusBadRequest},
		{name: "other student filter", path: "/v1/drafts?student_id=" + stranger.ID, usr: app.counselor, wantCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, tt.path, app.token(t, tt.usr))
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantTitles == nil {
				return
			}
			var drafts []essay.Draft
			decode(t, rec, &drafts)
			got := make([]string, 0, len(drafts))
			for _, d := range drafts {
				got = append(got, d.Title)
			}
			assert.Equal(t, tt.wantTitles, got)
		})
	}

	runHTTPTests(t, app, []httpTest{
		{name: "retrieve own", path: "/v1/drafts/" + mine.ID, token: app.token(t, app.student), wantCode: http.StatusOK},
		{name: "retrieve other's", path: "/v1/drafts/" + theirs.ID, token: app.token(t, app.counselor), wantCode: http.StatusForbidden},
		{
			name: "retrieve unknown", path: "/v1/drafts/00000000-0000-0000-0000-000000000000", token: app.token(t, app.admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: essay.ErrNotFound.Error()}),
		},
	})
}

func Test_draftApi_reviewFlow(t *testing.T) {
	app := setup(t)
	content := "I learned to sail before I could ride a bike."
	d := app.createDraft(t, app.student, essay.NewDraft{Title: "Sailing", Content: content})
	empty := app.createDraft(t, app.student, essay.NewDraft{Title: "Empty"})

	app.Scorer.Result = essay.AnalysisResult{
		OverallScore: 7.5,
		Criteria:     []essay.Criterion{{ID: "voice", Name: "Voice", Score: 8, Color: "#00f"}},
		Issues: []essay.Issue{{
			ID: "i1", CriterionID: "voice", CriterionName: "Voice", StartIndex: 0, EndIndex: 9,
			Recommendation: "Open with a scene.", Severity: "medium",
		}},
	}
	counselorToken := app.token(t, app.counselor)
	studentToken := app.token(t, app.student)
	base := "/v1/drafts/" + d.ID

	// the student edits and may self-check with the scorer
	rec := app.do(http.MethodPut, base, studentToken, []byte(`{"content": "`+content+`"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPut, base, counselorToken, []byte(`{"content": "hijack"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	runHTTPTests(t, app, []httpTest{
		{
			name: "nothing to analyze", method: http.MethodPost, path: "/v1/drafts/" + empty.ID + "/analyze", token: counselorToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"content": essay.ErrEmptyContent.Error()}),
		},
		{
			name: "students cannot comment", method: http.MethodPost, path: base + "/feedback-items", token: studentToken,
			body: []byte(`{"kind": "manual", "comment": "self praise"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "students cannot send feedback", method: http.MethodPost, path: base + "/send", token: studentToken,
			wantCode: http.StatusForbidden,
		},
	})

	rec = app.do(http.MethodPost, base+"/analyze", counselorToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &d)
	require.NotNil(t, d.Analysis)
	assert.Equal(t, 7.5, d.Analysis.OverallScore)
	assert.Equal(t, essay.StatusInProgress, d.Status)
	require.Len(t, app.Scorer.Requests, 1)
	assert.Equal(t, content, app.Scorer.Requests[0].Content)

	rec = app.do(http.MethodGet, base+"/highlights", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var hls []essay.Highlight
	decode(t, rec, &hls)
	require.Len(t, hls, 1)
	assert.Equal(t, "I learned", hls[0].Excerpt)
	assert.True(t, hls[0].Valid)

	runHTTPTests(t, app, []httpTest{
		{
			name: "unknown issue", method: http.MethodPost, path: base + "/feedback-items", token: counselorToken,
			body: []byte(`{"kind": "ai", "issue_id": "nope"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "manual comment needs text", method: http.MethodPost, path: base + "/feedback-items", token: counselorToken,
			body: []byte(`{"kind": "manual"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"comment": "this field is required"}),
		},
		{
			name: "ai item", method: http.MethodPost, path: base + "/feedback-items", token: counselorToken,
			body: []byte(`{"kind": "ai", "issue_id": "i1"}`), wantCode: http.StatusCreated,
		},
		{
			name: "same ai item twice", method: http.MethodPost, path: base + "/feedback-items", token: counselorToken,
			body: []byte(`{"kind": "ai", "issue_id": "i1"}`), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: essay.ErrDuplicateFeedbackItem.Error()}),
		},
		{
			name: "manual item", method: http.MethodPost, path: base + "/feedback-items", token: counselorToken,
			body: []byte(`{"kind": "manual", "comment": "Nice rhythm.", "start_index": 10, "end_index": 15}`), wantCode: http.StatusCreated,
		},
	})

	emailsvc.PopSentMessages()
	rec = app.do(http.MethodPost, base+"/send", counselorToken, []byte(`{"message": "  Great start!  "}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &d)
	assert.Equal(t, essay.StatusSent, d.Status)
	assert.Equal(t, "Great start!", d.PersonalMessage)
	require.Len(t, d.FeedbackItems, 2)
	assert.Equal(t, "Open with a scene.", d.FeedbackItems[0].Comment)
	assert.Equal(t, "to sa", d.FeedbackItems[1].HighlightedText)
	assert.Contains(t, app.Events.Subjects(), "drafts."+d.ID+".sent")

	sent := emailsvc.PopSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "feedback_sent", sent[0].TemplateName)
	assert.Equal(t, app.student.Email, sent[0].To[0].Address)

	// sending twice is an invalid transition
	rec = app.do(http.MethodPost, base+"/send", counselorToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// only the owner marks it read
	rec = app.do(http.MethodPost, base+"/read", counselorToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = app.do(http.MethodPost, base+"/read", studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &d)
	assert.Equal(t, essay.StatusRead, d.Status)

	// edits after the review show up as changes
	rec = app.do(http.MethodPut, base, studentToken, []byte(`{"content": "I learned to sail before I could walk."}`))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(http.MethodGet, base+"/changes", counselorToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var changes essay.Changes
	decode(t, rec, &changes)
	assert.True(t, changes.Reviewed)
	assert.True(t, changes.Changed)
	assert.NotEmpty(t, changes.Diff)
}

func Test_draftApi_analyzeCollaboratorErrors(t *testing.T) {
	app := setup(t)
	d := app.createDraft(t, app.student, essay.NewDraft{Title: "Sailing", Content: "Some words."})

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "rate limited", err: core.NewCollaboratorError(core.CollaboratorRateLimited, "AI is busy, try again later", nil), wantCode: http.StatusTooManyRequests},
		{name: "payment required", err: core.NewCollaboratorError(core.CollaboratorPaymentRequired, "AI credits exhausted", nil), wantCode: http.StatusPaymentRequired},
		{name: "unavailable", err: core.NewCollaboratorError(core.CollaboratorUnavailable, "AI unavailable", nil), wantCode: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app.Scorer.Err = tt.err
			rec := app.do(http.MethodPost, "/v1/drafts/"+d.ID+"/analyze", app.token(t, app.student))
			checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: marchallObj(t, httpErr{Error: tt.err.Error()})}, rec)
		})
	}

	got, err := app.Drafts.Get(context.Background(), app.admin.Actor(), d.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Analysis, "a failed analysis stores nothing")
}
