package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/core/essay"
	"github.com/admitdesk/admitdesk/core/recommendation"
	"github.com/admitdesk/admitdesk/core/user"
	emailsvc "github.com/admitdesk/admitdesk/services/email"
	"github.com/admitdesk/admitdesk/tests"
)

var ctx = context.Background()

type fixture struct {
	*testutil.Stack
	admin, counselor, student user.User
}

func newFixture(t *testing.T, opts ...testutil.StackOption) fixture {
	s := testutil.NewStack(t, opts...)
	admin, counselor, student := s.People(t)
	return fixture{Stack: s, admin: admin, counselor: counselor, student: student}
}

func (f fixture) newApp(t *testing.T, school string) application.Detail {
	d, err := f.Apps.Create(ctx, f.student.Actor(), application.NewApplication{
		SchoolName: school,
		Type:       application.TypeRegularDecision,
		Deadline:   "2030-01-05",
	})
	require.NoError(t, err)
	return d
}

func (f fixture) newSlot(t *testing.T, appID, label string) application.Slot {
	slot, err := f.Apps.CreateSlot(ctx, f.student.Actor(), appID, application.NewSlot{Label: label})
	require.NoError(t, err)
	return slot
}

func (f fixture) newDraft(t *testing.T, content string) essay.Draft {
	d, err := f.Drafts.Create(ctx, f.student.Actor(), essay.NewDraft{Title: "Essay", Content: content})
	require.NoError(t, err)
	return d
}

// readyApp returns an application with two linked essays whose feedback was sent.
func (f fixture) readyApp(t *testing.T) application.Detail {
	app := f.newApp(t, "Stanford")
	for _, label := range []string{"Personal statement", "Why us"} {
		slot := f.newSlot(t, app.ID, label)
		d := f.newDraft(t, label+" content")
		_, err := f.Apps.LinkDraft(ctx, f.student.Actor(), slot.ID, d.ID)
		require.NoError(t, err)
		_, err = f.Drafts.SendFeedback(ctx, f.counselor.Actor(), d.ID, essay.SendFeedback{Message: "Good"})
		require.NoError(t, err)
	}
	detail, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	return detail
}

func isValidationErr(err error) bool {
	var verr *core.ValidationError
	return errors.As(err, &verr)
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	stranger := testutil.CreateUser(t, f.UserRepo, "Other", "other@test.io", "", []string{user.RoleStudent}, true)

	app := f.newApp(t, "Yale")
	assert.Equal(t, f.student.ID, app.StudentID)
	assert.Equal(t, application.StatusDraft, app.Status)
	assert.Equal(t, time.Date(2030, 1, 5, 0, 0, 0, 0, time.UTC), app.Deadline)
	assert.Empty(t, app.Slots)
	assert.Equal(t, 0, app.Progress.CompletionPercentage)
	assert.False(t, app.Progress.CanSubmit)

	byCounselor, err := f.Apps.Create(ctx, f.counselor.Actor(), application.NewApplication{
		StudentID: f.student.ID, SchoolName: "Brown", Type: application.TypeEarlyDecision, Deadline: "2030-11-01",
	})
	require.NoError(t, err)
	assert.Equal(t, f.student.ID, byCounselor.StudentID)

	_, err = f.Apps.Create(ctx, f.counselor.Actor(), application.NewApplication{
		StudentID: stranger.ID, SchoolName: "Brown", Type: application.TypeEarlyDecision, Deadline: "2030-11-01",
	})
	assert.Equal(t, core.ErrForbidden, err)

	for _, staff := range []user.User{f.counselor, f.admin} {
		_, err = f.Apps.Create(ctx, staff.Actor(), application.NewApplication{
			SchoolName: "Brown", Type: application.TypeEarlyDecision, Deadline: "2030-11-01",
		})
		assert.True(t, errors.Is(err, core.ErrStudentRequired), staff.Name)
		assert.True(t, isValidationErr(err))
	}

	_, err = f.Apps.Create(ctx, f.student.Actor(), application.NewApplication{SchoolName: "X", Deadline: "tomorrow"})
	assert.True(t, isValidationErr(err))
}

func TestService_Query(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateUser(t, f.UserRepo, "Other", "other@test.io", "", []string{user.RoleStudent}, true)

	yale := f.newApp(t, "Yale")
	mit := f.newApp(t, "MIT")
	theirs, err := f.Apps.Create(ctx, other.Actor(), application.NewApplication{
		SchoolName: "Duke", Type: application.TypeRolling, Deadline: "2029-12-01",
	})
	require.NoError(t, err)

	names := func(details []application.Detail) []string {
		out := make([]string, len(details))
		for i, d := range details {
			out[i] = d.SchoolName
		}
		return out
	}
	tests := []struct {
		name     string
		actor    core.Actor
		filter   *application.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "student", actor: f.student.Actor(), ordering: []core.DBOrdering{{Field: "school_name", Ascending: true}}, want: []string{mit.SchoolName, yale.SchoolName}},
		{name: "counselor", actor: f.counselor.Actor(), ordering: []core.DBOrdering{{Field: "school_name", Ascending: true}}, want: []string{"MIT", "Yale"}},
		{name: "unknown ordering", actor: f.student.Actor(), filter: &application.QueryFilter{Search: "yale"}, ordering: []core.DBOrdering{{Field: "deadline; DROP TABLE application"}}, want: []string{"Yale"}},
		{name: "admin", actor: f.admin.Actor(), ordering: []core.DBOrdering{{Field: "school_name", Ascending: false}}, want: []string{"Yale", "MIT", theirs.SchoolName}},
		{name: "search", actor: f.admin.Actor(), filter: &application.QueryFilter{Search: "mi"}, want: []string{"MIT"}},
		{name: "status", actor: f.admin.Actor(), filter: &application.QueryFilter{Statuses: []string{"sent"}}, want: []string{}},
		{
			name: "deadline range", actor: f.admin.Actor(),
			filter: &application.QueryFilter{From: time.Date(2029, 11, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2029, 12, 31, 0, 0, 0, 0, time.UTC)},
			want:   []string{"Duke"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Apps.Query(ctx, tt.actor, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestService_Update(t *testing.T) {
	f := newFixture(t)
	app := f.newApp(t, "Yale")

	name, deadline := "Yale University", "2030-01-02"
	status := application.StatusInProgress
	got, err := f.Apps.Update(ctx, f.student.Actor(), app.ID, application.UpdateApplication{
		SchoolName: &name, Deadline: &deadline, Status: &status,
	})
	require.NoError(t, err)
	assert.Equal(t, name, got.SchoolName)
	assert.Equal(t, application.StatusInProgress, got.Status)
	assert.Equal(t, 2, got.Deadline.Day())

	ready := f.readyApp(t)
	_, err = f.Apps.Submit(ctx, f.student.Actor(), ready.ID, application.Submit{})
	require.NoError(t, err)
	back := application.StatusDraft
	_, err = f.Apps.Update(ctx, f.student.Actor(), ready.ID, application.UpdateApplication{Status: &back})
	assert.True(t, errors.Is(err, application.ErrAlreadySubmitted))
}

func TestService_Slots(t *testing.T) {
	f := newFixture(t)
	app := f.newApp(t, "Yale")

	s1 := f.newSlot(t, app.ID, "One")
	s2 := f.newSlot(t, app.ID, "Two")
	s3 := f.newSlot(t, app.ID, "Three")
	assert.Equal(t, []int{0, 1, 2}, []int{s1.DisplayOrder, s2.DisplayOrder, s3.DisplayOrder})
	assert.Equal(t, application.SlotNotStarted, s1.Status)

	reordered, err := f.Apps.ReorderSlots(ctx, f.student.Actor(), app.ID, []string{s3.ID, s1.ID, s2.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{s3.ID, s1.ID, s2.ID}, []string{reordered[0].ID, reordered[1].ID, reordered[2].ID})

	detail, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Three", detail.Slots[0].Label)
	assert.Equal(t, 3, detail.Progress.RequiredEssays)

	for name, ids := range map[string][]string{
		"missing one": {s3.ID, s1.ID},
		"duplicate":   {s3.ID, s1.ID, s1.ID},
		"unknown":     {s3.ID, s1.ID, "nope"},
	} {
		_, err = f.Apps.ReorderSlots(ctx, f.student.Actor(), app.ID, ids)
		assert.True(t, errors.Is(err, application.ErrInvalidOrder), name)
	}

	limit := 250
	label := "Two (short)"
	s2, err = f.Apps.UpdateSlot(ctx, f.student.Actor(), s2.ID, application.UpdateSlot{Label: &label, WordLimit: &limit})
	require.NoError(t, err)
	assert.Equal(t, label, s2.Label)
	assert.Equal(t, 250, *s2.WordLimit)

	require.NoError(t, f.Apps.DeleteSlot(ctx, f.student.Actor(), s2.ID))
	_, err = f.Apps.UpdateSlot(ctx, f.student.Actor(), s2.ID, application.UpdateSlot{Label: &label})
	assert.Equal(t, application.ErrSlotNotFound, err)
}

func TestService_LinkDraft(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateUser(t, f.UserRepo, "Other", "other@test.io", "", []string{user.RoleStudent}, true)
	app := f.newApp(t, "Yale")
	slot := f.newSlot(t, app.ID, "Why us")

	theirDraft, err := f.Drafts.Create(ctx, other.Actor(), essay.NewDraft{Title: "Theirs"})
	require.NoError(t, err)
	_, err = f.Apps.LinkDraft(ctx, f.admin.Actor(), slot.ID, theirDraft.ID)
	assert.True(t, errors.Is(err, application.ErrDraftOwner))

	d := f.newDraft(t, "Hello world")
	linked, err := f.Apps.LinkDraft(ctx, f.student.Actor(), slot.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, application.SlotDraft, linked.Status)
	assert.Equal(t, d.ID, *linked.DraftID)

	detail, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusInProgress, detail.Status, "linking starts the application")
	assert.Equal(t, 2, detail.Slots[0].WordCount)

	unlinked, err := f.Apps.UnlinkDraft(ctx, f.student.Actor(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, application.SlotNotStarted, unlinked.Status)
	assert.Nil(t, unlinked.DraftID)
	_, err = f.Drafts.Get(ctx, f.student.Actor(), d.ID)
	assert.NoError(t, err, "the draft is kept")
}

func TestService_TransitionSlot(t *testing.T) {
	f := newFixture(t)
	app := f.newApp(t, "Yale")
	slot := f.newSlot(t, app.ID, "Why us")

	_, err := f.Apps.TransitionSlot(ctx, f.student.Actor(), slot.ID, application.SlotInReview)
	assert.Equal(t, core.ErrForbidden, err, "students move only drafts")
	_, err = f.Apps.TransitionSlot(ctx, f.counselor.Actor(), slot.ID, application.SlotDraft)
	assert.True(t, errors.Is(err, application.ErrDraftRequired))

	d := f.newDraft(t, "Hello")
	_, err = f.Apps.LinkDraft(ctx, f.student.Actor(), slot.ID, d.ID)
	require.NoError(t, err)

	steps := []struct {
		actor   core.Actor
		to      application.SlotStatus
		wantErr bool
	}{
		{actor: f.counselor.Actor(), to: application.SlotApproved, wantErr: true},
		{actor: f.student.Actor(), to: application.SlotInReview},
		{actor: f.student.Actor(), to: application.SlotApproved, wantErr: true},
		{actor: f.counselor.Actor(), to: application.SlotApproved},
		{actor: f.counselor.Actor(), to: application.SlotInReview},
		{actor: f.counselor.Actor(), to: application.SlotApproved},
	}
	for i, step := range steps {
		got, err := f.Apps.TransitionSlot(ctx, step.actor, slot.ID, step.to)
		if (err != nil) != step.wantErr {
			t.Fatalf("step %d: TransitionSlot(%s) error = %v, wantErr %v", i, step.to, err, step.wantErr)
		}
		if !step.wantErr {
			assert.Equal(t, step.to, got.Status)
		}
	}

	detail, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, detail.Progress.CompletionPercentage)
	assert.Equal(t, 1, detail.Progress.CompletedEssays)
}

func TestService_Submit(t *testing.T) {
	f := newFixture(t)

	notReady := f.newApp(t, "Yale")
	_, err := f.Apps.Submit(ctx, f.student.Actor(), notReady.ID, application.Submit{})
	assert.True(t, errors.Is(err, application.ErrNotSubmittable), "no essays")

	slot := f.newSlot(t, notReady.ID, "Why us")
	d := f.newDraft(t, "Hello")
	_, err = f.Apps.LinkDraft(ctx, f.student.Actor(), slot.ID, d.ID)
	require.NoError(t, err)
	_, err = f.Apps.Submit(ctx, f.student.Actor(), notReady.ID, application.Submit{})
	assert.True(t, errors.Is(err, application.ErrNotSubmittable), "feedback not sent")
	assert.True(t, isValidationErr(err))

	app := f.readyApp(t)
	require.True(t, app.Progress.CanSubmit)
	emailsvc.PopSentMessages()

	sub, err := f.Apps.Submit(ctx, f.student.Actor(), app.ID, application.Submit{Notes: "  Sent via portal "})
	require.NoError(t, err)
	assert.Equal(t, app.ID, sub.ApplicationID)
	assert.Equal(t, "Sent via portal", sub.Notes)
	require.Len(t, sub.Essays, 2)
	assert.Equal(t, "Personal statement", sub.Essays[0].Label)
	assert.Equal(t, "Personal statement content", sub.Essays[0].Content)
	assert.Equal(t, 3, sub.Essays[0].WordCount)
	assert.NotNil(t, sub.Essays[0].SentAt)

	detail, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusSent, detail.Status)
	assert.False(t, detail.Progress.CanSubmit)
	assert.False(t, detail.Progress.Urgent)

	stored, err := f.Apps.GetSubmission(ctx, f.counselor.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)

	assert.Contains(t, f.Events.Subjects(), "applications."+app.ID+".submitted")
	msgs := emailsvc.PopSentMessages()
	if assert.Len(t, msgs, 1) {
		assert.Equal(t, f.counselor.Email, msgs[0].To[0].Address)
		assert.Equal(t, "application_submitted", msgs[0].TemplateName)
	}

	_, err = f.Apps.Submit(ctx, f.student.Actor(), app.ID, application.Submit{})
	assert.Equal(t, application.ErrAlreadySubmitted, errors.Cause(err))

	// the snapshot does not follow later edits
	content := "Rewritten after submission"
	_, err = f.Drafts.UpdateContent(ctx, f.student.Actor(), *detail.Slots[0].DraftID, essay.UpdateDraft{Content: &content})
	require.NoError(t, err)
	stored, err = f.Apps.GetSubmission(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Personal statement content", stored.Essays[0].Content)

	// submitted applications keep their essays
	_, err = f.Apps.CreateSlot(ctx, f.student.Actor(), app.ID, application.NewSlot{Label: "Late"})
	assert.True(t, errors.Is(err, application.ErrAlreadySubmitted))
	assert.True(t, errors.Is(f.Apps.DeleteSlot(ctx, f.student.Actor(), detail.Slots[0].ID), application.ErrAlreadySubmitted))
	_, err = f.Apps.UnlinkDraft(ctx, f.student.Actor(), detail.Slots[0].ID)
	assert.True(t, errors.Is(err, application.ErrAlreadySubmitted))
	for _, actor := range []core.Actor{f.student.Actor(), f.counselor.Actor()} {
		_, err = f.Apps.TransitionSlot(ctx, actor, detail.Slots[0].ID, application.SlotNotStarted)
		assert.Error(t, err, actor.Name)
	}
	_, err = f.Apps.TransitionSlot(ctx, f.counselor.Actor(), detail.Slots[0].ID, application.SlotNotStarted)
	assert.True(t, errors.Is(err, application.ErrAlreadySubmitted))
	afterReset, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.NotNil(t, afterReset.Slots[0].DraftID, "submitted essays stay linked")

	// counselors approve once sent
	_, err = f.Apps.Approve(ctx, f.student.Actor(), app.ID)
	assert.Equal(t, core.ErrForbidden, err)
	approved, err := f.Apps.Approve(ctx, f.counselor.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusApproved, approved.Status)
	_, err = f.Apps.Approve(ctx, f.counselor.Actor(), notReady.ID)
	assert.True(t, errors.Is(err, application.ErrNotSent))

	subs, err := f.Apps.ListSubmissions(ctx, f.counselor.Actor(), "")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

type failingStatusRepo struct {
	application.Repository
}

func (r failingStatusRepo) UpdateApplication(ctx context.Context, app application.Application, exec ...core.DBExecutor) (application.Application, error) {
	if app.Status == application.StatusSent {
		return application.Application{}, errors.New("connection reset")
	}
	return r.Repository.UpdateApplication(ctx, app, exec...)
}

func TestService_Submit_rollsBack(t *testing.T) {
	f := newFixture(t, testutil.WithAppRepo(func(repo application.Repository) application.Repository {
		return failingStatusRepo{repo}
	}))
	app := f.readyApp(t)

	_, err := f.Apps.Submit(ctx, f.student.Actor(), app.ID, application.Submit{})
	require.Error(t, err)

	_, err = f.Apps.GetSubmission(ctx, f.student.Actor(), app.ID)
	assert.Equal(t, application.ErrSubmissionNotFound, err, "the snapshot is rolled back with the status update")
	detail, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusInProgress, detail.Status)
	assert.True(t, detail.Progress.CanSubmit)
	assert.NotContains(t, f.Events.Subjects(), "applications."+app.ID+".submitted")
}

func TestService_Submit_concurrent(t *testing.T) {
	f := newFixture(t)
	app := f.readyApp(t)

	const attempts = 5
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Apps.Submit(ctx, f.student.Actor(), app.ID, application.Submit{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
	for _, err := range errs {
		assert.Equal(t, application.ErrAlreadySubmitted, errors.Cause(err))
	}
	subs, err := f.Apps.ListSubmissions(ctx, f.admin.Actor(), f.student.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestService_recommendationProgress(t *testing.T) {
	f := newFixture(t)
	app := f.newApp(t, "Yale")

	for _, name := range []string{"Ms. Physics", "Mr. History"} {
		_, err := f.Recs.Request(ctx, f.student.Actor(), recommendation.NewRecommendation{
			ApplicationID: &app.ID, RefereeName: name, RefereeEmail: "ref@school.test",
		})
		require.NoError(t, err)
	}
	recs, err := f.Recs.Query(ctx, f.counselor.Actor(), &recommendation.QueryFilter{ApplicationID: app.ID})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	_, err = f.Recs.MarkSubmitted(ctx, f.counselor.Actor(), recs[0].ID)
	require.NoError(t, err)

	detail, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Progress.RequestedRecommendations)
	assert.Equal(t, 1, detail.Progress.SubmittedRecommendations)
}

func TestService_Get_cached(t *testing.T) {
	now := time.Date(2029, 12, 1, 9, 0, 0, 0, time.UTC)
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })

	cache := testutil.NewMapCache()
	f := newFixture(t, testutil.WithCache(cache))
	app := f.newApp(t, "Yale") // due 2030-01-05

	first, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.False(t, first.Progress.Urgent)
	var stored application.Detail
	found, err := cache.Get(ctx, "application:"+app.ID+":detail", &stored)
	require.NoError(t, err)
	require.True(t, found)

	now = time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	second, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.True(t, second.Progress.Urgent, "deadline in 3 days")

	// writes drop the cached detail
	f.newSlot(t, app.ID, "Why us")
	third, err := f.Apps.Get(ctx, f.student.Actor(), app.ID)
	require.NoError(t, err)
	assert.Len(t, third.Slots, 1)

	_, err = f.Apps.Get(ctx, testutil.CreateUser(t, f.UserRepo, "Other", "other@test.io", "", []string{user.RoleStudent}, true).Actor(), app.ID)
	assert.Equal(t, core.ErrForbidden, err)
}
