package recommendation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/core/user"
)

type (
	Repository interface {
		CreateRecommendation(ctx context.Context, rec Recommendation, exec ...core.DBExecutor) (Recommendation, error)
		GetRecommendation(ctx context.Context, id string, exec ...core.DBExecutor) (Recommendation, error)
		QueryRecommendations(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Recommendation, error)
		UpdateRecommendation(ctx context.Context, rec Recommendation, exec ...core.DBExecutor) (Recommendation, error)
		CountByApplications(ctx context.Context, applicationIDs []string, exec ...core.DBExecutor) (map[string]application.RecommendationCounts, error)
	}

	// LetterDrafter writes a letter from the referee's point of view. Implemented by the AI collaborator.
	LetterDrafter interface {
		DraftLetter(ctx context.Context, req LetterRequest) (string, error)
	}

	LetterRequest struct {
		RefereeName    string
		RefereeRole    string
		StudentName    string
		Answers        Answers
		CounselorNotes string
	}

	ApplicationFinder interface {
		Get(ctx context.Context, actor core.Actor, id string) (application.Detail, error)
		Invalidate(ctx context.Context, ids ...string)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Deps struct {
		Repo    Repository
		Access  core.AccessChecker
		Apps    ApplicationFinder
		Users   UserFinder
		Drafter LetterDrafter
		Events  core.EventPublisher
		Logger  core.Logger
	}

	Service struct {
		Deps
	}
)

var _ application.RecommendationCounter = (*Service)(nil)

func NewService(deps Deps) *Service {
	if deps.Events == nil {
		deps.Events = core.NoopPublisher
	}
	return &Service{Deps: deps}
}

func (svc *Service) load(ctx context.Context, actor core.Actor, id string) (Recommendation, error) {
	rec, err := svc.Repo.GetRecommendation(ctx, id)
	if err != nil {
		return Recommendation{}, err
	}
	if err := svc.Access.CheckStudentAccess(ctx, actor, rec.StudentID); err != nil {
		return Recommendation{}, err
	}
	return rec, nil
}

func (svc *Service) loadForCounselor(ctx context.Context, actor core.Actor, id string) (Recommendation, error) {
	if !actor.IsStaff() {
		return Recommendation{}, core.ErrForbidden
	}
	rec, err := svc.load(ctx, actor, id)
	if err != nil {
		return Recommendation{}, err
	}
	if rec.Status == StatusSubmitted {
		return Recommendation{}, core.NewValidationError(ErrAlreadySubmitted, core.FieldError{Field: "status", Error: ErrAlreadySubmitted.Error()})
	}
	return rec, nil
}

func (svc *Service) save(ctx context.Context, rec Recommendation) (Recommendation, error) {
	rec.UpdatedAt = core.NowFunc()
	rec, err := svc.Repo.UpdateRecommendation(ctx, rec)
	if err != nil {
		return Recommendation{}, errors.Wrap(err, "updating recommendation")
	}
	if rec.ApplicationID != nil && svc.Apps != nil {
		svc.Apps.Invalidate(ctx, *rec.ApplicationID)
	}
	return rec, nil
}

// Request registers a letter to ask from a referee. Students request for themselves,
// staff for the students they follow.
func (svc *Service) Request(ctx context.Context, actor core.Actor, nr NewRecommendation) (Recommendation, error) {
	studentID, err := core.OwnerStudent(actor, nr.StudentID)
	if err != nil {
		return Recommendation{}, err
	}
	if err := svc.Access.CheckStudentAccess(ctx, actor, studentID); err != nil {
		return Recommendation{}, err
	}
	if nr.ApplicationID != nil {
		app, err := svc.Apps.Get(ctx, actor, *nr.ApplicationID)
		if err != nil {
			return Recommendation{}, errors.Wrap(err, "getting application")
		}
		if app.StudentID != studentID {
			return Recommendation{}, core.NewValidationError(ErrApplicationOwner, core.FieldError{Field: "application_id", Error: ErrApplicationOwner.Error()})
		}
	}

	now := core.NowFunc()
	rec := Recommendation{
		ID:            uuid.New().String(),
		StudentID:     studentID,
		ApplicationID: nr.ApplicationID,
		RefereeName:   nr.RefereeName,
		RefereeRole:   nr.RefereeRole,
		RefereeEmail:  nr.RefereeEmail,
		Status:        StatusRequested,
		Answers:       Answers{Strengths: []string{}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if actor.IsCounselor() && actor.ID != studentID {
		rec.CounselorID = &actor.ID
	}
	rec, err = svc.Repo.CreateRecommendation(ctx, rec)
	if err != nil {
		return Recommendation{}, errors.Wrap(err, "creating recommendation")
	}
	if rec.ApplicationID != nil {
		svc.Apps.Invalidate(ctx, *rec.ApplicationID)
	}
	return rec, nil
}

func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Recommendation, error) {
	return svc.load(ctx, actor, id)
}

// Query lists the recommendations of the students visible to the actor.
func (svc *Service) Query(ctx context.Context, actor core.Actor, filter *QueryFilter) ([]Recommendation, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if filter.StudentID != "" {
		if err := svc.Access.CheckStudentAccess(ctx, actor, filter.StudentID); err != nil {
			return nil, err
		}
		filter.StudentIDs = []string{filter.StudentID}
	} else {
		ids, all, err := svc.Access.VisibleStudentIDs(ctx, actor)
		if err != nil {
			return nil, errors.Wrap(err, "listing visible students")
		}
		if !all {
			if len(ids) == 0 {
				return []Recommendation{}, nil
			}
			filter.StudentIDs = ids
		}
	}
	for _, st := range filter.Statuses {
		if !Status(st).IsValid() {
			return nil, core.NewValidationError(fmt.Errorf("unknown status %q", st), core.FieldError{Field: "status", Error: "invalid value"})
		}
	}
	recs, err := svc.Repo.QueryRecommendations(ctx, filter)
	return recs, errors.Wrap(err, "querying recommendations")
}

// UpdateAnswers stores the student's questionnaire. Locked once the letter is submitted.
func (svc *Service) UpdateAnswers(ctx context.Context, actor core.Actor, id string, ua UpdateAnswers) (Recommendation, error) {
	rec, err := svc.Repo.GetRecommendation(ctx, id)
	if err != nil {
		return Recommendation{}, err
	}
	if rec.StudentID != actor.ID {
		return Recommendation{}, core.ErrForbidden
	}
	if rec.Status == StatusSubmitted {
		return Recommendation{}, core.NewValidationError(ErrAlreadySubmitted, core.FieldError{Field: "status", Error: ErrAlreadySubmitted.Error()})
	}
	rec.Answers = ua.Answers
	return svc.save(ctx, rec)
}

// DraftLetter has the letter drafter write the letter from the answers and the counselor's notes.
func (svc *Service) DraftLetter(ctx context.Context, actor core.Actor, id string, dl DraftLetter) (Recommendation, error) {
	rec, err := svc.loadForCounselor(ctx, actor, id)
	if err != nil {
		return Recommendation{}, err
	}
	if dl.CounselorNotes != nil {
		rec.CounselorNotes = core.CleanString(*dl.CounselorNotes)
	}
	student, err := svc.Users.GetByID(ctx, rec.StudentID)
	if err != nil {
		return Recommendation{}, errors.Wrap(err, "finding student")
	}

	letter, err := svc.Drafter.DraftLetter(ctx, LetterRequest{
		RefereeName:    rec.RefereeName,
		RefereeRole:    rec.RefereeRole,
		StudentName:    student.Name,
		Answers:        rec.Answers,
		CounselorNotes: rec.CounselorNotes,
	})
	if err != nil {
		return Recommendation{}, errors.Wrap(err, "drafting letter")
	}

	rec.LetterText = letter
	rec.Status = StatusDrafted
	if rec.CounselorID == nil && actor.IsCounselor() {
		rec.CounselorID = &actor.ID
	}
	return svc.save(ctx, rec)
}

// UpdateLetter stores the letter as edited by the counselor.
func (svc *Service) UpdateLetter(ctx context.Context, actor core.Actor, id string, ul UpdateLetter) (Recommendation, error) {
	rec, err := svc.loadForCounselor(ctx, actor, id)
	if err != nil {
		return Recommendation{}, err
	}
	rec.LetterText = ul.LetterText
	if ul.CounselorNotes != nil {
		rec.CounselorNotes = core.CleanString(*ul.CounselorNotes)
	}
	rec.Status = StatusDrafted
	return svc.save(ctx, rec)
}

// MarkSubmitted records that the referee sent the letter.
func (svc *Service) MarkSubmitted(ctx context.Context, actor core.Actor, id string) (Recommendation, error) {
	rec, err := svc.loadForCounselor(ctx, actor, id)
	if err != nil {
		return Recommendation{}, err
	}
	now := core.NowFunc()
	rec.Status = StatusSubmitted
	rec.SubmittedAt = &now
	if rec, err = svc.save(ctx, rec); err != nil {
		return Recommendation{}, err
	}
	if err := svc.Events.Publish(ctx, "recommendations."+rec.ID+".submitted", map[string]interface{}{
		"recommendation_id": rec.ID,
		"student_id":        rec.StudentID,
	}); err != nil {
		svc.Logger.Warn(fmt.Sprintf("publishing recommendation submitted event: %v", err), err)
	}
	return rec, nil
}

// CountByApplications counts the requested and submitted letters of each application.
func (svc *Service) CountByApplications(ctx context.Context, applicationIDs []string) (map[string]application.RecommendationCounts, error) {
	return svc.Repo.CountByApplications(ctx, applicationIDs)
}
