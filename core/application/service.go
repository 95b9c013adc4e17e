package application

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/essay"
	"github.com/admitdesk/admitdesk/core/user"
)

type (
	Repository interface {
		CreateApplication(ctx context.Context, app Application, exec ...core.DBExecutor) (Application, error)
		GetApplication(ctx context.Context, id string, exec ...core.DBExecutor) (Application, error)
		QueryApplications(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Application, error)
		UpdateApplication(ctx context.Context, app Application, exec ...core.DBExecutor) (Application, error)

		CreateSlot(ctx context.Context, slot Slot, exec ...core.DBExecutor) (Slot, error)
		GetSlot(ctx context.Context, id string, exec ...core.DBExecutor) (Slot, error)
		// ListSlots returns the slots of the applications ordered by display_order.
		ListSlots(ctx context.Context, applicationIDs []string, exec ...core.DBExecutor) ([]Slot, error)
		ListSlotsByDraft(ctx context.Context, draftID string, exec ...core.DBExecutor) ([]Slot, error)
		UpdateSlot(ctx context.Context, slot Slot, exec ...core.DBExecutor) (Slot, error)
		DeleteSlot(ctx context.Context, id string, exec ...core.DBExecutor) error

		// CreateSubmission returns ErrAlreadySubmitted when the application has a submission.
		CreateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmission(ctx context.Context, applicationID string, exec ...core.DBExecutor) (Submission, error)
		ListSubmissions(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]Submission, error)
	}

	DraftFinder interface {
		Get(ctx context.Context, actor core.Actor, id string) (essay.Draft, error)
		GetMany(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]essay.Draft, error)
	}

	RecommendationCounts struct {
		Requested int `json:"requested"`
		Submitted int `json:"submitted"`
	}

	RecommendationCounter interface {
		CountByApplications(ctx context.Context, applicationIDs []string) (map[string]RecommendationCounts, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		Counselors(ctx context.Context, studentID string) ([]user.User, error)
	}

	// Archiver keeps a copy of submissions outside the database.
	Archiver interface {
		Archive(ctx context.Context, sub Submission) error
	}

	Deps struct {
		Repo     Repository
		Tx       core.Transactor
		Access   core.AccessChecker
		Drafts   DraftFinder
		Recs     RecommendationCounter
		Users    UserFinder
		Cache    core.Cache
		CacheTTL time.Duration
		Events   core.EventPublisher
		Archiver Archiver
		MailSvc  core.EmailService
		Logger   core.Logger
	}

	Service struct {
		Deps
	}
)

var _ essay.SlotSyncer = (*Service)(nil)

func NewService(deps Deps) *Service {
	if deps.Cache == nil {
		deps.Cache = core.NoopCache
	}
	if deps.Events == nil {
		deps.Events = core.NoopPublisher
	}
	return &Service{Deps: deps}
}

func detailKey(id string) string {
	return "application:" + id + ":detail"
}

// Invalidate drops the cached details of the applications.
func (svc *Service) Invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := lo.Map(lo.Uniq(ids), func(id string, _ int) string { return detailKey(id) })
	if err := svc.Cache.Delete(ctx, keys...); err != nil {
		svc.Logger.Warn(fmt.Sprintf("invalidating application cache: %v", err), err)
	}
}

func (svc *Service) publish(ctx context.Context, subject string, payload interface{}) {
	if err := svc.Events.Publish(ctx, subject, payload); err != nil {
		svc.Logger.Warn(fmt.Sprintf("publishing %s: %v", subject, err), err)
	}
}

// load fetches an application the actor may access.
func (svc *Service) load(ctx context.Context, actor core.Actor, id string) (Application, error) {
	app, err := svc.Repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if err := svc.Access.CheckStudentAccess(ctx, actor, app.StudentID); err != nil {
		return Application{}, err
	}
	return app, nil
}

// loadSlot fetches a slot the actor may access.
func (svc *Service) loadSlot(ctx context.Context, actor core.Actor, id string) (Slot, error) {
	slot, err := svc.Repo.GetSlot(ctx, id)
	if err != nil {
		return Slot{}, err
	}
	if err := svc.Access.CheckStudentAccess(ctx, actor, slot.StudentID); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

func (svc *Service) draftMap(ctx context.Context, slots []Slot, exec ...core.DBExecutor) (map[string]essay.Draft, error) {
	drafts, err := svc.Drafts.GetMany(ctx, draftIDs(slots), exec...)
	if err != nil {
		return nil, err
	}
	return lo.KeyBy(drafts, func(d essay.Draft) string { return d.ID }), nil
}

func (svc *Service) recommendationCounts(ctx context.Context, ids []string) (map[string]RecommendationCounts, error) {
	if svc.Recs == nil || len(ids) == 0 {
		return map[string]RecommendationCounts{}, nil
	}
	return svc.Recs.CountByApplications(ctx, ids)
}

// details assembles the derived views of apps from their live slots, drafts and recommendations.
func (svc *Service) details(ctx context.Context, apps []Application) ([]Detail, error) {
	if len(apps) == 0 {
		return []Detail{}, nil
	}
	ids := lo.Map(apps, func(a Application, _ int) string { return a.ID })

	slots, err := svc.Repo.ListSlots(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "listing essays")
	}
	drafts, err := svc.draftMap(ctx, slots)
	if err != nil {
		return nil, errors.Wrap(err, "getting drafts")
	}
	recs, err := svc.recommendationCounts(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "counting recommendations")
	}

	byApp := lo.GroupBy(slots, func(s Slot) string { return s.ApplicationID })
	now := core.NowFunc()
	details := make([]Detail, 0, len(apps))
	for _, app := range apps {
		appSlots := byApp[app.ID]
		details = append(details, Detail{
			Application: app,
			Slots:       slotViews(appSlots, drafts),
			Progress:    ComputeProgress(app, appSlots, drafts, recs[app.ID], now),
		})
	}
	return details, nil
}

func parseDate(field, val string) (time.Time, error) {
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(err, core.FieldError{Field: field, Error: "invalid date"})
	}
	return t, nil
}

// Create adds an application. Students create their own; staff create them for students they follow.
func (svc *Service) Create(ctx context.Context, actor core.Actor, na NewApplication) (Detail, error) {
	studentID, err := core.OwnerStudent(actor, na.StudentID)
	if err != nil {
		return Detail{}, err
	}
	if err := svc.Access.CheckStudentAccess(ctx, actor, studentID); err != nil {
		return Detail{}, err
	}
	deadline, err := parseDate("deadline", na.Deadline)
	if err != nil {
		return Detail{}, err
	}

	now := core.NowFunc()
	app, err := svc.Repo.CreateApplication(ctx, Application{
		ID:         uuid.New().String(),
		StudentID:  studentID,
		SchoolName: na.SchoolName,
		Program:    na.Program,
		Type:       na.Type,
		Deadline:   deadline,
		Status:     StatusDraft,
		Notes:      na.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Detail{}, errors.Wrap(err, "creating application")
	}
	return Detail{
		Application: app,
		Slots:       []SlotView{},
		Progress:    ComputeProgress(app, nil, nil, RecommendationCounts{}, now),
	}, nil
}

// Get returns the application with its essays and derived progress.
func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Detail, error) {
	var cached Detail
	found, err := svc.Cache.Get(ctx, detailKey(id), &cached)
	if err != nil {
		svc.Logger.Warn(fmt.Sprintf("reading application cache: %v", err), err)
	}
	if found {
		if err := svc.Access.CheckStudentAccess(ctx, actor, cached.StudentID); err != nil {
			return Detail{}, err
		}
		// urgency follows the clock, not writes
		cached.Progress.Urgent = IsUrgent(cached.Application, core.NowFunc())
		return cached, nil
	}

	app, err := svc.load(ctx, actor, id)
	if err != nil {
		return Detail{}, err
	}
	details, err := svc.details(ctx, []Application{app})
	if err != nil {
		return Detail{}, err
	}
	if err := svc.Cache.Set(ctx, detailKey(id), details[0], svc.CacheTTL); err != nil {
		svc.Logger.Warn(fmt.Sprintf("caching application: %v", err), err)
	}
	return details[0], nil
}

// Query lists the applications of the students visible to the actor.
func (svc *Service) Query(ctx context.Context, actor core.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]Detail, error) {
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
				return []Detail{}, nil
			}
			filter.StudentIDs = ids
		}
	}

	ordering = core.AllowedOrderings(ordering, "deadline", "school_name", "status", "application_type", "created_at", "updated_at")
	if len(ordering) > 1 {
		ordering = ordering[:1]
	}
	apps, err := svc.Repo.QueryApplications(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying applications")
	}
	return svc.details(ctx, apps)
}

// Update edits an application. A submitted application keeps its status.
func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ua UpdateApplication) (Detail, error) {
	app, err := svc.load(ctx, actor, id)
	if err != nil {
		return Detail{}, err
	}

	if ua.SchoolName != nil {
		app.SchoolName = *ua.SchoolName
	}
	if ua.Program != nil {
		app.Program = core.CleanString(*ua.Program)
	}
	if ua.Type != nil {
		app.Type = *ua.Type
	}
	if ua.Deadline != nil {
		if app.Deadline, err = parseDate("deadline", *ua.Deadline); err != nil {
			return Detail{}, err
		}
	}
	if ua.Notes != nil {
		app.Notes = *ua.Notes
	}
	if ua.Status != nil && *ua.Status != app.Status {
		if app.Status.Submitted() {
			return Detail{}, core.NewValidationError(ErrAlreadySubmitted, core.FieldError{Field: "status", Error: ErrAlreadySubmitted.Error()})
		}
		app.Status = *ua.Status
	}
	app.UpdatedAt = core.NowFunc()

	if _, err = svc.Repo.UpdateApplication(ctx, app); err != nil {
		return Detail{}, errors.Wrap(err, "updating application")
	}
	svc.Invalidate(ctx, id)
	return svc.Get(ctx, actor, id)
}

// Approve marks a sent application as approved. Counselors and admins only.
func (svc *Service) Approve(ctx context.Context, actor core.Actor, id string) (Detail, error) {
	if !actor.IsStaff() {
		return Detail{}, core.ErrForbidden
	}
	app, err := svc.load(ctx, actor, id)
	if err != nil {
		return Detail{}, err
	}
	if app.Status != StatusSent {
		return Detail{}, core.NewValidationError(ErrNotSent, core.FieldError{Field: "status", Error: ErrNotSent.Error()})
	}

	app.Status = StatusApproved
	app.UpdatedAt = core.NowFunc()
	if _, err = svc.Repo.UpdateApplication(ctx, app); err != nil {
		return Detail{}, errors.Wrap(err, "approving application")
	}
	svc.Invalidate(ctx, id)
	svc.publish(ctx, "applications."+id+".approved", map[string]interface{}{"application_id": id, "approved_by": actor.ID})
	return svc.Get(ctx, actor, id)
}

func checkNotSubmitted(app Application) error {
	if app.Status.Submitted() {
		return core.NewValidationError(ErrAlreadySubmitted, core.FieldError{Field: "status", Error: ErrAlreadySubmitted.Error()})
	}
	return nil
}

// CreateSlot adds an essay requirement at the end of the application's list.
func (svc *Service) CreateSlot(ctx context.Context, actor core.Actor, appID string, ns NewSlot) (Slot, error) {
	app, err := svc.load(ctx, actor, appID)
	if err != nil {
		return Slot{}, err
	}
	if err = checkNotSubmitted(app); err != nil {
		return Slot{}, err
	}

	var slot Slot
	err = svc.Tx.InTx(ctx, func(exec core.DBExecutor) error {
		slots, err := svc.Repo.ListSlots(ctx, []string{appID}, exec)
		if err != nil {
			return errors.Wrap(err, "listing essays")
		}
		order := 0
		if len(slots) > 0 {
			order = lo.MaxBy(slots, func(a, b Slot) bool { return a.DisplayOrder > b.DisplayOrder }).DisplayOrder + 1
		}

		now := core.NowFunc()
		slot, err = svc.Repo.CreateSlot(ctx, Slot{
			ID:            uuid.New().String(),
			ApplicationID: app.ID,
			StudentID:     app.StudentID,
			Label:         ns.Label,
			Prompt:        ns.Prompt,
			WordLimit:     ns.WordLimit,
			Status:        SlotNotStarted,
			DisplayOrder:  order,
			CreatedAt:     now,
			UpdatedAt:     now,
		}, exec)
		return errors.Wrap(err, "creating essay")
	})
	if err != nil {
		return Slot{}, err
	}
	svc.Invalidate(ctx, appID)
	return slot, nil
}

func (svc *Service) UpdateSlot(ctx context.Context, actor core.Actor, id string, us UpdateSlot) (Slot, error) {
	slot, err := svc.loadSlot(ctx, actor, id)
	if err != nil {
		return Slot{}, err
	}
	if us.Label != nil {
		slot.Label = *us.Label
	}
	if us.Prompt != nil {
		slot.Prompt = core.CleanString(*us.Prompt)
	}
	if us.WordLimit != nil {
		slot.WordLimit = us.WordLimit
	}
	slot.UpdatedAt = core.NowFunc()

	if slot, err = svc.Repo.UpdateSlot(ctx, slot); err != nil {
		return Slot{}, errors.Wrap(err, "updating essay")
	}
	svc.Invalidate(ctx, slot.ApplicationID)
	return slot, nil
}

// DeleteSlot removes an essay requirement. The linked draft is kept.
func (svc *Service) DeleteSlot(ctx context.Context, actor core.Actor, id string) error {
	slot, err := svc.loadSlot(ctx, actor, id)
	if err != nil {
		return err
	}
	app, err := svc.Repo.GetApplication(ctx, slot.ApplicationID)
	if err != nil {
		return errors.Wrap(err, "getting application")
	}
	if err = checkNotSubmitted(app); err != nil {
		return err
	}
	if err = svc.Repo.DeleteSlot(ctx, id); err != nil {
		return errors.Wrap(err, "deleting essay")
	}
	svc.Invalidate(ctx, slot.ApplicationID)
	return nil
}

// ReorderSlots sets the display order of the application's essays to the order of ids.
func (svc *Service) ReorderSlots(ctx context.Context, actor core.Actor, appID string, ids []string) ([]Slot, error) {
	if _, err := svc.load(ctx, actor, appID); err != nil {
		return nil, err
	}

	var out []Slot
	err := svc.Tx.InTx(ctx, func(exec core.DBExecutor) error {
		slots, err := svc.Repo.ListSlots(ctx, []string{appID}, exec)
		if err != nil {
			return errors.Wrap(err, "listing essays")
		}
		current := lo.Map(slots, func(s Slot, _ int) string { return s.ID })
		if len(lo.Uniq(ids)) != len(ids) || len(ids) != len(current) || len(lo.Without(current, ids...)) > 0 {
			return core.NewValidationError(ErrInvalidOrder, core.FieldError{Field: "slot_ids", Error: ErrInvalidOrder.Error()})
		}

		byID := lo.KeyBy(slots, func(s Slot) string { return s.ID })
		now := core.NowFunc()
		out = make([]Slot, 0, len(ids))
		for i, id := range ids {
			slot := byID[id]
			if slot.DisplayOrder != i {
				slot.DisplayOrder = i
				slot.UpdatedAt = now
				if slot, err = svc.Repo.UpdateSlot(ctx, slot, exec); err != nil {
					return errors.Wrap(err, "reordering essays")
				}
			}
			out = append(out, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.Invalidate(ctx, appID)
	return out, nil
}

// LinkDraft attaches one of the student's drafts to the slot, which restarts at draft.
// A fresh application moves to in_progress.
func (svc *Service) LinkDraft(ctx context.Context, actor core.Actor, slotID, draftID string) (Slot, error) {
	slot, err := svc.loadSlot(ctx, actor, slotID)
	if err != nil {
		return Slot{}, err
	}
	draft, err := svc.Drafts.Get(ctx, actor, draftID)
	if err != nil {
		return Slot{}, err
	}
	if draft.StudentID != slot.StudentID {
		return Slot{}, core.NewValidationError(ErrDraftOwner, core.FieldError{Field: "draft_id", Error: ErrDraftOwner.Error()})
	}

	err = svc.Tx.InTx(ctx, func(exec core.DBExecutor) error {
		app, err := svc.Repo.GetApplication(ctx, slot.ApplicationID, exec)
		if err != nil {
			return errors.Wrap(err, "getting application")
		}
		if err = checkNotSubmitted(app); err != nil {
			return err
		}

		now := core.NowFunc()
		if slot, err = svc.Repo.UpdateSlot(ctx, Link(slot, draft.ID, now), exec); err != nil {
			return errors.Wrap(err, "linking draft")
		}
		if app.Status == StatusDraft {
			app.Status = StatusInProgress
			app.UpdatedAt = now
			if _, err = svc.Repo.UpdateApplication(ctx, app, exec); err != nil {
				return errors.Wrap(err, "starting application")
			}
		}
		return nil
	})
	if err != nil {
		return Slot{}, err
	}
	svc.Invalidate(ctx, slot.ApplicationID)
	return slot, nil
}

// UnlinkDraft detaches the slot's draft. The slot goes back to not_started.
func (svc *Service) UnlinkDraft(ctx context.Context, actor core.Actor, slotID string) (Slot, error) {
	slot, err := svc.loadSlot(ctx, actor, slotID)
	if err != nil {
		return Slot{}, err
	}
	app, err := svc.Repo.GetApplication(ctx, slot.ApplicationID)
	if err != nil {
		return Slot{}, errors.Wrap(err, "getting application")
	}
	if err = checkNotSubmitted(app); err != nil {
		return Slot{}, err
	}
	if slot.DraftID == nil {
		return slot, nil
	}

	if slot, err = svc.Repo.UpdateSlot(ctx, Unlink(slot, core.NowFunc())); err != nil {
		return Slot{}, errors.Wrap(err, "unlinking draft")
	}
	svc.Invalidate(ctx, slot.ApplicationID)
	return slot, nil
}

// TransitionSlot changes the status of a slot. Students may send their essay to review or
// reset it; approving and returning for revision belong to counselors and admins.
func (svc *Service) TransitionSlot(ctx context.Context, actor core.Actor, slotID string, to SlotStatus) (Slot, error) {
	slot, err := svc.loadSlot(ctx, actor, slotID)
	if err != nil {
		return Slot{}, err
	}
	if !actor.IsStaff() && slot.Status != SlotDraft && slot.Status != to {
		return Slot{}, core.ErrForbidden
	}
	if slot.Status == to {
		return slot, nil
	}
	if to == SlotNotStarted {
		// resetting unlinks the draft, which a submitted application must keep
		app, err := svc.Repo.GetApplication(ctx, slot.ApplicationID)
		if err != nil {
			return Slot{}, errors.Wrap(err, "getting application")
		}
		if err = checkNotSubmitted(app); err != nil {
			return Slot{}, err
		}
	}

	moved, err := Transition(slot, to, core.NowFunc())
	if err != nil {
		return Slot{}, err
	}
	if slot, err = svc.Repo.UpdateSlot(ctx, moved); err != nil {
		return Slot{}, errors.Wrap(err, "updating essay status")
	}
	svc.Invalidate(ctx, slot.ApplicationID)
	return slot, nil
}

// SyncDraftStatus mirrors the status of a draft onto every slot linked to it.
// It runs within the caller's transaction.
func (svc *Service) SyncDraftStatus(ctx context.Context, draftID string, status essay.Status, exec core.DBExecutor) error {
	to, ok := SlotStatusFor(status)
	if !ok {
		return nil
	}
	slots, err := svc.Repo.ListSlotsByDraft(ctx, draftID, exec)
	if err != nil {
		return errors.Wrap(err, "listing linked essays")
	}
	now := core.NowFunc()
	for _, slot := range slots {
		if slot.Status == to {
			continue
		}
		slot.Status = to
		slot.UpdatedAt = now
		if _, err = svc.Repo.UpdateSlot(ctx, slot, exec); err != nil {
			return errors.Wrapf(err, "syncing essay %s", slot.ID)
		}
	}
	return nil
}

// DraftChanged drops the cached details of the applications using the draft.
func (svc *Service) DraftChanged(ctx context.Context, draftID string) {
	slots, err := svc.Repo.ListSlotsByDraft(ctx, draftID)
	if err != nil {
		svc.Logger.Warn(fmt.Sprintf("listing essays of draft %s: %v", draftID, err), err)
		return
	}
	svc.Invalidate(ctx, lo.Map(slots, func(s Slot, _ int) string { return s.ApplicationID })...)
}

// Submit records the submission of the application. Writing the submission and
// marking the application sent happen in one transaction.
func (svc *Service) Submit(ctx context.Context, actor core.Actor, id string, data Submit) (Submission, error) {
	if _, err := svc.load(ctx, actor, id); err != nil {
		return Submission{}, err
	}

	var (
		sub   Submission
		app   Application
		slots []Slot
	)
	err := svc.Tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if app, err = svc.Repo.GetApplication(ctx, id, exec); err != nil {
			return errors.Wrap(err, "getting application")
		}
		if app.Status.Submitted() {
			return ErrAlreadySubmitted
		}
		if slots, err = svc.Repo.ListSlots(ctx, []string{id}, exec); err != nil {
			return errors.Wrap(err, "listing essays")
		}
		drafts, err := svc.draftMap(ctx, slots, exec)
		if err != nil {
			return errors.Wrap(err, "getting drafts")
		}
		if !CanSubmit(app, slots, drafts) {
			return core.NewValidationError(ErrNotSubmittable, core.FieldError{Field: "essays", Error: ErrNotSubmittable.Error()})
		}

		now := core.NowFunc()
		sub, err = svc.Repo.CreateSubmission(ctx, Submission{
			ID:            uuid.New().String(),
			ApplicationID: app.ID,
			StudentID:     app.StudentID,
			SubmittedAt:   now,
			Essays:        BuildSnapshot(slots, drafts),
			Notes:         core.CleanString(data.Notes),
		}, exec)
		if err != nil {
			return err
		}

		app.Status = StatusSent
		app.UpdatedAt = now
		_, err = svc.Repo.UpdateApplication(ctx, app, exec)
		return errors.Wrap(err, "marking application sent")
	})
	if err != nil {
		return Submission{}, err
	}

	svc.Invalidate(ctx, id)
	svc.publish(ctx, "applications."+id+".submitted", map[string]interface{}{
		"application_id": id,
		"student_id":     app.StudentID,
		"submission_id":  sub.ID,
		"essays":         len(sub.Essays),
	})
	if svc.Archiver != nil {
		if err := svc.Archiver.Archive(ctx, sub); err != nil {
			svc.Logger.Error(fmt.Sprintf("archiving submission %s: %v", sub.ID, err), err)
		}
	}
	svc.notifyCounselors(ctx, app, len(sub.Essays))
	return sub, nil
}

func (svc *Service) notifyCounselors(ctx context.Context, app Application, essayCount int) {
	if svc.MailSvc == nil || svc.Users == nil {
		return
	}
	student, err := svc.Users.GetByID(ctx, app.StudentID)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("finding student to notify: %v", err), err)
		return
	}
	counselors, err := svc.Users.Counselors(ctx, app.StudentID)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("finding counselors to notify: %v", err), err)
		return
	}

	msgs := make([]*core.EmailMessage, 0, len(counselors))
	for _, c := range counselors {
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: c.Name, Address: c.Email}},
			Subject:      fmt.Sprintf("%s submitted %s", student.Name, app.SchoolName),
			TemplateName: "application_submitted",
			TemplateData: map[string]interface{}{
				"CounselorName": c.Name,
				"StudentName":   student.Name,
				"SchoolName":    app.SchoolName,
				"EssayCount":    essayCount,
				"ApplicationID": app.ID,
			},
		})
	}
	if len(msgs) > 0 {
		svc.MailSvc.SendMessages(msgs...)
	}
}

// GetSubmission returns the submission record of an application.
func (svc *Service) GetSubmission(ctx context.Context, actor core.Actor, appID string) (Submission, error) {
	if _, err := svc.load(ctx, actor, appID); err != nil {
		return Submission{}, err
	}
	return svc.Repo.GetSubmission(ctx, appID)
}

// ListSubmissions lists the submissions of the students visible to the actor, or of one student.
func (svc *Service) ListSubmissions(ctx context.Context, actor core.Actor, studentID string) ([]Submission, error) {
	var ids []string
	if studentID != "" {
		if err := svc.Access.CheckStudentAccess(ctx, actor, studentID); err != nil {
			return nil, err
		}
		ids = []string{studentID}
	} else {
		visible, all, err := svc.Access.VisibleStudentIDs(ctx, actor)
		if err != nil {
			return nil, errors.Wrap(err, "listing visible students")
		}
		if !all {
			if len(visible) == 0 {
				return []Submission{}, nil
			}
			ids = visible
		}
	}
	subs, err := svc.Repo.ListSubmissions(ctx, ids)
	return subs, errors.Wrap(err, "listing submissions")
}
