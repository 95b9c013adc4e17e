package essay

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/user"
)

type (
	Repository interface {
		CreateDraft(ctx context.Context, d Draft, exec ...core.DBExecutor) (Draft, error)
		GetDraft(ctx context.Context, id string, exec ...core.DBExecutor) (Draft, error)
		// GetDrafts returns the drafts with the given IDs, in no particular order. Unknown IDs are skipped.
		GetDrafts(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]Draft, error)
		QueryDrafts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Draft, error)
		UpdateDraft(ctx context.Context, d Draft, exec ...core.DBExecutor) (Draft, error)
	}

	// Scorer grades a draft against the rubric. Implemented by the AI collaborator.
	Scorer interface {
		Score(ctx context.Context, req ScoreRequest) (AnalysisResult, error)
	}

	ScoreRequest struct {
		Title   string
		Prompt  string
		Content string
	}

	// SlotSyncer mirrors draft changes onto the essay slots linked to the draft.
	SlotSyncer interface {
		// SyncDraftStatus runs with the executor of the transaction changing the draft status.
		SyncDraftStatus(ctx context.Context, draftID string, status Status, exec core.DBExecutor) error
		// DraftChanged is called once the change is committed.
		DraftChanged(ctx context.Context, draftID string)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Deps struct {
		Repo    Repository
		Tx      core.Transactor
		Access  core.AccessChecker
		Users   UserFinder
		Scorer  Scorer
		MailSvc core.EmailService
		Events  core.EventPublisher
		Logger  core.Logger
	}

	Service struct {
		Deps
		syncer SlotSyncer
	}
)

func NewService(deps Deps) *Service {
	if deps.Events == nil {
		deps.Events = core.NoopPublisher
	}
	return &Service{Deps: deps}
}

// SetSlotSyncer wires the slot sync. The application service depends on this one, hence the setter.
func (svc *Service) SetSlotSyncer(syncer SlotSyncer) {
	svc.syncer = syncer
}

// CountWords counts whitespace separated tokens; runs of whitespace count once.
func CountWords(content string) int {
	return len(strings.Fields(content))
}

func withWordCount(d Draft) Draft {
	d.WordCount = CountWords(d.Content)
	if d.FeedbackItems == nil {
		d.FeedbackItems = []FeedbackItem{}
	}
	return d
}

// load fetches a draft the actor may access.
func (svc *Service) load(ctx context.Context, actor core.Actor, id string) (Draft, error) {
	d, err := svc.Repo.GetDraft(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if err := svc.Access.CheckStudentAccess(ctx, actor, d.StudentID); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// loadForReview fetches a draft the actor may review (staff with access to the student).
func (svc *Service) loadForReview(ctx context.Context, actor core.Actor, id string) (Draft, error) {
	if !actor.IsStaff() {
		return Draft{}, core.ErrForbidden
	}
	return svc.load(ctx, actor, id)
}

// save persists d and, when its status changed, syncs the linked slots in the same transaction.
func (svc *Service) save(ctx context.Context, d Draft, statusChanged bool) (Draft, error) {
	var saved Draft
	err := svc.Tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if saved, err = svc.Repo.UpdateDraft(ctx, d, exec); err != nil {
			return errors.Wrap(err, "updating draft")
		}
		if statusChanged && svc.syncer != nil {
			if err = svc.syncer.SyncDraftStatus(ctx, d.ID, d.Status, exec); err != nil {
				return errors.Wrap(err, "syncing essay slots")
			}
		}
		return nil
	})
	if err != nil {
		return Draft{}, err
	}
	if svc.syncer != nil {
		svc.syncer.DraftChanged(ctx, d.ID)
	}
	return withWordCount(saved), nil
}

// Create stores a new draft. Students write for themselves; staff may start one for a student they follow.
func (svc *Service) Create(ctx context.Context, actor core.Actor, nd NewDraft) (Draft, error) {
	studentID, err := core.OwnerStudent(actor, nd.StudentID)
	if err != nil {
		return Draft{}, err
	}
	if err := svc.Access.CheckStudentAccess(ctx, actor, studentID); err != nil {
		return Draft{}, err
	}

	now := core.NowFunc()
	d := Draft{
		ID:            uuid.New().String(),
		StudentID:     studentID,
		Title:         nd.Title,
		Prompt:        nd.Prompt,
		Content:       nd.Content,
		FeedbackItems: []FeedbackItem{},
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if actor.IsCounselor() && actor.ID != studentID {
		d.CounselorID = &actor.ID
	}
	d, err = svc.Repo.CreateDraft(ctx, d)
	if err != nil {
		return Draft{}, errors.Wrap(err, "creating draft")
	}
	return withWordCount(d), nil
}

func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Draft, error) {
	d, err := svc.load(ctx, actor, id)
	if err != nil {
		return Draft{}, err
	}
	return withWordCount(d), nil
}

// Query lists the drafts of the students visible to the actor.
func (svc *Service) Query(ctx context.Context, actor core.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]Draft, error) {
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
				return []Draft{}, nil
			}
			filter.StudentIDs = ids
		}
	}
	for _, st := range filter.Statuses {
		if !Status(st).IsValid() {
			return nil, core.NewValidationError(fmt.Errorf("unknown status %q", st), core.FieldError{Field: "status", Error: "invalid value"})
		}
	}

	ordering = core.AllowedOrderings(ordering, "title", "status", "created_at", "updated_at", "sent_at")
	drafts, err := svc.Repo.QueryDrafts(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying drafts")
	}
	for i := range drafts {
		drafts[i] = withWordCount(drafts[i])
	}
	return drafts, nil
}

// UpdateContent lets the owning student edit the writing. The review state is kept.
func (svc *Service) UpdateContent(ctx context.Context, actor core.Actor, id string, ud UpdateDraft) (Draft, error) {
	d, err := svc.Repo.GetDraft(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if d.StudentID != actor.ID {
		return Draft{}, core.ErrForbidden
	}

	if ud.Title != nil {
		d.Title = *ud.Title
	}
	if ud.Prompt != nil {
		d.Prompt = core.CleanString(*ud.Prompt)
	}
	if ud.Content != nil {
		d.Content = *ud.Content
	}
	d.UpdatedAt = core.NowFunc()
	return svc.save(ctx, d, false)
}

// Analyze has the scorer grade the draft and stores the result verbatim.
// When staff runs it on a fresh draft, the review is considered started.
func (svc *Service) Analyze(ctx context.Context, actor core.Actor, id string) (Draft, error) {
	d, err := svc.load(ctx, actor, id)
	if err != nil {
		return Draft{}, err
	}
	if strings.TrimSpace(d.Content) == "" {
		return Draft{}, core.NewValidationError(ErrEmptyContent, core.FieldError{Field: "content", Error: ErrEmptyContent.Error()})
	}

	result, err := svc.Scorer.Score(ctx, ScoreRequest{Title: d.Title, Prompt: d.Prompt, Content: d.Content})
	if err != nil {
		return Draft{}, errors.Wrap(err, "scoring draft")
	}

	now := core.NowFunc()
	d.Analysis = &result
	d.UpdatedAt = now
	var started bool
	if actor.IsStaff() {
		started = d.startReview(now)
		svc.claim(&d, actor)
	}
	return svc.save(ctx, d, started)
}

// claim records the counselor reviewing the draft when none is set yet.
func (svc *Service) claim(d *Draft, actor core.Actor) {
	if d.CounselorID == nil && actor.IsCounselor() {
		id := actor.ID
		d.CounselorID = &id
	}
}

// RecordFeedbackItem appends a counselor comment to the draft.
func (svc *Service) RecordFeedbackItem(ctx context.Context, actor core.Actor, id string, nfi NewFeedbackItem) (Draft, error) {
	d, err := svc.loadForReview(ctx, actor, id)
	if err != nil {
		return Draft{}, err
	}

	now := core.NowFunc()
	item := FeedbackItem{
		ID:        nfi.ID,
		Kind:      nfi.Kind,
		Comment:   nfi.Comment,
		Severity:  nfi.Severity,
		AuthorID:  actor.ID,
		CreatedAt: now,
	}
	switch nfi.Kind {
	case FeedbackAI:
		iss, ok := d.Analysis.issue(nfi.IssueID)
		if !ok {
			return Draft{}, core.NewValidationError(ErrIssueNotFound, core.FieldError{Field: "issue_id", Error: ErrIssueNotFound.Error()})
		}
		item.ID = iss.ID
		item.IssueID = iss.ID
		item.CriterionID = iss.CriterionID
		item.CriterionName = iss.CriterionName
		item.Color = iss.Color
		if item.Comment == "" {
			item.Comment = iss.Recommendation
		}
		if item.Severity == "" {
			item.Severity = iss.Severity
		}
		if excerpt, ok := Excerpt(d.Content, iss.StartIndex, iss.EndIndex); ok {
			start, end := iss.StartIndex, iss.EndIndex
			item.StartIndex, item.EndIndex = &start, &end
			item.HighlightedText = excerpt
		}
	default:
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		if nfi.StartIndex != nil {
			excerpt, ok := Excerpt(d.Content, *nfi.StartIndex, *nfi.EndIndex)
			if !ok {
				return Draft{}, core.NewValidationError(errInvalidRange, core.FieldError{Field: "end_index", Error: errInvalidRange.Error()})
			}
			item.StartIndex, item.EndIndex = nfi.StartIndex, nfi.EndIndex
			item.HighlightedText = excerpt
		}
	}

	if d.FeedbackItems, err = appendFeedbackItem(d.FeedbackItems, item); err != nil {
		return Draft{}, err
	}
	d.UpdatedAt = now
	started := d.startReview(now)
	svc.claim(&d, actor)
	return svc.save(ctx, d, started)
}

// SendFeedback delivers the review to the student: the draft becomes sent and every linked slot
// moves to in_review within the same transaction.
func (svc *Service) SendFeedback(ctx context.Context, actor core.Actor, id string, sf SendFeedback) (Draft, error) {
	d, err := svc.loadForReview(ctx, actor, id)
	if err != nil {
		return Draft{}, err
	}

	now := core.NowFunc()
	if d.Status.ReachedSent() {
		return Draft{}, newTransitionError(d.Status, StatusSent)
	}
	if err := d.transition(StatusSent, now); err != nil {
		return Draft{}, err
	}
	d.PersonalMessage = sf.Message
	reviewed := d.Content
	d.ReviewedContent = &reviewed
	svc.claim(&d, actor)

	d, err = svc.save(ctx, d, true)
	if err != nil {
		return Draft{}, err
	}

	if err := svc.Events.Publish(ctx, "drafts."+d.ID+".sent", map[string]interface{}{
		"draft_id":   d.ID,
		"student_id": d.StudentID,
		"sent_at":    d.SentAt,
	}); err != nil {
		svc.Logger.Warn(fmt.Sprintf("publishing draft sent event: %v", err), err)
	}
	svc.notifyStudent(ctx, actor, d)
	return d, nil
}

func (svc *Service) notifyStudent(ctx context.Context, actor core.Actor, d Draft) {
	if svc.MailSvc == nil || svc.Users == nil {
		return
	}
	student, err := svc.Users.GetByID(ctx, d.StudentID)
	if err != nil {
		svc.Logger.Error(fmt.Sprintf("finding student to notify: %v", err), err)
		return
	}
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "New feedback on your essay",
		TemplateName: "feedback_sent",
		TemplateData: map[string]interface{}{
			"StudentName":   student.Name,
			"CounselorName": actor.Name,
			"Title":         d.Title,
			"Message":       d.PersonalMessage,
			"DraftID":       d.ID,
		},
	})
}

// MarkRead records that the owning student read the feedback.
func (svc *Service) MarkRead(ctx context.Context, actor core.Actor, id string) (Draft, error) {
	d, err := svc.Repo.GetDraft(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if d.StudentID != actor.ID {
		return Draft{}, core.ErrForbidden
	}
	if d.Status == StatusRead {
		return withWordCount(d), nil
	}
	if err := d.transition(StatusRead, core.NowFunc()); err != nil {
		return Draft{}, err
	}
	return svc.save(ctx, d, true)
}

// Highlights resolves the stored analysis issues against the current content.
func (svc *Service) Highlights(ctx context.Context, actor core.Actor, id string) ([]Highlight, error) {
	d, err := svc.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return Highlights(d.Content, d.Analysis), nil
}

// Changes returns what the student changed since the feedback was sent.
func (svc *Service) Changes(ctx context.Context, actor core.Actor, id string) (Changes, error) {
	d, err := svc.load(ctx, actor, id)
	if err != nil {
		return Changes{}, err
	}
	return ChangesSinceReview(d)
}

// GetMany returns drafts by ID without visibility checks. Used by the submission workflow.
func (svc *Service) GetMany(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]Draft, error) {
	if len(ids) == 0 {
		return []Draft{}, nil
	}
	drafts, err := svc.Repo.GetDrafts(ctx, ids, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "getting drafts")
	}
	for i := range drafts {
		drafts[i] = withWordCount(drafts[i])
	}
	return drafts, nil
}
