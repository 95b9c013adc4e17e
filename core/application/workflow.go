package application

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/essay"
)

// urgentWithin is how close a deadline gets before an unsent application is flagged urgent.
const urgentWithin = 7 * 24 * time.Hour

var slotTransitions = map[SlotStatus][]SlotStatus{
	SlotNotStarted: {SlotDraft},
	SlotDraft:      {SlotInReview, SlotNotStarted},
	SlotInReview:   {SlotApproved, SlotDraft},
	SlotApproved:   {SlotInReview},
}

func (s SlotStatus) CanTransitionTo(to SlotStatus) bool {
	return lo.Contains(slotTransitions[s], to)
}

func newTransitionError(from, to SlotStatus) error {
	return core.NewValidationError(
		errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to),
		core.FieldError{Field: "status", Error: fmt.Sprintf("cannot move an essay from %s to %s", from, to)},
	)
}

// Transition moves slot to status `to` following the transition table.
// Going back to not_started unlinks the draft; leaving not_started needs a draft, see Link.
func Transition(slot Slot, to SlotStatus, now time.Time) (Slot, error) {
	if !slot.Status.CanTransitionTo(to) {
		return slot, newTransitionError(slot.Status, to)
	}
	if to == SlotNotStarted {
		return Unlink(slot, now), nil
	}
	if slot.Status == SlotNotStarted {
		return slot, core.NewValidationError(ErrDraftRequired, core.FieldError{Field: "draft_id", Error: ErrDraftRequired.Error()})
	}
	slot.Status = to
	slot.UpdatedAt = now
	return slot, nil
}

// Link attaches a draft to slot. The slot restarts at draft whatever its status.
func Link(slot Slot, draftID string, now time.Time) Slot {
	slot.DraftID = &draftID
	slot.Status = SlotDraft
	slot.UpdatedAt = now
	return slot
}

// Unlink detaches the draft of slot. The draft itself is kept.
func Unlink(slot Slot, now time.Time) Slot {
	slot.DraftID = nil
	slot.Status = SlotNotStarted
	slot.UpdatedAt = now
	return slot
}

// SlotStatusFor maps a draft status onto the status of the slots linked to it.
// ok is false when the slots keep their status.
func SlotStatusFor(st essay.Status) (status SlotStatus, ok bool) {
	switch st {
	case essay.StatusSent:
		return SlotInReview, true
	case essay.StatusDraft, essay.StatusInProgress:
		return SlotDraft, true
	}
	return "", false
}

// WordCount counts whitespace separated tokens: "Hello   world\n\nfoo" has 3 words.
func WordCount(content string) int {
	return essay.CountWords(content)
}

// ComputeCompletion is the share of approved slots as a rounded percentage. 0 without slots.
func ComputeCompletion(slots []Slot) int {
	if len(slots) == 0 {
		return 0
	}
	approved := lo.CountBy(slots, func(s Slot) bool { return s.Status == SlotApproved })
	return int(math.Round(100 * float64(approved) / float64(len(slots))))
}

// CanSubmit reports whether app may be submitted: it has slots, every slot is linked
// and every linked draft had its feedback sent. drafts is keyed by draft ID.
func CanSubmit(app Application, slots []Slot, drafts map[string]essay.Draft) bool {
	if app.Status.Submitted() || len(slots) == 0 {
		return false
	}
	return lo.EveryBy(slots, func(s Slot) bool {
		if s.DraftID == nil {
			return false
		}
		d, ok := drafts[*s.DraftID]
		return ok && d.Status == essay.StatusSent
	})
}

// BuildSnapshot captures the linked drafts of slots, one entry per linked slot, in slot order.
func BuildSnapshot(slots []Slot, drafts map[string]essay.Draft) []EssaySnapshot {
	snaps := make([]EssaySnapshot, 0, len(slots))
	for _, s := range slots {
		if s.DraftID == nil {
			continue
		}
		d := drafts[*s.DraftID]
		snaps = append(snaps, EssaySnapshot{
			SlotID:    s.ID,
			Label:     s.Label,
			DraftID:   *s.DraftID,
			Title:     d.Title,
			Content:   d.Content,
			WordCount: WordCount(d.Content),
			SentAt:    d.SentAt,
		})
	}
	return snaps
}

// IsUrgent reports whether the deadline is within a week and the application is not out yet.
func IsUrgent(app Application, now time.Time) bool {
	if app.Status.Submitted() {
		return false
	}
	return app.Deadline.Sub(now) <= urgentWithin
}

// AverageScore is the mean overall score of the linked drafts having an analysis. nil when none has one.
func AverageScore(slots []Slot, drafts map[string]essay.Draft) *float64 {
	var sum float64
	var n int
	for _, id := range draftIDs(slots) {
		if d, ok := drafts[id]; ok && d.Analysis != nil {
			sum += d.Analysis.OverallScore
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// ComputeProgress derives every progress value of app from its live collections.
func ComputeProgress(app Application, slots []Slot, drafts map[string]essay.Draft, recs RecommendationCounts, now time.Time) Progress {
	return Progress{
		RequiredEssays:           len(slots),
		CompletedEssays:          lo.CountBy(slots, func(s Slot) bool { return s.Status == SlotApproved }),
		CompletionPercentage:     ComputeCompletion(slots),
		RequestedRecommendations: recs.Requested,
		SubmittedRecommendations: recs.Submitted,
		Urgent:                   IsUrgent(app, now),
		AverageAIScore:           AverageScore(slots, drafts),
		CanSubmit:                CanSubmit(app, slots, drafts),
	}
}

func slotViews(slots []Slot, drafts map[string]essay.Draft) []SlotView {
	return lo.Map(slots, func(s Slot, _ int) SlotView {
		v := SlotView{Slot: s}
		if s.DraftID == nil {
			return v
		}
		if d, ok := drafts[*s.DraftID]; ok {
			v.DraftTitle = d.Title
			v.DraftStatus = d.Status
			v.WordCount = WordCount(d.Content)
			v.OverLimit = s.WordLimit != nil && v.WordCount > *s.WordLimit
		}
		return v
	})
}

func draftIDs(slots []Slot) []string {
	return lo.Uniq(lo.FilterMap(slots, func(s Slot, _ int) (string, bool) {
		if s.DraftID == nil {
			return "", false
		}
		return *s.DraftID, true
	}))
}
