package application

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitdesk/admitdesk/core/essay"
)

func strPtr(s string) *string { return &s }

func TestTransition(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	linked := func(st SlotStatus) Slot { return Slot{ID: "s", DraftID: strPtr("d"), Status: st} }

	tests := []struct {
		name       string
		slot       Slot
		to         SlotStatus
		wantStatus SlotStatus
		wantDraft  bool
		wantErr    error
	}{
		{name: "draft -> in_review", slot: linked(SlotDraft), to: SlotInReview, wantStatus: SlotInReview, wantDraft: true},
		{name: "in_review -> approved", slot: linked(SlotInReview), to: SlotApproved, wantStatus: SlotApproved, wantDraft: true},
		{name: "in_review -> draft", slot: linked(SlotInReview), to: SlotDraft, wantStatus: SlotDraft, wantDraft: true},
		{name: "approved -> in_review", slot: linked(SlotApproved), to: SlotInReview, wantStatus: SlotInReview, wantDraft: true},
		{name: "draft -> not_started unlinks", slot: linked(SlotDraft), to: SlotNotStarted, wantStatus: SlotNotStarted},
		{name: "not_started -> draft needs a link", slot: Slot{Status: SlotNotStarted}, to: SlotDraft, wantErr: ErrDraftRequired},
		{name: "draft -> approved", slot: linked(SlotDraft), to: SlotApproved, wantErr: ErrInvalidTransition},
		{name: "approved -> draft", slot: linked(SlotApproved), to: SlotDraft, wantErr: ErrInvalidTransition},
		{name: "approved -> not_started", slot: linked(SlotApproved), to: SlotNotStarted, wantErr: ErrInvalidTransition},
		{name: "not_started -> in_review", slot: Slot{Status: SlotNotStarted}, to: SlotInReview, wantErr: ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.slot, tt.to, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Transition() error = %v, want %v", err, tt.wantErr)
				}
				assert.Equal(t, tt.slot, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantDraft, got.DraftID != nil)
			assert.Equal(t, now, got.UpdatedAt)
		})
	}
}

func TestLinkUnlink(t *testing.T) {
	now := time.Now()
	slot := Link(Slot{Status: SlotApproved, DraftID: strPtr("old")}, "new", now)
	assert.Equal(t, SlotDraft, slot.Status)
	assert.Equal(t, "new", *slot.DraftID)

	slot = Unlink(slot, now)
	assert.Equal(t, SlotNotStarted, slot.Status)
	assert.Nil(t, slot.DraftID)
}

func TestSlotStatusFor(t *testing.T) {
	tests := []struct {
		draft  essay.Status
		want   SlotStatus
		wantOk bool
	}{
		{essay.StatusDraft, SlotDraft, true},
		{essay.StatusInProgress, SlotDraft, true},
		{essay.StatusSent, SlotInReview, true},
		{essay.StatusRead, "", false},
	}
	for _, tt := range tests {
		got, ok := SlotStatusFor(tt.draft)
		if got != tt.want || ok != tt.wantOk {
			t.Errorf("SlotStatusFor(%s) = (%s, %v), want (%s, %v)", tt.draft, got, ok, tt.want, tt.wantOk)
		}
	}
}

func TestComputeCompletion(t *testing.T) {
	slots := func(statuses ...SlotStatus) []Slot {
		out := make([]Slot, len(statuses))
		for i, st := range statuses {
			out[i] = Slot{Status: st}
		}
		return out
	}
	tests := []struct {
		name  string
		slots []Slot
		want  int
	}{
		{name: "no slots", want: 0},
		{name: "none approved", slots: slots(SlotDraft, SlotInReview), want: 0},
		{name: "one of three", slots: slots(SlotApproved, SlotDraft, SlotNotStarted), want: 33},
		{name: "two of three", slots: slots(SlotApproved, SlotApproved, SlotDraft), want: 67},
		{name: "half", slots: slots(SlotApproved, SlotInReview), want: 50},
		{name: "all", slots: slots(SlotApproved, SlotApproved), want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeCompletion(tt.slots); got != tt.want {
				t.Errorf("ComputeCompletion() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCanSubmit(t *testing.T) {
	drafts := map[string]essay.Draft{
		"sent":  {ID: "sent", Status: essay.StatusSent},
		"sent2": {ID: "sent2", Status: essay.StatusSent},
		"read":  {ID: "read", Status: essay.StatusRead},
		"wip":   {ID: "wip", Status: essay.StatusInProgress},
	}
	slot := func(draftID string) Slot {
		if draftID == "" {
			return Slot{Status: SlotNotStarted}
		}
		return Slot{DraftID: strPtr(draftID), Status: SlotInReview}
	}
	open := Application{Status: StatusInProgress}

	tests := []struct {
		name  string
		app   Application
		slots []Slot
		want  bool
	}{
		{name: "every draft sent", app: open, slots: []Slot{slot("sent"), slot("sent2")}, want: true},
		{name: "no slots", app: open},
		{name: "unlinked slot", app: open, slots: []Slot{slot("sent"), slot("")}},
		{name: "draft not sent", app: open, slots: []Slot{slot("sent"), slot("wip")}},
		{name: "read is not sent", app: open, slots: []Slot{slot("read")}},
		{name: "unknown draft", app: open, slots: []Slot{slot("gone")}},
		{name: "already sent", app: Application{Status: StatusSent}, slots: []Slot{slot("sent")}},
		{name: "already approved", app: Application{Status: StatusApproved}, slots: []Slot{slot("sent")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanSubmit(tt.app, tt.slots, drafts); got != tt.want {
				t.Errorf("CanSubmit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUrgent(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		deadline time.Time
		status   Status
		want     bool
	}{
		{name: "in three days", deadline: now.AddDate(0, 0, 3), status: StatusInProgress, want: true},
		{name: "in exactly seven days", deadline: now.AddDate(0, 0, 7), status: StatusDraft, want: true},
		{name: "in eight days", deadline: now.AddDate(0, 0, 8), status: StatusDraft},
		{name: "past", deadline: now.AddDate(0, 0, -1), status: StatusInProgress, want: true},
		{name: "sent", deadline: now.AddDate(0, 0, 1), status: StatusSent},
		{name: "approved", deadline: now.AddDate(0, 0, 1), status: StatusApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUrgent(Application{Deadline: tt.deadline, Status: tt.status}, now); got != tt.want {
				t.Errorf("IsUrgent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeProgress(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	limit := 3
	drafts := map[string]essay.Draft{
		"a": {ID: "a", Status: essay.StatusSent, Content: "one two three four", Analysis: &essay.AnalysisResult{OverallScore: 80}},
		"b": {ID: "b", Status: essay.StatusSent, Content: "one", Analysis: &essay.AnalysisResult{OverallScore: 60}},
		"c": {ID: "c", Status: essay.StatusDraft, Content: "x"},
	}
	app := Application{ID: "app", Status: StatusInProgress, Deadline: now.AddDate(0, 1, 0)}
	slots := []Slot{
		{ID: "s1", DraftID: strPtr("a"), Status: SlotApproved, WordLimit: &limit},
		{ID: "s2", DraftID: strPtr("b"), Status: SlotInReview},
		{ID: "s3", DraftID: strPtr("a"), Status: SlotInReview},
	}

	p := ComputeProgress(app, slots, drafts, RecommendationCounts{Requested: 2, Submitted: 1}, now)
	assert.Equal(t, Progress{
		RequiredEssays:           3,
		CompletedEssays:          1,
		CompletionPercentage:     33,
		RequestedRecommendations: 2,
		SubmittedRecommendations: 1,
		Urgent:                   false,
		AverageAIScore:           p.AverageAIScore,
		CanSubmit:                true,
	}, p)
	require.NotNil(t, p.AverageAIScore)
	assert.Equal(t, 70.0, *p.AverageAIScore, "a draft linked twice counts once")

	assert.Nil(t, AverageScore([]Slot{{DraftID: strPtr("c")}}, drafts))

	views := slotViews(slots, drafts)
	assert.Equal(t, 4, views[0].WordCount)
	assert.True(t, views[0].OverLimit)
	assert.False(t, views[1].OverLimit)
	assert.Equal(t, essay.StatusSent, views[1].DraftStatus)
}

func TestBuildSnapshot(t *testing.T) {
	sentAt := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	drafts := map[string]essay.Draft{
		"a": {ID: "a", Title: "Why us", Content: "Hello big world", SentAt: &sentAt},
	}
	slots := []Slot{
		{ID: "s1", Label: "Supplement", DraftID: strPtr("a")},
		{ID: "s2", Label: "Optional"},
	}
	assert.Equal(t, []EssaySnapshot{{
		SlotID: "s1", Label: "Supplement", DraftID: "a", Title: "Why us",
		Content: "Hello big world", WordCount: 3, SentAt: &sentAt,
	}}, BuildSnapshot(slots, drafts))
}
