package inmemdb

import (
	"context"
	"sort"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
)

type applicationRepository struct {
	db *DB
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(db *DB) *applicationRepository {
	return &applicationRepository{db: db}
}

func (repo *applicationRepository) CreateApplication(_ context.Context, app application.Application, _ ...core.DBExecutor) (application.Application, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.tables.applications[app.ID] = app
	return app, nil
}

func (repo *applicationRepository) GetApplication(_ context.Context, id string, _ ...core.DBExecutor) (application.Application, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if app, ok := repo.db.tables.applications[id]; ok {
		return app, nil
	}
	return application.Application{}, application.ErrNotFound
}

func (repo *applicationRepository) QueryApplications(_ context.Context, filter *application.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]application.Application, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	apps := make([]application.Application, 0)
	for _, app := range repo.db.tables.applications {
		if filter != nil {
			if filter.StudentIDs != nil && !containsString(filter.StudentIDs, app.StudentID) {
				continue
			}
			if len(filter.Statuses) > 0 && !containsString(filter.Statuses, string(app.Status)) {
				continue
			}
			if !inRange(app.Deadline, filter.From, filter.To) {
				continue
			}
			if filter.Search != "" && !containsFold(app.SchoolName, filter.Search) && !containsFold(app.Program, filter.Search) {
				continue
			}
		}
		apps = append(apps, app)
	}

	// closest deadline first unless asked otherwise
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].Deadline.Equal(apps[j].Deadline) {
			return apps[i].CreatedAt.Before(apps[j].CreatedAt)
		}
		return apps[i].Deadline.Before(apps[j].Deadline)
	})
	sortBy(apps, ordering, func(a, b application.Application, field string) int {
		switch field {
		case "deadline":
			return compareTimes(a.Deadline, b.Deadline)
		case "school_name":
			return compareStrings(a.SchoolName, b.SchoolName)
		case "status":
			return compareStrings(string(a.Status), string(b.Status))
		case "application_type":
			return compareStrings(string(a.Type), string(b.Type))
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt)
		case "updated_at":
			return compareTimes(a.UpdatedAt, b.UpdatedAt)
		}
		return 0
	})
	return apps, nil
}

func (repo *applicationRepository) UpdateApplication(_ context.Context, app application.Application, _ ...core.DBExecutor) (application.Application, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tables.applications[app.ID]; !ok {
		return application.Application{}, application.ErrNotFound
	}
	repo.db.tables.applications[app.ID] = app
	return app, nil
}

func (repo *applicationRepository) CreateSlot(_ context.Context, slot application.Slot, _ ...core.DBExecutor) (application.Slot, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tables.applications[slot.ApplicationID]; !ok {
		return application.Slot{}, application.ErrNotFound
	}
	repo.db.tables.slots[slot.ID] = slot
	return slot, nil
}

func (repo *applicationRepository) GetSlot(_ context.Context, id string, _ ...core.DBExecutor) (application.Slot, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if slot, ok := repo.db.tables.slots[id]; ok {
		return slot, nil
	}
	return application.Slot{}, application.ErrSlotNotFound
}

func sortSlots(slots []application.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].DisplayOrder == slots[j].DisplayOrder {
			return slots[i].CreatedAt.Before(slots[j].CreatedAt)
		}
		return slots[i].DisplayOrder < slots[j].DisplayOrder
	})
}

func (repo *applicationRepository) ListSlots(_ context.Context, applicationIDs []string, _ ...core.DBExecutor) ([]application.Slot, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	slots := make([]application.Slot, 0)
	for _, slot := range repo.db.tables.slots {
		if containsString(applicationIDs, slot.ApplicationID) {
			slots = append(slots, slot)
		}
	}
	sortSlots(slots)
	return slots, nil
}

func (repo *applicationRepository) ListSlotsByDraft(_ context.Context, draftID string, _ ...core.DBExecutor) ([]application.Slot, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	slots := make([]application.Slot, 0)
	for _, slot := range repo.db.tables.slots {
		if slot.DraftID != nil && *slot.DraftID == draftID {
			slots = append(slots, slot)
		}
	}
	sortSlots(slots)
	return slots, nil
}

func (repo *applicationRepository) UpdateSlot(_ context.Context, slot application.Slot, _ ...core.DBExecutor) (application.Slot, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tables.slots[slot.ID]; !ok {
		return application.Slot{}, application.ErrSlotNotFound
	}
	repo.db.tables.slots[slot.ID] = slot
	return slot, nil
}

func (repo *applicationRepository) DeleteSlot(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tables.slots[id]; !ok {
		return application.ErrSlotNotFound
	}
	delete(repo.db.tables.slots, id)
	return nil
}

func (repo *applicationRepository) CreateSubmission(_ context.Context, sub application.Submission, _ ...core.DBExecutor) (application.Submission, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tables.submissions[sub.ApplicationID]; ok {
		return application.Submission{}, application.ErrAlreadySubmitted
	}
	repo.db.tables.submissions[sub.ApplicationID] = sub
	return sub, nil
}

func (repo *applicationRepository) GetSubmission(_ context.Context, applicationID string, _ ...core.DBExecutor) (application.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.db.tables.submissions[applicationID]; ok {
		return sub, nil
	}
	return application.Submission{}, application.ErrSubmissionNotFound
}

func (repo *applicationRepository) ListSubmissions(_ context.Context, studentIDs []string, _ ...core.DBExecutor) ([]application.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]application.Submission, 0)
	for _, sub := range repo.db.tables.submissions {
		if studentIDs == nil || containsString(studentIDs, sub.StudentID) {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].SubmittedAt.After(subs[j].SubmittedAt) })
	return subs, nil
}
