package inmemdb

import (
	"context"
	"sort"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/essay"
)

type essayRepository struct {
	db *DB
}

var _ essay.Repository = (*essayRepository)(nil) // interface compliance check

func NewEssayRepository(db *DB) *essayRepository {
	return &essayRepository{db: db}
}

func (repo *essayRepository) CreateDraft(_ context.Context, d essay.Draft, _ ...core.DBExecutor) (essay.Draft, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.tables.drafts[d.ID] = d
	return d, nil
}

func (repo *essayRepository) GetDraft(_ context.Context, id string, _ ...core.DBExecutor) (essay.Draft, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if d, ok := repo.db.tables.drafts[id]; ok {
		return d, nil
	}
	return essay.Draft{}, essay.ErrNotFound
}

func (repo *essayRepository) GetDrafts(_ context.Context, ids []string, _ ...core.DBExecutor) ([]essay.Draft, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	drafts := make([]essay.Draft, 0, len(ids))
	for _, id := range ids {
		if d, ok := repo.db.tables.drafts[id]; ok {
			drafts = append(drafts, d)
		}
	}
	return drafts, nil
}

func (repo *essayRepository) QueryDrafts(_ context.Context, filter *essay.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]essay.Draft, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	drafts := make([]essay.Draft, 0)
	for _, d := range repo.db.tables.drafts {
		if filter != nil {
			if filter.StudentIDs != nil && !containsString(filter.StudentIDs, d.StudentID) {
				continue
			}
			if len(filter.Statuses) > 0 && !containsString(filter.Statuses, string(d.Status)) {
				continue
			}
			if filter.Search != "" && !containsFold(d.Title, filter.Search) {
				continue
			}
		}
		drafts = append(drafts, d)
	}

	// newest first unless asked otherwise
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt) })
	sortBy(drafts, ordering, func(a, b essay.Draft, field string) int {
		switch field {
		case "title":
			return compareStrings(a.Title, b.Title)
		case "status":
			return compareStrings(string(a.Status), string(b.Status))
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt)
		case "updated_at":
			return compareTimes(a.UpdatedAt, b.UpdatedAt)
		case "sent_at":
			return compareTimePtrs(a.SentAt, b.SentAt)
		}
		return 0
	})
	return drafts, nil
}

func (repo *essayRepository) UpdateDraft(_ context.Context, d essay.Draft, _ ...core.DBExecutor) (essay.Draft, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tables.drafts[d.ID]; !ok {
		return essay.Draft{}, essay.ErrNotFound
	}
	repo.db.tables.drafts[d.ID] = d
	return d, nil
}
