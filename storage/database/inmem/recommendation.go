package inmemdb

import (
	"context"
	"sort"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/core/recommendation"
)

type recommendationRepository struct {
	db *DB
}

var _ recommendation.Repository = (*recommendationRepository)(nil) // interface compliance check

func NewRecommendationRepository(db *DB) *recommendationRepository {
	return &recommendationRepository{db: db}
}

func (repo *recommendationRepository) CreateRecommendation(_ context.Context, rec recommendation.Recommendation, _ ...core.DBExecutor) (recommendation.Recommendation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.tables.recommendations[rec.ID] = rec
	return rec, nil
}

func (repo *recommendationRepository) GetRecommendation(_ context.Context, id string, _ ...core.DBExecutor) (recommendation.Recommendation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if rec, ok := repo.db.tables.recommendations[id]; ok {
		return rec, nil
	}
	return recommendation.Recommendation{}, recommendation.ErrNotFound
}

func (repo *recommendationRepository) QueryRecommendations(_ context.Context, filter *recommendation.QueryFilter, _ ...core.DBExecutor) ([]recommendation.Recommendation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	recs := make([]recommendation.Recommendation, 0)
	for _, rec := range repo.db.tables.recommendations {
		if filter != nil {
			if filter.StudentIDs != nil && !containsString(filter.StudentIDs, rec.StudentID) {
				continue
			}
			if filter.ApplicationID != "" && (rec.ApplicationID == nil || *rec.ApplicationID != filter.ApplicationID) {
				continue
			}
			if len(filter.Statuses) > 0 && !containsString(filter.Statuses, string(rec.Status)) {
				continue
			}
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return recs, nil
}

func (repo *recommendationRepository) UpdateRecommendation(_ context.Context, rec recommendation.Recommendation, _ ...core.DBExecutor) (recommendation.Recommendation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tables.recommendations[rec.ID]; !ok {
		return recommendation.Recommendation{}, recommendation.ErrNotFound
	}
	repo.db.tables.recommendations[rec.ID] = rec
	return rec, nil
}

func (repo *recommendationRepository) CountByApplications(_ context.Context, applicationIDs []string, _ ...core.DBExecutor) (map[string]application.RecommendationCounts, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	counts := make(map[string]application.RecommendationCounts, len(applicationIDs))
	for _, rec := range repo.db.tables.recommendations {
		if rec.ApplicationID == nil || !containsString(applicationIDs, *rec.ApplicationID) {
			continue
		}
		c := counts[*rec.ApplicationID]
		c.Requested++
		if rec.Status == recommendation.StatusSubmitted {
			c.Submitted++
		}
		counts[*rec.ApplicationID] = c
	}
	return counts, nil
}
