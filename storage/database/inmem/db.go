package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/core/essay"
	"github.com/admitdesk/admitdesk/core/message"
	"github.com/admitdesk/admitdesk/core/recommendation"
	"github.com/admitdesk/admitdesk/core/user"
)

type (
	// DB keeps every table in memory. Used in tests and in debug runs without Postgres.
	DB struct {
		mu     sync.RWMutex
		txMu   sync.Mutex
		tables tables
	}

	tables struct {
		users           map[string]user.User
		assignments     map[assignmentKey]user.Assignment
		drafts          map[string]essay.Draft
		applications    map[string]application.Application
		slots           map[string]application.Slot
		submissions     map[string]application.Submission
		recommendations map[string]recommendation.Recommendation
		messages        map[string]message.Message
	}

	assignmentKey struct {
		counselorID, studentID string
	}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{tables: newTables()}
}

func newTables() tables {
	return tables{
		users:           make(map[string]user.User),
		assignments:     make(map[assignmentKey]user.Assignment),
		drafts:          make(map[string]essay.Draft),
		applications:    make(map[string]application.Application),
		slots:           make(map[string]application.Slot),
		submissions:     make(map[string]application.Submission),
		recommendations: make(map[string]recommendation.Recommendation),
		messages:        make(map[string]message.Message),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t tables) snapshot() tables {
	return tables{
		users:           copyMap(t.users),
		assignments:     copyMap(t.assignments),
		drafts:          copyMap(t.drafts),
		applications:    copyMap(t.applications),
		slots:           copyMap(t.slots),
		submissions:     copyMap(t.submissions),
		recommendations: copyMap(t.recommendations),
		messages:        copyMap(t.messages),
	}
}

// InTx runs fn with transactions serialized. The tables are restored when fn fails.
// fn receives a nil executor; the in-memory repositories ignore it.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	saved := db.tables.snapshot()
	db.mu.RUnlock()

	if err := fn(nil); err != nil {
		db.mu.Lock()
		db.tables = saved
		db.mu.Unlock()
		return err
	}
	return nil
}

// Flush empties every table.
func (db *DB) Flush() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = newTables()
}

func containsString(list []string, s string) bool {
	for _, it := range list {
		if it == s {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// sortBy orders items following ordering. cmp returns <0, 0 or >0 comparing a and b on field.
func sortBy[T any](items []T, ordering []core.DBOrdering, cmp func(a, b T, field string) int) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			c := cmp(items[i], items[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareStrings(a, b string) int {
	return strings.Compare(a, b)
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareTimePtrs(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return compareTimes(*a, *b)
}
