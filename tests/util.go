// Package testutil holds the fixtures shared by the test suites.
package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/core/essay"
	"github.com/admitdesk/admitdesk/core/message"
	"github.com/admitdesk/admitdesk/core/recommendation"
	"github.com/admitdesk/admitdesk/core/user"
	emailsvc "github.com/admitdesk/admitdesk/services/email"
	eventsvc "github.com/admitdesk/admitdesk/services/events"
	"github.com/admitdesk/admitdesk/storage/database"
	inmemdb "github.com/admitdesk/admitdesk/storage/database/inmem"
	boiledrepos "github.com/admitdesk/admitdesk/storage/database/sqlboiler"
)

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

func Config() *core.Config {
	return &core.Config{
		AppName:         "AdmitDesk",
		Env:             "TEST",
		TestMode:        true,
		SecretKey:       "secret",
		FrontendBaseURL: "http://localhost:3000",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func Assign(t *testing.T, repo user.Repository, counselor, student user.User) {
	asg := user.Assignment{CounselorID: counselor.ID, StudentID: student.ID, CreatedAt: time.Now().UTC()}
	if err := repo.AssignStudent(context.Background(), asg); err != nil {
		t.Fatalf("assign() failed: %v", err)
	}
}

// TickingClock makes core.NowFunc advance by one second on every call, starting at start.
func TickingClock(t *testing.T, start time.Time) {
	var mu sync.Mutex
	now := start.UTC()
	orig := core.NowFunc
	core.NowFunc = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	t.Cleanup(func() { core.NowFunc = orig })
}

// PrepareDB opens the database at TEST_DATABASE_URL, migrates it and empties every table.
// The test is skipped when the variable is not set.
func PrepareDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sql.DB) {
	q := `TRUNCATE message, recommendation, submitted_applications, application_essays, application,
		essay_feedback, counselor_student, "user" CASCADE`
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

// MapCache is a core.Cache keeping JSON copies in memory. TTLs are ignored.
type MapCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewMapCache() *MapCache { return &MapCache{items: make(map[string][]byte)} }

func (c *MapCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	data, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *MapCache) Set(_ context.Context, key string, val interface{}, _ time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = data
	c.mu.Unlock()
	return nil
}

func (c *MapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.items, key)
	}
	c.mu.Unlock()
	return nil
}

// FakeScorer returns Result, or Err when set, and remembers the requests it got.
type FakeScorer struct {
	mu       sync.Mutex
	Result   essay.AnalysisResult
	Err      error
	Requests []essay.ScoreRequest
}

func (s *FakeScorer) Score(_ context.Context, req essay.ScoreRequest) (essay.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return essay.AnalysisResult{}, s.Err
	}
	return s.Result, nil
}

// FakeDrafter returns Letter, or Err when set.
type FakeDrafter struct {
	mu       sync.Mutex
	Letter   string
	Err      error
	Requests []recommendation.LetterRequest
}

func (d *FakeDrafter) DraftLetter(_ context.Context, req recommendation.LetterRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Requests = append(d.Requests, req)
	if d.Err != nil {
		return "", d.Err
	}
	return d.Letter, nil
}

// Stack is every service wired on one store.
type Stack struct {
	Conf    *core.Config
	Tx      core.Transactor
	Events  *eventsvc.Recorder
	Scorer  *FakeScorer
	Drafter *FakeDrafter
	MailSvc core.EmailService
	Cache   core.Cache

	UserRepo  user.Repository
	EssayRepo essay.Repository
	AppRepo   application.Repository
	RecRepo   recommendation.Repository
	MsgRepo   message.Repository

	Users    *user.Service
	Drafts   *essay.Service
	Apps     *application.Service
	Recs     *recommendation.Service
	Messages *message.Service
}

// StackOption changes the stack before the services are built.
type StackOption func(*Stack)

// WithAppRepo replaces the application repository, e.g. to inject failures.
func WithAppRepo(wrap func(application.Repository) application.Repository) StackOption {
	return func(s *Stack) { s.AppRepo = wrap(s.AppRepo) }
}

// WithCache caches application details in cache.
func WithCache(cache core.Cache) StackOption {
	return func(s *Stack) { s.Cache = cache }
}

// NewStack wires the services on the in-memory store.
func NewStack(t *testing.T, opts ...StackOption) *Stack {
	t.Helper()
	db := inmemdb.Open()
	s := newStack()
	s.Tx = db
	s.UserRepo = inmemdb.NewUserRepository(db)
	s.EssayRepo = inmemdb.NewEssayRepository(db)
	s.AppRepo = inmemdb.NewApplicationRepository(db)
	s.RecRepo = inmemdb.NewRecommendationRepository(db)
	s.MsgRepo = inmemdb.NewMessageRepository(db)
	return s.build(opts)
}

// NewDBStack wires the services on PostgreSQL (see PrepareDB).
func NewDBStack(t *testing.T, db *sql.DB, opts ...StackOption) *Stack {
	t.Helper()
	s := newStack()
	s.Tx = boiledrepos.NewTransactor(db)
	s.UserRepo = boiledrepos.NewUserRepository(db)
	s.EssayRepo = boiledrepos.NewEssayRepository(db)
	s.AppRepo = boiledrepos.NewApplicationRepository(db)
	s.RecRepo = boiledrepos.NewRecommendationRepository(db)
	s.MsgRepo = boiledrepos.NewMessageRepository(db)
	return s.build(opts)
}

func newStack() *Stack {
	s := &Stack{
		Conf:    Config(),
		Events:  &eventsvc.Recorder{},
		Scorer:  &FakeScorer{},
		Drafter: &FakeDrafter{Letter: "Dear committee,"},
		Cache:   core.NoopCache,
	}
	s.MailSvc = emailsvc.NewConsoleServiceMock(s.Conf, NopLogger{})
	return s
}

func (s *Stack) build(opts []StackOption) *Stack {
	for _, opt := range opts {
		opt(s)
	}
	logger := NopLogger{}

	s.Users = user.NewService(s.UserRepo, s.MailSvc, s.Conf)
	s.Drafts = essay.NewService(essay.Deps{
		Repo:    s.EssayRepo,
		Tx:      s.Tx,
		Access:  s.Users,
		Users:   s.Users,
		Scorer:  s.Scorer,
		MailSvc: s.MailSvc,
		Events:  s.Events,
		Logger:  logger,
	})
	s.Apps = application.NewService(application.Deps{
		Repo:     s.AppRepo,
		Tx:       s.Tx,
		Access:   s.Users,
		Drafts:   s.Drafts,
		Users:    s.Users,
		Cache:    s.Cache,
		CacheTTL: time.Hour,
		Events:   s.Events,
		MailSvc:  s.MailSvc,
		Logger:   logger,
	})
	s.Drafts.SetSlotSyncer(s.Apps)
	s.Recs = recommendation.NewService(recommendation.Deps{
		Repo:    s.RecRepo,
		Access:  s.Users,
		Apps:    s.Apps,
		Users:   s.Users,
		Drafter: s.Drafter,
		Events:  s.Events,
		Logger:  logger,
	})
	s.Apps.Recs = s.Recs
	s.Messages = message.NewService(s.MsgRepo, s.Users, s.Users, s.MailSvc, s.Events, logger)

	emailsvc.PopSentMessages()
	return s
}

// People creates an admin, a counselor and a student assigned to the counselor.
func (s *Stack) People(t *testing.T) (admin, counselor, student user.User) {
	admin = CreateUser(t, s.UserRepo, "Admin", "admin@test.io", "", []string{user.RoleAdmin}, true)
	counselor = CreateUser(t, s.UserRepo, "Carla Counselor", "carla@test.io", "", []string{user.RoleCounselor}, true)
	student = CreateUser(t, s.UserRepo, "Sam Student", "sam@test.io", "", []string{user.RoleStudent}, true)
	Assign(t, s.UserRepo, counselor, student)
	return admin, counselor, student
}
