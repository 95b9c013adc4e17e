package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/core/essay"
	"github.com/admitdesk/admitdesk/core/message"
	"github.com/admitdesk/admitdesk/core/recommendation"
	"github.com/admitdesk/admitdesk/core/user"
	"github.com/admitdesk/admitdesk/services/metrics"
	"github.com/admitdesk/admitdesk/services/ratelimit"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		// AILimiter throttles the endpoints calling the AI collaborator. Optional.
		AILimiter *ratelimit.Limiter

		UserSvc    *user.Service
		DraftSvc   *essay.Service
		AppSvc     *application.Service
		RecSvc     *recommendation.Service
		MessageSvc *message.Service

		DisableReqLogs bool
	}

	Server struct {
		ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		ServerDeps: deps,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	if !deps.Conf.TestMode {
		signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Debug = s.Conf.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(metrics.Middleware())
	// do not recover in DEV|TEST mode
	if !(s.Conf.Debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.BodyLimit("2M"))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator, s.signalShutdown)

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	auth := authMiddleware(s.Conf, s.UserSvc)
	aiLimit := rateLimitMiddleware(s.AILimiter, "ai")

	registerUserAPI(v1, auth, s.Conf, s.UserSvc, s.Validate)
	registerDraftAPI(v1, auth, aiLimit, s.DraftSvc, s.Validate)
	registerApplicationAPI(v1, auth, s.AppSvc, s.Validate)
	registerRecommendationAPI(v1, auth, aiLimit, s.RecSvc, s.Validate)
	registerMessageAPI(v1, auth, s.MessageSvc, s.Validate)
}

func (s *Server) Start() {
	if err := s.app.Start(s.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors receives the error that stopped the server.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives the OS signals asking for a shutdown, and the requests made by signalShutdown.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.Conf.AppName+" API!")
}
