// Package dashboard provides the administration API of guildkeeper.
// It uses Echo v5 for HTTP routing with JWT authentication and exposes the
// plugin lifecycle, guild settings, tags and scheduled jobs as JSON.
package dashboard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v5"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/cron"
	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/plugins/tags"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
	"guildkeeper/pkg/version"
)

// Server is the dashboard HTTP server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	config     *config.Config
	logger     *logger.Logger
	plugins    *plugin.Loader
	registry   *registry.Registry
	settings   *settings.Store
	tags       *tags.Store
	scheduler  *cron.Manager
	session    discord.Session
	limiter    *ipLimiter
	oauth      *oauth2.Config
	userURL    string
	secret     []byte
	addr       string
	startedAt  time.Time
}

// NewServer creates a dashboard server. session may be nil.
func NewServer(
	cfg *config.Config,
	log *logger.Logger,
	loader *plugin.Loader,
	reg *registry.Registry,
	store *settings.Store,
	scheduler *cron.Manager,
	session discord.Session,
) *Server {
	log = log.Component("dashboard")

	secret := strings.TrimSpace(cfg.Dashboard.JWTSecret)
	if secret == "" {
		// Tokens do not survive a restart without a configured secret.
		log.Warn("dashboard.jwt_secret is empty, using an ephemeral secret")
		secret = config.GenerateJWTSecret()
	}

	s := &Server{
		config:    cfg,
		logger:    log,
		plugins:   loader,
		registry:  reg,
		settings:  store,
		tags:      tags.NewStore(store),
		scheduler: scheduler,
		session:   session,
		limiter:   newIPLimiter(cfg.Dashboard.RateLimit.RequestsPerSecond, cfg.Dashboard.RateLimit.Burst),
		oauth:     discordOAuth(cfg),
		userURL:   discordUserURL,
		secret:    []byte(secret),
		addr:      net.JoinHostPort(cfg.Dashboard.Host, strconv.Itoa(cfg.Dashboard.Port)),
		startedAt: time.Now(),
	}

	s.setup()
	return s
}

func (s *Server) setup() {
	e := echo.New()

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.config.Dashboard.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))
	e.Use(s.limiter.middleware())

	// Public routes
	e.POST("/api/auth/login", s.handleLogin)
	e.GET("/api/auth/discord/login", s.handleDiscordLogin)
	e.GET("/api/auth/discord/callback", s.handleDiscordCallback)

	// Event stream (auth handled inside via token query param)
	e.GET("/api/events", s.handleEvents)

	// Protected API routes
	api := e.Group("/api")
	api.Use(echojwt.WithConfig(echojwt.Config{
		KeyFunc: func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return s.secret, nil
		},
	}))
	api.Use(s.requireSession)

	api.GET("/status", s.handleStatus)
	api.GET("/auth/me", s.handleMe)

	// Plugin routes
	api.GET("/plugins", s.handleListPlugins)
	api.GET("/plugins/discover", s.handleDiscoverPlugins)
	api.POST("/plugins/:folder/load", s.handleLoadPlugin)
	api.POST("/plugins/:name/reload", s.handleReloadPlugin)
	api.POST("/plugins/:name/unload", s.handleUnloadPlugin)

	api.GET("/commands", s.handleListCommands)

	// Guild routes
	api.GET("/guilds/:guild/settings", s.handleGetGuildSettings)
	api.PUT("/guilds/:guild/settings", s.handlePutGuildSettings)
	api.GET("/guilds/:guild/tags", s.handleListTags)
	api.PUT("/guilds/:guild/tags/:name", s.handlePutTag)
	api.DELETE("/guilds/:guild/tags/:name", s.handleDeleteTag)

	api.GET("/jobs", s.handleListJobs)

	s.echo = e
}

// Handler returns the HTTP handler of the dashboard.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the dashboard server.
func (s *Server) Start() error {
	s.logger.Info("Dashboard server starting", zap.String("addr", s.addr))

	// Use http.Server directly so shutdown stays under the fx lifecycle.
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Dashboard server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the dashboard server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Dashboard server stopping")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(c *echo.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startedAt)
	build := version.Current()
	payload := map[string]interface{}{
		"version":            build.Version,
		"commit":             build.Commit,
		"build_time":         build.BuildTime,
		"discordgo":          build.Discordgo,
		"os":                 runtime.GOOS,
		"arch":               runtime.GOARCH,
		"go_version":         build.GoVersion,
		"pid":                os.Getpid(),
		"uptime":             uptime.Round(time.Second).String(),
		"uptime_seconds":     int64(uptime.Seconds()),
		"memory_alloc_bytes": mem.Alloc,
		"memory_sys_bytes":   mem.Sys,
		"plugin_count":       len(s.plugins.List()),
		"command_count":      len(s.registry.Commands()),
		"subscriptions":      s.registry.Subscriptions(),
		"auto_reload":        s.config.Plugins.AutoReload,
	}
	if s.session != nil {
		payload["gateway_latency_ms"] = s.session.Latency().Milliseconds()
	}
	return c.JSON(http.StatusOK, payload)
}

func errorJSON(c *echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}
