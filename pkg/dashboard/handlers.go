package dashboard

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v5"
	"go.uber.org/zap"

	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/plugins/tags"
	"guildkeeper/pkg/settings"
)

const maxPrefixLen = 5

// --- Plugin Handlers ---

func (s *Server) handleListPlugins(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plugins": s.plugins.List(),
	})
}

func (s *Server) handleDiscoverPlugins(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"dir":     s.plugins.Dir(),
		"folders": s.plugins.Discover(),
	})
}

func (s *Server) handleLoadPlugin(c *echo.Context) error {
	folder := strings.TrimSpace(c.Param("folder"))
	name, err := s.plugins.Load(c.Request().Context(), folder)
	s.logLifecycle(c, "load", folder, err == nil)
	if err != nil {
		var invalid *plugin.InvalidError
		if errors.As(err, &invalid) {
			return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
		}
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	info, _ := s.plugins.Get(name)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "plugin": info})
}

func (s *Server) handleReloadPlugin(c *echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if _, ok := s.plugins.Get(name); !ok {
		return errorJSON(c, http.StatusNotFound, "plugin not loaded")
	}

	ok := s.plugins.Reload(c.Request().Context(), name)
	s.logLifecycle(c, "reload", name, ok)
	if !ok {
		return errorJSON(c, http.StatusUnprocessableEntity, "reload failed, see the logs")
	}

	info, _ := s.plugins.Get(name)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "plugin": info})
}

func (s *Server) handleUnloadPlugin(c *echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	ok := s.plugins.Unload(c.Request().Context(), name)
	s.logLifecycle(c, "unload", name, ok)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "plugin not loaded")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) logLifecycle(c *echo.Context, action, target string, ok bool) {
	s.logger.Info("Dashboard plugin action",
		zap.String("action", action),
		zap.String("target", target),
		zap.String("by", s.currentSubject(c)),
		zap.Bool("ok", ok))
}

type commandView struct {
	Name            string   `json:"name"`
	Aliases         []string `json:"aliases,omitempty"`
	Description     string   `json:"description"`
	Usage           string   `json:"usage,omitempty"`
	Plugin          string   `json:"plugin"`
	CooldownSeconds float64  `json:"cooldown_seconds"`
	GuildOnly       bool     `json:"guild_only"`
	OwnerOnly       bool     `json:"owner_only"`
	Text            bool     `json:"text"`
	Slash           bool     `json:"slash"`
}

func (s *Server) handleListCommands(c *echo.Context) error {
	descs := s.registry.Commands()
	views := make([]commandView, 0, len(descs))
	for i := range descs {
		d := &descs[i]
		views = append(views, commandView{
			Name:            d.Name,
			Aliases:         d.Aliases,
			Description:     d.Description,
			Usage:           d.Usage,
			Plugin:          d.Owner,
			CooldownSeconds: d.EffectiveCooldown().Seconds(),
			GuildOnly:       d.GuildOnly,
			OwnerOnly:       d.OwnerOnly,
			Text:            d.Invoke != nil,
			Slash:           d.InvokeInteraction != nil,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return c.JSON(http.StatusOK, map[string]interface{}{"commands": views})
}

// --- Guild Handlers ---

func (s *Server) handleGetGuildSettings(c *echo.Context) error {
	g, err := s.settings.Guild(c.Request().Context(), c.Param("guild"))
	if err != nil {
		s.logger.Error("Failed to load guild settings", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to load settings")
	}
	return c.JSON(http.StatusOK, g)
}

func (s *Server) handlePutGuildSettings(c *echo.Context) error {
	var body settings.GuildSettings
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	body.Prefix = strings.TrimSpace(body.Prefix)
	if len(body.Prefix) > maxPrefixLen || strings.ContainsAny(body.Prefix, " \t\n`") {
		return errorJSON(c, http.StatusBadRequest, "prefix must be at most 5 characters without spaces or backticks")
	}
	if body.WelcomeEnabled && body.WelcomeChannel == "" {
		return errorJSON(c, http.StatusBadRequest, "welcome_channel required when welcome is enabled")
	}
	if body.AutoRoleEnabled && body.AutoRoleID == "" {
		return errorJSON(c, http.StatusBadRequest, "auto_role_id required when auto-role is enabled")
	}

	g, err := s.settings.UpdateGuild(c.Request().Context(), c.Param("guild"), func(g *settings.GuildSettings) error {
		*g = body
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to save guild settings", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to save settings")
	}
	return c.JSON(http.StatusOK, g)
}

func (s *Server) handleListTags(c *echo.Context) error {
	list, err := s.tags.List(c.Request().Context(), c.Param("guild"))
	if err != nil {
		s.logger.Error("Failed to list tags", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to list tags")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tags": list})
}

func (s *Server) handlePutTag(c *echo.Context) error {
	var body tags.Tag
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}
	body.Name = c.Param("name")
	if body.CreatedBy == "" {
		body.CreatedBy = s.currentSubject(c)
	}

	saved, err := s.tags.Put(c.Request().Context(), c.Param("guild"), body)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) handleDeleteTag(c *echo.Context) error {
	err := s.tags.Delete(c.Request().Context(), c.Param("guild"), c.Param("name"))
	if errors.Is(err, tags.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "tag not found")
	}
	if err != nil {
		s.logger.Error("Failed to delete tag", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "failed to delete tag")
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Job Handlers ---

func (s *Server) handleListJobs(c *echo.Context) error {
	if s.scheduler == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "scheduler not available")
	}
	jobs := s.scheduler.ListJobs()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return c.JSON(http.StatusOK, map[string]interface{}{"jobs": jobs})
}
