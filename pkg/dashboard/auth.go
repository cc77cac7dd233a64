package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/version"
)

const (
	discordAuthURL  = "https://discord.com/oauth2/authorize"
	discordTokenURL = "https://discord.com/api/oauth2/token"
	discordUserURL  = "https://discord.com/api/users/@me"

	stateTTL     = 10 * time.Minute
	statePurpose = "oauth_state"

	kindAdmin   = "admin"
	kindDiscord = "discord"
)

func discordOAuth(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.Bot.ClientID,
		ClientSecret: cfg.Dashboard.OAuth.ClientSecret,
		RedirectURL:  cfg.Dashboard.OAuth.RedirectURL,
		Scopes:       []string{"identify"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   discordAuthURL,
			TokenURL:  discordTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (s *Server) oauthEnabled() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != "" && s.oauth.RedirectURL != ""
}

// --- Auth Handlers ---

func (s *Server) handleLogin(c *echo.Context) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	if !s.config.AuthenticateAdmin(body.Username, body.Password) {
		s.logger.Warn("Dashboard login rejected",
			zap.String("username", body.Username),
			zap.String("ip", c.RealIP()))
		return errorJSON(c, http.StatusUnauthorized, "invalid credentials")
	}

	username := strings.TrimSpace(body.Username)
	token, err := s.generateToken(username, username, kindAdmin)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "token generation failed")
	}

	s.logger.Info("Dashboard login", zap.String("username", username))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  map[string]string{"id": username, "name": username, "kind": kindAdmin},
	})
}

func (s *Server) handleDiscordLogin(c *echo.Context) error {
	if !s.oauthEnabled() {
		return errorJSON(c, http.StatusNotFound, "discord login is not configured")
	}

	state, err := s.signClaims(jwt.MapClaims{
		"purpose": statePurpose,
		"exp":     time.Now().Add(stateTTL).Unix(),
	})
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "state generation failed")
	}
	return c.Redirect(http.StatusTemporaryRedirect, s.oauth.AuthCodeURL(state))
}

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (s *Server) handleDiscordCallback(c *echo.Context) error {
	if !s.oauthEnabled() {
		return errorJSON(c, http.StatusNotFound, "discord login is not configured")
	}

	claims, err := s.parseToken(c.QueryParam("state"))
	if err != nil || claims["purpose"] != statePurpose {
		return errorJSON(c, http.StatusBadRequest, "invalid state")
	}
	code := strings.TrimSpace(c.QueryParam("code"))
	if code == "" {
		return errorJSON(c, http.StatusBadRequest, "code required")
	}

	ctx := c.Request().Context()
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("Discord OAuth exchange failed", zap.Error(err))
		return errorJSON(c, http.StatusBadGateway, "discord token exchange failed")
	}

	user, err := s.fetchDiscordUser(c, s.oauth.Client(ctx, tok))
	if err != nil {
		s.logger.Warn("Discord user lookup failed", zap.Error(err))
		return errorJSON(c, http.StatusBadGateway, "discord user lookup failed")
	}

	if !s.config.CanUseDashboard(user.ID) {
		s.logger.Warn("Dashboard login refused for Discord user",
			zap.String("user", user.ID),
			zap.String("username", user.Username))
		return errorJSON(c, http.StatusForbidden, "not allowed")
	}

	token, err := s.generateToken(user.ID, user.Username, kindDiscord)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "token generation failed")
	}

	s.logger.Info("Dashboard login via Discord", zap.String("user", user.ID))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  map[string]string{"id": user.ID, "name": user.Username, "kind": kindDiscord},
	})
}

func (s *Server) fetchDiscordUser(c *echo.Context, client *http.Client) (*discordUser, error) {
	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, s.userURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discord returned %s", resp.Status)
	}

	var user discordUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding discord user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("discord user has no id")
	}
	return &user, nil
}

func (s *Server) handleMe(c *echo.Context) error {
	claims := currentClaims(c)
	if claims == nil {
		return errorJSON(c, http.StatusUnauthorized, "invalid token")
	}
	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	kind, _ := claims["kind"].(string)
	return c.JSON(http.StatusOK, map[string]string{"id": sub, "name": name, "kind": kind})
}

// requireSession rejects signed tokens that are not login sessions, such as
// OAuth state values.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		claims := currentClaims(c)
		if claims == nil {
			return errorJSON(c, http.StatusUnauthorized, "invalid token")
		}
		if kind, _ := claims["kind"].(string); kind != kindAdmin && kind != kindDiscord {
			return errorJSON(c, http.StatusUnauthorized, "invalid token")
		}
		return next(c)
	}
}

// --- Helpers ---

func currentClaims(c *echo.Context) jwt.MapClaims {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return claims
}

func (s *Server) currentSubject(c *echo.Context) string {
	claims := currentClaims(c)
	if claims == nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return strings.TrimSpace(sub)
}

func (s *Server) generateToken(subject, name, kind string) (string, error) {
	ttl := time.Duration(s.config.Dashboard.TokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	return s.signClaims(jwt.MapClaims{
		"sub":  subject,
		"name": name,
		"kind": kind,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	})
}

func (s *Server) signClaims(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(tokenStr string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(strings.TrimSpace(tokenStr), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || parsed == nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
