package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/dmitrijs2005/tokenvault/internal/common"
	"github.com/dmitrijs2005/tokenvault/internal/server/auth"
	"github.com/dmitrijs2005/tokenvault/internal/server/services"
)

// Identity headers set by the fronting proxy after it has authenticated the
// user. Login trusts them; they must never be reachable from outside the
// perimeter.
const (
	userHeader  = "X-Auth-User"
	rolesHeader = "X-Auth-Roles"
)

type loginRequest struct {
	DeviceName string `json:"device_name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceName   string `json:"device_name"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	AllDevices   bool   `json:"all_devices"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type sessionResponse struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func toPairResponse(pair *services.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

// deviceContext collects request metadata for the session record. Values read
// from the fiber context alias fasthttp's reused request buffer and must be
// copied before they outlive the handler.
func (s *Server) deviceContext(c *fiber.Ctx, deviceName string) services.DeviceContext {
	return services.DeviceContext{
		DeviceName: deviceName,
		IPAddress:  utils.CopyString(c.IP()),
		UserAgent:  utils.CopyString(c.Get(fiber.HeaderUserAgent)),
	}
}

// writeServiceError maps a service failure onto the wire. Every validation
// failure collapses into one generic 401 so a caller probing with stolen
// tokens cannot distinguish unknown, expired, mismatched, and replayed
// tokens from each other.
func (s *Server) writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrRefreshTokenExpired),
		errors.Is(err, common.ErrTokenReuseDetected),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenMismatch),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid session",
		})
	case errors.Is(err, common.ErrStoreUnavailable):
		s.logger.Error(c.Context(), "token store unavailable", "error", err.Error())
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "temporarily unavailable",
		})
	default:
		s.logger.Error(c.Context(), "internal error", "error", err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}
}

// bearerUserID authenticates the request by its access token and returns the
// subject. Unlike rotation, this path requires the token to be unexpired.
func (s *Server) bearerUserID(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", common.ErrorUnauthorized
	}
	return auth.GetUserIDFromToken(token, s.secret)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// login handles POST /auth/login. The user is already authenticated by the
// fronting proxy; this endpoint turns the proxied identity into a token pair.
func (s *Server) login(c *fiber.Ctx) error {
	// header values are copied out of the reused request buffer before they
	// reach the store
	userID := utils.CopyString(c.Get(userHeader))
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid session",
		})
	}

	var roles []string
	if raw := c.Get(rolesHeader); raw != "" {
		roles = strings.Split(utils.CopyString(raw), ",")
	}

	var req loginRequest
	// an empty body is a valid login without a device name
	_ = c.BodyParser(&req)

	pair, err := s.issuer.IssueForLogin(c.Context(), userID, roles, s.deviceContext(c, req.DeviceName))
	if err != nil {
		return s.writeServiceError(c, err)
	}

	s.logger.Info(c.Context(), "issued token pair", "user_id", userID)
	return c.JSON(toPairResponse(pair))
}

// refresh handles POST /auth/refresh: the rotation endpoint. The expired
// access token rides along in the Authorization header.
func (s *Server) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "refresh_token is required",
		})
	}

	header := c.Get(fiber.HeaderAuthorization)
	accessToken, found := strings.CutPrefix(header, "Bearer ")
	if !found || accessToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid session",
		})
	}

	pair, err := s.rotation.Rotate(c.Context(), req.RefreshToken, accessToken, s.deviceContext(c, req.DeviceName))
	if err != nil {
		return s.writeServiceError(c, err)
	}

	return c.JSON(toPairResponse(pair))
}

// logout handles POST /auth/logout. Single-device logout only needs the
// refresh token and is idempotent; all_devices additionally requires a valid
// access token naming the user.
func (s *Server) logout(c *fiber.Ctx) error {
	var req logoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.AllDevices {
		userID, err := s.bearerUserID(c)
		if err != nil {
			return s.writeServiceError(c, err)
		}
		if err := s.sessions.RevokeAll(c.Context(), userID); err != nil {
			return s.writeServiceError(c, err)
		}
		s.logger.Info(c.Context(), "revoked all sessions", "user_id", userID)
		return c.JSON(fiber.Map{"message": "logged out"})
	}

	if req.RefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "refresh_token is required",
		})
	}
	if err := s.sessions.Revoke(c.Context(), req.RefreshToken); err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "logged out"})
}

// listSessions handles GET /auth/sessions for the authenticated user.
func (s *Server) listSessions(c *fiber.Ctx) error {
	userID, err := s.bearerUserID(c)
	if err != nil {
		return s.writeServiceError(c, err)
	}

	sessions, err := s.sessions.ListSessions(c.Context(), userID)
	if err != nil {
		return s.writeServiceError(c, err)
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, sessionResponse{
			DeviceID:   session.DeviceID,
			DeviceName: session.DeviceName,
			IPAddress:  session.IPAddress,
			UserAgent:  session.UserAgent,
			CreatedAt:  session.CreatedAt,
			ExpiresAt:  session.ExpiresAt,
		})
	}
	return c.JSON(resp)
}
