// Package httpapi exposes the membership service over HTTP.
//
// Handlers translate between the wire shapes and the service layer and
// map the error taxonomy onto status codes. Authentication failures all
// surface the same generic messages the service returns; nothing from
// the store layer crosses this boundary.
package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	atrium "github.com/atriumhq/atrium"
	"github.com/atriumhq/atrium/authn"
	"github.com/atriumhq/atrium/events"
	"github.com/atriumhq/atrium/members"
	"github.com/atriumhq/atrium/middleware/ginmw"
	"github.com/atriumhq/atrium/records"
)

// VenueKeyPrefix namespaces venue records in the blob store.
const VenueKeyPrefix = "venue:"

// Server holds the wired collaborators behind the HTTP surface.
type Server struct {
	auth     *authn.Service
	verifier atrium.TokenVerifier
	members  *members.Repository
	events   *events.Repository
	venues   *records.Repository[atrium.Venue]

	logger    *slog.Logger
	metricsOn bool
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsEndpoint exposes GET /metrics.
func WithMetricsEndpoint(enabled bool) Option {
	return func(s *Server) { s.metricsOn = enabled }
}

// NewServer creates the HTTP surface over the service layer. The venue
// collection lives directly on the records layer; it has no behavior of
// its own.
func NewServer(auth *authn.Service, verifier atrium.TokenVerifier, memberRepo *members.Repository, eventRepo *events.Repository, blob atrium.BlobStore, opts ...Option) *Server {
	s := &Server{
		auth:     auth,
		verifier: verifier,
		members:  memberRepo,
		events:   eventRepo,
		venues: records.New[atrium.Venue](blob, VenueKeyPrefix,
			records.WithLess[atrium.Venue](func(a, b atrium.Venue) bool { return a.Name < b.Name })),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router assembles the route tree.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(ginmw.Recovery(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metricsOn {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	{
		api.POST("/login", s.handleLogin)
		api.POST("/request-login-link", s.handleRequestLoginLink)
		api.POST("/verify-session-token", s.handleVerifySession)
		api.POST("/set-password", s.handleSetPassword)
		api.POST("/apply", s.handleApply)

		// Quick actions arrive as clicked email links, so GET too.
		api.GET("/quick-action", s.handleQuickAction)
		api.POST("/quick-action", s.handleQuickAction)
	}

	authed := api.Group("", ginmw.Auth(s.verifier))
	{
		authed.POST("/update-profile", s.handleUpdateProfile)
		authed.GET("/events", s.handleListEvents)
		authed.POST("/events/:id/rsvp", s.handleRSVP)
		authed.DELETE("/events/:id/rsvp", s.handleCancelRSVP)
		authed.GET("/venues", s.handleListVenues)
	}

	admin := authed.Group("/admin", ginmw.RequireAdmin())
	{
		admin.GET("/applications", s.handleListApplications)
		admin.POST("/applications/:id/approve", s.handleApprove)
		admin.POST("/applications/:id/reject", s.handleReject)
		admin.GET("/members", s.handleListMembers)
		admin.POST("/events", s.handleCreateEvent)
		admin.DELETE("/events/:id", s.handleDeleteEvent)
		admin.POST("/venues", s.handleCreateVenue)
		admin.DELETE("/venues/:id", s.handleDeleteVenue)
		admin.POST("/repair-lists", s.handleRepairLists)

		admin.DELETE("/members/:id", ginmw.RequireSuperAdmin(), s.handleDeleteMember)
		admin.POST("/members/:id/roles", ginmw.RequireSuperAdmin(), s.handleSetRoles)
	}

	return r
}

// --- authentication ---

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email is required")
		return
	}

	var (
		res *atrium.LoginResult
		err error
	)
	switch {
	case req.Token != "":
		res, err = s.auth.LoginWithLink(c.Request.Context(), req.Token, req.Email)
	case req.Password != "":
		res, err = s.auth.LoginWithPassword(c.Request.Context(), req.Email, req.Password)
	default:
		badRequest(c, "password or token is required")
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type requestLinkRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (s *Server) handleRequestLoginLink(c *gin.Context) {
	var req requestLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email is required")
		return
	}

	if err := s.auth.RequestLoginLink(c.Request.Context(), req.Email); err != nil {
		s.writeError(c, err)
		return
	}
	// Identical body whether or not the email maps to an account.
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "If that email has an account, a login link is on its way.",
	})
}

type verifyRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) handleVerifySession(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token is required")
		return
	}

	res, err := s.auth.VerifySession(c.Request.Context(), req.Token)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type setPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// handleSetPassword is authorized by a mailed link token, not a bearer
// token: the welcome and reset flows reach it before the caller has any
// session. A logged-in member changes their password through the
// newPassword field on update-profile instead.
func (s *Server) handleSetPassword(c *gin.Context) {
	var req setPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token, email and a password of at least 8 characters are required")
		return
	}

	res, err := s.auth.SetPassword(c.Request.Context(), req.Token, req.Email, req.NewPassword)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type applyRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	City      string `json:"city"`
}

func (s *Server) handleApply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email, firstName and lastName are required")
		return
	}

	profile, err := s.auth.Apply(c.Request.Context(), authn.ApplicationRequest{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		City:      req.City,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

type quickActionRequest struct {
	ApplicationID string `json:"applicationId" form:"applicationId" binding:"required"`
	Action        string `json:"action" form:"action" binding:"required,oneof=approve reject"`
	ActionToken   string `json:"actionToken" form:"actionToken" binding:"required"`
}

func (s *Server) handleQuickAction(c *gin.Context) {
	var req quickActionRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "applicationId, action (approve or reject) and actionToken are required")
		return
	}

	profile, err := s.auth.QuickAction(c.Request.Context(), req.ApplicationID, atrium.QuickAction(req.Action), req.ActionToken)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Application %s", profile.Status),
		"application": gin.H{
			"id":     profile.ID,
			"status": profile.Status,
			"name":   strings.TrimSpace(profile.FirstName + " " + profile.LastName),
		},
	})
}

// --- member tier ---

type updateProfileRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	City        *string `json:"city"`
	NewPassword *string `json:"newPassword" binding:"omitempty,min=8"`
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid profile payload")
		return
	}
	memberID := ginmw.GetMemberID(c)

	if req.NewPassword != nil {
		if err := s.auth.ChangePassword(c.Request.Context(), memberID, *req.NewPassword); err != nil {
			s.writeError(c, err)
			return
		}
	}

	profile, err := s.auth.UpdateProfile(c.Request.Context(), memberID, authn.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		City:      req.City,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type setRolesRequest struct {
	IsAdmin      bool `json:"isAdmin"`
	IsSuperAdmin bool `json:"isSuperAdmin"`
}

func (s *Server) handleSetRoles(c *gin.Context) {
	var req setRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid roles payload")
		return
	}

	profile, err := s.auth.SetRoles(c.Request.Context(), c.Param("id"), req.IsAdmin, req.IsSuperAdmin)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleListEvents(c *gin.Context) {
	all, err := s.events.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

func (s *Server) handleRSVP(c *gin.Context) {
	e, err := s.events.RSVP(c.Request.Context(), c.Param("id"), ginmw.GetMemberID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleCancelRSVP(c *gin.Context) {
	e, err := s.events.CancelRSVP(c.Request.Context(), c.Param("id"), ginmw.GetMemberID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleListVenues(c *gin.Context) {
	all, err := s.venues.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

// --- admin tier ---

func (s *Server) handleListApplications(c *gin.Context) {
	apps, err := s.auth.Applications(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

func (s *Server) handleApprove(c *gin.Context) {
	profile, err := s.auth.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleReject(c *gin.Context) {
	profile, err := s.auth.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleListMembers(c *gin.Context) {
	all, err := s.members.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]atrium.MemberProfile, len(all))
	for i := range all {
		out[i] = all[i].Profile()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteMember(c *gin.Context) {
	if err := s.auth.DeleteMember(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createEventRequest struct {
	Name     string    `json:"name" binding:"required"`
	City     string    `json:"city"`
	VenueID  string    `json:"venueId"`
	StartsAt time.Time `json:"startsAt" binding:"required"`
	Capacity int       `json:"capacity" binding:"gte=0"`
}

func (s *Server) handleCreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and startsAt are required")
		return
	}

	if req.VenueID != "" {
		if _, err := s.venues.Get(c.Request.Context(), req.VenueID); err != nil {
			s.writeError(c, err)
			return
		}
	}

	e := &atrium.Event{
		ID:       uuid.NewString(),
		Name:     req.Name,
		City:     req.City,
		VenueID:  req.VenueID,
		StartsAt: req.StartsAt,
		Capacity: req.Capacity,
	}
	if err := s.events.Put(c.Request.Context(), e); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) handleDeleteEvent(c *gin.Context) {
	if err := s.events.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createVenueRequest struct {
	Name     string `json:"name" binding:"required"`
	City     string `json:"city"`
	Address  string `json:"address"`
	Capacity int    `json:"capacity" binding:"gte=0"`
}

func (s *Server) handleCreateVenue(c *gin.Context) {
	var req createVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}

	v := &atrium.Venue{
		ID:        uuid.NewString(),
		Name:      req.Name,
		City:      req.City,
		Address:   req.Address,
		Capacity:  req.Capacity,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.venues.Put(c.Request.Context(), v.ID, v); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (s *Server) handleDeleteVenue(c *gin.Context) {
	if err := s.venues.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleRepairLists rebuilds every collection's legacy list shadow from
// the individual records.
func (s *Server) handleRepairLists(c *gin.Context) {
	ctx := c.Request.Context()

	nMembers, err := s.members.RebuildShadow(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	nEvents, err := s.events.RebuildShadow(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	nVenues, err := s.venues.RebuildShadow(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"members": nMembers,
		"events":  nEvents,
		"venues":  nVenues,
	})
}

// --- error mapping ---

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// writeError maps the error taxonomy onto status codes. Anything
// unrecognized is logged with detail and surfaced as a bare 500.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, atrium.ErrInvalidCredentials),
		errors.Is(err, atrium.ErrPasswordNotSet),
		errors.Is(err, atrium.ErrInvalidOrExpiredLink),
		errors.Is(err, atrium.ErrInvalidToken),
		errors.Is(err, atrium.ErrExpiredToken),
		errors.Is(err, atrium.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": publicMessage(err)})
	case errors.Is(err, atrium.ErrForbidden),
		errors.Is(err, authn.ErrInvalidActionToken):
		c.JSON(http.StatusForbidden, gin.H{"error": publicMessage(err)})
	case errors.Is(err, atrium.ErrAccountNotFound),
		errors.Is(err, atrium.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": publicMessage(err)})
	case errors.Is(err, authn.ErrAlreadyApplied),
		errors.Is(err, authn.ErrAlreadyReviewed),
		errors.Is(err, events.ErrAlreadyAttending):
		c.JSON(http.StatusConflict, gin.H{"error": publicMessage(err)})
	case errors.Is(err, events.ErrEventFull):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": publicMessage(err)})
	default:
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// publicMessage strips any wrapping, leaving only the sentinel text.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		atrium.ErrInvalidCredentials, atrium.ErrPasswordNotSet,
		atrium.ErrInvalidOrExpiredLink, atrium.ErrInvalidToken,
		atrium.ErrExpiredToken, atrium.ErrUnauthorized, atrium.ErrForbidden,
		atrium.ErrAccountNotFound, atrium.ErrNotFound,
		authn.ErrInvalidActionToken, authn.ErrAlreadyApplied,
		authn.ErrAlreadyReviewed, events.ErrEventFull, events.ErrAlreadyAttending,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
