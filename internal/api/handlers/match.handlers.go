package routes

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"parkclash/internal/model"
	"parkclash/internal/service/match"
	"parkclash/internal/util"

	"github.com/gin-gonic/gin"
)

// MatchAPI is the part of the match service exposed over REST
type MatchAPI interface {
	Create(ctx context.Context, in match.CreateInput) (*model.MatchState, error)
	Get(ctx context.Context, matchID string) (*model.MatchState, error)
	FindByCode(ctx context.Context, code string) (*model.MatchState, error)
	Join(ctx context.Context, matchID string, in match.JoinInput) (*model.MatchState, error)
	Start(ctx context.Context, matchID, requesterID string) (*model.MatchState, error)
	End(ctx context.Context, matchID, requesterID string) (*model.MatchState, error)
	FlushTelemetry(ctx context.Context, matchID string) (int, error)
	ZonesForPark(ctx context.Context, parkID string) ([]model.Zone, error)
}

type createMatchRequest struct {
	ParkID          string `json:"parkId" binding:"required"`
	DurationMinutes int    `json:"durationMinutes" binding:"omitempty,min=1,max=180"`
	TeamSize        int    `json:"teamSize" binding:"omitempty,min=1,max=50"`
}

type joinMatchRequest struct {
	DisplayName string `json:"displayName" binding:"omitempty,max=32"`
	TeamID      string `json:"teamId"`
}

// MatchHandlers serves the match endpoints
type MatchHandlers struct {
	svc MatchAPI
}

// SetupMatchHandlers registers the match and park endpoints
func SetupMatchHandlers(router *gin.RouterGroup, svc MatchAPI) {
	h := &MatchHandlers{svc: svc}

	matchGroup := router.Group("/matches")
	matchGroup.POST("", h.CreateMatch)
	matchGroup.GET("/code/:code", h.GetMatchByCode)
	matchGroup.GET("/:matchId", h.GetMatch)
	matchGroup.POST("/:matchId/join", h.JoinMatch)
	matchGroup.POST("/:matchId/start", h.StartMatch)
	matchGroup.POST("/:matchId/end", h.EndMatch)
	matchGroup.POST("/:matchId/telemetry/flush", h.FlushTelemetry)

	router.GET("/parks/:parkId/zones", h.ParkZones)
}

// CreateMatch opens a match hosted by the caller
func (h *MatchHandlers) CreateMatch(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := CurrentUser(c)
	state, err := h.svc.Create(c.Request.Context(), match.CreateInput{
		ParkID:          req.ParkID,
		DurationMinutes: req.DurationMinutes,
		TeamSize:        req.TeamSize,
		HostID:          user.UserID,
		HostName:        user.Username,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"matchId": state.ID,
		"code":    state.Code,
		"state":   state,
	})
}

// GetMatch returns the match with current zone ownership
func (h *MatchHandlers) GetMatch(c *gin.Context) {
	state, err := h.svc.Get(c.Request.Context(), c.Param("matchId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetMatchByCode resolves a join code
func (h *MatchHandlers) GetMatchByCode(c *gin.Context) {
	state, err := h.svc.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// JoinMatch adds the caller to a match; the body is optional
func (h *MatchHandlers) JoinMatch(c *gin.Context) {
	var req joinMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := CurrentUser(c)
	if req.DisplayName == "" {
		req.DisplayName = user.Username
	}
	state, err := h.svc.Join(c.Request.Context(), c.Param("matchId"), match.JoinInput{
		PlayerID:    user.UserID,
		DisplayName: req.DisplayName,
		TeamID:      req.TeamID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// StartMatch starts the timer; host only
func (h *MatchHandlers) StartMatch(c *gin.Context) {
	state, err := h.svc.Start(c.Request.Context(), c.Param("matchId"), CurrentUser(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// EndMatch finishes the match early; host only
func (h *MatchHandlers) EndMatch(c *gin.Context) {
	state, err := h.svc.End(c.Request.Context(), c.Param("matchId"), CurrentUser(c).UserID)
	if err != nil && state == nil {
		writeError(c, err)
		return
	}
	if err != nil {
		// finished, but the telemetry flush needs a retry
		log.Printf("Match %s ended with flush error: %v", c.Param("matchId"), err)
	}
	c.JSON(http.StatusOK, state)
}

// FlushTelemetry retries the telemetry flush of a finished match
func (h *MatchHandlers) FlushTelemetry(c *gin.Context) {
	n, err := h.svc.FlushTelemetry(c.Request.Context(), c.Param("matchId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flushed": n})
}

// ParkZones lists the zones of a park
func (h *MatchHandlers) ParkZones(c *gin.Context) {
	parkID := c.Param("parkId")
	zones, err := h.svc.ZonesForPark(c.Request.Context(), parkID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parkId": parkID, "zones": zones})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, match.ErrNotHost), errors.Is(err, match.ErrPlayerNotInMatch):
		status = http.StatusForbidden
	case errors.Is(err, match.ErrMatchFinished),
		errors.Is(err, match.ErrInvalidTransition),
		errors.Is(err, match.ErrParkBusy),
		errors.Is(err, match.ErrMatchFull):
		status = http.StatusConflict
	case errors.Is(err, match.ErrTransactionFailed):
		status = http.StatusServiceUnavailable
		body["retryable"] = true
	case errors.Is(err, match.ErrInvalidInput),
		errors.Is(err, match.ErrInvalidTeam),
		errors.Is(err, util.ErrInvalidCoordinate):
		status = http.StatusBadRequest
	default:
		log.Printf("API: %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		body["error"] = "internal error"
	}

	c.JSON(status, body)
}
