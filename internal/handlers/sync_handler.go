package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/models"
	"fintrack/internal/services"
)

// SyncHandler handles the pull and push endpoints of the sync protocol.
type SyncHandler struct {
	syncService  services.SyncServicer
	auditService services.AuditServicer
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService services.SyncServicer, auditService services.AuditServicer) *SyncHandler {
	return &SyncHandler{syncService: syncService, auditService: auditService}
}

// syncParams validates the query parameters shared by pull and push. The
// user_id parameter must match the token's subject: clients name the user
// they sync for explicitly, and a mismatch is an access violation rather
// than a silent override.
func syncParams(c *gin.Context) (userID string, lastPulledAt int64, err error) {
	tokenUserID, err := getUserID(c)
	if err != nil {
		return "", 0, err
	}

	userID = c.Query("user_id")
	if userID == "" {
		return "", 0, apperrors.WithMessage(apperrors.ErrValidation, "user_id is required")
	}
	if userID != tokenUserID {
		return "", 0, apperrors.ErrForbidden
	}

	lastPulledAt, parseErr := strconv.ParseInt(c.DefaultQuery("last_pulled_at", "0"), 10, 64)
	if parseErr != nil || lastPulledAt < 0 {
		return "", 0, apperrors.WithMessage(apperrors.ErrValidation, "invalid last_pulled_at")
	}
	return userID, lastPulledAt, nil
}

// Pull handles a sync pull request
// @Summary     Pull remote changes
// @Description Get all changes for the user since last_pulled_at, plus the server timestamp to use as the next checkpoint. last_pulled_at of 0 returns the full dataset.
// @Tags        sync
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       user_id        query string true  "User ID (must match the authenticated user)"
// @Param       last_pulled_at query int    false "Checkpoint from the previous pull, Unix milliseconds (default 0)"
// @Success     200 {object} models.PullResponse "Changes and server timestamp"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "user_id does not match token"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /sync/pull [get]
func (h *SyncHandler) Pull(c *gin.Context) {
	userID, lastPulledAt, err := syncParams(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	resp, err := h.syncService.ChangesSince(userID, lastPulledAt)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Push handles a sync push request
// @Summary     Push local changes
// @Description Apply a batch of client changes. Conflicts resolve last-write-wins by the client-reported updated_at; discarded writes still count as pushed.
// @Tags        sync
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       user_id        query string             true  "User ID (must match the authenticated user)"
// @Param       last_pulled_at query int                false "Checkpoint from the preceding pull, Unix milliseconds"
// @Param       request        body  models.PushRequest true  "Changeset to apply"
// @Success     200 {object} models.PushResponse "Number of records processed"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "user_id does not match token"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /sync/push [post]
func (h *SyncHandler) Push(c *gin.Context) {
	userID, _, err := syncParams(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req models.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrValidation, err.Error()))
		return
	}

	pushed, err := h.syncService.ApplyChanges(userID, req.Changes)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if pushed > 0 {
		h.auditService.Log(userID, "SYNC_PUSH", "transaction", "", c.ClientIP(),
			map[string]interface{}{"pushed": pushed})
	}

	c.JSON(http.StatusOK, models.PushResponse{Pushed: pushed})
}
