package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llj0824/weibo-research-guanghua/internal/batch"
	"github.com/llj0824/weibo-research-guanghua/internal/prompt"
	"github.com/llj0824/weibo-research-guanghua/internal/store"
	"github.com/llj0824/weibo-research-guanghua/pkg/logging"
)

// BatchRunner runs a per-user batch (generation or timeline sync).
type BatchRunner interface {
	Run(ctx context.Context, userIDs []string) (*batch.Summary, error)
}

// SendRunner drains the approved response queue.
type SendRunner interface {
	Run(ctx context.Context) (*batch.Summary, error)
}

// UserLister supplies the default user set when a request names none.
type UserLister interface {
	ListUsers(ctx context.Context) ([]store.User, error)
}

// QuotaReporter reports hourly quota consumption for one upstream.
type QuotaReporter interface {
	Usage() (used, limit int)
}

var (
	generator BatchRunner
	syncer    BatchRunner
	sender    SendRunner
	users     UserLister
	groups    *prompt.Library
	quotas    map[string]QuotaReporter
	logger    logging.Logger
)

// Init wires the handlers to their collaborators.
func Init(gen, sync BatchRunner, send SendRunner, u UserLister, g *prompt.Library, q map[string]QuotaReporter, log logging.Logger) {
	generator = gen
	syncer = sync
	sender = send
	users = u
	groups = g
	quotas = q
	logger = log
}

// RegisterRoutes attaches the batch and status endpoints.
func RegisterRoutes(router *gin.Engine) {
	router.POST("/batches/generate", GenerateBatch)
	router.POST("/batches/send", SendBatch)
	router.POST("/batches/sync", SyncBatch)
	router.GET("/usage", GetUsage)
	router.GET("/groups", GetGroups)
}

type batchRequest struct {
	UserIDs []string `json:"user_ids"`
}

// resolveUserIDs falls back to every registered user when the request names
// none.
func resolveUserIDs(c *gin.Context) ([]string, bool) {
	var req batchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
	}
	if len(req.UserIDs) > 0 {
		return req.UserIDs, true
	}

	all, err := users.ListUsers(c.Request.Context())
	if err != nil {
		logger.WithError(err).Error("Failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return nil, false
	}
	ids := make([]string, 0, len(all))
	for _, u := range all {
		ids = append(ids, u.UID)
	}
	return ids, true
}

// GenerateBatch generates queued responses for the given users.
func GenerateBatch(c *gin.Context) {
	userIDs, ok := resolveUserIDs(c)
	if !ok {
		return
	}

	summary, err := generator.Run(c.Request.Context(), userIDs)
	if err != nil {
		logger.WithError(err).Error("Generation batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Generation batch failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// SendBatch delivers approved responses as comments.
func SendBatch(c *gin.Context) {
	summary, err := sender.Run(c.Request.Context())
	if err != nil {
		logger.WithError(err).Error("Send batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Send batch failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// SyncBatch refreshes stored timelines for the given users.
func SyncBatch(c *gin.Context) {
	userIDs, ok := resolveUserIDs(c)
	if !ok {
		return
	}

	summary, err := syncer.Run(c.Request.Context(), userIDs)
	if err != nil {
		logger.WithError(err).Error("Timeline sync batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Timeline sync batch failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetUsage reports hourly quota consumption per upstream.
func GetUsage(c *gin.Context) {
	resp := make(gin.H, len(quotas))
	for name, q := range quotas {
		used, limit := q.Usage()
		resp[name] = gin.H{"used": used, "limit": limit}
	}
	c.JSON(http.StatusOK, resp)
}

type groupInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	UsesHistory bool   `json:"uses_history"`
	DeclaresAI  bool   `json:"declares_ai"`
	Enabled     bool   `json:"enabled"`
}

// GetGroups lists the study's experimental groups. Prompt templates stay
// internal.
func GetGroups(c *gin.Context) {
	all := groups.All()
	resp := make([]groupInfo, 0, len(all))
	for _, g := range all {
		resp = append(resp, groupInfo{
			ID:          g.ID,
			Name:        g.Name,
			UsesHistory: g.UsesHistory,
			DeclaresAI:  g.DeclaresAI,
			Enabled:     g.Enabled(),
		})
	}
	c.JSON(http.StatusOK, resp)
}
