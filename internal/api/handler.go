package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"signage-control-backend/config"
	"signage-control-backend/internal/command"
	"signage-control-backend/internal/ingest"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/realtime"
	"signage-control-backend/internal/store"
)

// Dispatcher creates and delivers commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID string, intent command.Intent) (*model.Command, error)
}

// Deps are the collaborators the HTTP layer needs. Hub, Ingest and Webpush
// may be nil.
type Deps struct {
	Store      store.Store
	Dispatcher Dispatcher
	Ingest     *ingest.Service
	Hub        *realtime.Hub
	Webpush    *webpush.Options
	Config     *config.Config
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	dispatcher   Dispatcher
	ingest       *ingest.Service
	events       realtime.Publisher
	webpush      *webpush.Options
	historyLimit int
	staleAfter   time.Duration
	usageCache   *cache.Cache
	now          func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}
	h := &Handler{
		store:        d.Store,
		dispatcher:   d.Dispatcher,
		ingest:       d.Ingest,
		webpush:      d.Webpush,
		historyLimit: cfg.Commands.HistoryLimit,
		staleAfter:   cfg.Commands.StaleAfter,
		usageCache:   cache.New(cfg.Server.CacheTTL, 2*cfg.Server.CacheTTL),
		now:          func() time.Time { return time.Now().UTC() },
	}
	if d.Hub != nil {
		h.events = d.Hub
	}
	if h.ingest == nil && d.Store != nil {
		h.ingest = ingest.NewService(d.Store, h.events, nil)
	}
	if h.ingest != nil {
		h.ingest.OnUsage(h.invalidateUsage)
	}
	return h
}

// respondError maps domain errors onto status codes.
func respondError(c *gin.Context, err error) {
	var validationErr *command.ValidationError
	var dispatchErr *command.DispatchError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &dispatchErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      dispatchErr.Message,
			"commandId":  dispatchErr.CommandID,
			"statusCode": dispatchErr.StatusCode,
		})
	case errors.Is(err, store.ErrInvalidReport),
		errors.Is(err, store.ErrInvalidSettings),
		errors.Is(err, store.ErrInvalidJobProgress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrDeviceNotFound),
		errors.Is(err, store.ErrCommandNotFound),
		errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrJobTerminal),
		errors.Is(err, store.ErrDuplicateDevice):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("Unhandled error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
