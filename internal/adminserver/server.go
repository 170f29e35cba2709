// Package adminserver exposes the back-office view models as a JSON façade for
// the admin console front end.
package adminserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/backoffice"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/compose"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/formfields"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorInvalidPayload = "invalid_payload"
	errorInvalid        = "invalid"
	errorNotFound       = "not_found"
	errorPending        = "pending"
	errorConflict       = "conflict"
	errorUpstream       = "upstream_error"

	inflightPaymentPrefix     = "payment:"
	inflightDriverPrefix      = "driver:"
	inflightApplicationPrefix = "application:"
)

// Run serves the admin façade until ctx is cancelled.
func Run(ctx context.Context, cfg Config, api fleetapi.API, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	handler, err := newHTTPHandler(cfg, api, logger)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: setupRouter(cfg, handler),
	}

	errCh := make(chan error, 1)
	go func() {
		handler.logger.Info("admin console listening", zap.String("addr", cfg.ListenAddr), zap.String("api", cfg.APIBaseURL))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			handler.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/applications", handler.handleApplications)
	api.GET("/applications/fields", handler.handleApplicationFields)
	api.GET("/drivers/:id", handler.handleDriver)
	api.POST("/drivers/:id/billing/toggle", handler.handleToggleBilling)
	api.GET("/payments", handler.handlePayments)
	api.POST("/payments/:id/assign", handler.handleAssignPayment)
	api.GET("/messages/template", handler.handleMessageTemplate)
	api.POST("/messages/send", handler.handleSendMessage)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	api      fleetapi.API
	actions  fleet.ActionLogger
	cfg      Config
	inflight *inflightSet
}

func newHTTPHandler(cfg Config, api fleetapi.API, logger *zap.Logger) (*httpHandler, error) {
	if api == nil {
		return nil, errors.New("api dependency is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpHandler{
		logger:   logger,
		api:      api,
		actions:  backoffice.NewZapActionLogger(logger),
		cfg:      cfg,
		inflight: newInflightSet(),
	}, nil
}

func (handler *httpHandler) viewOptions() []backoffice.Option {
	return []backoffice.Option{backoffice.WithLogger(handler.logger), backoffice.WithActionLogger(handler.actions)}
}

func (handler *httpHandler) handleApplications(ctx *gin.Context) {
	status, err := parseStatus(ctx.Query("status"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	list, err := backoffice.NewApplicationList(handler.api, handler.viewOptions()...)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	defer list.Close()

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := list.SetFilter(requestCtx, status); err != nil {
		handler.respondError(ctx, err)
		return
	}
	state := list.Snapshot()
	if column := ctx.Query("sort"); column != "" {
		descending, _ := strconv.ParseBool(ctx.Query("desc"))
		rows, err := list.SortedRows(column, descending)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		state.Rows = rows
	}
	ctx.JSON(http.StatusOK, state)
}

type fieldResponse struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value any    `json:"value"`
}

func (handler *httpHandler) handleApplicationFields(ctx *gin.Context) {
	applicationID, err := fleet.NewIdentifier(ctx.Query("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	application, err := handler.api.GetApplication(requestCtx, applicationID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	entries := formfields.DisplayEntries(application.FormData)
	fields := make([]fieldResponse, 0, len(entries))
	for _, entry := range entries {
		fields = append(fields, fieldResponse{Key: entry.Key, Label: formfields.LabelFor(entry.Key), Value: entry.Value})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"application_id": application.ID,
		"name":           application.DisplayName(),
		"status":         application.Status,
		"fields":         fields,
	})
}

func (handler *httpHandler) handleDriver(ctx *gin.Context) {
	detail, err := backoffice.NewDriverDetail(handler.api, handler.viewOptions()...)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	defer detail.Close()

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := detail.Load(requestCtx, ctx.Param("id")); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, detail.Snapshot())
}

func (handler *httpHandler) handleToggleBilling(ctx *gin.Context) {
	driverID := ctx.Param("id")
	key := inflightDriverPrefix + driverID
	if !handler.inflight.acquire(key) {
		handler.respondError(ctx, fleet.ErrActionPending)
		return
	}
	defer handler.inflight.release(key)

	detail, err := backoffice.NewDriverDetail(handler.api, handler.viewOptions()...)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	defer detail.Close()

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := detail.Load(requestCtx, driverID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	if err := detail.ToggleBilling(requestCtx); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, detail.Snapshot())
}

func (handler *httpHandler) handlePayments(ctx *gin.Context) {
	view, err := backoffice.NewReconciliation(handler.api, handler.viewOptions()...)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	defer view.Close()

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := view.Load(requestCtx); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view.Snapshot())
}

type assignRequest struct {
	DriverID string `json:"driver_id"`
}

func (handler *httpHandler) handleAssignPayment(ctx *gin.Context) {
	var request assignRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	driverID, err := fleet.NewIdentifier(request.DriverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	key := inflightPaymentPrefix + strings.TrimSpace(ctx.Param("id"))
	if !handler.inflight.acquire(key) {
		handler.respondError(ctx, fleet.ErrActionPending)
		return
	}
	defer handler.inflight.release(key)

	view, err := backoffice.NewReconciliation(handler.api, handler.viewOptions()...)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	defer view.Close()

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := view.Load(requestCtx); err != nil {
		handler.respondError(ctx, err)
		return
	}
	if err := view.BeginAssign(ctx.Param("id")); err != nil {
		handler.respondError(ctx, err)
		return
	}
	if err := view.SelectDriver(driverID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	if err := view.ConfirmAssign(requestCtx); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view.Snapshot())
}

func (handler *httpHandler) handleMessageTemplate(ctx *gin.Context) {
	status, err := fleet.ParseApplicationStatus(ctx.Query("status"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": status, "template": compose.TemplateFor(status)})
}

type sendMessageRequest struct {
	ApplicationID string  `json:"application_id"`
	Message       *string `json:"message"`
}

func (handler *httpHandler) handleSendMessage(ctx *gin.Context) {
	var request sendMessageRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	applicationID, err := fleet.NewIdentifier(request.ApplicationID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	key := inflightApplicationPrefix + applicationID
	if !handler.inflight.acquire(key) {
		handler.respondError(ctx, fleet.ErrActionPending)
		return
	}
	defer handler.inflight.release(key)

	outreach, err := backoffice.NewOutreach(handler.api, handler.viewOptions()...)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := outreach.OpenApplication(requestCtx, applicationID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	if request.Message != nil {
		outreach.Edit(*request.Message)
	}
	result, err := outreach.Confirm(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"result": result, "outreach": outreach.Snapshot()})
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := mapToHTTPError(err)
	if status == http.StatusBadGateway {
		handler.logger.Error("upstream request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func mapToHTTPError(source error) (int, string) {
	switch {
	case errors.Is(source, fleet.ErrActionPending):
		return http.StatusConflict, errorPending
	case errors.Is(source, fleet.ErrConflict):
		return http.StatusConflict, errorConflict
	case errors.Is(source, fleet.ErrNotFound):
		return http.StatusNotFound, errorNotFound
	case errors.Is(source, fleet.ErrValidation),
		errors.Is(source, fleet.ErrInvalidIdentifier),
		errors.Is(source, fleet.ErrInvalidApplicationStatus):
		return http.StatusBadRequest, errorInvalid
	default:
		return http.StatusBadGateway, errorUpstream
	}
}

func parseStatus(raw string) (fleet.ApplicationStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	status, err := fleet.ParseApplicationStatus(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", fleet.ErrValidation, err)
	}
	return status, nil
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// inflightSet tracks mutating requests by key so that a duplicate submission
// is refused instead of queued.
type inflightSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflightSet() *inflightSet {
	return &inflightSet{keys: map[string]struct{}{}}
}

func (set *inflightSet) acquire(key string) bool {
	set.mu.Lock()
	defer set.mu.Unlock()
	if _, busy := set.keys[key]; busy {
		return false
	}
	set.keys[key] = struct{}{}
	return true
}

func (set *inflightSet) release(key string) {
	set.mu.Lock()
	defer set.mu.Unlock()
	delete(set.keys, key)
}
