// Package devapi serves the fleet REST contract over a GORM store for local
// development and end-to-end tests of the admin console.
package devapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	errorInvalidPayload   = "invalid_payload"
	errorInvalidStatus    = "invalid_status"
	errorInvalidPage      = "invalid_page"
	errorNotFound         = "not_found"
	errorConflict         = "conflict"
	errorValidation       = "invalid"
	errorInternal         = "internal"
	errorSendFailed       = "send_failed"
	webhookStatusReceived = "received"

	maxListLimit = 500
)

// Store is the persistence the development API serves from.
type Store interface {
	ListApplications(ctx context.Context, status fleet.ApplicationStatus) ([]fleet.Application, error)
	GetApplication(ctx context.Context, applicationID string) (fleet.Application, error)
	CreateApplication(ctx context.Context, formData map[string]any) (fleet.Application, error)
	ListDrivers(ctx context.Context, filter gormstore.DriverFilter) ([]fleet.Driver, error)
	GetDriver(ctx context.Context, driverID string) (fleet.Driver, error)
	CreateDriver(ctx context.Context, driver fleet.Driver) (fleet.Driver, error)
	UpdateDriver(ctx context.Context, driverID string, update gormstore.DriverUpdate) (fleet.Driver, error)
	SetBillingActive(ctx context.Context, driverID string, active *bool) (fleet.Driver, error)
	ListLedger(ctx context.Context, driverID string, page gormstore.Page) ([]fleet.LedgerEntry, error)
	ListAliases(ctx context.Context, driverID string) ([]fleet.PaymentAlias, error)
	CreateAlias(ctx context.Context, alias fleet.PaymentAlias) (fleet.PaymentAlias, error)
	DeleteAlias(ctx context.Context, driverID string, aliasID string) error
	ListUnrecognizedPayments(ctx context.Context) ([]fleet.Payment, error)
	PaymentStats(ctx context.Context) (fleet.Stats, error)
	AssignPayment(ctx context.Context, paymentID string, driverID string) (fleet.Payment, error)
	RecordSMS(ctx context.Context, record gormstore.SMSRecord, message string) error
}

var _ Store = (*gormstore.Store)(nil)

// Run serves the development API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, store Store, messenger Messenger, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if messenger == nil {
		messenger = NewLogMessenger(logger)
	}
	handler := &httpHandler{logger: logger, store: store, messenger: messenger}
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: setupRouter(cfg, handler),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fleet dev api listening", zap.String("addr", cfg.ListenAddr), zap.Bool("auth", cfg.RequireAuth))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
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

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/webhook/fluent-forms", handler.handleFormWebhook)

	api := router.Group("/")
	if cfg.RequireAuth {
		api.Use(bearerAuth([]byte(cfg.SigningKey), cfg.TokenIssuer))
	}

	api.GET("/applications", handler.handleListApplications)
	api.GET("/applications/:id", handler.handleGetApplication)

	api.GET("/drivers", handler.handleListDrivers)
	api.POST("/drivers", handler.handleCreateDriver)
	api.GET("/drivers/:id", handler.handleGetDriver)
	api.PATCH("/drivers/:id", handler.handleUpdateDriver)
	api.PATCH("/drivers/:id/billing", handler.handleUpdateBilling)
	api.GET("/drivers/:id/ledger", handler.handleListLedger)
	api.GET("/drivers/:id/aliases", handler.handleListAliases)
	api.POST("/drivers/:id/aliases", handler.handleCreateAlias)
	api.DELETE("/drivers/:id/aliases/:alias_id", handler.handleDeleteAlias)

	api.GET("/payments/unrecognized", handler.handleUnrecognizedPayments)
	api.GET("/payments/stats", handler.handlePaymentStats)
	api.POST("/payments/:id/assign", handler.handleAssignPayment)

	api.POST("/sms/send", handler.handleSendSMS)

	return router
}

type httpHandler struct {
	logger    *zap.Logger
	store     Store
	messenger Messenger
}

func (handler *httpHandler) handleListApplications(ctx *gin.Context) {
	var status fleet.ApplicationStatus
	if raw := ctx.Query("status"); raw != "" {
		parsed, err := fleet.ParseApplicationStatus(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidStatus, err.Error()))
			return
		}
		status = parsed
	}
	applications, err := handler.store.ListApplications(ctx.Request.Context(), status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, applications)
}

func (handler *httpHandler) handleGetApplication(ctx *gin.Context) {
	application, err := handler.store.GetApplication(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, application)
}

func (handler *httpHandler) handleFormWebhook(ctx *gin.Context) {
	formData := map[string]any{}
	if strings.Contains(ctx.ContentType(), "application/json") {
		if err := ctx.ShouldBindJSON(&formData); err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
			return
		}
	} else {
		if err := ctx.Request.ParseForm(); err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected form body"))
			return
		}
		for key, values := range ctx.Request.PostForm {
			if len(values) > 0 {
				formData[key] = values[0]
			}
		}
	}
	application, err := handler.store.CreateApplication(ctx.Request.Context(), formData)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.logger.Info("application received", zap.String("application_id", application.ID))
	ctx.JSON(http.StatusOK, gin.H{"status": webhookStatusReceived, "application_id": application.ID})
}

func (handler *httpHandler) handleListDrivers(ctx *gin.Context) {
	page, err := parsePage(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPage, err.Error()))
		return
	}
	filter := gormstore.DriverFilter{Page: page}
	if raw := ctx.Query("billing_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "billing_active must be a boolean"))
			return
		}
		filter.BillingActive = &active
	}
	drivers, err := handler.store.ListDrivers(ctx.Request.Context(), filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, drivers)
}

type createDriverRequest struct {
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	BillingType   string          `json:"billing_type"`
	BillingRate   decimal.Decimal `json:"billing_rate"`
	BillingActive *bool           `json:"billing_active"`
}

func (handler *httpHandler) handleCreateDriver(ctx *gin.Context) {
	var request createDriverRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	if strings.TrimSpace(request.FirstName) == "" || strings.TrimSpace(request.LastName) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorValidation, "first_name and last_name are required"))
		return
	}
	billingType, err := fleet.ParseBillingType(request.BillingType)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorValidation, err.Error()))
		return
	}
	active := true
	if request.BillingActive != nil {
		active = *request.BillingActive
	}
	driver, err := handler.store.CreateDriver(ctx.Request.Context(), fleet.Driver{
		FirstName:     strings.TrimSpace(request.FirstName),
		LastName:      strings.TrimSpace(request.LastName),
		Email:         strings.TrimSpace(request.Email),
		Phone:         strings.TrimSpace(request.Phone),
		BillingType:   billingType,
		BillingRate:   request.BillingRate,
		BillingActive: active,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, driver)
}

func (handler *httpHandler) handleGetDriver(ctx *gin.Context) {
	driver, err := handler.store.GetDriver(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, driver)
}

type updateDriverRequest struct {
	FirstName     *string          `json:"first_name"`
	LastName      *string          `json:"last_name"`
	Email         *string          `json:"email"`
	Phone         *string          `json:"phone"`
	BillingType   *string          `json:"billing_type"`
	BillingRate   *decimal.Decimal `json:"billing_rate"`
	BillingActive *bool            `json:"billing_active"`
}

func (handler *httpHandler) handleUpdateDriver(ctx *gin.Context) {
	var request updateDriverRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	update := gormstore.DriverUpdate{
		FirstName:     request.FirstName,
		LastName:      request.LastName,
		Email:         request.Email,
		Phone:         request.Phone,
		BillingRate:   request.BillingRate,
		BillingActive: request.BillingActive,
	}
	if request.BillingType != nil {
		billingType, err := fleet.ParseBillingType(*request.BillingType)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorValidation, err.Error()))
			return
		}
		update.BillingType = &billingType
	}
	driver, err := handler.store.UpdateDriver(ctx.Request.Context(), ctx.Param("id"), update)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.logger.Info("driver updated", zap.String("driver_id", driver.ID))
	ctx.JSON(http.StatusOK, driver)
}

func (handler *httpHandler) handleUpdateBilling(ctx *gin.Context) {
	var request struct {
		BillingActive *bool `json:"billing_active"`
	}
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&request); err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
			return
		}
	}
	driver, err := handler.store.SetBillingActive(ctx.Request.Context(), ctx.Param("id"), request.BillingActive)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.logger.Info("driver billing updated", zap.String("driver_id", driver.ID), zap.Bool("billing_active", driver.BillingActive))
	ctx.JSON(http.StatusOK, driver)
}

func (handler *httpHandler) handleListLedger(ctx *gin.Context) {
	page, err := parsePage(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPage, err.Error()))
		return
	}
	entries, err := handler.store.ListLedger(ctx.Request.Context(), ctx.Param("id"), page)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, entries)
}

func (handler *httpHandler) handleListAliases(ctx *gin.Context) {
	aliases, err := handler.store.ListAliases(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, aliases)
}

func (handler *httpHandler) handleCreateAlias(ctx *gin.Context) {
	var request struct {
		AliasType  string `json:"alias_type"`
		AliasValue string `json:"alias_value"`
	}
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	alias, err := handler.store.CreateAlias(ctx.Request.Context(), fleet.PaymentAlias{
		DriverID:   ctx.Param("id"),
		AliasType:  strings.TrimSpace(request.AliasType),
		AliasValue: strings.TrimSpace(request.AliasValue),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, alias)
}

func (handler *httpHandler) handleDeleteAlias(ctx *gin.Context) {
	if err := handler.store.DeleteAlias(ctx.Request.Context(), ctx.Param("id"), ctx.Param("alias_id")); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleUnrecognizedPayments(ctx *gin.Context) {
	payments, err := handler.store.ListUnrecognizedPayments(ctx.Request.Context())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, payments)
}

func (handler *httpHandler) handlePaymentStats(ctx *gin.Context) {
	stats, err := handler.store.PaymentStats(ctx.Request.Context())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

func (handler *httpHandler) handleAssignPayment(ctx *gin.Context) {
	var request fleetapi.AssignPaymentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	driverID, err := fleet.NewIdentifier(request.DriverID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorValidation, "driver_id is required"))
		return
	}
	if !request.Matched {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorValidation, "only matching assignments are supported"))
		return
	}
	payment, err := handler.store.AssignPayment(ctx.Request.Context(), ctx.Param("id"), driverID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.logger.Info("payment assigned", zap.String("payment_id", payment.ID), zap.String("driver_id", driverID))
	ctx.JSON(http.StatusOK, payment)
}

func (handler *httpHandler) handleSendSMS(ctx *gin.Context) {
	var request fleetapi.SendMessageRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	phone := strings.TrimSpace(request.Phone)
	if phone == "" || strings.TrimSpace(request.Message) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorValidation, "phone and message are required"))
		return
	}
	result, sendErr := handler.messenger.Send(ctx.Request.Context(), phone, request.Message)
	if sendErr != nil {
		result = fleet.SendResult{Success: false, Error: sendErr.Error()}
	}
	record := gormstore.SMSRecord{ApplicationID: request.ApplicationID, Phone: phone, Result: result}
	if err := handler.store.RecordSMS(ctx.Request.Context(), record, request.Message); err != nil {
		handler.logger.Error("sms log failed", zap.String("phone", phone), zap.Error(err))
	}
	if !result.Success {
		handler.logger.Warn("sms send failed", zap.String("phone", phone), zap.String("error", result.Error))
		ctx.JSON(http.StatusBadGateway, errorResponse(errorSendFailed, defaultIfEmpty(result.Error, "failed to send sms")))
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := mapToHTTPError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func mapToHTTPError(source error) (int, string) {
	switch {
	case errors.Is(source, fleet.ErrNotFound):
		return http.StatusNotFound, errorNotFound
	case errors.Is(source, fleet.ErrConflict):
		return http.StatusConflict, errorConflict
	case errors.Is(source, fleet.ErrValidation):
		return http.StatusBadRequest, errorValidation
	default:
		return http.StatusInternalServerError, errorInternal
	}
}

func parsePage(ctx *gin.Context) (gormstore.Page, error) {
	page := gormstore.Page{}
	if raw := ctx.Query("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return gormstore.Page{}, fmt.Errorf("skip must be a non-negative integer")
		}
		page.Skip = skip
	}
	if raw := ctx.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return gormstore.Page{}, fmt.Errorf("limit must be a positive integer")
		}
		if limit > maxListLimit {
			return gormstore.Page{}, fmt.Errorf("limit exceeds maximum: %d > %d", limit, maxListLimit)
		}
		page.Limit = limit
	}
	return page, nil
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
