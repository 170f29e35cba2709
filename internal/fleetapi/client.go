package fleetapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/go-resty/resty/v2"
)

const (
	errorOperationAPI       = "api"
	errorSubjectApplication = "application"
	errorSubjectDriver      = "driver"
	errorSubjectLedger      = "ledger"
	errorSubjectAliases     = "aliases"
	errorSubjectBilling     = "billing"
	errorSubjectPayments    = "payments"
	errorSubjectStats       = "stats"
	errorSubjectAssignment  = "assignment"
	errorSubjectMessage     = "message"
	errorCodeTransport      = "transport"
	errorCodeNotFound       = "not_found"
	errorCodeInvalid        = "invalid"
	errorCodeConflict       = "conflict"
	errorCodeRejected       = "rejected"
	errorCodeToken          = "token"
	errorCodeSendFailed     = "send_failed"

	defaultTimeout = 10 * time.Second
	userAgent      = "gonzoadmin"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenProvider
}

// Client implements API over HTTP.
type Client struct {
	http   *resty.Client
	tokens TokenProvider
}

var _ API = (*Client)(nil)

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	return &Client{http: httpClient, tokens: cfg.Tokens}, nil
}

func (client *Client) GetApplications(ctx context.Context, status fleet.ApplicationStatus) ([]fleet.Application, error) {
	request, err := client.request(ctx, errorSubjectApplication)
	if err != nil {
		return nil, err
	}
	if status != "" {
		request.SetQueryParam("status", status.String())
	}
	var applications []fleet.Application
	response, err := request.SetResult(&applications).Get(pathApplications)
	if err := checkResponse(errorSubjectApplication, response, err); err != nil {
		return nil, err
	}
	return nonNil(applications), nil
}

func (client *Client) GetApplication(ctx context.Context, applicationID string) (fleet.Application, error) {
	request, err := client.request(ctx, errorSubjectApplication)
	if err != nil {
		return fleet.Application{}, err
	}
	var application fleet.Application
	response, err := request.SetPathParam("id", applicationID).SetResult(&application).Get(pathApplication)
	if err := checkResponse(errorSubjectApplication, response, err); err != nil {
		return fleet.Application{}, err
	}
	return application, nil
}

func (client *Client) GetDriver(ctx context.Context, driverID string) (fleet.Driver, error) {
	request, err := client.request(ctx, errorSubjectDriver)
	if err != nil {
		return fleet.Driver{}, err
	}
	var driver fleet.Driver
	response, err := request.SetPathParam("id", driverID).SetResult(&driver).Get(pathDriver)
	if err := checkResponse(errorSubjectDriver, response, err); err != nil {
		return fleet.Driver{}, err
	}
	return driver, nil
}

func (client *Client) GetDrivers(ctx context.Context) ([]fleet.Driver, error) {
	request, err := client.request(ctx, errorSubjectDriver)
	if err != nil {
		return nil, err
	}
	var drivers []fleet.Driver
	response, err := request.SetResult(&drivers).Get(pathDrivers)
	if err := checkResponse(errorSubjectDriver, response, err); err != nil {
		return nil, err
	}
	return nonNil(drivers), nil
}

func (client *Client) GetDriverLedger(ctx context.Context, driverID string) ([]fleet.LedgerEntry, error) {
	request, err := client.request(ctx, errorSubjectLedger)
	if err != nil {
		return nil, err
	}
	var entries []fleet.LedgerEntry
	response, err := request.SetPathParam("id", driverID).SetResult(&entries).Get(pathDriverLedger)
	if err := checkResponse(errorSubjectLedger, response, err); err != nil {
		return nil, err
	}
	return nonNil(entries), nil
}

func (client *Client) GetDriverAliases(ctx context.Context, driverID string) ([]fleet.PaymentAlias, error) {
	request, err := client.request(ctx, errorSubjectAliases)
	if err != nil {
		return nil, err
	}
	var aliases []fleet.PaymentAlias
	response, err := request.SetPathParam("id", driverID).SetResult(&aliases).Get(pathDriverAliases)
	if err := checkResponse(errorSubjectAliases, response, err); err != nil {
		return nil, err
	}
	return nonNil(aliases), nil
}

func (client *Client) UpdateDriverBilling(ctx context.Context, driverID string, active bool) error {
	request, err := client.request(ctx, errorSubjectBilling)
	if err != nil {
		return err
	}
	response, err := request.
		SetPathParam("id", driverID).
		SetBody(BillingUpdateRequest{BillingActive: active}).
		Patch(pathDriverBilling)
	return checkResponse(errorSubjectBilling, response, err)
}

func (client *Client) GetUnrecognizedPayments(ctx context.Context) ([]fleet.Payment, error) {
	request, err := client.request(ctx, errorSubjectPayments)
	if err != nil {
		return nil, err
	}
	var payments []fleet.Payment
	response, err := request.SetResult(&payments).Get(pathUnrecognizedPayment)
	if err := checkResponse(errorSubjectPayments, response, err); err != nil {
		return nil, err
	}
	return nonNil(payments), nil
}

func (client *Client) GetPaymentStats(ctx context.Context) (fleet.Stats, error) {
	request, err := client.request(ctx, errorSubjectStats)
	if err != nil {
		return fleet.Stats{}, err
	}
	var stats fleet.Stats
	response, err := request.SetResult(&stats).Get(pathPaymentStats)
	if err := checkResponse(errorSubjectStats, response, err); err != nil {
		return fleet.Stats{}, err
	}
	return stats, nil
}

func (client *Client) AssignPayment(ctx context.Context, paymentID string, driverID string, matched bool) error {
	request, err := client.request(ctx, errorSubjectAssignment)
	if err != nil {
		return err
	}
	response, err := request.
		SetPathParam("id", paymentID).
		SetBody(AssignPaymentRequest{DriverID: driverID, Matched: matched}).
		Post(pathPaymentAssign)
	return checkResponse(errorSubjectAssignment, response, err)
}

func (client *Client) SendMessage(ctx context.Context, recipient fleet.Recipient, message string) (fleet.SendResult, error) {
	request, err := client.request(ctx, errorSubjectMessage)
	if err != nil {
		return fleet.SendResult{}, err
	}
	var result fleet.SendResult
	response, err := request.
		SetBody(SendMessageRequest{ApplicationID: recipient.ApplicationID, Phone: recipient.Phone, Message: message}).
		SetResult(&result).
		Post(pathSendSMS)
	if err := checkResponse(errorSubjectMessage, response, err); err != nil {
		return fleet.SendResult{}, err
	}
	if !result.Success {
		detail := result.Error
		if detail == "" {
			detail = "provider reported failure"
		}
		return result, fleet.WrapError(errorOperationAPI, errorSubjectMessage, errorCodeSendFailed, fmt.Errorf("%w: %s", fleet.ErrNetwork, detail))
	}
	return result, nil
}

func (client *Client) request(ctx context.Context, subject string) (*resty.Request, error) {
	request := client.http.R().SetContext(ctx)
	if client.tokens == nil {
		return request, nil
	}
	token, err := client.tokens.Token()
	if err != nil {
		return nil, fleet.WrapError(errorOperationAPI, subject, errorCodeToken, err)
	}
	if token != "" {
		request.SetAuthToken(token)
	}
	return request, nil
}

// errorBody accepts both {"detail": ...} and {"error": {"code","message"}} envelopes.
type errorBody struct {
	Detail any `json:"detail"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (body errorBody) message() string {
	if body.Error != nil && body.Error.Message != "" {
		return body.Error.Message
	}
	switch detail := body.Detail.(type) {
	case string:
		return detail
	case nil:
		return ""
	default:
		raw, err := json.Marshal(detail)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func checkResponse(subject string, response *resty.Response, err error) error {
	if err != nil {
		return fleet.WrapError(errorOperationAPI, subject, errorCodeTransport, fmt.Errorf("%w: %w", fleet.ErrNetwork, err))
	}
	if !response.IsError() {
		return nil
	}
	status := response.StatusCode()
	detail := http.StatusText(status)
	var body errorBody
	if json.Unmarshal(response.Body(), &body) == nil {
		if message := body.message(); message != "" {
			detail = message
		}
	}
	switch {
	case status == http.StatusNotFound:
		return fleet.WrapError(errorOperationAPI, subject, errorCodeNotFound, fmt.Errorf("%w: %s", fleet.ErrNotFound, detail))
	case status == http.StatusConflict:
		return fleet.WrapError(errorOperationAPI, subject, errorCodeConflict, fmt.Errorf("%w: %s", fleet.ErrConflict, detail))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fleet.WrapError(errorOperationAPI, subject, errorCodeInvalid, fmt.Errorf("%w: %s", fleet.ErrValidation, detail))
	default:
		return fleet.WrapError(errorOperationAPI, subject, errorCodeRejected, fmt.Errorf("%w: status %d: %s", fleet.ErrNetwork, status, detail))
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
