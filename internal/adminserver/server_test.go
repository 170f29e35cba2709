package adminserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/backoffice"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/compose"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubAPI struct {
	mu           sync.Mutex
	applications []fleet.Application
	drivers      []fleet.Driver
	payments     []fleet.Payment
	networkErr   error
	assignGate   chan struct{}
	gatedPayment string
	assignCalls  int
	billingCalls []bool
	sent         []string
}

var _ fleetapi.API = (*stubAPI)(nil)

func newStubAPI() *stubAPI {
	return &stubAPI{
		applications: []fleet.Application{
			{ID: "a1", Status: fleet.ApplicationApproved, FormData: map[string]any{"first_name": "Ana", "last_name": "Diaz", "phone": "+15555550101", "_wp_http_referer": "/apply", "uber_lyft": "Yes"}, CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "a2", Status: fleet.ApplicationPending, FormData: map[string]any{"first_name": "Ben", "last_name": "Okafor", "phone": "+15555550102"}, CreatedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
			{ID: "a3", Status: fleet.ApplicationDeclined, FormData: map[string]any{"first_name": "Cara", "last_name": "Ng"}, CreatedAt: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
		},
		drivers: []fleet.Driver{
			{ID: "d1", FirstName: "Ana", LastName: "Diaz", BillingType: fleet.BillingWeekly, BillingRate: decimal.RequireFromString("350"), BillingActive: true, Balance: decimal.RequireFromString("60")},
		},
		payments: []fleet.Payment{
			{ID: "p1", Source: fleet.SourceZelle, Amount: decimal.RequireFromString("350"), SenderName: "ANA M DIAZ", ReceivedAt: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func (stub *stubAPI) GetApplications(_ context.Context, status fleet.ApplicationStatus) ([]fleet.Application, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.networkErr != nil {
		return nil, stub.networkErr
	}
	result := []fleet.Application{}
	for _, application := range stub.applications {
		if status == "" || application.Status == status {
			result = append(result, application)
		}
	}
	return result, nil
}

func (stub *stubAPI) GetApplication(_ context.Context, applicationID string) (fleet.Application, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	for _, application := range stub.applications {
		if application.ID == applicationID {
			return application, nil
		}
	}
	return fleet.Application{}, fleet.ErrNotFound
}

func (stub *stubAPI) GetDriver(_ context.Context, driverID string) (fleet.Driver, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	for _, driver := range stub.drivers {
		if driver.ID == driverID {
			return driver, nil
		}
	}
	return fleet.Driver{}, fleet.ErrNotFound
}

func (stub *stubAPI) GetDrivers(context.Context) ([]fleet.Driver, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([]fleet.Driver{}, stub.drivers...), nil
}

func (stub *stubAPI) GetDriverLedger(context.Context, string) ([]fleet.LedgerEntry, error) {
	return []fleet.LedgerEntry{
		{ID: "l1", Type: fleet.EntryDebit, Amount: decimal.RequireFromString("40"), Description: "Tolls"},
		{ID: "l2", Type: fleet.EntryCredit, Amount: decimal.RequireFromString("100"), Description: "Zelle"},
	}, nil
}

func (stub *stubAPI) GetDriverAliases(context.Context, string) ([]fleet.PaymentAlias, error) {
	return []fleet.PaymentAlias{}, nil
}

func (stub *stubAPI) UpdateDriverBilling(_ context.Context, driverID string, active bool) error {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.billingCalls = append(stub.billingCalls, active)
	for index := range stub.drivers {
		if stub.drivers[index].ID == driverID {
			stub.drivers[index].BillingActive = active
		}
	}
	return nil
}

func (stub *stubAPI) GetUnrecognizedPayments(context.Context) ([]fleet.Payment, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	payments := []fleet.Payment{}
	for _, payment := range stub.payments {
		if !payment.Matched {
			payments = append(payments, payment)
		}
	}
	return payments, nil
}

func (stub *stubAPI) GetPaymentStats(context.Context) (fleet.Stats, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stats := fleet.Stats{}
	for _, payment := range stub.payments {
		stats.TotalPayments++
		stats.TotalAmount = stats.TotalAmount.Add(payment.Amount)
		if payment.Matched {
			stats.MatchedPayments++
			stats.MatchedAmount = stats.MatchedAmount.Add(payment.Amount)
		} else {
			stats.UnmatchedPayments++
		}
	}
	return stats, nil
}

func (stub *stubAPI) AssignPayment(_ context.Context, paymentID string, driverID string, matched bool) error {
	stub.mu.Lock()
	gate := stub.assignGate
	if stub.gatedPayment != "" && stub.gatedPayment != paymentID {
		gate = nil
	}
	stub.assignCalls++
	stub.mu.Unlock()
	if gate != nil {
		<-gate
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	for index := range stub.payments {
		if stub.payments[index].ID == paymentID {
			assigned := driverID
			stub.payments[index].Matched = matched
			stub.payments[index].DriverID = &assigned
			return nil
		}
	}
	return fleet.ErrNotFound
}

func (stub *stubAPI) SendMessage(_ context.Context, _ fleet.Recipient, message string) (fleet.SendResult, error) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.sent = append(stub.sent, message)
	return fleet.SendResult{Success: true, MessageID: "m1"}, nil
}

func newTestServer(t *testing.T, api fleetapi.API) *httptest.Server {
	t.Helper()
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}
	handler, err := newHTTPHandler(cfg, api, zap.NewNop())
	if err != nil {
		t.Fatalf("handler init failed: %v", err)
	}
	server := httptest.NewServer(setupRouter(cfg, handler))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, server *httptest.Server, method string, path string, payload any, target any) int {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode failed: %v", err)
		}
	}
	request, err := http.NewRequest(method, server.URL+path, &body)
	if err != nil {
		t.Fatalf("request init failed: %v", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	if target != nil {
		if err := json.NewDecoder(response.Body).Decode(target); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
	}
	return response.StatusCode
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestApplicationsEndpoint(t *testing.T) {
	server := newTestServer(t, newStubAPI())

	var all backoffice.ApplicationListState
	if status := doJSON(t, server, http.MethodGet, "/api/applications?sort=name&desc=true", nil, &all); status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if len(all.Rows) != 3 || all.Rows[0].Name != "Cara Ng" || all.Filters[0].Count != 3 {
		t.Fatalf("unexpected list state: %+v", all)
	}

	var pending backoffice.ApplicationListState
	doJSON(t, server, http.MethodGet, "/api/applications?status=pending", nil, &pending)
	if pending.Filter != fleet.ApplicationPending || len(pending.Rows) != 1 || pending.Rows[0].DetailPath != "/applications/a2" {
		t.Fatalf("unexpected filtered state: %+v", pending)
	}

	testCases := []struct {
		name string
		path string
		want int
	}{
		{name: "unknown status", path: "/api/applications?status=archived", want: http.StatusBadRequest},
		{name: "status without filter", path: "/api/applications?status=hold", want: http.StatusBadRequest},
		{name: "unknown sort column", path: "/api/applications?sort=age", want: http.StatusBadRequest},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var envelope errorEnvelope
			if status := doJSON(t, server, http.MethodGet, testCase.path, nil, &envelope); status != testCase.want {
				t.Fatalf("expected %d, got %d", testCase.want, status)
			}
			if envelope.Error.Code != errorInvalid {
				t.Fatalf("unexpected error envelope: %+v", envelope)
			}
		})
	}
}

func TestApplicationsUpstreamFailure(t *testing.T) {
	api := newStubAPI()
	api.networkErr = fleet.WrapError("api", "application", "transport", fleet.ErrNetwork)
	server := newTestServer(t, api)
	var envelope errorEnvelope
	if status := doJSON(t, server, http.MethodGet, "/api/applications", nil, &envelope); status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if envelope.Error.Code != errorUpstream {
		t.Fatalf("unexpected error envelope: %+v", envelope)
	}
}

func TestApplicationFieldsHidesInternalKeys(t *testing.T) {
	server := newTestServer(t, newStubAPI())
	var body struct {
		Name   string          `json:"name"`
		Fields []fieldResponse `json:"fields"`
	}
	if status := doJSON(t, server, http.MethodGet, "/api/applications/fields?id=a1", nil, &body); status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if body.Name != "Ana Diaz" {
		t.Fatalf("unexpected name %q", body.Name)
	}
	for _, field := range body.Fields {
		if field.Key == "_wp_http_referer" {
			t.Fatalf("hidden field leaked: %+v", field)
		}
	}
	if len(body.Fields) != 4 {
		t.Fatalf("expected four visible fields, got %+v", body.Fields)
	}
	if status := doJSON(t, server, http.MethodGet, "/api/applications/fields?id=missing", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestDriverEndpoints(t *testing.T) {
	api := newStubAPI()
	server := newTestServer(t, api)

	var state backoffice.DriverDetailState
	if status := doJSON(t, server, http.MethodGet, "/api/drivers/d1", nil, &state); status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if state.Driver == nil || state.Driver.Balance != "$60.00" || state.Driver.BillingAction != "Pause" || len(state.Ledger) != 2 {
		t.Fatalf("unexpected driver state: %+v", state)
	}
	if state.Ledger[0].Amount != "-$40.00" || state.Ledger[0].Tone != backoffice.ToneNegative {
		t.Fatalf("unexpected ledger row: %+v", state.Ledger[0])
	}

	var toggled backoffice.DriverDetailState
	if status := doJSON(t, server, http.MethodPost, "/api/drivers/d1/billing/toggle", nil, &toggled); status != http.StatusOK {
		t.Fatalf("unexpected toggle status %d", status)
	}
	if toggled.Driver == nil || toggled.Driver.BillingActive || toggled.Driver.BillingStatus != "Paused" {
		t.Fatalf("expected paused driver, got %+v", toggled.Driver)
	}
	api.mu.Lock()
	billingCalls := append([]bool{}, api.billingCalls...)
	api.mu.Unlock()
	if len(billingCalls) != 1 || billingCalls[0] {
		t.Fatalf("expected one pause call, got %v", billingCalls)
	}

	if status := doJSON(t, server, http.MethodGet, "/api/drivers/missing", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestAssignPaymentFlow(t *testing.T) {
	api := newStubAPI()
	server := newTestServer(t, api)

	var before backoffice.ReconciliationState
	doJSON(t, server, http.MethodGet, "/api/payments", nil, &before)
	if len(before.Payments) != 1 || before.Stats == nil || before.Stats.Unmatched != 1 {
		t.Fatalf("unexpected reconciliation state: %+v", before)
	}

	if status := doJSON(t, server, http.MethodPost, "/api/payments/p1/assign", map[string]string{"driver_id": "nobody"}, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown driver, got %d", status)
	}
	if status := doJSON(t, server, http.MethodPost, "/api/payments/p1/assign", map[string]string{}, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 without driver, got %d", status)
	}

	var after backoffice.ReconciliationState
	if status := doJSON(t, server, http.MethodPost, "/api/payments/p1/assign", map[string]string{"driver_id": "d1"}, &after); status != http.StatusOK {
		t.Fatalf("unexpected assign status %d", status)
	}
	if !after.Empty || after.Stats == nil || after.Stats.Matched != 1 {
		t.Fatalf("expected reloaded state after assignment, got %+v", after)
	}
	if status := doJSON(t, server, http.MethodPost, "/api/payments/p1/assign", map[string]string{"driver_id": "d1"}, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for matched payment, got %d", status)
	}
}

func TestAssignPaymentRejectsConcurrentSubmission(t *testing.T) {
	api := newStubAPI()
	api.assignGate = make(chan struct{})
	server := newTestServer(t, api)

	done := postAssignAsync(server, "p1", "d1")
	waitForAssignCalls(t, api, 1)

	var envelope errorEnvelope
	if status := doJSON(t, server, http.MethodPost, "/api/payments/p1/assign", map[string]string{"driver_id": "d1"}, &envelope); status != http.StatusConflict {
		t.Fatalf("expected 409 while pending, got %d", status)
	}
	if envelope.Error.Code != errorPending {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	close(api.assignGate)
	if status := <-done; status != http.StatusOK {
		t.Fatalf("first assignment failed with %d", status)
	}
}

func TestAssignPaymentAllowsDifferentPaymentsConcurrently(t *testing.T) {
	api := newStubAPI()
	api.payments = append(api.payments, fleet.Payment{ID: "p2", Source: fleet.SourceCashApp, Amount: decimal.RequireFromString("75"), SenderName: "ANA D", ReceivedAt: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)})
	api.assignGate = make(chan struct{})
	api.gatedPayment = "p1"
	server := newTestServer(t, api)

	done := postAssignAsync(server, "p1", "d1")
	waitForAssignCalls(t, api, 1)

	if status := doJSON(t, server, http.MethodPost, "/api/payments/p2/assign", map[string]string{"driver_id": "d1"}, nil); status != http.StatusOK {
		t.Fatalf("expected second payment to be assignable while p1 is pending, got %d", status)
	}
	close(api.assignGate)
	if status := <-done; status != http.StatusOK {
		t.Fatalf("first assignment failed with %d", status)
	}
}

func postAssignAsync(server *httptest.Server, paymentID string, driverID string) <-chan int {
	done := make(chan int, 1)
	go func() {
		body := bytes.NewBufferString(`{"driver_id":"` + driverID + `"}`)
		response, err := server.Client().Post(server.URL+"/api/payments/"+paymentID+"/assign", "application/json", body)
		if err != nil {
			done <- 0
			return
		}
		response.Body.Close()
		done <- response.StatusCode
	}()
	return done
}

func waitForAssignCalls(t *testing.T, api *stubAPI, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		api.mu.Lock()
		calls := api.assignCalls
		api.mu.Unlock()
		if calls >= want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("assignment never reached the api")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMessageEndpoints(t *testing.T) {
	api := newStubAPI()
	server := newTestServer(t, api)

	var template struct {
		Template string `json:"template"`
	}
	doJSON(t, server, http.MethodGet, "/api/messages/template?status=approved", nil, &template)
	if template.Template != compose.TemplateFor(fleet.ApplicationApproved) {
		t.Fatalf("unexpected template %q", template.Template)
	}

	if status := doJSON(t, server, http.MethodPost, "/api/messages/send", map[string]any{"application_id": "a1"}, nil); status != http.StatusOK {
		t.Fatalf("expected template send to succeed, got %d", status)
	}
	custom := "See you Monday"
	if status := doJSON(t, server, http.MethodPost, "/api/messages/send", map[string]any{"application_id": "a1", "message": custom}, nil); status != http.StatusOK {
		t.Fatalf("expected custom send to succeed, got %d", status)
	}
	api.mu.Lock()
	sent := append([]string{}, api.sent...)
	api.mu.Unlock()
	if len(sent) != 2 || sent[0] != compose.TemplateFor(fleet.ApplicationApproved) || sent[1] != custom {
		t.Fatalf("unexpected sends %v", sent)
	}

	testCases := []struct {
		name    string
		payload map[string]any
		want    int
	}{
		{name: "pending application has no template", payload: map[string]any{"application_id": "a2"}, want: http.StatusBadRequest},
		{name: "blank message", payload: map[string]any{"application_id": "a1", "message": "   "}, want: http.StatusBadRequest},
		{name: "application without phone", payload: map[string]any{"application_id": "a3", "message": "hi"}, want: http.StatusBadRequest},
		{name: "unknown application", payload: map[string]any{"application_id": "zz", "message": "hi"}, want: http.StatusNotFound},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if status := doJSON(t, server, http.MethodPost, "/api/messages/send", testCase.payload, nil); status != testCase.want {
				t.Fatalf("expected %d, got %d", testCase.want, status)
			}
		})
	}
}

func TestMapToHTTPError(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{err: fleet.ErrActionPending, want: http.StatusConflict},
		{err: fleet.ErrNotFound, want: http.StatusNotFound},
		{err: fleet.ErrValidation, want: http.StatusBadRequest},
		{err: fleet.ErrInvalidIdentifier, want: http.StatusBadRequest},
		{err: fleet.ErrNetwork, want: http.StatusBadGateway},
		{err: errors.New("boom"), want: http.StatusBadGateway},
	}
	for _, testCase := range testCases {
		if status, _ := mapToHTTPError(testCase.err); status != testCase.want {
			t.Fatalf("%v: expected %d, got %d", testCase.err, testCase.want, status)
		}
	}
}

func TestParseAllowedOrigins(t *testing.T) {
	origins := ParseAllowedOrigins(" http://a.test , ,http://b.test")
	if len(origins) != 2 || origins[0] != "http://a.test" || origins[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", origins)
	}
}

func TestConfigValidateDefaultsAndErrors(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.APIBaseURL != defaultAPIBaseURL || cfg.RequestTimeout != defaultRequestTimeout {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	bad := Config{APIBaseURL: "ftp://example"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected scheme validation error")
	}
	signed := Config{TokenSigningKey: "secret"}
	if err := signed.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if _, err := signed.NewAPIClient(); err != nil {
		t.Fatalf("client init failed: %v", err)
	}
}
