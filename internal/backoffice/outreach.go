package backoffice

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/compose"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"go.uber.org/zap"
)

const (
	outreachTitleFormat   = "Send message to %s"
	outreachFallbackName  = "applicant"
	outreachActionSubject = "application"
)

// OutreachState is a point-in-time copy of the outreach workflow.
type OutreachState struct {
	ApplicationID string              `json:"application_id,omitempty"`
	Dialog        compose.DialogState `json:"dialog"`
}

// Outreach drives the compose dialog for one applicant at a time and sends
// the confirmed message through the API. It owns the dialog's visibility and
// pending flag.
type Outreach struct {
	api     fleetapi.API
	logger  *zap.Logger
	actions fleet.ActionLogger
	dialog  *compose.Dialog

	mu      sync.Mutex
	target  *fleet.Application
	sending bool
}

// NewOutreach returns an outreach workflow with a hidden dialog.
func NewOutreach(api fleetapi.API, options ...Option) (*Outreach, error) {
	cfg, err := newViewConfig(api, options)
	if err != nil {
		return nil, err
	}
	return &Outreach{api: api, logger: cfg.logger, actions: cfg.actions, dialog: compose.NewDialog()}, nil
}

// Open shows the dialog for application seeded with its status template.
// Opening for another application re-seeds the message. Reopening the current
// target keeps edits unless its status, and so its template, changed.
func (outreach *Outreach) Open(application fleet.Application) error {
	outreach.mu.Lock()
	defer outreach.mu.Unlock()
	if outreach.sending {
		return fleet.ErrActionPending
	}
	template := compose.TemplateFor(application.Status)
	sameTarget := outreach.target != nil && outreach.target.ID == application.ID
	target := application
	outreach.target = &target
	if sameTarget {
		outreach.dialog.Reset(template)
		return nil
	}
	name := application.DisplayName()
	if name == "" {
		name = outreachFallbackName
	}
	outreach.dialog.Open(fmt.Sprintf(outreachTitleFormat, name), template)
	return nil
}

// OpenApplication fetches an application and opens the dialog for it.
func (outreach *Outreach) OpenApplication(ctx context.Context, rawApplicationID string) error {
	applicationID, err := fleet.NewIdentifier(rawApplicationID)
	if err != nil {
		return err
	}
	application, err := outreach.api.GetApplication(ctx, applicationID)
	if err != nil {
		outreach.logger.Warn("outreach application load failed", zap.String("application_id", applicationID), zap.Error(err))
		return err
	}
	return outreach.Open(application)
}

// Edit replaces the message body.
func (outreach *Outreach) Edit(message string) bool {
	return outreach.dialog.Edit(message)
}

// Cancel closes the dialog unless a send is in flight.
func (outreach *Outreach) Cancel() bool {
	outreach.mu.Lock()
	defer outreach.mu.Unlock()
	if !outreach.dialog.Cancel() {
		return false
	}
	outreach.dialog.Close()
	outreach.target = nil
	return true
}

// Confirm sends the dialog message to the target applicant. The dialog
// closes on success and stays open with the message intact on failure.
func (outreach *Outreach) Confirm(ctx context.Context) (fleet.SendResult, error) {
	outreach.mu.Lock()
	if outreach.sending {
		outreach.mu.Unlock()
		return fleet.SendResult{}, fleet.ErrActionPending
	}
	if outreach.target == nil {
		outreach.mu.Unlock()
		return fleet.SendResult{}, fmt.Errorf("%w: no applicant selected", fleet.ErrValidation)
	}
	message, ok := outreach.dialog.Confirm()
	if !ok {
		outreach.mu.Unlock()
		return fleet.SendResult{}, fmt.Errorf("%w: message is empty", fleet.ErrValidation)
	}
	recipient := fleet.Recipient{ApplicationID: outreach.target.ID, Phone: strings.TrimSpace(outreach.target.Phone())}
	if recipient.Phone == "" {
		outreach.mu.Unlock()
		return fleet.SendResult{}, fmt.Errorf("%w: application %s has no phone number", fleet.ErrValidation, recipient.ApplicationID)
	}
	outreach.sending = true
	outreach.dialog.SetPending(true)
	outreach.mu.Unlock()

	result, err := outreach.api.SendMessage(ctx, recipient, message)
	outreach.actions.LogAction(ctx, fleet.NewActionLog(fleet.ActionSendMessage, outreachActionSubject, "", recipient.ApplicationID, err))

	outreach.mu.Lock()
	defer outreach.mu.Unlock()
	outreach.sending = false
	outreach.dialog.SetPending(false)
	if err != nil {
		outreach.logger.Warn("outreach send failed", zap.String("application_id", recipient.ApplicationID), zap.Error(err))
		return result, err
	}
	outreach.dialog.Close()
	outreach.target = nil
	return result, nil
}

// Snapshot returns the dialog state and its target.
func (outreach *Outreach) Snapshot() OutreachState {
	outreach.mu.Lock()
	defer outreach.mu.Unlock()
	state := OutreachState{Dialog: outreach.dialog.Snapshot()}
	if outreach.target != nil {
		state.ApplicationID = outreach.target.ID
	}
	return state
}
