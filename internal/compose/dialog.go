// Package compose holds the outbound message templates and the
// send-confirmation dialog used to edit a message before it is sent.
package compose

import (
	"strings"
	"sync"
)

// DialogState is a point-in-time copy of the dialog for rendering.
type DialogState struct {
	Visible    bool   `json:"visible"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Pending    bool   `json:"pending"`
	CanConfirm bool   `json:"can_confirm"`
	CanCancel  bool   `json:"can_cancel"`
}

// Dialog seeds an editable message from a caller-supplied default and emits
// confirm or cancel to its caller through return values. Visibility and
// pending are owned by the caller; the dialog never closes itself.
// The zero value is a hidden dialog.
type Dialog struct {
	mu             sync.Mutex
	visible        bool
	title          string
	message        string
	defaultMessage string
	pending        bool
}

// NewDialog returns a hidden dialog.
func NewDialog() *Dialog {
	return &Dialog{}
}

// Open shows the dialog and resets the message to defaultMessage. Calling Open
// on a visible dialog re-syncs it for the new target.
func (dialog *Dialog) Open(title string, defaultMessage string) {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	dialog.visible = true
	dialog.title = title
	dialog.defaultMessage = defaultMessage
	dialog.message = defaultMessage
}

// Reset re-seeds the message when the default changes while the dialog is open.
func (dialog *Dialog) Reset(defaultMessage string) {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	if dialog.visible && defaultMessage != dialog.defaultMessage {
		dialog.message = defaultMessage
	}
	dialog.defaultMessage = defaultMessage
}

// Close hides the dialog.
func (dialog *Dialog) Close() {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	dialog.visible = false
}

// SetPending marks a send in flight; both controls are disabled while set.
func (dialog *Dialog) SetPending(pending bool) {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	dialog.pending = pending
}

// Edit overwrites the message body. It reports false when the dialog is
// hidden or a send is in flight.
func (dialog *Dialog) Edit(text string) bool {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	if !dialog.visible || dialog.pending {
		return false
	}
	dialog.message = text
	return true
}

// Cancel reports whether a cancellation is emitted. It is refused while a
// send is in flight and leaves visibility to the caller.
func (dialog *Dialog) Cancel() bool {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	return dialog.visible && !dialog.pending
}

// Confirm emits the current message. Nothing is emitted while pending or
// when the message is blank.
func (dialog *Dialog) Confirm() (string, bool) {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	if !dialog.canConfirmLocked() {
		return "", false
	}
	return dialog.message, true
}

// CanConfirm reports whether the confirm control is enabled.
func (dialog *Dialog) CanConfirm() bool {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	return dialog.canConfirmLocked()
}

// CanCancel reports whether the cancel control is enabled.
func (dialog *Dialog) CanCancel() bool {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	return dialog.visible && !dialog.pending
}

// Message returns the current message body.
func (dialog *Dialog) Message() string {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	return dialog.message
}

// Snapshot returns a copy of the dialog state.
func (dialog *Dialog) Snapshot() DialogState {
	dialog.mu.Lock()
	defer dialog.mu.Unlock()
	return DialogState{
		Visible:    dialog.visible,
		Title:      dialog.title,
		Message:    dialog.message,
		Pending:    dialog.pending,
		CanConfirm: dialog.canConfirmLocked(),
		CanCancel:  dialog.visible && !dialog.pending,
	}
}

func (dialog *Dialog) canConfirmLocked() bool {
	return dialog.visible && !dialog.pending && strings.TrimSpace(dialog.message) != ""
}
