package compose

import "testing"

func TestDialogOpenSeedsDefault(test *testing.T) {
	test.Parallel()
	dialog := NewDialog()
	dialog.Open("Send to Ana", "default body")
	state := dialog.Snapshot()
	if !state.Visible || state.Title != "Send to Ana" || state.Message != "default body" {
		test.Fatalf("unexpected state after open: %+v", state)
	}
	if !state.CanConfirm || !state.CanCancel {
		test.Fatalf("expected both controls enabled: %+v", state)
	}
}

func TestDialogReopenResyncsMessage(test *testing.T) {
	test.Parallel()
	dialog := NewDialog()
	dialog.Open("Send to Ana", "first default")
	dialog.Edit("operator edits")
	dialog.Open("Send to Ben", "second default")
	if got := dialog.Message(); got != "second default" {
		test.Fatalf("expected message reset to new default, got %q", got)
	}
	dialog.Edit("more edits")
	dialog.Reset("third default")
	if got := dialog.Message(); got != "third default" {
		test.Fatalf("expected reset on changed default, got %q", got)
	}
	dialog.Edit("kept edits")
	dialog.Reset("third default")
	if got := dialog.Message(); got != "kept edits" {
		test.Fatalf("expected unchanged default to keep edits, got %q", got)
	}
}

func TestDialogConfirmBlankMessage(test *testing.T) {
	test.Parallel()
	dialog := NewDialog()
	dialog.Open("Send", "")
	dialog.Edit("   ")
	if message, ok := dialog.Confirm(); ok {
		test.Fatalf("expected whitespace message to be rejected, got %q", message)
	}
	if dialog.CanConfirm() {
		test.Fatalf("expected confirm control disabled")
	}
}

func TestDialogConfirmEmitsMessage(test *testing.T) {
	test.Parallel()
	dialog := NewDialog()
	dialog.Open("Send", "")
	dialog.Edit("Hello")
	message, ok := dialog.Confirm()
	if !ok || message != "Hello" {
		test.Fatalf("expected confirm with Hello, got %q (%t)", message, ok)
	}
	if !dialog.Snapshot().Visible {
		test.Fatalf("expected dialog to stay open until the caller closes it")
	}
}

func TestDialogPendingDisablesControls(test *testing.T) {
	test.Parallel()
	dialog := NewDialog()
	dialog.Open("Send", "Hello")
	dialog.SetPending(true)
	if _, ok := dialog.Confirm(); ok {
		test.Fatalf("expected confirm disabled while pending")
	}
	if dialog.Cancel() {
		test.Fatalf("expected cancel disabled while pending")
	}
	if dialog.Edit("changed") {
		test.Fatalf("expected edits rejected while pending")
	}
	if state := dialog.Snapshot(); state.CanConfirm || state.CanCancel || state.Message != "Hello" {
		test.Fatalf("unexpected pending state: %+v", state)
	}
	dialog.SetPending(false)
	if !dialog.Cancel() {
		test.Fatalf("expected cancel after pending cleared")
	}
	if !dialog.Snapshot().Visible {
		test.Fatalf("expected cancel to leave visibility to the caller")
	}
}

func TestDialogHiddenIgnoresActions(test *testing.T) {
	test.Parallel()
	var dialog Dialog
	if _, ok := dialog.Confirm(); ok {
		test.Fatalf("expected hidden dialog to ignore confirm")
	}
	if dialog.Cancel() || dialog.Edit("x") {
		test.Fatalf("expected hidden dialog to ignore actions")
	}
	dialog.Open("Send", "Hello")
	dialog.Close()
	if _, ok := dialog.Confirm(); ok {
		test.Fatalf("expected closed dialog to ignore confirm")
	}
}
