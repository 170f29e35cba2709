package fleet

const (
	ActionToggleBilling = "toggle_billing"
	ActionAssignPayment = "assign_payment"
	ActionSendMessage   = "send_message"

	ActionStatusOK    = "ok"
	ActionStatusError = "error"
)
