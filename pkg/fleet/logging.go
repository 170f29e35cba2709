package fleet

import "context"

// ActionLogger records state-changing back-office actions.
type ActionLogger interface {
	LogAction(ctx context.Context, entry ActionLog)
}

// ActionLog describes a mutating action issued against the fleet API.
type ActionLog struct {
	Action   string
	Subject  string
	DriverID string
	Detail   string
	Status   string
	Error    error
}

// NewActionLog fills Status from err.
func NewActionLog(action string, subject string, driverID string, detail string, err error) ActionLog {
	status := ActionStatusOK
	if err != nil {
		status = ActionStatusError
	}
	return ActionLog{
		Action:   action,
		Subject:  subject,
		DriverID: driverID,
		Detail:   detail,
		Status:   status,
		Error:    err,
	}
}
