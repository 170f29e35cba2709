package compose

import "github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"

// Pending applications have no default outreach message.
var messageTemplates = map[fleet.ApplicationStatus]string{
	fleet.ApplicationApproved:   "Congratulations! Your application has been approved. Welcome to GonzoFleet! We will be in touch shortly with next steps for onboarding.",
	fleet.ApplicationHold:       "Your application is currently on hold. We need additional information to proceed. Please contact us at your earliest convenience.",
	fleet.ApplicationDeclined:   "We regret to inform you that your application has been declined at this time. If you have any questions, please feel free to reach out.",
	fleet.ApplicationOnboarding: "Welcome to the team! Your onboarding process has begun. Please check your email for further instructions.",
}

// TemplateFor returns the default message body for a status, or "" when the
// status has no template.
func TemplateFor(status fleet.ApplicationStatus) string {
	return messageTemplates[status]
}
