package scheduler

import (
	"fmt"
	"time"
)

// composeDM builds the message body for a contact attempt: the first
// attempt gets the full invitation, later attempts a shorter reminder.
func composeDM(attempts int, deadline time.Time) string {
	dl := deadline.UTC().Format("2006-01-02 15:04 UTC")
	if attempts == 0 {
		return fmt.Sprintf(
			"👋 We are running an **activity roll-call** of the community.\n\n"+
				"👉 Are you **staying active** with us?\n\n"+
				"⏰ **Deadline:** %s\n\n"+
				"✅ Answer **Yes** to keep your role.\n"+
				"❌ Answer **No** to move to former member.\n\n"+
				"— The staff", dl)
	}
	return fmt.Sprintf(
		"⏰ **Reminder**\n\n"+
			"We have not received your roll-call answer yet.\n"+
			"Please confirm before **%s** using the buttons.\n\n"+
			"— The staff", dl)
}

// dmKind labels a contact attempt for metrics.
func dmKind(attempts int) string {
	if attempts == 0 {
		return "invitation"
	}
	return "reminder"
}
