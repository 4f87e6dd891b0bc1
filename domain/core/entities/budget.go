package entities

import "memorymap-backend/domain/core/valueobjects"

// BudgetKey is the fixed name under which the notification budget is stored.
const BudgetKey = "last_anniversary_notify"

// NotificationBudget records the last day an anniversary reminder was sent.
// An empty LastNotified means no reminder has ever been sent.
type NotificationBudget struct {
	LastNotified string
}

// SpentOn reports whether a reminder was already sent on day.
func (b NotificationBudget) SpentOn(day valueobjects.CalendarDate) bool {
	return b.LastNotified != "" && b.LastNotified == day.String()
}
