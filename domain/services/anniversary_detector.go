// Package services contains pure domain logic evaluated against snapshots.
package services

import (
	"memorymap-backend/domain/core/entities"
	"memorymap-backend/domain/core/valueobjects"
)

// AnniversaryDetector finds the memory recorded exactly one calendar year
// before today, at most once per day.
type AnniversaryDetector struct{}

// NewAnniversaryDetector creates a detector.
func NewAnniversaryDetector() AnniversaryDetector {
	return AnniversaryDetector{}
}

// TargetDate is the calendar day one year before today. Days missing from
// the target year clamp to the end of the month.
func (AnniversaryDetector) TargetDate(today valueobjects.CalendarDate) valueobjects.CalendarDate {
	return today.YearsEarlier(1)
}

// Check scans the snapshot in display order and returns the first memory
// dated exactly one year before today, together with the budget to persist.
// When the budget is already spent today, or nothing matches, ok is false
// and the budget is returned unchanged.
func (d AnniversaryDetector) Check(
	snapshot entities.Snapshot,
	today valueobjects.CalendarDate,
	budget entities.NotificationBudget,
) (entities.Memory, entities.NotificationBudget, bool) {
	if budget.SpentOn(today) {
		return entities.Memory{}, budget, false
	}

	target := d.TargetDate(today).String()

	var (
		found entities.Memory
		ok    bool
	)
	snapshot.Each(func(m entities.Memory) bool {
		if m.Date == target {
			found, ok = m, true
			return false
		}
		return true
	})
	if !ok {
		return entities.Memory{}, budget, false
	}

	return found, entities.NotificationBudget{LastNotified: today.String()}, true
}
