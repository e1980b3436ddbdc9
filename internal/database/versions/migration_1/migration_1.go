package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

const pendingEventsIndex = "idx_outbound_events_status_next_attempt"

// Migration adds the index the notification dispatcher polls on.
func Migration(db *gorm.DB) error {
	if err := db.Exec("CREATE INDEX IF NOT EXISTS " + pendingEventsIndex + " ON outbound_events (status, next_attempt_time)").Error; err != nil {
		return fmt.Errorf("error creating index %s: %w", pendingEventsIndex, err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Exec("DROP INDEX IF EXISTS " + pendingEventsIndex).Error; err != nil {
		return fmt.Errorf("error dropping index %s: %w", pendingEventsIndex, err)
	}
	return nil
}
