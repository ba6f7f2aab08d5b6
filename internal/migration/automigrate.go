package migration

import (
	"gorm.io/gorm"

	billingdomain "github.com/smallbiznis/premia/internal/billing/domain"
	"github.com/smallbiznis/premia/internal/events"
	gracedomain "github.com/smallbiznis/premia/internal/graceperiod/domain"
	notificationdomain "github.com/smallbiznis/premia/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/premia/internal/payment/domain"
)

// AutoMigrate creates the schema from the models. The versioned SQL
// migrations only target postgres, so sqlite deployments use this path.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&billingdomain.Billing{},
		&paymentdomain.Payment{},
		&paymentdomain.Retry{},
		&events.Event{},
		&gracedomain.Config{},
		&notificationdomain.Notification{},
	)
}
