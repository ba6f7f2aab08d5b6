// Scheduler-only entrypoint. Runs the retry dispatcher, lazy status
// transitions and the outbox drain without the HTTP surface.
package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/premia/internal/billing"
	"github.com/smallbiznis/premia/internal/clock"
	"github.com/smallbiznis/premia/internal/config"
	"github.com/smallbiznis/premia/internal/events"
	"github.com/smallbiznis/premia/internal/graceperiod"
	"github.com/smallbiznis/premia/internal/logger"
	"github.com/smallbiznis/premia/internal/migration"
	"github.com/smallbiznis/premia/internal/notification"
	"github.com/smallbiznis/premia/internal/observability/metrics"
	"github.com/smallbiznis/premia/internal/payment"
	"github.com/smallbiznis/premia/internal/policy"
	"github.com/smallbiznis/premia/internal/scheduler"
	"github.com/smallbiznis/premia/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		policy.Module,
		graceperiod.Module,
		billing.Module,
		payment.Module,
		events.Module,
		notification.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
