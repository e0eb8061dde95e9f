package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/audit"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/config"
	"github.com/smallbiznis/recyclesim/internal/credits"
	"github.com/smallbiznis/recyclesim/internal/delivery"
	"github.com/smallbiznis/recyclesim/internal/events"
	"github.com/smallbiznis/recyclesim/internal/lease"
	"github.com/smallbiznis/recyclesim/internal/observability"
	"github.com/smallbiznis/recyclesim/internal/ratelimit"
	"github.com/smallbiznis/recyclesim/internal/recycler"
	"github.com/smallbiznis/recyclesim/internal/routeworker"
	"github.com/smallbiznis/recyclesim/internal/server"
	"github.com/smallbiznis/recyclesim/internal/settlement"
	"github.com/smallbiznis/recyclesim/internal/truck"
	"github.com/smallbiznis/recyclesim/pkg/db"
	"github.com/smallbiznis/recyclesim/pkg/redisclient"
	"go.uber.org/fx"
)

// The api app serves truck reports, inspection and the admin trigger. The
// automatic run loop belongs to apps/worker; set WORKER_AUTO_RUN=false here
// when both are deployed.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisclient.Module,
		clock.Module,

		recycler.Module,
		truck.Module,
		delivery.Module,
		events.Module,
		lease.Module,
		settlement.Module,
		routeworker.Module,
		credits.Module,
		ratelimit.Module,
		audit.Module,

		server.Module,
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
