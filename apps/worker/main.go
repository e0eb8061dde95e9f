package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/config"
	"github.com/smallbiznis/recyclesim/internal/credits"
	"github.com/smallbiznis/recyclesim/internal/delivery"
	"github.com/smallbiznis/recyclesim/internal/events"
	"github.com/smallbiznis/recyclesim/internal/lease"
	"github.com/smallbiznis/recyclesim/internal/observability"
	"github.com/smallbiznis/recyclesim/internal/recycler"
	"github.com/smallbiznis/recyclesim/internal/routeworker"
	"github.com/smallbiznis/recyclesim/internal/settlement"
	"github.com/smallbiznis/recyclesim/internal/truck"
	"github.com/smallbiznis/recyclesim/pkg/db"
	"github.com/smallbiznis/recyclesim/pkg/redisclient"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisclient.Module,
		clock.Module,

		// Settlement stack and the outbox relay
		recycler.Module,
		truck.Module,
		delivery.Module,
		events.Module,
		lease.Module,
		settlement.Module,
		credits.Module,

		// No server module!
		routeworker.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
