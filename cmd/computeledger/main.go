package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/computeledger/internal/billingrecord"
	"github.com/smallbiznis/computeledger/internal/clock"
	"github.com/smallbiznis/computeledger/internal/config"
	"github.com/smallbiznis/computeledger/internal/deployment"
	"github.com/smallbiznis/computeledger/internal/lease"
	"github.com/smallbiznis/computeledger/internal/ledger"
	"github.com/smallbiznis/computeledger/internal/migration"
	"github.com/smallbiznis/computeledger/internal/observability"
	"github.com/smallbiznis/computeledger/internal/onboarding"
	"github.com/smallbiznis/computeledger/internal/payment"
	"github.com/smallbiznis/computeledger/internal/pricing"
	"github.com/smallbiznis/computeledger/internal/scheduler"
	"github.com/smallbiznis/computeledger/internal/server"
	"github.com/smallbiznis/computeledger/internal/snapshot"
	"github.com/smallbiznis/computeledger/internal/suspension"
	"github.com/smallbiznis/computeledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lease.Module,

		pricing.Module,
		deployment.Module,
		billingrecord.Module,
		ledger.Module,
		snapshot.Module,
		suspension.Module,
		onboarding.Module,
		payment.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}
