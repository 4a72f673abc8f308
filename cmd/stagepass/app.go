package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/affiliate"
	"github.com/smallbiznis/stagepass/internal/artist"
	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	"github.com/smallbiznis/stagepass/internal/event"
	"github.com/smallbiznis/stagepass/internal/observability"
	"github.com/smallbiznis/stagepass/internal/payment"
	"github.com/smallbiznis/stagepass/internal/payout"
	"github.com/smallbiznis/stagepass/internal/pricing"
	"github.com/smallbiznis/stagepass/internal/providers/stripe"
	"github.com/smallbiznis/stagepass/internal/ratelimit"
	"github.com/smallbiznis/stagepass/internal/ticket"
	"github.com/smallbiznis/stagepass/internal/tip"
	"github.com/smallbiznis/stagepass/pkg/db"
	"go.uber.org/fx"
)

// infraModules wires configuration, logging, tracing, metrics and storage.
func infraModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// domainModules wires every settlement service on top of infraModules.
func domainModules() fx.Option {
	return fx.Options(
		ratelimit.Module,
		stripe.Module,
		pricing.Module,
		artist.Module,
		affiliate.Module,
		event.Module,
		ticket.Module,
		tip.Module,
		payment.Module,
		payout.Module,
	)
}

// RegisterSnowflake builds the id generator. Each replica needs its own
// SNOWFLAKE_NODE_ID in [0, 1023].
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := strings.TrimSpace(os.Getenv("SNOWFLAKE_NODE_ID")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SNOWFLAKE_NODE_ID: %w", err)
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
