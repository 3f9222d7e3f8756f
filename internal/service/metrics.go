package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	autosaveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_autosave_total",
			Help: "Cart auto-saves by target (server, device) and result",
		},
		[]string{"target", "result"},
	)

	reconciliationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_reconciliation_total",
			Help: "Session-start cart reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_orders_total",
			Help: "Order submissions by mode and result",
		},
		[]string{"mode", "result"},
	)

	liveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_sessions_live",
			Help: "Device sessions currently held in memory",
		},
	)
)
