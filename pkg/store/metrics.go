package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alxie_store_appends_total",
		Help: "Records appended, by backend and kind.",
	}, []string{"backend", "kind"})

	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alxie_store_updates_total",
		Help: "Read-modify-write updates applied, by backend and kind.",
	}, []string{"backend", "kind"})

	notifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alxie_store_notifications_total",
		Help: "Subscription callbacks delivered, by backend and kind.",
	}, []string{"backend", "kind"})

	subscribersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alxie_store_subscribers",
		Help: "Active subscriptions, by backend and kind.",
	}, []string{"backend", "kind"})
)
