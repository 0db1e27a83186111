package ws

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connected_clients",
			Help: "Currently open websocket connections",
		},
	)
	gamesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "games_finished_total",
			Help: "Finished games by end reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(connectedClients)
	prometheus.MustRegister(gamesFinished)
}
