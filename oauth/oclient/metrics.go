package oclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess   = "success"
	outcomeRejected  = "rejected"
	outcomeTransient = "transient"
	outcomeConflict  = "conflict"

	outcomeClientRejected = "client_rejected"
)

var (
	codeExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauthbroker_code_exchanges_total",
			Help: "Authorization code exchanges by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	tokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauthbroker_token_refreshes_total",
			Help: "Refresh token grants by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	refreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oauthbroker_token_refresh_duration_seconds",
			Help:    "Latency of refresh token grants",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	cachedTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauthbroker_cached_tokens_total",
			Help: "Access tokens served without contacting the provider",
		},
		[]string{"provider"},
	)

	sharedRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauthbroker_shared_refreshes_total",
			Help: "Callers that waited on a refresh already in flight",
		},
		[]string{"provider"},
	)
)
