package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus instruments.
type Metrics struct {
	SlotClaims         prometheus.Counter
	ClaimConflicts     prometheus.Counter
	Fights             prometheus.Counter
	IneligiblePairings prometheus.Counter
	TrainsEnded        prometheus.Counter
	TxRetries          prometheus.Counter
	NotifyFailures     prometheus.Counter
	FightDuration      prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SlotClaims: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fighttrain", Name: "slot_claims_total",
			Help: "Slots successfully claimed by join or place.",
		}),
		ClaimConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fighttrain", Name: "slot_claim_conflicts_total",
			Help: "Claims rejected because the slot or competitor was taken.",
		}),
		Fights: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fighttrain", Name: "fights_total",
			Help: "Fights resolved.",
		}),
		IneligiblePairings: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fighttrain", Name: "ineligible_pairings_total",
			Help: "Car fills rejected by the eligibility gate.",
		}),
		TrainsEnded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fighttrain", Name: "trains_ended_total",
			Help: "Trains that declared a winner.",
		}),
		TxRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fighttrain", Name: "tx_retries_total",
			Help: "Store transactions replayed after a serialization conflict.",
		}),
		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fighttrain", Name: "notify_failures_total",
			Help: "Train events that could not be published.",
		}),
		FightDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fighttrain", Name: "fight_resolution_seconds",
			Help:    "Time spent resolving a fight inside its transaction.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}
