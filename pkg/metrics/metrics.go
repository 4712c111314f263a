package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FieldChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contentd", Name: "field_changes_total", Help: "Field rows created, updated or deleted by reconciliation."},
		[]string{"op"},
	)
	TaxonomySyncs = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "contentd", Name: "taxonomy_sync_total", Help: "Taxonomy keys re-synchronized on save."},
	)
	RelationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "contentd", Name: "relations_dropped_total", Help: "Submitted relation targets skipped because they do not resolve."},
	)
	Queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contentd", Name: "queries_total", Help: "Content queries by result kind."},
		[]string{"result"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contentd", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contentd", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(FieldChanges)
	reg.MustRegister(TaxonomySyncs)
	reg.MustRegister(RelationsDropped)
	reg.MustRegister(Queries)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
