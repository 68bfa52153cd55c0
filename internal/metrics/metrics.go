package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgw_ingested_records_total",
			Help: "Ingested records by data type and result",
		},
		[]string{"data_type", "result"}, // customer|transaction|document , ok|error
	)

	IngestionBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgw_ingestion_batches_total",
			Help: "Ingestion batches by final status",
		},
		[]string{"status"}, // completed|partial|failed
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cgw_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome",
		},
		[]string{"result"}, // delivered|retry|failed
	)
)

var once sync.Once

// MustRegister registers all collectors once per process.
func MustRegister(r prometheus.Registerer) {
	once.Do(func() {
		r.MustRegister(
			IngestedRecordsTotal,
			IngestionBatchesTotal,
			WebhookDeliveriesTotal,
		)
	})
}
