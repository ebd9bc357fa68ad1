package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ScansTotal counts processed scans by outcome: recorded, invalid_token,
// user_not_found, inactive_user, conflict, storage_error.
var ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "qrattend",
	Name:      "scans_total",
	Help:      "Processed QR scans by outcome.",
}, []string{"outcome"})

// RecordsAppended counts successfully appended attendance events by kind.
var RecordsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "qrattend",
	Name:      "records_appended_total",
	Help:      "Attendance events appended to the log by kind.",
}, []string{"kind"})
