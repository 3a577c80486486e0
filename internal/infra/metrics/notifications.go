package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal) }

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications delivered per sink, labeled by status.",
	},
	[]string{"sink", "status"}, // status: 'sent', 'failed'
)

func IncNotification(sink, status string) {
	notificationsTotal.WithLabelValues(norm(sink), norm(status)).Inc()
}
