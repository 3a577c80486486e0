package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register is called by init() in each metrics file to enqueue collectors.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister registers the ledger, billing and refund collectors with the
// default registry served at /metrics. Only the first call registers.
func MustRegister() {
	once.Do(func() { MustRegisterWith(prometheus.DefaultRegisterer) })
}

// MustRegisterWith registers every collector with r.
func MustRegisterWith(r prometheus.Registerer) {
	if len(collectors) > 0 {
		r.MustRegister(collectors...)
	}
}

// norm lowercases label values such as transaction kinds and processor names.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
