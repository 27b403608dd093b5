// Package metrics holds the process-wide prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Scans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_scans_total",
		Help: "Total number of URL scans by combined verdict",
	}, []string{"verdict"})
	ProviderFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_provider_failures_total",
		Help: "Total number of provider calls that produced no opinion",
	}, []string{"provider"})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_cache_lookups_total",
		Help: "Total number of verdict cache lookups",
	}, []string{"result"})
	Redirects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_redirects_total",
		Help: "Total number of warning redirects requested",
	}, []string{"trigger"})
	BatchUnsafe = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "phishguard_batch_unsafe_total",
		Help: "Total number of URLs flagged malicious by batch scans",
	})
)

func init() {
	prometheus.MustRegister(Scans, ProviderFailures, CacheLookups, Redirects, BatchUnsafe)
}
