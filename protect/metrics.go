package protect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// loginsTotal counts login calls by result (ok, rejected, error)
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkchime_protect_logins_total",
			Help: "Login calls against the NVR by result",
		},
		[]string{"result"},
	)

	// requestsTotal counts authenticated requests by HTTP method and result
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkchime_protect_requests_total",
			Help: "Authenticated NVR requests by method and result",
		},
		[]string{"method", "result"},
	)

	backoffsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hkchime_protect_backoffs_total",
			Help: "Backoff sleeps before a login",
		},
	)

	// retriesExhaustedTotal counts operations that gave up
	retriesExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hkchime_protect_retries_exhausted_total",
			Help: "Chime operations that failed after the last attempt",
		},
		[]string{"operation"},
	)
)
