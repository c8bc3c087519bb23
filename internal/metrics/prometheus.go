package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	SessionsCreatedTotal prometheus.Counter
	ConfirmationsTotal   *prometheus.CounterVec
	LoginEventsTotal     prometheus.Counter
	TokensIssuedTotal    prometheus.Counter
	TokenVerifyFailures  *prometheus.CounterVec
)

// InitCustomMetrics initializes and registers the handshake metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qrlogin_sessions_created_total",
		Help: "Total number of login sessions created.",
	})
	ConfirmationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qrlogin_confirmations_total",
		Help: "Total number of mobile confirmations by outcome.",
	}, []string{"outcome"})
	LoginEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qrlogin_login_events_published_total",
		Help: "Total number of login events published to private channels.",
	})
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qrlogin_tokens_issued_total",
		Help: "Total number of credentials issued.",
	})
	TokenVerifyFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qrlogin_token_verify_failures_total",
		Help: "Total number of credential verification failures by reason.",
	}, []string{"reason"})

	for _, c := range []prometheus.Collector{
		SessionsCreatedTotal,
		ConfirmationsTotal,
		LoginEventsTotal,
		TokensIssuedTotal,
		TokenVerifyFailures,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("failed to register metric")
		}
	}
}

// init registers against the default registry so tests and single-binary
// runs work without explicit wiring; cmd/server passes its own registerer.
func init() {
	InitCustomMetrics(prometheus.DefaultRegisterer)
}
