package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del ciclo de vida de tokens. Viven en un paquete propio para que
// guard, oauth y providerapi las usen sin depender de la capa HTTP.

var (
	// TokenEvaluations cuenta las evaluaciones del guard por estado resultante.
	TokenEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_token_evaluations_total",
		Help: "Evaluaciones del refresh guard por proveedor y estado (fresh|stale|unrecoverable)",
	}, []string{"provider", "state"})

	// TokenRefreshes cuenta los refresh efectivamente enviados al proveedor.
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_token_refreshes_total",
		Help: "Refresh de tokens por proveedor y resultado (ok|rejected|unavailable|shared)",
	}, []string{"provider", "result"})

	// CodeExchanges cuenta los intercambios de authorization code.
	CodeExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_code_exchanges_total",
		Help: "Intercambios de authorization code por proveedor y resultado",
	}, []string{"provider", "result"})

	// CorrelationFailures cuenta callbacks que no pudieron vincularse a un usuario.
	CorrelationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_correlation_failures_total",
		Help: "Callbacks rechazados por proveedor y motivo",
	}, []string{"provider", "reason"})

	// ProviderCallDuration mide las llamadas salientes a APIs de proveedores.
	ProviderCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devpulse_provider_call_duration_seconds",
		Help:    "Latencia de llamadas a APIs de proveedores",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"provider", "op", "status"})
)

// Register registra las métricas en reg (o el default si es nil). Tolera doble registro.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		TokenEvaluations, TokenRefreshes, CodeExchanges, CorrelationFailures, ProviderCallDuration,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
