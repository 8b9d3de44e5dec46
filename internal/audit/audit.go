// Package audit registra el ciclo de vida de las conexiones OAuth como eventos
// estructurados en el logger "audit". Nunca recibe tokens.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
)

// Event identifica qué le pasó a una conexión.
type Event string

const (
	Connected      Event = "connection.connected"
	Denied         Event = "connection.denied"
	Refreshed      Event = "connection.refreshed"
	NeedsReconnect Event = "connection.needs_reconnect"
	Disconnected   Event = "connection.disconnected"
)

// Log escribe el evento con el logger del contexto (request_id incluido).
func Log(ctx context.Context, ev Event, uid string, kind types.ProviderKind, fields ...zap.Field) {
	base := []zap.Field{
		logger.String("event", string(ev)),
		logger.Provider(string(kind)),
	}
	if uid != "" {
		base = append(base, logger.UserID(uid))
	}
	logger.From(ctx).Named("audit").Info(string(ev), append(base, fields...)...)
}
