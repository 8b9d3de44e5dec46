package logger

import (
	"go.uber.org/zap"
)

// ---- HTTP ----

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// ---- Dominio ----

// UserID identifica al usuario de la app (uid del identity provider).
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Provider es el ProviderKind ("github", "jira").
func Provider(v string) zap.Field { return zap.String("provider", v) }

// TokenState es el resultado de la evaluación del guard (FRESH/STALE/UNRECOVERABLE).
func TokenState(v string) zap.Field { return zap.String("token_state", v) }

// TokenPreview nunca debe recibir un token completo.
func TokenPreview(v string) zap.Field { return zap.String("token_preview", v) }

// ProviderStatus es el status HTTP devuelto por el proveedor OAuth/API.
func ProviderStatus(v int) zap.Field { return zap.Int("provider_status", v) }

// ---- Sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// ---- Genéricos ----

func Count(v int) zap.Field             { return zap.Int("count", v) }
func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field   { return zap.Any(key, v) }
