package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes crea un campo para los bytes de respuesta.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - DELEGACIÓN
// =================================================================================

// Provider crea un campo para el nombre del identity provider externo.
func Provider(v string) zap.Field {
	return zap.String("provider", v)
}

// ServiceID crea un campo para el service al que se delega la autenticación.
func ServiceID(v string) zap.Field {
	return zap.String("service_id", v)
}

// SessionID crea un campo para el ID de sesión (nunca loguear el valor crudo).
func SessionID(v string) zap.Field {
	return zap.String("session_id", v)
}

// FailureKind crea un campo para la clasificación de un fallo de delegación.
func FailureKind(v string) zap.Field {
	return zap.String("failure_kind", v)
}

// FlowState crea un campo para el estado actual de la máquina de estados.
func FlowState(v string) zap.Field {
	return zap.String("flow_state", v)
}

// Subject crea un campo para el subject del principal autenticado.
func Subject(v string) zap.Field {
	return zap.String("subject", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - GENÉRICOS
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (handler, service, store).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Key crea un campo genérico para una clave.
func Key(v string) zap.Field {
	return zap.String("key", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
