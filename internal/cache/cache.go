// Package cache provee abstracciones para caching con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción en cluster)
//
// Además de Get/Set/Delete expone TakeOnce: obtener-y-eliminar atómico, la
// primitiva sobre la que se apoya el single-use del correlation state.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. El segundo retorno indica si la key existía.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set guarda un valor con TTL. Si ttl es 0, usa el default del backend.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// TakeOnce obtiene y elimina la key en una sola operación atómica.
	// Con llamadas concurrentes sobre la misma key, a lo sumo un caller
	// recibe el valor; el resto recibe ok=false.
	TakeOnce(ctx context.Context, key string) ([]byte, bool)

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Kind       string // "memory" | "redis"
	RedisAddr  string
	RedisDB    int
	Prefix     string // prefijo para todas las keys
	DefaultTTL time.Duration
}

// New crea un cliente de cache según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("cache: redis sin addr")
		}
		return newRedis(cfg), nil
	case "memory", "":
		return newMemory(cfg), nil
	default:
		return nil, fmt.Errorf("cache: kind desconocido: %q", cfg.Kind)
	}
}
