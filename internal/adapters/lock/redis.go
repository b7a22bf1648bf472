package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// unlockLua borra el lock solo si sigue siendo nuestro token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const keyPrefix = "marketkeeper:lock:"

// RedisOptions configura la conexión a Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis implementa ports.MarketLocker con SET NX PX y unlock condicional en Lua,
// para que varias instancias del keeper no resuelvan el mismo mercado a la vez.
type Redis struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewRedis conecta y hace ping a Redis.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("lock.NewRedis: ping %s: %w", opts.Addr, err)
	}
	return &Redis{rdb: rdb, unlockSc: redis.NewScript(unlockLua)}, nil
}

// Acquire devuelve domain.ErrLockHeld si otra instancia tiene el lock.
// unlock puede llamarse varias veces.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := keyPrefix + key

	ok, err := r.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock.Acquire %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Contexto propio: el del caller puede estar ya cancelado.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.unlockSc.Run(ctx, r.rdb, []string{lk}, token).Err()
		})
	}, nil
}

// Close cierra la conexión.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
