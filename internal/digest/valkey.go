package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// ValkeyLocker is a Locker shared by every digest worker talking to the
// same Valkey deployment.
type ValkeyLocker struct {
	client valkey.Client
	prefix string
}

// NewValkeyLocker creates a locker over an existing client.
func NewValkeyLocker(client valkey.Client, prefix string) *ValkeyLocker {
	return &ValkeyLocker{client: client, prefix: prefix}
}

// DialValkey connects to Valkey at addr.
func DialValkey(addr, password string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
		Password:    password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return client, nil
}

// TryLock implements Locker with SET NX PX and a token-checked release.
func (l *ValkeyLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	cmd := l.client.B().Set().Key(fullKey).Value(token).Nx().PxMilliseconds(ttl.Milliseconds()).Build()
	err := l.client.Do(ctx, cmd).Error()
	if valkey.IsValkeyNil(err) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", fullKey, err)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Exec(ctx, l.client, []string{fullKey}, []string{token}).Error(); err != nil {
			return fmt.Errorf("release lock %s: %w", fullKey, err)
		}
		return nil
	}, nil
}
