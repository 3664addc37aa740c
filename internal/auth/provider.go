package auth

import (
	"context"
	"os"
)

// StaticProvider hands out a fixed token. Useful for tests and for callers
// that manage credential refresh themselves.
type StaticProvider struct {
	token string
}

func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

func (p *StaticProvider) Token(ctx context.Context) (string, error) {
	return p.token, nil
}

// EnvProvider reads the token from an environment variable on every call, so
// a credential that appears after startup is picked up on the next poll tick
// without restarting the subscription.
type EnvProvider struct {
	key string
}

func NewEnvProvider(key string) *EnvProvider {
	return &EnvProvider{key: key}
}

func (p *EnvProvider) Token(ctx context.Context) (string, error) {
	return os.Getenv(p.key), nil
}
