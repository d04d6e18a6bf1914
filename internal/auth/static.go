package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/vvka-141/redismcp/pkg/redismcp"
)

// StaticProvider serves a fixed username/password pair. Its credentials
// never expire, so the Refresher acquires exactly once and schedules no
// renewal.
type StaticProvider struct {
	username string
	password string
}

func NewStaticProvider(username, password string) *StaticProvider {
	return &StaticProvider{username: username, password: password}
}

func (p *StaticProvider) Acquire(ctx context.Context) (*redismcp.Credential, error) {
	return &redismcp.Credential{
		Username:   p.username,
		Value:      p.password,
		AcquiredAt: time.Now(),
	}, nil
}

func (p *StaticProvider) String() string {
	user := p.username
	if user == "" {
		user = "default"
	}
	return fmt.Sprintf("Static(user=%s)", user)
}
