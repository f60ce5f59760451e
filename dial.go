package wampclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
)

// Dial connects to cfg.URL, choosing the transport by scheme: ws and wss for
// websockets, tcp for rawsocket.
func Dial(ctx context.Context, cfg *Config, tlscfg *tls.Config) (Transport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("router url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		return DialWebsocket(ctx, cfg.URL, cfg.Serialization, tlscfg, &cfg.Connection)
	case "tcp":
		return DialRawSocket(ctx, u.Host, cfg.Serialization, &cfg.Connection)
	default:
		return nil, fmt.Errorf("unsupported router url scheme: %q", u.Scheme)
	}
}

// Connect dials the router at cfg.URL and returns a client speaking over
// that connection. The client still has to be Run.
func Connect(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	t, err := Dial(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(t, cfg)
	if err != nil {
		t.Close()
		return nil, err
	}
	return c, nil
}
