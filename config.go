package wampclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/frol/wampclient/wamp"
)

// ConnectionConfig holds transport level limits.
type ConnectionConfig struct {
	// IdleTimeout closes a connection that received nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration `toml:"idle_timeout"`
	// MaxMsgSize limits the size of a single inbound message. Zero means no
	// limit for websockets and 16MB for rawsocket.
	MaxMsgSize int64 `toml:"max_msg_size"`
	// WriteTimeout bounds a single frame write. Zero disables it.
	WriteTimeout time.Duration `toml:"write_timeout"`
	// DialTimeout bounds connection setup, handshakes included.
	DialTimeout time.Duration `toml:"dial_timeout"`
}

// Config configures a Client.
type Config struct {
	// URL of the router, ws://, wss:// or tcp:// for rawsocket.
	URL string `toml:"url"`
	// Realm to join.
	Realm string `toml:"realm"`
	// Serialization is "json" (default), "msgpack" or "cbor".
	Serialization wamp.Serialization `toml:"serialization"`
	// URIPolicy is "relaxed" (default) or "strict".
	URIPolicy wamp.URIPolicy `toml:"uri_policy"`
	// Roles announced in HELLO.
	Roles []string `toml:"roles"`
	// AuthID and AuthMethods are announced in HELLO when set.
	AuthID      string   `toml:"authid"`
	AuthMethods []string `toml:"authmethods"`
	// Ticket is the credential sent in answer to a ticket CHALLENGE.
	Ticket string `toml:"ticket"`

	Connection ConnectionConfig `toml:"connection"`

	// Auth answers CHALLENGE messages, keyed by auth method. A "ticket"
	// entry answering with Ticket is added when none is given.
	Auth map[string]AuthFunc `toml:"-"`
	// IDs mints request ids. Defaults to a fresh allocator per client.
	IDs *wamp.IDAllocator `toml:"-"`
	// Logger overrides the package logger for this client.
	Logger Logger `toml:"-"`
}

// DefaultConfig returns a configuration announcing every client role and
// speaking JSON.
func DefaultConfig() *Config {
	return &Config{
		Realm:         "realm1",
		Serialization: wamp.JSON,
		URIPolicy:     wamp.Relaxed,
		Roles:         []string{RoleCaller, RoleCallee, RolePublisher, RoleSubscriber},
		Connection: ConnectionConfig{
			WriteTimeout: 10 * time.Second,
			DialTimeout:  10 * time.Second,
		},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("loading config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields a session cannot start without.
func (c *Config) Validate() error {
	if _, err := wamp.ParseURI(c.Realm, c.URIPolicy); err != nil {
		return fmt.Errorf("realm: %w", err)
	}
	for _, r := range c.Roles {
		switch r {
		case RoleCaller, RoleCallee, RolePublisher, RoleSubscriber:
		default:
			return fmt.Errorf("unknown role %q", r)
		}
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("no roles configured")
	}
	return nil
}
