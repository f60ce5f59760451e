package wampclient

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frol/wampclient/wamp"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
url = "ws://localhost:8000/ws"
realm = "com.demo"
serialization = "msgpack"
uri_policy = "strict"
roles = ["caller", "callee"]
authid = "joe"
authmethods = ["ticket"]
ticket = "secret"

[connection]
idle_timeout = "30s"
max_msg_size = 65536
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8000/ws", cfg.URL)
	assert.Equal(t, "com.demo", cfg.Realm)
	assert.Equal(t, wamp.MSGPACK, cfg.Serialization)
	assert.Equal(t, wamp.Strict, cfg.URIPolicy)
	assert.Equal(t, []string{RoleCaller, RoleCallee}, cfg.Roles)
	assert.Equal(t, "joe", cfg.AuthID)
	assert.Equal(t, []string{"ticket"}, cfg.AuthMethods)
	assert.Equal(t, "secret", cfg.Ticket)
	assert.Equal(t, 30*time.Second, cfg.Connection.IdleTimeout)
	assert.Equal(t, int64(65536), cfg.Connection.MaxMsgSize)
	// defaults survive for keys the file leaves out
	assert.Equal(t, 10*time.Second, cfg.Connection.WriteTimeout)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", `realm = "a"` + "\nbogus = 1\n"},
		{"unknown serialization", `serialization = "xml"`},
		{"unknown role", `roles = ["broker"]`},
		{"no roles", `roles = []`},
		{"strict realm", "uri_policy = \"strict\"\nrealm = \"Bad Realm\"\n"},
		{"empty realm", `realm = ""`},
		{"syntax", `realm = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
