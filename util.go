package wampclient

import (
	"fmt"
	"sort"

	"github.com/frol/wampclient/wamp"
)

// Roles a client can announce in HELLO.
const (
	RoleCallee     = "callee"
	RoleCaller     = "caller"
	RolePublisher  = "publisher"
	RoleSubscriber = "subscriber"
)

const agent = "wampclient-0.1.0"

func createRolesMap(roles []string) wamp.Dict {
	rolesMap := make(wamp.Dict, len(roles))
	for _, r := range roles {
		rolesMap[r] = wamp.Dict{}
	}
	return rolesMap
}

// helloDetails merges the configured roles and auth settings into the
// caller's details. Caller supplied keys win.
func helloDetails(cfg *Config, details wamp.Dict) wamp.Dict {
	out := wamp.Dict{
		"roles": createRolesMap(cfg.Roles),
		"agent": wamp.String(agent),
	}
	if len(cfg.AuthMethods) > 0 {
		methods := make(wamp.List, len(cfg.AuthMethods))
		for i, m := range cfg.AuthMethods {
			methods[i] = wamp.String(m)
		}
		out["authmethods"] = methods
	}
	if cfg.AuthID != "" {
		out["authid"] = wamp.String(cfg.AuthID)
	}
	for k, v := range details {
		out[k] = v
	}
	return out
}

func formatUnknownMap(m wamp.Dict) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += fmt.Sprintf(" %s=%v", k, wamp.Raw(m[k]))
	}
	return s
}
