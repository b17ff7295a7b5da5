package session

import (
	"os"
	"strings"

	"github.com/matheus3301/pchat/internal/config"
)

const DefaultSessionName = "main"

// EnvSession is consulted when no --session flag is given.
const EnvSession = "PCHAT_SESSION"

// Resolve picks the session name. The name keys the lock, the health socket
// and the log file under ~/.pchat, so two clients running at once need
// different names.
//
// Precedence: flagOverride, $PCHAT_SESSION, default_session in config.toml,
// then "main".
func Resolve(flagOverride string) string {
	cfg, err := config.Load(ConfigPath())
	if err != nil {
		cfg = nil
	}
	return ResolveWith(flagOverride, cfg)
}

// ResolveWith is Resolve against an already loaded config. cfg may be nil.
func ResolveWith(flagOverride string, cfg *config.Config) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := strings.TrimSpace(os.Getenv(EnvSession)); env != "" {
		return env
	}
	if cfg != nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
