package session

import (
	"testing"

	"github.com/matheus3301/pchat/internal/config"
)

func TestResolveWithPrecedence(t *testing.T) {
	withDefault := &config.Config{DefaultSession: "work"}

	tests := []struct {
		name string
		flag string
		env  string
		cfg  *config.Config
		want string
	}{
		{"flag wins", "alice", "bob", withDefault, "alice"},
		{"env over config", "", "bob", withDefault, "bob"},
		{"blank env ignored", "", "  ", withDefault, "work"},
		{"config default", "", "", withDefault, "work"},
		{"no config", "", "", nil, DefaultSessionName},
		{"empty config default", "", "", &config.Config{}, DefaultSessionName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvSession, tt.env)
			if got := ResolveWith(tt.flag, tt.cfg); got != tt.want {
				t.Errorf("ResolveWith(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}
