package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/replypass/replypass/internal/core"
	"gopkg.in/yaml.v3"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

func TestMain(m *testing.M) {
	for _, id := range []string{"store.stub", "store.other", "provider.stub", "engine.stub", "gateway.stub", "usage.stub"} {
		core.RegisterModule(&stubModule{id: id})
	}
	os.Exit(m.Run())
}

func modules(ids ...string) map[string]yaml.Node {
	m := make(map[string]yaml.Node, len(ids))
	for _, id := range ids {
		m[id] = yaml.Node{}
	}
	return m
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{
			name: "valid full topology",
			cfg:  Config{Version: "1", Modules: modules("store.stub", "provider.stub", "engine.stub", "gateway.stub", "usage.stub")},
		},
		{
			name: "store only",
			cfg:  Config{Version: "1", Modules: modules("store.stub")},
		},
		{
			name:    "missing version",
			cfg:     Config{Modules: modules("store.stub")},
			wantErr: []string{"version"},
		},
		{
			name:    "unsupported version",
			cfg:     Config{Version: "99", Modules: modules("store.stub")},
			wantErr: []string{"unsupported"},
		},
		{
			name:    "empty modules",
			cfg:     Config{Version: "1", Modules: modules()},
			wantErr: []string{"at least one"},
		},
		{
			name:    "unknown modules",
			cfg:     Config{Version: "1", Modules: modules("bad.one", "bad.two")},
			wantErr: []string{"bad.one", "bad.two"},
		},
		{
			name:    "two stores",
			cfg:     Config{Version: "1", Modules: modules("store.stub", "store.other")},
			wantErr: []string{"store modules"},
		},
		{
			name:    "engine without provider or store",
			cfg:     Config{Version: "1", Modules: modules("engine.stub")},
			wantErr: []string{"requires a store", "at least one provider"},
		},
		{
			name:    "gateway without engine",
			cfg:     Config{Version: "1", Modules: modules("store.stub", "gateway.stub")},
			wantErr: []string{"requires the engine"},
		},
		{
			name:    "bad log settings",
			cfg:     Config{Version: "1", Modules: modules("store.stub"), Log: LogConfig{Level: "loud", Format: "xml"}},
			wantErr: []string{"log level", "log.format"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tt.cfg)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %v", tt.wantErr)
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should mention %q", err, want)
				}
			}
		})
	}
}

func TestResolve_NamespaceOrder(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: modules("gateway.http", "engine.reply", "provider.openai", "store.sqlite", "provider.gemini", "telemetry.otel", "usage.redis", "custom.thing")}
	got := Resolve(cfg)
	want := []string{"telemetry.otel", "store.sqlite", "usage.redis", "provider.gemini", "provider.openai", "engine.reply", "gateway.http", "custom.thing"}
	if len(got) != len(want) {
		t.Fatalf("Resolve() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Resolve()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
