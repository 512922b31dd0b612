package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestAppContext_ForModule(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := NewAppContext(logger, "/data")
	child := ctx.ForModule("store.sqlite")
	child.Logger.Info("hello")

	if !bytes.Contains(buf.Bytes(), []byte("store.sqlite")) {
		t.Errorf("expected child logger to contain module ID, got: %s", buf.String())
	}
	if child.DataDir != "/data" {
		t.Errorf("DataDir = %q, want /data", child.DataDir)
	}
}

func TestAppContext_ServicesShared(t *testing.T) {
	root := NewAppContext(nil, "/data")
	a := root.ForModule("store.sqlite")
	b := root.ForModule("engine.reply")

	a.RegisterService("store.generations", 42)

	got, ok := ServiceAs[int](b, "store.generations")
	if !ok || got != 42 {
		t.Fatalf("ServiceAs = %d, %v; want 42, true", got, ok)
	}
	if _, ok := ServiceAs[string](b, "store.generations"); ok {
		t.Error("ServiceAs should fail on type mismatch")
	}
	if _, ok := b.Service("missing"); ok {
		t.Error("Service should report missing names")
	}
}

func TestAppContext_LoadModule(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []string
	RegisterModule(&stubModule{id: "test.loadmod", calls: &calls})

	mod, err := NewAppContext(nil, "/data").LoadModule("test.loadmod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mod == nil {
		t.Fatal("expected non-nil module")
	}
	want := []string{"provision", "validate"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("lifecycle calls = %v, want %v", calls, want)
	}
}

func TestAppContext_LoadModule_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  *stubModule
		id   string
		cfg  string
	}{
		{name: "unknown id", id: "does.not.exist"},
		{name: "provision", mod: &stubModule{id: "test.provfail", provisionErr: errors.New("boom")}, id: "test.provfail"},
		{name: "validate", mod: &stubModule{id: "test.valfail", validateErr: errors.New("boom")}, id: "test.valfail"},
		{name: "configure", mod: &stubModule{id: "test.cfgfail", configErr: errors.New("boom")}, id: "test.cfgfail", cfg: "key: val"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(resetRegistry)
			if tt.mod != nil {
				RegisterModule(tt.mod)
			}
			ctx := NewAppContext(nil, "/data")
			if tt.cfg != "" {
				ctx = ctx.WithModuleConfigs(map[string]yaml.Node{tt.id: mustNode(t, tt.cfg)})
			}
			if _, err := ctx.LoadModule(tt.id); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAppContext_LoadModule_WithConfig(t *testing.T) {
	t.Cleanup(resetRegistry)

	var key string
	RegisterModule(&stubModule{id: "test.cfgmod", receivedKey: &key})

	ctx := NewAppContext(nil, "/data").WithModuleConfigs(map[string]yaml.Node{
		"test.cfgmod": mustNode(t, "key: hello"),
	})
	if _, err := ctx.LoadModule("test.cfgmod"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "hello" {
		t.Errorf("receivedKey = %q, want hello", key)
	}
}

func TestAppContext_LoadModule_NoConfig(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []string
	RegisterModule(&stubModule{id: "test.noconfig", calls: &calls})

	if _, err := NewAppContext(nil, "/data").LoadModule("test.noconfig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range calls {
		if c == "configure" {
			t.Error("Configure should not be called when no config is provided")
		}
	}
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []string
	RegisterModule(&stubModule{id: "test.first", calls: &calls})
	RegisterModule(&stubModule{id: "test.second", calls: &calls})

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"test.first", "test.second"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if _, ok := app.Module("test.second"); !ok {
		t.Fatal("Module(test.second) not found")
	}
	calls = nil
	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start:test.first", "start:test.second", "stop:test.second", "stop:test.first"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []string
	RegisterModule(&stubModule{id: "test.ok", calls: &calls})
	RegisterModule(&stubModule{id: "test.bad", calls: &calls, startErr: errors.New("boom")})

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"test.ok", "test.bad"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	calls = nil
	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if len(calls) != 3 || calls[2] != "stop:test.ok" {
		t.Errorf("calls = %v, want test.ok stopped after failure", calls)
	}
}

func mustNode(t *testing.T, src string) yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatal(err)
	}
	return *node.Content[0]
}

// stubModule records lifecycle calls into a shared slice.
type stubModule struct {
	id           ModuleID
	calls        *[]string
	receivedKey  *string
	configErr    error
	provisionErr error
	validateErr  error
	startErr     error
}

func (m *stubModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID: m.id,
		New: func() Module {
			cp := *m
			return &cp
		},
	}
}

func (m *stubModule) record(s string) {
	if m.calls != nil {
		*m.calls = append(*m.calls, s)
	}
}

func (m *stubModule) Configure(node *yaml.Node) error {
	m.record("configure")
	if m.configErr != nil {
		return m.configErr
	}
	if m.receivedKey != nil {
		var parsed struct {
			Key string `yaml:"key"`
		}
		if err := node.Decode(&parsed); err != nil {
			return err
		}
		*m.receivedKey = parsed.Key
	}
	return nil
}

func (m *stubModule) Provision(_ *AppContext) error {
	m.record("provision")
	return m.provisionErr
}

func (m *stubModule) Validate() error {
	m.record("validate")
	return m.validateErr
}

func (m *stubModule) Start() error {
	m.record("start:" + string(m.id))
	return m.startErr
}

func (m *stubModule) Stop(context.Context) error {
	m.record("stop:" + string(m.id))
	return nil
}

// provisionOnly has no Start but holds resources released on Stop.
type provisionOnly struct {
	id      ModuleID
	stopped *bool
}

func (m *provisionOnly) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { cp := *m; return &cp }}
}

func (m *provisionOnly) Stop(context.Context) error {
	*m.stopped = true
	return nil
}

func TestApp_StopReleasesProvisionOnlyModules(t *testing.T) {
	t.Cleanup(resetRegistry)

	var stopped bool
	RegisterModule(&provisionOnly{id: "test.store", stopped: &stopped})

	app := NewApp(NewAppContext(nil, "/data"))
	if err := app.LoadModules([]string{"test.store"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()
	if !stopped {
		t.Error("provision-only module was not stopped")
	}
}

func TestRegistry_LookupAndOrder(t *testing.T) {
	t.Cleanup(resetRegistry)
	RegisterModule(&stubModule{id: "test.b"})
	RegisterModule(&stubModule{id: "test.a"})

	if _, err := Lookup("test.missing"); !errors.Is(err, ErrUnknownModule) {
		t.Errorf("Lookup(missing) = %v, want ErrUnknownModule", err)
	}
	info, err := Lookup("test.a")
	if err != nil || info.ID != "test.a" {
		t.Fatalf("Lookup(test.a) = %+v, %v", info, err)
	}
	mods := Modules()
	if len(mods) != 2 || mods[0].ID != "test.a" || mods[1].ID != "test.b" {
		t.Errorf("Modules() = %v", mods)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	t.Cleanup(resetRegistry)
	RegisterModule(&stubModule{id: "test.dup"})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	RegisterModule(&stubModule{id: "test.dup"})
}
