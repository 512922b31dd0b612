// Package gateway serves the reply engine over HTTP. It binds to loopback
// by default and requires auth for anything else.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/engine"
	"github.com/replypass/replypass/internal/provider"
	"github.com/replypass/replypass/internal/security"
	"github.com/replypass/replypass/internal/telemetry"
	"github.com/replypass/replypass/internal/usage"
	"github.com/replypass/replypass/pkg/reply"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Interface guards.
var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Engine is what the gateway serves. *engine.Engine implements it.
type Engine interface {
	Generate(ctx context.Context, req reply.Request) (reply.Result, error)
	RecordFeedback(ctx context.Context, rec reply.FeedbackRecord) (reply.FeedbackRecord, error)
	Generation(ctx context.Context, id string) (reply.Generation, error)
	Usage(ctx context.Context, userID string) (usage.Decision, error)
	Health() []provider.HealthReport
}

// Gateway is the gateway.http module.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	engine   Engine
	gatherer prometheus.Gatherer
	metrics  *httpMetrics
	audit    *security.AuditLogger
	auditOut *os.File
	stop     chan struct{}
	pruned   chan struct{}
	users    *security.RateLimiter
	failures *security.RateLimiter
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.config.defaults()
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves the engine and the metrics
// registry, then starts serving.
func (g *Gateway) Start() error {
	eng, ok := core.ServiceAs[Engine](g.appCtx, engine.ServiceName)
	if !ok {
		return errors.New("gateway: no engine module loaded")
	}

	reg, ok := core.ServiceAs[*prometheus.Registry](g.appCtx, telemetry.ServiceMetrics)
	if !ok {
		reg = telemetry.NewRegistry()
	}

	var redactor *security.Redactor
	if r, ok := core.ServiceAs[*security.Redactor](g.appCtx, security.ServiceRedactor); ok {
		redactor = r
	}
	auditCfg := security.AuditLoggerConfig{Redactor: redactor}
	if path := g.config.AuditLog; path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(g.appCtx.DataDir, path)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("gateway: opening audit log: %w", err)
		}
		g.auditOut, auditCfg.Writer = f, f
	}

	if err := g.init(eng, reg, security.NewAuditLogger(auditCfg)); err != nil {
		return err
	}

	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	g.stop, g.pruned = make(chan struct{}), make(chan struct{})
	go g.pruneLoop(g.stop)

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String(), "auth", g.config.Auth.IsConfigured())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// init wires the request-independent state shared by Start and tests.
func (g *Gateway) init(eng Engine, reg *prometheus.Registry, audit *security.AuditLogger) error {
	m, err := newHTTPMetrics(reg)
	if err != nil {
		return err
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	g.engine, g.gatherer, g.metrics, g.audit = eng, reg, m, audit
	g.users = security.NewRateLimiter(g.config.RateLimits.RequestsPerMinute, time.Minute)
	g.failures = security.NewRateLimiter(g.config.RateLimits.AuthFailuresPerMinute, time.Minute)
	g.startedAt = time.Now()
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	close(g.stop)
	<-g.pruned
	err := g.server.Shutdown(shutdownCtx)
	if g.auditOut != nil {
		err = errors.Join(err, g.auditOut.Close())
	}
	return err
}

// PruneLimiters drops idle rate-limiter keys and reports how many remain.
func (g *Gateway) PruneLimiters() int {
	return g.users.Prune() + g.failures.Prune()
}

func (g *Gateway) pruneLoop(stop <-chan struct{}) {
	defer close(g.pruned)
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			g.PruneLimiters()
		}
	}
}
