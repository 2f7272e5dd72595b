// Package pmbridge exposes a supervisor-style lifecycle API (list, status,
// create, start, stop, remove) over processes owned by an external pm2
// daemon. pm2 is only reachable through its CLI; pmbridge keeps a cached view
// of one named group of children and reconciles it against pm2's full
// listing, which is authoritative.
package pmbridge

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/pmbridge/internal/config"
	"github.com/loykin/pmbridge/internal/group"
	"github.com/loykin/pmbridge/internal/history"
	"github.com/loykin/pmbridge/internal/history/factory"
	"github.com/loykin/pmbridge/internal/metrics"
	"github.com/loykin/pmbridge/internal/pm2"
	iapi "github.com/loykin/pmbridge/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Record = pm2.Record

type Status = pm2.Status

type Runner = pm2.Runner

type Executor = pm2.Executor

type GroupConfig = group.Config

type SubProcess = group.SubProcess

type Fields = group.Fields

type ChildData = group.ChildData

type AlertFunc = group.AlertFunc

type HistorySink = history.Sink

type Config = cfg.Config

const (
	StatusRunning  = pm2.StatusRunning
	StatusStopped  = pm2.StatusStopped
	StatusStarting = pm2.StatusStarting
)

// TranslateStatus maps a raw pm2 status string into the normalized vocabulary.
func TranslateStatus(native string) Status { return pm2.TranslateStatus(native) }

// NewExecutor builds a pm2 CLI executor with the default os/exec runner.
func NewExecutor(bin string, timeout time.Duration, logger *slog.Logger) *Executor {
	return pm2.NewExecutor(bin, timeout, nil, logger)
}

// NewSubProcess builds a SubProcess from a name and a space-separated command line.
func NewSubProcess(name, command string) SubProcess { return group.NewSubProcess(name, command) }

// Group is a thin facade over internal/group.Group.
// It provides a stable public API for embedding.

type Group struct{ inner *group.Group }

// NewGroup validates the config, performs the initial resync and returns the
// group facade.
func NewGroup(gc GroupConfig, exec *Executor) (*Group, error) {
	inner, err := group.New(gc, exec)
	if err != nil {
		return nil, err
	}
	return &Group{inner: inner}, nil
}

func (g *Group) Name() string                                { return g.inner.Name() }
func (g *Group) Resync()                                     { g.inner.Resync() }
func (g *Group) List() map[string]Status                     { return g.inner.List() }
func (g *Group) Status(name string, forceUpdate bool) []Status {
	return g.inner.Status(name, forceUpdate)
}
func (g *Group) Create(name string, command []string) bool { return g.inner.Create(name, command) }
func (g *Group) CreateNewProcess(p SubProcess) bool        { return g.inner.CreateNewProcess(p) }
func (g *Group) Start(name string) bool                    { return g.inner.Start(name) }
func (g *Group) Stop(name string) bool                     { return g.inner.Stop(name) }
func (g *Group) Remove(name string) bool                   { return g.inner.Remove(name) }
func (g *Group) AlertMail(message string)                  { g.inner.AlertMail(message) }
func (g *Group) ChildrenData(forceRefresh bool, f Fields) []ChildData {
	return g.inner.ChildrenData(forceRefresh, f)
}
func (g *Group) ProcessInformation(fullname string) (Record, bool) {
	return g.inner.ProcessInformation(fullname)
}
func (g *Group) PM2Status(fullname string) (string, bool) { return g.inner.PM2Status(fullname) }

// LoadConfig parses a TOML daemon config file.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySink builds an audit sink from a DSN (sqlite, postgres,
// clickhouse, opensearch).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts an HTTP server exposing the group API.
func NewHTTPServer(addr, basePath string, g *Group) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, g.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
