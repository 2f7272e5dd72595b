package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loykin/pmbridge/internal/history"
	"github.com/loykin/pmbridge/internal/metrics"
	"github.com/loykin/pmbridge/internal/pm2"
)

// AlertFunc delivers alert-worthy messages to an external channel (mail,
// chat, pager). A failing callback is logged and never aborts the operation
// that raised the alert.
type AlertFunc func(message string) error

// Config carries the construction parameters for a Group.
type Config struct {
	// Name is the group identity; every child is addressed as "<Name>:<child>".
	Name string
	// Interpreter is passed verbatim to pm2's --interpreter flag on create.
	Interpreter string
	// WorkDir is prefixed to the program path on create.
	WorkDir string
	// Alert is invoked with the composed message on alert-worthy events.
	Alert AlertFunc
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
	// Sinks receive audit events for lifecycle operations.
	Sinks []history.Sink
}

// Group owns the set of pm2 processes namespaced under "<name>:". The
// children map is a cache of pm2's ground truth; the full pm2 listing is
// authoritative whenever a resync happens. The group is the sole writer of
// the cache and guards it with a mutex so concurrent callers are safe.
type Group struct {
	mu          sync.Mutex
	name        string
	interpreter string
	workdir     string
	alert       AlertFunc
	logger      *slog.Logger
	exec        *pm2.Executor
	sinks       []history.Sink
	children    map[string]pm2.Record
}

// New validates cfg, builds the group and performs an initial resync so the
// cache reflects processes already running under the group prefix. A
// misconfigured group cannot safely run any command, so validation failures
// are hard errors.
func New(cfg Config, exec *pm2.Executor) (*Group, error) {
	if cfg.Name == "" {
		return nil, errors.New("group: name is required")
	}
	if cfg.Interpreter == "" {
		return nil, errors.New("group: interpreter path is required")
	}
	if cfg.WorkDir == "" {
		return nil, errors.New("group: working directory is required")
	}
	if exec == nil {
		return nil, errors.New("group: executor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Group{
		name:        cfg.Name,
		interpreter: cfg.Interpreter,
		workdir:     cfg.WorkDir,
		alert:       cfg.Alert,
		logger:      logger.With("group", cfg.Name),
		exec:        exec,
		sinks:       append([]history.Sink(nil), cfg.Sinks...),
		children:    make(map[string]pm2.Record),
	}
	g.Resync()
	return g, nil
}

func (g *Group) Name() string { return g.name }

func (g *Group) fullname(name string) string { return g.name + ":" + name }

// Resync replaces the children cache wholesale from a fresh pm2 listing.
// Children absent from the listing are dropped: externally removed processes
// must stop appearing as running. If the listing itself fails, the cache
// ends up empty; callers must treat that as "nothing confirmed", not
// "nothing running".
func (g *Group) Resync() {
	recs := g.exec.ListAll()
	prefix := g.name + ":"
	now := make(map[string]pm2.Record)
	for _, r := range recs {
		if !strings.HasPrefix(r.Name, prefix) {
			continue
		}
		// The original creation arguments are not recoverable from the
		// listing, so absorbed children restart through pm2's own restart.
		r.Instruction = g.exec.RestartInstruction(r.Name)
		now[r.Name] = r
	}
	g.mu.Lock()
	g.children = now
	n := len(now)
	g.mu.Unlock()
	metrics.IncResync(g.name)
	metrics.SetChildren(g.name, n)
}

// List refreshes the cache from pm2 and returns short child name -> status.
// The view reflects external truth at the moment of the call, at the cost of
// one full pm2 round-trip.
func (g *Group) List() map[string]pm2.Status {
	g.Resync()
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]pm2.Status, len(g.children))
	for full, rec := range g.children {
		parts := strings.Split(full, ":")
		out[parts[len(parts)-1]] = rec.Status
	}
	return out
}

// Status reports the status of one child as a single-element slice. An
// unknown name reads as STOPPED; absence and confirmed-stopped are
// deliberately indistinguishable here.
func (g *Group) Status(name string, forceUpdate bool) []pm2.Status {
	if forceUpdate {
		g.Resync()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.children[g.fullname(name)]
	if !ok {
		return []pm2.Status{pm2.StatusStopped}
	}
	return []pm2.Status{rec.Status}
}

// Start launches a known child via its cached instruction. The status moves
// to STARTING before the command runs and stays there if the command fails;
// only a confirmed success moves it to RUNNING.
func (g *Group) Start(name string) bool {
	full := g.fullname(name)
	g.logger.Debug("starting child", "name", full)

	g.mu.Lock()
	rec, ok := g.children[full]
	if !ok {
		g.mu.Unlock()
		g.logger.Error("process does not exist", "name", full)
		return false
	}
	rec.Status = pm2.StatusStarting
	g.children[full] = rec
	instruction := rec.Instruction
	g.mu.Unlock()

	if !g.exec.Do(instruction) {
		g.record(history.OpStart, full, pm2.StatusStarting, false)
		return false
	}

	g.mu.Lock()
	if rec, ok := g.children[full]; ok {
		rec.Status = pm2.StatusRunning
		g.children[full] = rec
	}
	g.mu.Unlock()
	metrics.IncStart(g.name)
	g.record(history.OpStart, full, pm2.StatusRunning, true)
	return true
}

// Stop stops a known child. Unknown names raise an alert and never reach
// pm2. On failure the cached status is left unchanged.
func (g *Group) Stop(name string) bool {
	full := g.fullname(name)
	g.mu.Lock()
	_, ok := g.children[full]
	g.mu.Unlock()
	if !ok {
		g.AlertMail(fmt.Sprintf("The process %s is not a child. It will not be stopped", full))
		return false
	}
	if !g.exec.Stop(full) {
		g.record(history.OpStop, full, "", false)
		return false
	}
	g.mu.Lock()
	if rec, ok := g.children[full]; ok {
		rec.Status = pm2.StatusStopped
		g.children[full] = rec
	}
	g.mu.Unlock()
	metrics.IncStop(g.name)
	g.record(history.OpStop, full, pm2.StatusStopped, true)
	return true
}

// Remove deletes a child from pm2 and, only after pm2 confirms, from the
// local cache. Unknown names raise an alert and never reach pm2.
func (g *Group) Remove(name string) bool {
	full := g.fullname(name)
	g.mu.Lock()
	_, ok := g.children[full]
	g.mu.Unlock()
	if !ok {
		g.AlertMail(fmt.Sprintf("The process %s is not a child. It will not be removed", full))
		return false
	}
	if !g.exec.Remove(full) {
		g.record(history.OpRemove, full, "", false)
		return false
	}
	g.mu.Lock()
	delete(g.children, full)
	n := len(g.children)
	g.mu.Unlock()
	metrics.IncRemove(g.name)
	metrics.SetChildren(g.name, n)
	g.record(history.OpRemove, full, "", true)
	return true
}

// Create registers a child with a freshly built start instruction and then
// starts it. Re-creating an existing child leaves its stored instruction
// untouched, so Create is idempotent up to the final Start call, whose result
// it returns.
func (g *Group) Create(name string, command []string) bool {
	full := g.fullname(name)
	g.logger.Debug("adding child", "name", full, "command", strings.Join(command, " "))
	if len(command) == 0 {
		g.logger.Error("create requires a non-empty command", "name", full)
		return false
	}
	instruction := g.exec.StartInstruction(g.workdir, command[0], g.interpreter, full, command[1:])
	g.mu.Lock()
	if _, ok := g.children[full]; !ok {
		g.children[full] = pm2.Record{
			Name:        full,
			Status:      pm2.StatusStopped,
			Instruction: instruction,
		}
	} else {
		g.logger.Debug("child already exists", "name", full)
	}
	g.mu.Unlock()
	g.record(history.OpCreate, full, pm2.StatusStopped, true)
	return g.Start(name)
}

// SubProcess pairs a child name with its launch command line. The command
// string is split on spaces; arguments with embedded whitespace are
// unsupported, matching the instruction templates.
type SubProcess struct {
	Name     string
	Command  string
	Commands []string
}

func NewSubProcess(name, command string) SubProcess {
	sp := SubProcess{Name: name, Command: command}
	if command != "" {
		sp.Commands = strings.Split(command, " ")
	}
	return sp
}

// CreateNewProcess registers and starts the given SubProcess.
func (g *Group) CreateNewProcess(p SubProcess) bool {
	if len(p.Commands) == 0 {
		g.logger.Error("subprocess has no command", "name", p.Name)
		return false
	}
	return g.Create(p.Name, p.Commands)
}

// AlertMail logs a group-prefixed alert at error severity and forwards it to
// the configured callback. Callback failures are logged, never propagated.
func (g *Group) AlertMail(message string) {
	alert := fmt.Sprintf("[GROUP %s] %s", g.name, message)
	g.logger.Error(alert)
	metrics.IncAlert(g.name)
	if g.alert != nil {
		if err := g.alert(alert); err != nil {
			g.logger.Error("external alert method failed", "error", err)
		}
	}
}

// Fields selects optional sections of ChildrenData output. Name and status
// are always included.
type Fields struct {
	Uptime    bool
	PM2Status bool
	System    bool
	Logs      bool
	Execution bool
}

// SystemInfo carries pid and memory for one child.
type SystemInfo struct {
	PID    int   `json:"pid"`
	Memory int64 `json:"memory"`
}

// ChildData is a partial projection of one child record.
type ChildData struct {
	Name      string         `json:"name"`
	Status    pm2.Status     `json:"status"`
	Uptime    *int64         `json:"uptime,omitempty"`
	PM2Status string         `json:"pm2_status,omitempty"`
	System    *SystemInfo    `json:"system,omitempty"`
	Log       *pm2.LogPaths  `json:"log,omitempty"`
	Execution *pm2.Execution `json:"execution,omitempty"`
}

// ChildrenData projects every child into the requested field subset, sorted
// by name. Pure projection; the only side effect is the optional resync.
func (g *Group) ChildrenData(forceRefresh bool, f Fields) []ChildData {
	if forceRefresh {
		g.Resync()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ChildData, 0, len(g.children))
	for _, rec := range g.children {
		cd := ChildData{Name: rec.Name, Status: rec.Status}
		if f.Uptime {
			u := rec.UptimeSeconds
			cd.Uptime = &u
		}
		if f.PM2Status {
			cd.PM2Status = rec.NativeStatus
		}
		if f.System {
			cd.System = &SystemInfo{PID: rec.PID, Memory: rec.MemoryBytes}
		}
		if f.Logs {
			lp := rec.Log
			cd.Log = &lp
		}
		if f.Execution {
			ex := rec.Execution
			cd.Execution = &ex
		}
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ProcessInformation looks up one process by exact fully qualified name
// against a fresh pm2 listing, independent of group membership. It is a
// diagnostic escape hatch and does not touch the cache.
func (g *Group) ProcessInformation(fullname string) (pm2.Record, bool) {
	for _, rec := range g.exec.ListAll() {
		if rec.Name == fullname {
			return rec, true
		}
	}
	return pm2.Record{}, false
}

// PM2Status returns pm2's raw status string for the process, if pm2 knows it.
func (g *Group) PM2Status(fullname string) (string, bool) {
	rec, ok := g.ProcessInformation(fullname)
	if !ok {
		return "", false
	}
	return rec.NativeStatus, true
}

func (g *Group) record(op history.Op, name string, status pm2.Status, ok bool) {
	if len(g.sinks) == 0 {
		return
	}
	evt := history.Event{
		Op:         op,
		Group:      g.name,
		Name:       name,
		Status:     string(status),
		OK:         ok,
		OccurredAt: time.Now().UTC(),
	}
	ctx := context.Background()
	for _, s := range g.sinks {
		if err := s.Send(ctx, evt); err != nil {
			g.logger.Warn("history sink send failed", "error", err)
		}
	}
}
