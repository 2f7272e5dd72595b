package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/loykin/pmbridge/internal/history"
	"github.com/loykin/pmbridge/internal/pm2"
)

// fakeRunner answers jlist invocations with a canned listing and every other
// command with cmdCode. All argvs are recorded.
type fakeRunner struct {
	calls     [][]string
	jlistOut  []byte
	jlistCode int
	cmdCode   int
}

func (f *fakeRunner) Run(_ context.Context, argv []string) ([]byte, int, error) {
	f.calls = append(f.calls, append([]string(nil), argv...))
	if len(argv) > 1 && argv[1] == "jlist" {
		out := f.jlistOut
		if out == nil {
			out = []byte("[]")
		}
		return out, f.jlistCode, nil
	}
	return nil, f.cmdCode, nil
}

// commandCalls returns every recorded invocation that is not a listing.
func (f *fakeRunner) commandCalls() [][]string {
	var out [][]string
	for _, c := range f.calls {
		if len(c) > 1 && c[1] == "jlist" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func proc(name, status string) map[string]any {
	return map[string]any{
		"name": name,
		"pid":  4100,
		"pm2_env": map[string]any{
			"status":           status,
			"pm_uptime":        time.Now().Add(-time.Minute).UnixMilli(),
			"pm_out_log_path":  "/var/log/" + name + "-out.log",
			"pm_err_log_path":  "/var/log/" + name + "-err.log",
			"exec_interpreter": "/usr/bin/python3",
			"pm_exec_path":     "/srv/app/main.py",
		},
		"monit": map[string]any{"memory": 2048},
	}
}

func listing(t *testing.T, procs ...map[string]any) []byte {
	t.Helper()
	if procs == nil {
		procs = []map[string]any{}
	}
	b, err := json.Marshal(procs)
	if err != nil {
		t.Fatalf("marshal listing: %v", err)
	}
	return b
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGroup(t *testing.T, fr *fakeRunner, cfg Config) *Group {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "myapp"
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = "/usr/bin/python3"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "/srv/app"
	}
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	exec := pm2.NewExecutor("pm2", time.Second, fr, cfg.Logger)
	g, err := New(cfg, exec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNewValidation(t *testing.T) {
	exec := pm2.NewExecutor("pm2", time.Second, &fakeRunner{}, testLogger())
	cases := []Config{
		{Interpreter: "/usr/bin/python3", WorkDir: "/srv/app"},
		{Name: "myapp", WorkDir: "/srv/app"},
		{Name: "myapp", Interpreter: "/usr/bin/python3"},
	}
	for i, cfg := range cases {
		if _, err := New(cfg, exec); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if _, err := New(Config{Name: "myapp", Interpreter: "x", WorkDir: "y"}, nil); err == nil {
		t.Error("expected error for nil executor")
	}
}

func TestNewAbsorbsExistingChildren(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "online"), proc("other:db", "online"))}
	g := newTestGroup(t, fr, Config{})

	if len(g.children) != 1 {
		t.Fatalf("children = %v, want only the prefixed one", g.children)
	}
	rec, ok := g.children["myapp:web"]
	if !ok {
		t.Fatal("myapp:web not absorbed")
	}
	if rec.Status != pm2.StatusRunning {
		t.Errorf("status = %q", rec.Status)
	}
	if rec.Instruction != "pm2 restart myapp:web" {
		t.Errorf("instruction = %q, want pm2 restart", rec.Instruction)
	}
}

func TestResyncReplacesWholesale(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:a", "online"), proc("myapp:b", "online"))}
	g := newTestGroup(t, fr, Config{})
	if len(g.children) != 2 {
		t.Fatalf("children = %d, want 2", len(g.children))
	}

	// b disappears externally, c appears.
	fr.jlistOut = listing(t, proc("myapp:a", "stopped"), proc("myapp:c", "launching"))
	g.Resync()

	want := map[string]pm2.Status{"myapp:a": pm2.StatusStopped, "myapp:c": pm2.StatusStarting}
	got := make(map[string]pm2.Status, len(g.children))
	for n, r := range g.children {
		got[n] = r.Status
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("children = %v, want %v", got, want)
	}
}

func TestResyncIdempotent(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:a", "online"))}
	g := newTestGroup(t, fr, Config{})
	first := g.List()
	second := g.List()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated listing diverged: %v vs %v", first, second)
	}
}

func TestListUsesShortNames(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "online"), proc("myapp:worker", "stopped"))}
	g := newTestGroup(t, fr, Config{})
	got := g.List()
	want := map[string]pm2.Status{"web": pm2.StatusRunning, "worker": pm2.StatusStopped}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestListingFailureEmptiesCache(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "online"))}
	g := newTestGroup(t, fr, Config{})
	if len(g.children) != 1 {
		t.Fatalf("setup: children = %d", len(g.children))
	}

	fr.jlistCode = 1
	if got := g.List(); len(got) != 0 {
		t.Errorf("List() after listing failure = %v, want empty", got)
	}
	if len(g.children) != 0 {
		t.Errorf("cache not emptied: %v", g.children)
	}
}

func TestStatusUnknownReadsStopped(t *testing.T) {
	g := newTestGroup(t, &fakeRunner{}, Config{})
	got := g.Status("ghost", false)
	if len(got) != 1 || got[0] != pm2.StatusStopped {
		t.Errorf("Status(ghost) = %v, want [STOPPED]", got)
	}
}

func TestStatusForceRefresh(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "online"))}
	g := newTestGroup(t, fr, Config{})

	fr.jlistOut = listing(t, proc("myapp:web", "stopped"))
	if got := g.Status("web", false); got[0] != pm2.StatusRunning {
		t.Errorf("cached status = %v, want RUNNING", got)
	}
	if got := g.Status("web", true); got[0] != pm2.StatusStopped {
		t.Errorf("forced status = %v, want STOPPED", got)
	}
}

func TestCreateBuildsInstructionAndStarts(t *testing.T) {
	fr := &fakeRunner{}
	g := newTestGroup(t, fr, Config{})

	if !g.Create("worker", []string{"python", "job.py", "--flag"}) {
		t.Fatal("Create should succeed when the start command exits 0")
	}

	wantInstr := "pm2 start /srv/app/python --interpreter /usr/bin/python3 --name myapp:worker --log-date-format='YYYY-MM-DD::HH:mm:ss:SSS' -- job.py --flag"
	cmds := fr.commandCalls()
	if len(cmds) != 1 {
		t.Fatalf("command calls = %v, want exactly one start", cmds)
	}
	if got := strings.Join(cmds[0], " "); got != wantInstr {
		t.Errorf("argv:\n got %q\nwant %q", got, wantInstr)
	}
	if rec := g.children["myapp:worker"]; rec.Instruction != wantInstr {
		t.Errorf("stored instruction = %q", rec.Instruction)
	}
	if got := g.Status("worker", false); got[0] != pm2.StatusRunning {
		t.Errorf("status after create = %v, want RUNNING", got)
	}
}

func TestCreateStartFailureStaysStarting(t *testing.T) {
	fr := &fakeRunner{cmdCode: 1}
	g := newTestGroup(t, fr, Config{})

	if g.Create("worker", []string{"python", "job.py"}) {
		t.Fatal("Create should fail when the start command exits non-zero")
	}
	if got := g.Status("worker", false); got[0] != pm2.StatusStarting {
		t.Errorf("status after failed start = %v, want STARTING", got)
	}
}

func TestCreateEmptyCommand(t *testing.T) {
	fr := &fakeRunner{}
	g := newTestGroup(t, fr, Config{})
	if g.Create("worker", nil) {
		t.Fatal("Create with empty command should fail")
	}
	if len(fr.commandCalls()) != 0 {
		t.Errorf("no command should be issued, got %v", fr.commandCalls())
	}
}

func TestCreateExistingKeepsInstruction(t *testing.T) {
	fr := &fakeRunner{}
	g := newTestGroup(t, fr, Config{})
	g.Create("worker", []string{"python", "job.py"})
	first := g.children["myapp:worker"].Instruction

	g.Create("worker", []string{"python", "other.py", "--different"})
	if got := g.children["myapp:worker"].Instruction; got != first {
		t.Errorf("instruction changed on re-create: %q", got)
	}
	cmds := fr.commandCalls()
	if len(cmds) != 2 {
		t.Fatalf("command calls = %d, want 2 starts", len(cmds))
	}
	if got := strings.Join(cmds[1], " "); got != first {
		t.Errorf("second start used %q, want original instruction %q", got, first)
	}
}

func TestStartUnknown(t *testing.T) {
	fr := &fakeRunner{}
	g := newTestGroup(t, fr, Config{})
	if g.Start("ghost") {
		t.Fatal("Start of unknown child should fail")
	}
	if len(fr.commandCalls()) != 0 {
		t.Errorf("no command should be issued, got %v", fr.commandCalls())
	}
}

func TestStartAbsorbedChildUsesRestart(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "stopped"))}
	g := newTestGroup(t, fr, Config{})
	if !g.Start("web") {
		t.Fatal("Start should succeed")
	}
	cmds := fr.commandCalls()
	if len(cmds) != 1 || strings.Join(cmds[0], " ") != "pm2 restart myapp:web" {
		t.Errorf("command calls = %v, want pm2 restart", cmds)
	}
}

func TestStopUnknownAlertsWithoutExecutor(t *testing.T) {
	fr := &fakeRunner{}
	var alerts []string
	g := newTestGroup(t, fr, Config{Alert: func(m string) error {
		alerts = append(alerts, m)
		return nil
	}})

	if g.Stop("ghost") {
		t.Fatal("Stop of unknown child should fail")
	}
	if len(fr.commandCalls()) != 0 {
		t.Errorf("pm2 must not be invoked for unknown child, got %v", fr.commandCalls())
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %v, want exactly one", alerts)
	}
	want := "[GROUP myapp] The process myapp:ghost is not a child. It will not be stopped"
	if alerts[0] != want {
		t.Errorf("alert:\n got %q\nwant %q", alerts[0], want)
	}
}

func TestStopKnown(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "online"))}
	g := newTestGroup(t, fr, Config{})
	if !g.Stop("web") {
		t.Fatal("Stop should succeed")
	}
	if got := g.Status("web", false); got[0] != pm2.StatusStopped {
		t.Errorf("status after stop = %v, want STOPPED", got)
	}
}

func TestStopFailureKeepsStatus(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "online"))}
	g := newTestGroup(t, fr, Config{})
	fr.cmdCode = 1
	if g.Stop("web") {
		t.Fatal("Stop should fail when pm2 reports an error")
	}
	if got := g.Status("web", false); got[0] != pm2.StatusRunning {
		t.Errorf("status after failed stop = %v, want RUNNING", got)
	}
}

func TestRemoveUnknownAlertsWithoutExecutor(t *testing.T) {
	fr := &fakeRunner{}
	var alerts []string
	g := newTestGroup(t, fr, Config{Alert: func(m string) error {
		alerts = append(alerts, m)
		return nil
	}})
	if g.Remove("ghost") {
		t.Fatal("Remove of unknown child should fail")
	}
	if len(fr.commandCalls()) != 0 {
		t.Errorf("pm2 must not be invoked, got %v", fr.commandCalls())
	}
	if len(alerts) != 1 || !strings.Contains(alerts[0], "It will not be removed") {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestRemoveDropsEntryAfterConfirm(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "online"))}
	g := newTestGroup(t, fr, Config{})
	if !g.Remove("web") {
		t.Fatal("Remove should succeed")
	}
	if _, ok := g.children["myapp:web"]; ok {
		t.Error("entry should be dropped after pm2 confirms removal")
	}
	fr.jlistOut = listing(t)
	if got := g.List(); len(got) != 0 {
		t.Errorf("List() after remove = %v, want empty", got)
	}
}

func TestRemoveFailureKeepsEntry(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "online"))}
	g := newTestGroup(t, fr, Config{})
	fr.cmdCode = 1
	if g.Remove("web") {
		t.Fatal("Remove should fail when pm2 reports an error")
	}
	if _, ok := g.children["myapp:web"]; !ok {
		t.Error("entry must survive a failed removal")
	}
}

func TestAlertMailCallbackFailure(t *testing.T) {
	g := newTestGroup(t, &fakeRunner{}, Config{Alert: func(string) error {
		return errors.New("smtp down")
	}})
	// Must not panic or propagate.
	g.AlertMail("something happened")
}

func TestAlertMailWithoutCallback(t *testing.T) {
	g := newTestGroup(t, &fakeRunner{}, Config{})
	g.AlertMail("no callback configured")
}

func TestNewSubProcess(t *testing.T) {
	sp := NewSubProcess("worker", "python job.py --flag")
	if sp.Name != "worker" || sp.Command != "python job.py --flag" {
		t.Errorf("subprocess = %+v", sp)
	}
	want := []string{"python", "job.py", "--flag"}
	if !reflect.DeepEqual(sp.Commands, want) {
		t.Errorf("commands = %v, want %v", sp.Commands, want)
	}

	empty := NewSubProcess("worker", "")
	if empty.Commands != nil {
		t.Errorf("empty command should yield nil commands, got %v", empty.Commands)
	}
}

func TestCreateNewProcess(t *testing.T) {
	fr := &fakeRunner{}
	g := newTestGroup(t, fr, Config{})
	if !g.CreateNewProcess(NewSubProcess("worker", "python job.py")) {
		t.Fatal("CreateNewProcess should succeed")
	}
	if g.CreateNewProcess(NewSubProcess("empty", "")) {
		t.Fatal("CreateNewProcess with no command should fail")
	}
}

func TestChildrenDataProjection(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:b", "online"), proc("myapp:a", "stopped"))}
	g := newTestGroup(t, fr, Config{})

	minimal := g.ChildrenData(false, Fields{})
	if len(minimal) != 2 {
		t.Fatalf("children = %d, want 2", len(minimal))
	}
	if minimal[0].Name != "myapp:a" || minimal[1].Name != "myapp:b" {
		t.Errorf("not sorted by name: %v, %v", minimal[0].Name, minimal[1].Name)
	}
	if minimal[0].Uptime != nil || minimal[0].System != nil || minimal[0].Log != nil || minimal[0].Execution != nil || minimal[0].PM2Status != "" {
		t.Errorf("optional sections must be omitted: %+v", minimal[0])
	}
	if minimal[0].Status != pm2.StatusStopped {
		t.Errorf("status = %q", minimal[0].Status)
	}

	full := g.ChildrenData(false, Fields{Uptime: true, PM2Status: true, System: true, Logs: true, Execution: true})
	b := full[1]
	if b.Uptime == nil || *b.Uptime < 58 {
		t.Errorf("uptime = %v", b.Uptime)
	}
	if b.PM2Status != "online" {
		t.Errorf("pm2 status = %q", b.PM2Status)
	}
	if b.System == nil || b.System.PID != 4100 || b.System.Memory != 2048 {
		t.Errorf("system = %+v", b.System)
	}
	if b.Log == nil || b.Log.Stdout == "" {
		t.Errorf("log = %+v", b.Log)
	}
	if b.Execution == nil || b.Execution.Interpreter != "/usr/bin/python3" {
		t.Errorf("execution = %+v", b.Execution)
	}
}

func TestChildrenDataRefresh(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:a", "online"))}
	g := newTestGroup(t, fr, Config{})
	fr.jlistOut = listing(t, proc("myapp:a", "online"), proc("myapp:b", "online"))

	if got := g.ChildrenData(false, Fields{}); len(got) != 1 {
		t.Errorf("without refresh: %d children, want 1", len(got))
	}
	if got := g.ChildrenData(true, Fields{}); len(got) != 2 {
		t.Errorf("with refresh: %d children, want 2", len(got))
	}
}

func TestProcessInformation(t *testing.T) {
	fr := &fakeRunner{jlistOut: listing(t, proc("myapp:web", "online"), proc("other:db", "errored"))}
	g := newTestGroup(t, fr, Config{})

	rec, ok := g.ProcessInformation("other:db")
	if !ok || rec.Name != "other:db" {
		t.Fatalf("lookup outside the group should work: %+v ok=%v", rec, ok)
	}
	if _, ok := g.ProcessInformation("nope"); ok {
		t.Error("unknown process should not be found")
	}

	native, ok := g.PM2Status("other:db")
	if !ok || native != "errored" {
		t.Errorf("PM2Status = %q ok=%v", native, ok)
	}
	if _, ok := g.PM2Status("nope"); ok {
		t.Error("PM2Status of unknown process should not be found")
	}
}

// memorySink captures events for assertions.
type memorySink struct {
	events []history.Event
	err    error
}

func (m *memorySink) Send(_ context.Context, e history.Event) error {
	m.events = append(m.events, e)
	return m.err
}

func TestHistoryEvents(t *testing.T) {
	sink := &memorySink{}
	fr := &fakeRunner{}
	g := newTestGroup(t, fr, Config{Sinks: []history.Sink{sink}})

	g.Create("worker", []string{"python", "job.py"})
	g.Stop("worker")
	g.Remove("worker")

	var ops []history.Op
	for _, e := range sink.events {
		ops = append(ops, e.Op)
		if e.Group != "myapp" || e.Name != "myapp:worker" || !e.OK {
			t.Errorf("unexpected event %+v", e)
		}
	}
	want := []history.Op{history.OpCreate, history.OpStart, history.OpStop, history.OpRemove}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("ops = %v, want %v", ops, want)
	}
}

func TestHistorySinkErrorIgnored(t *testing.T) {
	sink := &memorySink{err: fmt.Errorf("sink unavailable")}
	g := newTestGroup(t, &fakeRunner{}, Config{Sinks: []history.Sink{sink}})
	if !g.Create("worker", []string{"python", "job.py"}) {
		t.Fatal("sink failures must not affect the operation result")
	}
}
