package pm2

import (
	"encoding/json"
	"time"
)

// LogPaths holds the stdout/stderr log file locations pm2 reports for a
// process.
type LogPaths struct {
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// Execution describes how pm2 launches the process.
type Execution struct {
	Interpreter string   `json:"interpreter,omitempty"`
	Command     string   `json:"command,omitempty"`
	Arguments   []string `json:"arguments,omitempty"`
}

// Record is a normalized snapshot of one pm2-managed process.
type Record struct {
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	NativeStatus  string    `json:"pm2_status"`
	UptimeSeconds int64     `json:"uptime"`
	PID           int       `json:"pid,omitempty"`
	MemoryBytes   int64     `json:"memory,omitempty"`
	Log           LogPaths  `json:"log"`
	Execution     Execution `json:"execution"`

	// Instruction is the fully formed command used to (re)start this process.
	// It is computed once when the record enters a group and never re-derived
	// from pm2 output, since the listing does not carry the original
	// invocation intent.
	Instruction string `json:"-"`
}

// jlistEntry mirrors the subset of `pm2 jlist` output we consume.
type jlistEntry struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	PM2Env struct {
		Status          string   `json:"status"`
		PMUptime        int64    `json:"pm_uptime"`
		OutLogPath      string   `json:"pm_out_log_path"`
		ErrLogPath      string   `json:"pm_err_log_path"`
		ExecInterpreter string   `json:"exec_interpreter"`
		ExecPath        string   `json:"pm_exec_path"`
		Args            []string `json:"args"`
	} `json:"pm2_env"`
	Monit struct {
		Memory int64 `json:"memory"`
	} `json:"monit"`
}

// ParseList decodes a pm2 jlist payload into normalized records.
func ParseList(raw []byte) ([]Record, error) {
	var entries []jlistEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, Record{
			Name:          e.Name,
			Status:        TranslateStatus(e.PM2Env.Status),
			NativeStatus:  e.PM2Env.Status,
			UptimeSeconds: Uptime(e.PM2Env.PMUptime),
			PID:           e.PID,
			MemoryBytes:   e.Monit.Memory,
			Log:           LogPaths{Stdout: e.PM2Env.OutLogPath, Stderr: e.PM2Env.ErrLogPath},
			Execution: Execution{
				Interpreter: e.PM2Env.ExecInterpreter,
				Command:     e.PM2Env.ExecPath,
				Arguments:   e.PM2Env.Args,
			},
		})
	}
	return out, nil
}

// Uptime converts a pm2 start timestamp (epoch millis) into whole seconds of
// uptime. pm2 reports pm_uptime as zero when it never recorded a start; that
// case is indistinguishable from "started at the epoch", so we report 0
// ("unknown") rather than an epoch-sized value.
func Uptime(startEpochMillis int64) int64 {
	if startEpochMillis <= 0 {
		return 0
	}
	return time.Now().Unix() - startEpochMillis/1000
}
