package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
[group]
name = "myapp"
interpreter = "/usr/bin/python3"
workdir = "/srv/app"

[pm2]
bin = "/usr/local/bin/pm2"
timeout = "45s"

[log]
level = "debug"
color = true

[server]
listen = ":8080"
base_path = "/api"

[metrics]
enabled = true
listen = ":9090"

[history]
dsn = "sqlite://:memory:"
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Group.Name != "myapp" || c.Group.Interpreter != "/usr/bin/python3" || c.Group.WorkDir != "/srv/app" {
		t.Errorf("group = %+v", c.Group)
	}
	if c.PM2.Bin != "/usr/local/bin/pm2" || c.PM2.Timeout != 45*time.Second {
		t.Errorf("pm2 = %+v", c.PM2)
	}
	if c.Log.Level != "debug" || !c.Log.Color {
		t.Errorf("log = %+v", c.Log)
	}
	if c.Server == nil || c.Server.Listen != ":8080" || c.Server.BasePath != "/api" {
		t.Errorf("server = %+v", c.Server)
	}
	if c.Metrics == nil || !c.Metrics.Enabled || c.Metrics.Listen != ":9090" {
		t.Errorf("metrics = %+v", c.Metrics)
	}
	if c.History == nil || c.History.DSN != "sqlite://:memory:" {
		t.Errorf("history = %+v", c.History)
	}
}

func TestLoadMinimal(t *testing.T) {
	path := writeConfig(t, `
[group]
name = "myapp"
interpreter = "/usr/bin/python3"
workdir = "/srv/app"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server != nil || c.Metrics != nil || c.History != nil {
		t.Errorf("optional sections should stay nil: %+v", c)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []string{
		`[group]
interpreter = "/usr/bin/python3"
workdir = "/srv/app"`,
		`[group]
name = "myapp"
workdir = "/srv/app"`,
		`[group]
name = "myapp"
interpreter = "/usr/bin/python3"`,
	}
	for i, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
