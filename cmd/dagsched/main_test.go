package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/therealutkarshpriyadarshi/dagsched/internal/scheduler"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	// flag variables outlive a single Execute
	dumpDue = false
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		dumpDue = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "poll": false, "dump": false, "seed <file>": false, "migrate": false, "events": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Use]; ok {
			want[cmd.Use] = true
		}
	}
	for use, found := range want {
		if !found {
			t.Errorf("expected %q subcommand", use)
		}
	}
}

func TestSeedPollDump_SQLite(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("DAGSCHED_LOGGER_LEVEL", "error")
	t.Setenv("DAGSCHED_STORE_DRIVER", "sqlite")
	t.Setenv("DAGSCHED_STORE_DSN", filepath.Join(dir, "dagsched.db"))

	seedPath := filepath.Join(dir, "dags.yaml")
	seed := "dags:\n  - dag_id: etl\n    scheduler_interval: 1h\n  - dag_id: report\n    scheduler_interval: 60\n    valid: false\n"
	if err := os.WriteFile(seedPath, []byte(seed), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "seed", seedPath)
	if err != nil {
		t.Fatalf("seed error = %v", err)
	}
	if !strings.Contains(out, "seeded 2 dag(s)") {
		t.Errorf("seed output = %q", out)
	}

	out, err = execute(t, "dump", "--due")
	if err != nil {
		t.Fatalf("dump --due error = %v", err)
	}
	if !strings.Contains(out, "etl") || strings.Contains(out, "report") {
		t.Errorf("dump --due output = %q", out)
	}

	out, err = execute(t, "poll")
	if err != nil {
		t.Fatalf("poll error = %v", err)
	}
	var result scheduler.PollResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("poll output %q: %v", out, err)
	}
	if result.Due != 1 || result.Triggered != 1 {
		t.Errorf("poll result = %+v", result)
	}

	out, err = execute(t, "dump", "--due")
	if err != nil {
		t.Fatalf("dump --due error = %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Errorf("nothing should be due after the poll, got %q", out)
	}

	out, err = execute(t, "dump")
	if err != nil {
		t.Fatalf("dump error = %v", err)
	}
	if strings.Count(out, "\n") != 2 {
		t.Errorf("dump output = %q", out)
	}
}

func TestMigrate_RejectsNonPostgres(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DAGSCHED_STORE_DRIVER", "memory")

	if _, err := execute(t, "migrate", "up"); err == nil {
		t.Error("migrate up should fail for the memory store")
	}
}
