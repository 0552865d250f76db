package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"papercast/internal/api"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	want := []string{"daemon", "submit", "status", "show", "report", "jobs", "config"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command missing %q", name)
		}
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	root := newRootCommand()
	root.SetArgs([]string{"config", "init", "--path", target})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatalf("sample config lacks [paths] section:\n%s", data)
	}

	root = newRootCommand()
	root.SetArgs([]string{"config", "init", "--path", target})
	root.SetOut(&out)
	root.SetErr(&out)
	if err := root.Execute(); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestConfigShowPrintsResolvedSettings(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"config", "show"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if err := root.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	rendered := out.String()
	for _, want := range []string{"provider", "api_bind", "support_threshold"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("config show output missing %q:\n%s", want, rendered)
		}
	}
}

func TestBuildJobStatsRowsOrdersByLifecycle(t *testing.T) {
	rows := buildJobStatsRows(map[string]int{
		"completed": 2,
		"pending":   1,
		"failed":    3,
	})
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][0] != "pending" || rows[1][0] != "completed" || rows[2][0] != "failed" {
		t.Fatalf("unexpected order: %v", rows)
	}
}

func TestDescribeProgressComposesFields(t *testing.T) {
	view := api.JobView{}
	view.Progress.Stage = "Drafting"
	view.Progress.Percent = 40
	view.Progress.Message = "Segment 2 of 5"
	got := describeProgress(view)
	for _, want := range []string{"Drafting", "40%", "Segment 2 of 5"} {
		if !strings.Contains(got, want) {
			t.Errorf("progress %q missing %q", got, want)
		}
	}
}

func TestRenderTableIncludesHeadersAndRows(t *testing.T) {
	rendered := renderTable(
		[]tableColumn{{Title: "Token"}, {Title: "Status"}},
		[][]string{{"abc", "pending"}},
	)
	if !strings.Contains(rendered, "Token") || !strings.Contains(rendered, "pending") {
		t.Fatalf("table output unexpected:\n%s", rendered)
	}
}

func TestRenderStatusLineColorsOnlyTag(t *testing.T) {
	plain := renderStatusLine("Running", statusOK, "pid 42", false)
	if strings.Contains(plain, ansiGreen) {
		t.Fatalf("plain output carries color codes: %q", plain)
	}
	colored := renderStatusLine("Running", statusOK, "pid 42", true)
	if !strings.Contains(colored, ansiGreen+"[OK]"+ansiReset) {
		t.Fatalf("colored output missing wrapped tag: %q", colored)
	}
	if !strings.HasSuffix(colored, "pid 42") {
		t.Fatalf("message should stay uncolored: %q", colored)
	}
}

func TestJobStatusKind(t *testing.T) {
	if kind := jobStatusKind("completed"); kind != statusOK {
		t.Fatalf("completed kind = %d", kind)
	}
	if kind := jobStatusKind("failed"); kind != statusError {
		t.Fatalf("failed kind = %d", kind)
	}
	if kind := jobStatusKind("drafting"); kind != statusInfo {
		t.Fatalf("drafting kind = %d", kind)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatFraction(0.875); got != "88%" {
		t.Fatalf("formatFraction = %q", got)
	}
	if got := formatSeconds(12.34); got != "12.3s" {
		t.Fatalf("formatSeconds short = %q", got)
	}
	if got := formatSeconds(125); got != "2m05s" {
		t.Fatalf("formatSeconds long = %q", got)
	}
}
