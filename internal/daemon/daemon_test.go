package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"papercast/internal/api"
	"papercast/internal/assembler"
	"papercast/internal/audio"
	"papercast/internal/capability/provider"
	"papercast/internal/config"
	"papercast/internal/daemon"
	"papercast/internal/indexer"
	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/planner"
	"papercast/internal/scriptgen"
	"papercast/internal/testsupport"
	"papercast/internal/workflow"
)

func newTestDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()

	store := testsupport.MustOpenStore(t, cfg)
	caps, err := provider.New(cfg)
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}
	logger := logging.NewNop()
	manager := workflow.NewManager(cfg, store, logger)
	manager.ConfigureStages(workflow.StageSet{
		Indexer:   indexer.NewStage(cfg, store, caps.Embedder, logger),
		Planner:   planner.NewStage(cfg, store, caps, logger),
		Scriptgen: scriptgen.NewStage(cfg, store, caps, logger),
		Assembler: assembler.NewStage(cfg, store, caps.Synthesizer, logger),
	})
	d, err := daemon.New(cfg, store, logger, manager, caps)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func startTestDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, string) {
	t.Helper()

	d := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("daemon has no API address")
	}
	return d, "http://" + addr
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body, out any) int {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func waitForJobStatus(t *testing.T, base, token, want string, timeout time.Duration) api.JobView {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var view api.JobView
	for time.Now().Before(deadline) {
		if code := getJSON(t, base+"/api/jobs/"+token, &view); code != http.StatusOK {
			t.Fatalf("describe returned %d", code)
		}
		if view.Status == want {
			return view
		}
		if view.Status == string(jobs.StatusFailed) && want != string(jobs.StatusFailed) {
			t.Fatalf("job failed while waiting for %s: %s", want, view.ErrorMessage)
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s (last %s)", token, want, view.Status)
	return view
}

func episodeSource(paragraphs int) string {
	var sb strings.Builder
	sb.WriteString("Monitoring Kelp Forest Regrowth\n\n")
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&sb, "Transect %d showed steady kelp canopy regrowth after urchin removal, with juvenile density climbing through the survey season. ", i)
	}
	return sb.String()
}

func TestDaemonServesEpisodeOverHTTP(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, base := startTestDaemon(t, cfg)

	source := filepath.Join(testsupport.BaseDir(cfg), "kelp.txt")
	testsupport.WriteDocument(t, source, episodeSource(30))

	var submitted api.JobView
	if code := postJSON(t, base+"/api/jobs", api.SubmitRequest{Path: source, Title: "Kelp Comeback"}, &submitted); code != http.StatusAccepted {
		t.Fatalf("submit returned %d", code)
	}
	if submitted.Token == "" || submitted.Status != string(jobs.StatusPending) {
		t.Fatalf("submitted job = %+v", submitted)
	}

	done := waitForJobStatus(t, base, submitted.Token, string(jobs.StatusCompleted), 60*time.Second)
	if done.Report == nil || done.Report.EpisodeSeconds <= 0 {
		t.Fatalf("completed job report = %+v", done.Report)
	}
	if len(done.Segments) < 3 {
		t.Fatalf("segments = %d", len(done.Segments))
	}

	var report api.ReportView
	if code := getJSON(t, base+"/api/jobs/"+submitted.Token+"/report", &report); code != http.StatusOK {
		t.Fatalf("report returned %d", code)
	}
	if report.VerifiedLines != report.ContentLines || report.ContentLines == 0 {
		t.Fatalf("report = %+v", report)
	}

	resp, err := http.Get(base + "/api/jobs/" + submitted.Token + "/transcript")
	if err != nil {
		t.Fatalf("GET transcript: %v", err)
	}
	transcript, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("transcript: code=%d err=%v", resp.StatusCode, err)
	}
	if !strings.Contains(string(transcript), ":") {
		t.Fatal("transcript carries no speaker turns")
	}

	resp, err = http.Get(base + "/api/jobs/" + submitted.Token + "/episode")
	if err != nil {
		t.Fatalf("GET episode: %v", err)
	}
	wav, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("episode: code=%d err=%v", resp.StatusCode, err)
	}
	format, pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("episode is not a valid WAV: %v", err)
	}
	if audio.PCMDuration(format, len(pcm)) <= 0 {
		t.Fatal("episode has no audio")
	}

	var list api.JobListResponse
	if code := getJSON(t, base+"/api/jobs", &list); code != http.StatusOK {
		t.Fatalf("list returned %d", code)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].Token != submitted.Token {
		t.Fatalf("list = %+v", list)
	}
}

func TestDaemonStatusEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, base := startTestDaemon(t, cfg)

	var status api.DaemonStatus
	if code := getJSON(t, base+"/api/status", &status); code != http.StatusOK {
		t.Fatalf("status returned %d", code)
	}
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("status = %+v", status)
	}
	if len(status.Workflow.StageHealth) != 4 {
		t.Fatalf("stage health entries = %d", len(status.Workflow.StageHealth))
	}
	if status.JobDBPath == "" || status.LockFilePath == "" {
		t.Fatalf("paths missing: %+v", status)
	}
	for _, check := range status.Preflight {
		if !check.Passed {
			t.Fatalf("preflight check %s failed: %s", check.Name, check.Detail)
		}
	}

	if code := getJSON(t, base+"/api/health", nil); code != http.StatusOK {
		t.Fatalf("health returned %d", code)
	}

	snapshot := d.Status(context.Background())
	if !snapshot.Running {
		t.Fatal("daemon snapshot not running")
	}
}

func TestDaemonRejectsBadSubmissions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, base := startTestDaemon(t, cfg)

	if code := postJSON(t, base+"/api/jobs", api.SubmitRequest{}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty path returned %d", code)
	}
	if code := postJSON(t, base+"/api/jobs", api.SubmitRequest{Path: "/nope.txt"}, nil); code != http.StatusNotFound {
		t.Fatalf("missing file returned %d", code)
	}
	if code := getJSON(t, base+"/api/jobs/unknown-token", nil); code != http.StatusNotFound {
		t.Fatalf("unknown token returned %d", code)
	}
	if code := getJSON(t, base+"/api/jobs?status=bogus", nil); code != http.StatusBadRequest {
		t.Fatalf("bogus status filter returned %d", code)
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	startTestDaemon(t, cfg)

	second := newTestDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second daemon instance started despite lock")
	}
}
