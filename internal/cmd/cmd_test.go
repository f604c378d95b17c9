package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adamancini/buildswap/internal/config"
	"github.com/adamancini/buildswap/internal/history"
	"github.com/adamancini/buildswap/internal/launch"
	"github.com/adamancini/buildswap/internal/output"
	"github.com/adamancini/buildswap/internal/update"
)

// scriptedStepper walks a fixed list of states. failAt names the state
// whose Advance fails.
type scriptedStepper struct {
	states []update.State
	pos    int
	failAt update.State
	calls  int
}

func (s *scriptedStepper) State() update.State { return s.states[s.pos] }

func (s *scriptedStepper) Advance(ctx context.Context) (update.State, error) {
	s.calls++
	if s.states[s.pos] == s.failAt {
		s.states = append(s.states[:s.pos+1], update.StateError)
		s.pos++
		return update.StateError, &update.Error{Kind: update.KindDownload, Msg: "failed to download update"}
	}
	s.pos++
	return s.states[s.pos], nil
}

var fullRun = []update.State{
	update.StatePrepare,
	update.StateCheckForUpdate,
	update.StateDownloadBuild,
	update.StateExtractBuild,
	update.StateCopyUserdata,
	update.StateFinished,
}

func TestDrive_FullRun(t *testing.T) {
	s := &scriptedStepper{states: append([]update.State(nil), fullRun...), failAt: -1}
	var buf bytes.Buffer

	final, err := drive(context.Background(), s, output.NewConsole(&buf, false), nil)
	if err != nil {
		t.Fatalf("drive() error = %v", err)
	}
	if final != update.StateFinished {
		t.Errorf("final = %v, want FINISHED", final)
	}
	if s.calls != 5 {
		t.Errorf("Advance called %d times, want 5", s.calls)
	}

	want := "Preparing update... SUCCESS\n" +
		"Checking for new version... SUCCESS\n" +
		"Downloading update... SUCCESS\n" +
		"Extracting update... SUCCESS\n" +
		"Installing update... SUCCESS\n"
	if buf.String() != want {
		t.Errorf("console output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestDrive_Failure(t *testing.T) {
	s := &scriptedStepper{states: append([]update.State(nil), fullRun...), failAt: update.StateDownloadBuild}
	var buf bytes.Buffer

	final, err := drive(context.Background(), s, output.NewConsole(&buf, false), nil)
	if !update.IsKind(err, update.KindDownload) {
		t.Fatalf("drive() error = %v, want KindDownload", err)
	}
	if final != update.StateError {
		t.Errorf("final = %v, want ERROR", final)
	}
	if s.calls != 3 {
		t.Errorf("Advance called %d times, want 3", s.calls)
	}
	if !strings.HasSuffix(buf.String(), "Downloading update... FAILED\nFAILED: failed to download update\n") {
		t.Errorf("console output = %q", buf.String())
	}
}

func TestDrive_Stop(t *testing.T) {
	s := &scriptedStepper{states: append([]update.State(nil), fullRun...), failAt: -1}

	final, err := drive(context.Background(), s, output.NewConsole(&bytes.Buffer{}, true), func(st update.State) bool {
		return st == update.StateDownloadBuild
	})
	if err != nil {
		t.Fatalf("drive() error = %v", err)
	}
	if final != update.StateDownloadBuild || s.calls != 2 {
		t.Errorf("final = %v after %d calls, want DOWNLOAD_BUILD after 2", final, s.calls)
	}
}

func TestDrive_AlreadyTerminal(t *testing.T) {
	s := &scriptedStepper{states: []update.State{update.StateFinished}, failAt: -1}

	final, err := drive(context.Background(), s, output.NewConsole(&bytes.Buffer{}, false), nil)
	if err != nil || final != update.StateFinished || s.calls != 0 {
		t.Errorf("drive() = %v, %v after %d calls", final, err, s.calls)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, "json", false, false)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug record logged at info level")
	}
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	logger, _ = newLogger(&buf, "text", true, false)
	logger.Debug("verbose")
	if !strings.Contains(buf.String(), "msg=verbose") {
		t.Errorf("text output = %q", buf.String())
	}

	buf.Reset()
	logger, _ = newLogger(&buf, "", false, true)
	logger.Warn("quiet")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}

	if _, err := newLogger(&buf, "xml", false, false); err == nil {
		t.Error("newLogger(xml) should fail")
	}
}

func TestLaunchFlags_Source(t *testing.T) {
	cfg := config.Default()
	cfg.LaunchFile = "/run/app/launch.dat"

	tests := []struct {
		name  string
		flags launchFlags
		want  launch.Source
	}{
		{"blob", launchFlags{blob: "channel=stable", file: "/x"}, launch.StaticSource("channel=stable")},
		{"file flag", launchFlags{file: "/x"}, launch.FileSource("/x")},
		{"config file", launchFlags{}, launch.FileSource("/run/app/launch.dat")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flags.source(cfg); got != tt.want {
				t.Errorf("source() = %#v, want %#v", got, tt.want)
			}
		})
	}

	cfg.LaunchFile = ""
	if got := (&launchFlags{}).source(cfg); got != launch.EnvSource(launch.EnvVar) {
		t.Errorf("source() = %#v, want env source", got)
	}
}

func TestUpdateOptions(t *testing.T) {
	cfg := config.Default()
	cfg.InstallRoot = "/opt/app"
	cfg.Feed.Owner = "acme"
	cfg.Feed.Repo = "console"
	cfg.Feed.Channel = "nightly"

	opts := updateOptions(cfg)
	if opts.RootPath != "/opt/app" || opts.Channel != "nightly" {
		t.Errorf("options = %+v", opts)
	}
	if got := opts.Feed.ReleaseURL("nightly"); !strings.Contains(got, "/repos/acme/console/releases/tags/nightly") {
		t.Errorf("ReleaseURL() = %q", got)
	}
}

func TestNewUpdater_Validates(t *testing.T) {
	_, err := newUpdater(config.Default(), launch.StaticSource(""), nil)
	if err == nil || !strings.Contains(err.Error(), "install_root") {
		t.Errorf("newUpdater() error = %v, want install_root validation error", err)
	}
}

func TestCheckResult_String(t *testing.T) {
	upToDate := checkResult{Channel: "nightly", Current: "v1.0", Latest: "v1.0"}
	if got := upToDate.String(); got != "Up to date on nightly (v1.0)" {
		t.Errorf("String() = %q", got)
	}

	available := checkResult{Channel: "nightly", Current: "v1.0", Latest: "v1.1", Available: true, Direction: "upgrade"}
	if got := available.String(); got != "Update available on nightly: v1.0 -> v1.1 (upgrade)" {
		t.Errorf("String() = %q", got)
	}
}

func TestPrintRecords(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	records := []history.Record{
		{ID: "20260102-115900", StartedAt: now.Add(-time.Minute), Channel: "nightly", From: "v1.0", To: "v1.1", State: "FINISHED"},
		{ID: "20260101-120000", StartedAt: now.Add(-24 * time.Hour), Channel: "nightly", From: "v1.0", State: "ERROR"},
	}

	var buf bytes.Buffer
	printRecords(&buf, records, now)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "1 minute ago") || !strings.Contains(lines[1], "FINISHED") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], " - ") || !strings.Contains(lines[2], "ERROR") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestReportInstall(t *testing.T) {
	userdata := t.TempDir()
	if err := os.WriteFile(filepath.Join(userdata, "settings.xml"), make([]byte, 2048), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	reportInstall(output.NewConsole(&buf, false), update.Context{
		CurrentRevision: "v1.0",
		LatestRevision:  "v1.1",
		ArchiveSize:     1536,
		ArchiveDigest:   "abc123",
		UserDataPath:    userdata,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Updated v1.0 -> v1.1 (1.5 KiB)" {
		t.Errorf("summary = %q", lines[0])
	}
	if !strings.Contains(lines[1], "abc123") {
		t.Errorf("digest line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "2.0 KiB") || !strings.Contains(lines[2], userdata) {
		t.Errorf("user data line = %q", lines[2])
	}
}

func TestReportInstall_NoUserData(t *testing.T) {
	var buf bytes.Buffer
	reportInstall(output.NewConsole(&buf, false), update.Context{
		CurrentRevision: "v1.0",
		LatestRevision:  "v1.1",
		UserDataPath:    filepath.Join(t.TempDir(), "missing"),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("output = %q, want the summary line only", buf.String())
	}
}
