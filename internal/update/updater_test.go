package update

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adamancini/buildswap/internal/archive"
	"github.com/adamancini/buildswap/internal/launch"
)

const (
	testReleaseURL = "https://api.example.test/repos/acme/console/releases/tags/nightly"
	testMarkerURL  = "https://api.example.test/assets/1"
	testArchiveURL = "https://api.example.test/assets/2"
)

// fakeFetcher serves Get bodies and Download payloads from maps and records
// every call.
type fakeFetcher struct {
	bodies    map[string]string
	files     map[string][]byte
	gets      []string
	downloads []string
}

func (f *fakeFetcher) Get(_ context.Context, url string) (string, error) {
	f.gets = append(f.gets, url)
	body, ok := f.bodies[url]
	if !ok {
		return "", fmt.Errorf("status 404 for %s", url)
	}
	return body, nil
}

func (f *fakeFetcher) Download(_ context.Context, url, dst string) (int64, error) {
	f.downloads = append(f.downloads, url)
	data, ok := f.files[url]
	if !ok {
		return 0, fmt.Errorf("status 404 for %s", url)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func releaseJSON() string {
	return `{
  "tag_name": "nightly",
  "assets": [
    {"name": "VERSION.TXT", "url": "` + testMarkerURL + `"},
    {"name": "build.tar", "url": "` + testArchiveURL + `"}
  ]
}`
}

// longNameArchive holds one long-name entry followed by one 10-byte file.
func longNameArchive(t *testing.T) ([]byte, string) {
	t.Helper()
	name := "BUILD/" + strings.Repeat("m", 50) + "/" + strings.Repeat("n", 60) + ".bin"

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     10,
		Typeflag: tar.TypeReg,
		ModTime:  time.Unix(1700000000, 0),
		Format:   tar.FormatGNU,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), strings.TrimPrefix(name, "BUILD/")
}

type fixture struct {
	root     string
	scratch  string
	userdata string
	fetcher  *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		root:     filepath.Join(base, "app"),
		scratch:  filepath.Join(base, "scratch"),
		userdata: filepath.Join(base, "userdata"),
		fetcher: &fakeFetcher{
			bodies: map[string]string{testReleaseURL: releaseJSON()},
			files:  map[string][]byte{},
		},
	}
	if err := os.MkdirAll(f.root, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.root, "old.bin"), []byte("old build"), 0644); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) updater(blob string, installer *Installer) *Updater {
	return New(Options{
		RootPath:     f.root,
		ScratchDir:   f.scratch,
		UserDataPath: f.userdata,
		Feed:         Feed{APIHost: "api.example.test", Owner: "acme", Repo: "console"},
	}, Deps{
		Fetcher:   f.fetcher,
		Extractor: archive.NewExtractor(),
		Launch:    launch.StaticSource(blob),
		Installer: installer,
	})
}

// run advances until a terminal state and returns every state visited.
func run(t *testing.T, u *Updater) []State {
	t.Helper()
	visited := []State{u.State()}
	for i := 0; i < 10 && !u.State().Terminal(); i++ {
		state, _ := u.Advance(context.Background())
		visited = append(visited, state)
	}
	if !u.State().Terminal() {
		t.Fatalf("updater did not terminate: %v", visited)
	}
	return visited
}

func TestUpdater_AlreadyUpToDate(t *testing.T) {
	f := newFixture(t)
	f.fetcher.files[testMarkerURL] = []byte("V1.0\n")

	u := f.updater("revision=v1.0&channel=nightly", nil)
	visited := run(t, u)

	want := []State{StatePrepare, StateCheckForUpdate, StateFinished}
	if fmt.Sprint(visited) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", visited, want)
	}
	if len(f.fetcher.downloads) != 1 || f.fetcher.downloads[0] != testMarkerURL {
		t.Errorf("downloads = %v, want only the marker", f.fetcher.downloads)
	}
	if u.Context().LatestRevision != "V1.0" {
		t.Errorf("LatestRevision = %q", u.Context().LatestRevision)
	}

	// Finished is terminal.
	state, err := u.Advance(context.Background())
	if state != StateFinished || err != nil {
		t.Errorf("Advance() after finish = %v, %v", state, err)
	}
	if len(f.fetcher.downloads) != 1 {
		t.Error("terminal Advance() started a download")
	}
}

func TestUpdater_CheckIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.fetcher.files[testMarkerURL] = []byte("v1.0")

	for i := 0; i < 3; i++ {
		u := f.updater("revision=v1.0&channel=nightly", nil)
		if s, _ := u.Advance(context.Background()); s != StateCheckForUpdate {
			t.Fatalf("run %d: after prepare = %v", i, s)
		}
		if s, _ := u.Advance(context.Background()); s != StateFinished {
			t.Fatalf("run %d: after check = %v", i, s)
		}
	}
	for _, d := range f.fetcher.downloads {
		if d == testArchiveURL {
			t.Fatal("archive downloaded while up to date")
		}
	}
}

func TestUpdater_FullUpdate(t *testing.T) {
	f := newFixture(t)
	data, rel := longNameArchive(t)
	f.fetcher.files[testMarkerURL] = []byte("v1.1\n")
	f.fetcher.files[testArchiveURL] = data

	if err := os.MkdirAll(filepath.Join(f.userdata, "profiles"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.userdata, "profiles", "settings.xml"), []byte("<s/>"), 0644); err != nil {
		t.Fatal(err)
	}

	u := f.updater("revision=v1.0&channel=nightly", nil)
	visited := run(t, u)

	want := []State{StatePrepare, StateCheckForUpdate, StateDownloadBuild, StateExtractBuild, StateCopyUserdata, StateFinished}
	if fmt.Sprint(visited) != fmt.Sprint(want) {
		t.Fatalf("states = %v, want %v (err %v)", visited, want, u.Err())
	}

	got, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("extracted file has %d bytes, want 10", len(got))
	}
	if _, err := os.Stat(filepath.Join(f.root, archive.LongNameSentinel)); !os.IsNotExist(err) {
		t.Error("long-name sentinel materialized")
	}
	if _, err := os.Stat(filepath.Join(f.root, "userdata", "profiles", "settings.xml")); err != nil {
		t.Errorf("user data not merged: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.root+BackupSuffix, "old.bin")); err != nil {
		t.Errorf("previous build not backed up: %v", err)
	}
	if _, err := os.Stat(f.root + ScratchSuffix); !os.IsNotExist(err) {
		t.Error("scratch tree left behind")
	}

	c := u.Context()
	if c.ArchiveSize != int64(len(data)) || len(c.ArchiveDigest) != 64 {
		t.Errorf("archive size/digest = %d/%q", c.ArchiveSize, c.ArchiveDigest)
	}
	if len(f.fetcher.gets) != 1 {
		t.Errorf("release metadata fetched %d times, want 1", len(f.fetcher.gets))
	}
}

func TestUpdater_NoAssets(t *testing.T) {
	f := newFixture(t)
	f.fetcher.bodies[testReleaseURL] = `{"tag_name": "nightly"}`

	u := f.updater("revision=v1.0&channel=nightly", nil)
	visited := run(t, u)

	if visited[len(visited)-1] != StateError {
		t.Fatalf("states = %v, want ERROR", visited)
	}
	if !IsKind(u.Err(), KindAssetNotFound) {
		t.Errorf("Err() = %v, want KindAssetNotFound", u.Err())
	}
	if u.Context().LastError != "failed to find asset: version.txt" {
		t.Errorf("LastError = %q", u.Context().LastError)
	}
	if len(f.fetcher.downloads) != 0 {
		t.Errorf("downloads = %v, want none", f.fetcher.downloads)
	}
}

func TestUpdater_BackupRenameFails(t *testing.T) {
	f := newFixture(t)
	data, _ := longNameArchive(t)
	f.fetcher.files[testMarkerURL] = []byte("v1.1")
	f.fetcher.files[testArchiveURL] = data

	installer := NewInstaller(nil)
	installer.rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errors.New("device or resource busy")}
	}

	u := f.updater("revision=v1.0&channel=nightly", installer)
	run(t, u)

	if u.State() != StateError || !IsKind(u.Err(), KindBackup) {
		t.Fatalf("state = %v, err = %v, want ERROR with KindBackup", u.State(), u.Err())
	}
	if u.Context().LastError != "failed to backup previous build" {
		t.Errorf("LastError = %q", u.Context().LastError)
	}
	got, err := os.ReadFile(filepath.Join(f.root, "old.bin"))
	if err != nil || string(got) != "old build" {
		t.Errorf("install root changed: %q, %v", got, err)
	}

	// The error is sticky.
	state, err := u.Advance(context.Background())
	if state != StateError || !IsKind(err, KindBackup) {
		t.Errorf("Advance() after error = %v, %v", state, err)
	}
}

func TestUpdater_PrepareFailures(t *testing.T) {
	tests := []struct {
		name    string
		blob    string
		kind    ErrKind
		message string
	}{
		{"placeholder revision", "revision=dev&channel=nightly", KindInvalidRevision, "invalid version installed: dev"},
		{"missing revision", "channel=nightly", KindInvalidRevision, "invalid version installed: "},
		{"missing channel", "revision=v1.0", KindLaunchConfig, "failed to read launch data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			u := f.updater(tt.blob, nil)

			state, err := u.Advance(context.Background())
			if state != StateError {
				t.Fatalf("Advance() = %v, want ERROR", state)
			}
			if !IsKind(err, tt.kind) {
				t.Errorf("err = %v, want kind %v", err, tt.kind)
			}
			if u.Context().LastError != tt.message {
				t.Errorf("LastError = %q, want %q", u.Context().LastError, tt.message)
			}
			if len(f.fetcher.gets) != 0 {
				t.Error("network touched after a failed prepare")
			}
		})
	}
}

func TestUpdater_PrepareRejectsOverlappingScratch(t *testing.T) {
	tests := []struct {
		name    string
		scratch func(root string) string
	}{
		{"root", func(root string) string { return root }},
		{"inside root", func(root string) string { return filepath.Join(root, "cache") }},
		{"extract tree", func(root string) string { return root + ScratchSuffix }},
		{"inside extract tree", func(root string) string { return filepath.Join(root+ScratchSuffix, "dl") }},
		{"backup tree", func(root string) string { return root + BackupSuffix }},
		{"unclean path", func(root string) string { return root + "/./cache/../cache/" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.scratch = tt.scratch(f.root)
			u := f.updater("revision=v1.0&channel=nightly", nil)

			state, err := u.Advance(context.Background())
			if state != StateError || !IsKind(err, KindFilesystem) {
				t.Fatalf("Advance() = %v, %v; want ERROR with KindFilesystem", state, err)
			}
			if u.Context().LastError != "scratch directory overlaps install root" {
				t.Errorf("LastError = %q", u.Context().LastError)
			}
			if _, err := os.Stat(filepath.Join(f.root, "cache")); !os.IsNotExist(err) {
				t.Error("install root modified by a rejected prepare")
			}
		})
	}
}

func TestUpdater_SiblingScratchAccepted(t *testing.T) {
	f := newFixture(t)
	f.scratch = f.root + "_cache"
	u := f.updater("revision=v1.0&channel=nightly", nil)

	if state, err := u.Advance(context.Background()); state != StateCheckForUpdate {
		t.Fatalf("Advance() = %v, %v; want CHECK_FOR_UPDATE", state, err)
	}
}

func TestUpdater_ChannelFallback(t *testing.T) {
	f := newFixture(t)
	f.fetcher.files[testMarkerURL] = []byte("v1.0")

	u := New(Options{
		RootPath:   f.root,
		ScratchDir: f.scratch,
		Feed:       Feed{APIHost: "api.example.test", Owner: "acme", Repo: "console"},
		Channel:    "nightly",
	}, Deps{
		Fetcher:   f.fetcher,
		Extractor: archive.NewExtractor(),
		Launch:    launch.StaticSource("revision=v1.0"),
	})
	run(t, u)

	if u.State() != StateFinished {
		t.Fatalf("state = %v, err = %v", u.State(), u.Err())
	}
	if u.Context().Channel != "nightly" {
		t.Errorf("Channel = %q", u.Context().Channel)
	}
}

func TestUpdater_PrepareCleansStaleScratch(t *testing.T) {
	f := newFixture(t)
	stale := filepath.Join(f.root+ScratchSuffix, "leftover.bin")
	if err := os.MkdirAll(filepath.Dir(stale), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	u := f.updater("revision=v1.0&channel=nightly", nil)
	if s, err := u.Advance(context.Background()); s != StateCheckForUpdate {
		t.Fatalf("Advance() = %v, %v", s, err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale scratch tree survived prepare")
	}
}

func TestUpdater_EmptyMarker(t *testing.T) {
	f := newFixture(t)
	f.fetcher.files[testMarkerURL] = []byte("\n")

	u := f.updater("revision=v1.0&channel=nightly", nil)
	run(t, u)

	if !IsKind(u.Err(), KindEmptyRevision) || u.Context().LastError != "failed to get latest version" {
		t.Errorf("err = %v, LastError = %q", u.Err(), u.Context().LastError)
	}
}

func TestUpdater_DownloadFailures(t *testing.T) {
	t.Run("marker", func(t *testing.T) {
		f := newFixture(t)
		u := f.updater("revision=v1.0&channel=nightly", nil)
		run(t, u)
		if !IsKind(u.Err(), KindDownload) || u.Context().LastError != "failed to download asset: version.txt" {
			t.Errorf("err = %v, LastError = %q", u.Err(), u.Context().LastError)
		}
	})

	t.Run("archive", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.files[testMarkerURL] = []byte("v2.0")
		u := f.updater("revision=v1.0&channel=nightly", nil)
		run(t, u)
		if !IsKind(u.Err(), KindDownload) || u.Context().LastError != "failed to download update" {
			t.Errorf("err = %v, LastError = %q", u.Err(), u.Context().LastError)
		}
	})
}

func TestUpdater_ExtractFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.files[testMarkerURL] = []byte("v2.0")
	f.fetcher.files[testArchiveURL] = bytes.Repeat([]byte{'x'}, 700)

	u := f.updater("revision=v1.0&channel=nightly", nil)
	run(t, u)

	if !IsKind(u.Err(), KindExtract) {
		t.Fatalf("err = %v, want KindExtract", u.Err())
	}
	if !strings.HasPrefix(u.Context().LastError, "failed to extract archive: ") {
		t.Errorf("LastError = %q", u.Context().LastError)
	}
	if _, err := os.Stat(filepath.Join(f.root, "old.bin")); err != nil {
		t.Error("install root touched by a failed extraction")
	}
}

func TestUpdater_CancelledContext(t *testing.T) {
	f := newFixture(t)
	u := f.updater("revision=v1.0&channel=nightly", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state, err := u.Advance(ctx)
	if state != StatePrepare || !errors.Is(err, context.Canceled) {
		t.Errorf("Advance() = %v, %v", state, err)
	}
}

func TestFindAsset(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"case-insensitive match", releaseJSON(), testMarkerURL},
		{"no assets", `{"tag_name":"x"}`, ""},
		{"assets not an array", `{"assets":{"name":"version.txt"}}`, ""},
		{"name wrong type", `{"assets":[{"name":5,"url":"u"}]}`, ""},
		{"url missing", `{"assets":[{"name":"version.txt"}]}`, ""},
		{"not an object", `[1,2,3]`, ""},
		{"not json", `<html>`, ""},
		{"skips malformed entries", `{"assets":[7,{"name":"version.txt","url":"u"}]}`, "u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findAsset(tt.body, "version.txt"); got != tt.want {
				t.Errorf("findAsset() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeed_ReleaseURL(t *testing.T) {
	got := Feed{Owner: "acme", Repo: "console"}.ReleaseURL("stable")
	want := "https://api.github.com/repos/acme/console/releases/tags/stable"
	if got != want {
		t.Errorf("ReleaseURL() = %q, want %q", got, want)
	}
}

func TestState_String(t *testing.T) {
	if StateCheckForUpdate.String() != "CHECK_FOR_UPDATE" || StateError.String() != "ERROR" {
		t.Error("unexpected state names")
	}
	if !StateFinished.Terminal() || StateCopyUserdata.Terminal() {
		t.Error("unexpected Terminal() result")
	}
}
