package launch

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		blob string
		want Params
	}{
		{
			name: "full",
			blob: "version=1.0.0&revision=v1.0&channel=nightly",
			want: Params{"version": "1.0.0", "revision": "v1.0", "channel": "nightly"},
		},
		{
			name: "trailing nuls",
			blob: "revision=abc123&channel=stable\x00\x00\x00",
			want: Params{"revision": "abc123", "channel": "stable"},
		},
		{
			name: "skips malformed pairs",
			blob: "revision=&flag&=x&channel=dev",
			want: Params{"channel": "dev"},
		},
		{
			name: "last value wins",
			blob: "channel=a&channel=b",
			want: Params{"channel": "b"},
		},
		{
			name: "value containing equals",
			blob: "revision=a=b",
			want: Params{"revision": "a=b"},
		},
		{
			name: "empty",
			blob: "",
			want: Params{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.blob)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParams_Accessors(t *testing.T) {
	p := Parse("version=2.1&revision=r42&channel=beta")
	if p.Version() != "2.1" || p.Revision() != "r42" || p.Channel() != "beta" {
		t.Errorf("accessors = %q %q %q", p.Version(), p.Revision(), p.Channel())
	}
	if Parse("").Revision() != "" {
		t.Error("missing revision should be empty")
	}
}

func TestSources(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "launch.dat")
	if err := os.WriteFile(path, []byte("revision=file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, "revision=env")

	tests := []struct {
		name string
		src  Source
		want string
	}{
		{"static", Resolve("revision=static", path), "static"},
		{"file", Resolve("", path), "file"},
		{"env", Resolve("", ""), "env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.src.Read(ctx)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if p.Revision() != tt.want {
				t.Errorf("Revision() = %q, want %q", p.Revision(), tt.want)
			}
		})
	}
}

func TestSources_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := FileSource(filepath.Join(t.TempDir(), "missing")).Read(ctx); err == nil {
		t.Error("FileSource.Read() on missing file should fail")
	}
	if _, err := EnvSource("BUILDSWAP_TEST_UNSET_LAUNCH").Read(ctx); err == nil {
		t.Error("EnvSource.Read() on unset variable should fail")
	}
}
