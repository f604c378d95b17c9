package update

import (
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *Version
		wantErr bool
	}{
		{
			name:  "simple version",
			input: "0.8.2",
			want:  &Version{Major: 0, Minor: 8, Patch: 2},
		},
		{
			name:  "v prefix without patch",
			input: "v1.0",
			want:  &Version{Major: 1, Minor: 0},
		},
		{
			name:  "prerelease",
			input: "1.0.0-rc.1",
			want:  &Version{Major: 1, Minor: 0, Patch: 0, Prerelease: "rc.1"},
		},
		{
			name:  "surrounding whitespace",
			input: " v2.1.3\n",
			want:  &Version{Major: 2, Minor: 1, Patch: 3},
		},
		{
			name:    "commit hash",
			input:   "3f9c2ab",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if *got != *tt.want {
				t.Errorf("ParseVersion() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestVersion_Compare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"1.0", "1.1", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.0.0", "1.0.0-rc.1", 1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			a, _ := ParseVersion(tt.a)
			b, _ := ParseVersion(tt.b)
			if got := a.Compare(b); got != tt.want {
				t.Errorf("Compare() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestVersion_String(t *testing.T) {
	v, _ := ParseVersion("v1.2-beta")
	if got := v.String(); got != "1.2.0-beta" {
		t.Errorf("String() = %q, want 1.2.0-beta", got)
	}
}

func TestRevisionHelpers(t *testing.T) {
	if !IsPlaceholder("dev") || !IsPlaceholder("DEV") {
		t.Error("IsPlaceholder() should match dev in any case")
	}
	if IsPlaceholder("develop") || IsPlaceholder("") {
		t.Error("IsPlaceholder() matched a non-placeholder")
	}
	if !SameRevision("V1.0", "v1.0\n") {
		t.Error("SameRevision() should ignore case and surrounding space")
	}
	if SameRevision("v1.0", "v1.1") {
		t.Error("SameRevision() matched different revisions")
	}
}

func TestDirection(t *testing.T) {
	tests := []struct {
		current, latest, want string
	}{
		{"v1.0", "v1.1", "upgrade"},
		{"v1.1", "v1.0", "downgrade"},
		{"v1.0", "1.0.0", "reinstall"},
		{"abc123", "def456", "change"},
		{"v1.0", "nightly-20240101", "change"},
	}
	for _, tt := range tests {
		if got := Direction(tt.current, tt.latest); got != tt.want {
			t.Errorf("Direction(%q, %q) = %q, want %q", tt.current, tt.latest, got, tt.want)
		}
	}
}
