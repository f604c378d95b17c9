// Package launch reads the launch-parameter blob the host application hands
// to the updater: a query-string style "key=value&key=value" sequence.
package launch

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Recognized keys.
const (
	KeyVersion  = "version"
	KeyRevision = "revision"
	KeyChannel  = "channel"
)

// EnvVar names the environment variable read by EnvSource.
const EnvVar = "BUILDSWAP_LAUNCH"

// Params is a parsed launch blob.
type Params map[string]string

// Revision returns the installed revision.
func (p Params) Revision() string { return p[KeyRevision] }

// Channel returns the update channel.
func (p Params) Channel() string { return p[KeyChannel] }

// Version returns the human-facing version string.
func (p Params) Version() string { return p[KeyVersion] }

// Parse splits a launch blob into its pairs. Trailing NULs from fixed-size
// buffers are ignored. Pairs without '=' or with an empty value are
// skipped; a repeated key keeps its last value.
func Parse(blob string) Params {
	params := Params{}
	blob = strings.TrimRight(blob, "\x00")
	for _, pair := range strings.Split(blob, "&") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			continue
		}
		params[key] = value
	}
	return params
}

// Source supplies the launch blob.
type Source interface {
	Read(ctx context.Context) (Params, error)
}

// StaticSource returns a fixed blob.
type StaticSource string

func (s StaticSource) Read(context.Context) (Params, error) {
	return Parse(string(s)), nil
}

// FileSource reads the blob from a file.
type FileSource string

func (f FileSource) Read(context.Context) (Params, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("reading launch file: %w", err)
	}
	return Parse(string(data)), nil
}

// EnvSource reads the blob from an environment variable, EnvVar when empty.
type EnvSource string

func (e EnvSource) Read(context.Context) (Params, error) {
	name := string(e)
	if name == "" {
		name = EnvVar
	}
	blob, ok := os.LookupEnv(name)
	if !ok {
		return nil, fmt.Errorf("launch data not set: $%s", name)
	}
	return Parse(blob), nil
}

// Resolve picks a source: an explicit blob wins, then a file, then the
// environment.
func Resolve(blob, file string) Source {
	switch {
	case blob != "":
		return StaticSource(blob)
	case file != "":
		return FileSource(file)
	default:
		return EnvSource(EnvVar)
	}
}
