package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adamancini/buildswap/internal/fsutil"
)

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks value ranges. Fields that only the update run needs are
// checked by ValidateForUpdate.
func Validate(c *Config) error {
	var errs []error

	if c.Archive.ChunkSize <= 0 {
		errs = append(errs, ValidationError{"archive.chunk_size", "must be positive"})
	}
	if strings.ContainsAny(c.Archive.StripPrefix, `/\`) {
		errs = append(errs, ValidationError{"archive.strip_prefix", "must be a single path segment"})
	}
	if c.HTTP.MaxRedirects < 0 {
		errs = append(errs, ValidationError{"http.max_redirects", "must not be negative"})
	}
	if c.HTTP.ReadSize <= 0 {
		errs = append(errs, ValidationError{"http.read_size", "must be positive"})
	}
	if c.HTTP.MaxHeaderBytes < 512 {
		errs = append(errs, ValidationError{"http.max_header_bytes", "must be at least 512"})
	}
	if c.Reboot.Delay != "" {
		if d, err := time.ParseDuration(c.Reboot.Delay); err != nil || d < 0 {
			errs = append(errs, ValidationError{"reboot.delay", fmt.Sprintf("invalid duration %q", c.Reboot.Delay)})
		}
	}
	if c.History.Keep < 0 {
		errs = append(errs, ValidationError{"history.keep", "must not be negative"})
	}

	return joinErrors(errs)
}

// ValidateForUpdate checks the fields an update run cannot do without.
func ValidateForUpdate(c *Config) error {
	var errs []error

	if c.InstallRoot == "" {
		errs = append(errs, ValidationError{"install_root", "is required"})
	}
	if c.ScratchDir == "" {
		errs = append(errs, ValidationError{"scratch_dir", "is required"})
	}
	if c.InstallRoot != "" && c.ScratchDir != "" {
		root := filepath.Clean(c.InstallRoot)
		for _, tree := range []string{root, root + "_NEW", root + "_OLD"} {
			if fsutil.Within(tree, c.ScratchDir) {
				errs = append(errs, ValidationError{"scratch_dir", "must be outside " + tree})
				break
			}
		}
	}
	if c.Feed.Owner == "" {
		errs = append(errs, ValidationError{"feed.owner", "is required"})
	}
	if c.Feed.Repo == "" {
		errs = append(errs, ValidationError{"feed.repo", "is required"})
	}
	if c.Feed.MarkerAsset == "" {
		errs = append(errs, ValidationError{"feed.marker_asset", "is required"})
	}
	if c.Feed.ArchiveAsset == "" {
		errs = append(errs, ValidationError{"feed.archive_asset", "is required"})
	}

	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
}
