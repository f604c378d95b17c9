package update

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultAPIHost serves release metadata.
const DefaultAPIHost = "api.github.com"

// Feed locates a channel's release on the GitHub releases API.
type Feed struct {
	APIHost string
	Owner   string
	Repo    string
}

// ReleaseURL returns the metadata URL of the release tagged channel.
func (f Feed) ReleaseURL(channel string) string {
	host := f.APIHost
	if host == "" {
		host = DefaultAPIHost
	}
	return fmt.Sprintf("https://%s/repos/%s/%s/releases/tags/%s", host, f.Owner, f.Repo, channel)
}

// FindAsset returns the fetch URL of the named asset in the current
// channel's release, or "" when it cannot be resolved. Release metadata is
// fetched once per run and reused for later lookups.
func (u *Updater) FindAsset(ctx context.Context, name string) string {
	if u.release == "" {
		url := u.opts.Feed.ReleaseURL(u.uctx.Channel)
		body, err := u.fetcher.Get(ctx, url)
		if err != nil {
			u.logger.Warn("failed to fetch release metadata", "url", url, "error", err)
			return ""
		}
		u.release = body
	}

	assetURL := findAsset(u.release, name)
	if assetURL == "" {
		u.logger.Debug("asset not in release", "asset", name, "channel", u.uctx.Channel)
	}
	return assetURL
}

// findAsset scans release metadata for an assets[] entry whose name
// matches ignoring ASCII case. Any structural mismatch yields "".
func findAsset(body, name string) string {
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return ""
	}
	release, ok := doc.(map[string]any)
	if !ok {
		return ""
	}
	assets, ok := release["assets"].([]any)
	if !ok {
		return ""
	}

	for _, a := range assets {
		asset, ok := a.(map[string]any)
		if !ok {
			continue
		}
		assetName, ok := asset["name"].(string)
		if !ok || !strings.EqualFold(assetName, name) {
			continue
		}
		url, ok := asset["url"].(string)
		if !ok {
			return ""
		}
		return url
	}
	return ""
}
