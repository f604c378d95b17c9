package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/adamancini/buildswap/internal/archive"
	"github.com/adamancini/buildswap/internal/config"
	"github.com/adamancini/buildswap/internal/httpclient"
	"github.com/adamancini/buildswap/internal/launch"
	"github.com/adamancini/buildswap/internal/transport"
	"github.com/adamancini/buildswap/internal/update"
)

// launchFlags select where the launch blob comes from.
type launchFlags struct {
	blob string
	file string
}

func (f *launchFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.blob, "launch", "", `Launch parameters, e.g. "revision=v1.0&channel=nightly"`)
	fs.StringVar(&f.file, "launch-file", "", "File holding the launch parameters (default: launch_file from config, then $"+launch.EnvVar+")")
}

func (f *launchFlags) source(cfg *config.Config) launch.Source {
	file := f.file
	if file == "" {
		file = cfg.LaunchFile
	}
	return launch.Resolve(f.blob, file)
}

// newClient builds the pinned TLS session and the HTTP client over it.
func newClient(cfg *config.Config, logger *slog.Logger) (*httpclient.Client, error) {
	anchor, err := transport.LoadTrustAnchor(cfg.TLS.CAFile)
	if err != nil {
		return nil, err
	}
	session := transport.NewSession(anchor, transport.WithLogger(logger))
	if !session.Initialized() {
		return nil, fmt.Errorf("TLS session unusable: %w", session.Err())
	}

	userAgent := cfg.HTTP.UserAgent
	if userAgent == "" {
		userAgent = httpclient.DefaultUserAgent + "/" + buildVersion
	}

	return httpclient.New(session,
		httpclient.WithUserAgent(userAgent),
		httpclient.WithMaxRedirects(cfg.HTTP.MaxRedirects),
		httpclient.WithReadSize(cfg.HTTP.ReadSize),
		httpclient.WithMaxHeaderBytes(cfg.HTTP.MaxHeaderBytes),
		httpclient.WithLogger(logger),
	), nil
}

func newExtractor(cfg *config.Config, logger *slog.Logger) *archive.Extractor {
	return &archive.Extractor{
		StripPrefix: cfg.Archive.StripPrefix,
		ChunkSize:   cfg.Archive.ChunkSize,
		Logger:      logger,
	}
}

func updateOptions(cfg *config.Config) update.Options {
	return update.Options{
		RootPath:     cfg.InstallRoot,
		ScratchDir:   cfg.ScratchDir,
		UserDataPath: cfg.UserDataDir,
		Feed: update.Feed{
			APIHost: cfg.Feed.APIHost,
			Owner:   cfg.Feed.Owner,
			Repo:    cfg.Feed.Repo,
		},
		Channel:      cfg.Feed.Channel,
		MarkerAsset:  cfg.Feed.MarkerAsset,
		ArchiveAsset: cfg.Feed.ArchiveAsset,
	}
}

// newUpdater wires a complete updater from configuration.
func newUpdater(cfg *config.Config, src launch.Source, logger *slog.Logger) (*update.Updater, error) {
	if err := config.ValidateForUpdate(cfg); err != nil {
		return nil, err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return update.New(updateOptions(cfg), update.Deps{
		Fetcher:   client,
		Extractor: newExtractor(cfg, logger),
		Launch:    src,
		Installer: update.NewInstaller(logger),
		Logger:    logger,
	}), nil
}
