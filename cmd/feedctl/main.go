package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"

	"momofeed/internal/config"
	"momofeed/internal/feed"
	"momofeed/internal/gateway"
	"momofeed/internal/log"
	"momofeed/internal/upload"
)

type options struct {
	Endpoint string `long:"endpoint" short:"e" description:"API base path (overrides MOMOFEED_CLIENT_ENDPOINT)"`
	Watch    bool   `long:"watch" short:"w" description:"keep syncing and print new feed items until interrupted"`

	Args struct {
		Files []string `positional-arg-name:"FILE" description:"image files to upload"`
	} `positional-args:"yes"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if opts.Endpoint != "" {
		cfg.Client.Endpoint = opts.Endpoint
	}

	logger := log.New(cfg.Environment)
	cli := log.Component(logger, "feedctl")

	store := feed.NewStore()
	client := gateway.NewClient(cfg.Client.Endpoint, logger)
	syncer := feed.NewSynchronizer(client, store, cfg.Client.SyncInterval, logger)
	syncer.OnNewItems = func(items []feed.Item) {
		for _, item := range items {
			cli.Info().
				Str("id", item.ID).
				Str("status", string(item.Status)).
				Str("url", item.URL).
				Msg("new feed item")
		}
	}

	bootCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := syncer.Bootstrap(bootCtx); err != nil {
		// The feed falls back to empty; syncing keeps trying.
		cli.Error().Err(err).Msg("error loading images")
	}
	cancel()

	stats := store.Stats()
	cli.Info().
		Int("loaded", store.Len()).
		Int("total", stats.Total).
		Int("approved", stats.Approved).
		Int("blurred", stats.Blurred).
		Int("blocked", stats.Blocked).
		Msg("feed loaded")

	syncer.Start()
	defer syncer.Stop()

	orchCfg := upload.DefaultConfig()
	orchCfg.PollInterval = cfg.Client.PollInterval
	orchCfg.MaxPollAttempts = cfg.Client.PollMaxAttempts

	for _, path := range opts.Args.Files {
		if err := uploadFile(client, store, orchCfg, logger, path); err != nil {
			cli.Error().Err(err).Str("file", path).Msg("upload failed")
		}
	}

	if opts.Watch {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		cli.Info().Msg("feed watch stopped")
	}
}

func uploadFile(client *gateway.Client, store *feed.Store, cfg upload.Config, logger zerolog.Logger, path string) error {
	cli := log.Component(logger, "feedctl")

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	contentType, err := detectContentType(f)
	if err != nil {
		return err
	}

	orch := upload.NewOrchestrator(client, store, cfg, logger)
	orch.Notify = func(state upload.State) {
		if state.FinalStatus != "" {
			cli.Info().
				Str("status", string(state.FinalStatus)).
				Str("verdict", state.Reason.Message()).
				Msg("moderation finished")
			return
		}
		cli.Debug().
			Int("step", state.Step).
			Int("progress", state.UploadProgress).
			Msg("processing")
	}
	defer orch.Dismiss()

	cli.Info().Str("file", path).Str("content_type", contentType).Msg("uploading")
	return orch.Upload(context.Background(), f, contentType, info.Size())
}

func detectContentType(f *os.File) (string, error) {
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}
