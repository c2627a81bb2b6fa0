// Package main (in batch-subfolder) removes backgrounds from local files in one run: batch [-out DIR] FILE...
package main

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/UnendingLoop/ClearCut/internal/config"
	"github.com/UnendingLoop/ClearCut/internal/download"
	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/UnendingLoop/ClearCut/internal/mwlogger"
	"github.com/UnendingLoop/ClearCut/internal/remover"
	"github.com/UnendingLoop/ClearCut/internal/service"
	"github.com/UnendingLoop/ClearCut/internal/storage/memstorage"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/helpers"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %s\nExiting app...", err)
	}

	flags := pflag.NewFlagSet("batch", pflag.ExitOnError)
	outDir := flags.StringP("out", "o", cfg.Delivery.OutputDir, "directory for processed PNG files")
	concurrency := flags.IntP("concurrency", "k", cfg.Batch.Concurrency, "images processed at once")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: batch [-out DIR] FILE...")
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])
	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.App.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// один run-id на весь прогон
	ctx = mwlogger.WithLogger(ctx, zlog.Logger.With().Str("run_id", helpers.CreateUUID()).Logger())

	dlv, err := download.NewDirDeliverer(*outDir)
	if err != nil {
		log.Fatalf("Failed to prepare output dir: %v", err)
	}

	rm := remover.WithTimeout(remover.NewGeminiRemover(cfg.Remote.APIKey, cfg.Remote.Model), cfg.Remote.Timeout)
	var svc ImageBatchService = service.NewOrchestrator(rm, memstorage.New(), dlv,
		service.WithConcurrency(*concurrency),
		service.WithDownloadInterval(cfg.Batch.DownloadInterval),
	)

	os.Exit(run(ctx, svc, flags.Args()))
}

// run returns the process exit code: 1 if any file could not be read or any image ended in error
func run(ctx context.Context, svc ImageBatchService, paths []string) int {
	logger := mwlogger.LoggerFromContext(ctx)
	code := 0

	files := make([]model.UploadFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			logger.Error().Err(err).Str("file", p).Msg("Failed to read file")
			code = 1
			continue
		}
		files = append(files, model.UploadFile{
			Name:     filepath.Base(p),
			MimeType: mime.TypeByExtension(filepath.Ext(p)),
			Data:     data,
		})
	}

	unsubscribe := svc.Subscribe(progressLogger(ctx))
	defer unsubscribe()

	added, err := svc.AddItems(ctx, files)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to add files")
		return 1
	}
	if len(added) == 0 {
		logger.Error().Msg(model.ErrNoFiles.Error())
		return 1
	}

	report, err := svc.ProcessBatch(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Batch failed")
		return 1
	}

	n, err := svc.DownloadAll(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Some results were not saved")
		code = 1
	}
	logger.Info().Int("saved", n).Int("failed", report.Failed).Int("skipped", report.Skipped).Msg("Done")

	for _, it := range svc.Snapshot().Items {
		if it.Status != model.StatusCompleted {
			logger.Error().Str("file", it.Name).Str("status", string(it.Status)).Str("error", it.ErrMsg).Msg("Image was not processed")
			code = 1
		}
	}
	return code
}

// progressLogger logs every status change once; snapshots may arrive out of order from parallel items
func progressLogger(ctx context.Context) func(model.Snapshot) {
	logger := mwlogger.LoggerFromContext(ctx)

	var mu sync.Mutex
	var lastVersion uint64
	seen := make(map[string]model.Status)

	return func(snap model.Snapshot) {
		mu.Lock()
		defer mu.Unlock()

		if snap.Version <= lastVersion {
			return
		}
		lastVersion = snap.Version

		for _, it := range snap.Items {
			if seen[it.ID] == it.Status {
				continue
			}
			seen[it.ID] = it.Status
			logger.Info().
				Str("file", it.Name).
				Str("status", string(it.Status)).
				Int("completed", snap.Stats.Completed).
				Int("failed", snap.Stats.Failed).
				Int("total", snap.Stats.Total).
				Msg("Progress")
		}
	}
}
