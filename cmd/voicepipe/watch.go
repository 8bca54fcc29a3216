package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/voicepipe/voicepipe/internal/config"
	"github.com/voicepipe/voicepipe/internal/job"
	"github.com/voicepipe/voicepipe/internal/provider"
)

// watchQueueSize bounds how many discovered files can wait on the worker
// before new arrivals are skipped.
const watchQueueSize = 64

func watchCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Transcribe audio files as they appear in a directory",
		Long: `Watch a directory and transcribe every audio file dropped into it.
Each transcript is written next to its source file (or into --output-dir)
with a .txt extension. Configuration changes are picked up without a
restart.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), args[0], outputDir)
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for transcripts (default: alongside the audio)")

	return cmd
}

func runWatch(parent context.Context, dir, outputDir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	mgr, err := config.NewManager()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.StartWatching(ctx); err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	defer mgr.Stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}

	log.Printf("watch: transcribing audio dropped into %s", dir)

	// Transcription runs on its own goroutine so the event loop keeps
	// draining while a long job is in flight. A single worker keeps
	// submissions sequential for provider rate limits.
	queue := make(chan string, watchQueueSize)
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		for path := range queue {
			if err := processWatchedFile(ctx, mgr.GetConfig(), path, outputDir); err != nil {
				log.Printf("watch: %s: %v", filepath.Base(path), err)
			}
		}
	}()
	defer workers.Wait()
	defer close(queue)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Create covers both new files and editor-style renames into
			// place; Write-only events for a file still being copied are
			// retried on the Create that follows on most platforms.
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			if !offerFile(queue, event.Name) {
				log.Printf("watch: queue full, skipping %s", filepath.Base(event.Name))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: watcher error: %v", err)
		}
	}
}

// processWatchedFile runs one file through the pipeline and writes the
// transcript. A failed file is logged and skipped; the watch keeps running.
func processWatchedFile(ctx context.Context, cfg *config.Config, path, outputDir string) error {
	target := transcriptPath(path, outputDir)
	if _, err := os.Stat(target); err == nil {
		return nil // already transcribed
	}

	p := provider.Get(cfg.Transcription.Provider)
	if p == nil {
		return fmt.Errorf("unknown provider %q in config", cfg.Transcription.Provider)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	orch, err := job.New(job.Config{
		Provider:         p,
		APIKey:           cfg.ResolveAPIKey(cfg.Transcription.Provider),
		Planner:          cfg.ToPlanner(),
		NormalizeOptions: cfg.ToNormalizeOptions(),
		PayloadCeiling:   cfg.Chunking.PayloadCeiling,
	})
	if err != nil {
		return err
	}

	log.Printf("watch: transcribing %s", filepath.Base(path))
	handle, err := orch.Start(ctx, job.Source{
		Name: filepath.Base(path),
		MIME: mimeFromExt(path),
		Data: data,
	}, job.Options{
		Language:      cfg.Transcription.Language,
		Model:         cfg.Transcription.Model,
		Punctuate:     cfg.Transcription.Punctuate,
		Diarize:       cfg.Transcription.Diarize,
		SkipNormalize: !cfg.Normalize.Enabled,
	})
	if err != nil {
		return err
	}

	final := handle.Wait()
	if final.Status != job.StatusCompleted {
		if final.Err != nil {
			return final.Err
		}
		return fmt.Errorf("job ended %s", final.Status)
	}

	if err := os.WriteFile(target, []byte(final.Text+"\n"), 0644); err != nil {
		return err
	}
	log.Printf("watch: wrote %s", target)
	return nil
}

// offerFile hands a discovered file to the worker without ever blocking
// the event loop; a full queue drops the file instead of stalling event
// draining.
func offerFile(queue chan<- string, path string) bool {
	select {
	case queue <- path:
		return true
	default:
		return false
	}
}

func transcriptPath(audioPath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath)) + ".txt"
	if outputDir != "" {
		return filepath.Join(outputDir, base)
	}
	return filepath.Join(filepath.Dir(audioPath), base)
}

func isAudioFile(path string) bool {
	return mimeFromExt(path) != "application/octet-stream"
}
