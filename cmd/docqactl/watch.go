package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"gopherai-docqa/internal/app"
)

var watchSettle time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest PDFs as they appear in a directory",
	Long:  `Watches a directory and ingests every PDF created or rewritten in it once the file has stopped changing.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchSettle, "settle", time.Second, "quiet period before a changed file is ingested")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher failed: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s failed: %w", dir, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("watching %s for PDF files\n", dir)
	watchLoop(ctx, watcher.Events, watcher.Errors, watchSettle, func(path string) {
		ingestPath(ctx, cmd, path)
	})
	return nil
}

// watchLoop calls ingest once per PDF path after no event has been seen for
// it during settle. It returns when ctx is done or events is closed.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, settle time.Duration, ingest func(path string)) {
	pending := make(map[string]time.Time)
	tick := settle / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if isIngestEvent(ev) {
				pending[ev.Name] = time.Now()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("watch error: %v", err)
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) >= settle {
					delete(pending, path)
					ingest(path)
				}
			}
		}
	}
}

func isIngestEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".pdf")
}

func ingestPath(ctx context.Context, cmd *cobra.Command, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("read %s failed: %v", path, err)
		return
	}
	result := eng.Upload(ctx, []app.UploadFile{{Filename: filepath.Base(path), Data: data}})
	printUploadResult(cmd, result)
}
