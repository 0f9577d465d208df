package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/leapmigrate/internal/engine"
	"github.com/spf13/cobra"
)

const defaultDebounce = 200 * time.Millisecond

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-import lineage documents as they change",
		Long: `Import every lineage document under dir, then watch the directory and
re-import documents when they are written. Each change invalidates the
user's cached merges.`,
		Example: `  leapmigrate watch ./lineage`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			user := cmdCtx.Cfg.User
			res, err := cmdCtx.Engine.Discover(ctx, user, args[0], engine.DiscoveryOptions{})
			if err != nil {
				return err
			}
			if err := cmdCtx.Renderer.Discovery(res); err != nil {
				return err
			}

			w := &watcher{
				eng:      cmdCtx.Engine,
				user:     user,
				debounce: debounce,
				logger:   cmdCtx.Logger,
				onImport: func(path string) { cmdCtx.Renderer.Success("Re-imported " + path) },
				onError:  func(path string, err error) { cmdCtx.Renderer.Warning(fmt.Sprintf("%s: %v", path, err)) },
			}
			cmdCtx.Renderer.Muted("Watching " + args[0] + " (Ctrl+C to stop)")
			return w.run(ctx, args[0])
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "Delay before re-importing a changed file")
	return cmd
}

// watcher re-imports lineage documents written under a directory.
type watcher struct {
	eng      *engine.Engine
	user     string
	debounce time.Duration
	logger   *slog.Logger
	onImport func(path string)
	onError  func(path string, err error)

	pending map[string]struct{}
}

func (w *watcher) run(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := watchDir(fw, dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.pending = make(map[string]struct{})

	// Debounce timer; fire is nil while nothing is pending
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.handle(fw, event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.flush(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// handle records event and reports whether a lineage document is pending.
func (w *watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watchDir(fw, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return false
		}
	}

	// Only handle write/create events for lineage documents
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !engine.IsLineageFile(event.Name) {
		return false
	}
	w.pending[event.Name] = struct{}{}
	return true
}

func (w *watcher) flush(ctx context.Context) {
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})

	sort.Strings(paths)
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		changed, err := w.eng.DiscoverFile(ctx, w.user, path)
		switch {
		case err != nil:
			w.onError(path, err)
		case changed:
			w.onImport(path)
		default:
			w.logger.Debug("lineage file unchanged", "path", path)
		}
	}
}

func watchDir(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		// Skip hidden directories
		if path != dir && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
