package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/leapstack-labs/leapstyle/internal/task"
	"github.com/leapstack-labs/leapstyle/internal/watch"
)

// Watch builds name once, then rebuilds each build task reachable from name
// whenever files under its glob base change. Tasks whose glob base does not
// exist are skipped with a warning. It returns when ctx is done.
func (e *Engine) Watch(ctx context.Context, name string, debounce time.Duration) error {
	if name == "" {
		name = task.DefaultTask
	}
	g, err := e.registry.Graph()
	if err != nil {
		return err
	}
	if !g.HasTask(name) {
		return fmt.Errorf("%w: %s", task.ErrTaskNotFound, name)
	}

	if _, err := e.Run(ctx, []string{name}); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		e.logger.Error("initial build failed", slog.Any("error", err))
	}

	var targets []watch.Target
	for _, taskName := range g.Closure(name) {
		group, ok := e.groups[taskName]
		if !ok {
			continue
		}
		dir := group.Base()
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			e.logger.Warn("source directory does not exist, not watching",
				slog.String("task", taskName), slog.String("dir", dir))
			continue
		}
		targetName := taskName
		targets = append(targets, watch.Target{
			Name: targetName,
			Dir:  dir,
			Rebuild: func(ctx context.Context) error {
				_, err := e.Run(ctx, []string{targetName})
				return err
			},
		})
	}
	if len(targets) == 0 {
		return fmt.Errorf("task %s has no existing source directories to watch", name)
	}

	return watch.New(targets, debounce, e.logger).Run(ctx)
}
