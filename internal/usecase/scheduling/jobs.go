package scheduling

import (
	"context"
	"log/slog"
)

// Housekeeper is the part of the chat client the scheduled jobs drive.
type Housekeeper interface {
	PruneCache() int
	FlushPartial(ctx context.Context) error
}

// RegisterHousekeeping registers the cache_prune and snapshot_flush actions
// against h and schedules them. An empty schedule leaves that job
// registered for RunNow but unscheduled.
func RegisterHousekeeping(s *Scheduler, h Housekeeper, pruneSchedule, flushSchedule string) error {
	s.RegisterAction(ActionCachePrune, func(ctx context.Context) error {
		if n := h.PruneCache(); n > 0 {
			s.logger.Info("pruned expired history", "entries", n)
		}
		return nil
	})
	s.RegisterAction(ActionSnapshotFlush, h.FlushPartial)

	for _, task := range []Task{
		{Name: "cache-prune", Schedule: pruneSchedule, Action: ActionCachePrune},
		{Name: "snapshot-flush", Schedule: flushSchedule, Action: ActionSnapshotFlush},
	} {
		if task.Schedule == "" {
			s.logger.Debug("task disabled", slog.String("task", task.Name))
			continue
		}
		if err := s.AddTask(task); err != nil {
			return err
		}
	}
	return nil
}
