package webhook

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
)

// SendBatch delivers tasks in groups of Config.BatchSize. Tasks inside a
// group are sent concurrently; groups are separated by Config.BatchPause.
// Results are returned in input order. When ctx is done, the remaining tasks
// are reported as failed without being sent.
func (d *Dispatcher) SendBatch(ctx context.Context, batch []tasks.TaskRecord) BatchResult {
	results := make([]DeliveryResult, len(batch))
	size := d.cfg.BatchSize

	for start := 0; start < len(batch); start += size {
		if err := ctx.Err(); err != nil {
			for i := start; i < len(batch); i++ {
				results[i] = DeliveryResult{Message: msgGeneric, Error: err.Error(), Class: ClassGeneric}
			}
			break
		}

		end := min(start+size, len(batch))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = d.sendLimited(ctx, batch[i])
				return nil
			})
		}
		_ = g.Wait()

		if end < len(batch) && d.cfg.BatchPause > 0 {
			t := time.NewTimer(d.cfg.BatchPause)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}

	out := BatchResult{Results: results}
	for _, r := range results {
		if r.Success {
			out.Successful++
		} else {
			out.Failed++
		}
	}
	d.logger.Info("batch delivered",
		"tasks", len(batch),
		"successful", out.Successful,
		"failed", out.Failed,
	)
	return out
}

func (d *Dispatcher) sendLimited(ctx context.Context, task tasks.TaskRecord) DeliveryResult {
	if d.limiter != nil && d.Configured() {
		if err := d.limiter.Wait(ctx); err != nil {
			return DeliveryResult{Message: msgGeneric, Error: err.Error(), Class: ClassGeneric}
		}
	}
	return d.Send(ctx, task)
}
