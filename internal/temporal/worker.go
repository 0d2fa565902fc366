// Package temporal implements worker registration for the verification
// workflow.
package temporal

import (
	"log/slog"

	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	TaskQueue string
}

// StartWorker starts the Temporal worker with the workflow and
// activities registered.
func StartWorker(logger *slog.Logger, client *Client, config WorkerConfig, activities *Activities) (worker.Worker, error) {
	logger.Info("starting Temporal worker", "task_queue", config.TaskQueue)

	w := worker.New(client.client, config.TaskQueue, worker.Options{})
	w.RegisterWorkflow(VerifyDocumentWorkflow)
	w.RegisterActivity(activities)

	if err := w.Start(); err != nil {
		logger.Error("failed to start worker", "error", err)
		return nil, err
	}

	logger.Info("worker started successfully")
	return w, nil
}
