// Package temporal implements durable pipeline execution on Temporal.
package temporal

import (
	"context"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// ClientConfig contains Temporal client configuration.
type ClientConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string
	Timeout   time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HostPort:  "localhost:7233",
		Namespace: "proptrust",
		TaskQueue: "proptrust-verification",
		Timeout:   30 * time.Second,
	}
}

// Client wraps the Temporal SDK client.
type Client struct {
	logger *slog.Logger
	client client.Client
	config ClientConfig
}

// NewClient creates a new Temporal client.
func NewClient(logger *slog.Logger, config ClientConfig) (*Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
	})
	if err != nil {
		logger.Error("failed to create Temporal client", "error", err)
		return nil, err
	}

	return &Client{
		logger: logger.With("service", "temporal"),
		client: c,
		config: config,
	}, nil
}

// StartVerification launches a durable verification workflow.
func (c *Client) StartVerification(ctx context.Context, workflowID string, input VerifyDocumentInput) (client.WorkflowRun, error) {
	options := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: c.config.TaskQueue,
	}
	run, err := c.client.ExecuteWorkflow(ctx, options, VerifyDocumentWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start verification workflow", "workflow_id", workflowID, "error", err)
		return nil, err
	}
	c.logger.Info("verification workflow started", "workflow_id", workflowID, "run_id", run.GetRunID())
	return run, nil
}

// Close shuts down the underlying client.
func (c *Client) Close() {
	c.client.Close()
}
