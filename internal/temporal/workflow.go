package temporal

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/proptrust/backend/internal/domain"
	"github.com/proptrust/backend/internal/extraction"
)

// VerifyDocumentInput is the workflow input.
type VerifyDocumentInput struct {
	Document     []byte
	Format       extraction.Format
	DeclaredType domain.DocumentType
	PropertyID   string
	Anchor       bool
}

// VerifyDocumentOutput is the workflow result.
type VerifyDocumentOutput struct {
	PropertyID     string
	VerificationID string
	RiskScore      int
	RiskLevel      string
	FingerprintHex string
	Anchored       bool
	BlockHeight    int64
}

// VerifyDocumentWorkflow runs the verification pipeline as a durable
// workflow. The pipeline activity carries the heavy stage deadlines; the
// anchor step retries independently so a flaky chain endpoint cannot
// fail an already-persisted verification.
func VerifyDocumentWorkflow(ctx workflow.Context, input VerifyDocumentInput) (*VerifyDocumentOutput, error) {
	pipelineOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			MaximumAttempts: 1, // The pipeline is deterministic; retrying cannot help a BadInput.
		},
	}

	var result *VerifyDocumentOutput
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, pipelineOpts),
		ActivityRunPipeline,
		input,
	).Get(ctx, &result)
	if err != nil {
		return nil, err
	}

	if input.Anchor && !result.Anchored {
		anchorOpts := workflow.ActivityOptions{
			StartToCloseTimeout: 1 * time.Minute,
			RetryPolicy: &sdktemporal.RetryPolicy{
				InitialInterval: 5 * time.Second,
				MaximumAttempts: 5,
			},
		}
		var anchored *VerifyDocumentOutput
		err := workflow.ExecuteActivity(
			workflow.WithActivityOptions(ctx, anchorOpts),
			ActivityAnchor,
			result,
		).Get(ctx, &anchored)
		if err != nil {
			// Anchor failure leaves the persisted record unanchored,
			// mirroring the synchronous path.
			workflow.GetLogger(ctx).Warn("anchoring failed", "property_id", result.PropertyID, "error", err)
			return result, nil
		}
		result = anchored
	}

	return result, nil
}
