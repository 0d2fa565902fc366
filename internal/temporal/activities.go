package temporal

import (
	"context"
	"encoding/hex"

	"github.com/proptrust/backend/internal/verification"
)

// Activity names as registered on the worker.
const (
	ActivityRunPipeline = "RunPipelineActivity"
	ActivityAnchor      = "AnchorActivity"
)

// Activities bundles the workflow activities over the shared engine.
type Activities struct {
	engine *verification.Orchestrator
}

// NewActivities creates the activity set.
func NewActivities(engine *verification.Orchestrator) *Activities {
	return &Activities{engine: engine}
}

// RunPipelineActivity executes the full verification pipeline, anchoring
// inline when requested. An anchor failure inside the pipeline is
// non-fatal here; the workflow retries it through AnchorActivity.
func (a *Activities) RunPipelineActivity(ctx context.Context, input VerifyDocumentInput) (*VerifyDocumentOutput, error) {
	result, err := a.engine.Verify(ctx, verification.VerifyRequest{
		Document:     input.Document,
		Format:       input.Format,
		DeclaredType: input.DeclaredType,
		PropertyID:   input.PropertyID,
		Anchor:       input.Anchor,
	})
	if err != nil {
		return nil, err
	}

	out := &VerifyDocumentOutput{
		PropertyID:     result.Record.PropertyID,
		VerificationID: result.Record.VerificationID,
		RiskScore:      result.Record.RiskScore,
		RiskLevel:      string(result.Record.RiskLevel),
		FingerprintHex: hex.EncodeToString(result.Record.Fingerprint),
	}
	if result.Receipt != nil {
		out.Anchored = true
		out.BlockHeight = result.Receipt.BlockHeight
	}
	return out, nil
}

// AnchorActivity re-attempts anchoring for an already-persisted record.
func (a *Activities) AnchorActivity(ctx context.Context, prev *VerifyDocumentOutput) (*VerifyDocumentOutput, error) {
	receipt, err := a.engine.AnchorVerification(ctx, prev.VerificationID)
	if err != nil {
		return nil, err
	}
	out := *prev
	if receipt != nil {
		out.Anchored = true
		out.BlockHeight = receipt.BlockHeight
	}
	return &out, nil
}
