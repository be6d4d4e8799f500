package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselhq/vessel/pkg/eventbus"
	"github.com/vesselhq/vessel/pkg/events"
	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/persistence"
	"github.com/vesselhq/vessel/pkg/persistence/file"
	"github.com/vesselhq/vessel/pkg/protocol"
	"github.com/vesselhq/vessel/pkg/registry"
	"github.com/vesselhq/vessel/pkg/workflow"
)

type capturePublisher struct {
	published []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published = append(p.published, event)

	return nil
}

func (p *capturePublisher) types() []events.EventType {
	seen := make([]events.EventType, 0, len(p.published))
	for _, event := range p.published {
		seen = append(seen, event.GetType())
	}

	return seen
}

func (p *capturePublisher) count(eventType events.EventType) int {
	total := 0

	for _, event := range p.published {
		if event.GetType() == eventType {
			total++
		}
	}

	return total
}

func (p *capturePublisher) signatureRequired(t *testing.T) events.SignatureRequired {
	t.Helper()

	for _, event := range p.published {
		if required, ok := event.(events.SignatureRequired); ok {
			return required
		}
	}

	t.Fatal("no signature required event published")

	return events.SignatureRequired{}
}

type processorFunc func(ctx context.Context, input protocol.Input) (*models.NodeResult, error)

func (f processorFunc) Execute(ctx context.Context, input protocol.Input) (*models.NodeResult, error) {
	return f(ctx, input)
}

// branchProcessor declares the branch-selector capability.
type branchProcessor struct {
	processorFunc
}

func (branchProcessor) IsBranchSelector() bool { return true }

// signerStub declares the signature capability.
type signerStub struct {
	processorFunc
}

func (signerStub) RequiresSignature() bool { return true }

type stubFactory struct {
	id        string
	processor protocol.NodeProcessor
}

func (f *stubFactory) Create(_ context.Context, _ string, _ map[string]any) (protocol.NodeProcessor, error) {
	return f.processor, nil
}

func (f *stubFactory) ID() string             { return f.id }
func (f *stubFactory) Name() string           { return f.id }
func (f *stubFactory) Description() string    { return "test node" }
func (f *stubFactory) Schema() map[string]any { return nil }

type harness struct {
	executor    *workflow.Executor
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   *capturePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(logger)
	publisher := &capturePublisher{}

	return &harness{
		executor:    workflow.NewExecutor("worker-test", logger, store, reg, publisher),
		persistence: store,
		registry:    reg,
		publisher:   publisher,
	}
}

func (h *harness) register(typeID string, processor protocol.NodeProcessor) {
	h.registry.RegisterNode(&stubFactory{id: typeID, processor: processor})
}

func (h *harness) createWorkflow(t *testing.T, wf *models.Workflow) {
	t.Helper()
	require.NoError(t, h.persistence.WorkflowRepository().Create(context.Background(), wf))
}

func okProcessor(output map[string]any) processorFunc {
	return func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		return &models.NodeResult{NodeID: in.NodeID, Success: true, Output: output}, nil
	}
}

func actionNode(id, nodeType string) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:       id,
		Type:     nodeType,
		Category: models.CategoryTypeAction,
		Name:     id,
		Enabled:  true,
	}
}

func edgeBetween(id, source, target string) *models.Edge {
	return &models.Edge{ID: id, SourceNodeID: source, TargetNodeID: target}
}

func publishedWorkflow(id string, nodes []*models.WorkflowNode, edges []*models.Edge) *models.Workflow {
	now := time.Now().UTC()
	trigger := &models.WorkflowNode{
		ID:       "trigger",
		Type:     models.NodeTypeTriggerWebhook,
		Category: models.CategoryTypeTrigger,
		Name:     "Webhook",
		Enabled:  true,
	}

	return &models.Workflow{
		ID:            id,
		Name:          "test workflow",
		Status:        models.WorkflowStatusPublished,
		Owner:         "user-1",
		TriggerNodeID: "trigger",
		Nodes:         append([]*models.WorkflowNode{trigger}, nodes...),
		Edges:         edges,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestExecutor_StartRunsChainToCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:double", processorFunc(func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		amount, _ := in.Data["amount"].(float64)

		return &models.NodeResult{NodeID: in.NodeID, Success: true, Output: map[string]any{"doubled": amount * 2}}, nil
	}))

	var reportInput map[string]any

	h.register("test:report", processorFunc(func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		reportInput = in.Data

		return &models.NodeResult{NodeID: in.NodeID, Success: true, Output: map[string]any{"ok": true}}, nil
	}))

	wf := publishedWorkflow("wf-1",
		[]*models.WorkflowNode{actionNode("double", "test:double"), actionNode("report", "test:report")},
		[]*models.Edge{
			{ID: "e1", SourceNodeID: "trigger", TargetNodeID: "double", Mappings: []models.FieldMapping{{SourcePath: "amount", TargetKey: "amount"}}},
			edgeBetween("e2", "double", "report"),
		})
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		UserID:      "user-1",
		TriggerData: map[string]any{"amount": float64(10)},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, ec.Status)
	assert.Equal(t, 2, ec.Steps)
	assert.Empty(t, ec.CurrentNodeID)
	require.NotNil(t, ec.CompletedAt)
	assert.Equal(t, map[string]any{"doubled": float64(20)}, ec.NodeOutputs["double"])

	// The downstream node saw the upstream output merged at the top level,
	// the trigger payload under "trigger" and its ancestors under "blocks".
	require.NotNil(t, reportInput)
	assert.Equal(t, float64(20), reportInput["doubled"])
	assert.Equal(t, map[string]any{"amount": float64(10)}, reportInput["trigger"])

	blocks, ok := reportInput["blocks"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, blocks, "double")

	records, err := h.persistence.NodeExecutionRepository().ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "double", records[0].NodeID)
	assert.Equal(t, models.NodeStatusSuccess, records[0].Status)
	assert.Equal(t, "report", records[1].NodeID)

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.NodeStartedEvent,
		events.NodeCompletedEvent,
		events.NodeStartedEvent,
		events.NodeCompletedEvent,
		events.ExecutionCompletedEvent,
	}, h.publisher.types())
}

func TestExecutor_StartIdempotentOnExecutionID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:ok", okProcessor(map[string]any{"done": true}))

	wf := publishedWorkflow("wf-1",
		[]*models.WorkflowNode{actionNode("step", "test:ok")},
		[]*models.Edge{edgeBetween("e1", "trigger", "step")})
	h.createWorkflow(t, wf)

	first, err := h.executor.Start(ctx, workflow.StartRequest{ExecutionID: "exec-1", WorkflowID: "wf-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, first.Status)

	// Same execution id again: the finished run comes back unchanged and
	// nothing re-executes.
	second, err := h.executor.Start(ctx, workflow.StartRequest{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		UserID:      "user-1",
		TriggerData: map[string]any{"different": true},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, second.Status)
	assert.Equal(t, first.Steps, second.Steps)

	records, err := h.persistence.NodeExecutionRepository().ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, 1, h.publisher.count(events.ExecutionStartedEvent))
}

func TestExecutor_StartRejectsUnpublishedWorkflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := publishedWorkflow("wf-draft", nil, nil)
	wf.Status = models.WorkflowStatusDraft
	h.createWorkflow(t, wf)

	_, err := h.executor.Start(ctx, workflow.StartRequest{WorkflowID: "wf-draft", UserID: "user-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotExecutable)
}

func TestExecutor_StartUnknownWorkflow(t *testing.T) {
	h := newHarness(t)

	_, err := h.executor.Start(context.Background(), workflow.StartRequest{WorkflowID: "nope", UserID: "user-1"})
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestExecutor_TriggerWithoutEdgesCompletesImmediately(t *testing.T) {
	h := newHarness(t)

	wf := publishedWorkflow("wf-empty", nil, nil)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(context.Background(), workflow.StartRequest{WorkflowID: "wf-empty", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, ec.Status)
	assert.Equal(t, 0, ec.Steps)
}

func TestExecutor_BranchSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:check", branchProcessor{func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		trigger, _ := in.Data["trigger"].(map[string]any)
		amount, _ := trigger["amount"].(float64)

		branch := "low"
		if amount >= 100 {
			branch = "high"
		}

		return &models.NodeResult{NodeID: in.NodeID, Success: true, BranchToFollow: branch, Output: map[string]any{"branch": branch}}, nil
	}})
	h.register("test:ok", okProcessor(map[string]any{"ran": true}))

	nodes := []*models.WorkflowNode{
		actionNode("check", "test:check"),
		actionNode("big", "test:ok"),
		actionNode("small", "test:ok"),
	}
	edges := []*models.Edge{
		edgeBetween("e1", "trigger", "check"),
		{ID: "e2", SourceNodeID: "check", TargetNodeID: "big", SourceHandle: "high"},
		{ID: "e3", SourceNodeID: "check", TargetNodeID: "small", SourceHandle: "low"},
	}

	wf := publishedWorkflow("wf-branch", nodes, edges)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{
		WorkflowID:  "wf-branch",
		UserID:      "user-1",
		TriggerData: map[string]any{"amount": float64(250)},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, ec.Status)
	assert.Contains(t, ec.NodeOutputs, "big")
	assert.NotContains(t, ec.NodeOutputs, "small")
}

func TestExecutor_BranchWithoutMatchEndsPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:pick", branchProcessor{func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		return &models.NodeResult{NodeID: in.NodeID, Success: true, BranchToFollow: "nothing-matches"}, nil
	}})
	h.register("test:ok", okProcessor(nil))

	nodes := []*models.WorkflowNode{actionNode("pick", "test:pick"), actionNode("next", "test:ok")}
	edges := []*models.Edge{
		edgeBetween("e1", "trigger", "pick"),
		{ID: "e2", SourceNodeID: "pick", TargetNodeID: "next", SourceHandle: "expected"},
	}

	wf := publishedWorkflow("wf-nomatch", nodes, edges)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{WorkflowID: "wf-nomatch", UserID: "user-1"})
	require.NoError(t, err)

	// No matching handle: the path ends and the run completes.
	assert.Equal(t, models.ExecutionStatusSuccess, ec.Status)
	assert.NotContains(t, ec.NodeOutputs, "next")
}

func TestExecutor_TargetHandleNestsInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:ok", okProcessor(map[string]any{"value": float64(7)}))

	var captured map[string]any

	h.register("test:capture", processorFunc(func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		captured = in.Data

		return &models.NodeResult{NodeID: in.NodeID, Success: true}, nil
	}))

	nodes := []*models.WorkflowNode{actionNode("producer", "test:ok"), actionNode("consumer", "test:capture")}
	edges := []*models.Edge{
		edgeBetween("e1", "trigger", "producer"),
		{ID: "e2", SourceNodeID: "producer", TargetNodeID: "consumer", TargetHandle: "upstream"},
	}

	wf := publishedWorkflow("wf-handle", nodes, edges)
	h.createWorkflow(t, wf)

	_, err := h.executor.Start(ctx, workflow.StartRequest{WorkflowID: "wf-handle", UserID: "user-1"})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, map[string]any{"value": float64(7)}, captured["upstream"])
}

func signingProcessor(t *testing.T, txHash string, rejectSignature string) signerStub {
	t.Helper()

	document := map[string]any{
		"chain_id":     float64(137),
		"safe_address": "0x5afE3855358E112B5647B952709E6165e1c1eEEe",
		"to":           "0x000000000000000000000000000000000000dEaD",
		"value":        "1000000000000000000",
		"data":         "0x",
	}

	return signerStub{func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		signature, ok := in.Data["signature"].(string)
		if !ok || signature == "" {
			return &models.NodeResult{
				NodeID:            in.NodeID,
				Success:           true,
				Output:            map[string]any{"proposed": true},
				RequiresSignature: true,
				SafeTxHash:        txHash,
				SafeTxData:        document,
			}, nil
		}

		if signature == rejectSignature {
			return &models.NodeResult{
				NodeID:            in.NodeID,
				Success:           false,
				Error:             "signature verification failed for wallet: ecdsa probe: GS026, eth_sign probe: GS024",
				RequiresSignature: true,
				SafeTxHash:        txHash,
				SafeTxData:        document,
			}, nil
		}

		assert.Equal(t, txHash, in.Data["safe_tx_hash"])
		assert.Equal(t, document, in.Data["safe_tx_data"])

		return &models.NodeResult{NodeID: in.NodeID, Success: true, Output: map[string]any{"tx_hash": "0xmined"}}, nil
	}}
}

func TestExecutor_PauseAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:sign", signingProcessor(t, "0xsafehash", ""))

	var afterInput map[string]any

	h.register("test:after", processorFunc(func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		afterInput = in.Data

		return &models.NodeResult{NodeID: in.NodeID, Success: true, Output: map[string]any{"notified": true}}, nil
	}))

	nodes := []*models.WorkflowNode{actionNode("send", "test:sign"), actionNode("after", "test:after")}
	edges := []*models.Edge{
		edgeBetween("e1", "trigger", "send"),
		edgeBetween("e2", "send", "after"),
	}

	wf := publishedWorkflow("wf-pause", nodes, edges)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{
		ExecutionID: "exec-pause",
		WorkflowID:  "wf-pause",
		UserID:      "user-1",
		TriggerData: map[string]any{"amount": float64(1)},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaitingForSignature, ec.Status)
	assert.Equal(t, "send", ec.PausedNodeID)
	assert.Equal(t, "0xsafehash", ec.SafeTxHash)
	require.NotNil(t, ec.PausedSnapshot)
	assert.Equal(t, 1, ec.PausedSnapshot.Steps)

	required := h.publisher.signatureRequired(t)
	assert.Equal(t, int64(137), required.ChainID)
	assert.Equal(t, "0x5afE3855358E112B5647B952709E6165e1c1eEEe", required.SafeAddress)
	assert.Equal(t, "0xsafehash", required.SafeTxHash)

	stored, err := h.persistence.ExecutionRepository().GetByID(ctx, "exec-pause")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaitingForSignature, stored.Status)

	resumed, err := h.executor.Resume(ctx, "exec-pause", "0xsignature")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)
	assert.Equal(t, 3, resumed.Steps) // send twice, after once
	assert.Empty(t, resumed.SafeTxHash)
	assert.Nil(t, resumed.PausedSnapshot)
	assert.Equal(t, map[string]any{"tx_hash": "0xmined"}, resumed.NodeOutputs["send"])

	require.NotNil(t, afterInput)
	assert.Equal(t, float64(1), afterInput["trigger"].(map[string]any)["amount"])

	records, err := h.persistence.NodeExecutionRepository().ListByExecution(ctx, "exec-pause")
	require.NoError(t, err)
	assert.Len(t, records, 3) // send attempt, send resume attempt, after

	assert.Equal(t, 1, h.publisher.count(events.SignatureRequiredEvent))
	assert.Equal(t, 1, h.publisher.count(events.ExecutionResumedEvent))
	assert.Equal(t, 1, h.publisher.count(events.ExecutionCompletedEvent))

	// A second resume races against nothing: the run is no longer waiting.
	_, err = h.executor.Resume(ctx, "exec-pause", "0xsignature")
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotWaiting(err))
}

func TestExecutor_ResumeRejectedSignatureSuspendsAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:sign", signingProcessor(t, "0xsafehash", "0xbad"))

	nodes := []*models.WorkflowNode{actionNode("send", "test:sign")}
	edges := []*models.Edge{edgeBetween("e1", "trigger", "send")}

	wf := publishedWorkflow("wf-reject", nodes, edges)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{ExecutionID: "exec-reject", WorkflowID: "wf-reject", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaitingForSignature, ec.Status)

	rejected, err := h.executor.Resume(ctx, "exec-reject", "0xbad")
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrSignatureRejected)
	assert.Contains(t, err.Error(), "GS026")
	assert.Equal(t, models.ExecutionStatusWaitingForSignature, rejected.Status)

	// The run is suspended again with the same pending transaction, so a
	// corrected signature still goes through.
	resumed, err := h.executor.Resume(ctx, "exec-reject", "0xgood")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)

	records, err := h.persistence.NodeExecutionRepository().ListByExecution(ctx, "exec-reject")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, models.NodeStatusError, records[1].Status)
	assert.Contains(t, records[1].Error, "GS026")

	assert.Equal(t, 2, h.publisher.count(events.SignatureRequiredEvent))
}

func TestExecutor_ResumeRejectsUnknownSnapshotVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:sign", signingProcessor(t, "0xsafehash", ""))

	wf := publishedWorkflow("wf-version",
		[]*models.WorkflowNode{actionNode("send", "test:sign")},
		[]*models.Edge{edgeBetween("e1", "trigger", "send")})
	h.createWorkflow(t, wf)

	_, err := h.executor.Start(ctx, workflow.StartRequest{ExecutionID: "exec-version", WorkflowID: "wf-version", UserID: "user-1"})
	require.NoError(t, err)

	// Corrupt the stored snapshot version to simulate a run paused by an
	// incompatible engine build.
	stored, err := h.persistence.ExecutionRepository().GetByID(ctx, "exec-version")
	require.NoError(t, err)
	stored.PausedSnapshot.SchemaVersion = 99
	require.NoError(t, h.persistence.ExecutionRepository().Update(ctx, stored))

	failed, err := h.executor.Resume(ctx, "exec-version", "0xsig")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "snapshot schema version")
}

func TestExecutor_SignatureFlagIgnoredWithoutCapability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A plain processor sets RequiresSignature without declaring the
	// capability. The run must complete instead of suspending.
	h.register("test:pretender", processorFunc(func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		return &models.NodeResult{
			NodeID:            in.NodeID,
			Success:           true,
			Output:            map[string]any{"done": true},
			RequiresSignature: true,
			SafeTxHash:        "0xunhonored",
		}, nil
	}))

	nodes := []*models.WorkflowNode{actionNode("pretender", "test:pretender")}
	edges := []*models.Edge{edgeBetween("e1", "trigger", "pretender")}

	wf := publishedWorkflow("wf-pretender", nodes, edges)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{WorkflowID: "wf-pretender", UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, ec.Status)
	assert.Empty(t, ec.SafeTxHash)
	assert.Equal(t, map[string]any{"done": true}, ec.NodeOutputs["pretender"])
	assert.Equal(t, 0, h.publisher.count(events.SignatureRequiredEvent))
	assert.Equal(t, 1, h.publisher.count(events.ExecutionCompletedEvent))
}

func TestExecutor_SecretsFromEnvReachNodes(t *testing.T) {
	t.Setenv("VESSEL_SECRET_API_TOKEN", "tok-123")
	t.Setenv("VESSEL_SECRET_", "nameless")

	h := newHarness(t)
	ctx := context.Background()

	var seen map[string]string

	h.register("test:secret", processorFunc(func(_ context.Context, in protocol.Input) (*models.NodeResult, error) {
		seen = in.Secrets

		return &models.NodeResult{NodeID: in.NodeID, Success: true}, nil
	}))

	nodes := []*models.WorkflowNode{actionNode("reader", "test:secret")}
	edges := []*models.Edge{edgeBetween("e1", "trigger", "reader")}

	wf := publishedWorkflow("wf-secrets", nodes, edges)
	h.createWorkflow(t, wf)

	_, err := h.executor.Start(ctx, workflow.StartRequest{WorkflowID: "wf-secrets", UserID: "user-1"})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "tok-123", seen["API_TOKEN"])
	assert.NotContains(t, seen, "")
}

func TestExecutor_MidGraphTriggerIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:ok", okProcessor(map[string]any{"ok": true}))

	relay := &models.WorkflowNode{
		ID:       "relay",
		Type:     models.NodeTypeTriggerWebhook,
		Category: models.CategoryTypeTrigger,
		Name:     "relay",
		Enabled:  true,
	}

	nodes := []*models.WorkflowNode{actionNode("before", "test:ok"), relay, actionNode("after", "test:ok")}
	edges := []*models.Edge{
		edgeBetween("e1", "trigger", "before"),
		edgeBetween("e2", "before", "relay"),
		edgeBetween("e3", "relay", "after"),
	}

	wf := publishedWorkflow("wf-relay", nodes, edges)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{WorkflowID: "wf-relay", UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, ec.Status)
	assert.Contains(t, ec.NodeOutputs, "before")
	assert.Contains(t, ec.NodeOutputs, "after")
	assert.NotContains(t, ec.NodeOutputs, "relay")

	// The pass-through spends a step but executes nothing.
	assert.Equal(t, 3, ec.Steps)
	assert.Equal(t, 2, h.publisher.count(events.NodeStartedEvent))
}

func TestExecutor_ContinueOnError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:flaky", processorFunc(func(_ context.Context, _ protocol.Input) (*models.NodeResult, error) {
		return nil, errors.New("upstream exploded")
	}))
	h.register("test:ok", okProcessor(map[string]any{"recovered": true}))

	flaky := actionNode("flaky", "test:flaky")
	flaky.ContinueOnError = true

	nodes := []*models.WorkflowNode{flaky, actionNode("after", "test:ok")}
	edges := []*models.Edge{
		edgeBetween("e1", "trigger", "flaky"),
		edgeBetween("e2", "flaky", "after"),
	}

	wf := publishedWorkflow("wf-continue", nodes, edges)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{WorkflowID: "wf-continue", UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, ec.Status)
	assert.Equal(t, map[string]any{"error": "upstream exploded"}, ec.NodeOutputs["flaky"])
	assert.Contains(t, ec.NodeOutputs, "after")
	assert.Equal(t, 1, h.publisher.count(events.NodeFailedEvent))
	assert.Equal(t, 1, h.publisher.count(events.ExecutionCompletedEvent))
}

func TestExecutor_NodeFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:boom", processorFunc(func(_ context.Context, _ protocol.Input) (*models.NodeResult, error) {
		return nil, errors.New("boom")
	}))
	h.register("test:ok", okProcessor(nil))

	nodes := []*models.WorkflowNode{actionNode("boom", "test:boom"), actionNode("never", "test:ok")}
	edges := []*models.Edge{
		edgeBetween("e1", "trigger", "boom"),
		edgeBetween("e2", "boom", "never"),
	}

	wf := publishedWorkflow("wf-fail", nodes, edges)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{WorkflowID: "wf-fail", UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, ec.Status)
	assert.Equal(t, "boom", ec.ErrorMessage)
	require.NotNil(t, ec.CompletedAt)
	assert.NotContains(t, ec.NodeOutputs, "never")
	assert.Equal(t, 1, h.publisher.count(events.ExecutionFailedEvent))
}

func TestExecutor_UnregisteredNodeTypeFailsRun(t *testing.T) {
	h := newHarness(t)

	wf := publishedWorkflow("wf-unknown",
		[]*models.WorkflowNode{actionNode("mystery", "test:unregistered")},
		[]*models.Edge{edgeBetween("e1", "trigger", "mystery")})
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(context.Background(), workflow.StartRequest{WorkflowID: "wf-unknown", UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, ec.Status)
	assert.Contains(t, ec.ErrorMessage, "not registered")
}

func TestExecutor_DisabledNodeFailsRun(t *testing.T) {
	h := newHarness(t)

	h.register("test:ok", okProcessor(nil))

	disabled := actionNode("off", "test:ok")
	disabled.Enabled = false

	wf := publishedWorkflow("wf-disabled",
		[]*models.WorkflowNode{disabled},
		[]*models.Edge{edgeBetween("e1", "trigger", "off")})
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(context.Background(), workflow.StartRequest{WorkflowID: "wf-disabled", UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, ec.Status)
	assert.Contains(t, ec.ErrorMessage, "disabled")
}

func TestExecutor_CycleProtection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:ok", okProcessor(map[string]any{"spin": true}))

	nodes := []*models.WorkflowNode{actionNode("loop", "test:ok")}
	edges := []*models.Edge{
		edgeBetween("e1", "trigger", "loop"),
		edgeBetween("e2", "loop", "loop"),
	}

	wf := publishedWorkflow("wf-cycle", nodes, edges)
	h.createWorkflow(t, wf)

	ec, err := h.executor.Start(ctx, workflow.StartRequest{ExecutionID: "exec-cycle", WorkflowID: "wf-cycle", UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, ec.Status)
	assert.Contains(t, ec.ErrorMessage, "step budget")
	assert.Equal(t, 25, ec.Steps) // max(3×2 nodes, 25)

	records, err := h.persistence.NodeExecutionRepository().ListByExecution(ctx, "exec-cycle")
	require.NoError(t, err)
	assert.Len(t, records, 25)
}

func TestExecutor_StartPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:ok", okProcessor(map[string]any{"done": true}))

	wf := publishedWorkflow("wf-pending",
		[]*models.WorkflowNode{actionNode("step", "test:ok")},
		[]*models.Edge{edgeBetween("e1", "trigger", "step")})
	h.createWorkflow(t, wf)

	pending := models.NewPendingExecutionContext("exec-pending", "wf-pending", "user-1", map[string]any{"k": "v"})
	require.NoError(t, h.persistence.ExecutionRepository().Create(ctx, pending))

	ec, err := h.executor.StartPending(ctx, "exec-pending")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, ec.Status)
	assert.Contains(t, ec.NodeOutputs, "step")

	// Redelivery loses the claim: the run is no longer pending.
	_, err = h.executor.StartPending(ctx, "exec-pending")
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotPending(err))

	_, err = h.executor.StartPending(ctx, "exec-unknown")
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutor_Get(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register("test:ok", okProcessor(map[string]any{"done": true}))

	wf := publishedWorkflow("wf-get",
		[]*models.WorkflowNode{actionNode("step", "test:ok")},
		[]*models.Edge{edgeBetween("e1", "trigger", "step")})
	h.createWorkflow(t, wf)

	_, err := h.executor.Start(ctx, workflow.StartRequest{ExecutionID: "exec-get", WorkflowID: "wf-get", UserID: "user-1"})
	require.NoError(t, err)

	ec, records, err := h.executor.Get(ctx, "exec-get")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, ec.Status)
	require.Len(t, records, 1)
	assert.Equal(t, "step", records[0].NodeID)

	_, _, err = h.executor.Get(ctx, "exec-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotFound(err))
}
