package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/vesselhq/vessel/pkg/events"
	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
)

// minStepBudget keeps tiny graphs from failing on legitimate short loops.
const minStepBudget = 25

// stepBudget bounds total node executions for cycle protection.
func stepBudget(nodeCount int) int {
	budget := 3 * nodeCount
	if budget < minStepBudget {
		return minStepBudget
	}

	return budget
}

// run is the single traversal routine. node is the next node to execute;
// visited and ec.Steps carry across pauses through the snapshot. inject is
// merged into the first node's input only (the resume signature injection).
//
// The returned error reports infrastructure problems; a failed run is a
// normal outcome and comes back with status failed and a nil error.
func (e *Executor) run(ctx context.Context, wf *models.Workflow, ec *models.ExecutionContext, node *models.WorkflowNode, visited map[string]bool, inject map[string]any) (*models.ExecutionContext, error) {
	budget := stepBudget(len(wf.Nodes))

	for node != nil {
		if ec.Steps >= budget {
			return e.failRun(ctx, ec, node.ID, fmt.Sprintf("cycle protection: step budget of %d node executions exhausted", budget))
		}

		if node.IsTriggerNode() {
			// Trigger-category nodes fire runs, they do not execute. A
			// trigger reached mid-graph is pass-through: spend a step for
			// cycle protection and follow its single outgoing edge.
			ec.Steps++
			visited[node.ID] = true

			edges := wf.OutgoingEdges(node.ID)
			if len(edges) == 0 {
				node = nil

				continue
			}

			next := wf.Node(edges[0].TargetNodeID)
			if next == nil {
				return e.failRun(ctx, ec, node.ID, fmt.Sprintf("edge %q targets unknown node %q", edges[0].ID, edges[0].TargetNodeID))
			}

			node = next

			continue
		}

		if !node.Enabled {
			return e.failRun(ctx, ec, node.ID, fmt.Sprintf("node %q is disabled", node.ID))
		}

		ec.Steps++
		ec.CurrentNodeID = node.ID
		visited[node.ID] = true

		input := e.collectInput(wf, ec, node)

		if inject != nil {
			for key, value := range inject {
				input[key] = value
			}

			inject = nil
		}

		started := events.NodeStarted{
			BaseEvent:   e.baseEvent(events.NodeStartedEvent, wf.ID),
			ExecutionID: ec.ID,
			NodeID:      node.ID,
			NodeType:    node.Type,
		}
		e.publish(ctx, ec.ID, started)

		startedAt := time.Now().UTC()

		processor, err := e.registry.CreateNode(ctx, node.Type, node.ID, node.Config)
		if err != nil {
			if recordErr := e.recordNode(ctx, ec, node, input, nil, err.Error(), startedAt); recordErr != nil {
				return nil, recordErr
			}

			e.publishNodeFailed(ctx, wf, ec, node, err.Error())

			return e.failRun(ctx, ec, node.ID, err.Error())
		}

		result, execErr := processor.Execute(ctx, protocol.Input{
			ExecutionID: ec.ID,
			WorkflowID:  wf.ID,
			UserID:      ec.UserID,
			NodeID:      node.ID,
			Data:        input,
			Secrets:     e.secrets,
			Logger:      e.logger.With("execution_id", ec.ID, "node_id", node.ID),
		})

		finishedAt := time.Now().UTC()

		// Suspension point: the node demands an owner signature before the
		// run can go further. Re-demands after a rejected signature land
		// here too, with Success=false. Only processors declaring the
		// capability may suspend; anyone else setting the flag is ignored.
		if execErr == nil && result != nil && result.RequiresSignature && awaitsSignature(processor) {
			return e.pauseRun(ctx, ec, node, input, result, visited, startedAt, finishedAt)
		}

		if execErr != nil || result == nil || !result.Success {
			message := nodeFailureMessage(result, execErr)

			if recordErr := e.recordNode(ctx, ec, node, input, result, message, startedAt); recordErr != nil {
				return nil, recordErr
			}

			e.publishNodeFailed(ctx, wf, ec, node, message)

			if !node.ContinueOnError {
				return e.failRun(ctx, ec, node.ID, message)
			}

			// The error output is recorded and traversal proceeds.
			ec.NodeOutputs[node.ID] = map[string]any{"error": message}

			if err := e.persistence.ExecutionRepository().Update(ctx, ec); err != nil {
				return nil, fmt.Errorf("failed to persist execution %s: %w", ec.ID, err)
			}

			node, err = e.nextNode(wf, node, processor, result)
			if err != nil {
				return e.failRun(ctx, ec, ec.CurrentNodeID, err.Error())
			}

			continue
		}

		output := result.Output
		if output == nil {
			output = map[string]any{}
		}

		ec.NodeOutputs[node.ID] = output

		if recordErr := e.recordNode(ctx, ec, node, input, result, "", startedAt); recordErr != nil {
			return nil, recordErr
		}

		if err := e.persistence.ExecutionRepository().Update(ctx, ec); err != nil {
			return nil, fmt.Errorf("failed to persist execution %s: %w", ec.ID, err)
		}

		completed := events.NodeCompleted{
			BaseEvent:   e.baseEvent(events.NodeCompletedEvent, wf.ID),
			ExecutionID: ec.ID,
			NodeID:      node.ID,
			DurationMS:  finishedAt.Sub(startedAt).Milliseconds(),
		}
		e.publish(ctx, ec.ID, completed)

		node, err = e.nextNode(wf, node, processor, result)
		if err != nil {
			return e.failRun(ctx, ec, ec.CurrentNodeID, err.Error())
		}
	}

	ec.MarkCompleted()

	if err := e.persistence.ExecutionRepository().Update(ctx, ec); err != nil {
		return nil, fmt.Errorf("failed to persist execution %s: %w", ec.ID, err)
	}

	completed := events.ExecutionCompleted{
		BaseEvent:   e.baseEvent(events.ExecutionCompletedEvent, wf.ID),
		ExecutionID: ec.ID,
		Duration:    time.Since(ec.CreatedAt),
	}
	e.publish(ctx, ec.ID, completed)

	e.logger.Info("execution completed",
		"execution_id", ec.ID, "workflow_id", wf.ID, "steps", ec.Steps)

	return ec, nil
}

// pauseRun freezes the traversal state and suspends the run in one store
// operation. A result that demanded a signature after rejecting one
// (Success=false) additionally surfaces ErrSignatureRejected to the caller.
func (e *Executor) pauseRun(ctx context.Context, ec *models.ExecutionContext, node *models.WorkflowNode, input map[string]any, result *models.NodeResult, visited map[string]bool, startedAt, finishedAt time.Time) (*models.ExecutionContext, error) {
	record := &models.NodeExecutionRecord{
		ID:          uuid.New().String(),
		ExecutionID: ec.ID,
		NodeID:      node.ID,
		Status:      models.NodeStatusSuccess,
		Input:       input,
		Output:      result.Output,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		DurationMS:  finishedAt.Sub(startedAt).Milliseconds(),
	}

	if !result.Success {
		record.Status = models.NodeStatusError
		record.Error = result.Error
	}

	if err := e.persistence.NodeExecutionRepository().Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record node execution %s/%s: %w", ec.ID, node.ID, err)
	}

	snapshot := models.NewPausedSnapshot(ec, sortedVisited(visited))

	if err := e.persistence.ExecutionRepository().SavePause(ctx, ec.ID, node.ID, snapshot, result.SafeTxHash, result.SafeTxData); err != nil {
		return nil, fmt.Errorf("failed to pause execution %s: %w", ec.ID, err)
	}

	ec.MarkWaitingForSignature(node.ID, snapshot, result.SafeTxHash, result.SafeTxData)

	chainID, safeAddress := signatureEventFields(result.SafeTxData)
	required := events.SignatureRequired{
		BaseEvent:   e.baseEvent(events.SignatureRequiredEvent, ec.WorkflowID),
		ExecutionID: ec.ID,
		NodeID:      node.ID,
		UserID:      ec.UserID,
		ChainID:     chainID,
		SafeAddress: safeAddress,
		SafeTxHash:  result.SafeTxHash,
		SafeTxData:  result.SafeTxData,
	}
	e.publish(ctx, ec.ID, required)

	e.logger.Info("execution waiting for signature",
		"execution_id", ec.ID, "node_id", node.ID, "safe_tx_hash", result.SafeTxHash)

	if !result.Success {
		return ec, fmt.Errorf("%w: %s", ErrSignatureRejected, result.Error)
	}

	return ec, nil
}

// recordNode writes the write-once audit row for one node attempt. message
// empty means the attempt succeeded.
func (e *Executor) recordNode(ctx context.Context, ec *models.ExecutionContext, node *models.WorkflowNode, input map[string]any, result *models.NodeResult, message string, startedAt time.Time) error {
	finishedAt := time.Now().UTC()

	record := &models.NodeExecutionRecord{
		ID:          uuid.New().String(),
		ExecutionID: ec.ID,
		NodeID:      node.ID,
		Status:      models.NodeStatusSuccess,
		Input:       input,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		DurationMS:  finishedAt.Sub(startedAt).Milliseconds(),
	}

	if result != nil {
		record.Output = result.Output
	}

	if message != "" {
		record.Status = models.NodeStatusError
		record.Error = message
	}

	if err := e.persistence.NodeExecutionRepository().Create(ctx, record); err != nil {
		return fmt.Errorf("failed to record node execution %s/%s: %w", ec.ID, node.ID, err)
	}

	return nil
}

func (e *Executor) publishNodeFailed(ctx context.Context, wf *models.Workflow, ec *models.ExecutionContext, node *models.WorkflowNode, message string) {
	failed := events.NodeFailed{
		BaseEvent:   e.baseEvent(events.NodeFailedEvent, wf.ID),
		ExecutionID: ec.ID,
		NodeID:      node.ID,
		Error:       message,
	}
	e.publish(ctx, ec.ID, failed)
}

// awaitsSignature reports whether a processor declares the signature
// capability. NodeResult.RequiresSignature is honored only for declared
// processors, matching how branch routing requires BranchSelector.
func awaitsSignature(processor protocol.NodeProcessor) bool {
	aware, ok := processor.(protocol.SignatureAware)

	return ok && aware.RequiresSignature()
}

// nextNode picks the node traversal moves to, or nil when the path ends.
//
// Branch-selector processors route by naming an outgoing edge handle; no
// matching handle means the path ends. Everything else follows the first
// outgoing edge only: fan-out is not supported parallelism.
func (e *Executor) nextNode(wf *models.Workflow, node *models.WorkflowNode, processor protocol.NodeProcessor, result *models.NodeResult) (*models.WorkflowNode, error) {
	edges := wf.OutgoingEdges(node.ID)
	if len(edges) == 0 {
		return nil, nil
	}

	edge := edges[0]

	if selector, ok := processor.(protocol.BranchSelector); ok && selector.IsBranchSelector() {
		edge = nil

		if result != nil && result.BranchToFollow != "" {
			for _, candidate := range edges {
				if candidate.SourceHandle == result.BranchToFollow {
					edge = candidate

					break
				}
			}
		}

		if edge == nil {
			e.logger.Debug("no outgoing edge matches branch, path ends",
				"node_id", node.ID, "branch", resultBranch(result))

			return nil, nil
		}
	}

	target := wf.Node(edge.TargetNodeID)
	if target == nil {
		return nil, fmt.Errorf("edge %q targets unknown node %q", edge.ID, edge.TargetNodeID)
	}

	return target, nil
}

// collectInput assembles the merged input document for a node: direct
// predecessors' outputs shaped by edge mappings and target handles, the
// trigger payload under "trigger" and every transitive ancestor's output
// under "blocks" keyed by node id.
func (e *Executor) collectInput(wf *models.Workflow, ec *models.ExecutionContext, node *models.WorkflowNode) map[string]any {
	input := make(map[string]any)

	for _, edge := range wf.IncomingEdges(node.ID) {
		source, ok := e.sourceOutput(wf, ec, edge.SourceNodeID)
		if !ok {
			// Predecessor never executed on this path (branch not taken).
			continue
		}

		mapped := e.applyMappings(edge, source)

		if edge.TargetHandle != "" {
			input[edge.TargetHandle] = mapped

			continue
		}

		for key, value := range mapped {
			input[key] = value
		}
	}

	trigger := ec.TriggerData
	if trigger == nil {
		trigger = map[string]any{}
	}

	input["trigger"] = trigger
	input["blocks"] = ancestorOutputs(wf, ec, node.ID)

	return input
}

// sourceOutput resolves what an edge's source node produced. An edge leaving
// the trigger node carries the trigger payload.
func (e *Executor) sourceOutput(wf *models.Workflow, ec *models.ExecutionContext, sourceID string) (map[string]any, bool) {
	if output, ok := ec.NodeOutputs[sourceID]; ok {
		return output, true
	}

	if sourceID == wf.TriggerNodeID && ec.TriggerData != nil {
		return ec.TriggerData, true
	}

	return nil, false
}

// applyMappings extracts mapped fields from the source output with gjson
// paths. Without mappings the whole source document flows through.
func (e *Executor) applyMappings(edge *models.Edge, source map[string]any) map[string]any {
	if len(edge.Mappings) == 0 {
		return source
	}

	doc, err := json.Marshal(source)
	if err != nil {
		e.logger.Warn("failed to marshal source output for edge mappings",
			"edge_id", edge.ID, "error", err)

		return map[string]any{}
	}

	mapped := make(map[string]any, len(edge.Mappings))

	for _, mapping := range edge.Mappings {
		if value := gjson.GetBytes(doc, mapping.SourcePath); value.Exists() {
			mapped[mapping.TargetKey] = value.Value()
		}
	}

	return mapped
}

// ancestorOutputs walks incoming edges breadth-first and gathers every
// transitive ancestor's output, keyed by node id.
func ancestorOutputs(wf *models.Workflow, ec *models.ExecutionContext, nodeID string) map[string]any {
	blocks := make(map[string]any)
	seen := map[string]bool{nodeID: true}
	queue := []string{nodeID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range wf.IncomingEdges(current) {
			source := edge.SourceNodeID
			if seen[source] {
				continue
			}

			seen[source] = true

			if output, ok := ec.NodeOutputs[source]; ok {
				blocks[source] = output
			}

			queue = append(queue, source)
		}
	}

	return blocks
}

// firstNode resolves where traversal begins: the target of the trigger
// node's first outgoing edge. A trigger with no outgoing edges means the run
// completes immediately.
func firstNode(wf *models.Workflow) (*models.WorkflowNode, error) {
	trigger := wf.Node(wf.TriggerNodeID)
	if trigger == nil {
		return nil, fmt.Errorf("%w: trigger node %q not found", models.ErrInvalidWorkflow, wf.TriggerNodeID)
	}

	edges := wf.OutgoingEdges(trigger.ID)
	if len(edges) == 0 {
		return nil, nil
	}

	target := wf.Node(edges[0].TargetNodeID)
	if target == nil {
		return nil, fmt.Errorf("%w: edge %q targets unknown node %q", models.ErrInvalidWorkflow, edges[0].ID, edges[0].TargetNodeID)
	}

	return target, nil
}

func nodeFailureMessage(result *models.NodeResult, execErr error) string {
	if execErr != nil {
		return execErr.Error()
	}

	if result == nil {
		return "node returned no result"
	}

	if result.Error != "" {
		return result.Error
	}

	return "node execution failed"
}

func resultBranch(result *models.NodeResult) string {
	if result == nil {
		return ""
	}

	return result.BranchToFollow
}

func sortedVisited(visited map[string]bool) []string {
	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// signatureEventFields pulls the chain id and wallet address out of the
// transaction document when the node included them; the signature-required
// event is still published without them.
func signatureEventFields(data map[string]any) (int64, string) {
	var chainID int64

	switch v := data["chain_id"].(type) {
	case int64:
		chainID = v
	case int:
		chainID = int64(v)
	case float64:
		chainID = int64(v)
	}

	address, _ := data["safe_address"].(string)

	return chainID, address
}
