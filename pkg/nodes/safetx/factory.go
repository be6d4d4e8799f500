package safetx

import (
	"context"

	"github.com/vesselhq/vessel/pkg/chains"
	"github.com/vesselhq/vessel/pkg/protocol"
)

// Factory creates SafeTxNode processors bound to the wallet service and
// chain configuration. Unlike the stateless built-ins this factory carries
// dependencies, so the composition root registers it explicitly.
type Factory struct {
	service WalletService
	chains  *chains.Config
}

// NewFactory creates a safetx node factory.
func NewFactory(service WalletService, chainConfig *chains.Config) protocol.NodeFactory {
	return &Factory{service: service, chains: chainConfig}
}

// Create builds a processor for one node instance.
func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeProcessor, error) {
	return NewSafeTxNode(id, config, f.service, f.chains)
}

// ID returns the node type tag.
func (f *Factory) ID() string {
	return "safetx"
}

// Name returns the human-readable node name.
func (f *Factory) Name() string {
	return "Safe Transaction"
}

// Description returns what this node does.
func (f *Factory) Description() string {
	return "Builds a multisig wallet transaction, pauses the run for an owner signature and executes once signed. Module mode relays immediately without a signature."
}

// Schema returns the JSON schema for the node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"chain_id": map[string]any{
				"type":        "number",
				"description": "Target chain id. Must be configured on the platform.",
			},
			"safe_address": map[string]any{
				"type":        "string",
				"description": "Wallet address. Supports templating against the node input.",
			},
			"mode": map[string]any{
				"type":        "string",
				"description": "transaction pauses for an owner signature; module relays through the automation module immediately.",
				"enum":        []string{ModeTransaction, ModeModule},
			},
			"action": map[string]any{
				"type":        "string",
				"description": "Shape of the wallet transaction.",
				"enum":        []string{ActionCustom, ActionTransfer, ActionApprove, ActionBatch},
			},
			"to":        map[string]any{"type": "string", "description": "custom: call target address."},
			"value":     map[string]any{"description": "custom: native value in wei as a decimal string or number."},
			"data":      map[string]any{"type": "string", "description": "custom: hex call data."},
			"operation": map[string]any{"type": "number", "description": "custom: 0 CALL (default) or 1 DELEGATECALL.", "enum": []int{0, 1}},
			"token":     map[string]any{"type": "string", "description": "transfer/approve: ERC-20 token address."},
			"recipient": map[string]any{"type": "string", "description": "transfer: destination address."},
			"spender":   map[string]any{"type": "string", "description": "approve: spender address."},
			"amount":    map[string]any{"description": "transfer/approve: token amount as a decimal string or number."},
			"calls": map[string]any{
				"type":        "array",
				"description": "batch: sub-calls executed atomically through the MultiSend contract.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"to":    map[string]any{"type": "string"},
						"value": map[string]any{"description": "Native value in wei."},
						"data":  map[string]any{"type": "string"},
					},
					"required": []string{"to"},
				},
				"minItems": 1,
			},
			"preflight": map[string]any{
				"type":        "object",
				"description": "Optional ERC-20 checks before the transaction is built.",
				"properties": map[string]any{
					"token":         map[string]any{"type": "string", "description": "Token to check. Defaults to the action token."},
					"min_balance":   map[string]any{"description": "Fail unless the wallet balance is at least this."},
					"min_allowance": map[string]any{"description": "Fail unless the spender allowance is at least this."},
					"spender":       map[string]any{"type": "string", "description": "Spender for the allowance check."},
				},
			},
		},
		"required": []string{"chain_id", "safe_address"},
		"examples": []map[string]any{
			{
				"chain_id":     137,
				"safe_address": "{{.trigger.safe_address}}",
				"action":       "transfer",
				"token":        "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
				"recipient":    "{{.trigger.recipient}}",
				"amount":       "{{.trigger.amount}}",
				"preflight":    map[string]any{"min_balance": "{{.trigger.amount}}"},
			},
			{
				"chain_id":     8453,
				"safe_address": "0x5afE3855358E112B5647B952709E6165e1c1eEEe",
				"mode":         "module",
				"action":       "custom",
				"to":           "0x4200000000000000000000000000000000000006",
				"data":         "0xd0e30db0",
				"value":        "1000000000000000",
			},
		},
	}
}
