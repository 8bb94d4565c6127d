// Package executor implements §4.5's deterministic transaction
// executor interface: execute one transaction against a resolved
// input set and return its finalize decision plus output diff.
//
// The Engine interface is the boundary to the WASM sandbox (§1
// Non-goals: "WASM code compilation" is out of scope; the sandbox is
// consumed as an opaque binary runner here).
package executor

import (
	"time"

	"github.com/dan-network/dan-core/pkg/pending"
	"github.com/dan-network/dan-core/pkg/substate"
	"github.com/dan-network/dan-core/pkg/transaction"
)

// Result is an Accept or Reject outcome for one transaction.
type Result struct {
	Accepted bool
	Diff     []pending.SubstateChange // populated only when Accepted
	Reason   string                   // populated only when !Accepted
}

// FeeReceipt records what a transaction paid regardless of outcome:
// SomePrepared/Abort still charges fees from the fee-paying component.
type FeeReceipt struct {
	TotalFeeCharged uint64
	FeePayingVault  substate.SubstateId
}

// Finalize is the terminal outcome the executor returns for one
// transaction: its Accept/Reject result plus events, logs, and fees.
type Finalize struct {
	Result     Result
	Events     []string
	Logs       []string
	FeeReceipt FeeReceipt
}

// ExecuteResult is the full abstract signature of §4.5: the finalize
// decision, the lock intents the executor actually resolved against,
// the substate versions it produced, and wall-clock execution time.
type ExecuteResult struct {
	Finalize       Finalize
	ResolvedInputs []substate.LockIntent
	Outputs        []substate.VersionedSubstateId
	ExecutionTime  time.Duration
}

// VirtualSubstates carries ambient values ("the current epoch") that
// a transaction's instructions may read without declaring them as an
// input.
type VirtualSubstates struct {
	CurrentEpoch uint64
}

// Engine executes a transaction's template calls against the provided
// engine-side contract (emit_log, component_invoke, resource_invoke,
// vault_invoke, bucket_invoke, proof_invoke, workspace_invoke,
// set_last_instruction_output), returning the committed diff on
// success. Faults inside the sandbox are surfaced as an error here and
// must never reach the caller as a panic.
type Engine interface {
	Execute(tx transaction.Transaction, resolved map[substate.VersionedSubstateId]substate.Value, virt VirtualSubstates) ([]pending.SubstateChange, []string, []string, error)
}

// Execute runs tx deterministically against resolvedInputs using
// engine, producing an ExecuteResult. If any declared input cannot be
// resolved (its version is DOWN or missing), it returns a Reject with
// "ExecutionFailure" and a resolvedInputs list built from the declared
// inputs at version 0 with Write intent, so downstream lock and
// evidence bookkeeping stays well-formed even on failure.
func Execute(tx transaction.Transaction, resolvedInputs map[substate.VersionedSubstateId]substate.Value, virt VirtualSubstates, engine Engine) ExecuteResult {
	start := time.Now()

	for _, req := range tx.Body.DeclaredInputs {
		version := uint32(0)
		if req.Version != nil {
			version = *req.Version
		}
		vid := substate.VersionedSubstateId{Id: req.Id, Version: version}
		if _, ok := resolvedInputs[vid]; !ok {
			return rejectedExecutionFailure(tx)
		}
	}

	changes, events, logs, err := engine.Execute(tx, resolvedInputs, virt)
	if err != nil {
		return ExecuteResult{
			Finalize: Finalize{
				Result: Result{Accepted: false, Reason: err.Error()},
				Events: events,
				Logs:   logs,
			},
			ResolvedInputs: declaredAsWriteIntents(tx),
			ExecutionTime:  time.Since(start),
		}
	}

	outputs := make([]substate.VersionedSubstateId, 0, len(changes))
	for _, ch := range changes {
		if ch.Kind == pending.ChangeUp {
			outputs = append(outputs, ch.VersionId)
		}
	}

	return ExecuteResult{
		Finalize: Finalize{
			Result: Result{Accepted: true, Diff: changes},
			Events: events,
			Logs:   logs,
		},
		ResolvedInputs: declaredAsResolvedIntents(tx, resolvedInputs),
		Outputs:        outputs,
		ExecutionTime:  time.Since(start),
	}
}

func rejectedExecutionFailure(tx transaction.Transaction) ExecuteResult {
	return ExecuteResult{
		Finalize: Finalize{
			Result: Result{Accepted: false, Reason: "ExecutionFailure"},
		},
		ResolvedInputs: declaredAsWriteIntents(tx),
	}
}

func declaredAsWriteIntents(tx transaction.Transaction) []substate.LockIntent {
	out := make([]substate.LockIntent, 0, len(tx.Body.DeclaredInputs))
	for _, req := range tx.Body.DeclaredInputs {
		out = append(out, substate.LockIntent{
			Id:             req.Id,
			VersionToLock:  0,
			LockType:       substate.LockWrite,
			RequireVersion: false,
		})
	}
	return out
}

func declaredAsResolvedIntents(tx transaction.Transaction, resolved map[substate.VersionedSubstateId]substate.Value) []substate.LockIntent {
	out := make([]substate.LockIntent, 0, len(tx.Body.DeclaredInputs))
	for _, req := range tx.Body.DeclaredInputs {
		version := uint32(0)
		if req.Version != nil {
			version = *req.Version
		}
		out = append(out, substate.LockIntent{
			Id:             req.Id,
			VersionToLock:  version,
			LockType:       substate.LockWrite,
			RequireVersion: req.Version != nil,
		})
	}
	_ = resolved
	return out
}
