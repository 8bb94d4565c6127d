package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dan-network/dan-core/pkg/pending"
	"github.com/dan-network/dan-core/pkg/substate"
	"github.com/dan-network/dan-core/pkg/transaction"
)

type fakeEngine struct {
	changes []pending.SubstateChange
	err     error
}

func (f *fakeEngine) Execute(tx transaction.Transaction, resolved map[substate.VersionedSubstateId]substate.Value, virt VirtualSubstates) ([]pending.SubstateChange, []string, []string, error) {
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	return f.changes, []string{"event"}, []string{"log"}, nil
}

func testId(b byte) substate.SubstateId {
	var id substate.SubstateId
	id.EntityId[0] = b
	return id
}

func TestExecuteAcceptsAndCollectsOutputs(t *testing.T) {
	id := testId(1)
	vid := substate.VersionedSubstateId{Id: id, Version: 0}
	tx := transaction.Transaction{Body: transaction.Body{
		DeclaredInputs: []substate.SubstateRequirement{{Id: id}},
	}}
	resolved := map[substate.VersionedSubstateId]substate.Value{vid: []byte("v")}
	engine := &fakeEngine{changes: []pending.SubstateChange{
		{Kind: pending.ChangeUp, VersionId: substate.VersionedSubstateId{Id: id, Version: 1}},
	}}

	result := Execute(tx, resolved, VirtualSubstates{CurrentEpoch: 1}, engine)
	require.True(t, result.Finalize.Result.Accepted)
	require.Len(t, result.Outputs, 1)
	require.Equal(t, uint32(1), result.Outputs[0].Version)
}

func TestExecuteRejectsOnUnresolvedInput(t *testing.T) {
	id := testId(2)
	tx := transaction.Transaction{Body: transaction.Body{
		DeclaredInputs: []substate.SubstateRequirement{{Id: id}},
	}}
	engine := &fakeEngine{}

	result := Execute(tx, map[substate.VersionedSubstateId]substate.Value{}, VirtualSubstates{}, engine)
	require.False(t, result.Finalize.Result.Accepted)
	require.Equal(t, "ExecutionFailure", result.Finalize.Result.Reason)
	require.Len(t, result.ResolvedInputs, 1)
	require.Equal(t, substate.LockWrite, result.ResolvedInputs[0].LockType)
}

func TestExecuteRejectsOnEngineError(t *testing.T) {
	id := testId(3)
	vid := substate.VersionedSubstateId{Id: id, Version: 0}
	tx := transaction.Transaction{Body: transaction.Body{
		DeclaredInputs: []substate.SubstateRequirement{{Id: id}},
	}}
	resolved := map[substate.VersionedSubstateId]substate.Value{vid: []byte("v")}
	engine := &fakeEngine{err: errors.New("sandbox fault")}

	result := Execute(tx, resolved, VirtualSubstates{}, engine)
	require.False(t, result.Finalize.Result.Accepted)
	require.Equal(t, "sandbox fault", result.Finalize.Result.Reason)
}
