package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/dan-network/dan-core/pkg/evidence"
	"github.com/dan-network/dan-core/pkg/substate"
	"github.com/dan-network/dan-core/pkg/transaction"
)

func TestTransitionTableHappyPath(t *testing.T) {
	p := New()
	id := transaction.Id{0x01}
	p.Insert(id, transaction.Transaction{}, evidence.New(nil, nil))

	require.NoError(t, p.Transition(id, StagePrepared, true))
	require.NoError(t, p.Transition(id, StageLocalPrepared, false))
	require.NoError(t, p.Transition(id, StageLocalPrepared, true)) // idempotent repeat
	require.NoError(t, p.Transition(id, StageAllPrepared, false))
	require.NoError(t, p.Transition(id, StageSomePrepared, false))
}

func TestTransitionRejectsInvalidPair(t *testing.T) {
	p := New()
	id := transaction.Id{0x02}
	p.Insert(id, transaction.Transaction{}, evidence.New(nil, nil))

	err := p.Transition(id, StageAllPrepared, false)
	require.ErrorIs(t, err, ErrInvalidTransactionTransition)
}

func TestTransitionRejectsUnknownTransaction(t *testing.T) {
	p := New()
	err := p.Transition(transaction.Id{0xFF}, StagePrepared, true)
	require.ErrorIs(t, err, ErrInvalidTransactionTransition)
}

func TestOnForeignEvidenceAdvancesToAllPreparedWhenJustified(t *testing.T) {
	p := New()
	id := transaction.Id{0x03}
	addr := *uint256.NewInt(1)
	ev := evidence.New([]uint256.Int{addr}, []substate.LockType{substate.LockWrite})
	p.Insert(id, transaction.Transaction{}, ev)
	require.NoError(t, p.Transition(id, StagePrepared, true))
	require.NoError(t, p.Transition(id, StageLocalPrepared, false))

	foreign := evidence.New([]uint256.Int{addr}, []substate.LockType{substate.LockWrite})
	foreign.AddQc(addr, evidence.QcId{0x01})

	require.NoError(t, p.OnForeignEvidence(id, foreign, DecisionAccept))
	rec := p.Get(id)
	require.Equal(t, StageAllPrepared, rec.Stage)
}

func TestOnForeignEvidenceAbortMovesToSomePrepared(t *testing.T) {
	p := New()
	id := transaction.Id{0x04}
	addr := *uint256.NewInt(2)
	ev := evidence.New([]uint256.Int{addr}, []substate.LockType{substate.LockWrite})
	p.Insert(id, transaction.Transaction{}, ev)
	require.NoError(t, p.Transition(id, StagePrepared, true))
	require.NoError(t, p.Transition(id, StageLocalPrepared, false))

	foreign := evidence.New([]uint256.Int{addr}, []substate.LockType{substate.LockWrite})
	require.NoError(t, p.OnForeignEvidence(id, foreign, DecisionAbort))
	rec := p.Get(id)
	require.Equal(t, StageSomePrepared, rec.Stage)
	require.False(t, rec.IsReady)
}

func TestFinalizeRequiresTerminalStage(t *testing.T) {
	p := New()
	id := transaction.Id{0x05}
	p.Insert(id, transaction.Transaction{}, evidence.New(nil, nil))
	_, err := p.Finalize(id)
	require.ErrorIs(t, err, ErrInvalidTransactionTransition)

	require.NoError(t, p.Transition(id, StagePrepared, true))
	require.NoError(t, p.Transition(id, StageLocalPrepared, false))
	require.NoError(t, p.Transition(id, StageAllPrepared, false))
	rec, err := p.Finalize(id)
	require.NoError(t, err)
	require.True(t, rec.Final)
}

func TestRecordsByStage(t *testing.T) {
	p := New()
	id1 := transaction.Id{0x10}
	id2 := transaction.Id{0x11}
	p.Insert(id1, transaction.Transaction{}, evidence.New(nil, nil))
	p.Insert(id2, transaction.Transaction{}, evidence.New(nil, nil))
	require.NoError(t, p.Transition(id1, StagePrepared, true))

	require.Len(t, p.RecordsByStage(StagePrepared), 1)
	require.Len(t, p.RecordsByStage(StageNew), 1)
}

func TestAssembleProposalCapsBatchAndTagsTask(t *testing.T) {
	p := New()
	for i := 0; i < 3; i++ {
		id := transaction.Id{byte(0x20 + i)}
		p.Insert(id, transaction.Transaction{}, evidence.New(nil, nil))
		require.NoError(t, p.Transition(id, StagePrepared, true))
	}

	task1, batch1 := p.AssembleProposal(2)
	require.Len(t, batch1, 2)
	task2, batch2 := p.AssembleProposal(0)
	require.Len(t, batch2, 3)
	require.NotEqual(t, task1, task2)
}
