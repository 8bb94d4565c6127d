package hotstuff

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/dan-network/dan-core/pkg/evidence"
	"github.com/dan-network/dan-core/pkg/pool"
	"github.com/dan-network/dan-core/pkg/substate"
	"github.com/dan-network/dan-core/pkg/transaction"
)

func localPreparedRecord(t *testing.T, p *pool.Pool, id transaction.Id, addr uint256.Int) *pool.Record {
	t.Helper()
	ev := evidence.New([]uint256.Int{addr}, []substate.LockType{substate.LockWrite})
	p.Insert(id, transaction.Transaction{}, ev)
	require.NoError(t, p.Transition(id, pool.StagePrepared, true))
	require.NoError(t, p.Transition(id, pool.StageLocalPrepared, false))
	return p.Get(id)
}

func TestOnForeignProposalMergesEvidenceAndAdvancesStage(t *testing.T) {
	p := pool.New()
	id := transaction.Id{0x11}
	addr := *uint256.NewInt(1)
	rec := localPreparedRecord(t, p, id, addr)
	require.False(t, rec.Atom.Evidence.AllInputAddressesJustified())

	fc := NewForeignCoordinator(p)
	foreignEv := evidence.New([]uint256.Int{addr}, []substate.LockType{substate.LockWrite})
	foreignEv.AddQc(addr, evidence.QcId{0x22})

	err := fc.OnForeignProposal(ForeignProposal{
		TransactionId: id,
		QcId:          [32]byte{0x22},
		Decision:      pool.DecisionAccept,
		Evidence:      foreignEv,
	})
	require.NoError(t, err)

	require.Equal(t, pool.StageAllPrepared, rec.Stage)
	require.True(t, rec.Atom.Evidence.AllInputAddressesJustified())
}

func TestOnForeignProposalDedupesRepeatedQc(t *testing.T) {
	p := pool.New()
	id := transaction.Id{0x33}
	addr := *uint256.NewInt(2)
	rec := localPreparedRecord(t, p, id, addr)

	fc := NewForeignCoordinator(p)
	qcId := [32]byte{0x44}
	foreignEv := evidence.New([]uint256.Int{addr}, []substate.LockType{substate.LockWrite})
	foreignEv.AddQc(addr, evidence.QcId(qcId))
	fp := ForeignProposal{TransactionId: id, QcId: qcId, Decision: pool.DecisionAccept, Evidence: foreignEv}

	require.NoError(t, fc.OnForeignProposal(fp))
	require.Equal(t, pool.StageAllPrepared, rec.Stage)

	// Redelivery of the same QC is a no-op at the coordinator level: it
	// never reaches the pool a second time.
	require.NoError(t, fc.OnForeignProposal(fp))
	require.Equal(t, pool.StageAllPrepared, rec.Stage)
}

func TestOnForeignProposalUnknownTransactionFails(t *testing.T) {
	p := pool.New()
	fc := NewForeignCoordinator(p)
	err := fc.OnForeignProposal(ForeignProposal{
		TransactionId: transaction.Id{0x55},
		QcId:          [32]byte{0x66},
		Decision:      pool.DecisionAccept,
		Evidence:      evidence.New(nil, nil),
	})
	require.ErrorIs(t, err, pool.ErrInvalidTransactionTransition)
}
