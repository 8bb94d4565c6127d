package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dan-network/dan-core/internal/identity"
	"github.com/dan-network/dan-core/internal/kv"
	"github.com/dan-network/dan-core/pkg/block"
	"github.com/dan-network/dan-core/pkg/epoch"
	"github.com/dan-network/dan-core/pkg/hotstuff"
	"github.com/dan-network/dan-core/pkg/pool"
	"github.com/dan-network/dan-core/pkg/shard"
	"github.com/dan-network/dan-core/pkg/store"
	"github.com/dan-network/dan-core/pkg/substate"
	"github.com/dan-network/dan-core/pkg/transaction"
)

type fakeEpochManager struct{}

func (fakeEpochManager) CurrentEpoch(context.Context) (uint64, error) { return 7, nil }
func (fakeEpochManager) GetCommittee(context.Context, uint64, int) (epoch.Committee, error) {
	return epoch.Committee{}, nil
}
func (fakeEpochManager) GetLocalCommitteeInfo(context.Context, uint64) (epoch.CommitteeInfo, error) {
	return epoch.CommitteeInfo{ShardGroup: shard.Range{}, NumMembers: 4}, nil
}
func (fakeEpochManager) IsThisValidatorRegisteredForEpoch(context.Context, uint64) (bool, error) {
	return true, nil
}
func (fakeEpochManager) Subscribe(context.Context) (<-chan epoch.Changed, error) {
	ch := make(chan epoch.Changed)
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	id, err := identity.LoadOrGenerate(filepath.Join(t.TempDir(), "validator.key"))
	require.NoError(t, err)
	st := store.New(kv.NewMemDB())
	p := pool.New()
	return NewServer(st, p, fakeEpochManager{}, nil, id, "validator-1", nil)
}

func call(t *testing.T, s *Server, method string, params interface{}) *Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: raw})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestGetIdentityReturnsPublicKey(t *testing.T) {
	s := newTestServer(t)
	resp := call(t, s, "get_identity", nil)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestGetSubstateNotFoundReturns404Code(t *testing.T) {
	s := newTestServer(t)
	resp := call(t, s, "get_substate", getSubstateParams{Id: substate.SubstateId{Kind: substate.KindComponent}})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := call(t, s, "no_such_method", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestSubmitTransactionThenGetTransactionRoundTrips(t *testing.T) {
	s := newTestServer(t)
	tx := transaction.Transaction{Body: transaction.Body{Instructions: []transaction.Instruction{[]byte("noop")}}}

	submitResp := call(t, s, "submit_transaction", submitTransactionParams{Transaction: tx})
	require.Nil(t, submitResp.Error)

	resultBytes, err := json.Marshal(submitResp.Result)
	require.NoError(t, err)
	var submitResult submitTransactionResult
	require.NoError(t, json.Unmarshal(resultBytes, &submitResult))

	getResp := call(t, s, "get_transaction", getTransactionParams{Id: submitResult.TransactionId})
	require.Nil(t, getResp.Error)
}

func TestGetTransactionResultNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := call(t, s, "get_transaction_result", getTransactionParams{Id: transaction.Id{0x99}})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestAddPeerAssignsId(t *testing.T) {
	s := newTestServer(t)
	resp := call(t, s, "add_peer", addPeerParams{Address: "127.0.0.1:9000"})
	require.Nil(t, resp.Error)
}

func TestGetEpochManagerStats(t *testing.T) {
	s := newTestServer(t)
	resp := call(t, s, "get_epoch_manager_stats", nil)
	require.Nil(t, resp.Error)
}

func TestGetInclusionProofProvesCommittedTransaction(t *testing.T) {
	id, err := identity.LoadOrGenerate(filepath.Join(t.TempDir(), "validator.key"))
	require.NoError(t, err)
	st := store.New(kv.NewMemDB())
	p := pool.New()
	blocks := hotstuff.NewMemBlockStore()

	txId := transaction.Id{0x42}
	b := block.Block{
		Id:       block.Id{0x01},
		Height:   1,
		Commands: []block.Command{{Kind: block.CommandAllPrepared, TransactionId: txId}},
	}
	blocks.Put(&b)

	s := NewServer(st, p, fakeEpochManager{}, blocks, id, "validator-1", nil)
	resp := call(t, s, "get_inclusion_proof", getInclusionProofParams{BlockId: b.Id, TransactionId: txId})
	require.Nil(t, resp.Error)
}

func TestGetInclusionProofMissingBlock(t *testing.T) {
	id, err := identity.LoadOrGenerate(filepath.Join(t.TempDir(), "validator.key"))
	require.NoError(t, err)
	st := store.New(kv.NewMemDB())
	p := pool.New()
	blocks := hotstuff.NewMemBlockStore()

	s := NewServer(st, p, fakeEpochManager{}, blocks, id, "validator-1", nil)
	resp := call(t, s, "get_inclusion_proof", getInclusionProofParams{BlockId: block.Id{0xFF}, TransactionId: transaction.Id{0x01}})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeNotFound, resp.Error.Code)
}
