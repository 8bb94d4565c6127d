// Package rpc implements the validator's JSON-RPC surface (§6):
// submit_transaction, get_substate, get_transaction,
// get_transaction_result, get_identity, get_epoch_manager_stats,
// get_committee_info, and add_peer. Errors follow the standard
// {code, message, data} JSON-RPC shape, with domain-specific codes for
// not-found and internal failures.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/dan-network/dan-core/internal/corelog"
	"github.com/dan-network/dan-core/internal/identity"
	"github.com/dan-network/dan-core/pkg/block"
	"github.com/dan-network/dan-core/pkg/epoch"
	"github.com/dan-network/dan-core/pkg/hotstuff"
	"github.com/dan-network/dan-core/pkg/pool"
	"github.com/dan-network/dan-core/pkg/receipts"
	"github.com/dan-network/dan-core/pkg/store"
	"github.com/dan-network/dan-core/pkg/substate"
	"github.com/dan-network/dan-core/pkg/transaction"
)

// Standard JSON-RPC 2.0 error codes, plus this surface's domain codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602

	CodeNotFound      = 404
	CodeInternalError = 500
)

// Request is one JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Response is one JSON-RPC 2.0 reply.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Peer is a gossip peer registered via add_peer.
type Peer struct {
	Id      string `json:"id"`
	Address string `json:"address"`
}

// SubmittedTransaction is what submit_transaction records for later
// lookup by get_transaction/get_transaction_result.
type SubmittedTransaction struct {
	Id  transaction.Id         `json:"id"`
	Tx  transaction.Transaction `json:"transaction"`
}

// Server dispatches JSON-RPC calls against the validator's local
// components. It holds no consensus-mutating authority itself: it
// reads from the store/pool and hands submitted transactions to pool
// insertion.
type Server struct {
	store       *store.Store
	pool        *pool.Pool
	epochMgr    epoch.Manager
	blocks      hotstuff.BlockStore
	id          *identity.Identity
	validatorID string
	logger      *log.Logger

	transactions map[transaction.Id]*SubmittedTransaction
	peers        map[string]Peer

	onSubmit func(tx *transaction.Transaction, id transaction.Id) error
}

// NewServer constructs a Server. onSubmit is called for every
// successfully-decoded submit_transaction call, typically wiring into
// the pool/mempool ingestion path; it may be nil in read-only
// deployments. blocks may be nil, in which case get_inclusion_proof
// always reports not-found.
func NewServer(st *store.Store, p *pool.Pool, em epoch.Manager, blocks hotstuff.BlockStore, id *identity.Identity, validatorID string, onSubmit func(tx *transaction.Transaction, id transaction.Id) error) *Server {
	return &Server{
		store:        st,
		pool:         p,
		epochMgr:     em,
		blocks:       blocks,
		id:           id,
		validatorID:  validatorID,
		logger:       corelog.New("rpc"),
		transactions: make(map[transaction.Id]*SubmittedTransaction),
		peers:        make(map[string]Peer),
		onSubmit:     onSubmit,
	}
}

// ServeHTTP implements the JSON-RPC 2.0 POST endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, nil, &Error{Code: CodeInvalidRequest, Message: "only POST is allowed"})
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, &Error{Code: CodeParseError, Message: "invalid JSON"})
		return
	}

	result, rpcErr := s.dispatch(r.Context(), req.Method, req.Params)
	if rpcErr != nil {
		s.writeError(w, req.ID, rpcErr)
		return
	}
	s.writeResult(w, req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, *Error) {
	switch method {
	case "submit_transaction":
		return s.submitTransaction(params)
	case "get_substate":
		return s.getSubstate(params)
	case "get_transaction":
		return s.getTransaction(params)
	case "get_transaction_result":
		return s.getTransactionResult(params)
	case "get_identity":
		return s.getIdentity(params)
	case "get_epoch_manager_stats":
		return s.getEpochManagerStats(ctx, params)
	case "get_committee_info":
		return s.getCommitteeInfo(ctx, params)
	case "add_peer":
		return s.addPeer(params)
	case "get_inclusion_proof":
		return s.getInclusionProof(params)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: ErrMethodNotFound.Error(), Data: method}
	}
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *Error) {
	w.Header().Set("Content-Type", "application/json")
	if rpcErr.Code == CodeInternalError {
		s.logger.Printf("internal error: %s", rpcErr.Message)
	}
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

// --- submit_transaction ---

type submitTransactionParams struct {
	Transaction transaction.Transaction `json:"transaction"`
}

type submitTransactionResult struct {
	TransactionId transaction.Id `json:"transaction_id"`
}

func (s *Server) submitTransaction(raw json.RawMessage) (interface{}, *Error) {
	var params submitTransactionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: ErrInvalidParams.Error()}
	}

	id, err := transaction.ComputeId(params.Transaction.Body)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}

	s.transactions[id] = &SubmittedTransaction{Id: id, Tx: params.Transaction}

	if s.onSubmit != nil {
		if err := s.onSubmit(&params.Transaction, id); err != nil {
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
	}
	return submitTransactionResult{TransactionId: id}, nil
}

// --- get_substate ---

type getSubstateParams struct {
	Id      substate.SubstateId `json:"id"`
	Version *uint32             `json:"version,omitempty"`
}

func (s *Server) getSubstate(raw json.RawMessage) (interface{}, *Error) {
	var params getSubstateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: ErrInvalidParams.Error()}
	}

	var (
		rec *substate.Record
		err error
	)
	if params.Version != nil {
		rec, err = s.store.Get(params.Id, *params.Version)
	} else {
		rec, err = s.store.GetLatest(params.Id)
	}
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: ErrSubstateNotFound.Error(), Data: err.Error()}
	}
	return rec, nil
}

// --- get_transaction ---

type getTransactionParams struct {
	Id transaction.Id `json:"id"`
}

func (s *Server) getTransaction(raw json.RawMessage) (interface{}, *Error) {
	var params getTransactionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: ErrInvalidParams.Error()}
	}
	tx, ok := s.transactions[params.Id]
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: ErrTransactionNotFound.Error()}
	}
	return tx, nil
}

// --- get_transaction_result ---

type transactionResult struct {
	Id       transaction.Id `json:"id"`
	Stage    string         `json:"stage"`
	IsReady  bool           `json:"is_ready"`
	Final    bool           `json:"final"`
	Decision string         `json:"decision"`
}

func (s *Server) getTransactionResult(raw json.RawMessage) (interface{}, *Error) {
	var params getTransactionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: ErrInvalidParams.Error()}
	}
	rec := s.pool.Get(params.Id)
	if rec == nil {
		return nil, &Error{Code: CodeNotFound, Message: ErrTransactionNotFound.Error()}
	}
	decision := "Accept"
	if rec.Atom.Decision == pool.DecisionAbort {
		decision = "Abort"
	}
	return transactionResult{
		Id:       params.Id,
		Stage:    rec.Stage.String(),
		IsReady:  rec.IsReady,
		Final:    rec.Final,
		Decision: decision,
	}, nil
}

// --- get_identity ---

type identityResult struct {
	ValidatorId string `json:"validator_id"`
	PublicKey   string `json:"public_key"`
}

func (s *Server) getIdentity(_ json.RawMessage) (interface{}, *Error) {
	if s.id == nil {
		return nil, &Error{Code: CodeInternalError, Message: "identity not configured"}
	}
	return identityResult{
		ValidatorId: s.validatorID,
		PublicKey:   fmt.Sprintf("%x", s.id.PublicKey),
	}, nil
}

// --- get_epoch_manager_stats ---

type epochManagerStats struct {
	CurrentEpoch uint64 `json:"current_epoch"`
	Registered   bool   `json:"registered"`
}

func (s *Server) getEpochManagerStats(ctx context.Context, _ json.RawMessage) (interface{}, *Error) {
	if s.epochMgr == nil {
		return nil, &Error{Code: CodeInternalError, Message: "epoch manager not configured"}
	}
	epochNum, err := s.epochMgr.CurrentEpoch(ctx)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	registered, err := s.epochMgr.IsThisValidatorRegisteredForEpoch(ctx, epochNum)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return epochManagerStats{CurrentEpoch: epochNum, Registered: registered}, nil
}

// --- get_committee_info ---

func (s *Server) getCommitteeInfo(ctx context.Context, _ json.RawMessage) (interface{}, *Error) {
	if s.epochMgr == nil {
		return nil, &Error{Code: CodeInternalError, Message: "epoch manager not configured"}
	}
	epochNum, err := s.epochMgr.CurrentEpoch(ctx)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	info, err := s.epochMgr.GetLocalCommitteeInfo(ctx, epochNum)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return info, nil
}

// --- get_inclusion_proof ---

type getInclusionProofParams struct {
	BlockId       block.Id       `json:"block_id"`
	TransactionId transaction.Id `json:"transaction_id"`
}

type inclusionProofResult struct {
	MerkleRoot [32]byte             `json:"merkle_root"`
	Proof      *receipts.InclusionProof `json:"proof"`
}

// getInclusionProof proves that a transaction id was committed in a
// specific block, by rebuilding that block's transaction-id Merkle
// tree on demand, for wallet/indexer inclusion verification.
func (s *Server) getInclusionProof(raw json.RawMessage) (interface{}, *Error) {
	var params getInclusionProofParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: ErrInvalidParams.Error()}
	}
	if s.blocks == nil {
		return nil, &Error{Code: CodeNotFound, Message: "block store not configured"}
	}
	b, ok := s.blocks.Get(params.BlockId)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: "block not found"}
	}

	leaves := block.TransactionLeaves(*b)
	if len(leaves) == 0 {
		return nil, &Error{Code: CodeNotFound, Message: "block carries no transactions"}
	}
	tree, err := receipts.BuildTree(leaves)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	proof, err := tree.GenerateProofByHash([32]byte(params.TransactionId))
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}
	return inclusionProofResult{MerkleRoot: tree.Root(), Proof: proof}, nil
}

// --- add_peer ---

type addPeerParams struct {
	Address string `json:"address"`
}

type addPeerResult struct {
	PeerId string `json:"peer_id"`
}

func (s *Server) addPeer(raw json.RawMessage) (interface{}, *Error) {
	var params addPeerParams
	if err := json.Unmarshal(raw, &params); err != nil || params.Address == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: ErrInvalidParams.Error()}
	}
	id := uuid.New().String()
	s.peers[id] = Peer{Id: id, Address: params.Address}
	return addPeerResult{PeerId: id}, nil
}
