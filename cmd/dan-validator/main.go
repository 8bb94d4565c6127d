package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/dan-network/dan-core/internal/config"
	"github.com/dan-network/dan-core/internal/corelog"
	"github.com/dan-network/dan-core/internal/identity"
	"github.com/dan-network/dan-core/internal/kv"
	"github.com/dan-network/dan-core/internal/metrics"
	"github.com/dan-network/dan-core/pkg/block"
	"github.com/dan-network/dan-core/pkg/epoch"
	"github.com/dan-network/dan-core/pkg/executor"
	"github.com/dan-network/dan-core/pkg/hotstuff"
	"github.com/dan-network/dan-core/pkg/pending"
	"github.com/dan-network/dan-core/pkg/pool"
	"github.com/dan-network/dan-core/pkg/rpc"
	"github.com/dan-network/dan-core/pkg/statetree"
	"github.com/dan-network/dan-core/pkg/store"
	"github.com/dan-network/dan-core/pkg/substate"
	"github.com/dan-network/dan-core/pkg/transaction"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		runStart(os.Args[2:])
	case "register":
		runRegister(os.Args[2:])
	case "list-peers":
		runListPeers(os.Args[2:])
	case "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: dan-validator <start|register|list-peers> [flags]")
}

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	validatorID := fs.String("validator-id", "", "validator id (overrides VALIDATOR_ID env var)")
	_ = fs.Parse(args)

	boot := corelog.New("bootstrap")
	boot.Printf("starting dan validator")

	cfg, err := config.Load()
	if err != nil {
		boot.Fatalf("load configuration: %v", err)
	}
	if *validatorID != "" {
		cfg.ValidatorID = *validatorID
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatalf("invalid configuration: %v", err)
	}
	boot.Printf("validator id: %s, preshards: %d, store backend: %s", cfg.ValidatorID, cfg.NumPreshards, cfg.StoreBackend)

	id, err := identity.LoadOrGenerate(cfg.Ed25519KeyPath)
	if err != nil {
		boot.Fatalf("load identity: %v", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		boot.Fatalf("open store: %v", err)
	}
	st := store.New(db)
	p := pool.New()
	tree := statetree.New()

	genesis, err := block.NewGenesisBlock(0, tree.Root())
	if err != nil {
		boot.Fatalf("build genesis block: %v", err)
	}

	blockStore := hotstuff.NewMemBlockStore()
	stateMachine := hotstuff.NewStateMachine(genesis.Id, blockStore, st, tree, p, passthroughEngine{}, executor.VirtualSubstates{})
	committee := [][32]byte{} // empty: this CLI wires no epoch manager, so no committee members are known
	replica := hotstuff.NewReplica(genesis, blockStore, stateMachine, committee)
	_ = replica // wired into the gossip/consensus task loop, outside this CLI's scope

	foreignCoord := hotstuff.NewForeignCoordinator(p)
	_ = foreignCoord // wired into the gossip task's foreign-proposal handler, outside this CLI's scope

	onSubmit := func(tx *transaction.Transaction, id transaction.Id) error {
		ev, err := pool.NewEvidenceForTransaction(*tx)
		if err != nil {
			return fmt.Errorf("derive evidence: %w", err)
		}
		p.Insert(id, *tx, ev)
		return nil
	}

	reg := metrics.NewRegistry()

	var epochMgr epoch.Manager // nil until wired to the base-layer scanner (§1 Out of scope)
	server := rpc.NewServer(st, p, epochMgr, blockStore, id, cfg.ValidatorID, onSubmit)

	mux := http.NewServeMux()
	mux.Handle("/rpc", server)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: reg.Handler()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		boot.Printf("rpc listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			boot.Fatalf("rpc server: %v", err)
		}
	}()
	go func() {
		boot.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			boot.Fatalf("metrics server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	boot.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		boot.Printf("rpc server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		boot.Printf("metrics server shutdown error: %v", err)
	}
	boot.Printf("stopped")
}

func runRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	keyPath := fs.String("key-path", "", "path to the validator's ed25519 key file (generated if absent)")
	_ = fs.Parse(args)

	if *keyPath == "" {
		log.Fatal("register requires -key-path")
	}
	id, err := identity.LoadOrGenerate(*keyPath)
	if err != nil {
		log.Fatalf("load or generate identity: %v", err)
	}
	fmt.Printf("validator public key: %x\n", id.PublicKey)
}

func runListPeers(args []string) {
	fs := flag.NewFlagSet("list-peers", flag.ExitOnError)
	rpcAddr := fs.String("rpc-addr", "http://127.0.0.1:18000/rpc", "validator RPC endpoint")
	_ = fs.Parse(args)
	fmt.Printf("peer listing against %s is available once gossip bootstrap is wired (§1 Out of scope)\n", *rpcAddr)
}

func openStore(cfg *config.Config) (kv.DB, error) {
	switch cfg.StoreBackend {
	case "memory":
		return kv.NewMemDB(), nil
	case "goleveldb":
		raw, err := dbm.NewGoLevelDB("dan-validator", cfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("open goleveldb at %s: %w", cfg.StoreDir, err)
		}
		return kv.NewCometDB(raw), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

// passthroughEngine stands in for the WASM sandbox (§1 Non-goals: "WASM
// code compilation" is out of scope): it accepts every transaction
// with an empty diff, so hotstuff.StateMachine's pending-store/
// state-tree/pool wiring runs for real without requiring a contract
// runtime.
type passthroughEngine struct{}

func (passthroughEngine) Execute(tx transaction.Transaction, resolved map[substate.VersionedSubstateId]substate.Value, virt executor.VirtualSubstates) ([]pending.SubstateChange, []string, []string, error) {
	return nil, nil, nil, nil
}
