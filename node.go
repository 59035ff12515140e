// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/latticenet/latticenode/backlog"
	"github.com/latticenet/latticenode/block"
	"github.com/latticenet/latticenode/blockprocessor"
	"github.com/latticenet/latticenode/channel"
	"github.com/latticenet/latticenode/config"
	"github.com/latticenet/latticenode/frontierscan"
	"github.com/latticenet/latticenode/ledger"
	"github.com/latticenet/latticenode/ledger/memledger"
	"github.com/latticenet/latticenode/logger"
	"github.com/latticenet/latticenode/processingqueue"
	"github.com/latticenet/latticenode/rpc"
	"github.com/latticenet/latticenode/scheduler"
	"github.com/latticenet/latticenode/signature"
	"github.com/latticenet/latticenode/stats"
	"github.com/latticenet/latticenode/store"
	"github.com/latticenet/latticenode/unchecked"
	"github.com/latticenet/latticenode/util/panics"
	"github.com/latticenet/latticenode/votecache"
	"github.com/latticenet/latticenode/voteprocessor"
	"github.com/latticenet/latticenode/weight"
	"github.com/latticenet/latticenode/workvalidator"
)

// nodeProtocolVersion is the version this implementation negotiates on
// every outbound and inbound channel. There is only one protocol
// generation here, so it never changes at runtime.
const nodeProtocolVersion = 1

// Outbound bandwidth allowances, in 128 KiB chunks per second. Neither is
// exposed as a config flag: the teacher's own defaults for comparable
// knobs (e.g. defaultMaxPerSubnet) are likewise compiled in rather than
// derived from measurement, and this module has no equivalent tuning
// guidance to draw from.
const (
	genericBandwidth   rate.Limit = 16
	bootstrapBandwidth rate.Limit = 64
)

// weightRecomputeInterval is how often the representative weight
// snapshot is refreshed from the store's account balances.
const weightRecomputeInterval = 30 * time.Second

// priorityRunInterval is how often the priority scheduler's weighted
// lottery runs over its queued backlog candidates, independent of the
// vacancy notifications that can also trigger it indirectly through the
// backlog populator's overflow latch.
const priorityRunInterval = time.Second

// purgeInterval is how often stale channels are swept from the registry.
const purgeInterval = time.Minute

// node wires every core-pipeline component into one process, mirroring
// the teacher's own start/stop wrapper-struct shape.
type node struct {
	store     *store.Store
	ledger    *memledger.Ledger
	stats     *stats.Registry
	weights   *weight.Snapshot
	unchecked *unchecked.MemStore

	voteCache   *votecache.Cache
	voteHistory *votecache.History

	elections  *scheduler.Table
	priority   *scheduler.PriorityScheduler
	hinted     *scheduler.HintedScheduler
	manual     *scheduler.ManualScheduler
	optimistic *scheduler.OptimisticScheduler

	blockProcessor *blockprocessor.Processor
	voteProcessor  *voteprocessor.Processor
	bootstrap      *processingqueue.Queue[block.Hash]

	backlogPopulator *backlog.Populator
	frontierScanner  *frontierscan.Scanner

	channels  *channel.Registry
	keepalive *channel.Keepalive
	listener  *channel.Listener
	rpcServer *rpc.Server

	quit chan struct{}
	wg   sync.WaitGroup

	started, shutdown int32
}

// start launches every background worker. Safe to call at most once.
func (n *node) start() {
	if atomic.AddInt32(&n.started, 1) != 1 {
		return
	}
	log.Infof("starting node")

	cfg := config.ActiveConfig()

	n.blockProcessor.Start()
	n.voteProcessor.Start()
	n.bootstrap.Start()
	n.hinted.Start()
	n.backlogPopulator.Start()
	n.keepalive.Start()

	n.wg.Add(2)
	spawn := panics.GoroutineWrapperFunc(log)
	spawn(n.runPriorityLoop)
	spawn(n.runMaintenanceLoop)

	if !cfg.DisableListen {
		n.startListening(cfg)
	}
	n.dialKnownPeers(cfg)

	if !cfg.DisableRPC {
		if err := n.rpcServer.Start(cfg.RPCListener); err != nil {
			log.Errorf("failed to start RPC server: %s", err)
		}
	}
}

// stop signals every background worker to exit and waits for them to
// join. Safe to call at most once; subsequent calls are no-ops.
func (n *node) stop() error {
	if atomic.AddInt32(&n.shutdown, 1) != 1 {
		log.Infof("node is already in the process of shutting down")
		return nil
	}
	log.Warnf("node shutting down")

	cfg := config.ActiveConfig()

	if !cfg.DisableRPC {
		if err := n.rpcServer.Stop(); err != nil {
			log.Errorf("error stopping rpc server: %s", err)
		}
	}

	if n.listener != nil {
		if err := n.listener.Close(); err != nil {
			log.Errorf("error closing listener: %s", err)
		}
	}

	close(n.quit)
	n.wg.Wait()

	n.keepalive.Stop()
	n.backlogPopulator.Stop()
	n.hinted.Stop()
	n.bootstrap.Stop()
	n.voteProcessor.Stop()
	n.blockProcessor.Stop()

	if err := n.store.Close(); err != nil {
		log.Errorf("error closing store: %s", err)
	}
	return nil
}

// WaitForShutdown blocks until every background worker has joined.
func (n *node) WaitForShutdown() {
	n.wg.Wait()
}

// newNode constructs every pipeline component and wires them together,
// without starting any of them.
func newNode(interrupt <-chan struct{}) (*node, error) {
	cfg := config.ActiveConfig()

	st, err := store.Open(cfg.DataDir, cfg.MaxBlockWriteBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	promReg := prometheus.NewRegistry()
	statsRegistry := stats.New(promReg)

	ledg := memledger.New(0)
	weights := weight.NewSnapshot()
	weight.RecomputeFromBalances(weights, st)
	uncheckedStore := unchecked.NewMemStore()
	work := workvalidator.NewThresholdValidator(0, 0)

	voteCache := votecache.New(cfg.ElectionCapacity * 4)
	voteHistory := votecache.NewHistory()

	elections := scheduler.NewTable(cfg.ElectionCapacity, cfg.ElectionHintedCapacity)

	blkpLog, _ := logger.Get(logger.SubsystemTags.BLKP)
	blockProcessor := blockprocessor.New(blockprocessor.Config{
		Log:                 blkpLog,
		Stats:               statsRegistry,
		Ledger:              ledg,
		Store:               st,
		Unchecked:           uncheckedStore,
		Work:                work,
		CancelElection:      elections.Cancel,
		EraseVoteHistory:    voteHistory.EraseRoot,
		FullSize:            cfg.FullSize,
		BatchSize:           cfg.BatchSize,
		BatchMaxTime:        cfg.BatchMaxTime,
		BlockProcessTimeout: cfg.BlockProcessTimeout,
	})

	voteProcessor := voteprocessor.New(voteprocessor.Config{
		Signature:      signature.AlwaysValidChecker{},
		Weights:        weights,
		Cache:          voteCache,
		Elections:      elections,
		Stats:          statsRegistry,
		Tier1MinWeight: cfg.Tier1MinWeight,
		Tier2MinWeight: cfg.Tier2MinWeight,
		NumThreads:     cfg.VoteNumThreads,
		MaxQueueSize:   cfg.VoteMaxQueueSize,
		BatchSize:      cfg.VoteBatchSize,
	})

	priority := scheduler.NewPriorityScheduler(elections, cfg.BacklogMaxPending)
	manual := scheduler.NewManualScheduler(elections)
	optimistic := scheduler.NewOptimisticScheduler(elections)

	schdLog, _ := logger.Get(logger.SubsystemTags.SCHD)
	bootstrap := processingqueue.New(processingqueue.Config[block.Hash]{
		Log:          schdLog,
		Stats:        statsRegistry,
		StatsType:    "bootstrap",
		ProcessBatch: requestBootstrap,
		NumThreads:   1,
		MaxQueueSize: 4096,
		MaxBatchSize: 64,
	})

	hinted := scheduler.NewHintedScheduler(scheduler.HintedConfig{
		Table:             elections,
		Cache:             voteCache,
		Lookup:            st,
		OnlineWeight:      weights.Trended,
		HintWeightPercent: cfg.HintWeightPercent,
		RequestBootstrap:  bootstrap.Add,
		PollInterval:      cfg.HintedPollInterval,
	})

	backlogPopulator := backlog.New(backlog.Config{
		Source:   st,
		Priority: priority,
		Interval: cfg.BacklogInterval,
	})

	frontierScanner := frontierscan.New(cfg.HeadParallelism, cfg.ConsiderationCount, cfg.CandidatesTarget, cfg.FrontierCooldown)

	channels := channel.NewRegistry(channel.RegistryConfig{
		Excluded:           loopbackExcluder{},
		Peers:              st,
		ProtocolVersionMin: cfg.ProtocolVersionMin,
		MaxPerSubnet:       cfg.MaxPerSubnet,
	})

	keepalive := channel.NewKeepalive(channel.KeepaliveConfig{
		Registry:      channels,
		Period:        cfg.KeepalivePeriod,
		MergePeriod:   cfg.MergePeriod,
		RandomPeers:   func() []string { return randomPeerSample(channels) },
		SendKeepalive: sendKeepalive,
		PollReceived:  pollReceived,
		MergePeer:     func(endpoint string) { _ = st.Put(endpoint, 0, time.Now()) },
	})

	rpcServer := rpc.New(rpc.Config{
		Backlog:        backlogPopulator,
		BlockProcessor: blockProcessor,
		VoteProcessor:  voteProcessor,
		Providers: []rpc.StatusProvider{
			rpc.NamedSizer{Name: "blockprocessor", Sizer: blockProcessor},
			rpc.NamedSizer{Name: "voteprocessor", Sizer: voteProcessor},
			rpc.NamedSizer{Name: "elections", Sizer: elections},
			rpc.NamedSizer{Name: "unchecked", Sizer: uncheckedStore},
			rpc.NamedSizer{Name: "votecache", Sizer: voteCache},
			rpc.NamedSizer{Name: "bootstrap_queue", Sizer: bootstrap},
			rpc.IntFunc{Name: "backlog_pending", Func: priority.Pending},
			rpc.BoolFunc{Name: "backlog_overflown", Func: backlogPopulator.Overflown},
			rpc.IntFunc{Name: "channels", Func: channels.Size},
			rpc.IntFunc{Name: "frontier_heads", Func: frontierScanner.Heads},
			rpc.IntFunc{Name: "weighted_accounts", Func: weights.Size},
		},
	})

	n := &node{
		store:            st,
		ledger:           ledg,
		stats:            statsRegistry,
		weights:          weights,
		unchecked:        uncheckedStore,
		voteCache:        voteCache,
		voteHistory:      voteHistory,
		elections:        elections,
		priority:         priority,
		hinted:           hinted,
		manual:           manual,
		optimistic:       optimistic,
		blockProcessor:   blockProcessor,
		voteProcessor:    voteProcessor,
		bootstrap:        bootstrap,
		backlogPopulator: backlogPopulator,
		frontierScanner:  frontierScanner,
		channels:         channels,
		keepalive:        keepalive,
		rpcServer:        rpcServer,
		quit:             make(chan struct{}),
	}

	n.blockProcessor.OnProcessed(n.onBlockProcessed)
	n.blockProcessor.OnBatchProcessed(n.persistBatch)

	return n, nil
}

// onBlockProcessed offers every newly-accepted frontier block to the
// optimistic scheduler, speculatively ahead of any vote evidence.
func (n *node) onBlockProcessed(r blockprocessor.Result) {
	if r.Result != ledger.Progress {
		return
	}
	n.optimistic.Offer(r.Block.Hash(), r.Block.QualifiedRoot())
}

// persistBatch mirrors every accepted block in a batch into the durable
// store's account index: memledger holds the authoritative chain state
// for the lifetime of the process, but backlog.FrontierSource and
// scheduler.BlockLookup both read through the store, so every progressed
// block's resulting head/balance needs a write-through here.
func (n *node) persistBatch(results []blockprocessor.Result) {
	hasProgress := false
	for _, r := range results {
		if r.Result == ledger.Progress {
			hasProgress = true
			break
		}
	}
	if !hasProgress {
		return
	}

	txn, err := n.store.BeginWrite()
	if err != nil {
		log.Errorf("persistBatch: failed to begin write transaction: %s", err)
		return
	}
	st := txn.(*store.Transaction)

	for _, r := range results {
		if r.Result != ledger.Progress {
			continue
		}
		blk := r.Block
		account := blk.Account()

		head, balance, ok := n.ledger.AccountState(account)
		if !ok {
			continue
		}

		_, _, confirmedFrontier, _, found, err := st.GetAccount(account)
		if err != nil {
			log.Errorf("persistBatch: failed to read account %s: %s", account, err)
			continue
		}
		if !found {
			confirmedFrontier = block.Hash{}
		}

		if err := st.PutAccount(account, head, blk.Root(), confirmedFrontier, balance); err != nil {
			log.Errorf("persistBatch: failed to stage account %s: %s", account, err)
		}
	}

	if err := st.Commit(); err != nil {
		log.Errorf("persistBatch: failed to commit: %s", err)
	}
}

func (n *node) runPriorityLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(priorityRunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.quit:
			return
		case <-ticker.C:
			n.priority.Run()
		}
	}
}

func (n *node) runMaintenanceLoop() {
	defer n.wg.Done()
	weightTicker := time.NewTicker(weightRecomputeInterval)
	defer weightTicker.Stop()
	purgeTicker := time.NewTicker(purgeInterval)
	defer purgeTicker.Stop()

	cfg := config.ActiveConfig()
	for {
		select {
		case <-n.quit:
			return
		case <-weightTicker.C:
			weight.RecomputeFromBalances(n.weights, n.store)
		case <-purgeTicker.C:
			n.channels.Purge(time.Now().Add(-cfg.IdleCutoff), cfg.ProtocolVersionMin)
		}
	}
}

func (n *node) startListening(cfg *config.Config) {
	listeners, err := cfg.NormalizedListeners()
	if err != nil {
		log.Errorf("failed to normalize listeners: %s", err)
		return
	}
	lnCfg := channel.ListenerConfig{
		Stats:           n.stats,
		ProtocolVersion: nodeProtocolVersion,
		GenericLimit:    genericBandwidth,
		BootstrapLimit:  bootstrapBandwidth,
	}
	for _, addr := range listeners {
		ln, err := channel.Listen(addr, n.channels, lnCfg)
		if err != nil {
			log.Errorf("failed to listen on %s: %s", addr, err)
			continue
		}
		n.listener = ln
		log.Infof("listening for inbound channels on %s", ln.Addr())
	}
}

func (n *node) dialKnownPeers(cfg *config.Config) {
	addPeers, err := cfg.NormalizedAddPeers()
	if err != nil {
		log.Errorf("failed to normalize addpeers: %s", err)
		addPeers = nil
	}
	known, err := n.store.Peers()
	if err != nil {
		log.Errorf("failed to load known peers: %s", err)
	}

	seen := make(map[string]bool)
	targets := make([]string, 0, len(addPeers)+len(known))
	for _, addr := range append(addPeers, known...) {
		if seen[addr] {
			continue
		}
		seen[addr] = true
		targets = append(targets, addr)
		if len(targets) >= cfg.TargetOutboundPeers {
			break
		}
	}

	dialCfg := channel.ListenerConfig{
		Stats:           n.stats,
		ProtocolVersion: nodeProtocolVersion,
		GenericLimit:    genericBandwidth,
		BootstrapLimit:  bootstrapBandwidth,
	}
	spawn := panics.GoroutineWrapperFunc(log)
	for _, addr := range targets {
		addr := addr
		spawn(func() {
			if _, err := channel.Dial(addr, n.channels, dialCfg); err != nil {
				log.Debugf("failed to dial %s: %s", addr, err)
			}
		})
	}
}

// loopbackExcluder adapts channel.NotAPeer into a channel.ExcludedPeers:
// this node never dials or accepts a loopback endpoint as a peer.
type loopbackExcluder struct{}

func (loopbackExcluder) Check(endpoint string) bool {
	return channel.NotAPeer(endpoint, false)
}

// randomPeerSample adapts the registry's channel sample into the
// endpoint list a keepalive message gossips.
func randomPeerSample(channels *channel.Registry) []string {
	sample := channels.RandomSet(8, 0, false)
	out := make([]string, 0, len(sample))
	for _, c := range sample {
		out = append(out, c.Endpoint())
	}
	return out
}

// sendKeepalive is the keepalive payload stand-in: the real wire format
// is out of scope, so the gossiped peer list is encoded as a plain
// newline-joined endpoint list. The transport path it exercises (rate
// limiting, the per-channel strand, socket polling) is the same either
// way.
func sendKeepalive(c *channel.Channel, peers []string) {
	buf := []byte(joinLines(peers))
	c.SendBuffer(buf, nil, channel.PolicyDefault, channel.TrafficGeneric)
}

// pollReceived has no response server to poll: this implementation never
// receives a real keepalive message over the wire, since the wire format
// is out of scope. The keepalive timer and round-robin merge cursor this
// feeds are still exercised; they simply never have anything to merge.
func pollReceived(c *channel.Channel) ([]string, bool) {
	return nil, false
}

// requestBootstrap is the bootstrap dispatch queue's batch handler: in
// the absence of a real frontier/bulk-pull wire exchange, it only logs
// the hashes a live implementation would request from a bootstrap peer.
func requestBootstrap(hashes []block.Hash) {
	for _, h := range hashes {
		log.Debugf("would request bootstrap for %s", h)
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
