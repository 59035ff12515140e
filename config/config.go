// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/latticenet/latticenode/logger"
	"github.com/latticenet/latticenode/version"
)

const (
	defaultConfigFilename = "latticenoded.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"

	defaultListener             = ":7075"
	defaultRPCListener          = "127.0.0.1:7076"
	defaultTargetOutboundPeers  = 8
	defaultMaxInboundPeers      = 64
	defaultMaxPerSubnet         = 8
	defaultProtocolVersionMin   = 1
	defaultKeepalivePeriod      = 30 * time.Second
	defaultMergePeriod          = 2 * time.Second
	defaultIdleCutoff           = 3 * time.Minute

	defaultFullSize            = 65536
	defaultBatchSize           = 256
	defaultBatchMaxTime        = 500 * time.Millisecond
	defaultBlockProcessTimeout = 3 * time.Second
	defaultMaxBlockWriteBatch  = 256

	defaultVoteNumThreads   = 4
	defaultVoteMaxQueueSize = 4096
	defaultVoteBatchSize    = 256
	defaultTier1MinWeight   = 1 << 62
	defaultTier2MinWeight   = 1 << 50

	defaultElectionCapacity       = 1000
	defaultElectionHintedCapacity = 200
	defaultHintWeightPercent      = 10
	defaultHintedPollInterval     = time.Second

	defaultBacklogInterval  = 15 * time.Second
	defaultBacklogMaxPending = 4096

	defaultHeadParallelism    = 4
	defaultConsiderationCount = 4
	defaultCandidatesTarget   = 1000
	defaultFrontierCooldown   = 5 * time.Minute

	sampleConfigFilename = "sample-latticenoded.conf"
)

// DefaultHomeDir is the default application directory: ~/.latticenoded
// on POSIX systems, mirroring the convention every teacher-era btcsuite
// node uses without depending on btcutil's AppDataDir (see DESIGN.md:
// btcutil was dropped entirely as out-of-scope coin-specific machinery).
var DefaultHomeDir = defaultHomeDir()

func defaultHomeDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "Latticenoded")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".latticenoded")
}

var (
	defaultConfigFile = filepath.Join(DefaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(DefaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(DefaultHomeDir, defaultLogDirname)
)

var activeConfig *Config

// Flags is every command-line/conf-file option latticenoded accepts, in
// the teacher's go-flags struct-tag style: one field, one long name, one
// description, grouped loosely by the subsystem it tunes.
type Flags struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the on-disk store"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}"`

	Listeners           []string      `long:"listen" description:"Add an interface/port to listen for inbound channels (default all interfaces, port 7075)"`
	AddPeers            []string      `short:"a" long:"addpeer" description:"Add a peer to reach out to at startup"`
	DisableListen       bool          `long:"nolisten" description:"Disable listening for inbound channels"`
	TargetOutboundPeers int           `long:"outpeers" description:"Target number of outbound channels"`
	MaxInboundPeers     int           `long:"maxinpeers" description:"Max number of inbound channels"`
	MaxPerSubnet        int           `long:"maxpersubnet" description:"Max number of channels accepted from a single IP subnet"`
	ProtocolVersionMin  uint32        `long:"minprotocolversion" description:"Minimum protocol version a channel must negotiate to avoid purge"`
	KeepalivePeriod     time.Duration `long:"keepaliveperiod" description:"Interval between keepalive sends to each channel"`
	MergePeriod         time.Duration `long:"mergeperiod" description:"Interval between polling one channel's response server for a received keepalive"`
	IdleCutoff          time.Duration `long:"idlecutoff" description:"Purge any channel whose last packet sent predates this duration"`

	DisableRPC  bool   `long:"norpc" description:"Disable the status/trigger/flush RPC surface"`
	RPCListener string `long:"rpclisten" description:"Interface/port for the RPC surface"`

	FullSize            int           `long:"blockqueuesize" description:"Block processor admission ceiling before new blocks are dropped"`
	BatchSize           int           `long:"blockbatchsize" description:"Max blocks processed per write transaction"`
	BatchMaxTime        time.Duration `long:"blockbatchmaxtime" description:"Max wall-clock time a block processor batch may run"`
	BlockProcessTimeout time.Duration `long:"blockprocesstimeout" description:"Timeout for AddBlocking callers awaiting a result"`
	MaxBlockWriteBatch  int           `long:"maxblockwritebatch" description:"Store-side ceiling on blocks per write transaction"`

	VoteNumThreads   int    `long:"votethreads" description:"Number of vote processor worker threads"`
	VoteMaxQueueSize int    `long:"votequeuesize" description:"Vote processor admission ceiling before tiered RED drops apply"`
	VoteBatchSize    int    `long:"votebatchsize" description:"Max votes verified per signature-checker batch"`
	Tier1MinWeight   uint64 `long:"tier1minweight" description:"Minimum representative weight classified as tier 1 (never dropped until full)"`
	Tier2MinWeight   uint64 `long:"tier2minweight" description:"Minimum representative weight classified as tier 2"`

	ElectionCapacity       int           `long:"electioncapacity" description:"Total election table capacity"`
	ElectionHintedCapacity int           `long:"electionhintedcapacity" description:"Election table slots reserved for hint-driven admission"`
	HintWeightPercent      uint64        `long:"hintweightpercent" description:"Percent of trended online weight a vote-cache entry must clear for hinted admission"`
	HintedPollInterval     time.Duration `long:"hintedpollinterval" description:"Hinted scheduler poll interval when not woken by Notify"`

	BacklogInterval   time.Duration `long:"backloginterval" description:"Interval between unforced backlog population runs"`
	BacklogMaxPending int           `long:"backlogmaxpending" description:"Max candidates the priority scheduler's backlog queue may hold"`

	HeadParallelism    int           `long:"headparallelism" description:"Number of parallel ranges the frontier scanner partitions the account space into"`
	ConsiderationCount int           `long:"considerationcount" description:"Responses a frontier head collects before its candidate set is consulted"`
	CandidatesTarget   int           `long:"candidatestarget" description:"Target rank within a frontier head's candidate set to advance next to"`
	FrontierCooldown   time.Duration `long:"frontiercooldown" description:"Max idle time before a frontier head is re-polled regardless of its request count"`
}

// Config is Flags plus values derived from it once parsing and
// validation have completed.
type Config struct {
	*Flags
}

func newConfigParser(cfgFlags *Flags, options flags.Options) *flags.Parser {
	return flags.NewParser(cfgFlags, options)
}

// LoadAndSetActiveConfig loads the config and makes it available through
// ActiveConfig.
func LoadAndSetActiveConfig() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	activeConfig = cfg
	return nil
}

// ActiveConfig returns the config most recently loaded by
// LoadAndSetActiveConfig.
func ActiveConfig() *Config {
	return activeConfig
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in latticenoded functioning properly without any
// config settings while still allowing the user to override settings
// with config files and command line options. Command line options
// always take precedence.
func loadConfig() (*Config, []string, error) {
	cfgFlags := defaultFlags()

	preCfg := cfgFlags
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	var configFileError error
	parser := newConfigParser(&cfgFlags, flags.Default)
	cfg := &Config{Flags: &cfgFlags}

	if _, err := os.Stat(preCfg.ConfigFile); os.IsNotExist(err) {
		if err := createDefaultConfigFile(preCfg.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a default config file: %s\n", err)
		}
	}

	if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	if err := os.MkdirAll(DefaultHomeDir, 0700); err != nil {
		return nil, nil, errors.Errorf("loadConfig: failed to create home directory: %s", err)
	}

	level, ok := logger.LevelFromString(cfg.DebugLevel)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid debuglevel %q, defaulting to info\n", cfg.DebugLevel)
	}
	logger.SetLogLevels(level)

	if configFileError != nil {
		log, _ := logger.Get(logger.SubsystemTags.CMND)
		log.Warnf("%s", configFileError)
	}

	activeConfig = cfg
	return cfg, remainingArgs, nil
}

func defaultFlags() Flags {
	return Flags{
		ConfigFile:             defaultConfigFile,
		DataDir:                defaultDataDir,
		LogDir:                 defaultLogDir,
		DebugLevel:             defaultLogLevel,
		Listeners:              []string{defaultListener},
		TargetOutboundPeers:    defaultTargetOutboundPeers,
		MaxInboundPeers:        defaultMaxInboundPeers,
		MaxPerSubnet:           defaultMaxPerSubnet,
		ProtocolVersionMin:     defaultProtocolVersionMin,
		KeepalivePeriod:        defaultKeepalivePeriod,
		MergePeriod:            defaultMergePeriod,
		IdleCutoff:             defaultIdleCutoff,
		RPCListener:            defaultRPCListener,
		FullSize:               defaultFullSize,
		BatchSize:              defaultBatchSize,
		BatchMaxTime:           defaultBatchMaxTime,
		BlockProcessTimeout:    defaultBlockProcessTimeout,
		MaxBlockWriteBatch:     defaultMaxBlockWriteBatch,
		VoteNumThreads:         defaultVoteNumThreads,
		VoteMaxQueueSize:       defaultVoteMaxQueueSize,
		VoteBatchSize:          defaultVoteBatchSize,
		Tier1MinWeight:         defaultTier1MinWeight,
		Tier2MinWeight:         defaultTier2MinWeight,
		ElectionCapacity:       defaultElectionCapacity,
		ElectionHintedCapacity: defaultElectionHintedCapacity,
		HintWeightPercent:      defaultHintWeightPercent,
		HintedPollInterval:     defaultHintedPollInterval,
		BacklogInterval:        defaultBacklogInterval,
		BacklogMaxPending:      defaultBacklogMaxPending,
		HeadParallelism:        defaultHeadParallelism,
		ConsiderationCount:     defaultConsiderationCount,
		CandidatesTarget:       defaultCandidatesTarget,
		FrontierCooldown:       defaultFrontierCooldown,
	}
}

// createDefaultConfigFile copies the sample configuration file, if one is
// installed alongside the binary, to the configured location. Absence of
// a sample file is not an error: the binary runs fine on defaults alone.
func createDefaultConfigFile(destinationPath string) error {
	sourcePath := filepath.Join(filepath.Dir(os.Args[0]), sampleConfigFilename)
	src, err := os.Open(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(destinationPath), 0700); err != nil {
		return err
	}
	dest, err := os.OpenFile(destinationPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = io.Copy(dest, src)
	return err
}
