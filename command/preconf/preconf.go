package preconf

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/jsonrpc"
	"github.com/umbracle/ethgo/wallet"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/command"
	"github.com/0xPolygon/polygon-preconf/command/helper"
	"github.com/0xPolygon/polygon-preconf/command/preconf/config"
	"github.com/0xPolygon/polygon-preconf/helper/common"
	intake "github.com/0xPolygon/polygon-preconf/jsonrpc"
	"github.com/0xPolygon/polygon-preconf/l1"
	"github.com/0xPolygon/polygon-preconf/l2"
	"github.com/0xPolygon/polygon-preconf/node"
	"github.com/0xPolygon/polygon-preconf/proposal"
	"github.com/0xPolygon/polygon-preconf/txmonitor"
)

const storeDir = "store"

func GetCommand() *cobra.Command {
	preconfCmd := &cobra.Command{
		Use:     "preconf",
		Short:   "Runs the preconfirmation node",
		PreRunE: runPreRun,
		Run:     runCommand,
	}

	setFlags(preconfCmd)

	return preconfCmd
}

func setFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()

	cmd.Flags().StringVar(
		&params.configPath,
		configFlag,
		"",
		"the path to the config file (.hcl, .json, .yaml or .yml)",
	)

	cmd.Flags().StringVar(
		&params.flagConfig.DataDir,
		dataDirFlag,
		defaults.DataDir,
		"the data directory of the user op store",
	)

	cmd.Flags().StringVar(
		&params.flagConfig.StoreBackend,
		storeBackendFlag,
		defaults.StoreBackend,
		"the user op store backend, bolt or leveldb",
	)

	cmd.Flags().StringVar(
		&params.flagConfig.IntakeAddr,
		intakeAddrFlag,
		defaults.IntakeAddr,
		"the address the user op json-rpc intake listens on",
	)

	cmd.Flags().StringVar(
		&params.flagConfig.L1RPC,
		l1RPCFlag,
		defaults.L1RPC,
		"the settlement chain json-rpc endpoint",
	)

	cmd.Flags().StringVar(
		&params.flagConfig.L2RPC,
		l2RPCFlag,
		defaults.L2RPC,
		"the rollup json-rpc endpoint",
	)

	cmd.Flags().StringVar(
		&params.flagConfig.L2DriverURL,
		l2DriverURLFlag,
		defaults.L2DriverURL,
		"the rollup driver preconfirmation endpoint",
	)

	cmd.Flags().Uint64Var(
		&params.flagConfig.Heartbeat,
		heartbeatFlag,
		defaults.Heartbeat,
		"the main loop interval in milliseconds",
	)

	cmd.Flags().StringVar(
		&params.flagConfig.PrometheusAddr,
		prometheusFlag,
		"",
		"the address the prometheus metrics are served on, disabled when empty",
	)

	cmd.Flags().StringVar(
		&params.flagConfig.LogLevel,
		logLevelFlag,
		defaults.LogLevel,
		"the log level for console output",
	)

	cmd.Flags().BoolVar(
		&params.flagConfig.JSONLogFormat,
		jsonLogFormatFlag,
		false,
		"log in json format",
	)

	cmd.Flags().StringVar(
		&params.flagKeys.Preconfer,
		preconferKeyFlag,
		"",
		"the key that signs settlement chain transactions, hex or a path to a file",
	)

	cmd.Flags().StringVar(
		&params.flagKeys.ProofSigning,
		proofKeyFlag,
		"",
		"the key that signs the proofs of rollup to settlement chain messages, hex or a path to a file",
	)

	cmd.Flags().StringVar(
		&params.flagKeys.Anchor,
		anchorKeyFlag,
		defaults.Keys.Anchor,
		"the key of the rollup anchor account, hex or a path to a file",
	)

	params.flagConfig.Proposal = &config.Proposal{}

	cmd.Flags().BoolVar(
		&params.flagConfig.Proposal.SubmitEachUserOp,
		submitEachUserOpFl,
		defaults.Proposal.SubmitEachUserOp,
		"close the proposal after every block that carries a user op",
	)
}

func runPreRun(cmd *cobra.Command, _ []string) error {
	if err := params.initConfig(cmd); err != nil {
		return err
	}

	return params.validateFlags()
}

func runCommand(cmd *cobra.Command, _ []string) {
	outputter := command.InitializeOutputter(cmd)

	if err := runNode(outputter); err != nil {
		outputter.SetError(err)
		outputter.WriteOutput()
	}
}

func runNode(outputter command.OutputFormatter) error {
	cfg := params.rawConfig

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "polygon-preconf",
		Level:      params.logLevel,
		JSONFormat: cfg.JSONLogFormat,
	})

	var metricsServer *node.MetricsServer

	if params.prometheusAddr != nil {
		if err := node.SetupTelemetry(); err != nil {
			return fmt.Errorf("failed to setup telemetry: %w", err)
		}

		srv, err := node.NewMetricsServer(logger.Named("prometheus"), params.prometheusAddr)
		if err != nil {
			return fmt.Errorf("failed to start prometheus server: %w", err)
		}

		metricsServer = srv
	}

	service, err := newService(logger, metricsServer)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- service.Run(ctx)
	}()

	return helper.HandleSignals(cancel, done, outputter)
}

func newService(logger hclog.Logger, metricsServer *node.MetricsServer) (*node.Service, error) {
	cfg := params.rawConfig
	contracts := params.contracts

	preconferKey, err := loadKey(cfg.Keys.Preconfer)
	if err != nil {
		return nil, fmt.Errorf("failed to load preconfer key: %w", err)
	}

	proofKey, err := loadKey(cfg.Keys.ProofSigning)
	if err != nil {
		return nil, fmt.Errorf("failed to load proof signing key: %w", err)
	}

	anchorKey, err := loadKey(cfg.Keys.Anchor)
	if err != nil {
		return nil, fmt.Errorf("failed to load anchor key: %w", err)
	}

	l1Client, err := jsonrpc.NewClient(cfg.L1RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the settlement chain: %w", err)
	}

	l2Client, err := jsonrpc.NewClient(cfg.L2RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the rollup: %w", err)
	}

	if err := common.SetupDataDir(cfg.DataDir, []string{storeDir}); err != nil {
		return nil, err
	}

	store, err := bridge.NewStatusStore(
		bridge.StoreBackend(cfg.StoreBackend),
		storePath(cfg.DataDir, bridge.StoreBackend(cfg.StoreBackend)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open user op store: %w", err)
	}

	handler, err := bridge.NewHandler(logger, store)
	if err != nil {
		return nil, closeOnError(store, err)
	}

	simulator := l1.NewSimulator(logger, l1Client, l1.SimulatorConfig{
		Preconfer:     preconferKey.Address(),
		Bridge:        contracts.l1Bridge,
		SignalService: contracts.l1SignalService,
		Timeout:       millis(cfg.SimulationTimeout),
	})

	monitor := txmonitor.NewMonitor(logger, l1Client, preconferKey, txmonitor.Config{
		MaxGasBumpAttempts:  cfg.TxMonitor.MaxGasBumpAttempts,
		GasBumpMultiplier:   cfg.TxMonitor.GasBumpMultiplier,
		ResubmitTimeout:     millis(cfg.TxMonitor.ResubmitTimeout),
		ReceiptPollInterval: millis(cfg.TxMonitor.ReceiptPollInterval),
		Confirmations:       cfg.TxMonitor.Confirmations,
		ExtraGasPercentage:  cfg.TxMonitor.ExtraGasPercentage,
	})

	builder := l2.NewBuilder(logger, l2Client, anchorKey, l2.BuilderConfig{
		ChainID:       cfg.L2ChainID,
		Anchor:        contracts.l2Anchor,
		Bridge:        contracts.l2Bridge,
		SignalService: contracts.l2SignalService,
	})

	manager, err := proposal.NewManager(logger.Named("proposal"), proposal.Config{
		MaxBlocksPerProposal: int(cfg.Proposal.MaxBlocks),
		MaxProposalBytes:     int(cfg.Proposal.MaxBytes),
		MaxProposalAge:       millis(cfg.Proposal.MaxAge),
		SubmitEachUserOp:     cfg.Proposal.SubmitEachUserOp,
	}, proposal.Params{
		Handler:   handler,
		Simulator: simulator,
		Builder:   builder,
		Driver:    l2.NewHTTPDriver(logger, cfg.L2DriverURL, l2Client),
		TxBuilder: proposal.NewTxBuilder(proposal.TxBuilderConfig{
			Multicall: contracts.multicall,
			Inbox:     contracts.inbox,
			L1Bridge:  contracts.l1Bridge,
		}),
		Submitter: proposal.NewMonitorSubmitter(monitor),
		ProofKey:  proofKey,
	})
	if err != nil {
		return nil, closeOnError(store, err)
	}

	server, err := intake.NewJSONRPC(logger, &intake.Config{
		Handler:                  handler,
		Addr:                     params.intakeAddr,
		AccessControlAllowOrigin: cfg.CorsAllowedOrigins,
		BatchLengthLimit:         cfg.JSONRPCBatchRequestLimit,
	})
	if err != nil {
		return nil, closeOnError(store, fmt.Errorf("failed to start json-rpc intake: %w", err))
	}

	checker := l1.NewProposerChecker(logger, l1Client, contracts.preconfWhitelist, preconferKey.Address())

	loop := node.NewLoop(logger, node.LoopConfig{
		Heartbeat:           millis(cfg.Heartbeat),
		WatchdogMaxFailures: cfg.WatchdogMaxFailures,
	}, checker, manager)

	return node.NewService(logger, node.Params{
		Handler:  handler,
		Store:    store,
		Receipts: l1.NewReceiptChecker(l1Client),
		Intake:   server,
		Metrics:  metricsServer,
		Loop:     loop,
		Waiters:  []node.Waiter{manager, monitor},
	}), nil
}

func loadKey(raw string) (ethgo.Key, error) {
	material, err := common.ReadKeyMaterial(raw)
	if err != nil {
		return nil, err
	}

	key, err := wallet.NewWalletFromPrivKey(material)
	if err != nil {
		return nil, err
	}

	return key, nil
}

// storePath is a file for bolt and a directory for leveldb
func storePath(dataDir string, backend bridge.StoreBackend) string {
	if backend == bridge.LevelDBBackend {
		return filepath.Join(dataDir, storeDir, "userops")
	}

	return filepath.Join(dataDir, storeDir, "userops.db")
}

func closeOnError(store bridge.StatusStore, err error) error {
	if cerr := store.Close(); cerr != nil {
		return multierror.Append(err, cerr)
	}

	return err
}
