package preconf

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/command"
	"github.com/0xPolygon/polygon-preconf/command/helper"
	"github.com/0xPolygon/polygon-preconf/command/preconf/config"
	"github.com/0xPolygon/polygon-preconf/helper/common"
	"github.com/0xPolygon/polygon-preconf/helper/hex"
)

const (
	configFlag         = "config"
	dataDirFlag        = "data-dir"
	storeBackendFlag   = "store-backend"
	intakeAddrFlag     = "intake-addr"
	l1RPCFlag          = "l1-rpc"
	l2RPCFlag          = "l2-rpc"
	l2DriverURLFlag    = "l2-driver-url"
	heartbeatFlag      = "heartbeat"
	prometheusFlag     = "prometheus"
	logLevelFlag       = command.LogLevelFlag
	jsonLogFormatFlag  = "json-log-format"
	preconferKeyFlag   = "preconfer-key"
	proofKeyFlag       = "proof-signing-key"
	anchorKeyFlag      = "anchor-key"
	submitEachUserOpFl = "submit-each-user-op"

	addressLength = 20
)

var (
	errMissingKey     = errors.New("key is not set")
	errInvalidAddress = errors.New("invalid contract address")
)

var (
	params = &preconfParams{
		rawConfig: config.DefaultConfig(),
	}
)

// addresses are the parsed contract addresses
type addresses struct {
	multicall        ethgo.Address
	inbox            ethgo.Address
	l1Bridge         ethgo.Address
	l1SignalService  ethgo.Address
	l2Anchor         ethgo.Address
	l2Bridge         ethgo.Address
	l2SignalService  ethgo.Address
	preconfWhitelist ethgo.Address
}

type preconfParams struct {
	configPath string
	rawConfig  *config.Config

	// flag overrides, applied on top of the config file
	flagConfig config.Config
	flagKeys   config.Keys

	intakeAddr     *net.TCPAddr
	prometheusAddr *net.TCPAddr
	logLevel       hclog.Level
	contracts      addresses
}

func (p *preconfParams) isConfigFileSpecified(cmd *cobra.Command) bool {
	return cmd.Flags().Changed(configFlag)
}

// initConfig loads the config file when given and applies the flags the user set explicitly
func (p *preconfParams) initConfig(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()

	if p.isConfigFileSpecified(cmd) {
		parsed, err := config.ReadConfigFile(p.configPath)
		if err != nil {
			return err
		}

		cfg = parsed
	}

	fillDefaults(cfg)

	changed := cmd.Flags().Changed

	if changed(dataDirFlag) {
		cfg.DataDir = p.flagConfig.DataDir
	}

	if changed(storeBackendFlag) {
		cfg.StoreBackend = p.flagConfig.StoreBackend
	}

	if changed(intakeAddrFlag) {
		cfg.IntakeAddr = p.flagConfig.IntakeAddr
	}

	if changed(l1RPCFlag) {
		cfg.L1RPC = p.flagConfig.L1RPC
	}

	if changed(l2RPCFlag) {
		cfg.L2RPC = p.flagConfig.L2RPC
	}

	if changed(l2DriverURLFlag) {
		cfg.L2DriverURL = p.flagConfig.L2DriverURL
	}

	if changed(heartbeatFlag) {
		cfg.Heartbeat = p.flagConfig.Heartbeat
	}

	if changed(prometheusFlag) {
		cfg.PrometheusAddr = p.flagConfig.PrometheusAddr
	}

	if changed(logLevelFlag) {
		cfg.LogLevel = p.flagConfig.LogLevel
	}

	if changed(jsonLogFormatFlag) {
		cfg.JSONLogFormat = p.flagConfig.JSONLogFormat
	}

	if changed(preconferKeyFlag) {
		cfg.Keys.Preconfer = p.flagKeys.Preconfer
	}

	if changed(proofKeyFlag) {
		cfg.Keys.ProofSigning = p.flagKeys.ProofSigning
	}

	if changed(anchorKeyFlag) {
		cfg.Keys.Anchor = p.flagKeys.Anchor
	}

	if changed(submitEachUserOpFl) {
		cfg.Proposal.SubmitEachUserOp = p.flagConfig.Proposal.SubmitEachUserOp
	}

	p.rawConfig = cfg

	return nil
}

// fillDefaults restores the sections a config file left out
func fillDefaults(cfg *config.Config) {
	defaults := config.DefaultConfig()

	if cfg.TxMonitor == nil {
		cfg.TxMonitor = defaults.TxMonitor
	}

	if cfg.Proposal == nil {
		cfg.Proposal = defaults.Proposal
	}

	if cfg.Contracts == nil {
		cfg.Contracts = defaults.Contracts
	}

	if cfg.Keys == nil {
		cfg.Keys = defaults.Keys
	}
}

func (p *preconfParams) validateFlags() error {
	cfg := p.rawConfig

	for name, value := range map[string]uint64{
		"heartbeat":               cfg.Heartbeat,
		"watchdog_max_failures":   cfg.WatchdogMaxFailures,
		"max_blocks_per_proposal": cfg.Proposal.MaxBlocks,
		"max_proposal_bytes":      cfg.Proposal.MaxBytes,
		"max_proposal_age":        cfg.Proposal.MaxAge,
	} {
		if err := common.ValidatePositive(name, value); err != nil {
			return err
		}
	}

	switch bridge.StoreBackend(cfg.StoreBackend) {
	case bridge.BoltBackend, bridge.LevelDBBackend:
	default:
		return fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}

	if cfg.Keys.Preconfer == "" {
		return fmt.Errorf("%w: %s", errMissingKey, preconferKeyFlag)
	}

	if cfg.Keys.ProofSigning == "" {
		return fmt.Errorf("%w: %s", errMissingKey, proofKeyFlag)
	}

	if cfg.Keys.Anchor == "" {
		return fmt.Errorf("%w: %s", errMissingKey, anchorKeyFlag)
	}

	var err error

	if p.intakeAddr, err = helper.ResolveAddr(cfg.IntakeAddr); err != nil {
		return fmt.Errorf("invalid intake address: %w", err)
	}

	if cfg.PrometheusAddr != "" {
		if p.prometheusAddr, err = helper.ResolveAddr(cfg.PrometheusAddr); err != nil {
			return fmt.Errorf("invalid prometheus address: %w", err)
		}
	}

	if p.logLevel = hclog.LevelFromString(cfg.LogLevel); p.logLevel == hclog.NoLevel {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	return p.parseContracts()
}

func (p *preconfParams) parseContracts() error {
	c := p.rawConfig.Contracts

	required := []struct {
		name string
		raw  string
		dst  *ethgo.Address
	}{
		{"multicall", c.Multicall, &p.contracts.multicall},
		{"inbox", c.Inbox, &p.contracts.inbox},
		{"l1_bridge", c.L1Bridge, &p.contracts.l1Bridge},
		{"l1_signal_service", c.L1SignalService, &p.contracts.l1SignalService},
		{"l2_anchor", c.L2Anchor, &p.contracts.l2Anchor},
		{"l2_bridge", c.L2Bridge, &p.contracts.l2Bridge},
		{"l2_signal_service", c.L2SignalService, &p.contracts.l2SignalService},
	}

	for _, r := range required {
		addr, err := parseAddress(r.raw)
		if err != nil {
			return fmt.Errorf("%w %s: %w", errInvalidAddress, r.name, err)
		}

		*r.dst = addr
	}

	// the whitelist is optional, the zero address disables the proposer check
	if c.PreconfWhitelist != "" {
		addr, err := parseAddress(c.PreconfWhitelist)
		if err != nil {
			return fmt.Errorf("%w preconf_whitelist: %w", errInvalidAddress, err)
		}

		p.contracts.preconfWhitelist = addr
	}

	return nil
}

func parseAddress(raw string) (ethgo.Address, error) {
	b, err := hex.DecodeFixedHex(raw, addressLength)
	if err != nil {
		return ethgo.ZeroAddress, err
	}

	return ethgo.BytesToAddress(b), nil
}

func millis(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
