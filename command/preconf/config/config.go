package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl"
	"gopkg.in/yaml.v3"
)

// Config defines the preconfirmation node configuration params
type Config struct {
	DataDir      string `json:"data_dir" yaml:"data_dir" hcl:"data_dir"`
	StoreBackend string `json:"store_backend" yaml:"store_backend" hcl:"store_backend"`
	IntakeAddr   string `json:"intake_addr" yaml:"intake_addr" hcl:"intake_addr"`

	L1RPC       string `json:"l1_rpc" yaml:"l1_rpc" hcl:"l1_rpc"`
	L2RPC       string `json:"l2_rpc" yaml:"l2_rpc" hcl:"l2_rpc"`
	L2DriverURL string `json:"l2_driver_url" yaml:"l2_driver_url" hcl:"l2_driver_url"`
	L2ChainID   uint64 `json:"l2_chain_id" yaml:"l2_chain_id" hcl:"l2_chain_id"`

	// Heartbeat is the main loop interval in milliseconds
	Heartbeat           uint64 `json:"heartbeat" yaml:"heartbeat" hcl:"heartbeat"`
	WatchdogMaxFailures uint64 `json:"watchdog_max_failures" yaml:"watchdog_max_failures" hcl:"watchdog_max_failures"`
	SimulationTimeout   uint64 `json:"simulation_timeout" yaml:"simulation_timeout" hcl:"simulation_timeout"`

	TxMonitor *TxMonitor `json:"tx_monitor" yaml:"tx_monitor" hcl:"tx_monitor"`
	Proposal  *Proposal  `json:"proposal" yaml:"proposal" hcl:"proposal"`
	Contracts *Contracts `json:"contracts" yaml:"contracts" hcl:"contracts"`
	Keys      *Keys      `json:"keys" yaml:"keys" hcl:"keys"`

	PrometheusAddr           string   `json:"prometheus_addr" yaml:"prometheus_addr" hcl:"prometheus_addr"`
	LogLevel                 string   `json:"log_level" yaml:"log_level" hcl:"log_level"`
	JSONLogFormat            bool     `json:"json_log_format" yaml:"json_log_format" hcl:"json_log_format"`
	CorsAllowedOrigins       []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" hcl:"cors_allowed_origins"`
	JSONRPCBatchRequestLimit uint64   `json:"json_rpc_batch_request_limit" yaml:"json_rpc_batch_request_limit" hcl:"json_rpc_batch_request_limit"` //nolint:lll
}

// TxMonitor holds the submission policy of proposal transactions. Durations are in milliseconds.
type TxMonitor struct {
	MaxGasBumpAttempts  uint64  `json:"max_gas_bump_attempts" yaml:"max_gas_bump_attempts" hcl:"max_gas_bump_attempts"`
	GasBumpMultiplier   float64 `json:"gas_bump_multiplier" yaml:"gas_bump_multiplier" hcl:"gas_bump_multiplier"`
	ResubmitTimeout     uint64  `json:"resubmit_timeout" yaml:"resubmit_timeout" hcl:"resubmit_timeout"`
	ReceiptPollInterval uint64  `json:"receipt_poll_interval" yaml:"receipt_poll_interval" hcl:"receipt_poll_interval"`
	Confirmations       uint64  `json:"confirmations" yaml:"confirmations" hcl:"confirmations"`
	ExtraGasPercentage  uint64  `json:"extra_gas_percentage" yaml:"extra_gas_percentage" hcl:"extra_gas_percentage"`
}

// Proposal holds the thresholds that close a proposal
type Proposal struct {
	MaxBlocks        uint64 `json:"max_blocks_per_proposal" yaml:"max_blocks_per_proposal" hcl:"max_blocks_per_proposal"`
	MaxBytes         uint64 `json:"max_proposal_bytes" yaml:"max_proposal_bytes" hcl:"max_proposal_bytes"`
	MaxAge           uint64 `json:"max_proposal_age" yaml:"max_proposal_age" hcl:"max_proposal_age"`
	SubmitEachUserOp bool   `json:"submit_each_user_op" yaml:"submit_each_user_op" hcl:"submit_each_user_op"`
}

// Contracts holds the contract addresses on both chains
type Contracts struct {
	Multicall        string `json:"multicall" yaml:"multicall" hcl:"multicall"`
	Inbox            string `json:"inbox" yaml:"inbox" hcl:"inbox"`
	L1Bridge         string `json:"l1_bridge" yaml:"l1_bridge" hcl:"l1_bridge"`
	L1SignalService  string `json:"l1_signal_service" yaml:"l1_signal_service" hcl:"l1_signal_service"`
	L2Anchor         string `json:"l2_anchor" yaml:"l2_anchor" hcl:"l2_anchor"`
	L2Bridge         string `json:"l2_bridge" yaml:"l2_bridge" hcl:"l2_bridge"`
	L2SignalService  string `json:"l2_signal_service" yaml:"l2_signal_service" hcl:"l2_signal_service"`
	PreconfWhitelist string `json:"preconf_whitelist" yaml:"preconf_whitelist" hcl:"preconf_whitelist"`
}

// Keys holds the signing keys, hex encoded or paths to files holding them
type Keys struct {
	Preconfer    string `json:"preconfer_key" yaml:"preconfer_key" hcl:"preconfer_key"`
	ProofSigning string `json:"proof_signing_key" yaml:"proof_signing_key" hcl:"proof_signing_key"`
	Anchor       string `json:"anchor_key" yaml:"anchor_key" hcl:"anchor_key"`
}

const (
	// DefaultJSONRPCBatchRequestLimit maximum length allowed for json_rpc batch requests
	DefaultJSONRPCBatchRequestLimit uint64 = 20

	// GoldenTouchKey is the well known key of the L2 anchor account
	GoldenTouchKey = "0x92954368afd3caa1f3ce3ead0069c1af414054aefe1ef9aeacc1bf426222ce38"
)

// DefaultConfig returns the default node configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:             "./preconf-data",
		StoreBackend:        "bolt",
		IntakeAddr:          "127.0.0.1:8545",
		L1RPC:               "http://127.0.0.1:32002",
		L2RPC:               "http://127.0.0.1:8547",
		L2DriverURL:         "http://127.0.0.1:8550",
		L2ChainID:           763374,
		Heartbeat:           1000,
		WatchdogMaxFailures: 30,
		SimulationTimeout:   10_000,
		TxMonitor: &TxMonitor{
			MaxGasBumpAttempts:  5,
			GasBumpMultiplier:   1.2,
			ResubmitTimeout:     24_000,
			ReceiptPollInterval: 1_000,
			Confirmations:       0,
			ExtraGasPercentage:  10,
		},
		Proposal: &Proposal{
			MaxBlocks:        8,
			MaxBytes:         120_000,
			MaxAge:           12_000,
			SubmitEachUserOp: true,
		},
		Contracts: &Contracts{},
		Keys: &Keys{
			Anchor: GoldenTouchKey,
		},
		LogLevel:                 "INFO",
		CorsAllowedOrigins:       []string{"*"},
		JSONRPCBatchRequestLimit: DefaultJSONRPCBatchRequestLimit,
	}
}

// ReadConfigFile reads the config file from the specified path, builds a Config object
// and returns it. Values missing in the file keep their defaults.
//
// Supported file types: .json, .hcl, .yaml, .yml
func ReadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var unmarshalFunc func([]byte, interface{}) error

	switch {
	case strings.HasSuffix(path, ".hcl"):
		unmarshalFunc = hcl.Unmarshal
	case strings.HasSuffix(path, ".json"):
		unmarshalFunc = json.Unmarshal
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		unmarshalFunc = yaml.Unmarshal
	default:
		return nil, fmt.Errorf("suffix of %s is neither hcl, json, yaml nor yml", path)
	}

	config := DefaultConfig()

	if err := unmarshalFunc(data, config); err != nil {
		return nil, err
	}

	return config, nil
}
