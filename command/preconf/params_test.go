package preconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/command/preconf/config"
)

const testKey = "0x4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

func newTestCommand() (*cobra.Command, *preconfParams) {
	p := &preconfParams{}

	cmd := &cobra.Command{Use: "preconf"}

	// flags are bound to the package params, swap them for the test
	saved := params
	params = p
	setFlags(cmd)
	params = saved

	return cmd, p
}

func testContracts() *config.Contracts {
	addr := "0x0000000000000000000000000000000000000001"

	return &config.Contracts{
		Multicall:       addr,
		Inbox:           addr,
		L1Bridge:        addr,
		L1SignalService: addr,
		L2Anchor:        addr,
		L2Bridge:        addr,
		L2SignalService: addr,
	}
}

func TestParams_FlagsOverrideConfigFile(t *testing.T) {
	cmd, p := newTestCommand()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"l1_rpc": "http://file:8545",
		"l2_rpc": "http://file:8547",
		"log_level": "DEBUG",
		"keys": {"preconfer_key": "`+testKey+`", "proof_signing_key": "`+testKey+`"},
		"contracts": {
			"multicall": "0x0000000000000000000000000000000000000001",
			"inbox": "0x0000000000000000000000000000000000000002",
			"l1_bridge": "0x0000000000000000000000000000000000000003",
			"l1_signal_service": "0x0000000000000000000000000000000000000004",
			"l2_anchor": "0x0000000000000000000000000000000000000005",
			"l2_bridge": "0x0000000000000000000000000000000000000006",
			"l2_signal_service": "0x0000000000000000000000000000000000000007"
		}
	}`), 0600))

	require.NoError(t, cmd.Flags().Parse([]string{
		"--" + configFlag, path,
		"--" + l1RPCFlag, "http://flag:8545",
		"--" + storeBackendFlag, "leveldb",
	}))

	require.NoError(t, p.initConfig(cmd))
	require.NoError(t, p.validateFlags())

	assert.Equal(t, "http://flag:8545", p.rawConfig.L1RPC)
	assert.Equal(t, "http://file:8547", p.rawConfig.L2RPC)
	assert.Equal(t, "leveldb", p.rawConfig.StoreBackend)
	assert.Equal(t, hclog.Debug, p.logLevel)
	assert.Equal(t, config.GoldenTouchKey, p.rawConfig.Keys.Anchor)
	assert.Equal(t, ethgo.HexToAddress("0x0000000000000000000000000000000000000002"), p.contracts.inbox)
	assert.Equal(t, ethgo.ZeroAddress, p.contracts.preconfWhitelist)
	assert.Nil(t, p.prometheusAddr)
}

func TestParams_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(cfg *config.Config)
		err    string
	}{
		{
			name:   "missing preconfer key",
			mutate: func(cfg *config.Config) { cfg.Keys.Preconfer = "" },
			err:    preconferKeyFlag,
		},
		{
			name:   "zero heartbeat",
			mutate: func(cfg *config.Config) { cfg.Heartbeat = 0 },
			err:    "heartbeat",
		},
		{
			name:   "unknown backend",
			mutate: func(cfg *config.Config) { cfg.StoreBackend = "rocksdb" },
			err:    "unknown store backend",
		},
		{
			name:   "invalid log level",
			mutate: func(cfg *config.Config) { cfg.LogLevel = "loud" },
			err:    "invalid log level",
		},
		{
			name:   "invalid contract",
			mutate: func(cfg *config.Config) { cfg.Contracts.Inbox = "0x01" },
			err:    "inbox",
		},
	}

	for _, c := range cases {
		c := c

		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			cfg.Keys.Preconfer = testKey
			cfg.Keys.ProofSigning = testKey
			cfg.Contracts = testContracts()

			c.mutate(cfg)

			p := &preconfParams{rawConfig: cfg}
			require.ErrorContains(t, p.validateFlags(), c.err)
		})
	}
}

func TestStorePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("data", storeDir, "userops.db"), storePath("data", bridge.BoltBackend))
	assert.Equal(t, filepath.Join("data", storeDir, "userops"), storePath("data", bridge.LevelDBBackend))
}

func TestLoadKey(t *testing.T) {
	t.Parallel()

	key, err := loadKey(testKey)
	require.NoError(t, err)
	assert.NotEqual(t, ethgo.ZeroAddress, key.Address())

	_, err = loadKey("0x1234")
	require.Error(t, err)
}
