package txmonitor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/wallet"

	"github.com/0xPolygon/polygon-preconf/helper/hex"
	"github.com/0xPolygon/polygon-preconf/l1"
)

const (
	DefaultMaxGasBumpAttempts  = 5
	DefaultGasBumpMultiplier   = 1.2
	DefaultResubmitTimeout     = 24 * time.Second
	DefaultReceiptPollInterval = time.Second
	DefaultExtraGasPercentage  = 10
)

// Config is the resubmission and confirmation policy of the monitor
type Config struct {
	MaxGasBumpAttempts  uint64
	GasBumpMultiplier   float64
	ResubmitTimeout     time.Duration
	ReceiptPollInterval time.Duration
	Confirmations       uint64
	ExtraGasPercentage  uint64
}

// DefaultConfig returns the default monitor policy
func DefaultConfig() Config {
	return Config{
		MaxGasBumpAttempts:  DefaultMaxGasBumpAttempts,
		GasBumpMultiplier:   DefaultGasBumpMultiplier,
		ResubmitTimeout:     DefaultResubmitTimeout,
		ReceiptPollInterval: DefaultReceiptPollInterval,
		ExtraGasPercentage:  DefaultExtraGasPercentage,
	}
}

// Monitor sends settlement chain transactions and follows them until a terminal outcome.
// It monitors a single transaction at a time.
type Monitor struct {
	logger hclog.Logger
	client l1.Caller
	key    ethgo.Key
	config Config

	lock     sync.Mutex
	inFlight bool

	wg sync.WaitGroup
}

// NewMonitor creates the monitor that signs with key
func NewMonitor(logger hclog.Logger, client l1.Caller, key ethgo.Key, config Config) *Monitor {
	if config.GasBumpMultiplier < 1 {
		config.GasBumpMultiplier = DefaultGasBumpMultiplier
	}

	if config.ResubmitTimeout <= 0 {
		config.ResubmitTimeout = DefaultResubmitTimeout
	}

	if config.ReceiptPollInterval <= 0 {
		config.ReceiptPollInterval = DefaultReceiptPollInterval
	}

	return &Monitor{
		logger: logger.Named("txmonitor"),
		client: client,
		key:    key,
		config: config,
	}
}

// IsBusy reports whether a transaction is being monitored
func (m *Monitor) IsBusy() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.inFlight
}

// Submit starts sending the transaction in the background. From, nonce and fees are filled by the monitor,
// the gas limit is estimated when not set.
func (m *Monitor) Submit(ctx context.Context, tx *ethgo.Transaction) (*Handle, error) {
	m.lock.Lock()
	if m.inFlight {
		m.lock.Unlock()

		return nil, ErrTransactionInProgress
	}

	m.inFlight = true
	m.lock.Unlock()

	handle := newHandle(m.config.MaxGasBumpAttempts)

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		outcome := m.run(ctx, tx.Copy(), handle)

		m.logger.Info("transaction finished", "status", outcome.Status, "hash", outcome.TxHash, "err", outcome.Err)
		incOutcomeMetric(outcome.Status)

		// the slot is released before the outcome is observable
		m.lock.Lock()
		m.inFlight = false
		m.lock.Unlock()

		handle.resolve(outcome)
	}()

	return handle, nil
}

// Wait blocks until the monitored transaction finished
func (m *Monitor) Wait() {
	m.wg.Wait()
}

type attempt struct {
	hash     ethgo.Hash
	gasPrice uint64
}

func (m *Monitor) run(ctx context.Context, tx *ethgo.Transaction, handle *Handle) *Outcome {
	signer, err := m.prepare(ctx, tx)
	if err != nil {
		return &Outcome{Status: Failed, Err: err}
	}

	hash, err := m.send(ctx, signer, tx)
	if err != nil {
		return &Outcome{Status: Failed, Err: err}
	}

	handle.resolveHash(hash)

	sent := []attempt{{hash: hash, gasPrice: tx.GasPrice}}
	bumps := uint64(0)

	for {
		receipt, err := m.waitForReceipt(ctx, sent, time.Now().Add(m.config.ResubmitTimeout))
		if err != nil {
			return &Outcome{Status: Failed, TxHash: hash, Err: err}
		}

		if receipt != nil {
			if outcome := m.confirm(ctx, receipt); outcome != nil {
				return outcome
			}

			// the receipt disappeared in a reorg
			continue
		}

		if bumps >= m.config.MaxGasBumpAttempts {
			return &Outcome{Status: Failed, TxHash: hash, Err: ErrMonitorExhausted}
		}

		bumps++

		tx.GasPrice = bumpGasPrice(tx.GasPrice, m.config.GasBumpMultiplier)

		m.logger.Info("transaction not included, resubmitting",
			"nonce", tx.Nonce, "gas_price", tx.GasPrice, "attempt", bumps)

		bumped, err := m.send(ctx, signer, tx)

		switch {
		case err == nil:
			sent = append(sent, attempt{hash: bumped, gasPrice: tx.GasPrice})
			handle.resolveResubmission(bumped)
		case isNonceTooLow(err):
			// the nonce was consumed, either by one of the sent transactions or by another one
			receipt, rerr := m.findReceipt(ctx, sent)
			if rerr != nil {
				return &Outcome{Status: Failed, TxHash: hash, Err: rerr}
			}

			if receipt == nil {
				return &Outcome{Status: Dropped, TxHash: hash, Err: ErrDropped}
			}

			if outcome := m.confirm(ctx, receipt); outcome != nil {
				return outcome
			}
		case ctx.Err() != nil:
			return &Outcome{Status: Failed, TxHash: hash, Err: ctx.Err()}
		default:
			m.logger.Warn("failed to resubmit transaction", "nonce", tx.Nonce, "err", err)
		}
	}
}

// prepare fills nonce, gas limit and gas price and returns the signer of the chain
func (m *Monitor) prepare(ctx context.Context, tx *ethgo.Transaction) (*wallet.EIP1155Signer, error) {
	from := m.key.Address()
	tx.From = from

	chainID, err := m.callUint64(ctx, "eth_chainId")
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	if tx.Nonce, err = m.callUint64(ctx, "eth_getTransactionCount", from, ethgo.Pending.String()); err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	if tx.GasPrice, err = m.callUint64(ctx, "eth_gasPrice"); err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	if tx.Gas == 0 {
		msg := &ethgo.CallMsg{
			From:  from,
			To:    tx.To,
			Data:  tx.Input,
			Value: tx.Value,
		}

		gas, err := m.callUint64(ctx, "eth_estimateGas", msg)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}

		tx.Gas = gas + gas*m.config.ExtraGasPercentage/100
	}

	return wallet.NewEIP155Signer(chainID), nil
}

func (m *Monitor) send(ctx context.Context, signer *wallet.EIP1155Signer, tx *ethgo.Transaction) (ethgo.Hash, error) {
	signed, err := signer.SignTx(tx.Copy(), m.key)
	if err != nil {
		return ethgo.ZeroHash, fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := signed.MarshalRLPTo(nil)
	if err != nil {
		return ethgo.ZeroHash, err
	}

	var hash ethgo.Hash
	if err := l1.CallContext(ctx, m.client, "eth_sendRawTransaction", &hash, hex.EncodeToHex(raw)); err != nil {
		return ethgo.ZeroHash, err
	}

	incAttemptsMetric()
	setGasPriceMetric(tx.GasPrice)

	m.logger.Debug("sent transaction", "hash", hash, "nonce", tx.Nonce, "gas_price", tx.GasPrice)

	return hash, nil
}

// waitForReceipt polls the receipts of all sent transactions until one is found or the deadline passes
func (m *Monitor) waitForReceipt(ctx context.Context, sent []attempt, deadline time.Time) (*ethgo.Receipt, error) {
	ticker := time.NewTicker(m.config.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := m.findReceipt(ctx, sent)
		if err != nil {
			return nil, err
		}

		if receipt != nil {
			return receipt, nil
		}

		if !time.Now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// findReceipt returns the first receipt found among the sent transactions.
// Query errors are transient and reported as not found unless ctx is done.
func (m *Monitor) findReceipt(ctx context.Context, sent []attempt) (*ethgo.Receipt, error) {
	for _, a := range sent {
		receipt, err := m.getReceipt(ctx, a.hash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			m.logger.Debug("failed to get receipt", "hash", a.hash, "err", err)

			continue
		}

		if receipt != nil {
			return receipt, nil
		}
	}

	return nil, nil
}

func (m *Monitor) getReceipt(ctx context.Context, hash ethgo.Hash) (*ethgo.Receipt, error) {
	var receipt *ethgo.Receipt
	if err := l1.CallContext(ctx, m.client, "eth_getTransactionReceipt", &receipt, hash); err != nil {
		return nil, err
	}

	return receipt, nil
}

// confirm waits until the receipt has the required confirmations.
// It returns nil when the receipt is no longer present.
func (m *Monitor) confirm(ctx context.Context, receipt *ethgo.Receipt) *Outcome {
	hash := receipt.TransactionHash

	if m.config.Confirmations > 0 {
		ticker := time.NewTicker(m.config.ReceiptPollInterval)
		defer ticker.Stop()

		target := receipt.BlockNumber + m.config.Confirmations

		for {
			head, err := m.callUint64(ctx, "eth_blockNumber")
			if err == nil && head >= target {
				break
			}

			select {
			case <-ctx.Done():
				return &Outcome{Status: Failed, TxHash: hash, Err: ctx.Err()}
			case <-ticker.C:
			}
		}

		current, err := m.getReceipt(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return &Outcome{Status: Failed, TxHash: hash, Err: ctx.Err()}
			}

			return nil
		}

		if current == nil {
			m.logger.Warn("receipt removed by reorg", "hash", hash, "block", receipt.BlockNumber)

			return nil
		}

		receipt = current
	}

	if receipt.Status != 1 {
		return &Outcome{Status: Reverted, TxHash: hash, Receipt: receipt}
	}

	return &Outcome{Status: Confirmed, TxHash: hash, Receipt: receipt}
}

func (m *Monitor) callUint64(ctx context.Context, method string, params ...interface{}) (uint64, error) {
	var out string
	if err := l1.CallContext(ctx, m.client, method, &out, params...); err != nil {
		return 0, err
	}

	return hex.DecodeUint64(out)
}

// bumpGasPrice returns max(prev*multiplier, prev+1)
func bumpGasPrice(prev uint64, multiplier float64) uint64 {
	bumped := float64(prev) * multiplier
	if bumped >= math.MaxUint64 {
		return math.MaxUint64
	}

	if next := uint64(bumped); next > prev {
		return next
	}

	return prev + 1
}

func isNonceTooLow(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}
