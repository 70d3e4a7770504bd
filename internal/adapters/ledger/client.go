package ledger

// client.go — RPC adapter for the market program. Implements ports.Ledger and
// ports.SettlementLedger.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

const (
	defaultRPCRatePerSec = 10
	defaultConfirmPoll   = 500 * time.Millisecond
	defaultConfirmWait   = 60 * time.Second

	defaultLogRetryBase     = 200 * time.Millisecond
	defaultLogRetryMax      = 800 * time.Millisecond
	defaultLogRetryAttempts = 20
)

// rpcAPI is the subset of *rpc.Client the adapter uses.
type rpcAPI interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
}

// Config configures the adapter. Zero durations take the defaults.
type Config struct {
	RPCURL         string
	ProgramID      solana.PublicKey
	RatePerSec     float64
	ConfirmPoll    time.Duration
	ConfirmTimeout time.Duration
	SkipPreflight  bool

	LogRetryBase     time.Duration
	LogRetryMax      time.Duration
	LogRetryAttempts int
}

func (c *Config) setDefaults() {
	if c.RatePerSec <= 0 {
		c.RatePerSec = defaultRPCRatePerSec
	}
	if c.ConfirmPoll <= 0 {
		c.ConfirmPoll = defaultConfirmPoll
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = defaultConfirmWait
	}
	if c.LogRetryBase <= 0 {
		c.LogRetryBase = defaultLogRetryBase
	}
	if c.LogRetryMax <= 0 {
		c.LogRetryMax = defaultLogRetryMax
	}
	if c.LogRetryAttempts <= 0 {
		c.LogRetryAttempts = defaultLogRetryAttempts
	}
}

// Client talks to the ledger on behalf of one signer (keeper or admin).
type Client struct {
	rpc     rpcAPI
	cfg     Config
	key     solana.PrivateKey
	pub     solana.PublicKey
	limiter *rate.Limiter
}

// NewClient connects to cfg.RPCURL and signs with key.
func NewClient(cfg Config, key solana.PrivateKey) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ledger: rpc url is required")
	}
	return newClient(rpc.New(cfg.RPCURL), cfg, key)
}

func newClient(api rpcAPI, cfg Config, key solana.PrivateKey) (*Client, error) {
	if cfg.ProgramID.IsZero() {
		return nil, fmt.Errorf("ledger: program id is required")
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("ledger: signer key must be 64 bytes, got %d", len(key))
	}
	cfg.setDefaults()
	return &Client{
		rpc:     api,
		cfg:     cfg,
		key:     key,
		pub:     key.PublicKey(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), int(cfg.RatePerSec)+1),
	}, nil
}

// LoadKeypair reads a solana-keygen JSON file, or parses a base58 secret key
// when keypair is not a path.
func LoadKeypair(keypair string) (solana.PrivateKey, error) {
	keypair = strings.TrimSpace(keypair)
	if keypair == "" {
		return nil, fmt.Errorf("ledger: empty keypair")
	}
	if _, err := os.Stat(keypair); err == nil {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(keypair)
		if err != nil {
			return nil, fmt.Errorf("ledger: read keypair file: %w", err)
		}
		return key, nil
	}
	key, err := solana.PrivateKeyFromBase58(keypair)
	if err != nil {
		return nil, fmt.Errorf("ledger: keypair is neither a file nor base58: %w", err)
	}
	return key, nil
}

// KeeperPubkey returns the signer's public key.
func (c *Client) KeeperPubkey() solana.PublicKey {
	return c.pub
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// FetchAmmState reads and decodes the market account.
func (c *Client) FetchAmmState(ctx context.Context, market solana.PublicKey) (domain.AmmState, error) {
	if err := c.wait(ctx); err != nil {
		return domain.AmmState{}, fmt.Errorf("ledger.FetchAmmState: %w", err)
	}
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, market, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return domain.AmmState{}, fmt.Errorf("ledger.FetchAmmState: %s: %w", market, err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return domain.AmmState{}, fmt.Errorf("ledger.FetchAmmState: %s: %w", market, rpc.ErrNotFound)
	}
	if !res.Value.Owner.Equals(c.cfg.ProgramID) {
		return domain.AmmState{}, fmt.Errorf("ledger.FetchAmmState: %s owned by %s, not the market program", market, res.Value.Owner)
	}
	return DecodeAmmState(market, res.Value.Data.GetBinary())
}

// ExecuteOrder submits [compute budget, ed25519 verify, execute_limit_order].
func (c *Client) ExecuteOrder(ctx context.Context, order domain.SignedOrder, feeDest solana.PublicKey, computeUnits uint32) (domain.Fill, error) {
	if feeDest.IsZero() {
		return domain.Fill{}, fmt.Errorf("ledger.ExecuteOrder: market %s: fee destination not set", order.Order.Market)
	}
	verify, err := Ed25519Verify(order.Order.User, order.Signature, order.Order.Encode())
	if err != nil {
		return domain.Fill{}, fmt.Errorf("ledger.ExecuteOrder: %w", err)
	}
	trade, err := ExecuteLimitOrder(c.cfg.ProgramID, order.Order, feeDest, c.pub)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("ledger.ExecuteOrder: %w", err)
	}

	sig, err := c.submit(ctx, []solana.Instruction{SetComputeUnitLimit(computeUnits), verify, trade})
	fill := domain.Fill{TxSignature: sigString(sig)}
	if err != nil {
		var ce *domain.ChainError
		if errors.As(err, &ce) {
			fill.Logs = ce.Logs
		}
		return fill, fmt.Errorf("ledger.ExecuteOrder: %w", err)
	}

	logs, _, err := c.fetchLogs(ctx, sig)
	if err != nil {
		// confirmed, so the fill happened; caller falls back to the requested size
		slog.Warn("ledger: logs unavailable after confirmation", "tx", sig, "err", err)
		return fill, nil
	}
	fill.Logs = logs
	fill.FilledSharesE6, fill.ExecutionPriceE6, fill.Parsed = ParseFill(logs)
	return fill, nil
}

func sigString(sig solana.Signature) string {
	if sig.IsZero() {
		return ""
	}
	return sig.String()
}

// submit signs, sends and waits for confirmation. Program failures, in
// preflight or after landing, come back as *domain.ChainError.
func (c *Client) submit(ctx context.Context, ixs []solana.Instruction) (solana.Signature, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(ixs, recent.Value.Blockhash, solana.TransactionPayer(c.pub))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build tx: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.pub) {
			return &c.key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       c.cfg.SkipPreflight,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return solana.Signature{}, ParseChainError(rpcErrorLogs(rpcErr.Data), rpcErr.Message)
		}
		return solana.Signature{}, fmt.Errorf("send tx: %w", err)
	}
	slog.Debug("ledger: transaction sent", "tx", sig, "instructions", len(ixs))

	confirmCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()
	status, err := c.waitForConfirmation(confirmCtx, sig)
	if err != nil {
		return sig, fmt.Errorf("confirm %s: %w", sig, err)
	}
	if status.Err != nil {
		logs, _, _ := c.fetchLogs(ctx, sig)
		return sig, statusChainError(status.Err, logs)
	}
	return sig, nil
}

// rpcErrorLogs pulls simulation logs out of a preflight error payload.
func rpcErrorLogs(data any) []string {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["logs"].([]any)
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			logs = append(logs, s)
		}
	}
	return logs
}

// waitForConfirmation polls the signature status until confirmed or ctx ends.
func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	ticker := time.NewTicker(c.cfg.ConfirmPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if err := c.wait(ctx); err != nil {
				return nil, err
			}
			res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil || res == nil || len(res.Value) == 0 || res.Value[0] == nil {
				continue // not yet seen
			}
			st := res.Value[0]
			if st.Err != nil {
				return st, nil
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return st, nil
			}
		}
	}
}

// fetchLogs reads the transaction's log lines, retrying with exponential
// backoff while the transaction is not yet queryable.
func (c *Client) fetchLogs(ctx context.Context, sig solana.Signature) ([]string, any, error) {
	maxVersion := uint64(0)
	wait := c.cfg.LogRetryBase
	var lastErr error

	for attempt := 1; attempt <= c.cfg.LogRetryAttempts; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, nil, err
		}
		res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err == nil && res != nil && res.Meta != nil {
			return res.Meta.LogMessages, res.Meta.Err, nil
		}
		if err == nil {
			err = rpc.ErrNotFound
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, c.cfg.LogRetryMax)
	}
	return nil, nil, fmt.Errorf("logs for %s after %d attempts: %w", sig, c.cfg.LogRetryAttempts, lastErr)
}
