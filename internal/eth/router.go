package eth

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridline/internal/engine"
	"gridline/internal/grid"
)

const (
	explorerTxPrefix = "https://etherscan.io/tx/"
	ethDecimals      = 18
)

var oneHundred = decimal.NewFromInt(100)

type RouterConfig struct {
	RouterAddr  string
	WETHAddr    string
	QuoteAddr   string
	QuoteSymbol string
	QuoteDec    int32
	// MaxSlippagePercent bounds both the pre-trade price deviation check
	// and the on-chain amountOutMin.
	MaxSlippagePercent decimal.Decimal
}

// Router executes grid fills against the Uniswap V2 router. Buys swap the
// quote token for ETH, sells swap ETH for the quote token.
type Router struct {
	client      *Client
	routerAddr  common.Address
	wethAddr    common.Address
	quoteAddr   common.Address
	quoteSymbol string
	quoteDec    int32
	maxSlip     decimal.Decimal
	routerABI   abi.ABI
	erc20ABI    abi.ABI
	log         zerolog.Logger
}

func NewRouter(client *Client, cfg RouterConfig, log zerolog.Logger) (*Router, error) {
	rABI, err := abi.JSON(routerABIJSON())
	if err != nil {
		return nil, fmt.Errorf("parse router ABI: %w", err)
	}
	eABI, err := abi.JSON(erc20ABIJSON())
	if err != nil {
		return nil, fmt.Errorf("parse ERC20 ABI: %w", err)
	}
	return &Router{
		client:      client,
		routerAddr:  common.HexToAddress(cfg.RouterAddr),
		wethAddr:    common.HexToAddress(cfg.WETHAddr),
		quoteAddr:   common.HexToAddress(cfg.QuoteAddr),
		quoteSymbol: cfg.QuoteSymbol,
		quoteDec:    cfg.QuoteDec,
		maxSlip:     cfg.MaxSlippagePercent,
		routerABI:   rABI,
		erc20ABI:    eABI,
		log:         log.With().Str("component", "eth-router").Logger(),
	}, nil
}

func (r *Router) ExplorerURL(txHash string) string {
	return explorerTxPrefix + txHash
}

// Swap satisfies engine.Executor. The market price is checked against the
// level price before anything is signed: a deviation past the slippage
// bound aborts without touching the chain.
func (r *Router) Swap(ctx context.Context, req engine.SwapRequest) (*engine.SwapResult, error) {
	if r.maxSlip.Sign() > 0 && req.LevelPrice.Sign() > 0 {
		deviation := req.Price.Sub(req.LevelPrice).Div(req.LevelPrice).Mul(oneHundred).Abs()
		if deviation.GreaterThan(r.maxSlip) {
			return nil, fmt.Errorf("%w: price $%s deviates %s%% from level $%s (max %s%%)",
				engine.ErrSlippageExceeded, req.Price.StringFixed(2),
				deviation.StringFixed(2), req.LevelPrice.StringFixed(2), r.maxSlip)
		}
	}

	var (
		txHash string
		err    error
	)
	if req.Side == grid.Buy {
		txHash, err = r.swapQuoteForETH(ctx, req.QuoteAmount, req.BaseAmount)
	} else {
		txHash, err = r.swapETHForQuote(ctx, req.BaseAmount)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrExecutionFailed, err)
	}

	gas, gasErr := r.GasCostETH(ctx)
	var gasCost *decimal.Decimal
	if gasErr == nil {
		gasCost = &gas
	}

	r.log.Info().Str("tx", r.ExplorerURL(txHash)).
		Str("side", req.Side.String()).Int("level", req.LevelIndex).
		Msg("swap submitted")

	return &engine.SwapResult{
		Ref:         txHash,
		BaseAmount:  req.BaseAmount,
		QuoteAmount: req.QuoteAmount,
		GasCost:     gasCost,
	}, nil
}

// swapQuoteForETH executes swapExactTokensForETH on the router.
func (r *Router) swapQuoteForETH(ctx context.Context, quoteAmount, expectedETH decimal.Decimal) (string, error) {
	if err := r.ensureAllowance(ctx, quoteAmount); err != nil {
		return "", err
	}

	path := []common.Address{r.quoteAddr, r.wethAddr}
	deadline := big.NewInt(time.Now().Unix() + 20*60)
	amountIn := toWei(quoteAmount, r.quoteDec)

	minETH := expectedETH.Mul(decimal.NewFromInt(1).Sub(r.maxSlip.Div(oneHundred)))
	minOutWei := toWei(minETH, ethDecimals)

	data, err := r.routerABI.Pack("swapExactTokensForETH",
		amountIn, minOutWei, path, r.client.wallet, deadline)
	if err != nil {
		return "", fmt.Errorf("pack swapExactTokensForETH: %w", err)
	}

	return r.client.SignAndSend(ctx, r.routerAddr, big.NewInt(0), data)
}

// swapETHForQuote executes swapExactETHForTokens on the router.
func (r *Router) swapETHForQuote(ctx context.Context, ethAmount decimal.Decimal) (string, error) {
	path := []common.Address{r.wethAddr, r.quoteAddr}
	deadline := big.NewInt(time.Now().Unix() + 20*60)
	value := toWei(ethAmount, ethDecimals)

	data, err := r.routerABI.Pack("swapExactETHForTokens",
		big.NewInt(0), path, r.client.wallet, deadline)
	if err != nil {
		return "", fmt.Errorf("pack swapExactETHForTokens: %w", err)
	}

	return r.client.SignAndSend(ctx, r.routerAddr, value, data)
}

// ensureAllowance checks the router's allowance for the quote token and
// approves max if needed.
func (r *Router) ensureAllowance(ctx context.Context, required decimal.Decimal) error {
	data, err := r.erc20ABI.Pack("allowance", r.client.wallet, r.routerAddr)
	if err != nil {
		return err
	}
	result, err := r.client.CallContract(ctx, r.quoteAddr, data)
	if err != nil {
		return fmt.Errorf("allowance call: %w", err)
	}
	current := new(big.Int).SetBytes(result)

	requiredWei := toWei(required.Mul(decimal.NewFromInt(2)), r.quoteDec)
	if current.Cmp(requiredWei) >= 0 {
		return nil
	}

	r.log.Info().Str("token", r.quoteSymbol).Msg("setting router allowance")
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	approveData, err := r.erc20ABI.Pack("approve", r.routerAddr, maxUint256)
	if err != nil {
		return err
	}

	txHash, err := r.client.SignAndSend(ctx, r.quoteAddr, big.NewInt(0), approveData)
	if err != nil {
		return fmt.Errorf("approve tx: %w", err)
	}
	r.log.Info().Str("tx", r.ExplorerURL(txHash)).Msg("allowance tx submitted")
	return nil
}

// Balances satisfies engine.BalanceReader: ETH and quote token holdings.
func (r *Router) Balances(ctx context.Context) (base, quote decimal.Decimal, err error) {
	ethWei, err := r.client.ETHBalance(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	data, err := r.erc20ABI.Pack("balanceOf", r.client.wallet)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	result, err := r.client.CallContract(ctx, r.quoteAddr, data)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("balanceOf call: %w", err)
	}
	quoteWei := new(big.Int).SetBytes(result)

	return fromWei(ethWei, ethDecimals), fromWei(quoteWei, r.quoteDec), nil
}

// GasCostETH estimates the gas cost for a transaction in ETH.
func (r *Router) GasCostETH(ctx context.Context) (decimal.Decimal, error) {
	gasPrice, err := r.client.GasPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(r.client.GasLimit()))
	return fromWei(cost, ethDecimals), nil
}
