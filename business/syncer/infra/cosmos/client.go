// Package cosmos queries account balances and contract metadata from a Cosmos
// SDK LCD (REST) gateway.
package cosmos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainsync/business/syncer/domain"
	"github.com/fd1az/chainsync/internal/apperror"
	"github.com/fd1az/chainsync/internal/circuitbreaker"
	"github.com/fd1az/chainsync/internal/httpclient"
	"github.com/fd1az/chainsync/internal/logger"
)

const (
	tracerName = "github.com/fd1az/chainsync/business/syncer/infra/cosmos"

	balancesPath = "/cosmos/bank/v1beta1/balances/"
	contractPath = "/cosmwasm/wasm/v1/contract/"

	heightHeader = "Grpc-Metadata-X-Cosmos-Block-Height"
)

// Config holds LCD client settings.
type Config struct {
	// Denom is the denomination reported as Balance.Amount.
	Denom   string
	Timeout time.Duration
	// Breaker is the template for every per-endpoint breaker. Name is
	// replaced by the endpoint.
	Breaker circuitbreaker.Config
}

// DefaultConfig returns usei balances with a 10s timeout.
func DefaultConfig() Config {
	return Config{
		Denom:   "usei",
		Timeout: 10 * time.Second,
		Breaker: circuitbreaker.DefaultConfig("lcd"),
	}
}

// Client talks to any number of LCD endpoints. Each endpoint gets its own
// circuit breaker so one failing gateway never blocks the others.
type Client struct {
	http   httpclient.Client
	cfg    Config
	logger logger.LoggerInterface
	tracer trace.Tracer

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker[*httpclient.Response]
}

// maxConnsPerEndpoint bounds the concurrent priority refreshes sent to one
// LCD node.
const maxConnsPerEndpoint = 8

// NewClient creates an LCD client.
func NewClient(cfg Config, log logger.LoggerInterface, opts ...httpclient.ClientOption) (*Client, error) {
	if cfg.Denom == "" {
		cfg.Denom = "usei"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	tracer := otel.Tracer(tracerName)
	base := []httpclient.ClientOption{
		httpclient.WithProviderName("cosmos-lcd"),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithMaxConnsPerHost(maxConnsPerEndpoint),
		httpclient.WithTracer(tracer, false),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	}
	client, err := httpclient.NewInstrumentedClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Client{
		http:     client,
		cfg:      cfg,
		logger:   log,
		tracer:   tracer,
		breakers: make(map[string]*circuitbreaker.CircuitBreaker[*httpclient.Response]),
	}, nil
}

type coinJSON struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type balancesResponse struct {
	Balances []coinJSON `json:"balances"`
}

type contractResponse struct {
	Address      string `json:"address"`
	ContractInfo struct {
		CodeID  string `json:"code_id"`
		Creator string `json:"creator"`
		Admin   string `json:"admin"`
		Label   string `json:"label"`
	} `json:"contract_info"`
}

// QueryBalance fetches every coin held by address on endpoint.
func (c *Client) QueryBalance(ctx context.Context, endpoint, address string) (domain.Balance, error) {
	ctx, span := c.tracer.Start(ctx, "cosmos.query_balance", trace.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("address", address),
	))
	defer span.End()

	var out balancesResponse
	resp, err := c.get(ctx, endpoint, balancesPath+address, "balances", &out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Balance{}, apperror.New(apperror.CodeBalanceQueryFailed,
			apperror.WithContext(address), apperror.WithCause(err))
	}

	bal := domain.Balance{
		Address: address,
		Denom:   c.cfg.Denom,
		Amount:  decimal.Zero,
		Height:  blockHeight(resp),
	}
	for _, coin := range out.Balances {
		amount, err := decimal.NewFromString(coin.Amount)
		if err != nil {
			return domain.Balance{}, apperror.New(apperror.CodeInvalidInput,
				apperror.WithContext(fmt.Sprintf("%s amount %q", coin.Denom, coin.Amount)), apperror.WithCause(err))
		}
		bal.Coins = append(bal.Coins, domain.Coin{Denom: coin.Denom, Amount: amount})
		if coin.Denom == c.cfg.Denom {
			bal.Amount = amount
		}
	}

	span.SetAttributes(attribute.Int("coins", len(bal.Coins)))
	return bal, nil
}

// QueryContract fetches the metadata of a CosmWasm contract on endpoint.
func (c *Client) QueryContract(ctx context.Context, endpoint, contract string) (domain.ContractInfo, error) {
	ctx, span := c.tracer.Start(ctx, "cosmos.query_contract", trace.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("contract", contract),
	))
	defer span.End()

	var out contractResponse
	if _, err := c.get(ctx, endpoint, contractPath+contract, "contract", &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if status, ok := statusOf(err); ok && status == http.StatusNotFound {
			return domain.ContractInfo{}, apperror.New(apperror.CodeContractNotFound,
				apperror.WithContext(contract), apperror.WithCause(err))
		}
		return domain.ContractInfo{}, apperror.New(apperror.CodeContractQueryFailed,
			apperror.WithContext(contract), apperror.WithCause(err))
	}

	info := domain.ContractInfo{
		Address: out.Address,
		Creator: out.ContractInfo.Creator,
		Admin:   out.ContractInfo.Admin,
		Label:   out.ContractInfo.Label,
	}
	if info.Address == "" {
		info.Address = contract
	}
	if out.ContractInfo.CodeID != "" {
		id, err := strconv.ParseUint(out.ContractInfo.CodeID, 10, 64)
		if err != nil {
			return domain.ContractInfo{}, apperror.New(apperror.CodeInvalidInput,
				apperror.WithContext("code_id "+out.ContractInfo.CodeID), apperror.WithCause(err))
		}
		info.CodeID = id
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, endpoint, path, label string, result any) (*httpclient.Response, error) {
	url := strings.TrimSuffix(endpoint, "/") + path
	return c.breaker(endpoint).Execute(func() (*httpclient.Response, error) {
		return c.http.NewRequestWithOptions(
			httpclient.WithLabels(httpclient.NewLabel("query", label)),
			httpclient.WithResponseErrorHandler(httpclient.StatusErrorHandler),
		).
			SetResult(result).
			Get(ctx, url)
	})
}

func (c *Client) breaker(endpoint string) *circuitbreaker.CircuitBreaker[*httpclient.Response] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[endpoint]; ok {
		return cb
	}

	cfg := c.cfg.Breaker
	cfg.Name = endpoint
	cfg.IsSuccessful = countsAsSuccess
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Warn(context.Background(), "lcd circuit breaker state changed",
			"endpoint", name, "from", from.String(), "to", to.String())
	}
	cb := circuitbreaker.New[*httpclient.Response](cfg)
	c.breakers[endpoint] = cb
	return cb
}

// BreakerStates reports the breaker state of every endpoint used so far.
func (c *Client) BreakerStates() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.breakers))
	for ep, cb := range c.breakers {
		out[ep] = cb.State().String()
	}
	return out
}

// countsAsSuccess keeps client errors from tripping a breaker: a 404 for an
// unknown account says nothing about the endpoint's health.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	status, ok := statusOf(err)
	return ok && status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

func statusOf(err error) (int, bool) {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.HTTPStatus(), true
	}
	return 0, false
}

func blockHeight(resp *httpclient.Response) int64 {
	if resp == nil || resp.Response == nil {
		return 0
	}
	h, err := strconv.ParseInt(resp.Header.Get(heightHeader), 10, 64)
	if err != nil {
		return 0
	}
	return h
}
