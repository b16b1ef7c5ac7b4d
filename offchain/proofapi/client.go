package proofapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
)

const DefaultBaseURL = "https://worker.jup.ag"

var (
	ErrHTTPStatus     = errors.New("proof service http error")
	ErrInvalidPayload = errors.New("invalid proof payload")
)

// ProofEntry is one wallet's allocation in a merkle distributor.
type ProofEntry struct {
	Distributor solana.Pubkey
	Amount      uint64
	Proof       [][32]byte
}

type proofPayload struct {
	MerkleTree string  `json:"merkle_tree"`
	Amount     uint64  `json:"amount"`
	Proof      [][]int `json:"proof"`
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type Option func(*Client)

// WithRateLimit throttles requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{baseURL: baseURL, http: httpClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func ClientFromEnv(opts ...Option) *Client {
	return New(os.Getenv("JUP_PROOF_URL"), nil, opts...)
}

func (c *Client) BaseURL() string { return c.baseURL }

// FetchProof returns nil, nil when the wallet has no allocation for mint.
func (c *Client) FetchProof(ctx context.Context, mint, wallet solana.Pubkey) (*ProofEntry, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.baseURL + "/jup-claim-proof/" + url.PathEscape(mint.Base58()) + "/" + url.PathEscape(wallet.Base58())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status=%d", ErrHTTPStatus, resp.StatusCode)
	}
	return ParseProof(body)
}

// ParseProof decodes a proof service response body. Empty bodies, null and
// entries without an amount or proof mean no distribution.
func ParseProof(body []byte) (*ProofEntry, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}

	var p proofPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(p.MerkleTree) == "" || p.Amount == 0 || len(p.Proof) == 0 {
		return nil, nil
	}

	distributor, err := solana.ParsePubkey(p.MerkleTree)
	if err != nil {
		return nil, fmt.Errorf("%w: merkle_tree: %v", ErrInvalidPayload, err)
	}
	out := &ProofEntry{
		Distributor: distributor,
		Amount:      p.Amount,
		Proof:       make([][32]byte, len(p.Proof)),
	}
	for i, node := range p.Proof {
		if len(node) != 32 {
			return nil, fmt.Errorf("%w: proof[%d] has %d bytes", ErrInvalidPayload, i, len(node))
		}
		for j, v := range node {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: proof[%d][%d]=%d", ErrInvalidPayload, i, j, v)
			}
			out.Proof[i][j] = byte(v)
		}
	}
	return out, nil
}
