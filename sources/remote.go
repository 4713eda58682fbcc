package sources

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kbukum/meshflow/codec"
	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/datatree"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/resilience"
	"github.com/kbukum/meshflow/version"
)

// RemoteConfig locates a dataset served by a worker.
type RemoteConfig struct {
	BaseURL string        `yaml:"url" validate:"required,url"`
	Dataset string        `yaml:"dataset" validate:"required"`
	Timeout time.Duration `yaml:"timeout"`
	// Codec must match the worker's MaxFrameBytes; compression is detected per frame.
	Codec   codec.Config             `yaml:"codec"`
	Breaker resilience.BreakerConfig `yaml:"breaker"`
}

// Remote fetches datasets from a meshflow worker.
type Remote struct {
	cfg     RemoteConfig
	client  *resty.Client
	codec   *codec.Codec
	breaker *resilience.CircuitBreaker
}

// NewRemote creates a remote reader.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = cfg.BaseURL
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", codec.ContentType).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", version.UserAgent())
	return &Remote{
		cfg:     cfg,
		client:  client,
		codec:   codec.New(cfg.Codec),
		breaker: resilience.NewCircuitBreaker(cfg.Breaker),
	}
}

// Breaker exposes the circuit breaker guarding the worker.
func (r *Remote) Breaker() *resilience.CircuitBreaker { return r.breaker }

// FetchDataset posts c to the worker and decodes the frame it answers with.
// Error frames come back as the AppError the worker reported.
func (r *Remote) FetchDataset(ctx context.Context, c *contract.Contract, _ flow.ExtentsRecorder) (*datatree.Tree, error) {
	req := codec.NewFetchRequest(r.cfg.Dataset, c)
	info := flow.PassInfoFrom(ctx)
	req.Rank, req.Pass = info.Rank, info.Pass
	body, err := codec.MarshalRequest(req)
	if err != nil {
		return nil, err
	}
	return resilience.Call(r.breaker, func() (*datatree.Tree, error) {
		resp, err := r.client.R().
			SetContext(ctx).
			SetBody(body).
			Post(codec.FetchPath)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.TransportFailure(r.cfg.BaseURL, err)
		}
		if !strings.HasPrefix(resp.Header().Get("Content-Type"), codec.ContentType) {
			return nil, errors.TransportFailure(r.cfg.BaseURL, fmt.Errorf("unexpected %s response", resp.Status()))
		}
		obj, err := r.codec.Decode(bytes.NewReader(resp.Body()))
		if err != nil {
			return nil, err
		}
		defer obj.Release()
		if obj.IsEmpty() {
			return nil, nil
		}
		return obj.Tree()
	})
}
