package codec

import (
	"github.com/bytedance/sonic"

	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/validation"
)

// ContentType is the media type of frame-encoded HTTP bodies.
const ContentType = "application/vnd.meshflow.frame"

// FetchPath is the worker route serving fetch requests.
const FetchPath = "/v1/fetch"

// FetchRequest asks a worker to run one of its datasets for a contract.
type FetchRequest struct {
	Dataset  string        `json:"dataset" validate:"required"`
	Contract contract.Spec `json:"contract"`
	// Rank and Pass identify the caller in worker logs.
	Rank int `json:"rank"`
	Pass int `json:"pass"`
}

// NewFetchRequest builds a request for c.
func NewFetchRequest(dataset string, c *contract.Contract) FetchRequest {
	return FetchRequest{Dataset: dataset, Contract: c.Spec()}
}

// MarshalRequest encodes r as a JSON body.
func MarshalRequest(r FetchRequest) ([]byte, error) {
	body, err := sonic.Marshal(&r)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return body, nil
}

// UnmarshalRequest decodes and validates a JSON body and returns the
// contract it carries.
func UnmarshalRequest(body []byte) (FetchRequest, *contract.Contract, error) {
	var r FetchRequest
	if err := sonic.Unmarshal(body, &r); err != nil {
		return r, nil, errors.InvalidInput("body", err.Error())
	}
	if err := validation.Validate(&r); err != nil {
		return r, nil, err
	}
	c, err := contract.FromSpec(r.Contract)
	if err != nil {
		return r, nil, err
	}
	return r, c, nil
}
