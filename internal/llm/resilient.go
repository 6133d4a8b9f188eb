package llm

import (
	"context"

	"github.com/quibble-sh/quibble/internal/model"
	"github.com/quibble-sh/quibble/internal/resilience"
)

// resilientClient routes every provider call through the resilience
// executor so retries, rate limiting and the circuit breaker apply
// uniformly regardless of the call's purpose.
type resilientClient struct {
	inner      Client
	executor   *resilience.Executor
	providerID string
}

// NewResilient wraps a client so its calls run under the executor's
// protection for the given provider ID.
func NewResilient(inner Client, executor *resilience.Executor, providerID string) Client {
	return &resilientClient{
		inner:      inner,
		executor:   executor,
		providerID: providerID,
	}
}

func (c *resilientClient) ExtractQuery(ctx context.Context, utterance string) (model.MatchQuery, error) {
	var query model.MatchQuery

	err := c.executor.Execute(ctx, c.providerID, func(ctx context.Context) error {
		var callErr error
		query, callErr = c.inner.ExtractQuery(ctx, utterance)
		return callErr
	})
	if err != nil {
		return model.MatchQuery{}, err
	}

	return query, nil
}
