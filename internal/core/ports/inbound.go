package ports

import (
	"context"

	"github.com/qonfido/fundrag/internal/core/domain"
)

// QueryService is the inbound contract for answering queries.
type QueryService interface {
	Process(ctx context.Context, req domain.QueryRequest) (*domain.RetrievalResponse, error)
	Retrieve(ctx context.Context, req domain.QueryRequest) (*domain.RetrievalResponse, error)
}

// IndexAdmin is the inbound contract for index lifecycle control.
type IndexAdmin interface {
	State() domain.IndexState
	DocumentCount() int
	Initialize(ctx context.Context) error
	Reinitialize(ctx context.Context, force bool) error
}

// FundCatalog is the inbound read model over the loaded fund records.
type FundCatalog interface {
	List(filter domain.FundFilter) ([]domain.Fund, int, error)
	Get(id string) (*domain.Fund, error)
	Compare(ids []string) ([]domain.Fund, error)
	MetricsSummary() (domain.FundMetricsSummary, error)
}
