package in

import (
	"context"

	"laborwatch/internal/modules/contraction/dto"
)

type Usecase interface {
	Start(ctx context.Context) (dto.StartOutput, error)
	Stop(ctx context.Context) (dto.StopOutput, error)
	Reset(ctx context.Context) error
	Status(ctx context.Context) (dto.StatusOutput, error)
	History(ctx context.Context, input dto.HistoryInput) ([]dto.EventOutput, error)
	LiveSeries(ctx context.Context) (dto.SeriesOutput, error)
	// SubscribeSeries streams series changes until cancel is called. Slow
	// readers miss updates and should reload with LiveSeries on the next one.
	SubscribeSeries(buffer int) (<-chan dto.SeriesUpdate, func())
	Summary(ctx context.Context) (dto.SummaryOutput, error)
	Export(ctx context.Context, input dto.ExportInput) (dto.ExportOutput, error)
	// Report renders the history note as markdown without writing it.
	Report(ctx context.Context) (string, error)
}
