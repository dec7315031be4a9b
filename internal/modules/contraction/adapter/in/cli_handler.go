package in

import (
	"context"

	"laborwatch/internal/modules/contraction/dto"
	contractionin "laborwatch/internal/modules/contraction/port/in"
)

type CLIHandler struct {
	usecase contractionin.Usecase
}

func NewCLIHandler(usecase contractionin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Start(ctx context.Context) (dto.StartOutput, error) {
	return h.usecase.Start(ctx)
}

func (h CLIHandler) Stop(ctx context.Context) (dto.StopOutput, error) {
	return h.usecase.Stop(ctx)
}

func (h CLIHandler) Reset(ctx context.Context) error {
	return h.usecase.Reset(ctx)
}

func (h CLIHandler) Status(ctx context.Context) (dto.StatusOutput, error) {
	return h.usecase.Status(ctx)
}

func (h CLIHandler) History(ctx context.Context, order string) ([]dto.EventOutput, error) {
	return h.usecase.History(ctx, dto.HistoryInput{Order: order})
}

func (h CLIHandler) Series(ctx context.Context) (dto.SeriesOutput, error) {
	return h.usecase.LiveSeries(ctx)
}

func (h CLIHandler) Summary(ctx context.Context) (dto.SummaryOutput, error) {
	return h.usecase.Summary(ctx)
}

func (h CLIHandler) Export(ctx context.Context, path string) (dto.ExportOutput, error) {
	return h.usecase.Export(ctx, dto.ExportInput{Path: path})
}

func (h CLIHandler) Report(ctx context.Context) (string, error) {
	return h.usecase.Report(ctx)
}
