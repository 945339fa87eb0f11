package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultReportInterval = 5 * time.Second
	defaultReportBatch    = 30
	defaultReportTimeout  = 30 * time.Second
)

// Uploader 把一条迁移写到远端（如飞书多维表格）。
type Uploader interface {
	UploadTransition(ctx context.Context, t Transition) error
}

// Reporter 周期性地把未上报的迁移推送给 Uploader，失败的行在下一轮重试。
type Reporter struct {
	journal  *Journal
	uploader Uploader

	Interval  time.Duration
	BatchSize int
	Timeout   time.Duration
}

// NewReporter 构建 Reporter。
func NewReporter(journal *Journal, uploader Uploader) *Reporter {
	return &Reporter{
		journal:   journal,
		uploader:  uploader,
		Interval:  defaultReportInterval,
		BatchSize: defaultReportBatch,
		Timeout:   defaultReportTimeout,
	}
}

// Run 阻塞直到 ctx 结束。
func (r *Reporter) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = defaultReportInterval
	}
	r.FlushOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.FlushOnce(ctx)
		}
	}
}

// FlushOnce 上报一批待处理迁移，返回成功条数。
func (r *Reporter) FlushOnce(ctx context.Context) int {
	rows, err := r.journal.PendingTransitions(ctx, r.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("transition reporter fetch pending rows failed")
		return 0
	}
	sent := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			return sent
		}
		if err := r.dispatch(ctx, row); err != nil {
			log.Error().Err(err).Int64("row_id", row.ID).Msg("transition reporter dispatch row failed")
			if markErr := r.journal.MarkFailed(context.WithoutCancel(ctx), row.ID, err); markErr != nil {
				log.Error().Err(markErr).Int64("row_id", row.ID).Msg("transition reporter mark failure failed")
			}
			continue
		}
		if err := r.journal.MarkReported(context.WithoutCancel(ctx), row.ID); err != nil {
			log.Error().Err(err).Int64("row_id", row.ID).Msg("transition reporter mark success failed")
			continue
		}
		sent++
	}
	return sent
}

func (r *Reporter) dispatch(ctx context.Context, row Transition) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultReportTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.uploader.UploadTransition(ctx, row)
}
