package processor

import (
	"context"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/ingest"
)

type PipelineProcessor struct {
	Ingest     *ingest.Ingestor
	Compliance *ComplianceProcessor
}

func (p *PipelineProcessor) Process(ctx context.Context, activityID int64) error {
	if p.Ingest != nil {
		if err := p.Ingest.EnsureActivity(ctx, activityID); err != nil {
			return err
		}
	}
	if p.Compliance != nil {
		if err := p.Compliance.Process(ctx, activityID); err != nil {
			return err
		}
	}
	return nil
}
