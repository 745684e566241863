package service

import (
	"context"

	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// persistVerdict stores and publishes a final verdict. Failures are logged,
// the caller already has the verdict.
func (s *Service) persistVerdict(ctx context.Context, sub model.Submission, v model.Verdict) {
	if s.verdicts == nil && s.publisher == nil {
		return
	}
	ctxStore, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	if s.verdicts != nil {
		if err := s.verdicts.Save(ctxStore, v); err != nil {
			logger.Warn(ctx, "save verdict failed", zap.Error(err))
		}
	}
	if s.publisher != nil {
		event := model.NewVerdictEvent(sub, v, s.now().Unix())
		if err := s.publisher.PublishVerdict(ctxStore, event); err != nil {
			logger.Warn(ctx, "publish verdict failed", zap.Error(err))
		}
	}
}

// GetVerdict returns a stored verdict.
func (s *Service) GetVerdict(ctx context.Context, submissionID string) (model.Verdict, error) {
	if s.verdicts == nil {
		return model.Verdict{}, appErr.New(appErr.ServiceUnavailable).WithMessage("verdict store is not configured")
	}
	ctxStore, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.verdicts.Get(ctxStore, submissionID)
}
