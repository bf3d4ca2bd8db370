package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
)

const maxMutationAttempts = 5

// errNoChange lets a mutation skip the write and return the current report.
var errNoChange = errors.New("no change")

// mutate re-reads the report, applies fn and writes it back, retrying on
// revision conflicts. fn must be safe to run more than once.
func mutate(ctx context.Context, repo repository.ReportRepository, id string, fn func(report *models.Report) error) (models.Report, error) {
	var lastErr error
	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		report, err := repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Report{}, ErrReportNotFound
			}
			return models.Report{}, err
		}

		if err := fn(&report); err != nil {
			if errors.Is(err, errNoChange) {
				return report, nil
			}
			return report, err
		}

		err = repo.Update(ctx, &report)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, repository.ErrRevisionConflict) {
			return models.Report{}, err
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Report{}, ctxErr
		}
	}
	return models.Report{}, lastErr
}

// loadReport fetches a report and translates not-found.
func loadReport(ctx context.Context, repo repository.ReportRepository, id string) (models.Report, error) {
	report, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Report{}, ErrReportNotFound
		}
		return models.Report{}, err
	}
	return report, nil
}

func corrupt(err error) error {
	var blobErr *models.BlobError
	if errors.As(err, &blobErr) {
		return errors.Join(ErrCorruptRecord, err)
	}
	return err
}
