// Package usecases - selection.go accepts user-picked candidates into the corpus.
package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

// SelectionUseCase downloads selected candidates, files them under the
// corpus and records their keys so later searches skip them.
type SelectionUseCase struct {
	fetcher    ports.ImageFetcher
	writer     ports.CorpusWriter
	exclusions ports.ExclusionStore
	corpus     *CorpusIndex
	now        func() time.Time
}

// NewSelectionUseCase creates a SelectionUseCase with injected dependencies.
// corpus may be nil, in which case no rebuild follows an accept.
func NewSelectionUseCase(
	fetcher ports.ImageFetcher,
	writer ports.CorpusWriter,
	exclusions ports.ExclusionStore,
	corpus *CorpusIndex,
) *SelectionUseCase {
	return &SelectionUseCase{
		fetcher:    fetcher,
		writer:     writer,
		exclusions: exclusions,
		corpus:     corpus,
		now:        time.Now,
	}
}

// Accept stores each candidate. A failing candidate is reported and the rest
// continue.
func (uc *SelectionUseCase) Accept(
	ctx context.Context,
	event entities.EventType,
	budget entities.BudgetRange,
	candidates []entities.RawCandidate,
) entities.SelectionReport {
	report := entities.SelectionReport{
		Saved:  []entities.SavedImage{},
		Failed: []entities.FailedImage{},
	}

	var keys []string
	for _, c := range candidates {
		path, err := uc.acceptOne(ctx, event, budget, c)
		if err != nil {
			logrus.WithError(err).WithField("key", c.Key()).Warn("Selected image not saved")
			report.Failed = append(report.Failed, entities.FailedImage{Key: c.Key(), Error: err.Error()})
			continue
		}
		report.Saved = append(report.Saved, entities.SavedImage{Key: c.Key(), Path: path})
		keys = append(keys, c.Key())
	}

	if len(keys) == 0 {
		return report
	}
	if uc.exclusions != nil {
		if err := uc.exclusions.Add(ctx, keys...); err != nil {
			logrus.WithError(err).Error("Recording selected keys failed")
		}
	}
	if uc.corpus != nil {
		if err := uc.corpus.Rebuild(ctx); err != nil {
			logrus.WithError(err).Error("Corpus rebuild after selection failed")
		}
	}
	logrus.WithFields(logrus.Fields{
		"saved":  len(report.Saved),
		"failed": len(report.Failed),
	}).Info("Selection accepted")
	return report
}

func (uc *SelectionUseCase) acceptOne(ctx context.Context, event entities.EventType, budget entities.BudgetRange, c entities.RawCandidate) (string, error) {
	if c.ImageURL == "" {
		return "", fmt.Errorf("candidate has no image url")
	}
	data, err := uc.fetcher.Fetch(ctx, c.ImageURL)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", c.ImageURL, err)
	}
	path, err := uc.writer.Save(ctx, ports.SelectedImage{
		Candidate: c,
		Event:     event,
		Budget:    budget,
		Data:      data,
		SavedAt:   uc.now(),
	})
	if err != nil {
		return "", fmt.Errorf("saving %s: %w", c.ImageURL, err)
	}
	return path, nil
}
