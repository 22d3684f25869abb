package usecase

import (
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

type nopObserver struct{}

func (nopObserver) ObserveRoute(domain.RouteDecision)                  {}
func (nopObserver) ObserveTableFallback()                              {}
func (nopObserver) ObserveRetrieval(domain.Corpus, time.Duration, int) {}
func (nopObserver) ObserveVerification(domain.VerificationStatus)      {}

func observerOrNop(o ports.RetrievalObserver) ports.RetrievalObserver {
	if o == nil {
		return nopObserver{}
	}
	return o
}

type nopRebuildObserver struct{}

func (nopRebuildObserver) ObserveIndexBuild(domain.IndexBuild, time.Duration) {}
func (nopRebuildObserver) ObserveRebuildFailure(string)                       {}

func rebuildObserverOrNop(o ports.RebuildObserver) ports.RebuildObserver {
	if o == nil {
		return nopRebuildObserver{}
	}
	return o
}
