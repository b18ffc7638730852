package port

import "github.com/Wyydra/callctl/internal/core/domain"

type Metrics interface {
	Transition(from, to domain.State)
	ProvisionFailed()
	ClientCreated()
	ClientReleased(err error)
}

type NopMetrics struct{}

func (NopMetrics) Transition(from, to domain.State) {}
func (NopMetrics) ProvisionFailed()                 {}
func (NopMetrics) ClientCreated()                   {}
func (NopMetrics) ClientReleased(err error)         {}
