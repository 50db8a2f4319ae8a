package strategy_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/trafficd/internal/backend"
	"github.com/angeloszaimis/trafficd/internal/strategy"
)

var _ = Describe("LeastResponse", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewLeastResponseStrategy()
		backends = newTestBackends(
			"http://localhost:8081",
			"http://localhost:8082",
			"http://localhost:8083",
		)
	})

	It("should select the backend with the lowest EWMA response time", func() {
		backends[0].RecordResponse(100 * time.Millisecond)
		backends[1].RecordResponse(50 * time.Millisecond)
		backends[2].RecordResponse(200 * time.Millisecond)

		Expect(strat.SelectBackend(backends)).To(Equal(backends[1]))
	})

	It("should take an unsampled backend immediately", func() {
		backends[0].RecordResponse(10 * time.Millisecond)

		Expect(strat.SelectBackend(backends)).To(Equal(backends[1]))
	})

	It("should weigh response time by load", func() {
		backends[0].RecordResponse(50 * time.Millisecond)
		backends[1].RecordResponse(60 * time.Millisecond)

		// Pushing load onto the faster backend tips the score.
		for i := 0; i < 5; i++ {
			backends[0].IncrementConn()
		}
		backends[2].SetHealthy(false)

		Expect(strat.SelectBackend(backends)).To(Equal(backends[1]))
	})

	It("should return nil for an empty backend list", func() {
		Expect(strat.SelectBackend([]*backend.Backend{})).To(BeNil())
	})
})
