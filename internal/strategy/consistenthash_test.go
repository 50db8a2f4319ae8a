package strategy_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/trafficd/internal/backend"
	"github.com/angeloszaimis/trafficd/internal/strategy"
)

var _ = Describe("ConsistentHash", func() {
	var (
		strat    strategy.Strategy
		keyed    strategy.Keyed
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewConsistentHashStrategy(100)
		keyed = strat.(strategy.Keyed)
		backends = newTestBackends(
			"http://localhost:8081",
			"http://localhost:8082",
			"http://localhost:8083",
		)
	})

	Describe("SelectBackend with SetKey", func() {
		It("should return the same backend for the same IP", func() {
			keyed.SetKey("192.168.1.100")
			first := strat.SelectBackend(backends)
			Expect(first).NotTo(BeNil())

			for i := 0; i < 5; i++ {
				keyed.SetKey("192.168.1.100")
				Expect(strat.SelectBackend(backends)).To(Equal(first))
			}
		})

		It("should keep most assignments when one backend drops out", func() {
			assignments := make(map[string]*backend.Backend)

			for i := 0; i < 100; i++ {
				ip := fmt.Sprintf("10.1.%d.%d", i/10, i%10)
				keyed.SetKey(ip)
				assignments[ip] = strat.SelectBackend(backends)
			}

			backends[2].SetHealthy(false)

			moved := 0
			for ip, before := range assignments {
				keyed.SetKey(ip)
				after := strat.SelectBackend(backends)

				if before == backends[2] {
					// Its clients have to move somewhere.
					Expect(after).NotTo(Equal(backends[2]))
					continue
				}
				if after != before {
					moved++
				}
			}

			// The ring only remaps keys owned by the departed backend.
			Expect(moved).To(Equal(0))
		})

		It("should rebuild the ring when the dropped backend recovers", func() {
			keyed.SetKey("192.168.1.100")
			original := strat.SelectBackend(backends)

			backends[1].SetHealthy(false)
			keyed.SetKey("192.168.1.100")
			strat.SelectBackend(backends)

			backends[1].SetHealthy(true)
			keyed.SetKey("192.168.1.100")
			Expect(strat.SelectBackend(backends)).To(Equal(original))
		})

		It("should return nil when nothing is healthy", func() {
			for _, b := range backends {
				b.SetHealthy(false)
			}

			keyed.SetKey("192.168.1.100")
			Expect(strat.SelectBackend(backends)).To(BeNil())
		})
	})
})
