package carrier

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Simulator stands in for the carrier when no credentials are
// configured. Outcomes are a pure function of the destination number,
// so a given recipient always succeeds or always fails and the rest of
// the pipeline can be exercised without a live dependency.
type Simulator struct {
	domesticPrefix string
	failPercent    uint32
}

func NewSimulator(domesticPrefix string, failPercent int) *Simulator {
	if failPercent < 0 {
		failPercent = 0
	}
	if failPercent > 100 {
		failPercent = 100
	}
	return &Simulator{domesticPrefix: domesticPrefix, failPercent: uint32(failPercent)}
}

func (s *Simulator) Send(ctx context.Context, destination, body string) Result {
	if err := ctx.Err(); err != nil {
		return Result{ErrorReason: err.Error()}
	}

	h := hashDestination(destination)
	if h%100 < s.failPercent {
		return Result{ErrorReason: fmt.Sprintf("simulated carrier rejection for %s", destination)}
	}

	return Result{
		Success:           true,
		ProviderMessageID: fmt.Sprintf("SM%08x", h),
		Cost:              EstimateCost(body, destination, s.domesticPrefix),
	}
}

// WouldFail reports whether the simulator rejects destination. Handy
// for picking deterministic fixtures.
func (s *Simulator) WouldFail(destination string) bool {
	return hashDestination(destination)%100 < s.failPercent
}

func hashDestination(destination string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(destination))
	return h.Sum32()
}
