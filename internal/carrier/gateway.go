package carrier

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"
)

// Result is the normalized outcome of one carrier call. Provider errors
// never surface as Go errors; they land in ErrorReason so a failed send
// is data, not control flow.
type Result struct {
	Success           bool
	ProviderMessageID string
	ErrorReason       string
	Cost              float64
}

type Gateway interface {
	Send(ctx context.Context, destination, body string) Result
}

const segmentRunes = 160

const nonDomesticMultiplier = 1.5

// EstimateCost prices a message at one unit per 160-character segment,
// with a surcharge for destinations outside the domestic prefix.
func EstimateCost(body, destination, domesticPrefix string) float64 {
	segments := int(math.Ceil(float64(utf8.RuneCountInString(body)) / segmentRunes))
	if segments < 1 {
		segments = 1
	}

	cost := float64(segments)
	if domesticPrefix != "" && !strings.HasPrefix(destination, domesticPrefix) {
		cost *= nonDomesticMultiplier
	}
	return cost
}
