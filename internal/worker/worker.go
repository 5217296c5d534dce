package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

// Generator produces the candidates of one (URL, payload) unit.
// *mutation.Engine satisfies it.
type Generator interface {
	Generate(raw string, words []string, payload string) ([]mutation.Candidate, error)
}

// Unit is one (URL, payload) pair. Index fixes its position in the output.
type Unit struct {
	Index   int
	URL     string
	Payload string
}

// Units expands urls x payloads, URL-major.
func Units(urls, payloads []string) []Unit {
	units := make([]Unit, 0, len(urls)*len(payloads))
	for _, u := range urls {
		for _, p := range payloads {
			units = append(units, Unit{Index: len(units), URL: u, Payload: p})
		}
	}
	return units
}

type unitResult struct {
	unit       Unit
	candidates []mutation.Candidate
	err        error
	duration   time.Duration
}

// processUnit runs the generator for one unit. A panic inside generation is
// converted into a unit failure so the batch keeps going.
func processUnit(ctx context.Context, gen Generator, words []string, u Unit, log *logger.Logger, tel telemetry.Telemetry, mode string) (res unitResult) {
	start := time.Now()
	ctx, span := log.StartOperation(ctx, "worker.processUnit",
		"url", u.URL,
		"unit", u.Index,
	)

	res.unit = u
	defer func() {
		if r := recover(); r != nil {
			log.LogPanic(ctx, r, "worker.processUnit", "url", u.URL)
			res.candidates = nil
			res.err = fmt.Errorf("generation panicked: %v", r)
		}
		res.duration = time.Since(start)
		tel.RecordUnit(mode, len(res.candidates), res.duration, res.err == nil)
		log.FinishOperation(ctx, span, "worker.processUnit", start, res.err,
			"candidates", len(res.candidates),
		)
	}()

	res.candidates, res.err = gen.Generate(u.URL, words, u.Payload)
	return res
}
