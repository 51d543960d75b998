package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"mercator-hq/triage/pkg/budget"
	"mercator-hq/triage/pkg/facts"
	"mercator-hq/triage/pkg/probe"
)

const defaultChunkSize = 32 << 10

// PatternProbe scans the artifact for literal byte patterns.
//
// Configuration:
//
//	patterns:
//	  has_javascript: "/JavaScript"
//	  has_openaction: "/OpenAction"
//
// Every key becomes a boolean fact. When the scan stops before the end of
// the artifact only the patterns that were found are reported; the others
// stay unknown.
type PatternProbe struct {
	// ChunkSize is the read size; zero selects 32 KiB.
	ChunkSize int
}

// Run implements probe.Probe.
func (p *PatternProbe) Run(ctx context.Context, req *probe.Request) (*probe.Result, error) {
	patterns, err := stringMap(req.Config, "patterns")
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no patterns configured")
	}

	keys := sortedKeys(patterns)
	overlap := 0
	for _, k := range keys {
		if len(patterns[k]) == 0 {
			return nil, fmt.Errorf("pattern %q is empty", k)
		}
		overlap = max(overlap, len(patterns[k])-1)
	}

	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}

	limit := min(req.Size, req.Allowance.BytesScanned)
	found := make(map[string]bool, len(keys))
	buf := make([]byte, overlap+chunk)
	var (
		carry     int
		scanned   int64
		exhausted []budget.Resource
	)

	for scanned < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		want := min(int64(chunk), limit-scanned)
		n, err := req.Artifact.ReadAt(buf[carry:carry+int(want)], scanned)
		window := buf[:carry+n]
		for _, k := range keys {
			if !found[k] && bytes.Contains(window, []byte(patterns[k])) {
				found[k] = true
			}
		}
		scanned += int64(n)

		if err != nil && !errors.Is(err, io.EOF) {
			if errors.Is(err, budget.ErrBoundExceeded) {
				exhausted = append(exhausted, budget.BytesRead)
				break
			}
			return nil, err
		}
		if n == 0 {
			break
		}

		keep := min(overlap, len(window))
		copy(buf, window[len(window)-keep:])
		carry = keep
	}

	complete := scanned >= req.Size
	if !complete && len(exhausted) == 0 && req.Allowance.BytesScanned < req.Size {
		exhausted = append(exhausted, budget.BytesScanned)
	}

	result := &probe.Result{
		State:     probe.StateOK,
		Facts:     make(map[string]facts.Value, len(keys)),
		Consumed:  budget.Usage{BytesScanned: scanned, Depth: 1},
		Exhausted: exhausted,
	}
	for _, k := range keys {
		if found[k] || complete {
			result.Facts[k] = facts.Bool(found[k])
		}
	}
	if !complete {
		result.State = probe.StatePartial
		result.Detail = fmt.Sprintf("scanned %d of %d bytes", scanned, req.Size)
	}
	return result, nil
}
