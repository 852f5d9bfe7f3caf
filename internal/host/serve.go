package host

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/osi4iot/hookmux/internal/hooks"
)

// Serve runs the line-based protocol: one JSON event per stdin line, one
// JSON verdict per stdout line, in input order. Distinct events execute
// concurrently up to settings.maxConcurrency; each chain itself stays
// strictly sequential. Hot reload, when enabled, swaps plugins between
// chains without disturbing ones in flight.
func (e *Engine) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	if err := e.StartWatcher(); err != nil {
		return err
	}

	workers := e.Config.Settings.MaxConcurrency
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	// Verdicts must come back in input order even when chains overlap;
	// each line gets a slot channel the writer drains in sequence.
	slots := make(chan chan Verdict, workers)

	var writerDone sync.WaitGroup
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		enc := json.NewEncoder(w)
		for slot := range slots {
			enc.Encode(<-slot)
		}
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var inflight sync.WaitGroup
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		slot := make(chan Verdict, 1)
		slots <- slot

		sem <- struct{}{}
		inflight.Add(1)
		go func(line string) {
			defer func() {
				<-sem
				inflight.Done()
			}()
			slot <- e.serveOne(ctx, line)
		}(line)

		if ctx.Err() != nil {
			break
		}
	}

	inflight.Wait()
	close(slots)
	writerDone.Wait()

	if err := scanner.Err(); err != nil {
		return hooks.NewError(hooks.KindInput, "reading event stream", err)
	}
	return ctx.Err()
}

// serveOne executes a single event line, failing closed on any error.
func (e *Engine) serveOne(ctx context.Context, line string) Verdict {
	in, err := hooks.ParseInput(strings.NewReader(line))
	if err != nil {
		return Verdict{Action: "block", Message: err.Error()}
	}
	ec, err := hooks.NewContext(in)
	if err != nil {
		return Verdict{Action: "block", Message: err.Error()}
	}
	result, err := e.Registry.ExecuteAndCombine(ctx, ec)
	if err != nil {
		return Verdict{Action: "block", Message: err.Error()}
	}
	return makeVerdict(ec.Event, result)
}
