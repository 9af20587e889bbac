package stream

import (
	"context"

	"github.com/howard-nolan/cozegate/internal/provider"
)

// State is the relay's position in its two-state lifecycle.
type State int

const (
	// StateActive is the initial state: events are translated as they come.
	StateActive State = iota
	// StateTerminated is entered on the first event with a truthy
	// is_finish. Nothing is emitted afterwards.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Relay turns a sequence of upstream events into client chunks for one
// response stream. A Relay belongs to a single request and is not safe for
// concurrent use; it keeps no chunk history.
type Relay struct {
	model  string
	format Formatter
	state  State
}

// NewRelay creates a Relay in StateActive that stamps every chunk with model.
func NewRelay(model string, format Formatter) *Relay {
	return &Relay{model: model, format: format}
}

// State returns the current state.
func (r *Relay) State() State {
	return r.state
}

// Step translates one event into the chunks it produces, in order:
//   - one delta chunk with a null finish_reason
//   - if the event is terminal, one synthetic terminal chunk, after which the
//     relay moves to StateTerminated
//
// Once terminated, Step returns nil for every further event.
func (r *Relay) Step(ev provider.Event) []Chunk {
	if r.state == StateTerminated {
		return nil
	}

	chunks := []Chunk{r.format.FormatDelta(ev, r.model)}

	if ev.IsFinish() {
		chunks = append(chunks, r.format.FormatTerminal(r.model))
		r.state = StateTerminated
	}
	return chunks
}

// Run consumes events until the terminal event, the end of the channel, an
// upstream failure, or ctx cancellation, passing each chunk to emit as soon
// as it is produced.
//
// Run returns nil both after a terminal event and when the upstream closes
// the channel without one; State tells the two apart. A failed event is
// returned as-is and no terminal chunk is synthesized for it. An error from
// emit (the client went away) stops the relay and is returned.
//
// Run does not drain the channel after it returns. The caller releases the
// upstream connection by cancelling the context the provider was given.
func (r *Relay) Run(ctx context.Context, events <-chan provider.Event, emit func(Chunk) error) error {
	for r.state == StateActive {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				return ev.Err
			}
			for _, chunk := range r.Step(ev) {
				if err := emit(chunk); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
