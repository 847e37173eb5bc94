package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/naila/sayra/internal/observability"
	"github.com/naila/sayra/pkg/provider"
)

// FragmentSink receives provider fragments one at a time, in arrival
// order. WriteFragment must not return until the fragment has been
// handed to the transport, so a slow caller applies backpressure to
// the relay rather than forcing it to buffer.
type FragmentSink interface {
	WriteFragment(fragment string) error
}

// RelayResult reports what a relay forwarded. Text is the
// concatenation of every forwarded fragment, complete only when the
// relay returned without error.
type RelayResult struct {
	Text      string
	Fragments int
}

// Relay drains src, forwarding each fragment to sink as it arrives and
// accumulating the concatenation. It returns once the source is
// exhausted.
//
// A source failure mid-sequence is returned as a ProviderError after
// everything up to the failure point has already been forwarded; the
// caller decides how to terminate its transport. A gap between
// fragments longer than idleTimeout counts as a stalled stream. When
// ctx is canceled the source is closed and consumption stops, which
// propagates cancellation back to the provider connection.
func Relay(ctx context.Context, src provider.Stream, sink FragmentSink, idleTimeout time.Duration) (RelayResult, error) {
	type recvResult struct {
		fragment string
		err      error
	}

	var (
		result RelayResult
		acc    strings.Builder
	)

	// The channel is unbuffered on purpose: the reader may run at most
	// one Recv ahead of the slowest of sink and caller.
	fragments := make(chan recvResult)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			fragment, err := src.Recv()
			select {
			case fragments <- recvResult{fragment, err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var timer *time.Timer
	var timeout <-chan time.Time
	if idleTimeout > 0 {
		timer = time.NewTimer(idleTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			src.Close()
			result.Text = acc.String()
			return result, ctx.Err()

		case <-timeout:
			src.Close()
			result.Text = acc.String()
			return result, &ProviderError{
				Stage: "idle-timeout",
				Err:   fmt.Errorf("no fragment received within %s", idleTimeout),
			}

		case recv := <-fragments:
			if recv.err != nil {
				result.Text = acc.String()
				if errors.Is(recv.err, io.EOF) {
					return result, nil
				}
				return result, &ProviderError{Stage: "stream", Err: recv.err}
			}

			if err := sink.WriteFragment(recv.fragment); err != nil {
				src.Close()
				result.Text = acc.String()
				return result, fmt.Errorf("forward fragment: %w", err)
			}
			acc.WriteString(recv.fragment)
			result.Fragments++
			observability.RecordFragment()

			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(idleTimeout)
			}
		}
	}
}
