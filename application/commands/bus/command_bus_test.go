package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingCommand struct{ Fail bool }

func (pingCommand) Validate() error { return nil }

type invalidCommand struct{}

func (invalidCommand) Validate() error { return errors.New("invalid") }

type recordingTracer struct{ spans []string }

func (r *recordingTracer) TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error {
	r.spans = append(r.spans, name)
	return fn(ctx)
}

func TestCommandBus_Dispatch(t *testing.T) {
	tracer := &recordingTracer{}
	b := NewCommandBus(LoggingMiddleware(zap.NewNop()), TracingMiddleware(tracer))

	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(_ context.Context, cmd Command) (interface{}, error) {
		if cmd.(pingCommand).Fail {
			return nil, errors.New("boom")
		}
		return "pong", nil
	})))
	assert.ErrorIs(t, b.Register(pingCommand{}, nil), ErrAlreadyRegistered)

	result, err := b.Send(context.Background(), pingCommand{})
	require.NoError(t, err)
	assert.Equal(t, "pong", result)

	_, err = b.Send(context.Background(), pingCommand{Fail: true})
	assert.EqualError(t, err, "command handler failed: boom")

	assert.Equal(t, []string{"command.pingCommand", "command.pingCommand"}, tracer.spans)
}

func TestCommandBus_ValidationAndMissingHandler(t *testing.T) {
	b := NewCommandBus()

	_, err := b.Send(context.Background(), invalidCommand{})
	assert.EqualError(t, err, "invalid")

	_, err = b.Send(context.Background(), pingCommand{})
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}
