package decorator

import (
	"context"

	"github.com/ctkgo/deviceaccess/pkg/accessor"
	"github.com/ctkgo/deviceaccess/pkg/deverrs"
	"github.com/ctkgo/deviceaccess/pkg/version"
)

// Channel selects one channel of a multi-channel target as a
// single-channel, read-only accessor (spec §4.9 "Channel: select one
// channel of a multi-channel target as a single-channel accessor"),
// grounded on LNMBackendChannelAccessor.h.
type Channel[T any] struct {
	target       accessor.Accessor[T]
	channelIndex int

	buf       *accessor.Buffer[T]
	ver       version.Number
	validity  version.Validity
	activeErr *deverrs.RuntimeError
}

func NewChannel[T any](target accessor.Accessor[T], channelIndex int) (*Channel[T], error) {
	if channelIndex < 0 || channelIndex >= target.Buffer().NumberOfChannels() {
		return nil, deverrs.NewLogicError("NewChannel",
			"requested channel %d exceeds number of channels of target register %q", channelIndex, target.Name())
	}
	return &Channel[T]{
		target:       target,
		channelIndex: channelIndex,
		buf:          accessor.NewBuffer[T](1, target.Buffer().NumberOfSamples()),
	}, nil
}

func (c *Channel[T]) ID() accessor.ID             { return c.target.ID() }
func (c *Channel[T]) Name() string                { return c.target.Name() }
func (c *Channel[T]) Buffer() *accessor.Buffer[T] { return c.buf }
func (c *Channel[T]) IsReadable() bool            { return true }
func (c *Channel[T]) IsWriteable() bool           { return false }

func (c *Channel[T]) SupportsAccessMode(mode accessor.AccessMode) bool {
	return c.target.SupportsAccessMode(mode)
}

func (c *Channel[T]) Version() version.Number              { return c.ver }
func (c *Channel[T]) Validity() version.Validity            { return c.validity }
func (c *Channel[T]) ActiveException() *deverrs.RuntimeError { return c.activeErr }
func (c *Channel[T]) SetActiveException(err *deverrs.RuntimeError) { c.activeErr = err }

func (c *Channel[T]) HardwareAccessingElements() []accessor.TransferElement {
	return c.target.HardwareAccessingElements()
}

func (c *Channel[T]) MayReplaceOther(other accessor.TransferElement) bool {
	o, ok := other.(*Channel[T])
	if !ok {
		return false
	}
	return o.channelIndex == c.channelIndex && o.target.ID().Equal(c.target.ID())
}

func (c *Channel[T]) ReplaceTransferElement(accessor.TransferElement) {}

func (c *Channel[T]) PreRead(ctx context.Context, mode accessor.AccessMode) error {
	return c.target.PreRead(ctx, mode)
}

func (c *Channel[T]) DoReadTransfer(ctx context.Context) bool {
	return c.target.DoReadTransfer(ctx)
}

func (c *Channel[T]) PostRead(ctx context.Context, hasNewData bool) error {
	err := c.target.PostRead(ctx, hasNewData)
	c.activeErr = c.target.ActiveException()
	if !hasNewData {
		return err
	}
	copy(c.buf.Channel(0), c.target.Buffer().Channel(c.channelIndex))
	c.ver = c.target.Version()
	c.validity = c.target.Validity()
	return err
}

func (c *Channel[T]) PreWrite(context.Context, accessor.AccessMode, version.Number) error {
	return deverrs.NewLogicError("Channel.PreWrite", "writing to channel-type register %q is not supported", c.Name())
}

func (c *Channel[T]) DoWriteTransfer(context.Context, version.Number) bool { return false }

func (c *Channel[T]) PostWrite(context.Context, version.Number) error {
	return deverrs.NewLogicError("Channel.PostWrite", "writing to channel-type register %q is not supported", c.Name())
}

func (c *Channel[T]) Read(ctx context.Context) error {
	return accessor.RunRead(ctx, c, accessor.AccessMode{})
}

func (c *Channel[T]) ReadNonBlocking(ctx context.Context) (bool, error) {
	if err := c.PreRead(ctx, accessor.AccessMode{}); err != nil {
		return false, err
	}
	hasNewData := c.DoReadTransfer(ctx)
	if err := c.PostRead(ctx, hasNewData); err != nil {
		return false, err
	}
	return hasNewData, nil
}

func (c *Channel[T]) ReadLatest(ctx context.Context) (bool, error) {
	return c.ReadNonBlocking(ctx)
}

func (c *Channel[T]) Write(ctx context.Context, v version.Number) (bool, error) {
	return accessor.RunWrite(ctx, c, accessor.AccessMode{}, v)
}

var _ accessor.Accessor[int32] = (*Channel[int32])(nil)
