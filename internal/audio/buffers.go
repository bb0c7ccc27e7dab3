// SPDX-License-Identifier: MIT
package audio

// BusBuffer holds one sample buffer per channel of a bus. All channels are
// carved out of a single allocation made at spawn time; per period only the
// logical length of each channel changes.
type BusBuffer struct {
	// Channels[i] has length Frames and capacity MaxFrames().
	Channels [][]float32
	Frames   int

	maxFrames int
}

// NewBusBuffer allocates a buffer for the given channel count, each channel
// able to hold maxFrames samples.
func NewBusBuffer(channels, maxFrames int) BusBuffer {
	arena := make([]float32, channels*maxFrames)
	chans := make([][]float32, channels)
	for i := range chans {
		start := i * maxFrames
		// Capacity is capped so an append can never spill into the next channel.
		chans[i] = arena[start : start : start+maxFrames]
	}
	return BusBuffer{Channels: chans, maxFrames: maxFrames}
}

// NumChannels returns the channel count.
func (b *BusBuffer) NumChannels() int { return len(b.Channels) }

// MaxFrames returns the per-channel capacity.
func (b *BusBuffer) MaxFrames() int { return b.maxFrames }

// ClearAndResize zeroes every channel and sets its length to frames, clamped
// to the capacity. It returns the length actually applied.
func (b *BusBuffer) ClearAndResize(frames int) int {
	frames = b.clamp(frames)
	for i := range b.Channels {
		ch := b.Channels[i][:min(frames, cap(b.Channels[i]))]
		clear(ch)
		b.Channels[i] = ch
	}
	b.Frames = frames
	return frames
}

// fill sets one channel's length to len(src), clamped to capacity, and copies
// src into it.
func (b *BusBuffer) fill(channel int, src []float32) int {
	n := min(b.clamp(len(src)), cap(b.Channels[channel]))
	ch := b.Channels[channel][:n]
	copy(ch, src)
	b.Channels[channel] = ch
	return n
}

func (b *BusBuffer) clamp(frames int) int {
	if frames < 0 {
		return 0
	}
	if frames > b.maxFrames {
		return b.maxFrames
	}
	return frames
}
