// Package bus defines the LoggerBatch record the bridge emits, its binary
// wire encoding, and the NATS JetStream publisher that carries it to the
// platform.
package bus

import "fmt"

// SignalType tags the link layer the batch was received over.
type SignalType int32

const (
	SignalTypeUnspecified SignalType = 0
	SignalTypeNBIoT       SignalType = 1
)

// Sample is one (channel, value, timestamp) measurement.
type Sample struct {
	ChannelID int64
	Value     float64
	Ts        int64
}

// Signal is one signal-strength reading.
type Signal struct {
	Ts    int64
	Value float64
}

// LoggerBatch is the output record for one successful fetch of one device:
// all samples observed since the previous watermark, optional signal
// readings, and the mean battery voltage across the batch when reported.
type LoggerBatch struct {
	LoggerID   int64
	LastSeen   int64
	SignalType SignalType
	Samples    []Sample
	Signals    []Signal
	Battery    *float64
}

// MsgID is the per-batch dedupe key attached to the published message. One
// batch per device per watermark, so the pair identifies a transmission.
func (b *LoggerBatch) MsgID() string {
	return fmt.Sprintf("%d-%d", b.LoggerID, b.LastSeen)
}
