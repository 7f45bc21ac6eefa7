package bus

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from telemetry.proto. The batch is small and the layout is
// fixed, so the message is written with protowire directly instead of
// generated code.
const (
	batchFieldLoggerID   = 1
	batchFieldLastSeen   = 2
	batchFieldSignalType = 3
	batchFieldSamples    = 4
	batchFieldSignals    = 5
	batchFieldBattery    = 6

	sampleFieldChannelID = 1
	sampleFieldValue     = 2
	sampleFieldTs        = 3

	signalFieldTs    = 1
	signalFieldValue = 2
)

// Marshal encodes a batch as a proto3 LoggerBatch message.
func Marshal(b *LoggerBatch) []byte {
	var out []byte
	if b.LoggerID != 0 {
		out = protowire.AppendTag(out, batchFieldLoggerID, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(b.LoggerID))
	}
	if b.LastSeen != 0 {
		out = protowire.AppendTag(out, batchFieldLastSeen, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(b.LastSeen))
	}
	if b.SignalType != SignalTypeUnspecified {
		out = protowire.AppendTag(out, batchFieldSignalType, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(b.SignalType))
	}
	for _, s := range b.Samples {
		out = protowire.AppendTag(out, batchFieldSamples, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalSample(s))
	}
	for _, s := range b.Signals {
		out = protowire.AppendTag(out, batchFieldSignals, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalSignal(s))
	}
	if b.Battery != nil {
		out = protowire.AppendTag(out, batchFieldBattery, protowire.Fixed64Type)
		out = protowire.AppendFixed64(out, math.Float64bits(*b.Battery))
	}
	return out
}

func marshalSample(s Sample) []byte {
	var out []byte
	if s.ChannelID != 0 {
		out = protowire.AppendTag(out, sampleFieldChannelID, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(s.ChannelID))
	}
	if s.Value != 0 {
		out = protowire.AppendTag(out, sampleFieldValue, protowire.Fixed64Type)
		out = protowire.AppendFixed64(out, math.Float64bits(s.Value))
	}
	if s.Ts != 0 {
		out = protowire.AppendTag(out, sampleFieldTs, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(s.Ts))
	}
	return out
}

func marshalSignal(s Signal) []byte {
	var out []byte
	if s.Ts != 0 {
		out = protowire.AppendTag(out, signalFieldTs, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(s.Ts))
	}
	if s.Value != 0 {
		out = protowire.AppendTag(out, signalFieldValue, protowire.Fixed64Type)
		out = protowire.AppendFixed64(out, math.Float64bits(s.Value))
	}
	return out
}

// Frame wraps the encoded message with a varint length prefix (protobuf
// delimited framing), which is what goes on the wire.
func Frame(b *LoggerBatch) []byte {
	return protowire.AppendBytes(nil, Marshal(b))
}

// Unframe strips the length prefix and decodes the message.
func Unframe(data []byte) (*LoggerBatch, error) {
	msg, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, fmt.Errorf("frame: %w", protowire.ParseError(n))
	}
	if n != len(data) {
		return nil, fmt.Errorf("frame: %d trailing bytes", len(data)-n)
	}
	return Unmarshal(msg)
}

// Unmarshal decodes a proto3 LoggerBatch message. Unknown fields are
// skipped, matching protobuf semantics.
func Unmarshal(data []byte) (*LoggerBatch, error) {
	b := &LoggerBatch{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == batchFieldLoggerID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b.LoggerID = int64(v)
			data = data[n:]
		case num == batchFieldLastSeen && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b.LastSeen = int64(v)
			data = data[n:]
		case num == batchFieldSignalType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b.SignalType = SignalType(v)
			data = data[n:]
		case num == batchFieldSamples && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s, err := unmarshalSample(msg)
			if err != nil {
				return nil, err
			}
			b.Samples = append(b.Samples, s)
			data = data[n:]
		case num == batchFieldSignals && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s, err := unmarshalSignal(msg)
			if err != nil {
				return nil, err
			}
			b.Signals = append(b.Signals, s)
			data = data[n:]
		case num == batchFieldBattery && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			f := math.Float64frombits(v)
			b.Battery = &f
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return b, nil
}

func unmarshalSample(data []byte) (Sample, error) {
	var s Sample
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == sampleFieldChannelID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			s.ChannelID = int64(v)
			data = data[n:]
		case num == sampleFieldValue && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			s.Value = math.Float64frombits(v)
			data = data[n:]
		case num == sampleFieldTs && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			s.Ts = int64(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return s, nil
}

func unmarshalSignal(data []byte) (Signal, error) {
	var s Signal
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == signalFieldTs && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			s.Ts = int64(v)
			data = data[n:]
		case num == signalFieldValue && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			s.Value = math.Float64frombits(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return s, nil
}
