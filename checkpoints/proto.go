package checkpoints

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the checkpoint wire format. They are part of the file
// format and must never be renumbered.
const (
	fieldCheckpointModelType  protowire.Number = 1
	fieldCheckpointStartEpoch protowire.Number = 2
	fieldCheckpointNetwork    protowire.Number = 3
	fieldCheckpointOptimizer  protowire.Number = 4
	fieldCheckpointBestMetric protowire.Number = 5
	fieldCheckpointMetadata   protowire.Number = 6

	fieldTensorName  protowire.Number = 1
	fieldTensorShape protowire.Number = 2
	fieldTensorData  protowire.Number = 3
	fieldTensorKind  protowire.Number = 4

	fieldOptimizerType      protowire.Number = 1
	fieldOptimizerParameter protowire.Number = 2
	fieldOptimizerStepCount protowire.Number = 3
	fieldOptimizerStateData protowire.Number = 4

	fieldEntryKey   protowire.Number = 1
	fieldEntryValue protowire.Number = 2

	fieldMetadataVersion     protowire.Number = 1
	fieldMetadataFramework   protowire.Number = 2
	fieldMetadataCreatedAt   protowire.Number = 3
	fieldMetadataRunID       protowire.Number = 4
	fieldMetadataDescription protowire.Number = 5
)

// MarshalProto encodes a checkpoint in protobuf wire format.
func MarshalProto(c *Checkpoint) ([]byte, error) {
	tag, err := c.ModelType.MarshalText()
	if err != nil {
		return nil, err
	}

	var b []byte
	b = appendString(b, fieldCheckpointModelType, string(tag))
	b = appendInt(b, fieldCheckpointStartEpoch, int64(c.StartEpoch))
	for _, w := range c.Network {
		b = protowire.AppendTag(b, fieldCheckpointNetwork, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalTensor(w.Name, w.Shape, w.Data, ""))
	}
	if c.Optimizer != nil {
		b = protowire.AppendTag(b, fieldCheckpointOptimizer, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalOptimizer(c.Optimizer))
	}
	b = appendDouble(b, fieldCheckpointBestMetric, c.BestMetric)
	b = protowire.AppendTag(b, fieldCheckpointMetadata, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalMetadata(&c.Metadata))
	return b, nil
}

// UnmarshalProto decodes a checkpoint written by MarshalProto.
func UnmarshalProto(b []byte) (*Checkpoint, error) {
	c := &Checkpoint{}
	sawModelType := false
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldCheckpointModelType:
			s, n := protowire.ConsumeString(v)
			if n < 0 {
				return n, nil
			}
			if err := c.ModelType.UnmarshalText([]byte(s)); err != nil {
				return 0, err
			}
			sawModelType = true
			return n, nil
		case fieldCheckpointStartEpoch:
			x, n := protowire.ConsumeVarint(v)
			c.StartEpoch = int(int64(x))
			return n, nil
		case fieldCheckpointNetwork:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			t, err := unmarshalTensor(msg)
			if err != nil {
				return 0, errors.Wrap(err, "network tensor")
			}
			c.Network = append(c.Network, WeightTensor{Name: t.Name, Shape: t.Shape, Data: t.Data})
			return n, nil
		case fieldCheckpointOptimizer:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			opt, err := unmarshalOptimizer(msg)
			if err != nil {
				return 0, errors.Wrap(err, "optimizer state")
			}
			c.Optimizer = opt
			return n, nil
		case fieldCheckpointBestMetric:
			x, n := protowire.ConsumeFixed64(v)
			c.BestMetric = math.Float64frombits(x)
			return n, nil
		case fieldCheckpointMetadata:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			md, err := unmarshalMetadata(msg)
			if err != nil {
				return 0, errors.Wrap(err, "metadata")
			}
			c.Metadata = md
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	if err != nil {
		return nil, err
	}
	if !sawModelType {
		return nil, errors.New("checkpoint has no model type")
	}
	return c, nil
}

func marshalTensor(name string, shape []int, data []float64, kind string) []byte {
	var b []byte
	b = appendString(b, fieldTensorName, name)

	var packed []byte
	for _, d := range shape {
		packed = protowire.AppendVarint(packed, uint64(d))
	}
	b = protowire.AppendTag(b, fieldTensorShape, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)

	packed = make([]byte, 0, 8*len(data))
	for _, v := range data {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, fieldTensorData, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)

	if kind != "" {
		b = appendString(b, fieldTensorKind, kind)
	}
	return b
}

func unmarshalTensor(b []byte) (OptimizerTensor, error) {
	var t OptimizerTensor
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldTensorName:
			s, n := protowire.ConsumeString(v)
			t.Name = s
			return n, nil
		case fieldTensorKind:
			s, n := protowire.ConsumeString(v)
			t.StateType = s
			return n, nil
		case fieldTensorShape:
			packed, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			t.Shape = []int{}
			for len(packed) > 0 {
				x, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return 0, protowire.ParseError(m)
				}
				t.Shape = append(t.Shape, int(x))
				packed = packed[m:]
			}
			return n, nil
		case fieldTensorData:
			packed, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			if len(packed)%8 != 0 {
				return 0, errors.Errorf("tensor %q: packed data length %d is not a multiple of 8", t.Name, len(packed))
			}
			t.Data = make([]float64, 0, len(packed)/8)
			for len(packed) > 0 {
				x, m := protowire.ConsumeFixed64(packed)
				t.Data = append(t.Data, math.Float64frombits(x))
				packed = packed[m:]
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	if t.Data == nil {
		t.Data = []float64{}
	}
	return t, err
}

func marshalOptimizer(s *OptimizerState) []byte {
	var b []byte
	b = appendString(b, fieldOptimizerType, s.Type)

	keys := make([]string, 0, len(s.Parameters))
	for k := range s.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = appendString(entry, fieldEntryKey, k)
		entry = appendDouble(entry, fieldEntryValue, s.Parameters[k])
		b = protowire.AppendTag(b, fieldOptimizerParameter, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}

	b = protowire.AppendTag(b, fieldOptimizerStepCount, protowire.VarintType)
	b = protowire.AppendVarint(b, s.StepCount)

	for _, t := range s.StateData {
		b = protowire.AppendTag(b, fieldOptimizerStateData, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalTensor(t.Name, t.Shape, t.Data, t.StateType))
	}
	return b
}

func unmarshalOptimizer(b []byte) (*OptimizerState, error) {
	s := &OptimizerState{Parameters: map[string]float64{}}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldOptimizerType:
			str, n := protowire.ConsumeString(v)
			s.Type = str
			return n, nil
		case fieldOptimizerParameter:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			var key string
			var value float64
			err := walkFields(msg, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
				switch num {
				case fieldEntryKey:
					str, n := protowire.ConsumeString(v)
					key = str
					return n, nil
				case fieldEntryValue:
					x, n := protowire.ConsumeFixed64(v)
					value = math.Float64frombits(x)
					return n, nil
				}
				return protowire.ConsumeFieldValue(num, typ, v), nil
			})
			if err != nil {
				return 0, err
			}
			s.Parameters[key] = value
			return n, nil
		case fieldOptimizerStepCount:
			x, n := protowire.ConsumeVarint(v)
			s.StepCount = x
			return n, nil
		case fieldOptimizerStateData:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			t, err := unmarshalTensor(msg)
			if err != nil {
				return 0, err
			}
			s.StateData = append(s.StateData, t)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	return s, err
}

func marshalMetadata(m *CheckpointMetadata) []byte {
	var b []byte
	b = appendString(b, fieldMetadataVersion, m.Version)
	b = appendString(b, fieldMetadataFramework, m.Framework)
	if !m.CreatedAt.IsZero() {
		b = appendInt(b, fieldMetadataCreatedAt, m.CreatedAt.UnixNano())
	}
	b = appendString(b, fieldMetadataRunID, m.RunID)
	b = appendString(b, fieldMetadataDescription, m.Description)
	return b
}

func unmarshalMetadata(b []byte) (CheckpointMetadata, error) {
	var m CheckpointMetadata
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		var s string
		var n int
		switch num {
		case fieldMetadataCreatedAt:
			x, k := protowire.ConsumeVarint(v)
			m.CreatedAt = time.Unix(0, int64(x))
			return k, nil
		case fieldMetadataVersion, fieldMetadataFramework, fieldMetadataRunID, fieldMetadataDescription:
			s, n = protowire.ConsumeString(v)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
		switch num {
		case fieldMetadataVersion:
			m.Version = s
		case fieldMetadataFramework:
			m.Framework = s
		case fieldMetadataRunID:
			m.RunID = s
		case fieldMetadataDescription:
			m.Description = s
		}
		return n, nil
	})
	return m, err
}

// walkFields calls fn for every field of a message. fn returns the number
// of value bytes it consumed, or a negative protowire error code.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "reading field tag")
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return errors.Wrapf(protowire.ParseError(m), "reading field %d", num)
		}
		b = b[m:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}
