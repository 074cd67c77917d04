// Package influx writes metric observations to InfluxDB 1.x HTTP API.
package influx

import (
	"context"
	"math"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
)

// Sink accepts one observation. Tags are "k=v,k2=v2" without escaping, may be empty.
type Sink interface {
	Write(ctx context.Context, name string, tags string, value float64) error
}

type Point struct {
	Name  string
	Tags  string
	Value float64
	// unix nanoseconds, 0 means server time
	Time int64
}

// Line protocol: name[,tags] value=<v>[ time]
func (p *Point) Line() string {
	b := make([]byte, 0, len(p.Name)+len(p.Tags)+32)
	b = append(b, p.Name...)
	if p.Tags != "" {
		b = append(b, ',')
		b = append(b, p.Tags...)
	}
	b = append(b, " value="...)
	b = strconv.AppendFloat(b, p.Value, 'f', -1, 64)
	if p.Time != 0 {
		b = append(b, ' ')
		b = strconv.AppendInt(b, p.Time, 10)
	}
	return string(b)
}

// binary form for persistent queue
const pointVersion uint64 = 1

func (p *Point) MarshalBinary() ([]byte, error) {
	buf := proto.NewBuffer(make([]byte, 0, 64+len(p.Name)+len(p.Tags)))
	if err := buf.EncodeVarint(pointVersion); err != nil {
		return nil, err
	}
	if err := buf.EncodeStringBytes(p.Name); err != nil {
		return nil, err
	}
	if err := buf.EncodeStringBytes(p.Tags); err != nil {
		return nil, err
	}
	if err := buf.EncodeFixed64(math.Float64bits(p.Value)); err != nil {
		return nil, err
	}
	if err := buf.EncodeZigzag64(uint64(p.Time)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Point) UnmarshalBinary(b []byte) error {
	buf := proto.NewBuffer(b)
	version, err := buf.DecodeVarint()
	if err != nil {
		return errors.Annotate(err, "point version")
	}
	if version != pointVersion {
		return errors.NotSupportedf("point version=%d", version)
	}
	if p.Name, err = buf.DecodeStringBytes(); err != nil {
		return errors.Annotate(err, "point name")
	}
	if p.Tags, err = buf.DecodeStringBytes(); err != nil {
		return errors.Annotate(err, "point tags")
	}
	bits, err := buf.DecodeFixed64()
	if err != nil {
		return errors.Annotate(err, "point value")
	}
	p.Value = math.Float64frombits(bits)
	t, err := buf.DecodeZigzag64()
	if err != nil {
		return errors.Annotate(err, "point time")
	}
	p.Time = int64(t)
	return nil
}
