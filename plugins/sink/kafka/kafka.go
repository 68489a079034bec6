// Package kafka implements the Kafka frame sink.
// Frames are written with batching, compression and retry; the message key
// is the channel identity so one virtual channel stays in one partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/pkg/plugin"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
	defaultEncoding     = "json"
)

// KafkaSink sends frames to Kafka.
type KafkaSink struct {
	name   string
	writer *kafka.Writer
	config Config

	// Statistics
	sentCount  atomic.Uint64
	errorCount atomic.Uint64
}

// Config represents Kafka sink configuration.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	BatchSize    int           `mapstructure:"batch_size"`    // optional, default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // optional, default 100ms
	Compression  string        `mapstructure:"compression"`   // optional: none|gzip|snappy|lz4|zstd, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // optional, default 3
	Encoding     string        `mapstructure:"encoding"`      // optional: json|proto, default json
}

// NewKafkaSink creates a new Kafka sink.
func NewKafkaSink() plugin.FrameSink {
	return &KafkaSink{
		name: "kafka",
	}
}

// Name returns the plugin name.
func (s *KafkaSink) Name() string {
	return s.name
}

// Init initializes the sink with configuration.
func (s *KafkaSink) Init(config map[string]any) error {
	if config == nil {
		return fmt.Errorf("kafka sink requires configuration")
	}

	cfg := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
		Encoding:     defaultEncoding,
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("invalid kafka sink config: %w", err)
	}

	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if cfg.Encoding != "json" && cfg.Encoding != "proto" {
		return fmt.Errorf("invalid encoding: %s", cfg.Encoding)
	}

	var codec kafka.Compression
	switch cfg.Compression {
	case "none", "":
	case "gzip":
		codec = kafka.Gzip
	case "snappy":
		codec = kafka.Snappy
	case "lz4":
		codec = kafka.Lz4
	case "zstd":
		codec = kafka.Zstd
	default:
		return fmt.Errorf("invalid compression type: %s", cfg.Compression)
	}

	s.config = cfg
	s.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Compression:  codec,
		RequiredAcks: kafka.RequireOne,
	}
	return nil
}

// Start starts the sink.
func (s *KafkaSink) Start(ctx context.Context) error {
	slog.Info("kafka sink started",
		"brokers", s.config.Brokers,
		"topic", s.config.Topic,
		"batch_size", s.config.BatchSize,
		"batch_timeout", s.config.BatchTimeout,
		"compression", s.config.Compression,
		"encoding", s.config.Encoding,
	)
	return nil
}

// Stop flushes pending messages and closes the writer.
func (s *KafkaSink) Stop(ctx context.Context) error {
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			slog.Error("error closing kafka writer", "error", err)
			return err
		}
	}

	slog.Info("kafka sink stopped",
		"total_sent", s.sentCount.Load(),
		"total_errors", s.errorCount.Load(),
	)
	return nil
}

// Send writes one frame.
func (s *KafkaSink) Send(ctx context.Context, f *core.TelemetryFrame) error {
	return s.SendBatch(ctx, []*core.TelemetryFrame{f})
}

// SendBatch writes several frames in one call.
func (s *KafkaSink) SendBatch(ctx context.Context, frames []*core.TelemetryFrame) error {
	msgs := make([]kafka.Message, 0, len(frames))
	for _, f := range frames {
		if f == nil {
			return fmt.Errorf("nil frame")
		}
		msg, err := s.message(f)
		if err != nil {
			s.errorCount.Add(1)
			return fmt.Errorf("serialize frame failed: %w", err)
		}
		msgs = append(msgs, msg)
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		s.errorCount.Add(uint64(len(msgs)))
		return fmt.Errorf("kafka write failed: %w", err)
	}
	s.sentCount.Add(uint64(len(msgs)))
	return nil
}

// Flush is a no-op: WriteMessages is synchronous.
func (s *KafkaSink) Flush(ctx context.Context) error {
	return nil
}

func (s *KafkaSink) message(f *core.TelemetryFrame) (kafka.Message, error) {
	var (
		value []byte
		err   error
	)
	if s.config.Encoding == "proto" {
		value, err = encodeProto(f)
	} else {
		value, err = encodeJSON(f)
	}
	if err != nil {
		return kafka.Message{}, err
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d/%d/%d", f.SpacecraftID, f.Version, f.VirtualChannel)),
		Value: value,
		Time:  f.ReceivedAt,
	}
	if len(f.Labels) > 0 {
		msg.Headers = make([]kafka.Header, 0, len(f.Labels))
		for k, v := range f.Labels {
			msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return msg, nil
}

// record is the JSON form of a frame; Data is base64.
type record struct {
	SessionID          string            `json:"session_id,omitempty"`
	EarthReceiveTime   time.Time         `json:"earth_receive_time"`
	ReceivedAt         time.Time         `json:"received_at"`
	Version            uint8             `json:"version"`
	SpacecraftID       uint16            `json:"spacecraft_id"`
	VirtualChannel     uint8             `json:"virtual_channel"`
	FrameCount         uint32            `json:"frame_count"`
	AntennaID          string            `json:"antenna_id,omitempty"`
	DataLinkContinuity int               `json:"data_link_continuity"`
	Labels             map[string]string `json:"labels,omitempty"`
	Data               []byte            `json:"data"`
}

func encodeJSON(f *core.TelemetryFrame) ([]byte, error) {
	return json.Marshal(record{
		SessionID:          f.SessionID,
		EarthReceiveTime:   f.EarthReceiveTime,
		ReceivedAt:         f.ReceivedAt,
		Version:            f.Version,
		SpacecraftID:       f.SpacecraftID,
		VirtualChannel:     f.VirtualChannel,
		FrameCount:         f.FrameCount,
		AntennaID:          f.AntennaID,
		DataLinkContinuity: f.DataLinkContinuity,
		Labels:             f.Labels,
		Data:               f.Data,
	})
}

// encodeProto renders the frame as a google.protobuf.Struct. Timestamps are
// {seconds, nanos} objects mirroring google.protobuf.Timestamp.
func encodeProto(f *core.TelemetryFrame) ([]byte, error) {
	labels := make(map[string]any, len(f.Labels))
	for k, v := range f.Labels {
		labels[k] = v
	}
	st, err := structpb.NewStruct(map[string]any{
		"session_id":           f.SessionID,
		"earth_receive_time":   timestamp(f.EarthReceiveTime),
		"received_at":          timestamp(f.ReceivedAt),
		"version":              int64(f.Version),
		"spacecraft_id":        int64(f.SpacecraftID),
		"virtual_channel":      int64(f.VirtualChannel),
		"frame_count":          int64(f.FrameCount),
		"antenna_id":           f.AntennaID,
		"data_link_continuity": int64(f.DataLinkContinuity),
		"labels":               labels,
		"data":                 f.Data,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func timestamp(t time.Time) map[string]any {
	ts := timestamppb.New(t)
	return map[string]any{
		"seconds": ts.GetSeconds(),
		"nanos":   int64(ts.GetNanos()),
	}
}
