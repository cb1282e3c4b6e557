package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// Sink receives every tick of a window.
type Sink interface {
	Write(ctx context.Context, slug string, t Tick) error
	Close() error
}

// Formats accepted by NewFileSink.
const (
	FormatJSONL = "jsonl"
	FormatProto = "proto"
)

// FilePath returns <dir>/<UTC YYYY-MM-DDTHH-MM-SS>_<slug>.<ext>.
func FilePath(dir, slug, format string, now time.Time) string {
	ext := ".jsonl"
	if format == FormatProto {
		ext = ".pb"
	}
	return filepath.Join(dir, now.UTC().Format("2006-01-02T15-04-05")+"_"+slug+ext)
}

// FileSink appends ticks to a local file, flushing after every tick.
type FileSink struct {
	path   string
	format string
	f      *os.File
	w      *bufio.Writer
}

// NewFileSink creates dir if needed and opens path for writing.
func NewFileSink(path, format string) (*FileSink, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = FormatJSONL
	}
	if format != FormatJSONL && format != FormatProto {
		return nil, fmt.Errorf("recorder: unknown format %q", format)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: create %s: %w", path, err)
	}
	return &FileSink{path: path, format: format, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the file being written.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Write(_ context.Context, _ string, t Tick) error {
	var err error
	switch s.format {
	case FormatProto:
		err = writeDelimited(s.w, t)
	default:
		err = json.NewEncoder(s.w).Encode(t)
	}
	if err != nil {
		return fmt.Errorf("recorder: write %s: %w", s.path, err)
	}
	return s.w.Flush()
}

func (s *FileSink) Close() error {
	return errors.Join(s.w.Flush(), s.f.Close())
}

// writeDelimited encodes t as a size-prefixed google.protobuf.Struct.
func writeDelimited(w *bufio.Writer, t Tick) error {
	msg, err := structpb.NewStruct(t.Fields())
	if err != nil {
		return err
	}
	_, err = protodelim.MarshalTo(w, msg)
	return err
}

// ReadProtoTicks decodes a length-delimited tick file.
func ReadProtoTicks(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []map[string]any
	for {
		var msg structpb.Struct
		if err := protodelim.UnmarshalFrom(r, &msg); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("recorder: decode %s: %w", path, err)
		}
		out = append(out, msg.AsMap())
	}
}

// KafkaSink publishes ticks as JSON keyed by window slug. One writer is
// shared across windows.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates an async writer for topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}}
}

func (k *KafkaSink) Write(ctx context.Context, slug string, t Tick) error {
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("recorder: kafka encode: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(slug), Value: value}); err != nil {
		return fmt.Errorf("recorder: kafka write: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error { return k.writer.Close() }
