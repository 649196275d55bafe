// Package changelog records the corrections made during table passes.
//
// The canonicalization engine only needs an append-capable Sink; this
// package provides the sinks the service can be configured with:
//
//   - memory: entries kept in process memory (tests, CLI dry runs)
//   - file: JSON lines appended to a local file
//   - kafka: envelopes published to a topic, see Event
//   - repository: rows inserted through a database repository
//   - none: entries are dropped
//
// A Listener can consume the Kafka topic and archive entries into another
// sink, typically the repository sink of a different deployment.
package changelog

import (
	"fmt"
	"io"
)

// Sink names accepted by NewFromConfig.
const (
	SinkNone       = "none"
	SinkMemory     = "memory"
	SinkFile       = "file"
	SinkKafka      = "kafka"
	SinkRepository = "repository"
)

// Config selects and configures the change-log sinks. Several sinks may be
// combined, in which case every entry goes to all of them.
type Config struct {
	Sinks    []string
	FilePath string
	Kafka    KafkaConfig
}

// Deps carries the collaborators some sinks need.
type Deps struct {
	Repository Appender
}

// NewFromConfig builds the configured sink. The returned closer releases
// files and Kafka writers and must be called on shutdown.
func NewFromConfig(cfg Config, deps Deps) (Sink, io.Closer, error) {
	var (
		sinks   MultiSink
		closers multiCloser
	)
	for _, name := range cfg.Sinks {
		switch name {
		case SinkNone, "":
		case SinkMemory:
			sinks = append(sinks, NewMemorySink())
		case SinkFile:
			if cfg.FilePath == "" {
				_ = closers.Close()
				return nil, nil, fmt.Errorf("file change-log sink requires a path")
			}
			fs, err := NewFileSink(cfg.FilePath)
			if err != nil {
				_ = closers.Close()
				return nil, nil, err
			}
			sinks = append(sinks, fs)
			closers = append(closers, fs)
		case SinkKafka:
			if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
				_ = closers.Close()
				return nil, nil, fmt.Errorf("kafka change-log sink requires brokers and a topic")
			}
			ks := NewKafkaSink(cfg.Kafka)
			sinks = append(sinks, ks)
			closers = append(closers, ks)
		case SinkRepository:
			if deps.Repository == nil {
				_ = closers.Close()
				return nil, nil, fmt.Errorf("repository change-log sink requires a database")
			}
			sinks = append(sinks, NewRepositorySink(deps.Repository))
		default:
			_ = closers.Close()
			return nil, nil, fmt.Errorf("unknown change-log sink %q", name)
		}
	}

	switch len(sinks) {
	case 0:
		return Discard, closers, nil
	case 1:
		return sinks[0], closers, nil
	default:
		return sinks, closers, nil
	}
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var firstErr error
	for _, c := range m {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
