package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/uptime-industries/ota-agent/pkg/log"
	"go.uber.org/zap"
)

var (
	writeCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ota_agent",
		Subsystem: "checkpoint",
		Name:      "writes_count",
		Help:      "Checkpoint record writes by result",
	}, []string{"result"})
)

// Format is the on-disk encoding of the record.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"

	DefaultPath = "/data/config/ota/ota_info.json"
)

// Config selects location and encoding of the file store.
type Config struct {
	Path   string `mapstructure:"path"`
	Format Format `mapstructure:"format"`
}

// fails if FileStore does not implement Store
var _ Store = &FileStore{}

// FileStore persists the record in a single file. The file is re-read on
// every access, so separate process instances observe each other's writes.
type FileStore struct {
	mu        sync.Mutex
	path      string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

func NewFileStore(cfg Config) (*FileStore, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	store := &FileStore{path: cfg.Path}
	switch cfg.Format {
	case FormatJSON, "":
		store.marshal = func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }
		store.unmarshal = json.Unmarshal
	case FormatCBOR:
		store.marshal = cbor.Marshal
		store.unmarshal = cbor.Unmarshal
	default:
		return nil, fmt.Errorf("unsupported checkpoint format %q", cfg.Format)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	return store, nil
}

func (f *FileStore) Load(_ context.Context) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FileStore) Update(ctx context.Context, fn func(*Record) error) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read()
	if err != nil {
		return Record{}, err
	}

	next := current
	if err := fn(&next); err != nil {
		return current, err
	}
	if err := next.Validate(); err != nil {
		return current, err
	}

	if err := f.write(next); err != nil {
		writeCount.WithLabelValues("error").Inc()
		log.FromContext(ctx).Error("Failed to persist checkpoint", zap.String("path", f.path), zap.Error(err))
		return current, err
	}
	writeCount.WithLabelValues("ok").Inc()
	return next, nil
}

func (f *FileStore) read() (Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Record{}, err
	}

	record := Default()
	if err := f.unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if record.FlashMode == "" {
		record.FlashMode = FlashModeNormal
	}
	if err := record.Validate(); err != nil {
		return Record{}, err
	}
	return record, nil
}

// write replaces the file atomically via a temporary file in the same directory.
func (f *FileStore) write(record Record) error {
	data, err := f.marshal(record)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
