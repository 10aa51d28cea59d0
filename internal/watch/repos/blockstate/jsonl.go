package blockstate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/haukened/watchangel/internal/watch/common/atomicfile"
	"github.com/haukened/watchangel/internal/watch/common/lines"
	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
)

// LogFile is the default block log file name inside the state directory.
const LogFile = "blocked_channels.log"

const maxRecordBytes = 1 << 20

// JSONLLog is a domain.BlockLog stored as one JSON object per line.
type JSONLLog struct {
	path   string
	logger logpkg.Logger
}

// NewJSONLLog returns a log stored at path.
func NewJSONLLog(path string, logger logpkg.Logger) *JSONLLog {
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return &JSONLLog{path: path, logger: logger}
}

// Path returns the file backing the log.
func (l *JSONLLog) Path() string { return l.path }

// Load reads every parseable record. A missing file is an empty log;
// unparseable or oversized lines are logged and skipped.
func (l *JSONLLog) Load() ([]domain.BlockRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open block log: %w", err)
	}
	defer f.Close()

	r := lines.NewReader(f, maxRecordBytes)
	var out []domain.BlockRecord
	for {
		raw, lineNum, skipped, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read block log: %w", err)
		}
		if skipped {
			l.logger.Warn(map[string]any{
				"path":  l.path,
				"line":  lineNum,
				"error": fmt.Errorf("%w: line exceeds %d bytes", domain.ErrPersistenceCorruption, maxRecordBytes),
			}, "block_log_corrupt_line")
			continue
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		var rec domain.BlockRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			l.logger.Warn(map[string]any{
				"path":  l.path,
				"line":  lineNum,
				"error": fmt.Errorf("%w: %v", domain.ErrPersistenceCorruption, err),
			}, "block_log_corrupt_line")
			continue
		}
		out = append(out, rec)
	}
}

// Append writes rec as a new line, creating the file if needed.
func (l *JSONLLog) Append(rec domain.BlockRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode block record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open block log: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append block log: %w", err)
	}
	return f.Close()
}

// StageRewrite stages replacing the whole log with recs.
func (l *JSONLLog) StageRewrite(recs []domain.BlockRecord) (domain.Staged, error) {
	var buf bytes.Buffer
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode block record: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	staged, err := atomicfile.Stage(l.path, buf.Bytes(), 0o644)
	if err != nil {
		return nil, err
	}
	return staged, nil
}

var _ domain.BlockLog = (*JSONLLog)(nil)
