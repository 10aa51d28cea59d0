// Package rules loads the flat-text rule lists and persists the editable
// ones (undo list, whitelist, whitelist patterns).
package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/haukened/watchangel/internal/watch/common/atomicfile"
	logpkg "github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
)

// Default file names, relative to the configuration directory.
const (
	KeywordsFile          = "block_keywords.txt"
	PhrasesFile           = "block_phrases.txt"
	ChannelsFile          = "block_channels.txt"
	WhitelistFile         = "whitelist_channels.txt"
	WhitelistPatternsFile = "whitelist_patterns.txt"
	UndoFile              = "undo_block_channels.txt"
)

// ReadList reads a plain list from path. A missing file returns an error
// wrapping domain.ErrConfigurationMissing.
func ReadList(path string, logger logpkg.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigurationMissing, path)
		}
		return nil, err
	}
	defer f.Close()
	return ParsePlainList(f, path, logger)
}

// FileList is a domain.LineList backed by one plain text file.
type FileList struct {
	Path   string
	Logger logpkg.Logger
}

// NewFileList returns a FileList for path.
func NewFileList(path string, logger logpkg.Logger) *FileList {
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return &FileList{Path: path, Logger: logger}
}

// Load returns the entries of the list. A missing file is logged and
// treated as empty.
func (l *FileList) Load() ([]string, error) {
	lines, err := ReadList(l.Path, l.Logger)
	if errors.Is(err, domain.ErrConfigurationMissing) {
		l.Logger.Warn(map[string]any{"path": l.Path}, "list_missing")
		return nil, nil
	}
	return lines, err
}

// StageRewrite stages replacing the file with lines.
func (l *FileList) StageRewrite(lines []string) (domain.Staged, error) {
	staged, err := atomicfile.Stage(l.Path, FormatPlainList(lines), 0o644)
	if err != nil {
		return nil, err
	}
	return staged, nil
}

// Lists holds the static rule lists read from the configuration directory.
type Lists struct {
	Keywords        []string
	Phrases         []string
	BlockedChannels []string
}

// Options configures a Store.
type Options struct {
	Dir          string
	KeywordsFile string
	PhrasesFile  string
	ChannelsFile string
	Logger       logpkg.Logger
}

// Store reads the keyword, phrase and static channel lists on demand.
type Store struct {
	keywords *FileList
	phrases  *FileList
	channels *FileList
	logger   logpkg.Logger
}

// NewStore returns a Store reading from opts.Dir, using the default file
// names where opts leaves them empty.
func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	name := func(v, def string) string {
		if v == "" {
			v = def
		}
		return filepath.Join(opts.Dir, v)
	}
	return &Store{
		keywords: NewFileList(name(opts.KeywordsFile, KeywordsFile), logger),
		phrases:  NewFileList(name(opts.PhrasesFile, PhrasesFile), logger),
		channels: NewFileList(name(opts.ChannelsFile, ChannelsFile), logger),
		logger:   logger,
	}
}

// Load reads every list. Missing files yield empty lists; any other read
// failure is returned.
func (s *Store) Load() (Lists, error) {
	var (
		out Lists
		err error
	)
	if out.Keywords, err = s.keywords.Load(); err != nil {
		return Lists{}, fmt.Errorf("load keywords: %w", err)
	}
	if out.Phrases, err = s.phrases.Load(); err != nil {
		return Lists{}, fmt.Errorf("load phrases: %w", err)
	}
	if out.BlockedChannels, err = s.channels.Load(); err != nil {
		return Lists{}, fmt.Errorf("load channels: %w", err)
	}
	s.logger.Info(map[string]any{
		"keywords": len(out.Keywords),
		"phrases":  len(out.Phrases),
		"channels": len(out.BlockedChannels),
	}, "rules_loaded")
	return out, nil
}

// Files returns the base names of the lists this Store reads.
func (s *Store) Files() []string {
	return []string{
		filepath.Base(s.keywords.Path),
		filepath.Base(s.phrases.Path),
		filepath.Base(s.channels.Path),
	}
}
