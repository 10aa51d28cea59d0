package rules

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/domain"
)

func TestParsePlainList_Basics(t *testing.T) {
	input := "\uFEFFfirst\n\n   second  \n#hashtag channel\n\t\nfirst\n"
	got, err := ParsePlainList(bytes.NewBufferString(input), "test", log.NewNoopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "#hashtag channel", "first"}, got)
}

func TestParsePlainList_Empty(t *testing.T) {
	got, err := ParsePlainList(bytes.NewBufferString("\n \n"), "test", log.NewNoopLogger())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParsePlainList_LineTooLongSkipped(t *testing.T) {
	var in bytes.Buffer
	in.WriteString("first\n")
	in.Write(bytes.Repeat([]byte("x"), maxLineBytes+1))
	in.WriteString("\nsecond\n")
	rec := log.NewRecorder()

	got, err := ParsePlainList(&in, "test", rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, got)
	assert.True(t, rec.Has("parse_plain_list_line_too_long"))
}

func TestFormatPlainList(t *testing.T) {
	assert.Equal(t, "a\nb\n", string(FormatPlainList([]string{"a", " ", " b "})))
	assert.Empty(t, FormatPlainList(nil))
}

func TestReadList_Missing(t *testing.T) {
	_, err := ReadList(filepath.Join(t.TempDir(), "nope.txt"), log.NewNoopLogger())
	assert.True(t, errors.Is(err, domain.ErrConfigurationMissing))
}

func TestFileList_MissingIsEmptyAndLogged(t *testing.T) {
	rec := log.NewRecorder()
	l := NewFileList(filepath.Join(t.TempDir(), "undo.txt"), rec)

	got, err := l.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, rec.Has("list_missing"))
}

func TestFileList_StageRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "undo.txt")
	require.NoError(t, os.WriteFile(path, []byte("Foo\nBar\n"), 0o644))
	l := NewFileList(path, nil)

	staged, err := l.StageRewrite([]string{"Bar"})
	require.NoError(t, err)
	got, _ := l.Load()
	assert.Equal(t, []string{"Foo", "Bar"}, got)

	require.NoError(t, staged.Commit())
	got, _ = l.Load()
	assert.Equal(t, []string{"Bar"}, got)
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeywordsFile), []byte("prank\nscam\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, PhrasesFile), []byte("don't recommend channel\n"), 0o644))

	s := NewStore(Options{Dir: dir})
	lists, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"prank", "scam"}, lists.Keywords)
	assert.Equal(t, []string{"don't recommend channel"}, lists.Phrases)
	assert.Empty(t, lists.BlockedChannels)
	assert.Equal(t, []string{KeywordsFile, PhrasesFile, ChannelsFile}, s.Files())
}

func TestStore_CustomNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kw.list"), []byte("x\n"), 0o644))

	lists, err := NewStore(Options{Dir: dir, KeywordsFile: "kw.list"}).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, lists.Keywords)
}

func TestWatcher_FlagsWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, []string{KeywordsFile}, log.NewNoopLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeywordsFile), []byte("x"), 0o644))

	assert.Eventually(t, w.Changed, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_BadDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), nil, nil)
	assert.Error(t, err)
}
