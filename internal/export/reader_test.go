package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePartition = `{
	"guild": {"id": "1", "name": "Test Guild"},
	"channel": {"id": "200", "name": "general", "category": "Text", "topic": "chat"},
	"messages": [
		{
			"id": "100",
			"type": "Default",
			"timestamp": "2025-06-01T12:00:00+00:00",
			"content": "first",
			"author": {"id": "42", "name": "alice"}
		},
		{
			"id": "101",
			"timestamp": "2025-06-01T12:01:00+00:00",
			"timestampEdited": "2025-06-01T12:02:00+00:00",
			"content": "second (edited)",
			"author": {"id": "42", "name": "alice", "nickname": "Alice"}
		}
	]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "general_part1.json", samplePartition)

	f, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "general", f.Channel.Name)
	assert.Equal(t, "chat", f.Channel.Topic)
	require.Len(t, f.Messages, 2)
	assert.Equal(t, "100", f.Messages[0].ID)
	require.NotNil(t, f.Messages[1].TimestampEdited)

	id, err := f.ChannelID()
	require.NoError(t, err)
	assert.Equal(t, int64(200), id)
}

func TestReadFileRejectsMissingHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.json", `{"messages": []}`)

	_, err := ReadFile(path)
	require.Error(t, err)
}

func TestReadFileRejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "truncated.json", `{"channel": {"id": "200"}, "messages": [`)

	_, err := ReadFile(path)
	require.Error(t, err)
}

func TestChannelIDRejectsGarbage(t *testing.T) {
	f := &File{Channel: Channel{ID: "not-a-number"}}
	_, err := f.ChannelID()
	require.Error(t, err)
}

func TestListPartitionsOrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_part2.json", "{}")
	writeFile(t, dir, "a_part1.json", "{}")
	writeFile(t, dir, "notes.txt", "ignore me")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	paths, err := ListPartitions(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "a_part1.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "b_part2.json"), paths[1])
}
