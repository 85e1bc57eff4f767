// Package export reads DiscordChatExporter-style JSON partitions. One file
// holds one channel's messages for one export run; large channels are split
// across several files that all repeat the channel header.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/madofuller/discordscraper/internal/event"
)

// Channel is the channel header of an export file.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Topic    string `json:"topic,omitempty"`
}

// File is one parsed export partition.
type File struct {
	Channel  Channel               `json:"channel"`
	Messages []event.ExportMessage `json:"messages"`
}

// ChannelID returns the numeric channel ID from the header.
func (f *File) ChannelID() (int64, error) {
	id, err := strconv.ParseInt(f.Channel.ID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("export header has invalid channel id %q", f.Channel.ID)
	}
	return id, nil
}

// ReadFile parses one export partition.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse export %s: %w", filepath.Base(path), err)
	}
	if f.Channel.ID == "" {
		return nil, fmt.Errorf("export %s has no channel header", filepath.Base(path))
	}
	return &f, nil
}

// ListPartitions returns the JSON files under dir in lexical order, which
// for exporter output matches partition order.
func ListPartitions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
