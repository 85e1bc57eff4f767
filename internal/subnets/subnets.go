// Package subnets loads the channel-to-subnet classification mapping. The
// mapping is operator-maintained YAML; applying it is idempotent and runs on
// every server boot.
package subnets

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

// Subnet is one entry in the mapping file.
type Subnet struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Channels    []int64  `yaml:"channels"`
}

// Mapping is the full mapping file.
type Mapping struct {
	Subnets []Subnet `yaml:"subnets"`
}

// Load parses a mapping file.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse subnet mapping %s: %w", path, err)
	}

	for i, s := range m.Subnets {
		if s.Name == "" {
			return nil, fmt.Errorf("subnet mapping %s: entry %d has no name", path, i)
		}
	}
	return &m, nil
}

// Apply upserts every subnet and links its channels. Channels not yet seen
// by ingestion get a bare row so the link can exist ahead of their first
// message.
func (m *Mapping) Apply(ctx context.Context, db store.DataStore) error {
	for _, s := range m.Subnets {
		subnetID, err := db.UpsertSubnet(ctx, s.Name, s.Description, s.Tags)
		if err != nil {
			return fmt.Errorf("upsert subnet %s: %w", s.Name, err)
		}

		for _, channelID := range s.Channels {
			if err := db.UpsertChannel(ctx, &models.Channel{ChannelID: channelID}); err != nil {
				return fmt.Errorf("register channel %d: %w", channelID, err)
			}
			if err := db.LinkChannelSubnet(ctx, channelID, subnetID); err != nil {
				return fmt.Errorf("link channel %d to %s: %w", channelID, s.Name, err)
			}
		}
	}
	return nil
}
