package tags

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"guildkeeper/pkg/settings"
)

const keyPrefix = "tag:"

var tagName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// ErrNotFound is returned for operations on a tag that does not exist.
var ErrNotFound = errors.New("tag not found")

// Tag is an auto-response stored per guild.
type Tag struct {
	Name      string    `json:"name"`
	Pattern   string    `json:"pattern"`
	Response  string    `json:"response"`
	Regex     bool      `json:"regex"`
	Uses      int       `json:"uses"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate normalizes the tag and checks its fields.
func (t *Tag) Validate() error {
	t.Name = strings.ToLower(strings.TrimSpace(t.Name))
	if !tagName.MatchString(t.Name) {
		return fmt.Errorf("tag name %q must be 1-32 lowercase letters, digits, '-' or '_'", t.Name)
	}
	if strings.TrimSpace(t.Response) == "" {
		return fmt.Errorf("tag %s has no response", t.Name)
	}
	if t.Pattern == "" {
		t.Pattern = t.Name
	}
	if t.Regex {
		if _, err := regexp.Compile("(?i)" + t.Pattern); err != nil {
			return fmt.Errorf("tag %s: invalid pattern: %w", t.Name, err)
		}
	}
	return nil
}

// Matches reports whether content triggers the tag. Plain patterns match as a
// case-insensitive substring.
func (t *Tag) Matches(content string) bool {
	if t.Regex {
		re, err := regexp.Compile("(?i)" + t.Pattern)
		return err == nil && re.MatchString(content)
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(t.Pattern))
}

// Store keeps tags in the settings store under the tags owner.
type Store struct {
	settings *settings.Store
}

// NewStore creates a tag store.
func NewStore(s *settings.Store) *Store {
	return &Store{settings: s}
}

// List returns the tags of a guild sorted by name.
func (s *Store) List(ctx context.Context, guildID string) ([]Tag, error) {
	all, err := s.settings.GetAll(ctx, Name, guildID)
	if err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(all))
	for key, raw := range all {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		var t Tag
		if err := settings.Decode(raw, &t); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// Get returns one tag.
func (s *Store) Get(ctx context.Context, guildID, name string) (Tag, bool, error) {
	var t Tag
	ok, err := settings.Load(ctx, s.settings, Name, guildID, keyPrefix+strings.ToLower(name), &t)
	return t, ok, err
}

// Put creates or replaces a tag, keeping the usage count of a replaced tag.
func (s *Store) Put(ctx context.Context, guildID string, t Tag) (Tag, error) {
	if err := t.Validate(); err != nil {
		return Tag{}, err
	}
	return settings.Mutate(ctx, s.settings, Name, guildID, keyPrefix+t.Name, func(existing *Tag) error {
		uses, created := existing.Uses, existing.CreatedAt
		*existing = t
		if existing.Uses == 0 {
			existing.Uses = uses
		}
		if existing.CreatedAt.IsZero() {
			existing.CreatedAt = created
		}
		if existing.CreatedAt.IsZero() {
			existing.CreatedAt = time.Now().UTC()
		}
		return nil
	})
}

// Delete removes a tag.
func (s *Store) Delete(ctx context.Context, guildID, name string) error {
	name = strings.ToLower(name)
	if _, ok, err := s.Get(ctx, guildID, name); err != nil {
		return err
	} else if !ok {
		return ErrNotFound
	}
	return s.settings.Delete(ctx, Name, guildID, keyPrefix+name)
}

// Use increments the usage counter of a tag.
func (s *Store) Use(ctx context.Context, guildID, name string) error {
	return s.settings.Update(ctx, Name, guildID, keyPrefix+name, func(current interface{}) (interface{}, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		var t Tag
		if err := settings.Decode(current, &t); err != nil {
			return nil, err
		}
		t.Uses++
		return t, nil
	})
}

// Match returns the first tag, in name order, that content triggers.
func (s *Store) Match(ctx context.Context, guildID, content string) (*Tag, error) {
	tags, err := s.List(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for i := range tags {
		if tags[i].Matches(content) {
			return &tags[i], nil
		}
	}
	return nil, nil
}
