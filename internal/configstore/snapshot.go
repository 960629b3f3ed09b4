// ABOUTME: Config snapshot data model with typed accessors and pure mutators
// ABOUTME: Sub-records carry their own updatedAt; merge policy lives elsewhere

package configstore

import (
	"encoding/json"
	"strconv"
)

// Theme selects the UI color scheme.
type Theme string

const (
	ThemeDark   Theme = "dark"
	ThemeLight  Theme = "light"
	ThemeSystem Theme = "system"
)

// Site config field names, matching the tag vocabulary of the
// controller's configuration event. Array and object valued fields hold
// JSON strings.
const (
	FieldTitle                     = "title"
	FieldLogo                      = "logo"
	FieldFavicon                   = "favicon"
	FieldOGImage                   = "og_image"
	FieldHeroTitle                 = "hero_title"
	FieldHeroSubtitle              = "hero_subtitle"
	FieldHeroBackground            = "hero_background"
	FieldShowEvents                = "show_events"
	FieldShowBlog                  = "show_blog"
	FieldMaxEvents                 = "max_events"
	FieldMaxBlogPosts              = "max_blog_posts"
	FieldDefaultRelay              = "default_relay"
	FieldPublishRelays             = "publish_relays"
	FieldAdminRoles                = "admin_roles"
	FieldFeedNpubs                 = "feed_npubs"
	FieldFeedReadFromPublishRelays = "feed_read_from_publish_relays"
	FieldReadOnlyAdminAccess       = "read_only_admin_access"
	FieldThemeURL                  = "tweakcn_theme_url"
)

// RelayPref is one entry of the current user's relay list.
type RelayPref struct {
	URL      string `json:"url"`
	CanRead  bool   `json:"canRead"`
	CanWrite bool   `json:"canWrite"`
}

// RelayMetadata is the user's relay preferences plus the logical
// timestamp of the event they came from.
type RelayMetadata struct {
	Relays    []RelayPref `json:"relays,omitempty"`
	UpdatedAt int64       `json:"updatedAt,omitempty"`
}

// WriteRelays returns the URLs the user declared writable, in order.
func (m RelayMetadata) WriteRelays() []string {
	var out []string
	for _, r := range m.Relays {
		if r.CanWrite {
			out = append(out, r.URL)
		}
	}
	return out
}

// ReadRelays returns the URLs the user declared readable, in order.
func (m RelayMetadata) ReadRelays() []string {
	var out []string
	for _, r := range m.Relays {
		if r.CanRead {
			out = append(out, r.URL)
		}
	}
	return out
}

// SiteConfig is the controller-published field map plus its logical
// timestamp. Values are strings; array and object fields are JSON text.
type SiteConfig struct {
	Fields    map[string]string `json:"fields,omitempty"`
	UpdatedAt int64             `json:"updatedAt,omitempty"`
}

// NavItem is one navigation entry. A ParentID naming a missing sibling
// is tolerated; readers render such entries top-level.
type NavItem struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	Path            string `json:"path,omitempty"`
	IsSubmenuParent bool   `json:"isSubmenuParent,omitempty"`
	ParentID        string `json:"parentId,omitempty"`
}

// Snapshot is the persisted configuration. Every field is optional;
// readers overlay Defaults.
type Snapshot struct {
	Theme         Theme         `json:"theme,omitempty"`
	RelayMetadata RelayMetadata `json:"relayMetadata"`
	SiteConfig    SiteConfig    `json:"siteConfig"`
	Navigation    []NavItem     `json:"navigation,omitempty"`
}

// Defaults is the lowest-priority configuration layer.
func Defaults() Snapshot {
	return Snapshot{
		Theme: ThemeSystem,
		SiteConfig: SiteConfig{
			Fields: map[string]string{
				FieldShowEvents:   "true",
				FieldShowBlog:     "true",
				FieldMaxEvents:    "10",
				FieldMaxBlogPosts: "10",
			},
		},
		Navigation: []NavItem{
			{ID: "home", Label: "Home", Path: "/"},
		},
	}
}

// Clone returns a deep copy; mutating the copy never touches the
// original's maps or slices.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.RelayMetadata.Relays != nil {
		out.RelayMetadata.Relays = make([]RelayPref, len(s.RelayMetadata.Relays))
		copy(out.RelayMetadata.Relays, s.RelayMetadata.Relays)
	}
	if s.SiteConfig.Fields != nil {
		out.SiteConfig.Fields = make(map[string]string, len(s.SiteConfig.Fields))
		for k, v := range s.SiteConfig.Fields {
			out.SiteConfig.Fields[k] = v
		}
	}
	if s.Navigation != nil {
		out.Navigation = make([]NavItem, len(s.Navigation))
		copy(out.Navigation, s.Navigation)
	}
	return out
}

// Field returns a site config field value.
func (s Snapshot) Field(name string) (string, bool) {
	v, ok := s.SiteConfig.Fields[name]
	return v, ok
}

// BoolField parses a boolean site config field, returning fallback for
// missing or unparseable values.
func (s Snapshot) BoolField(name string, fallback bool) bool {
	v, ok := s.Field(name)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// IntField parses an integer site config field, returning fallback for
// missing or unparseable values.
func (s Snapshot) IntField(name string, fallback int) int {
	v, ok := s.Field(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// jsonArrayField decodes a JSON-array-string field; nil when absent or
// malformed.
func (s Snapshot) jsonArrayField(name string) []string {
	v, ok := s.Field(name)
	if !ok || v == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}

// DefaultRelay returns the configured primary relay, or "".
func (s Snapshot) DefaultRelay() string {
	v, _ := s.Field(FieldDefaultRelay)
	return v
}

// PublishRelays decodes the publish relay list; nil when absent or
// malformed.
func (s Snapshot) PublishRelays() []string {
	return s.jsonArrayField(FieldPublishRelays)
}

// FeedNpubs decodes the followed-feed author list; nil when absent or
// malformed.
func (s Snapshot) FeedNpubs() []string {
	return s.jsonArrayField(FieldFeedNpubs)
}

// AdminRoles decodes the pubkey-to-role map; nil when absent or
// malformed.
func (s Snapshot) AdminRoles() map[string]string {
	v, ok := s.Field(FieldAdminRoles)
	if !ok || v == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}

// ShowEvents reports whether the events section is enabled (default on).
func (s Snapshot) ShowEvents() bool { return s.BoolField(FieldShowEvents, true) }

// ShowBlog reports whether the blog section is enabled (default on).
func (s Snapshot) ShowBlog() bool { return s.BoolField(FieldShowBlog, true) }

// MaxEvents returns the events page size (default 10).
func (s Snapshot) MaxEvents() int { return s.IntField(FieldMaxEvents, 10) }

// MaxBlogPosts returns the blog page size (default 10).
func (s Snapshot) MaxBlogPosts() int { return s.IntField(FieldMaxBlogPosts, 10) }

// FeedReadFromPublishRelays reports whether feed reads reuse the publish
// relay set (default off).
func (s Snapshot) FeedReadFromPublishRelays() bool {
	return s.BoolField(FieldFeedReadFromPublishRelays, false)
}

// ReadOnlyAdminAccess reports whether admins below the owner role are
// restricted to reads (default off).
func (s Snapshot) ReadOnlyAdminAccess() bool {
	return s.BoolField(FieldReadOnlyAdminAccess, false)
}

// WithTheme returns a copy with the theme replaced.
func (s Snapshot) WithTheme(t Theme) Snapshot {
	out := s.Clone()
	out.Theme = t
	return out
}

// WithRelayMetadata returns a copy with the relay section replaced.
func (s Snapshot) WithRelayMetadata(md RelayMetadata) Snapshot {
	out := s.Clone()
	out.RelayMetadata = md
	if md.Relays != nil {
		out.RelayMetadata.Relays = make([]RelayPref, len(md.Relays))
		copy(out.RelayMetadata.Relays, md.Relays)
	}
	return out
}

// WithSiteFields returns a copy with the named fields set and the site
// config timestamp replaced. Keys not named keep their values; the merge
// is key-by-key, never whole-map replacement.
func (s Snapshot) WithSiteFields(fields map[string]string, updatedAt int64) Snapshot {
	out := s.Clone()
	if out.SiteConfig.Fields == nil {
		out.SiteConfig.Fields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		out.SiteConfig.Fields[k] = v
	}
	out.SiteConfig.UpdatedAt = updatedAt
	return out
}

// WithSiteField returns a copy with one field set.
func (s Snapshot) WithSiteField(name, value string, updatedAt int64) Snapshot {
	return s.WithSiteFields(map[string]string{name: value}, updatedAt)
}

// WithNavigation returns a copy with the navigation replaced.
func (s Snapshot) WithNavigation(items []NavItem) Snapshot {
	out := s.Clone()
	out.Navigation = make([]NavItem, len(items))
	copy(out.Navigation, items)
	return out
}

// Overlay returns base with this snapshot's populated sections laid on
// top, field-scoped: each section wins independently, and site config
// fields merge key-by-key so a sparse overlay never erases unrelated
// base fields.
func (s Snapshot) Overlay(base Snapshot) Snapshot {
	out := base.Clone()
	if s.Theme != "" {
		out.Theme = s.Theme
	}
	if s.RelayMetadata.Relays != nil || s.RelayMetadata.UpdatedAt != 0 {
		out.RelayMetadata = s.Clone().RelayMetadata
	}
	if len(s.SiteConfig.Fields) > 0 || s.SiteConfig.UpdatedAt != 0 {
		out = out.WithSiteFields(s.SiteConfig.Fields, s.SiteConfig.UpdatedAt)
	}
	if s.Navigation != nil {
		out = out.WithNavigation(s.Navigation)
	}
	return out
}
