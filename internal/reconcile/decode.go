// ABOUTME: Decoding remote events into snapshot sections
// ABOUTME: Undecodable fields are skipped individually; the rest still merge

package reconcile

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/relaypress/relaypress/internal/configstore"
	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/relay"
)

// DecodeError reports one remote config field whose value failed to
// parse as the expected JSON shape. The field is skipped; sibling
// fields still merge.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding config field %q: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// knownSiteFields is the tag vocabulary copied from the controller's
// configuration event into the site config map.
var knownSiteFields = []string{
	configstore.FieldTitle,
	configstore.FieldLogo,
	configstore.FieldFavicon,
	configstore.FieldOGImage,
	configstore.FieldHeroTitle,
	configstore.FieldHeroSubtitle,
	configstore.FieldHeroBackground,
	configstore.FieldShowEvents,
	configstore.FieldShowBlog,
	configstore.FieldMaxEvents,
	configstore.FieldMaxBlogPosts,
	configstore.FieldDefaultRelay,
	configstore.FieldPublishRelays,
	configstore.FieldAdminRoles,
	configstore.FieldFeedNpubs,
	configstore.FieldFeedReadFromPublishRelays,
	configstore.FieldReadOnlyAdminAccess,
	configstore.FieldThemeURL,
}

// jsonArrayFields must parse as a JSON string array to merge.
var jsonArrayFields = map[string]bool{
	configstore.FieldPublishRelays: true,
	configstore.FieldFeedNpubs:     true,
}

// jsonObjectFields must parse as a JSON string map to merge.
var jsonObjectFields = map[string]bool{
	configstore.FieldAdminRoles: true,
}

// remoteConfig is a decoded controller configuration event.
type remoteConfig struct {
	fields     map[string]string
	navigation []configstore.NavItem
	hasNav     bool
	updatedAt  int64
}

// decodeControllerEvent extracts site fields from the event's tags and
// navigation from its content body. A field whose value fails to parse
// as the expected JSON shape yields a DecodeError and is dropped; every
// other field still decodes.
func decodeControllerEvent(ev *event.Event) (remoteConfig, []error) {
	rc := remoteConfig{
		fields:    make(map[string]string),
		updatedAt: ev.UpdatedAt(),
	}
	var errs []error

	for _, name := range knownSiteFields {
		val, ok := ev.Tags.First(name)
		if !ok {
			continue
		}
		switch {
		case jsonArrayFields[name]:
			var arr []string
			if err := json.Unmarshal([]byte(val), &arr); err != nil {
				errs = append(errs, &DecodeError{Field: name, Err: err})
				continue
			}
		case jsonObjectFields[name]:
			var obj map[string]string
			if err := json.Unmarshal([]byte(val), &obj); err != nil {
				errs = append(errs, &DecodeError{Field: name, Err: err})
				continue
			}
		}
		rc.fields[name] = val
	}

	if ev.Content != "" {
		var body struct {
			Navigation []configstore.NavItem `json:"navigation"`
		}
		if err := json.Unmarshal([]byte(ev.Content), &body); err != nil {
			errs = append(errs, &DecodeError{Field: "navigation", Err: err})
		} else if body.Navigation != nil {
			rc.navigation = body.Navigation
			rc.hasNav = true
		}
	}
	return rc, errs
}

// decodeRelayList extracts relay preferences from a relay-list event.
// An omitted marker means read and write; unknown markers are treated
// the same way. Entries with invalid URLs are dropped; duplicates keep
// the first occurrence.
func decodeRelayList(ev *event.Event, logger *slog.Logger) configstore.RelayMetadata {
	md := configstore.RelayMetadata{UpdatedAt: ev.UpdatedAt()}

	seen := make(map[string]struct{})
	for _, t := range ev.Tags {
		if t.Name() != event.TagRelay || len(t) < 2 {
			continue
		}
		url, err := relay.NormalizeURL(t[1])
		if err != nil {
			logger.Warn("skipping invalid relay list entry", "url", t[1], "error", err)
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}

		pref := configstore.RelayPref{URL: url, CanRead: true, CanWrite: true}
		if len(t) > 2 {
			switch t[2] {
			case "read":
				pref.CanWrite = false
			case "write":
				pref.CanRead = false
			}
		}
		md.Relays = append(md.Relays, pref)
	}
	return md
}
