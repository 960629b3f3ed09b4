// ABOUTME: Draft builders for articles, notes, and comments.
// ABOUTME: Fills slugs, summaries, and reference tags; signing happens elsewhere.

package content

import (
	"fmt"
	"strconv"

	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/signer"
)

// summaryRunes is the excerpt length used when no summary is supplied.
const summaryRunes = 240

// Article is an authored long-form piece before signing.
type Article struct {
	Title       string
	Slug        string
	Summary     string
	Markdown    string
	PublishedAt int64
	Hashtags    []string
}

// ArticleDraft builds the kind 30023 draft for an article. A missing
// title falls back to the document's first heading, a missing slug is
// derived from the title, and a missing summary to an excerpt.
func ArticleDraft(a Article) (signer.Draft, error) {
	title := a.Title
	if title == "" {
		title = FirstHeading(a.Markdown)
	}
	if title == "" {
		return signer.Draft{}, fmt.Errorf("article needs a title or a leading heading")
	}

	slug := a.Slug
	if slug == "" {
		slug = Slugify(title)
	}
	summary := a.Summary
	if summary == "" {
		summary = Excerpt(a.Markdown, summaryRunes)
	}

	tags := event.Tags{
		{event.TagIdentifier, slug},
		{event.TagTitle, title},
	}
	if summary != "" {
		tags = append(tags, event.Tag{event.TagSummary, summary})
	}
	if a.PublishedAt > 0 {
		tags = append(tags, event.Tag{event.TagPublished, strconv.FormatInt(a.PublishedAt, 10)})
	}
	for _, h := range a.Hashtags {
		if h != "" {
			tags = append(tags, event.Tag{event.TagHashtag, h})
		}
	}

	return signer.Draft{Kind: event.KindLongForm, Tags: tags, Content: a.Markdown}, nil
}

// NoteDraft builds a short plain note.
func NoteDraft(text string) (signer.Draft, error) {
	if text == "" {
		return signer.Draft{}, fmt.Errorf("note needs content")
	}
	return signer.Draft{Kind: event.KindNote, Content: text}, nil
}

// CommentDraft builds a comment on a parent event. Addressable parents
// are referenced by coordinate so the comment follows slot rewrites;
// everything else is referenced by event id.
func CommentDraft(parent *event.Event, text string) (signer.Draft, error) {
	if parent == nil {
		return signer.Draft{}, fmt.Errorf("comment needs a parent event")
	}
	if text == "" {
		return signer.Draft{}, fmt.Errorf("comment needs content")
	}

	var tags event.Tags
	if addr := parent.Address(); addr != "" {
		tags = append(tags, event.Tag{event.TagAddressRef, addr})
	} else {
		tags = append(tags, event.Tag{event.TagEventRef, parent.ID})
	}
	tags = append(tags, event.Tag{event.TagPubKeyRef, parent.PubKey})

	return signer.Draft{Kind: event.KindComment, Tags: tags, Content: text}, nil
}
