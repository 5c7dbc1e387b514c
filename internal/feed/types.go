package feed

import "strings"

// TagSeparator joins an item's tags into the single searchable tag string.
const TagSeparator = ", "

// Item is one catalog record: a media locator and its free-form keywords.
type Item struct {
	Source string
	Tags   []string
}

// JoinedTags returns the tags concatenated with TagSeparator.
func (i Item) JoinedTags() string {
	return strings.Join(i.Tags, TagSeparator)
}

// apiItem is the raw shape of one feed entry. Pointers distinguish missing
// fields from empty ones.
type apiItem struct {
	Source *string   `json:"source"`
	Tags   *[]string `json:"tags"`
}
