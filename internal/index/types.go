package index

// MaxResults caps the number of hits returned by a single search.
const MaxResults = 10

const (
	fieldSource = "source"
	fieldTags   = "tags"
)

// Result is one ranked hit: the item's locator and its joined tags.
type Result struct {
	Source string  `json:"source"`
	Tags   string  `json:"tags"`
	Score  float64 `json:"score"`
}

// document is the indexed form of one item.
type document struct {
	Source string
	Tags   string
}

func (d document) fields() map[string]interface{} {
	return map[string]interface{}{
		fieldSource: d.Source,
		fieldTags:   d.Tags,
	}
}
