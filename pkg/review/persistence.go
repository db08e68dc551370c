package review

// Persistence durably records queue items keyed by ID. Save is an
// upsert: every state transition rewrites the item's payload, so the
// backend always holds the latest snapshot of each item.
type Persistence interface {
	SaveReviewItem(id, state string, data []byte) error
	LoadReviewItems() ([][]byte, error)
}
