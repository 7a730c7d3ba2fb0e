package collector

import (
	"context"
	"encoding/json"

	"github.com/JakeFAU/adintel/internal/ads"
)

// RawItem is one source-specific payload as returned by a fetch. Payload is
// opaque to the orchestrator and is kept verbatim as the record's raw data.
type RawItem struct {
	Keyword string
	Payload json.RawMessage
	// Retries counts the retries spent fetching the page the item came from.
	Retries int
}

// Page is one fetched page of raw items plus the cursor for the next page.
// An empty Next means the source has no further pages.
type Page struct {
	Items   []RawItem
	Next    string
	Retries int
}

// SourceAdapter is the contract every ad source implements. FetchRawItems is
// expected to apply its own rate limiting and retries; Normalize is a pure
// mapping from one payload to a canonical record.
type SourceAdapter interface {
	Platform() string
	FetchRawItems(ctx context.Context, keyword, cursor string) (Page, error)
	Normalize(item RawItem) (ads.AdRecord, error)
}

// Warner is implemented by adapters that can run in a degraded mode, such as
// a missing API credential, and want the job to surface why.
type Warner interface {
	Warnings() []string
}

// Closer is implemented by adapters that hold resources such as a browser.
type Closer interface {
	Close() error
}
