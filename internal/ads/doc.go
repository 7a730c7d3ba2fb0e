// Package ads defines the canonical ad record, the enriched record emitted by
// preprocessing, and the collection job configuration shared by every source.
package ads
