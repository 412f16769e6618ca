// SPDX-License-Identifier: MIT

// Package content defines the playable content model and the file-backed
// catalog store the daemon serves from.
package content

// PlayableContent describes one viewable item in the catalog.
type PlayableContent struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`

	// SourceRef is either an absolute URL or an opaque storage key that
	// the asset resolver turns into a playable URL.
	SourceRef    string `json:"sourceRef"`
	PosterRef    string `json:"posterRef,omitempty"`
	ThumbnailRef string `json:"thumbnailRef,omitempty"`

	// Prices are USD; zero or absent means free.
	PurchasePriceUSD float64 `json:"purchasePrice,omitempty"`
	RentalPriceUSD   float64 `json:"rentalPrice,omitempty"`

	// PayoutRecipient is the external payment identity paid for this item.
	// Empty falls back to the platform-level recipient.
	PayoutRecipient string `json:"payoutRecipient,omitempty"`
}

// Gated reports whether playback requires a successful payment first.
func (c PlayableContent) Gated() bool {
	return c.PurchasePriceUSD > 0 || c.RentalPriceUSD > 0
}
