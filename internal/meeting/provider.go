package meeting

import (
	"slotbook/internal/config"
	"slotbook/internal/domain"
)

// NewFromConfig returns the configured provider plus the placeholder used for
// reservation-time links. Without Zoom credentials both are the placeholder.
func NewFromConfig(cfg config.MeetingConfig, timezone string) (domain.MeetingProvider, *PlaceholderProvider) {
	placeholder := NewPlaceholderProvider(cfg.PlaceholderBaseURL)
	if cfg.Provider != "zoom" {
		return placeholder, placeholder
	}
	return NewZoomProvider(cfg.Zoom, timezone), placeholder
}
