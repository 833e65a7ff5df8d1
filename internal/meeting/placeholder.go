package meeting

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"slotbook/internal/models"
)

const (
	DefaultPlaceholderBaseURL = "https://zoom.us/j/"

	digits   = "0123456789"
	alphaNum = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// PlaceholderProvider generates a Zoom-shaped link locally. It never fails.
type PlaceholderProvider struct {
	baseURL string
}

func NewPlaceholderProvider(baseURL string) *PlaceholderProvider {
	if baseURL == "" {
		baseURL = DefaultPlaceholderBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &PlaceholderProvider{baseURL: baseURL}
}

// Link returns <base><10 digits>?pwd=<6 lowercase alphanumerics>.
func (p *PlaceholderProvider) Link() string {
	id, pwd := randomString(digits, 10), randomString(alphaNum, 6)
	return p.baseURL + id + "?pwd=" + pwd
}

func (p *PlaceholderProvider) Provision(_ context.Context, _ models.MeetingRequest) (models.Meeting, error) {
	id, pwd := randomString(digits, 10), randomString(alphaNum, 6)
	return models.Meeting{
		ID:          id,
		JoinURL:     p.baseURL + id + "?pwd=" + pwd,
		Password:    pwd,
		Placeholder: true,
	}, nil
}

func randomString(alphabet string, n int) string {
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String()
}
