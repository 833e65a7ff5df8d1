package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ZoomProvider schedules meetings through the Zoom REST API using a
// server-to-server OAuth app.
type ZoomProvider struct {
	client   *http.Client
	apiBase  string
	timezone string
}

type zoomSettings struct {
	HostVideo        bool   `json:"host_video"`
	ParticipantVideo bool   `json:"participant_video"`
	JoinBeforeHost   bool   `json:"join_before_host"`
	WaitingRoom      bool   `json:"waiting_room"`
	MuteUponEntry    bool   `json:"mute_upon_entry"`
	AutoRecording    string `json:"auto_recording"`
}

type zoomCreateRequest struct {
	Topic     string       `json:"topic"`
	Type      int          `json:"type"`
	StartTime string       `json:"start_time"`
	Duration  int          `json:"duration"`
	Timezone  string       `json:"timezone"`
	Settings  zoomSettings `json:"settings"`
}

type zoomCreateResponse struct {
	ID       int64  `json:"id"`
	JoinURL  string `json:"join_url"`
	Password string `json:"password"`
}

// NewZoomProvider builds a provider whose HTTP client fetches and caches
// account_credentials tokens on its own.
func NewZoomProvider(cfg config.ZoomConfig, timezone string) *ZoomProvider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {cfg.AccountID},
		},
		AuthStyle: oauth2.AuthStyleInHeader,
	}
	if timezone == "" {
		timezone = "UTC"
	}
	return &ZoomProvider{
		client:   cc.Client(context.Background()),
		apiBase:  strings.TrimRight(cfg.APIBaseURL, "/"),
		timezone: timezone,
	}
}

func (z *ZoomProvider) Provision(ctx context.Context, req models.MeetingRequest) (models.Meeting, error) {
	loc, err := time.LoadLocation(z.timezone)
	if err != nil {
		loc = time.UTC
	}

	body, err := json.Marshal(zoomCreateRequest{
		Topic:     req.Topic,
		Type:      2, // scheduled
		StartTime: req.Start.In(loc).Format("2006-01-02T15:04:05"),
		Duration:  int(req.Duration / time.Minute),
		Timezone:  z.timezone,
		Settings: zoomSettings{
			HostVideo:        true,
			ParticipantVideo: true,
			JoinBeforeHost:   true,
			WaitingRoom:      false,
			MuteUponEntry:    true,
			AutoRecording:    "none",
		},
	})
	if err != nil {
		return models.Meeting{}, fmt.Errorf("encode zoom request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, z.apiBase+"/users/me/meetings", bytes.NewReader(body))
	if err != nil {
		return models.Meeting{}, fmt.Errorf("build zoom request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := z.client.Do(httpReq)
	if err != nil {
		return models.Meeting{}, fmt.Errorf("zoom create meeting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return models.Meeting{}, fmt.Errorf("zoom create meeting: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out zoomCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Meeting{}, fmt.Errorf("decode zoom response: %w", err)
	}
	if out.JoinURL == "" {
		return models.Meeting{}, fmt.Errorf("zoom create meeting: empty join_url")
	}

	return models.Meeting{
		ID:       strconv.FormatInt(out.ID, 10),
		JoinURL:  out.JoinURL,
		Password: out.Password,
	}, nil
}
