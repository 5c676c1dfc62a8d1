package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const ITunesID = "itunes"

// ITunesClient resolves tracks through the iTunes Search API. The API
// requires no credentials and returns a 30s preview stream per track.
type ITunesClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewITunesClient() *ITunesClient {
	return &ITunesClient{
		baseURL: "https://itunes.apple.com",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type itunesSearchResponse struct {
	ResultCount int           `json:"resultCount"`
	Results     []itunesTrack `json:"results"`
}

type itunesTrack struct {
	TrackName       string `json:"trackName"`
	ArtistName      string `json:"artistName"`
	PreviewURL      string `json:"previewUrl"`
	TrackTimeMillis int64  `json:"trackTimeMillis"`
}

func (c *ITunesClient) Resolve(ctx context.Context, title, artist string) (StreamHandle, error) {
	query := url.Values{}
	query.Set("term", title+" "+artist)
	query.Set("media", "music")
	query.Set("entity", "song")
	query.Set("limit", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+query.Encode(), nil)
	if err != nil {
		return StreamHandle{}, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StreamHandle{}, fmt.Errorf("failed to search tracks: %w", ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StreamHandle{}, fmt.Errorf("search returned status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var searchResp itunesSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return StreamHandle{}, fmt.Errorf("failed to decode search response: %w", ErrUnavailable)
	}

	for _, track := range searchResp.Results {
		if track.PreviewURL == "" {
			continue
		}

		return StreamHandle{
			URL:        track.PreviewURL,
			DurationMS: track.TrackTimeMillis,
		}, nil
	}

	return StreamHandle{}, ErrTrackNotFound
}
