package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/streambinder/spotitag/entity"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// candidates asked for on every search
const searchLimit = 7

type Client struct {
	*spotify.Client
	http    *http.Client
	logger  *slog.Logger
	artwork bool

	mu     sync.Mutex
	albums map[spotify.ID]int
}

type Option func(*Client)

// WithArtwork makes returned tracks carry their album artwork
func WithArtwork() Option {
	return func(client *Client) {
		client.artwork = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// Authenticate obtains an app-only client through the client credentials flow
func Authenticate(ctx context.Context, id, secret string, opts ...Option) (*Client, error) {
	if id == "" || secret == "" {
		return nil, errors.New("spotify client id and secret are required")
	}

	credentials := &clientcredentials.Config{
		ClientID:     id,
		ClientSecret: secret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := credentials.Token(ctx); err != nil {
		return nil, fmt.Errorf("spotify authentication: %w", err)
	}
	httpClient := credentials.Client(ctx)
	return New(httpClient, []spotify.ClientOption{}, opts...), nil
}

// New wraps an already authenticated http client
func New(httpClient *http.Client, clientOpts []spotify.ClientOption, opts ...Option) *Client {
	client := &Client{
		Client: spotify.New(httpClient, clientOpts...),
		http:   httpClient,
		logger: slog.Default(),
		albums: make(map[spotify.ID]int),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FindTracks searches the catalog for the tracks matching the query
func (client *Client) FindTracks(ctx context.Context, query entity.Query) ([]*entity.Track, error) {
	if query.IsEmpty() {
		return nil, nil
	}
	search := searchQuery(query)
	if search == "" {
		return nil, nil
	}

	client.logger.Debug("searching spotify", "query", search)
	result, err := client.Search(ctx, search, spotify.SearchTypeTrack, spotify.Limit(searchLimit))
	if err != nil {
		return nil, err
	}
	if result.Tracks == nil {
		return nil, nil
	}

	tracks := make([]*entity.Track, 0, len(result.Tracks.Tracks))
	for _, fullTrack := range result.Tracks.Tracks {
		track := client.track(ctx, fullTrack)
		if query.IsFingerprint() {
			track.ISRC = query.Fingerprint
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func searchQuery(query entity.Query) string {
	if query.IsFingerprint() {
		return "isrc:" + query.Fingerprint
	}

	var terms []string
	for _, term := range [][2]string{
		{"track", query.Title},
		{"artist", query.Artist},
		{"album", query.Album},
	} {
		if value := strings.TrimSpace(strings.ReplaceAll(term[1], `"`, "")); value != "" {
			terms = append(terms, fmt.Sprintf("%s:%q", term[0], value))
		}
	}
	return strings.Join(terms, " ")
}

func (client *Client) track(ctx context.Context, fullTrack spotify.FullTrack) *entity.Track {
	track := &entity.Track{
		ID:          fullTrack.ID.String(),
		Title:       fullTrack.Name,
		Album:       fullTrack.Album.Name,
		AlbumID:     fullTrack.Album.ID.String(),
		Duration:    int(fullTrack.Duration),
		Number:      int(fullTrack.TrackNumber),
		AlbumTracks: client.albumTracks(ctx, fullTrack.Album.ID),
	}
	for _, artist := range fullTrack.Artists {
		track.Artists = append(track.Artists, artist.Name)
	}
	if len(fullTrack.Album.Artists) > 0 {
		track.AlbumArtist = fullTrack.Album.Artists[0].Name
	}
	if len(fullTrack.Album.ReleaseDate) >= 4 {
		track.Year, _ = strconv.Atoi(fullTrack.Album.ReleaseDate[:4])
	}
	if len(fullTrack.Album.Images) > 0 {
		track.Artwork.URL = fullTrack.Album.Images[0].URL
		if client.artwork {
			track.Artwork.Data = client.download(ctx, track.Artwork.URL)
		}
	}
	return track
}

// albumTracks resolves the number of tracks of a release,
// asking for every album at most once
func (client *Client) albumTracks(ctx context.Context, id spotify.ID) int {
	if id == "" {
		return 0
	}

	client.mu.Lock()
	total, ok := client.albums[id]
	client.mu.Unlock()
	if ok {
		return total
	}

	album, err := client.GetAlbum(ctx, id)
	if err != nil {
		client.logger.Debug("album lookup failed", "album", id, "error", err)
		return 0
	}
	total = int(album.Tracks.Total)

	client.mu.Lock()
	client.albums[id] = total
	client.mu.Unlock()
	return total
}

func (client *Client) download(ctx context.Context, url string) []byte {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	response, err := client.http.Do(request)
	if err != nil {
		client.logger.Debug("artwork download failed", "url", url, "error", err)
		return nil
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil
	}
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil
	}
	return data
}
