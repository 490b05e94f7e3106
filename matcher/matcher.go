package matcher

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/streambinder/spotitag/entity"
	"github.com/streambinder/spotitag/similarity"
)

// Kind tells how a lookup got keyed, which drives the acceptance threshold
type Kind int

const (
	// KindMetadata lookups are free-text searches over local tags
	KindMetadata Kind = iota
	// KindFingerprint lookups are keyed by an acoustic fingerprint identifier
	KindFingerprint
)

func (kind Kind) String() string {
	if kind == KindFingerprint {
		return "fingerprint"
	}
	return "metadata"
}

const (
	weightTitle       = 13
	weightArtist      = 4
	weightRelease     = 5
	weightDuration    = 10
	weightTotalTracks = 4

	// duration differences beyond this window score 0
	durationWindow = 30000
)

// Thresholds holds the minimum score a top candidate needs per lookup kind
type Thresholds struct {
	Metadata    float64
	Fingerprint float64
}

func (thresholds Thresholds) For(kind Kind) float64 {
	if kind == KindFingerprint {
		return thresholds.Fingerprint
	}
	return thresholds.Metadata
}

type Match struct {
	Track *entity.Track
	Score float64
}

type weighted struct {
	score, total float64
}

func (w *weighted) add(score, weight float64) {
	w.score += score * weight
	w.total += weight
}

func (w weighted) result() float64 {
	if w.total == 0 {
		return 0
	}
	return w.score / w.total
}

// Score compares local metadata against a candidate track:
// fields missing on either side are left out of both the weighted sum
// and its normalizing total
func Score(metadata *entity.Metadata, track *entity.Track) float64 {
	var w weighted

	if title := metadata.Get(entity.TagTitle, ""); metadata.Has(entity.TagTitle) && track.Title != "" {
		w.add(similarity.Words(title, track.Title), weightTitle)
	}
	if artist := metadata.Get(entity.TagArtist, ""); metadata.Has(entity.TagArtist) && track.Artist() != "" {
		w.add(similarity.Words(artist, track.Artist()), weightArtist)
	}
	if album := metadata.Get(entity.TagAlbum, ""); metadata.Has(entity.TagAlbum) && track.Album != "" {
		w.add(similarity.Words(album, track.Album), weightRelease)
	}
	if length := metadata.Int(entity.TagLength); length > 0 && track.Duration > 0 {
		w.add(durationScore(length, track.Duration), weightDuration)
	}
	if score, ok := totalTracksScore(metadata, track); ok {
		w.add(score, weightTotalTracks)
	}

	return w.result()
}

func durationScore(local, candidate int) float64 {
	difference := local - candidate
	if difference < 0 {
		difference = -difference
	}
	if difference > durationWindow {
		difference = durationWindow
	}
	return 1 - float64(difference)/durationWindow
}

// non numeric counts are absorbed by leaving the field out
func totalTracksScore(metadata *entity.Metadata, track *entity.Track) (float64, bool) {
	if track.AlbumTracks <= 0 || !metadata.Has(entity.TagTotalTracks) {
		return 0, false
	}
	local, err := strconv.Atoi(strings.TrimSpace(metadata.Get(entity.TagTotalTracks, "")))
	if err != nil {
		return 0, false
	}
	switch {
	case local == track.AlbumTracks:
		return 1, true
	case local < track.AlbumTracks:
		return .3, true
	default:
		return 0, true
	}
}

// Rank scores every candidate and sorts them by descending score,
// candidates scoring the same keep their relative order
func Rank(metadata *entity.Metadata, tracks []*entity.Track) []Match {
	matches := make([]Match, len(tracks))
	for index, track := range tracks {
		matches[index] = Match{Track: track, Score: Score(metadata, track)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Select picks the top ranked candidate as long as it meets the threshold
func Select(metadata *entity.Metadata, tracks []*entity.Track, threshold float64) (Match, bool) {
	matches := Rank(metadata, tracks)
	if len(matches) == 0 {
		slog.Debug("no candidates to match", "title", metadata.Get(entity.TagTitle, ""))
		return Match{}, false
	}

	best := matches[0]
	slog.Debug("candidates ranked",
		"title", metadata.Get(entity.TagTitle, ""),
		"candidates", len(matches),
		"best", best.Track.String(),
		"score", best.Score,
		"threshold", threshold)
	if best.Score < threshold {
		return Match{}, false
	}
	return best, true
}
