package entity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
)

type Artwork struct {
	URL  string
	Data []byte
}

// Track is a remote catalog record a local file can be matched to
type Track struct {
	ID          string
	Title       string
	Artists     []string
	Album       string
	AlbumID     string
	AlbumArtist string
	AlbumTracks int // number of tracks of the release, 0 if undeclared
	Artwork     Artwork
	Duration    int // in milliseconds, 0 if unknown
	Number      int // track number within the album
	Year        int
	ISRC        string
}

// certain track titles include the variant description,
// this functions aims to strip out that part:
// > Title: Name - Acoustic
// > Song:  Name
func (track *Track) Song() (song string) {
	song = track.Title
	song = strings.Split(song+" - ", " - ")[0]
	song = strings.Split(song+" (", " (")[0]
	song = strings.Split(song+" [", " [")[0]
	return
}

// Artist returns the primary artist name
func (track *Track) Artist() string {
	if len(track.Artists) == 0 {
		return ""
	}
	return track.Artists[0]
}

func (track *Track) String() string {
	return fmt.Sprintf("%s by %s", track.Title, track.Artist())
}

// Slug is a filesystem friendly identifier of the track
func (track *Track) Slug() string {
	return slug.Make(fmt.Sprintf("%s %s %s", track.Artist(), track.Song(), track.ID))
}

// Metadata renders the fields a match confirms on local files
func (track *Track) Metadata() *Metadata {
	metadata := NewMetadata()
	if track.Title != "" {
		metadata.Set(TagTitle, track.Title)
	}
	if len(track.Artists) > 0 {
		metadata.Set(TagArtist, track.Artists...)
	}
	if track.Album != "" {
		metadata.Set(TagAlbum, track.Album)
	}
	if track.AlbumArtist != "" {
		metadata.Set(TagAlbumArtist, track.AlbumArtist)
	}
	if track.Number > 0 {
		metadata.Set(TagTrackNumber, strconv.Itoa(track.Number))
	}
	if track.AlbumTracks > 0 {
		metadata.Set(TagTotalTracks, strconv.Itoa(track.AlbumTracks))
	}
	if track.Year > 0 {
		metadata.Set(TagDate, strconv.Itoa(track.Year))
	}
	if track.ISRC != "" {
		metadata.Set(TagISRC, track.ISRC)
	}
	if track.Duration > 0 {
		metadata.Set(TagLength, strconv.Itoa(track.Duration))
	}
	metadata.Set(TagTrackID, track.ID)
	if track.AlbumID != "" {
		metadata.Set(TagReleaseID, track.AlbumID)
	}
	if len(track.Artwork.Data) > 0 {
		metadata.Images = append(metadata.Images, Image{MIME: "image/jpeg", Data: track.Artwork.Data})
	}
	return metadata
}
