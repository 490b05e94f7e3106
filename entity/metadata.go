package entity

import (
	"strconv"
	"strings"

	"github.com/streambinder/spotitag/similarity"
)

// InternalPrefix marks computed fields (length, bitrate, format...)
// which are never saved nor taken into account for dirtiness
const InternalPrefix = "~"

const (
	TagTitle       = "title"
	TagArtist      = "artist"
	TagAlbumArtist = "albumartist"
	TagAlbum       = "album"
	TagTrackNumber = "tracknumber"
	TagTotalTracks = "totaltracks"
	TagDiscNumber  = "discnumber"
	TagTotalDiscs  = "totaldiscs"
	TagDate        = "date"
	TagGenre       = "genre"
	TagComposer    = "composer"
	TagCompilation = "compilation"
	TagISRC        = "isrc"
	TagTrackID     = "catalog_trackid"
	TagReleaseID   = "catalog_releaseid"
	TagFingerprint = "fingerprint"

	TagLength     = "~#length"
	TagLengthText = "~length"
	TagBitrate    = "~#bitrate"
	TagExtension  = "~extension"
	TagFormat     = "~format"
)

// weights used to compare two metadata instances,
// fields not listed here weigh 1
var compareWeights = map[string]float64{
	TagTitle:       22,
	TagAlbum:       12,
	TagArtist:      6,
	TagTrackNumber: 6,
	TagTotalTracks: 5,
}

type Image struct {
	MIME string
	Data []byte
}

// Metadata is an ordered multi-valued field store:
// field names keep their insertion order
type Metadata struct {
	keys   []string
	values map[string][]string
	Images []Image
}

func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string][]string)}
}

// IsInternal reports whether the field is a computed one
func IsInternal(field string) bool {
	return strings.HasPrefix(field, InternalPrefix)
}

func (metadata *Metadata) init() {
	if metadata.values == nil {
		metadata.values = make(map[string][]string)
	}
}

// Set replaces all the values of the given field
func (metadata *Metadata) Set(field string, values ...string) {
	metadata.init()
	if _, ok := metadata.values[field]; !ok {
		metadata.keys = append(metadata.keys, field)
	}
	metadata.values[field] = append([]string{}, values...)
}

// Add appends a value to the given field
func (metadata *Metadata) Add(field, value string) {
	metadata.Set(field, append(metadata.GetAll(field), value)...)
}

// Get returns the first value of the field or the fallback one
func (metadata *Metadata) Get(field, fallback string) string {
	if values := metadata.values[field]; len(values) > 0 {
		return values[0]
	}
	return fallback
}

// GetAll returns a copy of all the values of the field
func (metadata *Metadata) GetAll(field string) []string {
	values, ok := metadata.values[field]
	if !ok {
		return nil
	}
	return append([]string{}, values...)
}

// Int parses the first value of the field,
// returning 0 whenever absent or not numeric
func (metadata *Metadata) Int(field string) int {
	value, err := strconv.Atoi(strings.TrimSpace(metadata.Get(field, "")))
	if err != nil {
		return 0
	}
	return value
}

func (metadata *Metadata) Has(field string) bool {
	_, ok := metadata.values[field]
	return ok
}

func (metadata *Metadata) Delete(field string) {
	if !metadata.Has(field) {
		return
	}
	delete(metadata.values, field)
	for index, key := range metadata.keys {
		if key == field {
			metadata.keys = append(metadata.keys[:index], metadata.keys[index+1:]...)
			break
		}
	}
}

// Keys returns field names in insertion order
func (metadata *Metadata) Keys() []string {
	return append([]string{}, metadata.keys...)
}

func (metadata *Metadata) Len() int {
	return len(metadata.keys)
}

// Copy replaces every field and image with a deep copy of other's
func (metadata *Metadata) Copy(other *Metadata) {
	metadata.keys = make([]string, 0, other.Len())
	metadata.values = make(map[string][]string, other.Len())
	for _, key := range other.keys {
		metadata.Set(key, other.values[key]...)
	}
	metadata.Images = make([]Image, 0, len(other.Images))
	for _, image := range other.Images {
		metadata.Images = append(metadata.Images, Image{
			MIME: image.MIME,
			Data: append([]byte{}, image.Data...),
		})
	}
}

// Clone returns a deep copy
func (metadata *Metadata) Clone() *Metadata {
	clone := NewMetadata()
	clone.Copy(metadata)
	return clone
}

// Diff returns the non-internal fields whose values differ
func (metadata *Metadata) Diff(other *Metadata) (fields []string) {
	for _, field := range metadata.union(other) {
		if !equal(metadata.values[field], other.values[field]) ||
			metadata.Has(field) != other.Has(field) {
			fields = append(fields, field)
		}
	}
	return
}

// Compare returns a weighted similarity over the non-internal fields
// of both instances: 1 only for identical values, lower the more
// fields differ and the more they differ
func (metadata *Metadata) Compare(other *Metadata) float64 {
	var score, total float64
	for _, field := range metadata.union(other) {
		weight, ok := compareWeights[field]
		if !ok {
			weight = 1
		}
		total += weight
		score += weight * compareField(metadata, other, field)
	}
	if total == 0 {
		return 1
	}
	return score / total
}

// StripWhitespace trims every value in place
func (metadata *Metadata) StripWhitespace() {
	for _, values := range metadata.values {
		for index, value := range values {
			values[index] = strings.TrimSpace(value)
		}
	}
}

func (metadata *Metadata) union(other *Metadata) (fields []string) {
	seen := make(map[string]bool)
	for _, source := range []*Metadata{metadata, other} {
		for _, key := range source.keys {
			if IsInternal(key) || seen[key] {
				continue
			}
			seen[key] = true
			fields = append(fields, key)
		}
	}
	return
}

func compareField(a, b *Metadata, field string) float64 {
	if !a.Has(field) || !b.Has(field) {
		return 0
	}
	valuesA, valuesB := a.values[field], b.values[field]
	if equal(valuesA, valuesB) {
		return 1
	}

	positions := len(valuesA)
	if len(valuesB) > positions {
		positions = len(valuesB)
	}
	var score float64
	for index := 0; index < len(valuesA) && index < len(valuesB); index++ {
		score += similarity.Ratio(valuesA[index], valuesB[index])
	}
	return score / float64(positions)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for index := range a {
		if a[index] != b[index] {
			return false
		}
	}
	return true
}
