package entity

// Query is what gets handed over to the lookup service:
// either an identifier derived from an acoustic fingerprint
// or the free-text fields of the local metadata
type Query struct {
	Fingerprint string
	Title       string
	Artist      string
	Album       string
	TrackNumber string
	TotalTracks string
	Duration    int // in milliseconds
}

// QueryFromMetadata builds a free-text query out of local tags
func QueryFromMetadata(metadata *Metadata) Query {
	return Query{
		Title:       metadata.Get(TagTitle, ""),
		Artist:      metadata.Get(TagArtist, ""),
		Album:       metadata.Get(TagAlbum, ""),
		TrackNumber: metadata.Get(TagTrackNumber, ""),
		TotalTracks: metadata.Get(TagTotalTracks, ""),
		Duration:    metadata.Int(TagLength),
	}
}

func (query Query) IsFingerprint() bool {
	return query.Fingerprint != ""
}

func (query Query) IsEmpty() bool {
	return query.Fingerprint == "" && query.Title == "" && query.Artist == "" && query.Album == ""
}
