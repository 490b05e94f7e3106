package id3

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/streambinder/spotitag/entity"
)

const (
	frameTitle       = "TIT2"
	frameArtist      = "TPE1"
	frameAlbumArtist = "TPE2"
	frameAlbum       = "TALB"
	frameComposer    = "TCOM"
	frameGenre       = "TCON"
	frameDate        = "TDRC"
	frameYear        = "TYER"
	frameTrack       = "TRCK"
	frameDisc        = "TPOS"
	frameCompilation = "TCMP"
	frameISRC        = "TSRC"
	frameLength      = "TLEN"
	frameUserText    = "TXXX"
	framePicture     = "APIC"

	descriptionTrackID     = "Catalog Track Id"
	descriptionReleaseID   = "Catalog Release Id"
	descriptionFingerprint = "Acoustic Fingerprint"

	// multiple values are stored null-separated as per ID3v2.4
	valueSeparator = "\x00"
)

var (
	textFrames = map[string]string{
		entity.TagTitle:       frameTitle,
		entity.TagArtist:      frameArtist,
		entity.TagAlbumArtist: frameAlbumArtist,
		entity.TagAlbum:       frameAlbum,
		entity.TagComposer:    frameComposer,
		entity.TagGenre:       frameGenre,
		entity.TagDate:        frameDate,
		entity.TagCompilation: frameCompilation,
		entity.TagISRC:        frameISRC,
	}
	userTextFrames = map[string]string{
		entity.TagTrackID:     descriptionTrackID,
		entity.TagReleaseID:   descriptionReleaseID,
		entity.TagFingerprint: descriptionFingerprint,
	}
	numberFrames = map[string][2]string{
		frameTrack: {entity.TagTrackNumber, entity.TagTotalTracks},
		frameDisc:  {entity.TagDiscNumber, entity.TagTotalDiscs},
	}
)

// Codec reads and writes ID3v2 tags of mp3 files
type Codec struct{}

func New() *Codec {
	return &Codec{}
}

func (Codec) SupportsTag(name string) bool {
	if _, ok := textFrames[name]; ok {
		return true
	}
	if _, ok := userTextFrames[name]; ok {
		return true
	}
	for _, fields := range numberFrames {
		if fields[0] == name || fields[1] == name {
			return true
		}
	}
	return false
}

func (Codec) Load(path string) (*entity.Metadata, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, &entity.LoadError{Path: path, Err: err}
	}
	defer tag.Close()

	metadata := entity.NewMetadata()
	metadata.Set(entity.TagFormat, fmt.Sprintf("ID3v2.%d", tag.Version()))
	for _, field := range sortedKeys(textFrames) {
		if values := textValues(tag, textFrames[field]); len(values) > 0 {
			metadata.Set(field, values...)
		}
	}
	if !metadata.Has(entity.TagDate) {
		if values := textValues(tag, frameYear); len(values) > 0 {
			metadata.Set(entity.TagDate, values...)
		}
	}
	for _, frame := range []string{frameTrack, frameDisc} {
		values := textValues(tag, frame)
		if len(values) == 0 {
			continue
		}
		number, total, _ := strings.Cut(values[0], "/")
		if number = strings.TrimSpace(number); number != "" {
			metadata.Set(numberFrames[frame][0], number)
		}
		if total = strings.TrimSpace(total); total != "" {
			metadata.Set(numberFrames[frame][1], total)
		}
	}
	for _, framer := range tag.GetFrames(frameUserText) {
		frame, ok := framer.(id3v2.UserDefinedTextFrame)
		if !ok {
			continue
		}
		for field, description := range userTextFrames {
			if strings.EqualFold(frame.Description, description) {
				metadata.Set(field, frame.Value)
			}
		}
	}
	if values := textValues(tag, frameLength); len(values) > 0 {
		if length, err := strconv.Atoi(strings.TrimSpace(values[0])); err == nil && length > 0 {
			metadata.Set(entity.TagLength, strconv.Itoa(length))
		}
	}
	for _, framer := range tag.GetFrames(framePicture) {
		if frame, ok := framer.(id3v2.PictureFrame); ok && len(frame.Picture) > 0 {
			metadata.Images = append(metadata.Images, entity.Image{MIME: frame.MimeType, Data: frame.Picture})
		}
	}
	return metadata, nil
}

func (Codec) Save(path string, metadata *entity.Metadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	for field, frame := range textFrames {
		tag.DeleteFrames(frame)
		if values := metadata.GetAll(field); len(values) > 0 {
			tag.AddTextFrame(frame, id3v2.EncodingUTF8, strings.Join(values, valueSeparator))
		}
	}
	tag.DeleteFrames(frameYear)

	for frame, fields := range numberFrames {
		tag.DeleteFrames(frame)
		number, total := metadata.Get(fields[0], ""), metadata.Get(fields[1], "")
		switch {
		case number != "" && total != "":
			tag.AddTextFrame(frame, id3v2.EncodingUTF8, number+"/"+total)
		case number != "":
			tag.AddTextFrame(frame, id3v2.EncodingUTF8, number)
		}
	}

	userFrames := tag.GetFrames(frameUserText)
	tag.DeleteFrames(frameUserText)
	for _, framer := range userFrames {
		// keep foreign user frames untouched
		if frame, ok := framer.(id3v2.UserDefinedTextFrame); ok && !isOwnDescription(frame.Description) {
			tag.AddUserDefinedTextFrame(frame)
		}
	}
	for _, field := range sortedKeys(userTextFrames) {
		if value := metadata.Get(field, ""); value != "" {
			tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
				Encoding:    id3v2.EncodingUTF8,
				Description: userTextFrames[field],
				Value:       value,
			})
		}
	}

	if length := metadata.Int(entity.TagLength); length > 0 {
		tag.DeleteFrames(frameLength)
		tag.AddTextFrame(frameLength, id3v2.EncodingUTF8, strconv.Itoa(length))
	}

	if len(metadata.Images) > 0 {
		tag.DeleteFrames(framePicture)
		for index, image := range metadata.Images {
			pictureType := byte(id3v2.PTOther)
			if index == 0 {
				pictureType = id3v2.PTFrontCover
			}
			tag.AddAttachedPicture(id3v2.PictureFrame{
				Encoding:    id3v2.EncodingUTF8,
				MimeType:    image.MIME,
				PictureType: pictureType,
				Description: strconv.Itoa(index),
				Picture:     image.Data,
			})
		}
	}

	return tag.Save()
}

func textValues(tag *id3v2.Tag, frame string) (values []string) {
	text := tag.GetTextFrame(frame).Text
	for _, value := range strings.Split(text, valueSeparator) {
		if value = strings.TrimRight(value, "\x00"); value != "" {
			values = append(values, value)
		}
	}
	return
}

func isOwnDescription(description string) bool {
	for _, own := range userTextFrames {
		if strings.EqualFold(own, description) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
