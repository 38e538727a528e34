// Package tagging reads display metadata out of downloaded audio
// files: Vorbis comments and embedded pictures from FLAC, ID3v2 frames
// from MP3. Used as a metadata fallback when the resolved item's
// fields are unknown, and as the source of embedded cover art.
package tagging

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	goflac "github.com/go-flac/go-flac"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"

	"github.com/cesargomez89/tidepool/internal/constants"
)

// Reader parses tags by file extension.
type Reader struct{}

func NewReader() *Reader { return &Reader{} }

// ReadTags returns title/artist/album from the file's metadata.
// Missing fields come back empty; an unsupported extension is an
// error.
func (r *Reader) ReadTags(path string) (title, artist, album string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case constants.ExtFLAC:
		return readFLACTags(path)
	case constants.ExtMP3:
		return readMP3Tags(path)
	default:
		return "", "", "", fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
}

// ExtractCover returns the embedded front-cover image bytes, or nil
// when the file has none.
func (r *Reader) ExtractCover(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case constants.ExtFLAC:
		return extractFLACCover(path)
	case constants.ExtMP3:
		return extractMP3Cover(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
}

func readFLACTags(path string) (title, artist, album string, err error) {
	file, err := goflac.ParseFile(path)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to parse FLAC file: %w", err)
	}
	for _, block := range file.Meta {
		if block.Type != goflac.VorbisComment {
			continue
		}
		comment, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		title = firstValue(comment, flacvorbis.FIELD_TITLE)
		artist = firstValue(comment, flacvorbis.FIELD_ARTIST)
		album = firstValue(comment, flacvorbis.FIELD_ALBUM)
		return title, artist, album, nil
	}
	return "", "", "", nil
}

func firstValue(comment *flacvorbis.MetaDataBlockVorbisComment, field string) string {
	values, err := comment.Get(field)
	if err != nil || len(values) == 0 {
		return ""
	}
	return values[0]
}

func extractFLACCover(path string) ([]byte, error) {
	file, err := goflac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FLAC file: %w", err)
	}
	var fallback []byte
	for _, block := range file.Meta {
		if block.Type != goflac.Picture {
			continue
		}
		picture, err := flacpicture.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		if picture.PictureType == flacpicture.PictureTypeFrontCover {
			return picture.ImageData, nil
		}
		if fallback == nil {
			fallback = picture.ImageData
		}
	}
	return fallback, nil
}

func readMP3Tags(path string) (title, artist, album string, err error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return "", "", "", fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()
	return tag.Title(), tag.Artist(), tag.Album(), nil
}

func extractMP3Cover(path string) ([]byte, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	var fallback []byte
	for _, frame := range tag.GetFrames(tag.CommonID("Attached picture")) {
		picture, ok := frame.(id3v2.PictureFrame)
		if !ok {
			continue
		}
		if picture.PictureType == id3v2.PTFrontCover {
			return picture.Picture, nil
		}
		if fallback == nil {
			fallback = picture.Picture
		}
	}
	return fallback, nil
}
