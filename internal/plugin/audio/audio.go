// Package audio implements the tag-based audio metadata plugin of
// spec.md §4.2, grounded on the original implementation's id3.py (which
// wraps mutagen's EasyID3). Reads go through github.com/dhowden/tag,
// which understands ID3v1/v2, MP4 and FLAC tags; writes are restricted to
// ID3v2 text frames, patched directly, since no pure-Go ID3 writer exists
// in the retrieval pack (see DESIGN.md).
package audio

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/cghanke/libfs/internal/fserr"
	"github.com/cghanke/libfs/internal/plugin"
)

// Name is the plugin name stored in a library's magic row.
const Name = "audio"

// validKeys are the catalog columns this plugin reads and, where an ID3v2
// frame mapping exists, writes. Ordered the way EasyID3's sorted
// valid_keys list was in the original implementation.
var validKeys = []string{
	"album",
	"albumartist",
	"artist",
	"composer",
	"date",
	"discnumber",
	"genre",
	"title",
	"tracknumber",
}

// frameIDs maps a catalog key to its ID3v2.3 text frame. "date" is
// special-cased in patchID3TextFrame because its frame ID depends on the
// tag's version (TYER under 2.3, TDRC under 2.4).
var frameIDs = map[string]string{
	"album":       "TALB",
	"albumartist": "TPE2",
	"artist":      "TPE1",
	"composer":    "TCOM",
	"discnumber":  "TPOS",
	"genre":       "TCON",
	"title":       "TIT2",
	"tracknumber": "TRCK",
}

var recognizedExt = map[string]bool{
	".mp3": true, ".m4a": true, ".flac": true, ".ogg": true, ".mp4": true,
}

// Plugin implements plugin.Plugin for tag-based audio files.
type Plugin struct{}

// New constructs the audio plugin.
func New() plugin.Plugin { return Plugin{} }

func (Plugin) Name() string        { return Name }
func (Plugin) ValidKeys() []string { return append([]string(nil), validKeys...) }

func (Plugin) DefaultView() plugin.DefaultView {
	return plugin.DefaultView{
		DirTree: []string{"genre", "artist", "date", "album"},
		FnGen:   "%{tracknumber} -- %{title}",
	}
}

// IsValidMetadata validates a single key/value pair the way the original
// implementation's is_valid_metadata did: tracknumber and discnumber must
// parse as non-negative integers, every other key accepts any non-empty
// string. Used to validate a directory segment at mkdir/rename time and a
// leaf rename's parsed filename fields.
func (Plugin) IsValidMetadata(key, value string) bool {
	switch key {
	case "tracknumber", "discnumber":
		n, err := strconv.Atoi(value)
		return err == nil && n >= 0
	default:
		return value != ""
	}
}

func (Plugin) ReadMetadata(srcPath string) (map[string]string, error) {
	ext := strings.ToLower(extOf(srcPath))
	if !recognizedExt[ext] {
		return nil, fserr.NewPluginError("read_metadata", fserr.ErrIO, fmt.Errorf("audio: unrecognised extension %q", ext))
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return nil, fserr.NewPluginError("read_metadata", fserr.ErrIO, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fserr.NewPluginError("read_metadata", fserr.ErrIO, err)
	}

	metadata := map[string]string{
		"album":       m.Album(),
		"albumartist": m.AlbumArtist(),
		"artist":      m.Artist(),
		"composer":    m.Composer(),
		"genre":       m.Genre(),
		"title":       m.Title(),
	}
	if m.Year() != 0 {
		metadata["date"] = strconv.Itoa(m.Year())
	}
	if track, _ := m.Track(); track != 0 {
		metadata["tracknumber"] = strconv.Itoa(track)
	}
	if disc, _ := m.Disc(); disc != 0 {
		metadata["discnumber"] = strconv.Itoa(disc)
	}
	return metadata, nil
}

func (Plugin) WriteMetadata(srcPath string, values map[string]string) error {
	for key, value := range values {
		frameID, ok := frameIDs[key]
		if key == "date" {
			ok = true
		}
		if !ok {
			return fserr.NewPluginError("write_metadata", fserr.ErrInval, fmt.Errorf("audio: key %q has no writable ID3v2 frame", key))
		}
		if err := patchID3TextFrame(srcPath, key, frameID, value); err != nil {
			return fserr.NewPluginError("write_metadata", fserr.ErrIO, err)
		}
	}
	return nil
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}
