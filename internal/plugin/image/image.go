// Package image implements the EXIF-based image metadata plugin of
// spec.md §4.2, grounded on the original implementation's exif.py (which
// wraps piexif). Reads go through github.com/rwcarlsen/goexif/exif; the
// virtual time fields (Year/Month/Day/Hour/Minute/Second, composed into
// the DateTime tag) and the Make/Model tags are patched directly, since no
// pure-Go EXIF writer exists in the retrieval pack (see DESIGN.md).
package image

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/cghanke/libfs/internal/fserr"
	"github.com/cghanke/libfs/internal/plugin"
)

// Name is the plugin name stored in a library's magic row.
const Name = "image"

// virtTimeKeys are the fields synthesised from the DateTime tag, mirroring
// VIRT_TIME_KEYS in the original implementation.
var virtTimeKeys = []string{"Year", "Month", "Day", "Hour", "Minute", "Second"}

var validKeys = append([]string{"Make", "Model", "DateTime"}, virtTimeKeys...)

var recognizedExt = map[string]bool{".jpg": true, ".jpeg": true}

// Plugin implements plugin.Plugin for EXIF-tagged images.
type Plugin struct{}

// New constructs the image plugin.
func New() plugin.Plugin { return Plugin{} }

func (Plugin) Name() string        { return Name }
func (Plugin) ValidKeys() []string { return append([]string(nil), validKeys...) }

func (Plugin) DefaultView() plugin.DefaultView {
	return plugin.DefaultView{
		DirTree: []string{"Make", "Model", "Year", "Month", "Day"},
		FnGen:   "%{Hour}:%{Minute}:%{Second}",
	}
}

// IsValidMetadata validates a single key/value pair the way the original
// implementation's exif.py did: the virtual time keys must parse as
// integers within their calendar range, Make/Model/DateTime accept any
// non-empty string. Used to validate a directory segment at mkdir/rename
// time and a leaf rename's parsed filename fields.
func (Plugin) IsValidMetadata(key, value string) bool {
	bound := func(lo, hi int) bool {
		n, err := strconv.Atoi(value)
		return err == nil && n >= lo && n <= hi
	}
	switch key {
	case "Year":
		return bound(0, 9999)
	case "Month":
		return bound(1, 12)
	case "Day":
		return bound(1, 31)
	case "Hour":
		return bound(0, 23)
	case "Minute", "Second":
		return bound(0, 59)
	default:
		return value != ""
	}
}

func (Plugin) ReadMetadata(srcPath string) (map[string]string, error) {
	ext := strings.ToLower(extOf(srcPath))
	if !recognizedExt[ext] {
		return nil, fserr.NewPluginError("read_metadata", fserr.ErrIO, fmt.Errorf("image: unrecognised extension %q", ext))
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return nil, fserr.NewPluginError("read_metadata", fserr.ErrIO, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, fserr.NewPluginError("read_metadata", fserr.ErrIO, err)
	}

	metadata := map[string]string{
		"Year": "1970", "Month": "1", "Day": "1",
		"Hour": "0", "Minute": "0", "Second": "0",
	}
	if make, err := x.Get(exif.Make); err == nil {
		if s, err := make.StringVal(); err == nil {
			metadata["Make"] = s
		}
	}
	if model, err := x.Get(exif.Model); err == nil {
		if s, err := model.StringVal(); err == nil {
			metadata["Model"] = s
		}
	}
	if dt, err := x.Get(exif.DateTime); err == nil {
		if s, err := dt.StringVal(); err == nil {
			metadata["DateTime"] = s
			if t, err := time.Parse("2006:01:02 15:04:05", s); err == nil {
				metadata["Year"] = strconv.Itoa(t.Year())
				metadata["Month"] = strconv.Itoa(int(t.Month()))
				metadata["Day"] = strconv.Itoa(t.Day())
				metadata["Hour"] = strconv.Itoa(t.Hour())
				metadata["Minute"] = strconv.Itoa(t.Minute())
				metadata["Second"] = strconv.Itoa(t.Second())
			}
		}
	}
	return metadata, nil
}

// WriteMetadata composes any of the virtual time keys present in values
// into the file's existing DateTime tag (defaulting unspecified fields to
// the values ReadMetadata reports for the file, or to the file's own mtime
// when ReadMetadata fails), and overwrites Make/Model when given, per
// spec.md §4.6's leaf-rename target-metadata overlay. The DateTime tag is
// only overwritten in place, never inserted: a file without one is
// rejected. A failure to patch Make or Model is returned as an error.
func (p Plugin) WriteMetadata(srcPath string, values map[string]string) error {
	current, err := p.ReadMetadata(srcPath)
	if err != nil {
		current = map[string]string{}
	}
	fallback := func(key string, def int) int {
		if v, ok := values[key]; ok {
			n, err := strconv.Atoi(v)
			if err == nil {
				return n
			}
		}
		if v, ok := current[key]; ok {
			n, err := strconv.Atoi(v)
			if err == nil {
				return n
			}
		}
		return def
	}

	st, statErr := os.Stat(srcPath)
	var fallbackTime time.Time
	if statErr == nil {
		fallbackTime = st.ModTime()
	}

	year := fallback("Year", fallbackTime.Year())
	month := fallback("Month", int(fallbackTime.Month()))
	day := fallback("Day", fallbackTime.Day())
	hour := fallback("Hour", fallbackTime.Hour())
	minute := fallback("Minute", fallbackTime.Minute())
	second := fallback("Second", fallbackTime.Second())

	newDateTime := fmt.Sprintf("%04d:%02d:%02d %02d:%02d:%02d", year, month, day, hour, minute, second)

	if err := patchDateTime(srcPath, newDateTime); err != nil {
		return fserr.NewPluginError("write_metadata", fserr.ErrIO, err)
	}

	for _, key := range []string{"Make", "Model"} {
		v, ok := values[key]
		if !ok {
			continue
		}
		if err := patchASCIITag(srcPath, key, v); err != nil {
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
