package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// buildID3v23 constructs a minimal ID3v2.3 tag containing the given text
// frames, followed by a few bytes of fake audio payload.
func buildID3v23(t *testing.T, frames map[string]string) []byte {
	t.Helper()
	var frameBuf bytes.Buffer
	for id, value := range frames {
		body := append([]byte{0}, []byte(value)...)
		frameBuf.WriteString(id)
		frameBuf.Write(encodeFrameSize(3, len(body)))
		frameBuf.Write([]byte{0, 0})
		frameBuf.Write(body)
	}

	header := []byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 0}
	copy(header[6:10], encodeSynchsafe(frameBuf.Len()))

	var out bytes.Buffer
	out.Write(header)
	out.Write(frameBuf.Bytes())
	out.Write([]byte("FAKEAUDIOPAYLOAD"))
	return out.Bytes()
}

func TestPatchID3TextFrameReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	data := buildID3v23(t, map[string]string{"TIT2": "Old Title", "TPE1": "Some Artist"})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := patchID3TextFrame(path, "title", "TIT2", "New Title"); err != nil {
		t.Fatalf("patchID3TextFrame: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Contains(out, []byte("New Title")) {
		t.Errorf("patched file does not contain new title: %q", out)
	}
	if !bytes.Contains(out, []byte("Some Artist")) {
		t.Errorf("patched file lost unrelated frame: %q", out)
	}
	if !bytes.HasSuffix(out, []byte("FAKEAUDIOPAYLOAD")) {
		t.Errorf("patched file lost trailing audio payload")
	}
	if bytes.Contains(out, []byte("Old Title")) {
		t.Errorf("patched file still contains old title")
	}
}

func TestPatchID3TextFrameInsertsMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	data := buildID3v23(t, map[string]string{"TIT2": "Title Only"})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := patchID3TextFrame(path, "album", "TALB", "New Album"); err != nil {
		t.Fatalf("patchID3TextFrame: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Contains(out, []byte("New Album")) {
		t.Errorf("patched file missing inserted album frame: %q", out)
	}
	if !bytes.Contains(out, []byte("Title Only")) {
		t.Errorf("patched file lost original title frame")
	}
}

func TestPatchID3TextFrameRejectsNonID3File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, []byte("not an id3 file"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := patchID3TextFrame(path, "title", "TIT2", "x"); err == nil {
		t.Fatal("expected error for file without an ID3v2 tag")
	}
}

func TestDefaultViewAndValidKeys(t *testing.T) {
	p := New()
	if p.Name() != "audio" {
		t.Errorf("Name() = %q, want audio", p.Name())
	}
	dv := p.DefaultView()
	if len(dv.DirTree) != 4 || dv.DirTree[0] != "genre" {
		t.Errorf("DefaultView.DirTree = %v", dv.DirTree)
	}
	found := false
	for _, k := range p.ValidKeys() {
		if k == "tracknumber" {
			found = true
		}
	}
	if !found {
		t.Error("ValidKeys() missing tracknumber")
	}
}

func TestReadMetadataRejectsUnknownExtension(t *testing.T) {
	p := New()
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := p.ReadMetadata(path); err == nil {
		t.Error("ReadMetadata should reject .txt files")
	}
}

func TestIsValidMetadataValidatesTrackNumber(t *testing.T) {
	p := New()
	if !p.IsValidMetadata("tracknumber", "3") {
		t.Error("expected tracknumber=3 to be valid")
	}
	if p.IsValidMetadata("tracknumber", "not-a-number") {
		t.Error("expected non-numeric tracknumber to be invalid")
	}
	if !p.IsValidMetadata("artist", "Rush") {
		t.Error("expected any non-empty artist to be valid")
	}
	if p.IsValidMetadata("artist", "") {
		t.Error("expected empty artist to be invalid")
	}
}
