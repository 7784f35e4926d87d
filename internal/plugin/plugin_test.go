package plugin

import "testing"

type fakePlugin struct{ name string }

func (f fakePlugin) Name() string        { return f.name }
func (f fakePlugin) ValidKeys() []string { return []string{"key"} }
func (f fakePlugin) DefaultView() DefaultView {
	return DefaultView{DirTree: []string{"key"}, FnGen: "%{key}"}
}
func (f fakePlugin) IsValidMetadata(string, string) bool            { return true }
func (f fakePlugin) ReadMetadata(string) (map[string]string, error) { return nil, nil }
func (f fakePlugin) WriteMetadata(string, map[string]string) error  { return nil }

func TestRegistryGetAndNames(t *testing.T) {
	r := NewRegistry(fakePlugin{name: "audio"}, fakePlugin{name: "image"})

	p, err := r.Get("audio")
	if err != nil {
		t.Fatalf("Get(audio): %v", err)
	}
	if p.Name() != "audio" {
		t.Errorf("Name() = %q, want audio", p.Name())
	}

	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected error for unregistered plugin")
	}

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", names)
	}
}
