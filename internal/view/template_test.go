package view

import (
	"testing"

	"github.com/cghanke/libfs/internal/fserr"
)

func TestCompileRejectsTemplateWithoutPlaceholders(t *testing.T) {
	if _, err := Compile("no placeholders here"); err == nil {
		t.Fatal("expected error for template with no %{key}")
	}
}

func TestFormatAndParseRoundtrip(t *testing.T) {
	tmpl, err := Compile("%{tracknumber} -- %{title}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	name := tmpl.Format(map[string]string{"tracknumber": "1", "title": "Track A"})
	if name != "1 -- Track A" {
		t.Fatalf("Format = %q, want %q", name, "1 -- Track A")
	}

	values, err := tmpl.Parse(name)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if values["tracknumber"] != "1" || values["title"] != "Track A" {
		t.Errorf("Parse = %v", values)
	}
}

func TestParseRejectsNonMatchWithEinval(t *testing.T) {
	tmpl, err := Compile("%{tracknumber} -- %{title}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, err = tmpl.Parse("not in the right shape")
	if err == nil {
		t.Fatal("expected error for non-matching filename")
	}
	if fserr.ToErrno(err) != fserr.ErrInval {
		t.Errorf("errno = %v, want EINVAL", fserr.ToErrno(err))
	}
}

func TestTemplateWithLiteralRegexMetacharacters(t *testing.T) {
	tmpl, err := Compile("%{hour}:%{minute}:%{second}.jpeg")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	name := tmpl.Format(map[string]string{"hour": "10", "minute": "52", "second": "2"})
	if name != "10:52:2.jpeg" {
		t.Fatalf("Format = %q", name)
	}
	values, err := tmpl.Parse(name)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if values["hour"] != "10" || values["minute"] != "52" || values["second"] != "2" {
		t.Errorf("Parse = %v", values)
	}
}

func TestParseRejectsFileWithWrongExtension(t *testing.T) {
	tmpl, err := Compile("%{hour}:%{minute}:%{second}.jpeg")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := tmpl.Parse("10:52:2.png"); err == nil {
		t.Fatal("expected error for wrong extension")
	}
}
