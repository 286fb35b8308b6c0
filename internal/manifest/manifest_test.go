package manifest

import (
	"testing"

	"github.com/robinei/darch/internal/config"
)

func sampleConfig() *config.Configuration {
	c := config.New()
	c.Name = "desktop"
	c.Hostname = "box"
	c.Timezone = "UTC"
	c.Locale = "en_US.UTF-8"
	c.Packages["base"] = struct{}{}
	c.Packages["git"] = struct{}{}
	c.Services["sshd"] = struct{}{}
	c.Files["/etc/motd"] = config.FileEntry{Content: "hi\n", Mode: 0644}
	c.Symlinks["/etc/localtime"] = "/usr/share/zoneinfo/UTC"
	uid := 1000
	c.User = &config.User{Name: "robin", Shell: "/bin/bash", Groups: []string{"wheel", "video"}, UID: &uid}
	c.InitramfsModules = []string{"btrfs", "vfat"}
	c.InitramfsHooks = []string{"base", "udev", "autodetect"}
	c.ExtraKernelArgs = "quiet splash"
	return c
}

func TestRoundTrip(t *testing.T) {
	c := sampleConfig()
	m := FromConfiguration(c)
	data, err := Serialize(m)
	if err != nil {
		t.Fatalf("serialize: %s", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	back := parsed.ToConfiguration()

	if back.Name != c.Name || back.Hostname != c.Hostname || back.Timezone != c.Timezone || back.Locale != c.Locale {
		t.Errorf("scalar fields did not round-trip: got %+v", back)
	}
	if len(back.Packages) != len(c.Packages) {
		t.Errorf("packages: want %d, got %d", len(c.Packages), len(back.Packages))
	}
	for p := range c.Packages {
		if _, ok := back.Packages[p]; !ok {
			t.Errorf("package %s missing after round-trip", p)
		}
	}
	if back.User == nil || back.User.Name != "robin" || *back.User.UID != 1000 {
		t.Errorf("user did not round-trip: %+v", back.User)
	}
	if len(back.InitramfsHooks) != 3 || back.InitramfsHooks[1] != "udev" {
		t.Errorf("initramfs hooks order not preserved: %v", back.InitramfsHooks)
	}
}

func TestRoundTripMinimalConfiguration(t *testing.T) {
	c := config.New()
	c.Packages["base"] = struct{}{}
	c.Hostname = "box"
	m := FromConfiguration(c)

	data, err := Serialize(m)
	if err != nil {
		t.Fatalf("serialize: %s", err)
	}
	if _, err := Parse(data); err != nil {
		t.Fatalf("a minimal configuration with no files/symlinks must still validate against the schema: %s", err)
	}
	if m.Files == nil || m.Symlinks == nil {
		t.Errorf("FromConfiguration must emit empty arrays, not null, for unset Files/Symlinks: files=%v symlinks=%v", m.Files, m.Symlinks)
	}
}

func TestFromConfigurationIsDeterministic(t *testing.T) {
	c := sampleConfig()
	a, err := Serialize(FromConfiguration(c))
	if err != nil {
		t.Fatalf("serialize a: %s", err)
	}
	b, err := Serialize(FromConfiguration(c))
	if err != nil {
		t.Fatalf("serialize b: %s", err)
	}
	if string(a) != string(b) {
		t.Errorf("two projections of the same configuration differ:\n%s\nvs\n%s", a, b)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	bad := []byte(`{"packages":[],"files":[],"symlinks":[],"services":[],"bogus_field":true}`)
	if _, err := Parse(bad); err == nil {
		t.Error("expected an error for an unknown top-level field, got nil")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Error("expected an error parsing non-JSON, got nil")
	}
}

func TestWriteAtomicThenReadPath(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.json"
	m := FromConfiguration(sampleConfig())
	if err := WriteAtomic(path, m); err != nil {
		t.Fatalf("WriteAtomic: %s", err)
	}
	got, err := ReadPath(path)
	if err != nil {
		t.Fatalf("ReadPath: %s", err)
	}
	if got == nil || got.Name != m.Name {
		t.Errorf("ReadPath returned %+v, want a manifest named %s", got, m.Name)
	}
}

func TestReadPathMissingIsNilNil(t *testing.T) {
	dir := t.TempDir()
	got, err := ReadPath(dir + "/does-not-exist.json")
	if err != nil || got != nil {
		t.Errorf("ReadPath of a missing file: want (nil, nil), got (%+v, %v)", got, err)
	}
}
