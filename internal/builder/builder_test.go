package builder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robinei/darch/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %s", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %s", path, err)
	}
}

func TestApplyUserEditsPasswdFamilyDirectly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "etc/passwd"), "root:x:0:0::/root:/bin/bash\n")
	writeFile(t, filepath.Join(root, "etc/shadow"), "root:!:19000:0:99999:7:::\n")
	writeFile(t, filepath.Join(root, "etc/group"), "root:x:0:\nwheel:x:10:\nvideo:x:27:\n")
	writeFile(t, filepath.Join(root, "etc/gshadow"), "root:!::\nwheel:!::\nvideo:!::\n")

	uid := 1000
	u := &config.User{Name: "robin", Shell: "/bin/zsh", Groups: []string{"wheel", "video"}, UID: &uid, PasswordHash: "$6$abc"}

	if err := applyUser(root, u); err != nil {
		t.Fatalf("applyUser: %s", err)
	}

	passwd, _ := os.ReadFile(filepath.Join(root, "etc/passwd"))
	if !strings.Contains(string(passwd), "robin:x:1000:1000::/home/robin:/bin/zsh") {
		t.Errorf("passwd missing expected entry:\n%s", passwd)
	}
	if !strings.Contains(string(passwd), "root:x:0:0") {
		t.Errorf("passwd lost the preexisting root entry:\n%s", passwd)
	}

	shadow, _ := os.ReadFile(filepath.Join(root, "etc/shadow"))
	if !strings.Contains(string(shadow), "robin:$6$abc:") {
		t.Errorf("shadow missing expected hash:\n%s", shadow)
	}

	group, _ := os.ReadFile(filepath.Join(root, "etc/group"))
	if !strings.Contains(string(group), "wheel:x:10:robin") {
		t.Errorf("robin not added to wheel's member list:\n%s", group)
	}
	if !strings.Contains(string(group), "video:x:27:robin") {
		t.Errorf("robin not added to video's member list:\n%s", group)
	}
	if !strings.Contains(string(group), "robin:x:1000:") {
		t.Errorf("robin's own private group missing:\n%s", group)
	}

	home := filepath.Join(root, "home/robin")
	fi, err := os.Stat(home)
	if err != nil || !fi.IsDir() {
		t.Errorf("home directory not created: %v", err)
	}
}

func TestApplyUserIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "etc/passwd"), "root:x:0:0::/root:/bin/bash\n")
	writeFile(t, filepath.Join(root, "etc/shadow"), "root:!:19000:0:99999:7:::\n")
	writeFile(t, filepath.Join(root, "etc/group"), "root:x:0:\nwheel:x:10:\n")
	writeFile(t, filepath.Join(root, "etc/gshadow"), "root:!::\nwheel:!::\n")

	u := &config.User{Name: "robin", Groups: []string{"wheel"}}
	if err := applyUser(root, u); err != nil {
		t.Fatalf("first applyUser: %s", err)
	}
	if err := applyUser(root, u); err != nil {
		t.Fatalf("second applyUser: %s", err)
	}

	passwd, _ := os.ReadFile(filepath.Join(root, "etc/passwd"))
	if strings.Count(string(passwd), "robin:x:") != 1 {
		t.Errorf("applying the same user twice should leave exactly one passwd line, got:\n%s", passwd)
	}
	group, _ := os.ReadFile(filepath.Join(root, "etc/group"))
	if strings.Count(string(group), "wheel:x:10:robin") != 1 {
		t.Errorf("robin should appear exactly once in wheel's member list, got:\n%s", group)
	}
}

func TestPersistUserFilesRelocatesAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "etc/passwd"), "root:x:0:0::/root:/bin/bash\n")
	writeFile(t, filepath.Join(root, "etc/shadow"), "root:!:19000:0:99999:7:::\n")
	writeFile(t, filepath.Join(root, "etc/group"), "root:x:0:\n")
	writeFile(t, filepath.Join(root, "etc/gshadow"), "root:!::\n")

	if err := persistUserFiles(root); err != nil {
		t.Fatalf("persistUserFiles: %s", err)
	}

	for _, name := range []string{"passwd", "shadow", "group", "gshadow"} {
		link := filepath.Join(root, "etc", name)
		fi, err := os.Lstat(link)
		if err != nil {
			t.Fatalf("Lstat %s: %s", link, err)
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			t.Errorf("%s should be a symlink after relocation", link)
		}
		target := filepath.Join(root, "var/lib/users", name)
		if _, err := os.Stat(target); err != nil {
			t.Errorf("relocated file %s missing: %s", target, err)
		}
	}

	// A second run must be a no-op, not an error (e.g. trying to read
	// through the now-dangling symlink as if it were still a regular file).
	if err := persistUserFiles(root); err != nil {
		t.Fatalf("second persistUserFiles should be a no-op, got: %s", err)
	}
}

func TestApplyFilesWritesContentAndMode(t *testing.T) {
	root := t.TempDir()
	files := map[string]config.FileEntry{
		"/etc/motd":         {Content: "hello\n", Mode: 0644},
		"/usr/local/bin/run": {Content: "#!/bin/sh\necho hi\n", Mode: 0755},
	}
	keys := sortedFileKeys(files)
	if err := applyFiles(root, keys, files); err != nil {
		t.Fatalf("applyFiles: %s", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "etc/motd"))
	if err != nil || string(data) != "hello\n" {
		t.Errorf("motd content wrong: %q, err=%v", data, err)
	}
	fi, err := os.Stat(filepath.Join(root, "usr/local/bin/run"))
	if err != nil {
		t.Fatalf("stat run: %s", err)
	}
	if fi.Mode().Perm() != 0755 {
		t.Errorf("run script mode = %o, want 0755", fi.Mode().Perm())
	}
}

func TestApplyFilesReplacesStaleSymlink(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc"), 0755); err != nil {
		t.Fatalf("mkdir: %s", err)
	}
	if err := os.Symlink("/nonexistent", filepath.Join(root, "etc/motd")); err != nil {
		t.Fatalf("symlink: %s", err)
	}
	files := map[string]config.FileEntry{"/etc/motd": {Content: "replaced\n"}}
	if err := applyFiles(root, []string{"/etc/motd"}, files); err != nil {
		t.Fatalf("applyFiles: %s", err)
	}
	fi, err := os.Lstat(filepath.Join(root, "etc/motd"))
	if err != nil {
		t.Fatalf("lstat: %s", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		t.Error("stale symlink at the target path should have been replaced by a regular file")
	}
}

func TestApplySymlinksOverwritesExisting(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc"), 0755); err != nil {
		t.Fatalf("mkdir: %s", err)
	}
	if err := os.Symlink("/old/target", filepath.Join(root, "etc/localtime")); err != nil {
		t.Fatalf("symlink: %s", err)
	}
	symlinks := map[string]string{"/etc/localtime": "/usr/share/zoneinfo/UTC"}
	if err := applySymlinks(root, []string{"/etc/localtime"}, symlinks); err != nil {
		t.Fatalf("applySymlinks: %s", err)
	}
	target, err := os.Readlink(filepath.Join(root, "etc/localtime"))
	if err != nil {
		t.Fatalf("readlink: %s", err)
	}
	if target != "/usr/share/zoneinfo/UTC" {
		t.Errorf("symlink target = %s, want /usr/share/zoneinfo/UTC", target)
	}
}
