// Package builder is the Builder: the component that actually produces a
// new generation, in either of two modes.
//
// Fresh build: allocate a number, create an empty subvolume, pacstrap a
// base system into it, configure identity, apply declared files/symlinks,
// and finish with an atomic config.json write.
//
// Incremental build: snapshot the current complete generation, strip its
// inherited completion marker, apply only the Diff Engine's delta, and
// finish the same way.
//
// Grounded step-for-step on original_source/darch.py's build_generation and
// build_incremental, and on original_source/build_image2.py for the
// identity-configuration chroot sequence (hwclock, locale-gen,
// mkinitcpio, boot loader install; no password policy step). The scoped-mount and
// chroot-prepare calls are gprovision-style resource acquisition via
// internal/fsorch.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/robinei/darch/internal/config"
	"github.com/robinei/darch/internal/diff"
	"github.com/robinei/darch/internal/fsorch"
	"github.com/robinei/darch/internal/logging"
	"github.com/robinei/darch/internal/manifest"
	"github.com/robinei/darch/internal/runner"
	"github.com/robinei/darch/internal/subvol"
)

// BasePackages are bootstrapped into every fresh build, in the same sorted
// pacstrap invocation as the declared configuration's own packages,
// mirroring darch.py's fixed base_packages list.
var BasePackages = []string{"base", "linux", "linux-firmware", "btrfs-progs", "grub", "efibootmgr"}

// Options configures one build invocation.
type Options struct {
	// Images is the directory holding all gen-N subvolumes.
	Images string
	// BtrfsDevice is the underlying block device holding the @images,
	// @var and @home subvolumes.
	BtrfsDevice string
	// VarSubvolName is the btrfs subvolume name holding persistent state,
	// mounted at <root>/var for the duration of every build. Defaults to
	// "@var".
	VarSubvolName string
	// PackageCacheDir is the host's pacman package cache, shared into
	// every build root to avoid re-downloading packages already fetched.
	PackageCacheDir string
}

func (o Options) varSubvolName() string {
	if o.VarSubvolName == "" {
		return "@var"
	}
	return o.VarSubvolName
}

// Builder runs fresh and incremental builds against one images directory.
type Builder struct {
	opts Options
	subv *subvol.Manager
}

func New(opts Options) *Builder {
	return &Builder{opts: opts, subv: subvol.New(opts.Images)}
}

// Result describes a completed build. A nil Result with a nil error means
// the configuration was already up to date and nothing was built.
type Result struct {
	Number   int
	Manifest *manifest.Manifest
	Mode     string // "fresh" or "incremental"
}

// Build dispatches to Fresh or Incremental depending on whether a complete
// predecessor generation exists, matching the Top-Level Driver's rule in
// SPEC_FULL.md §4.10. upgrade mirrors darch.py's ApplyOptions.upgrade: when
// set, a build still proceeds even with an empty diff, provided
// package-manager upgrades are available against the predecessor. rebuild
// mirrors the apply operation's --rebuild flag: it forces a Fresh build
// even when a complete predecessor exists, bypassing Incremental entirely.
func (b *Builder) Build(ctx context.Context, cfg *config.Configuration, upgrade, rebuild bool) (*Result, error) {
	gens, err := b.subv.List()
	if err != nil {
		return nil, err
	}
	prev, ok := subvol.Current(gens)
	if !ok || rebuild {
		return b.Fresh(ctx, cfg)
	}

	d := diff.Compute(prev.Manifest, cfg)
	if !d.HasChanges() {
		if !upgrade || !upgradesAvailable(ctx, prev) {
			logging.Msg("already up to date")
			return nil, nil
		}
	}
	return b.Incremental(ctx, prev, cfg, upgrade)
}

// upgradesAvailable chroot-runs checkupdates against the predecessor
// generation; any output line means at least one package has a pending
// upgrade. A non-zero exit (checkupdates' own convention for "nothing to
// do") is not treated as an error here.
func upgradesAvailable(ctx context.Context, prev subvol.Generation) bool {
	out, _ := runner.ChrootRun(ctx, prev.Path, "checkupdates")
	return len(splitNonEmptyLines(out)) > 0
}

// Fresh performs steps 1-12 of SPEC_FULL.md §4.8's fresh-build sequence.
func (b *Builder) Fresh(ctx context.Context, cfg *config.Configuration) (res *Result, err error) {
	n, err := b.subv.NextNumber()
	if err != nil {
		return nil, err
	}
	logging.Logf("builder: starting fresh build of gen-%d", n)

	if err := b.subv.Create(ctx, n); err != nil {
		return nil, err
	}
	root := b.subv.Path(n)

	// On any failure before the final config.json write, gen-N is left
	// incomplete on purpose: the next GC run reaps it.
	defer func() {
		if err != nil {
			logging.Logf("builder: fresh build of gen-%d failed, leaving it for GC: %s", n, err)
		}
	}()

	scope := fsorch.NewScope(ctx)
	defer func() {
		scope.Close()
		for _, w := range scope.Warnings() {
			logging.Logf("builder: %s", w.Error())
		}
	}()

	// The package-cache bind is scoped tightly around pacstrap alone and
	// released before root/var is removed below: it bind-mounts the host's
	// cache onto root/var/cache/pacman/pkg, and an os.RemoveAll of root/var
	// while that bind is still live would recurse through the mountpoint
	// and delete the host's cached packages. Mirrors darch.py's
	// build_generation, which holds the cache bind only for the duration
	// of its pacstrap call and releases it before shutil.rmtree(var_in_gen).
	cacheScope := fsorch.NewScope(ctx)
	if err := cacheScope.BindMount(b.opts.PackageCacheDir, filepath.Join(root, "var/cache/pacman/pkg")); err != nil {
		return nil, err
	}
	packages := append([]string(nil), BasePackages...)
	packages = append(packages, sortedKeys(cfg.Packages)...)
	sort.Strings(packages)
	pacstrapErr := pacstrap(ctx, root, packages)
	cacheScope.Close()
	for _, w := range cacheScope.Warnings() {
		logging.Logf("builder: %s", w.Error())
	}
	if pacstrapErr != nil {
		return nil, pacstrapErr
	}

	if err := relocatePacmanState(root); err != nil {
		return nil, err
	}

	if err := os.Symlink(".", filepath.Join(root, "current")); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("builder: creating current self-symlink: %w", err)
	}

	if err := os.RemoveAll(filepath.Join(root, "var")); err != nil {
		return nil, fmt.Errorf("builder: removing bootstrap var: %w", err)
	}
	if err := scope.Mount(b.opts.BtrfsDevice, filepath.Join(root, "var"), "btrfs", "subvol="+b.opts.varSubvolName()); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(root, "var/lib"), 0755); err != nil {
		return nil, fmt.Errorf("builder: mkdir var/lib: %w", err)
	}
	if err := os.Symlink("../../../current/pacman", filepath.Join(root, "var/lib/pacman")); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("builder: creating var/lib/pacman symlink: %w", err)
	}

	if err := scope.ChrootPrepare(root); err != nil {
		return nil, err
	}
	if err := configureIdentity(ctx, root, cfg, true); err != nil {
		return nil, err
	}
	if err := persistUserFiles(root); err != nil {
		return nil, err
	}

	if err := applyFiles(root, sortedFileKeys(cfg.Files), cfg.Files); err != nil {
		return nil, err
	}
	if err := applySymlinks(root, sortedKeysFromStringMap(cfg.Symlinks), cfg.Symlinks); err != nil {
		return nil, err
	}
	if err := applyServices(ctx, root, sortedKeys(cfg.Services), nil); err != nil {
		return nil, err
	}
	if cfg.User != nil {
		if err := applyUser(root, cfg.User); err != nil {
			return nil, err
		}
	}

	man := manifest.FromConfiguration(cfg)
	if err := manifest.WriteAtomic(filepath.Join(root, "config.json"), man); err != nil {
		return nil, err
	}
	logging.Msgf("built gen-%d (fresh)", n)
	return &Result{Number: n, Manifest: man, Mode: "fresh"}, nil
}

// Incremental performs steps 1-9 of SPEC_FULL.md §4.8's incremental-build
// sequence, snapshotting prev and applying only the Diff Engine's delta.
func (b *Builder) Incremental(ctx context.Context, prev subvol.Generation, cfg *config.Configuration, upgrade bool) (res *Result, err error) {
	n, err := b.subv.NextNumber()
	if err != nil {
		return nil, err
	}
	logging.Logf("builder: starting incremental build of gen-%d from gen-%d", n, prev.Number)

	if err := b.subv.Snapshot(ctx, prev.Number, n); err != nil {
		return nil, err
	}
	root := b.subv.Path(n)

	defer func() {
		if err != nil {
			logging.Logf("builder: incremental build of gen-%d failed, leaving it for GC: %s", n, err)
		}
	}()

	// Strip the inherited completion marker immediately: from this point
	// a crash yields an incomplete generation, as intended.
	cfgPath := filepath.Join(root, "config.json")
	if err := os.Rename(cfgPath, cfgPath+".prev"); err != nil {
		return nil, fmt.Errorf("builder: demoting inherited config.json: %w", err)
	}

	d := diff.Compute(prev.Manifest, cfg)

	scope := fsorch.NewScope(ctx)
	defer func() {
		scope.Close()
		for _, w := range scope.Warnings() {
			logging.Logf("builder: %s", w.Error())
		}
	}()
	if err := scope.Mount(b.opts.BtrfsDevice, filepath.Join(root, "var"), "btrfs", "subvol="+b.opts.varSubvolName()); err != nil {
		return nil, err
	}
	if err := scope.BindMount(b.opts.PackageCacheDir, filepath.Join(root, "var/cache/pacman/pkg")); err != nil {
		return nil, err
	}
	if err := scope.ChrootPrepare(root); err != nil {
		return nil, err
	}

	for _, p := range d.SymlinksToDelete {
		_ = os.Remove(filepath.Join(root, p))
	}
	for _, p := range d.FilesToDelete {
		_ = os.Remove(filepath.Join(root, p))
	}

	if len(d.PackagesToRemove) > 0 {
		if err := pacmanRemove(ctx, root, d.PackagesToRemove); err != nil {
			return nil, err
		}
	}
	if len(d.PackagesToAdd) > 0 {
		if err := pacmanInstall(ctx, root, d.PackagesToAdd); err != nil {
			return nil, err
		}
	}
	if upgrade {
		if _, err := runner.ChrootRun(ctx, root, "pacman", "--noconfirm", "-Syu"); err != nil {
			return nil, fmt.Errorf("builder: pacman -Syu: %w", err)
		}
	}

	if d.IdentityChanged {
		if err := configureIdentity(ctx, root, cfg, false); err != nil {
			return nil, err
		}
	}

	writeKeys := sortedFileKeys(d.FilesToWrite)
	if err := applyFiles(root, writeKeys, d.FilesToWrite); err != nil {
		return nil, err
	}
	createKeys := sortedKeysFromStringMap(d.SymlinksToCreate)
	if err := applySymlinks(root, createKeys, d.SymlinksToCreate); err != nil {
		return nil, err
	}
	if err := applyServices(ctx, root, d.ServicesToEnable, d.ServicesToDisable); err != nil {
		return nil, err
	}
	if cfg.User != nil {
		if err := applyUser(root, cfg.User); err != nil {
			return nil, err
		}
	}

	if d.NeedsInitramfs {
		if _, err := runner.ChrootRun(ctx, root, "mkinitcpio", "-P"); err != nil {
			return nil, err
		}
	}

	if err := os.Remove(cfgPath + ".prev"); err != nil {
		return nil, fmt.Errorf("builder: removing config.json.prev: %w", err)
	}

	man := manifest.FromConfiguration(cfg)
	if err := manifest.WriteAtomic(cfgPath, man); err != nil {
		return nil, err
	}
	logging.Msgf("built gen-%d (incremental from gen-%d)", n, prev.Number)
	return &Result{Number: n, Manifest: man, Mode: "incremental"}, nil
}

func pacstrap(ctx context.Context, root string, packages []string) error {
	argv := append([]string{"pacstrap", "-c", root}, packages...)
	_, err := runner.Run(ctx, argv, runner.Options{Check: true, Capture: true})
	if err != nil {
		return fmt.Errorf("builder: pacstrap: %w", err)
	}
	return nil
}

func pacmanInstall(ctx context.Context, root string, packages []string) error {
	argv := append([]string{"pacman", "--root", root, "--noconfirm", "-S"}, packages...)
	_, err := runner.Run(ctx, argv, runner.Options{Check: true, Capture: true})
	if err != nil {
		return fmt.Errorf("builder: pacman -S: %w", err)
	}
	return nil
}

// pacmanRemove uses cascading-orphan removal in one invocation; a package
// manager refusal (remaining dependents) fails the build, per policy.
func pacmanRemove(ctx context.Context, root string, packages []string) error {
	argv := append([]string{"pacman", "--root", root, "--noconfirm", "-Rns"}, packages...)
	_, err := runner.Run(ctx, argv, runner.Options{Check: true, Capture: true})
	if err != nil {
		return fmt.Errorf("builder: pacman -Rns: %w", err)
	}
	return nil
}

func relocatePacmanState(root string) error {
	src := filepath.Join(root, "var/lib/pacman")
	dst := filepath.Join(root, "pacman")
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("builder: relocating pacman state: %w", err)
	}
	return nil
}

// configureIdentity runs the chroot identity-configuration sequence:
// hwclock, locale-gen, hostname/timezone/locale files, mkinitcpio, and
// (fresh builds only) boot loader installation. It sets no password
// policy.
func configureIdentity(ctx context.Context, root string, cfg *config.Configuration, installBootloader bool) error {
	if cfg.Timezone != "" {
		target := filepath.Join("/usr/share/zoneinfo", cfg.Timezone)
		if err := os.Symlink(target, filepath.Join(root, "etc/localtime")); err != nil && !os.IsExist(err) {
			return fmt.Errorf("builder: linking localtime: %w", err)
		}
		if _, err := runner.ChrootRun(ctx, root, "hwclock", "--systohc"); err != nil {
			return err
		}
	}
	if cfg.Locale != "" {
		if err := appendLine(filepath.Join(root, "etc/locale.gen"), cfg.Locale+" UTF-8"); err != nil {
			return err
		}
		if _, err := runner.ChrootRun(ctx, root, "locale-gen"); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(root, "etc/locale.conf"), []byte("LANG="+cfg.Locale+"\n"), 0644); err != nil {
			return fmt.Errorf("builder: writing locale.conf: %w", err)
		}
	}
	if cfg.Hostname != "" {
		if err := os.WriteFile(filepath.Join(root, "etc/hostname"), []byte(cfg.Hostname+"\n"), 0644); err != nil {
			return fmt.Errorf("builder: writing hostname: %w", err)
		}
	}
	if _, err := runner.ChrootRun(ctx, root, "mkinitcpio", "-P"); err != nil {
		return err
	}
	if installBootloader {
		if _, err := runner.ChrootRun(ctx, root, "grub-install", "--target=x86_64-efi", "--efi-directory=/efi", "--bootloader-id=darch", "--removable"); err != nil {
			return err
		}
	}
	return nil
}

const defaultUID = 1000

// applyUser declares the single persisted user by editing /etc/passwd,
// /etc/shadow, /etc/group and /etc/gshadow directly, rather than shelling
// out to useradd: it drops any prior entry for the same name, appends a
// fresh one, and adds the user to its supplementary groups. Grounded on
// original_source/darch.py's configure_user, which does exactly this so
// the result is identical whether the user already existed (after
// persistUserFiles has symlinked these paths into @var) or is brand new.
func applyUser(root string, u *config.User) error {
	// Once persistUserFiles has run these are absolute symlinks into
	// /var/lib/users; resolve them inside root rather than on the host.
	etcFile := func(name string) string {
		p := filepath.Join(root, "etc", name)
		if target, err := os.Readlink(p); err == nil && filepath.IsAbs(target) {
			return filepath.Join(root, target)
		}
		return p
	}

	uid := defaultUID
	if u.UID != nil {
		uid = *u.UID
	}
	shell := u.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	pwHash := u.PasswordHash
	if pwHash == "" {
		pwHash = "!"
	}

	if err := rewriteUserLines(etcFile("passwd"), u.Name, func() string {
		return fmt.Sprintf("%s:x:%d:%d::/home/%s:%s", u.Name, uid, uid, u.Name, shell)
	}); err != nil {
		return err
	}
	if err := rewriteUserLines(etcFile("shadow"), u.Name, func() string {
		return fmt.Sprintf("%s:%s:19000:0:99999:7:::", u.Name, pwHash)
	}); err != nil {
		return err
	}
	if err := rewriteUserLines(etcFile("group"), u.Name, func() string {
		return fmt.Sprintf("%s:x:%d:", u.Name, uid)
	}); err != nil {
		return err
	}
	if err := rewriteUserLines(etcFile("gshadow"), u.Name, func() string {
		return fmt.Sprintf("%s:!::", u.Name)
	}); err != nil {
		return err
	}

	groupSet := make(map[string]struct{}, len(u.Groups))
	for _, g := range u.Groups {
		groupSet[g] = struct{}{}
	}
	if err := addToSupplementaryGroups(etcFile("group"), u.Name, groupSet); err != nil {
		return err
	}

	homeDir := filepath.Join(root, "home", u.Name)
	if _, err := os.Stat(homeDir); os.IsNotExist(err) {
		if err := os.MkdirAll(homeDir, 0700); err != nil {
			return fmt.Errorf("builder: creating home directory for %s: %w", u.Name, err)
		}
		if err := os.Chown(homeDir, uid, uid); err != nil {
			return fmt.Errorf("builder: chowning home directory for %s: %w", u.Name, err)
		}
	}
	return nil
}

// rewriteUserLines drops any line for name from path and appends the
// result of newLine, preserving every other line's order.
func rewriteUserLines(path, name string, newLine func() string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("builder: reading %s: %w", path, err)
	}
	lines := splitNonEmptyLines(string(data))
	prefix := name + ":"
	kept := lines[:0]
	for _, l := range lines {
		if !hasPrefix(l, prefix) {
			kept = append(kept, l)
		}
	}
	kept = append(kept, newLine())
	out := joinLines(kept)
	mode := os.FileMode(0644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode()
	}
	if err := os.WriteFile(path, []byte(out), mode); err != nil {
		return fmt.Errorf("builder: writing %s: %w", path, err)
	}
	return nil
}

// addToSupplementaryGroups appends name to the member list of every group
// line in the group file whose name is a key of groups.
func addToSupplementaryGroups(path, name string, groups map[string]struct{}) error {
	if len(groups) == 0 {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("builder: reading %s: %w", path, err)
	}
	lines := splitNonEmptyLines(string(data))
	for i, l := range lines {
		fields := splitColon(l)
		if len(fields) < 4 {
			continue
		}
		if _, want := groups[fields[0]]; !want {
			continue
		}
		members := splitComma(fields[3])
		found := false
		for _, m := range members {
			if m == name {
				found = true
				break
			}
		}
		if !found {
			members = append(members, name)
		}
		fields[3] = joinComma(members)
		lines[i] = joinColon(fields)
	}
	mode := os.FileMode(0644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode()
	}
	return os.WriteFile(path, []byte(joinLines(lines)), mode)
}

// persistUserFiles relocates /etc/{passwd,shadow,group,gshadow} into
// @var/lib/users with symlinks back, the first time a generation's /etc
// holds them as regular files (immediately after a fresh pacstrap).
// Already-symlinked files (every subsequent generation, since @var
// persists) are left untouched. Grounded on
// original_source/build_image2.py's user-file relocation.
func persistUserFiles(root string) error {
	varUsers := filepath.Join(root, "var/lib/users")
	if err := os.MkdirAll(varUsers, 0755); err != nil {
		return fmt.Errorf("builder: mkdir %s: %w", varUsers, err)
	}
	for _, name := range []string{"passwd", "shadow", "group", "gshadow"} {
		src := filepath.Join(root, "etc", name)
		dst := filepath.Join(varUsers, name)
		if fi, err := os.Lstat(src); err == nil && fi.Mode()&os.ModeSymlink != 0 {
			continue // already relocated by an earlier generation
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("builder: reading %s: %w", src, err)
		}
		fi, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("builder: stating %s: %w", src, err)
		}
		if err := os.WriteFile(dst, data, fi.Mode()); err != nil {
			return fmt.Errorf("builder: writing %s: %w", dst, err)
		}
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("builder: removing %s: %w", src, err)
		}
		if err := os.Symlink("/var/lib/users/"+name, src); err != nil {
			return fmt.Errorf("builder: symlinking %s: %w", src, err)
		}
	}
	return nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func splitColon(s string) []string  { return splitByte(s, ':') }
func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	return splitByte(s, ',')
}
func joinColon(fields []string) string { return joinByte(fields, ':') }

func splitByte(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func joinByte(fields []string, sep byte) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += string(sep)
		}
		out += f
	}
	return out
}

func applyFiles(root string, keys []string, files map[string]config.FileEntry) error {
	for _, p := range keys {
		e := files[p]
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("builder: mkdir for %s: %w", p, err)
		}
		// replace a directory symlink carefully rather than writing through it
		if fi, err := os.Lstat(full); err == nil && fi.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(full); err != nil {
				return fmt.Errorf("builder: removing stale symlink at %s: %w", p, err)
			}
		}
		mode := os.FileMode(0644)
		if e.Mode != 0 {
			mode = os.FileMode(e.Mode)
		}
		tmp := full + ".darch-tmp"
		if err := os.WriteFile(tmp, []byte(e.Content), mode); err != nil {
			return fmt.Errorf("builder: writing %s: %w", p, err)
		}
		if err := os.Rename(tmp, full); err != nil {
			return fmt.Errorf("builder: installing %s: %w", p, err)
		}
	}
	return nil
}

func applySymlinks(root string, keys []string, symlinks map[string]string) error {
	for _, p := range keys {
		target := symlinks[p]
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return fmt.Errorf("builder: mkdir for symlink %s: %w", p, err)
		}
		_ = os.Remove(full)
		if err := os.Symlink(target, full); err != nil {
			return fmt.Errorf("builder: symlinking %s -> %s: %w", p, target, err)
		}
	}
	return nil
}

func applyServices(ctx context.Context, root string, enable, disable []string) error {
	for _, s := range disable {
		if _, err := runner.Run(ctx, []string{"systemctl", "--root", root, "disable", s}, runner.Options{Check: true, Capture: true}); err != nil {
			return fmt.Errorf("builder: disabling %s: %w", s, err)
		}
	}
	for _, s := range enable {
		if _, err := runner.Run(ctx, []string{"systemctl", "--root", root, "enable", s}, runner.Options{Check: true, Capture: true}); err != nil {
			return fmt.Errorf("builder: enabling %s: %w", s, err)
		}
	}
	return nil
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("builder: opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("builder: appending to %s: %w", path, err)
	}
	return nil
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedFileKeys(m map[string]config.FileEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysFromStringMap(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
