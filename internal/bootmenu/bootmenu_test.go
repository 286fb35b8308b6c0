package bootmenu

import (
	"os"
	"strings"
	"testing"

	"github.com/robinei/darch/internal/subvol"
)

func gens(numbers ...int) []subvol.Generation {
	var out []subvol.Generation
	for _, n := range numbers {
		out = append(out, subvol.Generation{Number: n, Complete: true})
	}
	return out
}

func TestGenerateSkipsIncompleteAndPicksNewestDefault(t *testing.T) {
	all := gens(1, 2, 4)
	all = append(all, subvol.Generation{Number: 5, Complete: false}) // incomplete, must be excluded

	cfgPath := t.TempDir() + "/grub.cfg"
	if err := Generate(cfgPath, "abc-123", all, ""); err != nil {
		t.Fatalf("Generate: %s", err)
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("reading generated config: %s", err)
	}
	cfg := string(data)

	if strings.Contains(cfg, "gen-5") {
		t.Error("incomplete gen-5 must not appear in the boot menu")
	}
	if !strings.Contains(cfg, "gen-4, default") {
		t.Errorf("gen-4 (the newest complete generation) must be marked default:\n%s", cfg)
	}
	if strings.Contains(cfg, "gen-2, default") || strings.Contains(cfg, "gen-1, default") {
		t.Error("only the newest complete generation may be default")
	}
	if !strings.Contains(cfg, "fs-uuid abc-123") {
		t.Errorf("root UUID not substituted into template:\n%s", cfg)
	}
}

func TestGenerateAppliesExtraKernelArgs(t *testing.T) {
	cfgPath := t.TempDir() + "/grub.cfg"
	if err := Generate(cfgPath, "uuid", gens(1), `foo=bar "quoted value"`); err != nil {
		t.Fatalf("Generate: %s", err)
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("reading generated config: %s", err)
	}
	cfg := string(data)
	if !strings.Contains(cfg, "foo=bar") || !strings.Contains(cfg, "quoted value") {
		t.Errorf("extra kernel args not applied:\n%s", cfg)
	}
}

func TestRollbackRequiresTwoCompleteGenerations(t *testing.T) {
	cfgPath := t.TempDir() + "/grub.cfg"
	if err := Rollback(cfgPath, "uuid", gens(1), ""); err == nil {
		t.Error("Rollback with only one complete generation should fail")
	}
}

func TestRollbackPromotesSecondNewest(t *testing.T) {
	cfgPath := t.TempDir() + "/grub.cfg"
	if err := Rollback(cfgPath, "uuid", gens(1, 2, 3), ""); err != nil {
		t.Fatalf("Rollback: %s", err)
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("reading generated config: %s", err)
	}
	cfg := string(data)
	if !strings.Contains(cfg, "gen-2, default") {
		t.Errorf("rollback must make gen-2 (second-newest) the default:\n%s", cfg)
	}
	if strings.Contains(cfg, "gen-3, default") {
		t.Error("rollback must demote gen-3 from default")
	}
}
