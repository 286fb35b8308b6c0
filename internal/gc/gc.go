// Package gc is the Garbage Collector: reaps incomplete generations left
// by crashed builds, then prunes complete generations by count and age.
//
// Grounded on original_source/darch.py's garbage_collect_generations: the
// same two-pass shape (reap incomplete, then bound complete by count/age)
// and the same default thresholds.
package gc

import (
	"context"
	"time"

	"github.com/robinei/darch/internal/logging"
	"github.com/robinei/darch/internal/subvol"
)

// Defaults per SPEC_FULL.md §4.9 / spec.md §4.9.
const (
	DefaultKeepMin    = 3
	DefaultKeepMax    = 10
	DefaultMinAgeDays = 7
	DefaultMaxAgeDays = 30
)

// Policy bounds how many complete generations survive a collection run.
type Policy struct {
	KeepMin    int
	KeepMax    int
	MinAgeDays int
	MaxAgeDays int
}

func DefaultPolicy() Policy {
	return Policy{
		KeepMin:    DefaultKeepMin,
		KeepMax:    DefaultKeepMax,
		MinAgeDays: DefaultMinAgeDays,
		MaxAgeDays: DefaultMaxAgeDays,
	}
}

// Result reports what a Run deleted.
type Result struct {
	DeletedIncomplete []int
	DeletedComplete   []int
}

// Run performs one collection pass against all generations under subv.
// protectedNumber, when non-zero, is the generation currently referenced
// by a live host's /current symlink and is never deleted (SPEC_FULL.md
// §4.9 note 4); pass 0 on a build host where no such reference applies.
func Run(ctx context.Context, subv *subvol.Manager, p Policy, now time.Time, protectedNumber int) (*Result, error) {
	gens, err := subv.List()
	if err != nil {
		return nil, err
	}

	res := &Result{}

	for _, g := range gens {
		if g.Complete {
			continue
		}
		if g.Number == protectedNumber {
			continue
		}
		if err := subv.Delete(ctx, g.Number); err != nil {
			return res, err
		}
		logging.Logf("gc: deleted incomplete gen-%d", g.Number)
		res.DeletedIncomplete = append(res.DeletedIncomplete, g.Number)
	}

	complete := subvol.Complete(gens)
	// complete is already ascending by number (List guarantees it); ties
	// in creation time are irrelevant since numbers are themselves
	// monotonic and unique.
	i := 0
	for len(complete)-i > p.KeepMin {
		oldest := complete[i]
		if oldest.Number == protectedNumber {
			break
		}
		k := len(complete) - i
		age := now.Sub(oldest.CreatedAt)
		overCount := k > p.KeepMax
		overAge := age > time.Duration(p.MaxAgeDays)*24*time.Hour
		if !overCount && !overAge {
			break
		}
		if age < time.Duration(p.MinAgeDays)*24*time.Hour {
			break
		}
		if err := subv.Delete(ctx, oldest.Number); err != nil {
			return res, err
		}
		logging.Logf("gc: deleted complete gen-%d (age %s)", oldest.Number, age.Round(time.Hour))
		res.DeletedComplete = append(res.DeletedComplete, oldest.Number)
		i++
	}

	return res, nil
}
