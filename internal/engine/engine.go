// Package engine turns a profile snapshot and reference data into a verdict.
// It performs no I/O: fetching, remote lists and rendering live elsewhere.
package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/refdata"
	"github.com/ppiankov/vetter/internal/rules"
)

var (
	ErrNoReference = errors.New("reference data is required")
	ErrNoRules     = errors.New("rule set is empty")
)

// Verify evaluates every rule in rs against p and returns the verdict.
// All rules run even after a disqualifying flag, so the reviewer sees the
// full picture. Flags appear in rule-set order.
func Verify(p *model.Profile, rd *refdata.ReferenceData, rs rules.Set) (model.Verdict, error) {
	if err := checkInputs(p, rd, rs); err != nil {
		return model.Verdict{}, err
	}

	var flags []model.Flag
	for _, r := range rs {
		if f, fired := r.Evaluate(p, rd); fired {
			flags = append(flags, f)
		}
	}
	return verdict(flags), nil
}

// VerifyParallel is Verify with rules evaluated concurrently. Results are
// merged by rule index, so the verdict is identical to Verify's.
func VerifyParallel(ctx context.Context, p *model.Profile, rd *refdata.ReferenceData, rs rules.Set) (model.Verdict, error) {
	if err := checkInputs(p, rd, rs); err != nil {
		return model.Verdict{}, err
	}

	type result struct {
		flag  model.Flag
		fired bool
	}
	results := make([]result, len(rs))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range rs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, fired := r.Evaluate(p, rd)
			results[i] = result{flag: f, fired: fired}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Verdict{}, fmt.Errorf("evaluate rules: %w", err)
	}

	var flags []model.Flag
	for _, res := range results {
		if res.fired {
			flags = append(flags, res.flag)
		}
	}
	return verdict(flags), nil
}

// Status maps a flag list to the verification state.
// Any disqualifying flag dominates; otherwise any flag means review.
func Status(flags []model.Flag) model.Status {
	if len(flags) == 0 {
		return model.Verified
	}
	for _, f := range flags {
		if f.Severity == model.Disqualifying {
			return model.Dismissed
		}
	}
	return model.Flagged
}

func verdict(flags []model.Flag) model.Verdict {
	if flags == nil {
		flags = []model.Flag{}
	}
	st := Status(flags)
	return model.Verdict{
		Status:        st,
		Flags:         flags,
		Disqualifying: st == model.Dismissed,
	}
}

func checkInputs(p *model.Profile, rd *refdata.ReferenceData, rs rules.Set) error {
	if rd == nil {
		return ErrNoReference
	}
	if len(rs) == 0 {
		return ErrNoRules
	}
	return p.Validate()
}
