// Package catalog turns raw scanner or keyboard input into a sellable entity.
package catalog

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

// Catalog is the subset of the backoffice API the resolver reads.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*backoffice.Product, error)
	GetProductByBarcode(ctx context.Context, code string) (*backoffice.Product, error)
	GetVariantByIdentifier(ctx context.Context, identifier string) (*backoffice.Variant, error)
	ListVariants(ctx context.Context, productID string) ([]backoffice.Variant, error)
	SearchProducts(ctx context.Context, params backoffice.SearchParams) ([]backoffice.Product, error)
}

type resolutionRecorder interface {
	IncResolution(step string)
}

// Resolution is the entity a scan matched. NeedsVariant is set when the
// product must be narrowed to one of Variants before it can be added.
type Resolution struct {
	Step         enums.ResolutionStep `json:"step"`
	Product      backoffice.Product   `json:"product"`
	Variant      *backoffice.Variant  `json:"variant,omitempty"`
	NeedsVariant bool                 `json:"needsVariant"`
	Variants     []backoffice.Variant `json:"variants,omitempty"`
}

// Outcome is the typed result of one lookup step.
type Outcome int

const (
	Found Outcome = iota
	NotFound
	ServerError
)

type stepResult struct {
	outcome Outcome
	product *backoffice.Product
	variant *backoffice.Variant
	err     error
}

type Resolver struct {
	catalog Catalog
	metrics resolutionRecorder
	logg    *logger.Logger
}

func NewResolver(catalog Catalog, metrics resolutionRecorder, logg *logger.Logger) (*Resolver, error) {
	if catalog == nil {
		return nil, errors.New("catalog required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver{catalog: catalog, metrics: metrics, logg: logg}, nil
}

// Resolve runs the lookup chain: numeric input is tried as a variant
// identifier, then as a product barcode, then as a single-hit active product
// search. Only a miss falls through; server and transport errors surface.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Resolution, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scan input is required")
	}

	type step struct {
		name enums.ResolutionStep
		run  func(context.Context, string) stepResult
	}
	steps := []step{}
	if isNumeric(input) {
		steps = append(steps, step{enums.ResolutionStepVariantIdentifier, r.byVariantIdentifier})
	}
	steps = append(steps,
		step{enums.ResolutionStepBarcode, r.byBarcode},
		step{enums.ResolutionStepSearch, r.bySearch},
	)

	for _, st := range steps {
		res := st.run(ctx, input)
		switch res.outcome {
		case Found:
			r.record(st.name)
			return r.finish(ctx, st.name, res)
		case ServerError:
			return nil, res.err
		}
		r.logg.Debug(r.logg.WithFields(ctx, map[string]any{"step": st.name, "input": input}), "resolution step missed")
	}

	r.record(enums.ResolutionStepNone)
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
		WithDetails(map[string]any{"input": input})
}

func (r *Resolver) finish(ctx context.Context, step enums.ResolutionStep, res stepResult) (*Resolution, error) {
	out := &Resolution{Step: step, Product: *res.product, Variant: res.variant}
	if res.variant != nil || !res.product.RequiresVariant() {
		return out, nil
	}

	variants := res.product.Variants
	if len(variants) == 0 {
		listed, err := r.catalog.ListVariants(ctx, res.product.ID)
		if err != nil {
			return nil, err
		}
		variants = listed
	}
	out.NeedsVariant = true
	out.Variants = variants
	return out, nil
}

func (r *Resolver) byVariantIdentifier(ctx context.Context, input string) stepResult {
	variant, err := r.catalog.GetVariantByIdentifier(ctx, input)
	if res, miss := classify(err); miss {
		return res
	}
	product := variant.Product
	if product == nil {
		loaded, err := r.catalog.GetProduct(ctx, variant.ProductID)
		if err != nil {
			return stepResult{outcome: ServerError, err: err}
		}
		product = loaded
	}
	variant.Product = nil
	return stepResult{outcome: Found, product: product, variant: variant}
}

func (r *Resolver) byBarcode(ctx context.Context, input string) stepResult {
	product, err := r.catalog.GetProductByBarcode(ctx, input)
	if res, miss := classify(err); miss {
		return res
	}
	return stepResult{outcome: Found, product: product}
}

func (r *Resolver) bySearch(ctx context.Context, input string) stepResult {
	active := true
	products, err := r.catalog.SearchProducts(ctx, backoffice.SearchParams{Search: input, IsActive: &active, Limit: 1})
	if res, miss := classify(err); miss {
		return res
	}
	if len(products) == 0 {
		return stepResult{outcome: NotFound}
	}
	return stepResult{outcome: Found, product: &products[0]}
}

// classify maps a lookup error onto an outcome. Validation rejections of the
// input are treated as misses so the chain keeps going.
func classify(err error) (stepResult, bool) {
	if err == nil {
		return stepResult{}, false
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeNotFound, pkgerrors.CodeValidation:
		return stepResult{outcome: NotFound}, true
	default:
		return stepResult{outcome: ServerError, err: err}, true
	}
}

func (r *Resolver) record(step enums.ResolutionStep) {
	if r.metrics != nil {
		r.metrics.IncResolution(step.String())
	}
}

func isNumeric(s string) bool {
	for _, c := range s {
		if !unicode.IsDigit(c) {
			return false
		}
	}
	return s != ""
}
