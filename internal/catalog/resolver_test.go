package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type fakeCatalog struct {
	products     map[string]backoffice.Product
	barcodes     map[string]backoffice.Product
	variants     map[string]backoffice.Variant
	variantErr   error
	barcodeErr   error
	search       []backoffice.Product
	searchParams *backoffice.SearchParams
	listed       []backoffice.Variant
	calls        []string
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*backoffice.Product, error) {
	f.calls = append(f.calls, "product:"+id)
	if p, ok := f.products[id]; ok {
		return &p, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func (f *fakeCatalog) GetProductByBarcode(_ context.Context, code string) (*backoffice.Product, error) {
	f.calls = append(f.calls, "barcode:"+code)
	if f.barcodeErr != nil {
		return nil, f.barcodeErr
	}
	if p, ok := f.barcodes[code]; ok {
		return &p, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func (f *fakeCatalog) GetVariantByIdentifier(_ context.Context, id string) (*backoffice.Variant, error) {
	f.calls = append(f.calls, "variant:"+id)
	if f.variantErr != nil {
		return nil, f.variantErr
	}
	if v, ok := f.variants[id]; ok {
		return &v, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
}

func (f *fakeCatalog) ListVariants(_ context.Context, productID string) ([]backoffice.Variant, error) {
	f.calls = append(f.calls, "variants:"+productID)
	return f.listed, nil
}

func (f *fakeCatalog) SearchProducts(_ context.Context, params backoffice.SearchParams) ([]backoffice.Product, error) {
	f.calls = append(f.calls, "search:"+params.Search)
	f.searchParams = &params
	return f.search, nil
}

type countingRecorder map[string]int

func (c countingRecorder) IncResolution(step string) { c[step]++ }

func newResolver(t *testing.T, cat *fakeCatalog) (*Resolver, countingRecorder) {
	t.Helper()
	rec := countingRecorder{}
	r, err := NewResolver(cat, rec, logger.Nop())
	require.NoError(t, err)
	return r, rec
}

func TestResolveFallsThroughToSearch(t *testing.T) {
	cat := &fakeCatalog{search: []backoffice.Product{{ID: "p7", Name: "Cola"}}}
	r, rec := newResolver(t, cat)

	res, err := r.Resolve(context.Background(), " 12345 ")
	require.NoError(t, err)
	require.Equal(t, enums.ResolutionStepSearch, res.Step)
	require.Equal(t, "p7", res.Product.ID)
	require.Equal(t, []string{"variant:12345", "barcode:12345", "search:12345"}, cat.calls)
	require.NotNil(t, cat.searchParams.IsActive)
	require.True(t, *cat.searchParams.IsActive)
	require.Equal(t, 1, cat.searchParams.Limit)
	require.Equal(t, 1, rec["search"])
}

func TestResolveNonNumericSkipsVariantLookup(t *testing.T) {
	cat := &fakeCatalog{barcodes: map[string]backoffice.Product{"ABC-1": {ID: "p1"}}}
	r, _ := newResolver(t, cat)

	res, err := r.Resolve(context.Background(), "ABC-1")
	require.NoError(t, err)
	require.Equal(t, enums.ResolutionStepBarcode, res.Step)
	require.Equal(t, []string{"barcode:ABC-1"}, cat.calls)
}

func TestResolveVariantLoadsParentProduct(t *testing.T) {
	cat := &fakeCatalog{
		variants: map[string]backoffice.Variant{"777": {ID: "v1", ProductID: "p1", Name: "Large"}},
		products: map[string]backoffice.Product{"p1": {ID: "p1", Name: "Shirt", HasVariants: true}},
	}
	r, _ := newResolver(t, cat)

	res, err := r.Resolve(context.Background(), "777")
	require.NoError(t, err)
	require.Equal(t, enums.ResolutionStepVariantIdentifier, res.Step)
	require.False(t, res.NeedsVariant)
	require.NotNil(t, res.Variant)
	require.Equal(t, "v1", res.Variant.ID)
	require.Equal(t, "Shirt", res.Product.Name)
}

func TestResolveServerErrorSurfaces(t *testing.T) {
	cat := &fakeCatalog{variantErr: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("502"), "backoffice server error")}
	r, rec := newResolver(t, cat)

	_, err := r.Resolve(context.Background(), "12345")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Equal(t, []string{"variant:12345"}, cat.calls)
	require.Empty(t, rec)
}

func TestResolveProductWithVariantsNeedsVariant(t *testing.T) {
	cat := &fakeCatalog{
		barcodes: map[string]backoffice.Product{"X1": {ID: "p1", HasVariants: true}},
		listed:   []backoffice.Variant{{ID: "v1"}, {ID: "v2"}},
	}
	r, _ := newResolver(t, cat)

	res, err := r.Resolve(context.Background(), "X1")
	require.NoError(t, err)
	require.True(t, res.NeedsVariant)
	require.Len(t, res.Variants, 2)
	require.Contains(t, cat.calls, "variants:p1")
}

func TestResolveAllMiss(t *testing.T) {
	cat := &fakeCatalog{barcodeErr: pkgerrors.New(pkgerrors.CodeValidation, "invalid barcode")}
	r, rec := newResolver(t, cat)

	_, err := r.Resolve(context.Background(), "nothing")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.Equal(t, 1, rec["none"])

	_, err = r.Resolve(context.Background(), "   ")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
