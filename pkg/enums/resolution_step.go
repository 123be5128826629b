package enums

// ResolutionStep names the lookup that produced a scan match.
type ResolutionStep string

const (
	ResolutionStepVariantIdentifier ResolutionStep = "variant_identifier"
	ResolutionStepBarcode           ResolutionStep = "barcode"
	ResolutionStepSearch            ResolutionStep = "search"
	ResolutionStepNone              ResolutionStep = "none"
)

// String implements fmt.Stringer.
func (s ResolutionStep) String() string {
	return string(s)
}
