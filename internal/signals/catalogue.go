package signals

// CatalogueVersion identifies the frozen signal catalogue shipped with this build.
const CatalogueVersion = "2024.3"

// Signal names emitted by the extraction pipeline.
const (
	KnownFraudTemplate = "document.known_fraud_template"
	TypeMismatch       = "document.type_mismatch"

	PixelSplice       = "tamper.pixel_splice"
	FontInconsistency = "tamper.font_inconsistency"
	MetadataEditor    = "tamper.metadata_editor"
	VisionOverlay     = "vision.tamper_overlay"

	TotalMismatch = "amount.total_mismatch"
	TaxMismatch   = "amount.tax_mismatch"

	DateGapAnomaly = "date.gap_anomaly"
	FutureDated    = "date.future_dated"

	CountryMismatch      = "geo.country_mismatch"
	TravelContext        = "geo.travel_context"
	CurrencyMismatch     = "currency.mismatch"
	JurisdictionMismatch = "tax.jurisdiction_mismatch"

	MissingTotal    = "field.missing_total"
	MissingDate     = "field.missing_date"
	MissingMerchant = "field.missing_merchant"
	MissingTaxID    = "field.missing_tax_id"

	SemanticInconsistency = "llm.semantic_inconsistency"
	MerchantUnverifiable  = "merchant.unverifiable"
)

// Gating reasons producers may attach to a GATED signal.
const (
	GateLowOCRQuality       = "low_ocr_quality"
	GateUnsupportedLanguage = "unsupported_language"
	GatePageCropped         = "page_cropped"
	GateModelUnavailable    = "model_unavailable"
	GateLookupFailed        = "lookup_failed"
)

var ocrGates = []string{GateLowOCRQuality, GatePageCropped, GateUnsupportedLanguage}

// Catalogue is the static signal table loaded at startup.
func Catalogue() []Spec {
	return []Spec{
		{Name: KnownFraudTemplate, Version: 1, SeverityTier: TierStrong, Privacy: PrivacyDerived,
			GatedBy:     []string{GateModelUnavailable},
			Description: "Document layout matches a confirmed fraudulent template"},
		{Name: TypeMismatch, Version: 2, SeverityTier: TierMedium, Privacy: PrivacySafe,
			GatedBy:     []string{GateModelUnavailable, GateUnsupportedLanguage},
			Description: "Claimed document type disagrees with the classifier"},
		{Name: PixelSplice, Version: 1, SeverityTier: TierStrong, Privacy: PrivacySafe,
			GatedBy:     []string{GateModelUnavailable, GatePageCropped},
			Description: "Spliced pixel regions detected around printed values"},
		{Name: FontInconsistency, Version: 1, SeverityTier: TierStrong, Privacy: PrivacySafe,
			GatedBy:     []string{GateModelUnavailable, GateLowOCRQuality},
			Description: "Glyph metrics differ within a single printed field"},
		{Name: MetadataEditor, Version: 1, SeverityTier: TierStrong, Privacy: PrivacyDerived,
			GatedBy:     []string{GateModelUnavailable},
			Description: "File metadata names an image or PDF editor as producer"},
		{Name: VisionOverlay, Version: 1, SeverityTier: TierStrong, Privacy: PrivacySafe,
			GatedBy:     []string{GateModelUnavailable},
			Description: "Vision model found overlaid content on the rendered page"},
		{Name: TotalMismatch, Version: 3, SeverityTier: TierStrong, Privacy: PrivacySafe,
			GatedBy:     ocrGates,
			Description: "Printed total disagrees with the sum of line items"},
		{Name: TaxMismatch, Version: 2, SeverityTier: TierMedium, Privacy: PrivacySafe,
			GatedBy:     ocrGates,
			Description: "Printed tax disagrees with rate times taxable base"},
		{Name: DateGapAnomaly, Version: 1, SeverityTier: TierMedium, Privacy: PrivacySafe,
			GatedBy:     ocrGates,
			Description: "Document date far from the claimed service or submission date"},
		{Name: FutureDated, Version: 1, SeverityTier: TierMedium, Privacy: PrivacySafe,
			GatedBy:     ocrGates,
			Description: "Document date lies after submission"},
		{Name: CountryMismatch, Version: 1, SeverityTier: TierMedium, Privacy: PrivacyDerived,
			GatedBy:     []string{GateLookupFailed},
			Description: "Merchant country disagrees with claimant country"},
		{Name: TravelContext, Version: 1, SeverityTier: TierWeak, Privacy: PrivacyDerived,
			GatedBy:     []string{GateLookupFailed},
			Description: "Claimant has cross-border or travel evidence for the document period"},
		{Name: CurrencyMismatch, Version: 1, SeverityTier: TierMedium, Privacy: PrivacySafe,
			GatedBy:     []string{GateLookupFailed, GateLowOCRQuality},
			Description: "Currency does not belong to the merchant jurisdiction"},
		{Name: JurisdictionMismatch, Version: 1, SeverityTier: TierMedium, Privacy: PrivacySafe,
			GatedBy:     []string{GateLookupFailed},
			Description: "Tax scheme or rate does not exist in the merchant jurisdiction"},
		{Name: MissingTotal, Version: 1, SeverityTier: TierMedium, Privacy: PrivacySafe,
			GatedBy:     ocrGates,
			Description: "No total amount could be extracted"},
		{Name: MissingDate, Version: 1, SeverityTier: TierWeak, Privacy: PrivacySafe,
			GatedBy:     ocrGates,
			Description: "No document date could be extracted"},
		{Name: MissingMerchant, Version: 1, SeverityTier: TierWeak, Privacy: PrivacySafe,
			GatedBy:     ocrGates,
			Description: "No merchant identity could be extracted"},
		{Name: MissingTaxID, Version: 1, SeverityTier: TierWeak, Privacy: PrivacySafe,
			GatedBy:     ocrGates,
			Description: "No merchant tax identifier could be extracted"},
		{Name: SemanticInconsistency, Version: 2, SeverityTier: TierMedium, Privacy: PrivacySafe,
			GatedBy:     []string{GateModelUnavailable, GateUnsupportedLanguage},
			Description: "Language model found contradictory field semantics"},
		{Name: MerchantUnverifiable, Version: 1, SeverityTier: TierWeak, Privacy: PrivacyDerived,
			GatedBy:     []string{GateLookupFailed},
			Description: "Merchant could not be matched to a known business"},
	}
}

// NewDefault builds and freezes the registry from the static catalogue.
func NewDefault() (*Registry, error) {
	reg := NewRegistry(CatalogueVersion)
	for _, spec := range Catalogue() {
		if err := reg.Register(spec); err != nil {
			return nil, err
		}
	}
	reg.Freeze()
	return reg, nil
}

// MustDefault is NewDefault for wiring and tests; the static catalogue is
// covered by tests so a failure here is a programming error.
func MustDefault() *Registry {
	reg, err := NewDefault()
	if err != nil {
		panic(err)
	}
	return reg
}
