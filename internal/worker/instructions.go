package worker

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pipeline/internal/domain"
)

// Manufacturing tolerance profiles. Premium halves every deviation budget
// of the standard profile.
var (
	standardTolerances = domain.Tolerances{DimensionMM: 0.2, ColorDeltaE: 10, FinishGrade: 2}
	premiumTolerances  = domain.Tolerances{DimensionMM: 0.1, ColorDeltaE: 5, FinishGrade: 1}
)

// BuildInstructions derives the factory-facing manufacturing instructions
// for an order. Materials and finishes come from the product catalog; the
// deadline is the order date plus the product's lead time, tightened for
// rush orders.
func BuildInstructions(order *domain.Order, product *domain.Product, opts domain.ProductionOptions) domain.ManufacturingInstructions {
	quality := opts.QualityLevel
	if quality == "" {
		quality = domain.QualityLevelStandard
	}
	tolerances := standardTolerances
	if quality == domain.QualityLevelPremium {
		tolerances = premiumTolerances
	}

	days := product.ProductionDays
	if days <= 0 {
		days = 10
	}
	if opts.RushOrder && days > 1 {
		days = (days + 1) / 2
	}

	titler := cases.Title(language.English)
	packaging := []string{
		"Individual protective sleeve per unit",
		fmt.Sprintf("%s grade outer carton", titler.String(string(quality))),
	}
	labeling := []string{
		fmt.Sprintf("Order reference %s on every carton", order.ID),
		"Fragile handling markings on outer packaging",
	}
	if opts.RushOrder {
		labeling = append(labeling, "Priority dispatch marking")
	}

	return domain.ManufacturingInstructions{
		Materials:  product.Materials,
		Finishes:   product.Finishes,
		Deadline:   order.CreatedAt.AddDate(0, 0, days),
		Quantity:   order.Quantity,
		Tolerances: tolerances,
		Packaging:  packaging,
		Labeling:   labeling,
		Quality:    quality,
	}
}

// specSheet is the machine-readable summary placed next to the raw assets
// inside a production bundle.
type specSheet struct {
	OrderID      string                           `json:"orderId"`
	BrandID      string                           `json:"brandId"`
	DesignID     string                           `json:"designId"`
	Product      string                           `json:"product"`
	SKU          string                           `json:"sku"`
	Quantity     int                              `json:"quantity"`
	Notes        string                           `json:"notes,omitempty"`
	Instructions domain.ManufacturingInstructions `json:"instructions"`
	GeneratedAt  time.Time                        `json:"generatedAt"`
}
