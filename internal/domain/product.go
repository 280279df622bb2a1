package domain

import "time"

// Product describes a customizable product sold through the platform.
type Product struct {
	ID             string
	Name           string
	SKU            string
	IsActive       bool
	Model3DKey     string
	BaseAssetKeys  []string
	Materials      []string
	Finishes       []string
	ProductionDays int
	Rules          CustomizationRules
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Has3DModel reports whether the product carries a 3D model asset. Preview
// renders pick the 3D path iff this is true.
func (p Product) Has3DModel() bool {
	return p.Model3DKey != ""
}

// CustomizationRules bound what a design may ask of a product.
type CustomizationRules struct {
	MaxZones         int             `json:"maxZones"`
	MaxEffects       int             `json:"maxEffects"`
	AllowedQualities []DesignQuality `json:"allowedQualities,omitempty"`
	AllowedEffects   []string        `json:"allowedEffects,omitempty"`
	MinPromptLength  int             `json:"minPromptLength,omitempty"`
}

// BrandStatus enumerates brand account states.
type BrandStatus string

const (
	BrandStatusActive    BrandStatus = "ACTIVE"
	BrandStatusSuspended BrandStatus = "SUSPENDED"
	BrandStatusClosed    BrandStatus = "CLOSED"
)

// Brand is the tenant that owns designs, products and orders.
type Brand struct {
	ID        string
	Name      string
	Status    BrandStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
