package domain

import "time"

// OrderStatus enumerates the production lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusPaid               OrderStatus = "PAID"
	OrderStatusProcessing         OrderStatus = "PROCESSING"
	OrderStatusReadyForProduction OrderStatus = "READY_FOR_PRODUCTION"
	OrderStatusProductionFailed   OrderStatus = "PRODUCTION_FAILED"
	OrderStatusQualityIssue       OrderStatus = "QUALITY_ISSUE"
	OrderStatusShipped            OrderStatus = "SHIPPED"
	OrderStatusCancelled          OrderStatus = "CANCELLED"
	OrderStatusRefundPending      OrderStatus = "REFUND_PENDING"
)

// QualityLevel selects the manufacturing tolerance profile.
type QualityLevel string

const (
	QualityLevelStandard QualityLevel = "standard"
	QualityLevelPremium  QualityLevel = "premium"
)

// Order is the entity production jobs operate on.
type Order struct {
	ID              string
	BrandID         string
	DesignID        string
	ProductID       string
	Quantity        int
	Status          OrderStatus
	BundleURL       string
	InstructionsURL string
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProductionBundle is the packaged set of files and instructions handed to
// a manufacturing partner for one order. Appended once, never updated.
type ProductionBundle struct {
	OrderID      string                    `json:"orderId"`
	StorageKey   string                    `json:"storageKey"`
	URL          string                    `json:"url"`
	Files        []BundleFile              `json:"files"`
	Instructions ManufacturingInstructions `json:"instructions"`
	Metadata     map[string]string         `json:"metadata,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
}

// BundleFile names one entry inside a production bundle archive.
type BundleFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Bytes       int64  `json:"bytes"`
}

// ManufacturingInstructions tells the factory how to produce an order.
type ManufacturingInstructions struct {
	Materials  []string    `json:"materials"`
	Finishes   []string    `json:"finishes"`
	Deadline   time.Time   `json:"deadline"`
	Quantity   int         `json:"quantity"`
	Tolerances Tolerances  `json:"tolerances"`
	Packaging  []string    `json:"packaging,omitempty"`
	Labeling   []string    `json:"labeling,omitempty"`
	Quality    QualityLevel `json:"quality,omitempty"`
}

// Tolerances are the acceptable manufacturing deviations for an order.
type Tolerances struct {
	DimensionMM  float64 `json:"dimensionMm"`
	ColorDeltaE  float64 `json:"colorDeltaE"`
	FinishGrade  float64 `json:"finishGrade"`
}

// QualityReport is appended once per quality-control run.
type QualityReport struct {
	OrderID      string       `json:"orderId"`
	OverallScore float64      `json:"overallScore"`
	Scores       []AssetScore `json:"scores"`
	Passed       bool         `json:"passed"`
	Issues       []string     `json:"issues,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// AssetScore is the quality score computed for one production asset.
type AssetScore struct {
	AssetID string  `json:"assetId"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason,omitempty"`
}
