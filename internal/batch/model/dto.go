package model

import "github.com/google/uuid"

// CreateItemDTO is one product record of an upload
type CreateItemDTO struct {
	Description   string  `json:"description" binding:"required"`
	Code          string  `json:"code" binding:"required"`
	SecondaryCode *string `json:"secondaryCode,omitempty"`
}

// CreateBatchDTO is the request body for creating a batch
type CreateBatchDTO struct {
	FileName string          `json:"fileName" binding:"required"`
	Items    []CreateItemDTO `json:"items" binding:"required"`
}

// BatchCreatedResponse is returned once a batch is stored and queued
type BatchCreatedResponse struct {
	BatchID    uuid.UUID   `json:"batchId"`
	Status     BatchStatus `json:"status"`
	TotalItems int         `json:"totalItems"`
	Message    string      `json:"message"`
}

// BatchProgress summarizes how far the classification of a batch went
type BatchProgress struct {
	BatchID         uuid.UUID   `json:"batchId"`
	FileName        string      `json:"fileName"`
	Status          BatchStatus `json:"status"`
	Attempts        int         `json:"attempts"`
	LastError       *string     `json:"lastError,omitempty"`
	TotalItems      int         `json:"totalItems"`
	ProcessedItems  int         `json:"processedItems"`
	ValidItems      int         `json:"validItems"`
	DivergentItems  int         `json:"divergentItems"`
	PendingItems    int         `json:"pendingItems"`
	PercentComplete float64     `json:"percentComplete"`
	SuccessRate     float64     `json:"successRate"`
}

// BatchFilter is used when listing batches
type BatchFilter struct {
	Offset *int `json:"offset,omitempty"`
	Limit  *int `json:"limit,omitempty"`
}

// BatchListResult represents the result of listing batches with pagination
type BatchListResult struct {
	TotalCount int64   `json:"totalCount"`
	Batches    []Batch `json:"batches"`
	Offset     int     `json:"offset"`
	Limit      int     `json:"limit"`
}

// ItemFilter is used when listing the items of a batch
type ItemFilter struct {
	DivergentOnly bool `json:"divergentOnly,omitempty"`
	Offset        *int `json:"offset,omitempty"`
	Limit         *int `json:"limit,omitempty"`
}

// ItemListResult represents the result of listing items with pagination
type ItemListResult struct {
	TotalCount int64  `json:"totalCount"`
	Items      []Item `json:"items"`
	Offset     int    `json:"offset"`
	Limit      int    `json:"limit"`
}

// BenefitSummary reports the tax benefits found in a batch
type BenefitSummary struct {
	BatchID             uuid.UUID      `json:"batchId"`
	ItemsWithBenefit    int64          `json:"itemsWithBenefit"`
	ItemsPossible       int64          `json:"itemsPossibleBenefit"`
	ByRegime            map[string]int `json:"byRegime"`
	PotentialRateSaving float64        `json:"potentialRateSaving"`
}
