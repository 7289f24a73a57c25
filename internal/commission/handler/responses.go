package handler

import (
	"time"

	"upline/internal/commission/models"
)

// Amounts travel as decimal strings; floats would corrupt money.

type recordResponse struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"orderId"`
	OrderLineID   string     `json:"orderLineId"`
	ProductID     string     `json:"productId"`
	BeneficiaryID string     `json:"beneficiaryId"`
	Level         string     `json:"level"`
	Rate          string     `json:"rate"`
	BaseAmount    string     `json:"baseAmount"`
	Quantity      int        `json:"quantity"`
	Amount        string     `json:"amount"`
	CategoryGroup string     `json:"categoryGroup"`
	Status        string     `json:"status"`
	CalculatedAt  time.Time  `json:"calculatedAt"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	PaidBy        *string    `json:"paidBy,omitempty"`
}

func toRecordResponse(rec *models.CommissionRecord) recordResponse {
	return recordResponse{
		ID:            rec.ID.String(),
		OrderID:       rec.OrderID.String(),
		OrderLineID:   rec.OrderLineID.String(),
		ProductID:     rec.ProductID.String(),
		BeneficiaryID: rec.Beneficiary.String(),
		Level:         string(rec.Level),
		Rate:          rec.Rate.String(),
		BaseAmount:    rec.BaseAmount.String(),
		Quantity:      rec.Quantity,
		Amount:        rec.Amount.String(),
		CategoryGroup: rec.CategoryGroup,
		Status:        string(rec.Status),
		CalculatedAt:  rec.CalculatedAt,
		PaidAt:        rec.PaidAt,
		PaidBy:        rec.PaidBy,
	}
}

type lineResultResponse struct {
	OrderLineID string `json:"orderLineId"`
	Records     int    `json:"records"`
	Error       string `json:"error,omitempty"`
}

type calculationResponse struct {
	OrderID      string               `json:"orderId"`
	Success      bool                 `json:"success"`
	Outcome      string               `json:"outcome"`
	TotalRecords int                  `json:"totalRecords"`
	TotalAmount  string               `json:"totalAmount"`
	Lines        []lineResultResponse `json:"lines"`
	Errors       []string             `json:"errors,omitempty"`
}

func toCalculationResponse(result *models.CalculationResult) calculationResponse {
	lines := make([]lineResultResponse, 0, len(result.Lines))
	for _, line := range result.Lines {
		lines = append(lines, lineResultResponse{
			OrderLineID: line.OrderLineID.String(),
			Records:     line.Records,
			Error:       line.Err,
		})
	}
	return calculationResponse{
		OrderID:      result.OrderID.String(),
		Success:      result.Success,
		Outcome:      string(result.Outcome),
		TotalRecords: result.TotalRecords,
		TotalAmount:  result.TotalAmount.String(),
		Lines:        lines,
		Errors:       result.Errors,
	}
}

type calculationLogResponse struct {
	OrderID     string    `json:"orderId"`
	TotalAmount string    `json:"totalAmount"`
	RecordCount int       `json:"recordCount"`
	Outcome     string    `json:"outcome"`
	ProcessedBy string    `json:"processedBy"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toCalculationLogResponse(entry *models.CalculationLog) calculationLogResponse {
	return calculationLogResponse{
		OrderID:     entry.OrderID.String(),
		TotalAmount: entry.TotalAmount.String(),
		RecordCount: entry.RecordCount,
		Outcome:     string(entry.Outcome),
		ProcessedBy: entry.ProcessedBy,
		Notes:       entry.Notes,
		CreatedAt:   entry.CreatedAt,
	}
}

type levelTotalsResponse struct {
	Earned  string `json:"earned"`
	Paid    string `json:"paid"`
	Pending string `json:"pending"`
	Sales   string `json:"sales"`
}

type summaryResponse struct {
	BeneficiaryID string                         `json:"beneficiaryId"`
	TotalEarned   string                         `json:"totalEarned"`
	TotalPaid     string                         `json:"totalPaid"`
	TotalPending  string                         `json:"totalPending"`
	TotalSales    string                         `json:"totalSales"`
	ByLevel       map[string]levelTotalsResponse `json:"byLevel"`
}

func toSummaryResponse(summary *models.Summary) summaryResponse {
	byLevel := make(map[string]levelTotalsResponse, len(summary.ByLevel))
	for level, totals := range summary.ByLevel {
		byLevel[string(level)] = levelTotalsResponse{
			Earned:  totals.Earned.String(),
			Paid:    totals.Paid.String(),
			Pending: totals.Pending.String(),
			Sales:   totals.Sales.String(),
		}
	}
	return summaryResponse{
		BeneficiaryID: summary.Beneficiary.String(),
		TotalEarned:   summary.TotalEarned.String(),
		TotalPaid:     summary.TotalPaid.String(),
		TotalPending:  summary.TotalPending.String(),
		TotalSales:    summary.TotalSales.String(),
		ByLevel:       byLevel,
	}
}

type lineShareResponse struct {
	OrderLineID string `json:"orderLineId"`
	ProductID   string `json:"productId"`
	Quantity    int    `json:"quantity"`
	BaseAmount  string `json:"baseAmount"`
	Amount      string `json:"amount"`
}

type orderDigestResponse struct {
	OrderID      string              `json:"orderId"`
	Level        string              `json:"level"`
	Amount       string              `json:"amount"`
	CalculatedAt time.Time           `json:"calculatedAt"`
	Lines        []lineShareResponse `json:"lines"`
}

func toOrderDigestResponse(digest models.OrderDigest) orderDigestResponse {
	lines := make([]lineShareResponse, 0, len(digest.Lines))
	for _, line := range digest.Lines {
		lines = append(lines, lineShareResponse{
			OrderLineID: line.OrderLineID.String(),
			ProductID:   line.ProductID.String(),
			Quantity:    line.Quantity,
			BaseAmount:  line.BaseAmount.String(),
			Amount:      line.Amount.String(),
		})
	}
	return orderDigestResponse{
		OrderID:      digest.OrderID.String(),
		Level:        string(digest.Level),
		Amount:       digest.Amount.String(),
		CalculatedAt: digest.CalculatedAt,
		Lines:        lines,
	}
}

type globalStatsResponse struct {
	TotalRecords  int               `json:"totalRecords"`
	TotalAmount   string            `json:"totalAmount"`
	PaidRecords   int               `json:"paidRecords"`
	PaidAmount    string            `json:"paidAmount"`
	ByLevelCount  map[string]int    `json:"byLevelCount"`
	ByLevelAmount map[string]string `json:"byLevelAmount"`
}

func toGlobalStatsResponse(stats *models.GlobalStats) globalStatsResponse {
	byCount := make(map[string]int, len(stats.ByLevelCount))
	for level, count := range stats.ByLevelCount {
		byCount[string(level)] = count
	}
	byAmount := make(map[string]string, len(stats.ByLevelAmount))
	for level, amount := range stats.ByLevelAmount {
		byAmount[string(level)] = amount.String()
	}
	return globalStatsResponse{
		TotalRecords:  stats.TotalRecords,
		TotalAmount:   stats.TotalAmount.String(),
		PaidRecords:   stats.PaidRecords,
		PaidAmount:    stats.PaidAmount.String(),
		ByLevelCount:  byCount,
		ByLevelAmount: byAmount,
	}
}
