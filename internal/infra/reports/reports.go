package reports

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/perkline/perkline/internal/domain/inventory"
	"github.com/perkline/perkline/internal/domain/money"
	"github.com/perkline/perkline/internal/domain/treasury"
)

// BuildStatement renders the current batch inventory and treasury position
// as an xlsx workbook for offline review.
func BuildStatement(batches []inventory.Batch, state treasury.State, buckets []treasury.BucketState) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(sheet, "Batches"); err != nil {
		return nil, err
	}

	header := []interface{}{
		"batch_id", "product_type", "code", "lab_ref",
		"cost_fiat", "margin_bps", "regular_rate", "discounted_rate",
		"total_stock", "remaining_stock", "active",
	}
	if err := f.SetSheetRow("Batches", "A1", &header); err != nil {
		return nil, err
	}
	row := 2
	for _, b := range batches {
		r := []interface{}{
			b.ID, b.ProductType, b.Code, b.LabRef,
			money.Format(b.CostFiat, money.FiatDecimals),
			b.MarginBps,
			money.Format(b.RegularRate, money.TokenDecimals),
			money.Format(b.DiscountedRate, money.TokenDecimals),
			b.TotalStock, b.RemainingStock, b.Active,
		}
		if err := f.SetSheetRow("Batches", fmt.Sprintf("A%d", row), &r); err != nil {
			return nil, err
		}
		row++
	}

	if _, err := f.NewSheet("Treasury"); err != nil {
		return nil, err
	}
	summary := [][]interface{}{
		{"token_balance", money.Format(state.TokenBalance, money.TokenDecimals)},
		{"stable_balance", money.Format(state.StableBalance, money.FiatDecimals)},
		{"revenue_membership", money.Format(state.RevenueMembership, money.TokenDecimals)},
		{"revenue_sale", money.Format(state.RevenueSale, money.FiatDecimals)},
		{"revenue_product", money.Format(state.RevenueProduct, money.FiatDecimals)},
	}
	for i, r := range summary {
		rr := r
		if err := f.SetSheetRow("Treasury", fmt.Sprintf("A%d", i+1), &rr); err != nil {
			return nil, err
		}
	}
	bucketHeader := []interface{}{"bucket", "currency", "allocated", "spent", "outstanding"}
	if err := f.SetSheetRow("Treasury", "A7", &bucketHeader); err != nil {
		return nil, err
	}
	row = 8
	for _, b := range buckets {
		dec := money.TokenDecimals
		if b.Currency == treasury.CurrencyStable {
			dec = money.FiatDecimals
		}
		r := []interface{}{
			string(b.Bucket), string(b.Currency),
			money.Format(b.Allocated, dec),
			money.Format(b.Spent, dec),
			money.Format(b.Outstanding(), dec),
		}
		if err := f.SetSheetRow("Treasury", fmt.Sprintf("A%d", row), &r); err != nil {
			return nil, err
		}
		row++
	}

	return f.WriteToBuffer()
}
