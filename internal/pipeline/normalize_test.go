package pipeline

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/amazon-finance-sync/internal/domain"
)

func shipmentEvent(orderID, postedDate, sku string, qty int, charges []any) domain.RawEvent {
	return domain.RawEvent{
		"ShipmentEventList": []any{
			map[string]any{
				"AmazonOrderId": orderID,
				"PostedDate":    postedDate,
				"ShipmentItemList": []any{
					map[string]any{
						"SellerSKU":       sku,
						"QuantityShipped": float64(qty),
						"ItemChargeList":  charges,
					},
				},
			},
		},
	}
}

func charge(chargeType, currency string, amount float64) map[string]any {
	return map[string]any{
		"ChargeType": chargeType,
		"ChargeAmount": map[string]any{
			"CurrencyCode":   currency,
			"CurrencyAmount": amount,
		},
	}
}

func TestNormalize_SingleShipmentCharge(t *testing.T) {
	events := []domain.RawEvent{
		shipmentEvent("X1", "2024-01-01T00:00:00Z", "SKU-A", 3,
			[]any{charge("Principal", "USD", 10.00)}),
	}

	txs, stats := Normalize(events)

	if stats.Total() != 0 {
		t.Errorf("stats = %+v, want no skips", stats)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}

	tx := txs[0]
	if tx.TransactionID != "X1-SKU-A-Principal-2024-01-01T00:00:00Z" {
		t.Errorf("TransactionID = %q", tx.TransactionID)
	}
	if tx.EventType != "ShipmentEvent" {
		t.Errorf("EventType = %q, want ShipmentEvent", tx.EventType)
	}
	if tx.AmazonOrderID == nil || *tx.AmazonOrderID != "X1" {
		t.Errorf("AmazonOrderID = %v, want X1", tx.AmazonOrderID)
	}
	if tx.SellerSKU == nil || *tx.SellerSKU != "SKU-A" {
		t.Errorf("SellerSKU = %v, want SKU-A", tx.SellerSKU)
	}
	if tx.Quantity != 3 {
		t.Errorf("Quantity = %d, want 3", tx.Quantity)
	}
	if !tx.CurrencyAmount.Equal(decimal.RequireFromString("10")) {
		t.Errorf("CurrencyAmount = %s, want 10", tx.CurrencyAmount)
	}
	if tx.CurrencyCode != "USD" {
		t.Errorf("CurrencyCode = %q, want USD", tx.CurrencyCode)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !tx.PostedDate.Equal(want) {
		t.Errorf("PostedDate = %v, want %v", tx.PostedDate, want)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	events := []domain.RawEvent{
		shipmentEvent("X1", "2024-01-01T00:00:00Z", "SKU-A", 3,
			[]any{charge("Principal", "USD", 10.00), charge("Tax", "USD", 1.50)}),
	}

	first, _ := Normalize(events)
	second, _ := Normalize(events)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d and %d transactions, want 2 each", len(first), len(second))
	}
	for i := range first {
		if first[i].TransactionID != second[i].TransactionID {
			t.Errorf("run 1 id %q != run 2 id %q", first[i].TransactionID, second[i].TransactionID)
		}
	}
}

func TestNormalize_AdjustmentSignFlip(t *testing.T) {
	events := []domain.RawEvent{
		{
			"AdjustmentEventList": []any{
				map[string]any{
					"PostedDate": "2024-02-01T12:00:00Z",
					"ShipmentItemAdjustmentList": []any{
						map[string]any{
							"SellerSKU":       "SKU-B",
							"QuantityShipped": float64(4),
							"ItemChargeAdjustmentList": []any{
								charge("Principal", "USD", -10.00),
							},
						},
					},
				},
			},
		},
	}

	txs, _ := Normalize(events)

	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].Quantity != -4 {
		t.Errorf("Quantity = %d, want -4 (adjustment negates magnitude)", txs[0].Quantity)
	}
	if txs[0].AmazonOrderID != nil {
		t.Errorf("AmazonOrderID = %v, want nil for adjustment without order", txs[0].AmazonOrderID)
	}
	if txs[0].TransactionID != "-SKU-B-Principal-2024-02-01T12:00:00Z" {
		t.Errorf("TransactionID = %q", txs[0].TransactionID)
	}
}

func TestNormalize_NonAdjustmentKeepsSign(t *testing.T) {
	tests := []struct {
		name string
		qty  int
		want int
	}{
		{"positive", 3, 3},
		{"zero", 0, 0},
		{"negative source left untouched", -2, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := []domain.RawEvent{
				shipmentEvent("X1", "2024-01-01T00:00:00Z", "SKU-A", tt.qty,
					[]any{charge("Principal", "USD", 5.00)}),
			}
			txs, _ := Normalize(events)
			if len(txs) != 1 {
				t.Fatalf("got %d transactions, want 1", len(txs))
			}
			if txs[0].Quantity != tt.want {
				t.Errorf("Quantity = %d, want %d", txs[0].Quantity, tt.want)
			}
		})
	}
}

func TestNormalize_FallbackChargeKey(t *testing.T) {
	events := []domain.RawEvent{
		{
			"RefundEventList": []any{
				map[string]any{
					"AmazonOrderId": "R1",
					"PostedDate":    "2024-03-01T00:00:00Z",
					"ShipmentItemAdjustmentList": []any{
						map[string]any{
							"SellerSKU":       "SKU-C",
							"QuantityShipped": float64(1),
							"ItemChargeAdjustmentList": []any{
								charge("Principal", "EUR", -7.99),
							},
						},
					},
				},
			},
		},
	}

	txs, _ := Normalize(events)

	if len(txs) != 1 {
		t.Fatalf("fallback keys yielded %d transactions, want 1", len(txs))
	}
	// RefundEvent carries no Adjustment marker in its kind name, so the
	// quantity keeps its source sign.
	if txs[0].Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", txs[0].Quantity)
	}
	if txs[0].EventType != "RefundEvent" {
		t.Errorf("EventType = %q, want RefundEvent", txs[0].EventType)
	}
}

func TestNormalize_SkipPolicies(t *testing.T) {
	tests := []struct {
		name      string
		events    []domain.RawEvent
		wantTxs   int
		wantStats NormalizeStats
	}{
		{
			name:      "unknown envelope kind",
			events:    []domain.RawEvent{{"SomethingElse": []any{map[string]any{}}}},
			wantTxs:   0,
			wantStats: NormalizeStats{UnknownEnvelopes: 1},
		},
		{
			name:      "envelope with no keys",
			events:    []domain.RawEvent{{}},
			wantTxs:   0,
			wantStats: NormalizeStats{UnknownEnvelopes: 1},
		},
		{
			name: "missing posted date skips the record",
			events: []domain.RawEvent{
				{
					"ShipmentEventList": []any{
						map[string]any{"AmazonOrderId": "X1"},
					},
				},
			},
			wantTxs:   0,
			wantStats: NormalizeStats{BadDates: 1},
		},
		{
			name: "malformed posted date skips the record",
			events: []domain.RawEvent{
				{
					"ShipmentEventList": []any{
						map[string]any{"PostedDate": "not-a-date"},
					},
				},
			},
			wantTxs:   0,
			wantStats: NormalizeStats{BadDates: 1},
		},
		{
			name: "charge without type skipped",
			events: []domain.RawEvent{
				shipmentEvent("X1", "2024-01-01T00:00:00Z", "SKU-A", 1, []any{
					map[string]any{
						"ChargeAmount": map[string]any{"CurrencyCode": "USD", "CurrencyAmount": 1.0},
					},
					charge("Principal", "USD", 2.00),
				}),
			},
			wantTxs:   1,
			wantStats: NormalizeStats{SkippedCharges: 1},
		},
		{
			name: "charge without amount document skipped",
			events: []domain.RawEvent{
				shipmentEvent("X1", "2024-01-01T00:00:00Z", "SKU-A", 1, []any{
					map[string]any{"ChargeType": "Principal"},
				}),
			},
			wantTxs:   0,
			wantStats: NormalizeStats{SkippedCharges: 1},
		},
		{
			name: "record missing both item keys yields nothing",
			events: []domain.RawEvent{
				{
					"ShipmentEventList": []any{
						map[string]any{"PostedDate": "2024-01-01T00:00:00Z"},
					},
				},
			},
			wantTxs:   0,
			wantStats: NormalizeStats{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, stats := Normalize(tt.events)
			if len(txs) != tt.wantTxs {
				t.Errorf("got %d transactions, want %d", len(txs), tt.wantTxs)
			}
			if !reflect.DeepEqual(stats, tt.wantStats) {
				t.Errorf("stats = %+v, want %+v", stats, tt.wantStats)
			}
		})
	}
}

func TestNormalize_Empty(t *testing.T) {
	txs, stats := Normalize(nil)
	if len(txs) != 0 {
		t.Errorf("got %d transactions, want 0", len(txs))
	}
	if stats.Total() != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestNormalize_JSONNumberAmountsKeepDigits(t *testing.T) {
	// Amounts decoded with json.Decoder.UseNumber survive exactly, even with
	// more than two fractional digits.
	events := []domain.RawEvent{
		shipmentEvent("X1", "2024-01-01T00:00:00Z", "SKU-A", 1, []any{
			map[string]any{
				"ChargeType": "Commission",
				"ChargeAmount": map[string]any{
					"CurrencyCode":   "USD",
					"CurrencyAmount": json.Number("10.995"),
				},
			},
		}),
	}

	txs, _ := Normalize(events)

	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if got := txs[0].CurrencyAmount.String(); got != "10.995" {
		t.Errorf("CurrencyAmount = %s, want 10.995", got)
	}
}

func TestParsePostedDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "Z suffix treated as UTC",
			input: "2024-01-01T00:00:00Z",
			want:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "explicit offset",
			input: "2024-01-01T05:30:00+05:30",
			want:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "bare timestamp taken as UTC",
			input: "2024-01-01T00:00:00",
			want:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "yesterday",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePostedDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePostedDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && !got.Equal(tt.want) {
				t.Errorf("parsePostedDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
