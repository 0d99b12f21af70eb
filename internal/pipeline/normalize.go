package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/amazon-finance-sync/internal/domain"
)

const (
	listSuffix       = "List"
	adjustmentMarker = "Adjustment"
)

// eventVariants enumerates the financial-event list keys the normalizer
// understands, in the order they are probed. An envelope whose key is not in
// this table is dropped rather than guessed at.
var eventVariants = []string{
	"ShipmentEventList",
	"RefundEventList",
	"GuaranteeClaimEventList",
	"ChargebackEventList",
	"PayWithAmazonEventList",
	"ServiceProviderCreditEventList",
	"RetrochargeEventList",
	"RentalTransactionEventList",
	"ProductAdsPaymentEventList",
	"ServiceFeeEventList",
	"SellerDealPaymentEventList",
	"DebtRecoveryEventList",
	"LoanServicingEventList",
	"AdjustmentEventList",
	"ShipmentEventAdjustmentList",
	"SAFETReimbursementEventList",
	"SellerReviewEnrollmentPaymentEventList",
	"FBALiquidationEventList",
	"CouponPaymentEventList",
	"ImagingServicesFeeEventList",
	"NetworkComminglingTransactionEventList",
	"AffordabilityExpenseEventList",
	"AffordabilityExpenseReversalEventList",
	"TrialShipmentEventList",
	"ShipmentSettleEventList",
	"TaxWithholdingEventList",
	"RemovalShipmentEventList",
	"RemovalShipmentAdjustmentEventList",
}

// Alternative key names for the nested sequences: the normal-variant key is
// preferred, the adjustment-variant key is the fallback.
var (
	itemListKeys   = [2]string{"ShipmentItemList", "ShipmentItemAdjustmentList"}
	chargeListKeys = [2]string{"ItemChargeList", "ItemChargeAdjustmentList"}
)

// NormalizeStats counts the source data skipped at each granularity.
// Skips are expected (partial or unknown-shaped payloads) and never abort
// normalization.
type NormalizeStats struct {
	UnknownEnvelopes int
	BadDates         int
	SkippedRecords   int
	SkippedItems     int
	SkippedCharges   int
}

// Total returns the number of skipped elements across all granularities.
func (s NormalizeStats) Total() int {
	return s.UnknownEnvelopes + s.BadDates + s.SkippedRecords + s.SkippedItems + s.SkippedCharges
}

// Normalize flattens raw event envelopes into canonical transactions.
// It is a pure function: no I/O, no logging; callers report the stats.
//
// A record whose PostedDate is missing or malformed is skipped and counted in
// BadDates, extending the skip-on-malformed policy to date parsing.
func Normalize(events []domain.RawEvent) ([]domain.Transaction, NormalizeStats) {
	var (
		out   []domain.Transaction
		stats NormalizeStats
	)

	for _, event := range events {
		key, records := classifyEnvelope(event)
		if key == "" {
			stats.UnknownEnvelopes++
			continue
		}
		eventType := strings.TrimSuffix(key, listSuffix)
		adjustment := strings.Contains(key, adjustmentMarker)

		for _, r := range records {
			record, ok := r.(map[string]any)
			if !ok {
				stats.SkippedRecords++
				continue
			}

			rawDate := getStringField(record, "PostedDate")
			postedDate, err := parsePostedDate(rawDate)
			if err != nil {
				stats.BadDates++
				continue
			}
			orderID := getOptionalStringField(record, "AmazonOrderId")

			for _, it := range listField(record, itemListKeys) {
				item, ok := it.(map[string]any)
				if !ok {
					stats.SkippedItems++
					continue
				}
				sku := getOptionalStringField(item, "SellerSKU")
				quantity := getIntField(item, "QuantityShipped")
				if adjustment {
					quantity = -abs(quantity)
				}

				for _, ch := range listField(item, chargeListKeys) {
					charge, ok := ch.(map[string]any)
					if !ok {
						stats.SkippedCharges++
						continue
					}
					chargeType := getStringField(charge, "ChargeType")
					amount, ok := charge["ChargeAmount"].(map[string]any)
					if chargeType == "" || len(amount) == 0 {
						stats.SkippedCharges++
						continue
					}

					out = append(out, domain.Transaction{
						TransactionID: fmt.Sprintf("%s-%s-%s-%s",
							derefString(orderID), derefString(sku), chargeType, rawDate),
						AmazonOrderID:  orderID,
						EventType:      eventType,
						PostedDate:     postedDate,
						PostedDateRaw:  rawDate,
						SellerSKU:      sku,
						ChargeType:     chargeType,
						CurrencyCode:   getStringField(amount, "CurrencyCode"),
						CurrencyAmount: getDecimalField(amount, "CurrencyAmount"),
						Quantity:       quantity,
					})
				}
			}
		}
	}

	return out, stats
}

// classifyEnvelope matches the envelope against the variant table and returns
// the matched key plus its record sequence. An empty key means no known
// variant was present.
func classifyEnvelope(event domain.RawEvent) (string, []any) {
	for _, key := range eventVariants {
		v, ok := event[key]
		if !ok {
			continue
		}
		if records, ok := v.([]any); ok {
			return key, records
		}
	}
	return "", nil
}

// parsePostedDate parses the source's ISO-8601 timestamp. A literal trailing
// Z is the UTC offset; a bare timestamp without offset is taken as UTC.
func parsePostedDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("posted date is empty")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid posted date %q: %w", raw, err)
	}
	return t, nil
}

// listField returns the sequence under the first present of the two
// alternative keys; absent-both yields nil.
func listField(m map[string]any, keys [2]string) []any {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if list, ok := v.([]any); ok {
				return list
			}
		}
	}
	return nil
}

func getStringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getOptionalStringField(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.(string); ok && s != "" {
		return &s
	}
	return nil
}

// getIntField reads an integer that may arrive as json.Number, float64 or
// int, defaulting to 0.
func getIntField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// getDecimalField reads a monetary amount as an exact decimal. json.Number
// values keep their source digits; float64 is accepted for payloads decoded
// without UseNumber.
func getDecimalField(m map[string]any, key string) decimal.Decimal {
	switch v := m[key].(type) {
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.Zero
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
