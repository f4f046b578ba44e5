package pricing

// CartSubtotals sums resolved lines into order-level figures, keeping seller
// and volume discounts apart.
type CartSubtotals struct {
	SubtotalOriginal            Money `json:"subtotalOriginal"`
	SellerDiscountTotal         Money `json:"sellerDiscountTotal"`
	SubtotalAfterSellerDiscount Money `json:"subtotalAfterSellerDiscount"`
	VolumeDiscountTotal         Money `json:"volumeDiscountTotal"`
	SubtotalAfterVolumeDiscount Money `json:"subtotalAfterVolumeDiscount"`
}

// Aggregate sums lines of any number of sellers as a single order. No
// rounding happens here; every figure is an exact sum of per-line values.
func Aggregate(lines []LineBreakdown) CartSubtotals {
	var out CartSubtotals
	for _, l := range lines {
		out.SubtotalOriginal = out.SubtotalOriginal.Add(l.LineOriginal)
		out.SellerDiscountTotal = out.SellerDiscountTotal.Add(l.SellerDiscountAmount)
		out.SubtotalAfterSellerDiscount = out.SubtotalAfterSellerDiscount.Add(l.AfterSellerDiscount)
		out.VolumeDiscountTotal = out.VolumeDiscountTotal.Add(l.VolumeDiscountAmount)
		out.SubtotalAfterVolumeDiscount = out.SubtotalAfterVolumeDiscount.Add(l.AfterVolumeDiscount)
	}
	return out
}
