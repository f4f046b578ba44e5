package pricing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Product is the read-only catalog reference a cart line is built from.
type Product struct {
	ID                    string  `json:"id"`
	BasePrice             Money   `json:"basePrice"`
	SellerDiscountPercent Percent `json:"sellerDiscountPercent"`
}

// CartLine is one line of the cart snapshot taken at calculation time.
type CartLine struct {
	ProductID             string  `json:"productId"`
	SellerID              string  `json:"sellerId"`
	UnitPrice             Money   `json:"unitPrice"`
	Quantity              int     `json:"quantity"`
	SellerDiscountPercent Percent `json:"sellerDiscountPercent"`
	// Volume overrides the policy-wide volume rules for this line when set.
	Volume VolumeRules `json:"-"`
}

// LineFromProduct snapshots a product into a cart line.
func LineFromProduct(p Product, sellerID string, qty int) CartLine {
	return CartLine{
		ProductID:             p.ID,
		SellerID:              sellerID,
		UnitPrice:             p.BasePrice,
		Quantity:              qty,
		SellerDiscountPercent: p.SellerDiscountPercent,
	}
}

// VolumeRule grants Percent off once a line reaches MinQuantity units.
type VolumeRule struct {
	MinQuantity int     `json:"minQuantity"`
	Percent     Percent `json:"percent"`
}

// VolumeRules selects the volume rule applicable to a quantity.
type VolumeRules interface {
	Match(qty int) (VolumeRule, bool)
}

// VolumeSchedule is the default VolumeRules implementation.
type VolumeSchedule []VolumeRule

// Match returns the rule with the largest MinQuantity not above qty. When
// several rules share that threshold the largest percent wins.
func (s VolumeSchedule) Match(qty int) (VolumeRule, bool) {
	var (
		best  VolumeRule
		found bool
	)
	for _, r := range s {
		if r.MinQuantity > qty {
			continue
		}
		if !found || r.MinQuantity > best.MinQuantity ||
			(r.MinQuantity == best.MinQuantity && r.Percent.Cmp(best.Percent) > 0) {
			best = r
			found = true
		}
	}
	return best, found
}

// Validate rejects thresholds below one unit and out-of-range percentages.
func (s VolumeSchedule) Validate() error {
	for _, r := range s {
		if r.MinQuantity <= 0 {
			return fmt.Errorf("%w: volume threshold %d", ErrInvalidAmount, r.MinQuantity)
		}
		if !r.Percent.valid() {
			return fmt.Errorf("%w: volume percent %s", ErrInvalidAmount, r.Percent)
		}
	}
	return nil
}

// ParseVolumeSchedule parses "minQty:percent" pairs separated by commas, e.g. "3:5,10:10".
func ParseVolumeSchedule(value string) (VolumeSchedule, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make(VolumeSchedule, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		minRaw, pctRaw, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: volume rule %q", ErrInvalidAmount, part)
		}
		minQty, err := strconv.Atoi(strings.TrimSpace(minRaw))
		if err != nil {
			return nil, fmt.Errorf("%w: volume threshold %q", ErrInvalidAmount, minRaw)
		}
		pct, err := NewPercent(pctRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, VolumeRule{MinQuantity: minQty, Percent: pct})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinQuantity < out[j].MinQuantity })
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// LineBreakdown is the resolved pricing of a single cart line.
type LineBreakdown struct {
	ProductID            string      `json:"productId"`
	SellerID             string      `json:"sellerId"`
	Quantity             int         `json:"quantity"`
	LineOriginal         Money       `json:"lineOriginal"`
	SellerDiscountAmount Money       `json:"sellerDiscountAmount"`
	AfterSellerDiscount  Money       `json:"afterSellerDiscount"`
	VolumeRule           *VolumeRule `json:"volumeRule,omitempty"`
	VolumeDiscountAmount Money       `json:"volumeDiscountAmount"`
	AfterVolumeDiscount  Money       `json:"afterVolumeDiscount"`
}

// CheckAmounts rejects a unit price with more fractional digits than scale
// and a seller discount outside 0..100. Amounts are never rounded to fit.
func CheckAmounts(line CartLine, scale int32) error {
	if !line.UnitPrice.FitsScale(scale) {
		return fmt.Errorf("%w: product %s unit price %s exceeds scale %d", ErrInvalidAmount, line.ProductID, line.UnitPrice.Decimal(), scale)
	}
	if !line.SellerDiscountPercent.valid() {
		return fmt.Errorf("%w: product %s seller discount %s", ErrInvalidAmount, line.ProductID, line.SellerDiscountPercent)
	}
	return nil
}

// ResolveLine prices one line: original, then seller discount, then the best
// volume rule. Each discount stage is rounded once at scale.
func ResolveLine(line CartLine, rules VolumeRules, scale int32) (LineBreakdown, error) {
	if line.Quantity <= 0 {
		return LineBreakdown{}, fmt.Errorf("%w: product %s quantity %d", ErrInvalidLine, line.ProductID, line.Quantity)
	}
	if line.UnitPrice.IsNegative() {
		return LineBreakdown{}, fmt.Errorf("%w: product %s unit price %s", ErrInvalidLine, line.ProductID, line.UnitPrice)
	}
	if err := CheckAmounts(line, scale); err != nil {
		return LineBreakdown{}, err
	}
	if line.Volume != nil {
		rules = line.Volume
	}

	original, err := line.UnitPrice.MulQty(line.Quantity)
	if err != nil {
		return LineBreakdown{}, err
	}
	afterSeller := original.MultiplyByPercent(line.SellerDiscountPercent.Complement()).RoundHalfUp(scale)

	out := LineBreakdown{
		ProductID:            line.ProductID,
		SellerID:             line.SellerID,
		Quantity:             line.Quantity,
		LineOriginal:         original,
		SellerDiscountAmount: original.Sub(afterSeller),
		AfterSellerDiscount:  afterSeller,
		AfterVolumeDiscount:  afterSeller,
	}
	if rules == nil {
		return out, nil
	}
	rule, ok := rules.Match(line.Quantity)
	if !ok {
		return out, nil
	}
	if !rule.Percent.valid() {
		return LineBreakdown{}, fmt.Errorf("%w: volume percent %s", ErrInvalidAmount, rule.Percent)
	}
	afterVolume := afterSeller.MultiplyByPercent(rule.Percent.Complement()).RoundHalfUp(scale)
	out.VolumeRule = &rule
	out.VolumeDiscountAmount = afterSeller.Sub(afterVolume)
	out.AfterVolumeDiscount = afterVolume
	return out, nil
}
