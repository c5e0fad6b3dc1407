package processors

import "errors"

// ErrUnresolvableSale tags a sale whose quantity exceeds the recorded
// purchase history. Aggregations treat it as a data integrity warning and
// keep going; it must never surface as a silent zero-cost gain.
var ErrUnresolvableSale = errors.New("sale quantity exceeds recorded purchases")
