package stock

// costEpsilon guards float comparisons on quantities.
const costEpsilon = 1e-9

// WeightedAverage folds an inbound receipt into the running average cost of a
// location. When the location is empty (or was driven to zero) the incoming
// cost becomes the new average. With nothing on hand and nothing incoming the
// incoming cost wins, then the current average, then zero.
func WeightedAverage(onHand, avgCost, inQty, inCost float64) float64 {
	if onHand <= costEpsilon && inQty <= costEpsilon {
		return inCost
	}
	total := onHand + inQty
	if total <= costEpsilon {
		if inCost != 0 {
			return inCost
		}
		return avgCost
	}
	if onHand <= costEpsilon {
		return inCost
	}
	return (onHand*avgCost + inQty*inCost) / total
}

// OutboundCost picks the unit cost carried on a decreasing or issue entry:
// the explicit cost when the caller resolved one, otherwise the location
// average, otherwise the item's nominal cost.
func OutboundCost(explicit, locationAvg, itemCost float64) float64 {
	if explicit > 0 {
		return explicit
	}
	if locationAvg > 0 {
		return locationAvg
	}
	return itemCost
}
