package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeightedAverage(t *testing.T) {
	require.InDelta(t, 100.0, WeightedAverage(0, 0, 10, 100), 0.0001)
	require.InDelta(t, 4.0, WeightedAverage(10, 3, 10, 5), 0.0001)
	require.InDelta(t, 106.6667, WeightedAverage(10, 100, 5, 120), 0.001)
	// receipt into an emptied location resets the average
	require.InDelta(t, 80.0, WeightedAverage(0, 120, 4, 80), 0.0001)
	// zero inbound quantity leaves the average untouched
	require.InDelta(t, 120.0, WeightedAverage(3, 120, 0, 55), 0.0001)
}

func TestWeightedAverageFallbacks(t *testing.T) {
	// nothing on hand and nothing incoming: the incoming cost wins
	require.InDelta(t, 55.0, WeightedAverage(0, 120, 0, 55), 0.0001)
	require.InDelta(t, 0.0, WeightedAverage(0, 120, 0, 0), 0.0001)
	// total driven nonpositive: incoming cost, then current average
	require.InDelta(t, 55.0, WeightedAverage(2, 120, -2, 55), 0.0001)
	require.InDelta(t, 120.0, WeightedAverage(2, 120, -2, 0), 0.0001)
}

func TestOutboundCost(t *testing.T) {
	require.InDelta(t, 42.0, OutboundCost(42, 30, 20), 0.0001)
	require.InDelta(t, 30.0, OutboundCost(0, 30, 20), 0.0001)
	require.InDelta(t, 20.0, OutboundCost(0, 0, 20), 0.0001)
}

func TestTransactionTypePrefix(t *testing.T) {
	require.Equal(t, "REC", TransactionTypeReceiveInvoice.Prefix())
	require.Equal(t, "ISS", TransactionTypeIssueWorkOrder.Prefix())
	require.Equal(t, "TRA", TransactionTypeTransferOut.Prefix())
	require.Equal(t, "CAN", TransactionTypeCancelWorkOrder.Prefix())
}

func TestLocationRefValid(t *testing.T) {
	require.True(t, LocationRef{WarehouseID: 1}.Valid())
	require.True(t, LocationRef{DeviceID: 2}.Valid())
	require.False(t, LocationRef{}.Valid())
	require.False(t, LocationRef{WarehouseID: 1, DeviceID: 2}.Valid())
}
