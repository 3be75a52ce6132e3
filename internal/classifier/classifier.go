package classifier

import (
	"github.com/dericksozo/telegram-whale-tracker/pkg/models"
)

// alertable are the activity kinds eligible for whale alerts. receive is
// eligible only when no sibling send covers the same transfer.
var alertable = map[models.ActivityKind]bool{
	models.KindSend:    true,
	models.KindSwap:    true,
	models.KindMint:    true,
	models.KindBurn:    true,
	models.KindReceive: true,
}

// ActivityResult is the outcome of classifying one activities batch.
type ActivityResult struct {
	// Eligible holds the surviving rows in their original payload order.
	Eligible []models.Activity
	// Counts tallies every row by its raw type, eligible or not.
	Counts map[string]int
}

// ClassifyActivities normalizes a batch of activity rows, counts each row
// by type, and filters down to the rows that should alert:
//
//  1. rows are grouped by tx_hash
//  2. only send/swap/mint/burn/receive kinds survive
//  3. a receive is suppressed when any row in its tx_hash group is a send
//     (the counterparty side of a transfer already covered by the send)
//  4. rows without an erc20 asset type or a token address are dropped
//
// Order across the batch is preserved so alerts go out in payload order.
// A receive with no sibling send still alerts; transfers between two
// tracked whales must not go silent.
func ClassifyActivities(activities []models.Activity) ActivityResult {
	res := ActivityResult{
		Eligible: make([]models.Activity, 0, len(activities)),
		Counts:   make(map[string]int),
	}

	// Full-batch grouping happens before any filtering decision; receive
	// suppression needs to see sends anywhere in the same transaction.
	byTxHash := make(map[string][]models.Activity)
	for _, act := range activities {
		byTxHash[act.TxHash] = append(byTxHash[act.TxHash], act)
	}

	for _, act := range activities {
		kind := act.Kind()

		// Count every row for the response summary, including the ones
		// dropped below.
		typeLabel := act.Type
		if typeLabel == "" {
			typeLabel = string(models.KindUnknown)
		}
		res.Counts[typeLabel]++

		if !alertable[kind] {
			continue
		}

		if kind == models.KindReceive && hasSend(byTxHash[act.TxHash]) {
			continue
		}

		if act.AssetType != models.AssetERC20 || act.TokenAddress == "" {
			continue
		}

		res.Eligible = append(res.Eligible, act)
	}

	return res
}

// hasSend reports whether any row in a tx_hash group is a send.
func hasSend(group []models.Activity) bool {
	for _, act := range group {
		if act.Kind() == models.KindSend {
			return true
		}
	}
	return false
}

// CountTransactions tallies a transactions batch by outcome.
func CountTransactions(txs []models.Transaction) map[string]int {
	counts := make(map[string]int)
	for _, tx := range txs {
		if tx.Success {
			counts["success"]++
		} else {
			counts["failed"]++
		}
	}
	return counts
}

// BalanceChangeResult is the outcome of classifying a balance-changes batch.
type BalanceChangeResult struct {
	// Eligible holds erc20 changes with a token address, in payload order.
	Eligible []models.BalanceChange
	// Counts tallies every row by direction.
	Counts map[string]int
}

// ClassifyBalanceChanges counts rows by direction and keeps the erc20 rows
// that can drive a direction-based alert.
func ClassifyBalanceChanges(changes []models.BalanceChange) BalanceChangeResult {
	res := BalanceChangeResult{
		Eligible: make([]models.BalanceChange, 0, len(changes)),
		Counts:   make(map[string]int),
	}

	for _, ch := range changes {
		switch ch.Direction {
		case "in":
			res.Counts["in"]++
		case "out":
			res.Counts["out"]++
		default:
			res.Counts["unknown"]++
		}

		if ch.Asset != models.AssetERC20 || ch.TokenAddress == "" {
			continue
		}
		res.Eligible = append(res.Eligible, ch)
	}

	return res
}
