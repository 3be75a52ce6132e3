package telegram

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/dericksozo/telegram-whale-tracker/pkg/models"
)

const unknownTokenSymbol = "UNKNOWN"

// severityBreakpoints are the USD notionals (ascending) at which a
// transfer alert gains one more whale glyph.
var severityBreakpoints = []float64{
	100_000, 500_000, 1_000_000, 5_000_000,
	10_000_000, 50_000_000, 100_000_000, 500_000_000,
}

// explorerBaseURLs maps chain ids to block explorer bases. Unrecognized
// chains fall back to Ethereum mainnet.
var explorerBaseURLs = map[int64]string{
	1:     "https://etherscan.io",
	10:    "https://optimistic.etherscan.io",
	56:    "https://bscscan.com",
	137:   "https://polygonscan.com",
	8453:  "https://basescan.org",
	42161: "https://arbiscan.io",
	43114: "https://snowtrace.io",
}

// Formatter renders enriched events into Telegram messages. It is a pure
// component: identical inputs always produce identical output, and it never
// touches the clock or the network.
type Formatter struct{}

// NewFormatter creates a new message formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatActivityMessage renders one alert for an eligible activity row.
func (f *Formatter) FormatActivityMessage(act models.Activity, meta *models.TokenMetadata) string {
	symbol := tokenSymbol(meta)
	amount, amountText := humanAmount(act.Value, tokenDecimals(meta))
	usdSuffix, usd, priced := usdNotional(amount, meta)

	from := sanitize(act.From)
	to := sanitize(act.To)
	link := explorerTxLink(act.ChainID, act.TxHash)

	var header, body string
	switch models.NormalizeKind(act.Type) {
	case models.KindMint:
		header = "🪙 *Mint Alert*"
		body = fmt.Sprintf("*%s %s*%s minted at `%s`", amountText, symbol, usdSuffix, to)
	case models.KindBurn:
		header = "🔥 *Burn Alert*"
		body = fmt.Sprintf("*%s %s*%s burned at `%s`", amountText, symbol, usdSuffix, from)
	case models.KindSwap:
		header = "🔄 *Swap Alert*"
		body = fmt.Sprintf("*%s %s*%s swapped by `%s`", amountText, symbol, usdSuffix, from)
	case models.KindSend, models.KindReceive:
		header = fmt.Sprintf("%s *Whale Alert*", whaleMarker(usd, priced))
		body = fmt.Sprintf("*%s %s*%s transferred from `%s` to `%s`", amountText, symbol, usdSuffix, from, to)
	default:
		header = "📣 *Token Activity*"
		body = fmt.Sprintf("*%s %s*%s %s by `%s`", amountText, symbol, usdSuffix, sanitize(act.Type), from)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", header, body, link)
}

// FormatBalanceChangeMessage renders one alert for an eligible balance
// change row.
func (f *Formatter) FormatBalanceChangeMessage(ch models.BalanceChange, meta *models.TokenMetadata) string {
	symbol := tokenSymbol(meta)
	amount, amountText := humanAmount(ch.Amount, tokenDecimals(meta))
	usdSuffix, usd, priced := usdNotional(amount, meta)

	addr := sanitize(ch.Address)

	var body string
	switch strings.ToLower(strings.TrimSpace(ch.Direction)) {
	case "in":
		body = fmt.Sprintf("*%s %s*%s received by `%s`", amountText, symbol, usdSuffix, addr)
	case "out":
		body = fmt.Sprintf("*%s %s*%s sent from `%s`", amountText, symbol, usdSuffix, addr)
	default:
		body = fmt.Sprintf("*%s %s*%s balance change at `%s`", amountText, symbol, usdSuffix, addr)
	}

	msg := fmt.Sprintf("%s *Balance Alert*\n\n%s", whaleMarker(usd, priced), body)
	if ch.TxHash != "" {
		msg += "\n\n" + explorerTxLink(ch.ChainID, ch.TxHash)
	}
	return msg
}

// tokenSymbol returns the sanitized symbol, or a placeholder when the
// token could not be resolved.
func tokenSymbol(meta *models.TokenMetadata) string {
	if !meta.IsValid() {
		return unknownTokenSymbol
	}
	return sanitize(meta.Symbol)
}

// tokenDecimals defaults to 18 when metadata is missing or did not carry
// a decimal count.
func tokenDecimals(meta *models.TokenMetadata) int {
	if meta == nil || meta.Decimals <= 0 {
		return 18
	}
	return meta.Decimals
}

// humanAmount converts a raw base-unit amount into a human-scaled value
// and its display text. Unparsable amounts are passed through verbatim.
func humanAmount(raw string, decimals int) (*big.Float, string) {
	value, ok := new(big.Float).SetString(strings.TrimSpace(raw))
	if !ok {
		return nil, sanitize(raw)
	}

	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	scaled := new(big.Float).Quo(value, divisor)

	text := scaled.Text('f', 6)
	if strings.Contains(text, ".") {
		text = strings.TrimRight(text, "0")
		text = strings.TrimRight(text, ".")
	}
	return scaled, text
}

// usdNotional computes the USD value of a scaled amount when a price is
// known. Returns the display suffix, the notional, and whether a price
// was available.
func usdNotional(amount *big.Float, meta *models.TokenMetadata) (suffix string, usd float64, priced bool) {
	if amount == nil || meta == nil || meta.PriceUSD == nil {
		return "", 0, false
	}
	value, _ := amount.Float64()
	usd = value * *meta.PriceUSD
	return fmt.Sprintf(" ($%s)", formatLargeNumber(usd)), usd, true
}

// whaleMarker scales the whale glyph count with the USD notional. Without
// a price the alert still gets a single whale.
func whaleMarker(usd float64, priced bool) string {
	count := 1
	if priced {
		for _, breakpoint := range severityBreakpoints {
			if usd >= breakpoint {
				count++
			}
		}
	}
	return strings.Repeat("🐋", count)
}

// explorerTxLink builds a Markdown deep link to the transaction on the
// chain's block explorer.
func explorerTxLink(chainID int64, txHash string) string {
	base, ok := explorerBaseURLs[chainID]
	if !ok {
		base = explorerBaseURLs[1]
	}
	return fmt.Sprintf("[View Transaction](%s/tx/%s)", base, sanitize(txHash))
}

// formatLargeNumber formats a large number with K, M, B suffixes
func formatLargeNumber(n float64) string {
	if n >= 1e12 {
		return fmt.Sprintf("%.2fT", n/1e12)
	}
	if n >= 1e9 {
		return fmt.Sprintf("%.2fB", n/1e9)
	}
	if n >= 1e6 {
		return fmt.Sprintf("%.2fM", n/1e6)
	}
	if n >= 1e3 {
		return fmt.Sprintf("%.2fK", n/1e3)
	}
	return fmt.Sprintf("%.2f", n)
}

// sanitize strips control characters and null bytes and normalizes the
// text to NFC before it is embedded in Markdown.
func sanitize(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == 0 || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return norm.NFC.String(cleaned)
}
