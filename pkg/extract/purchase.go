package extract

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/finduo/finduo-sync/pkg/api"
)

const (
	// DefaultMerchant describes purchases whose alert names no merchant.
	DefaultMerchant = "Compra"
	// MaxDescriptionLen is the maximum description length in runes.
	MaxDescriptionLen = 100
)

var errGroupLayout = errors.New("unsupported capture group layout")

// purchaseRules are ordered from most to least specific.
var purchaseRules = []*regexp.Regexp{
	regexp.MustCompile(`(?is)compra por \$([\d\.]+)\s+con cargo a Cuenta \*+(\d+)\s+en (.+?) el (\d{2}/\d{2}/\d{4}) (\d{2}:\d{2})`),
	regexp.MustCompile(`(?is)compra por \$([\d\.]+)\s+con cargo a Cuenta\s+(\d+)\s+en (.+?) el (\d{2}/\d{2}/\d{4}) (\d{2}:\d{2})`),
	regexp.MustCompile(`(?is)cargo.*?cuenta.*?\$([\d\.]+).*?en (.+?)(?: el| fecha|,)\s*(\d{2}/\d{2}/\d{4})(?:\s+(\d{2}:\d{2}))?`),
	regexp.MustCompile(`(?is)(?:cargo|compra).*?\$([\d\.]+).*?(?:en|de)\s+(.+?)(?:\s+el|\s+fecha|,)\s*(\d{2}/\d{2}/\d{4})(?:\s+(\d{2}:\d{2}))?`),
	regexp.MustCompile(`(?is)compra.*?\$([\d\.]+).*?en (.+?) el (\d{2}/\d{2}/\d{4}) (\d{2}:\d{2})`),
	regexp.MustCompile(`(?is)\$([\d\.]+).*?(?:cargo|compra|pago).*?(\d{2}/\d{2}/\d{4})(?:\s+(\d{2}:\d{2}))?`),
}

// Purchase runs the purchase cascade. The first rule that both matches and
// yields a valid amount and date wins.
func (c *Classifier) Purchase(body string) (api.ParsedTransaction, bool) {
	for i, rule := range purchaseRules {
		m := rule.FindStringSubmatch(body)
		if m == nil {
			continue
		}

		txn, err := c.purchaseFromGroups(m[1:])
		if err != nil {
			c.logAmountError("purchase", i+1, err)
			continue
		}

		c.logger.Debug("purchase parsed",
			"rule", i+1,
			"amount", txn.Amount,
			"description", txn.Description,
			"occurred_at", txn.OccurredAt,
		)
		return txn, true
	}
	return api.ParsedTransaction{}, false
}

// purchaseFromGroups interprets capture groups positionally:
// five groups are (amount, account, merchant, date, time), four are
// (amount, merchant, date, time) and three are amount plus a date and time
// told apart by their separators.
func (c *Classifier) purchaseFromGroups(groups []string) (api.ParsedTransaction, error) {
	var amountTok, merchant, date, clock string

	switch {
	case len(groups) >= 5:
		amountTok, merchant, date, clock = groups[0], groups[2], groups[3], groups[4]
	case len(groups) == 4:
		amountTok, merchant, date, clock = groups[0], groups[1], groups[2], groups[3]
	case len(groups) == 3:
		amountTok, merchant = groups[0], DefaultMerchant
		date, clock = splitDateClock(groups[1], groups[2])
	default:
		return api.ParsedTransaction{}, errGroupLayout
	}

	amount, err := ParseAmount(amountTok)
	if err != nil {
		return api.ParsedTransaction{}, err
	}

	occurredAt, err := ParseDateTime(date, clock, c.loc)
	if err != nil {
		return api.ParsedTransaction{}, err
	}

	return api.ParsedTransaction{
		Kind:        api.KindPurchase,
		Amount:      amount,
		Description: cleanMerchant(merchant),
		OccurredAt:  occurredAt,
	}, nil
}

// logAmountError reports a rule that matched but could not be parsed.
// Overflowing amounts are logged at WARN so the dropped match stays visible.
func (c *Classifier) logAmountError(cascade string, rule int, err error) {
	if errors.Is(err, ErrAmountOverflow) {
		c.logger.Warn("amount exceeds supported range, rule skipped", "cascade", cascade, "rule", rule, "error", err)
		return
	}
	c.logger.Debug("rule matched but could not be parsed", "cascade", cascade, "rule", rule, "error", err)
}

func splitDateClock(a, b string) (date, clock string) {
	date = b
	if strings.Contains(a, "/") {
		date = a
	}
	if strings.Contains(b, ":") {
		clock = b
	}
	return date, clock
}

func cleanMerchant(merchant string) string {
	merchant = truncateRunes(merchant, MaxDescriptionLen)
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		return DefaultMerchant
	}
	return merchant
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
