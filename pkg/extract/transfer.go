package extract

import (
	"regexp"
	"time"

	"github.com/finduo/finduo-sync/pkg/api"
)

// TransferDescription describes every outgoing transfer.
const TransferDescription = "Transferencia a terceros"

var transferAmountRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)monto\s+\$([\d\.]+)`),
	regexp.MustCompile(`(?is)transferencia.*?a\s+terceros.*?\$([\d\.]+)`),
	regexp.MustCompile(`(?is)transferencia.*?\$([\d\.]+)`),
	regexp.MustCompile(`(?is)\$([\d\.]+).*?transferencia`),
	regexp.MustCompile(`(?i)monto.*?(\d+[\.\d]*)`),
}

var transferDateRules = []*regexp.Regexp{
	regexp.MustCompile(`(\d{2}/\d{2}/\d{4})\s+(\d{2}:\d{2})`),
	regexp.MustCompile(`(\d{2}-\d{2}-\d{4})\s+(\d{2}:\d{2})`),
}

// Transfer runs the transfer cascade. A body without a detectable non-zero
// amount is not a transfer. Without a detectable date the transfer is
// stamped with the classifier's clock.
func (c *Classifier) Transfer(body string) (api.ParsedTransaction, bool) {
	amount, ok := c.transferAmount(body)
	if !ok {
		return api.ParsedTransaction{}, false
	}

	occurredAt, ok := c.transferDate(body)
	if !ok {
		occurredAt = c.now().In(c.loc).Truncate(time.Second)
		c.logger.Debug("transfer without date, using current time", "occurred_at", occurredAt)
	}

	return api.ParsedTransaction{
		Kind:        api.KindTransferOut,
		Amount:      amount,
		Description: TransferDescription,
		OccurredAt:  occurredAt,
	}, true
}

func (c *Classifier) transferAmount(body string) (int64, bool) {
	for i, rule := range transferAmountRules {
		m := rule.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		amount, err := ParseAmount(m[1])
		if err != nil {
			c.logAmountError("transfer", i+1, err)
			continue
		}
		return amount, amount > 0
	}
	return 0, false
}

func (c *Classifier) transferDate(body string) (time.Time, bool) {
	for _, rule := range transferDateRules {
		m := rule.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		t, err := ParseDateTime(m[1], m[2], c.loc)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}
