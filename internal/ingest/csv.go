// Package ingest parses carrier commission-statement CSV exports into
// normalized statement transactions.
package ingest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/agencyops/harrier/internal/domain"
)

// Column headers as printed on carrier exports. Header matching is
// case-insensitive and ignores surrounding whitespace.
const (
	colPolicyNumber    = "Policy Number"
	colAgentNumber     = "Agent Number"
	colTransactionType = "Transaction Type"
	colProduct         = "Product"
	colProductCategory = "Product Category"
	colBusinessType    = "Business Type"
	colBundle          = "Bundle"
	colWrittenPremium  = "Written Premium"
	colBaseCommission  = "Base Commission"
	colVariableComp    = "Variable Comp"
	colTotalCommission = "Total Commission"
	colChannel         = "Channel of Bind"
	colTermMonths      = "Term Months"
	colOriginalDate    = "Original Effective Date"
	colSubProducer     = "Sub Producer"
	colInsuredName     = "Insured Name"
	colServiceFee      = "Service Fee"
	colPlusPolicy      = "Plus Policy"
	colFirstRenewal    = "First Renewal"
	colItemAddition    = "Item Addition"
	colItemDrop        = "Item Drop"
)

// dateLayouts are tried in order when parsing the original effective date.
var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006"}

// ReadCSV parses one carrier export. Every column is read as a string first
// and normalized here; carrier exports mix formats too freely to trust type
// inference. Row numbers are 1-based data rows, matching how analysts
// reference the source spreadsheet.
func ReadCSV(r io.Reader) ([]domain.StatementTransaction, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("parse csv: %w", df.Err)
	}
	if df.Nrow() == 0 {
		return nil, fmt.Errorf("parse csv: no data rows")
	}

	cols := newColumnIndex(&df)
	if !cols.has(colPolicyNumber) {
		return nil, fmt.Errorf("parse csv: missing required column %q", colPolicyNumber)
	}

	txs := make([]domain.StatementTransaction, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		tx := domain.StatementTransaction{
			PolicyNumber:         cols.str(colPolicyNumber, i),
			RowNumber:            i + 1,
			AgentNumber:          cols.str(colAgentNumber, i),
			TransactionType:      normalizeTransactionType(cols.str(colTransactionType, i)),
			ProductRaw:           cols.str(colProduct, i),
			ProductCategory:      cols.str(colProductCategory, i),
			BusinessType:         cols.str(colBusinessType, i),
			BundleType:           normalizeBundleType(cols.str(colBundle, i)),
			WrittenPremium:       cols.float(colWrittenPremium, i),
			BaseCommissionAmount: cols.float(colBaseCommission, i),
			VCAmount:             cols.float(colVariableComp, i),
			TotalCommission:      cols.float(colTotalCommission, i),
			ChannelOfBind:        cols.str(colChannel, i),
			IsServiceFee:         cols.flag(colServiceFee, i),
			IsPlusPolicy:         cols.flag(colPlusPolicy, i),
			IsFirstRenewal:       cols.flag(colFirstRenewal, i),
			IsItemAddition:       cols.flag(colItemAddition, i),
			IsItemDrop:           cols.flag(colItemDrop, i),
			PolicyTermMonths:     cols.int(colTermMonths, i),
			SubProducerCode:      cols.str(colSubProducer, i),
			InsuredName:          cols.str(colInsuredName, i),
		}
		if tx.ProductCategory == "" {
			tx.ProductCategory = tx.ProductRaw
		}
		tx.OriginalPolicyEffectiveDate = parseDate(cols.str(colOriginalDate, i))

		txs = append(txs, tx)
	}

	return txs, nil
}

// columnIndex maps canonical column names to the dataframe's actual headers,
// tolerating case and whitespace drift between carrier export versions.
type columnIndex struct {
	df    *dataframe.DataFrame
	names map[string]string
}

func newColumnIndex(df *dataframe.DataFrame) *columnIndex {
	idx := &columnIndex{df: df, names: make(map[string]string)}
	for _, name := range df.Names() {
		idx.names[canonical(name)] = name
	}
	return idx
}

func canonical(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (c *columnIndex) has(col string) bool {
	_, ok := c.names[canonical(col)]
	return ok
}

func (c *columnIndex) str(col string, row int) string {
	name, ok := c.names[canonical(col)]
	if !ok {
		return ""
	}
	v := c.df.Col(name).Elem(row).String()
	if v == "NaN" {
		return ""
	}
	return strings.TrimSpace(v)
}

func (c *columnIndex) float(col string, row int) float64 {
	raw := c.str(col, row)
	if raw == "" {
		return 0
	}
	return parseAmount(raw)
}

func (c *columnIndex) int(col string, row int) int {
	name, ok := c.names[canonical(col)]
	if !ok {
		return 0
	}
	v, err := c.df.Col(name).Elem(row).Int()
	if err != nil {
		return 0
	}
	return v
}

func (c *columnIndex) flag(col string, row int) bool {
	switch strings.ToLower(c.str(col, row)) {
	case "y", "yes", "true", "1", "x":
		return true
	}
	return false
}

// parseAmount handles the dollar formatting carriers print: $ signs, comma
// separators, and accounting-style parentheses for negatives.
func parseAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return 0
	}
	if negative {
		v = -v
	}
	return v
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func normalizeTransactionType(raw string) domain.TransactionType {
	switch canonical(raw) {
	case "new business", "new-business", "nb", "new":
		return domain.TxnNewBusiness
	case "renewal", "rwl", "ren":
		return domain.TxnRenewal
	case "endorsement", "end", "change":
		return domain.TxnEndorsement
	case "cancellation", "cancel", "canc", "xln":
		return domain.TxnCancellation
	}
	return domain.TransactionType(canonical(raw))
}

func normalizeBundleType(raw string) domain.BundleType {
	switch canonical(raw) {
	case "preferred", "pref", "auto+home":
		return domain.BundlePreferred
	case "standard", "std", "multi":
		return domain.BundleStandard
	case "monoline", "mono", "single":
		return domain.BundleMonoline
	}
	return domain.BundleType(raw)
}
