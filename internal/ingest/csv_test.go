package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyops/harrier/internal/domain"
)

const sampleCSV = `Policy Number,Transaction Type,Product,Business Type,Bundle,Written Premium,Base Commission,Variable Comp,Channel of Bind,Term Months,Original Effective Date,Sub Producer,Service Fee,Insured Name
POL-100,Renewal,Private Passenger Auto,Standard Auto,Preferred,"$1,250.00",100.00,37.50,Agent,12,2023-05-14,SP1,,Hartwell
POL-101,New Business,Homeowners,Homeowners,Monoline,900.00,72.00,0,Web,12,06/01/2025,,N,Okafor
POL-102,Cancellation,Private Passenger Auto,Standard Auto,Preferred,"($2,400.00)",(192.00),0,Agent,6,2021-11-03,SP1,,Reyes
POL-103,Renewal,Service Charge,,,0,25.00,0,Agent,,,,Y,
`

func TestReadCSV(t *testing.T) {
	txs, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, txs, 4)

	row := txs[0]
	assert.Equal(t, "POL-100", row.PolicyNumber)
	assert.Equal(t, 1, row.RowNumber)
	assert.Equal(t, domain.TxnRenewal, row.TransactionType)
	assert.Equal(t, "Private Passenger Auto", row.ProductRaw)
	assert.Equal(t, "Standard Auto", row.BusinessType)
	assert.Equal(t, domain.BundlePreferred, row.BundleType)
	assert.Equal(t, 1250.0, row.WrittenPremium, "currency formatting is stripped")
	assert.Equal(t, 37.5, row.VCAmount)
	assert.Equal(t, 12, row.PolicyTermMonths)
	assert.Equal(t, time.Date(2023, 5, 14, 0, 0, 0, 0, time.UTC), row.OriginalPolicyEffectiveDate)
	assert.Equal(t, "SP1", row.SubProducerCode)
	assert.Equal(t, "Hartwell", row.InsuredName)
	assert.False(t, row.IsServiceFee)

	// Slash dates parse too.
	assert.Equal(t, domain.TxnNewBusiness, txs[1].TransactionType)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), txs[1].OriginalPolicyEffectiveDate)

	// Accounting-style negatives come through as reversals.
	cancel := txs[2]
	assert.Equal(t, domain.TxnCancellation, cancel.TransactionType)
	assert.Equal(t, -2400.0, cancel.WrittenPremium)
	assert.Equal(t, -192.0, cancel.BaseCommissionAmount)

	// Sparse rows fill zero values rather than failing.
	fee := txs[3]
	assert.True(t, fee.IsServiceFee)
	assert.Equal(t, 0.0, fee.WrittenPremium)
	assert.True(t, fee.OriginalPolicyEffectiveDate.IsZero())
	assert.Equal(t, 4, fee.RowNumber)
}

func TestReadCSVHeaderDrift(t *testing.T) {
	// Same columns, different casing and spacing.
	csv := "policy number,TRANSACTION TYPE,written  premium,variable comp\nPOL-1,renewal,100,5\n"

	txs, err := ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "POL-1", txs[0].PolicyNumber)
	assert.Equal(t, domain.TxnRenewal, txs[0].TransactionType)
	assert.Equal(t, 100.0, txs[0].WrittenPremium)
	assert.Equal(t, 5.0, txs[0].VCAmount)
}

func TestReadCSVMissingPolicyColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Product,Written Premium\nAuto,100\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Policy Number")
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Policy Number,Written Premium\n"))
	assert.Error(t, err)
}

func TestDigestStableAcrossUploads(t *testing.T) {
	first, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	second, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, Digest(first), Digest(second))

	second[0].WrittenPremium += 0.01
	assert.NotEqual(t, Digest(first), Digest(second), "any row change moves the digest")
}

func TestNewStatement(t *testing.T) {
	txs, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)
	stmt := NewStatement("tenant-a", "acme-mutual", "0451", start, end, txs)

	assert.NotEmpty(t, stmt.ID)
	assert.Equal(t, "tenant-a", stmt.TenantID)
	assert.Equal(t, "acme-mutual", stmt.Carrier)
	assert.Equal(t, 4, stmt.RowCount)
	assert.Equal(t, Digest(txs), stmt.Digest)
	assert.False(t, stmt.UploadedAt.IsZero())
}
