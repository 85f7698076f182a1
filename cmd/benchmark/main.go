// Benchmark tool for testing Harrier against a synthetic commission statement.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -rows 5000
//
// This tool:
//   1. Generates a synthetic carrier statement with known underpaid rows
//   2. Uploads it and runs a reconciliation against a flat rate table
//   3. Compares Harrier's flagged rows with the injected underpayments
//   4. Calculates precision, recall, F1-score, and run latency (cold vs cached)
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"
)

// ValidateResponse mirrors the POST /validate response shape.
type ValidateResponse struct {
	Cached bool `json:"cached"`
	Run    struct {
		ID                     string  `json:"id"`
		Analyzed               int     `json:"analyzed"`
		TotalMissingVCDollars  float64 `json:"totalMissingVcDollars"`
		PotentialUnderpayments []struct {
			PolicyNumber string  `json:"policyNumber"`
			MissingVC    float64 `json:"missingVcDollars"`
		} `json:"potentialUnderpayments"`
		ExcludedTransactions []struct {
			PolicyNumber string `json:"policyNumber"`
		} `json:"excludedTransactions"`
		Metadata struct {
			ProcessMs int64 `json:"processMs"`
		} `json:"metadata"`
	} `json:"run"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int // Injected gap flagged as underpayment
	FalsePositives int // Clean row flagged as underpayment
	TrueNegatives  int // Clean row not flagged
	FalseNegatives int // Injected gap missed

	InjectedGaps    int
	InjectedDollars float64
	ReportedDollars float64
}

const flatRate = 0.03

var businessTypes = []string{"Homeowners", "Standard Auto", "Umbrella", "Renters", "Condo"}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	rows := flag.Int("rows", 5000, "Statement rows to generate")
	gapRate := flag.Float64("gap-rate", 0.05, "Share of rows with an injected underpayment (0.0-1.0)")
	feeRate := flag.Float64("fee-rate", 0.02, "Share of rows marked as service fees (excluded)")
	runs := flag.Int("runs", 10, "Repeat validations to measure cached latency")
	seed := flag.Int64("seed", 1, "Random seed for reproducible statements")
	verbose := flag.Bool("verbose", false, "Print each flagged row")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║       HARRIER BENCHMARK - Synthetic Statement Recovery        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nHarrier URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Rows:        %d\n", *rows)
	fmt.Printf("Gap Rate:    %.2f\n", *gapRate)
	fmt.Printf("Fee Rate:    %.2f\n", *feeRate)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  cd harrier && go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	client := &http.Client{Timeout: 60 * time.Second}

	// 1. Store the flat rate table the statement is generated against.
	if err := createRateTable(client, *baseURL, *tenantID); err != nil {
		fmt.Printf("ERROR: Failed to create rate table: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Rate table stored (flat %.0f%%)\n", flatRate*100)

	// 2. Generate and upload the statement.
	rng := rand.New(rand.NewSource(*seed))
	csvData, underpaid, injected := generateStatement(rng, *rows, *gapRate, *feeRate)
	fmt.Printf("✓ Generated %d rows (%d injected underpayments, $%.2f owed)\n",
		*rows, len(underpaid), injected)

	stmtID, err := uploadStatement(client, *baseURL, *tenantID, csvData)
	if err != nil {
		fmt.Printf("ERROR: Failed to upload statement: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Statement uploaded (id %s)\n", stmtID)

	// 3. Cold validation run.
	start := time.Now()
	result, err := validate(client, *baseURL, *tenantID, stmtID)
	coldMs := time.Since(start).Milliseconds()
	if err != nil {
		fmt.Printf("ERROR: Validation failed: %v\n", err)
		os.Exit(1)
	}

	metrics := score(result, underpaid, *rows, injected, *verbose)

	// 4. Repeat runs to measure the cached path.
	var cachedTotal int64
	cachedHits := 0
	for i := 0; i < *runs; i++ {
		start := time.Now()
		repeat, err := validate(client, *baseURL, *tenantID, stmtID)
		if err != nil {
			continue
		}
		cachedTotal += time.Since(start).Milliseconds()
		if repeat.Cached {
			cachedHits++
		}
	}

	printResults(metrics, result, coldMs, cachedTotal, cachedHits, *runs)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func createRateTable(client *http.Client, baseURL, tenantID string) error {
	table := map[string]any{
		"id":      "benchmark-flat",
		"name":    "Benchmark Flat Rate",
		"enabled": true,
		"entries": []map[string]any{{"rate": flatRate}},
	}
	body, _ := json.Marshal(table)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/ratetables", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// generateStatement builds a CSV statement. Returns the CSV text, the set of
// policy numbers with injected unexplained gaps, and the dollars owed.
func generateStatement(rng *rand.Rand, rows int, gapRate, feeRate float64) (string, map[string]bool, float64) {
	var sb strings.Builder
	sb.WriteString("Policy Number,Transaction Type,Business Type,Written Premium,Variable Comp,Service Fee\n")

	underpaid := make(map[string]bool)
	var injected float64

	for i := 1; i <= rows; i++ {
		policy := fmt.Sprintf("POL-%06d", i)
		businessType := businessTypes[rng.Intn(len(businessTypes))]
		premium := 200 + rng.Float64()*4800
		owed := premium * flatRate

		vc := owed
		serviceFee := ""

		switch {
		case rng.Float64() < feeRate:
			// Service fee rows pay nothing but are a known exclusion.
			vc = 0
			serviceFee = "Y"
		case rng.Float64() < gapRate:
			// Injected underpayment: pay a fraction of what is owed.
			vc = owed * rng.Float64() * 0.5
			underpaid[policy] = true
			injected += float64(int((owed-vc)*100+0.5)) / 100
		}

		sb.WriteString(fmt.Sprintf("%s,Renewal,%s,%.2f,%.2f,%s\n",
			policy, businessType, premium, vc, serviceFee))
	}

	return sb.String(), underpaid, injected
}

func uploadStatement(client *http.Client, baseURL, tenantID, csvData string) (string, error) {
	url := baseURL + "/statements?carrier=benchmark&agentNumber=0000&periodStart=2025-07-01&periodEnd=2025-07-31"

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(csvData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var uploadResp struct {
		Statement struct {
			ID string `json:"id"`
		} `json:"statement"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", err
	}
	return uploadResp.Statement.ID, nil
}

func validate(client *http.Client, baseURL, tenantID, stmtID string) (*ValidateResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"statementId": stmtID,
		"rateTableId": "benchmark-flat",
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func score(result *ValidateResponse, underpaid map[string]bool, rows int, injected float64, verbose bool) *Metrics {
	m := &Metrics{
		InjectedGaps:    len(underpaid),
		InjectedDollars: injected,
		ReportedDollars: result.Run.TotalMissingVCDollars,
	}

	flagged := make(map[string]bool, len(result.Run.PotentialUnderpayments))
	for _, d := range result.Run.PotentialUnderpayments {
		flagged[d.PolicyNumber] = true
		if underpaid[d.PolicyNumber] {
			m.TruePositives++
		} else {
			m.FalsePositives++
		}
		if verbose {
			status := "✓"
			if !underpaid[d.PolicyNumber] {
				status = "✗"
			}
			fmt.Printf("%s %-12s | Missing: $%8.2f\n", status, d.PolicyNumber, d.MissingVC)
		}
	}

	for policy := range underpaid {
		if !flagged[policy] {
			m.FalseNegatives++
		}
	}
	m.TrueNegatives = rows - m.TruePositives - m.FalsePositives - m.FalseNegatives

	return m
}

func printResults(m *Metrics, result *ValidateResponse, coldMs, cachedTotal int64, cachedHits, runs int) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 STATEMENT STATISTICS\n")
	fmt.Printf("   Rows Analyzed:      %d\n", result.Run.Analyzed)
	fmt.Printf("   Injected Gaps:      %d\n", m.InjectedGaps)
	fmt.Printf("   Excluded Rows:      %d\n", len(result.Run.ExcludedTransactions))

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                           Flagged")
	fmt.Println("                      YES        NO")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("  Underpaid   │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("  Clean       │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged rows, how many were truly underpaid)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of underpaid rows, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)

	fmt.Printf("\n💰 DOLLAR RECOVERY\n")
	fmt.Printf("   Injected Owed:     $%.2f\n", m.InjectedDollars)
	fmt.Printf("   Reported Owed:     $%.2f\n", m.ReportedDollars)
	if m.InjectedDollars > 0 {
		fmt.Printf("   Recovery Rate:     %.2f%%\n", 100*m.ReportedDollars/m.InjectedDollars)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Cold Run:          %d ms (engine %d ms)\n", coldMs, result.Run.Metadata.ProcessMs)
	if runs > 0 {
		fmt.Printf("   Repeat Runs:       %d (%d cache hits)\n", runs, cachedHits)
		fmt.Printf("   Avg Repeat:        %.2f ms\n", float64(cachedTotal)/float64(runs))
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.99 && precision >= 0.99 {
		fmt.Println("   ✅ Exact recovery - every injected gap flagged, no false alarms")
	} else if recall >= 0.9 {
		fmt.Println("   ⚠️  Good recall - but some injected gaps were missed")
	} else {
		fmt.Println("   ❌ Poor recall - most injected gaps were missed!")
	}

	fmt.Println()
}
