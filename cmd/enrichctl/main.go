// Command enrichctl enriches financial transactions from a CSV or JSON
// file through the enrichment API and writes the results as JSON.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/enrich-client/pkg/batch"
	"github.com/ledgerline/enrich-client/pkg/cache"
	"github.com/ledgerline/enrich-client/pkg/client"
	"github.com/ledgerline/enrich-client/pkg/enrich"
	"github.com/ledgerline/enrich-client/pkg/logging"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	inputPath := flag.String("input", "", "input file (.csv or .json)")
	outputPath := flag.String("output", "", "output file (default: stdout)")
	strict := flag.Bool("strict", false, "abort on the first enrichment failure")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.Parse()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(*logLevel),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: enrichctl -input transactions.csv [-output results.json] [-strict]")
		os.Exit(2)
	}

	records, err := readRecords(*inputPath)
	if err != nil {
		logger.Fatal().Err(err).Str("input", *inputPath).Msg("Failed to read input records")
	}
	logger.Info().Int("records", len(records)).Str("input", *inputPath).Msg("Input records loaded")

	c, err := client.New(client.Config{
		BaseURL: os.Getenv("ENRICH_BASE_URL"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create enrichment client")
	}
	defer c.Close()

	cfg := batch.DefaultConfig()
	cfg.StrictErrors = *strict
	cfg.Progress = func(completed, total int) {
		logger.Info().Int("completed", completed).Int("total", total).Msg("Job progress")
	}

	// Optional result cache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("redis", redisURL).Msg("Failed to connect to Redis")
		}
		cfg.Cache = cache.New(redisClient, cache.DefaultTTL)
		logger.Info().Str("redis", redisURL).Msg("Result cache enabled")
	}

	sdk := enrich.New(c)
	m := batch.NewManager(sdk.Batches.JobService(), cfg)

	results, err := m.SubmitAndWait(context.Background(), records)
	if err != nil {
		logger.Fatal().Err(err).Msg("Enrichment failed")
	}

	out := os.Stdout
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			logger.Fatal().Err(err).Str("output", *outputPath).Msg("Failed to create output file")
		}
		defer f.Close()
		out = f
	}

	if err := writeResults(out, results); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write results")
	}

	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
		}
	}
	logger.Info().
		Int("records", len(results)).
		Int("failed", failed).
		Msg("Enrichment finished")
}

// readRecords loads transaction inputs from a CSV or JSON file and
// validates each record before anything is submitted.
func readRecords(path string) ([]batch.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var inputs []enrich.TransactionInput
	switch {
	case strings.HasSuffix(path, ".csv"):
		inputs, err = parseCSV(f)
	case strings.HasSuffix(path, ".json"):
		err = json.NewDecoder(f).Decode(&inputs)
	default:
		return nil, fmt.Errorf("unsupported input format %q (want .csv or .json)", path)
	}
	if err != nil {
		return nil, err
	}

	records := make([]batch.Record, len(inputs))
	for i, input := range inputs {
		if err := input.Validate(); err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, input.ID, err)
		}
		records[i] = input
	}
	return records, nil
}

// parseCSV reads transaction inputs from a CSV file with a header row.
// Recognized columns: transaction_id, description, entry_type, amount,
// iso_currency_code, date, account_holder_id, country.
func parseCSV(r io.Reader) ([]enrich.TransactionInput, error) {
	reader := csv.NewReader(r)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("csv input is empty")
	}

	columns := make(map[string]int)
	for i, name := range rows[0] {
		columns[strings.TrimSpace(strings.ToLower(name))] = i
	}
	field := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	inputs := make([]enrich.TransactionInput, 0, len(rows)-1)
	for i, row := range rows[1:] {
		amount, err := strconv.ParseFloat(field(row, "amount"), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid amount %q", i+1, field(row, "amount"))
		}
		inputs = append(inputs, enrich.TransactionInput{
			ID:              field(row, "transaction_id"),
			Description:     field(row, "description"),
			EntryType:       enrich.EntryType(field(row, "entry_type")),
			Amount:          amount,
			Currency:        field(row, "iso_currency_code"),
			Date:            field(row, "date"),
			AccountHolderID: field(row, "account_holder_id"),
			Country:         field(row, "country"),
		})
	}
	return inputs, nil
}

// resultRow is the JSON output shape for one enriched record.
type resultRow struct {
	RecordID string          `json:"record_id"`
	JobID    string          `json:"job_id,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// writeResults writes enrichment results as a JSON array in input order.
func writeResults(w io.Writer, results []batch.Result) error {
	rows := make([]resultRow, len(results))
	for i, res := range results {
		rows[i] = resultRow{
			RecordID: res.RecordID,
			JobID:    res.JobID,
			Output:   res.Output,
		}
		if res.Err != nil {
			rows[i].Error = res.Err.Error()
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
