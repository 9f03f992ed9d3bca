package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/quantlink-statarb/pkg/logging"
)

var (
	startDate = flag.String("start-date", "2024-01-01", "First trading day (YYYY-MM-DD)")
	days      = flag.Int("days", 500, "Number of trading days")
	symbols   = flag.String("symbols", "AAA,BBB", "Two comma-separated symbols")
	output    = flag.String("output", "./data/mock_pair.csv", "Output CSV file")
	seed      = flag.Int64("seed", 42, "Random seed")
	hedge     = flag.Float64("hedge", 0.8, "Hedge ratio between the legs")
	reversion = flag.Float64("reversion", 0.1, "Mean reversion speed of the spread")
	spreadVol = flag.Float64("spread-vol", 0.5, "Daily volatility of the spread")
	commonVol = flag.Float64("common-vol", 0.01, "Daily log volatility of the common factor")
	basePrice = flag.Float64("base-price", 100, "Starting price of the second leg")
)

func main() {
	flag.Parse()
	logger, _ := logging.NewLogger(logging.Config{}, nil)
	log := logging.WithComponent(logger, "MockData")

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	names := strings.Split(*symbols, ",")
	if len(names) != 2 {
		log.Fatalf("Need exactly two symbols, got %q", *symbols)
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}
	if err := generatePair(*output, names, start); err != nil {
		log.Fatalf("Failed to generate data: %v", err)
	}
	log.Infof("Wrote %d days of %s/%s to %s", *days, names[0], names[1], *output)
}

// generatePair writes p2 as a geometric random walk and p1 = hedge*p2 +
// offset + s, where s is an Ornstein-Uhlenbeck spread.
func generatePair(path string, names []string, start time.Time) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"date", names[0], names[1]}); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(*seed))
	p2 := *basePrice
	offset := *basePrice * 0.5
	s := 0.0
	date := start

	for i := 0; i < *days; i++ {
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}

		p2 *= math.Exp(*commonVol * rng.NormFloat64())
		s += -*reversion*s + *spreadVol*rng.NormFloat64()
		p1 := *hedge*p2 + offset + s
		if p1 <= 0 {
			p1 = 0.01
		}

		row := []string{date.Format("2006-01-02"), fmt.Sprintf("%.4f", p1), fmt.Sprintf("%.4f", p2)}
		if err := writer.Write(row); err != nil {
			return err
		}
		date = date.AddDate(0, 0, 1)
	}

	writer.Flush()
	return writer.Error()
}
