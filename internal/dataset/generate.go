package dataset

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTransactionRows is the size of the generated sample dataset
const DefaultTransactionRows = 10000

// TransactionColumns is the header of the generated dataset
var TransactionColumns = []string{
	"TransactionID", "Sender", "Receiver", "Country", "Currency",
	"Amount", "PaymentMethod", "Status", "Timestamp",
}

var (
	txNames    = []string{"Alice", "Bob", "Charlie", "David", "Eve", "Frank", "Grace", "Hannah", "Ivan", "Jack"}
	txCountry  = []string{"USA", "India", "UK", "Germany", "France", "Canada", "Australia"}
	txCurrency = []string{"USD", "INR", "EUR"}
	txMethods  = []string{"Credit Card", "Debit Card", "PayPal Balance", "Bank Transfer", "Crypto"}
	txStatuses = []string{"Completed", "Pending", "Failed", "Reversed"}

	txStart = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	txEnd   = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
)

// GenerateTransactions writes a noisy payments CSV for exercising the
// pipeline: missing cells, unparseable amounts, truncated IDs, inconsistent
// name casing and three date formats. Output is deterministic per seed.
func GenerateTransactions(w io.Writer, rows int, seed uint64) error {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	g := &txGenerator{rng: rand.New(src), ids: src}

	out := csv.NewWriter(w)
	if err := out.Write(TransactionColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := 0; i < rows; i++ {
		record, err := g.row()
		if err != nil {
			return err
		}
		if err := out.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	out.Flush()
	return out.Error()
}

type txGenerator struct {
	rng *rand.Rand
	ids io.Reader
}

func (g *txGenerator) row() ([]string, error) {
	id, err := uuid.NewRandomFromReader(g.ids)
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction id: %w", err)
	}
	txID := id.String()
	if g.rng.Float64() < 0.01 {
		txID = txID[:8]
	}

	sender := g.pick(txNames)
	receiver := g.pick(txNames)
	for receiver == sender {
		receiver = g.pick(txNames)
	}
	switch {
	case g.rng.Float64() < 0.2:
		sender = strings.ToLower(sender)
	case g.rng.Float64() < 0.1:
		sender = strings.ToUpper(sender)
	}
	if g.rng.Float64() < 0.1 {
		receiver = strings.ToUpper(receiver[:1]) + strings.ToLower(receiver[1:])
	}

	record := []string{
		txID,
		sender,
		receiver,
		g.pick(txCountry),
		g.pick(txCurrency),
		g.amount(),
		g.pick(txMethods),
		g.pick(txStatuses),
		g.timestamp(),
	}
	for i := range record {
		if g.rng.Float64() < 0.06 {
			record[i] = ""
		}
	}
	return record, nil
}

func (g *txGenerator) pick(values []string) string {
	return values[g.rng.IntN(len(values))]
}

func (g *txGenerator) amount() string {
	switch {
	case g.rng.Float64() < 0.01:
		return "N/A"
	case g.rng.Float64() < 0.01:
		return "???"
	}
	cents := 100 + g.rng.IntN(500000-100+1)
	return strconv.FormatFloat(float64(cents)/100, 'f', -1, 64)
}

func (g *txGenerator) timestamp() string {
	days := int(txEnd.Sub(txStart).Hours() / 24)
	ts := txStart.AddDate(0, 0, g.rng.IntN(days+1)).Add(time.Duration(g.rng.IntN(86400)) * time.Second)
	switch {
	case g.rng.Float64() < 0.3:
		return ts.Format("02/01/2006")
	case g.rng.Float64() < 0.6:
		return ts.Format("2006-01-02")
	default:
		return ts.Format("01-02-2006 15:04:05")
	}
}
