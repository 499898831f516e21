package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-cascade/internal/cli"
	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/ofx"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import transactions from a CSV or OFX/QFX file",
		Long: `Import bank transactions. Files ending in .ofx or .qfx are read as OFX
statements; anything else as CSV with a header row.

CSV required columns: date, description, amount.
CSV optional columns: id, payment_type, owner_id.

Dates may be YYYY-MM-DD or DD/MM/YYYY. Amounts accept both 1234.56 and
1.234,56; expenses are negative. Rows already imported are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("delimiter", ",", "Field delimiter")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	delimiter, _ := cmd.Flags().GetString("delimiter")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len([]rune(delimiter)) != 1 {
		return common.NewUserError("--delimiter must be a single character", common.ErrInvalidInput)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer func() { _ = f.Close() }()

	var txns []model.Transaction
	switch strings.ToLower(filepath.Ext(args[0])) {
	case ".ofx", ".qfx":
		txns, err = ofx.NewParser(cfg.Tenant).Parse(f)
	default:
		txns, err = parseTransactionsCSV(f, cfg.Tenant, []rune(delimiter)[0])
	}
	if err != nil {
		return common.NewUserError(fmt.Sprintf("cannot read %s", args[0]), err)
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	inserted, err := store.ImportTransactions(ctx, txns)
	if err != nil {
		return fmt.Errorf("failed to import transactions: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
		fmt.Sprintf("Imported %d transactions (%d already present)", inserted, len(txns)-inserted)))
	return nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

func parseTransactionsCSV(r io.Reader, tenant string, delimiter rune) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", common.ErrInvalidInput, required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var txns []model.Transaction
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := parseDate(field(record, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		amount, err := parseAmount(field(record, "amount"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		txn := model.Transaction{
			ID:          field(record, "id"),
			Tenant:      tenant,
			Date:        date,
			Description: field(record, "description"),
			Amount:      amount,
			PaymentType: field(record, "payment_type"),
			OwnerID:     field(record, "owner_id"),
		}
		if err := txn.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w: %w", line, common.ErrInvalidInput, err)
		}
		if txn.ID == "" {
			txn.ID = txn.GenerateHash()[:16]
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", common.ErrInvalidInput, s)
}

// parseAmount accepts "1234.56", "-1.234,56" and "1,234.56".
func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(s, " ", "")
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma < 0 && strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma:
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unrecognized amount %q", common.ErrInvalidInput, s)
	}
	return v, nil
}
