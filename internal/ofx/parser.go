// Package ofx reads OFX/QFX bank and credit-card statements into transactions.
package ofx

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/aclindsa/ofxgo"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tag at end of line that lost its closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Payment channels for OFX transaction types. Types not listed keep their
// OFX name.
var paymentTypes = map[string]string{
	"DIRECTDEBIT": "SDD",
	"DIRECTDEP":   "BONIFICO",
	"XFER":        "BONIFICO",
	"POS":         "POS",
	"ATM":         "ATM",
	"CHECK":       "ASSEGNO",
	"FEE":         "COMMISSIONI",
	"SRVCHG":      "COMMISSIONI",
	"INT":         "INTERESSI",
}

// Parser converts OFX statements for one tenant.
type Parser struct {
	tenant string
}

// NewParser creates a parser that stamps tenant on every transaction.
func NewParser(tenant string) *Parser {
	return &Parser{tenant: tenant}
}

// preprocessOFX fixes common formatting issues in OFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// Parse reads every bank and credit-card statement in r.
func (p *Parser) Parse(r io.Reader) ([]model.Transaction, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse OFX file: %w", common.ErrInvalidInput, err)
	}

	var transactions []model.Transaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			bankStmts++
			transactions = p.appendAll(transactions, stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID))
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			ccStmts++
			transactions = p.appendAll(transactions, stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID))
		}
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return transactions, nil
}

func (p *Parser) appendAll(dst []model.Transaction, src []ofxgo.Transaction, account string) []model.Transaction {
	for _, tx := range src {
		txn := p.convert(tx, account)
		if err := txn.Validate(); err != nil {
			slog.Warn("Skipping OFX transaction", "fitid", tx.FiTID, "error", err)
			continue
		}
		dst = append(dst, txn)
	}
	return dst
}

// convert maps an OFX transaction. Amounts keep their sign: debits are
// negative, as the classifier expects.
func (p *Parser) convert(tx ofxgo.Transaction, account string) model.Transaction {
	amount, _ := tx.TrnAmt.Float64()
	kind := tx.TrnType.String()
	paymentType, ok := paymentTypes[kind]
	if !ok {
		paymentType = kind
	}

	txn := model.Transaction{
		ID:          string(tx.FiTID),
		Tenant:      p.tenant,
		Date:        tx.DtPosted.Time,
		Description: description(tx),
		PaymentType: paymentType,
		OwnerID:     account,
		Amount:      amount,
	}
	if txn.ID == "" {
		txn.ID = txn.GenerateHash()[:16]
	}
	return txn
}

// description rebuilds the statement line. The classifier strips banking
// boilerplate itself, so NAME and MEMO are kept whole.
func description(tx ofxgo.Transaction) string {
	name := strings.TrimSpace(string(tx.Name))
	if tx.Payee != nil && tx.Payee.Name != "" {
		name = strings.TrimSpace(string(tx.Payee.Name))
	}
	memo := strings.TrimSpace(string(tx.Memo))
	switch {
	case memo == "" || strings.Contains(strings.ToUpper(name), strings.ToUpper(memo)):
		return name
	case name == "":
		return memo
	default:
		return name + " " + memo
	}
}
