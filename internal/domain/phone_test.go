package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"0712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"0110123456", "254110123456"},
		{"110123456", "254110123456"},
		{"0712 345 678", "254712345678"},
		{"+254-712-345-678", "254712345678"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if err != nil {
			t.Errorf("NormalizePhone(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	invalid := []string{
		"",
		"12345",
		"0212345678",
		"25471234567",
		"2547123456789",
		"not a number",
	}
	for _, in := range invalid {
		if _, err := NormalizePhone(in); !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Errorf("NormalizePhone(%q): expected ErrInvalidPhoneNumber, got %v", in, err)
		}
	}
}

func TestLedgerTransaction_BalanceEffect(t *testing.T) {
	t.Parallel()

	disb := LedgerTransaction{Type: TransactionTypeDisbursement, Amount: decimal.RequireFromString("700")}
	if !disb.BalanceEffect().Equal(decimal.RequireFromString("700")) {
		t.Fatalf("expected disbursement to increase balance, got %s", disb.BalanceEffect())
	}
	repay := LedgerTransaction{Type: TransactionTypeRepayment, Amount: decimal.RequireFromString("500")}
	if !repay.BalanceEffect().Equal(decimal.RequireFromString("-500")) {
		t.Fatalf("expected repayment to decrease balance, got %s", repay.BalanceEffect())
	}
	rev := LedgerTransaction{Type: TransactionTypeReversal, Amount: decimal.RequireFromString("200")}
	if !rev.BalanceEffect().Equal(decimal.RequireFromString("-200")) {
		t.Fatalf("expected reversal to decrease balance, got %s", rev.BalanceEffect())
	}
}
