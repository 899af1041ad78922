package lending

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

type webhookPayload struct {
	Event   string      `json:"event"`
	EventID string      `json:"eventId"`
	Data    webhookData `json:"data"`
}

type webhookData struct {
	OrganizationID string          `json:"organizationId"`
	Reference      string          `json:"reference"`
	Amount         decimal.Decimal `json:"amount"`
	CreditLimit    decimal.Decimal `json:"creditLimit"`
	Message        string          `json:"message"`
}

// ParseWebhook decodes one partner webhook body into its event variant and
// the provider's event identifier. Unknown event types are a parse failure:
// the set is closed by contract.
func ParseWebhook(raw []byte) (domain.InboundEvent, string, error) {
	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, "", fmt.Errorf("decode partner webhook: %w", err)
	}

	switch p.Event {
	case "application.approved":
		limit := p.Data.CreditLimit
		if limit.IsZero() {
			limit = p.Data.Amount
		}
		return domain.ApplicationApproved{OrgID: p.Data.OrganizationID, CreditLimit: limit}, p.EventID, nil
	case "application.rejected":
		return domain.ApplicationRejected{Reference: p.Data.Reference, Reason: p.Data.Message}, p.EventID, nil
	case "disbursement.completed":
		return domain.DisbursementCompleted{Reference: p.Data.Reference}, p.EventID, nil
	case "disbursement.failed":
		return domain.DisbursementFailed{Reference: p.Data.Reference, Reason: p.Data.Message}, p.EventID, nil
	case "repayment.received":
		return domain.RepaymentReceived{OrgID: p.Data.OrganizationID, Amount: p.Data.Amount, Reference: p.Data.Reference}, p.EventID, nil
	default:
		return nil, "", fmt.Errorf("unknown partner event type %q", p.Event)
	}
}

// VerifySignature checks the webhook body against the partner's
// HMAC-SHA256 signature header.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
