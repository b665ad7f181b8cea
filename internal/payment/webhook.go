package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// flexID accepts an identifier sent either as a JSON string or a number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// webhookBody covers the MyFatoorah v1 and v2 webhook shapes plus a flat
// {"invoiceId": ...} body used by internal tooling. Key matching is case-insensitive.
type webhookBody struct {
	InvoiceID flexID `json:"invoiceId"`
	Data      *struct {
		InvoiceID flexID `json:"InvoiceId"`
		Invoice   *struct {
			ID flexID `json:"Id"`
		} `json:"Invoice"`
	} `json:"Data"`
}

// ParseWebhook extracts the invoice ID the gateway is notifying about. The
// status in the body is never trusted; callers verify through the provider.
func ParseWebhook(body []byte) (string, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return "", fmt.Errorf("payment: decode webhook: %w", err)
	}

	candidates := []flexID{wb.InvoiceID}
	if wb.Data != nil {
		candidates = append(candidates, wb.Data.InvoiceID)
		if wb.Data.Invoice != nil {
			candidates = append(candidates, wb.Data.Invoice.ID)
		}
	}
	for _, c := range candidates {
		if id := strings.TrimSpace(string(c)); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("payment: webhook carries no invoice id")
}
