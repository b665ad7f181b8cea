package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone returns the number in WhatsApp wa_id form: E.164 digits
// without the leading plus. Numbers without an international prefix are
// read in defaultRegion.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	num, err := parsePhone(raw, defaultRegion)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}

// SplitPhone returns the dialing code ("+966") and the national significant
// number ("501234567") that payment gateways take as separate fields.
func SplitPhone(raw, defaultRegion string) (countryCode, national string, err error) {
	num, err := parsePhone(raw, defaultRegion)
	if err != nil {
		return "", "", err
	}
	return "+" + strconv.Itoa(int(num.GetCountryCode())), phonenumbers.GetNationalSignificantNumber(num), nil
}

func parsePhone(raw, defaultRegion string) (*phonenumbers.PhoneNumber, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty phone number")
	}
	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + strings.TrimPrefix(cleaned, "00")
	}

	var num *phonenumbers.PhoneNumber
	var err error
	if strings.HasPrefix(cleaned, "+") {
		num, err = phonenumbers.Parse(cleaned, "")
	} else {
		// wa_id style numbers already carry the country code
		num, err = phonenumbers.Parse("+"+cleaned, "")
		if err != nil || !phonenumbers.IsValidNumber(num) {
			num, err = phonenumbers.Parse(cleaned, strings.ToUpper(defaultRegion))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return nil, fmt.Errorf("invalid phone number")
	}
	return num, nil
}

// MaskPhone keeps only the last four digits for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
