// Package chat is the rule based support bot answering investor questions.
package chat

import (
	"strings"
	"unicode"
)

// Fallback is the reply when no rule matches.
const Fallback = "I'm not sure I understood. You can ask me about deposits, withdrawals, plans, ROI, KYC or your " +
	"wallet, or contact support@luxhedge.com."

// Rule replies with Reply when the message contains any of Keywords.
type Rule struct {
	Topic    string
	Keywords []string
	Reply    string
}

// Rules are checked in order, the first matching one answers.
var Rules = []Rule{ //nolint:gochecknoglobals // read only
	{"greeting", []string{"hello", "hi", "hey", "good morning", "good evening"},
		"Hello! I'm the LUXHEDGE assistant. How can I help you today?"},
	{"withdrawal", []string{"withdraw", "withdrawal", "cash out", "payout"},
		"Request a withdrawal from the Withdrawals page. An admin reviews it and you are notified by email when " +
			"it is approved and paid. You can only withdraw up to your available balance."},
	{"deposit", []string{"deposit", "fund", "invest", "send crypto", "top up"},
		"To invest, pick a plan, send the amount to one of the deposit wallets shown in the Funds page and submit " +
			"the transaction hash. Your fund becomes active once an admin approves it."},
	{"plans", []string{"plan", "plans", "package", "minimum"},
		"Each plan has a minimum and maximum amount, a duration and an expected ROI. See them in the Plans page."},
	{"roi", []string{"roi", "profit", "return", "interest", "earning"},
		"ROI is credited to your active funds by the trading desk and shows up in your performance history."},
	{"kyc", []string{"kyc", "verify", "verification", "identity", "document"},
		"Submit your country and phone in your profile to start the identity verification. You are notified by " +
			"email when it is reviewed."},
	{"wallet", []string{"wallet", "address", "network", "usdt", "btc", "eth", "trx"},
		"Deposit wallets are listed per asset and network. Always check the network before sending funds."},
	{"contact", []string{"contact", "support", "human", "agent", "email", "help"},
		"You can reach our team at support@luxhedge.com. We usually reply within 24 hours."},
}

// Reply returns the answer of the bot to message.
func Reply(message string) string {
	words := Normalize(message)
	if words == "" {
		return Fallback
	}

	padded := " " + words + " "

	for _, r := range Rules {
		for _, k := range r.Keywords {
			if matches(padded, k) {
				return r.Reply
			}
		}
	}

	return Fallback
}

// minPlural is the length from which keywords also match their plural.
const minPlural = 4

// matches reports if padded contains the whole words of keyword k, or its plural when k is long enough.
func matches(padded, k string) bool {
	if strings.Contains(padded, " "+k+" ") {
		return true
	}

	if len(k) < minPlural {
		return false
	}

	return strings.Contains(padded, " "+k+"s ") || strings.Contains(padded, " "+k+"es ")
}

// Normalize lower cases message and replaces every run of non alphanumeric characters with one space.
func Normalize(message string) string {
	f := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	return strings.Join(f, " ")
}
