package validation

import (
	"regexp"
	"time"
)

const (
	minPasswordLength = 8
	maxWalletAmount   = 1_000_000
	minSupportMessage = 10
)

// SupportTopics are the selectable support form topics.
var SupportTopics = []string{"general", "account", "payments", "campaigns", "technical"}

var phonePattern = regexp.MustCompile(`^\+?\d{9,15}$`)

func SignupSet() ConstraintSet {
	return Set(
		Field("name",
			Required("Full name is required"),
			MinLen(2, "Name must be at least 2 characters")),
		Field("email",
			Required("Email is required"),
			Email("Please enter a valid email address")),
		Field("password",
			Required("Password is required"),
			MinLen(minPasswordLength, "Password must be at least 8 characters")),
		Field("confirmPassword",
			Required("Please confirm your password"),
			MatchesField("password", "Passwords do not match")),
		Field("terms",
			Checked("You must accept the terms and conditions")),
	)
}

func LoginSet() ConstraintSet {
	return Set(
		Field("email",
			Required("Email is required"),
			Email("Please enter a valid email address")),
		Field("password",
			Required("Password is required")),
	)
}

// PaymentCardSet validates the card payment form. now anchors the expiry check.
func PaymentCardSet(now time.Time) ConstraintSet {
	return Set(
		Field("cardName", Required("Cardholder name is required")),
		Field("cardNumber",
			Required("Card number is required"),
			CardNumber("Please enter a valid card number")),
		Field("expiry",
			Required("Expiry date is required"),
			CardExpiry(now, "Please enter a valid expiry date (MM/YY)")),
		Field("cvv",
			Required("CVV is required"),
			CVV("CVV must be 3 or 4 digits")),
		amountField(),
	)
}

// PaymentMobileSet validates mobile money payments.
func PaymentMobileSet() ConstraintSet {
	return Set(
		Field("phone",
			Required("Phone number is required"),
			Matches(phonePattern, "Please enter a valid phone number")),
		amountField(),
	)
}

// PaymentWalletSet validates payments from the wallet balance.
func PaymentWalletSet() ConstraintSet {
	return Set(amountField())
}

func SupportSet() ConstraintSet {
	return Set(
		Field("name", Required("Name is required")),
		Field("email",
			Required("Email is required"),
			Email("Please enter a valid email address")),
		Field("topic",
			Required("Please choose a topic"),
			OneOf("Please choose a valid topic", SupportTopics...)),
		Field("message",
			Required("Message is required"),
			MinLen(minSupportMessage, "Message must be at least 10 characters")),
	)
}

func PasswordResetSet() ConstraintSet {
	return Set(
		Field("email",
			Required("Email is required"),
			Email("Please enter a valid email address")),
	)
}

func WalletAmountSet() ConstraintSet {
	return Set(amountField())
}

func amountField() FieldRules {
	return Field("amount",
		Required("Amount is required"),
		AmountBetween(1, maxWalletAmount, "Amount must be between 1 and 1,000,000"))
}
