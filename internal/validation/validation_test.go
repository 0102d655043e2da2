package validation

import "testing"

func TestIsValidAccountID(t *testing.T) {
	if !IsValidAccountID("acct_0123456789abcdef01234567") {
		t.Error("well-formed account ID rejected")
	}
	for _, id := range []string{"", "acct_", "acct_XYZ", "user_0123456789abcdef01234567", "acct_0123456789abcdef0123456"} {
		if IsValidAccountID(id) {
			t.Errorf("IsValidAccountID(%q) should be false", id)
		}
	}
}

func TestIsValidAmount(t *testing.T) {
	for _, a := range []string{"9500", "9500.50", "0.01", " 100 "} {
		if !IsValidAmount(a) {
			t.Errorf("IsValidAmount(%q) should be true", a)
		}
	}
	for _, a := range []string{"", "-5", "1,000", "abc", "1.2.3"} {
		if IsValidAmount(a) {
			t.Errorf("IsValidAmount(%q) should be false", a)
		}
	}
}

func TestIsValidCurrency(t *testing.T) {
	if !IsValidCurrency("USD") || !IsValidCurrency("EUR") {
		t.Error("valid currency codes rejected")
	}
	for _, c := range []string{"usd", "US", "USDT", ""} {
		if IsValidCurrency(c) {
			t.Errorf("IsValidCurrency(%q) should be false", c)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  ", 100); got != "helloworld" {
		t.Errorf("SanitizeString = %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("SanitizeString length cap = %q", got)
	}
}
