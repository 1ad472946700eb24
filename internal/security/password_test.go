package security

import "testing"

func TestValidPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{name: "letters and digits", password: "abc12345", want: true},
		{name: "letters only", password: "abcdefgh", want: false},
		{name: "too short no letter", password: "1234567", want: false},
		{name: "digits only", password: "12345678", want: false},
		{name: "exactly eight mixed", password: "a1234567", want: true},
		{name: "empty", password: "", want: false},
		{name: "long mixed with symbols", password: "correct horse 9 battery", want: true},
		{name: "seven chars mixed", password: "abc1234", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidPassword(tt.password)

			if got != tt.want {
				t.Fatalf("ValidPassword(%q) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2abc1")

	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == "hunter2abc1" {
		t.Fatalf("hash must not equal the plaintext")
	}

	if err := CheckPassword(hash, "hunter2abc1"); err != nil {
		t.Fatalf("CheckPassword rejected the correct password: %v", err)
	}

	if err := CheckPassword(hash, "hunter2abc2"); err == nil {
		t.Fatalf("CheckPassword accepted a wrong password")
	}
}

func TestValidEmailDomain(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{name: "matching domain", email: "sam@pulsehq.com", want: true},
		{name: "matching domain uppercase", email: "Sam@PULSEHQ.COM", want: true},
		{name: "other domain", email: "sam@other.com", want: false},
		{name: "domain as substring of local part", email: "pulsehq.com@other.com", want: false},
		{name: "empty", email: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidEmailDomain(tt.email, "pulsehq.com")

			if got != tt.want {
				t.Fatalf("ValidEmailDomain(%q) = %v, want %v", tt.email, got, tt.want)
			}
		})
	}
}
