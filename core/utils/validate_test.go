package utils

import "testing"

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"alice", "bob.smith", "user_01", "a-b-c", "abc"} {
		if err := ValidateUsername(ok); err != nil {
			t.Fatalf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "ab", "has space", "semi;colon", "quote'", "верба", "way-too-long-username-far-beyond-thirty-two-characters"} {
		if err := ValidateUsername(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("S3cure#Passw0rd"); err != nil {
		t.Fatalf("valid password rejected: %v", err)
	}
	for _, bad := range []string{"", "short", "has spaces inside!", "tab\tcharacter-pw"} {
		if err := ValidatePassword(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}
