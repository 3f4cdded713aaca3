package validation

import "testing"

func TestValidateAgentID(t *testing.T) {
	t.Parallel()

	valid := []string{
		"a1111111-1111-1111-1111-111111111111",
		"deadbeef",
		"ABCDEF01",
		"0a0b0c0d",
	}
	for _, id := range valid {
		if err := ValidateAgentID(id); err != nil {
			t.Errorf("ValidateAgentID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		"null",
		"undefined",
		"abc",                                  // too short
		"00000000",                             // all zeros
		"00000000-0000-0000-0000-000000000000", // nil UUID
		"not-hex-chars!",
		"gggggggg",
	}
	for _, id := range invalid {
		if err := ValidateAgentID(id); err == nil {
			t.Errorf("ValidateAgentID(%q) = nil, want error", id)
		}
	}
}
