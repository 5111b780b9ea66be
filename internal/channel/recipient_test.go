package channel

import "testing"

func TestNormalizer(t *testing.T) {
	cases := []struct {
		name   string
		region string
		in     string
		want   string
	}{
		{"digits kept", "", "5511999999999", "5511999999999@s.whatsapp.net"},
		{"punctuation stripped", "", "+55 (11) 98888-7777", "5511988887777@s.whatsapp.net"},
		{"existing address", "", "5511988887777@c.us", "5511988887777@s.whatsapp.net"},
		{"international ignores region", "BR", "+55 11 98888-7777", "5511988887777@s.whatsapp.net"},
		{"national gets country code", "BR", "(11) 98888-7777", "5511988887777@s.whatsapp.net"},
		{"region code already present", "BR", "5511988887777", "5511988887777@s.whatsapp.net"},
		{"foreign number without plus kept", "BR", "14155552671", "14155552671@s.whatsapp.net"},
		{"us number with country code kept", "BR", "1 650 253 0000", "16502530000@s.whatsapp.net"},
		{"no region never rewrites", "", "(11) 98888-7777", "11988887777@s.whatsapp.net"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewNormalizer(tc.region, "@s.whatsapp.net").Normalize(tc.in)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizer_RejectsEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "n/a"} {
		if _, err := NewNormalizer("BR", "").Normalize(in); !IsValidation(err) {
			t.Fatalf("Normalize(%q) expected validation error, got %v", in, err)
		}
	}
}
