package normalize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Blue Bottle", "Blue Bottle"},
		{"  Blue   Bottle  ", "Blue Bottle"},
		{"\tCoffee\n", "Coffee"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	if got := Query("  Blue  BOTTLE "); got != "blue bottle" {
		t.Errorf("Query = %q, want %q", got, "blue bottle")
	}
}
