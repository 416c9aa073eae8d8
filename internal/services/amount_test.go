package services

import "testing"

func TestParseDecimalMinor(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"45.00", 4500, false},
		{"45", 4500, false},
		{"45.5", 4550, false},
		{"0.01", 1, false},
		{".99", 99, false},
		{"1000000.99", 100000099, false},
		{"45.005", 0, true}, // excess precision is rejected, not truncated
		{"-1.00", 0, true},
		{"", 0, true},
		{"abc", 0, true},
		{"1.2.3", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDecimalMinor(tt.in, 2)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDecimalMinor(%q) = %d, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecimalMinor(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDecimalMinor(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	if got := FormatMinor(4500, 2); got != "45.00" {
		t.Errorf("FormatMinor(4500, 2) = %q", got)
	}
	if got := FormatMinor(7, 2); got != "0.07" {
		t.Errorf("FormatMinor(7, 2) = %q", got)
	}
	if got := FormatMinor(123, 0); got != "123" {
		t.Errorf("FormatMinor(123, 0) = %q", got)
	}
}
