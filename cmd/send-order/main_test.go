package main

import "testing"

func TestParseOrderFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"buy", 128, false},
		{"Sell", 32, false},
		{" stop ", 48, false},
		{"128", 128, false},
		{"0", 0, false},
		{"256", 0, true},
		{"-1", 0, true},
		{"hold", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOrderFlag(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseOrderFlag(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
