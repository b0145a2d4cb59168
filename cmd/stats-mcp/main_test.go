package main

import "testing"

func TestAPIURL(t *testing.T) {
	tests := []struct {
		explicit, addr, want string
	}{
		{"", "", defaultAPIURL},
		{"http://stats:8080/", ":9000", "http://stats:8080"},
		{"", ":9000", "http://127.0.0.1:9000"},
		{"", "10.0.0.5:9876", "http://10.0.0.5:9876"},
	}
	for _, tt := range tests {
		if got := apiURL(tt.explicit, tt.addr); got != tt.want {
			t.Errorf("apiURL(%q, %q) = %q, want %q", tt.explicit, tt.addr, got, tt.want)
		}
	}
}
