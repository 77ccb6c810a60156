package util

import (
	"reflect"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "tpep_pickup_datetime",
			expected: []string{"tpep_pickup_datetime"},
		},
		{
			name:     "multiple values",
			input:    "tpep_pickup_datetime,tpep_dropoff_datetime",
			expected: []string{"tpep_pickup_datetime", "tpep_dropoff_datetime"},
		},
		{
			name:     "with whitespace",
			input:    " a , b , c ",
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "trailing comma",
			input:    "a,b,",
			expected: []string{"a", "b"},
		},
		{
			name:     "multiple commas",
			input:    "a,,b",
			expected: []string{"a", "b"},
		},
		{
			name:     "only commas",
			input:    ",,,",
			expected: nil,
		},
		{
			name:     "whitespace between commas",
			input:    " , , ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SplitCSV(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("SplitCSV(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]string
		wantErr  bool
	}{
		{"empty", "", nil, false},
		{"single", "VendorID=int64", map[string]string{"VendorID": "int64"}, false},
		{"spaces", " VendorID = int64 , extra=float64 ", map[string]string{"VendorID": "int64", "extra": "float64"}, false},
		{"missing value", "VendorID=", nil, true},
		{"missing key", "=int64", nil, true},
		{"no separator", "VendorID", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePairs(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParsePairs(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePairs(%q) unexpected error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParsePairs(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
