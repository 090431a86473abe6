package sanitize

import "testing"

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "color codes",
			input:    "\x1b[31mERROR\x1b[0m: something failed",
			expected: "ERROR: something failed",
		},
		{
			name:     "no ANSI",
			input:    "plain text message",
			expected: "plain text message",
		},
		{
			name:     "multiple codes",
			input:    "\x1b[1m\x1b[31mbold red\x1b[0m normal",
			expected: "bold red normal",
		},
		{
			name:     "buildkite timestamp marker",
			input:    "\x1b_bk;t=1765886936038\x07[ERROR] message",
			expected: "[ERROR] message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StripANSI(tt.input)
			if result != tt.expected {
				t.Errorf("StripANSI(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "full cleanup",
			input:    "\x1b_bk;t=123\x07\x1b[31m:python: Test\x1b[0m  core\r\n",
			expected: ":python: Test core",
		},
		{
			name:     "multi line label",
			input:    "line1\r\nline2\r",
			expected: "line1 line2",
		},
		{
			name:     "already clean",
			input:    ":mac: :apple: Ray C++ and Libraries",
			expected: ":mac: :apple: Ray C++ and Libraries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Label(tt.input)
			if result != tt.expected {
				t.Errorf("Label(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTravisEnv(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"PYTHONWARNINGS=ignore RAY_CI_SERVE_AFFECTED=1", "RAY_CI_SERVE_AFFECTED=1"},
		{"RAY_CI_SGD_AFFECTED=1 PYTHONWARNINGS=ignore  PYTHON=3.6", "RAY_CI_SGD_AFFECTED=1 PYTHON=3.6"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := TravisEnv(tt.input); got != tt.expected {
			t.Errorf("TravisEnv(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
