package main

import "testing"

func TestGlobalFlagsIsVerbose(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		quiet    bool
		expected bool
	}{
		{"verbose without quiet", true, false, true},
		{"verbose with quiet", true, true, false},
		{"neither set", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &GlobalFlags{Verbose: tt.verbose, Quiet: tt.quiet}
			if got := f.IsVerbose(); got != tt.expected {
				t.Errorf("IsVerbose() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGlobalFlagsIsQuiet(t *testing.T) {
	if (&GlobalFlags{Quiet: true}).IsQuiet() != true {
		t.Error("expected IsQuiet() to return true")
	}
	if (&GlobalFlags{Quiet: false}).IsQuiet() != false {
		t.Error("expected IsQuiet() to return false")
	}
}

func TestGlobalFlagsGetOutputFormat(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		expected OutputFormat
	}{
		{"json selected", "json", FormatJSON},
		{"text selected", "text", FormatText},
		{"unknown defaults to text", "yaml", FormatText},
		{"empty defaults to text", "", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &GlobalFlags{OutputFormat: tt.format}
			if got := f.GetOutputFormat(); got != tt.expected {
				t.Errorf("GetOutputFormat() = %v, want %v", got, tt.expected)
			}
		})
	}
}
