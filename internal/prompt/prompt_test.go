package prompt

import (
	"strings"
	"testing"
)

func TestBuild(t *testing.T) {
	p := Build(125, StyleConcise)

	if !strings.Contains(p.System, "<= 125 chars") {
		t.Errorf("System prompt missing bound:\n%s", p.System)
	}
	if !strings.HasSuffix(p.System, "- Return only the alt string") {
		t.Errorf("System prompt should end with the return instruction:\n%s", p.System)
	}
	if expected := "Write alt text for this image for an HTML alt attribute, under 125 chars."; p.User != expected {
		t.Errorf("Expected user prompt %q, got %q", expected, p.User)
	}

	if again := Build(125, StyleConcise); again != p {
		t.Error("Build is not deterministic")
	}
}

func TestBuildStyle(t *testing.T) {
	concise := Build(80, StyleConcise)
	literal := Build(80, StyleLiteral)

	if concise.User != literal.User {
		t.Error("Style should only change the system prompt")
	}
	if !strings.Contains(literal.System, "literally visible") {
		t.Errorf("Literal style line missing:\n%s", literal.System)
	}
}

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in       string
		expected Style
		wantErr  bool
	}{
		{in: "", expected: StyleConcise},
		{in: "Descriptive", expected: StyleDescriptive},
		{in: " literal ", expected: StyleLiteral},
		{in: "poetic", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStyle(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error %s", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestClampMaxChars(t *testing.T) {
	for in, expected := range map[int]int{0: 60, 59: 60, 60: 60, 125: 125, 200: 200, 500: 200} {
		if got := ClampMaxChars(in); got != expected {
			t.Errorf("ClampMaxChars(%d): expected %d, got %d", in, expected, got)
		}
	}
}
