package agent

import "testing"

func TestResolveReaderKind(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		want     ReaderKind
		wantErr  bool
	}{
		{"claude-haiku with version", "claude-haiku-4-5", ReaderKindAnthropic, false},
		{"claude-sonnet with full version", "claude-sonnet-4-5-20251001", ReaderKindAnthropic, false},
		{"CLAUDE uppercase", "CLAUDE-HAIKU-4-5", ReaderKindAnthropic, false},
		{"lorem-fast model", "lorem-fast", ReaderKindLorem, false},
		{"lorem-slow model", "lorem-slow", ReaderKindLorem, false},
		{"LOREM uppercase", "LOREM-FAST", ReaderKindLorem, false},
		{"empty string", "", "", true},
		{"unknown model prefix", "gpt-4", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveReaderKind(tt.model)

			if tt.wantErr {
				if err == nil {
					t.Errorf("ResolveReaderKind() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("ResolveReaderKind() unexpected error: %v", err)
				return
			}

			if got != tt.want {
				t.Errorf("ResolveReaderKind() = %v, want %v", got, tt.want)
			}
		})
	}
}
