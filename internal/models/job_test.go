package models

import (
	"strings"
	"testing"
)

func TestDecodeStatusFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    StatusFrame
		wantErr string
	}{
		{
			name:  "complete frame",
			input: `{"status":"running","progress":40,"message":"Computing similarities..."}`,
			want:  StatusFrame{Status: StatusRunning, Progress: 40, Message: "Computing similarities..."},
		},
		{
			name:  "terminal frame with result",
			input: `{"status":"completed","progress":100,"message":"Done","result_file":"results/r1.xlsx"}`,
			want: StatusFrame{
				Status: StatusCompleted, Progress: 100,
				Message: "Done", ResultReference: "results/r1.xlsx",
			},
		},
		{
			name:  "zero progress is not a missing field",
			input: `{"status":"queued","progress":0,"message":""}`,
			want:  StatusFrame{Status: StatusQueued, Progress: 0, Message: ""},
		},
		{
			name:    "not json",
			input:   `{status: running}`,
			wantErr: "malformed",
		},
		{
			name:    "missing status",
			input:   `{"progress":40,"message":"working"}`,
			wantErr: "partial",
		},
		{
			name:    "missing progress",
			input:   `{"status":"running","message":"working"}`,
			wantErr: "partial",
		},
		{
			name:    "missing message",
			input:   `{"status":"running","progress":40}`,
			wantErr: "partial",
		},
		{
			name:    "unknown status",
			input:   `{"status":"paused","progress":40,"message":"working"}`,
			wantErr: "unknown job status",
		},
		{
			name:    "progress above range",
			input:   `{"status":"running","progress":101,"message":"working"}`,
			wantErr: "out of range",
		},
		{
			name:    "progress below range",
			input:   `{"status":"running","progress":-1,"message":"working"}`,
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeStatusFrame([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got frame %+v", tt.wantErr, got)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q does not contain %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for status, terminal := range map[JobStatus]bool{
		StatusQueued:    false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
	} {
		if status.Terminal() != terminal {
			t.Errorf("%s: Terminal() = %v, want %v", status, status.Terminal(), terminal)
		}
	}
}

func TestNewAnalysisConfigClamps(t *testing.T) {
	tests := []struct {
		name        string
		minSim      float64
		anchors     int
		wantSim     float64
		wantAnchors int
	}{
		{"in range", 0.3, 5, 0.3, 5},
		{"similarity below", -0.5, 3, 0, 3},
		{"similarity above", 1.5, 3, 1, 3},
		{"anchors below", 0.2, 0, 0.2, 1},
		{"anchors above", 0.2, 25, 0.2, MaxAnchorSuggestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAnalysisConfig(tt.minSim, tt.anchors)
			if got.MinSimilarity != tt.wantSim || got.AnchorSuggestions != tt.wantAnchors {
				t.Fatalf("got %+v, want {%v %d}", got, tt.wantSim, tt.wantAnchors)
			}
		})
	}
}

func TestRuleWireRoundTrip(t *testing.T) {
	matrix := RuleMatrix{
		{Source: "blog", Target: "blog"}:    {MinLinks: 3, MaxLinks: 5},
		{Source: "blog", Target: "produit"}: {MinLinks: 1, MaxLinks: 3},
		{Source: "produit", Target: "blog"}: {MinLinks: 1, MaxLinks: 2},
	}

	wire := matrix.ToWire()
	if len(wire["blog"]) != 2 {
		t.Fatalf("expected 2 blog targets, got %d", len(wire["blog"]))
	}

	back := wire.ToMatrix()
	if len(back) != len(matrix) {
		t.Fatalf("round trip lost entries: %d != %d", len(back), len(matrix))
	}
	for key, rule := range matrix {
		if back[key] != rule {
			t.Errorf("%v: got %+v, want %+v", key, back[key], rule)
		}
	}
}
