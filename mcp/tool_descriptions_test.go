package mcp

import (
	"strings"
	"testing"
)

func TestToolNamesReturnsCopy(t *testing.T) {
	t.Parallel()

	names := ToolNames()
	if len(names) != 13 {
		t.Fatalf("tool count = %d, want 13", len(names))
	}
	names[0] = "mutated"
	if ToolNames()[0] != toolListDatabases {
		t.Fatal("ToolNames must return a copy")
	}
}

func TestBuildToolDescriptionsCoversEveryTool(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	applyDefaults(&cfg)
	descriptions := buildToolDescriptions(cfg)

	for _, name := range mcpToolNames {
		desc, ok := descriptions[name]
		if !ok {
			t.Fatalf("no description for tool %q", name)
		}
		for _, line := range []string{"Purpose: ", "Use when: ", "Requires: ", "Effects: ", "Retry: ", "Next: "} {
			if !strings.Contains(desc, line) {
				t.Fatalf("tool %q description missing %q section", name, line)
			}
		}
		if !strings.Contains(desc, "READ-ONLY") {
			t.Fatalf("tool %q description missing the read-only banner", name)
		}
	}
	if len(descriptions) != len(mcpToolNames) {
		t.Fatalf("descriptions = %d entries, want %d", len(descriptions), len(mcpToolNames))
	}
}

func TestBuildToolDescriptionsInterpolatesLimits(t *testing.T) {
	t.Parallel()

	cfg := Config{MaxDocumentsPerQuery: 25, MaxBytesPerQuery: 1 << 20, DefaultFindLimit: 7}
	applyDefaults(&cfg)
	descriptions := buildToolDescriptions(cfg)

	find := descriptions[toolFind]
	if !strings.Contains(find, "capped at 25") {
		t.Fatalf("find description missing document ceiling: %q", find)
	}
	if !strings.Contains(find, "defaults to 7") {
		t.Fatalf("find description missing default limit: %q", find)
	}
	if !strings.Contains(find, "1.0 MiB") {
		t.Fatalf("find description missing byte ceiling: %q", find)
	}
}

func TestFormatToolDescriptionSkipsBlankTopLines(t *testing.T) {
	t.Parallel()

	desc := formatToolDescription(toolContract{
		Top:     []string{"BANNER", "  ", ""},
		Purpose: "p",
		UseWhen: "u", Requires: "r", Effects: "e", Retry: "t", Next: "n",
	})
	lines := strings.Split(desc, "\n")
	if len(lines) != 7 {
		t.Fatalf("lines = %d, want banner plus six sections", len(lines))
	}
	if lines[0] != "BANNER" {
		t.Fatalf("first line = %q", lines[0])
	}
}
