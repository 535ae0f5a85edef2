package llm

import "testing"

func TestCleanSourceStripsFences(t *testing.T) {
	in := "Here is the contract:\n```move\nmodule demo::registry {\n}\n```\nLet me know if it helps."
	want := "module demo::registry {\n}"

	if got := CleanSource(in); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestCleanSourceNoFences(t *testing.T) {
	in := "  module demo::registry {}\n"
	want := "module demo::registry {}"

	if got := CleanSource(in); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestCleanSourceMultipleBlocks(t *testing.T) {
	in := "```move\nmodule a {}\n```\nprose\n```move\nmodule b {}\n```"
	got := CleanSource(in)
	if got != "module a {}\nmodule b {}" {
		t.Errorf("Expected both blocks joined, got %q", got)
	}
}

func TestExtractCodeBlocks(t *testing.T) {
	in := "```move\nmodule a {}\n```\nsome text\n```toml\n[package]\n```"

	blocks := ExtractCodeBlocks(in)
	if len(blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Language != "move" {
		t.Errorf("Expected language move, got %q", blocks[0].Language)
	}
	if blocks[0].Content != "module a {}" {
		t.Errorf("Unexpected block content: %q", blocks[0].Content)
	}
	if blocks[1].Language != "toml" {
		t.Errorf("Expected language toml, got %q", blocks[1].Language)
	}
}

func TestExtractCodeBlocksNone(t *testing.T) {
	if blocks := ExtractCodeBlocks("no fences here"); len(blocks) != 0 {
		t.Errorf("Expected no blocks, got %d", len(blocks))
	}
}
