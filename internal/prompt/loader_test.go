package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const promptFile = `base_contract:
  description: "Minimal storage contract"
  system_prompt: "You write Sui Move."
  content: |
    Write a Sui Move contract that stores a counter.

nft_contract:
  description: "Simple NFT"
  content: |
    Write a Sui Move NFT contract.
`

func writePrompts(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write prompt file: %v", err)
	}
	return dir
}

func TestLoadDir(t *testing.T) {
	dir := writePrompts(t, "sui_move.yaml", promptFile)

	store, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	want := []string{"sui_move.base_contract", "sui_move.nft_contract"}
	if diff := cmp.Diff(want, store.List()); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	spec, err := store.Get("sui_move.base_contract")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if spec.SystemInstruction != "You write Sui Move." {
		t.Errorf("Unexpected system instruction: %q", spec.SystemInstruction)
	}
	if spec.ContentTemplate == "" || spec.Description != "Minimal storage contract" {
		t.Errorf("Spec mismatch: %+v", spec)
	}
}

func TestLoadDirDefaultSystemInstruction(t *testing.T) {
	dir := writePrompts(t, "sui_move.yaml", promptFile)

	store, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	spec, err := store.Get("sui_move.nft_contract")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if spec.SystemInstruction != DefaultSystemInstruction {
		t.Errorf("Expected default system instruction, got %q", spec.SystemInstruction)
	}
}

func TestLoadDirRejectsEmptyContent(t *testing.T) {
	dir := writePrompts(t, "bad.yaml", "empty_prompt:\n  description: no body\n")

	if _, err := LoadDir(dir); err == nil {
		t.Error("Expected error for prompt without content")
	}
}

func TestLoadDirSkipsNonYAML(t *testing.T) {
	dir := writePrompts(t, "sui_move.yaml", promptFile)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a prompt"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	store, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(store.List()) != 2 {
		t.Errorf("Expected 2 prompts, got %v", store.List())
	}
}

func TestGetRejectsMalformedID(t *testing.T) {
	dir := writePrompts(t, "sui_move.yaml", promptFile)
	store, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	for _, id := range []string{"base_contract", "sui.move.base", ""} {
		if _, err := store.Get(id); err == nil {
			t.Errorf("Expected rejection for id %q", id)
		}
	}
	if _, err := store.Get("sui_move.missing"); err == nil {
		t.Error("Expected not-found error")
	}
}

func TestLoadDirMissingDirectory(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected error for missing prompts directory")
	}
}

func TestDescribe(t *testing.T) {
	dir := writePrompts(t, "sui_move.yaml", promptFile)
	store, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	if got := store.Describe("sui_move.nft_contract"); got != "Simple NFT" {
		t.Errorf("Unexpected description: %q", got)
	}
	if got := store.Describe("sui_move.missing"); got != "" {
		t.Errorf("Expected empty description for unknown id, got %q", got)
	}
}
