package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cleanr/inboxengine/manifest"
)

func TestBuildSystemPromptFolderCleanupNeverOffersKeep(t *testing.T) {
	m := &manifest.Manifest{JobType: manifest.JobTypeFolderCleanup}
	prompt := BuildSystemPrompt(m, "Archive", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, prompt, "CLEAR the folder")
	assert.Contains(t, prompt, "Never use \"keep\"")
}

func TestBuildSystemPromptInboxCleanupOffersKeep(t *testing.T) {
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup}
	prompt := BuildSystemPrompt(m, "INBOX", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, prompt, "\"keep\"")
	assert.NotContains(t, prompt, "Never use \"keep\"")
}

func TestBuildSystemPromptIncludesCustomPromptAsSupplemental(t *testing.T) {
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup, CustomPrompt: "file anything from my accountant under Finance"}
	prompt := BuildSystemPrompt(m, "INBOX", time.Now())
	assert.Contains(t, prompt, "ADDITIONAL INSTRUCTIONS")
	assert.Contains(t, prompt, "file anything from my accountant under Finance")
}

func TestBuildSystemPromptOmitsCustomPromptSectionWhenEmpty(t *testing.T) {
	m := &manifest.Manifest{JobType: manifest.JobTypeInboxCleanup}
	prompt := BuildSystemPrompt(m, "INBOX", time.Now())
	assert.NotContains(t, prompt, "ADDITIONAL INSTRUCTIONS")
}

func TestExtractResponseTextFromMessageEnvelope(t *testing.T) {
	body := []byte(`{"content":[{"text":"[{\"uid\":\"1\",\"action\":\"keep\"}]"}]}`)
	text, err := extractResponseText(body)
	assert.NoError(t, err)
	assert.Contains(t, text, "\"action\":\"keep\"")
}

func TestExtractResponseTextEmptyContentErrors(t *testing.T) {
	_, err := extractResponseText([]byte(`{"content":[]}`))
	assert.Error(t, err)
}

func TestCodeFenceStrippingLeavesPlainJSON(t *testing.T) {
	fenced := "```json\n[{\"uid\":\"1\",\"action\":\"keep\"}]\n```"
	cleaned := codeFenceRe.ReplaceAllString(fenced, "")
	assert.Equal(t, `[{"uid":"1","action":"keep"}]`, cleaned)
}
