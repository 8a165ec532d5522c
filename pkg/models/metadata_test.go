package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMetadata = `{
  "samples": [
    {
      "id": 1,
      "filename": "samples/01_shure_sm7b.wav",
      "microphone": {"manufacturer": "Shure", "model": "SM7B", "category": "dynamic", "connection": "xlr", "price_usd": 399},
      "distance_cm": 10
    },
    {
      "id": 2,
      "filename": "samples/02_builtin.wav",
      "microphone": {"manufacturer": "Apple", "model": "MacBook Pro"}
    }
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMetadata(t *testing.T) {
	meta, err := LoadMetadata(writeFile(t, "metadata.json", sampleMetadata))
	require.NoError(t, err)
	require.Len(t, meta.Samples, 2)

	first := meta.Samples[0]
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, "Shure SM7B", first.Microphone.DisplayName())
	assert.Equal(t, "dynamic", first.Microphone.CategoryOrUnknown())
	require.NotNil(t, first.DistanceCM)
	assert.Equal(t, 10.0, *first.DistanceCM)
	assert.JSONEq(t, `"xlr"`, string(first.Microphone.Attributes["connection"]))

	second, ok := meta.FindSample(2)
	assert.True(t, ok)
	assert.Equal(t, "unknown", second.Microphone.CategoryOrUnknown())

	_, ok = meta.FindSample(42)
	assert.False(t, ok)
}

func TestLoadMetadataErrors(t *testing.T) {
	_, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadMetadata(writeFile(t, "broken.json", `{"samples": [`))
	assert.Error(t, err)

	_, err = LoadMetadata(writeFile(t, "dup.json",
		`{"samples":[{"id":1,"filename":"a.wav","microphone":{}},{"id":1,"filename":"b.wav","microphone":{}}]}`))
	assert.Error(t, err)
}

func TestLoadReferenceText(t *testing.T) {
	text, err := LoadReferenceText(writeFile(t, "coffee.txt", "  The Coffee\n\tis   HOT.\n"))
	require.NoError(t, err)
	assert.Equal(t, "the coffee is hot.", text)
}

func TestMicrophonePreservesUnknownAttributes(t *testing.T) {
	input := `{"category":"usb","connection":"usb-c","manufacturer":"Rode","model":"NT-USB","polar":["cardioid"]}`

	var mic Microphone
	require.NoError(t, json.Unmarshal([]byte(input), &mic))
	assert.Equal(t, "Rode", mic.Manufacturer)
	assert.Len(t, mic.Attributes, 2)

	out, err := json.Marshal(mic)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

func TestMicrophoneKeepsEmptyKnownFields(t *testing.T) {
	input := `{"manufacturer":"","model":"X1"}`

	var mic Microphone
	require.NoError(t, json.Unmarshal([]byte(input), &mic))

	out, err := json.Marshal(mic)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestSampleEvaluationTranscription(t *testing.T) {
	eval := SampleEvaluation{
		SampleID: 3,
		Transcriptions: []TranscriptionResult{
			{Service: LocalWhisperService, WER: 0.1},
			{Service: OpenAIWhisperService, WER: 0.2},
		},
	}

	res, ok := eval.Transcription(OpenAIWhisperService)
	assert.True(t, ok)
	assert.Equal(t, 0.2, res.WER)

	_, ok = eval.Transcription("other")
	assert.False(t, ok)
	assert.Equal(t, []string{LocalWhisperService, OpenAIWhisperService}, eval.Services())
}
