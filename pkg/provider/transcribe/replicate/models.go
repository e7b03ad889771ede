package replicate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	r8 "github.com/replicate/replicate-go"
)

// Model names accepted by ModelByName.
const (
	ModelDiarization = "whisper-diarization"
	ModelFastWhisper = "incredibly-fast-whisper"
)

// maxMergeGap is the largest pause, in seconds, between two segments of the
// same speaker that are still merged into one paragraph.
const maxMergeGap = 2.0

// ModelByName returns the model registered under name. options are merged
// over the model's default input and may override any of them.
func ModelByName(name string, options map[string]any) (Model, error) {
	switch name {
	case ModelDiarization, "thomasmol/whisper-diarization", "":
		return &Diarization{Options: options}, nil
	case ModelFastWhisper, "vaibhavs10/incredibly-fast-whisper":
		return &FastWhisper{Options: options}, nil
	default:
		return nil, fmt.Errorf("replicate: unknown model %q", name)
	}
}

// Diarization runs thomasmol/whisper-diarization, which returns speaker
// labelled segments.
type Diarization struct {
	Options map[string]any
}

var _ Model = (*Diarization)(nil)

func (*Diarization) Name() string { return "thomasmol/whisper-diarization" }

func (d *Diarization) Input(fileURL string) r8.PredictionInput {
	return mergeInput(r8.PredictionInput{
		"group_segments":           true,
		"transcript_output_format": "both",
		"translate":                false,
		"language":                 "en",
		"prompt":                   "Hello.",
		"file_url":                 fileURL,
	}, d.Options)
}

type diarizationOutput struct {
	Language    string `json:"language"`
	NumSpeakers int    `json:"num_speakers"`
	Segments    []struct {
		Speaker string  `json:"speaker"`
		Text    string  `json:"text"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"segments"`
}

// Format renders every segment as "speaker: text", separated by blank lines.
func (*Diarization) Format(output any) (string, error) {
	var out diarizationOutput
	if err := decode(output, &out); err != nil {
		return "", fmt.Errorf("replicate: diarization output: %w", err)
	}
	paragraphs := make([]paragraph, 0, len(out.Segments))
	for _, s := range out.Segments {
		paragraphs = append(paragraphs, paragraph{speaker: s.Speaker, text: s.Text})
	}
	return join(paragraphs), nil
}

// FastWhisper runs vaibhavs10/incredibly-fast-whisper with diarisation.
// Options must carry an "hf_token" for the pyannote speaker model.
type FastWhisper struct {
	Options map[string]any
}

var _ Model = (*FastWhisper)(nil)

func (*FastWhisper) Name() string { return "vaibhavs10/incredibly-fast-whisper" }

func (f *FastWhisper) Input(fileURL string) r8.PredictionInput {
	return mergeInput(r8.PredictionInput{
		"task":          "transcribe",
		"language":      "english",
		"batch_size":    24,
		"timestamp":     "chunk",
		"diarise_audio": true,
		"audio":         fileURL,
	}, f.Options)
}

type fastWhisperSegment struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp []float64 `json:"timestamp"`
}

// Format drops the trailing element of the output list, which is not a
// segment, and merges consecutive segments of one speaker that are less than
// two seconds apart.
func (*FastWhisper) Format(output any) (string, error) {
	raw, ok := output.([]any)
	if !ok {
		return "", fmt.Errorf("replicate: fast whisper output: expected a list, got %T", output)
	}
	if len(raw) <= 1 {
		return "", nil
	}

	var segments []fastWhisperSegment
	if err := decode(raw[:len(raw)-1], &segments); err != nil {
		return "", fmt.Errorf("replicate: fast whisper output: %w", err)
	}
	for i, s := range segments {
		if len(s.Timestamp) != 2 {
			return "", fmt.Errorf("replicate: fast whisper output: segment %d has %d timestamps, want 2", i, len(s.Timestamp))
		}
	}

	merged := []paragraph{{speaker: segments[0].Speaker, text: segments[0].Text}}
	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1], segments[i]
		gap := cur.Timestamp[0] - prev.Timestamp[1]
		if cur.Speaker == prev.Speaker && gap < maxMergeGap {
			last := &merged[len(merged)-1]
			last.text += " " + cur.Text
			continue
		}
		merged = append(merged, paragraph{speaker: cur.Speaker, text: cur.Text})
	}
	return join(merged), nil
}

type paragraph struct {
	speaker string
	text    string
}

func join(ps []paragraph) string {
	lines := make([]string, len(ps))
	for i, p := range ps {
		lines[i] = p.speaker + ": " + p.text
	}
	return strings.Join(lines, "\n\n")
}

// decode converts the generic JSON value of a prediction output into v.
func decode(output any, v any) error {
	if output == nil {
		return errors.New("no output")
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
