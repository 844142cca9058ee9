package util

import (
	"encoding/json"
	"fmt"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MediaInfo is the subset of ffprobe output the transcription path needs.
type MediaInfo struct {
	Duration float64
	HasAudio bool
}

// ProbeMedia 使用ffmpeg-go读取媒体信息
func ProbeMedia(path string) (*MediaInfo, error) {
	jsonOutput, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("probe media: %w", err)
	}

	var result struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
		Format struct {
			Duration json.Number `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	info := &MediaInfo{}
	info.Duration, _ = result.Format.Duration.Float64()
	for _, s := range result.Streams {
		if s.CodecType == "audio" {
			info.HasAudio = true
			break
		}
	}
	return info, nil
}

// ExtractAudio writes the audio track of a video as 16kHz mono, the format
// speech recognition works best with.
func ExtractAudio(videoPath, audioPath string) error {
	return ffmpeg.Input(videoPath).
		Output(audioPath, ffmpeg.KwArgs{
			"vn": "",
			"ac": "1",
			"ar": "16000",
		}).
		OverWriteOutput().
		Silent(true).
		Run()
}
