package jobs

import (
	"time"

	"github.com/bytedance/sonic"
)

const (
	TaskTransform = "transform:overlay"

	// QueueTransform keeps overlay jobs apart from anything else sharing Redis.
	QueueTransform = "transform"
)

// TransformPayload is one overlay job. Paths are absolute and live under the
// shared DATA_DIR, so bot and worker must mount the same volume.
type TransformPayload struct {
	JobID      string        `json:"job_id"`
	UserID     int64         `json:"user_id"`
	VideoPath  string        `json:"video_path"`
	BannerPath string        `json:"banner_path"`
	OutputPath string        `json:"output_path"`
	Deadline   time.Duration `json:"deadline_ns"`
}

// TransformResult is published by the worker when a job finishes.
type TransformResult struct {
	JobID    string        `json:"job_id"`
	OK       bool          `json:"ok"`
	Kind     string        `json:"kind,omitempty"` // transform error kind when !OK
	Detail   string        `json:"detail,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Bytes    int64         `json:"bytes,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

func ResultChannel(jobID string) string { return "transform:done:" + jobID }

func (p TransformPayload) Encode() ([]byte, error) { return sonic.Marshal(p) }

func DecodePayload(b []byte) (TransformPayload, error) {
	var p TransformPayload
	err := sonic.Unmarshal(b, &p)
	return p, err
}

func (r TransformResult) Encode() ([]byte, error) { return sonic.Marshal(r) }

func DecodeResult(b []byte) (TransformResult, error) {
	var r TransformResult
	err := sonic.Unmarshal(b, &r)
	return r, err
}
