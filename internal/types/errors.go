package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown task ids.
var ErrNotFound = errors.New("task not found")

type ErrorKind string

const (
	KindAcquisition   ErrorKind = "acquisition"
	KindTranscription ErrorKind = "transcription"
	KindAnalysis      ErrorKind = "analysis"
	KindRender        ErrorKind = "render"
	KindCaption       ErrorKind = "caption"

	// KindCancelled marks tasks ended by shutdown; KindInternal marks
	// failures no stage classified.
	KindCancelled ErrorKind = "cancelled"
	KindInternal  ErrorKind = "internal"
)

// Fatal reports whether an error of this kind ends the whole task.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindAcquisition, KindTranscription, KindAnalysis, KindCancelled, KindInternal:
		return true
	default:
		return false
	}
}

// StageError is a classified pipeline failure with the context needed to
// explain it to a caller.
type StageError struct {
	Kind   ErrorKind
	Stage  string
	TaskID string
	ClipID string
	Msg    string
	Err    error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	prefix := string(e.Kind)
	if e.TaskID != "" {
		prefix = fmt.Sprintf("%s (task=%s", prefix, e.TaskID)
		if e.ClipID != "" {
			prefix += " clip=" + e.ClipID
		}
		prefix += ")"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func AcquisitionError(msg string, err error) *StageError {
	return &StageError{Kind: KindAcquisition, Stage: "acquire", Msg: msg, Err: err}
}

func TranscriptionError(msg string, err error) *StageError {
	return &StageError{Kind: KindTranscription, Stage: "transcribe", Msg: msg, Err: err}
}

func AnalysisError(msg string, err error) *StageError {
	return &StageError{Kind: KindAnalysis, Stage: "analyze", Msg: msg, Err: err}
}

func RenderError(clipID, msg string, err error) *StageError {
	return &StageError{Kind: KindRender, Stage: "render", ClipID: clipID, Msg: msg, Err: err}
}

func CaptionError(clipID, msg string, err error) *StageError {
	return &StageError{Kind: KindCaption, Stage: "caption", ClipID: clipID, Msg: msg, Err: err}
}

// KindOf returns the classification of err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// TaskError is the caller-facing summary stored on a failed task.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

// Summarize turns err into a TaskError. Unclassified errors are reported as
// internal under the stage that was running.
func Summarize(taskID, stage string, err error) *TaskError {
	var se *StageError
	if errors.As(err, &se) {
		tagged := *se
		tagged.TaskID = taskID
		return &TaskError{Kind: se.Kind, Stage: se.Stage, Message: tagged.Error()}
	}
	return &TaskError{Kind: KindInternal, Stage: stage, Message: fmt.Sprintf("task=%s stage=%s: %v", taskID, stage, err)}
}
