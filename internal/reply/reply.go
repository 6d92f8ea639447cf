// Package reply reads the JSON document returned by the speech service.
package reply

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"askmarie/internal/domain"
)

const (
	keyAudioPath     = "audio_path"
	keyTranscription = "transcription"
	keyResponse      = "response"
	keyError         = "error"
)

var (
	ErrMissingField = errors.New("reply has no audio_path")
	ErrMalformed    = errors.New("reply is not a JSON object")
)

// ExtractAudioPath returns the literal audio_path value. The value is not
// URL-decoded.
func ExtractAudioPath(body string) (string, error) {
	doc, err := parseObject(body)
	if err != nil {
		return "", err
	}
	return audioPath(doc)
}

// Parse reads the full reply, including the optional transcription and
// response text.
func Parse(body string) (domain.ServiceReply, error) {
	doc, err := parseObject(body)
	if err != nil {
		return domain.ServiceReply{}, err
	}
	path, err := audioPath(doc)
	if err != nil {
		return domain.ServiceReply{}, err
	}
	return domain.ServiceReply{
		AudioPath:     path,
		Transcription: doc.Get(gjson.Escape(keyTranscription)).String(),
		Response:      doc.Get(gjson.Escape(keyResponse)).String(),
	}, nil
}

// ErrorMessage returns the service's "error" field, if body carries one.
func ErrorMessage(body string) string {
	doc, err := parseObject(body)
	if err != nil {
		return ""
	}
	field := doc.Get(gjson.Escape(keyError))
	if field.Type != gjson.String {
		return ""
	}
	return field.Str
}

func parseObject(body string) (gjson.Result, error) {
	if !gjson.Valid(body) {
		return gjson.Result{}, domain.Wrap(domain.ErrorCodeParse, ErrMalformed)
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return gjson.Result{}, domain.Wrap(domain.ErrorCodeParse, ErrMalformed)
	}
	return doc, nil
}

func audioPath(doc gjson.Result) (string, error) {
	field := doc.Get(gjson.Escape(keyAudioPath))
	switch field.Type {
	case gjson.String:
		return field.Str, nil
	case gjson.Null:
		return "", domain.Wrap(domain.ErrorCodeParse, ErrMissingField)
	default:
		return "", domain.Wrap(domain.ErrorCodeParse,
			fmt.Errorf("%w: audio_path is %s", ErrMalformed, field.Type))
	}
}
