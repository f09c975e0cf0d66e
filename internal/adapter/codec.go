package adapter

import (
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// JSON encodes bridge messages for JetStream and the journal
//
//go:generate mockgen -source=codec.go -destination=../mocks/codec.go -package=mocks -mock_names=JSON=MockJSON,JCS=MockJCS
type JSON interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JCS canonicalizes JSON (RFC 8785) so equal messages hash to the same JetStream message id
type JCS interface {
	Transform(data []byte) ([]byte, error)
}

type stdJSON struct{}

// NewJSON returns a JSON codec backed by encoding/json
func NewJSON() JSON {
	return stdJSON{}
}

func (stdJSON) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (stdJSON) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

type canonicalizer struct{}

// NewJCS returns a JCS canonicalizer
func NewJCS() JCS {
	return canonicalizer{}
}

func (canonicalizer) Transform(data []byte) ([]byte, error) {
	return jcs.Transform(data)
}
