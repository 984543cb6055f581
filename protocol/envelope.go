// Package protocol defines the wire messages exchanged with a remote Spark
// execution session: the code-submission request, the streamed response
// envelope, and the typed value encoding used for inputs and returned
// objects.
package protocol

import (
	"encoding/json"
	"fmt"
)

// RequestTypeCode is the only request type the remote session understands.
const RequestTypeCode = "code"

// OperationState is the state the remote session reports for an in-flight
// code submission.
type OperationState string

const (
	StateInitialized OperationState = "INITIALIZED"
	StateRunning     OperationState = "RUNNING"
	StatePending     OperationState = "PENDING"
	StateCompleted   OperationState = "COMPLETED"
	StateBadInput    OperationState = "BAD_INPUT"
	StateCodeError   OperationState = "CODE_ERROR"
	StateError       OperationState = "ERROR"
)

// Terminal reports whether no further frames follow for the request.
func (s OperationState) Terminal() bool {
	switch s {
	case StateCompleted, StateBadInput, StateCodeError, StateError:
		return true
	default:
		return false
	}
}

// Failure reports whether the state is a terminal failure.
func (s OperationState) Failure() bool {
	return s.Terminal() && s != StateCompleted
}

// RequestEnvelope is the single JSON message sent per remote-execution call.
// Inputs hold encoded Values keyed by the session variable name they bind;
// Outputs name the session variables to return on completion.
type RequestEnvelope struct {
	Type    string            `json:"type"`
	ExecCmd string            `json:"exec_cmd"`
	Inputs  map[string]string `json:"inputs"`
	Outputs []string          `json:"outputs"`
}

// NewCodeRequest builds a code-submission envelope. Nil inputs/outputs are
// normalized so the wire form always carries both keys.
func NewCodeRequest(code string, inputs map[string]string, outputs []string) *RequestEnvelope {
	if inputs == nil {
		inputs = map[string]string{}
	}
	if outputs == nil {
		outputs = []string{}
	}
	return &RequestEnvelope{
		Type:    RequestTypeCode,
		ExecCmd: code,
		Inputs:  inputs,
		Outputs: outputs,
	}
}

// Encode serializes the request for transmission.
func (r *RequestEnvelope) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request envelope: %w", err)
	}
	return data, nil
}

// DecodeRequest parses a raw frame into a RequestEnvelope. Used by scripted
// test servers to inspect what a bridge sent.
func DecodeRequest(data []byte) (*RequestEnvelope, error) {
	var req RequestEnvelope
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed request envelope: %w", err)
	}
	if req.Type != RequestTypeCode {
		return nil, fmt.Errorf("unsupported request type %q", req.Type)
	}
	return &req, nil
}

// ResponseEnvelope is one frame of the reply stream. A request produces zero
// or more non-terminal frames followed by exactly one terminal frame.
type ResponseEnvelope struct {
	State  OperationState    `json:"state"`
	Stdout string            `json:"stdout,omitempty"`
	Objs   map[string]string `json:"objs,omitempty"`
}

// DecodeResponse parses a raw frame into a ResponseEnvelope.
func DecodeResponse(data []byte) (*ResponseEnvelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response frame")
	}
	var resp ResponseEnvelope
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("malformed response envelope: %w", err)
	}
	if resp.State == "" {
		return nil, fmt.Errorf("response envelope missing state")
	}
	return &resp, nil
}

// Encode serializes the response frame. Used by scripted test servers.
func (r *ResponseEnvelope) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode response envelope: %w", err)
	}
	return data, nil
}

// Obj decodes the named returned object. The second result is false when the
// session did not return that name.
func (r *ResponseEnvelope) Obj(name string) (Value, bool, error) {
	encoded, ok := r.Objs[name]
	if !ok {
		return Value{}, false, nil
	}
	val, err := DecodeValue(encoded)
	if err != nil {
		return Value{}, false, fmt.Errorf("decode object %q: %w", name, err)
	}
	return val, true, nil
}
