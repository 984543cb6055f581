package protocol

import (
	"encoding/json"
	"testing"
)

func TestOperationStateClassification(t *testing.T) {
	tests := []struct {
		state        OperationState
		wantTerminal bool
		wantFailure  bool
	}{
		{StateInitialized, false, false},
		{StateRunning, false, false},
		{StatePending, false, false},
		{StateCompleted, true, false},
		{StateBadInput, true, true},
		{StateCodeError, true, true},
		{StateError, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.Terminal(); got != tt.wantTerminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.wantTerminal)
			}
			if got := tt.state.Failure(); got != tt.wantFailure {
				t.Errorf("Failure() = %v, want %v", got, tt.wantFailure)
			}
		})
	}
}

func TestNewCodeRequestNormalizesNil(t *testing.T) {
	req := NewCodeRequest("x = 1", nil, nil)

	data, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	for _, key := range []string{"type", "exec_cmd", "inputs", "outputs"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("request missing key %q", key)
		}
	}
	if string(raw["inputs"]) != "{}" {
		t.Errorf("inputs = %s, want {}", raw["inputs"])
	}
	if string(raw["outputs"]) != "[]" {
		t.Errorf("outputs = %s, want []", raw["outputs"])
	}
}

func TestDecodeRequest(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		req := NewCodeRequest("fetchall = cursor.fetchall()", nil, []string{"fetchall"})
		data, err := req.Encode()
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		decoded, err := DecodeRequest(data)
		if err != nil {
			t.Fatalf("DecodeRequest() error = %v", err)
		}
		if decoded.ExecCmd != req.ExecCmd {
			t.Errorf("ExecCmd = %q, want %q", decoded.ExecCmd, req.ExecCmd)
		}
		if len(decoded.Outputs) != 1 || decoded.Outputs[0] != "fetchall" {
			t.Errorf("Outputs = %v, want [fetchall]", decoded.Outputs)
		}
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := DecodeRequest([]byte(`{"type":"ping","exec_cmd":"","inputs":{},"outputs":[]}`))
		if err == nil {
			t.Fatal("DecodeRequest() error = nil, want error")
		}
	})
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		want    OperationState
	}{
		{
			name:  "running frame",
			input: `{"state":"RUNNING","stdout":"Poll status: 2, sleeping"}`,
			want:  StateRunning,
		},
		{
			name:  "completed frame with objs",
			input: `{"state":"COMPLETED","objs":{}}`,
			want:  StateCompleted,
		},
		{
			name:    "missing state",
			input:   `{"stdout":"hello"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			input:   `{"state":`,
			wantErr: true,
		},
		{
			name:    "empty frame",
			input:   ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("DecodeResponse() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeResponse() error = %v", err)
			}
			if resp.State != tt.want {
				t.Errorf("State = %q, want %q", resp.State, tt.want)
			}
		})
	}
}

func TestResponseObj(t *testing.T) {
	encoded, err := EncodeValue(StringValue("hello"))
	if err != nil {
		t.Fatalf("EncodeValue() error = %v", err)
	}
	resp := &ResponseEnvelope{
		State: StateCompleted,
		Objs:  map[string]string{"greeting": encoded},
	}

	val, ok, err := resp.Obj("greeting")
	if err != nil {
		t.Fatalf("Obj() error = %v", err)
	}
	if !ok {
		t.Fatal("Obj() ok = false, want true")
	}
	if got := val.Native(); got != "hello" {
		t.Errorf("Native() = %v, want hello", got)
	}

	if _, ok, err := resp.Obj("absent"); err != nil || ok {
		t.Errorf("Obj(absent) = (%v, %v), want (false, nil)", ok, err)
	}
}
