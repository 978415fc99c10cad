package nipc

import (
	"encoding/json"
	"fmt"
)

// Envelopes are JSON regardless of the codec configured on the node. They
// carry routing and correlation data only. The argument, result and broadcast
// values inside are encoded with the codec named in the envelope, so nodes
// with different codecs can interoperate.

const envelopeVersion = 1

const (
	statusOK    = "ok"
	statusError = "error"
)

// Machine readable error codes carried in error responses.
const (
	codeMethodNotFound = "method_not_found"
	codeInvalidRequest = "invalid_request"
	codeRemoteError    = "remote_error"
)

type requestEnvelope struct {
	Version int      `json:"v"`
	ID      string   `json:"id"`
	From    string   `json:"from"`
	Method  string   `json:"method"`
	Reply   string   `json:"reply"`
	Codec   string   `json:"codec"`
	Args    [][]byte `json:"args,omitempty"`
	Timeout int64    `json:"timeout,omitempty"`
}

type responseEnvelope struct {
	Version int    `json:"v"`
	ID      string `json:"id"`
	From    string `json:"from,omitempty"`
	Status  string `json:"status"`
	Codec   string `json:"codec,omitempty"`
	Value   []byte `json:"value,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

type broadcastEnvelope struct {
	Version int    `json:"v"`
	From    string `json:"from,omitempty"`
	Codec   string `json:"codec"`
	Data    []byte `json:"data"`
}

func marshalEnvelope(env interface{}) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, SerializationError{Op: "marshal envelope", Err: err}
	}
	return payload, nil
}

// unmarshalRequest parses a request envelope. On validation errors the
// parsed envelope is returned alongside the error, so the receiver can
// still address an error reply if the envelope named a reply subject.
func unmarshalRequest(data []byte) (*requestEnvelope, error) {
	var env requestEnvelope
	if r := json.Unmarshal(data, &env); r != nil {
		return nil, SerializationError{Op: "unmarshal request envelope", Err: r}
	}
	if env.Version != envelopeVersion {
		return &env, InvalidRequestError{Reason: fmt.Sprintf("unsupported envelope version %d", env.Version)}
	}
	if env.ID == "" {
		return &env, InvalidRequestError{Reason: "missing correlation id"}
	}
	if env.Method == "" {
		return &env, InvalidRequestError{Reason: "missing method"}
	}
	if env.Reply == "" {
		return &env, InvalidRequestError{Reason: "missing reply subject"}
	}
	return &env, nil
}

func unmarshalResponse(data []byte) (*responseEnvelope, error) {
	var env responseEnvelope
	if r := json.Unmarshal(data, &env); r != nil {
		return nil, SerializationError{Op: "unmarshal response envelope", Err: r}
	}
	if env.Version != envelopeVersion {
		return nil, InvalidRequestError{Reason: fmt.Sprintf("unsupported envelope version %d", env.Version)}
	}
	if env.ID == "" {
		return nil, InvalidRequestError{Reason: "missing correlation id"}
	}
	if env.Status != statusOK && env.Status != statusError {
		return nil, InvalidRequestError{Reason: fmt.Sprintf("unknown response status %q", env.Status)}
	}
	return &env, nil
}

func unmarshalBroadcast(data []byte) (*broadcastEnvelope, error) {
	var env broadcastEnvelope
	if r := json.Unmarshal(data, &env); r != nil {
		return nil, SerializationError{Op: "unmarshal broadcast envelope", Err: r}
	}
	if env.Version != envelopeVersion {
		return nil, InvalidRequestError{Reason: fmt.Sprintf("unsupported envelope version %d", env.Version)}
	}
	return &env, nil
}

func errorResponse(id, from, code, desc string) *responseEnvelope {
	return &responseEnvelope{
		Version: envelopeVersion,
		ID:      id,
		From:    from,
		Status:  statusError,
		Code:    code,
		Error:   desc,
	}
}

// callError converts an error response received for a call into the typed
// error returned to the caller.
func callError(target, method string, env *responseEnvelope) error {
	switch env.Code {
	case codeMethodNotFound:
		nodeID := env.From
		if nodeID == "" {
			nodeID = target
		}
		return MethodNotFoundError{Method: method, NodeID: nodeID}
	case codeInvalidRequest:
		return InvalidRequestError{Reason: env.Error}
	default:
		return RemoteError{Target: target, Method: method, Description: env.Error}
	}
}

func requestSubject(target string) string {
	return "rpc." + target + ".request"
}

func replySubject(nodeID, token string) string {
	return "rpc." + nodeID + ".reply." + token
}

func broadcastSubject(channel string) string {
	return "broadcast." + channel
}
