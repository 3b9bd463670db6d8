package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"rpcframe/internal/status"
)

// requestID captures the three shapes a JSON-RPC id may take (string,
// integer, or null) plus "absent", so a response can echo it verbatim
// without conflating "id was JSON null" with "id was never sent".
type requestID struct {
	present bool
	isNull  bool
	isStr   bool
	str     string
	isNum   bool
	num     json.Number
}

func (id requestID) writeTo(buf *bytes.Buffer) error {
	if !id.present {
		return nil
	}
	buf.WriteString(`"id":`)
	switch {
	case id.isNull:
		buf.WriteString("null")
	case id.isStr:
		encoded, err := json.Marshal(id.str)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	case id.isNum:
		buf.WriteString(id.num.String())
	}
	buf.WriteString(",")
	return nil
}

// parseRequestID extracts and validates the "id" entry of a decoded
// request object. It rejects floating-point ids (the engine only supports
// string or integer ids, matching observed behavior rather than the full
// generality JSON-RPC allows).
func parseRequestID(raw map[string]interface{}) (requestID, error) {
	v, present := raw["id"]
	if !present {
		return requestID{}, nil
	}
	switch t := v.(type) {
	case nil:
		return requestID{present: true, isNull: true}, nil
	case string:
		return requestID{present: true, isStr: true, str: t}, nil
	case json.Number:
		if isFloat(t) {
			return requestID{}, status.New(status.InvalidArgument, "Invalid id type: floating-point ids are not supported")
		}
		return requestID{present: true, isNum: true, num: t}, nil
	default:
		return requestID{}, status.New(status.InvalidArgument, "Invalid id type: expected string or integer")
	}
}

func isFloat(n json.Number) bool {
	s := n.String()
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return true
		}
	}
	return false
}

// buildSuccessEnvelope assembles {"jsonrpc":"2.0","id":...,"result":...}.
func buildSuccessEnvelope(id requestID, result interface{}) ([]byte, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("dispatch: marshal result: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"2.0",`)
	if err := id.writeTo(&buf); err != nil {
		return nil, err
	}
	buf.WriteString(`"result":`)
	buf.Write(resultJSON)
	buf.WriteString("}")
	return buf.Bytes(), nil
}

// buildErrorEnvelope assembles {"jsonrpc":"2.0","id":...,"error":{"code":...,"message":...}}.
// id.present may be false, in which case the id field is omitted entirely
// (the engine never emits "id":null for a request whose id we never read).
func buildErrorEnvelope(id requestID, statusErr *status.Error) ([]byte, error) {
	msgJSON, err := json.Marshal(statusErr.Message)
	if err != nil {
		return nil, fmt.Errorf("dispatch: marshal error message: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"2.0",`)
	if err := id.writeTo(&buf); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, `"error":{"code":%d,"message":`, int(statusErr.Code))
	buf.Write(msgJSON)
	buf.WriteString("}}")
	return buf.Bytes(), nil
}
