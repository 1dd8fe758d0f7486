package stratum

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Message represents a Stratum JSON-RPC message
type Message struct {
	ID     any    `json:"id"`
	Method string `json:"method,omitempty"`
	Params []any  `json:"params,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Error represents a Stratum error response
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Common Stratum error codes
const (
	ErrorOther          = 20
	ErrorJobNotFound    = 21
	ErrorDuplicateShare = 22
	ErrorLowDifficulty  = 23
	ErrorUnauthorized   = 24
	ErrorNotSubscribed  = 25
	ErrorInvalidRequest = -32600
	ErrorMethodNotFound = -32601
	ErrorInvalidParams  = -32602
	ErrorParseError     = -32700
)

// Stratum methods consumed and produced by the client
const (
	MethodSubscribe     = "mining.subscribe"
	MethodAuthorize     = "mining.authorize"
	MethodSubmit        = "mining.submit"
	MethodNotify        = "mining.notify"
	MethodSetDifficulty = "mining.set_difficulty"
)

// Job represents a mining job delivered by mining.notify
type Job struct {
	JobID        string   `json:"job_id"`
	PrevHash     string   `json:"prevhash"`
	Coinb1       string   `json:"coinb1"`
	Coinb2       string   `json:"coinb2"`
	MerkleBranch []string `json:"merkle_branch"`
	Version      string   `json:"version"`
	NBits        string   `json:"nbits"`
	NTime        string   `json:"ntime"`
	CleanJobs    bool     `json:"clean_jobs"`
}

// SubscribeResult holds the server's mining.subscribe reply values cached
// for job construction
type SubscribeResult struct {
	ExtraNonce1     string
	ExtraNonce2Size int
}

// ParseMessage parses a JSON-RPC message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &msg, nil
}

// MarshalMessage marshals a message to JSON bytes
func MarshalMessage(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// NewRequest creates a new request message
func NewRequest(id any, method string, params []any) *Message {
	return &Message{
		ID:     id,
		Method: method,
		Params: params,
	}
}

// IsResponse returns true if the message is a response
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.ID != nil
}

// IsNotification returns true if the message is a notification
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// ParseNotify parses mining.notify parameters into a Job
func ParseNotify(params []any) (*Job, error) {
	if len(params) < 9 {
		return nil, fmt.Errorf("mining.notify expects 9 parameters, got %d", len(params))
	}

	jobID, ok := params[0].(string)
	if !ok || jobID == "" {
		return nil, fmt.Errorf("job_id must be a non-empty string")
	}

	prevHash, ok := params[1].(string)
	if !ok {
		return nil, fmt.Errorf("prevhash must be a string")
	}

	coinb1, ok := params[2].(string)
	if !ok {
		return nil, fmt.Errorf("coinb1 must be a string")
	}

	coinb2, ok := params[3].(string)
	if !ok {
		return nil, fmt.Errorf("coinb2 must be a string")
	}

	rawBranch, ok := params[4].([]any)
	if !ok {
		return nil, fmt.Errorf("merkle_branch must be an array")
	}
	branch := make([]string, 0, len(rawBranch))
	for i, entry := range rawBranch {
		s, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("merkle_branch entry %d must be a string", i)
		}
		branch = append(branch, s)
	}

	version, ok := params[5].(string)
	if !ok {
		return nil, fmt.Errorf("version must be a string")
	}

	nbits, ok := params[6].(string)
	if !ok {
		return nil, fmt.Errorf("nbits must be a string")
	}

	ntime, ok := params[7].(string)
	if !ok {
		return nil, fmt.Errorf("ntime must be a string")
	}

	cleanJobs, ok := params[8].(bool)
	if !ok {
		return nil, fmt.Errorf("clean_jobs must be a boolean")
	}

	return &Job{
		JobID:        jobID,
		PrevHash:     prevHash,
		Coinb1:       coinb1,
		Coinb2:       coinb2,
		MerkleBranch: branch,
		Version:      version,
		NBits:        nbits,
		NTime:        ntime,
		CleanJobs:    cleanJobs,
	}, nil
}

// ParseSetDifficulty parses mining.set_difficulty parameters
func ParseSetDifficulty(params []any) (float64, error) {
	if len(params) < 1 {
		return 0, fmt.Errorf("mining.set_difficulty expects 1 parameter")
	}

	difficulty, ok := params[0].(float64)
	if !ok {
		return 0, fmt.Errorf("difficulty must be a number")
	}
	if difficulty <= 0 {
		return 0, fmt.Errorf("difficulty must be positive, got %v", difficulty)
	}

	return difficulty, nil
}

// ParseSubscribeResult parses a mining.subscribe reply:
// [subscriptions, extranonce1, extranonce2_size]
func ParseSubscribeResult(result any) (*SubscribeResult, error) {
	fields, ok := result.([]any)
	if !ok || len(fields) < 3 {
		return nil, fmt.Errorf("mining.subscribe reply must be a 3-element array")
	}

	extraNonce1, ok := fields[1].(string)
	if !ok {
		return nil, fmt.Errorf("extranonce1 must be a string")
	}

	size, ok := fields[2].(float64)
	if !ok || size != float64(int(size)) || size <= 0 {
		return nil, fmt.Errorf("extranonce2_size must be a positive integer")
	}

	return &SubscribeResult{
		ExtraNonce1:     extraNonce1,
		ExtraNonce2Size: int(size),
	}, nil
}

// ParseBoolResult interprets a boolean RPC result (mining.authorize and
// mining.submit replies)
func ParseBoolResult(result any) (bool, error) {
	accepted, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean result, got %T", result)
	}
	return accepted, nil
}

// requestID normalizes a reply's id field back to the uint64 the client
// assigned. Pools echo the id as a JSON number; a few echo it as a string.
func requestID(v any) (uint64, bool) {
	switch id := v.(type) {
	case float64:
		if id < 0 || id != float64(uint64(id)) {
			return 0, false
		}
		return uint64(id), true
	case string:
		parsed, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
