package dto

import (
	"encoding/json"
	"time"
)

// Frame kinds. The router switches exhaustively over this set; anything
// else is answered with a generic error frame.
const (
	FrameAuthenticate   = "authenticate"
	FrameHeartbeat      = "heartbeat"
	FramePing           = "ping"
	FrameResult         = "result"
	FrameStatusQuery    = "status_query"
	FrameStatusResponse = "status_response"

	// outbound only
	FrameAuthenticated = "authenticated"
	FramePong          = "pong"
	FrameCommandPush   = "command_push"
	FrameConfigPush    = "config_push"
	FrameError         = "error"
)

// Frame is the wire envelope for every protocol message.
type Frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"messageId,omitempty"`
}

// NewFrame builds an outbound envelope around payload.
func NewFrame(kind string, payload any) (Frame, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		data = b
	}
	return Frame{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()}, nil
}

// AuthenticateRequest is the first frame a robot must send.
type AuthenticateRequest struct {
	RobotID string `json:"robotId"`
	Token   string `json:"token"`
}

type AuthenticatedResponse struct {
	Authenticated bool   `json:"authenticated"`
	RobotID       string `json:"robotId"`
	DeviceID      string `json:"deviceId"`
	UserID        uint   `json:"userId"`
}

type HeartbeatRequest struct {
	Status      string `json:"status"`
	Battery     int    `json:"battery"`
	Signal      int    `json:"signal"`
	MemoryUsage int    `json:"memoryUsage"`
	CPUUsage    int    `json:"cpuUsage"`
	NetworkType string `json:"networkType"`
}

// ResultRequest reports the terminal outcome of a pushed command.
type ResultRequest struct {
	CommandID    string          `json:"commandId"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ExecutedAt   int64           `json:"executedAt,omitempty"`
}

type StatusQueryRequest struct {
	QueryID string `json:"queryId"`
}

type StatusResponse struct {
	QueryID    string          `json:"queryId"`
	Status     string          `json:"status"`
	DeviceInfo json.RawMessage `json:"deviceInfo,omitempty"`
}

type CommandPush struct {
	CommandID   string          `json:"commandId"`
	RobotID     string          `json:"robotId"`
	CommandType string          `json:"type"`
	CommandCode int             `json:"code"`
	Target      string          `json:"target,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	Priority    int             `json:"priority"`
	CreatedAt   int64           `json:"createdAt"`
}

type ConfigPush struct {
	RobotID    string          `json:"robotId"`
	ConfigType string          `json:"configType"`
	Version    int             `json:"version"`
	Config     json.RawMessage `json:"config"`
}

// ErrorPayload is the catch-all outbound failure frame.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	RobotID string `json:"robotId,omitempty"`
}

// QueueStats summarises the command queue for the control plane.
type QueueStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Executing int `json:"executing"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
}
