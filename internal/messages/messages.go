// Package messages defines the payloads exchanged with the dispensing
// counters and the packing robot.
//
// The devices speak a fixed JSON dialect: counters report {"caro": n} or
// {"barato": n}, the robot reports {"command": "finished", "id_pedido": id},
// and the service announces per-category totals as
// {"id_pedido": id, "total_caro": n} / {"id_pedido": id, "total_barato": n}.
package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buildtall-systems/vinopack/internal/catalog"
)

// CommandFinished is the robot status command marking a packed order.
const CommandFinished = "finished"

// ErrNotCountReport indicates a well-formed payload on a category channel
// that carries no remaining count, such as the service's own totals.
var ErrNotCountReport = errors.New("payload is not a count report")

// MalformedMessageError wraps a payload that could not be decoded.
type MalformedMessageError struct {
	Channel string
	Payload string
	Err     error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message on %s: %v", e.Channel, e.Err)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// PremiumTotals is published on the premium channel after an order is stored.
type PremiumTotals struct {
	OrderID int64 `json:"id_pedido"`
	Total   int   `json:"total_caro"`
}

// StandardTotals is published on the standard channel after an order is stored.
type StandardTotals struct {
	OrderID int64 `json:"id_pedido"`
	Total   int   `json:"total_barato"`
}

// RobotCommand is published on the robot command channel.
type RobotCommand struct {
	Command string `json:"command"`
	OrderID int64  `json:"id_pedido,omitempty"`
}

// CountReport is a counter's snapshot of what remains to dispense.
type CountReport struct {
	Category  catalog.Category
	Remaining int
	// OrderID is set when the counter names the order it is serving.
	OrderID    int64
	HasOrderID bool
}

// RobotStatus is a report from the packing robot.
type RobotStatus struct {
	Command string
	OrderID int64
}

// EncodeTotals returns the payload announcing an order's total for category.
func EncodeTotals(category catalog.Category, orderID int64, total int) ([]byte, error) {
	switch category {
	case catalog.Premium:
		return json.Marshal(PremiumTotals{OrderID: orderID, Total: total})
	case catalog.Standard:
		return json.Marshal(StandardTotals{OrderID: orderID, Total: total})
	default:
		return nil, fmt.Errorf("unknown category %q", category)
	}
}

// EncodeRobotCommand returns the payload for a robot command.
func EncodeRobotCommand(cmd RobotCommand) ([]byte, error) {
	return json.Marshal(cmd)
}

func countKey(category catalog.Category) string {
	if category == catalog.Premium {
		return "caro"
	}
	return "barato"
}

// DecodeCountReport parses a counter report for category received on channel.
func DecodeCountReport(channel string, category catalog.Category, payload []byte) (*CountReport, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, malformed(channel, payload, err)
	}

	raw, ok := fields[countKey(category)]
	if !ok || string(raw) == "null" {
		return nil, ErrNotCountReport
	}

	report := &CountReport{Category: category}
	if err := json.Unmarshal(raw, &report.Remaining); err != nil {
		return nil, malformed(channel, payload, fmt.Errorf("decoding %s: %w", countKey(category), err))
	}

	if rawID, ok := fields["id_pedido"]; ok && string(rawID) != "null" {
		if err := json.Unmarshal(rawID, &report.OrderID); err != nil {
			return nil, malformed(channel, payload, fmt.Errorf("decoding id_pedido: %w", err))
		}
		report.HasOrderID = true
	}

	return report, nil
}

// DecodeRobotStatus parses a packing robot report received on channel.
func DecodeRobotStatus(channel string, payload []byte) (*RobotStatus, error) {
	var msg struct {
		Command *string `json:"command"`
		OrderID *int64  `json:"id_pedido"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, malformed(channel, payload, err)
	}
	if msg.Command == nil {
		return nil, malformed(channel, payload, errors.New("missing command"))
	}
	if msg.OrderID == nil {
		return nil, malformed(channel, payload, errors.New("missing id_pedido"))
	}
	return &RobotStatus{Command: *msg.Command, OrderID: *msg.OrderID}, nil
}

func malformed(channel string, payload []byte, err error) error {
	return &MalformedMessageError{Channel: channel, Payload: string(payload), Err: err}
}
